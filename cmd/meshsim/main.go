// Command meshsim drives the named scenarios of spec.md §8 against the
// simulator core in this module: a single scenario for focused
// debugging, or the whole family at once to sanity-check the build.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/meshcore/scenario"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "meshsim",
		Short:         "Run named mesh/iDMA simulator scenarios",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")

	newLog := func() *logrus.Entry {
		l := logrus.New()
		if verbose {
			l.SetLevel(logrus.DebugLevel)
		}
		return logrus.NewEntry(l)
	}

	root.AddCommand(newRunCmd(newLog), newBatchCmd(newLog), newListCmd())
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available scenario names",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(scenario.Names, " "))
			return nil
		},
	}
}

func newRunCmd(newLog func() *logrus.Entry) *cobra.Command {
	return &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a single named scenario (A-F)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := scenario.Run(strings.ToUpper(args[0]), newLog())
			if err != nil {
				return err
			}
			printResult(cmd, res)
			if !res.Passed {
				return fmt.Errorf("scenario %s failed", res.Name)
			}
			return nil
		},
	}
}

func newBatchCmd(newLog func() *logrus.Entry) *cobra.Command {
	var only []string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run every scenario concurrently and report pass/fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := scenario.Names
			if len(only) > 0 {
				names = only
			}

			results := make([]scenario.Result, len(names))
			var g errgroup.Group
			for i, name := range names {
				i, name := i, name
				g.Go(func() error {
					res, err := scenario.Run(strings.ToUpper(name), newLog())
					if err != nil {
						return err
					}
					results[i] = res
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
			failed := 0
			for _, res := range results {
				printResult(cmd, res)
				if !res.Passed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&only, "only", nil, "restrict the batch to these scenario names")
	return cmd
}

func printResult(cmd *cobra.Command, res scenario.Result) {
	status := "PASS"
	if !res.Passed {
		status = "FAIL"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] scenario %s (cycles=%d) %s\n", status, res.Name, res.Cycles, res.Detail)
}
