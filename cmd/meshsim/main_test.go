package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestListPrintsAllScenarioNames(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		assert.Contains(t, out, name)
	}
}

func TestRunRejectsUnknownScenario(t *testing.T) {
	_, err := execute(t, "run", "Z")
	assert.Error(t, err)
}

func TestRunAcceptsLowercaseScenarioName(t *testing.T) {
	out, err := execute(t, "run", "b")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "scenario B"))
}

func TestBatchRunsEveryScenario(t *testing.T) {
	out, err := execute(t, "batch")
	require.NoError(t, err)
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		assert.Contains(t, out, "scenario "+name)
	}
}

func TestBatchOnlyRestrictsToNamedScenarios(t *testing.T) {
	out, err := execute(t, "batch", "--only", "B,E")
	require.NoError(t, err)
	assert.Contains(t, out, "scenario B")
	assert.Contains(t, out, "scenario E")
	assert.NotContains(t, out, "scenario A")
}
