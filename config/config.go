// Package config defines the YAML-loadable parameter structs for a
// meshsim run: mesh topology, iDMA engine placement, and timer setup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mesh configures the NoC fabric (spec.md §4.2-§4.3).
type Mesh struct {
	DimX            int    `yaml:"dim_x"`
	DimY            int    `yaml:"dim_y"`
	DimZ            int    `yaml:"dim_z"`
	Is3D            bool   `yaml:"is_3d"`
	QueueSize       int    `yaml:"queue_size"`
	NocWidth        uint64 `yaml:"noc_width"`
	OutstandingReqs int    `yaml:"outstanding_reqs"`
}

// MemoryRegion is one entry of the address-decode memory map (spec.md
// §4.3's MemoryMap).
type MemoryRegion struct {
	Base uint64 `yaml:"base"`
	Size uint64 `yaml:"size"`
	X    int    `yaml:"x"`
	Y    int    `yaml:"y"`
	Z    int    `yaml:"z"`
}

// Axi configures one AXI-style back-end protocol instance (spec.md
// §4.5.1).
type Axi struct {
	BurstQueueSize int `yaml:"burst_queue_size"`
}

// Scratchpad configures one local back-end protocol instance (spec.md
// §4.5.2).
type Scratchpad struct {
	Width          uint64 `yaml:"width"`
	BurstQueueSize int    `yaml:"burst_queue_size"`
}

// Idma configures one iDMA engine's back-end/middle-end sizing.
type Idma struct {
	LocalBase        uint64     `yaml:"local_base"`
	LocalSize        uint64     `yaml:"local_size"`
	Axi              Axi        `yaml:"axi"`
	Scratchpad       Scratchpad `yaml:"scratchpad"`
	MiddleEndQueue   int        `yaml:"middleend_queue"`
	CustomInstr      bool       `yaml:"custom_instruction_frontend"`
}

// Counter configures one timer lane (spec.md §4.8).
type Counter struct {
	Enable          bool   `yaml:"enable"`
	IRQEnable       bool   `yaml:"irq_enable"`
	CompareClear    bool   `yaml:"compare_clear"`
	OneShot         bool   `yaml:"one_shot"`
	PrescalerEnable bool   `yaml:"prescaler_enable"`
	PrescalerValue  uint64 `yaml:"prescaler_value"`
	RefClock        bool   `yaml:"ref_clock"`
	Compare         uint64 `yaml:"compare"`
}

// Timer configures the programmable timer block.
type Timer struct {
	Cascade bool    `yaml:"cascade"`
	Lo      Counter `yaml:"lo"`
	Hi      Counter `yaml:"hi"`
}

// Config is the top-level run configuration loaded from YAML.
type Config struct {
	Mesh       Mesh           `yaml:"mesh"`
	MemoryMap  []MemoryRegion `yaml:"memory_map"`
	Idma       Idma           `yaml:"idma"`
	Timer      Timer          `yaml:"timer"`
	MaxCycles  uint64         `yaml:"max_cycles"`
}

// Load reads and parses a Config from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mesh.QueueSize == 0 {
		c.Mesh.QueueSize = 4
	}
	if c.Mesh.NocWidth == 0 {
		c.Mesh.NocWidth = 32
	}
	if c.Mesh.OutstandingReqs == 0 {
		c.Mesh.OutstandingReqs = 8
	}
	if c.Idma.MiddleEndQueue == 0 {
		c.Idma.MiddleEndQueue = 4
	}
	if c.Idma.Axi.BurstQueueSize == 0 {
		c.Idma.Axi.BurstQueueSize = 4
	}
	if c.Idma.Scratchpad.Width == 0 {
		c.Idma.Scratchpad.Width = 8
	}
	if c.Idma.Scratchpad.BurstQueueSize == 0 {
		c.Idma.Scratchpad.BurstQueueSize = 4
	}
	if c.MaxCycles == 0 {
		c.MaxCycles = 2_000_000
	}
}
