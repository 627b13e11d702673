package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fxnlabs/tilegraph/internal/backend"
	"github.com/fxnlabs/tilegraph/internal/cluster"
	"github.com/fxnlabs/tilegraph/internal/taskgraph"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Runtime struct {
		CPUWorkers  int    `yaml:"cpuWorkers"`
		CUDAWorkers int    `yaml:"cudaWorkers"`
		Scheduler   string `yaml:"scheduler"`
	} `yaml:"runtime"`
	Cluster struct {
		Nodes          int           `yaml:"nodes"`
		TransferBuffer int           `yaml:"transferBuffer"`
		BarrierTimeout time.Duration `yaml:"barrierTimeout"`
	} `yaml:"cluster"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
	Bench struct {
		Shape    []int64 `yaml:"shape"`
		Basetile []int64 `yaml:"basetile"`
		Seed     uint64  `yaml:"seed"`
	} `yaml:"bench"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Logger.Verbosity == "" {
		c.Logger.Verbosity = "info"
	}
	if c.Runtime.Scheduler == "" {
		c.Runtime.Scheduler = taskgraph.SchedulerDMDA
	}
	if c.Cluster.Nodes == 0 {
		c.Cluster.Nodes = 1
	}
	if c.Cluster.TransferBuffer == 0 {
		c.Cluster.TransferBuffer = 16
	}
	if c.Cluster.BarrierTimeout == 0 {
		c.Cluster.BarrierTimeout = 30 * time.Second
	}
	if len(c.Bench.Shape) == 0 {
		c.Bench.Shape = []int64{512, 512}
	}
	if len(c.Bench.Basetile) == 0 {
		c.Bench.Basetile = []int64{128, 128}
	}
	if c.Bench.Seed == 0 {
		c.Bench.Seed = 42
	}
}

func (c *Config) Validate() error {
	switch c.Runtime.Scheduler {
	case taskgraph.SchedulerEager, taskgraph.SchedulerDMDA:
	default:
		return fmt.Errorf("%w: unknown scheduler %q", ErrInvalid, c.Runtime.Scheduler)
	}
	if c.Runtime.CPUWorkers < 0 || c.Runtime.CUDAWorkers < 0 {
		return fmt.Errorf("%w: negative worker count", ErrInvalid)
	}
	if c.Cluster.Nodes < 1 {
		return fmt.Errorf("%w: cluster.nodes must be positive, got %d", ErrInvalid, c.Cluster.Nodes)
	}
	if c.Cluster.TransferBuffer < 0 {
		return fmt.Errorf("%w: negative transfer buffer", ErrInvalid)
	}
	if len(c.Bench.Shape) != 2 || len(c.Bench.Basetile) != 2 {
		return fmt.Errorf("%w: bench shape %v and basetile %v must be 2-d", ErrInvalid, c.Bench.Shape, c.Bench.Basetile)
	}
	for i := range c.Bench.Shape {
		if c.Bench.Shape[i] < 1 || c.Bench.Basetile[i] < 1 {
			return fmt.Errorf("%w: bench shape %v and basetile %v must be positive", ErrInvalid, c.Bench.Shape, c.Bench.Basetile)
		}
	}
	return nil
}

// NodeOptions returns the options every cluster node is started with.
func (c *Config) NodeOptions() cluster.Options {
	return cluster.Options{
		Runtime: taskgraph.Options{
			Backends: backend.Options{
				CPUWorkers:  c.Runtime.CPUWorkers,
				CUDAWorkers: c.Runtime.CUDAWorkers,
			},
			Scheduler: c.Runtime.Scheduler,
		},
		TransferBuffer: c.Cluster.TransferBuffer,
		BarrierTimeout: c.Cluster.BarrierTimeout,
	}
}
