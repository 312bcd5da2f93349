package model

import (
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Enum helpers (optional).
const (
	ServiceModeManual = "manual"
	ServiceModeServer = "server"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version int     `json:"version" yaml:"version"` // fixed 0 for now
	Tool    Tool    `json:"tool" yaml:"tool"`
	Output  Output  `json:"output" yaml:"output"`
	Service Service `json:"service" yaml:"service"`
}

// Tool describes how the external verification binary is invoked.
type Tool struct {
	Binary string   `json:"binary" yaml:"binary"`
	Args   []string `json:"args,omitempty" yaml:"args,omitempty"`     // extra args placed before the block number
	RPCURL *string  `json:"rpcUrl,omitempty" yaml:"rpcUrl,omitempty"` // default upstream, per-request override allowed
}

// Output holds the shared directory acting as the system of record.
type Output struct {
	Dir string `json:"dir" yaml:"dir"`
}

// Service settings of the dashboard process itself.
type Service struct {
	Mode     string    `json:"mode" yaml:"mode"` // "server" | "manual"
	Listen   *string   `json:"listen,omitempty" yaml:"listen,omitempty"`
	Verbose  *bool     `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log      *string   `json:"log,omitempty" yaml:"log,omitempty"` // "stderr"|"stdout"|"discard"|path
	Parallel *int      `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	Schedule *Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Schedule of the cached listing refresh, cron or duration based.
type Schedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// DefaultConfig returns the configuration written out on the first run.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Tool: Tool{
			Binary: "check-mainnet",
		},
		Output: Output{
			Dir: "data/checks",
		},
		Service: Service{
			Mode: ServiceModeServer,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}

	return &out, nil
}
