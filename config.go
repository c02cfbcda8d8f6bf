// Completion: 100% - Config side-car and environment overrides
package main

import (
	"os"
	"path/filepath"

	"github.com/nikandfor/errors"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the config side-car looked up in the package directory
const ConfigFileName = "autopar.yaml"

// Linter levels. Warnings are dropped, reported, or turned into errors.
const (
	LintAllow   = "allow"
	LintWarning = "warning"
	LintDeny    = "deny"
)

// Config holds the user settings of the transformer
type Config struct {
	PluginEnabled        bool   `yaml:"pluginEnabled"`
	ParallelFunctionBody bool   `yaml:"parallelFunctionBody"`
	ParallelForLoops     bool   `yaml:"parallelForLoops"`
	StrictMoves          bool   `yaml:"strictMoves"`
	LinterLevel          string `yaml:"linterLevel"`
	OutputDir            string `yaml:"outputDir"`
}

// DefaultConfig returns the settings used when no side-car exists
func DefaultConfig() Config {
	return Config{
		PluginEnabled: true,
		LinterLevel:   LintWarning,
		OutputDir:     "autopar_out",
	}
}

// LoadConfig reads the config side-car of dir, if any, and applies the
// environment overrides on top of it
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrap(err, "parse %v", path)
		}
	case !os.IsNotExist(err):
		return cfg, errors.Wrap(err, "read %v", path)
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, errors.Wrap(err, "%v", path)
	}
	return cfg, nil
}

// applyEnv rereads the environment, a process may run several passes
func (cfg *Config) applyEnv() {
	env.Load()
	if env.Has("AUTOPAR_ENABLED") {
		cfg.PluginEnabled = env.Bool("AUTOPAR_ENABLED")
	}
	if env.Has("AUTOPAR_FUNCTION_BODY") {
		cfg.ParallelFunctionBody = env.Bool("AUTOPAR_FUNCTION_BODY")
	}
	if env.Has("AUTOPAR_FOR_LOOPS") {
		cfg.ParallelForLoops = env.Bool("AUTOPAR_FOR_LOOPS")
	}
	if env.Has("AUTOPAR_STRICT_MOVES") {
		cfg.StrictMoves = env.Bool("AUTOPAR_STRICT_MOVES")
	}
	cfg.LinterLevel = env.Str("AUTOPAR_LINTER_LEVEL", cfg.LinterLevel)
	cfg.OutputDir = env.Str("AUTOPAR_OUTPUT", cfg.OutputDir)
	if env.Bool("AUTOPAR_VERBOSE") {
		VerboseMode = true
	}
}

func (cfg Config) validate() error {
	switch cfg.LinterLevel {
	case LintAllow, LintWarning, LintDeny:
	default:
		return errors.New("unknown linterLevel %q", cfg.LinterLevel)
	}
	if cfg.OutputDir == "" {
		return errors.New("outputDir must not be empty")
	}
	return nil
}

// Save writes the config side-car into dir
func (cfg Config) Save(dir string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write %v", path)
	}
	return nil
}

// analyserOptions and reconstructOptions derive the component settings
func (cfg Config) analyserOptions() AnalyserOptions {
	return AnalyserOptions{StrictMoves: cfg.StrictMoves}
}

func (cfg Config) reconstructOptions(perIterationLoopVars bool) ReconstructOptions {
	return ReconstructOptions{
		ForLoops:             cfg.ParallelForLoops,
		PerIterationLoopVars: perIterationLoopVars,
	}
}
