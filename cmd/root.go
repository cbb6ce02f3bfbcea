package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/CraigKelly/bayesgraph/model"
)

// settings are the persistent flags shared by every command
type settings struct {
	cfgFile    string
	verbose    bool
	modelFile  string
	dataFile   string
	randomSeed int64

	log *zap.Logger
}

// NewRootCmd builds the command tree. Each call returns an independent tree.
func NewRootCmd() *cobra.Command {
	s := &settings{log: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "bayesgraph",
		Short: "Bayesian graphical models and MCMC sampling",
		Long: `bayesgraph builds directed graphical models from HCL files and samples
their posterior with per-node MCMC procedures.
Among other features:

  - Stochastic and deterministic nodes, with missing data sampled as unknowns
  - Random walk, slice and discrete Gibbs samplers, assignable per node
  - Parallel chains with CSV and SQLite trace output
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := s.applyConfigFile(cmd); err != nil {
				return err
			}
			var err error
			s.log, err = newLogger(s.verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = s.log.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&s.cfgFile, "config", "c", "", "config file (default is $HOME/.bayesgraph.yaml)")
	flags.BoolVarP(&s.verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	flags.StringVarP(&s.modelFile, "model", "m", "", "HCL model file to read")
	flags.StringVarP(&s.dataFile, "data", "d", "", "HCL data/inits file applied to the model")
	flags.Int64VarP(&s.randomSeed, "seed", "r", 1, "Random seed to use")

	rootCmd.AddCommand(
		newRunCmd(s),
		newCheckCmd(s),
		newDotCmd(s),
		newSimulateCmd(s),
		newRunsCmd(s),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on error.
// This is called by main.main().
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	log, err := config.Build()
	if err != nil {
		return nil, errors.Wrap(err, "Could not initialize logger")
	}
	return log, nil
}

// applyConfigFile reads YAML settings keyed by flag name. Flags given on
// the command line win over the file. Lists become comma separated values,
// except for repeatable flags which get one Set per entry.
func (s *settings) applyConfigFile(cmd *cobra.Command) error {
	path := s.cfgFile
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".bayesgraph.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "Could not read config file %s", path)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return errors.Wrapf(err, "Could not parse config file %s", path)
	}

	for name, v := range values {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			if cmd.Root().PersistentFlags().Lookup(name) == nil && !knownElsewhere(cmd.Root(), name) {
				return errors.Errorf("Config file %s: unknown setting %s", path, name)
			}
			continue
		}
		if f.Changed {
			continue
		}
		if err := setFlag(f, v); err != nil {
			return errors.Wrapf(err, "Config file %s: setting %s", path, name)
		}
	}
	return nil
}

// knownElsewhere is true when some other command defines the flag, so one
// config file can serve every command.
func knownElsewhere(root *cobra.Command, name string) bool {
	for _, c := range root.Commands() {
		if c.Flags().Lookup(name) != nil {
			return true
		}
	}
	return false
}

func setFlag(f *pflag.Flag, v any) error {
	list, isList := v.([]any)
	if !isList {
		return f.Value.Set(fmt.Sprint(v))
	}
	if f.Value.Type() == "stringArray" {
		for _, item := range list {
			if err := f.Value.Set(fmt.Sprint(item)); err != nil {
				return err
			}
		}
		return nil
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = fmt.Sprint(item)
	}
	return f.Value.Set(strings.Join(parts, ","))
}

func (s *settings) loadModel() (*model.Model, error) {
	if s.modelFile == "" {
		return nil, errors.New("No model file given (use --model)")
	}
	return model.NewModelFromFile(
		model.HCLReader{Filename: s.modelFile},
		s.modelFile,
		s.dataFile,
		model.WithLogger(s.log),
		model.WithSeed(s.randomSeed),
	)
}
