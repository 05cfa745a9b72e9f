package main

import (
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/okian/learnpath/internal/app"
	"github.com/okian/learnpath/internal/config"
	"github.com/okian/learnpath/pkg/logger"
)

// version is set via -ldflags at build time.
var version = "(devel)"

// cli holds the state shared by all subcommands: persistent flag values
// and the configuration resolved from them.
type cli struct {
	configPath    string
	paramsPath    string
	questionsPath string
	logLevel      string

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "learnpath",
		Short:         "Adaptive difficulty learning path inference",
		Long:          "learnpath fuses averaged facial expression probabilities with a performance score and predicts a difficulty class for each upcoming question.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file (overrides LEARNPATH_CONFIG)")
	flags.StringVar(&c.paramsPath, "params", "", "model parameter snapshot (.json, .yaml)")
	flags.StringVar(&c.questionsPath, "questions", "", "YAML question bank")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newPredictCmd(c),
		newServeCmd(c),
		newCaptureCmd(c),
		newInspectCmd(c),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration (defaults -> file -> env -> flags) and
// initializes logging on stderr so stdout carries only results.
func (c *cli) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()

	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFile(ctx, c.configPath)
	} else {
		cfg, err = config.Load(ctx)
	}
	if err != nil {
		return err
	}
	if c.paramsPath != "" {
		cfg.ParamsPath = c.paramsPath
	}
	if c.questionsPath != "" {
		cfg.QuestionBankPath = c.questionsPath
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	c.log = logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	c.cfg = cfg
	return nil
}

// service builds a service from the resolved configuration.
func (c *cli) service(opts ...app.Option) *app.Service {
	base := []app.Option{app.WithLogger(c.log.Named("service"))}
	return app.NewFromConfig(c.cfg, append(base, opts...)...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current version",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "learnpath", version)
		},
	}
}
