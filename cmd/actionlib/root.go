package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/actionlib/internal/config"
)

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	configPath string
	dataDir    string
	logLevel   string
	logFormat  string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "actionlib",
		Short: "Library of test actions with AI code generation",
		Long: `actionlib stores named test actions (a description, a code snippet and
a category) in a local JSON file and can ask a cloud completion model to
turn an action's code into a finished test.

Credentials live in a separate settings file next to the actions. Set the
OAuth token once with "actionlib settings set-oauth"; short-lived IAM
tokens are exchanged and refreshed automatically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Config file (default: $ACTIONLIB_CONFIG or ~/.config/actionlib/config.yaml)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory holding settings.json and actions.json")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Shorthand for --log-level=debug")

	cmd.AddCommand(
		newActionCmd(opts),
		newCategoryCmd(opts),
		newSettingsCmd(opts),
		newTokenCmd(opts),
		newDaemonCmd(opts),
		newConfigCmd(opts),
	)

	return cmd
}

// init loads configuration, applies flag overrides and installs the logger
func (o *rootOptions) init(cmd *cobra.Command) error {
	path := o.configPath
	if path == "" {
		path = config.Path()
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	if o.dataDir != "" {
		cfg.Paths.DataDir = o.dataDir
	}
	if o.logLevel != "" {
		cfg.Log.Level = strings.ToLower(o.logLevel)
	}
	if o.logFormat != "" {
		cfg.Log.Format = strings.ToLower(o.logFormat)
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = logger
	slog.SetDefault(logger)
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "text", "":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return slog.New(handler), nil
}
