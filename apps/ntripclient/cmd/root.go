// Package cmd holds the ntripclient commands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/goblimey/go-ntrip-client/apps/ntripclient/output"
	"github.com/goblimey/go-ntrip-client/config"
	"github.com/goblimey/go-ntrip-client/ntrip"
)

// app is the state shared by the commands, set up by the root command's
// PersistentPreRunE.
type app struct {
	// Global flags.
	configFile string
	caster     string
	user       string
	pass       string
	logLevel   string
	logFile    string
	format     string

	lookupEnv func(string) (string, bool)

	cfg       *config.Config
	logger    *slog.Logger
	formatter output.Formatter
	logCloser io.Closer
}

// NewRootCommand builds the command tree.  Results go to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	return newRootCommand(out, os.LookupEnv)
}

// newRootCommand builds the command tree, reading environment variables
// using lookupEnv.
func newRootCommand(out io.Writer, lookupEnv func(string) (string, bool)) *cobra.Command {
	a := &app{lookupEnv: lookupEnv}

	root := &cobra.Command{
		Use:   "ntripclient",
		Short: "Fetch sourcetables and stream RTCM3 corrections from an NTRIP caster",
		Long: `ntripclient talks to an NTRIP caster.  It lists the caster's mounts,
finds the mount nearest to a position and subscribes to a mount, printing,
recording or republishing the RTCM3 messages that arrive.

The caster is a provider name (see "ntripclient providers") or a URL such as
https://caster.example.com:443.  Settings come from the config file, then the
NTRIP_* environment variables, then the flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setUp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.tearDown()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (JSON, or YAML if it ends in .yaml or .yml)")
	flags.StringVar(&a.caster, "caster", "", "caster provider name or URL")
	flags.StringVarP(&a.user, "user", "u", "", "caster user name")
	flags.StringVarP(&a.pass, "pass", "p", "", "caster password")
	flags.StringVar(&a.logLevel, "log-level", "", "event log level: debug, info, warn or error")
	flags.StringVar(&a.logFile, "log-file", "", "write the event log to this file instead of stderr")
	flags.StringVarP(&a.format, "output", "o", "table", "output format: table, json or yaml")

	root.AddCommand(
		newListCommand(a),
		newNearestCommand(a),
		newSubscribeCommand(a),
		newProvidersCommand(a),
		newDisplayCommand(a),
		newVersionCommand(),
	)

	return root
}

// Execute runs the command line and returns the exit status.
func Execute() int {
	root := NewRootCommand(os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// setUp loads the config and creates the logger and the formatter.
func (a *app) setUp() error {
	cfg := config.Default()
	if a.configFile != "" {
		loaded, err := config.Load(a.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnvironment(a.lookupEnv); err != nil {
		return err
	}

	if a.caster != "" {
		cfg.Host = a.caster
		cfg.Port = 0
		cfg.UseTLS = nil
	}
	if a.user != "" {
		cfg.User = a.user
	}
	if a.pass != "" {
		cfg.Password = a.pass
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFile != "" {
		cfg.EventLogFile = a.logFile
	}
	a.cfg = cfg

	formatter, err := output.NewFormatter(a.format)
	if err != nil {
		return err
	}
	a.formatter = formatter

	return a.createLogger()
}

// createLogger creates the event logger.  A log file is rotated when it
// reaches the configured size.
func (a *app) createLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.cfg.LogLevel)); err != nil {
		return fmt.Errorf("bad log level %q", a.cfg.LogLevel)
	}

	var writer io.Writer = os.Stderr
	if a.cfg.EventLogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   a.cfg.EventLogFile,
			MaxSize:    a.cfg.EventLogMaxSizeMB,
			MaxBackups: 5,
			Compress:   true,
		}
		writer = rotator
		a.logCloser = rotator
	}

	a.logger = slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level}))
	return nil
}

func (a *app) tearDown() {
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

// client creates an NTRIP client for the configured caster.
func (a *app) client(opts ...ntrip.Option) (*ntrip.Client, error) {
	endpoint, err := a.cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	opts = append([]ntrip.Option{ntrip.WithLogger(a.logger)}, opts...)
	return ntrip.New(endpoint, a.cfg.Credentials(), opts...), nil
}

// print formats the result and writes it to the command's output.
func (a *app) print(cmd *cobra.Command, data any) error {
	text, err := a.formatter.Format(data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(cmd.OutOrStdout(), text)
	return err
}

// tableOutput is true when the output is a table rather than structured
// data.
func (a *app) tableOutput() bool {
	_, ok := a.formatter.(output.TableFormatter)
	return ok
}

var errNoMount = errors.New("no mount given")
