package main

import (
	"fmt"
	"io"
	"time"

	"github.com/joho/godotenv"
	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/pkg/config"
	"github.com/marmos91/goyp/pkg/yp"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	domain     string
	server     string
	timeout    time.Duration
	logLevel   string

	cfg       *config.Config
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "goyp",
		Short: "NIS (YP) client and development server",
		Long: fmt.Sprintf(`goyp (%s)

Look up NIS maps the way ypmatch, ypcat and ypwhich do, change NIS
passwords through yppasswdd, and run a local ypserv/ypbind/portmap/yppasswdd
stack for development.`, Version),
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/goyp/config.yaml)")
	flags.StringVarP(&a.domain, "domain", "d", "", "NIS domain (default: client.domain, then the system domain)")
	// -h is --server, as in the yp tools; cobra then leaves --help without
	// a shorthand.
	flags.StringVarP(&a.server, "server", "h", "", "server host[:port] (default: ask ypbind)")
	flags.DurationVar(&a.timeout, "timeout", 0, "per-call timeout (default: client.call_timeout)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR")

	root.AddCommand(
		newMatchCmd(a),
		newCatCmd(a),
		newWhichCmd(a),
		newMapsCmd(a),
		newPasswdCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads .env files and the configuration, then applies flag
// overrides and configures logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if a.domain != "" {
		cfg.Client.Domain = a.domain
	}
	if a.server != "" {
		cfg.Client.Server = a.server
	}
	if a.timeout > 0 {
		cfg.Client.CallTimeout = a.timeout
		cfg.Client.RetryTimeout = min(cfg.Client.RetryTimeout, a.timeout)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	closer, err := logger.OpenOutput(cfg.Logging.Output)
	if err != nil {
		return err
	}
	a.logCloser = closer
	a.cfg = cfg
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	if a.logCloser != nil {
		return a.logCloser.Close()
	}
	return nil
}

// dial binds a client using the effective configuration.
func (a *app) dial(cmd *cobra.Command) (*yp.Client, error) {
	ycfg := a.cfg.Client.ToYP()
	return yp.Dial(cmd.Context(), a.cfg.Client.Domain, a.cfg.Client.Server, ycfg)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of goyp",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "goyp %s\n", Version)
		},
	}
}
