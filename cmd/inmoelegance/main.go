// Command inmoelegance runs the agency site and its maintenance tasks.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"inmoelegance/internal/config"
	"inmoelegance/internal/logging"
)

const defaultConfigPath = "configs/inmoelegance.yaml"

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "inmoelegance",
		Short: "Inmobiliaria Elegance listings site, admin dashboard and API",
		Long: `inmoelegance serves the public listings site, the admin dashboard and the
JSON API from a single process.

Configuration is read from a YAML file and INMO_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	c.bindGlobal(root.PersistentFlags())

	root.AddCommand(c.serveCmd(), c.seedCmd(), c.adminCmd(), c.exportCmd())
	return root
}

func (c *cli) bindGlobal(fs *pflag.FlagSet) {
	configDefault := defaultConfigPath
	if env := os.Getenv("INMO_CONFIG"); env != "" {
		configDefault = env
	}
	fs.StringVarP(&c.configPath, "config", "c", configDefault, "configuration file (INMO_CONFIG)")
	fs.StringVar(&c.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	fs.SortFlags = false
}

func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	logger, _, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.cfg = cfg
	c.logger = logger
	c.out = cmd.OutOrStdout()
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
