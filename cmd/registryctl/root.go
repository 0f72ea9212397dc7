package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config keys, also settable as REGISTRYCTL_<KEY> or in ~/.registryctl.yaml.
const (
	keyServer = "server"
	keySecret = "secret"
	keyOutput = "output"
)

// cli carries the resolved configuration of one invocation.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "registryctl",
		Short: "CLI for the remote MCP server registry",
		Long: `registryctl talks to a running registry server.

It triggers and queues source syncs, shows sync status, browses the
normalized server catalog and manages sync jobs.

Settings come from flags, REGISTRYCTL_* environment variables or
~/.registryctl.yaml, in that order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.loadConfig(cfgFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.registryctl.yaml)")
	flags.String(keyServer, "http://localhost:8080", "Registry server URL")
	flags.String(keySecret, "", "Bearer secret for sync endpoints (default from CRON_SECRET)")
	flags.StringP(keyOutput, "o", "table", "Output format: table, json, yaml")
	for _, key := range []string{keyServer, keySecret, keyOutput} {
		_ = c.v.BindPFlag(key, flags.Lookup(key))
	}

	c.v.SetEnvPrefix("REGISTRYCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	rootCmd.AddCommand(
		c.syncCmd(),
		c.statusCmd(),
		c.serversCmd(),
		c.jobsCmd(),
		c.healthCmd(),
	)
	return rootCmd
}

func (c *cli) loadConfig(cfgFile string) error {
	if cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		c.v.SetConfigFile(filepath.Join(home, ".registryctl.yaml"))
	}

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if cfgFile != "" {
				return fmt.Errorf("config file %s: %w", cfgFile, err)
			}
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func (c *cli) outputFormat() string {
	return c.v.GetString(keyOutput)
}

func (c *cli) secret() string {
	if s := c.v.GetString(keySecret); s != "" {
		return s
	}
	return os.Getenv("CRON_SECRET")
}
