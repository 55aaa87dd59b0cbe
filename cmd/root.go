package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zoreu/cfresolver/internal/config"
	"github.com/zoreu/cfresolver/internal/observability"
)

// Version is injected at build time.
var Version = "dev"

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "cfresolver",
	Short:   "cfresolver exposes a remote-controllable browser session over HTTP.",
	Version: Version,
}

// Execute runs the root command with a context for graceful shutdown.
func Execute(ctx context.Context) error {
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Context cancellation is the expected shutdown path, not a
		// failure worth reporting.
		if ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
}

// initializeConfig reads the config file and environment variables and
// returns the validated configuration.
func initializeConfig() (*config.Config, error) {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CFRESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The driver path is the one setting deployments override most often.
	_ = v.BindEnv("browser.exec_path", "CFRESOLVER_BROWSER_EXEC_PATH")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and environment
		// variables carry the service. Parsing errors are not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	observability.InitializeLogger(cfg.Logger)
	return cfg, nil
}
