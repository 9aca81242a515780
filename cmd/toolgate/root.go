package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configPath string

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolgate",
		Short: "Authorization gateway for agent tool calls",
		Long: `toolgate evaluates proposed tool invocations against policy rules,
parks risky ones for human approval, and issues HMAC signatures binding
each approval to the exact request payload.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.toolgate/config.yaml)")

	cmd.AddCommand(
		newEvaluateCmd(),
		newPendingCmd(),
		newApproveCmd(),
		newRejectCmd(),
		newVerifyCmd(),
	)

	return cmd
}

func initConfig() error {
	viper.SetEnvPrefix("toolgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	path := strings.TrimSpace(configPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("TOOLGATE_CONFIG"))
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil && strings.TrimSpace(home) != "" {
			path = filepath.Join(home, ".toolgate", "config.yaml")
		}
	}
	if path == "" {
		return nil
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			// No config file is fine; env vars and flags still apply.
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	slog.Debug("config_loaded", "path", path)
	return nil
}
