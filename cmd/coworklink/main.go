package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coworklink/coworklink/app"
	"github.com/coworklink/coworklink/internal/profile"
	"github.com/coworklink/coworklink/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "coworklink",
	Short: "A matchmaking bot that pairs seekers and providers over a chat transport.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		p := &profile.Profile{
			Mode: viper.GetString("mode"),
			Addr: viper.GetString("addr"),
			Port: viper.GetInt("port"),
			DSN:  viper.GetString("dsn"),
		}
		p.FromEnv()
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), terminationSignals...)
		defer stop()

		a, err := app.New(p)
		if err != nil {
			return fmt.Errorf("failed to build application: %w", err)
		}
		defer func() {
			if err := a.Close(); err != nil {
				slog.Error("failed to close store cleanly", "error", err)
			}
		}()

		slog.Info("coworklink starting", "version", p.Version, "mode", p.Mode)
		if err := a.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("application exited with error: %w", err)
		}

		slog.Info("coworklink shut down cleanly")
		return nil
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 8080)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of the process, "dev", "demo", or "prod"`)
	rootCmd.PersistentFlags().String("addr", "", "address to bind the HTTP surface to")
	rootCmd.PersistentFlags().Int("port", 8080, "port to bind the HTTP surface to")
	rootCmd.PersistentFlags().String("dsn", "", "postgres connection string")

	for _, name := range []string{"mode", "addr", "port", "dsn"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("coworklink")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version and exit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.StringFull())
	},
}

func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("coworklink exited with error", "error", err)
		os.Exit(1)
	}
}
