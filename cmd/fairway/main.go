package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/internal/version"
	"github.com/hrygo/fairway/server"
	"github.com/hrygo/fairway/store"
	"github.com/hrygo/fairway/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "fairway",
		Short: `A local sync and caching layer for golf player, course and round data.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogger(viper.GetString("mode"))
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Refresh the collections and serve the HTTP API",
		Run: func(cmd *cobra.Command, _ []string) {
			instanceProfile, err := loadProfile()
			if err != nil {
				slog.Error("failed to load profile", "error", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			shutdownTracing, err := server.SetupTracing(ctx, instanceProfile)
			if err != nil {
				slog.Warn("tracing disabled", "error", err)
			}

			s, err := newServer(ctx, instanceProfile)
			if err != nil {
				cancel()
				slog.Error("failed to create server", "error", err)
				return
			}

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			// The default signal sent by the `kill` command is SIGTERM,
			// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)

			if err := s.Start(ctx); err != nil {
				slog.Error("failed to start server", "error", err)
				_ = s.Store.Close()
				cancel()
				return
			}

			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(ctx)
				_ = shutdownTracing(context.Background())
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of fairway, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", "", "data directory holding the cache slots")
	rootCmd.PersistentFlags().String("driver", "sqlite", `freshness store driver, can be "sqlite", "postgres" or "bolt"`)
	rootCmd.PersistentFlags().String("dsn", "", "freshness store DSN")
	rootCmd.PersistentFlags().String("remote", "", "origin serving players.json, courses.json and rounds/<slug>.json")
	rootCmd.PersistentFlags().String("timezone", "", "IANA timezone for calendar-day freshness, defaults to the host zone")
	serveCmd.Flags().String("addr", "", "address of the HTTP API")
	serveCmd.Flags().Int("port", 8081, "port of the HTTP API")

	for _, name := range []string{"mode", "data", "driver", "dsn", "remote", "timezone"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	for _, name := range []string{"addr", "port"} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("fairway")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, syncCmd, showCmd, historyCmd, statusCmd, clearCmd, inspectRoundsCmd, versionCmd)
}

func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:          viper.GetString("mode"),
		Addr:          viper.GetString("addr"),
		Port:          viper.GetInt("port"),
		Data:          viper.GetString("data"),
		Driver:        viper.GetString("driver"),
		DSN:           viper.GetString("dsn"),
		RemoteBaseURL: viper.GetString("remote"),
		Timezone:      viper.GetString("timezone"),
		Version:       version.GetCurrentVersion(viper.GetString("mode")),
	}
	if err := instanceProfile.FromEnv(); err != nil {
		return nil, err
	}
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func newServer(ctx context.Context, instanceProfile *profile.Profile) (*server.Server, error) {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return nil, err
	}
	storeInstance, err := store.New(dbDriver, instanceProfile)
	if err != nil {
		_ = dbDriver.Close()
		return nil, err
	}
	s, err := server.NewServer(ctx, instanceProfile, storeInstance)
	if err != nil {
		_ = storeInstance.Close()
		return nil, err
	}
	return s, nil
}

func setupLogger(mode string) {
	level := slog.LevelInfo
	if mode == "dev" {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("fairway %s started successfully!\n", p.Version)
	fmt.Fprintf(os.Stderr, "Data directory: %s\n", p.Data)
	fmt.Fprintf(os.Stderr, "Freshness store: %s\n", p.Driver)
	fmt.Fprintf(os.Stderr, "Remote origin: %s\n", p.RemoteBaseURL)
	if p.Addr == "" {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
