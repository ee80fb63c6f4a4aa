package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/TomKellyGenetics/swne/internal/api"
	"github.com/TomKellyGenetics/swne/internal/auth"
	"github.com/TomKellyGenetics/swne/internal/config"
	"github.com/TomKellyGenetics/swne/internal/storage"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "swne",
		Short:         "Similarity-weighted nonnegative embedding server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newServeCommand(&configPath, &verbose))
	root.AddCommand(newVersionCommand())
	return root
}

func newServeCommand(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the embedding HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(*verbose)

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			db, err := sql.Open("postgres", cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if err := db.Ping(); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			authService := auth.NewService(auth.Config{
				SecretKey: cfg.Auth.JWTSecret,
				TokenTTL:  cfg.Auth.TokenTTL,
			}, auth.NewPostgresRepository(db))

			server := api.NewServer(api.ServerConfig{
				Repo:     storage.NewPostgresEmbeddingRepository(db),
				Auth:     authService,
				Logger:   logger,
				Defaults: cfg.Embed,
			})

			logger.Info("starting swne server", "version", version, "addr", cfg.Server.Addr)
			return server.Run(cfg.Server.Addr)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func newLogger(verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}
