// Package cli provides the inkharmony command line interface.
//
// Command structure:
//
//	inkharmony
//	├── serve                  # start the engine and API server
//	├── create                 # create a new book
//	│   └── --title, --genre, --description (all required)
//	├── list                   # list books under the storage root
//	├── status <book-id>       # show one book's workflow status
//	└── export <book-id> <dir> # export a book's artifacts
//
// Every command accepts --config to point at a YAML configuration file;
// without it defaults plus environment overrides apply.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inkharmony/inkharmony/pkg/app"
	"github.com/inkharmony/inkharmony/pkg/config"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/logger"
	"github.com/inkharmony/inkharmony/pkg/storage"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

// Version is stamped at build time.
var Version = "dev"

// BuildCLI assembles the root command.
func BuildCLI() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "inkharmony",
		Short:         "Multi-agent book production engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(
		buildServeCommand(&configPath),
		buildCreateCommand(&configPath),
		buildListCommand(&configPath),
		buildStatusCommand(&configPath),
		buildExportCommand(&configPath),
	)
	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func buildServeCommand(configPath *string) *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine and API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				logger.SetOutput(f)
			}

			container, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := container.Start(ctx); err != nil {
				return err
			}
			fmt.Printf("inkharmony listening on %s:%d (storage: %s)\n",
				cfg.Gateway.Host, cfg.Gateway.Port, cfg.StorageDir)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sig:
			case <-ctx.Done():
			}

			fmt.Println("shutting down...")
			cancel()
			container.Stop()
			return nil
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "append logs to a file instead of stderr")
	return cmd
}

func buildCreateCommand(configPath *string) *cobra.Command {
	var title, genre, description, style string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new book workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			books := workflow.NewManager(cfg.StorageDir, cfg.Phases)
			bookID, err := books.Create(domain.Payload{
				"title":       title,
				"genre":       genre,
				"description": description,
				"style":       style,
			})
			if err != nil {
				return err
			}

			fmt.Println(bookID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "book title (required)")
	cmd.Flags().StringVar(&genre, "genre", "", "book genre (required)")
	cmd.Flags().StringVar(&description, "description", "", "book description (required)")
	cmd.Flags().StringVar(&style, "style", "", "writing style")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("genre")
	cmd.MarkFlagRequired("description")
	return cmd
}

func buildListCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List books under the storage root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			books := storage.ListBooks(cfg.StorageDir)
			if len(books) == 0 {
				fmt.Println("no books")
				return nil
			}
			for _, meta := range books {
				fmt.Printf("%s\t%s\t%s\n",
					meta.GetString("book_id"), meta.GetString("status"), meta.GetString("title"))
			}
			return nil
		},
	}
}

func buildStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <book-id>",
		Short: "Show a book's workflow status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			books := workflow.NewManager(cfg.StorageDir, cfg.Phases)
			st := books.Status(args[0])
			if st == nil {
				return fmt.Errorf("book %q not found", args[0])
			}

			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func buildExportCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export <book-id> <dir>",
		Short: "Export a book's artifacts to a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			books := workflow.NewManager(cfg.StorageDir, cfg.Phases)
			w := books.Get(args[0])
			if w == nil {
				return fmt.Errorf("book %q not found", args[0])
			}

			files, err := w.Storage().Export(args[1])
			if err != nil {
				return err
			}
			for kind, path := range files {
				fmt.Printf("%s\t%s\n", kind, path)
			}
			return nil
		},
	}
}
