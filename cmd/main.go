package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/dontpanicw/PhotoGallery/config"
	"github.com/dontpanicw/PhotoGallery/internal/app"
	"github.com/dontpanicw/PhotoGallery/internal/auth"
	"github.com/dontpanicw/PhotoGallery/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const pprofAddr = "localhost:6060"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "photo-gallery: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfg *config.Config
		log *zap.Logger
	)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the photo gallery HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			go startPprof(log)
			return app.Start(cfg, log)
		},
	}

	root := &cobra.Command{
		Use:           "photo-gallery",
		Short:         "Photo gallery backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.NewConfig()
			if err != nil {
				return fmt.Errorf("error creating config: %w", err)
			}
			log, err = logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			if !cfg.EnvFileLoaded {
				log.Debug(".env file not found, using environment only")
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
		// без подкоманды запускаем сервер
		RunE: serve.RunE,
	}

	root.AddCommand(serve,
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.Migrate(cmd.Context(), cfg, log)
			},
		},
		&cobra.Command{
			Use:   "repair",
			Short: "Re-check the orientation of every stored photo",
			RunE: func(cmd *cobra.Command, args []string) error {
				report, err := app.Repair(cmd.Context(), cfg, log)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			},
		},
		newHashPasswordCmd(),
	)

	return root
}

// newHashPasswordCmd печатает bcrypt-хеш для APP_PASSWORD. Пароль берётся из
// аргумента или из первой строки stdin, чтобы не оставлять его в истории shell.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash to use as APP_PASSWORD",
		Args:  cobra.MaximumNArgs(1),
		// конфигурация и логгер здесь не нужны
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				if scanner.Scan() {
					password = scanner.Text()
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func startPprof(log *zap.Logger) {
	mux := http.NewServeMux()

	// Явно регистрируем все обработчики pprof
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	log.Info("starting pprof server", zap.String("addr", pprofAddr))
	if err := http.ListenAndServe(pprofAddr, mux); err != nil {
		log.Warn("pprof server error", zap.Error(err))
	}
}
