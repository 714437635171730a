package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flashbox/internal/alert"
	"flashbox/internal/config"
	"flashbox/internal/model"
	"flashbox/internal/server"
	"flashbox/internal/session"
	"flashbox/internal/view"
	"flashbox/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	cfg        *config.Config
	cfgFile    string
	redisAddr  string
	badgerPath string
	sessionID  string
	alertTypes []string
)

var rootCmd = &cobra.Command{
	Use:          "flashbox",
	Short:        "flashbox - session flash alerts",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("redis") {
			cfg.Redis.Addr = redisAddr
		}
		if cmd.Flags().Changed("badger") {
			cfg.Badger.Path = badgerPath
		}

		logger, err = newLogger(cfg.Logging)
		return err
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the web server and the GC worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		// Initialize Store (FULL MODE - Redis + Badger, or in-process memory)
		var backend session.Backend
		switch cfg.Session.Backend {
		case "memory":
			logger.Warn("Using in-memory sessions; alerts are lost on restart")
			backend = session.NewMemoryStore()
		default:
			st, err := session.NewHybridStore(cfg.Redis.Addr, cfg.Badger.Path, cfg.Session.TTL)
			if err != nil {
				return fmt.Errorf("init session store: %w", err)
			}
			if cfg.Badger.Path != "" {
				w := worker.NewWorker(st, cfg.Badger.GCInterval, logger)
				go w.Start(ctx)
			}
			backend = st
		}
		defer backend.Close()

		renderer, err := view.NewRenderer()
		if err != nil {
			return err
		}

		sessions := session.NewManager(backend, session.CookieOptions{
			Name:   cfg.Session.CookieName,
			TTL:    cfg.Session.TTL,
			Secure: cfg.Session.Secure,
		}, logger)

		srv := server.NewServer(sessions, renderer, logger, server.Options{
			AlertKey:     cfg.Session.AlertKey,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start(cfg.Server.Listen)
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("Shutting down...")
		}

		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", zap.Error(err))
		}
		logger.Info("Goodbye!")
		return nil
	},
}

// openSession connects to Redis only (CLIENT MODE) so the CLI never takes
// the Badger file lock held by a running server.
func openSession() (*alert.Store, func(), error) {
	if sessionID == "" {
		return nil, nil, errors.New("--session is required")
	}
	st, err := session.NewHybridStore(cfg.Redis.Addr, "", cfg.Session.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("init session store: %w", err)
	}
	sess := session.New(sessionID, st)
	store := alert.NewStore(sess, alert.WithKey(cfg.Session.AlertKey), alert.WithLogger(logger))
	return store, func() { st.Close() }, nil
}

func typeArgs() []model.Type {
	types := make([]model.Type, len(alertTypes))
	for i, t := range alertTypes {
		types[i] = model.Type(t)
	}
	return types
}

var (
	pushType    string
	pushSubject string
	pushBlock   bool
)

var pushCmd = &cobra.Command{
	Use:   "push [text] [args...]",
	Short: "Queue an alert in a session",
	Long: `Queue an alert in the session identified by --session.
Extra arguments are applied to the text and subject as fmt verbs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openSession()
		if err != nil {
			return err
		}
		defer closeFn()

		var opts []alert.SetOption
		if pushSubject != "" {
			opts = append(opts, alert.WithSubject(pushSubject))
		}
		if pushBlock {
			opts = append(opts, alert.Block())
		}

		values := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			values = append(values, a)
		}

		ctx := cmd.Context()
		typ := model.Type(pushType)
		if err := store.SetWithPositional(ctx, typ, args[0], values, opts...); err != nil {
			return err
		}

		logger.Info("Alert queued",
			zap.String("session_id", sessionID),
			zap.String("type", pushType))
		return nil
	},
}

var peekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Print the alerts queued in a session without clearing them",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openSession()
		if err != nil {
			return err
		}
		defer closeFn()

		alerts, err := store.Get(cmd.Context(), typeArgs()...)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(alerts)
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the alerts queued in a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openSession()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := store.Delete(cmd.Context(), typeArgs()...); err != nil {
			return err
		}
		logger.Info("Alerts cleared",
			zap.String("session_id", sessionID),
			zap.Strings("types", alertTypes))
		return nil
	},
}

func newLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}
	zc.Level = level
	return zc.Build()
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./flashbox.yaml or ~/.flashbox/flashbox.yaml)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().StringVar(&badgerPath, "badger", "./badger-data", "Path to BadgerDB data directory")

	for _, c := range []*cobra.Command{pushCmd, peekCmd, clearCmd} {
		c.Flags().StringVar(&sessionID, "session", "", "Session id (the value of the session cookie)")
	}
	peekCmd.Flags().StringSliceVar(&alertTypes, "type", nil, "Only these alert types")
	clearCmd.Flags().StringSliceVar(&alertTypes, "type", nil, "Only these alert types")
	pushCmd.Flags().StringVar(&pushType, "type", string(model.TypeInfo), "Alert type")
	pushCmd.Flags().StringVar(&pushSubject, "subject", "", "Alert subject")
	pushCmd.Flags().BoolVar(&pushBlock, "block", false, "Render as block alert")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(peekCmd)
	rootCmd.AddCommand(clearCmd)

	err := rootCmd.Execute()
	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
