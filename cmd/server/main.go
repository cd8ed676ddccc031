package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Broadcast/internal/adapters/directory"
	router "github.com/dkeye/Broadcast/internal/adapters/http"
	"github.com/dkeye/Broadcast/internal/adapters/rtc"
	wssignal "github.com/dkeye/Broadcast/internal/adapters/signal"
	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/app/orch"
	"github.com/dkeye/Broadcast/internal/config"
	"github.com/dkeye/Broadcast/internal/platform/metrics"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "broadcast-server",
	Short: "One-to-many WebRTC broadcast signaling server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override log_level from config")
	rootCmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", level).Msg("unknown log level, keeping info")
	}

	codecs := make([]rtc.Codec, 0, len(cfg.Media.Codecs))
	for _, c := range cfg.Media.Codecs {
		codecs = append(codecs, rtc.Codec{
			MimeType:    c.MimeType,
			ClockRate:   c.ClockRate,
			Channels:    c.Channels,
			PayloadType: c.PayloadType,
			SDPFmtpLine: c.Fmtp,
		})
	}
	media, err := rtc.NewRouter(rtc.Options{
		Codecs:     codecs,
		ICEServers: cfg.Media.ICEServers,
		EnableTCP:  cfg.Media.EnableTCP,
		TCPPort:    cfg.Media.TCPPort,
		UDPPortMin: cfg.Media.UDPPortMin,
		UDPPortMax: cfg.Media.UDPPortMax,
	})
	if err != nil {
		return fmt.Errorf("media router: %w", err)
	}
	defer func() {
		if err := media.Close(); err != nil {
			log.Warn().Err(err).Msg("media router close")
		}
	}()

	policy, err := app.ParseRolePolicy(cfg.Rooms.RolePolicy)
	if err != nil {
		return err
	}
	m := metrics.New()
	reg := app.NewRegistry()
	rooms := app.NewRoomTable(policy)
	relay := &app.Relay{Registry: reg, Rooms: rooms, Policy: app.SimplePolicy{}, Metrics: m}
	seq := app.NewSequencer(media, cfg.ListenConfig(), cfg.Media.NegotiationTimeout, cfg.Media.MaxPendingTransports, relay)

	var dir app.Directory = app.NopDirectory{}
	if cfg.Directory.RedisAddr != "" {
		rd, err := directory.Connect(ctx, directory.Config{
			Addr:     cfg.Directory.RedisAddr,
			Password: cfg.Directory.RedisPassword,
			DB:       cfg.Directory.RedisDB,
			TTL:      cfg.Directory.TTL,
		})
		if err != nil {
			return fmt.Errorf("room directory: %w", err)
		}
		defer rd.Close()
		async := app.NewAsyncDirectory(rd, app.DefaultDirectoryTimeout, app.DefaultDirectoryQueue)
		defer async.Close()
		dir = async
	}

	o := &orch.Orchestrator{
		Registry:     reg,
		Rooms:        rooms,
		Relay:        relay,
		Sequencer:    seq,
		Directory:    dir,
		Metrics:      m,
		MaxRoomIDLen: cfg.Rooms.MaxRoomIDLen,
	}
	ctl := wssignal.NewSignalWSController(o, wssignal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		JoinLimit:    cfg.Rooms.JoinRateLimit,
		JoinInterval: cfg.Rooms.JoinRateInterval,
	})

	r := router.SetupRouter(ctx, cfg, o, ctl, m)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("role_policy", string(policy)).Msg("Broadcast server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Shutdown()
	log.Info().Msg("Server exited gracefully")
	return nil
}
