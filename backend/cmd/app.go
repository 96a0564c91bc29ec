package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/realtime-session/backend/apierror"
	apiClient "github.com/adwski/realtime-session/backend/client/http"
	websocketClient "github.com/adwski/realtime-session/backend/client/websocket"
	"github.com/adwski/realtime-session/backend/config"
	"github.com/adwski/realtime-session/backend/connection"
	"github.com/adwski/realtime-session/backend/model"
	metricsServer "github.com/adwski/realtime-session/backend/server/http"
	sw "github.com/adwski/realtime-session/backend/switch"
	"github.com/davecgh/go-spew/spew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfgPath, _ := fs.GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err = cfg.ApplyFlags(fs); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply command line arguments")
	}
	if err = cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	channel, err := websocketClient.New(cfg.WebsocketConfig(&logger, reg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create channel")
	}
	manager := connection.NewManager(channel)

	inbound := sw.NewSwitch(&logger)
	inbound.On(sw.AnyEvent, func(_ context.Context, ev model.Event) {
		logger.Debug().Str("event", ev.Name).Msg("inbound event")
		if e := logger.Trace(); e.Enabled() {
			e.Str("event", ev.Name).Str("dump", spew.Sdump(ev.Data)).Msg("inbound event payload")
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go channel.Run(ctx, wg, errc)
	go inbound.Run(ctx, wg, channel.Inbound())

	if cfg.MetricsAddr != "" {
		srv := metricsServer.NewServer(metricsServer.Config{
			Logger:     &logger,
			Channel:    channel,
			Gatherer:   reg,
			ListenAddr: cfg.MetricsAddr,
		})
		wg.Add(1)
		go srv.Run(ctx, wg, errc)
	}

	if cfg.API.BaseURL != "" && cfg.Session.RoomID != "" {
		api := apiClient.NewClient(apiClient.Config{
			Logger:  &logger,
			BaseURL: cfg.API.BaseURL,
			Jar:     channel.Jar(),
			Timeout: cfg.API.Timeout,
		})
		if _, err = api.JoinRoom(ctx, cfg.Session.RoomID, cfg.Session.UserID); err != nil {
			if res := apierror.ClassifyError(err); res.IsEnvelope() {
				logger.Error().
					Str("roomID", cfg.Session.RoomID).
					Str("reason", res.DataMessage()).
					Msg("room join rejected")
			} else {
				logger.Error().Err(err).Msg("room join failed")
			}
			cancel()
			wg.Wait()
			os.Exit(1)
		}
	}

	manager.JoinRoom(cfg.Session.UserID)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	_ = channel.Close()
	wg.Wait()
}
