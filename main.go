package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mbalug7/go-tarts/pkg/api"
	"github.com/mbalug7/go-tarts/pkg/config"
	"github.com/mbalug7/go-tarts/pkg/daemon"
	"github.com/mbalug7/go-tarts/pkg/hal"
	"github.com/mbalug7/go-tarts/pkg/store"
	"github.com/mbalug7/go-tarts/pkg/uplink"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "tartsd.yaml", "configuration file path, .yaml or .toml")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(configFile); err != nil {
		log.Fatal().Err(err).Msg("tartsd failed")
	}
	log.Info().Msg("tartsd stopped")
}

// run owns every resource of the daemon, its deferred cleanup completes
// before main decides on the exit code
func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	defer stop()

	sink, err := openUplink(ctx, cfg.Uplink)
	if err != nil {
		return fmt.Errorf("failed to open uplink: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close uplink")
		}
	}()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open sensor store: %w", err)
	}
	if st != nil {
		defer func() {
			if err := st.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close sensor store")
			}
		}()
	}

	d, err := daemon.New(ctx, cfg, hal.NewUARTTransport(cfg.Gateway.Module()), sink, st)
	if err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	var srv *api.Server
	if cfg.API.Listen != "" {
		srv = api.NewServer(cfg.API, d)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("api server failed")
			}
		}()
	}

	runErr := d.Run(ctx)
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("failed to shut down api server")
		}
	}
	if runErr != nil {
		return fmt.Errorf("gateway loop failed: %w", runErr)
	}
	return nil
}

func openUplink(ctx context.Context, cfg config.UplinkConfig) (uplink.Multi, error) {
	var sinks uplink.Multi
	if cfg.HTTP.URL != "" {
		httpSink := uplink.NewHTTPSink(cfg.HTTP.URL, cfg.HTTP.APIKey, cfg.HTTP.BotID, cfg.HTTP.Timeout)
		if cfg.HTTP.WaitForAPI {
			if err := httpSink.WaitUntilAvailable(ctx); err != nil {
				return nil, err
			}
		}
		sinks = append(sinks, httpSink)
	}
	if cfg.NATS.URL != "" {
		natsSink, err := uplink.DialNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, cfg.NATS.MaxReconnects, cfg.NATS.ReconnectWait)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, natsSink)
	}
	return sinks, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "file":
		fs, err := store.OpenFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	return nil, nil
}
