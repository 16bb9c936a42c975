package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netreach/netdiscovery/internal/config"
	"github.com/netreach/netdiscovery/internal/logger"
	"github.com/netreach/netdiscovery/internal/netdiscovery"
	"github.com/netreach/netdiscovery/internal/telemetry"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the agent configuration file")
	optionsPath := flag.String("options", "", "path to a NETDISCOVERY options file (normally delivered by the task framework)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("netdiscoveryd: failed to load config")
	}

	logger.Setup(cfg.Debug)

	if warning, err := config.ValidateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("netdiscoveryd: invalid configuration")
	} else if warning != "" {
		log.Warn().Msg(warning)
	}

	netdiscovery.SetSNMPRateLimiter(rate.NewLimiter(rate.Limit(cfg.SNMPRateLimit), cfg.SNMPRateLimit))

	telemetryWriter := telemetry.NewWriter(cfg.Telemetry.URL, cfg.Telemetry.Token, cfg.Telemetry.Org, cfg.Telemetry.Bucket)
	defer telemetryWriter.Close()

	task := netdiscovery.NewTask(cfg.DeviceID, cfg.ServerURL, nil, telemetryWriter, cfg.TargetExpiration, cfg.MaxCount)

	health := NewHealthServer(cfg.HealthCheckPort, telemetryWriter)
	if err := health.Start(); err != nil {
		log.Error().Err(err).Msg("netdiscoveryd: health server failed to start")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("netdiscoveryd: termination signal received, aborting")
		task.RequestStop()
		stop()
	}()

	if *optionsPath == "" {
		log.Fatal().Msg("netdiscoveryd: -options is required (the task framework normally supplies this)")
	}
	options, err := loadOptions(*optionsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("netdiscoveryd: failed to load options file")
	}

	if !task.IsEnabled(options) {
		log.Info().Msg("netdiscoveryd: no job survived validation, nothing to do")
		return
	}

	start := time.Now()
	task.Run(ctx)
	log.Info().Dur("elapsed", time.Since(start)).Msg("netdiscoveryd: run complete")
}
