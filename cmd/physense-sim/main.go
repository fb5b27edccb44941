package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/physense-bridge/db"
	"github.com/thatsimonsguy/physense-bridge/internal/api"
	"github.com/thatsimonsguy/physense-bridge/internal/bridge"
	"github.com/thatsimonsguy/physense-bridge/internal/config"
	"github.com/thatsimonsguy/physense-bridge/internal/datadog"
	"github.com/thatsimonsguy/physense-bridge/internal/logging"
	"github.com/thatsimonsguy/physense-bridge/internal/model"
	"github.com/thatsimonsguy/physense-bridge/internal/mqtt"
	"github.com/thatsimonsguy/physense-bridge/internal/notifications"
	"github.com/thatsimonsguy/physense-bridge/system/shutdown"
)

const journalPruneInterval = 15 * time.Minute

func main() {
	cfg := config.Load()
	logFile := logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("receive", cfg.Local().String()).
		Str("send", cfg.Remote().String()).
		Msg("Starting physical programming simulator bridge")

	var steps []shutdown.Step
	deps := bridge.Deps{}

	var journal *db.Journal
	if cfg.DBPath != "" {
		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("Failed to open event journal")
		}
		journal = db.NewJournal(conn, cfg.JournalKeep)
		deps.Recorder = journal

		ctx, stopRetention := context.WithCancel(context.Background())
		retentionDone := make(chan struct{})
		go func() {
			journal.RunRetention(ctx, journalPruneInterval)
			close(retentionDone)
		}()
		steps = append(steps, shutdown.Step{Name: "journal", Fn: func() error {
			stopRetention()
			<-retentionDone
			return conn.Close()
		}})
	}

	if cfg.EnableDatadog {
		metrics, err := datadog.New(cfg.DDAgentAddr, cfg.DDNamespace, cfg.DDTags)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		} else {
			deps.Metrics = metrics
			steps = append(steps, shutdown.Step{Name: "metrics", Fn: metrics.Close})
		}
	}

	b := bridge.New(cfg.Local(), cfg.Remote(), deps)

	b.OnActuatorChanged(func(ev model.ActuatorEvent) {
		if ev.Buzz {
			log.Info().Msg("BZZZT! Buzzer triggered by peer")
			return
		}
		log.Info().Str("device", string(ev.Device)).Str("state", string(ev.State)).Msg("LED changed")
	})
	b.OnActuatorChanged(notifications.New(cfg.NtfyServer, cfg.NtfyTopic).BuzzerObserver())

	if cfg.MQTT.Broker != "" {
		mirror, dispose, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT mirror disabled")
		} else {
			b.OnActuatorChanged(mirror.Observer())
			steps = append(steps, shutdown.Step{Name: "mqtt", Fn: func() error { dispose(); return nil }})
		}
	}

	if err := b.Start(); err != nil {
		shutdown.ShutdownWithError(err, "Failed to bind receive port", steps...)
		return
	}
	// the bridge must stop before anything it writes to is closed
	steps = append([]shutdown.Step{{Name: "bridge", Fn: b.Stop}}, steps...)

	if cfg.APIPort != 0 {
		var events api.EventSource
		if journal != nil {
			events = journal
		}
		server := api.NewServer(b, events)
		server.Start(cfg.APIPort)
		steps = append([]shutdown.Step{{Name: "api", Fn: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(ctx)
		}}}, steps...)
	}

	steps = append(steps, shutdown.Step{Name: "log", Fn: logFile.Close})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info().Str("signal", received.String()).Msg("Shutting down")

	shutdown.Shutdown(steps...)
}
