package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/consus-energy/edge-controller/batteryunit"
	"github.com/consus-energy/edge-controller/bootstrap"
	"github.com/consus-energy/edge-controller/config"
	"github.com/consus-energy/edge-controller/configbus"
	"github.com/consus-energy/edge-controller/controller"
	"github.com/consus-energy/edge-controller/edgestate"
	"github.com/consus-energy/edge-controller/ems"
	"github.com/consus-energy/edge-controller/fieldbus"
	"github.com/consus-energy/edge-controller/health"
	"github.com/consus-energy/edge-controller/poster"
	"github.com/consus-energy/edge-controller/registermap"
	"github.com/consus-energy/edge-controller/safety"
	"github.com/consus-energy/edge-controller/writeguard"
)

// shutdownGrace is how long the process gives in-flight ticks/flushes to finish after a shutdown signal
// before exiting anyway.
const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(config.ExitConfigInvalid)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.Exit(run(ctx, cancel, cfg, logger))
}

func run(ctx context.Context, cancel context.CancelFunc, cfg config.Config, log *slog.Logger) int {
	bootstrapClient := bootstrap.NewClient(cfg.BootstrapURL)

	regCache, err := registermap.NewCache(cfg.RegisterCachePath)
	if err != nil {
		log.Warn("register map cache unavailable, continuing without warm-start fallback", "error", err)
	}

	initResp, err := bootstrapClient.Init(ctx)
	if err != nil {
		log.Error("bootstrap init failed", "error", err)
		return config.ExitBootstrapFailure
	}

	regs, err := registermap.Parse(initResp.RegisterMap)
	if err != nil {
		log.Error("register map from bootstrap is invalid, falling back to cache", "error", err)
		regs, err = loadCachedRegisterMap(regCache, log)
		if err != nil {
			return config.ExitFieldBusMisconfig
		}
	} else if regCache != nil {
		if err := regCache.Replace(regs.All()); err != nil {
			log.Warn("failed to warm the register map cache", "error", err)
		}
	}

	store := edgestate.NewStore(log)
	initialDoc := map[string]interface{}{
		"settings":        initResp.Settings,
		"battery_configs": initResp.BatteryConfigs,
		"tasks":           initResp.Tasks,
	}
	if err := store.Apply(initialDoc); err != nil {
		log.Error("bootstrap-supplied edge state is invalid", "error", err)
		return config.ExitConfigInvalid
	}

	settings := store.Settings()
	backendClient := poster.NewHTTPBackendClient(settings.Endpoints.IngestURL, settings.Endpoints.HealthURL)
	post := poster.New(backendClient, poster.Config{}, log)
	go post.Run(ctx)

	subscriber := configbus.NewSubscriber(&http.Client{Timeout: 10 * time.Second}, cfg.BootstrapURL, cfg.GroupID, log)
	go subscriber.Run(ctx, cfg.ConfigBusInterval, func(doc map[string]interface{}) {
		if err := store.Apply(doc); err != nil {
			log.Error("config bus update rejected", "error", err)
		}
	})

	batteryConfigs := store.BatteryConfigs()
	if len(batteryConfigs) == 0 {
		log.Error("bootstrap returned no battery configs")
		return config.ExitConfigInvalid
	}

	siteID := cfg.GroupID
	batteries := make([]*controller.Battery, 0, len(batteryConfigs))
	for consusID, bc := range batteryConfigs {
		guard := writeguard.New(writeguard.Config{
			PerRegisterMinInterval: durationFromSeconds(settings.WriteGuard.PerRegMinS),
			GlobalWritesPerSecond:  settings.WriteGuard.GlobalWritesPerS,
		})

		host := fmt.Sprintf("%s:%d", bc.Host, bc.Port)
		driver := fieldbus.NewDriver(host, bc.UnitID, transportKind(bc.TransportKind), regs, guard, log)

		unit := batteryunit.New(consusID, driver, bc.PvEnabled, log)
		emsManager := ems.NewManager(consusID, driver, time.Local, log)
		intent := safety.NewCell()
		monitor := health.NewMonitor(consusID, siteID, driver, intent, 2, log)

		batteries = append(batteries, controller.NewBattery(consusID, siteID, driver, unit, emsManager, monitor, guard, intent, store, post, log))
	}

	for _, b := range batteries {
		go func(b *controller.Battery) {
			if err := b.Run(ctx, cfg.TickPeriod); err != nil && ctx.Err() == nil {
				log.Error("battery control loop exited unexpectedly", "consus_id", b.ConsusID, "error", err)
			}
		}(b)
	}

	waitForShutdownSignal(ctx, cancel, log)
	return config.ExitOK
}

func waitForShutdownSignal(ctx context.Context, cancel context.CancelFunc, log *slog.Logger) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	select {
	case <-signalChan:
		log.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	time.Sleep(shutdownGrace)
	log.Info("exiting")
}

func durationFromSeconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// transportKind maps a BatteryConfig's transport_kind string onto a fieldbus.TransportKind, defaulting to
// the grid-x client when unset.
func transportKind(s string) fieldbus.TransportKind {
	if s == string(fieldbus.TransportSimonvetter) {
		return fieldbus.TransportSimonvetter
	}
	return fieldbus.TransportGridx
}

// loadCachedRegisterMap falls back to the Register Map Cache's last known-good descriptor set when
// bootstrap supplies a register map that fails to parse. It never runs when bootstrap itself is
// unreachable, since in that case Settings and BatteryConfigs are equally unavailable and a register map
// alone isn't enough to bring the process up.
func loadCachedRegisterMap(cache *registermap.Cache, log *slog.Logger) (*registermap.Map, error) {
	if cache == nil {
		return nil, fmt.Errorf("no register map cache available")
	}
	descriptors, err := cache.Load()
	if err != nil {
		log.Error("register map cache read failed", "error", err)
		return nil, err
	}
	if len(descriptors) == 0 {
		err := fmt.Errorf("register map cache is empty")
		log.Error("no cached register map available for warm start", "error", err)
		return nil, err
	}
	log.Warn("using cached register map as fallback", "registers", len(descriptors))
	return registermap.New(descriptors)
}
