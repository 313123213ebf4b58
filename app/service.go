// Package app wires the inverter poller, the window ledger, the planner and
// the publishing sinks into the long-running control loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/sunledger/api"
	"github.com/kilianp07/sunledger/config"
	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/forecast"
	"github.com/kilianp07/sunledger/core/ledger"
	coremetrics "github.com/kilianp07/sunledger/core/metrics"
	"github.com/kilianp07/sunledger/core/monitoring"
	"github.com/kilianp07/sunledger/core/odometer"
	"github.com/kilianp07/sunledger/infra/inverter"
	"github.com/kilianp07/sunledger/infra/logger"
	"github.com/kilianp07/sunledger/infra/metrics"
	"github.com/kilianp07/sunledger/infra/mqtt"
	_ "github.com/kilianp07/sunledger/infra/store"
	"github.com/kilianp07/sunledger/internal/eventbus"
)

// Poller yields register snapshots from the inverter.
type Poller interface {
	Poll(ctx context.Context) (odometer.Snapshot, error)
	Close() error
}

// Options overrides the collaborators New would otherwise build from the
// configuration. Zero fields are built as usual.
type Options struct {
	Poller Poller
	Store  ledger.Store
	Sink   coremetrics.MetricsSink
	Prices forecast.PriceSource
	Now    func() time.Time
}

// Service runs the control loop.
type Service struct {
	cfg     *config.Config
	poller  Poller
	store   ledger.Store
	ledger  *ledger.Ledger
	tracker odometer.Tracker
	sim     *battery.Simulator
	prices  forecast.PriceSource
	bus     *eventbus.Bus[coremetrics.Event]
	sink    coremetrics.MetricsSink
	status  *api.StatusStore
	mqtt    *mqtt.PahoClient
	log     logger.Logger
	now     func() time.Time

	lastPoll time.Time
	lastPct  *float64
	planned  string
	current  *activePlan
	wg       sync.WaitGroup
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Service, using the collaborators in opts where set.
func NewWithOptions(cfg *config.Config, opts Options) (*Service, error) {
	log := logger.New("service")
	s := &Service{cfg: cfg, log: log, status: api.NewStatusStore(), now: opts.Now}
	if s.now == nil {
		s.now = time.Now
	}

	sim, err := cfg.Battery.Simulator()
	if err != nil {
		return nil, fmt.Errorf("battery: %w", err)
	}
	s.sim = sim

	s.store = opts.Store
	if s.store == nil {
		if s.store, err = ledger.NewStore(cfg.Ledger.Store); err != nil {
			return nil, fmt.Errorf("ledger store: %w", err)
		}
	}
	lcfg, err := cfg.Ledger.Build(cfg.Tariff)
	if err != nil {
		return nil, fmt.Errorf("ledger config: %w", err)
	}
	if s.ledger, err = ledger.New(lcfg, s.store, logger.New("ledger")); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	s.prices = opts.Prices
	if s.prices == nil {
		if s.prices, err = forecast.NewPriceSource(cfg.Planner.PriceFile, cfg.Planner.FlatPrice); err != nil {
			log.Warnf("planning disabled: %v", err)
		}
	}

	sinks := []coremetrics.MetricsSink{}
	if opts.Sink != nil {
		sinks = append(sinks, opts.Sink)
	} else {
		sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
		if err != nil {
			return nil, fmt.Errorf("metrics sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.MQTT.Enabled {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		s.mqtt = client
		sinks = append(sinks, mqtt.NewPublisher(client, cfg.MQTT.TopicPrefix))
	}
	if len(sinks) == 1 {
		s.sink = sinks[0]
	} else {
		s.sink = coremetrics.NewMultiSink(sinks...)
	}
	s.bus = eventbus.New[coremetrics.Event](eventbus.DefaultBuffer)

	s.poller = opts.Poller
	if s.poller == nil {
		p, err := inverter.NewPoller(cfg.Inverter)
		if err != nil {
			return nil, fmt.Errorf("inverter: %w", err)
		}
		s.poller = p
	}
	return s, nil
}

// Status exposes the live status store.
func (s *Service) Status() *api.StatusStore { return s.status }

// Run starts the servers and the control loop and blocks until the context
// is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ledger.Restore(ctx, s.now()); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	s.publishDays()

	collected := metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("collector"))
	if s.mqtt != nil && s.cfg.MQTT.Discovery {
		if err := mqtt.PublishDiscovery(s.mqtt, s.cfg.MQTT.DiscoveryPrefix, s.cfg.MQTT.TopicPrefix, ""); err != nil {
			s.log.Warnf("home assistant discovery: %v", err)
		}
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		s.goServe("prom server", func() error { return metrics.StartPromServer(ctx, addr) })
	}
	if s.cfg.API.Enabled {
		h := api.NewHandler(s.status, s.store, s.cfg.API.AllowedOrigins)
		s.goServe("api server", func() error { return api.Serve(ctx, s.cfg.API.Address, h) })
	}

	ticker := time.NewTicker(s.cfg.Loop.SleepQuantum())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.bus.Close()
			<-collected
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

func (s *Service) goServe(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer monitoring.Recover()
		if err := fn(); err != nil {
			s.log.Errorf("%s: %v", name, err)
			monitoring.CaptureError(name, err)
		}
	}()
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.poller != nil {
		errs = append(errs, s.poller.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	return errors.Join(errs...)
}
