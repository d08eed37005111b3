package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"edgeagent/internal/config"
	"edgeagent/internal/logger"
	"edgeagent/internal/metrics"
	"edgeagent/internal/repository/sqlite"
	"edgeagent/internal/route"
	"edgeagent/internal/service/aggregate"
	"edgeagent/internal/service/ai"
	"edgeagent/internal/service/camera"
	"edgeagent/internal/service/capture"
	"edgeagent/internal/service/delivery"
	"edgeagent/internal/service/detection"
	"edgeagent/internal/service/dispatch"
	"edgeagent/internal/service/message"
	"edgeagent/internal/service/storage"
	"edgeagent/internal/service/transport"
	"edgeagent/internal/service/transport/mqtt"
	"edgeagent/internal/service/transport/ws"
)

const (
	expirySweepInterval = time.Second
	udpFrameQueue       = 4
	shutdownTimeout     = 5 * time.Second
)

type frameSource interface {
	dispatch.FrameSource
	io.Closer
}

type App struct {
	config     *config.Config
	logger     *logger.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	db         *sqlite.DB
	journal    *storage.Journal
	tracker    *delivery.Tracker
	hub        *ws.Hub
	client     transport.Client
	detector   *ai.DetectorService
	source     frameSource
	dispatcher *dispatch.Dispatcher
	server     *http.Server
	started    time.Time
}

// NewApp builds every component. Anything opened before a failure is released.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		config:   cfg,
		logger:   log,
		registry: registry,
		metrics:  metrics.New(registry),
		started:  time.Now(),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	categories, err := cfg.CategoryMap()
	if err != nil {
		return nil, err
	}
	agg, err := aggregate.New(aggregate.Config{
		Policy:             aggregate.Policy(cfg.ReportingPolicy),
		Categories:         categories,
		WindowDuration:     cfg.WindowDuration,
		MaxRecordsPerFrame: cfg.MaxRecordsPerFrame,
	}, time.Time{})
	if err != nil {
		return nil, err
	}

	var recorder delivery.Recorder
	var journalRepo *sqlite.DeliveryRepository
	if cfg.JournalPath != "" {
		if a.db, err = sqlite.New(cfg.JournalPath); err != nil {
			return nil, err
		}
		journalRepo = sqlite.NewDeliveryRepository(a.db)
		a.journal = storage.NewJournal(journalRepo, cfg.JournalFlushInterval, cfg.JournalBufferLimit, log, a.metrics)
		recorder = a.journal
	}
	a.tracker = delivery.NewTracker(log, a.metrics, recorder, cfg.PendingTTL)

	switch cfg.Transport {
	case config.TransportWebsocket:
		a.hub = ws.NewHub(cfg.SendQueueSize, log, a.metrics)
		a.client = a.hub
	default:
		client, err := mqtt.Dial(ctx, cfg, log, a.metrics)
		if err != nil {
			return nil, err
		}
		a.client = client
	}

	if a.detector, err = ai.NewDetectorService(cfg, log); err != nil {
		return nil, err
	}
	if a.source, err = openSource(cfg, log); err != nil {
		return nil, fmt.Errorf("failed to open capture source: %w", err)
	}

	a.dispatcher = dispatch.New(dispatch.Deps{
		Source:     a.source,
		Detector:   a.detector,
		Filter:     detection.NewFilter(cfg.ConfidenceThreshold, categories),
		Aggregator: agg,
		Builder:    message.NewBuilder(cfg.DeviceID, cfg.AlertProperty, cfg.AlertThreshold),
		Tracker:    a.tracker,
		Client:     a.client,
		OnConfirm:  a.tracker.Confirm,
		Logger:     log,
		Metrics:    a.metrics,
	}, cfg.OutputChannel)

	routes := route.Deps{
		Config:   cfg,
		Logger:   log,
		Status:   a.tracker,
		Hub:      a.hub,
		Gatherer: registry,
		Started:  a.started,
	}
	if journalRepo != nil {
		routes.Journal = journalRepo
	}
	if cfg.HTTPPort > 0 {
		a.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
			Handler:           route.SetupRoutes(routes),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

func openSource(cfg *config.Config, log *logger.Logger) (frameSource, error) {
	if cfg.CaptureSource == config.CaptureUDP {
		src, err := capture.ListenPort(cfg.CamerasPort, cfg.CameraNames, udpFrameQueue, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	cam, err := camera.Open(cfg.CaptureSource)
	if err != nil {
		return nil, err
	}
	return cam, nil
}

// Run starts the background services and the frame loop, and shuts everything
// down when the loop ends. It returns the loop's error.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	if a.journal != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.journal.Run(bgCtx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.tracker.Run(bgCtx, expirySweepInterval)
	}()

	if a.server != nil {
		go func() {
			a.logger.Info("Status server listening on %s", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Status server failed: %v", err)
			}
		}()
	}

	a.logger.Info("Edge agent %s/%s started: policy=%s transport=%s source=%s",
		a.config.DeviceID, a.config.ModuleID, a.config.ReportingPolicy, a.config.Transport, a.config.CaptureSource)

	err := a.dispatcher.Run(ctx)

	a.logger.Info("Stopping edge agent")
	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if serr := a.server.Shutdown(shutdownCtx); serr != nil {
			a.logger.Warning("Status server shutdown: %v", serr)
		}
		cancel()
	}
	// Queued sends settle as BECAUSE_DESTROY before the journal's last flush.
	a.client.Close()
	stopBackground()
	wg.Wait()
	a.close()

	c := a.tracker.Counters()
	a.logger.Info("Edge agent stopped: sent=%d confirmed=%d pending=%d", c.Sent, c.Confirmed, len(a.tracker.Pending()))
	return err
}

// close releases resources; it is safe on a partially built App.
func (a *App) close() {
	if a.source != nil {
		a.source.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.detector != nil {
		a.detector.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
