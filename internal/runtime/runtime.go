package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/capture"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/eventstore"
	"github.com/loqalabs/loqa-listen/internal/natsserver"
	"github.com/loqalabs/loqa-listen/internal/pipeline"
	"github.com/loqalabs/loqa-listen/internal/protocol"
	"github.com/loqalabs/loqa-listen/internal/stt"
	"github.com/nats-io/nats.go"
)

// Runtime wires the listening pipeline to its supporting services: the
// message bus, the transcript store, telemetry, and the HTTP surface. Bus
// and store failures degrade to a log-only session; capture and engine
// failures are fatal.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	embedded  *natsserver.EmbeddedServer
	busClient *bus.Client
	store     *eventstore.Store
	listener  *pipeline.Listener
	sessionID string
	device    capture.Device
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the runtime up and blocks until the session stops (keyword,
// bus control message, or signal) or ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	r.startBus()
	r.openStore(ctx)

	device, source, err := r.buildSource()
	if err != nil {
		return err
	}
	r.device = device

	engine, err := stt.New(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("failed to initialize transcription engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			r.logger.Warn("engine close error", slog.String("error", err.Error()))
		}
	}()

	listener, err := pipeline.NewListener(r.cfg.Listen, source, engine, r.logger)
	if err != nil {
		return err
	}
	r.listener = listener
	r.sessionID = fmt.Sprintf("session-%d", time.Now().Unix())

	r.registerSinks(ctx)
	r.subscribeControl()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/transcript", r.handleTranscript)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if err := listener.Start(ctx); err != nil {
		r.shutdownServices(context.Background())
		return err
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("session", r.sessionID),
		slog.String("device", device.Name))

	runDone := make(chan error, 1)
	go func() {
		runDone <- listener.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-runDone:
		if err != nil && err != context.Canceled {
			r.logger.Error("listen loop failed", slog.String("error", err.Error()))
		}
	}

	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	listener.Stop()
	r.publishSummary()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.shutdownServices(shutdownCtx)
	return nil
}

// startBus brings up the optional embedded NATS server and connects the
// client. Bus failures are not fatal; the session continues without
// publishing.
func (r *Runtime) startBus() {
	if !r.cfg.Bus.Enabled {
		return
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		r.logger.Warn("embedded NATS server failed, continuing without bus",
			slog.String("error", err.Error()))
		return
	}
	r.embedded = embedded

	client, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		r.logger.Warn("bus connection failed, continuing without bus",
			slog.String("error", err.Error()))
		return
	}
	r.busClient = client
}

// openStore opens the transcript archive. Store failures are not fatal.
func (r *Runtime) openStore(ctx context.Context) {
	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		r.logger.Warn("transcript store unavailable, continuing without persistence",
			slog.String("error", err.Error()))
		return
	}
	r.store = store
}

// buildSource resolves the capture device and constructs the audio source.
// No input device is a fatal condition.
func (r *Runtime) buildSource() (capture.Device, capture.Source, error) {
	switch r.cfg.Capture.Mode {
	case "mock":
		device := capture.Device{ID: 0, Name: "mock", Default: true, InputChannels: 1}
		return device, &capture.MockSource{}, nil
	default:
		device, err := capture.SelectDevice(capture.ALSAEnumerator{}, r.cfg.Capture.Device, r.logger)
		if err != nil {
			return capture.Device{}, nil, err
		}
		source, err := capture.NewExecSource(r.cfg.Capture, device, r.logger)
		if err != nil {
			return capture.Device{}, nil, err
		}
		return device, source, nil
	}
}

// registerSinks attaches the store writer and the bus publisher to the
// transcript stream, and routes polled text to stdout.
func (r *Runtime) registerSinks(ctx context.Context) {
	if r.store != nil {
		if err := r.store.BeginSession(ctx, r.sessionID, r.device.Name); err != nil {
			r.logger.Warn("begin session failed", slog.String("error", err.Error()))
		}
		r.listener.OnEntry(func(entry pipeline.Entry) {
			err := r.store.AppendEntry(ctx, eventstore.Entry{
				SessionID:   r.sessionID,
				StartOffset: entry.Start,
				EndOffset:   entry.End,
				Text:        entry.Text,
			})
			if err != nil {
				r.logger.Warn("persist transcript entry failed", slog.String("error", err.Error()))
			}
		})
	}

	if r.busClient != nil {
		r.listener.OnEntry(func(entry pipeline.Entry) {
			evt := protocol.TranscriptEvent{
				Runtime:   r.cfg.RuntimeName,
				SessionID: r.sessionID,
				Start:     entry.Start,
				End:       entry.End,
				Text:      entry.Text,
				Timestamp: time.Now().UTC(),
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				r.logger.Warn("marshal transcript event failed", slog.String("error", err.Error()))
				return
			}
			if err := r.busClient.Conn().Publish(protocol.SubjectTranscriptEntry, payload); err != nil {
				r.logger.Warn("publish transcript event failed", slog.String("error", err.Error()))
			}
		})
	}

	r.listener.OnText(func(text string) {
		fmt.Printf("You said: %s\n", text)
	})
}

// subscribeControl lets other runtimes stop the session over the bus.
func (r *Runtime) subscribeControl() {
	if r.busClient == nil {
		return
	}
	_, err := r.busClient.Conn().Subscribe(protocol.SubjectControlStop, func(_ *nats.Msg) {
		r.logger.Info("stop requested over bus")
		r.listener.Stop()
	})
	if err != nil {
		r.logger.Warn("control subscription failed", slog.String("error", err.Error()))
	}
}

// publishSummary broadcasts the full session transcript once, after stop.
func (r *Runtime) publishSummary() {
	if r.busClient == nil || r.listener == nil {
		return
	}
	snapshot := r.listener.Snapshot()
	texts := make([]string, 0, len(snapshot))
	for _, e := range snapshot {
		texts = append(texts, e.Text)
	}
	summary := protocol.SessionSummary{
		Runtime:   r.cfg.RuntimeName,
		SessionID: r.sessionID,
		Device:    r.device.Name,
		Texts:     texts,
		StoppedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		r.logger.Warn("marshal session summary failed", slog.String("error", err.Error()))
		return
	}
	if err := r.busClient.Conn().Publish(protocol.SubjectTranscriptSession, payload); err != nil {
		r.logger.Warn("publish session summary failed", slog.String("error", err.Error()))
	}
}

func (r *Runtime) shutdownServices(ctx context.Context) {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("transcript store close error", slog.String("error", err.Error()))
		}
	}
	if r.busClient != nil {
		r.busClient.Close()
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(ctx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// handleTranscript serves the transcript accumulated so far as JSON.
func (r *Runtime) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	if r.listener == nil {
		http.Error(w, "no active session", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		SessionID string           `json:"session_id"`
		Listening bool             `json:"listening"`
		Entries   []pipeline.Entry `json:"entries"`
	}{
		SessionID: r.sessionID,
		Listening: r.listener.Listening(),
		Entries:   r.listener.Snapshot(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		r.logger.Warn("encode transcript response failed", slog.String("error", err.Error()))
	}
}
