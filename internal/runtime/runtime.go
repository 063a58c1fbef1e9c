package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/voicepay/internal/bus"
	"github.com/loqalabs/voicepay/internal/capability"
	"github.com/loqalabs/voicepay/internal/config"
	"github.com/loqalabs/voicepay/internal/contacts"
	"github.com/loqalabs/voicepay/internal/dialogue"
	"github.com/loqalabs/voicepay/internal/eventstore"
	"github.com/loqalabs/voicepay/internal/natsserver"
	"github.com/loqalabs/voicepay/internal/session"
	"github.com/loqalabs/voicepay/internal/speech"
	"github.com/loqalabs/voicepay/internal/stt"
	"github.com/loqalabs/voicepay/internal/surface"
	"github.com/loqalabs/voicepay/internal/tts"
)

// discoveryWait bounds how long startup waits for a remote speech engine to
// announce itself before the capability is declared unavailable.
const discoveryWait = 3 * time.Second

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	metricsSrv  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	addr        atomic.Pointer[string]
	wg          sync.WaitGroup

	nats     *natsserver.EmbeddedServer
	bus      *bus.Client
	store    *eventstore.Store
	registry *capability.Registry
	stt      *stt.Service
	tts      *tts.Service
	session  *session.Session
	hub      *surface.Hub
	closers  []func()
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Addr is the HTTP listen address once the runtime is serving, else "".
func (r *Runtime) Addr() string {
	if p := r.addr.Load(); p != nil {
		return *p
	}
	return ""
}

// Start wires every component, serves HTTP and blocks until ctx is done.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer r.teardown(cancel)

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.startBus(ctx); err != nil {
		return err
	}

	r.store, err = eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.closers = append(r.closers, func() { _ = r.store.Close() })

	if err := r.startSpeechServices(ctx); err != nil {
		return err
	}

	if err := r.startSession(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/state", r.handleState)
	if r.hub != nil {
		mux.Handle("/ws", r.hub)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
		r.startMetricsServer(metricsHandler)
	}
	bound := listener.Addr().String()
	r.addr.Store(&bound)
	r.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", bound), slog.String("session_id", r.session.ID()))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if r.hub != nil {
		r.hub.Close()
	}
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		srv, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return err
		}
		r.nats = srv
		busCfg.Servers = []string{srv.ClientURL()}
	}
	client, err := bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger)
	if err != nil {
		return err
	}
	r.bus = client

	nodeCfg := r.cfg.Node
	nodeCfg.Capabilities = append([]config.NodeCapability(nil), nodeCfg.Capabilities...)
	if r.cfg.STT.Enabled {
		nodeCfg.Capabilities = append(nodeCfg.Capabilities, config.NodeCapability{
			Name:       capability.SpeechRecognition,
			Attributes: map[string]string{"mode": r.cfg.STT.Mode, "language": r.cfg.STT.Language},
		})
	}
	if r.cfg.TTS.Enabled {
		nodeCfg.Capabilities = append(nodeCfg.Capabilities, config.NodeCapability{
			Name:       capability.SpeechSynthesis,
			Attributes: map[string]string{"mode": r.cfg.TTS.Mode, "voice": r.cfg.TTS.Voice},
		})
	}
	r.registry, err = capability.NewRegistry(ctx, nodeCfg, client, r.logger)
	if err != nil {
		return fmt.Errorf("start capability registry: %w", err)
	}
	return nil
}

func (r *Runtime) startSpeechServices(ctx context.Context) error {
	if r.cfg.STT.Enabled {
		recognizer, err := stt.NewRecognizer(r.cfg.STT)
		if err != nil {
			return fmt.Errorf("create recognizer: %w", err)
		}
		r.stt = stt.NewService(ctx, r.cfg.STT, r.bus, recognizer, r.logger)
		if err := r.stt.Start(); err != nil {
			return fmt.Errorf("start stt service: %w", err)
		}
	}
	if r.cfg.TTS.Enabled {
		synth, err := tts.NewSynthesizer(r.cfg.TTS)
		if err != nil {
			return fmt.Errorf("create synthesizer: %w", err)
		}
		r.tts = tts.NewService(ctx, r.cfg.TTS, r.bus, synth, r.logger)
		if err := r.tts.Start(); err != nil {
			return fmt.Errorf("start tts service: %w", err)
		}
	}
	return nil
}

// engineAvailable reports whether some node serves name, waiting briefly for
// remote nodes when this one does not.
func (r *Runtime) engineAvailable(ctx context.Context, name string) bool {
	if r.registry.HasCapability(name) {
		return true
	}
	waitCtx, cancel := context.WithTimeout(ctx, discoveryWait)
	defer cancel()
	return r.registry.WaitFor(waitCtx, name, 100*time.Millisecond)
}

func (r *Runtime) startSession(ctx context.Context) error {
	directory := contacts.Default()
	if path := r.cfg.Contacts.Path; path != "" {
		loaded, err := contacts.Load(path)
		if err != nil {
			return fmt.Errorf("load contacts: %w", err)
		}
		directory = loaded
	}

	sessionID := uuid.NewString()

	var recognizer speech.RecognitionEngine
	if r.engineAvailable(ctx, capability.SpeechRecognition) {
		client, err := stt.NewClient(r.bus, stt.ClientOptions{
			SessionID: sessionID,
			Language:  r.cfg.STT.Language,
			Interim:   r.cfg.STT.PublishInterim,
		}, r.logger)
		if err != nil {
			return fmt.Errorf("create recognition client: %w", err)
		}
		r.closers = append(r.closers, client.Close)
		recognizer = client
	}

	var synthesizer speech.SynthesisEngine
	if r.engineAvailable(ctx, capability.SpeechSynthesis) {
		client, err := tts.NewClient(r.bus, sessionID, r.cfg.TTS.Target, r.logger)
		if err != nil {
			return fmt.Errorf("create synthesis client: %w", err)
		}
		r.closers = append(r.closers, client.Close)
		synthesizer = client
	} else {
		r.logger.Warn("speech synthesis unavailable, prompts will be silent")
		synthesizer = tts.NewSilent()
	}

	sess, err := session.New(session.Config{
		ID:          sessionID,
		NodeID:      r.cfg.Node.ID,
		Recognizer:  recognizer,
		Synthesizer: synthesizer,
		Contacts:    directory,
		Timing: dialogue.Timing{
			ProcessingDelay: r.cfg.Dialogue.ProcessingDelay(),
			ReturnDelay:     r.cfg.Dialogue.ReturnDelay(),
		},
		Turn: r.cfg.Turn,
		Voice: speech.Voice{
			Lang:   r.cfg.TTS.Voice,
			Rate:   r.cfg.TTS.Rate,
			Pitch:  r.cfg.TTS.Pitch,
			Volume: r.cfg.TTS.Volume,
		},
		Journal: r.store,
		Logger:  r.logger,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	r.session = sess

	if r.cfg.Surface.WebSocket {
		r.hub = surface.NewHub(r.cfg.Surface.AllowOrigins, sess.HandleUIEvent, r.logger)
		sess.AddSink(r.hub.Broadcast)
	}
	if r.cfg.Surface.Bridge {
		bridge, err := surface.NewBridge(r.bus, sessionID, sess.HandleUIEvent, r.logger)
		if err != nil {
			return fmt.Errorf("start surface bridge: %w", err)
		}
		r.closers = append(r.closers, bridge.Close)
		sess.AddSink(bridge.Publish)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := sess.Run(ctx); err != nil {
			r.logger.Error("session exited", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (r *Runtime) startMetricsServer(handler http.Handler) {
	bind := r.cfg.Telemetry.PrometheusBind
	if bind == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	r.metricsSrv = &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Warn("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

// teardown stops the session loop, then releases components in reverse start
// order.
func (r *Runtime) teardown(cancel context.CancelFunc) {
	cancel()
	r.wg.Wait()
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	if r.tts != nil {
		r.tts.Close()
	}
	if r.stt != nil {
		r.stt.Close()
	}
	if r.registry != nil {
		r.registry.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	r.nats.Shutdown()
}

func (r *Runtime) healthy(ctx context.Context) bool {
	if r.bus == nil || !r.bus.Healthy() {
		return false
	}
	if r.registry == nil || !r.registry.Healthy() {
		return false
	}
	if r.stt != nil && !r.stt.Healthy() {
		return false
	}
	if r.tts != nil && !r.tts.Healthy() {
		return false
	}
	return r.store != nil && r.store.Healthy(ctx)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.ready.Load() && r.healthy(req.Context()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleState(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.session == nil {
		http.Error(w, "session not started", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.session.Snapshot()); err != nil {
		r.logger.Warn("failed to write state", slog.String("error", err.Error()))
	}
}
