package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/graciadivina/tiendita/internal/remote"
	"github.com/graciadivina/tiendita/internal/schema"
	"github.com/graciadivina/tiendita/internal/store"
)

// State names the engine's session lifecycle phase.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateInitializing    State = "initializing"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Status is the passive connectivity surface shown to the user: a dot
// and a short message, never a blocking error.
type Status struct {
	State     State
	Connected bool
	Message   string
}

// Config holds configuration for the engine.
type Config struct {
	// SweepInterval is how often the periodic full upload sweep runs
	// while authenticated.
	SweepInterval time.Duration

	// NotifyDebounce is how long to coalesce per-collection change
	// notifications before delivering one, so a burst of merged
	// records triggers one refresh instead of one per record.
	NotifyDebounce time.Duration

	// OnCollectionChanged, if set, is invoked (debounced) with the
	// local collection name after inbound merges touch it.
	OnCollectionChanged func(collection string)

	// OnStatusChanged, if set, observes session/connectivity
	// transitions for the status indicator.
	OnStatusChanged func(Status)

	// Resolvers are the per-collection identity heuristics.
	// Zero-value fields fall back to DefaultResolvers.
	Resolvers Resolvers

	// Logger for engine activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SweepInterval:  10 * time.Second,
		NotifyDebounce: time.Second,
		Resolvers:      DefaultResolvers(),
		Logger:         log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Engine reconciles the local record store with the remote tree. It
// owns its session, subscriptions and pending-write list; construct
// one per process and inject the store and remote clients.
type Engine struct {
	store    *store.Store
	remote   remote.Store
	auth     remote.Identity
	cfg      *Config
	logger   *log.Logger
	resolver Resolvers

	mu        sync.Mutex
	state     State
	session   *remote.Session
	connected bool

	inflight *keyMutex
	pending  *pendingWrites
	notifier *notifier

	// lastSeen tracks which remote keys the previous snapshot of each
	// collection contained, so vanished keys become delete events.
	lastSeenMu sync.Mutex
	lastSeen   map[string]map[string]struct{}

	subsCancel []func()
	authCancel func()
	connCancel func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Engine. The store must be open with schema
// initialized. If cfg is nil, DefaultConfig is used; if cfg.Logger is
// nil, a default stderr logger is used.
func New(st *store.Store, rs remote.Store, id remote.Identity, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Second
	}
	if cfg.NotifyDebounce <= 0 {
		cfg.NotifyDebounce = time.Second
	}

	resolver := cfg.Resolvers
	defaults := DefaultResolvers()
	if resolver.Product == nil {
		resolver.Product = defaults.Product
	}
	if resolver.Sale == nil {
		resolver.Sale = defaults.Sale
	}
	if resolver.Layaway == nil {
		resolver.Layaway = defaults.Layaway
	}
	if resolver.Owner == nil {
		resolver.Owner = defaults.Owner
	}

	e := &Engine{
		store:    st,
		remote:   rs,
		auth:     id,
		cfg:      cfg,
		logger:   cfg.Logger,
		resolver: resolver,
		state:    StateUninitialized,
		inflight: newKeyMutex(),
		pending:  newPendingWrites(),
		lastSeen: make(map[string]map[string]struct{}),
	}
	e.notifier = newNotifier(cfg.NotifyDebounce, func(collection string) {
		if cfg.OnCollectionChanged != nil {
			cfg.OnCollectionChanged(collection)
		}
	})
	return e
}

// Start initializes the session and begins live synchronization:
// anonymous sign-in, auth-state and connectivity watching, collection
// subscriptions and the periodic sweep.
//
// A sign-in failure is returned but leaves the engine usable: the
// local store remains the durable copy and the caller may retry.
// Start blocks only for the initial sign-in; everything else runs in
// background goroutines until Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.ctx != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.state = StateInitializing
	e.mu.Unlock()
	e.publishStatus("Conectando...")

	e.authCancel = e.auth.OnAuthStateChanged(e.handleAuthState)
	e.connCancel = e.remote.Connectivity(e.handleConnectivity)

	e.wg.Add(1)
	go e.sweepLoop()

	session, err := e.auth.SignInAnonymously(ctx)
	if err != nil {
		e.mu.Lock()
		e.state = StateUnauthenticated
		e.mu.Unlock()
		e.publishStatus("Error de autenticación")

		// Keep retrying in the background; local writes stay durable
		// meanwhile and the auth watcher picks up the session.
		e.wg.Add(1)
		go e.retrySignIn()

		return fmt.Errorf("anonymous sign-in failed: %w", err)
	}
	e.logger.Printf("Signed in anonymously: uid=%s", session.UID)
	return nil
}

// retrySignIn redials the identity provider until a session exists or
// the engine stops.
func (e *Engine) retrySignIn() {
	defer e.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if e.IsAuthenticated() {
				return
			}
			if _, err := e.auth.SignInAnonymously(e.ctx); err == nil {
				return
			}
		}
	}
}

// Stop shuts the engine down: subscriptions, watchers, scheduler and
// pending notifications.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	e.teardownSubscriptions()
	if e.authCancel != nil {
		e.authCancel()
	}
	if e.connCancel != nil {
		e.connCancel()
	}
	e.wg.Wait()
	e.notifier.Stop()
	e.logger.Printf("Engine stopped")
}

// IsAuthenticated reports whether an active session exists.
func (e *Engine) IsAuthenticated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateAuthenticated && e.session != nil
}

// UID returns the active session uid, or "" when unauthenticated.
func (e *Engine) UID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.UID
}

// handleAuthState reacts to session transitions from the identity
// provider.
func (e *Engine) handleAuthState(s *remote.Session) {
	if s != nil {
		e.mu.Lock()
		e.session = s
		e.state = StateAuthenticated
		hasSubs := len(e.subsCancel) > 0
		e.mu.Unlock()

		e.logger.Printf("Authenticated: uid=%s", s.UID)
		e.publishStatus("Conectado a la nube")
		if !hasSubs {
			e.setupSubscriptions()
		}
		return
	}

	e.mu.Lock()
	if e.state == StateInitializing {
		// Initial watcher delivery before the first sign-in lands.
		e.mu.Unlock()
		return
	}
	e.session = nil
	e.state = StateUnauthenticated
	ctx := e.ctx
	e.mu.Unlock()

	e.logger.Printf("Session ended, re-authenticating")
	e.publishStatus("Sin sesión")
	e.teardownSubscriptions()

	if ctx == nil {
		return
	}
	// Re-auth in the background; the auth watcher picks up the result.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.auth.SignInAnonymously(ctx); err != nil {
			e.logger.Printf("WARNING: re-authentication failed: %v", err)
		}
	}()
}

// handleConnectivity reacts to transport-level connected/disconnected
// transitions. Entering connected while authenticated triggers a full
// upload sweep to push anything created or edited offline.
func (e *Engine) handleConnectivity(connected bool) {
	e.mu.Lock()
	e.connected = connected
	authed := e.state == StateAuthenticated
	ctx := e.ctx
	e.mu.Unlock()

	if connected {
		e.publishStatus("En línea")
	} else {
		e.publishStatus("Sin conexión")
	}

	if connected && authed && ctx != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.SweepAll(ctx); err != nil {
				e.logger.Printf("WARNING: reconnect sweep failed: %v", err)
			}
		}()
	}
}

// setupSubscriptions establishes one live listener per collection.
// Only valid while authenticated.
func (e *Engine) setupSubscriptions() {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil {
		return
	}

	var cancels []func()
	for _, local := range schema.Collections {
		local := local
		cancel, err := e.remote.Subscribe(ctx, RemoteCollection(local), func(snap remote.Snapshot) {
			e.ingestSnapshot(ctx, local, snap)
		})
		if err != nil {
			e.logger.Printf("WARNING: failed to subscribe to %s: %v", RemoteCollection(local), err)
			continue
		}
		cancels = append(cancels, cancel)
	}

	e.mu.Lock()
	e.subsCancel = cancels
	e.mu.Unlock()
	e.logger.Printf("Live listeners configured for %d collections", len(cancels))
}

func (e *Engine) teardownSubscriptions() {
	e.mu.Lock()
	cancels := e.subsCancel
	e.subsCancel = nil
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// sweepLoop runs the periodic full upload sweep while authenticated.
func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return

		case <-ticker.C:
			if !e.IsAuthenticated() {
				continue
			}
			if err := e.SweepAll(e.ctx); err != nil {
				e.logger.Printf("WARNING: periodic sweep failed: %v", err)
			}
		}
	}
}

func (e *Engine) publishStatus(message string) {
	if e.cfg.OnStatusChanged == nil {
		return
	}
	e.mu.Lock()
	st := Status{State: e.state, Connected: e.connected, Message: message}
	e.mu.Unlock()
	e.cfg.OnStatusChanged(st)
}

// requireSession returns ErrSyncUnavailable unless an authenticated
// session exists and the transport is up. Callers treat the local
// write as the durable copy on failure; no queueing is required
// because the next sweep resends the full snapshot.
func (e *Engine) requireSession() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAuthenticated || e.session == nil || !e.connected {
		return ErrSyncUnavailable
	}
	return nil
}
