// Package session manages one realtime voice-AI session: connection
// lifecycle, transcript normalization and throttling, language tracking, and
// tool call dispatch.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/logging"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/language"
	"realtime-commerce-assistant/internal/service/token"
	"realtime-commerce-assistant/internal/service/tools"
	"realtime-commerce-assistant/internal/service/transcript"
	"realtime-commerce-assistant/internal/service/transport"
)

// Defaults for Options.
const (
	DefaultDeltaThrottle = 100 * time.Millisecond
	toolOutputTimeout    = 5 * time.Second
)

// Options configures a Manager.
type Options struct {
	SessionID string
	// DeltaThrottle is the minimum interval between agent delta callbacks
	// for one response. Zero disables throttling.
	DeltaThrottle time.Duration
	// AutoGreet sends the greeting command right after connecting.
	AutoGreet bool
	// BrowserLanguage is the client's preferred language tag.
	BrowserLanguage string
	Voice           string
	Model           string
	Metrics         *metrics.Metrics
}

// Manager is the single owner of one realtime connection.
type Manager struct {
	transport   transport.Transport
	credentials token.Source
	tools       *tools.Handler
	opts        Options
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	// loopMu serializes transport events, timer flushes and callbacks.
	loopMu sync.Mutex

	mu              sync.Mutex
	state           State
	generation      uint64
	callbacks       Callbacks
	unsubscribe     func()
	connectedAt     time.Time
	language        string
	browserLanguage string
	greetingPending bool
	suppressedItem  string

	agent *transcript.Tracker
	user  *transcript.Items
}

// New creates an idle manager. handler may be nil when no tools are offered.
func New(tr transport.Transport, credentials token.Source, handler *tools.Handler, opts Options) *Manager {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	browser := language.Normalize(opts.BrowserLanguage)

	m := &Manager{
		transport:       tr,
		credentials:     credentials,
		tools:           handler,
		opts:            opts,
		logger:          logging.WithSession("session", opts.SessionID),
		metrics:         opts.Metrics,
		state:           StateIdle,
		callbacks:       NopCallbacks{},
		language:        browser,
		browserLanguage: browser,
		user:            transcript.NewItems(),
	}
	m.agent = transcript.NewTracker(opts.DeltaThrottle, m.flushDelta)
	if handler != nil {
		m.tools = handler.WithLogger(m.logger)
	}
	return m
}

// SessionID returns the id used for logging and correlation.
func (m *Manager) SessionID() string { return m.opts.SessionID }

// Connect fetches a credential and opens the transport. It returns
// ErrAlreadyConnecting while another attempt is in flight and is a no-op
// when already connected. On failure cb.OnError receives a
// *ConnectionError and the manager rests in StateError.
func (m *Manager) Connect(ctx context.Context, cb Callbacks) error {
	if cb == nil {
		cb = NopCallbacks{}
	}

	m.mu.Lock()
	switch m.state {
	case StateConnecting:
		m.mu.Unlock()
		return ErrAlreadyConnecting
	case StateConnected:
		m.mu.Unlock()
		m.logger.Warn().Msg("Connect called on a connected session, ignoring")
		return nil
	}
	m.state = StateConnecting
	m.generation++
	gen := m.generation
	m.callbacks = cb
	m.language = m.browserLanguage
	m.greetingPending = false
	m.suppressedItem = ""
	lang := m.language
	m.mu.Unlock()

	start := time.Now()
	m.logger.Info().Str("language", lang).Msg("Connecting realtime session")

	credential, err := m.credentials.Fetch(ctx)
	if err != nil {
		return m.failConnect(gen, "token", err)
	}
	if !m.current(gen) {
		return ErrConnectCanceled
	}

	unsubscribe := m.transport.Subscribe(m.listener(gen))
	opts := transport.Options{
		Instructions: Instructions(lang),
		Voice:        m.opts.Voice,
		Model:        m.opts.Model,
		Language:     lang,
	}
	if m.tools != nil {
		opts.Tools = tools.Definitions()
	}
	if err := m.transport.Connect(ctx, credential, opts); err != nil {
		unsubscribe()
		// a superseded attempt must not close the transport a newer one owns
		if m.current(gen) {
			if cerr := m.transport.Close(); cerr != nil {
				m.logger.Warn().Err(cerr).Msg("Failed to close half-open transport")
			}
		}
		return m.failConnect(gen, "transport", err)
	}

	m.mu.Lock()
	if m.generation != gen {
		// a Disconnect ran while we were connecting
		newer := m.state.live()
		m.mu.Unlock()
		unsubscribe()
		if !newer {
			_ = m.transport.Close()
		}
		m.logger.Info().Msg("Connect superseded by disconnect")
		return ErrConnectCanceled
	}
	m.state = StateConnected
	m.unsubscribe = unsubscribe
	m.connectedAt = time.Now()
	m.mu.Unlock()

	m.metrics.RecordSessionConnected(time.Since(start).Seconds())
	m.logger.Info().
		Dur("elapsed", time.Since(start)).
		Msg("Realtime session connected")

	m.invoke(func(cb Callbacks) { cb.OnConnected() })

	if m.opts.AutoGreet {
		if err := m.SendGreeting(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to send greeting")
		}
	}
	return nil
}

func (m *Manager) failConnect(gen uint64, stage string, err error) error {
	cerr := &ConnectionError{Stage: stage, Err: err}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return ErrConnectCanceled
	}
	m.state = StateError
	m.mu.Unlock()

	m.metrics.RecordConnectFailure(stage)
	m.logger.Error().Err(err).Str("stage", stage).Msg("Realtime session connect failed")
	m.invoke(func(cb Callbacks) { cb.OnError(cerr) })
	return cerr
}

// Disconnect tears the session down. It is idempotent: buffers, timers and
// flags are always reset, and OnDisconnected fires only when a session was
// actually connecting or connected. A transport close failure is returned
// after cleanup.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	prev := m.state
	m.generation++
	m.mu.Unlock()

	return m.teardown(prev, true)
}

// teardown resets session state. lock is false when the caller already
// holds loopMu.
func (m *Manager) teardown(prev State, lock bool) error {
	m.mu.Lock()
	m.state = StateIdle
	m.greetingPending = false
	m.suppressedItem = ""
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	connectedAt := m.connectedAt
	cb := m.callbacks
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	dropped := m.agent.Reset()
	m.user.Reset()

	var closeErr error
	if prev.live() {
		if err := m.transport.Close(); err != nil {
			closeErr = &TransportError{Op: "close", Err: err}
			m.logger.Warn().Err(err).Msg("Transport close failed, session state reset anyway")
		}
	}
	if prev == StateConnected {
		m.metrics.RecordSessionClosed()
	}

	if !prev.live() {
		return closeErr
	}

	m.logger.Info().
		Str("from", prev.String()).
		Int("droppedBuffers", dropped).
		Dur("duration", time.Since(connectedAt)).
		Msg("Realtime session disconnected")

	if lock {
		m.loopMu.Lock()
		defer m.loopMu.Unlock()
	}
	cb.OnDisconnected()
	return closeErr
}

// SendMessage barges in on any agent speech, then sends text.
func (m *Manager) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if !m.connected() {
		return ErrNotConnected
	}

	m.Interrupt(ctx)
	if err := m.transport.SendMessage(ctx, text); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	m.logger.Debug().Int("length", len(text)).Msg("Message sent")
	return nil
}

// SendGreeting asks the assistant to open the conversation. The first user
// transcript that follows is the synthetic greeting command and is not
// forwarded.
func (m *Manager) SendGreeting(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	m.greetingPending = true
	lang := m.language
	m.mu.Unlock()

	if err := m.transport.SendMessage(ctx, GreetingCommand(lang)); err != nil {
		m.mu.Lock()
		m.greetingPending = false
		m.mu.Unlock()
		return &TransportError{Op: "greet", Err: err}
	}
	return nil
}

// Interrupt asks the assistant to stop speaking. Errors are logged and
// swallowed; it is often called speculatively.
func (m *Manager) Interrupt(ctx context.Context) {
	if !m.connected() {
		return
	}
	if err := m.transport.Interrupt(ctx); err != nil {
		m.logger.Debug().Err(err).Msg("Interrupt failed, ignoring")
	}
}

// MuteInput toggles the microphone. No-op without a session.
func (m *Manager) MuteInput(muted bool) {
	if !m.connected() {
		return
	}
	m.transport.SetInputMuted(muted)
	m.logger.Debug().Bool("muted", muted).Msg("Input mute changed")
}

// AudioInputMuted reports the microphone state; false without a session.
func (m *Manager) AudioInputMuted() bool {
	if !m.connected() {
		return false
	}
	return m.transport.InputMuted()
}

// ConnectionStatus returns a snapshot of the connection.
func (m *Manager) ConnectionStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		IsConnected:  m.state == StateConnected,
		IsConnecting: m.state == StateConnecting,
		HasSession:   m.state.live(),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Language returns the current spoken language.
func (m *Manager) Language() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.language
}

// BrowserLanguage returns the language the client declared.
func (m *Manager) BrowserLanguage() string {
	return m.browserLanguage
}

func (m *Manager) connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen && m.state.live()
}

func (m *Manager) currentCallbacks() Callbacks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callbacks
}

// invoke runs fn with the current callbacks under the loop lock.
func (m *Manager) invoke(fn func(cb Callbacks)) {
	cb := m.currentCallbacks()
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	fn(cb)
}

// flushDelta runs when a throttled delta becomes due.
func (m *Manager) flushDelta(responseID string) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	m.mu.Lock()
	live := m.state.live()
	cb := m.callbacks
	m.mu.Unlock()
	if !live {
		return
	}
	if text, ok := m.agent.Flush(responseID); ok {
		m.metrics.AgentDeltasEmitted.Inc()
		cb.OnAgentTranscriptionDelta(responseID, text)
	}
}

func (m *Manager) applyMetadata(md models.ProductMetadata, cb Callbacks) {
	m.logger.Info().
		Int("products", len(md.Products)).
		Msg("Product metadata received")
	cb.OnMetadata(md)
}
