package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"realtime-commerce-assistant/internal/observability/logging"
	"realtime-commerce-assistant/internal/observability/metrics"
)

const (
	DefaultMaxSubscribers = 100
	DefaultHistorySize    = 50
)

var (
	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("event handler panicked")
	// ErrPayloadType is returned by typed handlers receiving an unexpected payload.
	ErrPayloadType = errors.New("unexpected event payload type")
)

// HandlerError reports a failed handler. It is logged, never returned to emitters.
type HandlerError struct {
	Type           Type
	SubscriptionID string
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for %s: %v", e.SubscriptionID, e.Type, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type subscription struct {
	id       string
	typ      Type
	handler  Handler
	priority int
	once     bool
	source   string
}

// Subscription is the caller's handle on a registration.
// A subscription refused by the capacity guard is inert.
type Subscription struct {
	id  string
	typ Type
	bus *Bus
}

// ID returns the registration id, empty for an inert subscription.
func (s *Subscription) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Type returns the subscribed event type.
func (s *Subscription) Type() Type {
	if s == nil {
		return ""
	}
	return s.typ
}

// Active reports whether the registration is still held by the bus.
func (s *Subscription) Active() bool {
	if s == nil || s.bus == nil {
		return false
	}
	return s.bus.has(s.id)
}

// Unsubscribe removes exactly this registration.
func (s *Subscription) Unsubscribe() bool {
	if s == nil || s.bus == nil {
		return false
	}
	return s.bus.Unsubscribe(s.id)
}

// Bus is a typed publish/subscribe registry. Safe for concurrent use.
// Handlers run outside the registry lock, so they may subscribe or
// unsubscribe (including themselves) while an emission is in progress.
type Bus struct {
	mu             sync.Mutex
	subs           map[Type][]*subscription
	index          map[string]Type
	hist           *history
	maxSubscribers int
	pending        map[*time.Timer]struct{}
	closed         bool

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxSubscribers sets the per-type subscriber limit.
func WithMaxSubscribers(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxSubscribers = n
		}
	}
}

// WithHistorySize sets the capacity of the debugging history. Zero disables it.
func WithHistorySize(n int) Option {
	return func(b *Bus) {
		b.hist = newHistory(n)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bus) {
		if m != nil {
			b.metrics = m
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:           make(map[Type][]*subscription),
		index:          make(map[string]Type),
		hist:           newHistory(DefaultHistorySize),
		maxSubscribers: DefaultMaxSubscribers,
		pending:        make(map[*time.Timer]struct{}),
		logger:         logging.WithComponent("eventbus"),
		metrics:        metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler, opts SubscribeOptions) *Subscription {
	if h == nil {
		b.logger.Warn().Str("type", string(t)).Msg("Refusing nil handler")
		return &Subscription{typ: t}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[t]
	if len(list) >= b.maxSubscribers {
		b.logger.Warn().
			Str("type", string(t)).
			Int("maxSubscribers", b.maxSubscribers).
			Str("source", opts.Source).
			Msg("Subscriber limit reached, registration refused")
		b.metrics.RecordBusRejected(string(t))
		return &Subscription{typ: t}
	}

	s := &subscription{
		id:       uuid.NewString(),
		typ:      t,
		handler:  h,
		priority: opts.Priority,
		once:     opts.Once,
		source:   opts.Source,
	}

	// descending priority, stable for equal priorities
	pos := len(list)
	for i, existing := range list {
		if existing.priority < s.priority {
			pos = i
			break
		}
	}
	list = append(list, nil)
	copy(list[pos+1:], list[pos:])
	list[pos] = s
	b.subs[t] = list
	b.index[s.id] = t

	return &Subscription{id: s.id, typ: t, bus: b}
}

// Once registers h for a single invocation.
func (b *Bus) Once(t Type, h Handler, opts SubscribeOptions) *Subscription {
	opts.Once = true
	return b.Subscribe(t, h, opts)
}

// Unsubscribe removes the registration with the given id and reports whether it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(id)
}

// UnsubscribeAll removes every registration for t and returns how many were removed.
func (b *Bus) UnsubscribeAll(t Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[t]
	for _, s := range list {
		delete(b.index, s.id)
	}
	delete(b.subs, t)
	return len(list)
}

// Clear removes all registrations and the retained history.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = make(map[Type][]*subscription)
	b.index = make(map[string]Type)
	b.hist.reset()
}

// Close cancels delayed emissions that have not fired yet.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for t := range b.pending {
		t.Stop()
	}
	b.pending = make(map[*time.Timer]struct{})
}

// SubscriberCount returns the number of registrations for t.
func (b *Bus) SubscriberCount(t Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[t])
}

// History returns retained events, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hist.snapshot()
}

// Emit delivers payload to every current subscriber of t in priority order.
// With a Delay the emission happens later on a timer and Emit returns at once.
func (b *Bus) Emit(ctx context.Context, t Type, payload any, opts EmitOptions) Event {
	ev := b.newEvent(t, payload, opts)
	if opts.Delay > 0 {
		b.schedule(ctx, ev, opts.Delay)
		return ev
	}
	b.dispatch(ctx, ev)
	return ev
}

// EmitAsync runs every subscriber concurrently. The returned channel is closed
// once all of them have completed, whatever their outcome; failures are
// logged per handler and summarized once all have finished.
func (b *Bus) EmitAsync(ctx context.Context, t Type, payload any, opts EmitOptions) <-chan struct{} {
	ev := b.newEvent(t, payload, opts)
	done := make(chan struct{})

	go func() {
		defer close(done)

		if opts.Delay > 0 {
			timer := time.NewTimer(opts.Delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				b.logger.Debug().Str("type", string(t)).Msg("Delayed async emission canceled")
				return
			}
		}

		targets := b.claim(ev)
		var failed atomic.Int32
		var g errgroup.Group
		for _, s := range targets {
			g.Go(func() error {
				if herr := b.invoke(ctx, s, ev); herr != nil {
					failed.Add(1)
					return herr
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			b.logger.Warn().
				Err(err).
				Str("type", string(t)).
				Str("eventId", ev.ID).
				Int32("failed", failed.Load()).
				Int("handlers", len(targets)).
				Msg("Async emission finished with failing handlers")
		}
	}()

	return done
}

func (b *Bus) newEvent(t Type, payload any, opts EmitOptions) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
		Priority:  opts.Priority,
		Source:    opts.Source,
		Metadata:  opts.Metadata,
	}
}

func (b *Bus) schedule(ctx context.Context, ev Event, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		_, live := b.pending[timer]
		delete(b.pending, timer)
		b.mu.Unlock()

		if !live || ctx.Err() != nil {
			return
		}
		b.dispatch(ctx, ev)
	})
	b.pending[timer] = struct{}{}
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	for _, s := range b.claim(ev) {
		// failures stay with their handler; siblings still run
		_ = b.invoke(ctx, s, ev)
	}
}

// claim records ev in the history and snapshots its subscribers. One-shot
// registrations are removed here, before they run, so they fire exactly once
// even under concurrent emissions or a failing handler.
func (b *Bus) claim(ev Event) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hist.add(ev)
	b.metrics.RecordBusEmit(string(ev.Type))

	list := b.subs[ev.Type]
	targets := make([]*subscription, len(list))
	copy(targets, list)

	for _, s := range targets {
		if s.once {
			b.removeLocked(s.id)
		}
	}
	return targets
}

// invoke runs one handler, recovering panics. A failure is logged and
// returned as a *HandlerError.
func (b *Bus) invoke(ctx context.Context, s *subscription, ev Event) error {
	err := call(ctx, s, ev)
	if err == nil {
		return nil
	}
	herr := &HandlerError{Type: ev.Type, SubscriptionID: s.id, Err: err}
	b.logger.Error().
		Err(herr).
		Str("type", string(ev.Type)).
		Str("eventId", ev.ID).
		Str("source", s.source).
		Msg("Event handler failed")
	b.metrics.RecordBusHandlerError(string(ev.Type))
	return herr
}

func call(ctx context.Context, s *subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return s.handler(ctx, ev)
}

func (b *Bus) has(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.index[id]
	return ok
}

func (b *Bus) removeLocked(id string) bool {
	t, ok := b.index[id]
	if !ok {
		return false
	}
	delete(b.index, id)

	list := b.subs[t]
	for i, s := range list {
		if s.id == id {
			// copy so snapshots taken by in-flight emissions stay intact
			next := make([]*subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, t)
			} else {
				b.subs[t] = next
			}
			break
		}
	}
	return true
}

// SubscribeTyped registers a handler that receives the payload as T.
// Payloads of another type fail the handler with ErrPayloadType.
func SubscribeTyped[T any](b *Bus, t Type, h func(ctx context.Context, payload T, ev Event) error, opts SubscribeOptions) *Subscription {
	return b.Subscribe(t, func(ctx context.Context, ev Event) error {
		switch p := ev.Payload.(type) {
		case T:
			return h(ctx, p, ev)
		case *T:
			if p != nil {
				return h(ctx, *p, ev)
			}
		}
		var zero T
		return fmt.Errorf("%w: %s expects %T, got %T", ErrPayloadType, t, zero, ev.Payload)
	}, opts)
}
