// Package conversation merges the user transcript, agent transcript and
// product metadata streams of a session into one ordered timeline.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"realtime-commerce-assistant/internal/eventbus"
	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/logging"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/session"
)

// DefaultQuietWindow is how long a live user transcript may go without a
// partial before it is finalized as is.
const DefaultQuietWindow = 2 * time.Second

// Options configures a Reconciler.
type Options struct {
	SessionID string
	// IDPrefix prefixes message ids; it defaults to SessionID.
	IDPrefix    string
	QuietWindow time.Duration
	// Bus receives UI_UPDATE events on status changes. Optional.
	Bus     Emitter
	Metrics *metrics.Metrics
}

type liveTranscript struct {
	itemID string
	text   string
}

// heldUtterance is a user utterance that was overtaken by an agent message
// before any of its words arrived. It is placed right before that message.
type heldUtterance struct {
	before string
	text   string
}

// Reconciler owns the timeline of one conversation and implements
// session.Callbacks.
type Reconciler struct {
	session Session
	opts    Options
	ids     *idGenerator
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// notifyMu orders mutations with their notifications.
	notifyMu sync.Mutex

	mu         sync.Mutex
	messages   []models.Message
	byResponse map[string]string
	finalItems map[string]bool
	live       *liveTranscript
	held       map[string]*heldUtterance
	idleTimer  *time.Timer
	idleGen    uint64
	status     Status
	closed     bool
	listeners  []Listener
}

var _ session.Callbacks = (*Reconciler)(nil)

// New creates an empty timeline bound to sess.
func New(sess Session, opts Options) *Reconciler {
	if opts.QuietWindow <= 0 {
		opts.QuietWindow = DefaultQuietWindow
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	prefix := opts.IDPrefix
	if prefix == "" {
		prefix = opts.SessionID
	}
	if prefix == "" {
		prefix = "conv"
	}
	return &Reconciler{
		session:    sess,
		opts:       opts,
		ids:        newIDGenerator(prefix),
		logger:     logging.WithSession("conversation", opts.SessionID),
		metrics:    opts.Metrics,
		byResponse: make(map[string]string),
		finalItems: make(map[string]bool),
		held:       make(map[string]*heldUtterance),
		status:     Status{State: StatusIdle},
	}
}

// AddListener registers l for all subsequent updates.
func (r *Reconciler) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Messages returns a copy of the timeline.
func (r *Reconciler) Messages() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Message(nil), r.messages...)
}

// Live returns the pending user transcript, if any.
func (r *Reconciler) Live() (itemID, text string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live == nil {
		return "", "", false
	}
	return r.live.itemID, r.live.text, true
}

// Status returns the current connection status.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Start connects the session with the reconciler as its callbacks.
func (r *Reconciler) Start(ctx context.Context) error {
	r.setStatus(Status{State: StatusConnecting})
	return r.session.Connect(ctx, r)
}

// Stop disconnects the session.
func (r *Reconciler) Stop() error {
	return r.session.Disconnect()
}

// Send appends a typed user message and sends it. A failed send is shown
// inline as an error message.
func (r *Reconciler) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return session.ErrEmptyMessage
	}

	r.mutate(func() []Update {
		ups := r.finalizeLiveLocked()
		return append(ups, r.appendLocked(models.Message{
			Author:  models.AuthorUser,
			Kind:    models.KindText,
			Content: text,
			Final:   true,
		}))
	})

	err := r.session.SendMessage(ctx, text)
	if err == nil {
		return nil
	}

	r.logger.Warn().Err(err).Msg("Failed to send message")
	r.mutate(func() []Update {
		return []Update{r.appendLocked(models.Message{
			Author:  models.AuthorAgent,
			Kind:    models.KindError,
			Content: sendFailureText(err),
			Final:   true,
		})}
	})
	return err
}

func sendFailureText(err error) string {
	if errors.Is(err, session.ErrNotConnected) {
		return "Message not sent: the assistant is not connected."
	}
	return fmt.Sprintf("Message not sent: %v", err)
}

// Close stops the idle timer. Callbacks arriving afterwards are ignored.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stopIdleLocked()
}

func (r *Reconciler) OnConnected() {
	r.setStatus(Status{State: StatusConnected})
}

// OnDisconnected finalizes anything still streaming; nothing more will arrive for it.
func (r *Reconciler) OnDisconnected() {
	r.mutate(func() []Update {
		ups := r.finalizeLiveLocked()
		for itemID := range r.held {
			ups = append(ups, r.placeHeldLocked(itemID, "")...)
		}
		for i := range r.messages {
			if !r.messages[i].Final {
				r.messages[i].Final = true
				ups = append(ups, Update{Type: UpdateFinalized, Message: r.messages[i], Index: i})
			}
		}
		return ups
	})
	r.setStatus(Status{State: StatusDisconnected, Detail: "Not connected"})
}

func (r *Reconciler) OnError(err error) {
	var cerr *session.ConnectionError
	if errors.As(err, &cerr) {
		r.setStatus(Status{State: StatusError, Detail: fmt.Sprintf("Not connected: %v", cerr.Err)})
		return
	}
	r.mu.Lock()
	state := r.status.State
	r.mu.Unlock()
	r.setStatus(Status{State: state, Detail: err.Error()})
}

// OnUserTranscription tracks the live user transcript. Partials for an item
// that was already finalized are ignored, as is a late completion. An empty
// partial marks speech that has started without words yet.
//
// A completion is placed before the agent message it precedes in the
// conversation: the one that overtook the utterance, or, for an utterance
// never seen live, the answer still streaming.
func (r *Reconciler) OnUserTranscription(itemID, text string, isComplete bool) {
	r.mutate(func() []Update {
		if r.finalItems[itemID] {
			r.logger.Debug().Str("itemId", itemID).Bool("complete", isComplete).Msg("Ignoring transcript for finalized item")
			return nil
		}

		if h, ok := r.held[itemID]; ok {
			if !isComplete {
				h.text = text
				return nil
			}
			return r.placeHeldLocked(itemID, text)
		}

		unseen := r.live == nil || r.live.itemID != itemID
		if isComplete && unseen {
			if idx, ok := r.streamingAnswerLocked(); ok {
				r.finalItems[itemID] = true
				if strings.TrimSpace(text) == "" {
					return nil
				}
				r.metrics.OrderingInsertions.Inc()
				return []Update{r.insertLocked(idx, userMessage(itemID, text))}
			}
		}

		var ups []Update
		if r.live != nil && r.live.itemID != itemID {
			ups = r.finalizeLiveLocked()
		}

		if !isComplete {
			r.live = &liveTranscript{itemID: itemID, text: text}
			if strings.TrimSpace(text) == "" {
				r.stopIdleLocked()
			} else {
				r.armIdleLocked()
			}
			return append(ups, Update{
				Type:    UpdateLive,
				Message: models.Message{Author: models.AuthorUser, Kind: models.KindText, Content: text, ItemID: itemID},
				Index:   -1,
			})
		}

		r.live = nil
		r.stopIdleLocked()
		r.finalItems[itemID] = true
		if strings.TrimSpace(text) == "" {
			return ups
		}
		return append(ups, r.appendLocked(userMessage(itemID, text)))
	})
}

// OnAgentTranscriptionDelta replaces the content of the response's message.
// The first delta of a response finalizes a live user transcript first, so
// the question always precedes the answer.
func (r *Reconciler) OnAgentTranscriptionDelta(responseID, accumulated string) {
	r.mutate(func() []Update {
		if idx, ok := r.indexOfResponseLocked(responseID); ok {
			msg := &r.messages[idx]
			if msg.Final {
				return nil
			}
			msg.Content = accumulated
			return []Update{{Type: UpdateUpdated, Message: *msg, Index: idx}}
		}

		held := r.holdEmptyLiveLocked()
		ups := r.finalizeLiveLocked()
		if len(ups) > 0 {
			r.metrics.OrderingInsertions.Inc()
		}
		up := r.appendLocked(models.Message{
			Author:     models.AuthorAgent,
			Kind:       models.KindText,
			Content:    accumulated,
			ResponseID: responseID,
		})
		r.holdBeforeLocked(held, up.Message.ID)
		return append(ups, up)
	})
}

func (r *Reconciler) OnAgentTranscriptionComplete(responseID, full string) {
	r.mutate(func() []Update {
		if idx, ok := r.indexOfResponseLocked(responseID); ok {
			msg := &r.messages[idx]
			if msg.Final {
				return nil
			}
			msg.Content = full
			msg.Final = true
			return []Update{{Type: UpdateFinalized, Message: *msg, Index: idx}}
		}

		held := r.holdEmptyLiveLocked()
		ups := r.finalizeLiveLocked()
		up := r.appendLocked(models.Message{
			Author:     models.AuthorAgent,
			Kind:       models.KindText,
			Content:    full,
			ResponseID: responseID,
			Final:      true,
		})
		r.holdBeforeLocked(held, up.Message.ID)
		return append(ups, up)
	})
}

// OnMetadata appends a product message after finalizing any live transcript.
func (r *Reconciler) OnMetadata(md models.ProductMetadata) {
	r.mutate(func() []Update {
		held := r.holdEmptyLiveLocked()
		ups := r.finalizeLiveLocked()
		up := r.appendLocked(models.Message{
			Author:    models.AuthorAgent,
			Kind:      models.KindProduct,
			Content:   md.Reasoning,
			Products:  md.Products,
			Reasoning: md.Reasoning,
			Final:     true,
		})
		r.holdBeforeLocked(held, up.Message.ID)
		return append(ups, up)
	})
}

// mutate applies fn and notifies listeners of the resulting updates before
// the next mutation can start.
func (r *Reconciler) mutate(fn func() []Update) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	ups := fn()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	for _, u := range ups {
		for _, l := range listeners {
			l(u)
		}
	}
}

func userMessage(itemID, text string) models.Message {
	return models.Message{
		Author:  models.AuthorUser,
		Kind:    models.KindText,
		Content: text,
		ItemID:  itemID,
		Final:   true,
	}
}

func (r *Reconciler) appendLocked(msg models.Message) Update {
	return r.insertLocked(len(r.messages), msg)
}

// insertLocked places msg at idx; later messages move down by one.
func (r *Reconciler) insertLocked(idx int, msg models.Message) Update {
	msg.ID = r.ids.next()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	r.messages = slices.Insert(r.messages, idx, msg)
	if msg.ResponseID != "" && msg.Kind == models.KindText {
		r.byResponse[msg.ResponseID] = msg.ID
	}
	r.metrics.RecordTimelineMessage(string(msg.Author), string(msg.Kind))
	return Update{Type: UpdateAdded, Message: msg, Index: idx}
}

func (r *Reconciler) indexOfResponseLocked(responseID string) (int, bool) {
	id, ok := r.byResponse[responseID]
	if !ok {
		return 0, false
	}
	return r.indexOfIDLocked(id)
}

func (r *Reconciler) indexOfIDLocked(id string) (int, bool) {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

// streamingAnswerLocked finds the oldest agent text message still streaming.
func (r *Reconciler) streamingAnswerLocked() (int, bool) {
	for i, msg := range r.messages {
		if !msg.Final && msg.Author == models.AuthorAgent && msg.Kind == models.KindText {
			return i, true
		}
	}
	return 0, false
}

// holdEmptyLiveLocked takes a live transcript that has no words yet out of
// the way of a new agent message and returns its item id.
func (r *Reconciler) holdEmptyLiveLocked() string {
	if r.live == nil || strings.TrimSpace(r.live.text) != "" {
		return ""
	}
	itemID := r.live.itemID
	r.live = nil
	r.stopIdleLocked()
	return itemID
}

func (r *Reconciler) holdBeforeLocked(itemID, messageID string) {
	if itemID == "" {
		return
	}
	r.held[itemID] = &heldUtterance{before: messageID}
}

// placeHeldLocked inserts a held utterance before the message that overtook
// it, using text or, when empty, whatever partial text arrived meanwhile.
func (r *Reconciler) placeHeldLocked(itemID, text string) []Update {
	h := r.held[itemID]
	delete(r.held, itemID)
	r.finalItems[itemID] = true

	if strings.TrimSpace(text) == "" {
		text = h.text
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	idx, ok := r.indexOfIDLocked(h.before)
	if !ok {
		idx = len(r.messages)
	}
	r.metrics.OrderingInsertions.Inc()
	return []Update{r.insertLocked(idx, userMessage(itemID, text))}
}

// finalizeLiveLocked turns the live transcript into a final user message.
func (r *Reconciler) finalizeLiveLocked() []Update {
	if r.live == nil {
		return nil
	}
	lv := r.live
	r.live = nil
	r.stopIdleLocked()

	// an utterance with no words yet stays open for its completion
	if strings.TrimSpace(lv.text) == "" {
		return nil
	}
	r.finalItems[lv.itemID] = true
	return []Update{r.appendLocked(userMessage(lv.itemID, lv.text))}
}

func (r *Reconciler) armIdleLocked() {
	r.stopIdleLocked()
	gen := r.idleGen
	r.idleTimer = time.AfterFunc(r.opts.QuietWindow, func() { r.idleFinalize(gen) })
}

func (r *Reconciler) stopIdleLocked() {
	r.idleGen++
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}
}

func (r *Reconciler) idleFinalize(gen uint64) {
	r.mutate(func() []Update {
		if gen != r.idleGen || r.live == nil {
			return nil
		}
		r.logger.Debug().Str("itemId", r.live.itemID).Msg("Finalizing quiet user transcript")
		r.metrics.IdleFinalizations.Inc()
		return r.finalizeLiveLocked()
	})
}

func (r *Reconciler) setStatus(s Status) {
	r.mu.Lock()
	if r.closed || r.status == s {
		r.mu.Unlock()
		return
	}
	r.status = s
	r.mu.Unlock()

	r.logger.Info().Str("state", s.State).Str("detail", s.Detail).Msg("Connection status changed")

	if r.opts.Bus == nil {
		return
	}
	r.opts.Bus.Emit(context.Background(), eventbus.UIUpdate, models.UIUpdate{
		Component: "connection",
		State: map[string]any{
			"status": s.State,
			"detail": s.Detail,
		},
	}, eventbus.EmitOptions{Source: "conversation"})
}
