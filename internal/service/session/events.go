package session

import (
	"context"
	"time"

	"realtime-commerce-assistant/internal/service/language"
	"realtime-commerce-assistant/internal/service/transport"
)

// listener binds transport events to the session generation that
// subscribed, so events from a torn-down session are dropped.
func (m *Manager) listener(gen uint64) transport.Listener {
	return func(ev transport.Event) {
		m.loopMu.Lock()
		defer m.loopMu.Unlock()

		if !m.current(gen) {
			return
		}
		m.handle(gen, ev)
	}
}

// handle processes one event. Called with loopMu held.
func (m *Manager) handle(gen uint64, ev transport.Event) {
	cb := m.currentCallbacks()

	switch ev.Kind {
	case transport.KindSessionCreated:
		m.logger.Debug().Msg("Transport session created")

	case transport.KindSpeechStarted:
		m.logger.Debug().Str("itemId", ev.ItemID).Msg("User speech started")
		if ev.ItemID == "" || m.isSuppressed(ev.ItemID) {
			return
		}
		// an empty partial reserves the utterance's place in the timeline
		cb.OnUserTranscription(ev.ItemID, m.user.Append(ev.ItemID, ""), false)

	case transport.KindSpeechStopped:
		m.logger.Debug().Str("itemId", ev.ItemID).Msg("User speech stopped")

	case transport.KindUserItemCreated:
		m.claimGreetingItem(ev.ItemID)

	case transport.KindUserTranscriptDelta:
		if m.suppressGreeting(ev.ItemID) {
			return
		}
		text := m.user.Append(ev.ItemID, ev.Text)
		m.metrics.RecordUserTranscript(false)
		cb.OnUserTranscription(ev.ItemID, text, false)

	case transport.KindUserTranscriptCompleted:
		if m.suppressGreeting(ev.ItemID) {
			m.user.Complete(ev.ItemID, "")
			return
		}
		full := m.user.Complete(ev.ItemID, ev.Text)
		m.metrics.RecordUserTranscript(true)
		cb.OnUserTranscription(ev.ItemID, full, true)
		m.detectLanguage(full)

	case transport.KindAgentTranscriptDelta:
		m.metrics.AgentDeltasReceived.Inc()
		id := responseKey(ev)
		if text, ok := m.agent.Append(id, ev.Text); ok {
			m.metrics.AgentDeltasEmitted.Inc()
			cb.OnAgentTranscriptionDelta(id, text)
		}

	case transport.KindAgentTranscriptDone:
		id := responseKey(ev)
		c := m.agent.Complete(id, ev.Text)
		if c.Pending != "" {
			m.metrics.AgentDeltasEmitted.Inc()
			cb.OnAgentTranscriptionDelta(id, c.Pending)
		}
		m.releaseGreeting()
		if c.Full == "" {
			return
		}
		m.metrics.ResponsesCompleted.Inc()
		cb.OnAgentTranscriptionComplete(id, c.Full)

	case transport.KindToolCall:
		m.handleToolCall(ev, cb)

	case transport.KindError:
		err := ev.Err
		if err == nil {
			err = errUnspecified
		}
		m.logger.Error().Err(err).Msg("Transport reported an error")
		cb.OnError(&TransportError{Err: err})

	case transport.KindClosed:
		m.mu.Lock()
		prev := m.state
		if m.generation == gen {
			m.generation++
		}
		m.mu.Unlock()
		m.logger.Warn().Msg("Transport closed by remote")
		_ = m.teardown(prev, false)

	case transport.KindUnknown:
	}
}

// responseKey falls back to the item id for transports that omit response ids.
func responseKey(ev transport.Event) string {
	if ev.ResponseID != "" {
		return ev.ResponseID
	}
	if ev.ItemID != "" {
		return ev.ItemID
	}
	return "response"
}

// suppressGreeting reports whether a user transcript event belongs to the
// synthetic greeting command. Transports that echo the greeting as a
// transcript consume the pending flag with their first user transcript
// event; every later event of that item is dropped too.
func (m *Manager) suppressGreeting(itemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.suppressedItem != "" && itemID == m.suppressedItem {
		return true
	}
	if !m.greetingPending {
		return false
	}
	m.claimLocked(itemID)
	return true
}

// claimGreetingItem binds the pending greeting to the text item the
// backend created for it, so only that item's transcripts are dropped.
func (m *Manager) claimGreetingItem(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.greetingPending || itemID == "" {
		return
	}
	m.claimLocked(itemID)
}

func (m *Manager) claimLocked(itemID string) {
	m.greetingPending = false
	m.suppressedItem = itemID
	m.metrics.GreetingSuppressed.Inc()
	m.logger.Debug().Str("itemId", itemID).Msg("Suppressing greeting transcript")
}

// releaseGreeting drops a pending flag nobody claimed once a response has
// completed; the greeting item necessarily precedes its answer.
func (m *Manager) releaseGreeting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.greetingPending {
		m.greetingPending = false
		m.logger.Debug().Msg("Greeting was not echoed, releasing flag")
	}
}

func (m *Manager) isSuppressed(itemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suppressedItem != "" && itemID == m.suppressedItem
}

// detectLanguage updates the session language when a completed transcript
// is clearly in another language. The instruction update is fire-and-forget.
func (m *Manager) detectLanguage(text string) {
	code, ok := language.Detect(text)
	if !ok {
		return
	}

	m.mu.Lock()
	if code == m.language {
		m.mu.Unlock()
		return
	}
	from := m.language
	m.language = code
	m.mu.Unlock()

	m.metrics.RecordLanguageSwitch(code)
	m.logger.Info().Str("from", from).Str("to", code).Msg("Spoken language changed")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), toolOutputTimeout)
		defer cancel()
		if err := m.transport.UpdateInstructions(ctx, Instructions(code)); err != nil {
			m.logger.Warn().Err(err).Str("language", code).Msg("Failed to update instructions")
		}
	}()
}

func (m *Manager) handleToolCall(ev transport.Event, cb Callbacks) {
	call := ev.ToolCall
	if call == nil {
		m.logger.Warn().Msg("Tool call event without payload")
		return
	}
	if m.tools == nil {
		m.logger.Warn().Str("tool", call.Name).Msg("Tool call received but no tools are configured")
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), toolOutputTimeout)
	defer cancel()

	res := m.tools.Handle(ctx, *call)
	if res.Metadata != nil {
		m.applyMetadata(*res.Metadata, cb)
	}

	m.logger.Debug().
		Str("tool", call.Name).
		Str("callId", call.CallID).
		Bool("ok", res.Err == nil).
		Dur("elapsed", time.Since(start)).
		Msg("Tool call handled")

	if call.CallID == "" {
		return
	}
	if err := m.transport.SendToolOutput(ctx, call.CallID, res.Output); err != nil {
		m.logger.Warn().Err(err).Str("callId", call.CallID).Msg("Failed to return tool output")
	}
}
