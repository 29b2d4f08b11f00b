package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"realtime-commerce-assistant/internal/observability/logging"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/conversation"
)

const writeTimeout = 2 * time.Second

// Recorder stores every message of a timeline once it is final.
type Recorder struct {
	store     Store
	sessionID string
	backend   string
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

func NewRecorder(store Store, backend Backend, sessionID string, m *metrics.Metrics) *Recorder {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Recorder{
		store:     store,
		sessionID: sessionID,
		backend:   string(backend),
		logger:    logging.WithSession("history", sessionID),
		metrics:   m,
	}
}

// Listen is a conversation.Listener. Messages added already final and
// streaming messages reaching UpdateFinalized are written; nothing else is.
func (r *Recorder) Listen(u conversation.Update) {
	switch {
	case u.Type == conversation.UpdateFinalized:
	case u.Type == conversation.UpdateAdded && u.Message.Final:
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := r.store.Append(ctx, r.sessionID, u.Message)
	r.metrics.RecordHistoryWrite(r.backend, err)
	if err != nil {
		r.logger.Warn().Err(err).Str("messageId", u.Message.ID).Msg("Failed to store message")
	}
}
