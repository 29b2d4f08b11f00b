package transport

// Kind is the closed set of normalized transport events.
type Kind int

const (
	KindUnknown Kind = iota
	KindSessionCreated
	KindSpeechStarted
	KindSpeechStopped
	// KindUserItemCreated reports a user text item added to the
	// conversation, such as a sent message. Text carries its content.
	KindUserItemCreated
	KindUserTranscriptDelta
	KindUserTranscriptCompleted
	KindAgentTranscriptDelta
	KindAgentTranscriptDone
	KindToolCall
	KindError
	KindClosed
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindSessionCreated:          "session_created",
	KindSpeechStarted:           "speech_started",
	KindSpeechStopped:           "speech_stopped",
	KindUserItemCreated:         "user_item_created",
	KindUserTranscriptDelta:     "user_transcript_delta",
	KindUserTranscriptCompleted: "user_transcript_completed",
	KindAgentTranscriptDelta:    "agent_transcript_delta",
	KindAgentTranscriptDone:     "agent_transcript_done",
	KindToolCall:                "tool_call",
	KindError:                   "error",
	KindClosed:                  "closed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// wireNames maps every known spelling of a backend event to its kind.
// Backends rename events between API versions, and the SDK layer some
// clients go through re-emits them under its own names.
var wireNames = map[string]Kind{
	"session.created":     KindSessionCreated,
	"session_created":     KindSessionCreated,
	"transport_connected": KindSessionCreated,

	"input_audio_buffer.speech_started": KindSpeechStarted,
	"speech_started":                    KindSpeechStarted,
	"input_audio_buffer.speech_stopped": KindSpeechStopped,
	"speech_stopped":                    KindSpeechStopped,

	// adapters keep only user text items from these
	"conversation.item.created": KindUserItemCreated,
	"conversation.item.added":   KindUserItemCreated,
	"user_item_created":         KindUserItemCreated,

	"conversation.item.input_audio_transcription.delta": KindUserTranscriptDelta,
	"input_audio_transcription.delta":                   KindUserTranscriptDelta,
	"user_transcript_delta":                             KindUserTranscriptDelta,

	"conversation.item.input_audio_transcription.completed": KindUserTranscriptCompleted,
	"input_audio_transcription.completed":                   KindUserTranscriptCompleted,
	"user_transcript_completed":                             KindUserTranscriptCompleted,

	"response.audio_transcript.delta":        KindAgentTranscriptDelta,
	"response.output_audio_transcript.delta": KindAgentTranscriptDelta,
	"response.audio.transcript.delta":        KindAgentTranscriptDelta,
	"response.text.delta":                    KindAgentTranscriptDelta,
	"response.output_text.delta":             KindAgentTranscriptDelta,
	"transcript_delta":                       KindAgentTranscriptDelta,

	"response.audio_transcript.done":        KindAgentTranscriptDone,
	"response.output_audio_transcript.done": KindAgentTranscriptDone,
	"response.audio.transcript.done":        KindAgentTranscriptDone,
	"response.text.done":                    KindAgentTranscriptDone,
	"response.output_text.done":             KindAgentTranscriptDone,
	"transcript_done":                       KindAgentTranscriptDone,

	"response.function_call_arguments.done": KindToolCall,
	"function_call":                         KindToolCall,
	"tool_call":                             KindToolCall,
	"agent_tool_start":                      KindToolCall,

	"error":           KindError,
	"transport_error": KindError,

	"close":          KindClosed,
	"closed":         KindClosed,
	"session.closed": KindClosed,
	"disconnected":   KindClosed,
}

// ParseKind maps a wire event name to its kind. ok is false for events the
// session does not act on.
func ParseKind(name string) (Kind, bool) {
	k, ok := wireNames[name]
	return k, ok
}
