package transport

import "testing"

func TestParseKind(t *testing.T) {
	tests := []struct {
		name   string
		want   Kind
		wantOK bool
	}{
		{"session.created", KindSessionCreated, true},
		{"input_audio_buffer.speech_started", KindSpeechStarted, true},
		{"input_audio_buffer.speech_stopped", KindSpeechStopped, true},
		{"conversation.item.created", KindUserItemCreated, true},
		{"conversation.item.added", KindUserItemCreated, true},
		{"conversation.item.input_audio_transcription.delta", KindUserTranscriptDelta, true},
		{"conversation.item.input_audio_transcription.completed", KindUserTranscriptCompleted, true},
		{"input_audio_transcription.completed", KindUserTranscriptCompleted, true},
		{"response.audio_transcript.delta", KindAgentTranscriptDelta, true},
		{"response.output_audio_transcript.delta", KindAgentTranscriptDelta, true},
		{"response.audio.transcript.delta", KindAgentTranscriptDelta, true},
		{"response.text.delta", KindAgentTranscriptDelta, true},
		{"response.output_text.delta", KindAgentTranscriptDelta, true},
		{"response.audio_transcript.done", KindAgentTranscriptDone, true},
		{"response.output_text.done", KindAgentTranscriptDone, true},
		{"response.function_call_arguments.done", KindToolCall, true},
		{"error", KindError, true},
		{"session.closed", KindClosed, true},
		{"close", KindClosed, true},
		{"rate_limits.updated", KindUnknown, false},
		{"", KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseKind(tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseKind(%q) = (%v, %v), want (%v, %v)", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if KindAgentTranscriptDelta.String() != "agent_transcript_delta" {
		t.Errorf("unexpected name %q", KindAgentTranscriptDelta.String())
	}
	if KindUserItemCreated.String() != "user_item_created" {
		t.Errorf("unexpected name %q", KindUserItemCreated.String())
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("expected unknown for out-of-range kind")
	}
}
