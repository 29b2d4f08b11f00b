package openai

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"realtime-commerce-assistant/internal/service/transport"
)

type serverEvent struct {
	Type       string          `json:"type"`
	ItemID     string          `json:"item_id"`
	ResponseID string          `json:"response_id"`
	Delta      string          `json:"delta"`
	Transcript string          `json:"transcript"`
	Text       string          `json:"text"`
	CallID     string          `json:"call_id"`
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Item       *serverItem     `json:"item"`
	Error      *serverError    `json:"error"`
}

type serverItem struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decode parses one server frame. ok is false for frames the session ignores.
func decode(payload []byte) (transport.Event, bool) {
	var se serverEvent
	if err := json.Unmarshal(payload, &se); err != nil {
		log.Warn().Err(err).Str("component", "openai-transport").Msg("Dropping undecodable server event")
		return transport.Event{}, false
	}

	kind, ok := transport.ParseKind(se.Type)
	if !ok {
		return transport.Event{}, false
	}

	ev := transport.Event{
		Kind:       kind,
		ItemID:     se.ItemID,
		ResponseID: se.ResponseID,
		Raw:        json.RawMessage(payload),
	}

	switch kind {
	case transport.KindUserItemCreated:
		text, ok := userText(se.Item)
		if !ok {
			return transport.Event{}, false
		}
		ev.ItemID = se.Item.ID
		ev.Text = text
	case transport.KindUserTranscriptDelta, transport.KindAgentTranscriptDelta:
		ev.Text = se.Delta
	case transport.KindUserTranscriptCompleted, transport.KindAgentTranscriptDone:
		ev.Text = firstNonEmpty(se.Transcript, se.Text)
	case transport.KindToolCall:
		ev.ToolCall = &transport.ToolCall{
			CallID:    se.CallID,
			Name:      se.Name,
			Arguments: se.Arguments,
		}
	case transport.KindError:
		msg := "realtime backend error"
		if se.Error != nil && se.Error.Message != "" {
			msg = se.Error.Message
		}
		ev.Err = errors.New(msg)
	}
	return ev, true
}

// userText extracts the text of a user message item. Audio, assistant and
// function items are not user text.
func userText(item *serverItem) (string, bool) {
	if item == nil || item.Type != "message" || item.Role != "user" {
		return "", false
	}
	var parts []string
	for _, c := range item.Content {
		if c.Type == "input_text" || c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sessionUpdate(opts transport.Options, transcriptionModel string) map[string]any {
	session := map[string]any{
		"modalities":   []string{"text", "audio"},
		"instructions": opts.Instructions,
	}
	if opts.Voice != "" {
		session["voice"] = opts.Voice
	}
	if transcriptionModel != "" {
		transcription := map[string]any{"model": transcriptionModel}
		if opts.Language != "" {
			transcription["language"] = opts.Language
		}
		session["input_audio_transcription"] = transcription
	}
	if len(opts.Tools) > 0 {
		tools := make([]map[string]any, 0, len(opts.Tools))
		for _, td := range opts.Tools {
			tools = append(tools, map[string]any{
				"type":        "function",
				"name":        td.Name,
				"description": td.Description,
				"parameters":  td.Parameters,
			})
		}
		session["tools"] = tools
		session["tool_choice"] = "auto"
	}
	return map[string]any{
		"type":    "session.update",
		"session": session,
	}
}
