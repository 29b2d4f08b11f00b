package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"realtime-commerce-assistant/internal/eventbus"
	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/transport"
)

type stubCatalog map[string]models.Product

func (c stubCatalog) Lookup(sku string) (models.Product, bool) {
	p, ok := c[sku]
	return p, ok
}

type emitted struct {
	typ     eventbus.Type
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(ctx context.Context, t eventbus.Type, payload any, opts eventbus.EmitOptions) eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{t, payload})
	return eventbus.Event{Type: t, Payload: payload}
}

func testCatalog() stubCatalog {
	return stubCatalog{
		"A": {SKU: "A", Name: "Alpha", Brand: "Acme", Media: models.Media{
			Images:  []string{"a0.jpg", "a1.jpg"},
			Video:   "a.mp4",
			Model3D: "a.glb",
			AR:      "a.usdz",
		}},
		"B": {SKU: "B", Name: "Beta", Brand: "Acme"},
	}
}

func newTestHandler() (*Handler, *recordingEmitter, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	em := &recordingEmitter{}
	return NewHandler(testCatalog(), em, m), em, m
}

func TestHandle_ProductMetadataDropsUnknownSKUs(t *testing.T) {
	h, em, m := newTestHandler()

	res := h.Handle(context.Background(), transport.ToolCall{
		CallID:    "c1",
		Name:      SendProductMetadata,
		Arguments: `{"skus":["A","B","Z"],"reasoning":"good fit"}`,
	})
	if res.Err != nil {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Metadata == nil {
		t.Fatal("expected metadata")
	}
	var got []string
	for _, p := range res.Metadata.Products {
		got = append(got, p.SKU)
	}
	if strings.Join(got, ",") != "A,B" {
		t.Errorf("expected [A B], got %v", got)
	}
	if res.Metadata.Reasoning != "good fit" {
		t.Errorf("unexpected reasoning %q", res.Metadata.Reasoning)
	}
	if v := testutil.ToFloat64(m.UnknownSKUs); v != 1 {
		t.Errorf("expected 1 unknown sku, got %v", v)
	}
	if len(em.events) != 0 {
		t.Error("metadata must not go through the bus")
	}
}

func TestHandle_ProductMetadataAllUnknownStillSucceeds(t *testing.T) {
	h, _, _ := newTestHandler()
	res := h.Handle(context.Background(), transport.ToolCall{
		Name:      SendProductMetadata,
		Arguments: map[string]any{"skus": []any{"X", "Y"}},
	})
	if res.Err != nil || res.Metadata == nil || len(res.Metadata.Products) != 0 {
		t.Errorf("expected empty successful result, got %+v", res)
	}
}

func TestHandle_MalformedArgumentsAbandonsCall(t *testing.T) {
	h, em, m := newTestHandler()

	res := h.Handle(context.Background(), transport.ToolCall{Name: Show3D, Arguments: `{"sku":`})
	var perr *ToolArgumentParseError
	if !errors.As(res.Err, &perr) {
		t.Fatalf("expected ToolArgumentParseError, got %v", res.Err)
	}
	if len(em.events) != 0 {
		t.Error("expected nothing emitted")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(res.Output), &out); err != nil || out["status"] != "error" {
		t.Errorf("expected error output for the assistant, got %q", res.Output)
	}
	if v := testutil.ToFloat64(m.ToolCalls.WithLabelValues(Show3D, "parse_error")); v != 1 {
		t.Errorf("expected parse_error recorded, got %v", v)
	}
}

func TestHandle_Show3D(t *testing.T) {
	h, em, _ := newTestHandler()

	res := h.Handle(context.Background(), transport.ToolCall{Name: Show3D, Arguments: `{"sku":"A"}`})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(em.events) != 1 || em.events[0].typ != eventbus.Show3D {
		t.Fatalf("expected one SHOW_3D event, got %+v", em.events)
	}
	content := em.events[0].payload.(models.ThreeDContent)
	if content.ModelURL != "a.glb" || !content.ARSupported || content.PosterURL != "a0.jpg" {
		t.Errorf("unexpected 3D content %+v", content)
	}

	res = h.Handle(context.Background(), transport.ToolCall{Name: Show3D, Arguments: `{"sku":"B"}`})
	if !errors.Is(res.Err, ErrNoMedia) {
		t.Errorf("expected ErrNoMedia for product without model, got %v", res.Err)
	}
}

func TestHandle_ShowMultimedia(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		wantType eventbus.Type
		wantURL  string
		wantErr  error
	}{
		{"image by index", `{"sku":"A","media_type":"image","index":1}`, eventbus.ShowMultimedia, "a1.jpg", nil},
		{"image index out of range", `{"sku":"A","index":9}`, eventbus.ShowMultimedia, "a0.jpg", nil},
		{"video", `{"sku":"A","media_type":"video"}`, eventbus.ShowMultimedia, "a.mp4", nil},
		{"ar", `{"sku":"A","media_type":"AR"}`, eventbus.ShowMultimedia, "a.usdz", nil},
		{"3d routes to viewer", `{"sku":"A","media_type":"3d"}`, eventbus.Show3D, "", nil},
		{"unknown sku", `{"sku":"Z"}`, "", "", ErrUnknownSKU},
		{"missing media", `{"sku":"B","media_type":"video"}`, "", "", ErrNoMedia},
		{"unsupported type", `{"sku":"A","media_type":"hologram"}`, "", "", ErrNoMedia},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, em, _ := newTestHandler()
			res := h.Handle(context.Background(), transport.ToolCall{Name: ShowMultimedia, Arguments: tt.args})

			if tt.wantErr != nil {
				if !errors.Is(res.Err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, res.Err)
				}
				if len(em.events) != 0 {
					t.Error("expected nothing emitted on failure")
				}
				return
			}
			if res.Err != nil {
				t.Fatalf("unexpected error: %v", res.Err)
			}
			if len(em.events) != 1 || em.events[0].typ != tt.wantType {
				t.Fatalf("expected one %s event, got %+v", tt.wantType, em.events)
			}
			if tt.wantURL != "" {
				content := em.events[0].payload.(models.MultimediaContent)
				if content.URL != tt.wantURL {
					t.Errorf("expected url %q, got %q", tt.wantURL, content.URL)
				}
			}
		})
	}
}

func TestHandle_HideAndUnknownTool(t *testing.T) {
	h, em, m := newTestHandler()

	h.Handle(context.Background(), transport.ToolCall{Name: HideMultimedia, Arguments: `{}`})
	h.Handle(context.Background(), transport.ToolCall{Name: Hide3D, Arguments: `{"sku":"A","reason":"user closed"}`})
	if len(em.events) != 2 || em.events[0].typ != eventbus.HideMultimedia || em.events[1].typ != eventbus.Hide3D {
		t.Fatalf("unexpected hide events %+v", em.events)
	}
	if hc := em.events[1].payload.(models.HideContent); hc.Reason != "user closed" {
		t.Errorf("unexpected hide payload %+v", hc)
	}

	res := h.Handle(context.Background(), transport.ToolCall{Name: "launch_rocket", Arguments: `{}`})
	if !errors.Is(res.Err, ErrUnknownTool) {
		t.Errorf("expected ErrUnknownTool, got %v", res.Err)
	}
	if v := testutil.ToFloat64(m.ToolCalls.WithLabelValues("launch_rocket", "unknown_tool")); v != 1 {
		t.Errorf("expected unknown_tool recorded, got %v", v)
	}
}

func TestHandle_HideWithoutArguments(t *testing.T) {
	h, em, m := newTestHandler()

	blanks := []any{nil, "", "  ", "null", []byte{}}
	for _, args := range blanks {
		res := h.Handle(context.Background(), transport.ToolCall{Name: HideMultimedia, CallID: "c1", Arguments: args})
		if res.Err != nil {
			t.Fatalf("args %#v: unexpected error %v", args, res.Err)
		}
		if !strings.Contains(res.Output, `"status":"ok"`) {
			t.Errorf("args %#v: unexpected output %s", args, res.Output)
		}
	}
	if len(em.events) != len(blanks) {
		t.Fatalf("expected %d hide events, got %d", len(blanks), len(em.events))
	}
	if hc := em.events[0].payload.(models.HideContent); hc != (models.HideContent{}) {
		t.Errorf("expected empty hide payload, got %+v", hc)
	}
	if v := testutil.ToFloat64(m.ToolCalls.WithLabelValues(HideMultimedia, "ok")); v != float64(len(blanks)) {
		t.Errorf("expected ok outcomes recorded, got %v", v)
	}

	res := h.Handle(context.Background(), transport.ToolCall{Name: Hide3D, Arguments: "[1]"})
	var perr *ToolArgumentParseError
	if !errors.As(res.Err, &perr) {
		t.Errorf("expected malformed hide arguments to fail parsing, got %v", res.Err)
	}
}

func TestHandle_WithRealBus(t *testing.T) {
	bus := eventbus.New(eventbus.WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())))
	var got models.ThreeDContent
	eventbus.SubscribeTyped(bus, eventbus.Show3D, func(ctx context.Context, c models.ThreeDContent, ev eventbus.Event) error {
		got = c
		return nil
	}, eventbus.SubscribeOptions{})

	h := NewHandler(testCatalog(), bus, metrics.NewMetrics(prometheus.NewRegistry()))
	h.Handle(context.Background(), transport.ToolCall{Name: Show3D, Arguments: map[string]any{"sku": "A"}})

	if got.SKU != "A" {
		t.Errorf("expected subscriber to receive SHOW_3D for A, got %+v", got)
	}
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
		if d.Parameters["type"] != "object" {
			t.Errorf("%s: expected object schema", d.Name)
		}
	}
	for _, want := range []string{SendProductMetadata, ShowMultimedia, Show3D, HideMultimedia, Hide3D} {
		if !names[want] {
			t.Errorf("missing definition for %s", want)
		}
	}
}
