package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"realtime-commerce-assistant/internal/eventbus"
	"realtime-commerce-assistant/internal/models"
	"realtime-commerce-assistant/internal/observability/logging"
	"realtime-commerce-assistant/internal/observability/metrics"
	"realtime-commerce-assistant/internal/service/transport"
)

// Catalog resolves SKUs to products.
type Catalog interface {
	Lookup(sku string) (models.Product, bool)
}

// Emitter publishes display events.
type Emitter interface {
	Emit(ctx context.Context, t eventbus.Type, payload any, opts eventbus.EmitOptions) eventbus.Event
}

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrUnknownSKU  = errors.New("unknown sku")
	ErrNoMedia     = errors.New("product has no media of the requested type")
)

// Result is the outcome of one tool invocation.
type Result struct {
	// Output is returned to the assistant so it can continue the response.
	Output string
	// Metadata is set for product recommendations.
	Metadata *models.ProductMetadata
	Err      error
}

// Handler executes tool calls for one session.
type Handler struct {
	catalog Catalog
	bus     Emitter
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewHandler creates a handler. bus may be nil, in which case display tools
// succeed without emitting.
func NewHandler(catalog Catalog, bus Emitter, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Handler{
		catalog: catalog,
		bus:     bus,
		metrics: m,
		logger:  logging.WithComponent("tools"),
	}
}

// WithLogger returns a copy of h logging through l.
func (h *Handler) WithLogger(l zerolog.Logger) *Handler {
	c := *h
	c.logger = l
	return &c
}

// Handle runs call. Failures are reported in the Result, never panicked or
// propagated; a malformed call only abandons that invocation.
func (h *Handler) Handle(ctx context.Context, call transport.ToolCall) Result {
	var res Result
	switch call.Name {
	case SendProductMetadata:
		res = h.productMetadata(call)
	case ShowMultimedia:
		res = h.showMultimedia(ctx, call)
	case Show3D:
		res = h.show3D(ctx, call)
	case HideMultimedia:
		res = h.hide(ctx, call, eventbus.HideMultimedia)
	case Hide3D:
		res = h.hide(ctx, call, eventbus.Hide3D)
	default:
		res = failure(fmt.Errorf("%w: %s", ErrUnknownTool, call.Name))
	}

	outcome := "ok"
	if res.Err != nil {
		outcome = "error"
		var perr *ToolArgumentParseError
		switch {
		case errors.As(res.Err, &perr):
			outcome = "parse_error"
		case errors.Is(res.Err, ErrUnknownTool):
			outcome = "unknown_tool"
		}
		h.logger.Warn().
			Err(res.Err).
			Str("tool", call.Name).
			Str("callId", call.CallID).
			Msg("Tool call failed")
	}
	h.metrics.RecordToolCall(call.Name, outcome)
	return res
}

type metadataArgs struct {
	SKUs      []string `json:"skus"`
	Reasoning string   `json:"reasoning"`
}

func (h *Handler) productMetadata(call transport.ToolCall) Result {
	var args metadataArgs
	if err := DecodeArguments(call.Arguments, &args); err != nil {
		return failure(&ToolArgumentParseError{Tool: call.Name, Err: err})
	}

	products := h.resolve(args.SKUs)
	resolved := make([]string, 0, len(products))
	for _, p := range products {
		resolved = append(resolved, p.SKU)
	}

	return Result{
		Output:   success(map[string]any{"products": resolved}),
		Metadata: &models.ProductMetadata{Products: products, Reasoning: args.Reasoning},
	}
}

// resolve looks up skus in order, dropping unknown and repeated ones.
func (h *Handler) resolve(skus []string) []models.Product {
	products := make([]models.Product, 0, len(skus))
	seen := make(map[string]bool, len(skus))
	for _, sku := range skus {
		p, ok := h.catalog.Lookup(sku)
		if !ok {
			h.unknownSKU(sku)
			continue
		}
		if seen[p.SKU] {
			continue
		}
		seen[p.SKU] = true
		products = append(products, p)
	}
	return products
}

func (h *Handler) unknownSKU(sku string) {
	h.metrics.UnknownSKUs.Inc()
	h.logger.Warn().Str("sku", sku).Msg("Unknown SKU referenced by assistant, skipping")
}

type multimediaArgs struct {
	SKU       string `json:"sku"`
	MediaType string `json:"media_type"`
	Index     int    `json:"index"`
}

func (h *Handler) showMultimedia(ctx context.Context, call transport.ToolCall) Result {
	var args multimediaArgs
	if err := DecodeArguments(call.Arguments, &args); err != nil {
		return failure(&ToolArgumentParseError{Tool: call.Name, Err: err})
	}
	p, ok := h.catalog.Lookup(args.SKU)
	if !ok {
		h.unknownSKU(args.SKU)
		return failure(fmt.Errorf("%w: %s", ErrUnknownSKU, args.SKU))
	}

	mediaType := models.MediaType(strings.ToLower(args.MediaType))
	if mediaType == "" {
		mediaType = models.MediaImage
	}
	if mediaType == models.Media3D {
		// the 3D viewer has its own event
		return h.emit3D(ctx, p)
	}

	content := models.MultimediaContent{
		Type:  mediaType,
		SKU:   p.SKU,
		Title: p.Name,
	}
	switch mediaType {
	case models.MediaImage:
		if len(p.Media.Images) == 0 {
			return failure(fmt.Errorf("%w: %s has no images", ErrNoMedia, p.SKU))
		}
		idx := args.Index
		if idx < 0 || idx >= len(p.Media.Images) {
			idx = 0
		}
		content.URL = p.Media.Images[idx]
		content.Gallery = append([]string(nil), p.Media.Images...)
	case models.MediaVideo:
		content.URL = p.Media.Video
	case models.MediaAR:
		content.URL = p.Media.AR
	default:
		return failure(fmt.Errorf("%w: unsupported media type %q", ErrNoMedia, args.MediaType))
	}
	if content.URL == "" {
		return failure(fmt.Errorf("%w: %s has no %s", ErrNoMedia, p.SKU, mediaType))
	}
	content.Description = fmt.Sprintf("%s by %s", p.Name, p.Brand)

	h.publish(ctx, eventbus.ShowMultimedia, content)
	return Result{Output: success(map[string]any{"shown": string(mediaType), "sku": p.SKU})}
}

type skuArgs struct {
	SKU    string `json:"sku"`
	Reason string `json:"reason"`
}

func (h *Handler) show3D(ctx context.Context, call transport.ToolCall) Result {
	var args skuArgs
	if err := DecodeArguments(call.Arguments, &args); err != nil {
		return failure(&ToolArgumentParseError{Tool: call.Name, Err: err})
	}
	p, ok := h.catalog.Lookup(args.SKU)
	if !ok {
		h.unknownSKU(args.SKU)
		return failure(fmt.Errorf("%w: %s", ErrUnknownSKU, args.SKU))
	}
	return h.emit3D(ctx, p)
}

func (h *Handler) emit3D(ctx context.Context, p models.Product) Result {
	if p.Media.Model3D == "" {
		return failure(fmt.Errorf("%w: %s has no 3D model", ErrNoMedia, p.SKU))
	}
	content := models.ThreeDContent{
		SKU:         p.SKU,
		Title:       p.Name,
		ModelURL:    p.Media.Model3D,
		ARURL:       p.Media.AR,
		ARSupported: p.Media.AR != "",
	}
	if len(p.Media.Images) > 0 {
		content.PosterURL = p.Media.Images[0]
	}
	h.publish(ctx, eventbus.Show3D, content)
	return Result{Output: success(map[string]any{"shown": "3d", "sku": p.SKU})}
}

func (h *Handler) hide(ctx context.Context, call transport.ToolCall, t eventbus.Type) Result {
	var args skuArgs
	// hide tools take no required arguments; a blank payload means {}
	if !blankArguments(call.Arguments) {
		if err := DecodeArguments(call.Arguments, &args); err != nil {
			return failure(&ToolArgumentParseError{Tool: call.Name, Err: err})
		}
	}
	h.publish(ctx, t, models.HideContent{SKU: args.SKU, Reason: args.Reason})
	return Result{Output: success(nil)}
}

func (h *Handler) publish(ctx context.Context, t eventbus.Type, payload any) {
	if h.bus == nil {
		return
	}
	h.bus.Emit(ctx, t, payload, eventbus.EmitOptions{Source: "session"})
}

func success(fields map[string]any) string {
	out := map[string]any{"status": "ok"}
	for k, v := range fields {
		out[k] = v
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func failure(err error) Result {
	data, _ := json.Marshal(map[string]any{"status": "error", "error": err.Error()})
	return Result{Output: string(data), Err: err}
}
