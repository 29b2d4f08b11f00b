package tools

import "realtime-commerce-assistant/internal/service/transport"

// Tool names the assistant may invoke.
const (
	SendProductMetadata = "send_product_metadata"
	ShowMultimedia      = "show_multimedia"
	Show3D              = "show_3d"
	HideMultimedia      = "hide_multimedia"
	Hide3D              = "hide_3d"
)

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

var skuProp = map[string]any{"type": "string", "description": "Catalog SKU"}

// Definitions returns the tool declarations sent when a session starts.
func Definitions() []transport.ToolDefinition {
	return []transport.ToolDefinition{
		{
			Name:        SendProductMetadata,
			Description: "Show product cards for the products you are recommending. Call this whenever you mention specific products.",
			Parameters: object(map[string]any{
				"skus": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"reasoning": map[string]any{"type": "string", "description": "Why these products fit the request"},
			}, "skus"),
		},
		{
			Name:        ShowMultimedia,
			Description: "Display an image, video or AR view of a product.",
			Parameters: object(map[string]any{
				"sku": skuProp,
				"media_type": map[string]any{
					"type": "string",
					"enum": []string{"image", "video", "3d", "ar"},
				},
				"index": map[string]any{"type": "integer", "description": "Image index for galleries"},
			}, "sku"),
		},
		{
			Name:        Show3D,
			Description: "Open the interactive 3D viewer for a product.",
			Parameters:  object(map[string]any{"sku": skuProp}, "sku"),
		},
		{
			Name:        HideMultimedia,
			Description: "Close the multimedia viewer.",
			Parameters:  object(map[string]any{"sku": skuProp, "reason": map[string]any{"type": "string"}}),
		},
		{
			Name:        Hide3D,
			Description: "Close the 3D viewer.",
			Parameters:  object(map[string]any{"sku": skuProp, "reason": map[string]any{"type": "string"}}),
		},
	}
}
