package models

// MediaType is the kind of multimedia a SHOW_MULTIMEDIA event carries.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	Media3D    MediaType = "3d"
	MediaAR    MediaType = "ar"
)

// MultimediaContent is the payload of SHOW_MULTIMEDIA.
type MultimediaContent struct {
	Type        MediaType `json:"type"`
	URL         string    `json:"url"`
	SKU         string    `json:"sku"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Gallery     []string  `json:"gallery,omitempty"`
}

// ThreeDContent is the payload of SHOW_3D.
type ThreeDContent struct {
	SKU         string `json:"sku"`
	Title       string `json:"title"`
	ModelURL    string `json:"modelUrl"`
	PosterURL   string `json:"posterUrl,omitempty"`
	ARURL       string `json:"arUrl,omitempty"`
	ARSupported bool   `json:"arSupported"`
}

// HideContent is the payload of HIDE_3D and HIDE_MULTIMEDIA.
type HideContent struct {
	SKU    string `json:"sku,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// UIUpdate is the payload of UI_UPDATE.
type UIUpdate struct {
	Component string         `json:"component"`
	State     map[string]any `json:"state,omitempty"`
}

// UserInteraction is the payload of USER_INTERACTION.
type UserInteraction struct {
	Action string         `json:"action"`
	Target string         `json:"target,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}
