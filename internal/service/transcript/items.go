package transcript

import (
	"strings"
	"sync"
)

// Items accumulates user transcription fragments per conversation item.
// User partials are forwarded unthrottled; only accumulation is shared with
// the agent path.
type Items struct {
	mu    sync.Mutex
	items map[string]*strings.Builder
}

func NewItems() *Items {
	return &Items{items: make(map[string]*strings.Builder)}
}

// Append adds a fragment to itemID and returns the accumulated text.
func (i *Items) Append(itemID, fragment string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	b, ok := i.items[itemID]
	if !ok {
		b = &strings.Builder{}
		i.items[itemID] = b
	}
	b.WriteString(fragment)
	return b.String()
}

// Complete discards itemID and returns the final text: full when not empty,
// otherwise whatever accumulated.
func (i *Items) Complete(itemID, full string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	b, ok := i.items[itemID]
	delete(i.items, itemID)
	if full != "" || !ok {
		return full
	}
	return b.String()
}

// Reset drops every item.
func (i *Items) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = make(map[string]*strings.Builder)
}

func (i *Items) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}
