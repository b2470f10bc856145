package share

import (
	"regexp"
	"slices"
	"sync"

	"github.com/hazyhaar/weslplay/horosafe"
)

// RootPath is the location of the un-shared state.
const RootPath = "/"

var sharedPath = regexp.MustCompile(`^/s/([a-f0-9]+)$`)

// PathFor returns the location of a shared snapshot.
func PathFor(handle string) string { return "/s/" + handle }

// HandleFromPath extracts the handle of a /s/<hex> location.
func HandleFromPath(path string) (string, bool) {
	m := sharedPath.FindStringSubmatch(path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ValidHandle reports whether h has the shape of a snapshot handle.
func ValidHandle(h string) bool { return horosafe.IsHex(h) }

// Entry is one navigation history entry. State is nil for the un-shared
// root, a handle string for a location that still has to be fetched, or an
// inline snapshot (any JSON-shaped value; it is validated before use).
type Entry struct {
	Path  string `json:"path"`
	State any    `json:"state"`
}

// History is a browser-style navigation stack. Pushing drops every entry
// ahead of the current one. Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	entries []Entry
	index   int
}

// NewHistory returns a history positioned on the root.
func NewHistory() *History {
	return &History{entries: []Entry{{Path: RootPath}}}
}

// Push adds e after the current entry and moves to it.
func (h *History) Push(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries[:h.index+1], e)
	h.index = len(h.entries) - 1
}

// Replace overwrites the state of the current entry.
func (h *History) Replace(state any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.index].State = state
}

// Current returns the current entry.
func (h *History) Current() Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[h.index]
}

// Back moves one entry back. ok is false at the first entry.
func (h *History) Back() (e Entry, ok bool) {
	return h.Go(-1)
}

// Forward moves one entry forward. ok is false at the last entry.
func (h *History) Forward() (e Entry, ok bool) {
	return h.Go(1)
}

// Go moves delta entries and returns the new current entry.
func (h *History) Go(delta int) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := h.index + delta
	if i < 0 || i >= len(h.entries) {
		return Entry{}, false
	}
	h.index = i
	return h.entries[i], true
}

// Entries returns a copy of the stack and the current position.
func (h *History) Entries() ([]Entry, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries), h.index
}
