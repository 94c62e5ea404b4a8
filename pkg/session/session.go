package session

import (
	"time"
)

// AudioRef is the audio snapshot captured at upload time. It is forwarded by
// file id and never re-fetched.
type AudioRef struct {
	FileID    string `json:"file_id"`
	Title     string `json:"title,omitempty"`
	Performer string `json:"performer,omitempty"`
	Duration  int    `json:"duration,omitempty"`
}

// Session links one pending upload to the tags a user has selected so far
type Session struct {
	UserID    int64
	ChatID    int64
	Audio     AudioRef
	Selected  map[string]struct{}
	CreatedAt time.Time
}

// IsSelected reports whether tag is toggled on
func (s Session) IsSelected(tag string) bool {
	_, ok := s.Selected[tag]
	return ok
}

// SelectedIn returns the selected tags following the given order. Tags in
// the selection but missing from order are dropped.
func (s Session) SelectedIn(order []string) []string {
	out := make([]string, 0, len(s.Selected))
	for _, tag := range order {
		if s.IsSelected(tag) {
			out = append(out, tag)
		}
	}
	return out
}

// clone returns a deep copy so callers never share the store's selection map
func (s *Session) clone() Session {
	c := *s
	c.Selected = make(map[string]struct{}, len(s.Selected))
	for tag := range s.Selected {
		c.Selected[tag] = struct{}{}
	}
	return c
}
