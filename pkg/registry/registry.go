package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ToggleDataPrefix prefixes a tag name in a prompt button's callback payload
const ToggleDataPrefix = "toggle:"

// MaxCallbackData is Telegram's limit for inline button callback data, in bytes
const MaxCallbackData = 64

// ToggleData encodes the callback payload of a tag button
func ToggleData(tag string) string {
	return ToggleDataPrefix + tag
}

// ErrUnknownTag is returned when a tag is not declared in the registry
var ErrUnknownTag = errors.New("unknown tag")

// Topic is a named destination: a forum topic (thread) inside the group chat
type Topic struct {
	Name     string `json:"name" mapstructure:"name"`
	ThreadID int    `json:"thread_id" mapstructure:"thread_id"`
}

// Registry maps tag names to destinations. It is immutable after New.
type Registry struct {
	topics   []Topic
	byName   map[string]Topic
	fallback Topic
}

// New builds a registry from topics in declaration order plus the default
// destination that receives every dispatched file.
func New(topics []Topic, defaultTopic Topic) (*Registry, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	if defaultTopic.ThreadID <= 0 {
		return nil, fmt.Errorf("default topic: thread_id must be positive, got %d", defaultTopic.ThreadID)
	}

	r := &Registry{
		topics:   make([]Topic, 0, len(topics)),
		byName:   make(map[string]Topic, len(topics)),
		fallback: defaultTopic,
	}

	for i, t := range topics {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("topic %d: name is required", i)
		}
		if name != t.Name {
			return nil, fmt.Errorf("topic %q: name must not have leading or trailing spaces", t.Name)
		}
		if t.ThreadID <= 0 {
			return nil, fmt.Errorf("topic %q: thread_id must be positive, got %d", name, t.ThreadID)
		}
		if n := len(ToggleDataPrefix) + len(name); n > MaxCallbackData {
			return nil, fmt.Errorf("topic %q: name too long for callback data (%d > %d bytes)", name, n, MaxCallbackData)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("topic %q: duplicate name", name)
		}
		r.byName[name] = t
		r.topics = append(r.topics, t)
	}

	return r, nil
}

// Lookup resolves a tag to its destination
func (r *Registry) Lookup(tag string) (Topic, error) {
	t, ok := r.byName[tag]
	if !ok {
		return Topic{}, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	return t, nil
}

// Contains reports whether tag is declared
func (r *Registry) Contains(tag string) bool {
	_, ok := r.byName[tag]
	return ok
}

// Tags returns tag names in declaration order
func (r *Registry) Tags() []string {
	names := make([]string, len(r.topics))
	for i, t := range r.topics {
		names[i] = t.Name
	}
	return names
}

// Topics returns a copy of the declared topics in order
func (r *Registry) Topics() []Topic {
	out := make([]Topic, len(r.topics))
	copy(out, r.topics)
	return out
}

// Default returns the always-included destination
func (r *Registry) Default() Topic {
	return r.fallback
}

// Len returns the number of declared tags
func (r *Registry) Len() int {
	return len(r.topics)
}
