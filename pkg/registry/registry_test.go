package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTopics() []Topic {
	return []Topic{
		{Name: "Rock", ThreadID: 8},
		{Name: "Jazz", ThreadID: 10},
		{Name: "Pop", ThreadID: 12},
	}
}

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r, err := New(testTopics(), Topic{Name: "All", ThreadID: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, r.Len())
		assert.Equal(t, Topic{Name: "All", ThreadID: 2}, r.Default())
	})

	tests := []struct {
		name    string
		topics  []Topic
		def     Topic
		errPart string
	}{
		{"no topics", nil, Topic{ThreadID: 2}, "at least one topic"},
		{"bad default", testTopics(), Topic{}, "default topic"},
		{"empty name", []Topic{{Name: " ", ThreadID: 1}}, Topic{ThreadID: 2}, "name is required"},
		{"padded name", []Topic{{Name: "Rock ", ThreadID: 1}}, Topic{ThreadID: 2}, "leading or trailing"},
		{"zero thread", []Topic{{Name: "Rock"}}, Topic{ThreadID: 2}, "thread_id must be positive"},
		{"duplicate", []Topic{{Name: "Rock", ThreadID: 1}, {Name: "Rock", ThreadID: 3}}, Topic{ThreadID: 2}, "duplicate"},
		{"too long", []Topic{{Name: strings.Repeat("x", 60), ThreadID: 1}}, Topic{ThreadID: 2}, "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.topics, tt.def)
			assert.Nil(t, r)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestLookup(t *testing.T) {
	r, err := New(testTopics(), Topic{Name: "All", ThreadID: 2})
	require.NoError(t, err)

	topic, err := r.Lookup("Jazz")
	require.NoError(t, err)
	assert.Equal(t, 10, topic.ThreadID)

	_, err = r.Lookup("Polka")
	assert.True(t, errors.Is(err, ErrUnknownTag))
	assert.False(t, r.Contains("Polka"))
	assert.True(t, r.Contains("Pop"))
}

func TestTagsKeepDeclarationOrder(t *testing.T) {
	r, err := New(testTopics(), Topic{Name: "All", ThreadID: 2})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.Equal(t, []string{"Rock", "Jazz", "Pop"}, r.Tags())
	}

	topics := r.Topics()
	topics[0].Name = "mutated"
	assert.Equal(t, "Rock", r.Topics()[0].Name)
}

func TestCyrillicNamesFitCallbackData(t *testing.T) {
	_, err := New([]Topic{{Name: "Космо музыка", ThreadID: 14}}, Topic{ThreadID: 2})
	assert.NoError(t, err)
}

func TestToggleDataFitsLimit(t *testing.T) {
	longest := strings.Repeat("x", MaxCallbackData-len(ToggleDataPrefix))
	r, err := New([]Topic{{Name: longest, ThreadID: 3}}, Topic{ThreadID: 2})
	require.NoError(t, err)

	for _, tag := range r.Tags() {
		assert.LessOrEqual(t, len(ToggleData(tag)), MaxCallbackData)
	}
	assert.Equal(t, "toggle:Rock", ToggleData("Rock"))

	_, err = New([]Topic{{Name: longest + "x", ThreadID: 3}}, Topic{ThreadID: 2})
	assert.Error(t, err)
}
