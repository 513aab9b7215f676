package profile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestTableGetCreatesLazily(t *testing.T) {
	table := NewTable()

	_, ok := table.Lookup("alice")
	assert.False(t, ok)

	p := table.Get("alice")
	assert.Equal(t, UserID("alice"), p.ID)
	assert.Equal(t, 1, table.Len())

	// Repeated Get returns the same profile.
	p.ReactionCount = 3
	assert.Equal(t, 3, table.Get("alice").ReactionCount)
}

func TestSortedEmojiIsStable(t *testing.T) {
	p := New("alice")
	for _, e := range []string{"💧", "🔥", "🌿", "🔥"} {
		p.RecordEmoji(e)
	}

	assert.Equal(t, 3, p.UniqueEmojiCount())
	first := p.SortedEmoji()
	if diff := cmp.Diff(first, p.SortedEmoji()); diff != "" {
		t.Errorf("ordering not stable (-want +got):\n%s", diff)
	}

	// The persisted list form rebuilds the same set.
	restored := New("alice")
	for _, e := range first {
		restored.RecordEmoji(e)
	}
	assert.Equal(t, p.UniqueEmojiCount(), restored.UniqueEmojiCount())
}
