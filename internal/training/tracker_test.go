package training

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"helmhud/internal/influence"
	"helmhud/internal/profile"
)

func newTestTracker() (*Tracker, *profile.Table, *influence.Ledger) {
	profiles := profile.NewTable()
	ledger := influence.NewLedger(profiles, zap.NewNop())
	tracker := NewTracker(NewCatalog(), profiles, ledger, zap.NewNop())
	return tracker, profiles, ledger
}

func TestStartActivatesFirstQuest(t *testing.T) {
	tracker, profiles, _ := newTestTracker()

	q, ok := tracker.Start("alice")
	require.True(t, ok)
	assert.Equal(t, profile.QuestID("q1"), q.ID)
	assert.Equal(t, profile.QuestID("q1"), profiles.Get("alice").ActiveQuest)
}

func TestRecordIgnoresWrongActionType(t *testing.T) {
	tracker, _, ledger := newTestTracker()
	tracker.Start("alice")

	// q1 is a starcode quest; a message action must not consume progress.
	completion, progress := tracker.Record("alice", Action{Type: DetectMessage, Text: "⚙️🧱"})
	assert.Nil(t, completion)
	assert.Nil(t, progress)
	assert.Equal(t, 0, ledger.Score("alice"))
}

func TestRecordIgnoresMismatchedContent(t *testing.T) {
	tracker, profiles, _ := newTestTracker()
	tracker.Start("alice")

	completion, progress := tracker.Record("alice", Action{Type: DetectStarcode, Chain: "🔥💧"})
	assert.Nil(t, completion)
	assert.Nil(t, progress)
	assert.Equal(t, 0, profiles.Get("alice").QuestProgress["q1"])
}

func TestQuestChainProgression(t *testing.T) {
	tracker, profiles, ledger := newTestTracker()
	tracker.Start("alice")

	// q1: register the required starcode.
	completion, _ := tracker.Record("alice", Action{Type: DetectStarcode, Chain: "⚙️🧱"})
	require.NotNil(t, completion)
	assert.Equal(t, profile.QuestID("q1"), completion.Quest.ID)
	assert.Equal(t, 3, completion.Reward)
	require.NotNil(t, completion.NextQuest)
	assert.Equal(t, profile.QuestID("q2"), completion.NextQuest.ID)
	assert.Equal(t, 3, ledger.Score("alice"))
	assert.Equal(t, []profile.QuestID{"q1"}, profiles.Get("alice").CompletedTrainings)

	// A second identical action must not re-award: q1 is no longer active.
	completion, _ = tracker.Record("alice", Action{Type: DetectStarcode, Chain: "⚙️🧱"})
	assert.Nil(t, completion)
	assert.Equal(t, 3, ledger.Score("alice"))

	// q2 needs two define actions on the required emoji.
	completion, progress := tracker.Record("alice", Action{Type: DetectDefine, Emoji: "🕯️"})
	assert.Nil(t, completion)
	require.NotNil(t, progress)
	assert.Equal(t, 1, progress.Current)
	assert.Equal(t, 2, progress.Needed)

	// Defining an unrelated emoji does not count.
	completion, progress = tracker.Record("alice", Action{Type: DetectDefine, Emoji: "🔥"})
	assert.Nil(t, completion)
	assert.Nil(t, progress)

	completion, _ = tracker.Record("alice", Action{Type: DetectDefine, Emoji: "📖"})
	require.NotNil(t, completion)
	assert.Equal(t, profile.QuestID("q3"), completion.NextQuest.ID)

	// q3: any shield action counts.
	completion, _ = tracker.Record("alice", Action{Type: DetectShield})
	require.NotNil(t, completion)
	assert.Equal(t, profile.QuestID("q4"), completion.NextQuest.ID)

	// q4: bless the exact chain; the chain then finishes.
	completion, _ = tracker.Record("alice", Action{Type: DetectBless, Chain: "🌈🕊️"})
	require.NotNil(t, completion)
	assert.Nil(t, completion.NextQuest)
	assert.True(t, completion.ChainComplete)
	assert.Equal(t, profile.QuestID(""), profiles.Get("alice").ActiveQuest)
	assert.Equal(t, 3+5+5+10, ledger.Score("alice"))
}

func TestMessageQuestVerification(t *testing.T) {
	tracker, profiles, ledger := newTestTracker()

	catalog := NewCatalog()
	catalog.AddCustom(Quest{
		ID:        "m1",
		Name:      "Speak the Pattern",
		Chain:     []string{"⚙️", "🧱"},
		Detection: DetectMessage,
		Reward:    4,
		Count:     1,
		Next:      NextComplete,
	})
	tracker = NewTracker(catalog, profiles, ledger, zap.NewNop())
	profiles.Get("bob").ActiveQuest = "m1"

	// The chain may appear anywhere in the message's extracted emoji.
	completion, _ := tracker.Record("bob", Action{Type: DetectMessage, Text: "look ⚙️🧱 done"})
	require.NotNil(t, completion)
	assert.Equal(t, 4, ledger.Score("bob"))

	// After completion the quest is inactive; repeats award nothing.
	completion, _ = tracker.Record("bob", Action{Type: DetectMessage, Text: "⚙️🧱"})
	assert.Nil(t, completion)
	assert.Equal(t, 4, ledger.Score("bob"))
}

func TestAssignQueuesBehindActiveQuest(t *testing.T) {
	tracker, profiles, _ := newTestTracker()
	tracker.Start("alice")

	tracker.catalog.AddCustom(Quest{
		ID:        "c1",
		Name:      "Custom",
		Chain:     []string{"🔥", "💧"},
		Detection: DetectStarcode,
		Reward:    2,
		Count:     1,
		Next:      NextComplete,
	})

	_, activeNow, ok := tracker.Assign("alice", "c1")
	require.True(t, ok)
	assert.False(t, activeNow)
	assert.Equal(t, []profile.QuestID{"c1"}, tracker.Assignments("alice"))

	// Complete q1..q4; the queued custom quest activates after the chain.
	tracker.Record("alice", Action{Type: DetectStarcode, Chain: "⚙️🧱"})
	tracker.Record("alice", Action{Type: DetectDefine, Emoji: "🕯️"})
	tracker.Record("alice", Action{Type: DetectDefine, Emoji: "📖"})
	tracker.Record("alice", Action{Type: DetectShield})
	completion, _ := tracker.Record("alice", Action{Type: DetectBless, Chain: "🌈🕊️"})
	require.NotNil(t, completion)
	require.NotNil(t, completion.NextQuest)
	assert.Equal(t, profile.QuestID("c1"), completion.NextQuest.ID)
	assert.False(t, completion.ChainComplete)
	assert.Empty(t, tracker.Assignments("alice"))
	assert.Equal(t, profile.QuestID("c1"), profiles.Get("alice").ActiveQuest)
}

func TestAssignActivatesImmediatelyWhenIdle(t *testing.T) {
	tracker, profiles, _ := newTestTracker()

	_, activeNow, ok := tracker.Assign("bob", "q3")
	require.True(t, ok)
	assert.True(t, activeNow)
	assert.Equal(t, profile.QuestID("q3"), profiles.Get("bob").ActiveQuest)
}

func TestRevokeAndSkip(t *testing.T) {
	tracker, profiles, _ := newTestTracker()
	tracker.Start("alice")

	assert.True(t, tracker.Revoke("alice"))
	assert.Equal(t, profile.QuestID(""), profiles.Get("alice").ActiveQuest)
	assert.False(t, tracker.Revoke("alice"))

	// Skip advances without reward.
	tracker.Start("alice")
	next, ok := tracker.Skip("alice")
	require.True(t, ok)
	require.NotNil(t, next)
	assert.Equal(t, profile.QuestID("q2"), next.ID)
	assert.Empty(t, profiles.Get("alice").CompletedTrainings)
}

func TestParseCustom(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("full definition", func(t *testing.T) {
		q, err := ParseCustom("c1", "Warrior Path | Use the chain | ⚔️🛡️ | 7 | starcode | 3", "walker", now)
		require.NoError(t, err)
		assert.Equal(t, "Warrior Path", q.Name)
		assert.Equal(t, []string{"⚔️", "🛡️"}, q.Chain)
		assert.Equal(t, 7, q.Reward)
		assert.Equal(t, DetectStarcode, q.Detection)
		assert.Equal(t, 3, q.Count)
	})

	t.Run("count defaults to one", func(t *testing.T) {
		q, err := ParseCustom("c2", "Name | Task | 🔥💧 | 5 | bless", "walker", now)
		require.NoError(t, err)
		assert.Equal(t, 1, q.Count)
	})

	t.Run("shield quests need no chain", func(t *testing.T) {
		q, err := ParseCustom("c3", "Guard | Shield something | - | 5 | shield", "walker", now)
		require.NoError(t, err)
		assert.Empty(t, q.Chain)
	})

	t.Run("rejects short chain", func(t *testing.T) {
		_, err := ParseCustom("c4", "Name | Task | 🔥 | 5 | message", "walker", now)
		assert.Error(t, err)
	})

	t.Run("rejects bad detection", func(t *testing.T) {
		_, err := ParseCustom("c5", "Name | Task | 🔥💧 | 5 | dance", "walker", now)
		assert.Error(t, err)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		_, err := ParseCustom("c6", "Name | Task", "walker", now)
		assert.Error(t, err)
	})
}
