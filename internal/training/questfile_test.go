package training

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmhud/internal/profile"
)

func writeQuestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeQuestFile(t, `quests:
  c1: "Warrior Path | Use the chain | ⚔️🛡️ | 7 | starcode | 3"
  c2: "Guard Duty | Shield something | - | 5 | shield"
`)

	quests, err := LoadFile(path, time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.Len(t, quests, 2)

	q := quests[profile.QuestID("c1")]
	assert.Equal(t, "Warrior Path", q.Name)
	assert.Equal(t, []string{"⚔️", "🛡️"}, q.Chain)
	assert.Equal(t, 7, q.Reward)
	assert.Equal(t, 3, q.Count)

	assert.Equal(t, DetectShield, quests[profile.QuestID("c2")].Detection)
}

func TestLoadFileRejectsBadDefinition(t *testing.T) {
	path := writeQuestFile(t, `quests:
  broken: "Name | Task | 🔥 | 5 | dance"
`)
	_, err := LoadFile(path, time.Unix(1700000000, 0))
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), time.Unix(1700000000, 0))
	assert.Error(t, err)
}
