package training

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"helmhud/internal/profile"
)

// questFile is the on-disk quest catalog shape: quest IDs mapped to the
// pipe-separated definition format accepted by ParseCustom.
type questFile struct {
	Quests map[string]string `yaml:"quests"`
}

// LoadFile parses a YAML quest catalog file. Entries replace the custom
// catalog wholesale; built-in quests are unaffected.
func LoadFile(path string, now time.Time) (map[profile.QuestID]Quest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quest file: %w", err)
	}

	var qf questFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("failed to parse quest file: %w", err)
	}

	out := make(map[profile.QuestID]Quest, len(qf.Quests))
	for id, definition := range qf.Quests {
		q, err := ParseCustom(profile.QuestID(id), definition, "", now)
		if err != nil {
			return nil, fmt.Errorf("quest %s: %w", id, err)
		}
		out[q.ID] = q
	}
	return out, nil
}
