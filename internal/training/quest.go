// Package training implements the scripted training quest system: a catalog
// of built-in and custom quests, per-user progress tracking gated by
// detection type and content verification, and quest chaining.
package training

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"helmhud/internal/chain"
	"helmhud/internal/profile"
)

// Detection is the action type a quest watches for.
type Detection string

const (
	DetectMessage  Detection = "message"
	DetectStarcode Detection = "starcode"
	DetectDefine   Detection = "define"
	DetectShield   Detection = "shield"
	DetectBless    Detection = "bless"
)

// NextComplete is the sentinel Next value marking the end of a quest chain.
const NextComplete = "complete"

// Quest is one training task. Quests are immutable once created; per-user
// progress lives on the profile, not here.
type Quest struct {
	ID        profile.QuestID
	Name      string
	Task      string
	Meaning   string
	Chain     []string
	Detection Detection
	Reward    int
	Count     int
	Next      profile.QuestID
	CreatedBy profile.UserID
	CreatedAt time.Time
}

// ChainKey returns the quest's required chain as a flattened key.
func (q Quest) ChainKey() chain.Key {
	return chain.KeyOf(q.Chain)
}

// Defaults returns the built-in quest chain q1 → q2 → q3 → q4 → complete.
func Defaults() map[profile.QuestID]Quest {
	return map[profile.QuestID]Quest{
		"q1": {
			ID:        "q1",
			Name:      "Brick in the Pattern",
			Chain:     []string{"⚙️", "🧱"},
			Task:      "Type and register this StarCode",
			Detection: DetectStarcode,
			Meaning:   "Foundation and structure",
			Reward:    3,
			Count:     1,
			Next:      "q2",
		},
		"q2": {
			ID:        "q2",
			Name:      "Light in the Archive",
			Chain:     []string{"🕯️", "📖"},
			Task:      "Define both emojis",
			Detection: DetectDefine,
			Meaning:   "Illumination of memory",
			Reward:    5,
			Count:     2,
			Next:      "q3",
		},
		"q3": {
			ID:        "q3",
			Name:      "Guard the Flame",
			Chain:     []string{"🔥", "🛡️"},
			Task:      "Shield any chain using the shield reaction",
			Detection: DetectShield,
			Reward:    5,
			Count:     1,
			Next:      "q4",
		},
		"q4": {
			ID:        "q4",
			Name:      "Echo of Hope",
			Chain:     []string{"🌈", "🕊️"},
			Task:      "Bless this chain",
			Detection: DetectBless,
			Reward:    10,
			Count:     1,
			Next:      NextComplete,
		},
	}
}

// FirstQuest is where fresh training starts.
const FirstQuest = profile.QuestID("q1")

var validDetections = map[Detection]bool{
	DetectMessage:  true,
	DetectStarcode: true,
	DetectDefine:   true,
	DetectShield:   true,
	DetectBless:    true,
}

// ParseCustom parses a custom quest definition in the pipe-separated command
// form: "name | task | emoji_chain | reward | detection_type | count". Count
// is optional and defaults to 1. Shield quests need no chain; every other
// detection type requires at least two emoji.
func ParseCustom(id profile.QuestID, definition string, createdBy profile.UserID, now time.Time) (Quest, error) {
	parts := strings.Split(definition, " | ")
	if len(parts) < 5 {
		return Quest{}, fmt.Errorf("quest definition needs name | task | chain | reward | detection [| count]")
	}

	reward, err := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err != nil {
		return Quest{}, fmt.Errorf("quest reward must be a number: %w", err)
	}

	count := 1
	if len(parts) >= 6 {
		count, err = strconv.Atoi(strings.TrimSpace(parts[5]))
		if err != nil {
			return Quest{}, fmt.Errorf("quest count must be a number: %w", err)
		}
	}

	detection := Detection(strings.ToLower(strings.TrimSpace(parts[4])))
	if !validDetections[detection] {
		return Quest{}, fmt.Errorf("invalid detection type %q", detection)
	}

	tokens := chain.ExtractEmoji(parts[2])
	if len(tokens) < chain.MinChainLength && detection != DetectShield {
		return Quest{}, chain.ErrInvalidChain
	}

	return Quest{
		ID:        id,
		Name:      strings.TrimSpace(parts[0]),
		Task:      strings.TrimSpace(parts[1]),
		Chain:     tokens,
		Detection: detection,
		Reward:    reward,
		Count:     count,
		Next:      NextComplete,
		CreatedBy: createdBy,
		CreatedAt: now,
	}, nil
}

// Catalog resolves quest IDs against the built-in set and custom quests.
type Catalog struct {
	defaults map[profile.QuestID]Quest
	custom   map[profile.QuestID]Quest
}

// NewCatalog returns a catalog seeded with the built-in quests.
func NewCatalog() *Catalog {
	return &Catalog{
		defaults: Defaults(),
		custom:   make(map[profile.QuestID]Quest),
	}
}

// Lookup resolves a quest ID, custom quests taking precedence over built-ins
// with the same ID.
func (c *Catalog) Lookup(id profile.QuestID) (Quest, bool) {
	if q, ok := c.custom[id]; ok {
		return q, true
	}
	q, ok := c.defaults[id]
	return q, ok
}

// AddCustom installs a custom quest.
func (c *Catalog) AddCustom(q Quest) {
	c.custom[q.ID] = q
}

// Custom returns every custom quest keyed by ID.
func (c *Catalog) Custom() map[profile.QuestID]Quest {
	out := make(map[profile.QuestID]Quest, len(c.custom))
	for id, q := range c.custom {
		out[id] = q
	}
	return out
}

// ReplaceCustom swaps the whole custom quest set. Used by snapshot load and
// catalog file reload.
func (c *Catalog) ReplaceCustom(quests map[profile.QuestID]Quest) {
	c.custom = make(map[profile.QuestID]Quest, len(quests))
	for id, q := range quests {
		c.custom[id] = q
	}
}
