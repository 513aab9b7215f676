package training

import (
	"strings"

	"go.uber.org/zap"

	"helmhud/internal/chain"
	"helmhud/internal/influence"
	"helmhud/internal/profile"
)

// Action carries the content of a detected action for quest verification.
// Text is set for message detections, Chain for starcode/bless, Emoji for
// define. Shield actions carry nothing.
type Action struct {
	Type  Detection
	Text  string
	Chain chain.Key
	Emoji string
}

// Completion reports a finished quest: the reward granted, the next quest
// activated (if any) and whether the whole chain finished.
type Completion struct {
	Quest         Quest
	Reward        int
	NextQuest     *Quest
	ChainComplete bool
}

// Progress reports a partial step toward a quest's required count.
type Progress struct {
	Quest   Quest
	Current int
	Needed  int
}

// Tracker drives per-user training state: verifying actions against the
// active quest, counting repetitions, awarding rewards and advancing the
// quest chain.
type Tracker struct {
	catalog     *Catalog
	profiles    *profile.Table
	ledger      *influence.Ledger
	assignments map[profile.UserID][]profile.QuestID
	logger      *zap.Logger
}

// NewTracker returns a tracker over the given catalog.
func NewTracker(catalog *Catalog, profiles *profile.Table, ledger *influence.Ledger, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		catalog:     catalog,
		profiles:    profiles,
		ledger:      ledger,
		assignments: make(map[profile.UserID][]profile.QuestID),
		logger:      logger,
	}
}

// Start begins training for user at the first built-in quest. Returns the
// activated quest.
func (t *Tracker) Start(user profile.UserID) (Quest, bool) {
	q, ok := t.catalog.Lookup(FirstQuest)
	if !ok {
		return Quest{}, false
	}
	t.profiles.Get(user).ActiveQuest = FirstQuest
	return q, true
}

// Assign queues a quest for user, activating it immediately when the user
// has no active quest. Returns the quest and whether it became active now.
func (t *Tracker) Assign(user profile.UserID, id profile.QuestID) (Quest, bool, bool) {
	q, ok := t.catalog.Lookup(id)
	if !ok {
		return Quest{}, false, false
	}
	p := t.profiles.Get(user)
	if p.ActiveQuest == "" {
		p.ActiveQuest = id
		return q, true, true
	}
	t.assignments[user] = append(t.assignments[user], id)
	return q, false, true
}

// Revoke clears the user's active quest and progress toward it. Returns
// false when no quest was active.
func (t *Tracker) Revoke(user profile.UserID) bool {
	p := t.profiles.Get(user)
	if p.ActiveQuest == "" {
		return false
	}
	delete(p.QuestProgress, p.ActiveQuest)
	p.ActiveQuest = ""
	return true
}

// Skip abandons the active quest without reward and advances to its Next
// (or the assignment queue). Returns the newly active quest, if any.
func (t *Tracker) Skip(user profile.UserID) (*Quest, bool) {
	p := t.profiles.Get(user)
	q, ok := t.catalog.Lookup(p.ActiveQuest)
	if !ok {
		return nil, false
	}
	delete(p.QuestProgress, q.ID)
	return t.advance(p, q), true
}

// Active returns the user's active quest.
func (t *Tracker) Active(user profile.UserID) (Quest, bool) {
	p := t.profiles.Get(user)
	if p.ActiveQuest == "" {
		return Quest{}, false
	}
	return t.catalog.Lookup(p.ActiveQuest)
}

// Record verifies an action against the user's active quest and advances the
// repetition counter on a match. A mismatched action never consumes
// progress. When the counter reaches the quest's required count the quest
// completes: the counter resets, the reward is granted, the quest is
// appended to the completed list and the chain advances.
func (t *Tracker) Record(user profile.UserID, action Action) (*Completion, *Progress) {
	p := t.profiles.Get(user)
	if p.ActiveQuest == "" {
		return nil, nil
	}
	quest, ok := t.catalog.Lookup(p.ActiveQuest)
	if !ok {
		return nil, nil
	}
	if quest.Detection != action.Type {
		return nil, nil
	}
	if !verify(quest, action) {
		return nil, nil
	}

	p.QuestProgress[quest.ID]++
	current := p.QuestProgress[quest.ID]
	if current < quest.Count {
		return nil, &Progress{Quest: quest, Current: current, Needed: quest.Count}
	}

	p.QuestProgress[quest.ID] = 0
	t.ledger.Award(user, quest.Reward, influence.ReasonQuestReward, quest.ChainKey(), false)
	p.CompletedTrainings = append(p.CompletedTrainings, quest.ID)

	completion := &Completion{Quest: quest, Reward: quest.Reward}
	completion.NextQuest = t.advance(p, quest)
	completion.ChainComplete = quest.Next == NextComplete && completion.NextQuest == nil

	t.logger.Info("training quest completed",
		zap.String("user", string(user)),
		zap.String("quest", string(quest.ID)),
		zap.Int("reward", quest.Reward))
	return completion, nil
}

// advance moves the user to the quest's successor, falling back to the
// assignment queue when the chain ends. Returns the newly active quest.
func (t *Tracker) advance(p *profile.Profile, finished Quest) *Quest {
	p.ActiveQuest = ""

	if finished.Next != "" && finished.Next != NextComplete {
		if next, ok := t.catalog.Lookup(finished.Next); ok {
			p.ActiveQuest = next.ID
			return &next
		}
	}

	queue := t.assignments[p.ID]
	if len(queue) > 0 {
		id := queue[0]
		t.assignments[p.ID] = queue[1:]
		if next, ok := t.catalog.Lookup(id); ok {
			p.ActiveQuest = next.ID
			return &next
		}
	}
	return nil
}

// verify applies the per-detection-type content rules.
func verify(q Quest, a Action) bool {
	required := string(q.ChainKey())
	switch a.Type {
	case DetectMessage:
		// The required chain must appear in the emoji extracted from the
		// message text.
		extracted := string(chain.KeyOf(chain.ExtractEmoji(a.Text)))
		return strings.Contains(extracted, required)
	case DetectStarcode, DetectBless:
		return string(a.Chain) == required
	case DetectDefine:
		for _, e := range q.Chain {
			if e == a.Emoji {
				return true
			}
		}
		return false
	case DetectShield:
		return true
	}
	return false
}

// Assignments returns the queued quest IDs for user.
func (t *Tracker) Assignments(user profile.UserID) []profile.QuestID {
	out := make([]profile.QuestID, len(t.assignments[user]))
	copy(out, t.assignments[user])
	return out
}

// RestoreAssignments replaces the queue for user. Used by snapshot load.
func (t *Tracker) RestoreAssignments(user profile.UserID, ids []profile.QuestID) {
	t.assignments[user] = ids
}

// AllAssignments returns every non-empty assignment queue.
func (t *Tracker) AllAssignments() map[profile.UserID][]profile.QuestID {
	out := make(map[profile.UserID][]profile.QuestID, len(t.assignments))
	for id, q := range t.assignments {
		if len(q) > 0 {
			out[id] = q
		}
	}
	return out
}
