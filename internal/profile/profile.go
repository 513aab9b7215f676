// Package profile holds per-user aggregate state for the vault progression
// system. Profiles are created lazily on first observed activity and are
// never deleted.
package profile

import (
	"sort"

	"helmhud/internal/chain"
)

// UserID identifies a platform user. The engine treats it as opaque.
type UserID string

// QuestID identifies a training quest.
type QuestID string

// Profile aggregates everything the progression system tracks for one user.
// Influence is a running total and must always equal the ledger sum for the
// user; every influence mutation goes through the ledger.
type Profile struct {
	ID UserID

	ReactionCount int
	EmojiUsed     map[string]struct{}

	// ChainsOriginated maps chains this user authored to their origination
	// count. ChainsAdopted maps chains authored by others to how many times
	// this user reused them.
	ChainsOriginated map[chain.Key]int
	ChainsAdopted    map[chain.Key]int

	Corrections      int
	ProblematicFlags int
	Influence        int

	// Definitions maps emoji this user has defined to the meaning given.
	Definitions map[string]string

	BlessedChains []chain.Key

	ActiveQuest        QuestID
	QuestProgress      map[QuestID]int
	CompletedTrainings []QuestID
}

// New returns an empty profile for the given user.
func New(id UserID) *Profile {
	return &Profile{
		ID:               id,
		EmojiUsed:        make(map[string]struct{}),
		ChainsOriginated: make(map[chain.Key]int),
		ChainsAdopted:    make(map[chain.Key]int),
		Definitions:      make(map[string]string),
		QuestProgress:    make(map[QuestID]int),
	}
}

// RecordEmoji marks an emoji as used by this user.
func (p *Profile) RecordEmoji(emoji string) {
	p.EmojiUsed[emoji] = struct{}{}
}

// UniqueEmojiCount returns the number of distinct emoji the user has used.
func (p *Profile) UniqueEmojiCount() int {
	return len(p.EmojiUsed)
}

// SortedEmoji returns the unique-emoji set as a stable ordered list, for
// persistence and display. The persisted form is a list; the live form is
// always a set.
func (p *Profile) SortedEmoji() []string {
	out := make([]string, 0, len(p.EmojiUsed))
	for e := range p.EmojiUsed {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Table is the in-memory profile registry, keyed by user. Get creates
// missing profiles so that no operation ever fails on an unknown user.
type Table struct {
	profiles map[UserID]*Profile
}

// NewTable returns an empty profile table.
func NewTable() *Table {
	return &Table{profiles: make(map[UserID]*Profile)}
}

// Get returns the profile for id, creating it when absent.
func (t *Table) Get(id UserID) *Profile {
	p, ok := t.profiles[id]
	if !ok {
		p = New(id)
		t.profiles[id] = p
	}
	return p
}

// Lookup returns the profile for id without creating it.
func (t *Table) Lookup(id UserID) (*Profile, bool) {
	p, ok := t.profiles[id]
	return p, ok
}

// Put installs a profile, replacing any existing entry. Used when loading a
// persisted snapshot.
func (t *Table) Put(p *Profile) {
	t.profiles[p.ID] = p
}

// All returns every profile in the table, in unspecified order.
func (t *Table) All() []*Profile {
	out := make([]*Profile, 0, len(t.profiles))
	for _, p := range t.profiles {
		out = append(out, p)
	}
	return out
}

// Len returns the number of profiles.
func (t *Table) Len() int {
	return len(t.profiles)
}
