// Package roles implements the threshold-based role progression table. The
// engine is a pure function from a profile to the set of qualifying roles;
// granting is left to the platform collaborator, and a role once earned is
// never programmatically revoked.
package roles

import (
	"sort"

	"helmhud/internal/profile"
)

// Key identifies a progression role.
type Key string

const (
	Initiate  Key = "initiate"
	Seeker    Key = "seeker"
	Harvester Key = "harvester"
	Mason     Key = "mason"
	Guard     Key = "guard"
	Forger    Key = "forger"
	Knight    Key = "knight"
	Walker    Key = "walker"
)

// Definition describes one role's display name and requirement text for
// collaborator-rendered announcements.
type Definition struct {
	Key         Key
	Name        string
	Requirement string
}

// Definitions lists every progression role in ascension order.
var Definitions = []Definition{
	{Initiate, "🔰 Initiate Drone", "React once"},
	{Seeker, "👁️ Wakened Seeker", "Use 5 unique emoji"},
	{Harvester, "🌾 Lore Harvester", "10+ reactions"},
	{Mason, "🧱 Memory Mason", "Originate 3+ chains"},
	{Guard, "🛡️ Index Guard", "Make 5 corrections"},
	{Forger, "⭐ StarForger", "Reach 50 influence"},
	{Knight, "⚔️ Vault Knight", "3 corrections and 2 problematic flags"},
	{Walker, "👻 Ghost Walker", "100 influence and 3 definitions"},
}

// Qualified returns every role whose threshold the profile meets. Thresholds
// are evaluated independently; a profile may qualify for all eight at once.
func Qualified(p *profile.Profile) map[Key]bool {
	q := make(map[Key]bool)
	if p.ReactionCount >= 1 {
		q[Initiate] = true
	}
	if p.UniqueEmojiCount() >= 5 {
		q[Seeker] = true
	}
	if p.ReactionCount >= 10 {
		q[Harvester] = true
	}
	if len(p.ChainsOriginated) >= 3 {
		q[Mason] = true
	}
	if p.Corrections >= 5 {
		q[Guard] = true
	}
	if p.Influence >= 50 {
		q[Forger] = true
	}
	if p.Corrections >= 3 && p.ProblematicFlags >= 2 {
		q[Knight] = true
	}
	if p.Influence >= 100 && len(p.Definitions) >= 3 {
		q[Walker] = true
	}
	return q
}

// QualifiedList returns the qualifying roles as a sorted slice, for stable
// diffing and display.
func QualifiedList(p *profile.Profile) []Key {
	q := Qualified(p)
	out := make([]Key, 0, len(q))
	for k := range q {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Diff returns the roles in qualified that are not yet in held. The
// collaborator grants exactly these; nothing is ever revoked.
func Diff(qualified map[Key]bool, held map[Key]bool) []Key {
	var out []Key
	for k := range qualified {
		if !held[k] {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
