// Package lexicon holds the semantic layer around individual emoji: the
// built-in glyph tables, user-contributed emoji definitions, and named
// semantic themes used to group related chains.
package lexicon

import (
	"sort"
	"strings"
	"time"

	"helmhud/internal/chain"
	"helmhud/internal/profile"
)

// Glyph is a built-in emoji with fixed lore semantics.
type Glyph struct {
	Name    string
	Type    string
	Meaning string
}

// Glyphs is the built-in glyph table.
var Glyphs = map[string]Glyph{
	"📚":  {Name: "Book", Type: "lux", Meaning: "Codex, record, memory container"},
	"🧠":  {Name: "Brain", Type: "bridge", Meaning: "Cognitive retrieval, mental pattern"},
	"🔍":  {Name: "Magnifying Glass", Type: "lux", Meaning: "Discernment, study, investigation"},
	"🗂️": {Name: "File Folder", Type: "skotos", Meaning: "Stored memory, categorized recollection"},
	"🏺":  {Name: "Amphora", Type: "skotos", Meaning: "Ancient vessel of tradition"},
	"✨":  {Name: "Sparkles", Type: "lux", Meaning: "Revelation, insight, recovered clarity"},
	"🛡️": {Name: "Shield", Type: "skotos", Meaning: "Guard, doctrinal defense"},
	"🗝️": {Name: "Key", Type: "bridge", Meaning: "Access point to locked meaning"},
	"🔄":  {Name: "Cycle Arrows", Type: "skotos", Meaning: "Recursive memory, rotational dialectic"},
	"📜":  {Name: "Scroll", Type: "lux", Meaning: "Sacred text, liturgical memory"},
	"🧪":  {Name: "Flask", Type: "lux", Meaning: "Testing, experimentation"},
	"🌀":  {Name: "Vortex", Type: "bridge", Meaning: "Semantic field in motion"},
	"🕍":  {Name: "Temple", Type: "skotos", Meaning: "Communal memory"},
	"🩸":  {Name: "Blood Drop", Type: "skotos", Meaning: "Covenant anchor"},
	"🌌":  {Name: "Milky Way", Type: "skotos", Meaning: "Macro-memory, divine archive"},
}

// Alignments are the valid server moods for the blessing system.
var Alignments = []string{"peace", "hope", "truth", "judgment", "mercy", "discipline"}

// DefaultAlignment is the mood a fresh engine starts with.
const DefaultAlignment = "peace"

// ValidAlignment reports whether mood is a known alignment.
func ValidAlignment(mood string) bool {
	for _, a := range Alignments {
		if a == mood {
			return true
		}
	}
	return false
}

// Definition is one user-contributed meaning for an emoji. Official
// definitions come from reviewers; the rest await approval.
type Definition struct {
	Meaning  string
	Author   profile.UserID
	At       time.Time
	Official bool
}

// Definitions stores every contributed definition per emoji, oldest first.
type Definitions struct {
	entries map[string][]Definition
}

// NewDefinitions returns an empty definition store.
func NewDefinitions() *Definitions {
	return &Definitions{entries: make(map[string][]Definition)}
}

// Add appends a definition for emoji.
func (d *Definitions) Add(emoji string, def Definition) {
	d.entries[emoji] = append(d.entries[emoji], def)
}

// Of returns the definitions recorded for emoji.
func (d *Definitions) Of(emoji string) []Definition {
	return d.entries[emoji]
}

// All returns the full definition map.
func (d *Definitions) All() map[string][]Definition {
	out := make(map[string][]Definition, len(d.entries))
	for e, defs := range d.entries {
		out[e] = defs
	}
	return out
}

// Restore replaces the stored definitions. Used by snapshot load.
func (d *Definitions) Restore(entries map[string][]Definition) {
	d.entries = make(map[string][]Definition, len(entries))
	for e, defs := range entries {
		d.entries[e] = defs
	}
}

// Theme is a named emoji set grouping related chains.
type Theme struct {
	Name      string
	Emojis    []string
	CreatedBy profile.UserID
	CreatedAt time.Time
}

// MinThemeSize is the minimum emoji count for a theme.
const MinThemeSize = 3

// DefaultThemes are the built-in theme sets.
var DefaultThemes = map[string][]string{
	"hope":     {"🌈", "🕊️", "✨", "💫", "🌟"},
	"peace":    {"🕊️", "🌿", "☮️", "🤝", "💚"},
	"truth":    {"📖", "🔍", "💡", "⚖️", "📜"},
	"judgment": {"⚖️", "🔥", "⚔️", "📜", "⚡"},
	"mercy":    {"💧", "🤲", "❤️", "🩹", "🌿"},
	"fire":     {"🔥", "⚡", "🌋", "☄️", "🎆"},
}

// Themes stores custom semantic themes by lowercase name.
type Themes struct {
	custom map[string]Theme
}

// NewThemes returns an empty custom theme store.
func NewThemes() *Themes {
	return &Themes{custom: make(map[string]Theme)}
}

// Create installs a custom theme. The name is lowercased; the emoji set must
// hold at least MinThemeSize entries.
func (t *Themes) Create(name string, emojis []string, by profile.UserID, now time.Time) (Theme, error) {
	if len(emojis) < MinThemeSize {
		return Theme{}, chain.ErrInvalidChain
	}
	theme := Theme{
		Name:      strings.ToLower(name),
		Emojis:    emojis,
		CreatedBy: by,
		CreatedAt: now,
	}
	t.custom[theme.Name] = theme
	return theme, nil
}

// Lookup resolves a theme name against custom themes first, then defaults.
func (t *Themes) Lookup(name string) ([]string, bool) {
	name = strings.ToLower(name)
	if theme, ok := t.custom[name]; ok {
		return theme.Emojis, true
	}
	emojis, ok := DefaultThemes[name]
	return emojis, ok
}

// Custom returns every custom theme.
func (t *Themes) Custom() map[string]Theme {
	out := make(map[string]Theme, len(t.custom))
	for n, th := range t.custom {
		out[n] = th
	}
	return out
}

// Restore replaces the custom theme set. Used by snapshot load.
func (t *Themes) Restore(themes map[string]Theme) {
	t.custom = make(map[string]Theme, len(themes))
	for n, th := range themes {
		t.custom[n] = th
	}
}

// Names returns every known theme name, defaults included, sorted.
func (t *Themes) Names() []string {
	seen := make(map[string]bool)
	for n := range DefaultThemes {
		seen[n] = true
	}
	for n := range t.custom {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Match scores a chain's emoji against a theme's set, returning how many of
// the chain's tokens belong to the theme.
func Match(tokens []string, themeEmojis []string) int {
	set := make(map[string]bool, len(themeEmojis))
	for _, e := range themeEmojis {
		set[e] = true
	}
	score := 0
	for _, tok := range tokens {
		if set[tok] {
			score++
		}
	}
	return score
}

// Suggest returns the best-matching theme for a chain, custom themes
// considered alongside defaults. Ties resolve to the lexically first name.
// Returns false when no theme shares an emoji with the chain.
func (t *Themes) Suggest(key chain.Key) (string, int, bool) {
	tokens := key.Tokens()
	bestName, bestScore := "", 0
	for _, name := range t.Names() {
		emojis, _ := t.Lookup(name)
		if score := Match(tokens, emojis); score > bestScore {
			bestName, bestScore = name, score
		}
	}
	return bestName, bestScore, bestScore > 0
}
