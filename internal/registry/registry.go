// Package registry owns the map of registered StarCode patterns and their
// blessings. Registration, reuse, correction, blessing and unregistration all
// route through here so that a chain key maps to at most one live pattern and
// influence side effects stay paired with pattern lifecycle transitions.
package registry

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"helmhud/internal/chain"
	"helmhud/internal/influence"
	"helmhud/internal/profile"
)

// Origin records how a pattern entered the registry.
type Origin string

const (
	OriginManual       Origin = "manual"
	OriginAutoMessage  Origin = "auto_message"
	OriginAutoReaction Origin = "auto_reaction"
	OriginBackfill     Origin = "backfill"
	OriginCorrected    Origin = "corrected"
)

// Influence deltas for pattern lifecycle events. The registration-command
// path (+10 create, +1/+2 reuse) and the reaction-detection path (base 5,
// blessing-doubled) are intentionally distinct formulas.
const (
	createAward       = 10
	reuseAuthorAward  = 1
	reuseAdopterAward = 2
	correctionAward   = 5
	blessingAward     = 10
	reactionBase      = 5
	adoptionDelta     = 2
)

// ErrAlreadyRegistered signals that a key already has a live pattern. For
// manual registration the caller never sees it; Register converts the
// duplicate into the adoption path instead.
var ErrAlreadyRegistered = errors.New("chain already registered")

// ErrNotRegistered is the non-fatal "nothing to do" condition for operations
// targeting an absent pattern.
var ErrNotRegistered = errors.New("chain not registered")

// Pattern is the persistent record for a registered chain.
type Pattern struct {
	Key           chain.Key
	Author        profile.UserID
	CreatedAt     time.Time
	UseCount      int
	Origin        Origin
	Description   string
	SourceRef     string
	CorrectedFrom chain.Key
	CorrectedBy   profile.UserID
}

// Blessing associates a chain with a divine alignment. Blessings may be set
// on unregistered keys and take effect once the key is registered.
type Blessing struct {
	Alignment string
	BlessedBy profile.UserID
	BlessedAt time.Time
}

// Registry holds the live pattern and blessing maps.
type Registry struct {
	patterns  map[chain.Key]*Pattern
	blessings map[chain.Key]Blessing

	ledger   *influence.Ledger
	profiles *profile.Table
	logger   *zap.Logger
	now      func() time.Time
}

// New returns an empty registry.
func New(profiles *profile.Table, ledger *influence.Ledger, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		patterns:  make(map[chain.Key]*Pattern),
		blessings: make(map[chain.Key]Blessing),
		ledger:    ledger,
		profiles:  profiles,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the registry clock for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// RegisterOutcome reports what Register did. Adopted distinguishes reuse of
// an existing pattern from fresh creation; callers branch on it when
// rendering notifications.
type RegisterOutcome struct {
	Pattern      *Pattern
	Adopted      bool
	AuthorAward  int
	AdopterAward int
}

// reasonForOrigin maps a registration origin to its ledger reason.
func reasonForOrigin(origin Origin) influence.Reason {
	switch origin {
	case OriginAutoMessage:
		return influence.ReasonAutoRegister
	case OriginAutoReaction:
		return influence.ReasonAutoReaction
	case OriginBackfill:
		return influence.ReasonBackfill
	default:
		return influence.ReasonManualRegister
	}
}

// Register creates a pattern for key, or for manual duplicate registration
// increments the existing pattern's use count and awards the reuse deltas
// (+1 original author, +2 adopter). Fresh creation awards +10 to the author,
// reversible and tagged with the key. Non-manual registration of an existing
// key returns ErrAlreadyRegistered; sweep callers treat that as a discard.
func (r *Registry) Register(key chain.Key, author profile.UserID, origin Origin, description, sourceRef string) (RegisterOutcome, error) {
	if !key.Valid() {
		return RegisterOutcome{}, chain.ErrInvalidChain
	}

	if existing, ok := r.patterns[key]; ok {
		if origin != OriginManual {
			return RegisterOutcome{Pattern: existing}, ErrAlreadyRegistered
		}
		existing.UseCount++
		r.ledger.Award(existing.Author, reuseAuthorAward, influence.ReasonReuse, key, true)
		r.ledger.Award(author, reuseAdopterAward, influence.ReasonAdoption, key, true)
		p := r.profiles.Get(author)
		p.ChainsAdopted[key]++
		r.logger.Debug("pattern reused",
			zap.String("chain", string(key)),
			zap.String("adopter", string(author)),
			zap.Int("uses", existing.UseCount))
		return RegisterOutcome{
			Pattern:      existing,
			Adopted:      true,
			AuthorAward:  reuseAuthorAward,
			AdopterAward: reuseAdopterAward,
		}, nil
	}

	pat := &Pattern{
		Key:         key,
		Author:      author,
		CreatedAt:   r.now(),
		UseCount:    1,
		Origin:      origin,
		Description: description,
		SourceRef:   sourceRef,
	}
	r.patterns[key] = pat
	r.profiles.Get(author).ChainsOriginated[key] = 1
	r.ledger.Award(author, createAward, reasonForOrigin(origin), key, true)

	r.logger.Info("pattern registered",
		zap.String("chain", string(key)),
		zap.String("author", string(author)),
		zap.String("origin", string(origin)))
	return RegisterOutcome{Pattern: pat, AuthorAward: createAward}, nil
}

// ReactionUseOutcome reports influence granted for a reaction-detected chain
// occurrence.
type ReactionUseOutcome struct {
	Influence int
	Blessed   bool
	Aligned   bool
}

// RecordReactionUse applies the reaction-detection influence formula for a
// recognized chain occurrence by user: base 5, plus the pattern's use count
// when the user is the original author, plus 2 otherwise; doubled when the
// chain is blessed and its alignment matches the current server mood.
// Unregistered chains still score the base (and blessing) portion. Adoption
// by a non-author is tracked in ChainsAdopted.
func (r *Registry) RecordReactionUse(key chain.Key, user profile.UserID, alignment string) ReactionUseOutcome {
	amount := reactionBase
	out := ReactionUseOutcome{}

	pat, registered := r.patterns[key]
	if registered {
		if pat.Author == user {
			amount += pat.UseCount
		} else {
			amount += adoptionDelta
		}
		pat.UseCount++
	}

	if b, ok := r.blessings[key]; ok {
		out.Blessed = true
		if b.Alignment == alignment {
			out.Aligned = true
			amount *= 2
		}
	}

	r.ledger.Award(user, amount, influence.ReasonReaction, key, true)
	if !registered || pat.Author != user {
		r.profiles.Get(user).ChainsAdopted[key]++
	}
	out.Influence = amount
	return out
}

// CorrectOutcome reports a completed correction.
type CorrectOutcome struct {
	Old *Pattern
	New *Pattern
}

// Correct unregisters oldKey and re-registers its pattern at newKey,
// attributed to the original author with origin corrected. The corrector is
// credited +5 influence and one correction, independent of the author's
// award path. Fails with ErrNotRegistered when oldKey has no pattern and
// with ErrAlreadyRegistered when newKey already holds a live pattern.
func (r *Registry) Correct(oldKey, newKey chain.Key, corrector profile.UserID) (CorrectOutcome, error) {
	old, ok := r.patterns[oldKey]
	if !ok {
		return CorrectOutcome{}, ErrNotRegistered
	}
	if !newKey.Valid() {
		return CorrectOutcome{}, chain.ErrInvalidChain
	}
	if _, taken := r.patterns[newKey]; taken && newKey != oldKey {
		return CorrectOutcome{}, ErrAlreadyRegistered
	}
	author := old.Author

	r.Unregister(oldKey, "corrected", corrector)

	pat := &Pattern{
		Key:           newKey,
		Author:        author,
		CreatedAt:     r.now(),
		UseCount:      1,
		Origin:        OriginCorrected,
		CorrectedFrom: oldKey,
		CorrectedBy:   corrector,
	}
	r.patterns[newKey] = pat
	r.profiles.Get(author).ChainsOriginated[newKey] = 1

	p := r.profiles.Get(corrector)
	p.Corrections++
	r.ledger.Award(corrector, correctionAward, influence.ReasonCorrection, newKey, false)

	r.logger.Info("pattern corrected",
		zap.String("from", string(oldKey)),
		zap.String("to", string(newKey)),
		zap.String("corrector", string(corrector)))
	return CorrectOutcome{Old: old, New: pat}, nil
}

// BlessOutcome reports a completed blessing.
type BlessOutcome struct {
	Key         chain.Key
	Alignment   string
	AuthorAward int
	Registered  bool
}

// Bless records a blessing for key under the given alignment. Blessing an
// unregistered key is valid; the record takes effect once the key is
// registered. When a pattern exists its author earns +10, doubled when the
// blesser holds the reviewer role.
func (r *Registry) Bless(key chain.Key, blesser profile.UserID, alignment string, isReviewer bool) (BlessOutcome, error) {
	if !key.Valid() {
		return BlessOutcome{}, chain.ErrInvalidChain
	}

	r.blessings[key] = Blessing{
		Alignment: alignment,
		BlessedBy: blesser,
		BlessedAt: r.now(),
	}

	out := BlessOutcome{Key: key, Alignment: alignment}
	if pat, ok := r.patterns[key]; ok {
		out.Registered = true
		award := blessingAward
		if isReviewer {
			award += blessingAward
		}
		r.ledger.Award(pat.Author, award, influence.ReasonBlessing, key, true)
		out.AuthorAward = award
	}

	p := r.profiles.Get(blesser)
	p.BlessedChains = append(p.BlessedChains, key)

	r.logger.Info("chain blessed",
		zap.String("chain", string(key)),
		zap.String("alignment", alignment),
		zap.Bool("registered", out.Registered))
	return out, nil
}

// Unregister removes the pattern for key, reverts its ledger influence,
// clears the author's origination entry and any blessing record. Returns
// false when key was never registered; callers treat that as a no-op.
func (r *Registry) Unregister(key chain.Key, reason string, by profile.UserID) bool {
	pat, ok := r.patterns[key]
	if !ok {
		return false
	}

	r.ledger.RevertByChain(key)
	delete(r.profiles.Get(pat.Author).ChainsOriginated, key)
	delete(r.patterns, key)
	delete(r.blessings, key)

	r.logger.Info("pattern unregistered",
		zap.String("chain", string(key)),
		zap.String("reason", reason),
		zap.String("by", string(by)))
	return true
}

// Lookup returns the pattern for key.
func (r *Registry) Lookup(key chain.Key) (*Pattern, bool) {
	pat, ok := r.patterns[key]
	return pat, ok
}

// BlessingOf returns the blessing record for key.
func (r *Registry) BlessingOf(key chain.Key) (Blessing, bool) {
	b, ok := r.blessings[key]
	return b, ok
}

// Patterns returns every live pattern, in unspecified order.
func (r *Registry) Patterns() []*Pattern {
	out := make([]*Pattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		out = append(out, p)
	}
	return out
}

// Blessings returns a copy of the blessing map.
func (r *Registry) Blessings() map[chain.Key]Blessing {
	out := make(map[chain.Key]Blessing, len(r.blessings))
	for k, b := range r.blessings {
		out[k] = b
	}
	return out
}

// Restore installs a pattern or blessing loaded from a snapshot, bypassing
// lifecycle side effects.
func (r *Registry) Restore(pat *Pattern) {
	r.patterns[pat.Key] = pat
}

// RestoreBlessing installs a blessing loaded from a snapshot.
func (r *Registry) RestoreBlessing(key chain.Key, b Blessing) {
	r.blessings[key] = b
}
