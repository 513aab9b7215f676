package engine

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"helmhud/internal/chain"
	"helmhud/internal/influence"
	"helmhud/internal/lexicon"
	"helmhud/internal/moderation"
	"helmhud/internal/pending"
	"helmhud/internal/profile"
	"helmhud/internal/registry"
	"helmhud/internal/roles"
	"helmhud/internal/starlock"
	"helmhud/internal/store"
	"helmhud/internal/training"
)

// ErrPermissionDenied rejects privileged operations. The engine does not
// model platform roles; callers resolve permissions and pass the verdict.
var ErrPermissionDenied = errors.New("permission denied")

// ErrUnknownAlignment rejects moods outside the alignment set.
var ErrUnknownAlignment = errors.New("unknown alignment")

// Message is one observed platform message.
type Message struct {
	GuildRef   string
	ChannelRef string
	MessageRef string
	Author     profile.UserID
	Text       string
}

// ChainUse pairs a chain key with the influence outcome of one use.
type ChainUse struct {
	Key     chain.Key
	Outcome registry.ReactionUseOutcome
}

// MessageResult reports everything a message triggered.
type MessageResult struct {
	Chains     []chain.Key
	Queued     []chain.Key
	Uses       []ChainUse
	Quest      *training.Completion
	Progress   *training.Progress
	Unlocks    []starlock.Unlock
	RoleGrants []roles.Key

	// Track asks the collaborator to add the tracking indicator reaction.
	Track bool
}

// HandleMessage detects chains in a message. Registered chains score a use;
// unregistered chains enter the message pending queue for the sweep.
func (e *Engine) HandleMessage(m Message) MessageResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	res := MessageResult{}

	p := e.profiles.Get(m.Author)
	for _, tok := range chain.ExtractEmoji(m.Text) {
		p.RecordEmoji(tok)
	}

	for _, run := range chain.ContiguousChains(m.Text) {
		key := chain.KeyOf(run)
		res.Chains = append(res.Chains, key)

		if _, ok := e.registry.Lookup(key); ok {
			out := e.registry.RecordReactionUse(key, m.Author, e.alignment)
			res.Uses = append(res.Uses, ChainUse{Key: key, Outcome: out})
		} else {
			e.queue.AddMessage(pending.Entry{
				Key:        key,
				Tokens:     run,
				Author:     m.Author,
				MessageRef: m.MessageRef,
				ChannelRef: m.ChannelRef,
				GuildRef:   m.GuildRef,
				FirstSeen:  now,
				Context:    m.Text,
			})
			res.Queued = append(res.Queued, key)
		}

		if u := e.locks.Check(key, m.Author, m.GuildRef, now); u != nil {
			res.Unlocks = append(res.Unlocks, *u)
		}
	}

	res.Quest, res.Progress = e.tracker.Record(m.Author, training.Action{
		Type: training.DetectMessage,
		Text: m.Text,
	})
	res.RoleGrants = e.grantRoles(m.Author)
	res.Track = len(res.Chains) > 0
	return res
}

// ReactionEvent is one reaction added to a message, together with the
// message's full ordered reaction state.
type ReactionEvent struct {
	GuildRef      string
	ChannelRef    string
	MessageRef    string
	MessageAuthor profile.UserID
	MessageText   string
	Reactor       profile.UserID
	Emoji         string
	Reactions     []chain.Reaction
}

// ReactionResult reports what a reaction triggered. At most one of Use,
// Queued and Flag is meaningful.
type ReactionResult struct {
	Key        chain.Key
	Use        *ChainUse
	Queued     bool
	Flag       *moderation.Flag
	Quest      *training.Completion
	Progress   *training.Progress
	Unlocks    []starlock.Unlock
	RoleGrants []roles.Key
}

// HandleReactionAdd processes one added reaction. A shield reaction from a
// user with an armed listener flags the message's primary chain; otherwise
// the message's reaction set is folded into a chain key, scored when
// registered and tracked as pending when not. The tracking indicator never
// contributes to the key.
func (e *Engine) HandleReactionAdd(ev ReactionEvent) ReactionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	res := ReactionResult{}

	p := e.profiles.Get(ev.Reactor)
	p.ReactionCount++
	if ev.Emoji != chain.TrackingIndicator {
		p.RecordEmoji(ev.Emoji)
	}

	if ev.Emoji == ShieldEmoji {
		if _, armed := e.listeners.Armed(ev.Reactor, now); armed {
			res.Flag = e.shieldMark(ev, now)
			res.Quest, res.Progress = e.tracker.Record(ev.Reactor, training.Action{
				Type: training.DetectShield,
			})
			res.RoleGrants = e.grantRoles(ev.Reactor)
			return res
		}
	}

	key := chain.ReactionKey(ev.Reactions)
	if !key.Valid() {
		res.RoleGrants = e.grantRoles(ev.Reactor)
		return res
	}
	res.Key = key

	if _, ok := e.registry.Lookup(key); ok {
		out := e.registry.RecordReactionUse(key, ev.Reactor, e.alignment)
		res.Use = &ChainUse{Key: key, Outcome: out}
		if u := e.locks.Check(key, ev.Reactor, ev.GuildRef, now); u != nil {
			res.Unlocks = append(res.Unlocks, *u)
		}
	} else {
		e.queue.TrackReaction(pending.Entry{
			Key:        key,
			Tokens:     chain.ReactionTokens(ev.Reactions),
			Author:     ev.MessageAuthor,
			MessageRef: ev.MessageRef,
			ChannelRef: ev.ChannelRef,
			GuildRef:   ev.GuildRef,
			FirstSeen:  now,
		})
		res.Queued = true
	}

	res.RoleGrants = e.grantRoles(ev.Reactor)
	return res
}

// shieldMark flags the message's first chain as problematic: the author
// takes the penalty, the flagger's count rises, every pending entry of the
// message is discarded and the listener disarms. A chain that already won
// promotion is unregistered, withdrawing its registration influence.
// Caller holds the mutex.
func (e *Engine) shieldMark(ev ReactionEvent, now time.Time) *moderation.Flag {
	var key chain.Key
	if runs := chain.ContiguousChains(ev.MessageText); len(runs) > 0 {
		key = chain.KeyOf(runs[0])
	}
	if key != "" {
		e.registry.Unregister(key, "problematic", ev.Reactor)
	}

	flag := moderation.Flag{
		Chain:      key,
		FlaggedBy:  ev.Reactor,
		AuthorID:   ev.MessageAuthor,
		MessageRef: ev.MessageRef,
		Context:    ev.MessageText,
		At:         now,
	}
	e.flags.Append(flag)
	e.profiles.Get(ev.Reactor).ProblematicFlags++
	e.ledger.Award(ev.MessageAuthor, -problematicPenalty, influence.ReasonPenalty, key, false)
	e.queue.DiscardMessage(ev.MessageRef)
	e.listeners.Disarm(ev.Reactor)

	e.logger.Info("chain flagged problematic",
		zap.String("chain", string(key)),
		zap.String("flagged_by", string(ev.Reactor)),
		zap.String("author", string(ev.MessageAuthor)))
	return &flag
}

// SweepResult reports one pending-queue sweep.
type SweepResult struct {
	Promoted         []registry.RegisterOutcome
	Discarded        int
	ExpiredListeners []moderation.Listener
	RoleGrants       map[profile.UserID][]roles.Key
}

// Sweep promotes every pending entry whose dwell has elapsed and expires
// stale shield listeners. Promotion of an already-registered key is a
// discard, never a second pattern.
func (e *Engine) Sweep() SweepResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	res := SweepResult{RoleGrants: make(map[profile.UserID][]roles.Key)}

	for _, entry := range e.queue.Due(now, e.cfg.GetPendingDwell()) {
		origin := registry.OriginAutoMessage
		if entry.Origin == pending.OriginReaction {
			origin = registry.OriginAutoReaction
		}
		out, err := e.registry.Register(entry.Key, entry.Author, origin, "", entry.MessageRef)
		if err != nil {
			res.Discarded++
			continue
		}
		res.Promoted = append(res.Promoted, out)
		if grants := e.grantRoles(entry.Author); len(grants) > 0 {
			res.RoleGrants[entry.Author] = append(res.RoleGrants[entry.Author], grants...)
		}
	}

	res.ExpiredListeners = e.listeners.Expire(now)
	return res
}

// RegisterResult reports a manual registration.
type RegisterResult struct {
	Outcome    registry.RegisterOutcome
	Quest      *training.Completion
	Progress   *training.Progress
	Unlocks    []starlock.Unlock
	RoleGrants []roles.Key
}

// HandleRegister executes the manual starcode command: the submitted text
// must consist of the chain's emoji alone, which is then registered (or
// adopted when it already exists) and removed from the pending queues.
func (e *Engine) HandleRegister(user profile.UserID, text, description string) (RegisterResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := chain.ParseStrict(text)
	if err != nil {
		return RegisterResult{}, err
	}

	out, err := e.registry.Register(key, user, registry.OriginManual, description, "")
	if err != nil {
		return RegisterResult{}, err
	}
	e.queue.DiscardKey(key)

	p := e.profiles.Get(user)
	for _, tok := range key.Tokens() {
		p.RecordEmoji(tok)
	}

	res := RegisterResult{Outcome: out}
	res.Quest, res.Progress = e.tracker.Record(user, training.Action{
		Type:  training.DetectStarcode,
		Chain: key,
	})
	if u := e.locks.Check(key, user, "", e.now()); u != nil {
		res.Unlocks = append(res.Unlocks, *u)
	}
	res.RoleGrants = e.grantRoles(user)
	return res, nil
}

// CorrectionResult reports a completed correction.
type CorrectionResult struct {
	Outcome    registry.CorrectOutcome
	RoleGrants []roles.Key
}

// HandleCorrection reattributes a registered chain to a corrected key. The
// allowed verdict comes from the caller's permission model.
func (e *Engine) HandleCorrection(corrector profile.UserID, oldText, newText string, allowed bool) (CorrectionResult, error) {
	if !allowed {
		return CorrectionResult{}, ErrPermissionDenied
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	oldKey, err := chain.ParseKey(oldText)
	if err != nil {
		return CorrectionResult{}, err
	}
	newKey, err := chain.ParseKey(newText)
	if err != nil {
		return CorrectionResult{}, err
	}

	out, err := e.registry.Correct(oldKey, newKey, corrector)
	if err != nil {
		return CorrectionResult{}, err
	}
	return CorrectionResult{Outcome: out, RoleGrants: e.grantRoles(corrector)}, nil
}

// BlessResult reports a completed blessing.
type BlessResult struct {
	Outcome    registry.BlessOutcome
	Quest      *training.Completion
	Progress   *training.Progress
	RoleGrants []roles.Key
}

// HandleBless blesses a chain under the current server mood. Blessing an
// unregistered chain is a forward blessing that takes effect once the
// chain is registered.
func (e *Engine) HandleBless(blesser profile.UserID, text string, isReviewer bool) (BlessResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := chain.ParseKey(text)
	if err != nil {
		return BlessResult{}, err
	}

	out, err := e.registry.Bless(key, blesser, e.alignment, isReviewer)
	if err != nil {
		return BlessResult{}, err
	}

	res := BlessResult{Outcome: out}
	res.Quest, res.Progress = e.tracker.Record(blesser, training.Action{
		Type:  training.DetectBless,
		Chain: key,
	})
	res.RoleGrants = e.grantRoles(blesser)
	return res, nil
}

// DefineResult reports a recorded emoji definition.
type DefineResult struct {
	Definition lexicon.Definition
	Award      int
	Quest      *training.Completion
	Progress   *training.Progress
	RoleGrants []roles.Key
}

// HandleDefine records a meaning for an emoji. Reviewer definitions are
// official and award influence.
func (e *Engine) HandleDefine(user profile.UserID, emoji, meaning string, isReviewer bool) DefineResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	def := lexicon.Definition{
		Meaning:  meaning,
		Author:   user,
		At:       e.now(),
		Official: isReviewer,
	}
	e.definitions.Add(emoji, def)

	p := e.profiles.Get(user)
	p.Definitions[emoji] = meaning
	p.RecordEmoji(emoji)

	res := DefineResult{Definition: def}
	if isReviewer {
		e.ledger.Award(user, officialDefinitionAward, influence.ReasonDefinition, "", false)
		res.Award = officialDefinitionAward
	}
	res.Quest, res.Progress = e.tracker.Record(user, training.Action{
		Type:  training.DetectDefine,
		Emoji: emoji,
	})
	res.RoleGrants = e.grantRoles(user)
	return res
}

// HandleAlignMood sets the server mood used by blessing and the reaction
// influence doubling.
func (e *Engine) HandleAlignMood(user profile.UserID, mood string, allowed bool) error {
	if !allowed {
		return ErrPermissionDenied
	}
	if !lexicon.ValidAlignment(mood) {
		return ErrUnknownAlignment
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.alignment = mood
	e.logger.Info("server mood aligned",
		zap.String("mood", mood),
		zap.String("by", string(user)))
	return nil
}

// Alignment returns the current server mood.
func (e *Engine) Alignment() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alignment
}

// HandleMarkProblematic arms shield-marking mode for user: their next
// shield reaction within the listener window flags the target message.
func (e *Engine) HandleMarkProblematic(user profile.UserID, channelRef string, allowed bool) error {
	if !allowed {
		return ErrPermissionDenied
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners.Arm(user, channelRef, e.now())
	return nil
}

// OverrideResult reports a reviewed flag removal.
type OverrideResult struct {
	Flag     moderation.Flag
	Restored int
}

// HandleOverrideFlag removes a problematic flag and restores influence to
// the chain author.
func (e *Engine) HandleOverrideFlag(reviewer profile.UserID, text string, allowed bool) (OverrideResult, error) {
	if !allowed {
		return OverrideResult{}, ErrPermissionDenied
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := chain.ParseKey(text)
	if err != nil {
		return OverrideResult{}, err
	}

	flag, ok := e.flags.Override(key)
	if !ok {
		return OverrideResult{}, registry.ErrNotRegistered
	}
	e.ledger.Award(flag.AuthorID, overrideRestore, influence.ReasonOverride, key, false)

	e.logger.Info("problematic flag overridden",
		zap.String("chain", string(key)),
		zap.String("reviewer", string(reviewer)))
	return OverrideResult{Flag: flag, Restored: overrideRestore}, nil
}

// ProblematicFlags returns the most recent n flags.
func (e *Engine) ProblematicFlags(n int) []moderation.Flag {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags.Recent(n)
}

// StartTraining begins the built-in quest chain for user.
func (e *Engine) StartTraining(user profile.UserID) (training.Quest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Start(user)
}

// AssignTraining queues a quest for user, activating it when idle.
func (e *Engine) AssignTraining(user profile.UserID, id profile.QuestID, allowed bool) (training.Quest, bool, error) {
	if !allowed {
		return training.Quest{}, false, ErrPermissionDenied
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	q, activeNow, ok := e.tracker.Assign(user, id)
	if !ok {
		return training.Quest{}, false, registry.ErrNotRegistered
	}
	return q, activeNow, nil
}

// RevokeTraining clears the user's active quest.
func (e *Engine) RevokeTraining(user profile.UserID, allowed bool) (bool, error) {
	if !allowed {
		return false, ErrPermissionDenied
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Revoke(user), nil
}

// SkipTraining advances past the active quest without reward.
func (e *Engine) SkipTraining(user profile.UserID, allowed bool) (*training.Quest, bool, error) {
	if !allowed {
		return nil, false, ErrPermissionDenied
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next, ok := e.tracker.Skip(user)
	return next, ok, nil
}

// ActiveTraining returns the user's active quest.
func (e *Engine) ActiveTraining(user profile.UserID) (training.Quest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Active(user)
}

// CreateQuest parses and installs a custom quest definition.
func (e *Engine) CreateQuest(id profile.QuestID, definition string, createdBy profile.UserID, allowed bool) (training.Quest, error) {
	if !allowed {
		return training.Quest{}, ErrPermissionDenied
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	q, err := training.ParseCustom(id, definition, createdBy, e.now())
	if err != nil {
		return training.Quest{}, err
	}
	e.catalog.AddCustom(q)
	return q, nil
}

// CreateTheme installs a custom semantic theme.
func (e *Engine) CreateTheme(name string, emojis []string, by profile.UserID, allowed bool) (lexicon.Theme, error) {
	if !allowed {
		return lexicon.Theme{}, ErrPermissionDenied
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.themes.Create(name, emojis, by, e.now())
}

// SummonTheme lists registered patterns overlapping the theme's emoji set,
// strongest overlap first is not guaranteed; callers sort for display.
func (e *Engine) SummonTheme(name string) ([]*registry.Pattern, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	emojis, ok := e.themes.Lookup(name)
	if !ok {
		return nil, false
	}
	var out []*registry.Pattern
	for _, pat := range e.registry.Patterns() {
		if lexicon.Match(pat.Key.Tokens(), emojis) > 0 {
			out = append(out, pat)
		}
	}
	return out, true
}

// SuggestTheme scores a chain against every theme.
func (e *Engine) SuggestTheme(text string) (string, int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := chain.ParseKey(text)
	if err != nil {
		return "", 0, false
	}
	return e.themes.Suggest(key)
}

// CreateStarlock installs a custom unlock chain.
func (e *Engine) CreateStarlock(lock starlock.Lock, allowed bool) error {
	if !allowed {
		return ErrPermissionDenied
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	lock.CreatedAt = e.now()
	return e.locks.Create(lock)
}

// RemoveStarlock deletes a custom unlock chain.
func (e *Engine) RemoveStarlock(key chain.Key, allowed bool) (bool, error) {
	if !allowed {
		return false, ErrPermissionDenied
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locks.Remove(key), nil
}

// Starlocks returns every unlock chain, defaults shadowed by custom ones.
func (e *Engine) Starlocks() map[chain.Key]starlock.Lock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locks.All()
}

// BackfillResult reports one historical message processed by the backfill.
type BackfillResult struct {
	Registered []chain.Key
	Uses       []ChainUse
}

// HandleBackfill processes a historical message: unregistered chains are
// registered immediately with the backfill origin (no dwell), existing
// chains count as reuse. The channel checkpoint advances to the message.
func (e *Engine) HandleBackfill(m Message, at time.Time) BackfillResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := BackfillResult{}

	p := e.profiles.Get(m.Author)
	for _, tok := range chain.ExtractEmoji(m.Text) {
		p.RecordEmoji(tok)
	}

	for _, run := range chain.ContiguousChains(m.Text) {
		key := chain.KeyOf(run)
		if _, ok := e.registry.Lookup(key); ok {
			out := e.registry.RecordReactionUse(key, m.Author, e.alignment)
			res.Uses = append(res.Uses, ChainUse{Key: key, Outcome: out})
			continue
		}
		if _, err := e.registry.Register(key, m.Author, registry.OriginBackfill, "", m.MessageRef); err == nil {
			res.Registered = append(res.Registered, key)
		}
	}

	e.checkpoints[checkpointKey(m.GuildRef, m.ChannelRef)] = store.Checkpoint{
		MessageRef: m.MessageRef,
		At:         at,
	}
	e.grantRoles(m.Author)
	return res
}

func checkpointKey(guild, channel string) string {
	if guild == "" {
		return channel
	}
	return guild + "_" + channel
}

// Checkpoint returns the backfill checkpoint for a channel.
func (e *Engine) Checkpoint(guild, channel string) (store.Checkpoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp, ok := e.checkpoints[checkpointKey(guild, channel)]
	return cp, ok
}

// SetCheckpoint installs a backfill checkpoint directly.
func (e *Engine) SetCheckpoint(guild, channel, messageRef string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkpoints[checkpointKey(guild, channel)] = store.Checkpoint{MessageRef: messageRef, At: at}
}

// PendingEntries exposes the pending queues for operational commands.
func (e *Engine) PendingEntries() []pending.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Entries()
}

// Score returns the user's current influence.
func (e *Engine) Score(user profile.UserID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Score(user)
}
