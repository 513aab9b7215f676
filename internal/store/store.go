// Package store persists guardian state in SQLite. All domain state lives
// in memory while the engine runs; the store loads a snapshot at startup
// and writes one back on the save interval and at shutdown.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"helmhud/internal/chain"
	"helmhud/internal/influence"
	"helmhud/internal/lexicon"
	"helmhud/internal/moderation"
	"helmhud/internal/profile"
	"helmhud/internal/registry"
	"helmhud/internal/roles"
	"helmhud/internal/starlock"
	"helmhud/internal/training"
)

// Store wraps the SQLite database holding guardian snapshots.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	logger *zap.Logger
}

// Open initializes the SQLite database at the given path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	// NORMAL is safe under WAL and considerably faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}

	s := &Store{db: db, dbPath: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("store opened", zap.String("path", path))
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		reaction_count INTEGER NOT NULL DEFAULT 0,
		emoji_used TEXT NOT NULL DEFAULT '[]',
		chains_originated TEXT NOT NULL DEFAULT '{}',
		chains_adopted TEXT NOT NULL DEFAULT '{}',
		corrections INTEGER NOT NULL DEFAULT 0,
		problematic_flags INTEGER NOT NULL DEFAULT 0,
		influence INTEGER NOT NULL DEFAULT 0,
		definitions TEXT NOT NULL DEFAULT '{}',
		blessed_chains TEXT NOT NULL DEFAULT '[]',
		active_quest TEXT NOT NULL DEFAULT '',
		quest_progress TEXT NOT NULL DEFAULT '{}',
		completed_trainings TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS patterns (
		key TEXT PRIMARY KEY,
		author TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		use_count INTEGER NOT NULL DEFAULT 1,
		origin TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		source_ref TEXT NOT NULL DEFAULT '',
		corrected_from TEXT NOT NULL DEFAULT '',
		corrected_by TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS blessings (
		key TEXT PRIMARY KEY,
		alignment TEXT NOT NULL,
		blessed_by TEXT NOT NULL,
		blessed_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		reason TEXT NOT NULL,
		chain TEXT NOT NULL DEFAULT '',
		at DATETIME NOT NULL,
		reversible INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger_events(user_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_chain ON ledger_events(chain);

	CREATE TABLE IF NOT EXISTS custom_quests (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		task TEXT NOT NULL DEFAULT '',
		chain TEXT NOT NULL DEFAULT '[]',
		reward INTEGER NOT NULL,
		detection TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 1,
		next TEXT NOT NULL DEFAULT 'complete',
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS definitions (
		emoji TEXT NOT NULL,
		meaning TEXT NOT NULL,
		author TEXT NOT NULL,
		at DATETIME NOT NULL,
		official INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_definitions_emoji ON definitions(emoji);

	CREATE TABLE IF NOT EXISTS themes (
		name TEXT PRIMARY KEY,
		emojis TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS starlocks (
		chain TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unlock TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS unlocks (
		id TEXT PRIMARY KEY,
		at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS problematic_flags (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		chain TEXT NOT NULL,
		flagged_by TEXT NOT NULL,
		author_id TEXT NOT NULL DEFAULT '',
		message_ref TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '',
		at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		user_id TEXT PRIMARY KEY,
		quest_ids TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS held_roles (
		user_id TEXT PRIMARY KEY,
		roles TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS backfill_checkpoints (
		channel_ref TEXT PRIMARY KEY,
		message_ref TEXT NOT NULL,
		at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Snapshot is the full persistable state of the engine.
type Snapshot struct {
	Profiles    []*profile.Profile
	Patterns    map[chain.Key]registry.Pattern
	Blessings   map[chain.Key]registry.Blessing
	Events      []influence.Event
	Quests      []training.Quest
	Definitions map[string][]lexicon.Definition
	Themes      map[string]lexicon.Theme
	Locks       map[chain.Key]starlock.Lock
	Unlocked    map[string]time.Time
	Flags       []moderation.Flag
	Assignments map[profile.UserID][]profile.QuestID
	HeldRoles   map[profile.UserID][]roles.Key
	Checkpoints map[string]Checkpoint
	Alignment   string
}

// Checkpoint marks how far a channel backfill has progressed.
type Checkpoint struct {
	MessageRef string
	At         time.Time
}

type profileRow struct {
	EmojiUsed          []string                  `json:"emoji_used"`
	ChainsOriginated   map[chain.Key]int         `json:"chains_originated"`
	ChainsAdopted      map[chain.Key]int         `json:"chains_adopted"`
	Definitions        map[string]string         `json:"definitions"`
	BlessedChains      []chain.Key               `json:"blessed_chains"`
	QuestProgress      map[profile.QuestID]int   `json:"quest_progress"`
	CompletedTrainings []profile.QuestID         `json:"completed_trainings"`
}

// Save writes the snapshot in a single transaction, replacing all rows.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"profiles", "patterns", "blessings", "ledger_events", "custom_quests",
		"definitions", "themes", "starlocks", "unlocks", "problematic_flags",
		"assignments", "held_roles", "backfill_checkpoints",
	} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, p := range snap.Profiles {
		if err := saveProfile(tx, p); err != nil {
			return err
		}
	}

	for key, pat := range snap.Patterns {
		_, err := tx.Exec(`INSERT INTO patterns
			(key, author, created_at, use_count, origin, description, source_ref, corrected_from, corrected_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(key), string(pat.Author), pat.CreatedAt, pat.UseCount, string(pat.Origin),
			pat.Description, pat.SourceRef, string(pat.CorrectedFrom), string(pat.CorrectedBy))
		if err != nil {
			return fmt.Errorf("failed to save pattern %s: %w", key, err)
		}
	}

	for key, b := range snap.Blessings {
		_, err := tx.Exec(`INSERT INTO blessings (key, alignment, blessed_by, blessed_at) VALUES (?, ?, ?, ?)`,
			string(key), b.Alignment, string(b.BlessedBy), b.BlessedAt)
		if err != nil {
			return fmt.Errorf("failed to save blessing %s: %w", key, err)
		}
	}

	for _, e := range snap.Events {
		_, err := tx.Exec(`INSERT INTO ledger_events (id, user_id, amount, reason, chain, at, reversible)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, string(e.User), e.Amount, string(e.Reason), string(e.Chain), e.At, e.Reversible)
		if err != nil {
			return fmt.Errorf("failed to save ledger event %s: %w", e.ID, err)
		}
	}

	for _, q := range snap.Quests {
		chainJSON, err := json.Marshal(q.Chain)
		if err != nil {
			return fmt.Errorf("failed to marshal quest chain: %w", err)
		}
		_, err = tx.Exec(`INSERT INTO custom_quests
			(id, name, task, chain, reward, detection, count, next, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(q.ID), q.Name, q.Task, string(chainJSON), q.Reward, string(q.Detection),
			q.Count, string(q.Next), string(q.CreatedBy), q.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save quest %s: %w", q.ID, err)
		}
	}

	for emoji, defs := range snap.Definitions {
		for _, d := range defs {
			_, err := tx.Exec(`INSERT INTO definitions (emoji, meaning, author, at, official) VALUES (?, ?, ?, ?, ?)`,
				emoji, d.Meaning, string(d.Author), d.At, d.Official)
			if err != nil {
				return fmt.Errorf("failed to save definition for %s: %w", emoji, err)
			}
		}
	}

	for name, theme := range snap.Themes {
		emojiJSON, err := json.Marshal(theme.Emojis)
		if err != nil {
			return fmt.Errorf("failed to marshal theme emojis: %w", err)
		}
		_, err = tx.Exec(`INSERT INTO themes (name, emojis, created_by, created_at) VALUES (?, ?, ?, ?)`,
			name, string(emojiJSON), string(theme.CreatedBy), theme.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save theme %s: %w", name, err)
		}
	}

	for key, lock := range snap.Locks {
		_, err := tx.Exec(`INSERT INTO starlocks (chain, name, unlock, kind, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(key), lock.Name, lock.Unlock, string(lock.Kind), string(lock.CreatedBy), lock.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save starlock %s: %w", key, err)
		}
	}

	for id, at := range snap.Unlocked {
		if _, err := tx.Exec(`INSERT INTO unlocks (id, at) VALUES (?, ?)`, id, at); err != nil {
			return fmt.Errorf("failed to save unlock %s: %w", id, err)
		}
	}

	for _, f := range snap.Flags {
		_, err := tx.Exec(`INSERT INTO problematic_flags (chain, flagged_by, author_id, message_ref, context, at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(f.Chain), string(f.FlaggedBy), string(f.AuthorID), f.MessageRef, f.Context, f.At)
		if err != nil {
			return fmt.Errorf("failed to save flag: %w", err)
		}
	}

	for user, ids := range snap.Assignments {
		idsJSON, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("failed to marshal assignments: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO assignments (user_id, quest_ids) VALUES (?, ?)`, string(user), string(idsJSON)); err != nil {
			return fmt.Errorf("failed to save assignments for %s: %w", user, err)
		}
	}

	for user, held := range snap.HeldRoles {
		heldJSON, err := json.Marshal(held)
		if err != nil {
			return fmt.Errorf("failed to marshal held roles: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO held_roles (user_id, roles) VALUES (?, ?)`, string(user), string(heldJSON)); err != nil {
			return fmt.Errorf("failed to save roles for %s: %w", user, err)
		}
	}

	for channel, cp := range snap.Checkpoints {
		_, err := tx.Exec(`INSERT INTO backfill_checkpoints (channel_ref, message_ref, at) VALUES (?, ?, ?)`,
			channel, cp.MessageRef, cp.At)
		if err != nil {
			return fmt.Errorf("failed to save checkpoint for %s: %w", channel, err)
		}
	}

	if snap.Alignment != "" {
		_, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('alignment', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, snap.Alignment)
		if err != nil {
			return fmt.Errorf("failed to save alignment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved",
		zap.Int("profiles", len(snap.Profiles)),
		zap.Int("patterns", len(snap.Patterns)),
		zap.Int("events", len(snap.Events)))
	return nil
}

func saveProfile(tx *sql.Tx, p *profile.Profile) error {
	row := profileRow{
		EmojiUsed:          p.SortedEmoji(),
		ChainsOriginated:   p.ChainsOriginated,
		ChainsAdopted:      p.ChainsAdopted,
		Definitions:        p.Definitions,
		BlessedChains:      p.BlessedChains,
		QuestProgress:      p.QuestProgress,
		CompletedTrainings: p.CompletedTrainings,
	}
	blob, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal profile %s: %w", p.ID, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(blob, &fields); err != nil {
		return fmt.Errorf("failed to split profile %s: %w", p.ID, err)
	}
	_, err = tx.Exec(`INSERT INTO profiles
		(user_id, reaction_count, emoji_used, chains_originated, chains_adopted,
		 corrections, problematic_flags, influence, definitions, blessed_chains,
		 active_quest, quest_progress, completed_trainings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), p.ReactionCount,
		string(fields["emoji_used"]), string(fields["chains_originated"]), string(fields["chains_adopted"]),
		p.Corrections, p.ProblematicFlags, p.Influence,
		string(fields["definitions"]), string(fields["blessed_chains"]),
		string(p.ActiveQuest), string(fields["quest_progress"]), string(fields["completed_trainings"]))
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", p.ID, err)
	}
	return nil
}

// Load reads the full snapshot from the database.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Patterns:    make(map[chain.Key]registry.Pattern),
		Blessings:   make(map[chain.Key]registry.Blessing),
		Definitions: make(map[string][]lexicon.Definition),
		Themes:      make(map[string]lexicon.Theme),
		Locks:       make(map[chain.Key]starlock.Lock),
		Unlocked:    make(map[string]time.Time),
		Assignments: make(map[profile.UserID][]profile.QuestID),
		HeldRoles:   make(map[profile.UserID][]roles.Key),
		Checkpoints: make(map[string]Checkpoint),
	}

	if err := s.loadProfiles(snap); err != nil {
		return nil, err
	}
	if err := s.loadPatterns(snap); err != nil {
		return nil, err
	}
	if err := s.loadEvents(snap); err != nil {
		return nil, err
	}
	if err := s.loadLexicon(snap); err != nil {
		return nil, err
	}
	if err := s.loadLocks(snap); err != nil {
		return nil, err
	}
	if err := s.loadModeration(snap); err != nil {
		return nil, err
	}
	if err := s.loadTraining(snap); err != nil {
		return nil, err
	}
	if err := s.loadMeta(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) loadProfiles(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT user_id, reaction_count, emoji_used, chains_originated,
		chains_adopted, corrections, problematic_flags, influence, definitions,
		blessed_chains, active_quest, quest_progress, completed_trainings FROM profiles`)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, active                                                 string
			emojiUsed, originated, adopted, defs, blessed, prog, done string
		)
		p := profile.New("")
		if err := rows.Scan(&id, &p.ReactionCount, &emojiUsed, &originated, &adopted,
			&p.Corrections, &p.ProblematicFlags, &p.Influence, &defs, &blessed,
			&active, &prog, &done); err != nil {
			return fmt.Errorf("failed to scan profile: %w", err)
		}
		p.ID = profile.UserID(id)
		p.ActiveQuest = profile.QuestID(active)

		var emoji []string
		cols := []struct {
			data string
			dst  interface{}
		}{
			{emojiUsed, &emoji},
			{originated, &p.ChainsOriginated},
			{adopted, &p.ChainsAdopted},
			{defs, &p.Definitions},
			{blessed, &p.BlessedChains},
			{prog, &p.QuestProgress},
			{done, &p.CompletedTrainings},
		}
		for _, c := range cols {
			if err := json.Unmarshal([]byte(c.data), c.dst); err != nil {
				return fmt.Errorf("failed to decode profile %s: %w", id, err)
			}
		}
		for _, e := range emoji {
			p.RecordEmoji(e)
		}
		snap.Profiles = append(snap.Profiles, p)
	}
	return rows.Err()
}

func (s *Store) loadPatterns(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT key, author, created_at, use_count, origin,
		description, source_ref, corrected_from, corrected_by FROM patterns`)
	if err != nil {
		return fmt.Errorf("failed to load patterns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, author, origin, correctedFrom, correctedBy string
		var pat registry.Pattern
		if err := rows.Scan(&key, &author, &pat.CreatedAt, &pat.UseCount, &origin,
			&pat.Description, &pat.SourceRef, &correctedFrom, &correctedBy); err != nil {
			return fmt.Errorf("failed to scan pattern: %w", err)
		}
		pat.Key = chain.Key(key)
		pat.Author = profile.UserID(author)
		pat.Origin = registry.Origin(origin)
		pat.CorrectedFrom = chain.Key(correctedFrom)
		pat.CorrectedBy = profile.UserID(correctedBy)
		snap.Patterns[pat.Key] = pat
	}
	if err := rows.Err(); err != nil {
		return err
	}

	brows, err := s.db.Query(`SELECT key, alignment, blessed_by, blessed_at FROM blessings`)
	if err != nil {
		return fmt.Errorf("failed to load blessings: %w", err)
	}
	defer brows.Close()
	for brows.Next() {
		var key, by string
		var b registry.Blessing
		if err := brows.Scan(&key, &b.Alignment, &by, &b.BlessedAt); err != nil {
			return fmt.Errorf("failed to scan blessing: %w", err)
		}
		b.BlessedBy = profile.UserID(by)
		snap.Blessings[chain.Key(key)] = b
	}
	return brows.Err()
}

func (s *Store) loadEvents(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT id, user_id, amount, reason, chain, at, reversible
		FROM ledger_events ORDER BY at`)
	if err != nil {
		return fmt.Errorf("failed to load ledger events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var user, reason, key string
		var e influence.Event
		if err := rows.Scan(&e.ID, &user, &e.Amount, &reason, &key, &e.At, &e.Reversible); err != nil {
			return fmt.Errorf("failed to scan ledger event: %w", err)
		}
		e.User = profile.UserID(user)
		e.Reason = influence.Reason(reason)
		e.Chain = chain.Key(key)
		snap.Events = append(snap.Events, e)
	}
	return rows.Err()
}

func (s *Store) loadLexicon(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT emoji, meaning, author, at, official FROM definitions ORDER BY at`)
	if err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var emoji, author string
		var d lexicon.Definition
		if err := rows.Scan(&emoji, &d.Meaning, &author, &d.At, &d.Official); err != nil {
			return fmt.Errorf("failed to scan definition: %w", err)
		}
		d.Author = profile.UserID(author)
		snap.Definitions[emoji] = append(snap.Definitions[emoji], d)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	trows, err := s.db.Query(`SELECT name, emojis, created_by, created_at FROM themes`)
	if err != nil {
		return fmt.Errorf("failed to load themes: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var name, emojis, by string
		var theme lexicon.Theme
		if err := trows.Scan(&name, &emojis, &by, &theme.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan theme: %w", err)
		}
		theme.Name = name
		theme.CreatedBy = profile.UserID(by)
		if err := json.Unmarshal([]byte(emojis), &theme.Emojis); err != nil {
			return fmt.Errorf("failed to decode theme %s: %w", name, err)
		}
		snap.Themes[name] = theme
	}
	return trows.Err()
}

func (s *Store) loadLocks(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT chain, name, unlock, kind, created_by, created_at FROM starlocks`)
	if err != nil {
		return fmt.Errorf("failed to load starlocks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, kind, by string
		var lock starlock.Lock
		if err := rows.Scan(&key, &lock.Name, &lock.Unlock, &kind, &by, &lock.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan starlock: %w", err)
		}
		lock.Chain = chain.Key(key)
		lock.Kind = starlock.Kind(kind)
		lock.CreatedBy = profile.UserID(by)
		snap.Locks[lock.Chain] = lock
	}
	if err := rows.Err(); err != nil {
		return err
	}

	urows, err := s.db.Query(`SELECT id, at FROM unlocks`)
	if err != nil {
		return fmt.Errorf("failed to load unlocks: %w", err)
	}
	defer urows.Close()
	for urows.Next() {
		var id string
		var at time.Time
		if err := urows.Scan(&id, &at); err != nil {
			return fmt.Errorf("failed to scan unlock: %w", err)
		}
		snap.Unlocked[id] = at
	}
	return urows.Err()
}

func (s *Store) loadModeration(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT chain, flagged_by, author_id, message_ref, context, at
		FROM problematic_flags ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("failed to load flags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, by, author string
		var f moderation.Flag
		if err := rows.Scan(&key, &by, &author, &f.MessageRef, &f.Context, &f.At); err != nil {
			return fmt.Errorf("failed to scan flag: %w", err)
		}
		f.Chain = chain.Key(key)
		f.FlaggedBy = profile.UserID(by)
		f.AuthorID = profile.UserID(author)
		snap.Flags = append(snap.Flags, f)
	}
	return rows.Err()
}

func (s *Store) loadTraining(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT id, name, task, chain, reward, detection, count, next,
		created_by, created_at FROM custom_quests`)
	if err != nil {
		return fmt.Errorf("failed to load quests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, detection, next, by, chainJSON string
		var q training.Quest
		var createdAt sql.NullTime
		if err := rows.Scan(&id, &q.Name, &q.Task, &chainJSON, &q.Reward, &detection,
			&q.Count, &next, &by, &createdAt); err != nil {
			return fmt.Errorf("failed to scan quest: %w", err)
		}
		q.ID = profile.QuestID(id)
		q.Detection = training.Detection(detection)
		q.Next = profile.QuestID(next)
		q.CreatedBy = profile.UserID(by)
		if createdAt.Valid {
			q.CreatedAt = createdAt.Time
		}
		if err := json.Unmarshal([]byte(chainJSON), &q.Chain); err != nil {
			return fmt.Errorf("failed to decode quest %s: %w", id, err)
		}
		snap.Quests = append(snap.Quests, q)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	arows, err := s.db.Query(`SELECT user_id, quest_ids FROM assignments`)
	if err != nil {
		return fmt.Errorf("failed to load assignments: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var user, idsJSON string
		if err := arows.Scan(&user, &idsJSON); err != nil {
			return fmt.Errorf("failed to scan assignments: %w", err)
		}
		var ids []profile.QuestID
		if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
			return fmt.Errorf("failed to decode assignments for %s: %w", user, err)
		}
		snap.Assignments[profile.UserID(user)] = ids
	}
	return arows.Err()
}

func (s *Store) loadMeta(snap *Snapshot) error {
	rows, err := s.db.Query(`SELECT user_id, roles FROM held_roles`)
	if err != nil {
		return fmt.Errorf("failed to load held roles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var user, rolesJSON string
		if err := rows.Scan(&user, &rolesJSON); err != nil {
			return fmt.Errorf("failed to scan held roles: %w", err)
		}
		var held []roles.Key
		if err := json.Unmarshal([]byte(rolesJSON), &held); err != nil {
			return fmt.Errorf("failed to decode roles for %s: %w", user, err)
		}
		snap.HeldRoles[profile.UserID(user)] = held
	}
	if err := rows.Err(); err != nil {
		return err
	}

	crows, err := s.db.Query(`SELECT channel_ref, message_ref, at FROM backfill_checkpoints`)
	if err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var channel string
		var cp Checkpoint
		if err := crows.Scan(&channel, &cp.MessageRef, &cp.At); err != nil {
			return fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		snap.Checkpoints[channel] = cp
	}
	if err := crows.Err(); err != nil {
		return err
	}

	var alignment string
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key = 'alignment'`).Scan(&alignment)
	switch {
	case err == sql.ErrNoRows:
		snap.Alignment = lexicon.DefaultAlignment
	case err != nil:
		return fmt.Errorf("failed to load alignment: %w", err)
	default:
		snap.Alignment = alignment
	}
	return nil
}
