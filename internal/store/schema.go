package store

// schemaVersion is the schema version this binary understands. Startup
// refuses to operate against a store with a higher schema_version (spec
// §4.1: "no silent upgrade").
const schemaVersion = 1

// schemaDDL is executed once, inside a transaction, against a fresh or
// reopened database. Every statement is idempotent (CREATE TABLE IF NOT
// EXISTS / CREATE INDEX IF NOT EXISTS) so ensureSchema can run on every
// Open without guarding on "is this a new file".
const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	name               TEXT PRIMARY KEY,
	workspace_path     TEXT NOT NULL,
	status             TEXT NOT NULL,
	branch_state_kind  TEXT NOT NULL,
	branch_state_name  TEXT NOT NULL DEFAULT '',
	parent_state_kind  TEXT NOT NULL,
	parent_name        TEXT NOT NULL DEFAULT '',
	agent_id           TEXT NOT NULL DEFAULT '',
	bead_id            TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_name);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS queue_entries (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace          TEXT NOT NULL,
	bead_id            TEXT NOT NULL DEFAULT '',
	priority           INTEGER NOT NULL,
	status             TEXT NOT NULL,
	claim_state        TEXT NOT NULL DEFAULT 'unclaimed',
	claim_agent        TEXT NOT NULL DEFAULT '',
	claimed_at         TEXT,
	expires_at         TEXT,
	prev_agent         TEXT NOT NULL DEFAULT '',
	expired_at         TEXT,
	submitted_at       TEXT NOT NULL,
	state_changed_at   TEXT NOT NULL,
	started_at         TEXT,
	dedupe_key         TEXT NOT NULL,
	retry_count        INTEGER NOT NULL DEFAULT 0,
	parent_workspace   TEXT NOT NULL DEFAULT '',
	last_error         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_queue_claim_order ON queue_entries(status, priority, submitted_at, id);
CREATE INDEX IF NOT EXISTS idx_queue_workspace ON queue_entries(workspace);
CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_dedupe_nonterminal
	ON queue_entries(dedupe_key)
	WHERE status NOT IN ('completed', 'failed', 'cancelled');

CREATE TABLE IF NOT EXISTS processing_lock (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	agent_id    TEXT NOT NULL,
	acquired_at TEXT NOT NULL,
	expires_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conflict_resolutions (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	queue_entry_id       INTEGER NOT NULL,
	decider              TEXT NOT NULL,
	resolved_at          TEXT NOT NULL,
	conflict_type        TEXT NOT NULL,
	resolution_strategy  TEXT NOT NULL,
	notes                TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_conflict_resolutions_entry ON conflict_resolutions(queue_entry_id, conflict_type);

CREATE TABLE IF NOT EXISTS recovery_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp       TEXT NOT NULL,
	kind            TEXT NOT NULL,
	details         TEXT NOT NULL,
	applied_policy  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type    TEXT NOT NULL,
	aggregate_id  TEXT NOT NULL,
	occurred_at   TEXT NOT NULL,
	payload       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_domain_events_aggregate ON domain_events(aggregate_id, occurred_at);
`
