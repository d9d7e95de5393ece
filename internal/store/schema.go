package store

// schemaVersion is bumped whenever the schema changes shape. Migration is
// an explicit version check at open; there are no in-place migrations yet.
const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    session_id           TEXT PRIMARY KEY,
    slug                 TEXT,
    project_dir          TEXT,
    working_dir          TEXT,
    git_branch           TEXT,
    model                TEXT,
    version              TEXT,
    first_message        TEXT,
    last_message         TEXT,
    message_count        INTEGER NOT NULL DEFAULT 0,
    user_msg_count       INTEGER NOT NULL DEFAULT 0,
    asst_msg_count       INTEGER NOT NULL DEFAULT 0,
    total_input_tokens   INTEGER NOT NULL DEFAULT 0,
    total_output_tokens  INTEGER NOT NULL DEFAULT 0,
    total_cache_read     INTEGER NOT NULL DEFAULT 0,
    total_cache_create   INTEGER NOT NULL DEFAULT 0,
    duration_ms          INTEGER NOT NULL DEFAULT 0,
    file_size_bytes      INTEGER NOT NULL DEFAULT 0,
    jsonl_path           TEXT,
    indexed_at           TEXT
);

CREATE TABLE IF NOT EXISTS messages (
    uuid           TEXT PRIMARY KEY,
    session_id     TEXT NOT NULL REFERENCES sessions(session_id),
    parent_uuid    TEXT,
    role           TEXT NOT NULL,
    content_text   TEXT NOT NULL DEFAULT '',
    model          TEXT,
    input_tokens   INTEGER NOT NULL DEFAULT 0,
    output_tokens  INTEGER NOT NULL DEFAULT 0,
    cache_read     INTEGER NOT NULL DEFAULT 0,
    cache_create   INTEGER NOT NULL DEFAULT 0,
    has_thinking   INTEGER NOT NULL DEFAULT 0,
    thinking_text  TEXT,
    timestamp      TEXT,
    seq_num        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tool_uses (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    tool_use_id    TEXT,
    session_id     TEXT NOT NULL REFERENCES sessions(session_id),
    message_uuid   TEXT,
    tool_name      TEXT NOT NULL,
    input_summary  TEXT,
    timestamp      TEXT
);

CREATE TABLE IF NOT EXISTS file_events (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id     TEXT NOT NULL REFERENCES sessions(session_id),
    file_path      TEXT NOT NULL,
    event_type     TEXT NOT NULL,
    timestamp      TEXT
);

CREATE TABLE IF NOT EXISTS index_meta (
    jsonl_path     TEXT PRIMARY KEY,
    session_id     TEXT,
    offset_bytes   INTEGER NOT NULL DEFAULT 0,
    file_mtime_ns  INTEGER NOT NULL DEFAULT 0,
    indexed_at     TEXT
);

CREATE TABLE IF NOT EXISTS push_subscriptions (
    endpoint       TEXT PRIMARY KEY,
    p256dh_key     TEXT,
    auth_key       TEXT,
    user_agent     TEXT,
    created_at     TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_last ON sessions(last_message DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_dir);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq_num);
CREATE INDEX IF NOT EXISTS idx_tool_uses_session ON tool_uses(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_uses_name ON tool_uses(tool_name);
CREATE INDEX IF NOT EXISTS idx_tool_uses_time ON tool_uses(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_file_events_session ON file_events(session_id);
`

// The FTS table shadows messages via triggers so the rowid sets stay equal
// under any mix of inserts and deletes.
const ftsSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    content_text,
    thinking_text,
    content='messages',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, content_text, thinking_text)
    VALUES (new.rowid, new.content_text, new.thinking_text);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content_text, thinking_text)
    VALUES ('delete', old.rowid, old.content_text, old.thinking_text);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content_text, thinking_text)
    VALUES ('delete', old.rowid, old.content_text, old.thinking_text);
    INSERT INTO messages_fts(rowid, content_text, thinking_text)
    VALUES (new.rowid, new.content_text, new.thinking_text);
END;
`
