// Package postgres provides PostgreSQL implementations of storage interfaces.
package postgres

// Schema contains the SQL statements to create the database schema for
// PostgreSQL. Every statement is idempotent.
const Schema = `
-- Memory events: append-only log of agent observations.
CREATE TABLE IF NOT EXISTS memory_events (
    id TEXT PRIMARY KEY,
    agent_type TEXT NOT NULL,
    event_type TEXT NOT NULL,
    session_id TEXT,
    summary TEXT NOT NULL,

    context_data JSONB,
    key_findings JSONB,
    related_entities JSONB,

    -- Denormalised keys for exact-match resolution lookups
    email_id TEXT,
    task_id TEXT,
    delegation_id TEXT,

    model_used TEXT,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    confidence_score INTEGER NOT NULL DEFAULT 0,

    -- Resolution state; NULL means a legacy row and is treated as active
    status TEXT,
    resolved_at TIMESTAMPTZ,
    resolution_note TEXT,
    annotations JSONB,

    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_memory_events_created_at ON memory_events(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memory_events_agent_created ON memory_events(agent_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memory_events_status ON memory_events(status);
CREATE INDEX IF NOT EXISTS idx_memory_events_email_id ON memory_events(email_id) WHERE email_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_memory_events_task_id ON memory_events(task_id) WHERE task_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_memory_events_delegation_id ON memory_events(delegation_id) WHERE delegation_id IS NOT NULL;

-- Agent work sessions.
CREATE TABLE IF NOT EXISTS agent_sessions (
    id TEXT PRIMARY KEY,
    agent_type TEXT NOT NULL,
    session_type TEXT NOT NULL,
    model_used TEXT,
    status TEXT NOT NULL DEFAULT 'running',
    started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ,
    items_processed INTEGER NOT NULL DEFAULT 0,
    summary TEXT,
    findings JSONB,
    total_tokens INTEGER NOT NULL DEFAULT 0,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_agent_sessions_agent_started ON agent_sessions(agent_type, started_at DESC);
`

// MigrationPgvector adds the summary embedding table. It is only applied
// when the vector extension is available.
const MigrationPgvector = `
CREATE TABLE IF NOT EXISTS event_embeddings (
    event_id TEXT PRIMARY KEY REFERENCES memory_events(id) ON DELETE CASCADE,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL,
    embedding_vec vector NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
