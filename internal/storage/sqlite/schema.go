package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    deadline TEXT,
    task_rank INTEGER NOT NULL DEFAULT 0 CHECK(task_rank >= 0),
    parent_id TEXT,
    depth INTEGER NOT NULL DEFAULT 0,
    completed INTEGER NOT NULL DEFAULT 0,
    completed_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    collaborators TEXT,
    sync_status TEXT NOT NULL DEFAULT 'pending',
    last_synced_at TEXT,
    server_updated_at TEXT,
    CHECK ((completed = 1) = (completed_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_tasks_rank ON tasks(task_rank);
CREATE INDEX IF NOT EXISTS idx_tasks_completed_at ON tasks(completed_at);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_completed_rank ON tasks(completed, task_rank);
CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_sync_status ON tasks(sync_status);

CREATE TABLE IF NOT EXISTS sync_queue (
    queue_id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id TEXT NOT NULL,
    operation TEXT NOT NULL CHECK(operation IN ('create', 'update', 'delete')),
    payload TEXT,
    enqueued_at TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    next_attempt_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_task ON sync_queue(task_id);

CREATE TABLE IF NOT EXISTS metadata (
    meta_key TEXT PRIMARY KEY,
    meta_value TEXT NOT NULL
)
`
