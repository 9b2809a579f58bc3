package dolt

// Timestamps are fixed-width UTC strings, as in the SQLite backend, so the
// shared queries compare them the same way on both.
const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    title VARCHAR(500) NOT NULL,
    description TEXT NOT NULL,
    deadline VARCHAR(32),
    task_rank INT NOT NULL DEFAULT 0,
    parent_id VARCHAR(64),
    depth INT NOT NULL DEFAULT 0,
    completed TINYINT(1) NOT NULL DEFAULT 0,
    completed_at VARCHAR(32),
    created_at VARCHAR(32) NOT NULL,
    updated_at VARCHAR(32) NOT NULL,
    collaborators TEXT,
    sync_status VARCHAR(16) NOT NULL DEFAULT 'pending',
    last_synced_at VARCHAR(32),
    server_updated_at VARCHAR(32),
    INDEX idx_tasks_rank (task_rank),
    INDEX idx_tasks_completed_at (completed_at),
    INDEX idx_tasks_created_at (created_at),
    INDEX idx_tasks_completed_rank (completed, task_rank),
    INDEX idx_tasks_parent (parent_id),
    INDEX idx_tasks_sync_status (sync_status)
);

CREATE TABLE IF NOT EXISTS sync_queue (
    queue_id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    task_id VARCHAR(64) NOT NULL,
    operation VARCHAR(16) NOT NULL,
    payload TEXT,
    enqueued_at VARCHAR(32) NOT NULL,
    retry_count INT NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL,
    next_attempt_at VARCHAR(32),
    INDEX idx_sync_queue_task (task_id)
);

CREATE TABLE IF NOT EXISTS metadata (
    meta_key VARCHAR(128) NOT NULL PRIMARY KEY,
    meta_value TEXT NOT NULL
)
`
