package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                 INTEGER PRIMARY KEY,
	task_number        TEXT NOT NULL DEFAULT '',
	title              TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	address            TEXT NOT NULL DEFAULT '',
	lat                REAL NOT NULL DEFAULT 0,
	lon                REAL NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'NEW',
	priority           INTEGER NOT NULL DEFAULT 1,
	planned_date       DATETIME,
	completed_at       DATETIME,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	assigned_user_id   INTEGER,
	assigned_user_name TEXT NOT NULL DEFAULT '',
	customer_name      TEXT NOT NULL DEFAULT '',
	customer_phone     TEXT NOT NULL DEFAULT '',
	pending_status     TEXT,
	locally_modified   INTEGER NOT NULL DEFAULT 0,
	last_synced_at     DATETIME
);

CREATE TABLE IF NOT EXISTS comments (
	pk         INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id  INTEGER,
	temp_id    TEXT,
	task_id    INTEGER NOT NULL,
	text       TEXT NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	old_status TEXT,
	new_status TEXT,
	created_at DATETIME NOT NULL,
	local_only INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_comments_server_id
	ON comments(server_id) WHERE server_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_comments_temp_id
	ON comments(temp_id) WHERE temp_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_comments_task_id ON comments(task_id);

CREATE TABLE IF NOT EXISTS pending_actions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id      INTEGER NOT NULL,
	action_type  TEXT NOT NULL,
	action_uid   TEXT NOT NULL,
	new_status   TEXT,
	comment_text TEXT NOT NULL DEFAULT '',
	temp_id      TEXT NOT NULL DEFAULT '',
	retry_count  INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_priority_created ON tasks(priority, created_at);
CREATE INDEX IF NOT EXISTS idx_tasks_planned_date ON tasks(planned_date);
CREATE INDEX IF NOT EXISTS idx_actions_task_id ON pending_actions(task_id);
CREATE INDEX IF NOT EXISTS idx_actions_created ON pending_actions(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
