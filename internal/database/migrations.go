package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_activity_log",
		Up: `
-- Activity log (lifecycle and audit events)
CREATE TABLE activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    server_id TEXT,
    actor TEXT,                          -- 'console', 'api:<user>', 'watchdog', 'scheduler'
    activity_type TEXT NOT NULL,         -- 'server.start', 'server.crash', 'command.execute', etc.
    description TEXT,
    metadata TEXT,                       -- JSON for additional context
    success BOOLEAN DEFAULT 1,
    error_message TEXT
);

CREATE INDEX idx_activity_server_time ON activity_log(server_id, timestamp DESC);
CREATE INDEX idx_activity_type ON activity_log(activity_type, timestamp DESC);
`,
	},
	{
		Version: "002_server_metrics",
		Up: `
-- Time-series process samples
CREATE TABLE server_metrics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id TEXT NOT NULL,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status TEXT,                         -- 'online', 'starting', 'offline', 'exited'
    cpu_usage REAL,                      -- Percentage of the whole machine
    memory_used INTEGER,                 -- Bytes
    uptime_seconds INTEGER,
    player_count INTEGER DEFAULT 0,
    player_limit INTEGER DEFAULT 0,
    map TEXT,
    mode TEXT
);

CREATE INDEX idx_metrics_server_time ON server_metrics(server_id, timestamp DESC);
`,
	},
	{
		Version: "003_backups",
		Up: `
-- Instance backups
CREATE TABLE IF NOT EXISTS backups (
    id TEXT PRIMARY KEY,
    server_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    destination_type TEXT NOT NULL,
    destination_path TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    error_message TEXT,
    metadata TEXT,
    created_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_backups_server_id ON backups(server_id);
CREATE INDEX IF NOT EXISTS idx_backups_created_at ON backups(created_at);
CREATE INDEX IF NOT EXISTS idx_backups_status ON backups(status);
`,
	},
	{
		Version: "004_console",
		Up: `
-- Operator command history
CREATE TABLE IF NOT EXISTS console_commands (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id TEXT NOT NULL,
    source TEXT NOT NULL,                -- 'console', 'api', 'rpc', 'scheduler'
    command TEXT NOT NULL,
    executed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    response TEXT,
    success BOOLEAN DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_console_commands_server ON console_commands(server_id, executed_at DESC);

-- Console log files metadata
CREATE TABLE IF NOT EXISTS console_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    server_id TEXT NOT NULL,
    log_path TEXT NOT NULL,
    size_bytes INTEGER DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    rotated_at TIMESTAMP,
    deleted_at TIMESTAMP,
    is_active BOOLEAN DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_console_logs_server ON console_logs(server_id, is_active);
CREATE INDEX IF NOT EXISTS idx_console_logs_created ON console_logs(created_at DESC);
`,
	},
}
