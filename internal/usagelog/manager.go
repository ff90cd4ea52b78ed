// Package usagelog keeps an append-only record of AI gateway calls for
// the admin dashboard. Failed dispatches are logged too; they just never
// count against anyone's quota.
package usagelog

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Call is one logged gateway operation.
type Call struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	UserID     string    `json:"userId"`
	Operation  string    `json:"operation"` // question | analysis
	KeyIndex   int       `json:"keyIndex"`  // credential that served it, -1 when none was selected
	DurationMs int64     `json:"durationMs"`
	Success    bool      `json:"success"`
	ErrorCode  string    `json:"errorCode,omitempty"`
	Score      float64   `json:"score,omitempty"` // analysis only
}

// DayStats aggregates one calendar day of calls.
type DayStats struct {
	Day       string  `json:"day"`
	Total     int     `json:"total"`
	Succeeded int     `json:"succeeded"`
	Questions int     `json:"questions"`
	Analyses  int     `json:"analyses"`
	AvgMs     float64 `json:"avgDurationMs"`
}

// Manager persists call records to SQLite.
type Manager struct {
	db *sql.DB
}

// NewManager creates the manager and ensures the schema exists.
func NewManager(db *sql.DB) (*Manager, error) {
	m := &Manager{db: db}
	if err := m.initSchema(); err != nil {
		return nil, err
	}
	log.Printf("📊 调用日志管理器已初始化")
	return m, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ai_calls (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp   DATETIME NOT NULL,
		user_id     TEXT NOT NULL,
		operation   TEXT NOT NULL,
		key_index   INTEGER NOT NULL DEFAULT -1,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		success     INTEGER NOT NULL DEFAULT 0,
		error_code  TEXT NOT NULL DEFAULT '',
		score       REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_ai_calls_timestamp ON ai_calls(timestamp);
	CREATE INDEX IF NOT EXISTS idx_ai_calls_user ON ai_calls(user_id);
	`
	if _, err := m.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create ai_calls table: %w", err)
	}
	return nil
}

// RecordCall appends one call record. Best effort: a storage failure is
// logged, never propagated into the request path.
func (m *Manager) RecordCall(c Call) {
	if m == nil {
		return
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	_, err := m.db.Exec(`
		INSERT INTO ai_calls (timestamp, user_id, operation, key_index, duration_ms, success, error_code, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Timestamp.UTC().Format(time.RFC3339Nano), c.UserID, c.Operation,
		c.KeyIndex, c.DurationMs, boolToInt(c.Success), c.ErrorCode, c.Score)
	if err != nil {
		log.Printf("⚠️ [UsageLog] 写入调用记录失败: %v", err)
	}
}

// GetRecent returns the newest records, capped at limit.
func (m *Manager) GetRecent(limit int) ([]Call, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := m.db.Query(`
		SELECT id, timestamp, user_id, operation, key_index, duration_ms, success, error_code, score
		FROM ai_calls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		var ts string
		var success int
		if err := rows.Scan(&c.ID, &ts, &c.UserID, &c.Operation, &c.KeyIndex,
			&c.DurationMs, &success, &c.ErrorCode, &c.Score); err != nil {
			return nil, fmt.Errorf("failed to scan call row: %w", err)
		}
		c.Success = success != 0
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			c.Timestamp = t
		}
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// GetDailyStats aggregates the last `days` calendar days.
func (m *Manager) GetDailyStats(days int) ([]DayStats, error) {
	if days <= 0 || days > 90 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339Nano)
	rows, err := m.db.Query(`
		SELECT substr(timestamp, 1, 10) AS day,
		       COUNT(*),
		       SUM(success),
		       SUM(CASE WHEN operation = 'question' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN operation = 'analysis' THEN 1 ELSE 0 END),
		       AVG(duration_ms)
		FROM ai_calls
		WHERE timestamp >= ?
		GROUP BY day ORDER BY day DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []DayStats
	for rows.Next() {
		var s DayStats
		if err := rows.Scan(&s.Day, &s.Total, &s.Succeeded, &s.Questions, &s.Analyses, &s.AvgMs); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes records older than maxAge. Returns rows removed.
func (m *Manager) Cleanup(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339Nano)
	res, err := m.db.Exec(`DELETE FROM ai_calls WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup calls: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
