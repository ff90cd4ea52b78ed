package quota

import (
	"database/sql"
	"fmt"
)

// DBStorage provides database-backed storage for user quota records.
type DBStorage struct {
	db *sql.DB
}

// NewDBStorage creates the storage adapter and ensures the schema exists.
func NewDBStorage(db *sql.DB) (*DBStorage, error) {
	s := &DBStorage{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DBStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_quota (
		user_id    TEXT PRIMARY KEY,
		day        TEXT NOT NULL,
		questions  INTEGER NOT NULL DEFAULT 0,
		analyses   INTEGER NOT NULL DEFAULT 0,
		tier       TEXT NOT NULL DEFAULT 'standard',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create user_quota table: %w", err)
	}
	return nil
}

// SaveUserQuota upserts one user's record.
func (s *DBStorage) SaveUserQuota(rec *UserRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO user_quota (user_id, day, questions, analyses, tier, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			day = excluded.day,
			questions = excluded.questions,
			analyses = excluded.analyses,
			tier = excluded.tier,
			updated_at = CURRENT_TIMESTAMP`,
		rec.UserID, rec.Day, rec.Questions, rec.Analyses, string(rec.Tier))
	if err != nil {
		return fmt.Errorf("failed to save user quota: %w", err)
	}
	return nil
}

// LoadAllUserQuotas returns every stored record.
func (s *DBStorage) LoadAllUserQuotas() ([]*UserRecord, error) {
	rows, err := s.db.Query(`SELECT user_id, day, questions, analyses, tier FROM user_quota`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user quotas: %w", err)
	}
	defer rows.Close()

	var records []*UserRecord
	for rows.Next() {
		var rec UserRecord
		var tier string
		if err := rows.Scan(&rec.UserID, &rec.Day, &rec.Questions, &rec.Analyses, &tier); err != nil {
			return nil, fmt.Errorf("failed to scan user quota row: %w", err)
		}
		rec.Tier = Tier(tier)
		records = append(records, &rec)
	}
	return records, rows.Err()
}
