// Package quota tracks per-user daily allowances for the two AI operation
// classes. Independent of the credential pool: a user can be out of quota
// while keys remain available, and vice versa.
package quota

import (
	"log"
	"sync"
	"time"
)

// OpClass is an AI operation class with its own daily allowance.
type OpClass string

const (
	OpQuestion OpClass = "question"
	OpAnalysis OpClass = "analysis"
)

// Tier determines a user's daily allowances.
type Tier string

const (
	TierStandard Tier = "standard"
	TierElevated Tier = "elevated"
)

// Limits holds the per-tier daily allowances for both operation classes.
type Limits struct {
	StandardQuestion int
	StandardAnalysis int
	ElevatedQuestion int
	ElevatedAnalysis int
}

// DefaultLimits mirrors the marketplace defaults (10 daily for standard
// users, 50 for elevated).
func DefaultLimits() Limits {
	return Limits{
		StandardQuestion: 10,
		StandardAnalysis: 10,
		ElevatedQuestion: 50,
		ElevatedAnalysis: 50,
	}
}

// UserRecord is one user's consumption for a single calendar day.
type UserRecord struct {
	UserID    string
	Day       string // "2006-01-02"
	Questions int
	Analyses  int
	Tier      Tier
}

// Status is the read-only quota projection served to the frontend.
type Status struct {
	QuestionsUsedToday int    `json:"questionsUsedToday"`
	QuestionLimit      int    `json:"questionLimit"`
	AnalysesUsedToday  int    `json:"analysesUsedToday"`
	AnalysisLimit      int    `json:"analysisLimit"`
	Tier               string `json:"tier"`
}

// Persister interface for quota persistence
type Persister interface {
	SaveUserQuota(rec *UserRecord) error
	LoadAllUserQuotas() ([]*UserRecord, error)
}

// Ledger manages per-user daily quota records. The in-memory map is the
// hot path; every mutation is written through to the persister when one is
// attached.
type Ledger struct {
	mu        sync.RWMutex
	records   map[string]*UserRecord
	limits    Limits
	persister Persister
	now       func() time.Time
}

// NewLedger creates a ledger with the given limits.
func NewLedger(limits Limits) *Ledger {
	return &Ledger{
		records: make(map[string]*UserRecord),
		limits:  limits,
		now:     time.Now,
	}
}

// SetPersister sets the persistence layer and loads existing records.
func (l *Ledger) SetPersister(p Persister) {
	if l == nil || p == nil {
		return
	}

	l.mu.Lock()
	l.persister = p
	l.mu.Unlock()

	records, err := p.LoadAllUserQuotas()
	if err != nil {
		log.Printf("⚠️ [Quota] 从持久层加载用户配额失败: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range records {
		l.records[rec.UserID] = rec
	}
	if len(records) > 0 {
		log.Printf("📊 [Quota] 已加载 %d 条用户配额记录", len(records))
	}
}

// SetLimits replaces the tier allowances (config hot reload).
func (l *Ledger) SetLimits(limits Limits) {
	l.mu.Lock()
	l.limits = limits
	l.mu.Unlock()
}

// CanConsume reports whether the user still has allowance for the class
// today. Must be checked before dispatch.
func (l *Ledger) CanConsume(userID string, class OpClass) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.getOrCreateLocked(userID)
	used, limit := l.usageLocked(rec, class)
	return used < limit
}

// Consume burns one unit of the user's allowance for the class. Call only
// after a successful upstream exchange; failed dispatches must not consume.
func (l *Ledger) Consume(userID string, class OpClass) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.getOrCreateLocked(userID)
	switch class {
	case OpQuestion:
		rec.Questions++
	case OpAnalysis:
		rec.Analyses++
	}
	l.persistLocked(rec)
}

// SetTier updates a user's tier (admin operation). Counters for the
// current day are kept.
func (l *Ledger) SetTier(userID string, tier Tier) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.getOrCreateLocked(userID)
	rec.Tier = tier
	l.persistLocked(rec)
	log.Printf("✅ [Quota] 用户 %s 的等级已变更为 %s", userID, tier)
}

// GetStatus returns the user's quota projection for today.
func (l *Ledger) GetStatus(userID string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.getOrCreateLocked(userID)
	qUsed, qLimit := l.usageLocked(rec, OpQuestion)
	aUsed, aLimit := l.usageLocked(rec, OpAnalysis)
	return Status{
		QuestionsUsedToday: qUsed,
		QuestionLimit:      qLimit,
		AnalysesUsedToday:  aUsed,
		AnalysisLimit:      aLimit,
		Tier:               string(rec.Tier),
	}
}

// getOrCreateLocked returns the user's record for today, creating it
// lazily and rolling counters over on day change. Lock must be held.
func (l *Ledger) getOrCreateLocked(userID string) *UserRecord {
	today := l.now().Format("2006-01-02")

	rec, ok := l.records[userID]
	if !ok {
		rec = &UserRecord{
			UserID: userID,
			Day:    today,
			Tier:   TierStandard,
		}
		l.records[userID] = rec
		return rec
	}

	if rec.Day != today {
		rec.Day = today
		rec.Questions = 0
		rec.Analyses = 0
		l.persistLocked(rec)
	}
	return rec
}

// usageLocked resolves used/limit for a class under the user's tier.
func (l *Ledger) usageLocked(rec *UserRecord, class OpClass) (used, limit int) {
	elevated := rec.Tier == TierElevated
	switch class {
	case OpQuestion:
		if elevated {
			return rec.Questions, l.limits.ElevatedQuestion
		}
		return rec.Questions, l.limits.StandardQuestion
	case OpAnalysis:
		if elevated {
			return rec.Analyses, l.limits.ElevatedAnalysis
		}
		return rec.Analyses, l.limits.StandardAnalysis
	}
	return 0, 0
}

func (l *Ledger) persistLocked(rec *UserRecord) {
	if l.persister == nil {
		return
	}
	saved := *rec
	if err := l.persister.SaveUserQuota(&saved); err != nil {
		log.Printf("⚠️ [Quota] 持久化用户 %s 配额失败: %v", rec.UserID, err)
	}
}
