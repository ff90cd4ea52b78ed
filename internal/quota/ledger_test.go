package quota

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/finoramarket/ai-gateway/internal/database"
)

func testLedger(now time.Time) *Ledger {
	l := NewLedger(DefaultLimits())
	l.now = func() time.Time { return now }
	return l
}

func TestCanConsume_StandardLimits(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := testLedger(now)

	for i := 0; i < 10; i++ {
		if !l.CanConsume("user-1", OpQuestion) {
			t.Fatalf("question %d: expected allowance for standard user", i)
		}
		l.Consume("user-1", OpQuestion)
	}
	if l.CanConsume("user-1", OpQuestion) {
		t.Fatalf("expected question allowance exhausted at 10")
	}

	// Analysis class is independent of the question class
	if !l.CanConsume("user-1", OpAnalysis) {
		t.Fatalf("analysis allowance must be independent of questions")
	}
}

func TestCanConsume_ElevatedTier(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := testLedger(now)

	l.SetTier("vip", TierElevated)
	for i := 0; i < 50; i++ {
		if !l.CanConsume("vip", OpAnalysis) {
			t.Fatalf("analysis %d: expected elevated allowance of 50", i)
		}
		l.Consume("vip", OpAnalysis)
	}
	if l.CanConsume("vip", OpAnalysis) {
		t.Fatalf("expected elevated analysis allowance exhausted at 50")
	}
}

func TestDayRollover_ResetsCounters(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	l := testLedger(now)

	for i := 0; i < 10; i++ {
		l.Consume("user-2", OpAnalysis)
	}
	if l.CanConsume("user-2", OpAnalysis) {
		t.Fatalf("expected allowance exhausted")
	}

	l.now = func() time.Time { return now.Add(time.Hour) } // past midnight

	if !l.CanConsume("user-2", OpAnalysis) {
		t.Fatalf("expected allowance restored after day rollover")
	}
	status := l.GetStatus("user-2")
	if status.AnalysesUsedToday != 0 {
		t.Fatalf("expected counter reset to 0, got %d", status.AnalysesUsedToday)
	}
}

func TestRollover_KeepsTier(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := testLedger(now)

	l.SetTier("vip", TierElevated)
	l.now = func() time.Time { return now.AddDate(0, 0, 3) }

	status := l.GetStatus("vip")
	if status.Tier != string(TierElevated) {
		t.Fatalf("tier must survive day rollover, got %q", status.Tier)
	}
	if status.QuestionLimit != 50 || status.AnalysisLimit != 50 {
		t.Fatalf("expected elevated limits, got %+v", status)
	}
}

func TestGetStatus_Defaults(t *testing.T) {
	l := testLedger(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	status := l.GetStatus("fresh-user")
	if status.Tier != string(TierStandard) {
		t.Fatalf("expected standard tier by default, got %q", status.Tier)
	}
	if status.QuestionsUsedToday != 0 || status.AnalysesUsedToday != 0 {
		t.Fatalf("fresh user must start at zero: %+v", status)
	}
	if status.QuestionLimit != 10 || status.AnalysisLimit != 10 {
		t.Fatalf("unexpected standard limits: %+v", status)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "quota.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	storage, err := NewDBStorage(db)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := testLedger(now)
	l.SetPersister(storage)

	l.SetTier("user-9", TierElevated)
	l.Consume("user-9", OpQuestion)
	l.Consume("user-9", OpAnalysis)
	l.Consume("user-9", OpAnalysis)

	// A fresh ledger backed by the same database sees the state
	restored := testLedger(now)
	restored.SetPersister(storage)

	status := restored.GetStatus("user-9")
	if status.QuestionsUsedToday != 1 || status.AnalysesUsedToday != 2 {
		t.Fatalf("unexpected restored usage: %+v", status)
	}
	if status.Tier != string(TierElevated) {
		t.Fatalf("expected restored elevated tier, got %q", status.Tier)
	}
}
