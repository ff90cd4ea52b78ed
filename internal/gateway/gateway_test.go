package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/finoramarket/ai-gateway/internal/gemini"
	"github.com/finoramarket/ai-gateway/internal/quota"
)

// fakeDispatcher is a scripted upstream: returns queued replies in order,
// or a fixed error.
type fakeDispatcher struct {
	calls   int
	replies []string
	err     error
}

func (f *fakeDispatcher) GenerateContent(ctx context.Context, key, prompt string, cfg gemini.GenerationConfig) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "ok", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func validListing() Listing {
	return Listing{
		Title:       "iPhone 13",
		Description: "Yangi holatda, to'liq komplekt",
		Category:    "Elektronika",
		Price:       5000000,
		City:        "Parkent",
	}
}

func newTestGateway(keys []string, keyLimit int, d Dispatcher) (*Gateway, *quota.Ledger) {
	ledger := quota.NewLedger(quota.DefaultLimits())
	g := New(keys, keyLimit, ledger, d, nil)
	return g, ledger
}

func TestChat_Success(t *testing.T) {
	d := &fakeDispatcher{replies: []string{"  Assalomu alaykum, hurmatli foydalanuvchi!  "}}
	g, ledger := newTestGateway([]string{"AIzaKey1"}, 50, d)

	reply, err := g.Chat(context.Background(), "user-1", "salom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Assalomu alaykum, hurmatli foydalanuvchi!" {
		t.Fatalf("reply must be trimmed, got %q", reply)
	}

	if got := ledger.GetStatus("user-1").QuestionsUsedToday; got != 1 {
		t.Fatalf("expected 1 question consumed, got %d", got)
	}
	if got := g.Status().CurrentUsage; got != 1 {
		t.Fatalf("expected credential usage 1, got %d", got)
	}
}

func TestChat_NotConfigured(t *testing.T) {
	d := &fakeDispatcher{}
	g, _ := newTestGateway(nil, 50, d)

	if g.IsConfigured() {
		t.Fatalf("gateway with no credentials must report unconfigured")
	}
	_, err := g.Chat(context.Background(), "user-1", "salom")
	assertCode(t, err, CodeNotConfigured)
	if d.calls != 0 {
		t.Fatalf("dispatch must not run when unconfigured")
	}
}

func TestChat_EmptyReplyIsUpstreamError(t *testing.T) {
	d := &fakeDispatcher{replies: []string{"   "}}
	g, ledger := newTestGateway([]string{"AIzaKey1"}, 50, d)

	_, err := g.Chat(context.Background(), "user-1", "salom")
	assertCode(t, err, CodeUpstreamError)

	// An empty reply is a failure: nothing is consumed
	if got := ledger.GetStatus("user-1").QuestionsUsedToday; got != 0 {
		t.Fatalf("empty reply must not burn quota, got %d", got)
	}
	if got := g.Status().CurrentUsage; got != 0 {
		t.Fatalf("empty reply must not burn credential usage, got %d", got)
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	d := &fakeDispatcher{}
	g, _ := newTestGateway([]string{"AIzaKey1"}, 50, d)

	for _, l := range []Listing{
		{},
		{Title: "t", Description: "d", Category: "c"},             // zero price
		{Title: "t", Description: "d", Price: 100},                // missing category
		{Title: " ", Description: "d", Category: "c", Price: 100}, // blank title
	} {
		_, err := g.Analyze(context.Background(), "user-1", l)
		assertCode(t, err, CodeInvalidInput)
	}
	if d.calls != 0 {
		t.Fatalf("invalid input must never reach dispatch")
	}
}

func TestAnalyze_NoQuotaBurnOnFailure(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("connection refused")}
	g, ledger := newTestGateway([]string{"AIzaKey1"}, 50, d)

	snapshot := func() (int, int) {
		return ledger.GetStatus("user-1").AnalysesUsedToday, g.Status().CurrentUsage
	}

	_, err := g.Analyze(context.Background(), "user-1", validListing())
	assertCode(t, err, CodeUpstreamError)
	a1, c1 := snapshot()

	_, err = g.Analyze(context.Background(), "user-1", validListing())
	assertCode(t, err, CodeUpstreamError)
	a2, c2 := snapshot()

	if a1 != 0 || c1 != 0 || a2 != 0 || c2 != 0 {
		t.Fatalf("failed dispatches must leave counters unchanged: %d/%d then %d/%d", a1, c1, a2, c2)
	}
}

func TestAnalyze_QuotaIndependentOfPool(t *testing.T) {
	d := &fakeDispatcher{}
	g, ledger := newTestGateway([]string{"AIzaKey1"}, 50, d)

	// Exhaust the user's analysis allowance while credentials stay fresh
	for i := 0; i < 10; i++ {
		ledger.Consume("user-1", quota.OpAnalysis)
	}

	_, err := g.Analyze(context.Background(), "user-1", validListing())
	gerr := assertCode(t, err, CodeQuotaExceeded)
	if gerr.Class != quota.OpAnalysis {
		t.Fatalf("expected analysis class on quota error, got %q", gerr.Class)
	}
	if d.calls != 0 {
		t.Fatalf("quota-limited user must never trigger dispatch")
	}

	// The question class is untouched
	if !ledger.CanConsume("user-1", quota.OpQuestion) {
		t.Fatalf("question allowance must be independent")
	}
}

func TestAnalyze_EndToEndRotationAndCapacity(t *testing.T) {
	d := &fakeDispatcher{replies: []string{
		`{"score": 5, "analysis": "birinchi", "keywords": ["a"]}`,
		`{"score": 6, "analysis": "ikkinchi", "keywords": ["b"]}`,
	}}
	// 2 credentials, each limited to a single call per day
	g, ledger := newTestGateway([]string{"AIzaKeyA", "AIzaKeyB"}, 1, d)

	r1, err := g.Analyze(context.Background(), "user-1", validListing())
	if err != nil {
		t.Fatalf("call 1 failed: %v", err)
	}
	if r1.Score != 5 {
		t.Fatalf("call 1: unexpected score %v", r1.Score)
	}

	r2, err := g.Analyze(context.Background(), "user-1", validListing())
	if err != nil {
		t.Fatalf("call 2 failed: %v", err)
	}
	if r2.Score != 6 {
		t.Fatalf("call 2: unexpected score %v", r2.Score)
	}
	if s := g.Status(); s.CurrentKey != 2 {
		t.Fatalf("call 2 should have rotated to credential 2, status %+v", s)
	}

	// Third call: both credentials saturated
	_, err = g.Analyze(context.Background(), "user-1", validListing())
	assertCode(t, err, CodeCapacityExhausted)

	// Capacity failure must not touch the user's quota
	if got := ledger.GetStatus("user-1").AnalysesUsedToday; got != 2 {
		t.Fatalf("expected 2 analyses consumed after capacity failure, got %d", got)
	}
	if d.calls != 2 {
		t.Fatalf("capacity failure must not dispatch, got %d calls", d.calls)
	}
}

func TestAnalyze_MalformedUpstreamStillSucceeds(t *testing.T) {
	d := &fakeDispatcher{replies: []string{"```json\n{\"score\": 8, \"analysis\": \"Solid liste"}}
	g, ledger := newTestGateway([]string{"AIzaKey1"}, 50, d)

	res, err := g.Analyze(context.Background(), "user-1", validListing())
	if err != nil {
		t.Fatalf("recovery parser must absorb malformed output: %v", err)
	}
	if res.Score != 8 {
		t.Fatalf("expected recovered score 8, got %v", res.Score)
	}
	// A recovered parse is a success: quota is consumed
	if got := ledger.GetStatus("user-1").AnalysesUsedToday; got != 1 {
		t.Fatalf("expected 1 analysis consumed, got %d", got)
	}
}

func TestAnalyzeBatch_CollectsPerItemResults(t *testing.T) {
	d := &fakeDispatcher{replies: []string{`{"score": 7, "analysis": "ok", "keywords": ["x"]}`}}
	g, _ := newTestGateway([]string{"AIzaKey1"}, 50, d)

	items := []BatchListing{
		{ID: "l1", Listing: validListing()},
		{ID: "l2", Listing: Listing{}}, // invalid
	}
	results := g.AnalyzeBatch(context.Background(), "user-1", items)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "l1" || results[0].Result == nil || results[0].Error != "" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].ID != "l2" || results[1].Result != nil || results[1].Error != string(CodeInvalidInput) {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
}

func TestReconfigure_EnablesDisabledGateway(t *testing.T) {
	d := &fakeDispatcher{}
	g, _ := newTestGateway(nil, 50, d)

	_, err := g.Chat(context.Background(), "user-1", "salom")
	assertCode(t, err, CodeNotConfigured)

	g.Reconfigure([]string{"AIzaNewKey"}, 50)
	if !g.IsConfigured() {
		t.Fatalf("gateway must be configured after reconfigure")
	}
	if _, err := g.Chat(context.Background(), "user-1", "salom"); err != nil {
		t.Fatalf("chat should work after reconfigure: %v", err)
	}
}

func assertCode(t *testing.T, err error, code Code) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var gerr *Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *gateway.Error, got %T: %v", err, err)
	}
	if gerr.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, gerr.Code, err)
	}
	return gerr
}
