// Package gateway composes credential selection, user quota accounting,
// upstream dispatch and response recovery into the two AI operations the
// marketplace exposes: chat and listing analysis.
//
// Side-effect ordering is the core contract: credential and user counters
// move only after a confirmed successful upstream exchange, so a failed
// dispatch never burns a scarce resource.
package gateway

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/finoramarket/ai-gateway/internal/gemini"
	"github.com/finoramarket/ai-gateway/internal/keypool"
	"github.com/finoramarket/ai-gateway/internal/quota"
	"github.com/finoramarket/ai-gateway/internal/recovery"
	"github.com/finoramarket/ai-gateway/internal/usagelog"
)

// batch processing: group size and pause between groups, matching the
// upstream rate expectations
const (
	batchGroupSize  = 5
	batchGroupPause = time.Second
)

// Dispatcher is the upstream call the gateway composes. *gemini.Client
// satisfies it; tests substitute spies.
type Dispatcher interface {
	GenerateContent(ctx context.Context, key, prompt string, cfg gemini.GenerationConfig) (string, error)
}

// Listing carries the analysis input fields.
type Listing struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	City        string  `json:"city"`
}

// Status is the pool projection plus the configured flag.
type Status struct {
	Configured bool `json:"configured"`
	keypool.Status
}

// BatchListing is one entry of a batch analysis request.
type BatchListing struct {
	ID string `json:"id"`
	Listing
}

// BatchResult pairs a listing ID with its outcome. Result is nil when the
// item failed; Error carries the gateway code.
type BatchResult struct {
	ID     string                   `json:"id"`
	Result *recovery.AnalysisResult `json:"result"`
	Error  string                   `json:"error,omitempty"`
}

// Gateway owns the credential pool and composes the per-call pipeline.
// The pool pointer is swapped wholesale on reconfiguration.
type Gateway struct {
	mu         sync.RWMutex
	pool       *keypool.Pool
	ledger     *quota.Ledger
	dispatcher Dispatcher
	usage      *usagelog.Manager // optional
}

// New builds a gateway over an already-filtered credential list. An empty
// list yields a permanently disabled gateway until Reconfigure is called.
func New(credentials []string, keyLimit int, ledger *quota.Ledger, dispatcher Dispatcher, usage *usagelog.Manager) *Gateway {
	g := &Gateway{
		pool:       keypool.New(credentials, keyLimit),
		ledger:     ledger,
		dispatcher: dispatcher,
		usage:      usage,
	}
	if len(credentials) == 0 {
		log.Printf("⚠️ [Gateway] 未找到有效的 Gemini 凭据，AI 功能已禁用")
	} else {
		log.Printf("✅ [Gateway] 凭据池已就绪 (%d 个凭据, 每日上限 %d 次)", len(credentials), keyLimit)
	}
	return g
}

// Reconfigure replaces the credential pool. In-memory daily counters
// restart from zero; worst case is one extra day of under-restriction.
func (g *Gateway) Reconfigure(credentials []string, keyLimit int) {
	g.mu.Lock()
	g.pool = keypool.New(credentials, keyLimit)
	g.mu.Unlock()
	log.Printf("🔄 [Gateway] 凭据池已重建 (%d 个凭据)", len(credentials))
}

// IsConfigured reports whether the gateway holds any credential at all.
func (g *Gateway) IsConfigured() bool {
	return g.currentPool().Size() > 0
}

// Status returns the display projection of pool state.
func (g *Gateway) Status() Status {
	pool := g.currentPool()
	return Status{
		Configured: pool.Size() > 0,
		Status:     pool.Status(),
	}
}

// QuotaStatus returns the user's quota projection.
func (g *Gateway) QuotaStatus(userID string) quota.Status {
	return g.ledger.GetStatus(userID)
}

// SetTier updates a user's quota tier.
func (g *Gateway) SetTier(userID string, tier quota.Tier) {
	g.ledger.SetTier(userID, tier)
}

// Chat answers one user message. Fails with a typed *Error on any gate;
// quota and credential accounting happen only after upstream success.
func (g *Gateway) Chat(ctx context.Context, userID, message string) (string, error) {
	pool := g.currentPool()
	if pool.Size() == 0 {
		return "", errNotConfigured()
	}
	if !g.ledger.CanConsume(userID, quota.OpQuestion) {
		return "", errQuotaExceeded(quota.OpQuestion)
	}

	cred, ok := pool.SelectUsable()
	if !ok {
		g.record(userID, quota.OpQuestion, -1, 0, false, CodeCapacityExhausted, 0)
		return "", errCapacityExhausted()
	}

	start := time.Now()
	text, err := g.dispatcher.GenerateContent(ctx, cred.Key, chatPrompt(message), chatGenConfig)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("⚠️ [Gateway] chat 上游调用失败 (凭据 #%d): %v", cred.Index+1, err)
		g.record(userID, quota.OpQuestion, cred.Index, elapsed, false, CodeUpstreamError, 0)
		return "", errUpstream(err)
	}

	reply := strings.TrimSpace(text)
	if reply == "" {
		g.record(userID, quota.OpQuestion, cred.Index, elapsed, false, CodeUpstreamError, 0)
		return "", errUpstream(nil)
	}

	// 确认成功后才记账
	pool.RecordUse(cred.Index)
	g.ledger.Consume(userID, quota.OpQuestion)
	g.record(userID, quota.OpQuestion, cred.Index, elapsed, true, "", 0)
	return reply, nil
}

// Analyze scores one listing. The recovery parser makes the parse step
// infallible, so after a successful dispatch the operation always
// produces a result and always consumes quota.
func (g *Gateway) Analyze(ctx context.Context, userID string, listing Listing) (recovery.AnalysisResult, error) {
	var zero recovery.AnalysisResult

	pool := g.currentPool()
	if pool.Size() == 0 {
		return zero, errNotConfigured()
	}
	if err := validateListing(listing); err != nil {
		return zero, err
	}
	if !g.ledger.CanConsume(userID, quota.OpAnalysis) {
		return zero, errQuotaExceeded(quota.OpAnalysis)
	}

	cred, ok := pool.SelectUsable()
	if !ok {
		g.record(userID, quota.OpAnalysis, -1, 0, false, CodeCapacityExhausted, 0)
		return zero, errCapacityExhausted()
	}

	start := time.Now()
	text, err := g.dispatcher.GenerateContent(ctx, cred.Key, analysisPrompt(listing), analysisGenConfig)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("⚠️ [Gateway] analyze 上游调用失败 (凭据 #%d): %v", cred.Index+1, err)
		g.record(userID, quota.OpAnalysis, cred.Index, elapsed, false, CodeUpstreamError, 0)
		return zero, errUpstream(err)
	}

	result := recovery.Parse(text)

	pool.RecordUse(cred.Index)
	g.ledger.Consume(userID, quota.OpAnalysis)
	g.record(userID, quota.OpAnalysis, cred.Index, elapsed, true, "", result.Score)
	return result, nil
}

// AnalyzeBatch processes listings in groups of five with a pause between
// groups. Item failures land in the item's Error field; the batch itself
// never aborts.
func (g *Gateway) AnalyzeBatch(ctx context.Context, userID string, listings []BatchListing) []BatchResult {
	results := make([]BatchResult, len(listings))

	for base := 0; base < len(listings); base += batchGroupSize {
		end := base + batchGroupSize
		if end > len(listings) {
			end = len(listings)
		}

		var wg sync.WaitGroup
		for i := base; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				item := listings[i]
				res, err := g.Analyze(ctx, userID, item.Listing)
				if err != nil {
					results[i] = BatchResult{ID: item.ID, Error: errorCode(err)}
					return
				}
				results[i] = BatchResult{ID: item.ID, Result: &res}
			}(i)
		}
		wg.Wait()

		if end < len(listings) {
			select {
			case <-ctx.Done():
				for i := end; i < len(listings); i++ {
					results[i] = BatchResult{ID: listings[i].ID, Error: string(CodeUpstreamError)}
				}
				return results
			case <-time.After(batchGroupPause):
			}
		}
	}
	return results
}

// Probe checks upstream reachability with the currently selected
// credential. Does not consume quota or credential counters.
func (g *Gateway) Probe(ctx context.Context) error {
	pool := g.currentPool()
	if pool.Size() == 0 {
		return errNotConfigured()
	}
	cred, ok := pool.SelectUsable()
	if !ok {
		return errCapacityExhausted()
	}
	_, err := g.dispatcher.GenerateContent(ctx, cred.Key, "Test", gemini.GenerationConfig{
		Temperature:     0.3,
		MaxOutputTokens: 10,
	})
	if err != nil {
		return errUpstream(err)
	}
	return nil
}

func (g *Gateway) currentPool() *keypool.Pool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pool
}

func (g *Gateway) record(userID string, class quota.OpClass, keyIndex int, elapsed time.Duration, success bool, code Code, score float64) {
	if g.usage == nil {
		return
	}
	g.usage.RecordCall(usagelog.Call{
		UserID:     userID,
		Operation:  string(class),
		KeyIndex:   keyIndex,
		DurationMs: elapsed.Milliseconds(),
		Success:    success,
		ErrorCode:  string(code),
		Score:      score,
	})
}

func validateListing(l Listing) *Error {
	switch {
	case strings.TrimSpace(l.Title) == "":
		return errInvalidInput("sarlavha to'ldirilishi shart")
	case strings.TrimSpace(l.Description) == "":
		return errInvalidInput("tavsif to'ldirilishi shart")
	case strings.TrimSpace(l.Category) == "":
		return errInvalidInput("kategoriya to'ldirilishi shart")
	case l.Price <= 0:
		return errInvalidInput("narx noldan katta bo'lishi kerak")
	}
	return nil
}

// errorCode extracts the gateway code from an error for batch reporting.
func errorCode(err error) string {
	if gerr, ok := err.(*Error); ok {
		return string(gerr.Code)
	}
	return string(CodeUpstreamError)
}
