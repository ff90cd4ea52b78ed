// Package keypool rotates a fixed pool of upstream API credentials, each
// with an independent daily call allowance.
package keypool

import (
	"log"
	"sync"
	"time"
)

// DefaultKeyLimit is the per-credential daily call limit.
const DefaultKeyLimit = 50

// Credential is one upstream API key plus its usage counter for the
// current day. Index is stable for the lifetime of the pool.
type Credential struct {
	Key        string
	Index      int
	DailyCount int
	ResetDay   string // calendar day the counter applies to, "2006-01-02"
}

// Status is a read-only projection of pool state for UI display.
type Status struct {
	CurrentKey   int  `json:"currentKey"` // 1-based, 0 when the pool is empty
	TotalKeys    int  `json:"totalKeys"`
	CurrentUsage int  `json:"currentUsage"`
	Limit        int  `json:"limit"`
	Exhausted    bool `json:"exhausted"`
}

// Pool holds an ordered credential list and a cursor pointing at the
// credential currently serving traffic. All counter and cursor mutation
// happens under the mutex; selection and accounting are check-then-act
// sequences and must not interleave.
type Pool struct {
	mu      sync.Mutex
	creds   []*Credential
	current int
	limit   int
	now     func() time.Time
}

// New builds a pool from an ordered, pre-filtered key list. A limit of 0
// falls back to DefaultKeyLimit. An empty key list yields a pool that
// always reports exhaustion; callers should gate on Size() first.
func New(keys []string, limit int) *Pool {
	if limit <= 0 {
		limit = DefaultKeyLimit
	}
	p := &Pool{
		limit: limit,
		now:   time.Now,
	}
	today := dayStamp(time.Now())
	for i, key := range keys {
		p.creds = append(p.creds, &Credential{
			Key:      key,
			Index:    i,
			ResetDay: today,
		})
	}
	return p
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// SelectUsable returns a copy of the credential that should serve the next
// call, or ok=false when every credential has hit its daily limit. The
// cursor only moves when the current credential is saturated; a usable
// current credential is returned unchanged so bursts stick to one key.
func (p *Pool) SelectUsable() (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return Credential{}, false
	}

	today := dayStamp(p.now())

	cur := p.creds[p.current]
	p.resetIfStale(cur, today)
	if cur.DailyCount < p.limit {
		return *cur, true
	}

	// Current key saturated: scan forward once with wraparound, starting
	// right after the cursor.
	for i := 1; i <= len(p.creds); i++ {
		next := (p.current + i) % len(p.creds)
		cand := p.creds[next]
		p.resetIfStale(cand, today)
		if cand.DailyCount < p.limit {
			p.current = next
			log.Printf("🔄 [KeyPool] 已切换到凭据 #%d", next+1)
			return *cand, true
		}
	}

	// 游标保持原位：全部凭据当日额度耗尽
	log.Printf("⚠️ [KeyPool] 所有凭据已达到每日上限 (%d 个 × %d 次)", len(p.creds), p.limit)
	return Credential{}, false
}

// RecordUse increments the daily counter of the credential at index by
// exactly one. Call once per successful upstream exchange, never per
// attempt.
func (p *Pool) RecordUse(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.creds) {
		return
	}
	cred := p.creds[index]
	p.resetIfStale(cred, dayStamp(p.now()))
	cred.DailyCount++
}

// Status reports the pool state for display. Best effort; values may be
// stale by the time the caller renders them.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		TotalKeys: len(p.creds),
		Limit:     p.limit,
	}
	if len(p.creds) == 0 {
		s.Exhausted = true
		return s
	}

	today := dayStamp(p.now())
	s.CurrentKey = p.current + 1

	cur := p.creds[p.current]
	if cur.ResetDay == today {
		s.CurrentUsage = cur.DailyCount
	}

	s.Exhausted = true
	for _, c := range p.creds {
		if c.ResetDay != today || c.DailyCount < p.limit {
			s.Exhausted = false
			break
		}
	}
	return s
}

// resetIfStale zeroes the counter when the stored day is not today.
// Must be called with the pool lock held.
func (p *Pool) resetIfStale(c *Credential, today string) {
	if c.ResetDay != today {
		c.DailyCount = 0
		c.ResetDay = today
	}
}

func dayStamp(t time.Time) string {
	return t.Format("2006-01-02")
}
