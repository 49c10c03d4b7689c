// Package pow issues and verifies the proof-of-work challenges gating
// account registration. Challenges are in-memory, single-use, and expire
// five minutes after issuance.
package pow

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"e2ee-relay/internal/observability/metrics"
)

const (
	DefaultDifficulty = 20
	DefaultTTL        = 5 * time.Minute
	SweepInterval     = time.Minute
)

type challenge struct {
	difficulty int
	expiresAt  time.Time
	used       bool
}

type Challenge struct {
	Challenge  string `json:"challenge"`
	Difficulty int    `json:"difficulty"`
}

type Engine struct {
	mu         sync.Mutex
	challenges map[string]*challenge
	difficulty int
	ttl        time.Duration
	now        func() time.Time
}

func New(difficulty int, ttl time.Duration) *Engine {
	if difficulty < 0 {
		difficulty = DefaultDifficulty
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Engine{
		challenges: make(map[string]*challenge),
		difficulty: difficulty,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue creates a new challenge tagged with the requested action. The
// challenge string embeds server randomness so it cannot be precomputed.
func (e *Engine) Issue(action string) (Challenge, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return Challenge{}, err
	}
	c := fmt.Sprintf("%s:%d:%s", action, e.now().Unix(), hex.EncodeToString(buf))

	e.mu.Lock()
	e.challenges[c] = &challenge{
		difficulty: e.difficulty,
		expiresAt:  e.now().Add(e.ttl),
		used:       false,
	}
	e.mu.Unlock()

	return Challenge{Challenge: c, Difficulty: e.difficulty}, nil
}

// Verify consumes the challenge on its first attempt regardless of outcome
// and fails closed on anything unknown, used, or expired.
func (e *Engine) Verify(c, nonce string) bool {
	e.mu.Lock()
	stored, ok := e.challenges[c]
	if !ok {
		e.mu.Unlock()
		metrics.PowVerificationsTotal.WithLabelValues("failure").Inc()
		return false
	}
	if stored.used {
		e.mu.Unlock()
		metrics.PowVerificationsTotal.WithLabelValues("failure").Inc()
		return false
	}
	if stored.expiresAt.Before(e.now()) {
		delete(e.challenges, c)
		e.mu.Unlock()
		metrics.PowVerificationsTotal.WithLabelValues("failure").Inc()
		return false
	}
	stored.used = true
	difficulty := stored.difficulty
	e.mu.Unlock()

	digest := sha256.Sum256([]byte(c + ":" + nonce))
	ok = hasLeadingZeroBits(digest[:], difficulty)
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	metrics.PowVerificationsTotal.WithLabelValues(outcome).Inc()
	return ok
}

// Sweep drops expired challenges to bound memory.
func (e *Engine) Sweep() {
	now := e.now()
	e.mu.Lock()
	for k, v := range e.challenges {
		if v.expiresAt.Before(now) {
			delete(e.challenges, k)
		}
	}
	e.mu.Unlock()
}

// StartSweeper runs Sweep on the given cadence until ctx is cancelled.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = SweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Sweep()
			}
		}
	}()
}

// hasLeadingZeroBits checks the digest most-significant-byte-first: whole
// zero bytes, then a mask on the final partial byte.
func hasLeadingZeroBits(digest []byte, bits int) bool {
	if bits > len(digest)*8 {
		return false
	}
	full := bits / 8
	rem := bits % 8
	for i := 0; i < full; i++ {
		if digest[i] != 0 {
			return false
		}
	}
	if rem == 0 {
		return true
	}
	mask := byte(0xff << (8 - rem))
	return digest[full]&mask == 0
}
