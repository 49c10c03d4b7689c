package pow_test

import (
	"crypto/sha256"
	"strconv"
	"testing"
	"time"

	"e2ee-relay/internal/pow"
)

// solve brute-forces a nonce whose hash meets the difficulty, mirroring what
// a registering client does.
func solve(t *testing.T, challenge string, difficulty int) string {
	t.Helper()
	for i := 0; i < 1<<26; i++ {
		nonce := strconv.Itoa(i)
		if meets(challenge, nonce, difficulty) {
			return nonce
		}
	}
	t.Fatalf("no nonce found for difficulty %d", difficulty)
	return ""
}

func meets(challenge, nonce string, difficulty int) bool {
	digest := sha256.Sum256([]byte(challenge + ":" + nonce))
	bits := difficulty
	for _, b := range digest {
		if bits <= 0 {
			return true
		}
		if bits >= 8 {
			if b != 0 {
				return false
			}
			bits -= 8
			continue
		}
		mask := byte(0xff << (8 - bits))
		return b&mask == 0
	}
	return bits <= 0
}

func TestIssueAndVerify(t *testing.T) {
	e := pow.New(12, time.Minute)

	ch, err := e.Issue("register")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if ch.Difficulty != 12 {
		t.Fatalf("expected difficulty 12, got %d", ch.Difficulty)
	}

	nonce := solve(t, ch.Challenge, ch.Difficulty)
	if !e.Verify(ch.Challenge, nonce) {
		t.Fatalf("expected valid nonce to verify")
	}
}

func TestZeroDifficultyAcceptsAnyNonce(t *testing.T) {
	e := pow.New(0, time.Minute)

	ch, err := e.Issue("register")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !e.Verify(ch.Challenge, "anything") {
		t.Fatalf("difficulty 0 must accept any nonce")
	}
}

func TestChallengeIsSingleUse(t *testing.T) {
	e := pow.New(8, time.Minute)

	ch, _ := e.Issue("register")
	nonce := solve(t, ch.Challenge, ch.Difficulty)

	if !e.Verify(ch.Challenge, nonce) {
		t.Fatalf("first verification should succeed")
	}
	if e.Verify(ch.Challenge, nonce) {
		t.Fatalf("replaying the same challenge/nonce must fail")
	}
}

func TestFailedAttemptConsumesChallenge(t *testing.T) {
	e := pow.New(8, time.Minute)

	ch, _ := e.Issue("register")

	// Find a nonce that does NOT meet the difficulty; the first attempt
	// burns the challenge even though it fails.
	bad := ""
	for i := 0; ; i++ {
		n := strconv.Itoa(i)
		if !meets(ch.Challenge, n, ch.Difficulty) {
			bad = n
			break
		}
	}
	if e.Verify(ch.Challenge, bad) {
		t.Fatalf("bad nonce should not verify")
	}

	good := solve(t, ch.Challenge, ch.Difficulty)
	if e.Verify(ch.Challenge, good) {
		t.Fatalf("challenge must be consumed by the failed attempt")
	}
}

func TestUnknownChallengeFailsClosed(t *testing.T) {
	e := pow.New(0, time.Minute)
	if e.Verify("register:0:deadbeef", "nonce") {
		t.Fatalf("unknown challenge must fail")
	}
}

func TestMutatedNonceFails(t *testing.T) {
	e := pow.New(12, time.Minute)

	ch, _ := e.Issue("register")
	nonce := solve(t, ch.Challenge, ch.Difficulty)

	mutated := nonce + "x"
	if meets(ch.Challenge, mutated, ch.Difficulty) {
		// Astronomically unlikely, but keep the test deterministic.
		t.Skip("mutated nonce happens to meet difficulty")
	}
	if e.Verify(ch.Challenge, mutated) {
		t.Fatalf("mutated nonce must not verify")
	}
}

func TestSweepEvictsExpired(t *testing.T) {
	e := pow.New(0, time.Nanosecond)

	ch, _ := e.Issue("register")
	time.Sleep(5 * time.Millisecond)
	e.Sweep()

	if e.Verify(ch.Challenge, "anything") {
		t.Fatalf("expired challenge must fail after sweep")
	}
}

func TestExpiredChallengeEvictedOnSight(t *testing.T) {
	e := pow.New(0, time.Nanosecond)

	ch, _ := e.Issue("register")
	time.Sleep(5 * time.Millisecond)

	if e.Verify(ch.Challenge, "anything") {
		t.Fatalf("expired challenge must fail")
	}
}
