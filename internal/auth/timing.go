package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay equalizes the observable duration of authentication failures so
// a caller cannot distinguish "unknown phone number" from "wrong password" by
// response time. Successful operations are not delayed.
type TimingDelay struct {
	base   time.Duration
	jitter time.Duration
}

// NewTimingDelay creates a TimingDelay with the given base delay and random
// jitter range.
func NewTimingDelay(base, jitter time.Duration) *TimingDelay {
	return &TimingDelay{base: base, jitter: jitter}
}

// WaitFrom sleeps until at least base+jitter has elapsed since start. Work
// already done (a bcrypt comparison, a ledger insert) counts toward the delay.
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	if success {
		return
	}

	target := td.base + randomJitter(td.jitter)
	if elapsed := time.Since(start); elapsed < target {
		time.Sleep(target - elapsed)
	}
}

// randomJitter returns a cryptographically random duration in [0, limit).
func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(buf[:]) % uint64(limit))
}
