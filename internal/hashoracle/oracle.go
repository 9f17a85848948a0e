// Package hashoracle produces pseudo-random hex digests used by the simulators and demo data.
package hashoracle

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const hexDigits = "0123456789abcdef"

// Oracle produces fixed-length hex digests.
type Oracle interface {
	// Digest returns length lowercase hex characters, each drawn uniformly and independently.
	Digest(length int) string
}

// Random is an Oracle backed by a PCG source. It is safe for concurrent use.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Random oracle seeded from the clock.
func New() *Random {
	now := uint64(time.Now().UnixNano())
	return NewSeeded(now)
}

// NewSeeded returns a deterministic Random oracle.
func NewSeeded(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *Random) Digest(length int) string {
	if length <= 0 {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var sb strings.Builder
	sb.Grow(length)
	for i := 0; i < length; i++ {
		sb.WriteByte(hexDigits[r.rng.IntN(len(hexDigits))])
	}
	return sb.String()
}

// Scripted returns queued digests first, then falls back to a seeded source.
// Queued digests are padded or truncated to the requested length.
type Scripted struct {
	mu       sync.Mutex
	queue    []string
	fallback *Random
}

// NewScripted returns an oracle that replays digests in order.
func NewScripted(digests ...string) *Scripted {
	return &Scripted{
		queue:    append([]string(nil), digests...),
		fallback: NewSeeded(1),
	}
}

func (s *Scripted) Digest(length int) string {
	if length <= 0 {
		return ""
	}

	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return s.fallback.Digest(length)
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	if len(next) >= length {
		return next[:length]
	}
	return next + s.fallback.Digest(length-len(next))
}

// Remaining returns the number of queued digests not yet drawn.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// HasZeroPrefix reports whether digest starts with n '0' characters.
func HasZeroPrefix(digest string, n int) bool {
	if n <= 0 {
		return true
	}
	if len(digest) < n {
		return false
	}
	return strings.Count(digest[:n], "0") == n
}
