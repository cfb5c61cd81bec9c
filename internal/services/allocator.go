package services

import (
	"errors"
	"math/rand"
)

const (
	idMin = 100
	idMax = 999

	// maxAllocAttempts bounds the rejection-sampling loop. With 900
	// possible ids this only trips when the active set is nearly full.
	maxAllocAttempts = 10000
)

// ErrIDSpaceExhausted is returned when no free session id could be drawn.
var ErrIDSpaceExhausted = errors.New("session id space exhausted")

// AllocateID draws a 3-digit session id that is neither in use by an
// active session nor present in the participant's own id history. The
// caller supplies the randomness source so tests can be deterministic;
// the caller also persists the result.
func AllocateID(rnd *rand.Rand, active map[int]bool, history map[int]bool) (int, error) {
	for i := 0; i < maxAllocAttempts; i++ {
		id := idMin + rnd.Intn(idMax-idMin+1)
		if active[id] || history[id] {
			continue
		}
		return id, nil
	}
	return 0, ErrIDSpaceExhausted
}
