package giveaway

import (
	"crypto/rand"
	"math/big"
)

// Source yields uniform integers in [0, n).
type Source interface {
	Intn(n int) int
}

type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand. It is safe for
// concurrent use.
func NewCryptoSource() Source {
	return cryptoSource{}
}

func (cryptoSource) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("giveaway: crypto/rand failed: " + err.Error())
	}
	return int(v.Int64())
}

// Pick samples min(count, len(pool)) distinct entries without replacement:
// a uniform index is drawn from the remaining pool and removed each round.
// The input slice is left untouched.
func Pick[T any](src Source, pool []T, count int) []T {
	if count <= 0 || len(pool) == 0 {
		return []T{}
	}
	if count > len(pool) {
		count = len(pool)
	}

	remaining := make([]T, len(pool))
	copy(remaining, pool)

	picked := make([]T, 0, count)
	for len(picked) < count {
		idx := src.Intn(len(remaining))
		picked = append(picked, remaining[idx])
		last := len(remaining) - 1
		remaining[idx] = remaining[last]
		remaining = remaining[:last]
	}
	return picked
}
