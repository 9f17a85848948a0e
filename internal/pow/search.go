package pow

import "github.com/manifest-network/chainview/internal/hashoracle"

// HashLength is the number of hex characters in a block hash.
const HashLength = 64

// ProgressFunc receives the running attempt count during a search.
type ProgressFunc func(attempts int)

// SearchResult is the outcome of a digest search.
type SearchResult struct {
	Digest   string
	Attempts int
	// Solved reports whether Digest satisfies the difficulty. It is false only
	// when the attempt ceiling was reached first.
	Solved bool
}

// Search draws digests from oracle until one starts with difficulty zeros or
// maxAttempts digests have been drawn. At least one digest is always drawn.
// progress, when set, is called every progressEvery attempts and once with the final count.
func Search(oracle hashoracle.Oracle, difficulty, maxAttempts, progressEvery int, progress ProgressFunc) SearchResult {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var res SearchResult
	for {
		res.Digest = oracle.Digest(HashLength)
		res.Attempts++
		res.Solved = hashoracle.HasZeroPrefix(res.Digest, difficulty)

		if progress != nil && progressEvery > 0 && res.Attempts%progressEvery == 0 {
			progress(res.Attempts)
		}
		if res.Solved || res.Attempts >= maxAttempts {
			break
		}
	}

	if progress != nil {
		progress(res.Attempts)
	}
	return res
}
