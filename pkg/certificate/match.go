package certificate

import "strings"

// MatchOptions tunes Matches.
type MatchOptions struct {
	// LenGapThreshold rejects pairs whose lengths differ by at least this much.
	LenGapThreshold int
	// SimilarityThreshold is the minimum positional similarity for
	// equal-length strings.
	SimilarityThreshold float64
}

// DefaultMatchOptions returns the thresholds used for certificates.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{LenGapThreshold: 10, SimilarityThreshold: 0.6}
}

// Matches reports whether a normalised token is the normalised label.
// The token may contain the label (OCR glued it to a neighbour) or be an
// equal-length near miss with single-character misreads.
func Matches(label, token string, opt MatchOptions) bool {
	gap := len(token) - len(label)
	if gap < 0 {
		gap = -gap
	}
	if gap >= opt.LenGapThreshold {
		return false
	}
	if strings.Contains(token, label) {
		return true
	}
	return SimilarityRatio(label, token) >= opt.SimilarityThreshold
}

// SimilarityRatio is the fraction of positions holding the same byte.
// Strings of different length (and two empty strings) score 0.
func SimilarityRatio(a, b string) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	same := 0
	for i := 0; i < len(a); i++ {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a))
}
