package certificate

import (
	"fmt"
	"strings"
)

// ScanStrategy decides where each label's forward scan starts.
type ScanStrategy string

const (
	// RestartEachLabel scans the whole token list for every label. A later
	// label may match a token above an earlier one, and labels with similar
	// text may share a token.
	RestartEachLabel ScanStrategy = "restart"
	// ContinueFromCursor resumes after the previous label's value, so fields
	// come out in document order and a value is never read as a label.
	ContinueFromCursor ScanStrategy = "continue"
)

// Options configures Extract.
type Options struct {
	Match    MatchOptions
	Strategy ScanStrategy
}

// DefaultOptions restarts the scan for every label.
func DefaultOptions() Options {
	return Options{Match: DefaultMatchOptions(), Strategy: RestartEachLabel}
}

// Extract maps an ordered token sequence onto the certificate schema. For
// every label the token right after the first matching token is taken
// verbatim as the value. The issue date is the token after the last token
// containing "date". A match on the final token aborts with
// ErrIndexOutOfRange.
func Extract(tokens []string, opt Options) (Fields, error) {
	switch opt.Strategy {
	case RestartEachLabel, ContinueFromCursor, "":
	default:
		return nil, fmt.Errorf("unknown scan strategy %q", opt.Strategy)
	}

	normalized := make([]string, len(tokens))
	for i, t := range tokens {
		normalized[i] = Normalize(t)
	}

	out := Fields{}
	cursor := 0
	for _, label := range forwardLabels {
		want := Normalize(label)
		start := 0
		if opt.Strategy == ContinueFromCursor {
			start = cursor
		}
		for i := start; i < len(tokens); i++ {
			if !Matches(want, normalized[i], opt.Match) {
				continue
			}
			if i+1 >= len(tokens) {
				return nil, fmt.Errorf("label %q matched token %d of %d: %w", label, i, len(tokens), ErrIndexOutOfRange)
			}
			out[label] = tokens[i+1]
			cursor = i + 2
			break
		}
	}

	for i := len(tokens) - 1; i >= 0; i-- {
		if !strings.Contains(normalized[i], issueDateMarker) {
			continue
		}
		if i+1 >= len(tokens) {
			return nil, fmt.Errorf("label %q matched token %d of %d: %w", LabelIssueDate, i, len(tokens), ErrIndexOutOfRange)
		}
		out[LabelIssueDate] = tokens[i+1]
		break
	}
	return out, nil
}
