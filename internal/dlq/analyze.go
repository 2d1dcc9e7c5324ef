package dlq

import (
	"context"
	"sort"
	"strings"
)

// Pattern is one recurring failure signature across a job's DLQ
// entries, grouped by a normalized error prefix.
type Pattern struct {
	Signature  string
	Count      int
	SampleItem string
	ItemIDs    []string
}

// Analyze groups a job's DLQ entries by error signature so an operator
// can see whether failures cluster around one root cause before
// deciding to retry, fix, or give up on a batch.
func (q *Queue) Analyze(ctx context.Context, jobID string) ([]Pattern, error) {
	entries, err := q.List(ctx, jobID, Filter{})
	if err != nil {
		return nil, err
	}

	byline := map[string]*Pattern{}
	var order []string
	for _, e := range entries {
		sig := signature(e.TerminalError)
		p, ok := byline[sig]
		if !ok {
			p = &Pattern{Signature: sig, SampleItem: e.ItemID}
			byline[sig] = p
			order = append(order, sig)
		}
		p.Count++
		p.ItemIDs = append(p.ItemIDs, e.ItemID)
	}

	patterns := make([]Pattern, 0, len(order))
	for _, sig := range order {
		patterns = append(patterns, *byline[sig])
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Count > patterns[j].Count })
	return patterns, nil
}

// signature collapses an error message to the trimmed text before its
// first colon, so messages that differ only after that colon still
// cluster together (e.g. "connection refused: 10.0.0.5:443" and
// "connection refused: 10.0.0.9:443" both become "connection refused").
// A message without a colon is kept whole, cut to its first 80 bytes;
// differences before the first colon are not normalized.
func signature(msg string) string {
	msg = strings.TrimSpace(msg)
	if idx := strings.IndexAny(msg, ":"); idx > 0 {
		return strings.TrimSpace(msg[:idx])
	}
	const maxLen = 80
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
