package dlq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyze_GroupsBySignature(t *testing.T) {
	ctx := context.Background()
	q := testQueue()

	for _, item := range []struct{ id, err string }{
		{"a", "connection refused: 10.0.0.1:443"},
		{"b", "connection refused: 10.0.0.2:443"},
		{"c", "syntax error in file.go"},
	} {
		_, err := q.Enqueue(ctx, Entry{JobID: "job-1", ItemID: item.id, TerminalError: item.err})
		require.NoError(t, err)
	}

	patterns, err := q.Analyze(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	require.Equal(t, "connection refused", patterns[0].Signature)
	require.Equal(t, 2, patterns[0].Count)
	require.ElementsMatch(t, []string{"a", "b"}, patterns[0].ItemIDs)
}

func TestSignature_TruncatesLongMessages(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}
	sig := signature(long)
	require.LessOrEqual(t, len(sig), 80)
}
