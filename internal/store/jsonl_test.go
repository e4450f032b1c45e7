package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONLinesRoundTrip(t *testing.T) {
	st := newTestDiskStore(t)
	ctx := context.Background()

	lines := [][]byte{
		[]byte(`{"message_id":"m1"}`),
		[]byte(`{"message_id":"m2"}`),
		[]byte(`{"message_id":"m3"}`),
	}
	key := "history/p/0/2023-01-01/a.jsonl.gz"
	require.NoError(t, WriteJSONLines(ctx, st, key, lines))

	// The stored object is gzip-compressed, not raw JSONL
	rc, err := st.Get(ctx, key)
	require.NoError(t, err)
	head := make([]byte, 2)
	_, err = rc.Read(head)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, []byte{0x1f, 0x8b}, head)

	var got [][]byte
	require.NoError(t, ReadJSONLines(ctx, st, key, func(line []byte) error {
		cp := make([]byte, len(line))
		copy(cp, line)
		got = append(got, cp)
		return nil
	}))
	require.Equal(t, lines, got)
}

func TestJSONLinesUncompressed(t *testing.T) {
	st := newTestDiskStore(t)
	ctx := context.Background()

	lines := [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}
	key := "history/p/0/2023-01-01/a.jsonl"
	require.NoError(t, WriteJSONLines(ctx, st, key, lines))

	count := 0
	require.NoError(t, ReadJSONLines(ctx, st, key, func(line []byte) error {
		count++
		return nil
	}))
	require.Equal(t, 2, count)
}

func TestReadJSONLinesSkipsBlankLines(t *testing.T) {
	st := newTestDiskStore(t)
	ctx := context.Background()

	key := "a.jsonl"
	require.NoError(t, WriteJSONLines(ctx, st, key, [][]byte{
		[]byte(`{"a":1}`),
		[]byte(``),
		[]byte(`  `),
		[]byte(`{"b":2}`),
	}))

	count := 0
	require.NoError(t, ReadJSONLines(ctx, st, key, func(line []byte) error {
		count++
		return nil
	}))
	require.Equal(t, 2, count)
}

func TestReadJSONLinesPropagatesCallbackError(t *testing.T) {
	st := newTestDiskStore(t)
	ctx := context.Background()

	key := "a.jsonl.gz"
	require.NoError(t, WriteJSONLines(ctx, st, key, [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}))

	boom := errors.New("boom")
	calls := 0
	err := ReadJSONLines(ctx, st, key, func(line []byte) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestReadJSONLinesMissingObject(t *testing.T) {
	st := newTestDiskStore(t)
	err := ReadJSONLines(context.Background(), st, "missing.jsonl.gz", func([]byte) error { return nil })
	require.Error(t, err)
}
