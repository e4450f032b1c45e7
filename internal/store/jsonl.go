package store

import (
	"bufio"
	"bytes"
	"context"
	"fmt"

	"github.com/chtzvt/rewardd/internal/compression"
)

// History records are rarely over a few KB, but context payloads can balloon.
const maxLineBytes = 16 << 20

// ReadJSONLines streams the object at key, decompressing by key extension,
// and calls fn once per non-empty line. The line buffer is reused between
// calls; fn must copy anything it retains.
func ReadJSONLines(ctx context.Context, st Store, key string, fn func(line []byte) error) error {
	rc, err := st.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	dec, err := compression.NewReader(rc, compression.ByExtension(key))
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	defer dec.Close()

	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", key, err)
	}
	return nil
}

// WriteJSONLines writes lines as one compressed JSONL object at key.
func WriteJSONLines(ctx context.Context, st Store, key string, lines [][]byte) error {
	var buf bytes.Buffer
	w, err := compression.NewWriter(&buf, compression.ByExtension(key))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	for _, line := range lines {
		if _, err := w.Write(line); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return st.Put(ctx, key, bytes.NewReader(buf.Bytes()))
}
