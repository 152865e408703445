package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
)

// ndjsonReader decodes one JSON object per line into record batches.
// Numbers stay json.Number so large integer ids keep every digit.
type ndjsonReader struct {
	body      io.ReadCloser
	dec       *json.Decoder
	batchSize int
	line      int
	done      bool
}

func newNDJSONReader(body io.ReadCloser, batchSize int) *ndjsonReader {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	return &ndjsonReader{body: body, dec: dec, batchSize: batchSize}
}

// Next returns up to batchSize records, then io.EOF once the stream ends.
func (r *ndjsonReader) Next(ctx context.Context) ([]quality.Record, error) {
	if r.done {
		return nil, io.EOF
	}
	batch := make([]quality.Record, 0, r.batchSize)
	for len(batch) < r.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec map[string]any
		err := r.dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}
		r.line++
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", r.line, err)
		}
		batch = append(batch, quality.Record(rec))
	}
	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (r *ndjsonReader) Close() error {
	return r.body.Close()
}
