package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Feed yields records one at a time, Next returns io.EOF once exhausted.
type Feed interface {
	Next(ctx context.Context) (Record, error)
}

// SliceFeed is a feed over records held in memory.
type SliceFeed struct {
	records []Record
	index   int
}

func NewSliceFeed(records ...Record) *SliceFeed {
	return &SliceFeed{records: records}
}

func (f *SliceFeed) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if f.index >= len(f.records) {
		return Record{}, io.EOF
	}
	rec := f.records[f.index]
	f.index++
	return rec, nil
}

// JSONLinesFeed reads one JSON encoded record per line.
type JSONLinesFeed struct {
	decoder *json.Decoder
	line    int
}

func NewJSONLinesFeed(r io.Reader) *JSONLinesFeed {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	return &JSONLinesFeed{decoder: decoder}
}

func (f *JSONLinesFeed) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var rec Record
	err := f.decoder.Decode(&rec)
	if err == io.EOF {
		return Record{}, io.EOF
	}
	f.line++
	if err != nil {
		return Record{}, fmt.Errorf("decode record %d: %w", f.line, err)
	}
	if rec.Kind == "" || rec.NativeID == "" {
		return Record{}, fmt.Errorf("record %d has no kind or native id: %w", f.line, ErrInvalidField)
	}
	return rec, nil
}

// WriteJSONLines drains a feed into w, one record per line, and returns the
// amount of records written.
func WriteJSONLines(ctx context.Context, w io.Writer, feed Feed) (int, error) {
	encoder := json.NewEncoder(w)
	count := 0
	for {
		rec, err := feed.Next(ctx)
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		err = encoder.Encode(rec)
		if err != nil {
			return count, err
		}
		count++
	}
}
