package fbref

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nwsl-backend/internal/components/assert"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/internal/source"

	"golang.org/x/sync/errgroup"
)

const (
	report_feed_read  = "dir-feed.read"
	report_feed_parse = "dir-feed.parse"
)

// DirFeed is a source.Feed over the match reports saved in a directory.
// Reports are parsed concurrently, records are still yielded report by
// report in file name order.
type DirFeed struct {
	tel     telemetry.API
	dir     string
	workers int

	once    sync.Once
	err     error
	records []source.Record
	index   int
}

func NewDirFeed(tel telemetry.API, dir string, workers int) *DirFeed {
	assert.NotNil(tel, "telemetry")
	if workers <= 0 {
		workers = 4
	}
	return &DirFeed{
		tel:     telemetry.NewScopedAPI("fbref", tel),
		dir:     dir,
		workers: workers,
	}
}

func (f *DirFeed) parseFile(ctx context.Context, name string) ([]source.Record, error) {
	file, err := os.Open(filepath.Join(f.dir, name))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(ctx, MatchID(name), name, file)
}

func (f *DirFeed) load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "DirFeed.load")
	defer span.End()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		f.tel.ReportBroken(report_feed_read, err, f.dir)
		return err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".html") {
			continue
		}
		names = append(names, entry.Name())
	}

	parsed := make([][]source.Record, len(names))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.workers)
	for i, name := range names {
		i, name := i, name
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			records, err := f.parseFile(groupCtx, name)
			if err != nil {
				// a broken report only loses its own records
				f.tel.ReportWarning(report_feed_parse, name, err)
				return nil
			}
			parsed[i] = records
			return nil
		})
	}
	err = group.Wait()
	if err != nil {
		return err
	}

	for _, records := range parsed {
		f.records = append(f.records, records...)
	}
	f.tel.ReportDebug("loaded reports", f.dir, len(names), len(f.records))
	return nil
}

func (f *DirFeed) Next(ctx context.Context) (source.Record, error) {
	if err := ctx.Err(); err != nil {
		return source.Record{}, err
	}
	f.once.Do(func() {
		f.err = f.load(ctx)
	})
	if f.err != nil {
		return source.Record{}, f.err
	}
	if f.index >= len(f.records) {
		return source.Record{}, io.EOF
	}
	rec := f.records[f.index]
	f.index++
	return rec, nil
}
