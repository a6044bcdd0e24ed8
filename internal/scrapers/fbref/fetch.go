package fbref

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nwsl-backend/internal/components/assert"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/lib/htmlutil"
	"nwsl-backend/lib/restyutil"
	libtelemetry "nwsl-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const (
	report_fetch_links  = "fetcher.match-links"
	report_fetch_report = "fetcher.fetch-report"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

type FetcherOptions struct {
	// BaseURL defaults to https://fbref.com.
	BaseURL string
	// RequestsPerMinute defaults to 10, FBref blocks clients going faster.
	RequestsPerMinute int
	// CacheDir is where reports are saved, a report already there is not
	// fetched again.
	CacheDir string
	// DumpDir, when set, receives every http message exchanged.
	DumpDir string
}

// Fetcher downloads match reports into a directory a DirFeed can read.
type Fetcher struct {
	tel      telemetry.API
	http     *resty.Client
	cacheDir string
}

func NewFetcher(tel telemetry.API, opts FetcherOptions) (*Fetcher, error) {
	assert.NotNil(tel, "telemetry")

	if opts.BaseURL == "" {
		opts.BaseURL = "https://fbref.com"
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 10
	}
	if opts.CacheDir == "" {
		return nil, fmt.Errorf("fetcher: no cache dir")
	}
	parsedBaseUrl, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(opts.CacheDir, 0755)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	rateLimiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	libtelemetry.InstrumentResty(client, "scrapers/fbref/http")
	if opts.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return nil, err
		}
		restyutil.DumpMessages(client, output)
	}

	return &Fetcher{
		tel:      telemetry.NewScopedAPI("fbref", tel),
		http:     client,
		cacheDir: opts.CacheDir,
	}, nil
}

func (f *Fetcher) get(ctx context.Context, path string) (*resty.Response, error) {
	res, err := f.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("GET %s: %d: %w", path, res.StatusCode(), ErrUnexpectedStatus)
	}
	return res, nil
}

// MatchLinks returns the ids of the match reports linked from a page (a
// fixtures page of a season for example), in the order they first appear.
func (f *Fetcher) MatchLinks(ctx context.Context, path string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "MatchLinks")
	defer span.End()

	res, err := f.get(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch page")
		f.tel.ReportBroken(report_fetch_links, err, path)
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.String()))
	if err != nil {
		f.tel.ReportBroken(report_fetch_links, err, path)
		return nil, err
	}

	seen := map[string]bool{}
	var ids []string
	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find("a[href*='/matches/']")) {
		id := idOf(matchPattern, anchor.Href)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	span.SetAttributes(attribute.Int("matches", len(ids)))
	return ids, nil
}

// Path returns where the report of a match is saved.
func (f *Fetcher) Path(matchID string) string {
	return filepath.Join(f.cacheDir, matchID+".html")
}

// FetchReport saves the report of a match into the cache dir unless it is
// already there. Cached is true when nothing was downloaded.
func (f *Fetcher) FetchReport(ctx context.Context, matchID string) (path string, cached bool, err error) {
	ctx, span := tracer.Start(ctx, "FetchReport")
	defer span.End()
	span.SetAttributes(attribute.String("match", matchID))

	path = f.Path(matchID)
	if _, err := os.Stat(path); err == nil {
		return path, true, nil
	}

	res, err := f.get(ctx, "/en/matches/"+matchID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch report")
		f.tel.ReportBroken(report_fetch_report, err, matchID)
		return "", false, err
	}

	// a report in the cache dir is always complete
	tmp := path + ".tmp"
	err = os.WriteFile(tmp, res.Body(), 0644)
	if err != nil {
		f.tel.ReportBroken(report_fetch_report, err, matchID)
		return "", false, err
	}
	err = os.Rename(tmp, path)
	if err != nil {
		f.tel.ReportBroken(report_fetch_report, err, matchID)
		return "", false, err
	}
	return path, false, nil
}

// FetchAll fetches every report, a report that fails is reported and
// skipped. It returns the amount of reports downloaded.
func (f *Fetcher) FetchAll(ctx context.Context, matchIDs []string) (int, error) {
	downloaded := 0
	for _, id := range matchIDs {
		if err := ctx.Err(); err != nil {
			return downloaded, err
		}
		_, cached, err := f.FetchReport(ctx, id)
		if err != nil {
			continue
		}
		if !cached {
			downloaded++
		}
	}
	f.tel.ReportCount(report_fetch_report, int64(downloaded))
	return downloaded, nil
}
