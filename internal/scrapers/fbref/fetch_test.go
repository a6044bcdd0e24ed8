package fbref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"nwsl-backend/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

const schedule = `<table id="sched_2024_182_1"><tbody>
<tr><td><a href="/en/matches/a1b2c3d4/Portland-Thorns-FC-Kansas-City-Current">Match Report</a></td></tr>
<tr><td><a href="/en/squads/aaaa1111/Portland-Thorns-FC-Stats">Portland Thorns FC</a></td></tr>
<tr><td><a href="/en/matches/0f0f0f0f/Orlando-Pride-Gotham-FC">Match Report</a></td></tr>
<tr><td><a href="/en/matches/a1b2c3d4/Portland-Thorns-FC-Kansas-City-Current">Head-to-Head</a></td></tr>
</tbody></table>`

func server(t testing.TB) (*httptest.Server, *int64) {
	report, err := os.ReadFile(fixture)
	require.NoError(t, err)

	var hits int64
	mux := http.NewServeMux()
	mux.HandleFunc("/en/comps/182/schedule", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(schedule))
	})
	mux.HandleFunc("/en/matches/a1b2c3d4", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write(report)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func fetcher(t testing.TB, baseURL string) (*Fetcher, *telemetry.Recorder) {
	tel := &telemetry.Recorder{}
	f, err := NewFetcher(tel, FetcherOptions{
		BaseURL:           baseURL,
		RequestsPerMinute: 6000,
		CacheDir:          t.TempDir(),
	})
	require.NoError(t, err)
	return f, tel
}

func TestMatchLinks(t *testing.T) {
	srv, _ := server(t)
	f, _ := fetcher(t, srv.URL)

	ids, err := f.MatchLinks(context.Background(), "/en/comps/182/schedule")
	require.NoError(t, err)
	require.Equal(t, []string{"a1b2c3d4", "0f0f0f0f"}, ids)
}

func TestFetchReportIsCached(t *testing.T) {
	srv, hits := server(t)
	f, _ := fetcher(t, srv.URL)
	ctx := context.Background()

	path, cached, err := f.FetchReport(ctx, "a1b2c3d4")
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, f.Path("a1b2c3d4"), path)

	_, cached, err = f.FetchReport(ctx, "a1b2c3d4")
	require.NoError(t, err)
	require.True(t, cached)
	require.Equal(t, int64(1), atomic.LoadInt64(hits))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	records, err := Parse(ctx, MatchID(path), path, file)
	require.NoError(t, err)
	require.Len(t, records, 12)
}

func TestFetchDumpsMessages(t *testing.T) {
	srv, _ := server(t)
	dump := filepath.Join(t.TempDir(), "dump")
	f, err := NewFetcher(&telemetry.Recorder{}, FetcherOptions{
		BaseURL:           srv.URL,
		RequestsPerMinute: 6000,
		CacheDir:          t.TempDir(),
		DumpDir:           dump,
	})
	require.NoError(t, err)

	_, err = f.MatchLinks(context.Background(), "/en/comps/182/schedule")
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dump, "1.txt"))
	require.NoError(t, err)
	require.Contains(t, string(content), "---- RESPONSE ----")
	require.Contains(t, string(content), "/en/matches/0f0f0f0f")
}

func TestFetchAllSkipsFailures(t *testing.T) {
	srv, _ := server(t)
	f, tel := fetcher(t, srv.URL)

	downloaded, err := f.FetchAll(context.Background(), []string{"0f0f0f0f", "a1b2c3d4"})
	require.NoError(t, err)
	require.Equal(t, 1, downloaded)
	require.True(t, tel.Has("broken", report_fetch_report))

	_, err = os.Stat(f.Path("0f0f0f0f"))
	require.True(t, os.IsNotExist(err))
}
