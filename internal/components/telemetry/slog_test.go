package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func capture(t testing.TB) (API, func() []map[string]any) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return SlogAPI{Logger: logger}, func() []map[string]any {
		var lines []map[string]any
		dec := json.NewDecoder(&buf)
		for dec.More() {
			var line map[string]any
			require.NoError(t, dec.Decode(&line))
			lines = append(lines, line)
		}
		return lines
	}
}

func TestSlogReports(t *testing.T) {
	tel, lines := capture(t)
	scoped := NewScopedAPI("ingest", tel)

	scoped.ReportBroken("db.query", errors.New("disk I/O error"), "GetMatch", "m1")
	scoped.ReportWarning("ingest.field", "team_record:m1/aa", "possession")
	scoped.ReportDebug("warmed resolver cache", 12)
	scoped.ReportCount("ingest.records_skipped", 3)

	out := lines()
	require.Len(t, out, 4)

	require.Equal(t, "ERROR", out[0]["level"])
	require.Equal(t, "ingest: db.query", out[0]["report"])
	require.Equal(t, "disk I/O error", out[0]["err"])
	require.Equal(t, map[string]any{"1": "GetMatch", "2": "m1"}, out[0]["detail"])

	require.Equal(t, "WARN", out[1]["level"])
	require.Equal(t, map[string]any{"0": "team_record:m1/aa", "1": "possession"}, out[1]["detail"])

	require.Equal(t, "DEBUG", out[2]["level"])
	require.Equal(t, "ingest: warmed resolver cache", out[2]["msg"])
	require.NotContains(t, out[2], "report")

	require.Equal(t, "INFO", out[3]["level"])
	require.Equal(t, "ingest: ingest.records_skipped", out[3]["report"])
	require.Equal(t, float64(3), out[3]["count"])
}
