package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
)

const perfStatsInterval = 30 * time.Second

var perfMeter = otel.Meter("nwsl.perf_stats")

var (
	cpuGauge, _         = perfMeter.Float64Gauge("process.cpu_usage")
	heapGauge, _        = perfMeter.Int64Gauge("process.heap_alloc_mb")
	goroutineGauge, _   = perfMeter.Int64Gauge("process.goroutines")
	dbInUseGauge, _     = perfMeter.Int64Gauge("db.connections_in_use")
	dbWaitCountGauge, _ = perfMeter.Int64Gauge("db.wait_count")
)

func recordPerfStats(ctx context.Context, database *sql.DB) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	heapGauge.Record(ctx, int64(mem.HeapAlloc/1_000_000))
	goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

	usage, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(usage) == 0 {
		slog.Warn("failed to read cpu usage", "err", err)
	} else {
		cpuGauge.Record(ctx, usage[0])
	}

	if database != nil {
		stats := database.Stats()
		dbInUseGauge.Record(ctx, int64(stats.InUse))
		dbWaitCountGauge.Record(ctx, stats.WaitCount)
	}
}

// InstrumentPerfStats records process gauges, and the pool stats of
// database when it is not nil, every 30 seconds until ctx is done.
func InstrumentPerfStats(ctx context.Context, database *sql.DB) {
	go func() {
		ticker := time.NewTicker(perfStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				recordPerfStats(ctx, database)
			case <-ctx.Done():
				return
			}
		}
	}()
}
