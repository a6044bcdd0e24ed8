package telemetry

import (
	"log/slog"
	"strconv"
)

// SlogAPI writes reports as structured log lines. A nil Logger logs through
// slog.Default, which the binaries set up with InitSlog.
type SlogAPI struct {
	Logger *slog.Logger
}

func (s SlogAPI) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// attrs lays out the parameters of a report. Errors go under "err", every
// other value is keyed by its position within the "detail" group so a record
// key or a query name stays next to the values it was reported with.
func attrs(report string, params []any) []any {
	out := make([]any, 0, 3)
	if report != "" {
		out = append(out, slog.String("report", report))
	}
	var detail []any
	for i, p := range params {
		if err, ok := p.(error); ok {
			out = append(out, slog.Any("err", err))
			continue
		}
		detail = append(detail, slog.Any(strconv.Itoa(i), p))
	}
	if len(detail) > 0 {
		out = append(out, slog.Group("detail", detail...))
	}
	return out
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	s.logger().Error("store or source failure", attrs(id, params)...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	s.logger().Warn("degraded input", attrs(id, params)...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	s.logger().Debug(message, attrs("", params)...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.logger().Info("tally", slog.String("report", id), slog.Int64("count", count))
}
