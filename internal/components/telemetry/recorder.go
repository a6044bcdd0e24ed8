package telemetry

import (
	"strings"
	"sync"
)

// Report is a single call made against a Recorder.
type Report struct {
	Level  string
	ID     string
	Params []any
}

// Recorder is an API that keeps every report in memory so tests can assert
// on what a component logged. It forwards nothing.
type Recorder struct {
	mutex   sync.Mutex
	reports []Report
}

func (r *Recorder) push(level, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, Report{Level: level, ID: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.push("broken", id, params)
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.push("warning", id, params)
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.push("debug", msg, params)
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.push("count", id, []any{count})
}

// Reports returns a copy of every report with the given level, an empty level
// matches everything.
func (r *Recorder) Reports(level string) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Report
	for _, rep := range r.reports {
		if level == "" || rep.Level == level {
			out = append(out, rep)
		}
	}
	return out
}

// Has returns true if a report with the given level was made with an id
// ending in suffix (scoped ids carry their namespace as a prefix).
func (r *Recorder) Has(level, suffix string) bool {
	for _, rep := range r.Reports(level) {
		if strings.HasSuffix(rep.ID, suffix) {
			return true
		}
	}
	return false
}
