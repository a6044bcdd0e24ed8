// Package ingest turns source records into rows of the canonical store.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nwsl-backend/internal/components/assert"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/internal/identity"
	"nwsl-backend/internal/source"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("nwsl.internal.ingest")
var meter = otel.Meter("nwsl.internal.ingest")
var ingestedCounter, _ = meter.Int64Counter(
	"ingest.records_ingested",
	metric.WithDescription("source records written to the store"),
)
var skippedCounter, _ = meter.Int64Counter(
	"ingest.records_skipped",
	metric.WithDescription("source records that failed and were skipped"),
)

const (
	report_db_query      = "db.query"
	report_ingest_match  = "ingest.match"
	report_ingest_team   = "ingest.team-record"
	report_ingest_player = "ingest.player-record"
	report_ingest_shot   = "ingest.shot"
	report_ingest_field  = "ingest.field"
	report_ingest_run    = "ingest.run"
	report_ingest_tx     = "ingest.discard-tx"
)

var (
	// ErrInvariantViolation is returned when a write would break a hard
	// invariant of the store, like a third team record for a match.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrUnknownKind is returned for records of a kind the engine does not ingest.
	ErrUnknownKind = errors.New("unknown record kind")
)

type Options struct {
	// StarterRows is the amount of rows at the top of a lineup table that
	// are starters, defaults to 11.
	StarterRows int64
	// StarterMinutes is the amount of minutes after which a player is
	// considered a starter regardless of their row, defaults to 60.
	StarterMinutes int64
}

func (o Options) withDefaults() Options {
	if o.StarterRows <= 0 {
		o.StarterRows = 11
	}
	if o.StarterMinutes <= 0 {
		o.StarterMinutes = 60
	}
	return o
}

// Engine ingests source records. References are resolved before the
// transaction of a record is opened so that no store lock is held while the
// resolver works.
type Engine struct {
	tel      telemetry.API
	resolver *identity.Resolver
	qry      *db.Queries
	makeTx   db.MakeTx
	opts     Options
}

func NewEngine(tel telemetry.API, resolver *identity.Resolver, database *sql.DB, opts Options) *Engine {
	assert.NotNil(tel, "telemetry")
	assert.NotNil(resolver, "resolver")
	assert.NotNil(database, "database")

	return &Engine{
		tel:      telemetry.NewScopedAPI("ingest", tel),
		resolver: resolver,
		qry:      db.New(database),
		makeTx:   db.NewMakeTx(database),
		opts:     opts.withDefaults(),
	}
}

func (e *Engine) discard(key string, discard func() error) {
	err := discard()
	if err != nil {
		e.tel.ReportBroken(report_ingest_tx, key, err)
	}
}

// Ingest writes a single record of any kind.
func (e *Engine) Ingest(ctx context.Context, rec source.Record) error {
	var err error
	switch rec.Kind {
	case source.KindMatch:
		_, err = e.IngestMatch(ctx, rec)
	case source.KindTeam:
		_, err = e.IngestTeamRecord(ctx, rec)
	case source.KindPlayer:
		_, err = e.IngestPlayerRecord(ctx, rec)
	case source.KindShot:
		_, err = e.IngestShotEvent(ctx, rec)
	default:
		err = fmt.Errorf("%s: %w", rec.Kind, ErrUnknownKind)
	}
	return err
}

// matchInfo is what a child record needs to know about its match.
type matchInfo struct {
	match db.Match
	year  int64
}

func (e *Engine) lookupMatch(ctx context.Context, nativeID string) (matchInfo, error) {
	ref, err := e.resolver.Resolve(ctx, identity.EntityMatch, nativeID, identity.Context{})
	if err != nil {
		return matchInfo{}, err
	}
	match, err := e.qry.GetMatchByID(ctx, ref.ID)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "GetMatchByID", ref.ID)
		return matchInfo{}, err
	}
	season, err := e.qry.GetSeason(ctx, match.SeasonID.Int64)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "GetSeason", match.SeasonID.Int64)
		return matchInfo{}, err
	}
	return matchInfo{match: match, year: season.Year}, nil
}

// fields reads the optional fields of a record, a malformed optional field
// becomes null and is reported as a warning.
type fields struct {
	rec source.Record
	tel telemetry.API
}

func (e *Engine) fields(rec source.Record) fields {
	return fields{rec: rec, tel: e.tel}
}

func (f fields) warn(key string, err error) {
	f.tel.ReportWarning(report_ingest_field, f.rec.Key(), key, err)
}

func (f fields) str(key string) string {
	s, _ := f.rec.String(key)
	return s
}

func (f fields) float(key string) sql.NullFloat64 {
	v, ok, err := f.rec.Float(key)
	if err != nil {
		f.warn(key, err)
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: ok}
}

// bounded is float but values outside [min, max] become null.
func (f fields) bounded(key string, min, max float64) sql.NullFloat64 {
	v := f.float(key)
	if v.Valid && (v.Float64 < min || v.Float64 > max) {
		f.warn(key, fmt.Errorf("%v is outside [%v, %v]: %w", v.Float64, min, max, source.ErrInvalidField))
		return sql.NullFloat64{}
	}
	return v
}

// count reads a non negative integer.
func (f fields) count(key string) sql.NullInt64 {
	v, ok, err := f.rec.Int(key)
	if err != nil {
		f.warn(key, err)
		return sql.NullInt64{}
	}
	if ok && v < 0 {
		f.warn(key, fmt.Errorf("%d is negative: %w", v, source.ErrInvalidField))
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: ok}
}

// pair nulls both sides of a part/whole pair when part > whole.
func (f fields) pair(partKey string, part *sql.NullInt64, wholeKey string, whole *sql.NullInt64) {
	if !part.Valid || !whole.Valid || part.Int64 <= whole.Int64 {
		return
	}
	f.warn(partKey, fmt.Errorf(
		"%s = %d is greater than %s = %d: %w",
		partKey, part.Int64, wholeKey, whole.Int64, source.ErrInvalidField,
	))
	*part = sql.NullInt64{}
	*whole = sql.NullInt64{}
}

func result(goalsFor, goalsAgainst sql.NullInt64) sql.NullString {
	if !goalsFor.Valid || !goalsAgainst.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: db.ResultOf(goalsFor.Int64, goalsAgainst.Int64), Valid: true}
}
