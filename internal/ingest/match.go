package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/identity"
	"nwsl-backend/internal/source"
	"nwsl-backend/lib/textutil"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// IngestMatch creates the match of a record or corrects its score, expected
// goals, venue and status. The date, season and teams of an existing match
// are never changed, a record disagreeing with them is ErrContextMismatch.
func (e *Engine) IngestMatch(ctx context.Context, rec source.Record) (match db.Match, err error) {
	ctx, span := tracer.Start(ctx, "IngestMatch")
	defer span.End()
	span.SetAttributes(attribute.String("native_id", rec.NativeID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to ingest match")
		}
	}()

	date, err := rec.RequireString("date")
	if err != nil {
		return db.Match{}, err
	}
	parsed, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return db.Match{}, fmt.Errorf("date = %s: %w", date, source.ErrInvalidField)
	}
	year, ok, err := rec.Int("season")
	if err != nil {
		return db.Match{}, err
	}
	if !ok {
		year = int64(parsed.Year())
	}
	home, err := rec.RequireString("home_team")
	if err != nil {
		return db.Match{}, err
	}
	away, err := rec.RequireString("away_team")
	if err != nil {
		return db.Match{}, err
	}

	f := e.fields(rec)
	ref, err := e.resolver.ResolveOrCreate(ctx, identity.EntityMatch, rec.NativeID, identity.Context{
		Season:       year,
		Date:         date,
		HomeTeam:     home,
		HomeTeamName: f.str("home_team_name"),
		AwayTeam:     away,
		AwayTeamName: f.str("away_team_name"),
	})
	if err != nil {
		return db.Match{}, err
	}

	var venueID sql.NullInt64
	if name := f.str("venue"); name != "" {
		venue, err := e.resolver.ResolveOrCreate(ctx, identity.EntityVenue, textutil.Slug(name), identity.Context{
			Name:    name,
			Address: f.str("venue_address"),
		})
		if err != nil {
			return db.Match{}, err
		}
		venueID = sql.NullInt64{Int64: venue.ID, Valid: true}
	}

	status := f.str("status")
	switch status {
	case "", db.MatchPending, db.MatchComplete, db.MatchForfeit:
	default:
		f.warn("status", fmt.Errorf("%s: %w", status, source.ErrInvalidField))
		status = ""
	}

	tx, discard, commit, err := e.makeTx(ctx)
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return db.Match{}, err
	}
	defer e.discard(rec.Key(), discard)

	current, err := tx.GetMatchByID(ctx, ref.ID)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "GetMatchByID", ref.ID)
		return db.Match{}, err
	}
	// a forfeit is terminal
	if current.Status == db.MatchForfeit {
		status = ""
	}

	param := db.UpdateMatchParams{
		ID:          ref.ID,
		Competition: f.str("competition"),
		VenueID:     venueID,
		HomeGoals:   f.count("home_goals"),
		AwayGoals:   f.count("away_goals"),
		XgHome:      f.bounded("home_xg", 0, 20),
		XgAway:      f.bounded("away_xg", 0, 20),
		Status:      status,
	}
	err = tx.UpdateMatch(ctx, param)
	if err != nil {
		e.tel.ReportBroken(report_ingest_match, err, rec.Key(), param)
		return db.Match{}, err
	}
	match, err = tx.GetMatchByID(ctx, ref.ID)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "GetMatchByID", ref.ID)
		return db.Match{}, err
	}

	err = commit()
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return db.Match{}, err
	}
	span.SetAttributes(attribute.String("match_id", strconv.FormatInt(match.ID, 10)))
	return match, nil
}
