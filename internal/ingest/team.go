package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/identity"
	"nwsl-backend/internal/source"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// nativeParts returns the fields of a child record, falling back on the
// "<match>/<team>" shape of its native id.
func nativeParts(rec source.Record, keys ...string) ([]string, error) {
	parts := strings.Split(rec.NativeID, "/")
	out := make([]string, len(keys))
	for i, key := range keys {
		value, ok := rec.String(key)
		if !ok && len(parts) == len(keys) {
			value, ok = parts[i], parts[i] != ""
		}
		if !ok {
			return nil, fmt.Errorf("%s: required: %w", key, source.ErrInvalidField)
		}
		out[i] = value
	}
	return out, nil
}

// IngestTeamRecord upserts the record of a team in a match. The home flag is
// derived from the match, the opponent linkage is filled from the sibling
// record when it exists and backfilled on the sibling otherwise.
func (e *Engine) IngestTeamRecord(ctx context.Context, rec source.Record) (record db.TeamMatchRecord, err error) {
	ctx, span := tracer.Start(ctx, "IngestTeamRecord")
	defer span.End()
	span.SetAttributes(attribute.String("native_id", rec.NativeID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to ingest team record")
		}
	}()

	keys, err := nativeParts(rec, "match", "team")
	if err != nil {
		return db.TeamMatchRecord{}, err
	}
	info, err := e.lookupMatch(ctx, keys[0])
	if err != nil {
		return db.TeamMatchRecord{}, err
	}
	f := e.fields(rec)
	// the teams of a match exist once the match does, a team record never
	// creates one
	team, err := e.resolver.Resolve(ctx, identity.EntityTeam, keys[1], identity.Context{Season: info.year})
	switch {
	case err == nil:
		name := f.str("team_name")
		playing := team.ID == info.match.HomeTeamID.Int64 || team.ID == info.match.AwayTeamID.Int64
		if name != "" && playing {
			team, err = e.resolver.ResolveOrCreate(ctx, identity.EntityTeam, keys[1], identity.Context{
				Season: info.year,
				Name:   name,
			})
			if err != nil {
				return db.TeamMatchRecord{}, err
			}
		}
	case errors.Is(err, identity.ErrUnresolvableReference):
		// rejected below as a third team or a team outside the match
	default:
		return db.TeamMatchRecord{}, err
	}

	passesCompleted := f.count("passes_completed")
	passesAttempted := f.count("passes")
	f.pair("passes_completed", &passesCompleted, "passes", &passesAttempted)
	shotsOnTarget := f.count("shots_on_target")
	shots := f.count("shots")
	f.pair("shots_on_target", &shotsOnTarget, "shots", &shots)
	var passingPct sql.NullFloat64
	if passesCompleted.Valid && passesAttempted.Valid {
		passingPct = db.Percentage(float64(passesCompleted.Int64), float64(passesAttempted.Int64))
	}
	goalsFor := f.count("goals")

	tx, discard, commit, err := e.makeTx(ctx)
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return db.TeamMatchRecord{}, err
	}
	defer e.discard(rec.Key(), discard)

	match, err := tx.GetMatchByID(ctx, info.match.ID)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "GetMatchByID", info.match.ID)
		return db.TeamMatchRecord{}, err
	}
	existing, err := tx.ListTeamRecordsForMatch(ctx, match.ID)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "ListTeamRecordsForMatch", match.ID)
		return db.TeamMatchRecord{}, err
	}
	var others []db.TeamMatchRecord
	for _, r := range existing {
		if r.TeamID != team.ID {
			others = append(others, r)
		}
	}
	if len(others) >= 2 {
		return db.TeamMatchRecord{}, fmt.Errorf(
			"match '%s' already has records for two other teams: %w",
			match.NativeID, ErrInvariantViolation,
		)
	}

	var isHome bool
	var teamScore, opponentScore sql.NullInt64
	switch team.ID {
	case match.HomeTeamID.Int64:
		isHome = true
		teamScore, opponentScore = match.HomeGoals, match.AwayGoals
	case match.AwayTeamID.Int64:
		teamScore, opponentScore = match.AwayGoals, match.HomeGoals
	default:
		return db.TeamMatchRecord{}, fmt.Errorf(
			"team '%s' did not play in match '%s': %w",
			keys[1], match.NativeID, identity.ErrContextMismatch,
		)
	}
	if !goalsFor.Valid {
		goalsFor = teamScore
	}

	var sibling *db.TeamMatchRecord
	if len(others) == 1 {
		sibling = &others[0]
	}
	var opponent sql.NullInt64
	goalsAgainst := opponentScore
	if sibling != nil {
		opponent = sql.NullInt64{Int64: sibling.TeamID, Valid: true}
		if sibling.GoalsFor.Valid {
			goalsAgainst = sibling.GoalsFor
		}
	}

	param := db.TeamMatchRecord{
		MatchID:         match.ID,
		TeamID:          team.ID,
		OpponentTeamID:  opponent,
		IsHome:          isHome,
		GoalsFor:        goalsFor,
		GoalsAgainst:    goalsAgainst,
		Result:          result(goalsFor, goalsAgainst),
		PossessionPct:   f.bounded("possession", 0, 100),
		PassesCompleted: passesCompleted,
		PassesAttempted: passesAttempted,
		PassingAccPct:   passingPct,
		Shots:           shots,
		ShotsOnTarget:   shotsOnTarget,
		Saves:           f.count("saves"),
		Tackles:         f.count("tackles"),
		Interceptions:   f.count("interceptions"),
		Clearances:      f.count("clearances"),
		Fouls:           f.count("fouls"),
		Corners:         f.count("corners"),
		Crosses:         f.count("crosses"),
		Offsides:        f.count("offsides"),
		AerialsWon:      f.count("aerials_won"),
		YellowCards:     f.count("cards_yellow"),
		RedCards:        f.count("cards_red"),
		Xg:              f.bounded("xg", 0, 20),
		SeasonID:        match.SeasonID.Int64,
		MatchDate:       match.Date,
	}
	id, err := tx.UpsertTeamRecord(ctx, param)
	if err != nil {
		switch db.ConstraintOf(err) {
		case db.ConstraintTeamRecordLimit, db.ConstraintUnique:
			return db.TeamMatchRecord{}, fmt.Errorf("%w: %s", ErrInvariantViolation, err.Error())
		}
		e.tel.ReportBroken(report_ingest_team, err, rec.Key(), param)
		return db.TeamMatchRecord{}, err
	}

	if sibling != nil {
		against := goalsFor
		if !against.Valid {
			against = sibling.GoalsAgainst
		}
		link := db.LinkOpponentParams{
			ID:             sibling.ID,
			OpponentTeamID: team.ID,
			GoalsAgainst:   against,
			Result:         result(sibling.GoalsFor, against),
		}
		err = tx.LinkOpponent(ctx, link)
		if err != nil {
			e.tel.ReportBroken(report_ingest_team, err, "LinkOpponent", link)
			return db.TeamMatchRecord{}, err
		}
	}

	linked, err := tx.LinkPlayerRecords(ctx, match.ID, team.ID, id)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "LinkPlayerRecords", match.ID, team.ID)
		return db.TeamMatchRecord{}, err
	}
	if linked > 0 {
		e.tel.ReportDebug("linked pending player records", rec.Key(), linked)
	}

	if sibling != nil && match.Status == db.MatchPending {
		err = tx.SetMatchStatus(ctx, match.ID, db.MatchComplete)
		if err != nil {
			e.tel.ReportBroken(report_db_query, err, "SetMatchStatus", match.ID)
			return db.TeamMatchRecord{}, err
		}
	}

	record, err = tx.GetTeamRecordByID(ctx, id)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "GetTeamRecordByID", id)
		return db.TeamMatchRecord{}, err
	}
	err = commit()
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return db.TeamMatchRecord{}, err
	}
	return record, nil
}
