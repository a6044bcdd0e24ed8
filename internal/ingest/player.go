package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/identity"
	"nwsl-backend/internal/source"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// started decides whether a player started a match when the source does not
// say so: a player who played and either sits in the first rows of the lineup
// table or played long enough.
func (o Options) started(minutes, row int64) bool {
	if minutes <= 0 {
		return false
	}
	return (row > 0 && row <= o.StarterRows) || minutes >= o.StarterMinutes
}

// detailValues builds the row of a detail table from the fields of its
// category. Part/whole pairs that contradict each other become null and
// every ratio is recomputed from its components.
func detailValues(f fields, cat db.Category) map[string]any {
	ints := map[string]sql.NullInt64{}
	values := map[string]any{}
	for _, field := range cat.Fields {
		if field.Float {
			v := f.float(field.Source)
			if v.Valid {
				values[field.Column] = v
			}
			continue
		}
		ints[field.Column] = f.count(field.Source)
	}

	for _, p := range cat.Pairs {
		part, whole := ints[p.Part], ints[p.Whole]
		f.pair(cat.Name+"."+p.Part, &part, cat.Name+"."+p.Whole, &whole)
		ints[p.Part], ints[p.Whole] = part, whole
	}

	for col, v := range ints {
		if v.Valid {
			values[col] = v
		}
	}

	row := db.DetailValues{}
	for col, v := range ints {
		row[col] = sql.NullFloat64{Float64: float64(v.Int64), Valid: v.Valid}
	}
	for _, r := range cat.Ratios {
		pct := r.Of(row)
		if pct.Valid {
			values[r.Column] = pct
		}
	}
	return values
}

// IngestPlayerRecord upserts the record of a player in a match along with the
// detail rows of every category the record carries.
func (e *Engine) IngestPlayerRecord(ctx context.Context, rec source.Record) (record db.PlayerMatchRecord, err error) {
	ctx, span := tracer.Start(ctx, "IngestPlayerRecord")
	defer span.End()
	span.SetAttributes(attribute.String("native_id", rec.NativeID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to ingest player record")
		}
	}()

	keys, err := nativeParts(rec, "match", "player")
	if err != nil {
		return db.PlayerMatchRecord{}, err
	}
	teamNative, err := rec.RequireString("team")
	if err != nil {
		return db.PlayerMatchRecord{}, err
	}
	info, err := e.lookupMatch(ctx, keys[0])
	if err != nil {
		return db.PlayerMatchRecord{}, err
	}
	team, err := e.resolver.Resolve(ctx, identity.EntityTeam, teamNative, identity.Context{Season: info.year})
	if err != nil {
		return db.PlayerMatchRecord{}, err
	}
	if team.ID != info.match.HomeTeamID.Int64 && team.ID != info.match.AwayTeamID.Int64 {
		return db.PlayerMatchRecord{}, fmt.Errorf(
			"team '%s' did not play in match '%s': %w",
			teamNative, info.match.NativeID, identity.ErrContextMismatch,
		)
	}

	f := e.fields(rec)
	player, err := e.resolver.ResolveOrCreate(ctx, identity.EntityPlayer, keys[1], identity.Context{
		Name: f.str("player_name"),
	})
	if err != nil {
		return db.PlayerMatchRecord{}, err
	}

	minutes := f.count("minutes").Int64
	started, explicit, err := rec.Bool("started")
	if err != nil {
		f.warn("started", err)
	}
	if !explicit {
		row := f.count("row")
		if !row.Valid {
			row = sql.NullInt64{Int64: int64(rec.Provenance.Row), Valid: rec.Provenance.Row > 0}
		}
		started = e.opts.started(minutes, row.Int64)
	}

	pensMade, pensAtt := f.count("pens_made"), f.count("pens_att")
	f.pair("pens_made", &pensMade, "pens_att", &pensAtt)
	shotsOnTarget, shots := f.count("shots_on_target"), f.count("shots")
	f.pair("shots_on_target", &shotsOnTarget, "shots", &shots)

	details := map[string]map[string]any{}
	for _, cat := range db.Categories {
		sub, ok := rec.Sub(cat.Name)
		if !ok {
			continue
		}
		details[cat.Name] = detailValues(fields{rec: sub, tel: e.tel}, cat)
	}

	tx, discard, commit, err := e.makeTx(ctx)
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return db.PlayerMatchRecord{}, err
	}
	defer e.discard(rec.Key(), discard)

	var teamRecordID sql.NullInt64
	teamRecord, err := tx.GetTeamRecord(ctx, info.match.ID, team.ID)
	switch {
	case err == nil:
		teamRecordID = sql.NullInt64{Int64: teamRecord.ID, Valid: true}
	case !errors.Is(err, sql.ErrNoRows):
		e.tel.ReportBroken(report_db_query, err, "GetTeamRecord", info.match.ID, team.ID)
		return db.PlayerMatchRecord{}, err
	}

	param := db.PlayerMatchRecord{
		MatchID:       info.match.ID,
		PlayerID:      player.ID,
		TeamID:        team.ID,
		TeamRecordID:  teamRecordID,
		Position:      f.str("position"),
		ShirtNumber:   f.count("shirtnumber"),
		Minutes:       minutes,
		Started:       started,
		Goals:         f.count("goals"),
		Assists:       f.count("assists"),
		PensMade:      pensMade,
		PensAtt:       pensAtt,
		Shots:         shots,
		ShotsOnTarget: shotsOnTarget,
		YellowCards:   f.count("cards_yellow"),
		RedCards:      f.count("cards_red"),
		Xg:            f.bounded("xg", 0, 20),
		Npxg:          f.bounded("npxg", 0, 20),
		Xag:           f.bounded("xg_assist", 0, 20),
		MatchDate:     info.match.Date,
	}
	id, err := tx.UpsertPlayerRecord(ctx, param)
	if err != nil {
		if db.ConstraintOf(err) != db.ConstraintNone {
			return db.PlayerMatchRecord{}, fmt.Errorf("%w: %s", ErrInvariantViolation, err.Error())
		}
		e.tel.ReportBroken(report_ingest_player, err, rec.Key(), param)
		return db.PlayerMatchRecord{}, err
	}

	for _, cat := range db.Categories {
		values, ok := details[cat.Name]
		if !ok {
			continue
		}
		err = tx.UpsertDetail(ctx, cat, id, values)
		if err != nil {
			if db.ConstraintOf(err) != db.ConstraintNone {
				return db.PlayerMatchRecord{}, fmt.Errorf("%s: %w: %s", cat.Table, ErrInvariantViolation, err.Error())
			}
			e.tel.ReportBroken(report_ingest_player, err, rec.Key(), cat.Table)
			return db.PlayerMatchRecord{}, err
		}
	}

	record, err = tx.GetPlayerRecord(ctx, info.match.ID, player.ID)
	if err != nil {
		e.tel.ReportBroken(report_db_query, err, "GetPlayerRecord", info.match.ID, player.ID)
		return db.PlayerMatchRecord{}, err
	}
	err = commit()
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return db.PlayerMatchRecord{}, err
	}
	return record, nil
}
