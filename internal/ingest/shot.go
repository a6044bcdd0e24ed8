package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/identity"
	"nwsl-backend/internal/source"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var outcomes = map[string]string{
	"goal":             db.OutcomeGoal,
	"saved":            db.OutcomeSaved,
	"off target":       db.OutcomeOffTarget,
	"off":              db.OutcomeOffTarget,
	"wide":             db.OutcomeOffTarget,
	"blocked":          db.OutcomeBlocked,
	"woodwork":         db.OutcomeWoodwork,
	"post":             db.OutcomeWoodwork,
	"saved off target": db.OutcomeSavedOffTarget,
	"saved off":        db.OutcomeSavedOffTarget,
}

// NormalizeOutcome maps the outcome strings found in shot tables ("Saved",
// "so_saved", "off_target", ...) onto the fixed set of outcomes.
func NormalizeOutcome(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)
	key = strings.Join(strings.Fields(key), " ")
	key = strings.TrimPrefix(key, "so ")

	outcome, ok := outcomes[key]
	if !ok {
		return "", fmt.Errorf("outcome = %s: unknown: %w", raw, source.ErrInvalidField)
	}
	return outcome, nil
}

// ParseMinute reads a match minute, injury time is folded in so "90+7" is 97.
func ParseMinute(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimRight(raw, "'’")
	if raw == "" {
		return 0, fmt.Errorf("minute: empty: %w", source.ErrInvalidField)
	}

	var total int64
	for _, part := range strings.Split(raw, "+") {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("minute = %s: %w", raw, source.ErrInvalidField)
		}
		total += n
	}
	return total, nil
}

// IngestShotEvent upserts a shot on (match, seq). A shooter that is not known
// yet is stored as a null reference with its native id kept.
func (e *Engine) IngestShotEvent(ctx context.Context, rec source.Record) (shot db.ShotEvent, err error) {
	ctx, span := tracer.Start(ctx, "IngestShotEvent")
	defer span.End()
	span.SetAttributes(attribute.String("native_id", rec.NativeID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to ingest shot")
		}
	}()

	keys, err := nativeParts(rec, "match", "seq")
	if err != nil {
		return db.ShotEvent{}, err
	}
	seq, err := strconv.ParseInt(keys[1], 10, 64)
	if err != nil || seq < 0 {
		return db.ShotEvent{}, fmt.Errorf("seq = %s: %w", keys[1], source.ErrInvalidField)
	}
	teamNative, err := rec.RequireString("team")
	if err != nil {
		return db.ShotEvent{}, err
	}
	rawOutcome, err := rec.RequireString("outcome")
	if err != nil {
		return db.ShotEvent{}, err
	}
	outcome, err := NormalizeOutcome(rawOutcome)
	if err != nil {
		return db.ShotEvent{}, err
	}

	info, err := e.lookupMatch(ctx, keys[0])
	if err != nil {
		return db.ShotEvent{}, err
	}
	team, err := e.resolver.Resolve(ctx, identity.EntityTeam, teamNative, identity.Context{Season: info.year})
	if err != nil {
		return db.ShotEvent{}, err
	}
	if team.ID != info.match.HomeTeamID.Int64 && team.ID != info.match.AwayTeamID.Int64 {
		return db.ShotEvent{}, fmt.Errorf(
			"team '%s' did not play in match '%s': %w",
			teamNative, info.match.NativeID, identity.ErrContextMismatch,
		)
	}

	f := e.fields(rec)
	playerNative := f.str("player")
	var playerID sql.NullInt64
	if playerNative != "" {
		player, err := e.resolver.Resolve(ctx, identity.EntityPlayer, playerNative, identity.Context{})
		switch {
		case err == nil:
			playerID = sql.NullInt64{Int64: player.ID, Valid: true}
		case errors.Is(err, identity.ErrUnresolvableReference):
			e.tel.ReportDebug("shot by unmapped player", rec.Key(), playerNative)
		default:
			return db.ShotEvent{}, err
		}
	}

	var minute sql.NullInt64
	if raw := f.str("minute"); raw != "" {
		m, err := ParseMinute(raw)
		if err != nil {
			f.warn("minute", err)
		} else {
			minute = sql.NullInt64{Int64: m, Valid: true}
		}
	}

	param := db.ShotEvent{
		MatchID:        info.match.ID,
		Seq:            seq,
		Minute:         minute,
		PlayerID:       playerID,
		PlayerNativeID: playerNative,
		PlayerName:     f.str("player_name"),
		TeamID:         team.ID,
		Xg:             f.bounded("xg_shot", 0, 1),
		Psxg:           f.bounded("psxg_shot", 0, 1),
		Outcome:        outcome,
		Distance:       f.count("distance"),
		BodyPart:       f.str("body_part"),
		Notes:          f.str("notes"),
		Sca1Player:     f.str("sca_1_player"),
		Sca1Event:      f.str("sca_1_type"),
		Sca2Player:     f.str("sca_2_player"),
		Sca2Event:      f.str("sca_2_type"),
	}

	tx, discard, commit, err := e.makeTx(ctx)
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return db.ShotEvent{}, err
	}
	defer e.discard(rec.Key(), discard)

	id, err := tx.UpsertShot(ctx, param)
	if err != nil {
		if db.ConstraintOf(err) != db.ConstraintNone {
			return db.ShotEvent{}, fmt.Errorf("%w: %s", ErrInvariantViolation, err.Error())
		}
		e.tel.ReportBroken(report_ingest_shot, err, rec.Key(), param)
		return db.ShotEvent{}, err
	}
	err = commit()
	if err != nil {
		e.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return db.ShotEvent{}, err
	}

	param.ID = id
	return param, nil
}
