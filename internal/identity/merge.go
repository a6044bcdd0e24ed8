package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nwsl-backend/internal/components/db"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// facts are the attributes of an entity row that decide a merge.
type facts struct {
	nativeID   string
	name       string
	scope      int64
	date       string
	unresolved bool
	references int64
}

func loadFacts(ctx context.Context, tx *db.Queries, entity EntityType, id int64) (facts, error) {
	var f facts
	switch entity {
	case EntitySeason:
		row, err := tx.GetSeason(ctx, id)
		if err != nil {
			return f, err
		}
		f.nativeID = fmt.Sprint(row.Year)
	case EntityTeam:
		row, err := tx.GetTeamByID(ctx, id)
		if err != nil {
			return f, err
		}
		f.nativeID = row.NativeID
		f.name = row.Name
		f.scope = row.SeasonID
	case EntityPlayer:
		row, err := tx.GetPlayerByID(ctx, id)
		if err != nil {
			return f, err
		}
		f.nativeID = row.NativeID
		f.name = row.Name
	case EntityVenue:
		row, err := tx.GetVenueByID(ctx, id)
		if err != nil {
			return f, err
		}
		f.nativeID = row.NativeID
		f.name = row.Name
		f.unresolved = row.Unresolved
	case EntityMatch:
		row, err := tx.GetMatchByID(ctx, id)
		if err != nil {
			return f, err
		}
		f.nativeID = row.NativeID
		f.date = row.Date
	default:
		return f, fmt.Errorf("unknown entity '%s'", entity)
	}

	refs, err := tx.CountReferences(ctx, db.EntityTables[string(entity)], id)
	if err != nil {
		return f, err
	}
	f.references = refs
	return f, nil
}

// pickWinner orders two duplicates: a resolved entity beats a placeholder,
// then the one with more references wins, then the lower id.
func pickWinner(aID int64, a facts, bID int64, b facts) (winner, loser int64) {
	switch {
	case a.unresolved != b.unresolved:
		if b.unresolved {
			return aID, bID
		}
		return bID, aID
	case a.references != b.references:
		if a.references > b.references {
			return aID, bID
		}
		return bID, aID
	case aID < bID:
		return aID, bID
	default:
		return bID, aID
	}
}

// Merge collapses two duplicate entities into one. Every reference to the
// loser is repointed at the winner in a single transaction, the loser's
// native id is kept as an alias of the winner and the loser row is removed.
func (r *Resolver) Merge(ctx context.Context, entity EntityType, a, b Ref) (winner Ref, err error) {
	ctx, span := tracer.Start(ctx, "Merge")
	defer span.End()
	span.SetAttributes(
		attribute.String("entity", string(entity)),
		attribute.Int64("a", a.ID),
		attribute.Int64("b", b.ID),
	)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to merge")
			if !errors.Is(err, ErrMergeConflict) && !errors.Is(err, ErrContextMismatch) {
				r.tel.ReportBroken(report_resolver_merge, entity, a.ID, b.ID, err)
			}
		}
	}()

	table, ok := db.EntityTables[string(entity)]
	if !ok {
		return Ref{}, fmt.Errorf("unknown entity '%s'", entity)
	}
	if a.ID == b.ID {
		return a, nil
	}

	tx, discard, commit, err := r.makeTx(ctx)
	if err != nil {
		return Ref{}, err
	}
	defer func() {
		discardErr := discard()
		if discardErr != nil {
			r.tel.ReportBroken(report_resolver_discard, discardErr)
		}
	}()

	aFacts, err := loadFacts(ctx, tx, entity, a.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ref{}, fmt.Errorf("%s %d: %w", entity, a.ID, ErrUnresolvableReference)
	}
	if err != nil {
		return Ref{}, err
	}
	bFacts, err := loadFacts(ctx, tx, entity, b.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ref{}, fmt.Errorf("%s %d: %w", entity, b.ID, ErrUnresolvableReference)
	}
	if err != nil {
		return Ref{}, err
	}

	if aFacts.scope != bFacts.scope {
		return Ref{}, fmt.Errorf(
			"%s %d and %d belong to different seasons: %w",
			entity, a.ID, b.ID, ErrContextMismatch,
		)
	}
	if aFacts.date != bFacts.date {
		return Ref{}, fmt.Errorf(
			"%s %d and %d were played on different dates: %w",
			entity, a.ID, b.ID, ErrContextMismatch,
		)
	}

	winnerID, loserID := pickWinner(a.ID, aFacts, b.ID, bFacts)
	winnerFacts, loserFacts := aFacts, bFacts
	if winnerID == b.ID {
		winnerFacts, loserFacts = bFacts, aFacts
	}

	moved, err := tx.RepointReferences(ctx, table, loserID, winnerID)
	if err != nil {
		if db.ConstraintOf(err) != db.ConstraintNone {
			return Ref{}, fmt.Errorf("%w: %s", ErrMergeConflict, err.Error())
		}
		return Ref{}, err
	}

	if winnerFacts.name == "" && loserFacts.name != "" {
		switch entity {
		case EntityPlayer:
			err = tx.FillPlayerName(ctx, winnerID, loserFacts.name)
		case EntityTeam:
			err = tx.FillTeamName(ctx, winnerID, loserFacts.name)
		}
		if err != nil {
			return Ref{}, err
		}
	}

	err = tx.RepointAliases(ctx, string(entity), loserID, winnerID)
	if err != nil {
		return Ref{}, err
	}
	err = tx.CreateAlias(ctx, db.EntityAlias{
		Entity:   string(entity),
		NativeID: loserFacts.nativeID,
		Scope:    loserFacts.scope,
		TargetID: winnerID,
	})
	if err != nil {
		return Ref{}, err
	}

	remaining, err := tx.CountReferences(ctx, table, loserID)
	if err != nil {
		return Ref{}, err
	}
	if remaining == 0 {
		err = tx.DeleteEntity(ctx, table, loserID)
		if err != nil {
			if db.ConstraintOf(err) != db.ConstraintNone {
				return Ref{}, fmt.Errorf("%w: %s", ErrMergeConflict, err.Error())
			}
			return Ref{}, err
		}
	}

	err = commit()
	if err != nil {
		return Ref{}, err
	}
	r.invalidate()

	r.tel.ReportDebug(
		"merged duplicate",
		entity, fmt.Sprintf("%d -> %d", loserID, winnerID), fmt.Sprintf("%d references moved", moved),
	)
	return Ref{Entity: entity, ID: winnerID, NativeID: winnerFacts.nativeID}, nil
}
