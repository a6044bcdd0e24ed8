package identity

import (
	"context"
	"fmt"
	"nwsl-backend/lib/textutil"
	"sort"

	"github.com/antzucaro/matchr"
)

// Suggestion is a pair of entities that look like duplicates of each other.
type Suggestion struct {
	A      Ref
	B      Ref
	Score  float64
	Reason string
}

type candidate struct {
	ref     Ref
	name    string
	address string
	scope   int64
}

// SuggestMerges lists likely duplicates, pairs sharing a normalized address
// and pairs whose names have a Jaro-Winkler similarity of at least threshold.
// Only venues, players and teams are supported.
func (r *Resolver) SuggestMerges(ctx context.Context, entity EntityType, threshold float64) ([]Suggestion, error) {
	ctx, span := tracer.Start(ctx, "SuggestMerges")
	defer span.End()

	tx, discard, _, err := r.makeTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		err := discard()
		if err != nil {
			r.tel.ReportBroken(report_resolver_discard, err)
		}
	}()

	var candidates []candidate
	switch entity {
	case EntityVenue:
		venues, err := tx.ListVenues(ctx)
		if err != nil {
			return nil, err
		}
		for _, v := range venues {
			candidates = append(candidates, candidate{
				ref:     Ref{Entity: entity, ID: v.ID, NativeID: v.NativeID},
				name:    v.Name,
				address: v.Address,
			})
		}
	case EntityPlayer:
		players, err := tx.ListPlayers(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range players {
			candidates = append(candidates, candidate{
				ref:  Ref{Entity: entity, ID: p.ID, NativeID: p.NativeID},
				name: p.Name,
			})
		}
	case EntityTeam:
		teams, err := tx.ListTeams(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range teams {
			candidates = append(candidates, candidate{
				ref:   Ref{Entity: entity, ID: t.ID, NativeID: t.NativeID},
				name:  t.Name,
				scope: t.SeasonID,
			})
		}
	default:
		return nil, fmt.Errorf("cannot suggest merges for '%s'", entity)
	}

	var suggestions []Suggestion
	for i := 0; i < len(candidates); i++ {
		left := candidates[i]
		for j := i + 1; j < len(candidates); j++ {
			right := candidates[j]
			if left.scope != right.scope {
				continue
			}

			leftAddr := textutil.NormalizeName(left.address)
			if leftAddr != "" && leftAddr == textutil.NormalizeName(right.address) {
				suggestions = append(suggestions, Suggestion{
					A: left.ref, B: right.ref, Score: 1, Reason: "address",
				})
				continue
			}

			leftName := textutil.NormalizeName(left.name)
			rightName := textutil.NormalizeName(right.name)
			if leftName == "" || rightName == "" {
				continue
			}
			similarity := matchr.JaroWinkler(leftName, rightName, false)
			if similarity >= threshold {
				suggestions = append(suggestions, Suggestion{
					A: left.ref, B: right.ref, Score: similarity, Reason: "name",
				})
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})
	return suggestions, nil
}
