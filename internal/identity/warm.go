package identity

import (
	"context"
	"strconv"
)

// Warm loads every native id of the store into the cache, it is called once
// at the start of a run. It returns the amount of cached native ids.
func (r *Resolver) Warm(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Warm")
	defer span.End()

	tx, discard, _, err := r.makeTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		err := discard()
		if err != nil {
			r.tel.ReportBroken(report_resolver_discard, err)
		}
	}()

	entries := map[cacheKey]cacheEntry{}
	byID := map[EntityType]map[int64]cacheEntry{
		EntitySeason: {},
		EntityTeam:   {},
		EntityPlayer: {},
		EntityVenue:  {},
		EntityMatch:  {},
	}
	put := func(entity EntityType, key cacheKey, id int64, e cacheEntry) {
		e.id = id
		entries[key] = e
		byID[entity][id] = e
	}

	seasons, err := tx.ListSeasons(ctx)
	if err != nil {
		r.tel.ReportBroken(report_resolver_warm, err)
		return 0, err
	}
	for _, s := range seasons {
		put(EntitySeason, cacheKey{entity: EntitySeason, native: strconv.FormatInt(s.Year, 10)}, s.ID, cacheEntry{})
	}

	teams, err := tx.ListTeams(ctx)
	if err != nil {
		r.tel.ReportBroken(report_resolver_warm, err)
		return 0, err
	}
	for _, t := range teams {
		put(
			EntityTeam,
			cacheKey{entity: EntityTeam, native: t.NativeID, scope: t.SeasonID},
			t.ID,
			cacheEntry{named: t.Name != ""},
		)
	}

	players, err := tx.ListPlayers(ctx)
	if err != nil {
		r.tel.ReportBroken(report_resolver_warm, err)
		return 0, err
	}
	for _, p := range players {
		put(EntityPlayer, cacheKey{entity: EntityPlayer, native: p.NativeID}, p.ID, cacheEntry{named: p.Name != ""})
	}

	venues, err := tx.ListVenues(ctx)
	if err != nil {
		r.tel.ReportBroken(report_resolver_warm, err)
		return 0, err
	}
	for _, v := range venues {
		put(
			EntityVenue,
			cacheKey{entity: EntityVenue, native: v.NativeID},
			v.ID,
			cacheEntry{address: v.Address, unresolved: v.Unresolved},
		)
	}

	matches, err := tx.ListMatches(ctx)
	if err != nil {
		r.tel.ReportBroken(report_resolver_warm, err)
		return 0, err
	}
	for _, m := range matches {
		put(EntityMatch, cacheKey{entity: EntityMatch, native: m.NativeID}, m.ID, cacheEntry{
			date:       m.Date,
			seasonID:   m.SeasonID.Int64,
			homeTeamID: m.HomeTeamID.Int64,
			awayTeamID: m.AwayTeamID.Int64,
		})
	}

	aliases, err := tx.ListAliases(ctx)
	if err != nil {
		r.tel.ReportBroken(report_resolver_warm, err)
		return 0, err
	}
	for _, a := range aliases {
		entity := EntityType(a.Entity)
		target, ok := byID[entity][a.TargetID]
		if !ok {
			continue
		}
		entries[cacheKey{entity: entity, native: a.NativeID, scope: a.Scope}] = target
	}

	r.publish(entries)
	r.tel.ReportDebug("warmed resolver cache", len(entries))
	return len(entries), nil
}
