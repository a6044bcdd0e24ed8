// Package identity maps the native identifiers of the source onto the
// surrogate keys of the canonical store.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"nwsl-backend/internal/components/assert"
	"nwsl-backend/internal/components/db"
	"nwsl-backend/internal/components/telemetry"
	"nwsl-backend/lib/textutil"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("nwsl.internal.identity")

const (
	report_resolver_resolve = "resolver.resolve"
	report_resolver_merge   = "resolver.merge"
	report_resolver_warm    = "resolver.warm"
	report_resolver_discard = "resolver.discard-tx"
)

var (
	// ErrUnresolvableReference is returned when an entity does not exist and
	// cannot be created from the context given.
	ErrUnresolvableReference = errors.New("unresolvable reference")
	// ErrContextMismatch is returned when the context given conflicts with an
	// entity that was already resolved.
	ErrContextMismatch = errors.New("context mismatch")
	// ErrMergeConflict is returned when a merge would leave the store violating
	// a uniqueness rule, nothing is applied.
	ErrMergeConflict = errors.New("merge conflict")
)

type EntityType string

const (
	EntitySeason EntityType = "season"
	EntityTeam   EntityType = "team"
	EntityPlayer EntityType = "player"
	EntityVenue  EntityType = "venue"
	EntityMatch  EntityType = "match"
)

// Context carries the attributes needed to create an entity and to detect
// conflicts with one that already exists.
type Context struct {
	// Season is the year of the season, teams and matches require it.
	Season int64
	Name   string
	// Date of a match, YYYY-MM-DD.
	Date         string
	HomeTeam     string
	HomeTeamName string
	AwayTeam     string
	AwayTeamName string
	// Address of a venue, venues without one are created as placeholders.
	Address string
}

// Ref is a resolved entity.
type Ref struct {
	Entity   EntityType
	ID       int64
	NativeID string
}

type cacheKey struct {
	entity EntityType
	native string
	// season id for teams
	scope int64
}

type cacheEntry struct {
	id    int64
	named bool

	date       string
	seasonID   int64
	homeTeamID int64
	awayTeamID int64

	address    string
	unresolved bool
}

// Resolver resolves native ids, its cache lives only as long as the resolver.
type Resolver struct {
	tel    telemetry.API
	makeTx db.MakeTx

	mutex sync.RWMutex
	cache map[cacheKey]cacheEntry
}

func NewResolver(tel telemetry.API, database *sql.DB) *Resolver {
	assert.NotNil(tel, "telemetry")
	assert.NotNil(database, "database")

	return &Resolver{
		tel:    telemetry.NewScopedAPI("identity", tel),
		makeTx: db.NewMakeTx(database),
		cache:  map[cacheKey]cacheEntry{},
	}
}

func (r *Resolver) cached(key cacheKey) (cacheEntry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	e, ok := r.cache[key]
	return e, ok
}

func (r *Resolver) publish(entries map[cacheKey]cacheEntry) {
	if len(entries) == 0 {
		return
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for k, v := range entries {
		r.cache[k] = v
	}
}

func (r *Resolver) invalidate() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.cache = map[cacheKey]cacheEntry{}
}

// CacheSize returns the amount of cached native ids.
func (r *Resolver) CacheSize() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.cache)
}

// ResolveOrCreate returns the entity with the given native id, creating it
// when it does not exist yet. Creates are committed before returning and are
// idempotent, concurrent calls for the same native id converge on one row.
func (r *Resolver) ResolveOrCreate(ctx context.Context, entity EntityType, nativeID string, c Context) (Ref, error) {
	return r.resolve(ctx, entity, nativeID, c, true)
}

// Resolve returns the entity with the given native id without ever creating
// it, a miss is ErrUnresolvableReference. Context fields that are set are
// checked against the stored entity.
func (r *Resolver) Resolve(ctx context.Context, entity EntityType, nativeID string, c Context) (Ref, error) {
	return r.resolve(ctx, entity, nativeID, c, false)
}

func (r *Resolver) resolve(ctx context.Context, entity EntityType, nativeID string, c Context, create bool) (ref Ref, err error) {
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("entity", string(entity)),
		attribute.String("native_id", nativeID),
		attribute.Bool("create", create),
	)

	if nativeID == "" {
		return Ref{}, fmt.Errorf("%s without native id: %w", entity, ErrUnresolvableReference)
	}

	s := &session{r: r, create: create, pending: map[cacheKey]cacheEntry{}}
	var id int64
	switch entity {
	case EntitySeason:
		var year int64
		year, err = strconv.ParseInt(nativeID, 10, 64)
		if err != nil {
			err = fmt.Errorf("season '%s' is not a year: %w", nativeID, ErrUnresolvableReference)
			break
		}
		id, err = s.season(ctx, year)
	case EntityTeam:
		id, err = s.team(ctx, nativeID, c.Season, c.Name)
	case EntityPlayer:
		id, err = s.player(ctx, nativeID, c.Name)
	case EntityVenue:
		id, err = s.venue(ctx, nativeID, c.Name, c.Address)
	case EntityMatch:
		id, err = s.match(ctx, nativeID, c)
	default:
		err = fmt.Errorf("unknown entity '%s'", entity)
	}
	err = s.finish(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve")
		if !errors.Is(err, ErrUnresolvableReference) && !errors.Is(err, ErrContextMismatch) {
			r.tel.ReportBroken(report_resolver_resolve, entity, nativeID, err)
		}
		return Ref{}, err
	}

	return Ref{Entity: entity, ID: id, NativeID: nativeID}, nil
}

// session is a single resolution, it opens a transaction only when the cache
// cannot answer and publishes what it learned once the transaction is done.
type session struct {
	r       *Resolver
	create  bool
	pending map[cacheKey]cacheEntry

	tx      *db.Queries
	discard func() error
	commit  func() error
}

func (s *session) get(key cacheKey) (cacheEntry, bool) {
	if e, ok := s.pending[key]; ok {
		return e, true
	}
	return s.r.cached(key)
}

func (s *session) queries(ctx context.Context) (*db.Queries, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, discard, commit, err := s.r.makeTx(ctx)
	if err != nil {
		return nil, err
	}
	s.tx = tx
	s.discard = discard
	s.commit = commit
	return tx, nil
}

func (s *session) finish(err error) error {
	if s.tx == nil {
		return err
	}
	if err != nil {
		discardErr := s.discard()
		if discardErr != nil {
			s.r.tel.ReportBroken(report_resolver_discard, discardErr)
		}
		return err
	}
	if s.create {
		err = s.commit()
		if err != nil {
			return err
		}
	} else {
		err = s.discard()
		if err != nil {
			s.r.tel.ReportBroken(report_resolver_discard, err)
		}
	}
	s.r.publish(s.pending)
	return nil
}

func (s *session) unresolvable(entity EntityType, nativeID string) error {
	return fmt.Errorf("%s '%s' does not exist: %w", entity, nativeID, ErrUnresolvableReference)
}

// alias returns the entity a native id was merged into.
func (s *session) alias(ctx context.Context, tx *db.Queries, entity EntityType, nativeID string, scope int64) (int64, bool, error) {
	alias, err := tx.GetAlias(ctx, string(entity), nativeID, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return alias.TargetID, true, nil
}

func (s *session) season(ctx context.Context, year int64) (int64, error) {
	key := cacheKey{entity: EntitySeason, native: strconv.FormatInt(year, 10)}
	if e, ok := s.get(key); ok {
		return e.id, nil
	}

	tx, err := s.queries(ctx)
	if err != nil {
		return 0, err
	}
	row, err := tx.GetSeasonByYear(ctx, year)
	if errors.Is(err, sql.ErrNoRows) {
		if !s.create {
			return 0, s.unresolvable(EntitySeason, key.native)
		}
		err = tx.CreateSeason(ctx, year)
		if err != nil {
			return 0, err
		}
		row, err = tx.GetSeasonByYear(ctx, year)
	}
	if err != nil {
		return 0, err
	}

	s.pending[key] = cacheEntry{id: row.ID}
	return row.ID, nil
}

func (s *session) team(ctx context.Context, nativeID string, seasonYear int64, name string) (int64, error) {
	if seasonYear == 0 {
		return 0, fmt.Errorf("team '%s' has no season: %w", nativeID, ErrUnresolvableReference)
	}
	seasonID, err := s.season(ctx, seasonYear)
	if err != nil {
		return 0, err
	}

	key := cacheKey{entity: EntityTeam, native: nativeID, scope: seasonID}
	if e, ok := s.get(key); ok && (e.named || name == "" || !s.create) {
		return e.id, nil
	}

	tx, err := s.queries(ctx)
	if err != nil {
		return 0, err
	}
	row, err := tx.GetTeam(ctx, nativeID, seasonID)
	if errors.Is(err, sql.ErrNoRows) {
		target, found, aliasErr := s.alias(ctx, tx, EntityTeam, nativeID, seasonID)
		if aliasErr != nil {
			return 0, aliasErr
		}
		switch {
		case found:
			row, err = tx.GetTeamByID(ctx, target)
		case !s.create:
			return 0, s.unresolvable(EntityTeam, nativeID)
		default:
			err = tx.CreateTeam(ctx, db.CreateTeamParams{
				NativeID: nativeID,
				SeasonID: seasonID,
				Name:     name,
			})
			if err != nil {
				return 0, err
			}
			row, err = tx.GetTeam(ctx, nativeID, seasonID)
		}
	}
	if err != nil {
		return 0, err
	}

	named := row.Name != ""
	if !named && name != "" && s.create {
		err = tx.FillTeamName(ctx, row.ID, name)
		if err != nil {
			return 0, err
		}
		named = true
	}

	s.pending[key] = cacheEntry{id: row.ID, named: named}
	return row.ID, nil
}

func (s *session) player(ctx context.Context, nativeID, name string) (int64, error) {
	key := cacheKey{entity: EntityPlayer, native: nativeID}
	if e, ok := s.get(key); ok && (e.named || name == "" || !s.create) {
		return e.id, nil
	}

	tx, err := s.queries(ctx)
	if err != nil {
		return 0, err
	}
	row, err := tx.GetPlayer(ctx, nativeID)
	if errors.Is(err, sql.ErrNoRows) {
		target, found, aliasErr := s.alias(ctx, tx, EntityPlayer, nativeID, 0)
		if aliasErr != nil {
			return 0, aliasErr
		}
		switch {
		case found:
			row, err = tx.GetPlayerByID(ctx, target)
		case !s.create:
			return 0, s.unresolvable(EntityPlayer, nativeID)
		default:
			err = tx.CreatePlayer(ctx, nativeID, name)
			if err != nil {
				return 0, err
			}
			row, err = tx.GetPlayer(ctx, nativeID)
		}
	}
	if err != nil {
		return 0, err
	}

	named := row.Name != ""
	if !named && name != "" && s.create {
		err = tx.FillPlayerName(ctx, row.ID, name)
		if err != nil {
			return 0, err
		}
		named = true
	}

	s.pending[key] = cacheEntry{id: row.ID, named: named}
	return row.ID, nil
}

func sameAddress(a, b string) bool {
	return textutil.NormalizeName(a) == textutil.NormalizeName(b)
}

func (s *session) venue(ctx context.Context, nativeID, name, address string) (int64, error) {
	key := cacheKey{entity: EntityVenue, native: nativeID}
	if e, ok := s.get(key); ok {
		switch {
		case address == "":
			return e.id, nil
		case !e.unresolved && sameAddress(e.address, address):
			return e.id, nil
		case !e.unresolved:
			return 0, fmt.Errorf(
				"venue '%s' is at '%s' not '%s': %w",
				nativeID, e.address, address, ErrContextMismatch,
			)
		case !s.create:
			return e.id, nil
		}
	}

	tx, err := s.queries(ctx)
	if err != nil {
		return 0, err
	}
	row, err := tx.GetVenue(ctx, nativeID)
	if errors.Is(err, sql.ErrNoRows) {
		target, found, aliasErr := s.alias(ctx, tx, EntityVenue, nativeID, 0)
		if aliasErr != nil {
			return 0, aliasErr
		}
		switch {
		case found:
			row, err = tx.GetVenueByID(ctx, target)
		case !s.create:
			return 0, s.unresolvable(EntityVenue, nativeID)
		default:
			if name == "" {
				name = nativeID
			}
			err = tx.CreateVenue(ctx, db.CreateVenueParams{
				NativeID:   nativeID,
				Name:       name,
				Address:    address,
				Unresolved: address == "",
			})
			if err != nil {
				return 0, err
			}
			row, err = tx.GetVenue(ctx, nativeID)
		}
	}
	if err != nil {
		return 0, err
	}

	if address != "" {
		switch {
		case row.Unresolved && s.create:
			err = tx.ResolveVenue(ctx, row.ID, address)
			if err != nil {
				return 0, err
			}
			row.Address = address
			row.Unresolved = false
		case !row.Unresolved && !sameAddress(row.Address, address):
			return 0, fmt.Errorf(
				"venue '%s' is at '%s' not '%s': %w",
				nativeID, row.Address, address, ErrContextMismatch,
			)
		}
	}

	s.pending[key] = cacheEntry{id: row.ID, address: row.Address, unresolved: row.Unresolved}
	return row.ID, nil
}

func (s *session) match(ctx context.Context, nativeID string, c Context) (int64, error) {
	if s.create {
		if c.Date == "" || c.Season == 0 || c.HomeTeam == "" || c.AwayTeam == "" {
			return 0, fmt.Errorf(
				"match '%s' needs a date, a season and both teams: %w",
				nativeID, ErrUnresolvableReference,
			)
		}
		if c.HomeTeam == c.AwayTeam {
			return 0, fmt.Errorf(
				"match '%s' has the same home and away team '%s': %w",
				nativeID, c.HomeTeam, ErrUnresolvableReference,
			)
		}
	}

	key := cacheKey{entity: EntityMatch, native: nativeID}
	entry, ok := s.get(key)
	if !ok {
		tx, err := s.queries(ctx)
		if err != nil {
			return 0, err
		}
		row, err := tx.GetMatch(ctx, nativeID)
		if errors.Is(err, sql.ErrNoRows) {
			target, found, aliasErr := s.alias(ctx, tx, EntityMatch, nativeID, 0)
			if aliasErr != nil {
				return 0, aliasErr
			}
			switch {
			case found:
				row, err = tx.GetMatchByID(ctx, target)
			case !s.create:
				return 0, s.unresolvable(EntityMatch, nativeID)
			default:
				row, err = s.createMatch(ctx, tx, nativeID, c)
			}
		}
		if err != nil {
			return 0, err
		}
		entry = cacheEntry{
			id:         row.ID,
			date:       row.Date,
			seasonID:   row.SeasonID.Int64,
			homeTeamID: row.HomeTeamID.Int64,
			awayTeamID: row.AwayTeamID.Int64,
		}
	}

	err := s.checkMatch(ctx, nativeID, entry, c)
	if err != nil {
		return 0, err
	}
	s.pending[key] = entry
	return entry.id, nil
}

func (s *session) createMatch(ctx context.Context, tx *db.Queries, nativeID string, c Context) (db.Match, error) {
	seasonID, err := s.season(ctx, c.Season)
	if err != nil {
		return db.Match{}, err
	}
	homeID, err := s.team(ctx, c.HomeTeam, c.Season, c.HomeTeamName)
	if err != nil {
		return db.Match{}, err
	}
	awayID, err := s.team(ctx, c.AwayTeam, c.Season, c.AwayTeamName)
	if err != nil {
		return db.Match{}, err
	}
	err = tx.CreateMatch(ctx, db.CreateMatchParams{
		NativeID:   nativeID,
		Date:       c.Date,
		SeasonID:   seasonID,
		HomeTeamID: homeID,
		AwayTeamID: awayID,
	})
	if err != nil {
		return db.Match{}, err
	}
	return tx.GetMatch(ctx, nativeID)
}

// checkMatch compares the context given with a resolved match, only fields
// set in the context are compared.
func (s *session) checkMatch(ctx context.Context, nativeID string, entry cacheEntry, c Context) error {
	mismatch := func(field string, stored, given any) error {
		return fmt.Errorf(
			"match '%s' has %s %v not %v: %w",
			nativeID, field, stored, given, ErrContextMismatch,
		)
	}

	if c.Date != "" && entry.date != c.Date {
		return mismatch("date", entry.date, c.Date)
	}
	if c.Season == 0 {
		return nil
	}
	seasonID, err := s.season(ctx, c.Season)
	if errors.Is(err, ErrUnresolvableReference) {
		return mismatch("season", entry.seasonID, c.Season)
	}
	if err != nil {
		return err
	}
	if seasonID != entry.seasonID {
		return mismatch("season", entry.seasonID, c.Season)
	}

	sides := []struct {
		field  string
		native string
		name   string
		stored int64
	}{
		{field: "home team", native: c.HomeTeam, name: c.HomeTeamName, stored: entry.homeTeamID},
		{field: "away team", native: c.AwayTeam, name: c.AwayTeamName, stored: entry.awayTeamID},
	}
	for _, side := range sides {
		if side.native == "" {
			continue
		}
		teamID, err := s.team(ctx, side.native, c.Season, side.name)
		if errors.Is(err, ErrUnresolvableReference) {
			return mismatch(side.field, side.stored, side.native)
		}
		if err != nil {
			return err
		}
		if teamID != side.stored {
			return mismatch(side.field, side.stored, side.native)
		}
	}
	return nil
}
