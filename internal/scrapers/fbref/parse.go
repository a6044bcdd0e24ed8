// Package fbref extracts source records from FBref match reports.
package fbref

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"nwsl-backend/internal/source"
	"nwsl-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("nwsl.internal.scrapers.fbref")

var ErrMalformedReport = errors.New("malformed match report")

var (
	matchPattern       = regexp.MustCompile(`/matches/([0-9a-f]{8})`)
	squadPattern       = regexp.MustCompile(`/squads/([0-9a-f]{8})`)
	playerPattern      = regexp.MustCompile(`/players/([0-9a-f]{8})`)
	playerTablePattern = regexp.MustCompile(`^stats_([0-9a-f]{8})_(summary|passing|passing_types|defense|possession|misc)$`)
	keeperTablePattern = regexp.MustCompile(`^keeper_stats_([0-9a-f]{8})$`)
)

// detail categories keyed by the suffix of the player table they come from
var categories = map[string]string{
	"passing":       "passing",
	"passing_types": "pass_types",
	"defense":       "defense",
	"possession":    "possession",
	"misc":          "misc",
	"keeper":        "keeper",
}

// teamTotals maps the footer cells of the player tables onto team record
// fields.
var teamTotals = []struct {
	table string
	stat  string
	field string
}{
	{"summary", "shots", "shots"},
	{"summary", "shots_on_target", "shots_on_target"},
	{"summary", "cards_yellow", "cards_yellow"},
	{"summary", "cards_red", "cards_red"},
	{"summary", "xg", "xg"},
	{"passing", "passes_completed", "passes_completed"},
	{"passing", "passes", "passes"},
	{"passing_types", "corner_kicks", "corners"},
	{"passing_types", "crosses", "crosses"},
	{"defense", "tackles", "tackles"},
	{"defense", "interceptions", "interceptions"},
	{"defense", "clearances", "clearances"},
	{"misc", "fouls", "fouls"},
	{"misc", "offsides", "offsides"},
	{"misc", "aerials_won", "aerials_won"},
	{"keeper", "gk_saves", "saves"},
}

func idOf(pattern *regexp.Regexp, href string) string {
	m := pattern.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	return m[1]
}

// MatchID returns the id of the match a report url or file name refers to.
func MatchID(s string) string {
	if id := idOf(matchPattern, s); id != "" {
		return id
	}
	name := s[strings.LastIndex(s, "/")+1:]
	if len(name) >= 8 {
		if _, err := strconv.ParseUint(name[:8], 16, 64); err == nil {
			return name[:8]
		}
	}
	return strings.TrimSuffix(name, ".html")
}

type side struct {
	id    string
	name  string
	goals string
	xg    string
}

type player struct {
	team   string
	id     string
	fields map[string]any
	row    int
}

type report struct {
	nativeID string
	document string

	home, away side
	teams      map[string]map[string]any
	players    []*player
	byKey      map[string]*player
}

func (r *report) provenance(table string, row int) source.Provenance {
	return source.Provenance{Document: r.document, Table: table, Row: row}
}

func (r *report) player(team, id string) *player {
	key := team + "/" + id
	p, ok := r.byKey[key]
	if !ok {
		p = &player{team: team, id: id, fields: map[string]any{}}
		r.byKey[key] = p
		r.players = append(r.players, p)
	}
	return p
}

// Parse extracts the records of a match report, in the order they should be
// ingested: the match, its team records, its player records then its shots.
func Parse(ctx context.Context, nativeID, document string, r io.Reader) ([]source.Record, error) {
	ctx, span := tracer.Start(ctx, "Parse")
	defer span.End()
	span.SetAttributes(attribute.String("match", nativeID))

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read document")
		return nil, err
	}

	rep := &report{
		nativeID: nativeID,
		document: document,
		teams:    map[string]map[string]any{},
		byKey:    map[string]*player{},
	}
	match, err := rep.parseScorebox(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse scorebox")
		return nil, fmt.Errorf("%s: %w", document, err)
	}
	rep.teams[rep.home.id] = map[string]any{}
	rep.teams[rep.away.id] = map[string]any{}

	doc.Find("table[id]").Each(func(_ int, table *goquery.Selection) {
		id, _ := table.Attr("id")
		if m := playerTablePattern.FindStringSubmatch(id); m != nil {
			rep.parsePlayerTable(table, id, m[1], m[2])
			return
		}
		if m := keeperTablePattern.FindStringSubmatch(id); m != nil {
			rep.parsePlayerTable(table, id, m[1], "keeper")
		}
	})
	rep.parsePossession(doc)

	records := []source.Record{match}
	for i, s := range []side{rep.home, rep.away} {
		fields := rep.teams[s.id]
		fields["match"] = nativeID
		fields["team"] = s.id
		fields["team_name"] = s.name
		if s.goals != "" {
			fields["goals"] = s.goals
		}
		records = append(records, source.Record{
			Kind:       source.KindTeam,
			NativeID:   nativeID + "/" + s.id,
			Fields:     fields,
			Provenance: rep.provenance("scorebox", i),
		})
	}
	for _, p := range rep.players {
		if _, known := rep.teams[p.team]; !known {
			continue
		}
		p.fields["match"] = nativeID
		p.fields["team"] = p.team
		p.fields["player"] = p.id
		records = append(records, source.Record{
			Kind:       source.KindPlayer,
			NativeID:   nativeID + "/" + p.id,
			Fields:     p.fields,
			Provenance: rep.provenance(fmt.Sprintf("stats_%s_summary", p.team), p.row),
		})
	}
	records = append(records, rep.parseShots(doc)...)

	span.SetAttributes(attribute.Int("records", len(records)))
	return records, nil
}

func (r *report) parseScorebox(doc *goquery.Document) (source.Record, error) {
	var sides []side
	doc.Find("div.scorebox > div").Each(func(_ int, box *goquery.Selection) {
		anchor := box.Find("strong a[href*='/squads/']").First()
		href, _ := anchor.Attr("href")
		id := idOf(squadPattern, href)
		if id == "" {
			return
		}
		sides = append(sides, side{
			id:    id,
			name:  htmlutil.Text(anchor),
			goals: htmlutil.Text(box.Find("div.score").First()),
			xg:    htmlutil.Text(box.Find("div.score_xg").First()),
		})
	})
	if len(sides) != 2 {
		return source.Record{}, fmt.Errorf("expected 2 teams in scorebox, found %d: %w", len(sides), ErrMalformedReport)
	}
	if sides[0].id == sides[1].id {
		return source.Record{}, fmt.Errorf("team %s plays itself: %w", sides[0].id, ErrMalformedReport)
	}
	r.home, r.away = sides[0], sides[1]

	meta := doc.Find("div.scorebox_meta")
	date, _ := meta.Find("span.venuetime").Attr("data-venue-date")
	if date == "" {
		return source.Record{}, fmt.Errorf("no match date: %w", ErrMalformedReport)
	}

	fields := map[string]any{
		"date":           date,
		"home_team":      r.home.id,
		"home_team_name": r.home.name,
		"away_team":      r.away.id,
		"away_team_name": r.away.name,
		"home_goals":     r.home.goals,
		"away_goals":     r.away.goals,
		"home_xg":        r.home.xg,
		"away_xg":        r.away.xg,
		"competition":    htmlutil.Text(meta.Find("a[href*='/comps/']").First()),
	}
	meta.Find("div").Each(func(_ int, line *goquery.Selection) {
		if htmlutil.Text(line.ChildrenFiltered("strong").First()) != "Venue" {
			return
		}
		venue := htmlutil.Text(line.Find("small").First())
		name, address, _ := strings.Cut(venue, ",")
		fields["venue"] = strings.TrimSpace(name)
		fields["venue_address"] = strings.TrimSpace(address)
	})

	return source.Record{
		Kind:       source.KindMatch,
		NativeID:   r.nativeID,
		Fields:     fields,
		Provenance: r.provenance("scorebox", 0),
	}, nil
}

func stats(row *goquery.Selection) map[string]string {
	out := map[string]string{}
	row.Find("td[data-stat]").Each(func(_ int, cell *goquery.Selection) {
		stat, _ := cell.Attr("data-stat")
		out[stat] = htmlutil.Text(cell)
	})
	return out
}

func (r *report) parsePlayerTable(table *goquery.Selection, tableID, team, kind string) {
	if _, known := r.teams[team]; !known {
		return
	}

	row := 0
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.HasClass("thead") || tr.HasClass("spacer") {
			return
		}
		cell := tr.Find("th[data-stat='player']").First()
		anchor := cell.Find("a[href*='/players/']").First()
		href, _ := anchor.Attr("href")
		id := idOf(playerPattern, href)
		if id == "" {
			return
		}
		row++

		p := r.player(team, id)
		values := stats(tr)
		if kind == "summary" {
			p.row = row
			p.fields["row"] = row
			p.fields["player_name"] = htmlutil.Text(anchor)
			p.fields["started"] = !htmlutil.Indented(cell)
			for stat, value := range values {
				p.fields[stat] = value
			}
			return
		}
		if _, named := p.fields["player_name"]; !named {
			p.fields["player_name"] = htmlutil.Text(anchor)
		}
		prefix := categories[kind] + "."
		for stat, value := range values {
			p.fields[prefix+stat] = value
		}
	})

	totals := stats(table.Find("tfoot tr").First())
	fields := r.teams[team]
	for _, total := range teamTotals {
		if total.table != kind {
			continue
		}
		if value := totals[total.stat]; value != "" {
			fields[total.field] = value
		}
	}
}

// parsePossession reads the possession of both teams from the team stats
// block, it is the only team statistic without a player table footer.
func (r *report) parsePossession(doc *goquery.Document) {
	doc.Find("div#team_stats th").Each(func(_ int, th *goquery.Selection) {
		if htmlutil.Text(th) != "Possession" {
			return
		}
		values := th.Closest("tr").Next().Find("td")
		if values.Length() != 2 {
			return
		}
		r.teams[r.home.id]["possession"] = htmlutil.Text(values.Eq(0).Find("strong"))
		r.teams[r.away.id]["possession"] = htmlutil.Text(values.Eq(1).Find("strong"))
	})
}

func (r *report) parseShots(doc *goquery.Document) []source.Record {
	var records []source.Record
	seq := 0
	doc.Find("table#shots_all tbody tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.HasClass("thead") || tr.HasClass("spacer") {
			return
		}
		seq++

		fields := map[string]any{
			"match":  r.nativeID,
			"seq":    seq,
			"minute": htmlutil.Text(tr.Find("[data-stat='minute']").First()),
		}
		for stat, value := range stats(tr) {
			fields[stat] = value
		}

		squad, _ := tr.Find("td[data-stat='squad'] a").First().Attr("href")
		team := idOf(squadPattern, squad)
		if team == "" {
			switch fields["squad"] {
			case r.home.name:
				team = r.home.id
			case r.away.name:
				team = r.away.id
			}
		}
		fields["team"] = team

		shooter := tr.Find("td[data-stat='player'] a").First()
		href, _ := shooter.Attr("href")
		fields["player"] = idOf(playerPattern, href)
		fields["player_name"] = htmlutil.Text(shooter)

		records = append(records, source.Record{
			Kind:       source.KindShot,
			NativeID:   fmt.Sprintf("%s/%d", r.nativeID, seq),
			Fields:     fields,
			Provenance: r.provenance("shots_all", seq),
		})
	})
	return records
}
