package validation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"
)

// Params collects positional bind arguments while filter fragments are built.
type Params struct {
	args []any
}

// Bind appends v and returns its placeholder.
func (p *Params) Bind(v any) string {
	p.args = append(p.args, v)

	return "$" + strconv.Itoa(len(p.args))
}

// Args returns the bound values in placeholder order.
func (p *Params) Args() []any {
	return p.args
}

// Columns names the row-alias columns a filter constrains. Empty entries are
// skipped.
type Columns struct {
	IMO        string
	VesselName string
	Operator   string
	Port       string
	NextPort   string
	OriginZone string
	DestZone   string
	Start      string
}

// Column sets for the templates in query_generator.go.
var (
	callColumns = Columns{
		IMO:        "e.imo",
		VesselName: "v.name",
		Operator:   `v."group"`,
		Port:       "e.portname",
		NextPort:   "e.next_port",
		OriginZone: "p_start.zone",
		DestZone:   "p_end.zone",
		Start:      "e.start_time",
	}

	transitLegColumns = Columns{
		IMO:        "e1.imo",
		VesselName: "v.name",
		Operator:   `v."group"`,
		Start:      "e1.start_time",
	}

	transitPairColumns = Columns{
		Port:       "origin_port",
		NextPort:   "destination_port",
		OriginZone: "origin_zone",
		DestZone:   "destination_zone",
	}
)

const imoDigits = 7

// VesselFilter matches an exact IMO number when the descriptor is exactly
// seven digits, otherwise a case-insensitive substring of the vessel or
// operator name. An empty descriptor yields an empty fragment.
func VesselFilter(p *Params, vessel string, cols Columns) string {
	vessel = strings.TrimSpace(vessel)
	if vessel == "" {
		return ""
	}

	if len(vessel) == imoDigits && isDigits(vessel) {
		imo, _ := strconv.ParseInt(vessel, 10, 64) //nolint:errcheck // seven digits always parse

		return cols.IMO + " = " + p.Bind(imo)
	}

	return anyContains([]string{cols.VesselName, cols.Operator}, p.Bind(containsPattern(vessel)))
}

// RouteFilter handles three descriptor shapes, tried in order:
// "Origin -> Destination" requires port and next port to each match one of
// the two tokens, "Asia-Europe" requires either endpoint zone to match either
// region, and anything else is matched against port, next port and zone.
func RouteFilter(p *Params, route string, cols Columns) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return ""
	}

	if strings.Contains(route, "->") {
		parts := strings.Split(route, "->")
		origin, destination := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		if origin == "" || destination == "" {
			return singleTokenFilter(p, origin+destination, cols)
		}

		o := p.Bind(containsPattern(origin))
		d := p.Bind(containsPattern(destination))

		return anyContains([]string{cols.Port}, o, d) + " AND " + anyContains([]string{cols.NextPort}, o, d)
	}

	if strings.Contains(route, "-") && !isDigits(strings.ReplaceAll(route, "-", "")) {
		regions := nonEmpty(strings.Split(route, "-"))

		switch len(regions) {
		case 0:
			return ""
		case 1:
			return singleTokenFilter(p, regions[0], cols)
		}

		r1 := p.Bind(containsPattern(regions[0]))
		r2 := p.Bind(containsPattern(regions[1]))

		return anyContains([]string{cols.OriginZone, cols.DestZone}, r1, r2)
	}

	return singleTokenFilter(p, route, cols)
}

// TransitRouteFilter applies RouteFilter to the origin/destination pairs of
// the transit-time derived relation.
func TransitRouteFilter(p *Params, route string) string {
	return RouteFilter(p, route, transitPairColumns)
}

func singleTokenFilter(p *Params, token string, cols Columns) string {
	if token == "" {
		return ""
	}

	return anyContains([]string{cols.Port, cols.NextPort, cols.OriginZone}, p.Bind(containsPattern(token)))
}

// PeriodFilter constrains the start timestamp. Quarter tokens compare against
// the derived YYYYQn of the column, four-digit years compare the year, and
// anything else becomes a lower bound. An empty period falls back to
// defaultQuarter; both empty yields an empty fragment.
func PeriodFilter(p *Params, period, defaultQuarter string, cols Columns) string {
	target := NormalizePeriod(period)
	if target == "" {
		target = NormalizePeriod(defaultQuarter)
	}

	if target == "" {
		return ""
	}

	col := cols.Start

	switch {
	case strings.ContainsAny(target, "Qq"):
		return "CONCAT(EXTRACT(YEAR FROM " + col + ")::int, 'Q', EXTRACT(QUARTER FROM " + col + ")::int) = " +
			p.Bind(strings.ToUpper(target))
	case len(target) == 4 && isDigits(target):
		year, _ := strconv.Atoi(target) //nolint:errcheck // four digits always parse

		return "EXTRACT(YEAR FROM " + col + ")::int = " + p.Bind(year)
	default:
		if ts, err := dateparse.ParseAny(target); err == nil {
			return col + " >= " + p.Bind(ts)
		}

		// Unparseable dates still compare, as text, so the claim keeps a query.
		return col + "::text >= " + p.Bind(target)
	}
}

var (
	yearFirstQuarter = regexp.MustCompile(`^(\d{4})\s*[-/ ]?\s*Q([1-4])$`)
	quarterFirstYear = regexp.MustCompile(`^Q([1-4])\s*[-/ ]?\s*(\d{4})$`)
)

// NormalizePeriod rewrites quarter spellings such as "Q1 2025", "2025-Q1" or
// "q1/2025" into the canonical "2025Q1". Other descriptors are trimmed only.
func NormalizePeriod(period string) string {
	trimmed := strings.TrimSpace(period)
	upper := strings.ToUpper(trimmed)

	if m := yearFirstQuarter.FindStringSubmatch(upper); m != nil {
		return m[1] + "Q" + m[2]
	}

	if m := quarterFirstYear.FindStringSubmatch(upper); m != nil {
		return m[2] + "Q" + m[1]
	}

	return trimmed
}

// where joins the non-empty conditions with AND. No conditions yields TRUE.
func where(conds ...string) string {
	kept := nonEmpty(conds)
	if len(kept) == 0 {
		return "TRUE"
	}

	return strings.Join(kept, "\n  AND ")
}

// anyContains builds "(c1 ILIKE a OR c1 ILIKE b OR c2 ILIKE a ...)".
func anyContains(cols []string, placeholders ...string) string {
	var terms []string

	for _, col := range cols {
		if col == "" {
			continue
		}

		for _, ph := range placeholders {
			terms = append(terms, col+" ILIKE "+ph)
		}
	}

	return "(" + strings.Join(terms, " OR ") + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern wraps s in wildcards after escaping LIKE metacharacters.
// Text is composed to NFC so decomposed accents match stored names.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(norm.NFC.String(s)) + "%"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))

	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
