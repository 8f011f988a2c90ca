package validation

import (
	"fmt"
	"strings"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
)

// Query is a parameterized statement for the vessel traffic database.
type Query struct {
	Type domain.ClaimType
	SQL  string
	Args []any
}

// QueryGenerator maps a claim to one of five analytical query templates.
type QueryGenerator struct {
	defaultQuarter string
}

func NewQueryGenerator(defaultQuarter string) *QueryGenerator {
	return &QueryGenerator{defaultQuarter: defaultQuarter}
}

// Generate builds the query validating claim. quarter is the period used when
// the claim names none; an empty quarter falls back to the generator default.
// Unrecognized claim types use the vessel movement template.
func (g *QueryGenerator) Generate(claim domain.Claim, quarter string) Query {
	if strings.TrimSpace(quarter) == "" {
		quarter = g.defaultQuarter
	}

	p := &Params{}

	var sql string

	switch claim.Type {
	case domain.ClaimTypeFuelConsumption:
		sql = fuelConsumptionQuery(p, claim, quarter)
	case domain.ClaimTypeTransitTime:
		sql = transitTimeQuery(p, claim, quarter)
	case domain.ClaimTypeRoutePattern:
		sql = routePatternQuery(p, claim, quarter)
	case domain.ClaimTypePortFrequency:
		sql = portFrequencyQuery(p, claim, quarter)
	default:
		sql = vesselMovementQuery(p, claim, quarter)
	}

	return Query{
		Type: claim.Type,
		SQL:  sql,
		Args: p.Args(),
	}
}

const vesselMovementSQL = `SELECT
    e.imo,
    v.name AS vessel_name,
    v."group" AS operator,
    e.portname,
    e.next_port,
    e.start_time,
    e.end_time,
    m.co2nm / 3.2 / 1000 AS fuel_consumption,
    p_start.country,
    p_start.zone
FROM escalas e
JOIN port_trace pt ON pt.imo = e.imo
JOIN v_fleet v ON v.imo = e.imo
LEFT JOIN v_mrv m ON m.imo = e.imo
LEFT JOIN ports p_start ON p_start.portname = e.portname
LEFT JOIN ports p_end ON p_end.portname = e.next_port
WHERE %s
ORDER BY e.start_time DESC
LIMIT 100`

func vesselMovementQuery(p *Params, claim domain.Claim, quarter string) string {
	return fmt.Sprintf(vesselMovementSQL, where(
		VesselFilter(p, claim.Vessel, callColumns),
		RouteFilter(p, claim.Route, callColumns),
		PeriodFilter(p, claim.Period, quarter, callColumns),
	))
}

// Route patterns describe whole itineraries, so only vessel and period narrow them.
const routePatternSQL = `SELECT
    e.imo,
    v.name AS vessel_name,
    string_agg(e.portname || '->' || COALESCE(e.next_port, 'END'), ' | ' ORDER BY e.start_time) AS route_pattern,
    COUNT(DISTINCT e.portname) AS unique_ports,
    COUNT(*) AS total_calls,
    string_agg(DISTINCT p_start.zone, ', ') AS zones_visited,
    AVG(m.co2nm / 3.2 / 1000) AS avg_fuel_consumption
FROM escalas e
JOIN port_trace pt ON pt.imo = e.imo
JOIN v_fleet v ON v.imo = e.imo
LEFT JOIN v_mrv m ON m.imo = e.imo
LEFT JOIN ports p_start ON p_start.portname = e.portname
WHERE %s
GROUP BY e.imo, v.name
HAVING COUNT(*) >= 3
ORDER BY unique_ports DESC, total_calls DESC
LIMIT 25`

func routePatternQuery(p *Params, claim domain.Claim, quarter string) string {
	return fmt.Sprintf(routePatternSQL, where(
		VesselFilter(p, claim.Vessel, callColumns),
		PeriodFilter(p, claim.Period, quarter, callColumns),
	))
}

// Each call is paired with the vessel's chronologically next call when the
// legs connect: the next call is at e1.next_port and its inbound leg is
// e1's outbound leg.
const transitTimeSQL = `WITH transit_legs AS (
    SELECT
        e1.imo,
        v.name AS vessel_name,
        e1.portname AS origin_port,
        e2.portname AS destination_port,
        p_start.zone AS origin_zone,
        p_end.zone AS destination_zone,
        EXTRACT(EPOCH FROM (e2.start_time - e1.end_time)) / 86400.0 AS transit_days,
        e1.start_time AS voyage_start
    FROM escalas e1
    JOIN port_trace pt ON pt.imo = e1.imo
    JOIN v_fleet v ON v.imo = e1.imo
    JOIN LATERAL (
        SELECT nx.portname, nx.start_time, nx.prev_leg
        FROM escalas nx
        WHERE nx.imo = e1.imo
          AND nx.start_time > e1.end_time
        ORDER BY nx.start_time
        LIMIT 1
    ) e2 ON e2.portname = e1.next_port AND e2.prev_leg = e1.next_leg
    LEFT JOIN ports p_start ON p_start.portname = e1.portname
    LEFT JOIN ports p_end ON p_end.portname = e2.portname
    WHERE %s
)
SELECT
    imo,
    vessel_name,
    origin_port,
    destination_port,
    AVG(transit_days) AS avg_transit_days,
    STDDEV(transit_days) AS transit_deviation,
    COUNT(*) AS voyage_count,
    MIN(voyage_start) AS period_start,
    MAX(voyage_start) AS period_end
FROM transit_legs
WHERE %s
GROUP BY imo, vessel_name, origin_port, destination_port
HAVING COUNT(*) >= 2
ORDER BY avg_transit_days DESC
LIMIT 30`

func transitTimeQuery(p *Params, claim domain.Claim, quarter string) string {
	legs := where(
		"e2.start_time - e1.end_time BETWEEN INTERVAL '1 day' AND INTERVAL '60 days'",
		VesselFilter(p, claim.Vessel, transitLegColumns),
		PeriodFilter(p, claim.Period, quarter, transitLegColumns),
	)

	return fmt.Sprintf(transitTimeSQL, indent(legs, "    "), where(TransitRouteFilter(p, claim.Route)))
}

const portFrequencySQL = `SELECT
    e.portname,
    p_start.country,
    p_start.zone,
    COUNT(DISTINCT e.imo) AS unique_vessels,
    COUNT(*) AS total_calls
FROM escalas e
JOIN port_trace pt ON pt.imo = e.imo
JOIN v_fleet v ON v.imo = e.imo
LEFT JOIN ports p_start ON p_start.portname = e.portname
LEFT JOIN ports p_end ON p_end.portname = e.next_port
WHERE %s
GROUP BY e.portname, p_start.country, p_start.zone
HAVING COUNT(*) >= 5
ORDER BY total_calls DESC
LIMIT 20`

func portFrequencyQuery(p *Params, claim domain.Claim, quarter string) string {
	return fmt.Sprintf(portFrequencySQL, where(
		VesselFilter(p, claim.Vessel, callColumns),
		RouteFilter(p, claim.Route, callColumns),
		PeriodFilter(p, claim.Period, quarter, callColumns),
	))
}

const fuelConsumptionSQL = `SELECT
    e.imo,
    v.name AS vessel_name,
    m.co2nm,
    COUNT(*) AS voyage_count,
    MIN(e.start_time) AS period_start,
    MAX(e.start_time) AS period_end
FROM escalas e
JOIN port_trace pt ON pt.imo = e.imo
JOIN v_fleet v ON v.imo = e.imo
JOIN v_mrv m ON m.imo = e.imo
LEFT JOIN ports p_start ON p_start.portname = e.portname
LEFT JOIN ports p_end ON p_end.portname = e.next_port
WHERE %s
GROUP BY e.imo, v.name, m.co2nm
HAVING COUNT(*) >= 2
ORDER BY m.co2nm DESC
LIMIT 50`

func fuelConsumptionQuery(p *Params, claim domain.Claim, quarter string) string {
	return fmt.Sprintf(fuelConsumptionSQL, where(
		"m.co2nm IS NOT NULL",
		"m.co2nm > 0",
		VesselFilter(p, claim.Vessel, callColumns),
		RouteFilter(p, claim.Route, callColumns),
		PeriodFilter(p, claim.Period, quarter, callColumns),
	))
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
