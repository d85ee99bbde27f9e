package leaderboard

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// tableMaxWidth is the content budget for a rendered table. Mobile
	// discord fits 30 monospace columns when no thumbnail is set.
	tableMaxWidth = 30

	tableEllipsis = "..."

	conversionVectorDivide = "divide"
)

// TabularData accumulates score rows and renders them as a fixed-width
// bordered text table:
//
//	+----+---------------------+-----+
//	 rank        address        score
//	+----+---------------------+-----+
//	  1    0x15650b...ffb56321   16
//	  2    0x825080...3052a123    9
//
// Column widths start at the header label lengths and grow to fit row
// values. If the total width would exceed tableMaxWidth, the address
// column is shortened once for the whole table: every long address keeps
// its head and tail halves around a literal "..." marker.
type TabularData struct {
	widths  []int
	columns []string
	rows    [][]string
}

func NewTabularData() *TabularData {
	return &TabularData{}
}

func (t *TabularData) SetColumns(columns []string) {
	t.columns = columns
	t.widths = make([]int, len(columns))
	for i, c := range columns {
		t.widths[i] = len(c)
	}
}

func (t *TabularData) AddRow(row []string) {
	t.rows = append(t.rows, row)
}

// AddScores appends one row per score in order (rank, address, score),
// widening columns as needed and applying the single global truncation
// decision when the summed widths blow the budget.
func (t *TabularData) AddScores(scores []Score) {
	rows := make([][]string, 0, len(scores))
	for _, score := range scores {
		row := []string{
			strconv.Itoa(score.Rank),
			score.Address,
			strconv.FormatInt(score.Score, 10),
		}
		for i, elem := range row {
			if len(elem) > t.widths[i] {
				t.widths[i] = len(elem)
			}
		}
		rows = append(rows, row)
	}

	available := -1
	if sumInts(t.widths) > tableMaxWidth {
		available = tableMaxWidth - t.widths[0] - t.widths[2] - len(tableEllipsis)
		// The rank and score columns alone can blow the budget on
		// extreme values; the address column then collapses to the
		// bare marker instead of producing negative widths.
		if available < 0 {
			available = 0
		}
		t.widths[1] = available + len(tableEllipsis)
	}

	for _, row := range rows {
		if available >= 0 && len(row[1]) > available {
			head := available / 2
			tail := available - head
			row[1] = row[1][:head] + tableEllipsis + row[1][len(row[1])-tail:]
		}
		t.AddRow(row)
	}
}

// RenderRST renders the accumulated rows. An empty table still renders
// the header between two separator lines.
func (t *TabularData) RenderRST() string {
	seps := make([]string, len(t.widths))
	for i, w := range t.widths {
		seps[i] = strings.Repeat("-", w)
	}
	sep := fmt.Sprintf("+%s+", strings.Join(seps, "+"))

	toDraw := []string{sep, t.entry(t.columns), sep}
	for _, row := range t.rows {
		toDraw = append(toDraw, t.entry(row))
	}

	return strings.Join(toDraw, "\n")
}

func (t *TabularData) entry(row []string) string {
	cells := make([]string, len(row))
	for i, e := range row {
		cells[i] = centerPad(e, t.widths[i])
	}
	return fmt.Sprintf(" %s ", strings.Join(cells, " "))
}

func centerPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	left := (width - len(s)) / 2
	right := width - len(s) - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}

func sumInts(values []int) int {
	var total int
	for _, v := range values {
		total += v
	}
	return total
}

// scoreDetails is the optional display metadata nested under the
// score_details key of Score.PointsData. Every field is optional - a
// missing or malformed map yields the zero value and raw score display.
type scoreDetails struct {
	Prefix           string
	Postfix          string
	Conversion       float64
	ConversionVector string
	AddressName      string
}

func (d scoreDetails) divides() bool {
	return d.ConversionVector == conversionVectorDivide && d.Conversion != 0
}

// convert applies the unit conversion to a raw value. Anything other
// than a requested division passes through unchanged.
func (d scoreDetails) convert(source float64) float64 {
	if d.divides() {
		return source / d.Conversion
	}
	return source
}

// scoreDetailsFrom extracts display metadata from a points_data map.
// Unexpected shapes are ignored field by field, never reported.
func scoreDetailsFrom(points map[string]any) scoreDetails {
	var details scoreDetails
	raw, ok := points["score_details"].(map[string]any)
	if !ok {
		return details
	}
	if v, ok := raw["prefix"].(string); ok {
		details.Prefix = v
	}
	if v, ok := raw["postfix"].(string); ok {
		details.Postfix = v
	}
	if v, ok := numberValue(raw["conversion"]); ok {
		details.Conversion = v
	}
	if v, ok := raw["conversion_vector"].(string); ok {
		details.ConversionVector = v
	}
	if v, ok := raw["address_name"].(string); ok {
		details.AddressName = v
	}
	return details
}

// numberValue accepts the numeric shapes encoding/json can produce.
func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// positionRender is the fully formatted single-position display for one
// score: the identity column label (possibly overridden), the converted
// score value wrapped in prefix/postfix, and the progress description
// lines assembled from auxiliary points data.
type positionRender struct {
	AddressLabel string
	Score        string
	Description  string
}

// renderPosition formats one score for a rank/position embed. Conversion
// metadata applies consistently to the score, the must-reach threshold
// and the cap; absent or malformed metadata degrades to the raw integer
// values with no progress lines.
func renderPosition(score Score) positionRender {
	details := scoreDetailsFrom(score.PointsData)

	rendered := positionRender{AddressLabel: "Identity"}
	if details.AddressName != "" {
		rendered.AddressLabel = details.AddressName
	}

	if details.divides() {
		rendered.Score = details.Prefix +
			formatFloat(details.convert(float64(score.Score))) +
			details.Postfix
	} else {
		rendered.Score = details.Prefix +
			strconv.FormatInt(score.Score, 10) +
			details.Postfix
	}

	var description strings.Builder
	if _, ok := score.PointsData["complete"]; ok {
		description.WriteString("Requirement: Complete\n")
	}

	mustReach, hasMustReach := numberValue(score.PointsData["must_reach"])
	mustReachCounter, hasCounter := numberValue(score.PointsData["must_reach_counter"])
	if hasMustReach && hasCounter {
		if details.divides() {
			description.WriteString(fmt.Sprintf(
				"Must Reach: %s / %d%s\n",
				formatFloat(details.convert(mustReachCounter)),
				int64(details.convert(mustReach)),
				details.Postfix,
			))
		} else {
			description.WriteString(fmt.Sprintf(
				"Must Reach: %s / %s\n",
				formatFloat(mustReachCounter),
				formatFloat(mustReach),
			))
		}
	}

	if cap, ok := numberValue(score.PointsData["cap"]); ok {
		if details.divides() {
			description.WriteString(fmt.Sprintf(
				"Cap: %d%s",
				int64(details.convert(cap)),
				details.Postfix,
			))
		} else {
			description.WriteString(fmt.Sprintf("Cap: %s", formatFloat(cap)))
		}
	}

	rendered.Description = description.String()
	return rendered
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
