// Package decomposer parses the composite class identifiers used by
// the legacy system. The codes were typed by hand over two decades,
// so the parser degrades instead of failing: every input produces a
// ParsedIdentifier whose confidence tier says how much of the code
// was structurally recognised.
package decomposer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starkjeffrey/naga-monorepo-v1-final-sub013/internal/models"
)

// programCodes maps legacy numeric program codes to current program
// identifiers. Unknown codes pass through unchanged at LOW confidence.
var programCodes = map[string]string{
	"582": "IEAP",
	"632": "GESL",
	"688": "EXPRESS",
	"147": "BA",
	"548": "MA",
}

// levelNames maps spelled-out legacy level names to level codes.
var levelNames = map[string]string{
	"PRE-BEGINNER": "PREB",
	"BEGINNER":     "BEG",
	"ELEMENTARY":   "ELEM",
	"PRE-INTER":    "PREI",
	"INTERMEDIATE": "INT",
	"UPPER-INTER":  "UINT",
	"ADVANCED":     "ADV",
	"FOUNDATION":   "FND",
}

var (
	termPattern      = regexp.MustCompile(`^(\d{4})([SF])(\d*)$`)
	bareLevelPattern = regexp.MustCompile(`^(\d{1,2})([A-D]?)$`)
)

// minSegments is the structural floor below which a code is opaque.
const minSegments = 4

// Decompose parses one composite identifier, optionally backfilling
// the time indicator from an auxiliary free-text hint. It never
// returns an error: malformed input yields a partial result flagged
// with Err and LOW confidence so a bulk run can keep going.
func Decompose(code, hint string) models.ParsedIdentifier {
	p := models.ParsedIdentifier{
		Original:   code,
		Confidence: models.ConfidenceHigh,
	}

	segments := strings.Split(strings.TrimSpace(code), "-")
	if len(segments) < minSegments {
		p.Err = true
		p.ErrMessage = fmt.Sprintf("expected at least %d segments, got %d", minSegments, len(segments))
		p.Confidence = models.ConfidenceLow
		return p
	}

	parseProgram(&p, segments[1])
	parseTerm(&p, segments[2])

	// The class portion may itself contain dashes (E-BEGINNER), so it
	// spans everything between the term segment and the trailing
	// noise segment the legacy exporter always appended.
	classPart := segments[3]
	if len(segments) >= minSegments+1 {
		classPart = strings.Join(segments[3:len(segments)-1], "-")
	}
	parseClassPart(&p, classPart)

	backfillTimeIndicator(&p, hint)

	if p.Program != "" && p.Level != "" {
		p.CourseCode = p.Program + "-" + p.Level
	}

	return p
}

func parseProgram(p *models.ParsedIdentifier, segment string) {
	if name, ok := programCodes[segment]; ok {
		p.Program = name
		return
	}
	p.Program = segment
	demote(p, models.ConfidenceLow)
}

func parseTerm(p *models.ParsedIdentifier, segment string) {
	p.TermCode = segment
	m := termPattern.FindStringSubmatch(segment)
	if m == nil {
		return
	}
	p.Year = m[1]
	p.Semester = m[2] + m[3]
}

// parseClassPart tries three grammars in order, stopping at the first
// match. Confidence per branch: named-level and bare-numeric grammars
// are HIGH, the slash grammar is MEDIUM, and any lookup-table
// fallback or unmatched input is LOW.
func parseClassPart(p *models.ParsedIdentifier, classPart string) {
	// Grammar 1: <time>-<levelname>, e.g. E-BEGINNER.
	if head, rest, found := strings.Cut(classPart, "-"); found {
		if _, ok := models.TimeIndicatorFor(head); ok {
			p.TimeIndicator = head
			if level, ok := levelNames[rest]; ok {
				p.Level = level
				return
			}
			p.Level = rest
			demote(p, models.ConfidenceLow)
			return
		}
	}

	// Grammar 2: <time>/<level><section>, e.g. E/2A.
	if head, rest, found := strings.Cut(classPart, "/"); found {
		if _, ok := models.TimeIndicatorFor(head); ok {
			p.TimeIndicator = head
			if m := bareLevelPattern.FindStringSubmatch(rest); m != nil {
				p.Level = padLevel(m[1])
				p.Section = m[2]
				demote(p, models.ConfidenceMedium)
				return
			}
			p.Level = rest
			demote(p, models.ConfidenceLow)
			return
		}
	}

	// Grammar 3: bare <level><section>, e.g. 2A.
	if m := bareLevelPattern.FindStringSubmatch(classPart); m != nil {
		p.Level = padLevel(m[1])
		p.Section = m[2]
		return
	}
	if level, ok := levelNames[classPart]; ok {
		p.Level = level
		demote(p, models.ConfidenceLow)
		return
	}
	demote(p, models.ConfidenceLow)
}

// backfillTimeIndicator fills the indicator from the hint by keyword
// containment. A value already derived from the code itself wins.
func backfillTimeIndicator(p *models.ParsedIdentifier, hint string) {
	if p.TimeIndicator != "" || hint == "" {
		return
	}
	lowered := strings.ToLower(hint)
	switch {
	case strings.Contains(lowered, "evening"):
		p.TimeIndicator = "E"
	case strings.Contains(lowered, "morning"):
		p.TimeIndicator = "M"
	case strings.Contains(lowered, "afternoon"):
		p.TimeIndicator = "A"
	}
}

func padLevel(level string) string {
	if len(level) == 1 {
		return "0" + level
	}
	return level
}

var confidenceRank = map[models.Confidence]int{
	models.ConfidenceHigh:   3,
	models.ConfidenceMedium: 2,
	models.ConfidenceLow:    1,
}

// demote lowers the overall confidence; it never raises it.
func demote(p *models.ParsedIdentifier, to models.Confidence) {
	if confidenceRank[to] < confidenceRank[p.Confidence] {
		p.Confidence = to
	}
}
