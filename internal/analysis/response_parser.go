package analysis

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	MinSummaryChars = 10
	MaxSummaryChars = 2000
	MaxScore        = 10.0
)

// Parsed is a successfully parsed model reply. Score is set in query mode, Level otherwise.
type Parsed struct {
	Score   float64
	Level   string
	Summary string
}

// ParseFailure explains why a reply could not be turned into a result.
type ParseFailure struct {
	Reason string
}

func (e *ParseFailure) Error() string {
	return "unparseable analysis reply: " + e.Reason
}

func failure(format string, args ...any) *ParseFailure {
	return &ParseFailure{Reason: fmt.Sprintf(format, args...)}
}

// ParseResponse extracts score and summary from the free-text reply:
//
//	Feedback:
//	    Score: 8.5
//	    Summary: ...
//	Extra_comments:
//	    ...
//
// Markdown emphasis is ignored and marker spelling may vary in case and language.
func ParseResponse(raw string, queryMode bool) (Parsed, error) {
	text := strings.ReplaceAll(raw, "*", "")

	extraMarker := pickMarker(text, "Extra_comments", "Extra comments", "extra_comments", "extra comments")
	feedbackMarker := pickMarker(text, "Feedback", "feedback")
	scoreMarker := pickMarker(text, "Score", "score")
	summaryMarker := pickMarker(text, "Resumo", "Summary", "resumo", "summary")

	section, ok := segmentAfter(text, feedbackMarker)
	if !ok {
		return Parsed{}, failure("missing %q section", feedbackMarker)
	}
	if idx := strings.Index(section, extraMarker); idx >= 0 {
		section = section[:idx]
	}
	section = strings.TrimSpace(section)

	scoreSegment, ok := segmentAfter(section, scoreMarker)
	if !ok {
		return Parsed{}, failure("missing %q marker", scoreMarker)
	}
	score := cleanValue(firstLine(scoreSegment))
	if i := strings.Index(score, "/"); i >= 0 {
		score = cleanValue(score[:i])
	}

	summarySegment, ok := segmentAfter(section, summaryMarker)
	if !ok {
		return Parsed{}, failure("missing %q marker", summaryMarker)
	}
	summary := cleanValue(firstLine(summarySegment))
	if summary == "" {
		summary = cleanValue(firstNonEmptyLine(summarySegment))
	}

	if utf8.RuneCountInString(summary) < MinSummaryChars {
		return Parsed{}, failure("summary too short (%d chars)", utf8.RuneCountInString(summary))
	}

	if !queryMode {
		if score == "" {
			return Parsed{}, failure("empty seniority level")
		}
		return Parsed{Level: score, Summary: summary}, nil
	}

	value, err := strconv.ParseFloat(score, 64)
	if err != nil {
		return Parsed{}, failure("score %q is not a number", score)
	}
	if value < 0 || value > MaxScore {
		return Parsed{}, failure("score %v out of range [0, %v]", value, MaxScore)
	}
	if n := utf8.RuneCountInString(summary); n > MaxSummaryChars {
		return Parsed{}, failure("summary too long (%d chars)", n)
	}
	return Parsed{Score: value, Summary: summary}, nil
}

// pickMarker returns the first candidate present in text, or the last candidate.
func pickMarker(text string, candidates ...string) string {
	for _, c := range candidates {
		if strings.Contains(text, c) {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

// segmentAfter returns the text between the first occurrence of marker and the next one.
func segmentAfter(text, marker string) (string, bool) {
	idx := strings.Index(text, marker)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(marker):]
	if next := strings.Index(rest, marker); next >= 0 {
		rest = rest[:next]
	}
	return rest, true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if v := cleanValue(line); v != "" {
			return line
		}
	}
	return ""
}

// cleanValue trims whitespace and a single leading colon.
func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, ":")
	return strings.TrimSpace(s)
}
