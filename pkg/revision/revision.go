package revision

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Decision string

const (
	DecisionAccept   Decision = "accept"   // Revision is outside the blocklist
	DecisionFallback Decision = "fallback" // Blocked default pick, try an older release
	DecisionRefuse   Decision = "refuse"   // Blocked explicit tag, never substituted
)

var trailingRevision = regexp.MustCompile(`(?i)r(\d+)$`)

// FromTag extracts the trailing revision from a release tag.
// "v0.6r1957" → (1957, true); "v0.6" → (0, false).
func FromTag(tag string) (int, bool) {
	m := trailingRevision.FindStringSubmatch(strings.TrimSpace(tag))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Display formats a revision the way Swiss names its artifacts.
func Display(rev int) string {
	return fmt.Sprintf("r%d", rev)
}

// Range is a closed interval of revisions. The zero Range blocks nothing.
type Range struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Empty reports whether the range blocks nothing.
func (r Range) Empty() bool {
	return r.Max < r.Min || (r.Min == 0 && r.Max == 0)
}

// Contains reports whether rev lies inside the range, bounds included.
func (r Range) Contains(rev int) bool {
	if r.Empty() {
		return false
	}
	return rev >= r.Min && rev <= r.Max
}

func (r Range) String() string {
	if r.Empty() {
		return "none"
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// Blocked reports whether tag's trailing revision lies inside r.
func (r Range) Blocked(tag string) bool {
	rev, ok := FromTag(tag)
	if !ok {
		return false
	}
	return r.Contains(rev)
}

// Decide determines whether tag may be installed given the blocklist.
//
// explicit: true if the user named the tag; a blocked explicit tag is refused
// rather than substituted.
//
// Returns a Decision and a human message.
func Decide(tag string, r Range, explicit bool) (Decision, string) {
	rev, ok := FromTag(tag)
	if !ok {
		return DecisionAccept, fmt.Sprintf("Release %s carries no revision; blocklist not applicable", tag)
	}
	if !r.Contains(rev) {
		return DecisionAccept, fmt.Sprintf("Release %s (%s) is outside the blocklist", tag, Display(rev))
	}
	if explicit {
		return DecisionRefuse, fmt.Sprintf("Refusing %s: revision %d is inside the blocked range %s; pick a revision outside it", tag, rev, r)
	}
	return DecisionFallback, fmt.Sprintf("Release %s (%s) is inside the blocked range %s; falling back to an older release", tag, Display(rev), r)
}

// DescribeDecision returns a short human-readable status for the run summary.
func DescribeDecision(d Decision) string {
	switch d {
	case DecisionAccept:
		return "Release accepted"
	case DecisionFallback:
		return "Release blocked, using older release"
	case DecisionRefuse:
		return "Release refused (blocked revision)"
	default:
		return string(d)
	}
}
