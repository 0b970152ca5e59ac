package install

import (
	"fmt"
	"strings"

	"github.com/3leaps/swissfetch/internal/model"
)

// State is the progress of one install run. Failed is absorbing.
type State int

const (
	StateReleaseResolved State = iota
	StateAssetSelected
	StateExtracted
	StatePrimaryPayloadPlaced
	StateSystemPayloadMerged
	StateDone
	StateFailed
)

var stateNames = [...]string{
	"release-resolved",
	"asset-selected",
	"extracted",
	"primary-payload-placed",
	"system-payload-merged",
	"done",
	"failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Advance moves to next. Moving out of Failed or backwards is ignored.
func (s *State) Advance(next State) {
	if *s == StateFailed || (next != StateFailed && next < *s) {
		return
	}
	*s = next
}

// Verb is the kind of side effect an Action performs.
type Verb string

const (
	VerbRemove  Verb = "remove"
	VerbCopy    Verb = "copy"
	VerbMerge   Verb = "merge"
	VerbExtract Verb = "extract"
	VerbFetch   Verb = "fetch"
	VerbKeep    Verb = "keep"
)

// Action is one side effect, performed or (in a dry run) planned.
type Action struct {
	Verb   Verb
	Source string
	Dest   string
}

func (a Action) String() string {
	switch {
	case a.Source == "":
		return fmt.Sprintf("%s %s", a.Verb, a.Dest)
	case a.Dest == "":
		return fmt.Sprintf("%s %s", a.Verb, a.Source)
	default:
		return fmt.Sprintf("%s %s -> %s", a.Verb, a.Source, a.Dest)
	}
}

// Report is the outcome of an install.
type Report struct {
	Target    model.Target
	Modifiers model.Modifiers
	Revision  int
	DryRun    bool
	State     State
	Actions   []Action
}

// Summary renders the actions one per line.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, a := range r.Actions {
		if r.DryRun {
			b.WriteString("would ")
		}
		b.WriteString(a.String())
		b.WriteByte('\n')
	}
	return b.String()
}
