// Package fault defines the fatal error kinds of an install run and the exit
// code each kind maps to.
package fault

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a fatal error.
type Kind int

const (
	KindUnknown Kind = iota
	KindUsage
	KindNetwork
	KindNoSuitableAsset
	KindBlockedRevision
	KindNoSafeRelease
	KindPayloadNotFound
	KindIncompletePayload
	KindDestinationExists
	KindConflictingModifiers
	KindSourceMissing
	KindAuxiliaryAssetNotFound
	KindExtraction
)

// Exit codes. 130 is reserved for interrupts and handled by the CLI.
const (
	ExitOK        = 0
	ExitInternal  = 1
	ExitUsage     = 2
	ExitInterrupt = 130
)

var kindInfo = map[Kind]struct {
	name string
	code int
}{
	KindUnknown:                {"internal", ExitInternal},
	KindUsage:                  {"usage", ExitUsage},
	KindNetwork:                {"network", 10},
	KindNoSuitableAsset:        {"no-suitable-asset", 11},
	KindBlockedRevision:        {"blocked-revision", 12},
	KindNoSafeRelease:          {"no-safe-release", 13},
	KindPayloadNotFound:        {"payload-not-found", 14},
	KindIncompletePayload:      {"incomplete-payload", 15},
	KindDestinationExists:      {"destination-exists", 16},
	KindConflictingModifiers:   {"conflicting-modifiers", 17},
	KindSourceMissing:          {"source-missing", 18},
	KindAuxiliaryAssetNotFound: {"auxiliary-asset-not-found", 19},
	KindExtraction:             {"extraction", 20},
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ExitCode returns the process exit status for the kind.
func (k Kind) ExitCode() int {
	if info, ok := kindInfo[k]; ok {
		return info.code
	}
	return ExitInternal
}

// Error is a classified fatal error. Err, when set, is the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Msg
	case e.Msg == "":
		return e.Err.Error()
	default:
		return e.Msg + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExitCode maps err to a process exit status. A nil err is success.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return KindOf(err).ExitCode()
}
