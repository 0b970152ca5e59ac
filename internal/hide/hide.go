// Package hide sets the FAT hidden attribute on the loader's files so the
// console's file browsers stay uncluttered.
package hide

import (
	"bytes"
	"context"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	fatattrBin      = "fatattr"
	maxCommandError = 256
)

// Patterns are matched against base names, ignoring case.
var Patterns = []string{"*.dol", "*.ini", "*.cli", "GBI", "MCBACKUP", "swiss"}

var (
	lookPath   = exec.LookPath
	runCommand = defaultRunCommand
)

// Result counts what the hide step did.
type Result struct {
	Available bool
	Matched   []string
	Hidden    int
	Failed    int
}

// Run marks every entry under root matching Patterns hidden with fatattr.
// A missing fatattr binary or a failing entry is logged, not returned; only
// a walk error or cancellation is.
func Run(ctx context.Context, root string, dryRun bool, log zerolog.Logger) (Result, error) {
	var res Result
	bin, err := lookPath(fatattrBin)
	if err != nil {
		log.Info().Msg("--hide-files requested but fatattr was not found in PATH; skipping hide step")
		return res, nil
	}
	res.Available = true
	log.Info().Str("fatattr", bin).Msg("Hiding loader files")

	res.Matched, err = Matches(root)
	if err != nil {
		return res, err
	}
	for _, path := range res.Matched {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if dryRun {
			log.Info().Str("path", path).Msg("(dry-run) would hide")
			continue
		}
		if err := runCommand(ctx, bin, "+h", path); err != nil {
			res.Failed++
			log.Debug().Err(err).Str("path", path).Msg("Could not hide entry")
			continue
		}
		res.Hidden++
	}
	return res, nil
}

// Matches lists entries under root whose base name matches Patterns, in
// lexical walk order. root itself is never matched. Unreadable entries below
// root are skipped.
func Matches(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return skipUnreadable(root, path, d, err)
		}
		if path == root {
			return nil
		}
		if matchesAny(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", root)
	}
	return out, nil
}

// skipUnreadable keeps a walk going past entries it cannot read. Only a
// failure on root itself ends the walk.
func skipUnreadable(root, path string, d fs.DirEntry, err error) error {
	if path == root {
		return err
	}
	if d != nil && d.IsDir() {
		return fs.SkipDir
	}
	return nil
}

func matchesAny(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range Patterns {
		if ok, _ := filepath.Match(strings.ToLower(p), lower); ok {
			return true
		}
	}
	return false
}

func defaultRunCommand(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		return errors.Errorf("%s %s: %s", bin, strings.Join(args, " "), trimCommandOutput(combined.String()))
	}
	return nil
}

func trimCommandOutput(out string) string {
	clean := strings.TrimSpace(out)
	if clean == "" {
		return "command failed"
	}
	if len(clean) > maxCommandError {
		return clean[:maxCommandError] + "..."
	}
	return clean
}
