package extract

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var revisionDir = regexp.MustCompile(`(?i)^swiss_r(\d+)$`)

// errFound stops a walk early.
var errFound = errors.New("found")

// Tree is an extracted archive rooted at Root. Lookups walk in lexical order
// so results are deterministic.
type Tree struct {
	Root string
}

// Locate resolves a slash-separated member path. The exact path wins;
// otherwise the first file whose path ends with suffix, ignoring case.
func (t *Tree) Locate(suffix string) (string, bool) {
	exact := filepath.Join(t.Root, filepath.FromSlash(suffix))
	if info, err := os.Stat(exact); err == nil && info.Mode().IsRegular() {
		return exact, true
	}

	want := strings.ToLower(strings.Trim(strings.ReplaceAll(suffix, "\\", "/"), "/"))
	var found string
	_ = filepath.WalkDir(t.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(t.Root, path)
		if err != nil {
			return nil
		}
		got := strings.ToLower(filepath.ToSlash(rel))
		if got == want || strings.HasSuffix(got, "/"+want) {
			found = path
			return errFound
		}
		return nil
	})
	return found, found != ""
}

// FindFile returns the shallowest regular file named name, ignoring case.
// Entries at the same depth are tried in lexical order.
func (t *Tree) FindFile(name string) (string, bool) {
	return t.find(name, false)
}

// FindDir returns the shallowest directory below Root named name, ignoring
// case.
func (t *Tree) FindDir(name string) (string, bool) {
	return t.find(name, true)
}

func (t *Tree) find(name string, dir bool) (string, bool) {
	level := []string{t.Root}
	for len(level) > 0 {
		var next []string
		for _, d := range level {
			entries, err := os.ReadDir(d)
			if err != nil {
				continue
			}
			for _, e := range entries {
				path := filepath.Join(d, e.Name())
				match := strings.EqualFold(e.Name(), name)
				if e.IsDir() {
					if dir && match {
						return path, true
					}
					next = append(next, path)
					continue
				}
				if !dir && match && e.Type().IsRegular() {
					return path, true
				}
			}
		}
		level = next
	}
	return "", false
}

// FindNested performs the structural search for a nested archive: a
// directory whose name contains every dirHint, an innerDir below it, and a
// zip inside innerDir whose name contains zipHint.
func (t *Tree) FindNested(dirHints []string, innerDir, zipHint string) (string, bool) {
	var found string
	_ = filepath.WalkDir(t.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == t.Root {
			return nil
		}
		if !containsAll(strings.ToLower(d.Name()), dirHints) {
			return nil
		}
		sub := Tree{Root: path}
		inner, ok := sub.FindDir(innerDir)
		if !ok {
			return nil
		}
		if zip, ok := zipIn(inner, zipHint); ok {
			found = zip
			return errFound
		}
		return nil
	})
	return found, found != ""
}

func zipIn(dir, hint string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	hint = strings.ToLower(hint)
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if e.Type().IsRegular() && strings.HasSuffix(name, ".zip") && strings.Contains(name, hint) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

func containsAll(haystack string, needles []string) bool {
	for _, n := range needles {
		if !strings.Contains(haystack, strings.ToLower(n)) {
			return false
		}
	}
	return true
}

// RevisionRoot reports the top-level swiss_r<N> directory and its revision.
func (t *Tree) RevisionRoot() (string, int, bool) {
	entries, err := os.ReadDir(t.Root)
	if err != nil {
		return "", 0, false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := revisionDir.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		rev, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return e.Name(), rev, true
	}
	return "", 0, false
}
