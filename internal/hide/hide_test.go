package hide

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func sdCard(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range []string{
		"ipl.dol",
		"BOOT.DOL",
		"cubeboot.ini",
		"boot.iso",
		"GBI/gbi.hdr",
		"MCBACKUP/card.raw",
		"swiss/settings.ini",
		"games/game.iso",
		"cheats.cli",
	} {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		r, err := filepath.Rel(root, p)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

var sdCardMatches = []string{
	"BOOT.DOL",
	"GBI",
	"MCBACKUP",
	"cheats.cli",
	"cubeboot.ini",
	"ipl.dol",
	"swiss",
	"swiss/settings.ini",
}

func TestMatches(t *testing.T) {
	root := sdCard(t)

	got, err := Matches(root)
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if diff := cmp.Diff(sdCardMatches, rel(t, root, got)); diff != "" {
		t.Errorf("matches (-want +got):\n%s", diff)
	}
}

func TestMatchesSkipsUnreadableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not restrict root")
	}
	root := sdCard(t)
	locked := filepath.Join(root, "System Volume Information")
	if err := os.MkdirAll(locked, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(locked, "hidden.dol"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	got, err := Matches(root)
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if diff := cmp.Diff(sdCardMatches, rel(t, root, got)); diff != "" {
		t.Errorf("matches (-want +got):\n%s", diff)
	}
}

func TestSkipUnreadable(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "locked")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(sub)
	if err != nil {
		t.Fatal(err)
	}
	dir := fs.FileInfoToDirEntry(info)
	denied := fs.ErrPermission

	if got := skipUnreadable(root, sub, dir, denied); !errors.Is(got, fs.SkipDir) {
		t.Errorf("unreadable subdir: got %v want SkipDir", got)
	}
	if got := skipUnreadable(root, filepath.Join(root, "gone.dol"), nil, denied); got != nil {
		t.Errorf("unreadable entry: got %v want nil", got)
	}
	if got := skipUnreadable(root, root, nil, denied); !errors.Is(got, denied) {
		t.Errorf("unreadable root: got %v want %v", got, denied)
	}
}

func TestMatchesMissingRoot(t *testing.T) {
	if _, err := Matches(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func stub(t *testing.T, found bool, fail func(path string) bool) *[]string {
	t.Helper()
	var ran []string
	origLook, origRun := lookPath, runCommand
	lookPath = func(string) (string, error) {
		if !found {
			return "", errors.New("not found")
		}
		return "/usr/bin/fatattr", nil
	}
	runCommand = func(_ context.Context, bin string, args ...string) error {
		ran = append(ran, bin+" "+strings.Join(args, " "))
		if fail != nil && fail(args[len(args)-1]) {
			return errors.New("EPERM")
		}
		return nil
	}
	t.Cleanup(func() { lookPath, runCommand = origLook, origRun })
	return &ran
}

func TestRunHidesMatches(t *testing.T) {
	root := sdCard(t)
	ran := stub(t, true, func(path string) bool { return strings.HasSuffix(path, "GBI") })

	res, err := Run(context.Background(), root, false, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Available || res.Hidden != 7 || res.Failed != 1 {
		t.Errorf("result %+v want available, 7 hidden, 1 failed", res)
	}
	want := "/usr/bin/fatattr +h " + filepath.Join(root, "ipl.dol")
	found := false
	for _, cmd := range *ran {
		if cmd == want {
			found = true
		}
	}
	if !found {
		t.Errorf("missing %q in %v", want, *ran)
	}
}

func TestRunWithoutFatattr(t *testing.T) {
	ran := stub(t, false, nil)

	res, err := Run(context.Background(), sdCard(t), false, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Available {
		t.Errorf("fatattr reported available")
	}
	if len(*ran) != 0 {
		t.Errorf("commands ran without fatattr: %v", *ran)
	}
}

func TestRunDryRun(t *testing.T) {
	ran := stub(t, true, nil)

	res, err := Run(context.Background(), sdCard(t), true, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Matched) != 8 || res.Hidden != 0 {
		t.Errorf("result %+v want 8 matched, 0 hidden", res)
	}
	if len(*ran) != 0 {
		t.Errorf("dry run ran commands: %v", *ran)
	}
}

func TestTrimCommandOutput(t *testing.T) {
	if got := trimCommandOutput("  "); got != "command failed" {
		t.Errorf("blank output: %q", got)
	}
	if got := trimCommandOutput("boom\n"); got != "boom" {
		t.Errorf("trimmed output: %q", got)
	}
	if got := trimCommandOutput(strings.Repeat("x", 1000)); len(got) != maxCommandError+3 {
		t.Errorf("truncated length %d want %d", len(got), maxCommandError+3)
	}
}
