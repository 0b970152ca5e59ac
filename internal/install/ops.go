package install

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/3leaps/swissfetch/internal/extract"
	"github.com/3leaps/swissfetch/internal/fault"
	"github.com/3leaps/swissfetch/internal/merge"
)

// Tree is an extracted payload. *extract.Tree implements it.
type Tree interface {
	Locate(suffix string) (string, bool)
	FindFile(name string) (string, bool)
	FindDir(name string) (string, bool)
	FindNested(dirHints []string, innerDir, zipHint string) (string, bool)
}

// Fetcher downloads auxiliary release assets. *auxfetch.Fetcher implements it.
type Fetcher interface {
	FetchNamed(ctx context.Context, family, exactName, fallbackSuffix, dir string) (string, error)
}

// Ops performs the installer's filesystem and network side effects.
type Ops interface {
	Exists(path string) bool
	Remove(path string) error
	Copy(src, dst string) error
	Merge(src, dst string, overwrite bool) (merge.Result, error)
	Unzip(ctx context.Context, archive, dest string) (Tree, error)
	Fetch(ctx context.Context, family, exactName, fallbackSuffix, dir string) (string, error)
}

type liveOps struct {
	fetcher Fetcher
	log     zerolog.Logger
}

// LiveOps performs every operation for real.
func LiveOps(fetcher Fetcher, log zerolog.Logger) Ops {
	return &liveOps{fetcher: fetcher, log: log}
}

func (o *liveOps) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (o *liveOps) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}

func (o *liveOps) Copy(src, dst string) error {
	return errors.Wrapf(merge.CopyFile(src, dst), "install %s", dst)
}

func (o *liveOps) Merge(src, dst string, overwrite bool) (merge.Result, error) {
	return merge.Merge(src, dst, overwrite, o.log)
}

func (o *liveOps) Unzip(ctx context.Context, archive, dest string) (Tree, error) {
	kind, ok := extract.KindFromName(archive)
	if !ok {
		return nil, fault.New(fault.KindExtraction, "%s is not a recognized archive", filepath.Base(archive))
	}
	t, err := extract.Extract(ctx, archive, kind, dest)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (o *liveOps) Fetch(ctx context.Context, family, exactName, fallbackSuffix, dir string) (string, error) {
	return o.fetcher.FetchNamed(ctx, family, exactName, fallbackSuffix, dir)
}

type dryOps struct{}

// DryOps reads the destination but never writes, downloads or extracts.
func DryOps() Ops {
	return dryOps{}
}

func (dryOps) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (dryOps) Remove(string) error { return nil }
func (dryOps) Copy(string, string) error { return nil }

func (dryOps) Merge(string, string, bool) (merge.Result, error) {
	return merge.Result{}, nil
}

func (dryOps) Unzip(_ context.Context, _, dest string) (Tree, error) {
	return PlannedTree{Root: dest}, nil
}

func (dryOps) Fetch(_ context.Context, _, exactName, _, dir string) (string, error) {
	return filepath.Join(dir, exactName), nil
}

// PlannedTree stands in for an archive that a dry run did not extract. Every
// manifest lookup succeeds with the path the member would have.
type PlannedTree struct {
	Root string
}

func (p PlannedTree) Locate(suffix string) (string, bool) {
	return filepath.Join(p.Root, filepath.FromSlash(suffix)), true
}

func (p PlannedTree) FindFile(name string) (string, bool) {
	return filepath.Join(p.Root, name), true
}

func (p PlannedTree) FindDir(name string) (string, bool) {
	return filepath.Join(p.Root, name), true
}

func (p PlannedTree) FindNested([]string, string, string) (string, bool) {
	return "", false
}
