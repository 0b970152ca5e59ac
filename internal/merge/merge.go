// Package merge layers a payload directory onto an existing destination
// tree without removing anything already there.
package merge

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/3leaps/swissfetch/internal/fault"
)

// Result summarizes a merge.
type Result struct {
	Copied  int
	Skipped int
}

// Merge copies every file under src into the same relative path under dst.
// Existing destination files are kept unless overwrite is set. Destination
// files with no counterpart in src are never touched.
func Merge(src, dst string, overwrite bool, log zerolog.Logger) (Result, error) {
	var res Result
	info, err := os.Stat(src)
	if err != nil {
		return res, fault.Wrap(fault.KindSourceMissing, err, "merge source %s", src)
	}
	if !info.IsDir() {
		return res, fault.New(fault.KindSourceMissing, "merge source %s is not a directory", src)
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, err := os.Lstat(target); err == nil && !overwrite {
			log.Debug().Str("path", target).Msg("Keeping existing file")
			res.Skipped++
			return nil
		}
		if err := CopyFile(path, target); err != nil {
			return err
		}
		res.Copied++
		return nil
	})
	if err != nil {
		return res, errors.Wrapf(err, "merge %s into %s", src, dst)
	}
	return res, nil
}

// CopyFile copies src to dst, creating parent directories and preserving the
// source's permission bits and modification time.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrap(err, "stat copy source")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "create destination dir")
	}

	in, err := os.Open(src) // #nosec G304 -- paths come from the run's scratch tree
	if err != nil {
		return errors.Wrap(err, "open copy source")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()) // #nosec G304 -- SD root destination
	if err != nil {
		return errors.Wrap(err, "open copy destination")
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "copy %s", filepath.Base(src))
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "close copy destination")
	}
	// FAT has no unix permissions; chmod failures there are expected.
	_ = os.Chmod(dst, info.Mode().Perm())
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return errors.Wrap(err, "preserve modification time")
	}
	return nil
}
