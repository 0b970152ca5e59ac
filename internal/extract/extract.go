// Package extract unpacks release archives into a scratch directory and
// looks up payload members inside the unpacked tree.
package extract

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"github.com/3leaps/swissfetch/internal/fault"
	"github.com/3leaps/swissfetch/internal/model"
)

// KindFromName infers the archive kind from a file name.
func KindFromName(name string) (model.ArchiveKind, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return model.ArchiveTarXz, true
	case strings.HasSuffix(lower, ".7z"):
		return model.ArchiveSevenZip, true
	case strings.HasSuffix(lower, ".zip"):
		return model.ArchiveZip, true
	default:
		return "", false
	}
}

// Extract unpacks archivePath into destDir and returns the resulting tree.
// Members that would land outside destDir fail the whole extraction.
func Extract(ctx context.Context, archivePath string, kind model.ArchiveKind, destDir string) (*Tree, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fault.Wrap(fault.KindExtraction, err, "create %s", destDir)
	}

	var err error
	switch kind {
	case model.ArchiveTarXz:
		err = extractTarXz(ctx, archivePath, destDir)
	case model.ArchiveSevenZip:
		err = extractSevenZip(ctx, archivePath, destDir)
	case model.ArchiveZip:
		err = extractZip(ctx, archivePath, destDir)
	default:
		return nil, fault.New(fault.KindExtraction, "unsupported archive kind %q for %s", kind, filepath.Base(archivePath))
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if fault.KindOf(err) == fault.KindUnknown {
			err = fault.Wrap(fault.KindExtraction, err, "extract %s", filepath.Base(archivePath))
		}
		return nil, err
	}
	return &Tree{Root: destDir}, nil
}

func extractTarXz(ctx context.Context, archivePath, destDir string) error {
	f, err := os.Open(archivePath) // #nosec G304 -- archive lives in the run's scratch dir
	if err != nil {
		return err
	}
	defer f.Close()

	xr, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		return errors.Wrap(err, "open xz stream")
	}
	tr := tar.NewReader(xr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read tar entry")
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode(), hdr.ModTime); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			if err := checkLink(destDir, target, hdr.Linkname, hdr.Typeflag == tar.TypeLink); err != nil {
				return err
			}
		}
	}
}

func extractSevenZip(ctx context.Context, archivePath, destDir string) error {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrap(err, "open 7z archive")
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		info := f.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := copyMember(target, f.Open, info.Mode(), f.Modified); err != nil {
			return errors.Wrapf(err, "extract %s", f.Name)
		}
	}
	return nil
}

func extractZip(ctx context.Context, archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrap(err, "open zip archive")
	}
	defer r.Close()

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		info := f.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := copyMember(target, f.Open, info.Mode(), f.Modified); err != nil {
			return errors.Wrapf(err, "extract %s", f.Name)
		}
	}
	return nil
}

// safeJoin resolves an archive member name under destDir.
func safeJoin(destDir, name string) (string, error) {
	clean := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(clean, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fault.New(fault.KindExtraction, "archive member %q has an absolute path", name)
	}
	target := filepath.Join(destDir, filepath.FromSlash(clean))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fault.New(fault.KindExtraction, "archive member %q escapes the extraction directory", name)
	}
	return target, nil
}

// checkLink rejects links that point outside destDir. Links are never
// materialized; payloads only need regular files.
func checkLink(destDir, target, linkname string, hard bool) error {
	if filepath.IsAbs(linkname) || strings.HasPrefix(linkname, "/") {
		return fault.New(fault.KindExtraction, "link %s points to absolute path %q", target, linkname)
	}
	base := filepath.Dir(target)
	if hard {
		base = destDir
	}
	resolved := filepath.Join(base, filepath.FromSlash(linkname))
	rel, err := filepath.Rel(destDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fault.New(fault.KindExtraction, "link %s escapes the extraction directory", target)
	}
	return nil
}

func copyMember(target string, open func() (io.ReadCloser, error), mode fs.FileMode, mtime time.Time) error {
	rc, err := open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeFile(target, rc, mode, mtime)
}

func writeFile(target string, r io.Reader, mode fs.FileMode, mtime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	perm := mode.Perm() | 0o600
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm) // #nosec G304 -- target checked by safeJoin
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !mtime.IsZero() {
		_ = os.Chtimes(target, mtime, mtime)
	}
	return nil
}
