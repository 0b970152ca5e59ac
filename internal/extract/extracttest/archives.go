// Package extracttest builds release-shaped archives for tests.
package extracttest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/ulikunitz/xz"
)

// Files maps slash-separated member names to contents. Names ending in "/"
// are directories.
type Files map[string][]byte

var fixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func (f Files) sortedNames() []string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ZipBytes returns a zip archive holding files.
func ZipBytes(t testing.TB, files Files) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range files.sortedNames() {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: fixedTime}
		if strings.HasSuffix(name, "/") {
			hdr.SetMode(os.ModeDir | 0o755)
		} else {
			hdr.SetMode(0o644)
		}
		w, err := zw.CreateHeader(hdr)
		must(t, err)
		if !strings.HasSuffix(name, "/") {
			_, err = w.Write(files[name])
			must(t, err)
		}
	}
	must(t, zw.Close())
	return buf.Bytes()
}

// WriteZip writes a zip archive of files to path.
func WriteZip(t testing.TB, path string, files Files) {
	t.Helper()
	must(t, os.MkdirAll(filepath.Dir(path), 0o755))
	must(t, os.WriteFile(path, ZipBytes(t, files), 0o644))
}

// TarXzBytes returns an xz-compressed tarball holding files.
func TarXzBytes(t testing.TB, files Files) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	must(t, err)
	tw := tar.NewWriter(xw)
	for _, name := range files.sortedNames() {
		hdr := &tar.Header{Name: name, ModTime: fixedTime}
		if strings.HasSuffix(name, "/") {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Mode = 0o644
			hdr.Size = int64(len(files[name]))
		}
		must(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write(files[name])
			must(t, err)
		}
	}
	must(t, tw.Close())
	must(t, xw.Close())
	return buf.Bytes()
}

// WriteTarXz writes an xz-compressed tarball of files to path.
func WriteTarXz(t testing.TB, path string, files Files) {
	t.Helper()
	must(t, os.MkdirAll(filepath.Dir(path), 0o755))
	must(t, os.WriteFile(path, TarXzBytes(t, files), 0o644))
}

// SwissRelease returns the members of a Swiss release archive for rev with
// the apploader, GCLoader and PicoLoader payloads in place.
func SwissRelease(t testing.TB, rev string) Files {
	t.Helper()
	root := "swiss_r" + rev + "/"
	return Files{
		root + "DOL/swiss_r" + rev + ".dol": []byte("swiss dol " + rev),
		root + "Apploader/EXTRACT_TO_ROOT.zip": ZipBytes(t, Files{
			"swiss/patches/apploader.img": []byte("apploader " + rev),
		}),
		root + "GCLoader/EXTRACT_TO_ROOT.zip": ZipBytes(t, Files{
			"boot.iso": []byte("boot iso " + rev),
		}),
		root + "PicoLoader/gekkoboot/EXTRACT_TO_ROOT.zip": ZipBytes(t, Files{
			"ipl.dol":            []byte("gekkoboot ipl " + rev),
			"swiss/settings.ini": []byte("gekkoboot settings"),
		}),
	}
}
