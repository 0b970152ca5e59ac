// Package hostenv inspects the host filesystem backing the SD root.
// Everything here is best effort: failures degrade to "unknown", never to an
// error.
package hostenv

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/disk"
)

// Mount is one mounted filesystem.
type Mount struct {
	Point   string
	Device  string
	FSType  string
	Options []string
}

var fatTypes = map[string]struct{}{
	"vfat":  {},
	"msdos": {},
	"fat":   {},
	"fat16": {},
	"fat32": {},
	"exfat": {},
}

// FAT reports whether the filesystem is one the GameCube loaders can read.
func (m Mount) FAT() bool {
	_, ok := fatTypes[strings.ToLower(m.FSType)]
	return ok
}

// ReadOnly reports whether the mount carries the "ro" option.
func (m Mount) ReadOnly() bool {
	for _, o := range m.Options {
		if o == "ro" {
			return true
		}
	}
	return false
}

// partitions is swapped in tests.
var partitions = func(ctx context.Context) ([]disk.PartitionStat, error) {
	return disk.PartitionsWithContext(ctx, true)
}

// Lookup returns the mount holding path.
func Lookup(ctx context.Context, path string) (Mount, bool) {
	if path == "" {
		return Mount{}, false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Mount{}, false
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	parts, err := partitions(ctx)
	if err != nil && len(parts) == 0 {
		return Mount{}, false
	}
	mounts := make([]Mount, 0, len(parts))
	for _, p := range parts {
		mounts = append(mounts, Mount{Point: p.Mountpoint, Device: p.Device, FSType: p.Fstype, Options: p.Opts})
	}
	return findMount(abs, mounts)
}

// Check logs a warning when the SD root is not on a writable FAT filesystem.
func Check(ctx context.Context, path string, log zerolog.Logger) {
	m, ok := Lookup(ctx, path)
	if !ok {
		log.Debug().Str("path", path).Msg("Could not determine the filesystem of the SD root")
		return
	}
	log.Debug().Str("mount", m.Point).Str("fstype", m.FSType).Str("device", m.Device).Msg("SD root mount")
	if !m.FAT() {
		log.Warn().Str("mount", m.Point).Str("fstype", m.FSType).Msg("SD root is not on a FAT filesystem; the console may not read it")
	}
	if m.ReadOnly() {
		log.Warn().Str("mount", m.Point).Msg("SD root is mounted read-only")
	}
}

// findMount picks the mount with the longest mountpoint prefix of dest.
func findMount(destPath string, mounts []Mount) (Mount, bool) {
	dest := filepath.ToSlash(filepath.Clean(destPath))
	if dest == "." || dest == "" {
		return Mount{}, false
	}

	bestLen := -1
	var best Mount
	for _, m := range mounts {
		mountPoint := filepath.ToSlash(filepath.Clean(m.Point))
		if mountPoint == "." || mountPoint == "" {
			continue
		}
		if !pathHasPrefix(dest, mountPoint) {
			continue
		}
		if len(mountPoint) > bestLen {
			bestLen = len(mountPoint)
			best = m
		}
	}
	return best, bestLen >= 0
}

func pathHasPrefix(path, prefix string) bool {
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
