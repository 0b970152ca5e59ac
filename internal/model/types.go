package model

import (
	"fmt"
	"strings"
	"time"
)

// Release is the subset of the GitHub release payload that swissfetch uses.
type Release struct {
	TagName    string    `json:"tag_name"`
	Draft      bool      `json:"draft"`
	Prerelease bool      `json:"prerelease"`
	CreatedAt  time.Time `json:"created_at"`
	Assets     []Asset   `json:"assets"`
}

// Official reports whether the release is neither a draft nor a prerelease.
func (r *Release) Official() bool {
	return !r.Draft && !r.Prerelease
}

// Asset is the subset of the GitHub release asset payload that swissfetch uses.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadUrl string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// ArchiveKind specifies the extraction strategy for an archive.
type ArchiveKind string

const (
	ArchiveTarXz    ArchiveKind = "tar.xz"
	ArchiveSevenZip ArchiveKind = "7z"
	ArchiveZip      ArchiveKind = "zip"
)

// Target is the device swissfetch installs for.
type Target string

const (
	// TargetPicoBoot installs the Swiss DOL as the boot executable.
	TargetPicoBoot Target = "picoboot"
	// TargetPicoLoader installs the gekkoboot loader shipped inside the release.
	TargetPicoLoader Target = "picoloader"
	// TargetGCLoader installs the optical image boot.iso.
	TargetGCLoader Target = "gcloader"
)

// Targets lists every supported target in CLI order.
var Targets = []Target{TargetPicoBoot, TargetPicoLoader, TargetGCLoader}

// ParseTarget maps a CLI device name to a Target.
func ParseTarget(s string) (Target, error) {
	for _, t := range Targets {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown device %q (supported: %s)", s, strings.Join(TargetNames(), ", "))
}

// TargetNames returns the CLI names of all targets.
func TargetNames() []string {
	out := make([]string, len(Targets))
	for i, t := range Targets {
		out[i] = string(t)
	}
	return out
}

// Modifiers are the optional bootloader replacements.
type Modifiers struct {
	// Cubeboot installs OffBroadway/cubeboot as /ipl.dol and Swiss as /boot.dol.
	Cubeboot bool
	// Cubiboot installs makeo/cubiboot as /ipl.dol and Swiss as /swiss-gc.dol.
	Cubiboot bool
}

func (m Modifiers) String() string {
	var parts []string
	if m.Cubeboot {
		parts = append(parts, "cubeboot")
	}
	if m.Cubiboot {
		parts = append(parts, "cubiboot")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}
