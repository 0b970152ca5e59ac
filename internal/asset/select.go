// Package asset picks the installable archive out of a release's assets.
package asset

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/3leaps/swissfetch/internal/model"
)

var archiveName = regexp.MustCompile(`(?i)^(.+)_r(\d+)\.(tar\.xz|7z)$`)

// Candidate is an asset whose name parsed as <product>_r<rev>.<ext>.
type Candidate struct {
	Asset    model.Asset
	Kind     model.ArchiveKind
	Revision int
	Product  string
}

// Parse reports whether name is a release archive and returns its parts.
func Parse(a model.Asset) (Candidate, bool) {
	m := archiveName.FindStringSubmatch(a.Name)
	if m == nil {
		return Candidate{}, false
	}
	rev, err := strconv.Atoi(m[2])
	if err != nil {
		return Candidate{}, false
	}
	kind := model.ArchiveSevenZip
	if strings.EqualFold(m[3], "tar.xz") {
		kind = model.ArchiveTarXz
	}
	return Candidate{Asset: a, Kind: kind, Revision: rev, Product: m[1]}, true
}

// Select returns the preferred archive: tar.xz before 7z, then the highest
// revision. Ties keep API order. ok is false when nothing matches.
func Select(assets []model.Asset) (*Candidate, bool) {
	var cands []Candidate
	for _, a := range assets {
		if c, ok := Parse(a); ok {
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		return nil, false
	}
	sort.SliceStable(cands, func(i, j int) bool {
		ri, rj := kindRank(cands[i].Kind), kindRank(cands[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return cands[i].Revision > cands[j].Revision
	})
	best := cands[0]
	return &best, true
}

func kindRank(k model.ArchiveKind) int {
	if k == model.ArchiveTarXz {
		return 0
	}
	return 1
}
