// Package auxfetch downloads named files from the latest release of a
// secondary release family such as cubeboot or cubiboot.
package auxfetch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/3leaps/swissfetch/internal/fault"
	"github.com/3leaps/swissfetch/internal/model"
)

// API is the subset of the hosting client the fetcher needs.
type API interface {
	Latest(ctx context.Context, repo string) (*model.Release, error)
	Download(ctx context.Context, src, dest string) error
}

type Fetcher struct {
	api API
	log zerolog.Logger
}

func New(api API, log zerolog.Logger) *Fetcher {
	return &Fetcher{api: api, log: log}
}

// FetchNamed downloads exactName from family's latest release into dir and
// returns the local path. When no asset has that name the first asset ending
// in fallbackSuffix is used instead. The file is always saved as exactName.
func (f *Fetcher) FetchNamed(ctx context.Context, family, exactName, fallbackSuffix, dir string) (string, error) {
	rel, err := f.api.Latest(ctx, family)
	if err != nil {
		return "", err
	}

	a, ok := Pick(rel.Assets, exactName, fallbackSuffix)
	if !ok {
		return "", fault.New(fault.KindAuxiliaryAssetNotFound, "could not find %s in the latest %s release (%s)", exactName, family, rel.TagName)
	}
	if !strings.EqualFold(a.Name, exactName) {
		f.log.Info().Str("family", family).Str("asset", a.Name).Msgf("No %s asset; using suffix match", exactName)
	}

	dest := filepath.Join(dir, exactName)
	f.log.Info().Str("family", family).Str("tag", rel.TagName).Str("asset", a.Name).Msg("Downloading auxiliary asset")
	if err := f.api.Download(ctx, a.BrowserDownloadUrl, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Pick returns the asset named exactName, ignoring case, or else the first
// asset whose name ends in fallbackSuffix.
func Pick(assets []model.Asset, exactName, fallbackSuffix string) (model.Asset, bool) {
	for _, a := range assets {
		if strings.EqualFold(a.Name, exactName) {
			return a, true
		}
	}
	if fallbackSuffix == "" {
		return model.Asset{}, false
	}
	suffix := strings.ToLower(fallbackSuffix)
	for _, a := range assets {
		if strings.HasSuffix(strings.ToLower(a.Name), suffix) {
			return a, true
		}
	}
	return model.Asset{}, false
}
