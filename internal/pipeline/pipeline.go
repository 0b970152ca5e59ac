// Package pipeline runs one fetch-and-install: resolve the release, pick and
// download its archive, extract it into a private scratch directory, install
// onto the SD card and optionally hide the installed files.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/3leaps/swissfetch/internal/asset"
	"github.com/3leaps/swissfetch/internal/auxfetch"
	"github.com/3leaps/swissfetch/internal/config"
	"github.com/3leaps/swissfetch/internal/extract"
	"github.com/3leaps/swissfetch/internal/fault"
	"github.com/3leaps/swissfetch/internal/hide"
	"github.com/3leaps/swissfetch/internal/host/github"
	"github.com/3leaps/swissfetch/internal/hostenv"
	"github.com/3leaps/swissfetch/internal/install"
	"github.com/3leaps/swissfetch/internal/locate"
	"github.com/3leaps/swissfetch/internal/model"
	"github.com/3leaps/swissfetch/pkg/revision"
)

// Options is one run's request.
type Options struct {
	SDRoot      string
	Target      model.Target
	Modifiers   model.Modifiers
	Constraints locate.Constraints
	Force       bool
	DryRun      bool
	HideFiles   bool

	Config  *config.Config
	Version string
	Log     zerolog.Logger
}

// Result describes a completed (or failed) run.
type Result struct {
	RunID     string
	State     install.State
	Release   *model.Release
	Decision  revision.Decision
	Candidate *asset.Candidate
	Revision  int
	Report    *install.Report
	Hide      *hide.Result
}

// Validate checks opts without touching the filesystem or network.
func Validate(opts Options) error {
	if strings.TrimSpace(opts.SDRoot) == "" {
		return fault.New(fault.KindUsage, "--sd-root is required")
	}
	if opts.Config == nil {
		return fault.New(fault.KindUsage, "no configuration")
	}
	return install.Validate(opts.Target, opts.Modifiers)
}

// Run executes the pipeline. The returned Result is never nil.
func Run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), State: install.StateReleaseResolved}
	err := run(ctx, opts, res)
	if err != nil {
		res.State = install.StateFailed
	}
	return res, err
}

func run(ctx context.Context, opts Options, res *Result) error {
	if err := Validate(opts); err != nil {
		return err
	}
	cfg := opts.Config
	log := opts.Log.With().
		Str("run_id", res.RunID).
		Str("device", string(opts.Target)).
		Bool("dry_run", opts.DryRun).
		Logger()

	if opts.Constraints.Tag != "" && opts.Constraints.Previous {
		log.Info().Str("tag", opts.Constraints.Tag).Msg("--tag overrides --previous-release")
		opts.Constraints.Previous = false
	}

	layout, err := install.NewLayout(opts.SDRoot)
	if err != nil {
		return fault.Wrap(fault.KindUsage, err, "invalid --sd-root")
	}
	if err := ensureRoot(layout.Root, opts.DryRun, log); err != nil {
		return err
	}
	hostenv.Check(ctx, layout.Root, log)

	scratch, err := os.MkdirTemp("", "swissfetch-*")
	if err != nil {
		return errors.Wrap(err, "create scratch dir")
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn().Err(err).Str("path", scratch).Msg("Could not remove scratch dir")
		}
	}()

	client := github.NewClient(github.Options{
		APIBase:   cfg.APIBase,
		UserAgent: github.UserAgent(cfg.UserAgent, opts.Version),
		Timeout:   cfg.Timeout(),
	})

	resolved, err := locate.New(cfg, client, log).Resolve(ctx, opts.Constraints, opts.Target)
	if err != nil {
		return err
	}
	rel := resolved.Release
	res.Release = rel
	res.Decision = resolved.Decision
	res.State.Advance(install.StateReleaseResolved)
	log = log.With().Str("tag", rel.TagName).Logger()
	log.Info().Msg("Resolved release")

	cand, ok := asset.Select(rel.Assets)
	if !ok {
		return fault.New(fault.KindNoSuitableAsset, "release %s has no <product>_r<N>.tar.xz or .7z asset", rel.TagName)
	}
	res.Candidate = cand
	res.Revision = cand.Revision
	res.State.Advance(install.StateAssetSelected)
	log.Info().Str("asset", cand.Asset.Name).Str("kind", string(cand.Kind)).Int("revision", cand.Revision).Msg("Selected asset")

	tree, rootDir, err := fetchRelease(ctx, client, cand, scratch, opts.DryRun, log)
	if err != nil {
		return err
	}
	res.State.Advance(install.StateExtracted)
	if t, ok := tree.(*extract.Tree); ok {
		if name, rev, ok := t.RevisionRoot(); ok {
			if rev != cand.Revision {
				log.Warn().Int("asset_revision", cand.Revision).Int("tree_revision", rev).Msg("Archive contents disagree with asset name; using the archive's revision")
				res.Revision = rev
			}
			rootDir = name
		}
	}

	var ops install.Ops
	if opts.DryRun {
		ops = install.DryOps()
	} else {
		ops = install.LiveOps(auxfetch.New(client, log), log)
	}
	installer := install.New(install.Options{
		Layout:    layout,
		Ops:       ops,
		Auxiliary: cfg.Auxiliary,
		Scratch:   scratch,
		DryRun:    opts.DryRun,
		Log:       log,
	})
	rep, err := installer.Install(ctx, install.Request{
		Tree:      tree,
		RootDir:   rootDir,
		Revision:  res.Revision,
		Target:    opts.Target,
		Modifiers: opts.Modifiers,
		Force:     opts.Force,
	})
	res.Report = rep
	if err != nil {
		return err
	}
	res.State.Advance(rep.State)

	if opts.HideFiles {
		hr, err := hide.Run(ctx, layout.Root, opts.DryRun, log)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Hide step failed")
		}
		res.Hide = &hr
	}

	log.Info().Int("actions", len(rep.Actions)).Str("state", res.State.String()).Msg("Done")
	return nil
}

func ensureRoot(root string, dryRun bool, log zerolog.Logger) error {
	info, err := os.Stat(root)
	switch {
	case err == nil && !info.IsDir():
		return fault.New(fault.KindUsage, "SD root %s is not a directory", root)
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return errors.Wrap(err, "inspect SD root")
	case dryRun:
		log.Info().Str("path", root).Msg("(dry-run) would create SD root")
		return nil
	default:
		log.Info().Str("path", root).Msg("Creating SD root")
		return errors.Wrap(os.MkdirAll(root, 0o755), "create SD root")
	}
}

// fetchRelease downloads and extracts the release archive. A dry run does
// neither and plans against the layout the archive would have.
func fetchRelease(ctx context.Context, client *github.Client, cand *asset.Candidate, scratch string, dryRun bool, log zerolog.Logger) (install.Tree, string, error) {
	archive := filepath.Join(scratch, filepath.Base(cand.Asset.Name))
	extractDir := filepath.Join(scratch, "extract")
	rootDir := cand.Product + "_r" + strconv.Itoa(cand.Revision)

	if dryRun {
		log.Info().Str("url", cand.Asset.BrowserDownloadUrl).Msg("(dry-run) would download")
		log.Info().Str("dest", extractDir).Msg("(dry-run) would extract")
		return install.PlannedTree{Root: extractDir}, rootDir, nil
	}

	log.Info().Str("url", cand.Asset.BrowserDownloadUrl).Msg("Downloading Swiss asset")
	if err := client.Download(ctx, cand.Asset.BrowserDownloadUrl, archive); err != nil {
		return nil, "", err
	}
	log.Info().Str("dest", extractDir).Msg("Extracting")
	tree, err := extract.Extract(ctx, archive, cand.Kind, extractDir)
	if err != nil {
		return nil, "", err
	}
	return tree, rootDir, nil
}
