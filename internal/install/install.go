// Package install places a Swiss release onto an SD card for one device.
//
// A run starts from an extracted release tree and moves through
// PrimaryPayloadPlaced and SystemPayloadMerged to Done. Every destination is
// checked for an existing file before anything is written; without Force an
// existing file fails the run. All side effects go through Ops so that a dry
// run describes exactly what a real run would do.
package install

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/3leaps/swissfetch/internal/config"
	"github.com/3leaps/swissfetch/internal/fault"
	"github.com/3leaps/swissfetch/internal/model"
)

// Request describes one install.
type Request struct {
	// Tree is the extracted release.
	Tree Tree
	// RootDir is the release's top-level swiss_r<N> directory name.
	RootDir   string
	Revision  int
	Target    model.Target
	Modifiers model.Modifiers
	Force     bool
}

// Options configures an Installer.
type Options struct {
	Layout    Layout
	Ops       Ops
	Auxiliary config.Auxiliary
	// Scratch receives nested payload archives and auxiliary downloads.
	Scratch string
	DryRun  bool
	Log     zerolog.Logger
}

type Installer struct {
	layout  Layout
	ops     Ops
	aux     config.Auxiliary
	scratch string
	dry     bool
	log     zerolog.Logger
}

func New(opts Options) *Installer {
	return &Installer{
		layout:  opts.Layout,
		ops:     opts.Ops,
		aux:     opts.Auxiliary,
		scratch: opts.Scratch,
		dry:     opts.DryRun,
		log:     opts.Log,
	}
}

// Validate rejects target and modifier combinations that can never install.
// It performs no I/O.
func Validate(target model.Target, mods model.Modifiers) error {
	if _, err := model.ParseTarget(string(target)); err != nil {
		return fault.Wrap(fault.KindUsage, err, "invalid device")
	}
	if target == model.TargetPicoBoot && mods.Cubeboot && mods.Cubiboot {
		return fault.New(fault.KindConflictingModifiers, "--cubeboot and --cubiboot are mutually exclusive for %s", target)
	}
	return nil
}

// Install places the payloads for req.Target. The returned report is never
// nil and lists the actions taken up to the point of failure.
func (in *Installer) Install(ctx context.Context, req Request) (*Report, error) {
	rep := &Report{
		Target:    req.Target,
		Modifiers: req.Modifiers,
		Revision:  req.Revision,
		DryRun:    in.dry,
		State:     StateExtracted,
	}
	if err := in.install(ctx, req, rep); err != nil {
		rep.State.Advance(StateFailed)
		return rep, err
	}
	rep.State.Advance(StateDone)
	return rep, nil
}

func (in *Installer) install(ctx context.Context, req Request, rep *Report) error {
	if err := Validate(req.Target, req.Modifiers); err != nil {
		return err
	}
	r := &run{
		Installer: in,
		req:       req,
		rep:       rep,
		man:       NewManifest(req.RootDir, req.Revision),
		written:   map[Role]bool{},
	}

	var err error
	switch req.Target {
	case model.TargetPicoBoot:
		err = r.picoboot(ctx)
	case model.TargetPicoLoader:
		err = r.picoloader(ctx)
	case model.TargetGCLoader:
		err = r.gcloader(ctx)
	}
	if err != nil {
		return err
	}
	rep.State.Advance(StatePrimaryPayloadPlaced)

	if err := r.apploader(ctx); err != nil {
		return err
	}
	rep.State.Advance(StateSystemPayloadMerged)
	return nil
}

// run is the state of a single Install call.
type run struct {
	*Installer
	req     Request
	rep     *Report
	man     Manifest
	written map[Role]bool
}

func (r *run) picoboot(ctx context.Context) error {
	mods := r.req.Modifiers
	switch {
	case mods.Cubeboot:
		return r.cubeboot(ctx)
	case mods.Cubiboot:
		if err := r.guard(RoleIPL, RoleSwissGCDOL); err != nil {
			return err
		}
		return r.cubiboot(ctx)
	default:
		if err := r.guard(RoleIPL); err != nil {
			return err
		}
		r.removeStale(RoleSwissGCDOL)
		dol, err := r.swissDOL()
		if err != nil {
			return err
		}
		return r.place(RoleIPL, dol)
	}
}

func (r *run) cubeboot(ctx context.Context) error {
	if err := r.guard(RoleIPL, RoleBootDOL); err != nil {
		return err
	}
	// swiss-gc.dol belongs to cubiboot; left behind it is a second Swiss.
	r.removeStale(RoleSwissGCDOL)
	dol, err := r.swissDOL()
	if err != nil {
		return err
	}
	cb, err := r.fetch(ctx, r.aux.Cubeboot, "cubeboot.dol", ".dol")
	if err != nil {
		return err
	}
	if err := r.place(RoleIPL, cb); err != nil {
		return err
	}
	if err := r.place(RoleBootDOL, dol); err != nil {
		return err
	}

	if r.ops.Exists(r.layout.Path(RoleCubebootINI)) {
		r.keep(RoleCubebootINI)
		return nil
	}
	ini, err := r.fetch(ctx, r.aux.Cubeboot, "cubeboot.ini", ".ini")
	if err == nil {
		err = r.place(RoleCubebootINI, ini)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.Warn().Err(err).Msg("Could not install cubeboot.ini; cubeboot will use its defaults")
	}
	return nil
}

// cubiboot installs cubiboot as the IPL and Swiss as swiss-gc.dol. Callers
// guard the destinations first.
func (r *run) cubiboot(ctx context.Context) error {
	dol, err := r.swissDOL()
	if err != nil {
		return err
	}
	cbi, err := r.fetch(ctx, r.aux.Cubiboot, "cubiboot.dol", ".dol")
	if err != nil {
		return err
	}
	if err := r.place(RoleIPL, cbi); err != nil {
		return err
	}
	return r.place(RoleSwissGCDOL, dol)
}

func (r *run) picoloader(ctx context.Context) error {
	mods := r.req.Modifiers
	if mods.Cubeboot {
		r.log.Info().Msg("--cubeboot is ignored for picoloader (use --cubiboot instead)")
	}

	archive, ok := r.req.Tree.Locate(r.man.Loader())
	if !ok {
		archive, ok = r.req.Tree.FindNested(loaderDirHints, loaderInnerDir, loaderZipHint)
		if ok {
			r.log.Debug().Str("archive", archive).Msg("Loader archive found by structural search")
		}
	}
	if !ok {
		return fault.New(fault.KindPayloadNotFound, "could not find the gekkoboot archive (%s) in the release", r.man.Loader())
	}

	guarded := []Role{RoleBootDOL, RoleIPL}
	if mods.Cubiboot {
		guarded = append(guarded, RoleSwissGCDOL)
	}
	if err := r.guard(guarded...); err != nil {
		return err
	}

	payload, err := r.unzip(ctx, archive, "picoloader")
	if err != nil {
		return err
	}
	ipl, okIPL := payload.FindFile("ipl.dol")
	swiss, okSwiss := payload.FindDir("swiss")
	if !okIPL || !okSwiss {
		return fault.New(fault.KindIncompletePayload, "gekkoboot payload is missing ipl.dol or the swiss/ directory")
	}

	// The loader convention is a clean root: old boot executables go.
	for _, role := range []Role{RoleBootDOL, RoleIPL} {
		if err := r.remove(role); err != nil {
			return err
		}
	}

	if mods.Cubiboot {
		r.log.Info().Msg("cubiboot replaces the gekkoboot ipl.dol")
		if err := r.cubiboot(ctx); err != nil {
			return err
		}
	} else {
		if err := r.place(RoleIPL, ipl); err != nil {
			return err
		}
		r.removeStale(RoleSwissGCDOL)
	}
	return r.merge(swiss, RoleSystemDir)
}

func (r *run) gcloader(ctx context.Context) error {
	if r.req.Modifiers.Cubeboot || r.req.Modifiers.Cubiboot {
		r.log.Info().Str("modifiers", r.req.Modifiers.String()).Msg("Bootloader modifiers are ignored for gcloader (no DOL boot at SD root)")
	}

	archive, ok := r.req.Tree.Locate(r.man.OpticalImage())
	if !ok {
		return fault.New(fault.KindPayloadNotFound, "could not find %s in the release", r.man.OpticalImage())
	}
	if err := r.guard(RoleBootISO); err != nil {
		return err
	}
	payload, err := r.unzip(ctx, archive, "gcloader")
	if err != nil {
		return err
	}
	iso, ok := payload.FindFile("boot.iso")
	if !ok {
		return fault.New(fault.KindPayloadNotFound, "GCLoader archive does not contain boot.iso")
	}
	return r.place(RoleBootISO, iso)
}

// apploader refreshes the apploader image shipped with every release.
func (r *run) apploader(ctx context.Context) error {
	archive, ok := r.req.Tree.Locate(r.man.Apploader())
	if !ok {
		return fault.New(fault.KindPayloadNotFound, "could not find %s in the release", r.man.Apploader())
	}
	payload, err := r.unzip(ctx, archive, "apploader")
	if err != nil {
		return err
	}
	swiss, ok := payload.FindDir("swiss")
	if !ok {
		return fault.New(fault.KindIncompletePayload, "apploader archive has no swiss/ directory")
	}
	r.removeStale(RoleApploaderImage)
	return r.merge(swiss, RoleSystemDir)
}

func (r *run) swissDOL() (string, error) {
	dol, ok := r.req.Tree.Locate(r.man.SwissDOL())
	if !ok {
		return "", fault.New(fault.KindPayloadNotFound, "could not find %s in the release", r.man.SwissDOL())
	}
	return dol, nil
}

// guard fails when any role's destination already exists and Force is off.
// A dry run reports the conflict and carries on.
func (r *run) guard(roles ...Role) error {
	for _, role := range roles {
		dest := r.layout.Path(role)
		if r.req.Force || !r.ops.Exists(dest) {
			continue
		}
		if r.dry {
			r.log.Warn().Str("path", dest).Msg("(dry-run) destination exists; a real run would stop here (use --force)")
			continue
		}
		return fault.New(fault.KindDestinationExists, "%s exists; use --force to overwrite", dest)
	}
	return nil
}

func (r *run) place(role Role, src string) error {
	if r.written[role] {
		return fault.New(fault.KindUnknown, "%s would be written twice", role)
	}
	dest := r.layout.Path(role)
	r.record(Action{Verb: VerbCopy, Source: src, Dest: dest})
	if err := r.ops.Copy(src, dest); err != nil {
		return err
	}
	r.written[role] = true
	return nil
}

// remove deletes role's destination if present. Only called after guard.
func (r *run) remove(role Role) error {
	dest := r.layout.Path(role)
	if !r.ops.Exists(dest) {
		return nil
	}
	r.record(Action{Verb: VerbRemove, Dest: dest})
	return r.ops.Remove(dest)
}

// removeStale deletes role's destination if present; failure is a warning.
func (r *run) removeStale(role Role) {
	if err := r.remove(role); err != nil {
		r.log.Warn().Err(err).Str("path", r.layout.Path(role)).Msg("Could not remove stale file")
	}
}

func (r *run) keep(role Role) {
	r.record(Action{Verb: VerbKeep, Dest: r.layout.Path(role)})
}

func (r *run) merge(src string, role Role) error {
	dest := r.layout.Path(role)
	r.record(Action{Verb: VerbMerge, Source: src, Dest: dest})
	res, err := r.ops.Merge(src, dest, true)
	if err != nil {
		return err
	}
	r.log.Debug().Int("copied", res.Copied).Int("skipped", res.Skipped).Str("dest", dest).Msg("Merged payload")
	return nil
}

func (r *run) unzip(ctx context.Context, archive, name string) (Tree, error) {
	dest := filepath.Join(r.scratch, name)
	r.record(Action{Verb: VerbExtract, Source: archive, Dest: dest})
	return r.ops.Unzip(ctx, archive, dest)
}

func (r *run) fetch(ctx context.Context, family, exactName, fallbackSuffix string) (string, error) {
	r.record(Action{Verb: VerbFetch, Source: family + ":" + exactName})
	return r.ops.Fetch(ctx, family, exactName, fallbackSuffix, r.scratch)
}

func (r *run) record(a Action) {
	r.rep.Actions = append(r.rep.Actions, a)
	ev := r.log.Info().Str("action", string(a.Verb))
	if a.Source != "" {
		ev = ev.Str("src", a.Source)
	}
	if a.Dest != "" {
		ev = ev.Str("dest", a.Dest)
	}
	if r.dry {
		ev.Msg("(dry-run) would " + string(a.Verb))
		return
	}
	ev.Msg(actionMessages[a.Verb])
}

var actionMessages = map[Verb]string{
	VerbRemove:  "Removing existing file",
	VerbCopy:    "Installing",
	VerbMerge:   "Merging payload",
	VerbExtract: "Extracting payload",
	VerbFetch:   "Fetching auxiliary asset",
	VerbKeep:    "Keeping existing file",
}
