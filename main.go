package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/3leaps/swissfetch/internal/config"
	"github.com/3leaps/swissfetch/internal/fault"
	"github.com/3leaps/swissfetch/internal/locate"
	"github.com/3leaps/swissfetch/internal/logging"
	"github.com/3leaps/swissfetch/internal/model"
	"github.com/3leaps/swissfetch/internal/pipeline"
	"github.com/3leaps/swissfetch/pkg/revision"
)

var version = "dev"

//go:embed docs/quickstart.txt
var quickstartDoc string

type flags struct {
	sdRoot     string
	device     string
	tag        string
	configPath string
	previous   bool
	force      bool
	dryRun     bool
	hideFiles  bool
	cubeboot   bool
	cubiboot   bool
	verbose    bool
	noColor    bool
	version    bool
}

func (f *flags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.sdRoot, "sd-root", "", "SD card root path (e.g. /media/SDCARD)")
	fs.StringVar(&f.device, "device", "", "target device: "+strings.Join(model.TargetNames(), ", "))
	fs.StringVar(&f.tag, "tag", "", "release tag to use (e.g. v0.6r1957); overrides --previous-release")
	fs.BoolVar(&f.previous, "previous-release", false, "use the release before the newest official one")
	fs.BoolVar(&f.force, "force", false, "overwrite or remove existing files on the SD card")
	fs.BoolVar(&f.dryRun, "dry-run", false, "print actions without downloading or writing")
	fs.BoolVar(&f.hideFiles, "hide-files", false, "set the FAT hidden attribute on *.dol, *.ini, *.cli, GBI, MCBACKUP and swiss using fatattr")
	fs.BoolVar(&f.cubeboot, "cubeboot", false, "picoboot: install OffBroadway/cubeboot as /ipl.dol and Swiss as /boot.dol")
	fs.BoolVar(&f.cubiboot, "cubiboot", false, "picoboot, picoloader: install makeo/cubiboot as /ipl.dol and Swiss as /swiss-gc.dol")
	fs.StringVar(&f.configPath, "config", "", "YAML file overriding the built-in configuration")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored log output")
	fs.BoolVar(&f.version, "version", false, "print version")
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, args, stdout, stderr)
}

// execute runs the command and maps its outcome to an exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var f flags
	cmd := &cobra.Command{
		Use:           "swissfetch --sd-root PATH --device DEVICE [flags]",
		Short:         "Fetch a Swiss release and install it onto a GameCube SD card",
		Long:          strings.TrimSpace(quickstartDoc),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fault.New(fault.KindUsage, "unexpected arguments: %s", strings.Join(args, " "))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInstall(cmd.Context(), &f, stdout, stderr)
		},
	}
	f.bind(cmd.Flags())
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fault.Wrap(fault.KindUsage, err, "")
	})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if ctx.Err() != nil {
		return fault.ExitInterrupt
	}
	if err == nil {
		return fault.ExitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	if fault.Is(err, fault.KindUsage) {
		fmt.Fprintln(stderr, "run 'swissfetch --help' for usage")
	}
	return fault.ExitCode(err)
}

func runInstall(ctx context.Context, f *flags, stdout, stderr io.Writer) error {
	if f.version {
		fmt.Fprintln(stdout, "swissfetch", version)
		return nil
	}
	if f.sdRoot == "" {
		return fault.New(fault.KindUsage, "--sd-root is required")
	}
	if f.device == "" {
		return fault.New(fault.KindUsage, "--device is required")
	}
	target, err := model.ParseTarget(f.device)
	if err != nil {
		return fault.Wrap(fault.KindUsage, err, "")
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fault.Wrap(fault.KindUsage, err, "")
	}

	log := logging.New(stderr, logging.Options{Verbose: f.verbose, NoColor: f.noColor})
	res, err := pipeline.Run(ctx, pipeline.Options{
		SDRoot:      f.sdRoot,
		Target:      target,
		Modifiers:   model.Modifiers{Cubeboot: f.cubeboot, Cubiboot: f.cubiboot},
		Constraints: locate.Constraints{Tag: strings.TrimSpace(f.tag), Previous: f.previous},
		Force:       f.force,
		DryRun:      f.dryRun,
		HideFiles:   f.hideFiles,
		Config:      cfg,
		Version:     version,
		Log:         log,
	})
	if err != nil {
		return err
	}

	if f.dryRun {
		fmt.Fprintf(stdout, "Dry run: %s for %s (%s)\n", res.Release.TagName, target, res.Candidate.Asset.Name)
		fmt.Fprintln(stdout, revision.DescribeDecision(res.Decision))
		fmt.Fprint(stdout, res.Report.Summary())
		return nil
	}
	fmt.Fprintf(stdout, "Installed Swiss %s (r%d) for %s\n", res.Release.TagName, res.Revision, target)
	return nil
}
