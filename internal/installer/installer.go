package installer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/open-edge-platform/pkg-installer/internal/archive"
	"github.com/open-edge-platform/pkg-installer/internal/builder"
	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/config/manifest"
	"github.com/open-edge-platform/pkg-installer/internal/deps"
	"github.com/open-edge-platform/pkg-installer/internal/formulatest"
	"github.com/open-edge-platform/pkg-installer/internal/install"
	"github.com/open-edge-platform/pkg-installer/internal/pkgfetcher"
	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/open-edge-platform/pkg-installer/internal/utils/shell"
	"github.com/open-edge-platform/pkg-installer/internal/verify"
)

// Stage is the last step a package completed.
type Stage int

const (
	StagePending Stage = iota
	StageFetched
	StageVerified
	StageExtracted
	StageBuilt
	StageInstalled
	StageTested
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageFetched:
		return "fetched"
	case StageVerified:
		return "verified"
	case StageExtracted:
		return "extracted"
	case StageBuilt:
		return "built"
	case StageInstalled:
		return "installed"
	case StageTested:
		return "tested"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// StageError wraps the failure of one pipeline step. Reached is the last
// stage completed before it.
type StageError struct {
	Op      string
	Reached Stage
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (reached %s): %v", e.Op, e.Reached, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrAlreadyInstalled is returned when a receipt exists and Force is unset.
var ErrAlreadyInstalled = errors.New("package is already installed")

// Options adjust a single install.
type Options struct {
	// SkipTests suppresses the post-install tests even when enabled.
	SkipTests bool
	// Force reinstalls over an existing receipt.
	Force bool
	// KeepWorkDir leaves the extracted source tree in place.
	KeepWorkDir bool
}

// Result describes how far an install got.
type Result struct {
	Package     string
	Version     string
	Stage       Stage
	ArchivePath string
	SourceDir   string
	BuildOutput string
	Files       []string
	Deps        deps.Report
	Receipt     *manifest.InstallReceipt
	ReceiptPath string
	Test        formulatest.Report
}

// Installer runs the fetch, verify, build and install sequence.
type Installer struct {
	Config  *config.GlobalConfig
	Fetcher *pkgfetcher.Fetcher
	// Executor runs test steps; nil means shell.Default.
	Executor shell.Executor
}

// New returns an installer for cfg, or the global config when cfg is nil.
func New(cfg *config.GlobalConfig, progress bool) *Installer {
	if cfg == nil {
		cfg = config.Global()
	}
	return &Installer{
		Config:  cfg,
		Fetcher: pkgfetcher.New(cfg.HTTP.Timeout, progress),
	}
}

func (i *Installer) helpers() *config.ConfigHelpers {
	if i.Config == nil {
		i.Config = config.Global()
	}
	return config.NewConfigHelpers(i.Config)
}

func (i *Installer) fetcher() *pkgfetcher.Fetcher {
	if i.Fetcher == nil {
		i.Fetcher = pkgfetcher.New(i.helpers().HTTPTimeout(), false)
	}
	return i.Fetcher
}

// Layout returns the install layout of the configured prefix.
func (i *Installer) Layout() (install.Layout, error) {
	prefix, err := i.helpers().Prefix()
	if err != nil {
		return install.Layout{}, fmt.Errorf("resolving prefix: %w", err)
	}
	return install.NewLayout(prefix), nil
}

// Install runs every stage for d in order and stops at the first failure.
// A failing test does not fail the install: it is reported in Result.Test.
func (i *Installer) Install(ctx context.Context, d *config.PackageDescriptor, opts Options) (*Result, error) {
	log := logger.Logger()
	res := &Result{Package: d.Name, Version: d.GetVersion(), Stage: StagePending}
	fail := func(op string, err error) (*Result, error) {
		return res, &StageError{Op: op, Reached: res.Stage, Err: err}
	}

	layout, err := i.Layout()
	if err != nil {
		return fail("prepare", err)
	}
	prev, err := manifest.ReadReceipt(layout.Prefix, d.Name)
	switch {
	case err == nil && !opts.Force:
		return fail("prepare", fmt.Errorf("%s in %s: %w", d.Name, layout.Prefix, ErrAlreadyInstalled))
	case err != nil && !errors.Is(err, manifest.ErrNotInstalled):
		if !opts.Force {
			return fail("prepare", err)
		}
		log.Warnf("ignoring unreadable receipt of %s: %v", d.Name, err)
	}
	hadPrev := err == nil

	log.Infof("installing %s %s into %s", d.Name, res.Version, layout.Prefix)

	if res.Deps, err = deps.Ensure(d); err != nil {
		return fail("dependencies", err)
	}

	if err := ctx.Err(); err != nil {
		return fail("fetch", err)
	}
	if res.ArchivePath, err = i.fetch(ctx, d); err != nil {
		return fail("fetch", err)
	}
	res.Stage = StageFetched

	if err := ctx.Err(); err != nil {
		return fail("verify", err)
	}
	if err := i.verify(ctx, d, res.ArchivePath); err != nil {
		return fail("verify", err)
	}
	res.Stage = StageVerified

	if err := ctx.Err(); err != nil {
		return fail("extract", err)
	}
	workDir, err := i.helpers().CreateWorkDir(d.Name)
	if err != nil {
		return fail("extract", err)
	}
	if !opts.KeepWorkDir {
		defer func() {
			if err := os.RemoveAll(workDir); err != nil {
				log.Warnf("removing work directory %s: %v", workDir, err)
			}
		}()
	}
	if res.SourceDir, err = archive.Extract(res.ArchivePath, workDir); err != nil {
		return fail("extract", err)
	}
	res.Stage = StageExtracted

	if res.BuildOutput, err = builder.Run(ctx, res.SourceDir, d.Install.Build, d.Install.Env, layout.Prefix); err != nil {
		return fail("build", err)
	}
	res.Stage = StageBuilt

	if err := ctx.Err(); err != nil {
		return fail("install", err)
	}
	if res.Files, err = install.Apply(res.SourceDir, layout, d.Install.Steps); err != nil {
		return fail("install", err)
	}
	res.Stage = StageInstalled

	if hadPrev {
		stale, err := install.NewCopier(nil).RemoveStale(prev, res.Files)
		if err != nil {
			log.Warnf("removing files of the previous install of %s: %v", d.Name, err)
		}
		if len(stale) > 0 {
			log.Infof("removed %d files of %s %s no longer installed", len(stale), d.Name, prev.Version)
		}
	}

	receipt := manifest.NewReceipt(d.Name, res.Version, d.URL, d.SHA256, layout.Prefix, res.Files)
	receipt.License = d.License
	for _, dep := range d.RuntimeDeps() {
		receipt.RuntimeDependencies = append(receipt.RuntimeDependencies, dep.Name)
	}
	if res.ReceiptPath, err = manifest.WriteReceipt(receipt); err != nil {
		return fail("receipt", err)
	}
	res.Receipt = &receipt
	log.Infof("installed %s %s: %d files", d.Name, res.Version, len(res.Files))

	if opts.SkipTests {
		res.Test = formulatest.Report{Package: d.Name, Skipped: true}
		return res, nil
	}
	res.Test = formulatest.Run(ctx, d, layout, i.Executor)
	if !res.Test.Skipped && !res.Test.Failed() {
		res.Stage = StageTested
	}
	if res.Test.Failed() {
		log.Warnf("%v; the install is left in place", res.Test.Err())
	}
	return res, nil
}

func (i *Installer) fetch(ctx context.Context, d *config.PackageDescriptor) (string, error) {
	cacheDir, err := i.helpers().CreateCacheDir()
	if err != nil {
		return "", err
	}
	return i.fetcher().FetchArchive(ctx, d.URL, cacheDir, d.ArchiveName())
}

// verify checks the archive digest and, when configured, its signature. A
// cached archive failing the checksum is removed so the next run fetches it
// again.
func (i *Installer) verify(ctx context.Context, d *config.PackageDescriptor, archivePath string) error {
	log := logger.Logger()

	if err := verify.VerifyChecksum(archivePath, d.SHA256); err != nil {
		var sumErr *verify.ChecksumError
		if errors.As(err, &sumErr) {
			if rmErr := os.Remove(archivePath); rmErr != nil {
				log.Warnf("removing corrupt archive %s: %v", archivePath, rmErr)
			}
		}
		return err
	}
	log.Infof("checksum verified for %s", archivePath)

	if d.Signature == nil {
		return nil
	}
	cacheDir, err := i.helpers().CreateCacheDir()
	if err != nil {
		return err
	}
	sigPath, err := i.fetcher().FetchArchive(ctx, d.Signature.URL, cacheDir, d.ArchiveName()+".sig")
	if err != nil {
		return fmt.Errorf("fetching signature: %w", err)
	}
	if err := verify.VerifySignature(archivePath, sigPath, d.SignatureKeyPath()); err != nil {
		if rmErr := os.Remove(sigPath); rmErr != nil {
			log.Warnf("removing rejected signature %s: %v", sigPath, rmErr)
		}
		return err
	}
	log.Infof("signature verified for %s", archivePath)
	return nil
}

// Fetch downloads and verifies the archive of d without building it.
func (i *Installer) Fetch(ctx context.Context, d *config.PackageDescriptor) (string, error) {
	path, err := i.fetch(ctx, d)
	if err != nil {
		return "", &StageError{Op: "fetch", Reached: StagePending, Err: err}
	}
	if err := i.verify(ctx, d, path); err != nil {
		return "", &StageError{Op: "verify", Reached: StageFetched, Err: err}
	}
	return path, nil
}

// FetchAll downloads the archives of ds concurrently and verifies each.
// It returns the verified paths keyed by package name.
func (i *Installer) FetchAll(ctx context.Context, ds []*config.PackageDescriptor) (map[string]string, error) {
	cacheDir, err := i.helpers().CreateCacheDir()
	if err != nil {
		return nil, err
	}

	jobs := make([]pkgfetcher.Job, 0, len(ds))
	for _, d := range ds {
		jobs = append(jobs, pkgfetcher.Job{URL: d.URL, Name: d.ArchiveName()})
	}
	byURL, err := i.fetcher().FetchPackages(ctx, jobs, cacheDir, i.helpers().Workers())
	if err != nil {
		return nil, &StageError{Op: "fetch", Reached: StagePending, Err: err}
	}

	out := make(map[string]string, len(ds))
	for _, d := range ds {
		path := byURL[d.URL]
		if err := i.verify(ctx, d, path); err != nil {
			return out, &StageError{Op: "verify", Reached: StageFetched, Err: fmt.Errorf("%s: %w", d.Name, err)}
		}
		out[d.Name] = path
	}
	return out, nil
}

// Test runs the post-install tests of an installed package.
func (i *Installer) Test(ctx context.Context, d *config.PackageDescriptor) (formulatest.Report, error) {
	layout, err := i.Layout()
	if err != nil {
		return formulatest.Report{}, err
	}
	if _, err := manifest.ReadReceipt(layout.Prefix, d.Name); err != nil {
		return formulatest.Report{}, err
	}
	return formulatest.Run(ctx, d, layout, i.Executor), nil
}

// Uninstall removes an installed package and its receipt.
func (i *Installer) Uninstall(name string) (manifest.InstallReceipt, error) {
	layout, err := i.Layout()
	if err != nil {
		return manifest.InstallReceipt{}, err
	}
	return install.Remove(layout.Prefix, name)
}

// Installed lists the receipts under the configured prefix.
func (i *Installer) Installed() ([]manifest.InstallReceipt, error) {
	layout, err := i.Layout()
	if err != nil {
		return nil, err
	}
	return manifest.ListReceipts(layout.Prefix)
}
