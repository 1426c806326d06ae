package install

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-edge-platform/pkg-installer/internal/config"
	"github.com/open-edge-platform/pkg-installer/internal/config/manifest"
	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
	"github.com/spf13/afero"
)

// Layout maps install step destinations to directories under a prefix.
type Layout struct {
	Prefix string
}

// NewLayout returns the layout rooted at prefix.
func NewLayout(prefix string) Layout {
	return Layout{Prefix: filepath.Clean(prefix)}
}

// Dir resolves a destination name such as "bin" to its directory.
func (l Layout) Dir(name string) (string, error) {
	switch name {
	case config.DirPrefix:
		return l.Prefix, nil
	case config.DirBin, config.DirShare, config.DirLib, config.DirLibexec, config.DirEtc:
		return filepath.Join(l.Prefix, name), nil
	}
	return "", fmt.Errorf("unknown install destination %q", name)
}

// Bin returns the bin directory.
func (l Layout) Bin() string { return filepath.Join(l.Prefix, config.DirBin) }

// Share returns the share directory.
func (l Layout) Share() string { return filepath.Join(l.Prefix, config.DirShare) }

// Placeholders returns the substitutions available to test commands.
func (l Layout) Placeholders() map[string]string {
	return map[string]string{
		"{prefix}": l.Prefix,
		"{bin}":    l.Bin(),
		"{share}":  l.Share(),
	}
}

// CopyError is returned when an install step cannot place its files.
type CopyError struct {
	Step config.InstallStep
	Path string
	Err  error
}

func (e *CopyError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("install step %s -> %s: %s: %v", e.Step.From, e.Step.To, e.Path, e.Err)
	}
	return fmt.Sprintf("install step %s -> %s: %v", e.Step.From, e.Step.To, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// ErrNoMatch is wrapped by a CopyError whose source pattern matched nothing.
var ErrNoMatch = errors.New("no files match")

// Copier places build output under a prefix.
type Copier struct {
	Fs afero.Fs
}

// NewCopier returns a copier over fs, or the host filesystem when fs is nil.
func NewCopier(fs afero.Fs) *Copier {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Copier{Fs: fs}
}

// Apply runs the install steps on the host filesystem.
func Apply(sourceDir string, layout Layout, steps []config.InstallStep) ([]string, error) {
	return NewCopier(nil).Apply(sourceDir, layout, steps)
}

// Apply runs steps in order, copying every match of each step's source
// pattern into its destination directory. It returns the installed files
// relative to the prefix, sorted. The first failing step stops the run.
func (c *Copier) Apply(sourceDir string, layout Layout, steps []config.InstallStep) ([]string, error) {
	log := logger.Logger()
	installed := make(map[string]struct{})

	for _, step := range steps {
		destDir, err := layout.Dir(step.To)
		if err != nil {
			return nil, &CopyError{Step: step, Err: err}
		}
		pattern := filepath.Join(sourceDir, filepath.FromSlash(step.From))
		matches, err := afero.Glob(c.Fs, pattern)
		if err != nil {
			return nil, &CopyError{Step: step, Err: err}
		}
		if len(matches) == 0 {
			return nil, &CopyError{Step: step, Path: pattern, Err: ErrNoMatch}
		}
		sort.Strings(matches)

		if err := c.Fs.MkdirAll(destDir, 0755); err != nil {
			return nil, &CopyError{Step: step, Path: destDir, Err: err}
		}
		for _, src := range matches {
			dst := filepath.Join(destDir, filepath.Base(src))
			files, err := c.copyTree(src, dst)
			if err != nil {
				return nil, &CopyError{Step: step, Path: src, Err: err}
			}
			for _, f := range files {
				rel, err := filepath.Rel(layout.Prefix, f)
				if err != nil {
					return nil, &CopyError{Step: step, Path: f, Err: err}
				}
				installed[filepath.ToSlash(rel)] = struct{}{}
			}
		}
		log.Debugf("install step %s -> %s placed %d entries", step.From, step.To, len(matches))
	}

	out := make([]string, 0, len(installed))
	for f := range installed {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Copier) lstat(path string) (os.FileInfo, error) {
	if ls, ok := c.Fs.(afero.Lstater); ok {
		info, _, err := ls.LstatIfPossible(path)
		return info, err
	}
	return c.Fs.Stat(path)
}

// copyTree copies src to dst and returns the non-directory paths it wrote.
func (c *Copier) copyTree(src, dst string) ([]string, error) {
	var written []string
	err := afero.Walk(c.Fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := dst
		if rel != "." {
			target = filepath.Join(dst, rel)
		}

		switch {
		case info.IsDir():
			return c.Fs.MkdirAll(target, info.Mode().Perm()|0700)
		case info.Mode()&os.ModeSymlink != 0:
			if err := c.copySymlink(path, target); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := c.copyFile(path, target, info.Mode().Perm()); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported file type %s", info.Mode().Type())
		}
		written = append(written, target)
		return nil
	})
	return written, err
}

func (c *Copier) copyFile(src, dst string, perm os.FileMode) error {
	in, err := c.Fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := c.Fs.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	out, err := c.Fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile is subject to the umask
	return c.Fs.Chmod(dst, perm)
}

func (c *Copier) copySymlink(src, dst string) error {
	reader, ok := c.Fs.(afero.LinkReader)
	linker, ok2 := c.Fs.(afero.Linker)
	if !ok || !ok2 {
		return fmt.Errorf("filesystem %s does not support symlinks", c.Fs.Name())
	}
	target, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return err
	}
	if filepath.IsAbs(target) {
		return fmt.Errorf("absolute symlink %s -> %s", src, target)
	}
	if err := c.Fs.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	return linker.SymlinkIfPossible(target, dst)
}

// Uninstall removes the files recorded in r and prunes directories left
// empty below the layout directories. Missing files are not an error.
func (c *Copier) Uninstall(r manifest.InstallReceipt) error {
	log := logger.Logger()
	layout := NewLayout(r.Prefix)

	keep := map[string]bool{layout.Prefix: true}
	for _, name := range []string{config.DirBin, config.DirShare, config.DirLib, config.DirLibexec, config.DirEtc} {
		dir, _ := layout.Dir(name)
		keep[dir] = true
	}

	dirs := make(map[string]struct{})
	var errs []error
	for _, rel := range r.Files {
		path := filepath.Join(layout.Prefix, filepath.FromSlash(rel))
		if !strings.HasPrefix(path, layout.Prefix+string(filepath.Separator)) {
			errs = append(errs, fmt.Errorf("receipt path %q leaves the prefix", rel))
			continue
		}
		if err := c.Fs.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
			continue
		}
		log.Debugf("removed %s", path)
		for dir := filepath.Dir(path); !keep[dir] && strings.HasPrefix(dir, layout.Prefix); dir = filepath.Dir(dir) {
			dirs[dir] = struct{}{}
		}
	}

	// deepest first so parents are empty by the time they are tried
	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, d := range ordered {
		entries, err := afero.ReadDir(c.Fs, d)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := c.Fs.Remove(d); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("removing %s: %w", d, err))
		}
	}
	return errors.Join(errs...)
}

// RemoveStale removes the files of a previous install of the same package
// that are not in current, and returns them.
func (c *Copier) RemoveStale(prev manifest.InstallReceipt, current []string) ([]string, error) {
	keep := make(map[string]bool, len(current))
	for _, f := range current {
		keep[f] = true
	}
	var stale []string
	for _, f := range prev.Files {
		if !keep[f] {
			stale = append(stale, f)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}
	prev.Files = stale
	return stale, c.Uninstall(prev)
}

// Remove uninstalls the package name from prefix on the host filesystem
// and deletes its receipt.
func Remove(prefix, name string) (manifest.InstallReceipt, error) {
	r, err := manifest.ReadReceipt(prefix, name)
	if err != nil {
		return r, err
	}
	if err := NewCopier(nil).Uninstall(r); err != nil {
		return r, err
	}
	return r, manifest.RemoveReceipt(prefix, name)
}
