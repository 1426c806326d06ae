package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
)

// Format identifies a source archive container.
type Format int

const (
	FormatUnknown Format = iota
	FormatTar
	FormatTarGz
	FormatTarXz
	FormatTarZst
	FormatZip
)

func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	case FormatTarXz:
		return "tar.xz"
	case FormatTarZst:
		return "tar.zst"
	case FormatZip:
		return "zip"
	default:
		return "unknown"
	}
}

// longest suffixes first
var extensions = []struct {
	ext    string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tar.xz", FormatTarXz},
	{".tar.zst", FormatTarZst},
	{".tgz", FormatTarGz},
	{".txz", FormatTarXz},
	{".tzst", FormatTarZst},
	{".zip", FormatZip},
	{".tar", FormatTar},
}

// DetectFormat returns the archive format and matching extension for a file
// name or URL path.
func DetectFormat(name string) (Format, string) {
	lower := strings.ToLower(name)
	for _, e := range extensions {
		if strings.HasSuffix(lower, e.ext) {
			return e.format, name[len(name)-len(e.ext):]
		}
	}
	return FormatUnknown, ""
}

// Extract unpacks archivePath into destDir and returns the source root: the
// single top-level directory when the archive has exactly one, destDir
// otherwise.
func Extract(archivePath, destDir string) (string, error) {
	format, _ := DetectFormat(archivePath)
	if format == FormatUnknown {
		return "", fmt.Errorf("unsupported archive format: %s", filepath.Base(archivePath))
	}
	return ExtractAs(archivePath, format, destDir)
}

// ExtractAs unpacks archivePath as the given format.
func ExtractAs(archivePath string, format Format, destDir string) (string, error) {
	log := logger.Logger()

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("resolving extract directory: %w", err)
	}
	if err := os.MkdirAll(absDest, 0755); err != nil {
		return "", fmt.Errorf("creating extract directory %s: %w", absDest, err)
	}

	log.Infof("extracting %s (%s) to %s", filepath.Base(archivePath), format, absDest)

	if format == FormatZip {
		err = extractZip(archivePath, absDest)
	} else {
		err = extractTarFile(archivePath, format, absDest)
	}
	if err != nil {
		return "", err
	}
	return sourceRoot(absDest)
}

func extractTarFile(archivePath string, format Format, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xr
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case FormatTar:
	default:
		return fmt.Errorf("unsupported tar format: %s", format)
	}

	return extractTar(tar.NewReader(r), destDir)
}

func extractTar(tr *tar.Reader, destDir string) error {
	log := logger.Logger()
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(hdr.FileInfo().Mode())); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := makeSymlink(destDir, target, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			linkTarget, err := safeJoin(destDir, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("creating directory for %s: %w", target, err)
			}
			if err := os.Link(linkTarget, target); err != nil {
				return fmt.Errorf("creating hard link %s: %w", target, err)
			}
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
			// GitHub tarballs carry a pax header with the commit id
		default:
			log.Debugf("skipping unsupported tar entry %s (type %c)", hdr.Name, hdr.Typeflag)
		}
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		target, err := safeJoin(destDir, zf.Name)
		if err != nil {
			return err
		}
		mode := zf.Mode()

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, dirMode(mode)); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("opening zip entry %s: %w", zf.Name, err)
		}
		if mode&os.ModeSymlink != 0 {
			link, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("reading symlink entry %s: %w", zf.Name, err)
			}
			if err := makeSymlink(destDir, target, string(link)); err != nil {
				return err
			}
			continue
		}
		err = writeFile(target, rc, mode)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// safeJoin joins name onto root and rejects results outside root.
func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction directory", name)
	}
	return target, nil
}

func makeSymlink(root, target, linkname string) error {
	resolved := filepath.Clean(linkname)
	if !filepath.IsAbs(linkname) {
		resolved = filepath.Join(filepath.Dir(target), linkname)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return fmt.Errorf("symlink %s -> %s escapes extraction directory", target, linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", target, err)
	}
	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("creating symlink %s: %w", target, err)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode(mode))
	if err != nil {
		return fmt.Errorf("creating file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing file %s: %w", target, err)
	}
	return out.Close()
}

func fileMode(m os.FileMode) os.FileMode {
	perm := m.Perm()
	if perm == 0 {
		return 0644
	}
	return perm
}

func dirMode(m os.FileMode) os.FileMode {
	return fileMode(m) | 0700
}

func sourceRoot(destDir string) (string, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", fmt.Errorf("reading extract directory: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(destDir, entries[0].Name()), nil
	}
	return destDir, nil
}
