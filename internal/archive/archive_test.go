package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

type entry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

var sourceTree = []entry{
	{name: "macpine-v.01/", typeflag: tar.TypeDir, mode: 0755},
	{name: "macpine-v.01/Makefile", body: "all:\n\tgo build\n", mode: 0644},
	{name: "macpine-v.01/scripts/run.sh", body: "#!/bin/sh\necho hi\n", mode: 0755},
	{name: "macpine-v.01/scripts/current", typeflag: tar.TypeSymlink, linkname: "run.sh"},
}

func buildTar(t *testing.T, w io.Writer, entries []entry) {
	t.Helper()
	tw := tar.NewWriter(w)
	// pax global header as written by git archive
	if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeXGlobalHeader, Name: "pax_global_header",
		PAXRecords: map[string]string{"comment": "0123456789abcdef"}}); err != nil {
		t.Fatalf("write pax header: %v", err)
	}
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode, Typeflag: e.typeflag, Linkname: e.linkname}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", e.name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("write body %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
}

func writeArchive(t *testing.T, dir, name string, entries []entry) string {
	t.Helper()
	var buf bytes.Buffer

	format, _ := DetectFormat(name)
	switch format {
	case FormatTar:
		buildTar(t, &buf, entries)
	case FormatTarGz:
		gw := gzip.NewWriter(&buf)
		buildTar(t, gw, entries)
		if err := gw.Close(); err != nil {
			t.Fatalf("close gzip: %v", err)
		}
	case FormatTarXz:
		xw, err := xz.NewWriter(&buf)
		if err != nil {
			t.Fatalf("xz writer: %v", err)
		}
		buildTar(t, xw, entries)
		if err := xw.Close(); err != nil {
			t.Fatalf("close xz: %v", err)
		}
	case FormatTarZst:
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		buildTar(t, zw, entries)
		if err := zw.Close(); err != nil {
			t.Fatalf("close zstd: %v", err)
		}
	case FormatZip:
		zw := zip.NewWriter(&buf)
		for _, e := range entries {
			if e.typeflag == tar.TypeDir || e.typeflag == tar.TypeSymlink {
				continue
			}
			fh := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
			fh.SetMode(os.FileMode(e.mode))
			w, err := zw.CreateHeader(fh)
			if err != nil {
				t.Fatalf("zip entry %s: %v", e.name, err)
			}
			if _, err := w.Write([]byte(e.body)); err != nil {
				t.Fatalf("zip write %s: %v", e.name, err)
			}
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("close zip: %v", err)
		}
	default:
		t.Fatalf("unsupported test archive %s", name)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		ext    string
	}{
		{"https://github.com/beringresearch/macpine/archive/refs/tags/v.01.tar.gz", FormatTarGz, ".tar.gz"},
		{"src.TGZ", FormatTarGz, ".TGZ"},
		{"src.tar.xz", FormatTarXz, ".tar.xz"},
		{"src.tar.zst", FormatTarZst, ".tar.zst"},
		{"src.zip", FormatZip, ".zip"},
		{"src.tar", FormatTar, ".tar"},
		{"src.rpm", FormatUnknown, ""},
	}
	for _, tt := range tests {
		format, ext := DetectFormat(tt.name)
		if format != tt.format || ext != tt.ext {
			t.Errorf("DetectFormat(%q) = %s, %q; want %s, %q", tt.name, format, ext, tt.format, tt.ext)
		}
	}
}

func TestExtractFormats(t *testing.T) {
	for _, name := range []string{"src.tar", "src.tar.gz", "src.tar.xz", "src.tar.zst", "src.zip"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeArchive(t, dir, name, sourceTree)

			root, err := Extract(path, filepath.Join(dir, "out"))
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if filepath.Base(root) != "macpine-v.01" {
				t.Errorf("expected single top-level dir as root, got %s", root)
			}

			data, err := os.ReadFile(filepath.Join(root, "Makefile"))
			if err != nil {
				t.Fatalf("reading Makefile: %v", err)
			}
			if !strings.Contains(string(data), "go build") {
				t.Errorf("unexpected Makefile content %q", data)
			}

			info, err := os.Stat(filepath.Join(root, "scripts", "run.sh"))
			if err != nil {
				t.Fatalf("stat run.sh: %v", err)
			}
			if info.Mode().Perm()&0100 == 0 {
				t.Errorf("expected executable bit preserved, got %s", info.Mode())
			}

			if name != "src.zip" {
				link, err := os.Readlink(filepath.Join(root, "scripts", "current"))
				if err != nil {
					t.Fatalf("readlink: %v", err)
				}
				if link != "run.sh" {
					t.Errorf("expected symlink to run.sh, got %s", link)
				}
			}
		})
	}
}

func TestExtractMultipleTopLevelEntries(t *testing.T) {
	dir := t.TempDir()
	path := writeArchive(t, dir, "flat.tar.gz", []entry{
		{name: "Makefile", body: "all:\n", mode: 0644},
		{name: "README", body: "readme", mode: 0644},
	})
	out := filepath.Join(dir, "out")
	root, err := Extract(path, out)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if root != out {
		t.Errorf("expected extract dir as root, got %s", root)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
	}{
		{"dotdot_path", []entry{{name: "../evil", body: "x", mode: 0644}}},
		{"absolute_symlink", []entry{{name: "pkg/link", typeflag: tar.TypeSymlink, linkname: "/etc/passwd"}}},
		{"escaping_symlink", []entry{{name: "pkg/link", typeflag: tar.TypeSymlink, linkname: "../../outside"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeArchive(t, dir, "bad.tar.gz", tt.entries)
			if _, err := Extract(path, filepath.Join(dir, "out")); err == nil {
				t.Error("expected extraction to be rejected")
			}
		})
	}
}

func TestExtractUnknownFormat(t *testing.T) {
	if _, err := Extract("/tmp/pkg.rpm", t.TempDir()); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.tar.gz")
	if err := os.WriteFile(path, []byte("definitely not gzip"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Extract(path, filepath.Join(dir, "out")); err == nil {
		t.Error("expected error for corrupt archive")
	}
}
