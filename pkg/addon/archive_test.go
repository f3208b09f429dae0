// SPDX-License-Identifier: MPL-2.0

package addon_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/invowk/addonctl/internal/testutil/addontest"
	"github.com/invowk/addonctl/pkg/addon"
)

func TestOpenArchive(t *testing.T) {
	t.Parallel()

	want := addontest.New("pscanrules", "12.0.0",
		addontest.DependsOn("commonlib", ">=1.0.0"),
		addontest.WithFiles("scripts/passive/check.js"),
		addontest.WithPassiveScanRules("HeaderCheck"),
		addontest.WithBundle("Messages", "pscanrules"),
		addontest.WithHostRange("2.10.0", ""),
	)
	p := addontest.WriteArchive(t, filepath.Join(t.TempDir(), "pscanrules-release-12.zap"), want,
		map[string]string{"scripts/passive/check.js": "// check"})

	ar, err := addon.OpenArchive(p)
	if err != nil {
		t.Fatalf("OpenArchive() error: %v", err)
	}
	t.Cleanup(func() { _ = ar.Close() })

	got := ar.AddOn()
	if got.ID != want.ID || !got.Version.Equal(want.Version) {
		t.Errorf("manifest = %s, want %s", got, want)
	}
	if got.Status != addon.StatusDownloaded || got.LocalPath != p {
		t.Errorf("status/path = %s, %q", got.Status, got.LocalPath)
	}
	if !got.DependsOn("commonlib") || !got.NotBefore.Equal(want.NotBefore) {
		t.Errorf("manifest lost fields: %+v", got)
	}

	rc, err := ar.Open("scripts/passive/check.js")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "// check" {
		t.Errorf("entry content = %q", body)
	}

	if _, err := ar.Open("missing"); !errors.Is(err, addon.ErrEntryNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrEntryNotFound", err)
	}

	msgs, err := ar.Messages("Messages")
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if msgs["pscanrules.name"] != "pscanrules" {
		t.Errorf("messages = %v", msgs)
	}
}

func TestOpenArchiveMalformed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	notZip := filepath.Join(dir, "bad.zap")
	if err := os.WriteFile(notZip, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := addon.OpenArchive(notZip); err == nil {
		t.Error("expected error for a non-zip file")
	}

	badManifest := filepath.Join(dir, "broken.zap")
	addontest.WriteArchive(t, badManifest, addontest.New("x", "1.0.0"),
		map[string]string{addon.ManifestName: "id = [unterminated"})
	if _, err := addon.OpenArchive(badManifest); !errors.Is(err, addon.ErrMalformedManifest) {
		t.Errorf("OpenArchive(broken) error = %v, want ErrMalformedManifest", err)
	}
}

func TestIsArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := addontest.WriteArchive(t, filepath.Join(dir, "a.zap"), addontest.New("a", "1.0.0"), nil)
	wrongExt := addontest.WriteArchive(t, filepath.Join(dir, "a.jar"), addontest.New("a", "1.0.0"), nil)

	if !addon.IsArchive(good) {
		t.Error("a.zap should be an archive")
	}
	if addon.IsArchive(wrongExt) {
		t.Error("unknown extensions are not archives")
	}
	if addon.IsArchive(filepath.Join(dir, "missing.zap")) {
		t.Error("missing files are not archives")
	}
}
