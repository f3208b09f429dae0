// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/invowk/addonctl/internal/config"
	"github.com/invowk/addonctl/internal/testutil/addontest"
	"github.com/invowk/addonctl/pkg/addon"
)

type (
	// cliEnv is a config file, data directories and a TLS catalog server
	// for one test.
	cliEnv struct {
		t          *testing.T
		srv        *httptest.Server
		dir        string
		configPath string
		stdout     *syncBuffer
		stderr     *syncBuffer

		mu    sync.Mutex
		files map[string][]byte
	}

	// syncBuffer is written by loggers on worker goroutines.
	syncBuffer struct {
		mu  sync.Mutex
		buf bytes.Buffer
	}
)

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func newCLIEnv(t *testing.T, withCatalog bool) *cliEnv {
	t.Helper()

	e := &cliEnv{
		t:      t,
		dir:    t.TempDir(),
		stdout: &syncBuffer{},
		stderr: &syncBuffer{},
		files:  make(map[string][]byte),
	}
	e.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		data, ok := e.files[r.URL.Path]
		e.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(e.srv.Close)

	urls := "[]"
	if withCatalog {
		urls = fmt.Sprintf("[%q]", e.srv.URL+"/catalog.json")
	}
	content := fmt.Sprintf(`host_version: "2.14.0"
managed_root: %q
archive_dir: %q
ledger_path: %q
catalog_urls: %s
downloads: {
	workers: 2
	poll_interval: "5ms"
}
`, filepath.Join(e.dir, "root"), filepath.Join(e.dir, "archives"), filepath.Join(e.dir, "ledger.db"), urls)
	e.configPath = filepath.Join(e.dir, config.ConfigFileName+"."+config.ConfigFileExt)
	if err := os.WriteFile(e.configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return e
}

// app returns an App reading answers from stdin.
func (e *cliEnv) app(stdin string) *App {
	a := NewApp(Dependencies{
		Stdout:     e.stdout,
		Stderr:     e.stderr,
		Stdin:      strings.NewReader(stdin),
		HTTPClient: e.srv.Client(),
	})
	a.configPath = e.configPath
	return a
}

// session opens a session closed at the end of the test.
func (e *cliEnv) session() *session {
	e.t.Helper()
	s, err := e.app("").open(e.t.Context())
	if err != nil {
		e.t.Fatalf("open() error = %v", err)
	}
	e.t.Cleanup(s.Close)
	return s
}

// publish serves the archive of a and returns its catalog entry.
func (e *cliEnv) publish(a *addon.AddOn) *addon.AddOn {
	e.t.Helper()
	entries := make(map[string]string, len(a.Files))
	for _, f := range a.Files {
		entries[f] = a.ID + ":" + f
	}
	data := addontest.ArchiveBytes(e.t, a, entries)
	urlPath := "/addons/" + a.ID + "-" + a.Version.String() + ".zap"

	e.mu.Lock()
	e.files[urlPath] = data
	e.mu.Unlock()

	sum := sha256.Sum256(data)
	remote := a.Clone()
	remote.URL = e.srv.URL + urlPath
	remote.Size = int64(len(data))
	remote.Hash = "SHA-256:" + hex.EncodeToString(sum[:])
	remote.Status = addon.StatusAvailable
	return remote
}

func (e *cliEnv) serveCatalog(addOns ...*addon.AddOn) {
	e.t.Helper()
	data, err := addon.MarshalCatalog(addontest.Catalog(e.t, addOns...))
	if err != nil {
		e.t.Fatal(err)
	}
	e.mu.Lock()
	e.files["/catalog.json"] = data
	e.mu.Unlock()
}

func (e *cliEnv) params(stdin string, yes bool, args ...string) changeParams {
	return changeParams{stdout: e.stdout, stdin: strings.NewReader(stdin), args: args, yes: yes}
}

func TestApp_OpenRestoresInstalledAddOns(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t, true)
	a := e.publish(addontest.New("A", "1.0.0", addontest.WithFiles("lib/a.jar")))
	b := e.publish(addontest.New("B", "1.0.0", addontest.DependsOn("A", ">=1.0.0")))
	e.serveCatalog(a, b)

	first := e.session()
	if err := runInstall(t.Context(), first, e.params("", false, "B")); err != nil {
		t.Fatalf("runInstall() error = %v\nstderr: %s", err, e.stderr)
	}
	first.Close()

	if _, err := os.Stat(filepath.Join(e.dir, "archives", StateFileName)); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	second := e.session()
	if got := second.coord.Installed().IDs(); len(got) != 2 {
		t.Errorf("restored IDs = %v, want [A B]", got)
	}
}

func TestApp_OpenRejectsMissingConfig(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t, false)
	a := e.app("")
	a.configPath = filepath.Join(e.dir, "missing.cue")
	if _, err := a.open(t.Context()); err == nil {
		t.Fatal("open() with a missing config file should fail")
	}
}

func TestNewRootCommand_List(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t, false)
	root := NewRootCommand(e.app(""))
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)
	root.SetArgs([]string{"--config", e.configPath, "list"})

	if err := root.ExecuteContext(t.Context()); err != nil {
		t.Fatalf("Execute() error = %v\nstderr: %s", err, e.stderr)
	}
	if !strings.Contains(e.stdout.String(), "No add-ons installed.") {
		t.Errorf("stdout = %q", e.stdout.String())
	}
}

func TestNewRootCommand_ExitCode(t *testing.T) {
	t.Parallel()

	e := newCLIEnv(t, false)
	root := NewRootCommand(e.app(""))
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)
	root.SetArgs([]string{"--config", e.configPath, "check"})

	err := root.ExecuteContext(t.Context())
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Execute() error = %T %v, want *ExitError", err, err)
	}
	if exitErr.Code != 1 {
		t.Errorf("exit code = %d, want 1", exitErr.Code)
	}
	if !strings.Contains(e.stderr.String(), "catalog_urls") {
		t.Errorf("stderr should suggest configuring catalog_urls, got %q", e.stderr.String())
	}
}
