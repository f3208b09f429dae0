// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/internal/download"
	"github.com/invowk/addonctl/internal/fetch"
	"github.com/invowk/addonctl/internal/hostenv"
	"github.com/invowk/addonctl/internal/lifecycle"
	"github.com/invowk/addonctl/pkg/addon"
)

func TestGet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id       Id
		wantNil  bool
		contains string
	}{
		{ConfigLoadFailedId, false, "configuration"},
		{CatalogMalformedId, false, "catalog is malformed"},
		{InsecureSourceId, false, "insecure source"},
		{UnsatisfiableDependencyId, false, "cannot be satisfied"},
		{DisplacesDependentsId, false, "remove other add-ons"},
		{NotInstalledId, false, "not installed"},
		{DownloadValidationFailedId, false, "failed verification"},
		{FileConflictId, false, "could not be installed"},
		{PartialUninstallId, false, "partially removed"},
		{HostVersionIncompatibleId, false, "host version"},
		{OutsideRootId, false, "escapes the managed root"},
		{PermissionDeniedId, false, "Permission denied"},
		{Id(9999), true, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.contains, func(t *testing.T) {
			t.Parallel()
			issue := Get(tt.id)
			if tt.wantNil {
				if issue != nil {
					t.Errorf("Get(%d) should return nil", tt.id)
				}
				return
			}
			if issue == nil {
				t.Fatalf("Get(%d) returned nil", tt.id)
			}
			if issue.Id() != tt.id {
				t.Errorf("Id() = %d, want %d", issue.Id(), tt.id)
			}
			if !strings.Contains(string(issue.MarkdownMsg()), tt.contains) {
				t.Errorf("Get(%d).MarkdownMsg() should contain %q", tt.id, tt.contains)
			}
		})
	}
}

func TestValues(t *testing.T) {
	t.Parallel()

	values := Values()
	if got := len(values); got != len(issues) || got != int(PermissionDeniedId) {
		t.Errorf("Values() returned %d issues, want %d", got, PermissionDeniedId)
	}
	for i, v := range values {
		if v.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, v.Id(), i+1)
		}
	}
}

func TestForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Id
	}{
		{"insecure", &fetch.InsecureSourceError{URL: "http://x", Reason: "scheme"}, InsecureSourceId},
		{"malformed catalog", fmt.Errorf("fetching: %w", addon.ErrMalformedCatalog), CatalogMalformedId},
		{"validation", &download.ValidationError{Path: "a.zap", Check: "hash"}, DownloadValidationFailedId},
		{"unsatisfiable", &depcheck.UnsatisfiableError{AddOn: "B", Dependency: addon.Dependency{ID: "A"}}, UnsatisfiableDependencyId},
		{"displaced", &depcheck.DisplacementError{AddOn: &addon.AddOn{ID: "A", Version: addon.MustParseVersion("2.0.0")}}, DisplacesDependentsId},
		{"partial", &lifecycle.PartialUninstallError{AddOn: "A"}, PartialUninstallId},
		{"outside root wins over conflict", &lifecycle.FileConflictError{AddOn: "A", Path: "../x", Err: hostenv.ErrOutsideRoot}, OutsideRootId},
		{"conflict", &lifecycle.FileConflictError{AddOn: "A", Path: "x", Err: errors.New("is a directory")}, FileConflictId},
		{"permission", &fs.PathError{Op: "open", Path: "/root", Err: fs.ErrPermission}, PermissionDeniedId},
		{"unknown", errors.New("boom"), 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ForError(tt.err)
			if tt.want == 0 {
				if got != nil {
					t.Errorf("ForError() = %d, want nil", got.Id())
				}
				return
			}
			if got == nil || got.Id() != tt.want {
				t.Errorf("ForError() = %v, want issue %d", got, tt.want)
			}
		})
	}
}

func TestActionableError_Guide(t *testing.T) {
	t.Parallel()

	linked := NewErrorContext().WithOperation("load configuration").WithIssue(ConfigLoadFailedId).Build()
	if g := linked.Guide(); g == nil || g.Id() != ConfigLoadFailedId {
		t.Errorf("Guide() = %v, want the linked guide", g)
	}

	derived := &ActionableError{Operation: "install add-on", Cause: fmt.Errorf("install: %w", download.ErrValidationFailure)}
	if g := derived.Guide(); g == nil || g.Id() != DownloadValidationFailedId {
		t.Errorf("Guide() = %v, want the guide of the cause", g)
	}

	if (&ActionableError{Operation: "list add-ons"}).Guide() != nil {
		t.Error("Guide() without cause or link should be nil")
	}
}

func TestIssue_Render(t *testing.T) { //nolint:paralleltest // swaps the package renderer
	originalRender := render
	defer func() { render = originalRender }()
	render = func(in, _ string) (string, error) { return in, nil }

	issue := &Issue{id: Id(100), mdMsg: "# Title", docLinks: []HttpLink{"https://docs.example.com/a"}}
	rendered, err := issue.Render("")
	if err != nil {
		t.Fatalf("Render() returned error: %v", err)
	}
	if !strings.Contains(rendered, "# Title") || !strings.Contains(rendered, "See also") {
		t.Errorf("Render() = %q", rendered)
	}

	links := issue.DocLinks()
	links[0] = "modified"
	if issue.DocLinks()[0] == "modified" {
		t.Error("DocLinks() should return a clone")
	}
}
