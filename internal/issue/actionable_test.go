// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/invowk/addonctl/internal/depcheck"
	"github.com/invowk/addonctl/internal/download"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{"operation only", &ActionableError{Operation: "load catalog"}, "failed to load catalog"},
		{
			"with resource",
			&ActionableError{Operation: "load catalog", Resource: "https://addons.example.com/catalog.json"},
			"failed to load catalog: https://addons.example.com/catalog.json",
		},
		{"with cause", &ActionableError{Operation: "install add-on", Cause: cause}, "failed to install add-on: connection reset"},
		{
			"full",
			&ActionableError{Operation: "install add-on", Resource: "ascanrules", Cause: cause},
			"failed to install add-on: ascanrules: connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("resolving B: %w", depcheck.ErrUnsatisfiableDependency)
	err := NewErrorContext().WithOperation("install add-on").Wrap(cause).BuildError()

	if !errors.Is(err, depcheck.ErrUnsatisfiableDependency) {
		t.Error("errors.Is should reach the sentinel through the cause")
	}
	if (&ActionableError{Operation: "x"}).Unwrap() != nil {
		t.Error("Unwrap() without cause should be nil")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("verifying A-1.0.0.zap: %w", download.ErrValidationFailure)
	tests := []struct {
		name     string
		err      *ActionableError
		verbose  bool
		contains []string
		excludes []string
	}{
		{
			name:     "plain",
			err:      &ActionableError{Operation: "list add-ons"},
			contains: []string{"failed to list add-ons"},
			excludes: []string{"•", "Error chain", "--verbose"},
		},
		{
			name: "suggestions",
			err: &ActionableError{
				Operation:   "load catalog",
				Suggestions: []string{"Check the network", "Try another catalog URL"},
			},
			contains: []string{"\n\n  • Check the network", "\n  • Try another catalog URL"},
		},
		{
			name:     "guide hint when quiet",
			err:      &ActionableError{Operation: "install add-on", Cause: cause},
			contains: []string{"Run again with --verbose"},
			excludes: []string{"Error chain"},
		},
		{
			name:     "error chain when verbose",
			err:      &ActionableError{Operation: "install add-on", Cause: cause},
			verbose:  true,
			contains: []string{"Error chain:", "1. verifying A-1.0.0.zap", "2. " + download.ErrValidationFailure.Error()},
			excludes: []string{"--verbose"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := tt.err.Format(tt.verbose)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Format() missing %q:\n%s", want, got)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("Format() should not contain %q:\n%s", unwanted, got)
				}
			}
		})
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("A").Build() != nil {
		t.Error("Build() without operation should be nil")
	}
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() without operation = %v, want untyped nil", err)
	}

	cause := errors.New("boom")
	ae := NewErrorContext().
		WithOperation("uninstall add-on").
		WithResource("B").
		WithSuggestion("first").
		WithSuggestions("second", "third").
		WithIssue(PartialUninstallId).
		Wrap(cause).
		Build()
	if ae.Operation != "uninstall add-on" || ae.Resource != "B" || !errors.Is(ae.Cause, cause) {
		t.Errorf("Build() = %+v", ae)
	}
	if len(ae.Suggestions) != 3 || !ae.HasSuggestions() {
		t.Errorf("Suggestions = %v", ae.Suggestions)
	}
	if ae.IssueID != PartialUninstallId || ae.Guide() != Get(PartialUninstallId) {
		t.Errorf("IssueID = %v", ae.IssueID)
	}
}

func TestErrorContext_Reuse(t *testing.T) {
	t.Parallel()

	ec := NewErrorContext().WithOperation("install add-on").WithSuggestion("shared")
	first := ec.WithResource("A").Build()
	second := ec.WithResource("B").WithSuggestion("only B").Build()

	if first.Resource != "A" || len(first.Suggestions) != 1 {
		t.Errorf("first = %+v, later builder calls must not leak into it", first)
	}
	if second.Resource != "B" || len(second.Suggestions) != 2 {
		t.Errorf("second = %+v", second)
	}
}
