// SPDX-License-Identifier: MPL-2.0

package addon

import (
	"errors"
	"testing"
)

func TestStatusCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusAvailable, StatusDownloading, true},
		{StatusAvailable, StatusDownloaded, true},
		{StatusAvailable, StatusInstalled, false},
		{StatusDownloading, StatusAvailable, true},
		{StatusDownloading, StatusDownloaded, true},
		{StatusDownloaded, StatusInstalled, true},
		{StatusInstalled, StatusSoftUninstalled, true},
		{StatusSoftUninstalled, StatusInstalled, true},
		{StatusInstalled, StatusUninstalled, true},
		{StatusSoftUninstalled, StatusUninstalled, true},
		{StatusUninstalled, StatusInstalled, false},
		{StatusInstalled, StatusDownloading, false},
		{StatusInstalled, StatusInstalled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddOnWithStatus(t *testing.T) {
	t.Parallel()

	a := &AddOn{ID: "alpha", Version: MustParseVersion("1.0.0"), Status: StatusUninstalled}
	_, err := a.WithStatus(StatusInstalled)

	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("WithStatus() error = %v, want *TransitionError", err)
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Error("TransitionError must unwrap to ErrInvalidTransition")
	}
	if te.From != StatusUninstalled || te.To != StatusInstalled {
		t.Errorf("TransitionError = %+v", te)
	}
	if a.Status != StatusUninstalled {
		t.Error("WithStatus must not modify the receiver")
	}
}

func TestStatusHasLoadedComponents(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusInstalled, StatusSoftUninstalled} {
		if !s.HasLoadedComponents() {
			t.Errorf("%s should report loaded components", s)
		}
	}
	for _, s := range []Status{StatusAvailable, StatusDownloading, StatusDownloaded, StatusUninstalled} {
		if s.HasLoadedComponents() {
			t.Errorf("%s should not report loaded components", s)
		}
	}
	if Status("bogus").IsValid() {
		t.Error("unknown status reported valid")
	}
}
