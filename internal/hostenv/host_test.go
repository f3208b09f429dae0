// SPDX-License-Identifier: MPL-2.0

package hostenv

import (
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "missing version", opts: Options{RootDir: "x"}, wantErr: true},
		{name: "bad version", opts: Options{Version: "two", RootDir: "x"}, wantErr: true},
		{name: "missing root", opts: Options{Version: "2.14.0"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.opts); (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	h, err := New(Options{Version: "2.14.0", RootDir: filepath.Join(t.TempDir(), "root")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer h.Close()

	if _, ok := h.Dispatcher.(Inline); !ok {
		t.Errorf("Dispatcher = %T, want Inline", h.Dispatcher)
	}
	if _, ok := h.Factory.(HeadlessFactory); !ok {
		t.Errorf("Factory = %T, want HeadlessFactory", h.Factory)
	}
	if h.PassiveScanRules == nil || h.Logger == nil || h.Root == nil {
		t.Error("New() left a default unset")
	}

	noPassive, err := New(Options{Version: "2.14.0", RootDir: t.TempDir(), NoPassiveScanner: true})
	if err != nil {
		t.Fatal(err)
	}
	if noPassive.PassiveScanRules != nil {
		t.Error("PassiveScanRules should be nil without a passive scanner")
	}
}
