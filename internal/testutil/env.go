// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"testing"
)

// dirVariables are the variables that take precedence over the home
// directory when per-user config and data directories are resolved.
var dirVariables = []string{"XDG_CONFIG_HOME", "XDG_DATA_HOME", "APPDATA", "LOCALAPPDATA"}

// MustSetenv sets key to value and returns a function restoring the previous
// state. Tests using it must not run in parallel.
func MustSetenv(t testing.TB, key, value string) func() {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	return func() { restoreEnv(t, key, old, had) }
}

// MustUnsetenv unsets key and returns a function restoring its value.
func MustUnsetenv(t testing.TB, key string) func() {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	return func() { restoreEnv(t, key, old, had) }
}

func restoreEnv(t testing.TB, key, value string, had bool) {
	var err error
	if had {
		err = os.Setenv(key, value)
	} else {
		err = os.Unsetenv(key)
	}
	if err != nil {
		t.Errorf("failed to restore env %s: %v", key, err)
	}
}

// SetHomeDir points the home directory at dir: USERPROFILE on Windows,
// HOME elsewhere.
func SetHomeDir(t testing.TB, dir string) func() {
	t.Helper()
	if runtime.GOOS == "windows" {
		return MustSetenv(t, "USERPROFILE", dir)
	}
	return MustSetenv(t, "HOME", dir)
}

// IsolateHome sets the home directory to dir and unsets every variable that
// would override it, so per-user directories resolve below dir. Cleanup is
// registered on t.
func IsolateHome(t testing.TB, dir string) {
	t.Helper()
	t.Cleanup(SetHomeDir(t, dir))
	for _, key := range dirVariables {
		t.Cleanup(MustUnsetenv(t, key))
	}
}
