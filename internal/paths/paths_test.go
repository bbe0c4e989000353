package paths

import (
	"path/filepath"
	"testing"
)

func TestDataDirPrecedence(t *testing.T) {
	env := t.TempDir()
	t.Setenv("SLWRAP_DATA_DIR", env)
	SetDataDirOverride("")
	if got := DataDir(); got != filepath.Clean(env) {
		t.Fatalf("expected env data dir %s, got %s", env, got)
	}

	pinned := t.TempDir()
	SetDataDirOverride(pinned)
	defer SetDataDirOverride("")
	if got := DataDir(); got != pinned {
		t.Fatalf("expected override %s, got %s", pinned, got)
	}
	if got := DatabasePath(""); got != filepath.Join(pinned, "slwrap.db") {
		t.Fatalf("unexpected database path %s", got)
	}
}
