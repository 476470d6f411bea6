package security

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	for _, d := range []string{safeDir, unsafeDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}
	symlinkPath := filepath.Join(safeDir, "evil-symlink")
	if err := os.Symlink(unsafeDir, symlinkPath); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		dir       string
		wantError bool
	}{
		{"file in directory", filepath.Join(tmpDir, "profiles.db"), tmpDir, false},
		{"nested file not yet created", filepath.Join(tmpDir, "a", "b", "profiles.db"), tmpDir, false},
		{"dot dot escape", filepath.Join(tmpDir, "..", "profiles.db"), tmpDir, true},
		{"relative escape", "../../../etc/passwd", tmpDir, true},
		{"absolute outside", "/etc/passwd", tmpDir, true},
		{"through symlink", filepath.Join(symlinkPath, "secret.db"), safeDir, true},
		{"symlink itself", symlinkPath, safeDir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, tt.dir)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidatePathWithinDirectory(%q, %q) error = %v, wantError %v", tt.filePath, tt.dir, err, tt.wantError)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"groundstation", "groundstation"},
		{"bench esp32 (desk)", "bench_esp32_desk"},
		{"../../etc/passwd", "etc_passwd"},
		{"...", "unknown"},
		{"", "unknown"},
		{"a__b", "a__b"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBackupPath(t *testing.T) {
	dir := t.TempDir()
	at := time.Unix(1_700_000_000, 0)

	got, err := BackupPath(dir, "/var/lib/ground station.db", at)
	if err != nil {
		t.Fatalf("BackupPath() error = %v", err)
	}
	want := filepath.Join(dir, "ground_station-backup-1700000000.db")
	if got != want {
		t.Errorf("BackupPath() = %q, want %q", got, want)
	}

	got, err = BackupPath(dir, "../..", at)
	if err != nil {
		t.Fatalf("BackupPath() error = %v", err)
	}
	if filepath.Dir(got) != dir {
		t.Errorf("BackupPath() = %q escaped %q", got, dir)
	}
}
