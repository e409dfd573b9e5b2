package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
)

// newRepo creates a repository with one commit of a.txt, or skips without git.
func newRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "ken@example.com"},
		{"config", "user.name", "Ken"},
	} {
		gitCmd(t, dir, args...)
	}
	writeFile(t, dir, "a.txt", "one\n")
	gitCmd(t, dir, "add", "a.txt")
	gitCmd(t, dir, "commit", "-q", "-m", "init")
	return dir
}

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestConfig(t *testing.T) {
	dir := newRepo(t)
	ctx := context.Background()
	got, err := Config(ctx, dir, "user.email")
	if err != nil || got != "ken@example.com" {
		t.Fatalf("Config: %q %v", got, err)
	}
	if _, err := Config(ctx, dir, "plexify.unset"); err == nil {
		t.Error("unset key: want error")
	}
	if _, err := Config(ctx, dir, ""); err == nil {
		t.Error("empty key: want error")
	}
}

func TestChangedFiles(t *testing.T) {
	dir := newRepo(t)
	ctx := context.Background()

	files, err := ChangedFiles(ctx, dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("clean tree: %v", files)
	}

	writeFile(t, dir, "a.txt", "two\n")
	writeFile(t, dir, "sub/b.txt", "new\n")
	writeFile(t, dir, ".gitignore", "*.log\n")
	writeFile(t, dir, "debug.log", "noise\n")

	files, err = ChangedFiles(ctx, filepath.Join(dir, "sub"), "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{".gitignore", "a.txt", "sub/b.txt"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("ChangedFiles = %v, want %v", files, want)
	}
}

func TestChangedFiles_notARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
	if _, err := ChangedFiles(context.Background(), t.TempDir(), ""); err == nil {
		t.Error("want error outside a work tree")
	}
}
