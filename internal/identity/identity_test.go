package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func fakeGit(vals map[string]string) func(string, string) (string, error) {
	return func(_, key string) (string, error) {
		if v, ok := vals[key]; ok {
			return v, nil
		}
		return "", errors.New("exit status 1")
	}
}

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestDetect(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		git     map[string]string
		env     map[string]string
		wantID  string
		wantSrc string
		wantErr bool
	}{
		{"git email", map[string]string{"user.email": " ken@example.com\n", "user.name": "Ken"}, map[string]string{"USER": "kp"}, "ken@example.com", "git", false},
		{"user fallback", nil, map[string]string{"USER": "kp"}, "kp", "env", false},
		{"blank email", map[string]string{"user.email": "  "}, map[string]string{"USER": "kp"}, "kp", "env", false},
		{"nothing", nil, nil, "", "", true},
	}
	for _, tt := range tests {
		d := Detector{GitConfig: fakeGit(tt.git), Getenv: env(tt.env)}
		op, err := d.Detect()
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownOperator) {
				t.Errorf("%s: got %v, want ErrUnknownOperator", tt.name, err)
			}
			continue
		}
		if err != nil || op.ID != tt.wantID || op.Source != tt.wantSrc {
			t.Errorf("%s: got %+v %v", tt.name, op, err)
		}
	}
}

func TestResolve_configuredWins(t *testing.T) {
	t.Parallel()
	d := Detector{GitConfig: fakeGit(map[string]string{"user.email": "git@example.com"})}
	op, err := d.Resolve(" ana ")
	if err != nil || op.ID != "ana" || op.Source != "config" {
		t.Fatalf("Resolve: %+v %v", op, err)
	}
	op, err = d.Resolve("")
	if err != nil || op.ID != "git@example.com" {
		t.Fatalf("Resolve detected: %+v %v", op, err)
	}
}

func TestMemberPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		id   string
		want string
	}{
		{"alice", "alice.yaml"},
		{"Alice Bob", "alice_bob.yaml"},
		{"a/b", "a_b.yaml"},
		{"  ", "default.yaml"},
	}
	for _, tt := range tests {
		got := MemberPath("/home", tt.id)
		if filepath.Base(got) != tt.want || filepath.Dir(got) != MembersDir("/home") {
			t.Errorf("MemberPath(%q) = %q, want base %q", tt.id, got, tt.want)
		}
	}
}

func TestSaveLoadList(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if list, err := List(dir); err != nil || len(list) != 0 {
		t.Fatalf("List empty: %v %v", list, err)
	}
	if got, err := Load(dir, "nobody"); err != nil || got != nil {
		t.Fatalf("Load missing: %v %v", got, err)
	}
	for _, op := range []Operator{{ID: "ken@example.com", Name: "Ken", Source: "git"}, {ID: "ana", Source: "env"}} {
		if err := Save(dir, op); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(MembersDir(dir), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir, "ken@example.com")
	if err != nil || got == nil || got.Name != "Ken" {
		t.Fatalf("Load: %+v %v", got, err)
	}
	list, err := List(dir)
	if err != nil || len(list) != 2 || list[0].ID != "ana" {
		t.Fatalf("List: %+v %v", list, err)
	}
}
