// Package identity resolves the operator that owns sessions and keeps operator
// profiles under <home>/members.
package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Plexify-AI/plexifybid-sub001/internal/git"
)

// Operator is a human operator. ID is the value sessions are scoped by.
type Operator struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name,omitempty"`
	Email  string `yaml:"email,omitempty"`
	Source string `yaml:"source,omitempty"` // git, env, config
}

// ErrUnknownOperator is returned when no identity source yields an operator.
var ErrUnknownOperator = errors.New("could not determine operator: set --operator, config operator, git user.email, or $USER")

// Detector looks up identity sources. The zero value uses git and the process
// environment.
type Detector struct {
	RepoDir   string
	GitConfig func(repoDir, key string) (string, error)
	Getenv    func(key string) string
}

// Detect returns the operator from git user.email, falling back to $USER.
func (d Detector) Detect() (Operator, error) {
	gitConfig := d.GitConfig
	if gitConfig == nil {
		gitConfig = readGitConfig
	}
	getenv := d.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if email, err := gitConfig(d.RepoDir, "user.email"); err == nil && strings.TrimSpace(email) != "" {
		op := Operator{ID: strings.TrimSpace(email), Email: strings.TrimSpace(email), Source: "git"}
		if name, err := gitConfig(d.RepoDir, "user.name"); err == nil {
			op.Name = strings.TrimSpace(name)
		}
		return op, nil
	}
	if user := strings.TrimSpace(getenv("USER")); user != "" {
		return Operator{ID: user, Name: user, Source: "env"}, nil
	}
	return Operator{}, ErrUnknownOperator
}

// DetectOperator detects the operator using git in the current directory.
func DetectOperator() (Operator, error) {
	return Detector{}.Detect()
}

// Resolve returns configured when set, otherwise what d detects.
func (d Detector) Resolve(configured string) (Operator, error) {
	if c := strings.TrimSpace(configured); c != "" {
		return Operator{ID: c, Source: "config"}, nil
	}
	return d.Detect()
}

func readGitConfig(repoDir, key string) (string, error) {
	return git.Config(context.Background(), repoDir, key)
}

// MembersDir returns <home>/members.
func MembersDir(home string) string {
	return filepath.Join(home, "members")
}

// MemberPath returns <home>/members/<id>.yaml. The id is lowercased with spaces
// and path separators replaced by "_".
func MemberPath(home, id string) string {
	safe := strings.ToLower(strings.TrimSpace(id))
	safe = strings.NewReplacer(" ", "_", "/", "_", `\`, "_").Replace(safe)
	if safe == "" {
		safe = "default"
	}
	return filepath.Join(MembersDir(home), safe+".yaml")
}

// Load reads the member file for id; a missing file yields (nil, nil).
func Load(home, id string) (*Operator, error) {
	data, err := os.ReadFile(MemberPath(home, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var op Operator
	if err := yaml.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// Save writes op to its member file.
func Save(home string, op Operator) error {
	if err := os.MkdirAll(MembersDir(home), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(op)
	if err != nil {
		return err
	}
	return os.WriteFile(MemberPath(home, op.ID), data, 0o644)
}

// List returns every stored member, in file name order.
func List(home string) ([]Operator, error) {
	entries, err := os.ReadDir(MembersDir(home))
	if err != nil {
		if os.IsNotExist(err) {
			return []Operator{}, nil
		}
		return nil, err
	}
	out := []Operator{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(MembersDir(home), e.Name()))
		if err != nil {
			return nil, err
		}
		var op Operator
		if err := yaml.Unmarshal(data, &op); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}
