// Package policy restricts which models and fields the import engine may touch.
package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/wholesale/policy.yaml"

var ErrPolicyNotFound = errors.New("wholesale policy not found")

type policyFile struct {
	Version       int      `yaml:"version"`
	AllowedModels []string `yaml:"allowed_models"`
	DeniedFields  []string `yaml:"denied_fields"`
}

type Policy struct {
	allowed      map[string]struct{}
	deniedGlobal map[string]struct{}
	denied       map[string]map[string]struct{}
}

// New builds a policy; denied entries are either "Model.field" or a bare
// field name denied on every model.
func New(allowedModels, deniedFields []string) (*Policy, error) {
	p := &Policy{
		allowed:      make(map[string]struct{}, len(allowedModels)),
		deniedGlobal: map[string]struct{}{},
		denied:       map[string]map[string]struct{}{},
	}
	for _, m := range allowedModels {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, fmt.Errorf("empty allowed_models entry")
		}
		p.allowed[m] = struct{}{}
	}
	for _, d := range deniedFields {
		d = strings.TrimSpace(d)
		if d == "" {
			return nil, fmt.Errorf("empty denied_fields entry")
		}
		model, field, ok := strings.Cut(d, ".")
		if !ok {
			p.deniedGlobal[d] = struct{}{}
			continue
		}
		if model == "" || field == "" || strings.Contains(field, ".") {
			return nil, fmt.Errorf("invalid denied_fields entry %q (expected Model.field or field)", d)
		}
		if p.denied[model] == nil {
			p.denied[model] = map[string]struct{}{}
		}
		p.denied[model][field] = struct{}{}
	}
	return p, nil
}

func Parse(raw []byte) (*Policy, error) {
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("unsupported policy version: %d", file.Version)
	}
	return New(file.AllowedModels, file.DeniedFields)
}

func Load(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		path = ResolvePath(DefaultPath)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, path)
		}
		return nil, err
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ResolvePath anchors a relative path at the enclosing go.mod root when the
// file is not found relative to the working directory.
func ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if wd, err := os.Getwd(); err == nil {
		if root, ok := findGoModRoot(wd); ok {
			abs := filepath.Join(root, filepath.FromSlash(path))
			if _, statErr := os.Stat(abs); statErr == nil {
				return abs
			}
		}
	}
	return filepath.FromSlash(path)
}

func findGoModRoot(start string) (string, bool) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func (p *Policy) ModelAllowed(model string) bool {
	_, ok := p.allowed[model]
	return ok
}

func (p *Policy) FieldAllowed(model, field string) bool {
	if _, ok := p.deniedGlobal[field]; ok {
		return false
	}
	if fields, ok := p.denied[model]; ok {
		if _, denied := fields[field]; denied {
			return false
		}
	}
	return true
}

func (p *Policy) AllowedModels() []string {
	out := make([]string, 0, len(p.allowed))
	for m := range p.allowed {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
