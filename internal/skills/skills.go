// Package skills loads skill descriptors from the workspace skills/ directory
// and exposes them as injectable prompt fragments for the context builder.
package skills

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// NamePattern is the validation regex for skill names, shared by the
// skill-CRUD tools: lowercase, starts with a letter, up to 32 chars.
var NamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

// frontmatter is the YAML frontmatter structure of a SKILL.md file.
type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Always      bool   `yaml:"always"`
	Requires    struct {
		Bins []string `yaml:"bins"`
		Env  []string `yaml:"env"`
	} `yaml:"requires"`
}

// Manager scans <workspace>/skills/ and builds injectable prompt fragments.
type Manager struct {
	workspace string
	skillsDir string
}

// NewManager creates a skills Manager rooted at workspace.
func NewManager(workspace string) *Manager {
	return &Manager{
		workspace: workspace,
		skillsDir: filepath.Join(workspace, "skills"),
	}
}

// List returns all available skills. If filterUnavailable is true, skills
// whose declared requirements (bins, env vars) are unmet are excluded.
func (m *Manager) List(filterUnavailable bool) []schema.SkillInfo {
	entries, err := os.ReadDir(m.skillsDir)
	if err != nil {
		return nil
	}

	var out []schema.SkillInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(m.skillsDir, e.Name(), "SKILL.md")
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if filterUnavailable {
			fm := m.frontmatterOf(e.Name())
			if !m.requirementsMet(fm) {
				continue
			}
		}
		out = append(out, schema.SkillInfo{Name: e.Name(), Path: p, Source: "workspace"})
	}
	return out
}

// Load returns the raw content of a skill's SKILL.md, or "".
func (m *Manager) Load(name string) string {
	p := filepath.Join(m.skillsDir, name, "SKILL.md")
	data, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// LoadForContext loads a set of named skills and formats them for inclusion
// in the system prompt, frontmatter stripped.
func (m *Manager) LoadForContext(names []string) string {
	var parts []string
	for _, name := range names {
		content := m.Load(name)
		if content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", name, stripFrontmatter(content)))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Summary returns a short bullet list of all available skills and their
// descriptions, for injection into the context builder's skills section.
func (m *Manager) Summary() string {
	all := m.List(false)
	if len(all) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, s := range all {
		fm := m.frontmatterOf(s.Name)
		desc := fm.Description
		if desc == "" {
			desc = s.Name
		}
		available := m.requirementsMet(fm)
		if available {
			fmt.Fprintf(&sb, "- %s: %s\n", s.Name, desc)
		} else {
			fmt.Fprintf(&sb, "- %s: %s (unavailable: %s)\n", s.Name, desc, m.missing(fm))
		}
	}
	return sb.String()
}

// AlwaysOn returns names of skills marked always: true with requirements met.
func (m *Manager) AlwaysOn() []string {
	var out []string
	for _, s := range m.List(true) {
		fm := m.frontmatterOf(s.Name)
		if fm.Always {
			out = append(out, s.Name)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Skill-CRUD, backing the skill.create/read/list/delete tools.

// Create writes a new skill directory with a SKILL.md built from name,
// description, and body. Fails with errs.InvalidArguments if name does not
// match NamePattern, or errs.PermissionDenied if the skill already exists.
func (m *Manager) Create(name, description, body string) error {
	if !NamePattern.MatchString(name) {
		return errs.New(errs.InvalidArguments, "skill name must match ^[a-z][a-z0-9_-]{0,31}$")
	}
	dir := filepath.Join(m.skillsDir, name)
	if _, err := os.Stat(dir); err == nil {
		return errs.New(errs.PermissionDenied, "skill already exists: "+name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.Storage, "create skill dir", err)
	}

	fm := frontmatter{Name: name, Description: description}
	fmBytes, err := yaml.Marshal(fm)
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal frontmatter", err)
	}
	content := "---\n" + string(fmBytes) + "---\n\n" + body + "\n"
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644); err != nil {
		return errs.Wrap(errs.Storage, "write SKILL.md", err)
	}
	return nil
}

// Read returns the raw SKILL.md content for name, or a NotFound error.
func (m *Manager) Read(name string) (string, error) {
	if !NamePattern.MatchString(name) {
		return "", errs.New(errs.InvalidArguments, "invalid skill name")
	}
	content := m.Load(name)
	if content == "" {
		return "", errs.New(errs.NotFound, "skill not found: "+name)
	}
	return content, nil
}

// Delete removes a skill directory non-recursively: it refuses to delete
// directories containing anything other than SKILL.md.
func (m *Manager) Delete(name string) error {
	if !NamePattern.MatchString(name) {
		return errs.New(errs.InvalidArguments, "invalid skill name")
	}
	dir := filepath.Join(m.skillsDir, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errs.New(errs.NotFound, "skill not found: "+name)
	}
	for _, e := range entries {
		if e.Name() != "SKILL.md" {
			return errs.New(errs.PermissionDenied, "skill directory contains extra files, refusing non-recursive delete")
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return errs.Wrap(errs.Storage, "delete skill", err)
	}
	return nil
}

// ---------------------------------------------------------------------------

func (m *Manager) frontmatterOf(name string) frontmatter {
	content := m.Load(name)
	if content == "" || !strings.HasPrefix(content, "---") {
		return frontmatter{}
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return frontmatter{}
	}
	var fm frontmatter
	_ = yaml.Unmarshal([]byte(rest[:end]), &fm)
	return fm
}

func (m *Manager) requirementsMet(fm frontmatter) bool {
	for _, bin := range fm.Requires.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	for _, env := range fm.Requires.Env {
		if os.Getenv(env) == "" {
			return false
		}
	}
	return true
}

func (m *Manager) missing(fm frontmatter) string {
	var parts []string
	for _, bin := range fm.Requires.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			parts = append(parts, "bin:"+bin)
		}
	}
	for _, env := range fm.Requires.Env {
		if os.Getenv(env) == "" {
			parts = append(parts, "env:"+env)
		}
	}
	return strings.Join(parts, ", ")
}

func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	rest := content[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content
	}
	return strings.TrimSpace(rest[end+4:])
}
