// Package skills loads skill documents: markdown files with YAML
// frontmatter that describe capabilities the host agent can be prompted
// with. Documents are content, not code; they are validated and served,
// never interpreted.
package skills

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("skill not found")

// Skill is one loaded document. Name comes from the frontmatter and is
// unique across the library.
type Skill struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Channels    []string          `json:"channels,omitempty" yaml:"channels"`
	Hints       map[string]string `json:"hints,omitempty" yaml:"hints"`
	Body        string            `json:"body" yaml:"-"`
	Path        string            `json:"-" yaml:"-"`
}

// AppliesTo reports whether the skill is usable on the given channel
// type. An empty channels list applies everywhere.
func (s Skill) AppliesTo(channelType string) bool {
	if len(s.Channels) == 0 {
		return true
	}
	for _, c := range s.Channels {
		if strings.EqualFold(strings.TrimSpace(c), channelType) {
			return true
		}
	}
	return false
}

// Library holds the loaded documents. It is immutable after Load.
type Library struct {
	logger *slog.Logger
	skills map[string]Skill
	order  []string
}

// Load reads every <dir>/<slug>/SKILL.md document. A missing or empty
// directory yields an empty library; malformed documents fail the load
// so problems surface at boot rather than on first request.
func Load(log *slog.Logger, dir string) (*Library, error) {
	if log == nil {
		log = slog.Default()
	}
	lib := &Library{
		logger: log.With(slog.String("component", "skills")),
		skills: map[string]Skill{},
	}
	if strings.TrimSpace(dir) == "" {
		return lib, nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		lib.logger.Debug("skills directory missing", slog.String("dir", dir))
		return lib, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		docPath := filepath.Join(dir, entry.Name(), "SKILL.md")
		raw, err := os.ReadFile(docPath)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read skill %s: %w", docPath, err)
		}
		skill, err := parseDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("parse skill %s: %w", docPath, err)
		}
		skill.Path = docPath
		if _, exists := lib.skills[skill.Name]; exists {
			return nil, fmt.Errorf("duplicate skill name %q in %s", skill.Name, docPath)
		}
		lib.skills[skill.Name] = skill
		lib.order = append(lib.order, skill.Name)
	}
	sort.Strings(lib.order)
	lib.logger.Info("skills loaded", slog.Int("count", len(lib.order)))
	return lib, nil
}

// List returns every skill sorted by name.
func (l *Library) List() []Skill {
	out := make([]Skill, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.skills[name])
	}
	return out
}

// ForChannel returns the skills applicable to one channel type.
func (l *Library) ForChannel(channelType string) []Skill {
	var out []Skill
	for _, name := range l.order {
		if skill := l.skills[name]; skill.AppliesTo(channelType) {
			out = append(out, skill)
		}
	}
	return out
}

func (l *Library) Get(name string) (Skill, error) {
	skill, ok := l.skills[name]
	if !ok {
		return Skill{}, ErrNotFound
	}
	return skill, nil
}

func (l *Library) Count() int {
	return len(l.order)
}

// RenderHTML converts the skill body to HTML.
func (l *Library) RenderHTML(name string) ([]byte, error) {
	skill, err := l.Get(name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(skill.Body), &buf); err != nil {
		return nil, fmt.Errorf("render skill %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

const frontmatterDelim = "---"

// parseDocument splits frontmatter from body and validates both.
func parseDocument(raw []byte) (Skill, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if !strings.HasPrefix(text, frontmatterDelim+"\n") {
		return Skill{}, errors.New("missing frontmatter")
	}
	rest := text[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim+"\n")
	var front, body string
	switch {
	case end >= 0:
		front = rest[:end]
		body = rest[end+len(frontmatterDelim)+2:]
	case strings.HasSuffix(rest, "\n"+frontmatterDelim):
		front = rest[:len(rest)-len(frontmatterDelim)-1]
	default:
		return Skill{}, errors.New("unterminated frontmatter")
	}

	var skill Skill
	if err := yaml.Unmarshal([]byte(front), &skill); err != nil {
		return Skill{}, fmt.Errorf("decode frontmatter: %w", err)
	}
	skill.Name = strings.TrimSpace(skill.Name)
	if skill.Name == "" {
		return Skill{}, errors.New("skill name is required")
	}
	if strings.ContainsAny(skill.Name, "/\\") || strings.Contains(skill.Name, "..") {
		return Skill{}, fmt.Errorf("invalid skill name %q", skill.Name)
	}
	skill.Body = strings.TrimSpace(body)
	if skill.Body == "" {
		return Skill{}, errors.New("skill body is empty")
	}
	return skill, nil
}
