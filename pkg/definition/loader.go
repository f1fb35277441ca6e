// Package definition loads wizard definitions from JSON or YAML files and
// checks them for structural mistakes before a session ever sees them.
package definition

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formwizard/pkg/model"
	"github.com/goliatone/go-formwizard/pkg/rules"
)

var (
	ErrEmptyFile     = errors.New("definition: file is empty")
	ErrInvalidFile   = errors.New("definition: invalid JSON or YAML")
	ErrDuplicateID   = errors.New("definition: duplicate wizard id")
	ErrUnknownWizard = errors.New("definition: unknown wizard")
)

// Catalog holds the wizards loaded from a filesystem, keyed by id.
type Catalog struct {
	wizards map[string]*model.Definition
}

// Option configures loading.
type Option func(*loader)

type loader struct {
	rules *rules.Set
	lint  bool
}

// WithRules checks validation kinds against set instead of rules.Default().
func WithRules(set *rules.Set) Option {
	return func(l *loader) {
		if set != nil {
			l.rules = set
		}
	}
}

// WithoutLint loads files without running Lint.
func WithoutLint() Option {
	return func(l *loader) {
		l.lint = false
	}
}

// LoadFS walks fsys and parses every .json, .yaml and .yml file as a wizard
// definition. Files are linted unless WithoutLint is given.
func LoadFS(fsys fs.FS, options ...Option) (*Catalog, error) {
	cfg := loader{rules: rules.Default(), lint: true}
	for _, opt := range options {
		if opt != nil {
			opt(&cfg)
		}
	}
	catalog := &Catalog{wizards: make(map[string]*model.Definition)}
	if fsys == nil {
		return catalog, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !isDefinitionFile(path) {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("definition: read %s: %w", path, err)
		}
		def, err := Parse(data, path)
		if err != nil {
			return err
		}
		if cfg.lint {
			if err := Lint(def, cfg.rules); err != nil {
				return err
			}
		}
		if _, exists := catalog.wizards[def.ID]; exists {
			return fmt.Errorf("%w %q (file %s)", ErrDuplicateID, def.ID, path)
		}
		catalog.wizards[def.ID] = def
		return nil
	})
	if err != nil {
		return nil, err
	}
	return catalog, nil
}

// Parse decodes one definition. JSON is tried first, then YAML. Names are
// trimmed and step indices assigned by position.
func Parse(data []byte, source string) (*model.Definition, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, source)
	}
	var def model.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		def = model.Definition{}
		if yamlErr := yaml.Unmarshal(data, &def); yamlErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFile, source, yamlErr)
		}
	}
	normalise(&def, source)
	return &def, nil
}

// Get returns the wizard with id.
func (c *Catalog) Get(id string) (*model.Definition, error) {
	if c != nil {
		if def, ok := c.wizards[id]; ok {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownWizard, id)
}

// IDs lists the loaded wizards in sorted order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.wizards))
	for id := range c.wizards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports how many wizards were loaded.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.wizards)
}

func normalise(def *model.Definition, source string) {
	def.ID = strings.TrimSpace(def.ID)
	def.Resource = strings.TrimSpace(def.Resource)
	def.AssetBase = strings.TrimSpace(def.AssetBase)
	def.Source = source
	for i := range def.Steps {
		step := &def.Steps[i]
		step.Index = i
		step.ID = strings.TrimSpace(step.ID)
		for j := range step.Fields {
			step.Fields[j].Name = strings.TrimSpace(step.Fields[j].Name)
		}
		for j := range step.Rules {
			rule := &step.Rules[j]
			rule.WhenField = strings.TrimSpace(rule.WhenField)
			rule.When = strings.TrimSpace(rule.When)
			rule.ThenField = strings.TrimSpace(rule.ThenField)
			rule.Effect = model.Effect(strings.ToLower(strings.TrimSpace(string(rule.Effect))))
		}
	}
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
