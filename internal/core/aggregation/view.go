package aggregation

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultActionField is the payload field holding the action kind.
const DefaultActionField = "action"

var viewNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ViewDefinition describes one materialized view.
// Views are loaded at startup from YAML files and fingerprinted for staleness detection.
type ViewDefinition struct {
	Name        string
	KeyField    string   // payload field producing the row key
	ValueField  string   // payload field summed into TotalSum; empty counts only
	ActionField string   // payload field holding the action kind
	Actions     []string // eligible action kinds; empty selects every record
	Fingerprint string   // SHA-256 of the raw YAML file; computed at load time
}

// rawView is the on-disk YAML shape.
type rawView struct {
	Name        string   `yaml:"name"`
	KeyField    string   `yaml:"key_field"`
	ValueField  string   `yaml:"value_field"`
	ActionField string   `yaml:"action_field"`
	Actions     []string `yaml:"actions"`
}

// DefaultView mirrors the purchase totals per buyer region.
func DefaultView() ViewDefinition {
	return ViewDefinition{
		Name:        "sales_by_region",
		KeyField:    "buyer_region",
		ValueField:  "price",
		ActionField: DefaultActionField,
		Actions:     []string{"Purchased"},
		Fingerprint: "builtin",
	}
}

// Eligible reports whether a record carrying action is selected by the view.
func (v ViewDefinition) Eligible(action string) bool {
	if len(v.Actions) == 0 {
		return true
	}
	for _, a := range v.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Validate checks the definition is usable.
func (v ViewDefinition) Validate() error {
	if !viewNamePattern.MatchString(v.Name) {
		return fmt.Errorf("view name %q must match %s", v.Name, viewNamePattern.String())
	}
	if v.KeyField == "" {
		return fmt.Errorf("view %q: key_field must not be empty", v.Name)
	}
	if v.ActionField == "" {
		return fmt.Errorf("view %q: action_field must not be empty", v.Name)
	}
	return nil
}

// FileSystemViewRepository loads view definitions from *.yaml files in a directory.
// Each file contains exactly one view at the top level. Views are loaded once at
// startup and cached in memory. When no file defines a view, DefaultView is used.
type FileSystemViewRepository struct {
	dir   string
	views map[string]ViewDefinition // keyed by Name
}

// NewFileSystemViewRepository creates a new repository and eagerly loads all views
// from dir. Returns an error if any view file is malformed or invalid.
func NewFileSystemViewRepository(dir string) (*FileSystemViewRepository, error) {
	repo := &FileSystemViewRepository{
		dir:   dir,
		views: make(map[string]ViewDefinition),
	}
	if dir != "" {
		if err := repo.load(); err != nil {
			return nil, err
		}
	}
	if len(repo.views) == 0 {
		def := DefaultView()
		repo.views[def.Name] = def
	}
	return repo, nil
}

func (r *FileSystemViewRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("view dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("view path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading view dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading view file %s: %w", path, err)
		}

		var raw rawView
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing view file %s: %w", path, err)
		}
		if raw.Name == "" {
			continue // comment-only file
		}
		if raw.ActionField == "" {
			raw.ActionField = DefaultActionField
		}

		view := ViewDefinition{
			Name:        raw.Name,
			KeyField:    raw.KeyField,
			ValueField:  raw.ValueField,
			ActionField: raw.ActionField,
			Actions:     raw.Actions,
			Fingerprint: fmt.Sprintf("%x", sha256.Sum256(data)),
		}
		if err := view.Validate(); err != nil {
			return fmt.Errorf("view file %s: %w", path, err)
		}

		if _, exists := r.views[view.Name]; exists {
			return fmt.Errorf("view %q: duplicate view name (check multiple YAML files)", view.Name)
		}
		r.views[view.Name] = view
	}
	return nil
}

// Get returns the view with the given name, or an error if not found.
func (r *FileSystemViewRepository) Get(_ context.Context, name string) (*ViewDefinition, error) {
	view, ok := r.views[name]
	if !ok {
		return nil, fmt.Errorf("view %q not found", name)
	}
	return &view, nil
}

// GetViews returns all views sorted by name.
func (r *FileSystemViewRepository) GetViews() []ViewDefinition {
	views := make([]ViewDefinition, 0, len(r.views))
	for _, v := range r.views {
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}
