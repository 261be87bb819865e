package automation

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/nafauto/internal/config"
)

// FieldMap describes where each inquiry field lives on the external form.
type FieldMap struct {
	Name          string
	IDNumber      string
	Detail        string
	Submit        string
	SubmitAnother string

	// CategoryOptions maps a category label to the selector of its choice control.
	// Labels are compared case-insensitively.
	CategoryOptions map[string]string
	// CategoryTemplate, when set, is formatted with the record's category label
	// for labels missing from CategoryOptions.
	CategoryTemplate string
	// DefaultCategory is clicked when no other selector can be derived.
	DefaultCategory string
}

// FieldMapFromConfig builds a FieldMap from the configured selectors.
func FieldMapFromConfig(cfg config.FieldMapConfig) (FieldMap, error) {
	fm := FieldMap{
		Name:             cfg.Name,
		IDNumber:         cfg.IDNumber,
		Detail:           cfg.Detail,
		Submit:           cfg.Submit,
		SubmitAnother:    cfg.SubmitAnother,
		CategoryTemplate: cfg.CategoryTemplate,
		DefaultCategory:  cfg.DefaultCategory,
		CategoryOptions:  make(map[string]string, len(cfg.CategoryOptions)),
	}
	for label, sel := range cfg.CategoryOptions {
		fm.CategoryOptions[normalizeLabel(label)] = sel
	}
	if err := fm.Validate(); err != nil {
		return FieldMap{}, err
	}
	return fm, nil
}

// Validate reports a missing required selector.
func (f FieldMap) Validate() error {
	required := []struct{ name, sel string }{
		{"name", f.Name},
		{"id number", f.IDNumber},
		{"detail", f.Detail},
		{"submit", f.Submit},
		{"submit another", f.SubmitAnother},
	}
	for _, r := range required {
		if strings.TrimSpace(r.sel) == "" {
			return fmt.Errorf("field map: %s selector is empty", r.name)
		}
	}
	return nil
}

// CategorySelector resolves the control to click for a category label.
// An empty result means the form offers no known control for it.
func (f FieldMap) CategorySelector(label string) string {
	key := normalizeLabel(label)
	if key != "" {
		for l, sel := range f.CategoryOptions {
			if normalizeLabel(l) == key && sel != "" {
				return sel
			}
		}
		if f.CategoryTemplate != "" {
			return fmt.Sprintf(f.CategoryTemplate, cssEscape(strings.TrimSpace(label)))
		}
	}
	return f.DefaultCategory
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// cssEscape escapes a value for use inside a double-quoted CSS attribute selector.
func cssEscape(v string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
}
