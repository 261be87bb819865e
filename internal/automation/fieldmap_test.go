package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/nafauto/internal/config"
)

func TestFieldMap_CategorySelector(t *testing.T) {
	fm := testFieldMap()
	fm.CategoryOptions["mei"] = "#cat-mei"

	tests := []struct {
		name     string
		template string
		label    string
		want     string
	}{
		{"exact key", "", "mei", "#cat-mei"},
		{"case and spacing insensitive", "", "  Imposto   de RENDA ", "#cat-ir"},
		{"unknown falls back to default", "", "Outros", "#cat-ir"},
		{"empty label uses default", "", "", "#cat-ir"},
		{"template for unknown label", `div[data-value="%s"]`, "Outros", `div[data-value="Outros"]`},
		{"template escapes quotes", `div[data-value="%s"]`, `a"b`, `div[data-value="a\"b"]`},
		{"map wins over template", `div[data-value="%s"]`, "MEI", "#cat-mei"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fm
			f.CategoryTemplate = tt.template
			assert.Equal(t, tt.want, f.CategorySelector(tt.label))
		})
	}
}

func TestFieldMap_CategorySelectorEmptyWithoutFallback(t *testing.T) {
	fm := testFieldMap()
	fm.DefaultCategory = ""
	assert.Empty(t, fm.CategorySelector("Outros"))
}

func TestFieldMap_Validate(t *testing.T) {
	require.NoError(t, testFieldMap().Validate())

	fm := testFieldMap()
	fm.Submit = "  "
	err := fm.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submit selector is empty")
}

func TestFieldMapFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig().Automation.FieldMap
	cfg.CategoryOptions = map[string]string{"Imposto de Renda": "#ir"}

	fm, err := FieldMapFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, fm.Name)
	assert.Equal(t, "#ir", fm.CategoryOptions["imposto de renda"])
	assert.Equal(t, "#ir", fm.CategorySelector("IMPOSTO DE RENDA"))

	cfg.Detail = ""
	_, err = FieldMapFromConfig(cfg)
	assert.Error(t, err)
}
