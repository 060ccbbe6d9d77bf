package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yaml", input: "yaml", want: FormatYAML},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  table  ", want: FormatTable},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type testRows [][]string

func (r testRows) Headers() []string { return []string{"NAME", "VALUE"} }
func (r testRows) Rows() [][]string  { return r }

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, FormatTable).Print(testRows{{"alpha", "1"}, {"beta", "2"}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "alpha")
	assert.Contains(t, buf.String(), "beta")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, FormatJSON).Print(map[string]int{"count": 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 3}`, buf.String())
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, FormatYAML).Print(map[string]int{"count": 3})
	require.NoError(t, err)
	assert.Equal(t, "count: 3\n", buf.String())
}

func TestTableFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, FormatTable).Print(map[string]string{"id": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "x"}`, buf.String())
}
