package export

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()
	content, err := exporter.Render(Table{
		Headers: []string{"Student", "Assignment", "Grade"},
		Rows: [][]string{
			{"Ada Lovelace", "Problem Set 1", "47.5"},
			{"Grace Hopper", "Problem Set 1"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Student,Assignment,Grade\nAda Lovelace,Problem Set 1,47.5\nGrace Hopper,Problem Set 1,\n", string(content))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	exporter := NewCSVExporter()
	_, err := exporter.Render(Table{})
	require.Error(t, err)
}
