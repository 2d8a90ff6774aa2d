package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterBOMAndQuoteAll(t *testing.T) {
	exporter := NewCSVExporter(WithBOM(), WithQuoteAll())
	out, err := exporter.Render(Dataset{
		Headers: []string{"Date", "Comments"},
		Rows: []map[string]string{
			{"Date": "2024-05-01", "Comments": `said "great", landed long`},
			{"Date": "2024-05-02"},
		},
	})
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(out, utf8BOM))
	body := string(out[len(utf8BOM):])
	assert.Equal(t, "\"Date\",\"Comments\"\r\n\"2024-05-01\",\"said \"\"great\"\", landed long\"\r\n\"2024-05-02\",\"\"\r\n", body)

	records, err := csv.NewReader(bytes.NewReader(out[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, `said "great", landed long`, records[1][1])
}

func TestCSVExporterMinimalQuoting(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"A", "B"},
		Rows:    []map[string]string{{"A": "plain", "B": "x,y"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "A,B\r\nplain,\"x,y\"\r\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}
