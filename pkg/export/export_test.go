package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Sessions",
		Headers: []string{"date", "subject"},
		Rows: []map[string]string{
			{"date": "2026-10-12", "subject": "Math"},
			{"date": "2026-10-19", "subject": "Physics, advanced"},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	out, err := Render(FormatCSV, sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "date,subject\n2026-10-12,Math\n2026-10-19,\"Physics, advanced\"\n", string(out))
}

func TestRenderPDF(t *testing.T) {
	out, err := Render(FormatPDF, sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := Render(FormatCSV, Dataset{})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}
