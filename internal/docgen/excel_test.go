package docgen

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportTableXLSX(t *testing.T) {
	detail := sampleDetail()
	rows := []map[string]any{
		{"id": int64(1), "email": "a@example.com", "created_at": nil},
		{"id": int64(2), "email": "b@example.com", "extra": "spilled"},
	}

	data, err := newTestGenerator().ExportTableXLSX(detail, rows)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{sheetStructure, sheetData}, f.GetSheetList())

	structure, err := f.GetRows(sheetStructure)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(structure), 4)
	assert.Equal(t, "Column", structure[0][0])
	assert.Equal(t, "id", structure[1][0])
	assert.Equal(t, "bigint", structure[1][1])

	dataRows, err := f.GetRows(sheetData)
	require.NoError(t, err)
	require.Len(t, dataRows, 3)
	// Header order: structure columns first, then extras alphabetically.
	assert.Equal(t, []string{"id", "email", "created_at", "extra"}, dataRows[0])
	assert.Equal(t, "1", dataRows[1][0])
	assert.Equal(t, "b@example.com", dataRows[2][1])
}

func TestExportTableXLSX_NoRows(t *testing.T) {
	data, err := newTestGenerator().ExportTableXLSX(sampleDetail(), nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	dataRows, err := f.GetRows(sheetData)
	require.NoError(t, err)
	require.Len(t, dataRows, 1)
	assert.Equal(t, []string{"id", "email", "created_at"}, dataRows[0])
}
