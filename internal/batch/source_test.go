package batch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "subjects.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReadCSV(t *testing.T) {
	input := "name, estimate,lat,lon\n# comment\nalice,1990-05-15 14:30, 51.5,-0.12\nbob,1985-01-02T03:04:05Z,40.7\n"

	rows, err := ReadCSV(context.Background(), strings.NewReader(input), ',', "")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"name", "estimate", "lat", "lon"}, rows[0])
	assert.Equal(t, []string{"alice", "1990-05-15 14:30", "51.5", "-0.12"}, rows[1])
	assert.Equal(t, []string{"bob", "1985-01-02T03:04:05Z", "40.7"}, rows[2])
}

func TestReadCSV_Windows1252(t *testing.T) {
	// "Zoë" with ë encoded as 0xEB
	input := []byte("name,estimate\nZo\xeb,1990-05-15 14:30\n")

	rows, err := ReadCSV(context.Background(), bytes.NewReader(input), ',', "windows-1252")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Zoë", rows[1][0])
}

func TestReadCSV_UnknownEncoding(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a\n"), ',', "klingon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadCSV(ctx, strings.NewReader("a,b\n1,2\n"), ',', "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadFile(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		path := writeFile(t, "subjects.csv", []byte("a,b\n1,2\n"))
		rows, err := ReadFile(context.Background(), path, SourceOptions{})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
	})

	t.Run("tsv", func(t *testing.T) {
		path := writeFile(t, "subjects.tsv", []byte("a\tb\n1\t2\n"))
		rows, err := ReadFile(context.Background(), path, SourceOptions{})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
	})

	t.Run("xlsx", func(t *testing.T) {
		path := createTestXLSX(t, map[string][][]string{
			"Sheet1": {{"a", "b"}, {" 1 ", "2"}},
		})
		rows, err := ReadFile(context.Background(), path, SourceOptions{})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
	})

	t.Run("unsupported", func(t *testing.T) {
		path := writeFile(t, "subjects.json", []byte("[]"))
		_, err := ReadFile(context.Background(), path, SourceOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported file type")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), SourceOptions{})
		require.Error(t, err)
	})
}

func TestReadXLSX_SheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"First":  {{"a", "b"}},
		"Second": {{"x", "y"}, {"1", "2"}},
	})

	rows, err := ReadXLSX(path, "Second")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x", "y"}, {"1", "2"}}, rows)
}

func TestReadXLSX_SheetNotFound(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Sheet1": {{"a"}}})

	_, err := ReadXLSX(path, "Missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_BadFile(t *testing.T) {
	path := writeFile(t, "broken.xlsx", []byte("not a zip"))

	_, err := ReadXLSX(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open xlsx")
}
