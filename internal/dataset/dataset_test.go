package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestNewValidatesColumns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cols []Column
	}{
		{"blank name", []Column{{Name: " ", Values: []Value{Null}}}},
		{"duplicate", []Column{{Name: "a"}, {Name: "a"}}},
		{"ragged", []Column{{Name: "a", Values: []Value{Number(1)}}, {Name: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("x", tt.cols)
			require.ErrorIs(t, err, ErrInvalidDataset)
		})
	}

	ds, err := New("ok", []Column{
		{Name: "a", Values: []Value{Number(1), Null}},
		{Name: "b", Values: []Value{String("x"), Bool(true)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Rows())
	assert.Equal(t, []string{"a", "b"}, ds.Names())
	ord, ok := ds.Ordinal("b")
	require.True(t, ok)
	assert.Equal(t, 1, ord)
	assert.Equal(t, map[string]any{"a": nil, "b": true}, ds.Row(1))
}

func TestParseCell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Value
	}{
		{"", Null},
		{"   ", Null},
		{" NULL ", Null},
		{"#N/A", Null},
		{"n/a", Null},
		{"NA", String("NA")},
		{"None", String("None")},
		{"nan", String("nan")},
		{"TRUE", Bool(true)},
		{"42", Number(42)},
		{"1.000,5", Number(1000.5)},
		{"1,000.5", Number(1000.5)},
		{"1,234", Number(1234)},
		{"0,5", Number(0.5)},
		{"12.5%", Number(12.5)},
		{"3e4", Number(30000)},
		{"A1", String("A1")},
		{"alice@example.com", String("alice@example.com")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCell(tt.in, Options{}), "input %q", tt.in)
	}
}

func TestNullValuesOption(t *testing.T) {
	t.Parallel()

	opt := Options{NullValues: []string{"-", "none"}}
	assert.Equal(t, Null, ParseCell("-", opt))
	assert.Equal(t, Null, ParseCell("NONE", opt))
	assert.Equal(t, Null, ParseCell("", opt))
	assert.Equal(t, String("null"), ParseCell("null", opt), "custom spellings replace the defaults")

	ds, err := LoadBytes("c.csv", []byte("country,status\nNA,None\nDE,\n"), DefaultOptions())
	require.NoError(t, err)
	country, _ := ds.Column("country")
	assert.Equal(t, String("NA"), country.Values[0], "Namibia is not a missing value")
	status, _ := ds.Column("status")
	assert.Equal(t, String("None"), status.Values[0])
	assert.Equal(t, Null, status.Values[1])
}

func TestValueKeyDistinguishesKinds(t *testing.T) {
	t.Parallel()
	assert.NotEqual(t, String("1").Key(), Number(1).Key())
	assert.True(t, String("  ").IsBlank())
	assert.False(t, Number(0).IsBlank())
	f, ok := String(" 2.5 ").Float()
	require.True(t, ok)
	assert.InDelta(t, 2.5, f, 1e-9)
}

func TestLoadCSVSniffsDelimiterAndFixesHeaders(t *testing.T) {
	t.Parallel()

	content := "\ufeffid;name;;name\n1;Ann;x;dup\n2;;y\n"
	ds, err := LoadBytes("people.csv", []byte(content), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "column_3", "name__2"}, ds.Names())
	assert.Equal(t, 2, ds.Rows())

	name, _ := ds.Column("name")
	assert.True(t, name.Values[1].IsNull())
	dup, _ := ds.Column("name__2")
	assert.True(t, dup.Values[1].IsNull(), "short rows are padded with nulls")
}

func TestLoadCSVMaxRowsWarns(t *testing.T) {
	t.Parallel()

	ds, err := LoadBytes("n.csv", []byte("n\n1\n2\n3\n"), Options{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Rows())
	require.Len(t, ds.Warnings, 1)
	assert.Contains(t, ds.Warnings[0], "2/3")
}

func TestLoadJSONRecordsKeepsFirstSeenOrder(t *testing.T) {
	t.Parallel()

	content := `[{"id": 1, "email": "a@x.io"}, {"email": null, "id": 2, "vip": true}]`
	ds, err := LoadBytes("c.json", []byte(content), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "email", "vip"}, ds.Names())
	vip, _ := ds.Column("vip")
	assert.Equal(t, []Value{Null, Bool(true)}, vip.Values)
	email, _ := ds.Column("email")
	assert.True(t, email.Values[1].IsNull())
}

func TestLoadJSONColumns(t *testing.T) {
	t.Parallel()

	ds, err := LoadBytes("c.json", []byte(`{"age": [25, 30, null, 200]}`), DefaultOptions())
	require.NoError(t, err)
	age, ok := ds.Column("age")
	require.True(t, ok)
	assert.Equal(t, []Value{Number(25), Number(30), Null, Number(200)}, age.Values)

	_, err = LoadBytes("bad.json", []byte(`42`), DefaultOptions())
	require.Error(t, err)
}

func TestLoadXLSXBySheetNameAndIndex(t *testing.T) {
	t.Parallel()

	f := xlsx.NewFile()
	first, err := f.AddSheet("Readme")
	require.NoError(t, err)
	first.AddRow().AddCell().SetString("ignore me")
	data, err := f.AddSheet("Data")
	require.NoError(t, err)
	for _, rec := range [][]string{{"id", "amount"}, {"1", "10.5"}, {"2", ""}} {
		row := data.AddRow()
		for _, v := range rec {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.Save(path))

	ds, err := LoadFile(path, Options{SheetName: "Data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "amount"}, ds.Names())
	amount, _ := ds.Column("amount")
	assert.Equal(t, Number(10.5), amount.Values[0])
	assert.True(t, amount.Values[1].IsNull())

	ds, err = LoadFile(path, Options{SheetIndex: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Rows())

	_, err = LoadFile(path, Options{SheetName: "Nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadUnsupported(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.parquet")
	require.NoError(t, os.WriteFile(path, []byte("PAR1"), 0o644))
	_, err := LoadFile(path, DefaultOptions())
	require.ErrorIs(t, err, ErrUnsupported)
	assert.True(t, Supported("a.TSV"))
	assert.False(t, Supported("a.parquet"))
}
