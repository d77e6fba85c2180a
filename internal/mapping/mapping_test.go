package mapping

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lextransition/internal/models"
)

func id(s string) models.SectionID {
	v, err := models.ParseSectionID(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestDefaultTable(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	assert.Greater(t, table.Len(), 60)
	assert.Equal(t, "2024.07", table.Metadata().Version)

	e, ok := table.Lookup(id("IPC 302"))
	require.True(t, ok)
	require.Len(t, e.New, 1)
	assert.True(t, e.New[0].Equal(id("BNS 103")))
	assert.True(t, e.Changes.Has(models.Penalty))
}

func TestLookupNormalizesInput(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	_, ok := table.Lookup(models.SectionID{Family: models.IPC, Number: "302 "})
	assert.True(t, ok)

	e, ok := table.Lookup(models.SectionID{Family: models.IPC, Number: "304a"})
	require.True(t, ok)
	assert.Equal(t, "BNS 106", e.New[0].String())

	// subsection falls back to the parent section
	e, ok = table.Lookup(id("IPC 302(1)"))
	require.True(t, ok)
	assert.Equal(t, "IPC 302", e.Old.String())
}

func TestLookupMiss(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	_, ok := table.Lookup(id("IPC 999"))
	assert.False(t, ok)
	_, ok = table.Lookup(id("BNS 103"))
	assert.False(t, ok)

	_, err = table.Get(id("IPC 999"))
	assert.ErrorIs(t, err, models.ErrNotFound)
	e, err := table.Get(id("IPC 302"))
	require.NoError(t, err)
	assert.Equal(t, "IPC 302", e.Old.String())
}

func TestRepealedEntry(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	e, ok := table.Lookup(id("IPC 377"))
	require.True(t, ok)
	assert.True(t, e.IsRepealed())
	assert.Empty(t, e.New)
}

func TestReverseLookup(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []models.SectionID{id("IPC 302")}, table.ReverseLookup(id("BNS 103")))

	// both theft sections map into subsections of BNS 303
	olds := table.ReverseLookup(id("BNS 303"))
	assert.Equal(t, []models.SectionID{id("IPC 378"), id("IPC 379")}, olds)
	assert.Equal(t, []models.SectionID{id("IPC 379")}, table.ReverseLookup(id("BNS 303(2)")))

	// one-to-many
	assert.Equal(t, []models.SectionID{id("IPC 498A")}, table.ReverseLookup(id("BNS 86")))

	assert.Empty(t, table.ReverseLookup(id("BNS 999")))
}

func TestCategories(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	cats := table.Categories()
	assert.Contains(t, cats, "bail")
	assert.IsIncreasing(t, cats)

	bail := table.ByCategory("BAIL")
	require.Len(t, bail, 3)
	assert.Equal(t, "CrPC 437", bail[0].Old.String())
}

func TestNewRejectsMalformedData(t *testing.T) {
	tests := []struct {
		name    string
		entries []models.MappingEntry
	}{
		{
			name: "duplicate old key",
			entries: []models.MappingEntry{
				{Old: id("IPC 302"), New: []models.SectionID{id("BNS 103")}},
				{Old: models.SectionID{Family: models.IPC, Number: "302 "}, New: []models.SectionID{id("BNS 101")}},
			},
		},
		{
			name:    "successor as old",
			entries: []models.MappingEntry{{Old: id("BNS 103"), New: []models.SectionID{id("BNS 103")}}},
		},
		{
			name:    "missing successor",
			entries: []models.MappingEntry{{Old: id("IPC 302")}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries, Metadata{})
			assert.ErrorIs(t, err, models.ErrMalformedMappingData)
		})
	}
}

func TestParseYAMLErrors(t *testing.T) {
	tests := map[string]string{
		"unknown change":  "mappings:\n  - old: IPC 302\n    new: [BNS 103]\n    changes: [HARSHER]\n",
		"bad section":     "mappings:\n  - old: XYZ 1\n    new: [BNS 103]\n",
		"unknown field":   "mappings:\n  - old: IPC 302\n    successor: BNS 103\n",
		"empty document":  "",
		"not a structure": "- 1\n- 2\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.ErrorIs(t, err, models.ErrMalformedMappingData)
		})
	}
}

func TestParseJSON(t *testing.T) {
	doc := `{"metadata": {"version": "1"}, "mappings": [
		{"old": "CrPC 438", "new": ["BNSS 482"], "changes": ["WORDING"], "category": "bail"}
	]}`
	table, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, []models.SectionID{id("CrPC 438")}, table.ReverseLookup(id("BNSS 482")))
}

func TestLoadFileCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.csv")
	sheet := "old,new,changes,note,category,source\n" +
		"IPC 498A,BNS 85; BNS 86,WORDING,Cruelty,offences against women,gazette\n" +
		"IPC 377,,REPEALED,,,\n"
	require.NoError(t, os.WriteFile(path, []byte(sheet), 0o644))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	e, ok := table.Lookup(id("IPC 498A"))
	require.True(t, ok)
	assert.Len(t, e.New, 2)
	assert.Equal(t, "gazette", e.Source)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("old,new,changes\nIPC 302,,\n"), 0o644))
	_, err = LoadFile(bad)
	assert.ErrorIs(t, err, models.ErrMalformedMappingData)
}

func TestLoadFileEmptyPathUsesDefault(t *testing.T) {
	table, err := LoadFile("")
	require.NoError(t, err)
	assert.Greater(t, table.Len(), 0)
}
