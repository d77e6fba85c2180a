package mapping

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"lextransition/internal/models"
)

//go:embed data/default_mappings.yaml
var defaultMappings []byte

// file is the on-disk YAML/JSON layout
type file struct {
	Metadata Metadata    `yaml:"metadata"`
	Mappings []fileEntry `yaml:"mappings"`
}

type fileEntry struct {
	Old      models.SectionID   `yaml:"old"`
	New      []models.SectionID `yaml:"new"`
	Changes  []string           `yaml:"changes"`
	Note     string             `yaml:"note"`
	Category string             `yaml:"category"`
	Source   string             `yaml:"source"`
}

// Default returns the curated dataset compiled into the binary
func Default() (*Table, error) {
	t, err := Parse(bytes.NewReader(defaultMappings))
	if err != nil {
		return nil, fmt.Errorf("failed to load default mappings: %w", err)
	}
	return t, nil
}

// LoadFile loads a mapping file, choosing the format by extension.
// An empty path returns the default dataset.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ParseCSV(f)
	case ".yaml", ".yml", ".json":
		return Parse(f)
	default:
		return nil, fmt.Errorf("%w: unsupported mapping file extension %q", models.ErrMalformedMappingData, filepath.Ext(path))
	}
}

// Parse reads a YAML or JSON mapping document
func Parse(r io.Reader) (*Table, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", models.ErrMalformedMappingData)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedMappingData, err)
	}

	entries := make([]models.MappingEntry, 0, len(doc.Mappings))
	for i, fe := range doc.Mappings {
		changes, err := models.ParseChangeSet(fe.Changes)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", models.ErrMalformedMappingData, i+1, err)
		}
		entries = append(entries, models.MappingEntry{
			Old:      fe.Old,
			New:      fe.New,
			Changes:  changes,
			Note:     fe.Note,
			Category: fe.Category,
			Source:   fe.Source,
		})
	}
	return New(entries, doc.Metadata)
}

var csvColumns = []string{"old", "new", "changes", "note", "category", "source"}

// ParseCSV reads a CSV mapping sheet with a header row of
// old,new,changes,note,category,source. Multiple successors and change
// types are separated by ';'.
func ParseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %v", models.ErrMalformedMappingData, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range csvColumns[:3] {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", models.ErrMalformedMappingData, c)
		}
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var entries []models.MappingEntry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrMalformedMappingData, line, err)
		}

		old, err := models.ParseSectionID(field(rec, "old"))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrMalformedMappingData, line, err)
		}
		var news []models.SectionID
		for _, s := range splitList(field(rec, "new")) {
			id, err := models.ParseSectionID(s)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", models.ErrMalformedMappingData, line, err)
			}
			news = append(news, id)
		}
		changes, err := models.ParseChangeSet(splitList(field(rec, "changes")))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrMalformedMappingData, line, err)
		}

		entries = append(entries, models.MappingEntry{
			Old:      old,
			New:      news,
			Changes:  changes,
			Note:     field(rec, "note"),
			Category: field(rec, "category"),
			Source:   field(rec, "source"),
		})
	}

	return New(entries, Metadata{Sources: []string{"csv"}})
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
