package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type documentFileEntry struct {
	SourceID string `yaml:"source_id" json:"source_id"`
	Title    string `yaml:"title" json:"title"`
	Content  string `yaml:"content" json:"content"`
}

// LoadDocuments reads a YAML or JSON document file for index building.
func LoadDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("index: read documents file: %w", err)
	}

	var entries []documentFileEntry
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &entries)
	} else {
		err = yaml.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("index: parse documents file: %w", err)
	}

	docs := make([]Document, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(entry.SourceID) == "" {
			return nil, fmt.Errorf("index: document %d has no source_id", i)
		}
		if strings.TrimSpace(entry.Content) == "" {
			return nil, fmt.Errorf("index: document %s has no content", entry.SourceID)
		}
		docs[i] = Document{SourceID: entry.SourceID, Title: entry.Title, Content: entry.Content}
	}
	return docs, nil
}
