package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// itemsSchema constrains dataset item files before anything reaches the
// store. Shape mirrors the Item struct; unknown fields are rejected so a
// typo'd label is an error instead of silently dropped ground truth.
const itemsSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "array",
	"items": {
		"type": "object",
		"required": ["input"],
		"additionalProperties": false,
		"properties": {
			"input": {"type": "string", "minLength": 1},
			"expected_output": {"type": "string"},
			"metadata": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"expected_source_ids": {
						"type": "array",
						"items": {"type": "string", "minLength": 1}
					}
				}
			}
		}
	}
}`

var compiledItemsSchema = jsonschema.MustCompileString("items.schema.json", itemsSchema)

// LoadItems reads a YAML or JSON item file, validates it against the
// item schema and returns the decoded items in file order.
func LoadItems(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read items file: %w", err)
	}
	return ParseItems(data, filepath.Ext(path))
}

// ParseItems decodes and validates item file content. ext selects the
// format (".json" for JSON, anything else parses as YAML).
func ParseItems(data []byte, ext string) ([]Item, error) {
	var raw any
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("dataset: parse items: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("dataset: parse items: %w", err)
		}
	}

	if err := compiledItemsSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("dataset: invalid items file: %w", err)
	}

	// Round-trip through JSON so one decode path serves both formats.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("dataset: normalize items: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(normalized, &items); err != nil {
		return nil, fmt.Errorf("dataset: decode items: %w", err)
	}
	return items, nil
}
