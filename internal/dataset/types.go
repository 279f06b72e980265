// Package dataset provides the labeled dataset store consumed by the
// evaluation harness: create a named dataset, populate it with
// question/expected-answer items, iterate it in insertion order.
package dataset

import "time"

// Item is one labeled evaluation example. Items are created once during
// populate and are read-only during evaluation.
type Item struct {
	// ID is assigned by the store.
	ID string `yaml:"-" json:"id"`

	// Input is the question text. Never empty.
	Input string `yaml:"input" json:"input"`

	// ExpectedOutput is the reference answer. Informational; the default
	// metrics do not score against it.
	ExpectedOutput string `yaml:"expected_output" json:"expected_output"`

	// Metadata carries the retrieval ground truth.
	Metadata ItemMetadata `yaml:"metadata" json:"metadata"`
}

// ItemMetadata holds the labels attached to an item.
type ItemMetadata struct {
	// ExpectedSourceIDs lists the source identifiers a correct retrieval
	// should surface. Empty means no retrieval is required.
	ExpectedSourceIDs []string `yaml:"expected_source_ids" json:"expected_source_ids"`
}

// Info describes a stored dataset.
type Info struct {
	ID          string
	Name        string
	Description string
	Items       int
	CreatedAt   time.Time
}
