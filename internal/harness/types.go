// Package harness orchestrates benchmark runs: it replays every item of a
// labeled dataset through the pipeline, scores retrieval and groundedness,
// and streams each result to the recorder as soon as it is final.
package harness

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/ragmark/internal/pipeline"
)

// RunRecord identifies one benchmark run. The config snapshot is taken
// once at start and never changes during the run.
type RunRecord struct {
	// Name is unique per run: <prefix><date>-<4 uuid chars>-<model>.
	Name string `json:"name"`

	// Description is a human-readable one-liner.
	Description string `json:"description"`

	// DatasetName is the dataset being replayed.
	DatasetName string `json:"dataset_name"`

	// Config is the immutable run configuration snapshot.
	Config map[string]any `json:"config"`

	StartedAt time.Time `json:"started_at"`
}

// NewRunName builds a run name from the prefix, today's date, a short
// random disambiguator and the model identifier.
func NewRunName(prefix, model string, now time.Time) string {
	return fmt.Sprintf("%s%s-%s-%s",
		prefix, now.Format("2006-01-02"), uuid.New().String()[:4], model)
}

// ItemResult is the outcome of one dataset item. Exactly one result exists
// per item, failed or not.
type ItemResult struct {
	// Ordinal is the item's position in dataset order, starting at 0.
	Ordinal int `json:"ordinal"`

	ItemID   string `json:"item_id"`
	Question string `json:"question"`

	// ExpectedOutput is the reference answer, carried for inspection.
	ExpectedOutput string `json:"expected_output,omitempty"`

	// Answer is the generated response. Empty when generation failed.
	Answer string `json:"answer,omitempty"`

	// Retrieved holds the surfaced documents with their scores.
	Retrieved []pipeline.RetrievedDocument `json:"retrieved"`

	// ExpectedSourceIDs is the retrieval ground truth for the item.
	ExpectedSourceIDs []string `json:"expected_source_ids"`

	// HitRate is 1.0 or 0.0. Set whenever retrieval ran.
	HitRate *float64 `json:"hit_rate,omitempty"`

	// Groundedness is the judge score in [0, 1]. Nil when the judge
	// failed or the item never produced an answer; JudgeError then says
	// why. A nil score is never reported as a number.
	Groundedness *float64 `json:"groundedness,omitempty"`
	JudgeError   string   `json:"judge_error,omitempty"`

	// Err is set when the pipeline failed for this item. The run
	// continues; this result still reaches the recorder.
	Err string `json:"error,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Scored reports whether both metrics were produced for the item.
func (r *ItemResult) Scored() bool {
	return r.Err == "" && r.HitRate != nil && r.Groundedness != nil
}

// RetrievedSourceIDs extracts the source ids from the retrieved documents.
func (r *ItemResult) RetrievedSourceIDs() []string {
	ids := make([]string, len(r.Retrieved))
	for i, doc := range r.Retrieved {
		ids[i] = doc.SourceID
	}
	return ids
}

// Summary aggregates a completed run.
type Summary struct {
	RunName string        `json:"run_name"`
	Total   int           `json:"total"`
	Scored  int           `json:"scored"`
	Partial int           `json:"partial"`
	Elapsed time.Duration `json:"elapsed_ns"`
}
