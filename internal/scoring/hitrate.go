// Package scoring implements the two evaluation metrics: hit rate over
// retrieved source identifiers and LLM-judged groundedness of answers.
package scoring

// HitRate reports whether retrieval surfaced any of the expected sources.
// It returns 1.0 when the expected and retrieved sets intersect, 0.0
// otherwise. Both sets empty scores 1.0: the item needed no retrieval and
// none happened. Duplicates and ordering do not affect the result.
func HitRate(expected, retrieved []string) float64 {
	if len(expected) == 0 && len(retrieved) == 0 {
		return 1.0
	}
	want := make(map[string]struct{}, len(expected))
	for _, id := range expected {
		want[id] = struct{}{}
	}
	for _, id := range retrieved {
		if _, ok := want[id]; ok {
			return 1.0
		}
	}
	return 0.0
}
