package generate

import "fmt"

// Result summarizes a completed generation run.
type Result struct {
	ExerciseID      string   `json:"exercise_id"`
	OutputDir       string   `json:"output_dir"`
	SegmentCount    int      `json:"segment_count"`
	TotalDurationMS int64    `json:"total_duration_ms"`
	MetadataPath    string   `json:"metadata_path"`
	AudioFiles      []string `json:"audio_files"`
	CacheHitCount   int      `json:"cache_hit_count"`
	CacheMissCount  int      `json:"cache_miss_count"`
}

// TotalDurationSeconds returns the combined audio duration in seconds.
func (r *Result) TotalDurationSeconds() float64 {
	return float64(r.TotalDurationMS) / 1000.0
}

// CacheHitRate returns the cache hit percentage, or zero when the cache
// was never consulted.
func (r *Result) CacheHitRate() float64 {
	total := r.CacheHitCount + r.CacheMissCount
	if total == 0 {
		return 0
	}
	return float64(r.CacheHitCount) / float64(total) * 100.0
}

// CostEstimate is the projected synthesis cost for a script.
type CostEstimate struct {
	TotalCharacters int     `json:"total_characters"`
	EstimatedUSD    float64 `json:"estimated_usd"`
	Currency        string  `json:"currency"`
}

func (c CostEstimate) String() string {
	return fmt.Sprintf("estimated cost: $%.2f %s (%d characters)", c.EstimatedUSD, c.Currency, c.TotalCharacters)
}

// SegmentError reports which segment failed and why.
type SegmentError struct {
	SegmentID string
	Index     int
	Err       error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("failed to process segment '%s' (index: %d): %v", e.SegmentID, e.Index, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }
