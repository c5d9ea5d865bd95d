// Package metadata assembles the exported exercise metadata: segment
// processing details and the breath cycle definitions consumed by the
// mobile app.
package metadata

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Durations further than this from any guide recording go unguided.
const guideToleranceMS = 2000

// GuideTable maps breathing phase durations to guide audio keys.
type GuideTable struct {
	Inhale map[int]string `yaml:"inhale"`
	Exhale map[int]string `yaml:"exhale"`
}

// DefaultGuideTable returns the built-in guide recordings, covering
// four to eight second phases.
func DefaultGuideTable() GuideTable {
	inhale := make(map[int]string)
	exhale := make(map[int]string)
	for _, seconds := range []int{4, 5, 6, 7, 8} {
		inhale[seconds*1000] = fmt.Sprintf("audio_guide/breathing/%din_minimal.mp3", seconds)
		exhale[seconds*1000] = fmt.Sprintf("audio_guide/breathing/%dout_minimal.mp3", seconds)
	}
	return GuideTable{Inhale: inhale, Exhale: exhale}
}

// LoadGuideTable reads a guide table from a YAML file. The file
// replaces the built-in table entirely.
func LoadGuideTable(path string) (GuideTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GuideTable{}, fmt.Errorf("failed to read guide table: %w", err)
	}

	var table GuideTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return GuideTable{}, fmt.Errorf("failed to parse guide table: %w", err)
	}
	if len(table.Inhale) == 0 && len(table.Exhale) == 0 {
		return GuideTable{}, fmt.Errorf("guide table %s defines no recordings", path)
	}
	return table, nil
}

// closestGuide returns the guide key for the duration: an exact match
// wins, otherwise the nearest recording within tolerance, preferring
// the shorter one on ties. Zero durations and empty tables resolve to
// no guide.
func closestGuide(durationMS int, table map[int]string) string {
	if durationMS == 0 || len(table) == 0 {
		return ""
	}
	if key, ok := table[durationMS]; ok {
		return key
	}

	durations := make([]int, 0, len(table))
	for d := range table {
		durations = append(durations, d)
	}
	sort.Ints(durations)

	best := 0
	bestDiff := guideToleranceMS + 1
	for _, d := range durations {
		diff := durationMS - d
		if diff < 0 {
			diff = -diff
		}
		if diff <= guideToleranceMS && diff < bestDiff {
			best = d
			bestDiff = diff
		}
	}
	if best == 0 {
		return ""
	}
	return table[best]
}
