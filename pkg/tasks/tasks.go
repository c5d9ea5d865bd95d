// Package tasks defines the background generation job: its asynq task
// type, the enqueue client, the worker handler and the progress events
// published over redis pub/sub.
package tasks

import (
	"encoding/json"

	"github.com/creastat/voicegen-go/pkg/generate"
)

// Task types and the queue all generation jobs run on.
const (
	TypeGenerate = "tts:generate"
	QueueName    = "voicegen"
)

// StageFailed is the terminal stage for jobs that did not complete. The
// other stages come from the generate package.
const StageFailed = "failed"

const progressChannelPrefix = "voicegen:progress:"

// ProgressChannel returns the pub/sub channel carrying a job's events.
func ProgressChannel(jobID string) string {
	return progressChannelPrefix + jobID
}

// GeneratePayload is the tts:generate task body. Script holds the raw
// narration script JSON; OutputDir optionally overrides the worker's
// configured output directory.
type GeneratePayload struct {
	JobID     string          `json:"job_id"`
	Script    json.RawMessage `json:"script"`
	OutputDir string          `json:"output_dir,omitempty"`
}

// Event is one progress update for a generation job. Terminal events
// carry the result on success or the error message on failure.
type Event struct {
	JobID        string           `json:"job_id"`
	Stage        string           `json:"stage"`
	SegmentID    string           `json:"segment_id,omitempty"`
	SegmentIndex int              `json:"segment_index"`
	SegmentCount int              `json:"segment_count"`
	Message      string           `json:"message,omitempty"`
	Result       *generate.Result `json:"result,omitempty"`
	Error        string           `json:"error,omitempty"`
	TS           int64            `json:"ts"`
}

// Terminal reports whether the event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Stage == generate.StageComplete || e.Stage == StageFailed
}
