// Package storage persists generated audio files and exercise metadata.
package storage

import (
	"fmt"

	"github.com/creastat/voicegen-go/pkg/audio"
)

// Storage is the output backend for generated exercises. Audio is
// written as WAV, metadata as indented JSON.
type Storage interface {
	// CreateExerciseDir creates the output directory for an exercise
	// and returns its path.
	CreateExerciseDir(exerciseID string) (string, error)

	// ExerciseDir returns the output directory path without creating it.
	ExerciseDir(exerciseID string) string

	// WriteAudio writes a buffer as a WAV file, creating parent
	// directories as needed.
	WriteAudio(path string, buf *audio.Buffer) error

	// WriteJSON writes data as indented JSON, creating parent
	// directories as needed.
	WriteJSON(path string, data any) error

	// ReadJSON reads a JSON file into out.
	ReadJSON(path string, out any) error

	// Exists reports whether a file or directory exists.
	Exists(path string) bool

	// ListFiles returns the files in a directory matching a glob
	// pattern, directories excluded.
	ListFiles(dir, pattern string) ([]string, error)

	// DeleteExercise removes an exercise directory and its contents.
	// Deleting a missing exercise is not an error.
	DeleteExercise(exerciseID string) error
}

// Error describes a failed storage operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s '%s': %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
