package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/logger"
)

// Filesystem stores exercise outputs in a local directory tree:
//
//	{base_dir}/{exercise_id}/{segment_id}_{index}.wav
//	{base_dir}/{exercise_id}/{exercise_id}_metadata.json
type Filesystem struct {
	baseDir string
	log     logger.Logger
}

// NewFilesystem creates the base directory if needed.
func NewFilesystem(baseDir string, log logger.Logger) (*Filesystem, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, &Error{Op: "init", Path: baseDir, Err: err}
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		abs = baseDir
	}
	log.Info("initialized filesystem storage", "base_dir", abs)
	return &Filesystem{baseDir: baseDir, log: log}, nil
}

func (s *Filesystem) CreateExerciseDir(exerciseID string) (string, error) {
	dir := s.ExerciseDir(exerciseID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Op: "create directory", Path: dir, Err: err}
	}
	s.log.Info("created exercise directory", "dir", dir)
	return dir, nil
}

func (s *Filesystem) ExerciseDir(exerciseID string) string {
	return filepath.Join(s.baseDir, exerciseID)
}

func (s *Filesystem) WriteAudio(path string, buf *audio.Buffer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Op: "write audio", Path: path, Err: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return &Error{Op: "write audio", Path: path, Err: err}
	}
	if err := audio.EncodeWAV(f, buf); err != nil {
		f.Close()
		return &Error{Op: "write audio", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Op: "write audio", Path: path, Err: err}
	}

	s.log.Debug("wrote audio file", "path", path, "duration_ms", buf.DurationMS())
	return nil
}

func (s *Filesystem) WriteJSON(path string, data any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Op: "write json", Path: path, Err: err}
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return &Error{Op: "write json", Path: path, Err: err}
	}
	encoded = append(encoded, '\n')
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return &Error{Op: "write json", Path: path, Err: err}
	}

	s.log.Debug("wrote json file", "path", path)
	return nil
}

func (s *Filesystem) ReadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Op: "read json", Path: path, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: "read json", Path: path, Err: err}
	}
	s.log.Debug("read json file", "path", path)
	return nil
}

func (s *Filesystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Filesystem) ListFiles(dir, pattern string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Op: "list", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Op: "list", Path: dir, Err: os.ErrInvalid}
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, &Error{Op: "list", Path: dir, Err: err}
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	return files, nil
}

func (s *Filesystem) DeleteExercise(exerciseID string) error {
	dir := s.ExerciseDir(exerciseID)
	if !s.Exists(dir) {
		s.log.Warn("exercise directory does not exist", "dir", dir)
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return &Error{Op: "delete", Path: dir, Err: err}
	}
	s.log.Info("deleted exercise directory", "dir", dir)
	return nil
}
