package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fallbackSlug = "step"

var ErrInvalidJobID = errors.New("invalid job id")

// Sink writes per-step output artifacts under one directory per job:
// {slug}.raw.txt holds the output as captured and {slug}.txt the same text
// with control sequences stripped.
type Sink struct {
	root string
}

func NewSink(root string) *Sink {
	return &Sink{root: root}
}

// JobDir returns the directory that holds a job's artifacts.
func (s *Sink) JobDir(jobID string) (string, error) {
	if jobID == "" || jobID == "." || jobID == ".." || strings.ContainsAny(jobID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return filepath.Join(s.root, jobID), nil
}

// Paths returns the raw and clean artifact paths for a step. They depend
// only on the job id and the step name.
func (s *Sink) Paths(jobID, stepName string) (raw, clean string, err error) {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return "", "", err
	}
	slug := Slug(stepName)
	if slug == "" {
		slug = fallbackSlug
	}
	return filepath.Join(dir, slug+".raw.txt"), filepath.Join(dir, slug+".txt"), nil
}

// Persist writes both artifacts and returns the clean path. Invalid UTF-8
// is dropped rather than rejected. Persisting the same step again replaces
// the files at the same paths.
func (s *Sink) Persist(jobID, stepName, rawOutput string) (string, error) {
	rawPath, cleanPath, err := s.Paths(jobID, stepName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(rawPath), 0o755); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}

	text := strings.ToValidUTF8(rawOutput, "")
	if err := writeFileAtomic(rawPath, text); err != nil {
		return "", err
	}
	if err := writeFileAtomic(cleanPath, StripANSI(text)); err != nil {
		return "", err
	}
	return cleanPath, nil
}

// Read returns a persisted artifact.
func (s *Sink) Read(jobID, stepName string, raw bool) (string, error) {
	rawPath, cleanPath, err := s.Paths(jobID, stepName)
	if err != nil {
		return "", err
	}
	path := cleanPath
	if raw {
		path = rawPath
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	return string(b), nil
}

func writeFileAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
