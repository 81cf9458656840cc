package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactState reports whether a model artifact exists on disk.
type ArtifactState int

const (
	ArtifactAbsent ArtifactState = iota
	ArtifactPresent
)

// StatArtifact answers present or absent explicitly. Stat failures other
// than non-existence return as-is.
func StatArtifact(path string) (ArtifactState, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return ArtifactPresent, nil
	case errors.Is(err, os.ErrNotExist):
		return ArtifactAbsent, nil
	default:
		return ArtifactAbsent, err
	}
}

// SaveArtifact writes the pipeline to path through a temp file and a single
// rename, so a reader never observes a partial artifact and a failed write
// never clobbers the previous one.
func SaveArtifact(p *Pipeline, path string) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: encode artifact: %w", ErrPersist, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

// LoadArtifact reads a pipeline back from disk. Decode and shape failures
// come back as ErrCorruptArtifact; I/O failures, including a missing file,
// pass through untouched so callers can tell them apart.
func LoadArtifact(path string) (*Pipeline, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Pipeline
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	if err := validatePipeline(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptArtifact, err)
	}
	return &p, nil
}

func validatePipeline(p *Pipeline) error {
	switch {
	case len(p.Columns) == 0:
		return errors.New("no feature columns")
	case p.Encoder == nil:
		return errors.New("encoder missing")
	case len(p.Encoder.Columns) != len(p.Columns) || len(p.Encoder.Values) != len(p.Columns):
		return errors.New("encoder does not match feature columns")
	case p.Forest == nil || len(p.Forest.Trees) == 0:
		return errors.New("forest missing or empty")
	}
	return nil
}
