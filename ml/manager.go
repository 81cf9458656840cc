package ml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// EventSink receives lifecycle events for live monitoring. Implementations
// must not block.
type EventSink interface {
	Publish(event string, data interface{})
}

// Lifecycle event names.
const (
	EventModelLoaded     = "model_loaded"
	EventRetrainStarted  = "retrain_started"
	EventRetrainFinished = "retrain_finished"
	EventRetrainFailed   = "retrain_failed"
)

// Manager owns the served model handle. Readers take the current pipeline
// from an atomic pointer and never block on training; retrains serialize
// on a guard and swap the handle only after the new artifact loads back.
type Manager struct {
	path    string
	trainer *Trainer
	logger  *zap.SugaredLogger

	handle     atomic.Pointer[Pipeline]
	generation atomic.Uint64

	retrainMu sync.Mutex

	events    EventSink
	runLogger func(report *TrainReport, source string)
}

func NewManager(path string, trainer *Trainer, logger *zap.SugaredLogger) *Manager {
	return &Manager{path: path, trainer: trainer, logger: logger}
}

// SetEventSink wires the live event stream. Call during wiring, before Init.
func (m *Manager) SetEventSink(sink EventSink) {
	m.events = sink
}

// SetRunLogger wires training run persistence. Call during wiring.
func (m *Manager) SetRunLogger(fn func(report *TrainReport, source string)) {
	m.runLogger = fn
}

// Current returns the served pipeline, or nil before Init succeeds.
func (m *Manager) Current() *Pipeline {
	return m.handle.Load()
}

// Generation increments on every handle swap.
func (m *Manager) Generation() uint64 {
	return m.generation.Load()
}

// Init makes the handle serveable: load the artifact when present, run at
// most one repair cycle when it is missing or corrupt. A load failure after
// the repair wraps ErrModelUnavailable and the process should not serve.
func (m *Manager) Init(ctx context.Context) error {
	state, err := StatArtifact(m.path)
	if err != nil {
		return fmt.Errorf("stat artifact %s: %w", m.path, err)
	}

	if state == ArtifactPresent {
		pipe, err := LoadArtifact(m.path)
		if err == nil {
			m.swap(pipe)
			m.logger.Infow("model loaded", "path", m.path, "rows", pipe.RowCount, "schema", pipe.Schema().String())
			return nil
		}
		if !errors.Is(err, ErrCorruptArtifact) {
			return fmt.Errorf("load artifact %s: %w", m.path, err)
		}
		m.logger.Warnw("model artifact corrupt, retraining", "path", m.path, "err", err)
		if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove corrupt artifact %s: %w", m.path, err)
		}
	} else {
		m.logger.Infow("no model artifact, training", "path", m.path)
	}

	report, err := m.trainer.TrainAndSave(ctx)
	if err != nil {
		return err
	}
	m.recordRun(report, "startup")

	pipe, err := LoadArtifact(m.path)
	if err != nil {
		return fmt.Errorf("%w: reload after training: %w", ErrModelUnavailable, err)
	}
	m.swap(pipe)
	m.logger.Infow("model trained and loaded", "path", m.path, "rows", pipe.RowCount)
	return nil
}

// Retrain runs one serialized training cycle and swaps the handle on
// success. A retrain already in flight rejects the caller with
// ErrRetrainInProgress. The served model keeps serving throughout; on any
// failure the handle stays untouched.
func (m *Manager) Retrain(ctx context.Context) (*TrainReport, error) {
	if !m.retrainMu.TryLock() {
		return nil, ErrRetrainInProgress
	}
	defer m.retrainMu.Unlock()

	m.publish(EventRetrainStarted, map[string]interface{}{
		"generation": m.generation.Load(),
	})

	report, err := m.trainer.TrainAndSave(ctx)
	if err != nil {
		m.publish(EventRetrainFailed, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	m.recordRun(report, "retrain")

	pipe, err := LoadArtifact(m.path)
	if err != nil {
		m.publish(EventRetrainFailed, map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("%w: reload after training: %w", ErrModelUnavailable, err)
	}
	m.swap(pipe)

	m.publish(EventRetrainFinished, map[string]interface{}{
		"generation":  m.generation.Load(),
		"rows":        report.Rows,
		"duration_ms": report.DurationMs,
	})
	return report, nil
}

// Reload loads the artifact and swaps it in unless the served model already
// came from the same training run. Failures leave the handle serving.
func (m *Manager) Reload() error {
	pipe, err := LoadArtifact(m.path)
	if err != nil {
		return err
	}
	if current := m.handle.Load(); current != nil && current.TrainedAt.Equal(pipe.TrainedAt) {
		return nil
	}
	m.swap(pipe)
	m.logger.Infow("model reloaded from disk", "path", m.path, "rows", pipe.RowCount)
	return nil
}

// Watch reloads the artifact when another process rewrites it, so a model
// trained by the CLI reaches a running server without a restart. Blocks
// until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	reload := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			// writes arrive in bursts; settle before loading
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			if err := m.Reload(); err != nil {
				m.logger.Warnw("artifact reload failed", "path", m.path, "err", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warnw("artifact watcher error", "err", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) swap(pipe *Pipeline) {
	// The handle stores before the generation bumps; a reader that took
	// generation g then loads a handle at least that new.
	m.handle.Store(pipe)
	generation := m.generation.Add(1)
	m.publish(EventModelLoaded, map[string]interface{}{
		"generation": generation,
		"trained_at": pipe.TrainedAt,
		"rows":       pipe.RowCount,
		"schema":     pipe.Schema().String(),
	})
}

func (m *Manager) publish(event string, data interface{}) {
	if m.events != nil {
		m.events.Publish(event, data)
	}
}

func (m *Manager) recordRun(report *TrainReport, source string) {
	if m.runLogger != nil {
		m.runLogger(report, source)
	}
}
