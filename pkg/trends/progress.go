package trends

import (
	"encoding/json"
	"os"
	"time"

	"go.uber.org/zap"
)

// progressTTL is how long a persisted snapshot stays usable.
const progressTTL = 24 * time.Hour

// Progress is the durable record of a partially completed bulk run.
type Progress struct {
	Completed map[string]*float64 `json:"completed"`
	Remaining []string            `json:"remaining"`
	Failed    []string            `json:"failed"`
	Timestamp int64               `json:"timestamp"`
}

// ProgressStore persists bulk-run progress to a local JSON file.
type ProgressStore struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

// NewProgressStore creates a store writing to path.
func NewProgressStore(path string, logger *zap.Logger) *ProgressStore {
	return &ProgressStore{path: path, logger: logger, now: time.Now}
}

// WithClock overrides the store's clock. Test hook.
func (s *ProgressStore) WithClock(now func() time.Time) *ProgressStore {
	s.now = now
	return s
}

// Load returns the persisted snapshot when it exists, parses, and is
// younger than 24 hours. Anything else yields (nil, false); a stale
// snapshot is deleted.
func (s *ProgressStore) Load() (*Progress, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read trends progress", zap.String("path", s.path), zap.Error(err))
		}
		return nil, false
	}

	var progress Progress
	if err := json.Unmarshal(data, &progress); err != nil {
		s.logger.Error("trends progress file is corrupt, discarding",
			zap.String("path", s.path), zap.Error(err))
		s.Delete()
		return nil, false
	}

	age := s.now().Sub(time.Unix(progress.Timestamp, 0))
	if age > progressTTL {
		s.logger.Info("discarding stale trends progress",
			zap.String("path", s.path), zap.Duration("age", age))
		s.Delete()
		return nil, false
	}

	if progress.Completed == nil {
		progress.Completed = make(map[string]*float64)
	}
	return &progress, true
}

// Save persists the snapshot, stamping it with the current time.
func (s *ProgressStore) Save(completed map[string]*float64, remaining, failed []string) {
	progress := Progress{
		Completed: completed,
		Remaining: remaining,
		Failed:    failed,
		Timestamp: s.now().Unix(),
	}

	data, err := json.Marshal(progress)
	if err != nil {
		s.logger.Error("failed to encode trends progress", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error("failed to write trends progress", zap.String("path", s.path), zap.Error(err))
	}
}

// Delete removes the snapshot file.
func (s *ProgressStore) Delete() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Error("failed to delete trends progress", zap.String("path", s.path), zap.Error(err))
	}
}
