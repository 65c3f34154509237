package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"sentinel_bot/internal/models"
)

// CalendarFileName is looked up in the broker working directory when no path is set.
const CalendarFileName = "economic_calendar.json"

// FileSource reads a calendar snapshot written to disk by the terminal.
// .yaml/.yml files are decoded as YAML, everything else as JSON.
type FileSource struct {
	layout string

	mu     sync.RWMutex
	path   string
	broker Broker
}

func NewFileSource(path, layout string) *FileSource {
	return &FileSource{path: path, layout: layoutOrDefault(layout)}
}

func (s *FileSource) BindBroker(b Broker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broker = b
}

// Path returns the configured path or "" while it is still unresolved.
func (s *FileSource) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

func (s *FileSource) resolvePath(ctx context.Context) (string, error) {
	s.mu.RLock()
	path, broker := s.path, s.broker
	s.mu.RUnlock()
	if path != "" {
		return path, nil
	}
	if broker == nil {
		return "", errors.Wrap(ErrFeedUnavailable, "file: no path and no broker bound")
	}

	dir, err := broker.WorkingDirectory(ctx)
	if err != nil {
		return "", errors.Wrapf(ErrFeedUnavailable, "file: working directory: %v", err)
	}
	path = filepath.Join(dir, CalendarFileName)

	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
	return path, nil
}

func (s *FileSource) LoadSnapshot(ctx context.Context) ([]models.EconomicEvent, error) {
	path, err := s.resolvePath(ctx)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrFeedUnavailable, "file %s: %v", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(data, s.layout, "file")
	default:
		return decodeJSON(data, s.layout, "file")
	}
}

func decodeYAML(data []byte, layout, source string) ([]models.EconomicEvent, error) {
	var records []feedRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrapf(ErrFeedUnavailable, "%s: decode: %v", source, err)
	}
	return recordsToEvents(records, layout, source)
}
