package evaluator

import (
	"context"
	"fmt"
	"os"
	"sync"

	"agrismart-monitor/internal/models"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultProfiles are the built-in type defaults. light, rainfall and water_level
// are unmonitored unless a profile file adds them.
func DefaultProfiles() map[models.SensorType]models.ThresholdProfile {
	return map[models.SensorType]models.ThresholdProfile{
		models.SensorSoilMoisture:   {Min: 20, Max: 80, CriticalMin: 10, CriticalMax: 95},
		models.SensorAirTemperature: {Min: 15, Max: 40, CriticalMin: 10, CriticalMax: 45},
		models.SensorAirHumidity:    {Min: 30, Max: 80, CriticalMin: 20, CriticalMax: 90},
		models.SensorSoilPH:         {Min: 5.5, Max: 7.5, CriticalMin: 4.5, CriticalMax: 8.5},
	}
}

// StaticProfiles is a fixed ProfileSource.
type StaticProfiles map[models.SensorType]models.ThresholdProfile

func (s StaticProfiles) Profile(t models.SensorType) (models.ThresholdProfile, bool) {
	p, ok := s[t]
	return p, ok
}

// profileFile is the YAML layout:
//
//	profiles:
//	  soil_moisture: {min: 20, max: 80, critical_min: 10, critical_max: 95}
//	  water_level:   {min: 10, max: 150, critical_min: 5, critical_max: 180}
type profileFile struct {
	Profiles map[models.SensorType]models.ThresholdProfile `yaml:"profiles"`
}

// LoadProfileFile parses a YAML profile file. Unknown types and misordered
// profiles are rejected so a bad edit never replaces a good table.
func LoadProfileFile(path string) (map[models.SensorType]models.ThresholdProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read thresholds file: %w", err)
	}

	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse thresholds file: %w", err)
	}

	for t, p := range pf.Profiles {
		if !t.Valid() {
			return nil, fmt.Errorf("thresholds file: unknown sensor type %q", t)
		}
		if !p.Ordered() {
			return nil, fmt.Errorf("thresholds file: %s: expected critical_min < min < max < critical_max", t)
		}
	}
	return pf.Profiles, nil
}

// FileProfiles is a ProfileSource backed by a YAML file, layered over the
// built-in defaults and replaced atomically on reload.
type FileProfiles struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	profiles map[models.SensorType]models.ThresholdProfile
}

// NewFileProfiles loads path once. The file's entries override built-in defaults per type.
func NewFileProfiles(path string, logger *zap.Logger) (*FileProfiles, error) {
	f := &FileProfiles{path: path, logger: logger}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileProfiles) Profile(t models.SensorType) (models.ThresholdProfile, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.profiles[t]
	return p, ok
}

// Reload re-reads the file. On error the previous table stays active.
func (f *FileProfiles) Reload() error {
	loaded, err := LoadProfileFile(f.path)
	if err != nil {
		return err
	}

	merged := DefaultProfiles()
	for t, p := range loaded {
		merged[t] = p
	}

	f.mu.Lock()
	f.profiles = merged
	f.mu.Unlock()
	return nil
}

// Watch reloads the file on write/create until ctx is cancelled.
func (f *FileProfiles) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(f.path); err != nil {
		return err
	}

	f.logger.Info("Watching thresholds file", zap.String("path", f.path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// editors save atomically via rename, so Create counts too
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := f.Reload(); err != nil {
				f.logger.Error("Thresholds reload failed, keeping previous profiles",
					zap.String("path", f.path),
					zap.Error(err),
				)
				continue
			}
			f.logger.Info("Thresholds reloaded", zap.String("path", f.path))

			// re-add in case the inode was replaced
			_ = watcher.Add(f.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Error("Thresholds watcher error", zap.Error(err))
		}
	}
}
