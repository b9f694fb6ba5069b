package watcher

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/config"
	"github.com/smart-pulse-M1-GI/frontend/internal/logger"
)

// Settings holds the values that follow configuration reloads: the warning
// band read by open screens and the log level.
type Settings struct {
	warningBand atomic.Int64
	level       zap.AtomicLevel
	logger      *zap.Logger
}

// NewSettings seeds the settings from cfg. level is the handle returned by
// logger.New.
func NewSettings(cfg *config.Config, level zap.AtomicLevel, log *zap.Logger) *Settings {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Settings{level: level, logger: log}
	s.warningBand.Store(int64(cfg.Thresholds.WarningBand))
	return s
}

// WarningBand returns the current warning band in BPM.
func (s *Settings) WarningBand() int {
	return int(s.warningBand.Load())
}

// Apply takes the reloadable values from cfg. It is a ReloadCallback.
func (s *Settings) Apply(cfg *config.Config) {
	band := int64(cfg.Thresholds.WarningBand)
	if old := s.warningBand.Swap(band); old != band {
		s.logger.Info("Warning band changed", zap.Int64("from", old), zap.Int64("to", band))
	}

	lvl := logger.ParseLevel(cfg.Log.Level)
	if s.level.Level() != lvl {
		s.logger.Info("Log level changed", zap.String("to", lvl.String()))
		s.level.SetLevel(lvl)
	}
}
