package logging

import (
	"regexp"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Registry tracks named loggers so that pattern configs can adjust their levels after creation.
type Registry struct {
	mu           sync.RWMutex
	loggers      map[string]Logger
	logConfig    []LoggerPatternConfig
	defaultLevel Level
}

// NewRegistry returns an empty registry. Loggers not matched by any pattern are reset to
// `defaultLevel` on UpdateConfig.
func NewRegistry(defaultLevel Level) *Registry {
	return &Registry{
		loggers:      make(map[string]Logger),
		defaultLevel: defaultLevel,
	}
}

// Sublogger creates `parent.Sublogger(subname)`, registers it under its full dotted name and
// applies any matching pattern config.
func (lr *Registry) Sublogger(parent Logger, parentName, subname string) Logger {
	name := subname
	if parentName != "" {
		name = parentName + "." + subname
	}
	return lr.getOrRegister(name, parent.Sublogger(subname))
}

func (lr *Registry) loggerNamed(name string) (logger Logger, ok bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok = lr.loggers[name]
	return
}

// levelFor returns the level of the last pattern matching `name`. Callers hold the lock.
func (lr *Registry) levelFor(name string) (Level, bool, error) {
	level, matched := lr.defaultLevel, false
	for _, lpc := range lr.logConfig {
		r, err := regexp.Compile(buildRegexFromPattern(lpc.Pattern))
		if err != nil {
			return level, false, err
		}
		if !r.MatchString(name) {
			continue
		}
		level, err = LevelFromString(lpc.Level)
		if err != nil {
			return level, false, err
		}
		matched = true
	}
	return level, matched, nil
}

// UpdateConfig replaces the pattern configs and re-levels every registered logger. Invalid
// patterns are reported to `errorLogger` and skipped.
func (lr *Registry) UpdateConfig(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	valid := make([]LoggerPatternConfig, 0, len(logConfig))
	for _, lpc := range logConfig {
		if err := lpc.Validate(); err != nil {
			errorLogger.Warnw("failed to validate a logger pattern", "pattern", lpc.Pattern, "error", err)
			continue
		}
		valid = append(valid, lpc)
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.logConfig = valid
	for name, logger := range lr.loggers {
		level, _, err := lr.levelFor(name)
		if err != nil {
			return errors.Wrapf(err, "logger %q", name)
		}
		logger.SetLevel(level)
	}
	return nil
}

// Names returns the registered logger names in sorted order.
func (lr *Registry) Names() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	registeredNames := make([]string, 0, len(lr.loggers))
	for name := range lr.loggers {
		registeredNames = append(registeredNames, name)
	}
	sort.Strings(registeredNames)
	return registeredNames
}

// getOrRegister will either:
//   - return an existing logger for the input logger `name` or
//   - register the input `logger` for the given logger `name` and configure it based on the
//     existing patterns.
func (lr *Registry) getOrRegister(name string, logger Logger) Logger {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if existingLogger, ok := lr.loggers[name]; ok {
		return existingLogger
	}

	lr.loggers[name] = logger
	if level, matched, err := lr.levelFor(name); err == nil && matched {
		logger.SetLevel(level)
	}
	return logger
}
