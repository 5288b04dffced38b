package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/op/go-logging"
)

type Level logging.Level

// The levels that can be passed to the SetLevel function.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

// Backend level for each Level.
var backendLevels = [...]logging.Level{
	Debug:   logging.DEBUG,
	Info:    logging.INFO,
	Notice:  logging.NOTICE,
	Warning: logging.WARNING,
	Error:   logging.ERROR,
}

func (l Level) backendLevel() logging.Level {
	if l < Debug || l > Error {
		return logging.ERROR
	}
	return backendLevels[l]
}

func (l Level) String() string {
	return strings.ToLower(l.backendLevel().String())
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(name string) (Level, error) {
	backendLevel, err := logging.LogLevel(strings.TrimSpace(name))
	if err == nil {
		for level, candidate := range backendLevels {
			if candidate == backendLevel {
				return Level(level), nil
			}
		}
	}
	return Error, fmt.Errorf("log: unknown level %q", name)
}

var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

// Backend state. Levels are tracked here so they survive sink changes.
var (
	mu             sync.Mutex
	leveledBackend logging.LeveledBackend
	defaultLevel   = Notice
	moduleLevels   = make(map[string]Level)
)

// The logger interface
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// Create a new named logger. The name doubles as the module that
// SetModuleLevel refers to.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// Redirect all log output to sink keeping the configured levels.
func SetSink(sink io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	backend := logging.NewBackendFormatter(logging.NewLogBackend(sink, "", 0), format)
	leveledBackend = logging.AddModuleLevel(backend)
	leveledBackend.SetLevel(defaultLevel.backendLevel(), "")
	for module, level := range moduleLevels {
		leveledBackend.SetLevel(level.backendLevel(), module)
	}
	logging.SetBackend(leveledBackend)
}

// Set the verbosity of every module without an explicit override.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	defaultLevel = level
	leveledBackend.SetLevel(level.backendLevel(), "")
}

// Set the verbosity of a single named logger.
func SetModuleLevel(module string, level Level) {
	mu.Lock()
	defer mu.Unlock()
	moduleLevels[module] = level
	leveledBackend.SetLevel(level.backendLevel(), module)
}

// Drop all per-module overrides.
func ResetModuleLevels() {
	mu.Lock()
	defer mu.Unlock()
	for module := range moduleLevels {
		leveledBackend.SetLevel(defaultLevel.backendLevel(), module)
	}
	moduleLevels = make(map[string]Level)
}

// ParseModuleLevels parses a comma separated list of module=level pairs,
// e.g. "voxelizer=debug,path tracer=warning".
func ParseModuleLevels(list string) (map[string]Level, error) {
	levels := make(map[string]Level)
	for _, pair := range strings.Split(list, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		module, name, found := strings.Cut(pair, "=")
		module = strings.TrimSpace(module)
		if !found || module == "" {
			return nil, fmt.Errorf("log: expected module=level; got %q", pair)
		}
		level, err := ParseLevel(name)
		if err != nil {
			return nil, err
		}
		levels[module] = level
	}
	return levels, nil
}

// Map the -v / -vv command line switches to a log level.
func LevelFromVerbosity(verbose, veryVerbose bool) Level {
	switch {
	case veryVerbose:
		return Debug
	case verbose:
		return Info
	}
	return Notice
}

func init() {
	SetSink(os.Stdout)
}
