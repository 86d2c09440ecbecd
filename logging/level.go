package logging

import (
	"fmt"
	"strings"

	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"
)

// Level is an enum of log levels. Its value can be `DEBUG`, `INFO`, `WARN` or `ERROR`.
type Level int

const (
	// This numbering scheme serves two purposes:
	//   - A statement is logged if its log level matches or exceeds the logger's log level.
	//   - Its numbering is aligned with zap's so conversion is a cast.

	// DEBUG log level.
	DEBUG Level = -1
	// INFO log level.
	INFO Level = 0
	// WARN log level.
	WARN Level = 1
	// ERROR log level.
	ERROR Level = 2
)

func (level Level) String() string {
	switch level {
	case DEBUG:
		return "Debug"
	case INFO:
		return "Info"
	case WARN:
		return "Warn"
	case ERROR:
		return "Error"
	}

	panic(fmt.Sprintf("unreachable: %d", level))
}

// LevelFromString parses an input string to a log level. The string must be one of `debug`,
// `info`, `warn` or `error`. The parsing is case-insensitive. An error is returned if the input
// does not match one of labeled cases.
func LevelFromString(inp string) (Level, error) {
	switch strings.ToLower(inp) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}

	return DEBUG, fmt.Errorf("unknown log level: %q", inp)
}

// AsZap converts the Level to a `zapcore.Level`.
func (level Level) AsZap() zapcore.Level {
	return zapcore.Level(level)
}

// Valid reports whether level is one of the four labeled levels.
func (level Level) Valid() bool {
	return level >= DEBUG && level <= ERROR
}

// MarshalText encodes a log level as its lowercase name, which is how json and config files
// carry it.
func (level Level) MarshalText() ([]byte, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("unknown log level: %d", int(level))
	}
	return []byte(strings.ToLower(level.String())), nil
}

// UnmarshalText parses a log level name with LevelFromString.
func (level *Level) UnmarshalText(text []byte) (err error) {
	*level, err = LevelFromString(string(text))
	return
}

// AtomicLevel is a level that can be concurrently accessed.
type AtomicLevel struct {
	val *atomic.Int32
}

// NewAtomicLevelAt creates a new AtomicLevel at the input `initLevel`.
func NewAtomicLevelAt(initLevel Level) AtomicLevel {
	return AtomicLevel{val: atomic.NewInt32(int32(initLevel))}
}

// Set changes the level.
func (level AtomicLevel) Set(newLevel Level) {
	level.val.Store(int32(newLevel))
}

// Get returns the level.
func (level AtomicLevel) Get() Level {
	return Level(level.val.Load())
}
