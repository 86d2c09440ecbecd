package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// impl fans entries out to its appenders. Subloggers and With copies share the appenders slice
// but own their level and fields.
type impl struct {
	name      string
	level     AtomicLevel
	inUTC     bool
	fields    []zapcore.Field
	appenders []Appender
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) clone(name string) *impl {
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		fields:    imp.fields[:len(imp.fields):len(imp.fields)],
		appenders: imp.appenders,
	}
}

func (imp *impl) Sublogger(subname string) Logger {
	if imp.name == "" {
		return imp.clone(subname)
	}
	return imp.clone(imp.name + "." + subname)
}

func (imp *impl) With(keysAndValues ...interface{}) Logger {
	child := imp.clone(imp.name)
	child.fields = append(child.fields, toFields(keysAndValues)...)
	return child
}

func (imp *impl) Sync() error {
	var errs []error
	for _, appender := range imp.appenders {
		if err := appender.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

// emit must be called directly by the exported logging method so the caller lookup lands on
// the user's frame.
func (imp *impl) emit(level Level, msg string, keysAndValues []interface{}) {
	if level < imp.level.Get() {
		return
	}
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     getCaller(),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	fields := imp.fields
	if len(keysAndValues) != 0 {
		fields = append(fields[:len(fields):len(fields)], toFields(keysAndValues)...)
	}
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

// toFields pairs up alternating keys and values. A trailing key without a value is kept with an
// error as its value.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		var key string
		if stringer, ok := keysAndValues[i].(fmt.Stringer); ok {
			key = stringer.String()
		} else {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		if i+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		} else {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
		}
	}
	return fields
}

func (imp *impl) Debug(args ...interface{}) {
	imp.emit(DEBUG, fmt.Sprint(args...), nil)
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.emit(DEBUG, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.emit(DEBUG, msg, keysAndValues)
}

func (imp *impl) Info(args ...interface{}) {
	imp.emit(INFO, fmt.Sprint(args...), nil)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.emit(INFO, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.emit(INFO, msg, keysAndValues)
}

func (imp *impl) Warn(args ...interface{}) {
	imp.emit(WARN, fmt.Sprint(args...), nil)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.emit(WARN, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.emit(WARN, msg, keysAndValues)
}

func (imp *impl) Error(args ...interface{}) {
	imp.emit(ERROR, fmt.Sprint(args...), nil)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.emit(ERROR, fmt.Sprintf(template, args...), nil)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.emit(ERROR, msg, keysAndValues)
}

// getCaller skips itself, emit and the exported method. Example: "stitch/mapper.go:236".
func getCaller() zapcore.EntryCaller {
	const skipToLogCaller = 3
	var caller zapcore.EntryCaller
	var ok bool
	caller.PC, caller.File, caller.Line, ok = runtime.Caller(skipToLogCaller)
	if !ok {
		return caller
	}
	caller.Defined = true
	if fn := runtime.FuncForPC(caller.PC); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
