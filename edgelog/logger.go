// Package edgelog wires go.uber.org/zap the way goscade's example/pkg/logger
// package does, extended with a lumberjack-backed rotating file sink and an
// optional systemd journal sink for when edged runs as a unit.
package edgelog

import (
	"fmt"
	"os"

	"github.com/coreos/go-systemd/v22/journal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Cfg configures the logger, mirroring goscade's LoggerCfg plus the file
// rotation and journal knobs an edge daemon needs.
type Cfg struct {
	Level         string
	Development   bool
	DisableCaller bool
	DisableJson   bool

	// File, if set, directs output to a lumberjack-rotated file instead of
	// stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Journal sends records to the systemd journal in addition to
	// File/stdout, when the process is actually running under systemd.
	// Only the f-suffixed methods (Debugf/Infof/Warnf/Errorf) are mirrored;
	// Debug/Info/Warn/Error write to File/stdout only.
	Journal bool
}

// Logger wraps a *zap.SugaredLogger behind the narrow interface every
// subsystem in this repo accepts (shellrunner.Logger is a subset of it).
type Logger struct {
	cfg    Cfg
	sugar  *zap.SugaredLogger
	toJour bool
}

var levelMap = map[string]zapcore.Level{
	"debug":  zapcore.DebugLevel,
	"info":   zapcore.InfoLevel,
	"warn":   zapcore.WarnLevel,
	"error":  zapcore.ErrorLevel,
	"dpanic": zapcore.DPanicLevel,
	"panic":  zapcore.PanicLevel,
	"fatal":  zapcore.FatalLevel,
}

// New builds a Logger from cfg.
func New(cfg Cfg) *Logger {
	l := &Logger{cfg: cfg}
	l.init()
	return l
}

func (l *Logger) level() zapcore.Level {
	if lvl, ok := levelMap[l.cfg.Level]; ok {
		return lvl
	}
	return zapcore.InfoLevel
}

func (l *Logger) init() {
	var writer zapcore.WriteSyncer
	if l.cfg.File != "" {
		writer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   l.cfg.File,
			MaxSize:    orDefault(l.cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(l.cfg.MaxBackups, 5),
			MaxAge:     orDefault(l.cfg.MaxAgeDays, 28),
		})
	} else {
		writer = zapcore.AddSync(os.Stdout)
	}

	var encoderCfg zapcore.EncoderConfig
	if l.cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
	}
	encoderCfg.LevelKey = "LEVEL"
	encoderCfg.CallerKey = "CALLER"
	encoderCfg.TimeKey = "TIME"
	encoderCfg.NameKey = "NAME"
	encoderCfg.MessageKey = "MESSAGE"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if l.cfg.DisableJson {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, writer, zap.NewAtomicLevelAt(l.level()))
	var opts []zap.Option
	if !l.cfg.DisableCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	l.sugar = zap.New(core, opts...).Sugar()
	l.toJour = l.cfg.Journal && journal.Enabled()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *Logger) Debug(args ...interface{}) { l.sugar.Debug(args...) }
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
	l.toJournal(journal.PriDebug, format, args...)
}
func (l *Logger) Info(args ...interface{}) { l.sugar.Info(args...) }
func (l *Logger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
	l.toJournal(journal.PriInfo, format, args...)
}
func (l *Logger) Warn(args ...interface{}) { l.sugar.Warn(args...) }
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
	l.toJournal(journal.PriWarning, format, args...)
}
func (l *Logger) Error(args ...interface{}) { l.sugar.Error(args...) }
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
	l.toJournal(journal.PriErr, format, args...)
}

func (l *Logger) toJournal(pri journal.Priority, format string, args ...interface{}) {
	if !l.toJour {
		return
	}
	_ = journal.Send(sprintf(format, args...), pri, nil)
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
