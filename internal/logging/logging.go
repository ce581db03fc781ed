// Package logging wires the service's structured logger and the plain
// access and page logs onto rotating files.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects log destinations. Paths accept a file name or one of
// "stderr", "stdout" and "none".
type Config struct {
	ErrorLog  string
	AccessLog string
	PageLog   string
	MaxSize   int64
	// Level is a zap level name; empty means info.
	Level string
	// Format is "json" or "console".
	Format string
	// AccessLevel is "all", "actions" or "none".
	AccessLevel string
}

type manager struct {
	errorLog    *RotatingFile
	accessLog   *RotatingFile
	pageLog     *RotatingFile
	accessLevel string
	logger      *zap.Logger
}

var (
	globalMu sync.RWMutex
	global   = manager{logger: zap.NewNop(), accessLevel: "actions"}
)

// Configure installs the process loggers and returns the structured one.
func Configure(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, err
		}
	}

	errorPath := cfg.ErrorLog
	if strings.TrimSpace(errorPath) == "" {
		errorPath = "stderr"
	}
	errorLog := NewRotatingFile(errorPath, cfg.MaxSize)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "console") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(errorLog), zap.NewAtomicLevelAt(level))
	logger := zap.New(core, zap.AddCaller())

	accessLevel := strings.ToLower(strings.TrimSpace(cfg.AccessLevel))
	if accessLevel == "" {
		accessLevel = "actions"
	}

	globalMu.Lock()
	old := global
	global = manager{
		errorLog:    errorLog,
		accessLog:   NewRotatingFile(cfg.AccessLog, cfg.MaxSize),
		pageLog:     NewRotatingFile(cfg.PageLog, cfg.MaxSize),
		accessLevel: accessLevel,
		logger:      logger,
	}
	globalMu.Unlock()

	_ = old.logger.Sync()
	for _, f := range []*RotatingFile{old.errorLog, old.accessLog, old.pageLog} {
		_ = f.Close()
	}
	return logger, nil
}

// L returns the configured structured logger, a no-op one before Configure.
func L() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global.logger
}

// Sync flushes the structured logger.
func Sync() error {
	return L().Sync()
}

func accessLevel() string {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global.accessLevel
}

func Access(line string) {
	globalMu.RLock()
	logger := global.accessLog
	globalMu.RUnlock()
	if logger != nil {
		_ = logger.WriteLine(line)
	}
}

func Page(line string) {
	globalMu.RLock()
	logger := global.pageLog
	globalMu.RUnlock()
	if logger != nil {
		_ = logger.WriteLine(line)
	}
}
