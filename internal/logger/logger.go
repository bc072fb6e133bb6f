package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"roulette/internal/config"
)

const timeFmt = "2006/01/02 15:04:05.000"

type Config struct {
	Level string
	App   string
	Dir   string
	File  bool
}

// FromEnv reads LOG_LEVEL, LOG_DIR and LOG_FILE.
func FromEnv() Config {
	return Config{
		Level: config.GetEnv("LOG_LEVEL", "info"),
		App:   "roulette",
		Dir:   config.GetEnv("LOG_DIR", "./logs"),
		File:  config.GetEnvAsBool("LOG_FILE", false),
	}
}

// New builds a console logger, teed into rotated files when cfg.File is set.
func New(cfg Config) *zap.Logger {
	if cfg.App == "" {
		cfg.App = "roulette"
	}
	lv := zap.NewAtomicLevel()
	if err := lv.UnmarshalText([]byte(cfg.Level)); err != nil {
		_ = lv.UnmarshalText([]byte("info"))
		_, _ = fmt.Fprintf(os.Stderr, "logger: invalid log level %q, defaulting to INFO\n", cfg.Level)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg(false)), zapcore.Lock(os.Stdout), lv),
	}
	if cfg.File {
		name := filepath.Join(cfg.Dir, cfg.App)
		cores = append(cores, fileCore(name+".log", lv))
		cores = append(cores, fileCore(name+"_error.log", zap.ErrorLevel))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// Nop is used by tests and by components constructed without a logger.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func fileCore(file string, lv zapcore.LevelEnabler) zapcore.Core {
	w := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     10,
		Compress:   true,
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg(true)), zapcore.AddSync(w), lv)
}

func encCfg(file bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + t.Format(timeFmt) + "]")
	}
	cfg.ConsoleSeparator = " "
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	if file {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}
