package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger *zap.Logger

type Options struct {
	Development bool
	// File enables an additional rotating log file.
	File string
}

func Init(opts Options) *zap.Logger {
	config := zap.NewProductionConfig()
	if opts.Development {
		config = zap.NewDevelopmentConfig()
	}
	return initLogger(config, opts.File)
}

func InitProd() *zap.Logger {
	return initLogger(zap.NewProductionConfig(), "")
}

func InitDev() *zap.Logger {
	return initLogger(zap.NewDevelopmentConfig(), "")
}

func initLogger(config zap.Config, file string) *zap.Logger {
	var err error
	options := []zap.Option{zap.AddStacktrace(zap.WarnLevel)}
	if file != "" {
		options = append(options, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore(config, file))
		}))
	}

	logger, err = config.Build(options...)
	if err != nil {
		fmt.Printf("Failed to init zap logger: %v", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)
	return logger
}

func fileCore(config zap.Config, file string) zapcore.Core {
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), writer, config.Level)
}

func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
