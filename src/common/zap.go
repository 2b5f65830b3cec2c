package common

import (
	"os"

	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func ConfigureZap(level zapcore.Level) *zap.Logger {
	pe := zap.NewProductionEncoderConfig()
	pe.EncodeTime = zapcore.RFC3339TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(pe)

	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(colorable.NewColorableStdout()), level)
	return zap.New(core)
}

// ConfigureZapWithFile tees the console log into a json log file, used when
// the console runs unattended and the operator wants a session transcript.
func ConfigureZapWithFile(level zapcore.Level, path string) (*zap.Logger, func(), error) {
	pe := zap.NewProductionEncoderConfig()
	pe.EncodeTime = zapcore.RFC3339TimeEncoder
	fileEncoder := zapcore.NewJSONEncoder(pe)
	consoleEncoder := zapcore.NewConsoleEncoder(pe)

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0666)
	if err != nil {
		return nil, nil, err
	}
	core := zapcore.NewTee(
		zapcore.NewCore(fileEncoder, zapcore.AddSync(logFile), level),
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(colorable.NewColorableStdout()), level),
	)
	return zap.New(core), func() { logFile.Close() }, nil
}
