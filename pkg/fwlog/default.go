// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fwlog

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger Logger = newZapLogger(os.Stderr, LevelInfo)

// SetOutput sets the output of default logger. By default, it is stderr.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetLevel sets the level of logs below which logs will not be output.
// The default log level is LevelInfo.
func SetLevel(lv Level) {
	logger.SetLevel(lv)
}

// DefaultLogger return the default logger.
func DefaultLogger() Logger {
	return logger
}

// SetLogger sets the default logger.
// Note that this method is not concurrent-safe and must not be called
// after the use of DefaultLogger and global functions in this package.
func SetLogger(v Logger) {
	logger = v
}

// Fatal calls the default logger's Fatal method and then os.Exit(1).
func Fatal(v ...any) {
	logger.Fatal(v...)
}

// Error calls the default logger's Error method.
func Error(v ...any) {
	logger.Error(v...)
}

// Warn calls the default logger's Warn method.
func Warn(v ...any) {
	logger.Warn(v...)
}

// Info calls the default logger's Info method.
func Info(v ...any) {
	logger.Info(v...)
}

// Debug calls the default logger's Debug method.
func Debug(v ...any) {
	logger.Debug(v...)
}

// Fatalf calls the default logger's Fatalf method and then os.Exit(1).
func Fatalf(format string, v ...any) {
	logger.Fatalf(format, v...)
}

// Errorf calls the default logger's Errorf method.
func Errorf(format string, v ...any) {
	logger.Errorf(format, v...)
}

// Warnf calls the default logger's Warnf method.
func Warnf(format string, v ...any) {
	logger.Warnf(format, v...)
}

// Infof calls the default logger's Infof method.
func Infof(format string, v ...any) {
	logger.Infof(format, v...)
}

// Debugf calls the default logger's Debugf method.
func Debugf(format string, v ...any) {
	logger.Debugf(format, v...)
}

// zapLogger writes JSON lines through a zap core whose level can be
// changed at runtime without rebuilding the encoder.
type zapLogger struct {
	mu    sync.RWMutex
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

func newZapLogger(w io.Writer, lv Level) *zapLogger {
	zl := &zapLogger{level: zap.NewAtomicLevelAt(lv.toZapLevel())}
	zl.build(w)
	return zl
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func (zl *zapLogger) build(w io.Writer) {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		zl.level,
	)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
	zl.mu.Lock()
	zl.sugar = l.Sugar()
	zl.mu.Unlock()
}

func (zl *zapLogger) s() *zap.SugaredLogger {
	zl.mu.RLock()
	defer zl.mu.RUnlock()
	return zl.sugar
}

func (zl *zapLogger) SetOutput(w io.Writer) {
	zl.build(w)
}

func (zl *zapLogger) SetLevel(lv Level) {
	zl.level.SetLevel(lv.toZapLevel())
}

func (zl *zapLogger) Fatal(v ...any) {
	zl.s().Fatal(v...)
}

func (zl *zapLogger) Error(v ...any) {
	zl.s().Error(v...)
}

func (zl *zapLogger) Warn(v ...any) {
	zl.s().Warn(v...)
}

func (zl *zapLogger) Info(v ...any) {
	zl.s().Info(v...)
}

func (zl *zapLogger) Debug(v ...any) {
	zl.s().Debug(v...)
}

func (zl *zapLogger) Fatalf(format string, v ...any) {
	zl.s().Fatalf(format, v...)
}

func (zl *zapLogger) Errorf(format string, v ...any) {
	zl.s().Errorf(format, v...)
}

func (zl *zapLogger) Warnf(format string, v ...any) {
	zl.s().Warnf(format, v...)
}

func (zl *zapLogger) Infof(format string, v ...any) {
	zl.s().Infof(format, v...)
}

func (zl *zapLogger) Debugf(format string, v ...any) {
	zl.s().Debugf(format, v...)
}
