// Copyright 2023 Google Inc. All Rights Reserved.
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

// Package logger provides structured logging for the recovery engine: a
// slog.Handler that renders a "severity" field the way the rest of this
// codebase expects, backed by either stderr or a rotated log file.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rollforward/rollforward/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, threaded through slog.Level so standard level
// comparisons (handler.Enabled) keep working.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(16)
)

type loggerFactory struct {
	file            *os.File
	sysWriter       io.Writer
	format          string
	level           string
	logRotateConfig cfg.LogRotateConfig
}

var (
	defaultLoggerFactory = &loggerFactory{
		level:           cfg.INFO,
		format:          "text",
		logRotateConfig: cfg.GetDefaultLoggingConfig().LogRotate,
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, new(slog.LevelVar), ""))
)

func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	case cfg.TRACE:
		programLevel.Set(LevelTrace)
	case cfg.DEBUG:
		programLevel.Set(LevelDebug)
	case cfg.INFO:
		programLevel.Set(LevelInfo)
	case cfg.WARNING:
		programLevel.Set(LevelWarn)
	case cfg.ERROR:
		programLevel.Set(LevelError)
	case cfg.OFF:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(LevelInfo)
	}
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				a.Key = "severity"
				a.Value = slog.StringValue(severityName(a.Value.Any().(slog.Level)))
			case slog.MessageKey:
				a.Value = slog.StringValue(prefix + a.Value.String())
			case slog.TimeKey:
				if f.format != "json" {
					a.Value = slog.StringValue(a.Value.Time().Format("2006/01/02 15:04:05.000000"))
				}
			}
			return a
		},
	}
	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func severityName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARNING"
	case l < LevelOff:
		return "ERROR"
	default:
		return "OFF"
	}
}

// SetLogFormat switches the default logger between "text" and "json" (any
// value other than "json" falls back to "text").
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	programLevel := new(slog.LevelVar)
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	w := defaultLoggerFactory.sysWriter
	if w == nil {
		w = os.Stderr
	}
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
}

// InitLogFile points the default logger at a rotated log file, or back at
// stderr if cfg.FilePath is empty.
func InitLogFile(loggingCfg cfg.LoggingConfig) error {
	defaultLoggerFactory.format = loggingCfg.Format
	defaultLoggerFactory.level = string(loggingCfg.Severity)
	defaultLoggerFactory.logRotateConfig = loggingCfg.LogRotate

	var w io.Writer
	if loggingCfg.FilePath == "" {
		w = os.Stderr
		defaultLoggerFactory.file = nil
	} else {
		lj := &lumberjack.Logger{
			Filename:   string(loggingCfg.FilePath),
			MaxSize:    loggingCfg.LogRotate.MaxFileSizeMB,
			MaxBackups: loggingCfg.LogRotate.BackupFileCount,
			Compress:   loggingCfg.LogRotate.Compress,
		}
		w = lj
		f, err := os.OpenFile(string(loggingCfg.FilePath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file %q: %w", loggingCfg.FilePath, err)
		}
		defaultLoggerFactory.file = f
	}
	defaultLoggerFactory.sysWriter = w

	programLevel := new(slog.LevelVar)
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
	return nil
}

func logAt(level slog.Level, format string, v ...interface{}) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...interface{}) { logAt(LevelTrace, format, v...) }
func Debugf(format string, v ...interface{}) { logAt(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { logAt(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { logAt(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { logAt(LevelError, format, v...) }

// Close flushes and releases the backing log file, if any.
func Close() error {
	if defaultLoggerFactory.file != nil {
		return defaultLoggerFactory.file.Close()
	}
	return nil
}
