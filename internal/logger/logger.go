// Copyright 2023 The recfs Authors. All Rights Reserved.
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

// Package logger provides the process-wide logger. Output goes to stderr
// by default, or to a rotated log file when one is configured.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below slog's built-in debug level.
const LevelTrace = slog.LevelDebug - 4

var (
	programLevel  = new(slog.LevelVar)
	defaultLogger = newLogger(os.Stderr, "text")
)

func levelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= slog.LevelDebug:
		return "DEBUG"
	case l <= slog.LevelInfo:
		return "INFO"
	case l <= slog.LevelWarn:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func replaceAttrs(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.LevelKey:
		return slog.String("severity", levelName(a.Value.Any().(slog.Level)))
	case slog.MessageKey:
		a.Key = "message"
		return a
	default:
		return a
	}
}

func newLogger(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       programLevel,
		ReplaceAttr: replaceAttrs,
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup configures the process-wide logger: severity is one of TRACE,
// DEBUG, INFO, WARNING, ERROR or OFF; format is "text" or "json"; a
// non-empty filePath redirects output to a size-rotated log file.
func Setup(severity, format, filePath string) error {
	switch strings.ToUpper(severity) {
	case "TRACE":
		programLevel.Set(LevelTrace)
	case "DEBUG":
		programLevel.Set(slog.LevelDebug)
	case "", "INFO":
		programLevel.Set(slog.LevelInfo)
	case "WARNING":
		programLevel.Set(slog.LevelWarn)
	case "ERROR":
		programLevel.Set(slog.LevelError)
	case "OFF":
		programLevel.Set(slog.LevelError + 4)
	default:
		return fmt.Errorf("invalid log severity %q", severity)
	}

	var w io.Writer = os.Stderr
	if filePath != "" {
		w = &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    100, // MiB
			MaxBackups: 10,
		}
	}
	defaultLogger = newLogger(w, format)
	return nil
}

func logf(level slog.Level, format string, v ...any) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

// Tracef logs at trace severity.
func Tracef(format string, v ...any) { logf(LevelTrace, format, v...) }

// Debugf logs at debug severity.
func Debugf(format string, v ...any) { logf(slog.LevelDebug, format, v...) }

// Info logs its arguments at info severity.
func Info(v ...any) { defaultLogger.Info(fmt.Sprint(v...)) }

// Infof logs at info severity.
func Infof(format string, v ...any) { logf(slog.LevelInfo, format, v...) }

// Warnf logs at warning severity.
func Warnf(format string, v ...any) { logf(slog.LevelWarn, format, v...) }

// Errorf logs at error severity.
func Errorf(format string, v ...any) { logf(slog.LevelError, format, v...) }
