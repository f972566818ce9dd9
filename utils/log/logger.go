/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level orders severities the same way the orchestrator does: ERROR < WARN < INFO < DEBUG
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Options configures the logger after the configuration has been loaded.
// Level is one of error/warn/info/debug, File enables a rotated copy of the log.
type Options struct {
	Level string
	File  string
	// Output defaults to stderr, stdout carries the status line of the check.
	Output io.Writer
}

var (
	mu           sync.RWMutex
	sugareLogger *zap.SugaredLogger
	fileHook     *lumberjack.Logger
)

func init() {
	level := "info"
	if os.Getenv("DEBUG") != "" {
		level = "debug"
	}
	if err := Init(Options{Level: level}); err != nil {
		panic(err)
	}
}

// Init rebuilds the global logger.
func Init(opts Options) error {
	zapLevel, err := parseLevel(opts.Level)
	if err != nil {
		return err
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}

	syncers := []zapcore.WriteSyncer{zapcore.AddSync(output)}
	var hook *lumberjack.Logger
	if opts.File != "" {
		hook = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    30, // megabytes
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		}
		syncers = append(syncers, zapcore.AddSync(hook))
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "line",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(syncers...),
		zapLevel,
	)

	mu.Lock()
	defer mu.Unlock()
	if fileHook != nil {
		_ = fileHook.Close()
	}
	fileHook = hook
	sugareLogger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		return zapcore.ErrorLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level [%s], expected one of error/warn/info/debug", level)
}

func logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugareLogger
}

// Logf is the severity-addressed entry of the facade.
func Logf(level Level, template string, args ...interface{}) {
	switch level {
	case LevelError:
		logger().Errorf(template, args...)
	case LevelWarn:
		logger().Warnf(template, args...)
	case LevelInfo:
		logger().Infof(template, args...)
	default:
		logger().Debugf(template, args...)
	}
}

func Debug(args ...interface{}) {
	logger().Debug(args...)
}

func Debugf(template string, args ...interface{}) {
	logger().Debugf(template, args...)
}

func Info(args ...interface{}) {
	logger().Info(args...)
}

func Infof(template string, args ...interface{}) {
	logger().Infof(template, args...)
}

func Warn(args ...interface{}) {
	logger().Warn(args...)
}

func Warnf(template string, args ...interface{}) {
	logger().Warnf(template, args...)
}

func Error(args ...interface{}) {
	logger().Error(args...)
}

func Errorf(template string, args ...interface{}) {
	logger().Errorf(template, args...)
}

// Sync flushes buffered entries, called right before the process exits.
func Sync() {
	_ = logger().Sync()
}
