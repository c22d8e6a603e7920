package lib

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogDirectory = "logs"
	LogFileName  = "log"
)

/*
	Leveled, colored logging for the tree, the stores and the command line.
	Output goes to a configured writer, or to stdout plus an auto-rotating file in the data directory.
*/

// LoggerI defines the interface for various logging levels and formatted output
type LoggerI interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	Print(msg string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	Printf(format string, args ...interface{})
}

const (
	DebugLevel int32 = -4
	InfoLevel  int32 = 0
	WarnLevel  int32 = 4
	ErrorLevel int32 = 8
	FatalLevel int32 = 12
)

var (
	_ LoggerI = &Logger{}

	// levelTags maps a level to its printed tag and color
	levelTags = map[int32]struct {
		tag   string
		paint func(format string, a ...interface{}) string
	}{
		DebugLevel: {"DEBUG", color.BlueString},
		InfoLevel:  {"INFO", color.GreenString},
		WarnLevel:  {"WARN", color.YellowString},
		ErrorLevel: {"ERROR", color.RedString},
		FatalLevel: {"FATAL", color.RedString},
	}

	// exit is swapped in tests
	exit = os.Exit
)

// LoggerConfig holds configuration settings for the logger, including logging level and output writer
type LoggerConfig struct {
	Level   int32 `json:"level"`
	NoColor bool  `json:"noColor"`
	Out     io.Writer
}

// Logger is the concrete implementation of LoggerI, managing log output based on configuration
type Logger struct {
	config LoggerConfig
	mu     *sync.Mutex
}

func (l *Logger) Debug(msg string) { l.log(DebugLevel, msg) }
func (l *Logger) Info(msg string)  { l.log(InfoLevel, msg) }
func (l *Logger) Warn(msg string)  { l.log(WarnLevel, msg) }
func (l *Logger) Error(msg string) { l.log(ErrorLevel, msg) }

// Fatal() logs an error message and terminates the program
func (l *Logger) Fatal(msg string) {
	l.log(FatalLevel, msg)
	exit(1)
}

// Print() logs a message without any level tag or color
func (l *Logger) Print(msg string) { l.write(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(InfoLevel, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(WarnLevel, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(ErrorLevel, format, args...) }

// Fatalf() logs a formatted error message and terminates the program
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logf(FatalLevel, format, args...)
	exit(1)
}

// Printf() logs a formatted message without any level tag or color
func (l *Logger) Printf(format string, args ...interface{}) { l.write(fmt.Sprintf(format, args...)) }

// logf() formats lazily: nothing is formatted for a suppressed level
func (l *Logger) logf(level int32, format string, args ...interface{}) {
	if l.config.Level > level {
		return
	}
	l.log(level, fmt.Sprintf(format, args...))
}

// log() tags and colors a message if the configured level allows it
func (l *Logger) log(level int32, msg string) {
	if l.config.Level > level {
		return
	}
	lt := levelTags[level]
	l.write(l.paint(lt.paint, lt.tag+": "+msg))
}

// paint() applies a color to each line separately so multi-line errors stay colored
func (l *Logger) paint(p func(format string, a ...interface{}) string, msg string) string {
	if l.config.NoColor {
		return msg
	}
	lines := strings.Split(msg, "\n")
	for i, line := range lines {
		lines[i] = p("%s", line)
	}
	return strings.Join(lines, "\n")
}

// write() outputs the log message with a timestamp to the configured writer
func (l *Logger) write(msg string) {
	ts := time.Now().Format(time.StampMilli)
	if !l.config.NoColor {
		ts = color.HiBlackString(ts)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.config.Out, "%s %s\n", ts, msg); err != nil {
		fmt.Println(newLogError(err))
	}
}

// NewLogger() creates a new Logger instance with the specified configuration and optional data directory path
// when no writer is configured, logs go to stdout and to a rotating file under <dataDir>/logs
func NewLogger(config LoggerConfig, dataDirPath ...string) LoggerI {
	if config.Out == nil {
		dir := DefaultDataDirPath()
		if len(dataDirPath) != 0 && dataDirPath[0] != "" {
			dir = dataDirPath[0]
		}
		logPath := filepath.Join(dir, LogDirectory, LogFileName)
		if _, err := os.Stat(logPath); errors.Is(err, os.ErrNotExist) {
			if err = os.MkdirAll(filepath.Join(dir, LogDirectory), os.ModePerm); err != nil {
				panic(err)
			}
		}
		config.Out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    1, // megabyte
			MaxBackups: 100,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	return &Logger{config: config, mu: &sync.Mutex{}}
}

// NewDefaultLogger() creates a Logger with default settings, logging at the Debug level to stdout
func NewDefaultLogger() LoggerI {
	return NewLogger(LoggerConfig{Level: DebugLevel, Out: os.Stdout})
}

// NewNullLogger() creates a Logger that discards all log output
func NewNullLogger() LoggerI {
	return NewLogger(LoggerConfig{Level: DebugLevel, Out: io.Discard})
}
