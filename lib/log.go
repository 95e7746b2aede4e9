package lib

import (
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
	LogFileName  = "vsmt.log"
)

/*
	Leveled logging for the tree, the stores and the command line. Output goes to any io.Writer, and when
	none is configured it goes to stdout plus an auto-rotating file under the data directory.
	Each line is: <timestamp> <LEVEL>: [<module>] <message>
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
)

var _ LoggerI = &Logger{}

// level describes how a severity is printed
type level struct {
	value int32
	tag   string
	paint func(format string, a ...interface{}) string
}

var (
	lvlDebug = level{DebugLevel, "DEBUG", color.BlueString}
	lvlInfo  = level{InfoLevel, "INFO", color.GreenString}
	lvlWarn  = level{WarnLevel, "WARN", color.YellowString}
	lvlError = level{ErrorLevel, "ERROR", color.RedString}
	lvlFatal = level{ErrorLevel, "FATAL", color.HiRedString}
)

// LoggerConfig holds configuration settings for the logger, including logging level and output writer
type LoggerConfig struct {
	Level   int32     `json:"level"`
	Module  string    `json:"module"`  // optional prefix identifying the component
	NoColor bool      `json:"noColor"` // plain output, used when writing to files only
	Out     io.Writer `json:"-"`
}

// Logger is the concrete implementation of LoggerI
type Logger struct {
	config LoggerConfig
	mu     *sync.Mutex // shared between a logger and its children so lines never interleave
	exit   func(code int)
}

// NewLogger() creates a new Logger with the specified configuration and optional data directory path
// if no writer is configured, logs go to stdout and a rotating file within the data directory
func NewLogger(config LoggerConfig, dataDirPath ...string) LoggerI {
	if config.Out == nil {
		dir := DefaultDataDirPath()
		if len(dataDirPath) != 0 && dataDirPath[0] != "" {
			dir = dataDirPath[0]
		}
		if err := os.MkdirAll(filepath.Join(dir, LogDirectory), os.ModePerm); err != nil {
			panic(err)
		}
		config.Out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   filepath.Join(dir, LogDirectory, LogFileName),
			MaxSize:    1, // megabyte
			MaxBackups: 1500,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	return &Logger{config: config, mu: new(sync.Mutex), exit: os.Exit}
}

// NewDefaultLogger() creates a Logger with default settings, logging at the Debug level to stdout
func NewDefaultLogger() LoggerI {
	return NewLogger(LoggerConfig{Level: DebugLevel, Out: os.Stdout})
}

// NewNullLogger() creates a Logger that discards all log output
func NewNullLogger() LoggerI {
	return NewLogger(LoggerConfig{Level: ErrorLevel, Out: io.Discard})
}

// WithModule() returns a child logger that prefixes every line with the module name
func (l *Logger) WithModule(module string) *Logger {
	cfg := l.config
	cfg.Module = module
	return &Logger{config: cfg, mu: l.mu, exit: l.exit}
}

// Level() returns the minimum level the logger prints
func (l *Logger) Level() int32 { return l.config.Level }

func (l *Logger) Debug(msg string)                          { l.log(lvlDebug, msg) }
func (l *Logger) Info(msg string)                           { l.log(lvlInfo, msg) }
func (l *Logger) Warn(msg string)                           { l.log(lvlWarn, msg) }
func (l *Logger) Error(msg string)                          { l.log(lvlError, msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(lvlDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(lvlInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(lvlWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(lvlError, fmt.Sprintf(format, args...)) }

// Print() logs a message without any specific log level or color
func (l *Logger) Print(msg string) { l.write(msg) }

// Printf() logs a formatted message without any specific log level or color
func (l *Logger) Printf(format string, args ...interface{}) { l.write(fmt.Sprintf(format, args...)) }

// Fatal() logs the message regardless of level and terminates the program
func (l *Logger) Fatal(msg string) {
	l.write(l.format(lvlFatal, msg))
	l.exit(1)
}

// Fatalf() logs the formatted message regardless of level and terminates the program
func (l *Logger) Fatalf(format string, args ...interface{}) { l.Fatal(fmt.Sprintf(format, args...)) }

// log() filters by level and writes the decorated message
func (l *Logger) log(lvl level, msg string) {
	if lvl.value < l.config.Level {
		return
	}
	l.write(l.format(lvl, msg))
}

// format() applies the level tag, module prefix and color, line by line so multi-line messages stay colored
func (l *Logger) format(lvl level, msg string) string {
	prefix := lvl.tag + ": "
	if l.config.Module != "" {
		prefix += "[" + l.config.Module + "] "
	}
	msg = prefix + msg
	if l.config.NoColor {
		return msg
	}
	lines := strings.Split(msg, "\n")
	for i, line := range lines {
		lines[i] = lvl.paint("%s", line)
	}
	return strings.Join(lines, "\n")
}

// write() outputs the message with a timestamp to the configured writer
func (l *Logger) write(msg string) {
	ts := time.Now().Format(time.StampMilli)
	if !l.config.NoColor {
		ts = color.HiBlackString(ts)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.config.Out, "%s %s\n", ts, msg); err != nil {
		fmt.Fprintln(os.Stderr, "logger write failed:", err)
	}
}
