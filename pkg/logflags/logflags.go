package logflags

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var crash = false
var unwind = false
var modules = false
var symbolizer = false
var memory = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if flag {
		return makeLogger(logrus.DebugLevel, fields)
	}
	return makeLogger(logrus.ErrorLevel, fields)
}

// Crash returns true if the crash dispatcher should log.
func Crash() bool {
	return crash
}

// CrashLogger returns a logger for the crash dispatcher.
func CrashLogger() Logger {
	return makeFlaggableLogger(crash, Fields{"layer": "crash"})
}

// Unwind returns true if the native unwinder should log every step.
func Unwind() bool {
	return unwind
}

// UnwindLogger returns a logger for the native unwinder.
func UnwindLogger() Logger {
	return makeFlaggableLogger(unwind, Fields{"layer": "unwind"})
}

// Modules returns true if module enumeration should be logged.
func Modules() bool {
	return modules
}

// ModulesLogger returns a logger for the module registry.
func ModulesLogger() Logger {
	return makeFlaggableLogger(modules, Fields{"layer": "modules"})
}

// Symbolizer returns true if external symbolizer invocations should be logged.
func Symbolizer() bool {
	return symbolizer
}

func SymbolizerLogger() Logger {
	return makeFlaggableLogger(symbolizer, Fields{"layer": "symbolize"})
}

// Memory returns true if guarded memory access failures should be logged.
func Memory() bool {
	return memory
}

func MemoryLogger() Logger {
	return makeFlaggableLogger(memory, Fields{"layer": "memory"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets crashwalk flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "crashwalk-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logOut != nil {
		log.SetOutput(logOut)
	}
	if logstr == "" {
		logstr = "crash"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "crash":
			crash = true
		case "unwind":
			unwind = true
		case "modules":
			modules = true
		case "symbolizer":
			symbolizer = true
		case "memory":
			memory = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'crashwalk help log' for usage.\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
}

var textFormatterInstance = &textFormatter{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	fmt.Fprintf(b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), entry.Level.String())
	if layer, ok := entry.Data["layer"]; ok {
		fmt.Fprintf(b, "%v ", layer)
	}
	for k, v := range entry.Data {
		if k == "layer" {
			continue
		}
		fmt.Fprintf(b, "%s=%v ", k, v)
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}
