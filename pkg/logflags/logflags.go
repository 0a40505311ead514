// Package logflags selects which layers of nview log and where.
//
// Every layer has its own logger. The logger of a disabled layer only
// reports errors, the logger of an enabled layer also reports debug
// messages.
package logflags

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Layers that can be passed to --log-output.
const (
	SelectorLayer = "selector"
	CacheLayer    = "cache"
	SessionLayer  = "session"
	SymbolsLayer  = "symbols"
	ScriptLayer   = "script"
)

// Layers lists the valid arguments of --log-output.
var Layers = []string{SelectorLayer, CacheLayer, SessionLayer, SymbolsLayer, ScriptLayer}

var enabled = map[string]bool{}

var logOut io.WriteCloser

func layerLogger(layer string) Logger {
	level := logrus.ErrorLevel
	if enabled[layer] {
		level = logrus.DebugLevel
	}
	return makeLogger(level, Fields{"layer": layer})
}

func makeLogger(level logrus.Level, fields Fields) Logger {
	var out io.Writer
	if logOut != nil {
		out = logOut
	}
	if loggerFactory != nil {
		return loggerFactory(level, fields, out)
	}
	return newEntryLogger(level, fields, out)
}

// Selector returns true if the layouts selected for types should be logged.
func Selector() bool { return enabled[SelectorLayer] }

// SelectorLogger returns the logger of the usertype package.
func SelectorLogger() Logger { return layerLogger(SelectorLayer) }

// Cache returns true if cache invalidations should be logged.
func Cache() bool { return enabled[CacheLayer] }

// CacheLogger returns the logger of the cache package.
func CacheLogger() Logger { return layerLogger(CacheLayer) }

// Session returns true if actions, attach and detach should be logged.
func Session() bool { return enabled[SessionLayer] }

// SessionLogger returns the logger of the session package.
func SessionLogger() Logger { return layerLogger(SessionLayer) }

// Symbols returns true if symbol loading should be logged.
func Symbols() bool { return enabled[SymbolsLayer] }

// SymbolsLogger returns the logger of the symbols package.
func SymbolsLogger() Logger { return layerLogger(SymbolsLayer) }

// Script returns true if starlark script execution should be logged.
func Script() bool { return enabled[ScriptLayer] }

// ScriptLogger returns the logger of the starlark bindings.
func ScriptLogger() Logger { return layerLogger(ScriptLayer) }

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup enables the layers listed in logstr, a comma separated list, the
// session layer when it is empty. Nothing is enabled unless logFlag is set.
// A non empty logDest is a file descriptor number or the path of the file
// logs are written to.
func Setup(logFlag bool, logstr, logDest string) error {
	if !logFlag {
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logDest != "" {
		if fd, err := strconv.Atoi(logDest); err == nil {
			logOut = os.NewFile(uintptr(fd), "nview-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	if logstr == "" {
		logstr = SessionLayer
	}
	for _, layer := range strings.Split(logstr, ",") {
		if !isLayer(layer) {
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'nview help log' for usage.\n", layer)
			continue
		}
		enabled[layer] = true
	}
	return nil
}

func isLayer(name string) bool {
	for _, layer := range Layers {
		if layer == name {
			return true
		}
	}
	return false
}

// Close closes the file set by Setup and disables every layer.
func Close() {
	if logOut != nil {
		logOut.Close()
		logOut = nil
	}
	enabled = map[string]bool{}
}

// textFormatter writes one line per entry: time, level, the fields sorted
// by key and the message. It never colors its output, logs stay readable
// in files.
type textFormatter struct{}

var textFormatterInstance = &textFormatter{}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = new(bytes.Buffer)
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "%s %s ", entry.Time.Format(time.RFC3339), entry.Level)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		val, ok := entry.Data[k].(string)
		if !ok {
			val = fmt.Sprint(entry.Data[k])
		}
		if strings.IndexFunc(val, needsQuoting) >= 0 {
			val = strconv.Quote(val)
		}
		fmt.Fprintf(b, "%s=%s", k, val)
	}
	if len(keys) > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func needsQuoting(ch rune) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return false
	}
	return !strings.ContainsRune("-._/@^+:", ch)
}
