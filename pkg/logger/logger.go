// Package logger provides leveled, component-tagged logging for miabridge.
//
// Log lines go to stderr and, when a file is attached, to that file as
// well. Components are short subsystem tags ("gateway", "flags",
// "relay") so one stream stays greppable.
package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return "UNKNOWN"
}

var (
	mu      sync.Mutex
	level   = INFO
	logFile *os.File
)

// SetLevel sets the minimum level that will be emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// AttachFile opens path for appending and mirrors all log output to it.
func AttachFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	return nil
}

// CloseFile detaches and closes the log file, if any.
func CloseFile() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func emit(l Level, component, msg string, fields map[string]any) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}

	line := fmt.Sprintf("%s %-5s [%s] %s%s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		l.String(), component, msg, formatFields(fields))

	fmt.Fprint(os.Stderr, line)
	if logFile != nil {
		fmt.Fprint(logFile, line)
	}
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, fields[k])
	}
	return sb.String()
}

func DebugC(component, msg string) { emit(DEBUG, component, msg, nil) }
func DebugCF(component, msg string, fields map[string]any) { emit(DEBUG, component, msg, fields) }

func InfoC(component, msg string) { emit(INFO, component, msg, nil) }
func InfoCF(component, msg string, fields map[string]any) { emit(INFO, component, msg, fields) }

func WarnC(component, msg string) { emit(WARN, component, msg, nil) }
func WarnCF(component, msg string, fields map[string]any) { emit(WARN, component, msg, fields) }

func ErrorC(component, msg string) { emit(ERROR, component, msg, nil) }
func ErrorCF(component, msg string, fields map[string]any) { emit(ERROR, component, msg, fields) }
