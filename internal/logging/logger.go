// Package logging provides the orchestrator's level-gated logger.
//
// All output goes to stderr: the core is frequently embedded behind a CLI
// or MCP-style stdio protocol, and stdout must stay reserved for whatever
// the host process is streaming there.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
)

// Logger is an explicitly constructed, stderr-only logger. Unlike a global
// singleton it is passed as part of the capability bundle at job boundary,
// so two concurrent jobs never share log state.
type Logger struct {
	debugEnabled bool
	out          *log.Logger
	fields       []field
}

type field struct {
	key   string
	value interface{}
}

// New returns a Logger writing to stderr. debugMode gates Debug output.
func New(debugMode bool) *Logger {
	return newWithWriter(os.Stderr, debugMode)
}

func newWithWriter(w io.Writer, debugMode bool) *Logger {
	return &Logger{
		debugEnabled: debugMode,
		out:          log.New(w, "", log.LstdFlags),
	}
}

// With returns a derived Logger that attaches key/value pairs to every
// subsequent line, e.g. log.With("job_id", jobID).With("agent_id", agentID).
func (l *Logger) With(key string, value interface{}) *Logger {
	next := &Logger{
		debugEnabled: l.debugEnabled,
		out:          l.out,
		fields:       append(append([]field{}, l.fields...), field{key, value}),
	}
	return next
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.out.Print(l.render("INFO", format, args...))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debugEnabled {
		return
	}
	l.out.Print(l.render("DEBUG", format, args...))
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.out.Print(l.render("ERROR", format, args...))
}

func (l *Logger) IsDebugEnabled() bool {
	return l.debugEnabled
}

func (l *Logger) render(level, format string, args ...interface{}) string {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(": ")
	b.WriteString(fmt.Sprintf(format, args...))
	if len(l.fields) > 0 {
		sorted := append([]field{}, l.fields...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].key < sorted[j].key })
		for _, f := range sorted {
			b.WriteString(" ")
			b.WriteString(f.key)
			b.WriteString("=")
			b.WriteString(fmt.Sprint(f.value))
		}
	}
	return b.String()
}
