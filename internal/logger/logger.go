// Package logger writes category-tagged lines to the terminal and, for the
// service binaries, JSON lines to a daily file.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[LogLevel]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[LogLevel]color.Attribute{
	DEBUG: color.FgCyan,
	INFO:  color.FgGreen,
	WARN:  color.FgYellow,
	ERROR: color.FgRed,
	FATAL: color.FgHiRed,
}

func (lv LogLevel) String() string {
	if name, ok := levelNames[lv]; ok {
		return name
	}
	return "INFO"
}

// ParseLevel accepts the level names case-insensitively and defaults to INFO.
func ParseLevel(s string) LogLevel {
	for lv, name := range levelNames {
		if strings.EqualFold(s, name) {
			return lv
		}
	}
	return INFO
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Service   string `json:"service,omitempty"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	Caller    string `json:"caller,omitempty"`
}

type Options struct {
	// Dir receives <service>-YYYY-MM-DD.log. Empty disables the file.
	Dir     string
	Service string
	Level   LogLevel
	Color   bool
}

type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	file    *os.File
	service string
	level   LogLevel
	color   bool
}

func New(opts Options) (*Logger, error) {
	l := &Logger{out: os.Stdout, service: opts.Service, level: opts.Level, color: opts.Color}
	if opts.Dir == "" {
		return l, nil
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := opts.Service
	if name == "" {
		name = "service"
	}
	path := filepath.Join(opts.Dir, fmt.Sprintf("%s-%s.log", name, time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.file = f
	l.Info("LOGGER", fmt.Sprintf("Writing JSON log to %s", path))
	return l, nil
}

// NewLogger is New with the service defaults, falling back to terminal-only
// output when the log file cannot be opened.
func NewLogger() *Logger {
	l, err := New(Options{Dir: "logs", Service: "qr-inventory", Level: INFO, Color: true})
	if err != nil {
		l = &Logger{out: os.Stdout, service: "qr-inventory", level: INFO, color: true}
		l.Warn("LOGGER", err.Error())
	}
	return l
}

// NewWithWriter logs plain lines to w and keeps no file. Used by tests.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{out: w, level: DEBUG}
}

func Discard() *Logger {
	return NewWithWriter(io.Discard)
}

// SetLevel drops entries below lv from both outputs.
func (l *Logger) SetLevel(lv LogLevel) {
	l.mu.Lock()
	l.level = lv
	l.mu.Unlock()
}

func (l *Logger) log(lv LogLevel, category, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lv < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     lv.String(),
		Service:   l.service,
		Category:  strings.ToUpper(category),
		Message:   message,
	}
	entry.Caller = caller()

	if l.out != nil {
		fmt.Fprint(l.out, l.terminalLine(lv, entry))
	}
	if l.file != nil {
		if b, err := json.Marshal(entry); err == nil {
			l.file.Write(append(b, '\n'))
		}
	}
}

// caller is the first frame outside this file.
func caller() string {
	for skip := 2; skip < 8; skip++ {
		_, file, line, ok := runtime.Caller(skip)
		if !ok {
			break
		}
		if filepath.Base(file) != "logger.go" {
			return fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}
	return ""
}

func (l *Logger) terminalLine(lv LogLevel, e LogEntry) string {
	clock := e.Timestamp[11:19]
	level := fmt.Sprintf("%-5s", e.Level)
	category := fmt.Sprintf("[%-10s]", e.Category)
	if !l.color {
		return fmt.Sprintf("%s %s %s %s\n", clock, level, category, e.Message)
	}
	attr := levelColors[lv]
	return fmt.Sprintf("%s %s %s %s %s\n",
		color.New(color.FgBlue).Sprint(clock),
		color.New(attr).Sprint(level),
		color.New(attr, color.Bold).Sprint(category),
		e.Message,
		color.New(color.FgMagenta).Sprintf("(%s)", e.Caller))
}

func (l *Logger) Debug(category, message string) { l.log(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.log(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.log(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.log(ERROR, category, message) }

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	l.Close()
	os.Exit(1)
}

func (l *Logger) tagged(category, tag, subject, message string) {
	l.log(INFO, category, fmt.Sprintf("[%s] %s - %s", tag, subject, message))
}

func (l *Logger) LogBundle(action, bundleID, message string) {
	l.tagged("BUNDLE", action, bundleID, message)
}

func (l *Logger) LogTicket(action, ticketID, message string) {
	l.tagged("TICKET", action, ticketID, message)
}

func (l *Logger) LogQR(action, qrID, message string) {
	l.tagged("QR", action, qrID, message)
}

func (l *Logger) LogCall(rule, qrID, message string) {
	l.tagged("CALL", rule, qrID, message)
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.tagged("KAFKA", action, topic, message)
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.tagged("DATABASE", operation, table, message)
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.log(INFO, "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogSecurity(event, message string) {
	l.log(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
