package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

// Level represents the logging verbosity level
type Level int

const (
	// LevelQuiet shows only warnings and errors
	LevelQuiet Level = iota
	// LevelNormal shows container lifecycle and run progress (default)
	LevelNormal
	// LevelVerbose adds per-scenario details and navigation steps
	LevelVerbose
	// LevelDebug shows all internal details for debugging
	LevelDebug
)

// ParseLevel converts a verbosity name into a Level.
// An empty string maps to LevelNormal.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quiet":
		return LevelQuiet, nil
	case "", "normal":
		return LevelNormal, nil
	case "verbose":
		return LevelVerbose, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelNormal, fmt.Errorf("invalid verbosity: %s (must be quiet, normal, verbose or debug)", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelQuiet:
		return "quiet"
	case LevelNormal:
		return "normal"
	case LevelVerbose:
		return "verbose"
	case LevelDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once
)

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// SessionID returns the process-wide session ID shared by every Logger.
func SessionID() string {
	return getSessionID()
}

// sink is the output shared by a Logger and every logger derived from it
// through Named.
type sink struct {
	mu        sync.Mutex
	level     Level
	console   io.Writer
	file      *os.File
	fileLog   *log.Logger
	logPath   string
	closeOnce sync.Once
	styles    styles
}

type styles struct {
	success lipgloss.Style
	info    lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	detail  lipgloss.Style
	comp    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		success: r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		info:    r.NewStyle().Foreground(lipgloss.Color("217")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("11")),
		err:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		detail:  r.NewStyle().Foreground(lipgloss.Color("8")),
		comp:    r.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// Logger writes human-readable status lines to the console and, optionally,
// mirrors them to a session-specific file.
//
// All loggers created in one process share a session ID. Loggers derived with
// Named share their parent's output and level.
type Logger struct {
	component string
	out       *sink
}

// Option configures a Logger.
type Option func(*config)

type config struct {
	level   Level
	console io.Writer
	fileDir string
}

// WithLevel sets the verbosity level.
func WithLevel(level Level) Option {
	return func(c *config) { c.level = level }
}

// WithWriter sets the console writer (default os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.console = w }
}

// WithFile mirrors every entry to <dir>/<session-id>-browserbox.log.
func WithFile(dir string) Option {
	return func(c *config) { c.fileDir = dir }
}

// New creates a logger for a component.
//
// If a log file was requested and cannot be opened, New returns a console-only
// logger along with the error so callers can warn and continue.
func New(component string, opts ...Option) (*Logger, error) {
	cfg := config{level: LevelNormal, console: os.Stderr}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := &sink{
		level:   cfg.level,
		console: cfg.console,
		styles:  newStyles(cfg.console),
	}
	l := &Logger{component: component, out: out}

	if cfg.fileDir == "" {
		return l, nil
	}

	if err := os.MkdirAll(cfg.fileDir, 0750); err != nil {
		return l, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(cfg.fileDir, fmt.Sprintf("%s-browserbox.log", getSessionID()))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return l, fmt.Errorf("failed to open log file: %w", err)
	}

	out.file = file
	out.fileLog = log.New(file, "", 0) // We'll format timestamps ourselves
	out.logPath = logPath
	return l, nil
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return &Logger{
		component: "discard",
		out: &sink{
			level:   LevelQuiet,
			console: io.Discard,
			styles:  newStyles(io.Discard),
		},
	}
}

// Named returns a logger for another component sharing this logger's output.
func (l *Logger) Named(component string) *Logger {
	return &Logger{component: component, out: l.out}
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

// Level returns the configured verbosity.
func (l *Logger) Level() Level {
	return l.out.level
}

// SessionID returns the session ID.
func (l *Logger) SessionID() string {
	return getSessionID()
}

// LogPath returns the path to the log file, or "" when not mirroring to a file.
func (l *Logger) LogPath() string {
	return l.out.logPath
}

// formatFileEntry creates a log entry with timestamp, component, and level
func (l *Logger) formatFileEntry(level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(min Level, tag string, style lipgloss.Style, prefix, format string, args []interface{}) {
	if l == nil {
		return
	}
	message := fmt.Sprintf(format, args...)

	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.fileLog != nil {
		l.out.fileLog.Println(l.formatFileEntry(tag, message))
	}
	if l.out.level < min {
		return
	}
	comp := l.out.styles.comp.Render("[" + l.component + "]")
	fmt.Fprintf(l.out.console, "%s %s\n", comp, style.Render(prefix+message))
}

// Successf prints a success message with checkmark
func (l *Logger) Successf(format string, args ...interface{}) {
	l.write(LevelNormal, "INFO", l.out.styles.success, "✓ ", format, args)
}

// Infof prints an informational message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.write(LevelNormal, "INFO", l.out.styles.info, "", format, args)
}

// Warnf prints a warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.write(LevelQuiet, "WARN", l.out.styles.warn, "⚠ ", format, args)
}

// Errorf prints an error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.write(LevelQuiet, "ERROR", l.out.styles.err, "✗ ", format, args)
}

// Verbosef prints detailed information (only in verbose mode)
func (l *Logger) Verbosef(format string, args ...interface{}) {
	l.write(LevelVerbose, "INFO", l.out.styles.detail, "→ ", format, args)
}

// Debugf prints debug information (only in debug mode)
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", l.out.styles.detail, "[DEBUG] ", format, args)
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.out.closeOnce.Do(func() {
		if l.out.file != nil {
			err = l.out.file.Close()
		}
	})
	return err
}
