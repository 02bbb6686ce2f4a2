package agent

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// ParseLogLevel maps "debug", "info", "warn"/"warning" and "error" to a level.
// Unknown names give LogInfo.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogDebug
	case "warn", "warning":
		return LogWarn
	case "error":
		return LogError
	default:
		return LogInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	default:
		return "info"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogDebug:
		return zerolog.DebugLevel
	case LogWarn:
		return zerolog.WarnLevel
	case LogError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var (
	boxColor   = color.New(color.FgHiBlack)
	okColor    = color.New(color.FgGreen)
	errColor   = color.New(color.FgRed)
	warnColor  = color.New(color.FgYellow)
	debugColor = color.New(color.FgHiBlack)
	titleColor = color.New(color.Bold)
)

const rule = "─────────────────────────────────────────────────────────────────"

// Logger prints emoji-prefixed console lines and boxed banners. When a file
// is attached every record is also written there as JSON.
type Logger struct {
	enabled bool
	level   LogLevel
	out     io.Writer

	file    zerolog.Logger
	hasFile bool
	closer  io.Closer

	cycle int
	mu    sync.Mutex
}

// NewLogger creates a new console logger at LogInfo.
func NewLogger(enabled bool) *Logger {
	return &Logger{
		enabled: enabled,
		level:   LogInfo,
		out:     color.Output,
	}
}

// SetLevel sets the minimum console and file level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	if l.hasFile {
		l.file = l.file.Level(level.zerolog())
	}
}

// Level returns the minimum level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetOutput redirects console output.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// OpenFile appends JSON records to path, creating parent directories.
func (l *Logger) OpenFile(path string) error {
	if err := os.MkdirAll(dirOf(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setFileLocked(f)
	l.closer = f
	return nil
}

// SetFile writes JSON records to w.
func (l *Logger) SetFile(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setFileLocked(w)
}

func (l *Logger) setFileLocked(w io.Writer) {
	l.file = zerolog.New(w).With().Timestamp().Logger().Level(l.level.zerolog())
	l.hasFile = true
}

// Close closes the log file if OpenFile opened one. Records logged after
// Close only go to the console.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	l.hasFile = false
	return err
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i > 0 {
		return path[:i]
	}
	return "."
}

// timestamp returns a formatted timestamp.
func timestamp() string {
	return time.Now().Format("15:04:05")
}

func (l *Logger) on(level LogLevel) bool {
	if l == nil || !l.enabled {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *Logger) printf(c *color.Color, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c == nil {
		fmt.Fprintf(l.out, format, args...)
		return
	}
	c.Fprintf(l.out, format, args...)
}

func (l *Logger) record(level LogLevel, event string, fields map[string]any, msg string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.hasFile {
		return
	}
	var e *zerolog.Event
	switch level {
	case LogDebug:
		e = l.file.Debug()
	case LogWarn:
		e = l.file.Warn()
	case LogError:
		e = l.file.Error()
	default:
		e = l.file.Info()
	}
	e.Str("event", event).Fields(fields).Msg(msg)
}

// box prints a banner with a title line and body lines.
func (l *Logger) box(title string, lines ...string) {
	l.printf(nil, "\n")
	l.printf(boxColor, "┌%s\n", rule)
	l.printf(boxColor, "│ ")
	l.printf(titleColor, "%s", title)
	l.printf(boxColor, " │ %s\n", timestamp())
	if len(lines) > 0 {
		l.printf(boxColor, "├%s\n", rule)
		for _, line := range lines {
			l.printf(boxColor, "│ ")
			l.printf(nil, "%s\n", line)
		}
	}
	l.printf(boxColor, "└%s\n", rule)
}

// Start logs the start of a poll loop.
func (l *Logger) Start(mode, chat string, interval time.Duration, runID string) {
	l.record(LogInfo, "start", map[string]any{"mode": mode, "chat": chat, "interval": interval.String(), "run_id": runID}, "loop started")
	if !l.on(LogInfo) {
		return
	}
	l.box(fmt.Sprintf("🚀 %s │ %s", strings.ToUpper(mode), chat),
		fmt.Sprintf("⏱️  Interval: %s", interval),
		fmt.Sprintf("🆔 Run:      %s", runID))
}

// Cycle logs one poll cycle at debug level and returns its number.
func (l *Logger) Cycle(newMessages int) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	l.cycle++
	n := l.cycle
	l.mu.Unlock()

	l.record(LogDebug, "cycle", map[string]any{"cycle": n, "new": newMessages}, "poll cycle")
	if l.on(LogDebug) {
		l.printf(debugColor, "   🔄 Cycle %d: %d new message(s)\n", n, newMessages)
	}
	return n
}

// Message logs a message picked up by a loop.
func (l *Logger) Message(sender, text string) {
	l.record(LogInfo, "message", map[string]any{"sender": sender}, text)
	if !l.on(LogInfo) {
		return
	}
	l.printf(nil, "   📨 %s: %s\n", sender, truncate(oneLine(text), 60))
}

// Reply logs a sent reply.
func (l *Logger) Reply(to, text string) {
	l.record(LogInfo, "reply", map[string]any{"to": to}, text)
	if !l.on(LogInfo) {
		return
	}
	l.box("💬 REPLY SENT",
		fmt.Sprintf("👤 To:   %s", to),
		fmt.Sprintf("✏️  Text: %s", truncate(oneLine(text), 55)))
}

// Signup logs the outcome of the signup editor on a message.
func (l *Logger) Signup(name, reason string, position int, sent bool) {
	l.record(LogInfo, "signup", map[string]any{"name": name, "reason": reason, "position": position, "sent": sent}, "signup evaluated")
	if !l.on(LogInfo) {
		return
	}
	if !sent {
		l.printf(nil, "   📋 Signup list: %s\n", reason)
		return
	}
	l.box("✅ SIGNED UP",
		fmt.Sprintf("👤 Name:     %s", name),
		fmt.Sprintf("🔢 Position: %d (%s)", position, reason))
}

// Sent logs a one-off message.
func (l *Logger) Sent(chat, text string) {
	l.record(LogInfo, "sent", map[string]any{"chat": chat}, text)
	if !l.on(LogInfo) {
		return
	}
	l.printf(okColor, "   ✅ Sent to %s: %s\n", chat, truncate(oneLine(text), 50))
}

// Skip logs a cycle skipped because of a transient failure.
func (l *Logger) Skip(context string, err error) {
	l.record(LogWarn, "skip", map[string]any{"context": context, "error": err.Error()}, "cycle skipped")
	if !l.on(LogWarn) {
		return
	}
	l.printf(warnColor, "   ⏭️  Skipped [%s]: %v\n", context, err)
}

// SessionLost logs the terminal logged-out state.
func (l *Logger) SessionLost(err error) {
	l.record(LogError, "session_lost", map[string]any{"error": err.Error()}, "session lost")
	if !l.on(LogError) {
		return
	}
	l.printf(nil, "\n")
	l.printf(errColor, "╔%s\n", strings.Repeat("═", 65))
	l.printf(errColor, "║ 🔒 SESSION LOST │ %s\n", timestamp())
	l.printf(errColor, "╠%s\n", strings.Repeat("═", 65))
	l.printf(errColor, "║ 💬 %s\n", truncate(err.Error(), 60))
	l.printf(errColor, "║ 👉 Run `buachat login` and scan the QR code.\n")
	l.printf(errColor, "╚%s\n", strings.Repeat("═", 65))
}

// Login logs login progress.
func (l *Logger) Login(qrPath string) {
	l.record(LogInfo, "login", map[string]any{"qr": qrPath}, "waiting for QR scan")
	if !l.on(LogInfo) {
		return
	}
	if qrPath == "" {
		l.printf(nil, "   📱 Scan the QR code in the browser window\n")
		return
	}
	l.printf(nil, "   📱 Scan the QR code saved at %s\n", qrPath)
}

// Screenshot logs screenshot capture.
func (l *Logger) Screenshot(path string) {
	l.record(LogDebug, "screenshot", map[string]any{"path": path}, "screenshot saved")
	if !l.on(LogDebug) {
		return
	}
	l.printf(nil, "   📸 Screenshot: %s\n", path)
}

// Done logs the end of a loop.
func (l *Logger) Done(success bool, summary string) {
	level := LogInfo
	if !success {
		level = LogError
	}
	l.record(level, "done", map[string]any{"success": success}, summary)
	if !l.on(level) {
		return
	}
	c := okColor
	title := "✅ DONE"
	if !success {
		c = errColor
		title = "❌ FAILED"
	}
	l.printf(nil, "\n")
	l.printf(c, "╔%s\n", strings.Repeat("═", 65))
	l.printf(c, "║ %s │ %s\n", title, timestamp())
	l.printf(c, "╠%s\n", strings.Repeat("═", 65))
	l.printf(c, "║ 📝 %s\n", truncate(summary, 60))
	l.printf(c, "╚%s\n", strings.Repeat("═", 65))
}

// Error logs an error.
func (l *Logger) Error(context string, err error) {
	l.record(LogError, "error", map[string]any{"context": context, "error": err.Error()}, "error")
	if !l.on(LogError) {
		return
	}
	l.printf(errColor, "   ⚠️  Error [%s]: %v\n", context, err)
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.record(LogWarn, "warn", nil, msg)
	if !l.on(LogWarn) {
		return
	}
	l.printf(warnColor, "   ⚠️  %s\n", msg)
}

// Debug logs debug information.
func (l *Logger) Debug(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.record(LogDebug, "debug", nil, msg)
	if !l.on(LogDebug) {
		return
	}
	l.printf(debugColor, "   🔍 %s\n", msg)
}

// Info logs informational messages.
func (l *Logger) Info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.record(LogInfo, "info", nil, msg)
	if !l.on(LogInfo) {
		return
	}
	l.printf(nil, "   ℹ️  %s\n", msg)
}

// truncate shortens s to maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
