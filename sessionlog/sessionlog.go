// Package sessionlog appends terminal traffic to a per-session file.
package sessionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nistp/SerialTerminalGUI/serialio"
)

// Logger writes one line per terminal message:
//
//	2024-05-02T09:31:05.123 [RX   ] +CSQ: 7
type Logger struct {
	log zerolog.Logger

	mu   sync.Mutex
	f    *os.File
	path string
}

// Open creates session_<timestamp>.log inside dir, creating the
// directory when needed.
func Open(log zerolog.Logger, dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("session_%s.log", time.Now().Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	log.Debug().Str("path", path).Msg("session log opened")
	return &Logger{log: log, f: f, path: path}, nil
}

// Path returns the session file location.
func (l *Logger) Path() string { return l.path }

// Write appends one message. Failures are reported once per call and
// never propagate; logging must not disturb the terminal stream.
func (l *Logger) Write(msg serialio.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	line := fmt.Sprintf("%s [%-5s] %s\n",
		msg.At.Format("2006-01-02T15:04:05.000"), msg.Direction, msg.Text)
	if _, err := l.f.WriteString(line); err != nil {
		l.log.Warn().Err(err).Msg("session log write failed")
	}
}

// Close flushes and closes the session file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
