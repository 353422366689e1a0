// Package serialio owns the serial connection and its background read
// loop. Inbound bytes are framed into newline-delimited messages and
// delivered to the terminal channel and, while a capture session is
// active, to the capture channel.
package serialio

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Direction classifies a terminal message.
type Direction string

const (
	DirTX    Direction = "TX"
	DirRX    Direction = "RX"
	DirInfo  Direction = "INFO"
	DirError Direction = "ERROR"
)

// Message is one line of terminal traffic.
type Message struct {
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

const (
	terminalBuffer = 1024
	captureBuffer  = 256
)

// Reader wraps an open connection with a continuous read loop.
// The terminal channel is buffered; a stalled consumer drops lines
// rather than stalling the read loop.
type Reader struct {
	conn       io.ReadWriteCloser
	lineEnding []byte
	terminal   chan Message
	done       chan struct{}

	mu      sync.Mutex
	capture *captureSession
	err     error
	closing bool

	closeOnce sync.Once
}

// captureSession is the single secondary delivery destination. A silent
// session receives lines exclusively; a mirrored one receives copies of
// lines that also go to the terminal channel.
type captureSession struct {
	ch     chan Message
	silent bool
}

// NewReader wraps conn. Call Start to launch the read loop. lineEnding
// is appended verbatim to every Send.
func NewReader(conn io.ReadWriteCloser, lineEnding []byte) *Reader {
	return &Reader{
		conn:       conn,
		lineEnding: lineEnding,
		terminal:   make(chan Message, terminalBuffer),
		done:       make(chan struct{}),
	}
}

// Start launches the background read loop.
func (r *Reader) Start() {
	go r.readLoop()
}

// Terminal returns the primary delivery channel.
func (r *Reader) Terminal() <-chan Message {
	return r.terminal
}

// Done is closed when the read loop has terminated.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Err reports the read-loop error, if any.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Connected reports whether the read loop is still live.
func (r *Reader) Connected() bool {
	select {
	case <-r.done:
		return false
	default:
	}
	return r.Err() == nil
}

// Send writes text plus the configured line ending. Nothing is echoed
// to the terminal channel; callers synthesize the TX echo themselves.
func (r *Reader) Send(text string) error {
	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("port closed: %w", err)
	}
	if _, err := r.conn.Write(append([]byte(text), r.lineEnding...)); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Push delivers a synthesized message (TX echo, INFO, ERROR) to the
// terminal channel.
func (r *Reader) Push(dir Direction, text string) {
	r.pushTerminal(Message{Direction: dir, Text: text, At: time.Now()})
}

// StartCapture opens a capture session and returns its channel. An
// already-active session is replaced; its channel is closed. A silent
// session diverts inbound lines away from the terminal channel, a
// mirrored one delivers to both. If the read loop has already
// terminated the returned channel is closed immediately so waiters
// observe end-of-stream.
func (r *Reader) StartCapture(silent bool) <-chan Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture != nil {
		close(r.capture.ch)
		r.capture = nil
	}
	ch := make(chan Message, captureBuffer)
	if r.err != nil {
		close(ch)
		return ch
	}
	r.capture = &captureSession{ch: ch, silent: silent}
	return ch
}

// StopCapture closes the active capture session. Lines arriving after
// the call are not delivered to the closed channel.
func (r *Reader) StopCapture() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture != nil {
		close(r.capture.ch)
		r.capture = nil
	}
}

// Close shuts the connection and waits for the read loop to exit.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closing = true
		r.mu.Unlock()
		r.conn.Close()
		<-r.done
	})
	return nil
}

func (r *Reader) readLoop() {
	buf := make([]byte, 256)
	var line []byte
	for {
		n, err := r.conn.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				text := strings.TrimSuffix(string(line), "\r")
				r.deliver(Message{Direction: DirRX, Text: text, At: time.Now()})
				line = line[:0]
				continue
			}
			line = append(line, b)
		}
		if err != nil {
			r.fail(err)
			return
		}
	}
}

// fail records the terminal error, resolves any capture waiter via
// channel close, emits a single ERROR message (unless the shutdown was
// requested through Close) and marks the loop done.
func (r *Reader) fail(err error) {
	r.mu.Lock()
	r.err = err
	deliberate := r.closing
	if r.capture != nil {
		close(r.capture.ch)
		r.capture = nil
	}
	r.mu.Unlock()
	if !deliberate {
		r.pushTerminal(Message{Direction: DirError, Text: fmt.Sprintf("port error: %v", err), At: time.Now()})
	}
	close(r.done)
}

// deliver routes one framed inbound line. Capture delivery happens
// under the mutex so a send can never race a StopCapture close.
func (r *Reader) deliver(msg Message) {
	r.mu.Lock()
	silent := false
	if r.capture != nil {
		silent = r.capture.silent
		select {
		case r.capture.ch <- msg:
		default:
		}
	}
	r.mu.Unlock()
	if !silent {
		r.pushTerminal(msg)
	}
}

func (r *Reader) pushTerminal(msg Message) {
	select {
	case r.terminal <- msg:
	default:
	}
}
