package testsuite

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nistp/SerialTerminalGUI/serialio"
)

// Transport is the connection surface the runner drives. It is
// satisfied by *serialio.Reader.
type Transport interface {
	Send(text string) error
	Push(dir serialio.Direction, text string)
	StartCapture(silent bool) <-chan serialio.Message
	StopCapture()
	Connected() bool
	Err() error
}

// TriggerPort is the optional secondary port for fire-and-forget
// trigger commands.
type TriggerPort interface {
	Send(text string) error
	Connected() bool
}

// RunObserver receives run progress. All methods are invoked
// sequentially from the runner goroutine, never from the transport
// read loop.
type RunObserver interface {
	TestCompleted(tc TestCase, result TestResult)
	IterationFinished(started, ended time.Time)
	RunFinished()
}

// RunOptions tune one run request.
type RunOptions struct {
	// Delay between consecutive test cases.
	Delay time.Duration
	// Loop restarts the pass after LoopDelay until Stop is called.
	Loop      bool
	LoopDelay time.Duration
}

// Tokens that can appear literally in navigation and trigger command
// strings and are expanded to control characters before sending.
var escapeTokens = map[string]string{
	"<ESC>": "\x1b",
}

// ExpandEscapes replaces control-character tokens in a silent command.
// The main visible test command is never expanded.
func ExpandEscapes(cmd string) string {
	for token, replacement := range escapeTokens {
		cmd = strings.ReplaceAll(cmd, token, replacement)
	}
	return cmd
}

type exchangeOutcome int

const (
	exchangeCompleted exchangeOutcome = iota
	exchangeTimedOut
	exchangeErrored
)

func (o exchangeOutcome) String() string {
	switch o {
	case exchangeCompleted:
		return "completed"
	case exchangeTimedOut:
		return "timeout"
	default:
		return "error"
	}
}

// Runner executes test cases sequentially against one transport. At
// most one run is active at a time; a run owns the transport's single
// capture session for the duration of each exchange.
type Runner struct {
	log     zerolog.Logger
	tr      Transport
	trigger TriggerPort

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

func NewRunner(log zerolog.Logger, tr Transport) *Runner {
	return &Runner{log: log, tr: tr}
}

// UseTrigger attaches the secondary trigger port. Must be called
// before Run.
func (r *Runner) UseTrigger(tp TriggerPort) {
	r.trigger = tp
}

// Running reports whether a run is in flight.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Run starts executing tests on a background goroutine. Results are
// delivered to obs as each case finishes.
func (r *Runner) Run(tests []TestCase, opt RunOptions, obs RunObserver) error {
	if len(tests) == 0 {
		return errors.New("no tests to run")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("a run is already in progress")
	}
	r.running = true
	r.stop = make(chan struct{})
	go r.runLoop(tests, opt, obs)
	return nil
}

// Stop requests the run to halt. The in-flight exchange completes or
// times out on its own terms; the stop takes effect no later than the
// start of the next test case.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

func (r *Runner) stopped() bool {
	r.mu.Lock()
	stop := r.stop
	r.mu.Unlock()
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (r *Runner) runLoop(tests []TestCase, opt RunOptions, obs RunObserver) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		obs.RunFinished()
	}()

	for {
		started := time.Now()
		for i, tc := range tests {
			if r.stopped() {
				break
			}
			r.log.Debug().Str("test", tc.Name).Msg("executing test case")
			result := r.executeTest(tc)
			obs.TestCompleted(tc, result)
			if opt.Delay > 0 && i < len(tests)-1 && !r.sleep(opt.Delay) {
				break
			}
		}
		// A stopped iteration is still finalized as-is.
		obs.IterationFinished(started, time.Now())
		if !opt.Loop || r.stopped() {
			return
		}
		if opt.LoopDelay > 0 && !r.sleep(opt.LoopDelay) {
			return
		}
	}
}

// sleep waits for d or until the run is stopped. Reports false when
// stopped.
func (r *Runner) sleep(d time.Duration) bool {
	r.mu.Lock()
	stop := r.stop
	r.mu.Unlock()
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}

// executeTest runs one complete test case: triggers, silent setup,
// the visible main exchange, evaluation and unconditional teardown.
func (r *Runner) executeTest(tc TestCase) TestResult {
	started := time.Now()
	final := func(status Status, actual string) TestResult {
		return TestResult{
			TestID:    tc.ID,
			Status:    status,
			Actual:    actual,
			StartedAt: started,
			EndedAt:   time.Now(),
		}
	}

	// Once the connection is gone every remaining case resolves ERROR
	// without attempting to send.
	if !r.tr.Connected() {
		return final(StatusError, "not connected")
	}

	if tc.TriggerTiming != "after_setup" {
		r.fireTriggers(tc)
	}

	// Setup steps that time out or error never abort the run; the
	// outcome is noted in the eventual diagnostics instead.
	var notes []string
	for _, cmd := range nonEmpty(tc.SetupCommands) {
		cmd = strings.TrimSpace(cmd)
		if _, outcome, _ := r.exchange(cmd, tc.Terminator, tc.NavTimeout(), false); outcome != exchangeCompleted {
			notes = append(notes, fmt.Sprintf("setup %q: %s", cmd, outcome))
		}
	}

	if tc.TriggerTiming == "after_setup" {
		r.fireTriggers(tc)
	}

	lines, outcome, exchErr := r.exchange(tc.Command, tc.Terminator, tc.Timeout(), true)
	actual := strings.Join(lines, "\n")

	var status Status
	switch outcome {
	case exchangeErrored:
		status = StatusError
		if exchErr != nil {
			notes = append(notes, exchErr.Error())
		}
	case exchangeTimedOut:
		status = StatusTimeout
	default:
		var failures []string
		var err error
		status, failures, err = Evaluate(tc, actual)
		if err != nil {
			notes = append(notes, err.Error())
		}
		if len(failures) > 0 {
			actual += "\n[checks]\n" + strings.Join(failures, "\n")
		}
	}
	if len(notes) > 0 {
		actual += "\n[diagnostics]\n" + strings.Join(notes, "\n")
	}

	// Teardown runs even after a failure so the device navigation
	// state is restored for the next test.
	for _, cmd := range nonEmpty(tc.TeardownCommands) {
		if !r.tr.Connected() {
			break
		}
		cmd = strings.TrimSpace(cmd)
		if _, out, _ := r.exchange(cmd, tc.Terminator, tc.NavTimeout(), false); out != exchangeCompleted {
			r.log.Debug().Str("step", cmd).Stringer("outcome", out).Msg("teardown step did not complete")
		}
	}

	return final(status, strings.TrimPrefix(actual, "\n"))
}

// exchange is the single primitive underlying both the visible test
// command and every silent navigation step: open a capture session,
// send, accumulate captured lines until one equals the terminator, the
// timeout elapses or the transport errors, then close the session.
//
// A visible exchange pushes the TX echo to the terminal channel before
// sending and captures in mirrored mode, so the terminal stream sees
// echo-then-response. A silent exchange captures exclusively and
// expands <ESC> tokens; nothing reaches the terminal stream.
//
// An empty terminator means collect until the timeout and report the
// exchange completed.
func (r *Runner) exchange(cmd, terminator string, timeout time.Duration, visible bool) ([]string, exchangeOutcome, error) {
	capture := r.tr.StartCapture(!visible)
	defer r.tr.StopCapture()

	send := cmd
	if visible {
		r.tr.Push(serialio.DirTX, cmd)
	} else {
		send = ExpandEscapes(cmd)
	}
	if err := r.tr.Send(send); err != nil {
		return nil, exchangeErrored, fmt.Errorf("send failed: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var lines []string
	for {
		select {
		case msg, ok := <-capture:
			if !ok {
				// Capture closed underneath us: the read loop died.
				err := r.tr.Err()
				if err == nil {
					err = errors.New("connection closed")
				}
				return lines, exchangeErrored, err
			}
			if terminator != "" && msg.Text == terminator {
				return lines, exchangeCompleted, nil
			}
			lines = append(lines, msg.Text)
		case <-timer.C:
			if terminator == "" {
				return lines, exchangeCompleted, nil
			}
			return lines, exchangeTimedOut, nil
		}
	}
}

func (r *Runner) fireTriggers(tc TestCase) {
	if r.trigger == nil || !r.trigger.Connected() {
		return
	}
	for _, cmd := range nonEmpty(tc.TriggerCommands) {
		cmd = strings.TrimSpace(cmd)
		if err := r.trigger.Send(ExpandEscapes(cmd)); err != nil {
			r.log.Debug().Err(err).Str("command", cmd).Msg("trigger send failed")
		}
	}
}
