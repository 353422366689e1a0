package testsuite

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const timestampFormat = "2006-01-02T15:04:05"

// Aggregator accumulates results across one run group into the two
// export files: a wide per-iteration CSV opened fresh for this run,
// and the narrow cumulative CSV shared by all runs in the log dir.
//
// The wide header covers the full suite, not just the subset selected
// for this run, so the schema stays stable; columns for tests outside
// the run remain empty. Rows are append-only and never rewritten.
//
// Aggregator implements RunObserver and is driven entirely by runner
// state transitions.
type Aggregator struct {
	log   zerolog.Logger
	suite []TestCase

	widePath   string
	narrowPath string
	wideFile   *os.File
	wideW      *csv.Writer

	mu      sync.Mutex
	current map[string]TestResult
	all     map[string]TestResult
	closed  bool
}

// NewAggregator opens a new wide-shape file in dir and writes its
// header. suite is the full suite, used for the column set of both
// shapes.
func NewAggregator(log zerolog.Logger, dir string, suite []TestCase) (*Aggregator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	base := filepath.Join(dir, "test_run_"+time.Now().Format("20060102_150405"))
	widePath := base + ".csv"
	var f *os.File
	for i := 1; ; i++ {
		var err error
		f, err = os.OpenFile(widePath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create run file: %w", err)
		}
		// A run started within the same second; pick the next name.
		widePath = fmt.Sprintf("%s_%d.csv", base, i)
	}

	a := &Aggregator{
		log:        log,
		suite:      suite,
		widePath:   widePath,
		narrowPath: filepath.Join(dir, "test_suite_log.csv"),
		wideFile:   f,
		wideW:      csv.NewWriter(f),
		current:    make(map[string]TestResult),
		all:        make(map[string]TestResult),
	}

	header := []string{"Run_Started", "Run_Ended"}
	for _, tc := range suite {
		header = append(header, tc.Name+"_Status", tc.Name+"_Actual")
	}
	if err := a.writeWide(header); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

// WidePath returns the per-iteration file for this run group.
func (a *Aggregator) WidePath() string { return a.widePath }

// NarrowPath returns the cumulative suite log file.
func (a *Aggregator) NarrowPath() string { return a.narrowPath }

// TestCompleted records one finalized result.
func (a *Aggregator) TestCompleted(tc TestCase, result TestResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current[tc.ID] = result
	a.all[tc.ID] = result
}

// IterationFinished appends the completed wide-shape row and starts
// the next one in the same file.
func (a *Aggregator) IterationFinished(started, ended time.Time) {
	a.mu.Lock()
	results := a.current
	a.current = make(map[string]TestResult)
	a.mu.Unlock()

	row := []string{started.Format(timestampFormat), ended.Format(timestampFormat)}
	for _, tc := range a.suite {
		res, ok := results[tc.ID]
		if !ok {
			row = append(row, "", "")
			continue
		}
		row = append(row, string(res.Status), flatten(res.Actual))
	}
	if err := a.writeWide(row); err != nil {
		a.log.Error().Err(err).Str("path", a.widePath).Msg("failed to append run row")
	}
}

// RunFinished appends one narrow-shape summary row to the cumulative
// log and closes the run group. The next run opens a new wide file.
func (a *Aggregator) RunFinished() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	all := a.all
	a.mu.Unlock()

	if err := a.appendNarrowRow(all); err != nil {
		a.log.Error().Err(err).Str("path", a.narrowPath).Msg("failed to append suite log row")
	}
	a.wideW.Flush()
	if err := a.wideFile.Close(); err != nil {
		a.log.Error().Err(err).Str("path", a.widePath).Msg("failed to close run file")
	}
}

func (a *Aggregator) writeWide(row []string) error {
	if err := a.wideW.Write(row); err != nil {
		return err
	}
	a.wideW.Flush()
	return a.wideW.Error()
}

// appendNarrowRow adds one row to the cumulative CSV: timestamp plus
// one status column per test name. The header is written only when the
// file is new or empty. A cell is blank when the test was not part of
// this run.
func (a *Aggregator) appendNarrowRow(all map[string]TestResult) error {
	isNew := true
	if st, err := os.Stat(a.narrowPath); err == nil && st.Size() > 0 {
		isNew = false
	}
	f, err := os.OpenFile(a.narrowPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		header := []string{"Timestamp"}
		for _, tc := range a.suite {
			header = append(header, tc.Name)
		}
		if err := w.Write(header); err != nil {
			return err
		}
	}
	row := []string{time.Now().Format(timestampFormat)}
	for _, tc := range a.suite {
		if res, ok := all[tc.ID]; ok {
			row = append(row, string(res.Status))
		} else {
			row = append(row, "")
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func flatten(s string) string {
	return strings.ReplaceAll(s, "\n", " | ")
}
