package testsuite

import (
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func sampleSuite() []TestCase {
	a := NewTestCase("alpha", "AT+A")
	b := NewTestCase("beta", "AT+B")
	c := NewTestCase("gamma", "AT+C")
	return []TestCase{a, b, c}
}

func result(tc TestCase, status Status, actual string) TestResult {
	now := time.Now()
	return TestResult{TestID: tc.ID, Status: status, Actual: actual, StartedAt: now, EndedAt: now}
}

func TestAggregator_WideShape(t *testing.T) {
	dir := t.TempDir()
	suite := sampleSuite()

	agg, err := NewAggregator(testLogger(), dir, suite)
	require.NoError(t, err)

	started := time.Now()
	// Only alpha and gamma ran in this pass.
	agg.TestCompleted(suite[0], result(suite[0], StatusPass, "line one\nline two"))
	agg.TestCompleted(suite[2], result(suite[2], StatusFail, "nope"))
	agg.IterationFinished(started, time.Now())
	agg.RunFinished()

	rows := readCSV(t, agg.WidePath())
	require.Len(t, rows, 2)
	require.Equal(t, []string{
		"Run_Started", "Run_Ended",
		"alpha_Status", "alpha_Actual",
		"beta_Status", "beta_Actual",
		"gamma_Status", "gamma_Actual",
	}, rows[0])

	data := rows[1]
	require.Equal(t, "PASS", data[2])
	require.Equal(t, "line one | line two", data[3])
	// beta was not part of the run: schema column present, cells empty.
	require.Equal(t, "", data[4])
	require.Equal(t, "", data[5])
	require.Equal(t, "FAIL", data[6])
	require.Equal(t, "nope", data[7])
}

func TestAggregator_LoopedRunAppendsOneRowPerIteration(t *testing.T) {
	dir := t.TempDir()
	suite := sampleSuite()

	agg, err := NewAggregator(testLogger(), dir, suite)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		started := time.Now()
		agg.TestCompleted(suite[0], result(suite[0], StatusPass, "ok"))
		agg.IterationFinished(started, time.Now())
	}
	agg.RunFinished()

	rows := readCSV(t, agg.WidePath())
	require.Len(t, rows, 4) // header + one row per iteration
	for _, row := range rows[1:] {
		require.Equal(t, "PASS", row[2])
	}
}

func TestAggregator_NarrowShapeAccumulatesAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	suite := sampleSuite()

	first, err := NewAggregator(testLogger(), dir, suite)
	require.NoError(t, err)
	started := time.Now()
	first.TestCompleted(suite[0], result(suite[0], StatusPass, "ok"))
	first.IterationFinished(started, time.Now())
	first.RunFinished()

	second, err := NewAggregator(testLogger(), dir, suite)
	require.NoError(t, err)
	// A fresh run group opens a fresh wide file.
	require.NotEqual(t, first.WidePath(), second.WidePath())
	started = time.Now()
	second.TestCompleted(suite[1], result(suite[1], StatusTimeout, ""))
	second.IterationFinished(started, time.Now())
	second.RunFinished()

	rows := readCSV(t, first.NarrowPath())
	require.Len(t, rows, 3) // header written once, one row per run
	require.Equal(t, []string{"Timestamp", "alpha", "beta", "gamma"}, rows[0])
	require.Equal(t, []string{"PASS", "", ""}, rows[1][1:])
	require.Equal(t, []string{"", "TIMEOUT", ""}, rows[2][1:])
}

func TestAggregator_RunFinishedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	suite := sampleSuite()

	agg, err := NewAggregator(testLogger(), dir, suite)
	require.NoError(t, err)
	agg.TestCompleted(suite[0], result(suite[0], StatusPass, "ok"))
	agg.IterationFinished(time.Now(), time.Now())
	agg.RunFinished()
	agg.RunFinished()

	rows := readCSV(t, agg.NarrowPath())
	require.Len(t, rows, 2)
}
