package testsuite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate_Substrings(t *testing.T) {
	tests := []struct {
		name       string
		expected   []string
		response   string
		wantStatus Status
		wantDiags  []string
	}{
		{
			name:       "all present",
			expected:   []string{"+CSQ:", "OK"},
			response:   "+CSQ: 7\nOK",
			wantStatus: StatusPass,
		},
		{
			name:       "one missing",
			expected:   []string{"+CSQ:", "READY"},
			response:   "+CSQ: 7\nOK",
			wantStatus: StatusFail,
			wantDiags:  []string{`missing: "READY"`},
		},
		{
			name:       "all misses reported, no short-circuit",
			expected:   []string{"ALPHA", "BETA"},
			response:   "GAMMA",
			wantStatus: StatusFail,
			wantDiags:  []string{`missing: "ALPHA"`, `missing: "BETA"`},
		},
		{
			name:       "case sensitive",
			expected:   []string{"ok"},
			response:   "OK",
			wantStatus: StatusFail,
			wantDiags:  []string{`missing: "ok"`},
		},
		{
			name:       "blank entries skipped",
			expected:   []string{"", "  ", "OK"},
			response:   "OK",
			wantStatus: StatusPass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := TestCase{Expected: tt.expected}
			status, diags, err := Evaluate(tc, tt.response)
			require.NoError(t, err)
			require.Equal(t, tt.wantStatus, status)
			require.Equal(t, tt.wantDiags, diags)
		})
	}
}

func TestEvaluate_NumericChecks(t *testing.T) {
	tests := []struct {
		name       string
		check      string
		response   string
		wantStatus Status
		wantDiag   string
	}{
		{
			name:       "greater or equal passes",
			check:      "+CSQ: >= 5",
			response:   "+CSQ: 7\nOK",
			wantStatus: StatusPass,
		},
		{
			name:       "range violation reports bounds",
			check:      "TEMP: in 15.0..35.0",
			response:   "TEMP: 40.2\nOK",
			wantStatus: StatusFail,
			wantDiag:   `40.2 not in [15..35] (after "TEMP:")`,
		},
		{
			name:       "range membership passes",
			check:      "TEMP: in 15.0..35.0",
			response:   "TEMP: 22.5\nOK",
			wantStatus: StatusPass,
		},
		{
			name:       "empty prefix uses first number in response",
			check:      "< 10",
			response:   "9\nOK",
			wantStatus: StatusPass,
		},
		{
			name:       "not equal",
			check:      "ERRNO: != 0",
			response:   "ERRNO: 0",
			wantStatus: StatusFail,
			wantDiag:   `0 != 0 failed (after "ERRNO:")`,
		},
		{
			name:       "negative value",
			check:      "RSSI: < -70",
			response:   "RSSI: -82 dBm\nOK",
			wantStatus: StatusPass,
		},
		{
			name:       "prefix not found",
			check:      "VOLT: > 3",
			response:   "+CSQ: 7\nOK",
			wantStatus: StatusFail,
			wantDiag:   `prefix not found: "VOLT:"`,
		},
		{
			name:       "no number after prefix",
			check:      "STATE: > 0",
			response:   "STATE: armed",
			wantStatus: StatusFail,
			wantDiag:   `no numeric value after "STATE:"`,
		},
		{
			name:       "first prefix occurrence anchors extraction",
			check:      "VAL: == 1",
			response:   "VAL: 1\nVAL: 2",
			wantStatus: StatusPass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := TestCase{NumericChecks: []string{tt.check}}
			status, diags, err := Evaluate(tc, tt.response)
			require.NoError(t, err)
			require.Equal(t, tt.wantStatus, status)
			if tt.wantDiag != "" {
				require.Equal(t, []string{tt.wantDiag}, diags)
			} else {
				require.Empty(t, diags)
			}
		})
	}
}

func TestEvaluate_MalformedCheckIsConfigError(t *testing.T) {
	tests := []struct {
		name  string
		check string
	}{
		{name: "no operator", check: "just some text"},
		{name: "non-numeric threshold", check: "CSQ: >= high"},
		{name: "bad range", check: "TEMP: in 15..twenty"},
		{name: "range missing separator", check: "TEMP: in 15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := TestCase{NumericChecks: []string{tt.check}}
			status, _, err := Evaluate(tc, "TEMP: 20 CSQ: 3")
			require.Error(t, err)
			require.Equal(t, StatusError, status)
			var bad *ErrBadCheck
			require.ErrorAs(t, err, &bad)
		})
	}
}

func TestEvaluate_FailuresAccumulateAcrossKinds(t *testing.T) {
	tc := TestCase{
		Expected:      []string{"READY"},
		NumericChecks: []string{"+CSQ: >= 20", "TEMP: in 15..35"},
	}
	status, diags, err := Evaluate(tc, "+CSQ: 7\nTEMP: 40.2\nOK")
	require.NoError(t, err)
	require.Equal(t, StatusFail, status)
	require.Len(t, diags, 3)
	require.Contains(t, diags[0], "READY")
	require.Contains(t, diags[1], "+CSQ:")
	require.Contains(t, diags[2], "TEMP:")
}
