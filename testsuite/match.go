package testsuite

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// checkExpr matches "<prefix> <op> <value>". Supported ops:
// >= <= > < == != in
var checkExpr = regexp.MustCompile(`^(.*?)\s*(>=|<=|!=|==|>|<|in)\s+(.+)$`)

// firstNumber extracts the first maximal numeric substring: optional
// sign, digits, optional decimal point and digits.
var firstNumber = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// ErrBadCheck marks a malformed numeric-check expression, which is a
// configuration error rather than a device failure.
type ErrBadCheck struct {
	Expr   string
	Reason string
}

func (e *ErrBadCheck) Error() string {
	return fmt.Sprintf("bad numeric check %q: %s", e.Expr, e.Reason)
}

// Evaluate computes the verdict for a completed response. It returns
// the status, the diagnostics to append to the result's actual text,
// and a non-nil error when a numeric-check expression is malformed
// (which resolves the result to ERROR at the caller).
//
// All checks are evaluated; failures accumulate rather than
// short-circuiting, so one run reports every miss at once.
func Evaluate(tc TestCase, response string) (Status, []string, error) {
	var failures []string

	for _, raw := range tc.Expected {
		want := strings.TrimSpace(raw)
		if want == "" {
			continue
		}
		if !strings.Contains(response, want) {
			failures = append(failures, fmt.Sprintf("missing: %q", want))
		}
	}

	for _, raw := range tc.NumericChecks {
		expr := strings.TrimSpace(raw)
		if expr == "" {
			continue
		}
		fail, err := evalNumericCheck(expr, response)
		if err != nil {
			return StatusError, failures, err
		}
		if fail != "" {
			failures = append(failures, fail)
		}
	}

	if len(failures) > 0 {
		return StatusFail, failures, nil
	}
	return StatusPass, nil, nil
}

// evalNumericCheck evaluates one assertion against the response text.
// It returns a non-empty diagnostic when the check fails, and an error
// when the expression itself cannot be parsed.
//
// Prefix matching is case-sensitive and anchors at the first literal
// occurrence of the prefix in the response.
func evalNumericCheck(expr, response string) (string, error) {
	m := checkExpr.FindStringSubmatch(expr)
	if m == nil {
		return "", &ErrBadCheck{Expr: expr, Reason: "expected \"<prefix> <op> <value>\""}
	}
	prefix := strings.TrimSpace(m[1])
	op := m[2]
	rhs := strings.TrimSpace(m[3])

	region := response
	if prefix != "" {
		idx := strings.Index(response, prefix)
		if idx < 0 {
			return fmt.Sprintf("prefix not found: %q", prefix), nil
		}
		region = response[idx+len(prefix):]
	}

	numText := firstNumber.FindString(region)
	if numText == "" {
		loc := "in response"
		if prefix != "" {
			loc = fmt.Sprintf("after %q", prefix)
		}
		return fmt.Sprintf("no numeric value %s", loc), nil
	}
	value, err := strconv.ParseFloat(numText, 64)
	if err != nil {
		// firstNumber only matches parseable text
		return "", &ErrBadCheck{Expr: expr, Reason: err.Error()}
	}

	at := ""
	if prefix != "" {
		at = fmt.Sprintf(" (after %q)", prefix)
	}

	if op == "in" {
		lo, hi, err := parseRange(rhs)
		if err != nil {
			return "", &ErrBadCheck{Expr: expr, Reason: err.Error()}
		}
		if value < lo || value > hi {
			return fmt.Sprintf("%v not in [%v..%v]%s", value, lo, hi, at), nil
		}
		return "", nil
	}

	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return "", &ErrBadCheck{Expr: expr, Reason: fmt.Sprintf("non-numeric threshold %q", rhs)}
	}
	ok := false
	switch op {
	case ">=":
		ok = value >= threshold
	case "<=":
		ok = value <= threshold
	case ">":
		ok = value > threshold
	case "<":
		ok = value < threshold
	case "==":
		ok = value == threshold
	case "!=":
		ok = value != threshold
	}
	if !ok {
		return fmt.Sprintf("%v %s %v failed%s", value, op, threshold, at), nil
	}
	return "", nil
}

func parseRange(rhs string) (float64, float64, error) {
	parts := strings.SplitN(rhs, "..", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad range (expected lo..hi): %q", rhs)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("non-numeric range bounds: %q", rhs)
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("non-numeric range bounds: %q", rhs)
	}
	return lo, hi, nil
}
