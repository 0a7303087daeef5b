// Package translator builds the parameterized event query from validated
// filter parameters. Every user-supplied value is bound, never interpolated.
package translator

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFilter indicates a query parameter failed validation. The wrapped
// message names the offending parameter.
var ErrInvalidFilter = errors.New("invalid filter parameter")

// DefaultPageSize is the row limit applied when per_page is absent.
const DefaultPageSize = 1000

// defaultWindow is the trailing time window applied when neither from nor to
// is present.
const defaultWindow = 24 * time.Hour

// eventTypesPattern allow-lists the events parameter before binding. Anything
// outside letters, underscore and the comma separator is rejected outright,
// not escaped.
var eventTypesPattern = regexp.MustCompile(`^[A-Za-z_,]+$`)

// Translate converts the query-string parameters into a single SQL statement
// plus its ordered bound arguments. now anchors the relative time-range
// branches so translation stays deterministic under test. Results are ordered
// by event timestamp.
func Translate(params url.Values, now time.Time) (string, []any, error) {
	var (
		preds []string
		args  []any
	)

	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, f := range []struct {
		param  string
		column string
	}{
		{"campaign_ids", "campaign_id"},
		{"friendly_froms", "friendly_from"},
		{"message_ids", "message_id"},
		{"recipients", "rcpt_to"},
		{"template_ids", "template_id"},
		{"transmission_ids", "transmission_id"},
	} {
		if raw := params.Get(f.param); raw != "" {
			preds = append(preds, fmt.Sprintf("%s = ANY(%s)", f.column, bind(splitList(raw))))
		}
	}

	if raw := params.Get("events"); raw != "" {
		if !eventTypesPattern.MatchString(raw) {
			return "", nil, fmt.Errorf("%w: events", ErrInvalidFilter)
		}
		preds = append(preds, fmt.Sprintf("type = ANY(%s)", bind(splitList(raw))))
	}

	for _, f := range []struct {
		param  string
		column string
	}{
		{"bounce_classes", "bounce_class"},
		{"subaccounts", "subaccount_id"},
	} {
		if raw := params.Get(f.param); raw != "" {
			values, err := splitIntList(f.param, raw)
			if err != nil {
				return "", nil, err
			}
			preds = append(preds, fmt.Sprintf("%s = ANY(%s)", f.column, bind(values)))
		}
	}

	if raw := params.Get("reason"); raw != "" {
		// The wildcard pattern is assembled by the database from a bound
		// parameter; the value never touches the statement text.
		preds = append(preds, fmt.Sprintf("reason LIKE '%%' || %s || '%%'", bind(raw)))
	}

	timePred, err := timeRange(params, now, bind)
	if err != nil {
		return "", nil, err
	}
	preds = append(preds, timePred)

	limit, offset, err := pagination(params)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT event FROM events WHERE ")
	sb.WriteString(strings.Join(preds, " AND "))
	sb.WriteString(" ORDER BY timestamp")
	sb.WriteString(" LIMIT " + bind(limit))
	sb.WriteString(" OFFSET " + bind(offset))

	return sb.String(), args, nil
}

// timeRange produces exactly one of the three mutually exclusive time-range
// predicates: explicit from/to, from with an open upper bound of now, or the
// default trailing window.
func timeRange(params url.Values, now time.Time, bind func(any) string) (string, error) {
	from := params.Get("from")
	to := params.Get("to")

	if to != "" && from == "" {
		return "", fmt.Errorf("%w: to requires from", ErrInvalidFilter)
	}

	var lower, upper int64
	switch {
	case from != "" && to != "":
		var err error
		if lower, err = parseTimestamp("from", from); err != nil {
			return "", err
		}
		if upper, err = parseTimestamp("to", to); err != nil {
			return "", err
		}
	case from != "":
		var err error
		if lower, err = parseTimestamp("from", from); err != nil {
			return "", err
		}
		upper = now.Unix()
	default:
		lower = now.Add(-defaultWindow).Unix()
		upper = now.Unix()
	}

	return fmt.Sprintf("timestamp BETWEEN %s AND %s", bind(lower), bind(upper)), nil
}

func pagination(params url.Values) (limit, offset int, err error) {
	limit = DefaultPageSize
	if raw := params.Get("per_page"); raw != "" {
		if limit, err = parseNonNegative("per_page", raw); err != nil {
			return 0, 0, err
		}
	}

	page := 0
	if raw := params.Get("page"); raw != "" {
		if page, err = parseNonNegative("page", raw); err != nil {
			return 0, 0, err
		}
	}

	// Pages are 1-based; page 0 and page 1 both start at the first row.
	if page > 1 {
		offset = (page - 1) * limit
	}
	return limit, offset, nil
}

func parseNonNegative(param, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFilter, param)
	}
	return n, nil
}

func parseTimestamp(param, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFilter, param)
	}
	return n, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}

func splitIntList(param, raw string) ([]int64, error) {
	parts := splitList(raw)
	values := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, param)
		}
		values = append(values, n)
	}
	return values, nil
}
