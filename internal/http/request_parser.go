// Package http serves the tiffin JSON API.
//
// This file implements utilities for decoding and validating request data:
// JSON bodies, path dates and month/week query parameters.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"tiffin/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// errBadRequest marks malformed input that is not a domain validation error.
var errBadRequest = errors.New("bad request")

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// decodeJSON reads r's body into dst and runs the struct validator over it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return v.Struct(dst)
}

// ParseMonthParams extracts year and month from query parameters, using the
// current month for whatever is missing.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return MonthParams{}, fmt.Errorf("%w: year %q", errBadRequest, v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return MonthParams{}, fmt.Errorf("%w: month %q", errBadRequest, v)
		}
		params.Month = time.Month(m)
	}
	return params, nil
}

// parseDateParam parses an optional YYYY-MM-DD value. Empty yields the zero
// date.
func parseDateParam(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// pathDate parses the {date} path segment, which is required.
func pathDate(r *http.Request) (core.Date, error) {
	d, err := parseDateParam(r.PathValue("date"))
	if err != nil {
		return core.Date{}, err
	}
	if err := d.Validate(); err != nil {
		return core.Date{}, err
	}
	return d, nil
}

// startOfWeek returns the Monday on or before t.
func startOfWeek(t time.Time) core.Date {
	offset := (int(t.Weekday()) + 6) % 7
	return core.DateOf(t).AddDays(-offset)
}

// validationFields flattens validator errors into field -> rule.
func validationFields(err error) (map[string]string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fieldName(fe.Namespace())] = rule
	}
	return fields, true
}

// fieldName drops the root struct name from a validator namespace.
func fieldName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
