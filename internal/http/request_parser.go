// This file implements parsing of query strings and JSON bodies into
// domain values.

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

	"findash/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// ParseQuery reads the raw API filters: start_date, end_date, category,
// source, min_amount, max_amount and repeated currencies.
func ParseQuery(values url.Values) (core.Query, error) {
	var q core.Query
	var err error

	if v := strings.TrimSpace(values.Get("start_date")); v != "" {
		if q.StartDate, err = core.ParseDate(v); err != nil {
			return core.Query{}, fmt.Errorf("start_date: %w", err)
		}
	}
	if v := strings.TrimSpace(values.Get("end_date")); v != "" {
		if q.EndDate, err = core.ParseDate(v); err != nil {
			return core.Query{}, fmt.Errorf("end_date: %w", err)
		}
	}
	q.Category = sanitizeInput(values.Get("category"))
	q.Source = sanitizeInput(values.Get("source"))

	if q.MinAmount, err = parseAmountParam(values, "min_amount"); err != nil {
		return core.Query{}, err
	}
	if q.MaxAmount, err = parseAmountParam(values, "max_amount"); err != nil {
		return core.Query{}, err
	}

	for _, c := range values["currencies"] {
		for _, code := range strings.Split(c, ",") {
			if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
				q.Currencies = append(q.Currencies, code)
			}
		}
	}
	return q, nil
}

func parseAmountParam(values url.Values, key string) (*int64, error) {
	v := strings.TrimSpace(values.Get(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %q", key, core.ErrInvalidAmount, v)
	}
	return &n, nil
}

// filterBody is the wire form of core.Filter. The type is validated
// separately so an unknown value is rejected instead of ignored.
type filterBody struct {
	StartDate  core.Date `json:"startDate"`
	EndDate    core.Date `json:"endDate"`
	Currencies []string  `json:"currency"`
	Type       string    `json:"type"`
}

// ParseFilter decodes a dashboard filter from the request body.
func ParseFilter(r *http.Request) (core.Filter, error) {
	var body filterBody
	if err := DecodeJSON(r, &body); err != nil {
		return core.Filter{}, err
	}
	typ, err := core.ParseTxType(body.Type)
	if err != nil {
		return core.Filter{}, err
	}
	if !body.StartDate.IsZero() && !body.EndDate.IsZero() && body.EndDate.Before(body.StartDate.Time) {
		return core.Filter{}, fmt.Errorf("%w: end date before start date", core.ErrInvalidDate)
	}
	return core.Filter{
		StartDate:  body.StartDate,
		EndDate:    body.EndDate,
		Currencies: body.Currencies,
		Type:       typ,
	}, nil
}

var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON decodes a bounded JSON body into v, rejecting unknown fields
// and trailing data.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}
