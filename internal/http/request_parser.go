// Package http provides the JSON HTTP transport of the ledger.
//
// This file implements request body decoding and query parsing shared by
// the handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ledger/internal/core"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1 << 20

type createCategoryRequest struct {
	Name string `json:"name"`
}

type renameCategoryRequest struct {
	NewName string `json:"newName"`
}

// decodeJSON reads a single JSON value from r's body into dst. A body that
// is not declared as JSON is errUnsupportedMediaType; a body that does not
// decode is InvalidArgument.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errUnsupportedMediaType
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return core.Invalid(errors.New("request body is empty"))
		case errors.As(err, &maxErr):
			return core.Invalid(fmt.Errorf("request body exceeds %d bytes", maxErr.Limit))
		default:
			return core.Invalid(fmt.Errorf("malformed JSON body: %v", err))
		}
	}
	if dec.More() {
		return core.Invalid(errors.New("request body must contain a single JSON value"))
	}
	return nil
}

// parseFilter reads an outcome filter from the query string. No filter
// parameter means nil. Missing bounds are open.
func parseFilter(q url.Values) (*core.Filter, error) {
	kind := strings.TrimSpace(q.Get("filter"))
	if kind == "" {
		return nil, nil
	}

	f := &core.Filter{Kind: core.FilterKind(strings.ToLower(kind))}
	switch f.Kind {
	case core.FilterTime:
		start, err := parseTimeParam(q, "start")
		if err != nil {
			return nil, err
		}
		end, err := parseTimeParam(q, "end")
		if err != nil {
			return nil, err
		}
		f.Start, f.End = start, end
	case core.FilterMoney:
		min, err := parseAmountParam(q, "min")
		if err != nil {
			return nil, err
		}
		max, err := parseAmountParam(q, "max")
		if err != nil {
			return nil, err
		}
		f.Min, f.Max = min, max
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func parseTimeParam(q url.Values, name string) (*time.Time, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, core.Invalid(fmt.Errorf("%s must be an RFC 3339 timestamp", name))
	}
	return &t, nil
}

func parseAmountParam(q url.Values, name string) (*decimal.Decimal, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseAmount(v)
	if err != nil {
		return nil, core.Invalid(fmt.Errorf("%s must be a decimal amount", name))
	}
	return &d, nil
}
