package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/query"
)

// first returns the first non-empty value among aliased parameters.
func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

func parseDate(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, badRequest{fmt.Errorf("invalid %s %q", name, v)}
}

func parseFilter(r *http.Request) (query.Filter, error) {
	q := r.URL.Query()
	f := query.Filter{
		Region:         first(q, "region", "state"),
		Subregion:      first(q, "subregion", "district"),
		EventType:      first(q, "type", "eventType"),
		ReasonCategory: first(q, "reason", "reasonCategory"),
		Source:         first(q, "source", "sourceType"),
		Search:         first(q, "search", "q"),
	}
	if v := first(q, "verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, badRequest{fmt.Errorf("invalid verified %q", v)}
		}
		f.Verified = &b
	}
	var err error
	if f.From, err = parseDate("startDate", first(q, "startDate", "from")); err != nil {
		return f, err
	}
	if f.To, err = parseDate("endDate", first(q, "endDate", "to")); err != nil {
		return f, err
	}
	return f, nil
}

func parsePage(r *http.Request) (query.Page, error) {
	q := r.URL.Query()
	p := query.Page{Number: 1, Size: query.DefaultPageSize}
	if v := first(q, "page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, badRequest{fmt.Errorf("invalid page %q", v)}
		}
		p.Number = n
	}
	if v := first(q, "limit", "pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, badRequest{fmt.Errorf("invalid limit %q", v)}
		}
		p.Size = n
	}
	return p.Normalized(), nil
}

func parseSort(r *http.Request) query.Sort {
	q := r.URL.Query()
	return query.ParseSort(first(q, "sortBy"), first(q, "sortOrder"))
}
