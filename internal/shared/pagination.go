package shared

import (
	"net/url"
	"strconv"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Page describes a keyset-free limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// PageFromQuery reads limit/offset query parameters, clamping invalid values.
func PageFromQuery(q url.Values) Page {
	p := Page{Limit: defaultPageSize}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		p.Limit = v
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		p.Offset = v
	}
	return p
}
