// Package utils holds small request-parsing helpers shared by the HTTP
// handlers: integer and pagination parameters, and calendar day / instant
// parsing in the formats the booking API accepts.
package utils

import (
	"strconv"
	"strings"
)

// Page bounds used by list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// not a number. Surrounding whitespace is not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses page and page_size query values, defaulting and bounding
// them to [1, ∞) and [1, MaxPageSize].
func ClampPage(pageRaw, sizeRaw string) (page, size int) {
	page = AtoiDefault(strings.TrimSpace(pageRaw), 1)
	if page < 1 {
		page = 1
	}
	size = AtoiDefault(strings.TrimSpace(sizeRaw), DefaultPageSize)
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// TotalPages returns the page count for total items at size per page.
func TotalPages(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
