// Package utils provides tiny helpers with no domain knowledge.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault parses s as a base-10 integer, returning def when s is blank
// or unparseable. Query-string values arrive untrimmed, so surrounding
// whitespace is tolerated.
func AtoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
