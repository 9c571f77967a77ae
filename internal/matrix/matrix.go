// Package matrix expands build matrix declarations into concrete rows.
package matrix

import (
	"fmt"
	"sort"
	"strings"

	"git.home.luguber.info/inful/docspipe/internal/config"
)

// Row is one concrete combination of matrix variables.
type Row map[string]string

// Label renders a stable, human readable identifier ("os=linux,python=3.9").
func (r Row) Label() string {
	if len(r) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, r[k]))
	}
	return strings.Join(parts, ",")
}

// Env returns the row as MATRIX_<KEY>=value environment variables.
func (r Row) Env() map[string]string {
	env := make(map[string]string, len(r))
	for k, v := range r {
		env["MATRIX_"+strings.ToUpper(k)] = v
	}
	return env
}

// Expand returns the cartesian product of the matrix variables, minus excluded
// rows, plus include rows. Order is deterministic: variable keys are sorted
// and values keep declaration order. A nil or empty matrix yields one empty
// row so callers can treat every job as matrixed.
func Expand(m *config.Matrix) []Row {
	if m == nil || (len(m.Vars) == 0 && len(m.Include) == 0) {
		return []Row{{}}
	}

	keys := make([]string, 0, len(m.Vars))
	for k := range m.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := []Row{{}}
	for _, k := range keys {
		var next []Row
		for _, base := range rows {
			for _, v := range m.Vars[k] {
				row := make(Row, len(base)+1)
				for bk, bv := range base {
					row[bk] = bv
				}
				row[k] = v
				next = append(next, row)
			}
		}
		rows = next
	}

	if len(m.Exclude) > 0 {
		var kept []Row
		for _, row := range rows {
			if !matchesAny(row, m.Exclude) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	for _, inc := range m.Include {
		rows = append(rows, Row(inc))
	}

	if len(rows) == 0 {
		return []Row{{}}
	}
	return rows
}

// matchesAny reports whether every key of some pattern equals the row's value.
func matchesAny(row Row, patterns []map[string]string) bool {
	for _, pat := range patterns {
		match := len(pat) > 0
		for k, v := range pat {
			if row[k] != v {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
