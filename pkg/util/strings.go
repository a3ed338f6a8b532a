package util

import "strings"

// SplitSymbols splits a comma or space separated list, upper-cases each entry
// and drops blanks and duplicates while keeping order.
func SplitSymbols(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	return NormalizeSymbols(fields)
}

// NormalizeSymbols upper-cases, trims and de-duplicates symbols in order.
func NormalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, f := range in {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
