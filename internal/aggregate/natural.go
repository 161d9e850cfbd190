package aggregate

import "strings"

// naturalCompare orders house and phone numbers so "2" < "10" < "10A" < "B".
// Strings with a leading number come before those without one.
func naturalCompare(a, b string) int {
	na, ra, oka := leadingNumber(a)
	nb, rb, okb := leadingNumber(b)
	switch {
	case oka && !okb:
		return -1
	case !oka && okb:
		return 1
	case oka && okb:
		if c := compareDigits(na, nb); c != 0 {
			return c
		}
		a, b = ra, rb
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func leadingNumber(s string) (digits, rest string, ok bool) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return "", s, false
	}
	return strings.TrimLeft(s[:i], "0"), s[i:], true
}

// compareDigits compares unsigned decimal strings without leading zeros.
func compareDigits(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
