package customers

import "strings"

// countryPrefix replaces a leading zero on whatsapp numbers; the service is
// Indonesia-first.
const countryPrefix = "62"

// CanonicalPhone normalizes a whatsapp contact value at write time: a
// leading "+" is stripped and a leading "0" is replaced with the country
// prefix.
func CanonicalPhone(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "+")
	if strings.HasPrefix(value, "0") {
		value = countryPrefix + value[1:]
	}
	return value
}
