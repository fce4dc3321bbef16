// Package validate performs structural recipient-address validation.
// Everything here is pure: no I/O, fail closed on anything ambiguous.
package validate

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"mailgate/internal/models"
)

// addressPattern is the minimal local@domain.tld shape checked after the
// domain has been ASCII-normalized. Go's regexp engine is linear-time, so
// adversarial input cannot make this match pathological.
var addressPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]{2,}$`)

// Address reports whether addr is a structurally valid recipient address:
// non-blank, exactly one '@', no consecutive dots in either part, and a
// domain that maps cleanly to ASCII under IDNA lookup rules.
func Address(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}

	at := strings.Index(addr, "@")
	if at <= 0 || at != strings.LastIndex(addr, "@") || at == len(addr)-1 {
		return false
	}

	local, domain := addr[:at], addr[at+1:]
	if strings.Contains(local, "..") || strings.Contains(domain, "..") {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}

	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return false
	}

	return addressPattern.MatchString(local + "@" + ascii)
}

// Normalize lower-cases the address and maps the domain part to ASCII.
// Used as the deduplication key; returns the lower-cased input unchanged
// when the domain cannot be mapped.
func Normalize(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	at := strings.Index(addr, "@")
	if at < 0 {
		return addr
	}
	ascii, err := idna.Lookup.ToASCII(addr[at+1:])
	if err != nil {
		return addr
	}
	return addr[:at+1] + ascii
}

// Partition splits recipients into (valid, invalid) by Address, preserving
// input order within each part. Every input element lands in exactly one
// part.
func Partition(rs []models.Recipient) (valid, invalid []models.Recipient) {
	for _, r := range rs {
		if Address(r.Address) {
			valid = append(valid, r)
		} else {
			invalid = append(invalid, r)
		}
	}
	return valid, invalid
}
