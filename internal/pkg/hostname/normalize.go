// Package hostname canonicalizes the domain a deployed installation reports
// when it validates its license. Every activation is stored under the
// canonical form, so two spellings of the same site always map to one slot.
package hostname

import (
	"fmt"
	"net"
	"strings"

	xerrors "license-service/internal/pkg/errors"

	"golang.org/x/net/idna"
)

const maxLength = 253

// Normalize returns the canonical form of raw:
//   - surrounding whitespace removed, lowercased
//   - any scheme ("https://") and userinfo ("user@") removed
//   - path, query and fragment removed
//   - port removed
//   - trailing dot removed
//   - unicode labels converted to punycode
//
// A leading "www." is kept: www.example.com and example.com are different
// domains. Normalize is idempotent.
func Normalize(raw string) (string, error) {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return "", fmt.Errorf("%w: empty", xerrors.ErrInvalidDomain)
	}

	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	} else {
		host = strings.TrimPrefix(host, "//")
	}

	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}

	host, err := stripPort(host)
	if err != nil {
		return "", err
	}
	host = strings.TrimSuffix(host, ".")

	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", xerrors.ErrInvalidDomain, raw)
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", xerrors.ErrInvalidDomain, raw, err)
	}
	if err := checkLabels(ascii); err != nil {
		return "", fmt.Errorf("%w: %q: %v", xerrors.ErrInvalidDomain, raw, err)
	}

	return ascii, nil
}

// MustNormalize is Normalize for inputs known to be valid, such as test fixtures.
func MustNormalize(raw string) string {
	host, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return host
}

// Equal reports whether a and b canonicalize to the same domain.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}

func stripPort(host string) (string, error) {
	if strings.HasPrefix(host, "[") {
		end := strings.Index(host, "]")
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated IPv6 literal", xerrors.ErrInvalidDomain)
		}
		return host[1:end], nil
	}

	// bare IPv6 without brackets carries no port
	if strings.Count(host, ":") > 1 {
		return host, nil
	}

	if i := strings.LastIndex(host, ":"); i >= 0 {
		port := host[i+1:]
		for _, r := range port {
			if r < '0' || r > '9' {
				return "", fmt.Errorf("%w: bad port %q", xerrors.ErrInvalidDomain, port)
			}
		}
		host = host[:i]
	}
	return host, nil
}

func checkLabels(host string) error {
	if len(host) > maxLength {
		return fmt.Errorf("longer than %d characters", maxLength)
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return fmt.Errorf("empty label")
		}
		if len(label) > 63 {
			return fmt.Errorf("label %q longer than 63 characters", label)
		}
	}
	return nil
}
