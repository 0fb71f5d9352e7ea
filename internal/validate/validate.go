// Package validate checks operator-supplied identifiers before they
// reach the controller. The formats mirror what the controller itself
// accepts, so a bad identifier fails locally instead of as an opaque
// 4xx from the API.
package validate

import (
	"strings"

	"github.com/yourusername/unifi-ops/internal/transport"
)

// maxListLimit is the largest page size the controller serves.
const maxListLimit = 1000

// SiteID requires a non-empty identifier of letters, digits, hyphens,
// and underscores.
func SiteID(id string) error {
	if id == "" {
		return transport.NewError(transport.KindValidation, "site id must not be empty")
	}
	for _, r := range id {
		if !isAlnum(r) && r != '-' && r != '_' {
			return transport.NewError(transport.KindValidation,
				"site id %q contains invalid character %q", id, r)
		}
	}
	return nil
}

// MAC validates a MAC address and returns it canonicalized: lowercase,
// colon-separated. Colon, hyphen, and dot separators are accepted on
// input.
func MAC(mac string) (string, error) {
	cleaned := strings.ToLower(strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac))
	if len(cleaned) != 12 || !isHex(cleaned) {
		return "", transport.NewError(transport.KindValidation,
			"invalid MAC address %q", mac)
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(cleaned[i : i+2])
	}
	return b.String(), nil
}

// ClientRef accepts either a MAC address, returned canonicalized, or a
// controller-assigned client id.
func ClientRef(ref string) (string, error) {
	if mac, err := MAC(ref); err == nil {
		return mac, nil
	}
	if ref == "" {
		return "", transport.NewError(transport.KindValidation, "client id must not be empty")
	}
	for _, r := range ref {
		if !isAlnum(r) && r != '-' && r != '_' {
			return "", transport.NewError(transport.KindValidation,
				"client reference %q is neither a MAC address nor a client id", ref)
		}
	}
	return ref, nil
}

// Pagination bounds listing parameters. A zero limit defers to the
// controller's default page size.
func Pagination(offset, limit int) error {
	if offset < 0 {
		return transport.NewError(transport.KindValidation,
			"offset must be non-negative, got %d", offset)
	}
	if limit < 0 || limit > maxListLimit {
		return transport.NewError(transport.KindValidation,
			"limit must be between 0 and %d, got %d", maxListLimit, limit)
	}
	return nil
}

func isAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
