// Package normalize canonicalizes raw discovered paths into stable route keys.
package normalize

import "strings"

// collections are path segments whose following segment is, by convention,
// an instance identifier (e.g. /users/jane-doe-42 -> /users/:slug).
var collections = map[string]bool{
	"users":         true,
	"accounts":      true,
	"orders":        true,
	"items":         true,
	"products":      true,
	"posts":         true,
	"comments":      true,
	"projects":      true,
	"teams":         true,
	"organizations": true,
	"invoices":      true,
	"reports":       true,
	"files":         true,
	"documents":     true,
	"sessions":      true,
}

// slugLengthThreshold is the minimum length for a bare alphanumeric segment
// to be treated as a high-entropy identifier rather than literal text.
const slugLengthThreshold = 16

// Route canonicalizes a raw discovered path into a stable route key.
// Query strings and fragments are dropped, the path is lowercased, a single
// trailing slash is stripped (root stays "/"), and instance-identifier
// segments are replaced with ":id" or ":slug" placeholders. The function is
// deterministic and idempotent: Route(Route(p)) == Route(p).
func Route(raw string) string {
	// Query strings and fragments are not part of the route key.
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}

	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "/" {
		return "/"
	}

	raw = strings.TrimPrefix(raw, "/")
	raw = strings.TrimSuffix(raw, "/")
	if raw == "" {
		return "/"
	}

	segments := strings.Split(raw, "/")
	for i, seg := range segments {
		prev := ""
		if i > 0 {
			prev = segments[i-1]
		}
		segments[i] = replaceSegment(seg, prev)
	}

	return "/" + strings.Join(segments, "/")
}

// replaceSegment maps one path segment to its placeholder, if any. prev is
// the (already normalized) preceding segment.
func replaceSegment(seg, prev string) string {
	switch {
	case seg == ":id" || seg == ":slug":
		// Already normalized; keep idempotence.
		return seg
	case isNumeric(seg):
		return ":id"
	case isUUID(seg):
		return ":id"
	case isHighEntropy(seg):
		return ":slug"
	case collections[prev] && looksLikeIdentifier(seg):
		return ":slug"
	default:
		return seg
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isUUID matches the 8-4-4-4-12 lowercase hex shape.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, r := range s {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if r != '-' {
				return false
			}
			continue
		}
		if !isHexDigit(r) {
			return false
		}
	}
	return true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

// isHighEntropy flags long alphanumeric segments that contain at least one
// digit, e.g. generated tokens and hashes. Literal text segments (words)
// never match because they carry no digits.
func isHighEntropy(s string) bool {
	if len(s) < slugLengthThreshold {
		return false
	}
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return hasDigit
}

// looksLikeIdentifier reports whether a segment following a collection name
// looks like an instance identifier rather than a literal sub-path such as
// /users/profile. Requiring a digit keeps literal text segments intact.
func looksLikeIdentifier(s string) bool {
	if s == "" || collections[s] {
		return false
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
