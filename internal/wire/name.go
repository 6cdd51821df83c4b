package wire

import (
	"strings"

	"golang.org/x/net/idna"
)

// Normalize lowercases a name and strips a single trailing dot, the
// canonical form used for cache keys, name comparison and SNI.
func Normalize(name string) string {
	name = strings.ToLower(name)
	return strings.TrimSuffix(name, ".")
}

// toASCII punycode-encodes any non-ASCII labels in name (RFC 5891) so
// the wire codec only has to length-prefix ASCII bytes. Names that are
// already ASCII pass through untouched; a name idna rejects as invalid
// is returned as-is, and EncodeName then writes its bytes unchanged,
// subject only to the 63-byte label-length check.
func toASCII(name string) string {
	if isASCII(name) {
		return name
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return name
	}
	return ascii
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}
