// Package object deals with logical object keys: the forward-slash-delimited
// hierarchical identifiers under which files live in the storage bucket.
package object

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrEmptyKey        = errors.New("object key is empty")
	ErrEmptySegment    = errors.New("object key contains an empty segment")
	ErrRelativeSegment = errors.New("object key contains a relative segment")
)

// EncodePath percent-encodes each segment of a logical key independently so
// characters such as spaces, '#' and '%' are escaped, while '/' stays a plain
// hierarchy separator. The slash count of the output equals that of the input
// and each segment round-trips through url.PathUnescape.
func EncodePath(key string) string {
	segs := strings.Split(key, "/")
	enc := make([]string, len(segs))
	for i, seg := range segs {
		enc[i] = url.PathEscape(seg)
	}
	return strings.Join(enc, "/")
}

// CleanKey trims surrounding whitespace and a leading slash, then validates the
// key. The gateway brokers write and delete access to the bucket, so keys with
// empty, "." or ".." segments are refused instead of passed through.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "":
			return "", ErrEmptySegment
		case ".", "..":
			return "", ErrRelativeSegment
		}
	}
	return key, nil
}
