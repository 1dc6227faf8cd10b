package utils

import (
	"net/url"
	"strings"
)

// EncodeURIComponent escapes a query value the way browsers do.
// url.QueryEscape encodes spaces as "+", which signaling servers written
// against encodeURIComponent reject; they want "%20".
func EncodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
