/*
NAME
  metadata.go

DESCRIPTION
  Construction and substring-based parsing of OMT metadata tokens (§3).
  OMT metadata is not full XML: recognized tokens are matched by substring,
  the same way the teacher's container/mts/meta package treats its own
  tab-separated metadata as a flat, loosely-structured blob rather than a
  general-purpose format.
*/

package omt

import (
	"bytes"
	"strings"
)

// Fixed subscription tokens (§3). Settings, tally and info tokens carry
// variable parts and are built by BuildSettings, BuildTally and BuildInfo.
const (
	TokenSubscribeVideo    = `<OMTSubscribe Video="true" />`
	TokenSubscribeAudio    = `<OMTSubscribe Audio="true" />`
	TokenSubscribeMetadata = `<OMTSubscribe Metadata="true" />`
)

// BuildSettings renders an <OMTSettings .../> token with the given quality.
func BuildSettings(quality string) string {
	return `<OMTSettings Quality="` + quality + `" />`
}

// BuildTally renders an <OMTTally .../> token. preview and program are the
// tally on-air indicators; either may be empty for a minimal keepalive
// tally (§4.4).
func BuildTally(preview, program string) string {
	return `<OMTTally Preview="` + preview + `" Program="` + program + `" />`
}

// BuildInfo renders an <OMTInfo .../> announcement carrying the given
// attribute string verbatim (e.g. `ProductName="omt-go"`).
func BuildInfo(attrs string) string {
	if attrs == "" {
		return `<OMTInfo />`
	}
	return `<OMTInfo ` + attrs + ` />`
}

// hasSubstringsCI reports whether s contains every needle, case-insensitive.
func hasSubstringsCI(s string, needles ...string) bool {
	lower := strings.ToLower(s)
	for _, n := range needles {
		if !strings.Contains(lower, strings.ToLower(n)) {
			return false
		}
	}
	return true
}

// IsSubscribeVideo reports whether payload is a subscription token
// requesting video, matched the same loose way the spec requires: a
// substring match of "Subscribe" and "Video", not an XML parse.
func IsSubscribeVideo(payload string) bool { return hasSubstringsCI(payload, "Subscribe", "Video") }

// IsSubscribeAudio reports whether payload is a subscription token
// requesting audio.
func IsSubscribeAudio(payload string) bool { return hasSubstringsCI(payload, "Subscribe", "Audio") }

// IsSubscribeMetadata reports whether payload is a subscription token
// requesting metadata.
func IsSubscribeMetadata(payload string) bool {
	return hasSubstringsCI(payload, "Subscribe", "Metadata")
}

// IsTally reports whether payload carries a Tally status update.
func IsTally(payload string) bool { return hasSubstringsCI(payload, "Tally") }

// TrimPadding strips NUL padding/termination from a metadata payload before
// it is treated as a UTF-8 string (§3: "NUL-terminated-or-padded").
func TrimPadding(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
