package engine

import (
	"regexp"
	"strings"
)

// ReplyKind is the classified intent of an inbound provider SMS. The old
// free-text keyword dispatch is collapsed into this fixed set before any
// transition logic runs.
type ReplyKind string

const (
	ReplyYes     ReplyKind = "YES"
	ReplyNo      ReplyKind = "NO"
	ReplyStop    ReplyKind = "STOP"
	ReplyUnknown ReplyKind = "UNKNOWN"
)

// Teaser SMS end with "Lead lead_a3f09c12." so providers with several open
// offers can address one explicitly.
var leadTokenRe = regexp.MustCompile(`(?i)\blead_[0-9a-f]{8}\b`)

// ClassifyReply turns a raw SMS body into a reply kind plus the embedded
// lead id token, if any. Matching is case-insensitive; STOP anywhere in the
// message wins over everything else (carrier compliance).
func ClassifyReply(body string) (ReplyKind, string) {
	leadID := strings.ToLower(leadTokenRe.FindString(body))

	rest := strings.TrimSpace(leadTokenRe.ReplaceAllString(body, ""))
	upper := strings.ToUpper(rest)

	for _, tok := range strings.Fields(upper) {
		if tok == "STOP" || tok == "UNSUBSCRIBE" {
			return ReplyStop, leadID
		}
	}

	switch strings.Trim(upper, " .,!") {
	case "Y", "YES":
		return ReplyYes, leadID
	case "N", "NO":
		return ReplyNo, leadID
	default:
		return ReplyUnknown, leadID
	}
}
