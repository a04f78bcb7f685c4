package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyReply(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		wantKind ReplyKind
		wantLead string
	}{
		{"bare Y", "Y", ReplyYes, ""},
		{"lowercase yes", "yes", ReplyYes, ""},
		{"yes with punctuation", "Yes!", ReplyYes, ""},
		{"padded yes", "  y  ", ReplyYes, ""},
		{"bare N", "N", ReplyNo, ""},
		{"lowercase no", "no.", ReplyNo, ""},
		{"stop", "STOP", ReplyStop, ""},
		{"lowercase stop", "stop", ReplyStop, ""},
		{"unsubscribe", "please UNSUBSCRIBE me", ReplyStop, ""},
		{"stop wins over yes", "YES but actually STOP", ReplyStop, ""},
		{"free text", "who is this?", ReplyUnknown, ""},
		{"yes inside a sentence is not a yes", "yes I think maybe", ReplyUnknown, ""},
		{"empty", "", ReplyUnknown, ""},
		{"yes with lead token", "Y lead_a3f09c12", ReplyYes, "lead_a3f09c12"},
		{"token before keyword", "lead_a3f09c12 NO", ReplyNo, "lead_a3f09c12"},
		{"uppercase token", "Y LEAD_A3F09C12", ReplyYes, "lead_a3f09c12"},
		{"token alone", "lead_a3f09c12", ReplyUnknown, "lead_a3f09c12"},
		{"stop with token still stops", "STOP lead_a3f09c12", ReplyStop, "lead_a3f09c12"},
		{"malformed token ignored", "Y lead_xyz", ReplyUnknown, ""},
		{"short token ignored", "Y lead_a3f0", ReplyUnknown, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, leadID := ClassifyReply(tc.body)
			assert.Equal(t, tc.wantKind, kind)
			assert.Equal(t, tc.wantLead, leadID)
		})
	}
}
