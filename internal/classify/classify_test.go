package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()

	cases := []struct {
		name string
		text string
		want string
	}{
		{"unsubscribe link", "Click here to unsubscribe from this list", LabelSpam},
		{"promo", "BUY NOW and save big", LabelSpam},
		{"auto reply", "I am out of office until Monday", LabelOutOfOffice},
		{"positive", "We're interested, can you share pricing?", LabelInterested},
		{"booking", "Let's schedule a call via Calendly", LabelMeetingBooked},
		{"no match", "FYI, the server was restarted last night", LabelNotInterested},
		{"empty", "", LabelNotInterested},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, c.Classify(tc.text))
		})
	}
}

func TestSuggestReplyUsesContextLink(t *testing.T) {
	reply := SuggestReply("Can we talk?", []string{
		"no link here",
		"https://cal.com/alice/30min",
	})
	require.Contains(t, reply, "https://cal.com/alice/30min")
}

func TestSuggestReplyFallsBackToDefaultLink(t *testing.T) {
	reply := SuggestReply("Can we talk?", nil)
	require.Contains(t, reply, defaultBookingLink)
}
