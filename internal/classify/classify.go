// Package classify implements the message classification contract
// consumed by the sync pipeline. The default implementation is a keyword
// matcher; a real model-backed classifier plugs in behind the same
// interface.
package classify

import "strings"

// Classification labels.
const (
	LabelSpam          = "Spam"
	LabelOutOfOffice   = "Out of Office"
	LabelInterested    = "Interested"
	LabelMeetingBooked = "Meeting Booked"
	LabelNotInterested = "Not Interested"
)

// Classifier assigns a label to message text.
type Classifier interface {
	Classify(text string) string
}

// KeywordClassifier labels text by keyword matching. Rules are checked
// in order; the first hit wins.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the default keyword-based classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var keywordRules = []struct {
	label    string
	keywords []string
}{
	{LabelSpam, []string{"unsubscribe", "buy now", "spam"}},
	{LabelOutOfOffice, []string{"out of office", "oof"}},
	{LabelInterested, []string{"interested", "sounds good", "pricing"}},
	{LabelMeetingBooked, []string{"meeting", "schedule", "calendly", "book"}},
}

// Classify returns the label for the given text, defaulting to
// "Not Interested" when no rule matches.
func (c *KeywordClassifier) Classify(text string) string {
	t := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.label
			}
		}
	}
	return LabelNotInterested
}
