package classify

import "strings"

// defaultBookingLink is used when no context snippet carries a link.
const defaultBookingLink = "https://cal.com/example"

// SuggestReply drafts a short reply to the original message, reusing a
// booking link found in the supplied context snippets when one exists.
func SuggestReply(original string, contexts []string) string {
	link := defaultBookingLink
	for _, c := range contexts {
		if strings.Contains(c, "http") {
			link = c
			break
		}
	}

	var b strings.Builder
	b.WriteString("Thanks for reaching out! You can book a time that works for you here: ")
	b.WriteString(link)
	return b.String()
}
