package triage

import "strings"

// ReplySubject prefixes "Re: " unless the subject already starts with it in any case
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
