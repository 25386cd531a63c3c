package pipeline

import (
	"html"
	"regexp"
	"strings"
)

// HTML-to-text conversion patterns. Script and style blocks are stripped
// with separate expressions because RE2 has no backreferences.
var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	brTagRe       = regexp.MustCompile(`(?is)<br\s*/?>`)
	pCloseRe      = regexp.MustCompile(`(?is)</p>`)
	liCloseRe     = regexp.MustCompile(`(?is)</li>`)
	anyTagRe      = regexp.MustCompile(`(?is)<[^>]+>`)
	hspaceRe      = regexp.MustCompile(`[ \t\x{00A0}]+`)
	multiBlankRe  = regexp.MustCompile(`\n{3,}`)
)

// Signature and footer stripping heuristics, applied in order.
var signatureRes = []*regexp.Regexp{
	regexp.MustCompile(`(?s)\n\n--\n.*`),
	regexp.MustCompile(`(?sm)\n\n.*드림$`),
	regexp.MustCompile(`(?s)\n\n.*감사합니다\..*`),
}

// htmlToText converts an HTML body to plain text: drop script/style blocks,
// map line-break tags to newlines and list items to bullets, strip remaining
// tags, unescape entities, and collapse whitespace.
func htmlToText(s string) string {
	if s == "" {
		return ""
	}
	text := scriptBlockRe.ReplaceAllString(s, " ")
	text = styleBlockRe.ReplaceAllString(text, " ")
	text = brTagRe.ReplaceAllString(text, "\n")
	text = pCloseRe.ReplaceAllString(text, "\n")
	text = liCloseRe.ReplaceAllString(text, "\n- ")
	text = anyTagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = hspaceRe.ReplaceAllString(text, " ")
	text = multiBlankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// mergeBodies merges the plain-text and converted HTML bodies, keeping the
// first occurrence of each distinct non-blank line.
func mergeBodies(plain, htmlText string) string {
	merged := htmlText
	if plain != "" {
		merged = strings.TrimSpace(plain + "\n\n" + htmlText)
	}

	seen := make(map[string]struct{})
	var lines []string
	for _, ln := range strings.Split(merged, "\n") {
		key := strings.TrimSpace(ln)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		lines = append(lines, ln)
	}
	return strings.Join(lines, "\n")
}

// zipAddresses pairs a name array with an address array positionally,
// padding the shorter with empty strings and dropping pairs where both
// fields are empty.
func zipAddresses(names, emails []string) []Address {
	n := len(names)
	if len(emails) > n {
		n = len(emails)
	}

	var out []Address
	for i := 0; i < n; i++ {
		var a Address
		if i < len(names) {
			a.Name = names[i]
		}
		if i < len(emails) {
			a.Email = emails[i]
		}
		if a.Name != "" || a.Email != "" {
			out = append(out, a)
		}
	}
	return out
}

// Normalize converts a raw provider record into the canonical email record.
// Missing fields degrade to empty values; it never fails for malformed
// content once the record has passed Validate.
func Normalize(raw *RawEmail) *NormalizedEmail {
	body := raw.EmailBody

	if raw.HTMLBody != "" {
		if htmlText := htmlToText(raw.HTMLBody); htmlText != "" {
			body = mergeBodies(body, htmlText)
		}
	}

	for _, re := range signatureRes {
		body = re.ReplaceAllString(body, "")
	}

	return &NormalizedEmail{
		RecordID:       raw.RecordID,
		EmailID:        raw.EmailID,
		Subject:        raw.Subject,
		From:           Address{Name: raw.FromName, Email: raw.FromAddress},
		To:             zipAddresses(raw.ToNames, raw.ToAddresses),
		Cc:             zipAddresses(raw.CcNames, raw.CcAddresses),
		ReceivedAt:     raw.Date,
		Body:           strings.TrimSpace(body),
		HTMLBody:       raw.HTMLBody,
		ConversationID: raw.ThreadID,
		PriorityHint:   raw.Priority,
		Keywords:       raw.Threads.Keywords,
	}
}
