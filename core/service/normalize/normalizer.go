// Package normalize converts raw email bodies into clean plain text
// suitable for extraction: HTML is stripped and quoted replies,
// forwards, and signatures below a divider are cut off.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Divider regexes marking the start of quoted or forwarded content.
// Covers Outlook and Gmail header blocks in English and Italian.
var dividerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)From:.*?(?:<[^>]+>)?.*?To:.*?(?:Cc:.*?)?Subject:`),
	regexp.MustCompile(`(?is)From:.*?Sent:.*?To:.*?Subject:`),
	regexp.MustCompile(`(?is)Da:.*?Inviato:.*?A:.*?Oggetto:`),
	regexp.MustCompile(`(?is)On .{0,200}? wrote:`),
	regexp.MustCompile(`(?is)Il .{0,200}?ha scritto:`),
	regexp.MustCompile(`(?is)In data:.*?ha scritto:`),
	regexp.MustCompile(`(?i)Begin forwarded message:`),
	regexp.MustCompile(`(?i)Messaggio inoltrato:`),
	regexp.MustCompile(`(?i)-{3,}\s*Original Message\s*-{3,}`),
	regexp.MustCompile(`(?i)-{3,}\s*Messaggio originale\s*-{3,}`),
	regexp.MustCompile(`(?im)^>`),
}

// Fast string markers checked before falling back to the regexes.
var fastMarkers = []string{
	"\nFrom:",
	"\nSent:",
	"\nTo:",
	"\nSubject:",
	"\nDa:",
	"\nInviato:",
	"\nA:",
	"\nOggetto:",
	"Begin forwarded message",
	"Messaggio inoltrato",
	"wrote:",
	"ha scritto:",
	"________________________________",
	"\n> ",
}

// Divider search is bounded; quoted-content markers appear near the
// top of real messages.
const maxDividerSearch = 10000

// Clean converts a raw body to plain text with quoted replies removed.
// It never fails; unparseable input passes through as-is. Empty output
// occurs only for (effectively) empty input.
func Clean(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text := stripHTML(raw)

	if pos := findFirstDivider(text); pos >= 0 {
		head := collapseWhitespace(text[:pos])
		if head != "" {
			return head
		}
		// A body that is nothing but quoted content keeps its text;
		// cutting at the divider would discard the whole message.
	}

	return collapseWhitespace(text)
}

var angleAddr = regexp.MustCompile(`<([^<>@\s]+@[^<>\s]+)>`)

// stripHTML tokenizes HTML and keeps text content, inserting line
// breaks for block elements. Non-HTML input passes through unchanged.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") || !looksLikeHTML(s) {
		return s
	}

	// Keep "Name <addr@host>" mailboxes out of the tokenizer
	s = angleAddr.ReplaceAllString(s, "($1)")

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			switch tag {
			case "script", "style":
				if tt == html.StartTagToken {
					skipDepth++
				}
			case "br":
				b.WriteByte('\n')
			case "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skipDepth > 0 {
					skipDepth--
				}
			case "p", "div", "li", "tr", "table",
				"h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		}
	}
}

var htmlTagPattern = regexp.MustCompile(`<[a-zA-Z][a-zA-Z0-9]*(?:\s[^>]*)?/?>`)

// looksLikeHTML avoids treating "Name <addr@host>" address text as markup.
func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	for _, indicator := range []string{"<html", "<body", "<div", "<span", "<p ", "<p>", "<br", "<table"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return htmlTagPattern.MatchString(s)
}

// findFirstDivider returns the earliest quoted-content marker position,
// or -1 when the text contains none.
func findFirstDivider(text string) int {
	if len(text) < 10 {
		return -1
	}

	search := text
	if len(search) > maxDividerSearch {
		search = search[:maxDividerSearch]
	}

	min := -1
	for _, marker := range fastMarkers {
		if pos := strings.Index(search, marker); pos >= 0 && (min < 0 || pos < min) {
			min = pos
		}
	}
	if min >= 0 {
		return min
	}

	for _, re := range dividerPatterns {
		if loc := re.FindStringIndex(search); loc != nil && (min < 0 || loc[0] < min) {
			min = loc[0]
		}
	}
	return min
}

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

func collapseWhitespace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	s = strings.Join(lines, "\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
