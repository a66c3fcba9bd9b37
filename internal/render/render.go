// Package render implements the CID rewriter (C5) and the CSP meta-tag
// injector used by the rendered-email HTTP endpoint, both grounded in
// spec.md §4.5 and the original csp.rs injector's head-wrapping fallback.
package render

import (
	"fmt"
	"regexp"
	"strings"
)

var cidSrcPattern = regexp.MustCompile(`(?i)src\s*=\s*(["']?)cid:([^"'\s>]+)`)

// RewriteCID replaces every `src=cid:...` occurrence whose content-id has an
// entry in attachmentByCID (keyed both with and without angle brackets) with
// the attachment's download URL, leaving unmatched CIDs untouched.
func RewriteCID(html string, attachmentByCID map[string]string) string {
	lookup := map[string]string{}
	for cid, attachmentID := range attachmentByCID {
		bare := strings.TrimSuffix(strings.TrimPrefix(cid, "<"), ">")
		lookup[bare] = attachmentID
		lookup["<"+bare+">"] = attachmentID
	}

	return cidSrcPattern.ReplaceAllStringFunc(html, func(match string) string {
		groups := cidSrcPattern.FindStringSubmatch(match)
		quote, cid := groups[1], groups[2]
		attachmentID, ok := lookup[cid]
		if !ok {
			return match
		}
		url := fmt.Sprintf("/api/attachments/%s", attachmentID)
		return fmt.Sprintf("src=%s%s%s", quote, url, quote)
	})
}

var (
	headOpenTag = regexp.MustCompile(`(?i)<head[^>]*>`)
	htmlOpenTag = regexp.MustCompile(`(?i)<html[^>]*>`)
	baseTag     = regexp.MustCompile(`(?i)<base[^>]*>`)
)

const defaultBaseTag = `<base target="_blank">`

// EnsureBaseTag ensures a `<base target="_blank">` is present inside <head>,
// following spec.md §4.5's fallback chain: replace an existing <base>,
// else insert after <head>, else synthesize <head> after <html>, else wrap
// the whole fragment in a new <html><head>...</head><body>...</body></html>.
func EnsureBaseTag(html string) string {
	if baseTag.MatchString(html) {
		return baseTag.ReplaceAllString(html, defaultBaseTag)
	}
	if loc := headOpenTag.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + defaultBaseTag + html[loc[1]:]
	}
	if loc := htmlOpenTag.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + "<head>" + defaultBaseTag + "</head>" + html[loc[1]:]
	}
	return "<html><head>" + defaultBaseTag + "</head><body>" + html + "</body></html>"
}

// RenderHTML combines CID rewriting and base-tag injection into the
// rendered_body_html produced at save time.
func RenderHTML(html string, attachmentByCID map[string]string) string {
	return EnsureBaseTag(RewriteCID(html, attachmentByCID))
}

const cspMetaTag = `<meta http-equiv="Content-Security-Policy" content="default-src 'none'; img-src 'self' data:; script-src 'none'; style-src 'unsafe-inline'; frame-src 'none'; base-uri 'none'">`

// InjectCSP inserts a restrictive CSP meta tag into <head> using the same
// fallback chain as EnsureBaseTag, applied only at render time by the HTTP
// API when the caller has not opted into allow_remote_content (C10).
func InjectCSP(html string) string {
	if loc := headOpenTag.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + cspMetaTag + html[loc[1]:]
	}
	if loc := htmlOpenTag.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + "<head>" + cspMetaTag + "</head>" + html[loc[1]:]
	}
	return "<html><head>" + cspMetaTag + "</head><body>" + html + "</body></html>"
}
