package content

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ToMarkdown strips non-content elements from a rendered HTML document and
// converts what remains to markdown. pageURL resolves relative links.
func ToMarkdown(html, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", eris.Wrap(err, "content: parse html")
	}
	doc.Find("script, style, noscript, svg, iframe, template, link, meta").Remove()

	cleaned, err := doc.Html()
	if err != nil {
		return "", eris.Wrap(err, "content: serialize html")
	}

	converter := md.NewConverter(pageURL, true, nil)
	markdown, err := converter.ConvertString(cleaned)
	if err != nil {
		return "", eris.Wrap(err, "content: convert to markdown")
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(markdown, "\n\n")), nil
}

// Preview returns at most n characters of content, cut on a rune boundary.
func Preview(content string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n])
}
