package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SummaryText strips markup from an HTML fragment and cuts it to limit runes.
func SummaryText(fragment string, limit int) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	text := fragment
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment)); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if rs := []rune(text); limit > 0 && len(rs) > limit {
		return string(rs[:limit])
	}
	return text
}

// ImageFromHTML returns the first <img src> in fragment resolved against base.
func ImageFromHTML(fragment, base string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, ok := doc.Find("img[src]").First().Attr("src")
	if !ok {
		return ""
	}
	return ResolveURL(base, src)
}

// ResolveURL makes ref absolute against base. It returns ref unchanged when
// either fails to parse.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
