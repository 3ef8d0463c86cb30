package adapter

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// linkHarvester extracts product links from listing DOM snapshots,
// deduplicating across snapshots since each load-more click or scroll
// re-renders everything seen so far.
type linkHarvester struct {
	selector   string
	baseURL    string
	siteCodeRe *regexp.Regexp
	seen       map[string]bool
	emit       func(pharma.DiscoveredURL) error
}

func newLinkHarvester(selector, baseURL string, siteCodeRe *regexp.Regexp, emit func(pharma.DiscoveredURL) error) *linkHarvester {
	return &linkHarvester{
		selector:   selector,
		baseURL:    strings.TrimRight(baseURL, "/"),
		siteCodeRe: siteCodeRe,
		seen:       make(map[string]bool),
		emit:       emit,
	}
}

func (h *linkHarvester) harvestHTML(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return &pharma.ExtractionError{URL: h.baseURL, Reason: "parse listing html: " + err.Error()}
	}
	return h.harvestDoc(doc)
}

func (h *linkHarvester) harvestDoc(doc *goquery.Document) error {
	var emitErr error
	doc.Find(h.selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return true
		}
		href = h.absolutize(href)
		if h.seen[href] {
			return true
		}
		h.seen[href] = true

		var siteCode string
		if h.siteCodeRe != nil {
			if m := h.siteCodeRe.FindStringSubmatch(href); m != nil {
				siteCode = m[1]
			}
		}
		if err := h.emit(pharma.DiscoveredURL{URL: href, SiteCode: siteCode}); err != nil {
			emitErr = err
			return false
		}
		return true
	})
	return emitErr
}

func (h *linkHarvester) absolutize(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return h.baseURL + href
	}
	return h.baseURL + "/" + href
}

// count reports how many unique links were emitted.
func (h *linkHarvester) count() int { return len(h.seen) }
