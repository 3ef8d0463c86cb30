package adapter

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

const farmaOlivaBaseURL = "https://www.farmaoliva.com.py"

var farmaOlivaCategories = []string{
	farmaOlivaBaseURL + "/catalogo/medicamentos-c3",
	farmaOlivaBaseURL + "/catalogo/suplementos-nutricionales-c5",
}

// Pagination safety cap; the largest category spans ~160 pages.
const farmaOlivaMaxPages = 500

// farmaOliva scrapes farmaoliva.com.py. The catalog paginates with
// plain links, so discovery and detail both run over straight HTTP.
type farmaOliva struct {
	cfg     Config
	fetcher *fetcher
	logger  *zap.Logger
}

func newFarmaOliva(cfg Config, fetcher *fetcher, logger *zap.Logger) *farmaOliva {
	return &farmaOliva{cfg: cfg, fetcher: fetcher, logger: logger}
}

func (a *farmaOliva) Source() pharma.Source { return pharma.SourceFarmaOliva }

func (a *farmaOliva) Discover(ctx context.Context, emit func(pharma.DiscoveredURL) error) error {
	harvester := newLinkHarvester(".product a.ecommercepro-LoopProduct-link", farmaOlivaBaseURL, nil, emit)

	for _, category := range farmaOlivaCategories {
		pageURL := category
		for page := 0; page < farmaOlivaMaxPages && pageURL != ""; page++ {
			if err := ctx.Err(); err != nil {
				return pharma.Transient(err)
			}
			doc, _, err := a.fetcher.fetchDocument(ctx, pageURL)
			if err != nil {
				return err
			}
			if err := harvester.harvestDoc(doc); err != nil {
				return err
			}

			next, _ := doc.Find("a.next.page-numbers").First().Attr("href")
			if next != "" {
				next = harvester.absolutize(next)
			}
			pageURL = next
		}
	}
	a.logger.Info("discovery finished",
		zap.String("source", string(a.Source())),
		zap.Int("urls", harvester.count()),
	)
	return nil
}

func (a *farmaOliva) FetchDetail(ctx context.Context, url string) (*pharma.Product, []byte, error) {
	doc, body, err := a.fetcher.fetchDocument(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	product, err := parseFarmaOlivaProduct(doc, url)
	if err != nil {
		return nil, nil, err
	}
	return product, body, nil
}

func parseFarmaOlivaProduct(doc *goquery.Document, url string) (*pharma.Product, error) {
	name := strip(doc.Find(".single-product-header h1.product_title").First().Text())
	if name == "" {
		return nil, &pharma.ExtractionError{URL: url, Reason: "product name missing"}
	}

	p := &pharma.Product{
		Source:    pharma.SourceFarmaOliva,
		Name:      name,
		SourceURL: url,
		SiteCode:  strip(doc.Find("#producto-codigo").First().Text()),
		Barcode:   strip(doc.Find("#producto-ean").First().Text()),
	}
	if p.SiteCode == "" {
		return nil, &pharma.ExtractionError{URL: url, Reason: "site code missing"}
	}

	doc.Find(".ecommercepro-breadcrumb a").Each(func(_ int, sel *goquery.Selection) {
		text := strip(sel.Text())
		if text == "" || text == "Inicio" || text == "Catálogo de productos" {
			return
		}
		p.CategoryPath = append(p.CategoryPath, text)
	})
	if len(p.CategoryPath) > 0 {
		p.MainCategory = p.CategoryPath[0]
	}

	// "Venta libre" vs prescription badges.
	if badge := strip(doc.Find(".badge-pill").First().Text()); badge != "" {
		p.RequiresPrescription = !strings.Contains(strings.ToLower(badge), "libre")
	}

	var current, original, percent *float64
	if v, ok := parseGuarani(doc.Find("#producto-precio").First().Text()); ok {
		current = floatPtr(v)
	}
	if v, ok := parseGuarani(doc.Find("#producto-precio-anterior").First().Text()); ok {
		original = floatPtr(v)
	}
	if v, ok := parsePercent(doc.Find(".discount text").First().Text()); ok {
		percent = floatPtr(v)
	}
	cur, orig, pct, amount := normalizePricing(current, original, percent)
	if cur == 0 {
		return nil, &pharma.ExtractionError{URL: url, Reason: "price missing"}
	}
	p.CurrentPrice = cur
	p.OriginalPrice = orig
	p.DiscountPercentage = pct
	p.DiscountAmount = amount

	// The short-description block lists h6/p pairs; "Droga" is the
	// closest thing to a brand the site exposes.
	doc.Find(".ecommercepro-product-details__short-description h6").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		key := strings.TrimSpace(strings.TrimSuffix(strip(sel.Text()), ":"))
		if !strings.EqualFold(key, "Droga") {
			return true
		}
		p.Brand = strip(sel.NextFiltered("p").Text())
		return false
	})

	p.Description = strip(doc.Find("#tab-1").First().Text())

	img := doc.Find(".ecommercepro-product-gallery__image img").First()
	if src, ok := img.Attr("src"); ok && src != "" {
		p.ImageURL = src
	} else if src, ok := img.Attr("data-src"); ok {
		p.ImageURL = src
	}
	return p, nil
}
