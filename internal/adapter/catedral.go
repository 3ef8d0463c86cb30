package adapter

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

const catedralBaseURL = "https://www.farmaciacatedral.com.py"

var catedralSiteCodeRe = regexp.MustCompile(`/producto/(\d+)/`)

const catedralMaxScrolls = 1000

var (
	catedralCodeRe    = regexp.MustCompile(`CÓD\.:?\s*(.+)`)
	catedralBarcodeRe = regexp.MustCompile(`CÓD\.\s*BARRAS:?\s*(.+)`)
	catedralBankRe    = regexp.MustCompile(`Logo de (.+)`)
)

// farmaciaCatedral scrapes farmaciacatedral.com.py: infinite-scroll
// listing, server-rendered product pages.
type farmaciaCatedral struct {
	cfg     Config
	fetcher *fetcher
	browser *browser
	logger  *zap.Logger
}

func newFarmaciaCatedral(cfg Config, fetcher *fetcher, browser *browser, logger *zap.Logger) *farmaciaCatedral {
	return &farmaciaCatedral{cfg: cfg, fetcher: fetcher, browser: browser, logger: logger}
}

func (a *farmaciaCatedral) Source() pharma.Source { return pharma.SourceFarmaciaCatedral }

func (a *farmaciaCatedral) Discover(ctx context.Context, emit func(pharma.DiscoveredURL) error) error {
	harvester := newLinkHarvester("a[href*='/producto/']", catedralBaseURL, catedralSiteCodeRe, emit)

	listing := catedralBaseURL + "/categoria/1/medicamentos?marcas=&categorias=&categorias_top=1"
	err := a.browser.collectScroll(ctx, listing, "a[href*='/producto/']", catedralMaxScrolls, harvester.harvestHTML)
	if err != nil {
		return err
	}
	a.logger.Info("discovery finished",
		zap.String("source", string(a.Source())),
		zap.Int("urls", harvester.count()),
	)
	return nil
}

func (a *farmaciaCatedral) FetchDetail(ctx context.Context, url string) (*pharma.Product, []byte, error) {
	doc, body, err := a.fetcher.fetchDocument(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	product, err := parseCatedralProduct(doc, url)
	if err != nil {
		return nil, nil, err
	}
	return product, body, nil
}

func parseCatedralProduct(doc *goquery.Document, url string) (*pharma.Product, error) {
	name := strip(doc.Find("h1.title-ficha").First().Text())
	if name == "" {
		return nil, &pharma.ExtractionError{URL: url, Reason: "product name missing"}
	}

	p := &pharma.Product{
		Source:    pharma.SourceFarmaciaCatedral,
		Name:      name,
		SourceURL: url,
		Brand:     strip(doc.Find("a.title-marca").First().Text()),
	}

	// "CÓD.: 12345" and "CÓD. BARRAS: 7891234567890"
	if m := catedralCodeRe.FindStringSubmatch(strip(doc.Find(".codigo-ficha").First().Text())); m != nil {
		p.SiteCode = strings.TrimSpace(m[1])
	}
	if m := catedralBarcodeRe.FindStringSubmatch(strip(doc.Find(".barra-ficha").First().Text())); m != nil {
		p.Barcode = strings.TrimSpace(m[1])
	}
	if p.SiteCode == "" {
		if m := catedralSiteCodeRe.FindStringSubmatch(url); m != nil {
			p.SiteCode = m[1]
		}
	}
	if p.SiteCode == "" {
		return nil, &pharma.ExtractionError{URL: url, Reason: "site code missing"}
	}

	doc.Find("ol.breadcrumb a.breadcrumb-item").Each(func(_ int, sel *goquery.Selection) {
		if text := strip(sel.Text()); text != "" {
			p.CategoryPath = append(p.CategoryPath, text)
		}
	})
	if len(p.CategoryPath) > 0 {
		p.MainCategory = p.CategoryPath[0]
	}

	p.Description = strip(doc.Find("#home-tab-pane").First().Text())

	// "<p class="precio-web">Gs. 74.950 <span>Gs. 149.900</span></p>":
	// current price first, struck-through original second.
	var current, original, percent *float64
	prices := parseGuaraniAll(doc.Find(".precio-web").First().Text())
	if len(prices) >= 1 {
		current = floatPtr(prices[0])
	}
	if len(prices) >= 2 {
		original = floatPtr(prices[1])
	}
	if v, ok := parsePercent(doc.Find(".tag-descuentos").First().Text()); ok {
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

	parseCatedralBankDiscount(doc, p)

	if alert := strings.ToLower(strip(doc.Find(".alert.alert-warning").First().Text())); strings.Contains(alert, "receta") {
		p.RequiresPrescription = true
	}

	if src, ok := doc.Find("img[alt='Imagen de Producto']").First().Attr("src"); ok {
		p.ImageURL = src
	}
	return p, nil
}

// Bank promos show a partner logo and a bulleted promo price:
// <h3 class="title-itau"><img alt="Logo de Cooperativa Universitaria"></h3>
// <ul class="list-itau"><li>30% en Web/Sucursal.</li><li>Gs. 31.500</li></ul>
func parseCatedralBankDiscount(doc *goquery.Document, p *pharma.Product) {
	if alt, ok := doc.Find(".title-itau img").First().Attr("alt"); ok {
		if m := catedralBankRe.FindStringSubmatch(alt); m != nil {
			p.BankDiscountBank = strings.TrimSpace(m[1])
		}
	}
	doc.Find(".list-itau li").Each(func(_ int, sel *goquery.Selection) {
		text := strip(sel.Text())
		if strings.Contains(text, "Gs") {
			if v, ok := parseGuarani(text); ok {
				p.BankDiscountPrice = floatPtr(v)
			}
		}
	})
}
