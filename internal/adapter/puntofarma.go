package adapter

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

const puntoFarmaBaseURL = "https://www.puntofarma.com.py"

// The listing only grows through a "Cargar más" button; roughly 520
// clicks exhaust the medicamentos category.
const puntoFarmaMaxClicks = 600

var puntoFarmaSiteCodeRe = regexp.MustCompile(`/producto/(\d+)/`)

var puntoFarmaCategories = []string{
	puntoFarmaBaseURL + "/categoria/1/medicamentos",
	puntoFarmaBaseURL + "/categoria/238/nutricion-y-deporte",
}

// puntoFarma scrapes puntofarma.com.py. The whole site is a JS app, so
// both discovery and detail pages go through headless Chrome.
type puntoFarma struct {
	cfg     Config
	browser *browser
	logger  *zap.Logger
}

func newPuntoFarma(cfg Config, browser *browser, logger *zap.Logger) *puntoFarma {
	return &puntoFarma{cfg: cfg, browser: browser, logger: logger}
}

func (a *puntoFarma) Source() pharma.Source { return pharma.SourcePuntoFarma }

func (a *puntoFarma) Discover(ctx context.Context, emit func(pharma.DiscoveredURL) error) error {
	harvester := newLinkHarvester("a[href*='/producto/']", puntoFarmaBaseURL, puntoFarmaSiteCodeRe, emit)
	clickScript := loadMoreScript("button.btn.btn-primary", "Cargar más")

	for _, category := range puntoFarmaCategories {
		a.logger.Info("collecting listing urls",
			zap.String("source", string(a.Source())),
			zap.String("category", category),
		)
		err := a.browser.collectLoadMore(ctx, category, "a[href*='/producto/']", clickScript, puntoFarmaMaxClicks, harvester.harvestHTML)
		if err != nil {
			return err
		}
	}
	a.logger.Info("discovery finished",
		zap.String("source", string(a.Source())),
		zap.Int("urls", harvester.count()),
	)
	return nil
}

func (a *puntoFarma) FetchDetail(ctx context.Context, url string) (*pharma.Product, []byte, error) {
	html, err := a.browser.renderPage(ctx, url, "h1")
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, &pharma.ExtractionError{URL: url, Reason: "parse html: " + err.Error()}
	}
	product, err := parsePuntoFarmaProduct(doc, url)
	if err != nil {
		return nil, nil, err
	}
	return product, []byte(html), nil
}

func parsePuntoFarmaProduct(doc *goquery.Document, url string) (*pharma.Product, error) {
	name := strip(doc.Find("h1").First().Text())
	if name == "" {
		return nil, &pharma.ExtractionError{URL: url, Reason: "product name missing"}
	}

	p := &pharma.Product{
		Source:    pharma.SourcePuntoFarma,
		Name:      name,
		SourceURL: url,
	}

	// "Código: 139212" plus the EAN in the same block.
	codigo := doc.Find(".codigo").First()
	p.SiteCode = strip(codigo.Find("span.fw-bold.user-select-all").First().Text())
	spans := codigo.Find("span.user-select-all")
	if spans.Length() > 1 {
		p.Barcode = strip(spans.Last().Text())
	}
	if p.SiteCode == "" {
		if m := puntoFarmaSiteCodeRe.FindStringSubmatch(url); m != nil {
			p.SiteCode = m[1]
		}
	}
	if p.SiteCode == "" {
		return nil, &pharma.ExtractionError{URL: url, Reason: "site code missing"}
	}

	doc.Find("a.breadcrumb-item").Each(func(_ int, sel *goquery.Selection) {
		if text := strip(sel.Text()); text != "" {
			p.CategoryPath = append(p.CategoryPath, text)
		}
	})
	if len(p.CategoryPath) > 0 {
		p.MainCategory = p.CategoryPath[0]
	}

	var current, original, percent *float64
	if v, ok := parseGuarani(doc.Find(".precio-con-descuento span.precio-lg").First().Text()); ok {
		current = floatPtr(v)
	}
	if v, ok := parseGuarani(doc.Find(".precio-regular del.precio-sin-descuento").First().Text()); ok {
		original = floatPtr(v)
	}
	if v, ok := parsePercent(doc.Find(".precio-regular div[style*='background-color']").First().Text()); ok {
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

	if src, ok := doc.Find("img[alt*='miniatura']").First().Attr("src"); ok {
		p.ImageURL = src
	}
	p.Brand = strip(doc.Find("div > a.category[href*='/marca/']").First().Text())
	p.Description = strip(doc.Find(".atributos_body__wyXR6.accordion-body").First().Text())

	parsePuntoFarmaBankDiscount(doc, p)
	return p, nil
}

var puntoFarmaBankRe = regexp.MustCompile(`(?i)Con\s+(.+?)(?:\s+\*|$)`)

// Bank promos render as "Con Itau QR Debito" headings next to the
// promotional price.
func parsePuntoFarmaBankDiscount(doc *goquery.Document, p *pharma.Product) {
	doc.Find("h6").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strip(sel.Text())
		if !strings.Contains(strings.ToLower(text), "con itau") {
			return true
		}
		if m := puntoFarmaBankRe.FindStringSubmatch(text); m != nil {
			p.BankDiscountBank = strings.TrimSpace(m[1])
		}
		container := sel.Closest("div.d-flex")
		if v, ok := parseGuarani(container.Find("span.fs-5").First().Text()); ok {
			p.BankDiscountPrice = floatPtr(v)
		}
		return false
	})
}
