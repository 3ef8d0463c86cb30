package adapter

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

const farmaCenterBaseURL = "https://www.farmacenter.com.py"

var farmaCenterSiteCodeRe = regexp.MustCompile(`/catalogo/(\d+)-`)

// The full listing loads ~4200 products under lazy scroll.
const farmaCenterMaxScrolls = 1000

// farmaCenter scrapes farmacenter.com.py. The listing is an
// infinite-scroll page rendered in the browser; product pages are
// served complete, with the structured data in a hidden JSON input and
// schema.org microdata.
type farmaCenter struct {
	cfg     Config
	fetcher *fetcher
	browser *browser
	logger  *zap.Logger
}

func newFarmaCenter(cfg Config, fetcher *fetcher, browser *browser, logger *zap.Logger) *farmaCenter {
	return &farmaCenter{cfg: cfg, fetcher: fetcher, browser: browser, logger: logger}
}

func (a *farmaCenter) Source() pharma.Source { return pharma.SourceFarmaCenter }

func (a *farmaCenter) Discover(ctx context.Context, emit func(pharma.DiscoveredURL) error) error {
	harvester := newLinkHarvester("a[href*='/catalogo/']", farmaCenterBaseURL, farmaCenterSiteCodeRe, emit)

	listing := farmaCenterBaseURL + "/medicamentos"
	err := a.browser.collectScroll(ctx, listing, "a[href*='/catalogo/']", farmaCenterMaxScrolls, harvester.harvestHTML)
	if err != nil {
		return err
	}
	a.logger.Info("discovery finished",
		zap.String("source", string(a.Source())),
		zap.Int("urls", harvester.count()),
	)
	return nil
}

func (a *farmaCenter) FetchDetail(ctx context.Context, url string) (*pharma.Product, []byte, error) {
	doc, body, err := a.fetcher.fetchDocument(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	product, err := parseFarmaCenterProduct(doc, url)
	if err != nil {
		return nil, nil, err
	}
	return product, body, nil
}

type farmaCenterJSON struct {
	Producto struct {
		Nombre    string `json:"nombre"`
		Marca     string `json:"marca"`
		Categoria string `json:"categoria"`
	} `json:"producto"`
}

func parseFarmaCenterProduct(doc *goquery.Document, url string) (*pharma.Product, error) {
	var embedded farmaCenterJSON
	if raw, ok := doc.Find("input.json[type='hidden']").First().Attr("value"); ok && raw != "" {
		// Best source when present; the visible DOM is the fallback.
		_ = json.Unmarshal([]byte(raw), &embedded)
	}
	microdata := doc.Find("div[itemtype='http://schema.org/Product']").First()

	name := embedded.Producto.Nombre
	if name == "" {
		name = strip(microdata.Find("[itemprop='name']").First().Text())
	}
	if name == "" {
		name = strip(doc.Find("h1.tit").First().Text())
	}
	if name == "" {
		return nil, &pharma.ExtractionError{URL: url, Reason: "product name missing"}
	}

	p := &pharma.Product{
		Source:    pharma.SourceFarmaCenter,
		Name:      name,
		SourceURL: url,
	}

	// ".cod" renders "10030348-7703281002468": site code, then EAN.
	p.SiteCode = strip(microdata.Find("[itemprop='sku']").First().Text())
	if cod := strip(doc.Find(".cod").First().Text()); cod != "" {
		parts := strings.SplitN(cod, "-", 2)
		p.SiteCode = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			p.Barcode = strings.TrimSpace(parts[1])
		}
	}
	if p.SiteCode == "" {
		if m := farmaCenterSiteCodeRe.FindStringSubmatch(url); m != nil {
			p.SiteCode = m[1]
		}
	}
	if p.SiteCode == "" {
		return nil, &pharma.ExtractionError{URL: url, Reason: "site code missing"}
	}

	p.Brand = embedded.Producto.Marca
	if p.Brand == "" {
		p.Brand = strip(microdata.Find("[itemprop='brand']").First().Text())
	}
	if p.Brand == "" {
		if dataTit, ok := doc.Find("#central[data-tit]").Attr("data-tit"); ok {
			if m := farmaCenterBrandRe.FindStringSubmatch(dataTit); m != nil {
				p.Brand = strings.TrimSpace(m[1])
			}
		}
	}

	if cat := embedded.Producto.Categoria; cat != "" {
		// "Medicamentos > Vitaminas y minerales > Vitaminas D"
		for _, part := range strings.Split(cat, ">") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				p.CategoryPath = append(p.CategoryPath, trimmed)
			}
		}
	}
	if len(p.CategoryPath) == 0 {
		if dataTit, ok := doc.Find("#central[data-tit]").Attr("data-tit"); ok {
			if fields := strings.Fields(dataTit); len(fields) > 0 {
				p.CategoryPath = []string{fields[0]}
			}
		}
	}
	if len(p.CategoryPath) > 0 {
		p.MainCategory = p.CategoryPath[0]
	}

	p.Description = strip(microdata.Find("[itemprop='description']").First().Text())
	if p.Description == "" {
		p.Description = strip(doc.Find(".desc p").First().Text())
	}

	var current, original *float64
	if v, ok := parseGuarani(doc.Find(".precios strong.precio.venta .monto").First().Text()); ok {
		current = floatPtr(v)
	}
	if v, ok := parseGuarani(doc.Find(".precios del.precio.lista .monto").First().Text()); ok {
		original = floatPtr(v)
	}
	cur, orig, pct, amount := normalizePricing(current, original, nil)
	if cur == 0 {
		return nil, &pharma.ExtractionError{URL: url, Reason: "price missing"}
	}
	p.CurrentPrice = cur
	p.OriginalPrice = orig
	p.DiscountPercentage = pct
	p.DiscountAmount = amount

	img := doc.Find("img[alt]").First()
	src, ok := img.Attr("data-src-g")
	if !ok || src == "" {
		src, _ = img.Attr("src")
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	if strings.HasPrefix(src, "http") {
		p.ImageURL = src
	}
	return p, nil
}

var farmaCenterBrandRe = regexp.MustCompile(`(?i)(?:Medicamentos|Suplementos)\s+(.+)`)
