package adapter

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

const puntoFarmaDetailHTML = `<html><body>
<nav>
  <a class="breadcrumb-item" href="/categoria/1/medicamentos">Medicamentos</a>
  <a class="breadcrumb-item" href="/categoria/12/analgesicos">Analgésicos</a>
</nav>
<h1>Paracetamol Forte 500 mg</h1>
<div class="codigo">
  Código: <span class="fw-bold user-select-all">139212</span> |
  <span class="user-select-all">7891234567890</span>
</div>
<div><a class="category" href="/marca/genfar">GENFAR</a></div>
<div class="precio-con-descuento"><span class="precio-lg">Gs. 46.166</span></div>
<div class="precio-regular">
  <del class="precio-sin-descuento">Gs. 56.300</del>
  <div style="background-color:#e91e63">-18% de descuento</div>
</div>
<div class="d-flex">
  <h6>Con Itau QR Debito *</h6>
  <span class="fs-5">Gs. 8.640</span>
</div>
<div class="atributos_body__wyXR6 accordion-body">Caja x 10 comprimidos recubiertos.</div>
<img alt="miniatura de Paracetamol" src="https://cdn.puntofarma.com.py/139212.jpg">
</body></html>`

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParsePuntoFarmaProduct(t *testing.T) {
	url := "https://www.puntofarma.com.py/producto/139212/paracetamol-forte"
	p, err := parsePuntoFarmaProduct(parseDoc(t, puntoFarmaDetailHTML), url)
	require.NoError(t, err)

	require.Equal(t, pharma.SourcePuntoFarma, p.Source)
	require.Equal(t, "Paracetamol Forte 500 mg", p.Name)
	require.Equal(t, "139212", p.SiteCode)
	require.Equal(t, "7891234567890", p.Barcode)
	require.Equal(t, "GENFAR", p.Brand)
	require.Equal(t, []string{"Medicamentos", "Analgésicos"}, p.CategoryPath)
	require.Equal(t, "Medicamentos", p.MainCategory)

	require.Equal(t, 46166.0, p.CurrentPrice)
	require.Equal(t, 56300.0, *p.OriginalPrice)
	require.Equal(t, 18.0, *p.DiscountPercentage)
	require.Equal(t, 10134.0, *p.DiscountAmount)

	require.Equal(t, "Itau QR Debito", p.BankDiscountBank)
	require.Equal(t, 8640.0, *p.BankDiscountPrice)

	require.Equal(t, "Caja x 10 comprimidos recubiertos.", p.Description)
	require.Equal(t, "https://cdn.puntofarma.com.py/139212.jpg", p.ImageURL)
	require.Equal(t, url, p.SourceURL)
}

func TestParsePuntoFarmaRegularPriceOnly(t *testing.T) {
	html := `<html><body>
<h1>Suero Fisiológico</h1>
<div class="codigo"><span class="fw-bold user-select-all">555</span></div>
<div class="precio-regular"><del class="precio-sin-descuento">Gs. 12.000</del></div>
</body></html>`
	p, err := parsePuntoFarmaProduct(parseDoc(t, html), "https://www.puntofarma.com.py/producto/555/suero")
	require.NoError(t, err)
	// A page showing only the struck-through price has no discount.
	require.Equal(t, 12000.0, p.CurrentPrice)
	require.Nil(t, p.OriginalPrice)
	require.Nil(t, p.DiscountPercentage)
}

func TestParsePuntoFarmaSiteCodeFromURL(t *testing.T) {
	html := `<html><body>
<h1>Producto</h1>
<div class="precio-con-descuento"><span class="precio-lg">Gs. 5.000</span></div>
</body></html>`
	p, err := parsePuntoFarmaProduct(parseDoc(t, html), "https://www.puntofarma.com.py/producto/98765/algo")
	require.NoError(t, err)
	require.Equal(t, "98765", p.SiteCode)
}

func TestParsePuntoFarmaMissingName(t *testing.T) {
	_, err := parsePuntoFarmaProduct(parseDoc(t, "<html><body></body></html>"), "https://www.puntofarma.com.py/producto/1/x")
	require.Error(t, err)
	require.True(t, pharma.IsExtraction(err))
}

func TestParsePuntoFarmaMissingPrice(t *testing.T) {
	html := `<html><body><h1>Producto</h1>
<div class="codigo"><span class="fw-bold user-select-all">1</span></div></body></html>`
	_, err := parsePuntoFarmaProduct(parseDoc(t, html), "https://www.puntofarma.com.py/producto/1/x")
	require.Error(t, err)
	require.True(t, pharma.IsExtraction(err))
}
