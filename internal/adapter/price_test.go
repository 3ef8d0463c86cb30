package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGuarani(t *testing.T) {
	cases := []struct {
		text string
		want float64
		ok   bool
	}{
		{"Gs. 46.166", 46166, true},
		{"Gs. 8.640", 8640, true},
		{"₲. 59.400 *", 59400, true},
		{"230.000", 230000, true},
		{"Gs. 1.234.500", 1234500, true},
		{"sin precio", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseGuarani(tc.text)
		require.Equal(t, tc.ok, ok, "text %q", tc.text)
		require.Equal(t, tc.want, got, "text %q", tc.text)
	}
}

func TestParseGuaraniAll(t *testing.T) {
	// Catedral renders both prices in one node:
	// <p class="precio-web">Gs. 74.950 <span>Gs. 149.900</span></p>
	got := parseGuaraniAll("Gs. 74.950 Gs. 149.900")
	require.Equal(t, []float64{74950, 149900}, got)

	require.Empty(t, parseGuaraniAll("agotado"))
}

func TestParsePercent(t *testing.T) {
	cases := []struct {
		text string
		want float64
		ok   bool
	}{
		{"-18% de descuento", 18, true},
		{"30% en Web/Sucursal.", 30, true},
		{"-50%", 50, true},
		{"descuento", 0, false},
	}
	for _, tc := range cases {
		got, ok := parsePercent(tc.text)
		require.Equal(t, tc.ok, ok, "text %q", tc.text)
		require.Equal(t, tc.want, got, "text %q", tc.text)
	}
}

func TestNormalizePricing(t *testing.T) {
	t.Run("discounted", func(t *testing.T) {
		cur, orig, pct, amount := normalizePricing(floatPtr(46166), floatPtr(56300), nil)
		require.Equal(t, 46166.0, cur)
		require.Equal(t, 56300.0, *orig)
		require.Equal(t, 10134.0, *amount)
		require.InDelta(t, 18.0, *pct, 0.01)
	})

	t.Run("explicit percent wins", func(t *testing.T) {
		_, _, pct, _ := normalizePricing(floatPtr(74950), floatPtr(149900), floatPtr(50))
		require.Equal(t, 50.0, *pct)
	})

	t.Run("regular price only", func(t *testing.T) {
		cur, orig, pct, amount := normalizePricing(nil, floatPtr(56300), nil)
		require.Equal(t, 56300.0, cur)
		require.Nil(t, orig)
		require.Nil(t, pct)
		require.Nil(t, amount)
	})

	t.Run("no prices", func(t *testing.T) {
		cur, _, _, _ := normalizePricing(nil, nil, nil)
		require.Zero(t, cur)
	})
}
