package ticketing

import (
	"os"
	"testing"

	"github.com/drewfead/cinecal/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readGoldenPage(t *testing.T) string {
	t.Helper()
	body, err := os.ReadFile("../allocine/testdata/golden/ticketing/9001.html")
	require.NoError(t, err)
	return string(body)
}

func TestUnit_RegexpPriceExtractor_Golden(t *testing.T) {
	prices := NewRegexpPriceExtractor().ExtractPrices(readGoldenPage(t))
	require.Len(t, prices, 3)

	assert.Equal(t, "Plein tarif", prices[0].Label)
	assert.Nil(t, prices[0].Description)
	assert.InDelta(t, 9.5, prices[0].Price, 0.001)

	assert.Equal(t, "Tarif réduit", prices[1].Label)
	require.NotNil(t, prices[1].Description)
	assert.Equal(t, "Étudiants, demandeurs d'emploi", *prices[1].Description)
	assert.InDelta(t, 7.5, prices[1].Price, 0.001)

	assert.Equal(t, "Carte 5 places (€)", prices[2].Label)
	assert.InDelta(t, 30.0, prices[2].Price, 0.001)
}

func TestUnit_RegexpPriceExtractor_Variants(t *testing.T) {
	x := NewRegexpPriceExtractor()

	assert.Empty(t, x.ExtractPrices("<html><body>Complet</body></html>"))

	prices := x.ExtractPrices(`<p>Moins de 14 ans<span>4,50 &euro;</span></p><p>Abonn&eacute;s<span class="p">0 &euro;</span></p>`)
	assert.Equal(t, []internal.Price{
		{Label: "Moins de 14 ans", Price: 4.5},
		{Label: "Abonnés", Price: 0},
	}, prices)
}

func TestUnit_TagMatcher(t *testing.T) {
	m := NewTagMatcher(2)
	patterns := []internal.TagPattern{
		{TagID: 1, Name: "Grand Large", Pattern: "grand large"},
		{TagID: 2, Name: "César", Pattern: "c&eacute;sar"},
		{TagID: 3, Name: "Broken", Pattern: "(unclosed"},
		{TagID: 4, Name: "Avant-première", Pattern: "avant-premi"},
	}

	page := readGoldenPage(t)
	assert.Equal(t, []uint{1, 4}, m.Match(patterns, page))
	assert.Equal(t, []uint{2}, m.Match(patterns, "Nommé aux C&EACUTE;SAR"), "matching ignores case")
	assert.Empty(t, m.Match(nil, page))
}
