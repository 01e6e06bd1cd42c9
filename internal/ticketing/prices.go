package ticketing

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/drewfead/cinecal/internal"
)

// PriceExtractor turns a ticketing page into its price grid.
type PriceExtractor interface {
	ExtractPrices(page string) []internal.Price
}

// pricePattern matches `<p>label <a title="description">i</a> <span ...>12.50 &euro;`,
// the tooltip link being optional.
var pricePattern = regexp.MustCompile(`<p>([^<]*)(?:<a[^<]*title="([^<]*)"[^<]*>i</a>)?<span[^<]*[^>]*>(\d*.\d*) &euro;`)

type RegexpPriceExtractor struct {
	re *regexp.Regexp
}

func NewRegexpPriceExtractor() *RegexpPriceExtractor {
	return &RegexpPriceExtractor{re: pricePattern}
}

func (x *RegexpPriceExtractor) ExtractPrices(page string) []internal.Price {
	var prices []internal.Price
	for _, m := range x.re.FindAllStringSubmatch(page, -1) {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(m[3]), ",", "."), 64)
		if err != nil {
			continue
		}
		price := internal.Price{
			Label: decodeEntities(m[1]),
			Price: amount,
		}
		if desc := decodeEntities(m[2]); desc != "" {
			price.Description = &desc
		}
		prices = append(prices, price)
	}
	return prices
}

// decodeEntities resolves named and numeric entities. Numeric references in the
// 128-159 range follow windows-1252, so &#128; becomes €.
func decodeEntities(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}
