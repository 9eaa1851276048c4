package label

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"labelkit/backend/internal/barcode"
	"labelkit/backend/internal/domain"
)

// Source is the data a label is resolved against. It is closed to the two
// variants in this package.
type Source interface {
	// BarcodeText is the raw text to validate and encode for this source.
	BarcodeText() string
	resolve(field string, enc barcode.Encoded, format priceFormat) (string, bool)
}

type ProductSource struct {
	Product domain.Product
}

func FromProduct(p domain.Product) ProductSource {
	return ProductSource{Product: p}
}

// BarcodeText prefers the product's own barcode and falls back to its SKU.
func (s ProductSource) BarcodeText() string {
	if code := strings.TrimSpace(s.Product.Barcode); code != "" {
		return code
	}
	return s.Product.SKU
}

func (s ProductSource) resolve(field string, enc barcode.Encoded, format priceFormat) (string, bool) {
	p := s.Product
	switch field {
	case "name":
		return p.Name, true
	case "price":
		return format(p.PriceCents), true
	case "sku":
		return p.SKU, true
	case "stock":
		return strconv.Itoa(p.Stock), true
	case "category":
		return p.Category, true
	case "brand":
		return p.Brand, true
	case "barcode":
		return enc.DisplayText, true
	default:
		return "", false
	}
}

type CustomText struct {
	Text string
}

func (c CustomText) BarcodeText() string {
	return c.Text
}

func (c CustomText) resolve(field string, enc barcode.Encoded, _ priceFormat) (string, bool) {
	switch field {
	case "name":
		return c.Text, true
	case "barcode":
		return enc.DisplayText, true
	default:
		return "", false
	}
}

type priceFormat func(cents int64) string

func formatPrice(currency string) priceFormat {
	return func(cents int64) string {
		amount := decimal.New(cents, -2).StringFixed(2)
		if currency == "" {
			return amount
		}
		return currency + " " + amount
	}
}
