package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// DiscountedPrice computes price × (1 − discount/100) in decimal arithmetic so
// that round discounts produce round prices. discount <= 0 returns price as is.
func DiscountedPrice(price, discount float64) float64 {
	if discount <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(discount).Div(hundred))
	out, _ := p.Mul(factor).Float64()
	return out
}
