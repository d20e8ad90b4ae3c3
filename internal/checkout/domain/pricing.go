package domain

import (
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

// PricedItem is a cart line resolved against the catalog. UnitPrice is
// captured here and carried unchanged into the order item.
type PricedItem struct {
	ProductID string
	StoreID   string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (p PricedItem) LineTotal() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// PriceItems resolves every cart line against catalog. Any unknown product
// fails the whole call.
func PriceItems(items []CartItem, catalog map[string]Product) ([]PricedItem, error) {
	priced := make([]PricedItem, 0, len(items))
	for _, item := range items {
		product, ok := catalog[item.ProductID]
		if !ok {
			return nil, apperr.Newf(apperr.KindProductNotFound, "product %s not found", item.ProductID)
		}
		priced = append(priced, PricedItem{
			ProductID: product.ID,
			StoreID:   product.StoreID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
	}
	return priced, nil
}

func Subtotal(items []PricedItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}
