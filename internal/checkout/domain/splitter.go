package domain

import "github.com/shopspring/decimal"

type SellerGroup struct {
	StoreID string
	Items   []PricedItem
}

func (g SellerGroup) Subtotal() decimal.Decimal {
	return Subtotal(g.Items)
}

// SplitBySeller groups items by store. Groups appear in the order their store
// is first seen in items.
func SplitBySeller(items []PricedItem) []SellerGroup {
	index := make(map[string]int)
	var groups []SellerGroup
	for _, item := range items {
		i, ok := index[item.StoreID]
		if !ok {
			i = len(groups)
			index[item.StoreID] = i
			groups = append(groups, SellerGroup{StoreID: item.StoreID})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}
