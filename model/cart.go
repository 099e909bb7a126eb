package models

import "math"

// NoVariant is the variant key used when no option/size was selected.
const NoVariant = "default"

// Identity decides whether two additions merge into one cart line.
type Identity struct {
	BaseID     string
	VariantKey string
}

// LineItem is one purchasable entry in the cart.
type LineItem struct {
	BaseID     string  `json:"base_id"`
	VariantKey string  `json:"variant_key"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
	Name       string  `json:"name"`
	Image      string  `json:"image,omitempty"`
}

func (li LineItem) Identity() Identity {
	return Identity{BaseID: li.BaseID, VariantKey: li.VariantKey}
}

// Subtotal is UnitPrice * Quantity.
func (li LineItem) Subtotal() float64 {
	return li.UnitPrice * float64(li.Quantity)
}

// ItemInput describes a product being added to the cart.
//
// Optional fields and their defaults:
//   - VariantKey: NoVariant
//   - UnitPrice:  0 (negative and NaN values are coerced to 0)
//   - Name, Image: ""
type ItemInput struct {
	BaseID     string  `json:"base_id"`
	VariantKey string  `json:"variant_key,omitempty"`
	UnitPrice  float64 `json:"unit_price,omitempty"`
	Name       string  `json:"name,omitempty"`
	Image      string  `json:"image,omitempty"`
}

// LineItem returns the normalized line for in with the given quantity.
// A quantity below 1 is treated as 1.
func (in ItemInput) LineItem(qty int) LineItem {
	if qty < 1 {
		qty = 1
	}
	variant := in.VariantKey
	if variant == "" {
		variant = NoVariant
	}
	price := in.UnitPrice
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		price = 0
	}
	return LineItem{
		BaseID:     in.BaseID,
		VariantKey: variant,
		UnitPrice:  price,
		Quantity:   qty,
		Name:       in.Name,
		Image:      in.Image,
	}
}

// Snapshot is a read-only view of a cart. Total and Count are derived from Items.
type Snapshot struct {
	Items []LineItem `json:"items"`
	Total float64    `json:"total"`
	Count int        `json:"count"`
}

// NewSnapshot copies items and derives the totals.
func NewSnapshot(items []LineItem) Snapshot {
	out := Snapshot{Items: make([]LineItem, len(items))}
	copy(out.Items, items)
	for _, it := range out.Items {
		out.Total += it.Subtotal()
		out.Count += it.Quantity
	}
	return out
}

func (s Snapshot) Empty() bool { return len(s.Items) == 0 }
