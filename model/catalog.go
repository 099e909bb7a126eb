package models

import "time"

type ProductSize struct {
	Key   string  `json:"size"`
	Price float64 `json:"price"`
}

type Product struct {
	ID          string        `json:"_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Price       float64       `json:"price"`
	Images      []string      `json:"images,omitempty"`
	Category    string        `json:"category,omitempty"`
	Sizes       []ProductSize `json:"sizes,omitempty"`
	Stock       int           `json:"stock"`
}

// PriceFor returns the unit price of the given variant, falling back to the
// base price for unknown or absent variants.
func (p Product) PriceFor(variant string) float64 {
	for _, s := range p.Sizes {
		if s.Key == variant {
			return s.Price
		}
	}
	return p.Price
}

// HasSize reports whether key is one of the product's sizes.
func (p Product) HasSize(key string) bool {
	for _, s := range p.Sizes {
		if s.Key == key {
			return true
		}
	}
	return false
}

// ItemInput describes variant of p for the cart, priced from the catalog.
func (p Product) ItemInput(variant string) ItemInput {
	in := ItemInput{
		BaseID:     p.ID,
		VariantKey: variant,
		UnitPrice:  p.PriceFor(variant),
		Name:       p.Name,
	}
	if len(p.Images) > 0 {
		in.Image = p.Images[0]
	}
	return in
}

type User struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role,omitempty"`
	IsActive bool   `json:"isActive"`
}

type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

type Feedback struct {
	ID        string    `json:"_id,omitempty"`
	OrderID   string    `json:"orderId"`
	ProductID string    `json:"productId,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}
