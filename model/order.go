package models

import "time"

// Order statuses reported by the commerce API.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipping   = "shipping"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

type ShippingAddress struct {
	Street   string `json:"street"`
	Ward     string `json:"ward,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city"`
}

// OrderRequest is the payload sent to create an order.
type OrderRequest struct {
	Items         []OrderItem     `json:"items"`
	CustomerName  string          `json:"customerName"`
	Email         string          `json:"email,omitempty"`
	Phone         string          `json:"phone"`
	Address       ShippingAddress `json:"shippingAddress"`
	DeliveryDate  string          `json:"deliveryDate,omitempty"`
	Note          string          `json:"note,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
	Total         float64         `json:"totalAmount"`
}

type Order struct {
	ID            string          `json:"_id"`
	UserID        string          `json:"userId,omitempty"`
	Items         []OrderItem     `json:"items"`
	CustomerName  string          `json:"customerName"`
	Phone         string          `json:"phone"`
	Address       ShippingAddress `json:"shippingAddress"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        string          `json:"status"`
	Total         float64         `json:"totalAmount"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Cancellable reports whether the order can still be cancelled by the customer.
func (o Order) Cancellable() bool {
	return o.Status == OrderPending || o.Status == OrderProcessing
}

// OrderItemsFromCart maps cart lines to order lines. Variant lines of the same
// product stay separate; the variant is appended to the name.
func OrderItemsFromCart(s Snapshot) []OrderItem {
	out := make([]OrderItem, 0, len(s.Items))
	for _, it := range s.Items {
		name := it.Name
		if it.VariantKey != NoVariant && it.VariantKey != "" {
			name = name + " (" + it.VariantKey + ")"
		}
		out = append(out, OrderItem{
			ProductID: it.BaseID,
			Name:      name,
			Price:     it.UnitPrice,
			Quantity:  it.Quantity,
			Image:     it.Image,
		})
	}
	return out
}
