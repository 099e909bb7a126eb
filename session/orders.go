package session

import (
	"sync"

	models "storefront/model"
)

// OrderList caches the orders of the signed-in user, newest first.
type OrderList struct {
	mu     sync.RWMutex
	orders []models.Order
}

func (o *OrderList) Replace(orders []models.Order) {
	o.mu.Lock()
	o.orders = append([]models.Order(nil), orders...)
	o.mu.Unlock()
}

// Add puts a newly placed order at the front.
func (o *OrderList) Add(order models.Order) {
	o.mu.Lock()
	o.orders = append([]models.Order{order}, o.orders...)
	o.mu.Unlock()
}

// Update replaces the cached order with the same ID, if present.
func (o *OrderList) Update(order models.Order) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.orders {
		if o.orders[i].ID == order.ID {
			o.orders[i] = order
			return
		}
	}
}

func (o *OrderList) Get(id string) (models.Order, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, ord := range o.orders {
		if ord.ID == id {
			return ord, true
		}
	}
	return models.Order{}, false
}

func (o *OrderList) All() []models.Order {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]models.Order(nil), o.orders...)
}

func (o *OrderList) Reset() {
	o.mu.Lock()
	o.orders = nil
	o.mu.Unlock()
}

func (o *OrderList) OnLogout(string) { o.Reset() }
