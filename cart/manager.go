// Package cart holds the cart state for one browser session and mirrors it
// into a durable store after every mutation.
package cart

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"storefront/metrics"
	models "storefront/model"
	"storefront/store"
)

// Manager owns the line items of a single cart.
//
// Lines are unique by (BaseID, VariantKey). Removal and quantity updates
// match on BaseID only and therefore affect every variant of a product.
type Manager struct {
	mu    sync.Mutex
	store store.Store
	key   string
	log   logrus.FieldLogger
	items []models.LineItem
}

// NewManager returns an empty manager persisting under key. Call Initialize
// to rehydrate a previously stored cart.
func NewManager(st store.Store, key string, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		store: st,
		key:   key,
		log:   log.WithField("cart_key", key),
	}
}

// Initialize adopts the stored snapshot, if any. A missing, unreadable or
// corrupt snapshot leaves the cart empty.
func (m *Manager) Initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = nil
	raw, err := m.store.Get(m.key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.WithError(err).Warn("could not read cart snapshot, starting empty")
		}
		return
	}

	var stored []models.LineItem
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		m.log.WithError(err).Warn("discarding corrupt cart snapshot")
		return
	}
	m.items = normalize(stored)
	m.log.WithField("lines", len(m.items)).Debug("cart restored")
}

// normalize cleans lines read back from the store: one line per identity,
// quantity of at least 1, a non-empty base id.
// Duplicate identities are merged keeping the first line's price and metadata.
func normalize(in []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, 0, len(in))
	index := make(map[models.Identity]int, len(in))
	for _, it := range in {
		if it.Quantity < 1 || it.BaseID == "" {
			continue
		}
		if it.VariantKey == "" {
			it.VariantKey = models.NoVariant
		}
		if it.UnitPrice < 0 {
			it.UnitPrice = 0
		}
		if i, ok := index[it.Identity()]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.Identity()] = len(out)
		out = append(out, it)
	}
	return out
}

// AddItem merges qty units of in into the cart. An existing line with the same
// identity only has its quantity increased; price and metadata stay as first added.
// qty below 1 is treated as 1.
func (m *Manager) AddItem(in models.ItemInput, qty int) {
	line := in.LineItem(qty)

	m.mu.Lock()
	defer m.mu.Unlock()

	merged := false
	for i := range m.items {
		if m.items[i].Identity() == line.Identity() {
			m.items[i].Quantity += line.Quantity
			merged = true
			break
		}
	}
	if !merged {
		m.items = append(m.items, line)
	}
	metrics.RecordCartMutation("add")
	m.persist()
}

// RemoveItem drops every line whose BaseID matches, regardless of variant.
func (m *Manager) RemoveItem(baseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(baseID)
	metrics.RecordCartMutation("remove")
	m.persist()
}

func (m *Manager) removeLocked(baseID string) {
	kept := m.items[:0]
	for _, it := range m.items {
		if it.BaseID != baseID {
			kept = append(kept, it)
		}
	}
	m.keep(kept)
}

// keep replaces the items with kept, a prefix-filtered view of m.items.
func (m *Manager) keep(kept []models.LineItem) {
	// zero the tail so removed lines are not retained by the backing array
	for i := len(kept); i < len(m.items); i++ {
		m.items[i] = models.LineItem{}
	}
	m.items = kept
}

// RemoveLines takes the quantities of lines out of the cart, matching on the
// full identity. A line that drops below 1 is removed. Lines added or topped up
// after lines was read stay in the cart.
func (m *Manager) RemoveLines(lines []models.LineItem) {
	if len(lines) == 0 {
		return
	}
	taken := make(map[models.Identity]int, len(lines))
	for _, l := range lines {
		taken[l.Identity()] += l.Quantity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.items[:0]
	for _, it := range m.items {
		if q, ok := taken[it.Identity()]; ok {
			it.Quantity -= q
			if it.Quantity < 1 {
				continue
			}
		}
		kept = append(kept, it)
	}
	m.keep(kept)
	metrics.RecordCartMutation("checkout")
	m.persist()
}

// UpdateQuantity sets the quantity of every line with BaseID to qty.
// qty below 1 removes those lines.
func (m *Manager) UpdateQuantity(baseID string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qty < 1 {
		m.removeLocked(baseID)
	} else {
		for i := range m.items {
			if m.items[i].BaseID == baseID {
				m.items[i].Quantity = qty
			}
		}
	}
	metrics.RecordCartMutation("update")
	m.persist()
}

// Clear empties the cart, typically after an order was placed.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = nil
	metrics.RecordCartMutation("clear")
	m.persist()
}

// Snapshot returns a copy of the lines with freshly computed totals.
func (m *Manager) Snapshot() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.NewSnapshot(m.items)
}

// persist writes the whole cart. Failures are logged and otherwise ignored;
// the in-memory cart stays authoritative and the next mutation writes again.
func (m *Manager) persist() {
	items := m.items
	if items == nil {
		items = []models.LineItem{}
	}
	raw, err := json.Marshal(items)
	if err == nil {
		err = m.store.Set(m.key, string(raw))
	}
	if err != nil {
		metrics.RecordCartPersistFailure()
		m.log.WithError(err).Warn("failed to persist cart")
	}
}
