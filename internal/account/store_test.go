package account

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"storefront/internal/model"
	"storefront/internal/woocommerce"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryCustomers is an in-memory customer record with call counters.
type memoryCustomers struct {
	mu      sync.Mutex
	meta    map[string]json.RawMessage
	gets    int
	updates int

	getErr    error
	updateErr error
	// hold, when set, blocks GetCustomer until it is closed.
	hold    chan struct{}
	entered chan struct{}
}

func newMemoryCustomers() *memoryCustomers {
	return &memoryCustomers{meta: make(map[string]json.RawMessage)}
}

func (m *memoryCustomers) setMeta(key, raw string) {
	m.mu.Lock()
	m.meta[key] = json.RawMessage(raw)
	m.mu.Unlock()
}

func (m *memoryCustomers) GetCustomer(ctx context.Context, id int) (*woocommerce.Customer, error) {
	m.mu.Lock()
	hold, entered := m.hold, m.entered
	m.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if hold != nil {
		<-hold
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	c := &woocommerce.Customer{ID: id}
	for k, v := range m.meta {
		c.MetaData = append(c.MetaData, woocommerce.MetaData{Key: k, Value: append(json.RawMessage(nil), v...)})
	}
	return c, nil
}

func (m *memoryCustomers) UpdateCustomerMeta(ctx context.Context, id int, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return m.updateErr
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.meta[key] = b
	return nil
}

func (m *memoryCustomers) counts() (gets, updates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.updates
}

func countCart(state model.CommerceState, id string) int {
	n := 0
	for _, e := range state.Cart {
		if e.ID == id {
			n++
		}
	}
	return n
}
