package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"commerce-engine/gateways"
	"commerce-engine/models"
	"commerce-engine/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// memStore is an in-memory repository.Store. AdjustStock carries the same
// non-negative guard as the SQL implementation so the concurrency tests
// exercise real contention, and Transaction snapshots state and restores it
// when fn fails, so rollback behaviour is observable.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	orders       map[uuid.UUID]*models.Order
	payments     map[uuid.UUID]*models.PaymentTransaction
	stocks       map[uuid.UUID]*models.InventoryStock
	reservations map[uuid.UUID]*models.StockReservation
	movements    []models.InventoryMovementLog
	alerts       map[uuid.UUID]*models.InventoryAlert
	logs         map[uuid.UUID]*models.PaymentCallbackLog
}

func newMemStore() *memStore {
	return &memStore{
		orders:       map[uuid.UUID]*models.Order{},
		payments:     map[uuid.UUID]*models.PaymentTransaction{},
		stocks:       map[uuid.UUID]*models.InventoryStock{},
		reservations: map[uuid.UUID]*models.StockReservation{},
		alerts:       map[uuid.UUID]*models.InventoryAlert{},
		logs:         map[uuid.UUID]*models.PaymentCallbackLog{},
	}
}

func (s *memStore) Orders() repository.OrderRepository            { return &memOrders{s} }
func (s *memStore) Payments() repository.PaymentRepository        { return &memPayments{s} }
func (s *memStore) Inventory() repository.InventoryRepository     { return &memInventory{s} }
func (s *memStore) CallbackLogs() repository.CallbackLogRepository { return &memLogs{s} }

func (s *memStore) Transaction(_ context.Context, fn func(repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	orders       map[uuid.UUID]*models.Order
	payments     map[uuid.UUID]*models.PaymentTransaction
	stocks       map[uuid.UUID]*models.InventoryStock
	reservations map[uuid.UUID]*models.StockReservation
	movements    []models.InventoryMovementLog
	alerts       map[uuid.UUID]*models.InventoryAlert
	logs         map[uuid.UUID]*models.PaymentCallbackLog
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := memSnapshot{
		orders:       map[uuid.UUID]*models.Order{},
		payments:     map[uuid.UUID]*models.PaymentTransaction{},
		stocks:       map[uuid.UUID]*models.InventoryStock{},
		reservations: map[uuid.UUID]*models.StockReservation{},
		movements:    append([]models.InventoryMovementLog(nil), s.movements...),
		alerts:       map[uuid.UUID]*models.InventoryAlert{},
		logs:         map[uuid.UUID]*models.PaymentCallbackLog{},
	}
	for k, v := range s.orders {
		o := *v
		o.OrderItems = append([]models.OrderItem(nil), v.OrderItems...)
		snap.orders[k] = &o
	}
	for k, v := range s.payments {
		p := *v
		snap.payments[k] = &p
	}
	for k, v := range s.stocks {
		st := *v
		snap.stocks[k] = &st
	}
	for k, v := range s.reservations {
		r := *v
		snap.reservations[k] = &r
	}
	for k, v := range s.alerts {
		a := *v
		snap.alerts[k] = &a
	}
	for k, v := range s.logs {
		l := *v
		snap.logs[k] = &l
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap.orders
	s.payments = snap.payments
	s.stocks = snap.stocks
	s.reservations = snap.reservations
	s.movements = snap.movements
	s.alerts = snap.alerts
	s.logs = snap.logs
}

type memOrders struct{ s *memStore }

func (r *memOrders) Create(_ context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = time.Now()
	o := *order
	o.OrderItems = append([]models.OrderItem(nil), order.OrderItems...)
	r.s.orders[order.ID] = &o
	return nil
}

func (r *memOrders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	cp.OrderItems = append([]models.OrderItem(nil), o.OrderItems...)
	return &cp, nil
}

func (r *memOrders) FindByOrderNumber(_ context.Context, orderNumber string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.OrderNumber == orderNumber {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memOrders) FindByUserID(_ context.Context, userID uuid.UUID, page, limit int) ([]models.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memOrders) FindAll(_ context.Context, page, limit int) ([]models.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, o := range r.s.orders {
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

func (r *memOrders) UpdateStatus(_ context.Context, id uuid.UUID, status models.OrderStatus, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.Status = status
	for k, v := range updates {
		t, ok := v.(time.Time)
		if !ok {
			continue
		}
		switch k {
		case "paid_at":
			o.PaidAt = &t
		case "canceled_at":
			o.CanceledAt = &t
		case "completed_at":
			o.CompletedAt = &t
		}
	}
	return nil
}

type memPayments struct{ s *memStore }

func (r *memPayments) Create(_ context.Context, tx *models.PaymentTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	// Same partial unique index as the schema: (gateway, provider_tx_id),
	// undispatched rows with an empty provider id exempt.
	if tx.ProviderTxID != "" {
		for _, other := range r.s.payments {
			if other.Gateway == tx.Gateway && other.ProviderTxID == tx.ProviderTxID {
				return fmt.Errorf("duplicate key value violates unique constraint %q", "ux_payment_provider_tx")
			}
		}
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt
	cp := *tx
	r.s.payments[tx.ID] = &cp
	return nil
}

func (r *memPayments) FindByID(_ context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *memPayments) FindByProviderTxID(_ context.Context, gateway models.PaymentGateway, providerTxID string) (*models.PaymentTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tx := range r.s.payments {
		if tx.Gateway == gateway && tx.ProviderTxID == providerTxID && providerTxID != "" {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memPayments) FindActiveByOrderID(_ context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tx := range r.s.payments {
		if tx.OrderID == orderID && !tx.Status.IsTerminal() {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memPayments) FindByOrderID(_ context.Context, orderID uuid.UUID) ([]models.PaymentTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.PaymentTransaction
	for _, tx := range r.s.payments {
		if tx.OrderID == orderID {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *memPayments) Update(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			tx.Status = v.(models.PaymentStatus)
		case "provider_tx_id":
			tx.ProviderTxID = v.(string)
		case "payment_url":
			u := v.(string)
			tx.PaymentURL = &u
		case "raw_response":
			raw := v.(string)
			tx.RawResponse = &raw
		case "succeeded_at":
			t := v.(time.Time)
			tx.SucceededAt = &t
		case "failed_at":
			t := v.(time.Time)
			tx.FailedAt = &t
		}
	}
	tx.UpdatedAt = time.Now()
	return nil
}

func (r *memPayments) FindStale(_ context.Context, olderThan time.Time, limit int) ([]models.PaymentTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.PaymentTransaction
	for _, tx := range r.s.payments {
		if !tx.Status.IsTerminal() && tx.UpdatedAt.Before(olderThan) {
			out = append(out, *tx)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memPayments) IncrementPollAttempts(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	tx.PollAttempts++
	return nil
}

type memInventory struct{ s *memStore }

func (r *memInventory) GetStock(_ context.Context, productID uuid.UUID) (*models.InventoryStock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stocks[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *memInventory) CreateStock(_ context.Context, stock *models.InventoryStock) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if stock.ID == uuid.Nil {
		stock.ID = uuid.New()
	}
	cp := *stock
	r.s.stocks[stock.ProductID] = &cp
	return nil
}

func (r *memInventory) UpdateStock(_ context.Context, productID uuid.UUID, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stocks[productID]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "available_stock":
			st.AvailableStock = v.(int)
		case "safety_stock":
			st.SafetyStock = v.(int)
		}
	}
	return nil
}

func (r *memInventory) AdjustStock(_ context.Context, productID uuid.UUID, availableDelta, lockedDelta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.stocks[productID]
	if !ok {
		return repository.ErrNotFound
	}
	if st.AvailableStock+availableDelta < 0 || st.LockedStock+lockedDelta < 0 {
		return repository.ErrInsufficientStock
	}
	st.AvailableStock += availableDelta
	st.LockedStock += lockedDelta
	return nil
}

func (r *memInventory) CreateReservation(_ context.Context, res *models.StockReservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	cp := *res
	r.s.reservations[res.ID] = &cp
	return nil
}

func (r *memInventory) FindReservations(_ context.Context, orderID uuid.UUID, status models.ReservationStatus) ([]models.StockReservation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.StockReservation
	for _, res := range r.s.reservations {
		if res.OrderID == orderID && res.Status == status {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (r *memInventory) SettleReservations(_ context.Context, orderID uuid.UUID, from, to models.ReservationStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, res := range r.s.reservations {
		if res.OrderID == orderID && res.Status == from {
			res.Status = to
			n++
		}
	}
	return n, nil
}

func (r *memInventory) CreateMovement(_ context.Context, movement *models.InventoryMovementLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if movement.ID == uuid.Nil {
		movement.ID = uuid.New()
	}
	r.s.movements = append(r.s.movements, *movement)
	return nil
}

func (r *memInventory) ListMovements(_ context.Context, productID *uuid.UUID, page, limit int) ([]models.InventoryMovementLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.InventoryMovementLog
	for _, m := range r.s.movements {
		if productID == nil || m.ProductID == *productID {
			out = append(out, m)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memInventory) CountMovementsByOrder(_ context.Context, orderID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.movements {
		if m.Source == models.SourceOrder && m.SourceRef == orderID.String() {
			n++
		}
	}
	return n, nil
}

func (r *memInventory) FindOpenAlert(_ context.Context, productID uuid.UUID) (*models.InventoryAlert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.alerts {
		if a.ProductID == productID && !a.Resolved {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memInventory) CreateAlert(_ context.Context, alert *models.InventoryAlert) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	cp := *alert
	r.s.alerts[alert.ID] = &cp
	return nil
}

func (r *memInventory) UpdateAlert(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.alerts[id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "resolved":
			a.Resolved = v.(bool)
		case "resolved_at":
			t := v.(time.Time)
			a.ResolvedAt = &t
		case "level":
			a.Level = v.(models.AlertLevel)
		}
	}
	return nil
}

func (r *memInventory) ListAlerts(_ context.Context, resolved *bool, page, limit int) ([]models.InventoryAlert, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.InventoryAlert
	for _, a := range r.s.alerts {
		if resolved == nil || a.Resolved == *resolved {
			out = append(out, *a)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memInventory) FindAlertByID(_ context.Context, id uuid.UUID) (*models.InventoryAlert, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.alerts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

type memLogs struct{ s *memStore }

func (r *memLogs) Create(_ context.Context, log *models.PaymentCallbackLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	cp := *log
	r.s.logs[log.ID] = &cp
	return nil
}

func (r *memLogs) RecordOutcome(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.logs[id]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "result":
			l.Result = v.(models.CallbackResult)
		case "error_message":
			l.ErrorMessage = v.(string)
		case "provider_tx_id":
			l.ProviderTxID = v.(string)
		case "parsed_status":
			l.ParsedStatus = v.(string)
		case "latency_ms":
			l.LatencyMS = v.(int64)
		}
	}
	return nil
}

func (r *memLogs) List(_ context.Context, gateway *models.PaymentGateway, page, limit int) ([]models.PaymentCallbackLog, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.PaymentCallbackLog
	for _, l := range r.s.logs {
		if gateway == nil || l.Gateway == *gateway {
			out = append(out, *l)
		}
	}
	return out, int64(len(out)), nil
}

// mockNotifier collects operator notifications.
type mockNotifier struct {
	mu            sync.Mutex
	notifications []models.OperatorNotification
}

func (m *mockNotifier) Notify(_ context.Context, n models.OperatorNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *mockNotifier) byType(t string) []models.OperatorNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OperatorNotification
	for _, n := range m.notifications {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// mockGateway is a scripted gateways.Adapter.
type mockGateway struct {
	name models.PaymentGateway

	createResult gateways.CreatePaymentResult
	createErr    error
	parseResult  *gateways.Notification
	parseErr     error
	queryResult  *gateways.Notification
	queryErr     error

	mu          sync.Mutex
	createCalls int
	queryCalls  int
}

func (m *mockGateway) Gateway() models.PaymentGateway { return m.name }

func (m *mockGateway) CreatePayment(_ context.Context, _ gateways.CreatePaymentRequest) (*gateways.CreatePaymentResult, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	cp := m.createResult
	return &cp, nil
}

func (m *mockGateway) ParseCallback(_ http.Header, _ []byte) (*gateways.Notification, error) {
	if m.parseErr != nil {
		return nil, m.parseErr
	}
	cp := *m.parseResult
	return &cp, nil
}

func (m *mockGateway) QueryStatus(_ context.Context, providerTxID string) (*gateways.Notification, error) {
	m.mu.Lock()
	m.queryCalls++
	m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	cp := *m.queryResult
	cp.ProviderTxID = providerTxID
	return &cp, nil
}

// fixture wires a full service stack over the in-memory store.
type fixture struct {
	store        *memStore
	notifier     *mockNotifier
	gateway      *mockGateway
	inventory    *InventoryService
	orders       *OrderService
	orchestrator *PaymentOrchestrator
}

func newFixture(gw models.PaymentGateway) *fixture {
	store := newMemStore()
	notifier := &mockNotifier{}
	adapter := &mockGateway{name: gw}
	locks := NewKeyedLock()
	logger := zap.NewNop()

	inventory := NewInventoryService(store, notifier, logger)
	orders := NewOrderService(store, inventory, locks, logger)
	orchestrator := NewPaymentOrchestrator(store, gateways.Registry{gw: adapter},
		inventory, locks, notifier, logger, time.Second)

	return &fixture{
		store:        store,
		notifier:     notifier,
		gateway:      adapter,
		inventory:    inventory,
		orders:       orders,
		orchestrator: orchestrator,
	}
}

// seedStock inserts a stock row and returns the product id.
func (f *fixture) seedStock(available, locked, safety int) uuid.UUID {
	productID := uuid.New()
	f.store.stocks[productID] = &models.InventoryStock{
		ID:             uuid.New(),
		ProductID:      productID,
		AvailableStock: available,
		LockedStock:    locked,
		SafetyStock:    safety,
	}
	return productID
}

// seedReservedOrder inserts an order awaiting payment whose stock is already
// locked, the state CreateOrder leaves behind.
func (f *fixture) seedReservedOrder(productID uuid.UUID, qty, unitPrice int) *models.Order {
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: newOrderNumber(),
		UserID:      uuid.New(),
		Amount:      qty * unitPrice,
		Currency:    "TWD",
		Status:      models.OrderPendingPayment,
		OrderItems: []models.OrderItem{{
			ID:        uuid.New(),
			ProductID: productID,
			Quantity:  qty,
			UnitPrice: unitPrice,
		}},
		CreatedAt: time.Now(),
	}
	f.store.orders[order.ID] = order
	res := &models.StockReservation{
		ID:        uuid.New(),
		OrderID:   order.ID,
		ProductID: productID,
		Quantity:  qty,
		Status:    models.ReservationActive,
	}
	f.store.reservations[res.ID] = res
	return order
}

// seedTransaction inserts a payment transaction in the given state.
func (f *fixture) seedTransaction(orderID uuid.UUID, status models.PaymentStatus, providerTxID string, amount int) *models.PaymentTransaction {
	tx := &models.PaymentTransaction{
		ID:           uuid.New(),
		OrderID:      orderID,
		Gateway:      f.gateway.name,
		ProviderTxID: providerTxID,
		Status:       status,
		Amount:       amount,
		Currency:     "TWD",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.store.payments[tx.ID] = tx
	return tx
}
