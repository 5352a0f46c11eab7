package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/papertrader/internal/domain"
)

// MemoryStore is a thread-safe in-memory Store. Units of work stage their
// writes and apply them under the store lock only when fn succeeds.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]*domain.Account
	holdings     map[string]map[string]*domain.Holding // user_id → ticker → holding
	orders       map[string]*domain.Order
	userOrders   map[string][]*domain.Order // user_id → orders (creation order)
	pending      *pendingIndex
	transactions map[string][]*domain.Transaction // user_id → ledger (chronological)
	snapshots    map[string][]*domain.PortfolioSnapshot
	prices       map[string]map[time.Time]*domain.PricePoint // ticker → date → point
	locks        *accountLocks
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[string]*domain.Account),
		holdings:     make(map[string]map[string]*domain.Holding),
		orders:       make(map[string]*domain.Order),
		userOrders:   make(map[string][]*domain.Order),
		pending:      newPendingIndex(),
		transactions: make(map[string][]*domain.Transaction),
		snapshots:    make(map[string][]*domain.PortfolioSnapshot),
		prices:       make(map[string]map[time.Time]*domain.PricePoint),
		locks:        newAccountLocks(),
	}
}

// CreateAccount adds an account. It returns domain.ErrAccountAlreadyExists
// if the user already has one.
func (s *MemoryStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.UserID]; exists {
		return domain.ErrAccountAlreadyExists
	}
	c := *a
	s.accounts[a.UserID] = &c
	return nil
}

// GetAccount returns domain.ErrAccountNotFound for unknown users.
func (s *MemoryStore) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) GetHolding(ctx context.Context, userID, ticker string) (*domain.Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holdingLocked(userID, ticker), nil
}

func (s *MemoryStore) holdingLocked(userID, ticker string) *domain.Holding {
	h, ok := s.holdings[userID][ticker]
	if !ok {
		return nil
	}
	c := *h
	return &c
}

// ListHoldings returns the user's holdings sorted by ticker.
func (s *MemoryStore) ListHoldings(ctx context.Context, userID string) ([]*domain.Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Holding, 0, len(s.holdings[userID]))
	for _, h := range s.holdings[userID] {
		c := *h
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ticker < result[j].Ticker })
	return result, nil
}

// CreateOrder stores a new order and, when pending, indexes it for
// matching.
func (s *MemoryStore) CreateOrder(ctx context.Context, o *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[o.UserID]; !ok {
		return domain.ErrAccountNotFound
	}
	c := o.Clone()
	s.orders[c.OrderID] = c
	s.userOrders[c.UserID] = append(s.userOrders[c.UserID], c)
	if c.Status == domain.OrderStatusPending {
		s.pending.Insert(c.OrderID, c.CreatedAt)
	}
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// ListPendingOrders returns every pending order, oldest first.
func (s *MemoryStore) ListPendingOrders(ctx context.Context) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Order, 0, s.pending.Len())
	s.pending.Walk(func(orderID string) bool {
		result = append(result, s.orders[orderID].Clone())
		return true
	})
	return result, nil
}

// ListPendingOrdersByUser returns the user's pending orders, oldest first.
func (s *MemoryStore) ListPendingOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Order, 0)
	s.pending.Walk(func(orderID string) bool {
		if o := s.orders[orderID]; o.UserID == userID {
			result = append(result, o.Clone())
		}
		return true
	})
	return result, nil
}

// ListOrdersByUser returns orders for a user in reverse chronological order
// (newest first). If status is non-nil, only orders matching that status
// are included. Pagination is 1-based. Returns the matching orders for the
// requested page and the total count of matching orders (before pagination).
func (s *MemoryStore) ListOrdersByUser(ctx context.Context, userID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.userOrders[userID]

	filtered := make([]*domain.Order, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if status != nil && all[i].Status != *status {
			continue
		}
		filtered = append(filtered, all[i])
	}

	total := len(filtered)
	start := (page - 1) * limit
	if start >= total {
		return []*domain.Order{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	result := make([]*domain.Order, 0, end-start)
	for _, o := range filtered[start:end] {
		result = append(result, o.Clone())
	}
	return result, total, nil
}

// ListTransactions returns the user's ledger, newest first.
func (s *MemoryStore) ListTransactions(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledger := s.transactions[userID]
	result := make([]*domain.Transaction, 0, len(ledger))
	for i := len(ledger) - 1; i >= 0; i-- {
		c := *ledger[i]
		result = append(result, &c)
	}
	return result, nil
}

func (s *MemoryStore) AppendSnapshot(ctx context.Context, snap *domain.PortfolioSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[snap.UserID]; !ok {
		return domain.ErrAccountNotFound
	}
	c := *snap
	s.snapshots[snap.UserID] = append(s.snapshots[snap.UserID], &c)
	return nil
}

// ListSnapshots returns the user's snapshots in chronological order.
func (s *MemoryStore) ListSnapshots(ctx context.Context, userID string) ([]*domain.PortfolioSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PortfolioSnapshot, 0, len(s.snapshots[userID]))
	for _, snap := range s.snapshots[userID] {
		c := *snap
		result = append(result, &c)
	}
	return result, nil
}

// PutPrice keeps the first point recorded for a ticker and date.
func (s *MemoryStore) PutPrice(ctx context.Context, p *domain.PricePoint) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	date := domain.PriceDate(p.Date)
	byDate := s.prices[p.Ticker]
	if byDate == nil {
		byDate = make(map[time.Time]*domain.PricePoint)
		s.prices[p.Ticker] = byDate
	}
	if _, exists := byDate[date]; exists {
		return false, nil
	}
	c := *p
	c.Date = date
	byDate[date] = &c
	return true, nil
}

// ListPrices returns the ticker's points dated within [from, to], oldest
// first.
func (s *MemoryStore) ListPrices(ctx context.Context, ticker string, from, to time.Time) ([]*domain.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = domain.PriceDate(from), domain.PriceDate(to)
	result := make([]*domain.PricePoint, 0)
	for date, p := range s.prices[ticker] {
		if date.Before(from) || date.After(to) {
			continue
		}
		c := *p
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s *MemoryStore) LatestPrice(ctx context.Context, ticker string) (*domain.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.PricePoint
	for _, p := range s.prices[ticker] {
		if latest == nil || p.Date.After(latest.Date) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

// WithAccount holds the user's account lock for the duration of fn and
// applies the staged writes atomically once fn returns nil.
func (s *MemoryStore) WithAccount(ctx context.Context, userID string, fn func(tx AccountTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock, err := s.locks.lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := &memoryTx{
		store:           s,
		userID:          userID,
		holdings:        make(map[string]*domain.Holding),
		deletedHoldings: make(map[string]bool),
		statuses:        make(map[string]statusChange),
		deletedOrders:   make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) commit(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if tx.cash != nil {
		if a, ok := s.accounts[tx.userID]; ok {
			a.CashBalance = *tx.cash
			a.UpdatedAt = now
		}
	}

	for ticker := range tx.deletedHoldings {
		delete(s.holdings[tx.userID], ticker)
	}
	for ticker, h := range tx.holdings {
		if s.holdings[tx.userID] == nil {
			s.holdings[tx.userID] = make(map[string]*domain.Holding)
		}
		c := *h
		c.UpdatedAt = now
		s.holdings[tx.userID][ticker] = &c
	}

	s.transactions[tx.userID] = append(s.transactions[tx.userID], tx.inserted...)

	for orderID, change := range tx.statuses {
		o, ok := s.orders[orderID]
		if !ok {
			continue
		}
		o.Status = change.status
		o.FailureReason = change.reason
		o.UpdatedAt = now
		if change.status != domain.OrderStatusPending {
			s.pending.Remove(orderID)
		}
	}

	for orderID := range tx.deletedOrders {
		o, ok := s.orders[orderID]
		if !ok {
			continue
		}
		delete(s.orders, orderID)
		s.pending.Remove(orderID)
		list := s.userOrders[o.UserID]
		for i, uo := range list {
			if uo.OrderID == orderID {
				s.userOrders[o.UserID] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
}

type statusChange struct {
	status domain.OrderStatus
	reason string
}

// memoryTx stages the writes of one WithAccount unit.
type memoryTx struct {
	store           *MemoryStore
	userID          string
	cash            *int64
	holdings        map[string]*domain.Holding
	deletedHoldings map[string]bool
	inserted        []*domain.Transaction
	statuses        map[string]statusChange
	deletedOrders   map[string]bool
}

func (tx *memoryTx) Account() (*domain.Account, error) {
	tx.store.mu.RLock()
	a, ok := tx.store.accounts[tx.userID]
	if !ok {
		tx.store.mu.RUnlock()
		return nil, domain.ErrAccountNotFound
	}
	c := *a
	tx.store.mu.RUnlock()

	if tx.cash != nil {
		c.CashBalance = *tx.cash
	}
	return &c, nil
}

func (tx *memoryTx) Holding(ticker string) (*domain.Holding, error) {
	if h, ok := tx.holdings[ticker]; ok {
		c := *h
		return &c, nil
	}
	if tx.deletedHoldings[ticker] {
		return nil, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.holdingLocked(tx.userID, ticker), nil
}

// Order returns an order owned by the unit's account. Orders of other
// users are reported as not found.
func (tx *memoryTx) Order(orderID string) (*domain.Order, error) {
	if tx.deletedOrders[orderID] {
		return nil, domain.ErrOrderNotFound
	}
	tx.store.mu.RLock()
	o, ok := tx.store.orders[orderID]
	if !ok || o.UserID != tx.userID {
		tx.store.mu.RUnlock()
		return nil, domain.ErrOrderNotFound
	}
	c := o.Clone()
	tx.store.mu.RUnlock()

	if change, ok := tx.statuses[orderID]; ok {
		c.Status = change.status
		c.FailureReason = change.reason
	}
	return c, nil
}

func (tx *memoryTx) InsertTransaction(t *domain.Transaction) error {
	c := *t
	tx.inserted = append(tx.inserted, &c)
	return nil
}

func (tx *memoryTx) PutHolding(h *domain.Holding) error {
	c := *h
	c.UserID = tx.userID
	tx.holdings[h.Ticker] = &c
	delete(tx.deletedHoldings, h.Ticker)
	return nil
}

func (tx *memoryTx) DeleteHolding(ticker string) error {
	delete(tx.holdings, ticker)
	tx.deletedHoldings[ticker] = true
	return nil
}

func (tx *memoryTx) SetCashBalance(cents int64) error {
	tx.cash = &cents
	return nil
}

func (tx *memoryTx) SetOrderStatus(orderID string, status domain.OrderStatus, reason string) error {
	if _, err := tx.Order(orderID); err != nil {
		return err
	}
	tx.statuses[orderID] = statusChange{status: status, reason: reason}
	return nil
}

func (tx *memoryTx) DeleteOrder(orderID string) error {
	if _, err := tx.Order(orderID); err != nil {
		return err
	}
	delete(tx.statuses, orderID)
	tx.deletedOrders[orderID] = true
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
