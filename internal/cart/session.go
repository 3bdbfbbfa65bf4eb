package cart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"optical-pos/internal/models"
)

var (
	ErrNoCustomerSelected   = errors.New("no customer selected")
	ErrStockLimitExceeded   = errors.New("stock limit exceeded")
	ErrEmptyCart            = errors.New("cart is empty, nothing to checkout")
	ErrItemNotInCart        = errors.New("item not in cart")
	ErrInvalidTransition    = errors.New("illegal transition of checkout session")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
)

// State is the checkout state of a session
type State string

const (
	StateEmpty     State = "EMPTY"
	StateBuilding  State = "BUILDING"
	StateInvoiced  State = "INVOICED"
	StateFinalized State = "FINALIZED"
	StateCancelled State = "CANCELLED"
)

// IsTerminal reports whether a checkout ends in this state
func (s State) IsTerminal() bool {
	return s == StateFinalized || s == StateCancelled
}

// Snapshot is an immutable copy of a session taken before a durable step
type Snapshot struct {
	SessionID string
	Customer  *models.Customer
	Items     []models.CartItem
	Invoice   *Invoice
	// Mirrored is set when the stock mirror took part in the hold
	Mirrored bool
}

// Adjustments returns one stock adjustment per line, in cart order
func (s Snapshot) Adjustments() []models.StockAdjustment {
	out := make([]models.StockAdjustment, 0, len(s.Items))
	for _, item := range s.Items {
		out = append(out, models.StockAdjustment{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

// CustomerID returns the selected customer id, or nil
func (s Snapshot) CustomerID() *string {
	if s.Customer == nil {
		return nil
	}
	id := s.Customer.ID
	return &id
}

// View is a read-only rendering of a session
type View struct {
	ID            string            `json:"id"`
	State         State             `json:"state"`
	Customer      *models.Customer  `json:"customer,omitempty"`
	Items         []models.CartItem `json:"items"`
	Invoice       *Invoice          `json:"invoice,omitempty"`
	LastOutcome   State             `json:"lastOutcome,omitempty"`
	LastOutcomeAt *time.Time        `json:"lastOutcomeAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Session owns the cart of one POS checkout. Line items are kept in
// insertion order and keyed by product id.
type Session struct {
	mu        sync.Mutex
	id        string
	createdAt time.Time

	customer *models.Customer
	items    []models.CartItem
	invoiced bool
	invoice  *Invoice
	mirrored bool
	closed   bool

	touchedAt time.Time

	// set while a hold, finalize or cancel is running against a snapshot
	inFlight bool

	lastOutcome   State
	lastOutcomeAt time.Time
}

// NewSession creates an empty session
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		createdAt: now,
		touchedAt: now,
	}
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// State returns the current checkout state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	if s.invoiced {
		return StateInvoiced
	}
	if len(s.items) == 0 {
		return StateEmpty
	}
	return StateBuilding
}

// locked reports whether cart contents are frozen
func (s *Session) locked() bool {
	return s.invoiced || s.inFlight || s.closed
}

func (s *Session) lockedErr(what string) error {
	if s.closed {
		return fmt.Errorf("%w: session is closed", ErrInvalidTransition)
	}
	return fmt.Errorf("%w: %s %s", ErrInvalidTransition, what, s.stateLocked())
}

// Customer returns the selected customer, or nil
func (s *Session) Customer() *models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCustomer(s.customer)
}

// SetCustomer selects a customer. Passing nil removes the selection and
// clears the cart.
func (s *Session) SetCustomer(customer *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked() {
		return s.lockedErr("customer cannot change while")
	}
	s.touchedAt = time.Now()

	if customer == nil {
		s.customer = nil
		s.items = nil
		return nil
	}

	s.customer = copyCustomer(customer)
	return nil
}

// AddItem adds one unit of product, incrementing an existing line
func (s *Session) AddItem(product models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked() {
		return s.lockedErr("cart is")
	}
	s.touchedAt = time.Now()
	if s.customer == nil {
		return ErrNoCustomerSelected
	}

	if i := s.indexOf(product.ID); i >= 0 {
		next := s.items[i].Quantity + 1
		if next > product.Stock {
			return fmt.Errorf("%w: only %d of %s in stock", ErrStockLimitExceeded, product.Stock, product.ID)
		}
		s.items[i].Quantity = next
		s.items[i].Stock = product.Stock
		s.items[i].Price = product.Price
		return nil
	}

	if product.Stock < 1 {
		return fmt.Errorf("%w: %s is out of stock", ErrStockLimitExceeded, product.ID)
	}

	s.items = append(s.items, models.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Barcode:   product.Barcode,
		Category:  product.Category,
		Price:     product.Price,
		Stock:     product.Stock,
		Quantity:  1,
	})
	return nil
}

// RemoveItem deletes a line; removing an absent product is not an error
func (s *Session) RemoveItem(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked() {
		return s.lockedErr("cart is")
	}
	s.touchedAt = time.Now()

	if i := s.indexOf(productID); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	return nil
}

// UpdateQuantity sets the quantity of a line. Quantities below 1 are clamped
// to 1; quantities above currentStock are rejected without mutation.
func (s *Session) UpdateQuantity(productID string, quantity int, currentStock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked() {
		return s.lockedErr("cart is")
	}
	s.touchedAt = time.Now()

	i := s.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotInCart, productID)
	}

	if quantity < 1 {
		quantity = 1
	}
	if quantity > currentStock {
		return fmt.Errorf("%w: only %d of %s in stock", ErrStockLimitExceeded, currentStock, productID)
	}

	s.items[i].Quantity = quantity
	s.items[i].Stock = currentStock
	return nil
}

// Clear empties the cart
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked() {
		return s.lockedErr("cart is")
	}
	s.touchedAt = time.Now()
	s.items = nil
	return nil
}

// Items returns a copy of the line items in insertion order
func (s *Session) Items() []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyItems(s.items)
}

// Invoice returns the invoice shown for this session, if any
func (s *Session) Invoice() *Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invoice == nil {
		return nil
	}
	inv := *s.invoice
	return &inv
}

// View renders the session
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:          s.id,
		State:       s.stateLocked(),
		Customer:    copyCustomer(s.customer),
		Items:       copyItems(s.items),
		LastOutcome: s.lastOutcome,
		CreatedAt:   s.createdAt,
	}
	if s.invoice != nil {
		inv := *s.invoice
		v.Invoice = &inv
	}
	if !s.lastOutcomeAt.IsZero() {
		at := s.lastOutcomeAt
		v.LastOutcomeAt = &at
	}
	return v
}

// BeginCheckout freezes the cart for a stock hold and returns its snapshot.
// It is followed by MarkInvoiced or Abort.
func (s *Session) BeginCheckout() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked() {
		return Snapshot{}, s.lockedErr("checkout already")
	}
	if len(s.items) == 0 {
		return Snapshot{}, ErrEmptyCart
	}
	if s.customer == nil {
		return Snapshot{}, ErrNoCustomerSelected
	}

	s.inFlight = true
	return s.snapshotLocked(), nil
}

// MarkInvoiced moves a frozen cart to INVOICED. mirrored records whether
// the hold also reserved stock in the mirror.
func (s *Session) MarkInvoiced(invoice Invoice, mirrored bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoiced = true
	s.invoice = &invoice
	s.mirrored = mirrored
	s.inFlight = false
	s.touchedAt = time.Now()
}

// BeginCommit claims an INVOICED session for finalize or cancel. Only one
// caller can hold the claim.
func (s *Session) BeginCommit() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, fmt.Errorf("%w: session is closed", ErrInvalidTransition)
	}
	if !s.invoiced {
		return Snapshot{}, fmt.Errorf("%w: session is %s, not %s", ErrInvalidTransition, s.stateLocked(), StateInvoiced)
	}
	if s.inFlight {
		return Snapshot{}, fmt.Errorf("%w: session is already being committed", ErrInvalidTransition)
	}

	s.inFlight = true
	return s.snapshotLocked(), nil
}

// Abort releases a claim taken by BeginCheckout or BeginCommit without
// changing state
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}

// Finish records a terminal outcome and resets the session to EMPTY
func (s *Session) Finish(outcome State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.customer = nil
	s.invoice = nil
	s.invoiced = false
	s.mirrored = false
	s.inFlight = false
	s.lastOutcome = outcome
	s.lastOutcomeAt = time.Now()
	s.touchedAt = s.lastOutcomeAt
}

// Close marks the session closed. Sessions holding stock or running a step
// cannot be closed; a closed session rejects every later change.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: session is closed", ErrInvalidTransition)
	}
	if s.invoiced || s.inFlight {
		return fmt.Errorf("%w: session %s holds stock, complete or cancel it first", ErrInvalidTransition, s.id)
	}
	s.closed = true
	return nil
}

// IdleSince reports when an EMPTY session last changed
func (s *Session) IdleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.stateLocked() != StateEmpty || s.inFlight {
		return time.Time{}, false
	}
	return s.touchedAt, true
}

// InFlight reports whether a hold, finalize or cancel is running
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// HeldSince reports when the session was invoiced, if it is idle in INVOICED
func (s *Session) HeldSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.invoiced || s.inFlight || s.invoice == nil {
		return time.Time{}, false
	}
	return s.invoice.IssuedAt, true
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		Customer:  copyCustomer(s.customer),
		Items:     copyItems(s.items),
		Mirrored:  s.mirrored,
	}
	if s.invoice != nil {
		inv := *s.invoice
		snap.Invoice = &inv
	}
	return snap
}

func (s *Session) indexOf(productID string) int {
	for i := range s.items {
		if s.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func copyItems(items []models.CartItem) []models.CartItem {
	out := make([]models.CartItem, len(items))
	copy(out, items)
	return out
}

func copyCustomer(c *models.Customer) *models.Customer {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
