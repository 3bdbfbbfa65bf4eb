package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"optical-pos/internal/cart"
	"optical-pos/internal/models"
	"optical-pos/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newID() string {
	return uuid.New().String()
}

// SessionView is a session rendering with its current totals
type SessionView struct {
	cart.View
	Totals cart.Totals `json:"totals"`
}

// CheckoutService owns the open checkout sessions and drives them through
// hold, finalize and cancel
type CheckoutService struct {
	mu       sync.RWMutex
	sessions map[string]*cart.Session

	catalog   *Catalog
	customers *CustomerDirectory
	holder    *StockHolder
	finalizer *SaleFinalizer
	canceller *SaleCanceller
	invoices  *cart.InvoiceGenerator

	timeout time.Duration
	logger  *zap.Logger
}

// NewCheckoutService creates a new checkout service. timeout bounds each
// durable step; zero disables it.
func NewCheckoutService(
	catalog *Catalog,
	customers *CustomerDirectory,
	holder *StockHolder,
	finalizer *SaleFinalizer,
	canceller *SaleCanceller,
	invoices *cart.InvoiceGenerator,
	timeout time.Duration,
) *CheckoutService {
	return &CheckoutService{
		sessions:  make(map[string]*cart.Session),
		catalog:   catalog,
		customers: customers,
		holder:    holder,
		finalizer: finalizer,
		canceller: canceller,
		invoices:  invoices,
		timeout:   timeout,
		logger:    util.GetLogger(),
	}
}

func (s *CheckoutService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *CheckoutService) session(id string) (*cart.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *CheckoutService) view(sess *cart.Session) *SessionView {
	v := sess.View()
	return &SessionView{
		View:   v,
		Totals: cart.CalculateTotals(v.Items, s.invoices.TaxRate()),
	}
}

func recordCartOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	util.CartOperationsTotal.WithLabelValues(op, result).Inc()
}

// OpenSession starts an empty checkout session
func (s *CheckoutService) OpenSession() *SessionView {
	sess := cart.NewSession(newID())

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	util.ActiveSessions.Inc()
	util.SessionLogger(sess.ID()).Info("Checkout session opened")
	return s.view(sess)
}

// GetSession returns the session with its totals
func (s *CheckoutService) GetSession(id string) (*SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// CloseSession discards a session. An INVOICED session holds stock and must
// be completed or cancelled first.
func (s *CheckoutService) CloseSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := sess.Close(); err != nil {
		return err
	}

	delete(s.sessions, id)
	util.ActiveSessions.Dec()
	util.SessionLogger(id).Info("Checkout session closed")
	return nil
}

// SelectCustomer attaches a customer to the session
func (s *CheckoutService) SelectCustomer(ctx context.Context, id, customerID string) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.SelectCustomer")
	defer span.End()

	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	err = sess.SetCustomer(customer)
	recordCartOp("select_customer", err)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// RemoveCustomer clears the customer, which also empties the cart
func (s *CheckoutService) RemoveCustomer(id string) (*SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	err = sess.SetCustomer(nil)
	recordCartOp("remove_customer", err)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// SessionPrescriptions lists the prescriptions of the selected customer
func (s *CheckoutService) SessionPrescriptions(ctx context.Context, id string) ([]models.Prescription, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	customer := sess.Customer()
	if customer == nil {
		return nil, cart.ErrNoCustomerSelected
	}
	return s.customers.ListPrescriptions(ctx, customer.ID)
}

// AddItem adds one unit of productID using its current stock
func (s *CheckoutService) AddItem(ctx context.Context, id, productID string) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.AddItem")
	defer span.End()

	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if sess.Customer() == nil {
		recordCartOp("add_item", cart.ErrNoCustomerSelected)
		return nil, cart.ErrNoCustomerSelected
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		recordCartOp("add_item", err)
		return nil, err
	}

	err = sess.AddItem(*product)
	recordCartOp("add_item", err)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// AddItemByBarcode adds one unit of the product scanned as barcode
func (s *CheckoutService) AddItemByBarcode(ctx context.Context, id, barcode string) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.AddItemByBarcode")
	defer span.End()

	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	if sess.Customer() == nil {
		recordCartOp("scan_item", cart.ErrNoCustomerSelected)
		return nil, cart.ErrNoCustomerSelected
	}

	product, err := s.catalog.FindByBarcode(ctx, barcode)
	if err != nil {
		recordCartOp("scan_item", err)
		return nil, err
	}

	err = sess.AddItem(*product)
	recordCartOp("scan_item", err)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// UpdateQuantity sets a line quantity, checked against current stock
func (s *CheckoutService) UpdateQuantity(ctx context.Context, id, productID string, quantity int) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.UpdateQuantity")
	defer span.End()

	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		recordCartOp("update_quantity", err)
		return nil, err
	}

	err = sess.UpdateQuantity(productID, quantity, product.Stock)
	recordCartOp("update_quantity", err)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// RemoveItem drops a line
func (s *CheckoutService) RemoveItem(id, productID string) (*SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	err = sess.RemoveItem(productID)
	recordCartOp("remove_item", err)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// ClearCart empties the cart and keeps the customer
func (s *CheckoutService) ClearCart(id string) (*SessionView, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	err = sess.Clear()
	recordCartOp("clear", err)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// Checkout holds stock for the cart and issues its invoice. On failure the
// cart stays BUILDING and nothing is held.
func (s *CheckoutService) Checkout(ctx context.Context, id, paymentMethod string) (*cart.Invoice, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	logger := util.SessionLogger(id)

	snap, err := sess.BeginCheckout()
	if err != nil {
		util.CheckoutFailuresTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	inv, err := s.invoices.Generate(snap, paymentMethod)
	if err != nil {
		sess.Abort()
		util.CheckoutFailuresTotal.WithLabelValues("invalid_invoice").Inc()
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	mirrored, err := s.holder.Hold(ctx, snap.Adjustments())
	if err != nil {
		sess.Abort()
		util.FailSpan(span, err)
		util.CheckoutFailuresTotal.WithLabelValues("hold_failed").Inc()
		logger.Warn("Stock hold failed", zap.Error(err))
		return nil, err
	}

	sess.MarkInvoiced(inv, mirrored)
	logger.Info("Checkout invoiced",
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("total", inv.Totals.Total.StringFixed(2)),
		zap.String("payment_method", inv.PaymentMethod))
	return &inv, nil
}

// GetInvoice returns the invoice of an INVOICED session
func (s *CheckoutService) GetInvoice(id string) (*cart.Invoice, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	inv := sess.Invoice()
	if inv == nil {
		return nil, fmt.Errorf("%w: session %s has no invoice", cart.ErrInvalidTransition, id)
	}
	return inv, nil
}

// Complete finalizes an INVOICED session. On failure the session stays
// INVOICED with its hold intact and can be retried or cancelled.
func (s *CheckoutService) Complete(ctx context.Context, id string) (*models.SaleReceipt, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Complete")
	defer span.End()

	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	snap, err := sess.BeginCommit()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	receipt, err := s.finalizer.Finalize(ctx, snap)
	if err != nil {
		sess.Abort()
		util.FailSpan(span, err)
		return nil, err
	}

	sess.Finish(cart.StateFinalized)
	return receipt, nil
}

// Cancel reverses an INVOICED session
func (s *CheckoutService) Cancel(ctx context.Context, id, reason string) (*models.CancellationDetails, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Cancel")
	defer span.End()

	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	snap, err := sess.BeginCommit()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	details, err := s.canceller.Cancel(ctx, snap, reason)
	if err != nil {
		sess.Abort()
		util.FailSpan(span, err)
		return nil, err
	}

	sess.Finish(cart.StateCancelled)
	return details, nil
}

// ExpireStaleHolds cancels sessions that have been INVOICED for longer than
// ttl and returns how many were released
func (s *CheckoutService) ExpireStaleHolds(ctx context.Context, ttl time.Duration) int {
	s.mu.RLock()
	var stale []string
	for id, sess := range s.sessions {
		if since, held := sess.HeldSince(); held && time.Since(since) > ttl {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	expired := 0
	for _, id := range stale {
		if _, err := s.Cancel(ctx, id, ReasonHoldExpired); err != nil {
			util.SessionLogger(id).Warn("Failed to expire stock hold", zap.Error(err))
			continue
		}
		expired++
		util.HoldsExpiredTotal.Inc()
		util.SessionLogger(id).Info("Stock hold expired")
	}
	return expired
}

// ExpireIdleSessions closes EMPTY sessions untouched for longer than ttl and
// returns how many were removed
func (s *CheckoutService) ExpireIdleSessions(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for id, sess := range s.sessions {
		since, idle := sess.IdleSince()
		if !idle || time.Since(since) <= ttl {
			continue
		}
		if err := sess.Close(); err != nil {
			continue
		}
		delete(s.sessions, id)
		closed++
		util.ActiveSessions.Dec()
		util.SessionLogger(id).Info("Idle checkout session closed")
	}
	return closed
}
