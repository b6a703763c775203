package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"kinesis-pay/internal/models"
)

var ErrDuplicateSession = errors.New("payment session already exists")

// SessionStore keeps payment sessions in memory. Sessions are never removed.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*models.PaymentSession
	byInvoice map[string][]string
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]*models.PaymentSession),
		byInvoice: make(map[string][]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session *models.PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.GatewayPaymentID]; exists {
		return ErrDuplicateSession
	}

	cp := *session
	s.sessions[session.GatewayPaymentID] = &cp
	s.byInvoice[session.InvoiceID] = append(s.byInvoice[session.InvoiceID], session.GatewayPaymentID)
	return nil
}

func (s *SessionStore) GetLatestByInvoice(_ context.Context, invoiceID string) (*models.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byInvoice[invoiceID]
	if len(ids) == 0 {
		return nil, nil
	}
	cp := *s.sessions[ids[len(ids)-1]]
	return &cp, nil
}

func (s *SessionStore) GetByPaymentID(_ context.Context, gatewayPaymentID string) (*models.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[gatewayPaymentID]
	if !ok {
		return nil, nil
	}
	cp := *session
	return &cp, nil
}

func (s *SessionStore) MarkTerminal(_ context.Context, gatewayPaymentID string, status models.SessionStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[gatewayPaymentID]
	if !ok || session.Status != models.SessionStatusCreated {
		return false, nil
	}
	session.Status = status
	session.UpdatedAt = at
	return true, nil
}

func (s *SessionStore) MarkProcessed(_ context.Context, gatewayPaymentID string, confirmed models.Amount, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[gatewayPaymentID]
	if !ok || session.Status != models.SessionStatusCreated {
		return false, nil
	}
	session.Status = models.SessionStatusProcessed
	session.AmountConfirmed = &confirmed
	session.UpdatedAt = at
	return true, nil
}
