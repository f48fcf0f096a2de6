package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
	"github.com/shipkit/platform/pkg/config"
	"github.com/shipkit/platform/pkg/crypto"
)

var (
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	ErrSignatureExpired = errors.New("billing: webhook timestamp outside tolerance")
	ErrMalformedEvent   = errors.New("billing: malformed event payload")
)

// Event types the webhook acts on. Anything else is acknowledged and ignored.
const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventInvoicePaid         = "invoice.payment_succeeded"
	eventInvoiceFailed       = "invoice.payment_failed"
	eventChargeRefunded      = "charge.refunded"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

// Service processes billing provider webhooks. Events are recorded
// idempotently on the provider event ID, so redelivered webhooks always
// acknowledge without double-recording a payment.
type Service struct {
	payments repository.PaymentRepository
	logger   *slog.Logger

	secret     []byte
	storageKey string
	tolerance  time.Duration
	now        func() time.Time
}

// New returns a billing webhook service.
func New(payments repository.PaymentRepository, logger *slog.Logger, cfg config.APIConfig) *Service {
	return &Service{
		payments:   payments,
		logger:     logger,
		secret:     []byte(cfg.BillingWebhookSecret),
		storageKey: cfg.SecretEncryptionKey,
		tolerance:  cfg.BillingSigTolerance,
		now:        time.Now,
	}
}

// event mirrors the provider's envelope. Only fields the receiver acts on are
// decoded.
type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			CustomerEmail string `json:"customer_email"`
			AmountTotal   int64  `json:"amount_total"`
			AmountPaid    int64  `json:"amount_paid"`
			AmountDue     int64  `json:"amount_due"`
			Currency      string `json:"currency"`
		} `json:"object"`
	} `json:"data"`
}

// Result reports how an event was handled.
type Result struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Handled   bool   `json:"handled"`
	Duplicate bool   `json:"duplicate"`

	// Payment is the recorded row, or the original one on redelivery.
	Payment *domain.Payment `json:"-"`
}

// VerifySignature checks a `t=<unix>,v1=<hex>` header against the shared
// secret. The signed payload is `<t>.<body>`; the timestamp must fall within
// the tolerance window.
func (s *Service) VerifySignature(header string, body []byte) error {
	if len(s.secret) == 0 {
		return ErrInvalidSignature
	}
	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrInvalidSignature
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return ErrInvalidSignature
	}
	if s.tolerance > 0 {
		age := s.now().UTC().Sub(time.Unix(timestamp, 0))
		if age > s.tolerance || age < -s.tolerance {
			return ErrSignatureExpired
		}
	}

	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, signature := range signatures {
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// HandleEvent records the payment outcome for a verified event body.
func (s *Service) HandleEvent(ctx context.Context, body []byte) (*Result, error) {
	var evt event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, ErrMalformedEvent
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, ErrMalformedEvent
	}

	result := &Result{EventID: evt.ID, EventType: evt.Type}

	var status string
	switch evt.Type {
	case eventCheckoutCompleted, eventInvoicePaid:
		status = domain.PaymentStatusPaid
	case eventInvoiceFailed:
		status = domain.PaymentStatusFailed
	case eventChargeRefunded:
		status = domain.PaymentStatusRefunded
	case eventSubscriptionDeleted:
		status = domain.PaymentStatusCancelled
	default:
		s.logger.Info("billing event ignored", "event_id", evt.ID, "event_type", evt.Type)
		return result, nil
	}

	amount := evt.Data.Object.AmountTotal
	if amount == 0 {
		amount = evt.Data.Object.AmountPaid
	}
	if amount == 0 {
		amount = evt.Data.Object.AmountDue
	}

	// Raw payloads carry customer PII, so they are sealed before they
	// touch the database.
	sealed, err := crypto.EncryptString(s.storageKey, string(body))
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:            uuid.NewString(),
		Provider:      "stripe",
		EventID:       evt.ID,
		EventType:     evt.Type,
		CustomerEmail: strings.ToLower(strings.TrimSpace(evt.Data.Object.CustomerEmail)),
		AmountCents:   amount,
		Currency:      evt.Data.Object.Currency,
		Status:        status,
		Raw:           sealed,
		ProcessedAt:   s.now().UTC(),
	}
	if err := s.payments.InsertPayment(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Info("billing event already processed", "event_id", evt.ID)
			result.Duplicate = true
			if original, lookupErr := s.payments.GetPaymentByEventID(ctx, payment.Provider, evt.ID); lookupErr == nil {
				result.Payment = original
			}
			return result, nil
		}
		return nil, err
	}
	s.logger.Info("billing event recorded", "event_id", evt.ID, "event_type", evt.Type, "status", status)
	result.Handled = true
	result.Payment = payment
	return result, nil
}

// History returns recorded payments for one customer email, newest first.
// Stored payloads are unsealed before they leave the service.
func (s *Service) History(ctx context.Context, email string, limit int) ([]domain.Payment, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrMalformedEvent
	}
	payments, err := s.payments.ListPaymentsByEmail(ctx, email, limit)
	if err != nil {
		return nil, err
	}
	for i := range payments {
		if len(payments[i].Raw) == 0 {
			continue
		}
		plain, err := crypto.DecryptToString(s.storageKey, payments[i].Raw)
		if err != nil {
			s.logger.Warn("stored payment payload would not decrypt", "payment_id", payments[i].ID, "error", err)
			payments[i].Raw = nil
			continue
		}
		payments[i].Raw = []byte(plain)
	}
	return payments, nil
}
