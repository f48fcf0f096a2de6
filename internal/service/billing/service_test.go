package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"log/slog"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
	"github.com/shipkit/platform/pkg/config"
	"github.com/shipkit/platform/pkg/crypto"
)

type stubPaymentRepo struct {
	byEvent map[string]*domain.Payment
}

func newStubPaymentRepo() *stubPaymentRepo {
	return &stubPaymentRepo{byEvent: make(map[string]*domain.Payment)}
}

func (s *stubPaymentRepo) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	key := payment.Provider + "/" + payment.EventID
	if _, exists := s.byEvent[key]; exists {
		return repository.ErrConflict
	}
	copied := *payment
	s.byEvent[key] = &copied
	return nil
}

func (s *stubPaymentRepo) GetPaymentByEventID(ctx context.Context, provider, eventID string) (*domain.Payment, error) {
	payment, ok := s.byEvent[provider+"/"+eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return payment, nil
}

func (s *stubPaymentRepo) ListPaymentsByEmail(ctx context.Context, email string, limit int) ([]domain.Payment, error) {
	out := make([]domain.Payment, 0)
	for _, payment := range s.byEvent {
		if payment.CustomerEmail == email {
			out = append(out, *payment)
		}
	}
	return out, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

const (
	testSecret     = "whsec_test"
	testStorageKey = "storage_key_test"
)

func newTestService(repo *stubPaymentRepo) *Service {
	cfg := config.APIConfig{
		BillingWebhookSecret: testSecret,
		SecretEncryptionKey:  testStorageKey,
		BillingSigTolerance:  5 * time.Minute,
	}
	return New(repo, slog.New(slog.NewTextHandler(discardWriter{}, nil)), cfg)
}

func sign(secret string, at time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	svc := newTestService(newStubPaymentRepo())
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	body := []byte(`{"id":"evt_1","type":"invoice.payment_succeeded"}`)

	if err := svc.VerifySignature(sign(testSecret, base, body), body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := svc.VerifySignature(sign("whsec_other", base, body), body); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("wrong secret: err = %v", err)
	}
	if err := svc.VerifySignature(sign(testSecret, base.Add(-10*time.Minute), body), body); !errors.Is(err, ErrSignatureExpired) {
		t.Fatalf("stale timestamp: err = %v", err)
	}
	if err := svc.VerifySignature("v1=deadbeef", body); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("missing timestamp: err = %v", err)
	}
	if err := svc.VerifySignature(sign(testSecret, base, body), []byte(`{"id":"evt_2"}`)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("tampered body: err = %v", err)
	}
}

func TestVerifySignatureAcceptsExtraSchemes(t *testing.T) {
	svc := newTestService(newStubPaymentRepo())
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	body := []byte(`{}`)

	header := sign(testSecret, base, body) + ",v0=ignored"
	if err := svc.VerifySignature(header, body); err != nil {
		t.Fatalf("header with extra scheme rejected: %v", err)
	}
}

func TestHandleEventRecordsPayment(t *testing.T) {
	repo := newStubPaymentRepo()
	svc := newTestService(repo)

	body := []byte(`{
		"id": "evt_100",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1", "customer_email": "Buyer@Example.com", "amount_total": 4900, "currency": "usd"}}
	}`)
	result, err := svc.HandleEvent(context.Background(), body)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if !result.Handled || result.Duplicate {
		t.Fatalf("result = %+v", result)
	}

	payment, err := repo.GetPaymentByEventID(context.Background(), "stripe", "evt_100")
	if err != nil {
		t.Fatalf("payment not stored: %v", err)
	}
	if payment.Status != domain.PaymentStatusPaid {
		t.Fatalf("status = %q, want paid", payment.Status)
	}
	if payment.CustomerEmail != "buyer@example.com" {
		t.Fatalf("email not normalized: %q", payment.CustomerEmail)
	}
	if payment.AmountCents != 4900 {
		t.Fatalf("amount = %d", payment.AmountCents)
	}
}

func TestHandleEventSealsStoredPayload(t *testing.T) {
	repo := newStubPaymentRepo()
	svc := newTestService(repo)

	body := []byte(`{"id":"evt_pii","type":"checkout.session.completed","data":{"object":{"customer_email":"buyer@example.com","amount_total":900,"currency":"usd"}}}`)
	if _, err := svc.HandleEvent(context.Background(), body); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	stored, err := repo.GetPaymentByEventID(context.Background(), "stripe", "evt_pii")
	if err != nil {
		t.Fatalf("payment not stored: %v", err)
	}
	if bytes.Equal(stored.Raw, body) || bytes.Contains(stored.Raw, []byte("buyer@example.com")) {
		t.Fatal("raw payload stored in the clear")
	}
	plain, err := crypto.DecryptToString(testStorageKey, stored.Raw)
	if err != nil {
		t.Fatalf("stored payload does not unseal: %v", err)
	}
	if plain != string(body) {
		t.Fatalf("unsealed payload = %q, want original body", plain)
	}

	history, err := svc.History(context.Background(), "buyer@example.com", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if !bytes.Equal(history[0].Raw, body) {
		t.Fatalf("history raw = %q, want original body", history[0].Raw)
	}
}

func TestHandleEventStatusMapping(t *testing.T) {
	cases := []struct {
		eventType string
		want      string
	}{
		{"invoice.payment_succeeded", domain.PaymentStatusPaid},
		{"invoice.payment_failed", domain.PaymentStatusFailed},
		{"charge.refunded", domain.PaymentStatusRefunded},
		{"customer.subscription.deleted", domain.PaymentStatusCancelled},
	}
	for _, tc := range cases {
		repo := newStubPaymentRepo()
		svc := newTestService(repo)
		body := []byte(fmt.Sprintf(`{"id":"evt_x","type":"%s","data":{"object":{"amount_due":100,"currency":"usd"}}}`, tc.eventType))
		if _, err := svc.HandleEvent(context.Background(), body); err != nil {
			t.Fatalf("%s: %v", tc.eventType, err)
		}
		payment, err := repo.GetPaymentByEventID(context.Background(), "stripe", "evt_x")
		if err != nil {
			t.Fatalf("%s: payment not stored", tc.eventType)
		}
		if payment.Status != tc.want {
			t.Fatalf("%s: status = %q, want %q", tc.eventType, payment.Status, tc.want)
		}
	}
}

func TestHandleEventDuplicateAcknowledged(t *testing.T) {
	repo := newStubPaymentRepo()
	svc := newTestService(repo)
	body := []byte(`{"id":"evt_dup","type":"invoice.payment_succeeded","data":{"object":{"amount_paid":500,"currency":"eur"}}}`)

	first, err := svc.HandleEvent(context.Background(), body)
	if err != nil {
		t.Fatal(err)
	}
	if first.Payment == nil {
		t.Fatal("first delivery carries no payment record")
	}
	result, err := svc.HandleEvent(context.Background(), body)
	if err != nil {
		t.Fatalf("redelivery should acknowledge: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("redelivery not flagged as duplicate")
	}
	if result.Payment == nil || result.Payment.ID != first.Payment.ID {
		t.Fatal("redelivery should surface the originally recorded payment")
	}
	if len(repo.byEvent) != 1 {
		t.Fatalf("stored %d payments, want 1", len(repo.byEvent))
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	repo := newStubPaymentRepo()
	svc := newTestService(repo)

	result, err := svc.HandleEvent(context.Background(), []byte(`{"id":"evt_odd","type":"charge.updated"}`))
	if err != nil {
		t.Fatalf("unknown type should acknowledge: %v", err)
	}
	if result.Handled || result.Duplicate {
		t.Fatalf("result = %+v", result)
	}
	if len(repo.byEvent) != 0 {
		t.Fatal("unknown event types must not record payments")
	}
}

func TestHandleEventRejectsMalformedPayloads(t *testing.T) {
	svc := newTestService(newStubPaymentRepo())
	for _, body := range []string{"not json", `{"type":"invoice.payment_succeeded"}`, `{"id":"evt_1"}`} {
		if _, err := svc.HandleEvent(context.Background(), []byte(body)); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("body %q: err = %v, want ErrMalformedEvent", body, err)
		}
	}
}
