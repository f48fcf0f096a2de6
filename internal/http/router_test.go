package httpx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/shipkit/platform/internal/domain"
	"github.com/shipkit/platform/internal/repository"
	"github.com/shipkit/platform/internal/service/auth"
	"github.com/shipkit/platform/internal/service/billing"
	"github.com/shipkit/platform/internal/service/content"
	"github.com/shipkit/platform/internal/service/waitlist"
	"github.com/shipkit/platform/pkg/config"
)

type memoryUserRepo struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{byID: make(map[string]*domain.User), byEmail: make(map[string]*domain.User)}
}

func (m *memoryUserRepo) CreateUser(ctx context.Context, user *domain.User) error {
	if _, exists := m.byEmail[user.Email]; exists {
		return repository.ErrConflict
	}
	copied := *user
	m.byID[user.ID] = &copied
	m.byEmail[user.Email] = &copied
	return nil
}

func (m *memoryUserRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, ok := m.byEmail[email]
	if !ok || user.Deleted() {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *memoryUserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := m.byID[id]
	if !ok || user.Deleted() {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *memoryUserRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	user, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailVerifiedAt = &at
	return nil
}

func (m *memoryUserRepo) SoftDeleteUser(ctx context.Context, id string, at time.Time) error {
	user, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.DeletedAt = &at
	return nil
}

type memoryPaymentRepo struct {
	byEvent map[string]*domain.Payment
}

func (m *memoryPaymentRepo) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	key := payment.Provider + "/" + payment.EventID
	if _, exists := m.byEvent[key]; exists {
		return repository.ErrConflict
	}
	copied := *payment
	m.byEvent[key] = &copied
	return nil
}

func (m *memoryPaymentRepo) GetPaymentByEventID(ctx context.Context, provider, eventID string) (*domain.Payment, error) {
	payment, ok := m.byEvent[provider+"/"+eventID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return payment, nil
}

func (m *memoryPaymentRepo) ListPaymentsByEmail(ctx context.Context, email string, limit int) ([]domain.Payment, error) {
	out := make([]domain.Payment, 0)
	for _, payment := range m.byEvent {
		if payment.CustomerEmail == email {
			out = append(out, *payment)
		}
	}
	return out, nil
}

type memoryWaitlistRepo struct {
	byEmail map[string]*domain.WaitlistEntry
}

func (m *memoryWaitlistRepo) InsertWaitlistEntry(ctx context.Context, entry *domain.WaitlistEntry) error {
	if _, exists := m.byEmail[entry.Email]; exists {
		return repository.ErrConflict
	}
	copied := *entry
	m.byEmail[entry.Email] = &copied
	return nil
}

func (m *memoryWaitlistRepo) GetWaitlistEntryByEmail(ctx context.Context, email string) (*domain.WaitlistEntry, error) {
	entry, ok := m.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return entry, nil
}

func (m *memoryWaitlistRepo) CountWaitlist(ctx context.Context) (int, error) {
	return len(m.byEmail), nil
}

func (m *memoryWaitlistRepo) ListWaitlist(ctx context.Context, limit, offset int) ([]domain.WaitlistEntry, error) {
	out := make([]domain.WaitlistEntry, 0, len(m.byEmail))
	for _, entry := range m.byEmail {
		out = append(out, *entry)
	}
	return out, nil
}

func (m *memoryWaitlistRepo) MarkWaitlistNotified(ctx context.Context, id string, at time.Time) error {
	return repository.ErrNotFound
}

type quietWriter struct{}

func (quietWriter) Write(p []byte) (int, error) { return len(p), nil }

const webhookSecret = "whsec_router_test"

func testRouter(t *testing.T) *Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(quietWriter{}, nil))
	cfg := config.APIConfig{
		JWTSecret:            "router-test-secret",
		AccessTokenTTL:       15 * time.Minute,
		GuestSessionTTL:      time.Hour,
		SiteURL:              "https://shipkit.example",
		BillingWebhookSecret: webhookSecret,
		BillingSigTolerance:  5 * time.Minute,
		SecretEncryptionKey:  "router-test-storage",
	}

	contentDir := t.TempDir()
	post := "---\ntitle: Launch\ndescription: We launched\npublishedAt: 2026-01-10T00:00:00Z\n---\nbody\n"
	draft := "---\ntitle: Secret\ndraft: true\npublishedAt: 2026-04-01T00:00:00Z\n---\nx\n"
	if err := os.WriteFile(filepath.Join(contentDir, "launch.md"), []byte(post), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(contentDir, "secret.md"), []byte(draft), 0o644); err != nil {
		t.Fatal(err)
	}
	store := content.NewStore(contentDir, logger)
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}

	router := NewRouter(Deps{
		Logger:   logger,
		Auth:     auth.New(newMemoryUserRepo(), mailStub{}, logger, cfg),
		Billing:  billing.New(&memoryPaymentRepo{byEvent: make(map[string]*domain.Payment)}, logger, cfg),
		Waitlist: waitlist.New(&memoryWaitlistRepo{byEmail: make(map[string]*domain.WaitlistEntry)}, logger),
		Content:  store,
		SiteURL:  cfg.SiteURL,
		SiteName: "Shipkit",
		HasBlog:  true,
	})
	t.Cleanup(router.Close)
	return router
}

type mailStub struct{}

func (mailStub) SendMagicLink(_ context.Context, _, _ string) error { return nil }

func doJSON(t *testing.T, router *Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.5:40000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := testRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSignupLoginAndAccountDeletion(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "dev@example.com", "name": "Dev", "password": "longenough",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body = %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "dev@example.com", "password": "longenough",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body = %s", rec.Code, rec.Body)
	}
	var loginResp struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &loginResp); err != nil {
		t.Fatal(err)
	}
	if loginResp.Tokens.AccessToken == "" {
		t.Fatal("no access token issued")
	}

	rec = doJSON(t, router, http.MethodDelete, "/auth/account", loginResp.Tokens.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d body = %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "dev@example.com", "password": "longenough",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login after deletion status = %d", rec.Code)
	}
}

func TestDuplicateSignupConflicts(t *testing.T) {
	router := testRouter(t)
	payload := map[string]string{"email": "dup@example.com", "password": "longenough"}
	if rec := doJSON(t, router, http.MethodPost, "/auth/signup", "", payload); rec.Code != http.StatusCreated {
		t.Fatalf("first signup status = %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/auth/signup", "", payload); rec.Code != http.StatusConflict {
		t.Fatalf("second signup status = %d, want 409", rec.Code)
	}
}

func TestGuestSessionEnabledWithoutProviders(t *testing.T) {
	router := testRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/auth/guest", "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("guest status = %d body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"guest":true`) {
		t.Fatalf("guest flag missing: %s", rec.Body)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	router := testRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/apikeys", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWaitlistJoinIdempotent(t *testing.T) {
	router := testRouter(t)
	payload := map[string]string{"email": "keen@example.com", "source": "landing"}

	rec := doJSON(t, router, http.MethodPost, "/waitlist", "", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first join status = %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/waitlist", "", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("second join status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/waitlist/count", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Fatalf("count response: %d %s", rec.Code, rec.Body)
	}
}

func TestRSSExcludesDrafts(t *testing.T) {
	router := testRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/rss.xml", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Launch") {
		t.Fatalf("published post missing:\n%s", body)
	}
	if strings.Contains(body, "Secret") {
		t.Fatal("draft leaked into the feed")
	}
}

func TestSitemapSectionRouting(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/sitemap.xml", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/sitemap/blog.xml") {
		t.Fatalf("index: %d %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, router, http.MethodGet, "/sitemap/blog.xml", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/blog/launch") {
		t.Fatalf("blog section: %d %s", rec.Code, rec.Body)
	}
	rec = doJSON(t, router, http.MethodGet, "/sitemap/unknown.xml", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown section status = %d", rec.Code)
	}
}

func signWebhook(at time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestBillingWebhook(t *testing.T) {
	router := testRouter(t)
	body := []byte(`{"id":"evt_http","type":"invoice.payment_succeeded","data":{"object":{"customer_email":"pay@example.com","amount_paid":900,"currency":"usd"}}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.5:40000"
	req.Header.Set("Stripe-Signature", signWebhook(time.Now(), body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.5:40000"
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature status = %d", rec.Code)
	}
}

func TestBillingPaymentsScopedToCaller(t *testing.T) {
	router := testRouter(t)

	for i, email := range []string{"mine@example.com", "theirs@example.com"} {
		body := []byte(fmt.Sprintf(`{"id":"evt_scope_%d","type":"invoice.payment_succeeded","data":{"object":{"customer_email":%q,"amount_paid":900,"currency":"usd"}}}`, i, email))
		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
		req.RemoteAddr = "203.0.113.5:40000"
		req.Header.Set("Stripe-Signature", signWebhook(time.Now(), body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("webhook status = %d body = %s", rec.Code, rec.Body)
		}
	}

	rec := doJSON(t, router, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "mine@example.com", "name": "Mine", "password": "longenough",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d body = %s", rec.Code, rec.Body)
	}
	var signupResp struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &signupResp); err != nil {
		t.Fatal(err)
	}
	token := signupResp.Tokens.AccessToken

	// The email query parameter must not let a caller read someone else's
	// history.
	rec = doJSON(t, router, http.MethodGet, "/billing/payments?email=theirs@example.com", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("payments status = %d body = %s", rec.Code, rec.Body)
	}
	var payments []domain.Payment
	if err := json.Unmarshal(rec.Body.Bytes(), &payments); err != nil {
		t.Fatal(err)
	}
	if len(payments) != 1 {
		t.Fatalf("got %d payments, want 1", len(payments))
	}
	if payments[0].CustomerEmail != "mine@example.com" {
		t.Fatalf("payment email = %q, want the caller's own", payments[0].CustomerEmail)
	}
}

func TestSignupRateLimited(t *testing.T) {
	router := testRouter(t)
	var last int
	for i := 0; i < rateLimitSignup+1; i++ {
		payload := map[string]string{"email": fmt.Sprintf("u%d@example.com", i), "password": "longenough"}
		rec := doJSON(t, router, http.MethodPost, "/auth/signup", "", payload)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("final status = %d, want 429", last)
	}
}
