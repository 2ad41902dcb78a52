package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chartpilot/config"
	"chartpilot/internal/database"
)

type fakeBillingStore struct {
	users       map[string]*database.User // keyed by Stripe customer ID
	updated     []*database.User
	tierUpdates []string
}

func newFakeBillingStore(users ...*database.User) *fakeBillingStore {
	store := &fakeBillingStore{users: map[string]*database.User{}}
	for _, u := range users {
		if u.StripeCustomerID != "" {
			store.users[u.StripeCustomerID] = u
		}
	}
	return store
}

func (f *fakeBillingStore) GetUserByStripeCustomerID(_ context.Context, customerID string) (*database.User, error) {
	u, ok := f.users[customerID]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeBillingStore) UpdateUser(_ context.Context, user *database.User) error {
	copied := *user
	f.updated = append(f.updated, &copied)
	if user.StripeCustomerID != "" {
		f.users[user.StripeCustomerID] = &copied
	}
	return nil
}

func (f *fakeBillingStore) UpdateUserTier(_ context.Context, userID string, tier database.SubscriptionTier, status database.SubscriptionStatus) error {
	f.tierUpdates = append(f.tierUpdates, fmt.Sprintf("%s:%s:%s", userID, tier, status))
	return nil
}

func testBillingConfig() config.BillingConfig {
	return config.BillingConfig{
		Enabled:             true,
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: "whsec_test",
		SuccessURL:          "https://app.example.com/billing/success",
		CancelURL:           "https://app.example.com/billing/cancel",
		PortalReturnURL:     "https://app.example.com/settings",
		TraderPriceID:       "price_trader",
		ProPriceID:          "price_pro",
		WhalePriceID:        "price_whale",
	}
}

func signPayload(secret string, payload []byte) string {
	timestamp := "1767225600"
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func subscriptionPayload(eventType, customerID, status, priceID string, periodEnd int64) []byte {
	payload := map[string]interface{}{
		"id":   "evt_1",
		"type": eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":                 "sub_1",
				"customer":           customerID,
				"status":             status,
				"current_period_end": periodEnd,
				"items": map[string]interface{}{
					"data": []map[string]interface{}{
						{"price": map[string]string{"id": priceID}},
					},
				},
			},
		},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	svc := NewStripeService(testBillingConfig(), newFakeBillingStore(), nil)

	payload := subscriptionPayload("customer.subscription.updated", "cus_1", "active", "price_pro", 0)
	err := svc.HandleWebhook(context.Background(), payload, "t=123,v1=deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("HandleWebhook() error = %v, want ErrInvalidSignature", err)
	}
}

func TestHandleWebhookSubscriptionUpdated(t *testing.T) {
	user := &database.User{
		ID:               "user-1",
		Email:            "trader@example.com",
		SubscriptionTier: database.TierFree,
		StripeCustomerID: "cus_1",
	}
	store := newFakeBillingStore(user)
	svc := NewStripeService(testBillingConfig(), store, nil)

	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC).Unix()
	payload := subscriptionPayload("customer.subscription.updated", "cus_1", "active", "price_pro", periodEnd)

	err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec_test", payload))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	if len(store.updated) != 1 {
		t.Fatalf("updates = %d, want 1", len(store.updated))
	}
	got := store.updated[0]
	if got.SubscriptionTier != database.TierPro {
		t.Errorf("tier = %q, want pro", got.SubscriptionTier)
	}
	if got.SubscriptionStatus != database.StatusActive {
		t.Errorf("status = %q, want active", got.SubscriptionStatus)
	}
	if got.StripeSubscriptionID != "sub_1" {
		t.Errorf("subscription id = %q, want sub_1", got.StripeSubscriptionID)
	}
	if got.SubscriptionExpiresAt == nil || got.SubscriptionExpiresAt.Unix() != periodEnd {
		t.Error("expiry should come from current_period_end")
	}
}

func TestHandleWebhookSubscriptionDeletedAlwaysDowngrades(t *testing.T) {
	user := &database.User{
		ID:                   "user-1",
		SubscriptionTier:     database.TierWhale,
		SubscriptionStatus:   database.StatusActive,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
	}
	store := newFakeBillingStore(user)
	svc := NewStripeService(testBillingConfig(), store, nil)

	payload := subscriptionPayload("customer.subscription.deleted", "cus_1", "canceled", "price_whale", 0)
	err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec_test", payload))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	if len(store.updated) != 1 {
		t.Fatalf("updates = %d, want 1", len(store.updated))
	}
	got := store.updated[0]
	if got.SubscriptionTier != database.TierFree {
		t.Errorf("tier = %q, want free", got.SubscriptionTier)
	}
	if got.SubscriptionStatus != database.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.SubscriptionStatus)
	}
	if got.StripeSubscriptionID != "" || got.SubscriptionExpiresAt != nil {
		t.Error("deleted subscription should clear subscription id and expiry")
	}
}

func TestHandleWebhookUnknownCustomerIgnored(t *testing.T) {
	store := newFakeBillingStore()
	svc := NewStripeService(testBillingConfig(), store, nil)

	payload := subscriptionPayload("customer.subscription.deleted", "cus_missing", "canceled", "", 0)
	err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec_test", payload))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if len(store.updated) != 0 {
		t.Error("unknown customer must not trigger updates")
	}
}

func TestHandleWebhookInvoicePaymentFailed(t *testing.T) {
	user := &database.User{
		ID:               "user-1",
		SubscriptionTier: database.TierTrader,
		StripeCustomerID: "cus_1",
	}
	store := newFakeBillingStore(user)
	svc := NewStripeService(testBillingConfig(), store, nil)

	payloadRaw := map[string]interface{}{
		"id":   "evt_2",
		"type": "invoice.payment_failed",
		"data": map[string]interface{}{
			"object": map[string]string{"id": "in_1", "customer": "cus_1"},
		},
	}
	payload, _ := json.Marshal(payloadRaw)

	err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec_test", payload))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	if len(store.tierUpdates) != 1 || store.tierUpdates[0] != "user-1:trader:past_due" {
		t.Errorf("tier updates = %v, want past_due on same tier", store.tierUpdates)
	}
}

func TestHandleWebhookIgnoresUnknownEventTypes(t *testing.T) {
	store := newFakeBillingStore()
	svc := NewStripeService(testBillingConfig(), store, nil)

	payload := []byte(`{"id":"evt_3","type":"charge.refunded","data":{"object":{}}}`)
	if err := svc.HandleWebhook(context.Background(), payload, signPayload("whsec_test", payload)); err != nil {
		t.Errorf("HandleWebhook() error = %v, want nil", err)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotPath string
	var gotForm map[string][]string

	stripe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		gotPath = r.URL.Path
		gotForm = r.PostForm

		if r.URL.Path == "/customers" {
			fmt.Fprint(w, `{"id":"cus_new"}`)
			return
		}
		fmt.Fprint(w, `{"url":"https://checkout.stripe.com/pay/cs_123"}`)
	}))
	defer stripe.Close()

	user := &database.User{ID: "user-1", Email: "trader@example.com"}
	store := newFakeBillingStore()
	svc := NewStripeService(testBillingConfig(), store, nil)
	svc.baseURL = stripe.URL

	checkoutURL, err := svc.CreateCheckoutSession(context.Background(), user, database.TierPro)
	if err != nil {
		t.Fatalf("CreateCheckoutSession() error = %v", err)
	}

	if checkoutURL != "https://checkout.stripe.com/pay/cs_123" {
		t.Errorf("url = %q", checkoutURL)
	}
	if gotPath != "/checkout/sessions" {
		t.Errorf("final path = %q, want /checkout/sessions", gotPath)
	}
	if got := gotForm["line_items[0][price]"]; len(got) != 1 || got[0] != "price_pro" {
		t.Errorf("price = %v, want price_pro", got)
	}
	if got := gotForm["customer"]; len(got) != 1 || got[0] != "cus_new" {
		t.Errorf("customer = %v, want the newly created cus_new", got)
	}
	if user.StripeCustomerID != "cus_new" {
		t.Error("new customer ID should be saved on the user")
	}
}

func TestCreateCheckoutSessionFreeTierRejected(t *testing.T) {
	svc := NewStripeService(testBillingConfig(), newFakeBillingStore(), nil)

	_, err := svc.CreateCheckoutSession(context.Background(), &database.User{ID: "user-1"}, database.TierFree)
	if !errors.Is(err, ErrInvalidTier) {
		t.Errorf("CreateCheckoutSession() error = %v, want ErrInvalidTier", err)
	}
}

func TestCreateCheckoutSessionUnconfigured(t *testing.T) {
	svc := NewStripeService(config.BillingConfig{}, newFakeBillingStore(), nil)

	_, err := svc.CreateCheckoutSession(context.Background(), &database.User{ID: "user-1"}, database.TierPro)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("CreateCheckoutSession() error = %v, want ErrNotConfigured", err)
	}
}
