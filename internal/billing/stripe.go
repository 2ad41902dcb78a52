// Package billing integrates with Stripe for subscription management. All
// tier changes flow through webhooks so the database tracks what Stripe
// believes, not what the UI last requested.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chartpilot/config"
	"chartpilot/internal/database"
	"chartpilot/internal/events"
	"chartpilot/internal/logging"
)

// ErrNotConfigured is returned when Stripe credentials are missing
var ErrNotConfigured = errors.New("billing is not configured")

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrInvalidTier is returned for checkout requests against a tier with no
// Stripe price.
var ErrInvalidTier = errors.New("tier cannot be purchased")

// Store is the repository surface billing needs. Implemented by
// *database.Repository.
type Store interface {
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*database.User, error)
	UpdateUser(ctx context.Context, user *database.User) error
	UpdateUserTier(ctx context.Context, userID string, tier database.SubscriptionTier, status database.SubscriptionStatus) error
}

// StripeService handles Stripe checkout, portal, and webhook processing
type StripeService struct {
	cfg        config.BillingConfig
	repo       Store
	bus        *events.EventBus
	httpClient *http.Client
	baseURL    string
	logger     *logging.Logger
}

// NewStripeService creates a new Stripe service
func NewStripeService(cfg config.BillingConfig, repo Store, bus *events.EventBus) *StripeService {
	return &StripeService{
		cfg:        cfg,
		repo:       repo,
		bus:        bus,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.stripe.com/v1",
		logger:     logging.WithComponent("billing"),
	}
}

// IsConfigured returns true if Stripe is properly configured
func (s *StripeService) IsConfigured() bool {
	return s.cfg.Enabled && s.cfg.StripeSecretKey != "" && s.cfg.StripeWebhookSecret != ""
}

// PublishableKey returns the key the frontend embeds in Stripe.js
func (s *StripeService) PublishableKey() string {
	return s.cfg.StripePublishableKey
}

// CreateCheckoutSession starts a Stripe Checkout flow for upgrading the
// user to a paid tier. Returns the hosted checkout URL.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, user *database.User, tier database.SubscriptionTier) (string, error) {
	if !s.IsConfigured() {
		return "", ErrNotConfigured
	}

	priceID := s.priceIDForTier(tier)
	if priceID == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidTier, tier)
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	data := url.Values{}
	data.Set("customer", customerID)
	data.Set("mode", "subscription")
	data.Set("client_reference_id", user.ID)
	data.Set("success_url", s.cfg.SuccessURL)
	data.Set("cancel_url", s.cfg.CancelURL)
	data.Set("line_items[0][price]", priceID)
	data.Set("line_items[0][quantity]", "1")

	resp, err := s.makeRequest(ctx, http.MethodPost, "/checkout/sessions", data)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	var session struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp, &session); err != nil {
		return "", fmt.Errorf("failed to parse session response: %w", err)
	}

	return session.URL, nil
}

// CreatePortalSession opens the Stripe Customer Portal where users manage
// payment methods and cancellation
func (s *StripeService) CreatePortalSession(ctx context.Context, user *database.User) (string, error) {
	if !s.IsConfigured() {
		return "", ErrNotConfigured
	}
	if user.StripeCustomerID == "" {
		return "", fmt.Errorf("user has no billing account")
	}

	data := url.Values{}
	data.Set("customer", user.StripeCustomerID)
	data.Set("return_url", s.cfg.PortalReturnURL)

	resp, err := s.makeRequest(ctx, http.MethodPost, "/billing_portal/sessions", data)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}

	var session struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(resp, &session); err != nil {
		return "", fmt.Errorf("failed to parse session response: %w", err)
	}

	return session.URL, nil
}

// ensureCustomer returns the user's Stripe customer ID, creating the
// customer on first checkout
func (s *StripeService) ensureCustomer(ctx context.Context, user *database.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	data := url.Values{}
	data.Set("email", user.Email)
	if user.Name != "" {
		data.Set("name", user.Name)
	}
	data.Set("metadata[user_id]", user.ID)

	resp, err := s.makeRequest(ctx, http.MethodPost, "/customers", data)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	var customer struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp, &customer); err != nil {
		return "", fmt.Errorf("failed to parse customer response: %w", err)
	}

	user.StripeCustomerID = customer.ID
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		s.logger.WithError(err).Warn("Failed to save Stripe customer ID")
	}

	return customer.ID, nil
}

// webhookEvent represents a Stripe webhook event envelope
type webhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// subscriptionObject is the subset of a Stripe subscription the handlers
// need
type subscriptionObject struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// HandleWebhook verifies and processes a Stripe webhook event
func (s *StripeService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.verifySignature(payload, signature) {
		return ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse webhook event: %w", err)
	}

	s.logger.WithField("event_type", event.Type).Debug("Processing Stripe webhook")

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		return s.handleSubscriptionChanged(ctx, event.Data.Object)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event.Data.Object)
	case "invoice.paid":
		return s.handleInvoicePaid(ctx, event.Data.Object)
	case "invoice.payment_failed":
		return s.handleInvoicePaymentFailed(ctx, event.Data.Object)
	default:
		s.logger.WithField("event_type", event.Type).Debug("Ignoring webhook event type")
	}

	return nil
}

// handleSubscriptionChanged syncs tier, status, and expiry from a created
// or updated subscription
func (s *StripeService) handleSubscriptionChanged(ctx context.Context, object json.RawMessage) error {
	var sub subscriptionObject
	if err := json.Unmarshal(object, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	user, err := s.repo.GetUserByStripeCustomerID(ctx, sub.Customer)
	if err != nil {
		return err
	}
	if user == nil {
		s.logger.WithField("customer_id", sub.Customer).Warn("Webhook for unknown customer")
		return nil
	}

	tier := user.SubscriptionTier
	if len(sub.Items.Data) > 0 {
		if mapped, ok := s.tierForPriceID(sub.Items.Data[0].Price.ID); ok {
			tier = mapped
		}
	}

	user.SubscriptionTier = tier
	user.SubscriptionStatus = mapStripeStatus(sub.Status)
	user.StripeSubscriptionID = sub.ID
	if sub.CurrentPeriodEnd > 0 {
		expires := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		user.SubscriptionExpiresAt = &expires
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to sync subscription: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"tier":    string(tier),
		"status":  sub.Status,
	}).Info("Subscription synced from Stripe")

	if s.bus != nil {
		s.bus.PublishSubscriptionUpdated(user.ID, string(tier), string(user.SubscriptionStatus))
	}

	return nil
}

// handleSubscriptionDeleted downgrades the user to the free tier. This
// runs unconditionally; a deleted subscription has no paid tier to keep.
func (s *StripeService) handleSubscriptionDeleted(ctx context.Context, object json.RawMessage) error {
	var sub subscriptionObject
	if err := json.Unmarshal(object, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	user, err := s.repo.GetUserByStripeCustomerID(ctx, sub.Customer)
	if err != nil {
		return err
	}
	if user == nil {
		s.logger.WithField("customer_id", sub.Customer).Warn("Webhook for unknown customer")
		return nil
	}

	user.SubscriptionTier = database.TierFree
	user.SubscriptionStatus = database.StatusCancelled
	user.StripeSubscriptionID = ""
	user.SubscriptionExpiresAt = nil

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to downgrade user: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("Subscription deleted, user downgraded to free")

	if s.bus != nil {
		s.bus.PublishSubscriptionUpdated(user.ID, string(database.TierFree), string(database.StatusCancelled))
	}

	return nil
}

// handleInvoicePaid marks the subscription healthy again after a
// successful charge
func (s *StripeService) handleInvoicePaid(ctx context.Context, object json.RawMessage) error {
	var invoice struct {
		ID       string `json:"id"`
		Customer string `json:"customer"`
	}
	if err := json.Unmarshal(object, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice: %w", err)
	}

	user, err := s.repo.GetUserByStripeCustomerID(ctx, invoice.Customer)
	if err != nil || user == nil {
		return err
	}

	if user.SubscriptionStatus != database.StatusActive {
		if err := s.repo.UpdateUserTier(ctx, user.ID, user.SubscriptionTier, database.StatusActive); err != nil {
			return err
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":    user.ID,
		"invoice_id": invoice.ID,
	}).Debug("Invoice paid")

	return nil
}

// handleInvoicePaymentFailed flags the subscription past due. Stripe keeps
// retrying; the deleted webhook arrives if every retry fails.
func (s *StripeService) handleInvoicePaymentFailed(ctx context.Context, object json.RawMessage) error {
	var invoice struct {
		ID       string `json:"id"`
		Customer string `json:"customer"`
	}
	if err := json.Unmarshal(object, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice: %w", err)
	}

	user, err := s.repo.GetUserByStripeCustomerID(ctx, invoice.Customer)
	if err != nil || user == nil {
		return err
	}

	if err := s.repo.UpdateUserTier(ctx, user.ID, user.SubscriptionTier, database.StatusPastDue); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":    user.ID,
		"invoice_id": invoice.ID,
	}).Warn("Invoice payment failed, subscription past due")

	return nil
}

// mapStripeStatus converts a Stripe subscription status to ours
func mapStripeStatus(status string) database.SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return database.StatusActive
	case "past_due":
		return database.StatusPastDue
	case "canceled", "incomplete_expired":
		return database.StatusCancelled
	case "unpaid":
		return database.StatusSuspended
	default:
		return database.StatusActive
	}
}

// priceIDForTier returns the configured Stripe price for a paid tier
func (s *StripeService) priceIDForTier(tier database.SubscriptionTier) string {
	switch tier {
	case database.TierTrader:
		return s.cfg.TraderPriceID
	case database.TierPro:
		return s.cfg.ProPriceID
	case database.TierWhale:
		return s.cfg.WhalePriceID
	default:
		return ""
	}
}

// tierForPriceID maps a Stripe price back to the tier it sells
func (s *StripeService) tierForPriceID(priceID string) (database.SubscriptionTier, bool) {
	switch priceID {
	case "":
		return "", false
	case s.cfg.TraderPriceID:
		return database.TierTrader, true
	case s.cfg.ProPriceID:
		return database.TierPro, true
	case s.cfg.WhalePriceID:
		return database.TierWhale, true
	default:
		return "", false
	}
}

// makeRequest makes an authenticated form-encoded request to the Stripe API
func (s *StripeService) makeRequest(ctx context.Context, method, path string, data url.Values) ([]byte, error) {
	endpoint := s.baseURL + path

	var req *http.Request
	var err error
	if method == http.MethodGet {
		if len(data) > 0 {
			endpoint += "?" + data.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(data.Encode()))
	}
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(s.cfg.StripeSecretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe API error: %s: %s", resp.Status, string(body))
	}

	return body, nil
}

// verifySignature checks the Stripe-Signature header. The header carries a
// timestamp and one or more v1 HMAC-SHA256 signatures over
// "<timestamp>.<payload>".
func (s *StripeService) verifySignature(payload []byte, signatureHeader string) bool {
	if s.cfg.StripeWebhookSecret == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.StripeWebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}

	return false
}
