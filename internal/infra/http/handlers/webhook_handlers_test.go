package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/goldtouch/leadwire/internal/engine"
	"github.com/goldtouch/leadwire/internal/entity"
	"github.com/goldtouch/leadwire/internal/infra/integration/stripe"
)

// MockUnlockRepository - mock for entity.UnlockRepositoryInterface
type MockUnlockRepository struct {
	mock.Mock
}

func (m *MockUnlockRepository) Create(ctx context.Context, rec *entity.UnlockRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockUnlockRepository) FindByKey(ctx context.Context, leadID, providerID string) (*entity.UnlockRecord, error) {
	args := m.Called(ctx, leadID, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepository) FindByPaymentRef(ctx context.Context, ref string) (*entity.UnlockRecord, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepository) FindPendingByProvider(ctx context.Context, providerID string) ([]*entity.UnlockRecord, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepository) FindOpenByProvider(ctx context.Context, providerID string) ([]*entity.UnlockRecord, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.UnlockRecord, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepository) CommitTransition(ctx context.Context, rec *entity.UnlockRecord, intents []*entity.EffectIntent) error {
	args := m.Called(ctx, rec, intents)
	return args.Error(0)
}

// MockProviderRepository - mock for entity.ProviderRepositoryInterface
type MockProviderRepository struct {
	mock.Mock
}

func (m *MockProviderRepository) FindByID(ctx context.Context, id string) (*entity.Provider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Provider), args.Error(1)
}

func (m *MockProviderRepository) FindByPhone(ctx context.Context, phone string) (*entity.Provider, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Provider), args.Error(1)
}

func (m *MockProviderRepository) SetOptedOut(ctx context.Context, id string, optedOut bool) error {
	args := m.Called(ctx, id, optedOut)
	return args.Error(0)
}

// MockLeadRepository - mock for entity.LeadRepositoryInterface
type MockLeadRepository struct {
	mock.Mock
}

func (m *MockLeadRepository) Create(ctx context.Context, lead *entity.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

func (m *MockLeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

func (m *MockLeadRepository) GetLockedDetails(ctx context.Context, id string) (*entity.LockedDetails, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.LockedDetails), args.Error(1)
}

func (m *MockLeadRepository) MarkRevealed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockEffectRepository - mock for entity.EffectRepositoryInterface
type MockEffectRepository struct {
	mock.Mock
}

func (m *MockEffectRepository) FindByID(ctx context.Context, id string) (*entity.EffectIntent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.EffectIntent), args.Error(1)
}

func (m *MockEffectRepository) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.EffectIntent, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.EffectIntent), args.Error(1)
}

func (m *MockEffectRepository) MarkSent(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEffectRepository) MarkEscalated(ctx context.Context, id string, attempts int) error {
	args := m.Called(ctx, id, attempts)
	return args.Error(0)
}

func (m *MockEffectRepository) IncrementAttempts(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockPublisher - mock for engine.EffectPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEffect(ctx context.Context, intent *entity.EffectIntent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

func newMockedRouter() (*engine.Router, *MockUnlockRepository, *MockProviderRepository, *MockPublisher) {
	unlocks := new(MockUnlockRepository)
	providers := new(MockProviderRepository)
	leads := new(MockLeadRepository)
	effects := new(MockEffectRepository)
	publisher := new(MockPublisher)
	router := engine.NewRouter(unlocks, leads, providers, effects, publisher)
	return router, unlocks, providers, publisher
}

func TestStripeWebhookHandler(t *testing.T) {
	secret := "whsec_test"

	eventBody := func(eventType, sessionID string) []byte {
		body, _ := json.Marshal(map[string]any{
			"id":   "evt_1",
			"type": eventType,
			"data": map[string]any{
				"object": map[string]any{
					"id":             sessionID,
					"payment_intent": "pi_1",
					"payment_status": "paid",
				},
			},
		})
		return body
	}

	t.Run("rejects missing signature", func(t *testing.T) {
		router, _, _, _ := newMockedRouter()
		handler := NewStripeWebhookHandler(router, secret)

		req := httptest.NewRequest("POST", "/webhook/stripe", bytes.NewReader(eventBody("checkout.session.completed", "cs_1")))
		w := httptest.NewRecorder()

		handler.Handle(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects tampered payload", func(t *testing.T) {
		router, _, _, _ := newMockedRouter()
		handler := NewStripeWebhookHandler(router, secret)

		body := eventBody("checkout.session.completed", "cs_1")
		header := stripe.SignPayload(body, secret, time.Now())
		tampered := bytes.Replace(body, []byte("cs_1"), []byte("cs_2"), 1)

		req := httptest.NewRequest("POST", "/webhook/stripe", bytes.NewReader(tampered))
		req.Header.Set("Stripe-Signature", header)
		w := httptest.NewRecorder()

		handler.Handle(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("acks unknown session without retrying", func(t *testing.T) {
		router, unlocks, _, _ := newMockedRouter()
		handler := NewStripeWebhookHandler(router, secret)

		unlocks.On("FindByPaymentRef", mock.Anything, "cs_ghost").Return(nil, entity.ErrUnlockNotFound)

		body := eventBody("checkout.session.completed", "cs_ghost")
		req := httptest.NewRequest("POST", "/webhook/stripe", bytes.NewReader(body))
		req.Header.Set("Stripe-Signature", stripe.SignPayload(body, secret, time.Now()))
		w := httptest.NewRecorder()

		handler.Handle(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "unknown sessions must be acked, not retried into failure")
	})

	t.Run("ignores non-checkout events", func(t *testing.T) {
		router, unlocks, _, _ := newMockedRouter()
		handler := NewStripeWebhookHandler(router, secret)

		body := eventBody("invoice.paid", "in_1")
		req := httptest.NewRequest("POST", "/webhook/stripe", bytes.NewReader(body))
		req.Header.Set("Stripe-Signature", stripe.SignPayload(body, secret, time.Now()))
		w := httptest.NewRecorder()

		handler.Handle(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		unlocks.AssertNotCalled(t, "FindByPaymentRef", mock.Anything, mock.Anything)
	})

	t.Run("confirms payment on matching record", func(t *testing.T) {
		router, unlocks, _, publisher := newMockedRouter()
		handler := NewStripeWebhookHandler(router, secret)

		rec := entity.NewUnlockRecord("lead_a3f09c12", "prov_amy", 2000, "usd", 24)
		rec.State = entity.StateAwaitingPayment
		rec.PaymentLinkRef = "cs_123"

		unlocks.On("FindByPaymentRef", mock.Anything, "cs_123").Return(rec, nil)
		unlocks.On("FindByKey", mock.Anything, "lead_a3f09c12", "prov_amy").Return(rec, nil)
		unlocks.On("CommitTransition", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		publisher.On("PublishEffect", mock.Anything, mock.Anything).Return(nil)

		body := eventBody("checkout.session.completed", "cs_123")
		req := httptest.NewRequest("POST", "/webhook/stripe", bytes.NewReader(body))
		req.Header.Set("Stripe-Signature", stripe.SignPayload(body, secret, time.Now()))
		w := httptest.NewRecorder()

		handler.Handle(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, entity.StatePaid, rec.State)
		publisher.AssertCalled(t, "PublishEffect", mock.Anything, mock.MatchedBy(func(it *entity.EffectIntent) bool {
			return it.Kind == entity.EffectSendReveal
		}))
	})
}

func TestSMSWebhookHandler(t *testing.T) {
	t.Run("GET validation probe", func(t *testing.T) {
		router, _, _, _ := newMockedRouter()
		handler := NewSMSWebhookHandler(router, "15550009999")

		req := httptest.NewRequest("GET", "/webhook/sms", nil)
		w := httptest.NewRecorder()

		handler.Validate(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		router, _, _, _ := newMockedRouter()
		handler := NewSMSWebhookHandler(router, "15550009999")

		req := httptest.NewRequest("POST", "/webhook/sms", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()

		handler.Receive(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects missing sender", func(t *testing.T) {
		router, _, _, _ := newMockedRouter()
		handler := NewSMSWebhookHandler(router, "15550009999")

		body, _ := json.Marshal(map[string]string{"text": "Y"})
		req := httptest.NewRequest("POST", "/webhook/sms", bytes.NewReader(body))
		w := httptest.NewRecorder()

		handler.Receive(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ignores traffic for a foreign number", func(t *testing.T) {
		router, _, providers, _ := newMockedRouter()
		handler := NewSMSWebhookHandler(router, "15550009999")

		body, _ := json.Marshal(map[string]string{
			"sender":   "15551230001",
			"receiver": "15557770000",
			"text":     "Y",
		})
		req := httptest.NewRequest("POST", "/webhook/sms", bytes.NewReader(body))
		w := httptest.NewRecorder()

		handler.Receive(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		providers.AssertNotCalled(t, "FindByPhone", mock.Anything, mock.Anything)
	})

	t.Run("acks replies from unknown numbers", func(t *testing.T) {
		router, _, providers, _ := newMockedRouter()
		handler := NewSMSWebhookHandler(router, "15550009999")

		providers.On("FindByPhone", mock.Anything, "19990000000").Return(nil, entity.ErrProviderNotFound)

		body, _ := json.Marshal(map[string]string{
			"sender":   "+19990000000",
			"receiver": "15550009999",
			"text":     "Y",
		})
		req := httptest.NewRequest("POST", "/webhook/sms", bytes.NewReader(body))
		w := httptest.NewRecorder()

		handler.Receive(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("returns 500 on storage failure so the gateway retries", func(t *testing.T) {
		router, _, providers, _ := newMockedRouter()
		handler := NewSMSWebhookHandler(router, "15550009999")

		providers.On("FindByPhone", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("connection refused"))

		body, _ := json.Marshal(map[string]string{
			"sender":   "15551230001",
			"receiver": "15550009999",
			"text":     "Y",
		})
		req := httptest.NewRequest("POST", "/webhook/sms", bytes.NewReader(body))
		w := httptest.NewRecorder()

		handler.Receive(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
