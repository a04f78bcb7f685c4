package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/goldtouch/leadwire/internal/engine"
	"github.com/goldtouch/leadwire/internal/entity"
	"github.com/goldtouch/leadwire/internal/infra/integration/stripe"
)

type MockUnlockRepo struct{ mock.Mock }

func (m *MockUnlockRepo) Create(ctx context.Context, rec *entity.UnlockRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockUnlockRepo) FindByKey(ctx context.Context, leadID, providerID string) (*entity.UnlockRecord, error) {
	args := m.Called(ctx, leadID, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepo) FindByPaymentRef(ctx context.Context, ref string) (*entity.UnlockRecord, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepo) FindPendingByProvider(ctx context.Context, providerID string) ([]*entity.UnlockRecord, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepo) FindOpenByProvider(ctx context.Context, providerID string) ([]*entity.UnlockRecord, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepo) FindExpired(ctx context.Context, now time.Time, limit int) ([]*entity.UnlockRecord, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.UnlockRecord), args.Error(1)
}

func (m *MockUnlockRepo) CommitTransition(ctx context.Context, rec *entity.UnlockRecord, intents []*entity.EffectIntent) error {
	return m.Called(ctx, rec, intents).Error(0)
}

type MockEffectRepo struct{ mock.Mock }

func (m *MockEffectRepo) FindByID(ctx context.Context, id string) (*entity.EffectIntent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.EffectIntent), args.Error(1)
}

func (m *MockEffectRepo) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*entity.EffectIntent, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.EffectIntent), args.Error(1)
}

func (m *MockEffectRepo) MarkSent(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockEffectRepo) MarkEscalated(ctx context.Context, id string, attempts int) error {
	return m.Called(ctx, id, attempts).Error(0)
}

func (m *MockEffectRepo) IncrementAttempts(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockLeadRepo struct{ mock.Mock }

func (m *MockLeadRepo) Create(ctx context.Context, lead *entity.Lead) error {
	return m.Called(ctx, lead).Error(0)
}

func (m *MockLeadRepo) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

func (m *MockLeadRepo) GetLockedDetails(ctx context.Context, id string) (*entity.LockedDetails, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.LockedDetails), args.Error(1)
}

func (m *MockLeadRepo) MarkRevealed(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockProviderRepo struct{ mock.Mock }

func (m *MockProviderRepo) FindByID(ctx context.Context, id string) (*entity.Provider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Provider), args.Error(1)
}

func (m *MockProviderRepo) FindByPhone(ctx context.Context, phone string) (*entity.Provider, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Provider), args.Error(1)
}

func (m *MockProviderRepo) SetOptedOut(ctx context.Context, id string, optedOut bool) error {
	return m.Called(ctx, id, optedOut).Error(0)
}

type MockSMS struct{ mock.Mock }

func (m *MockSMS) SendSMS(ctx context.Context, phone, body string) error {
	return m.Called(ctx, phone, body).Error(0)
}

type MockGateway struct{ mock.Mock }

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, input stripe.CheckoutSessionInput) (string, string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockGateway) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

type MockMailer struct{ mock.Mock }

func (m *MockMailer) SendEscalation(effectID, kind, leadID, providerID string, attempts int, lastErr error) error {
	return m.Called(effectID, kind, leadID, providerID, attempts, lastErr).Error(0)
}

type MockQueuePublisher struct{ mock.Mock }

func (m *MockQueuePublisher) PublishEffect(ctx context.Context, intent *entity.EffectIntent) error {
	return m.Called(ctx, intent).Error(0)
}

type workerDeps struct {
	unlocks   *MockUnlockRepo
	effects   *MockEffectRepo
	leads     *MockLeadRepo
	providers *MockProviderRepo
	sms       *MockSMS
	gateway   *MockGateway
	mailer    *MockMailer
	publisher *MockQueuePublisher
}

func newTestWorker() (*Worker, *workerDeps) {
	d := &workerDeps{
		unlocks:   new(MockUnlockRepo),
		effects:   new(MockEffectRepo),
		leads:     new(MockLeadRepo),
		providers: new(MockProviderRepo),
		sms:       new(MockSMS),
		gateway:   new(MockGateway),
		mailer:    new(MockMailer),
		publisher: new(MockQueuePublisher),
	}
	router := engine.NewRouter(d.unlocks, d.leads, d.providers, d.effects, d.publisher)
	w := NewWorker(nil, d.effects, d.unlocks, d.leads, d.providers, d.sms, d.gateway, d.mailer, router)
	w.BackoffBase = time.Millisecond
	return w, d
}

func TestWorkerSendsTeaser(t *testing.T) {
	w, d := newTestWorker()
	ctx := context.Background()

	rec := entity.NewUnlockRecord("lead_a3f09c12", "prov_amy", 2000, "usd", 24)
	rec.State = entity.StateTeaserSent
	lead := &entity.Lead{ID: "lead_a3f09c12", City: "Austin", ServiceType: "plumbing"}
	provider := &entity.Provider{ID: "prov_amy", Name: "Amy", Phone: "15551230001"}
	intent := entity.NewEffectIntent(rec.LeadID, rec.ProviderID, entity.EffectSendTeaser)

	d.unlocks.On("FindByKey", mock.Anything, rec.LeadID, rec.ProviderID).Return(rec, nil)
	d.providers.On("FindByID", mock.Anything, "prov_amy").Return(provider, nil)
	d.leads.On("FindByID", mock.Anything, "lead_a3f09c12").Return(lead, nil)
	d.sms.On("SendSMS", mock.Anything, "15551230001", mock.Anything).Return(nil)
	d.unlocks.On("CommitTransition", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := w.execute(ctx, intent)
	assert.NoError(t, err)

	d.sms.AssertCalled(t, "SendSMS", mock.Anything, "15551230001", mock.MatchedBy(func(body string) bool {
		return len(body) > 0
	}))
	// The delivery ack advanced the record.
	assert.Equal(t, entity.StateAwaitingResponse, rec.State)
}

func TestWorkerRequestsPaymentLink(t *testing.T) {
	w, d := newTestWorker()
	ctx := context.Background()

	rec := entity.NewUnlockRecord("lead_a3f09c12", "prov_amy", 2000, "usd", 24)
	rec.State = entity.StatePaymentLinkRequested
	provider := &entity.Provider{ID: "prov_amy", Phone: "15551230001"}
	intent := entity.NewEffectIntent(rec.LeadID, rec.ProviderID, entity.EffectRequestPayLink)

	d.unlocks.On("FindByKey", mock.Anything, rec.LeadID, rec.ProviderID).Return(rec, nil)
	d.providers.On("FindByID", mock.Anything, "prov_amy").Return(provider, nil)
	d.gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(in stripe.CheckoutSessionInput) bool {
		return in.AmountCents == 2000 && in.LeadID == "lead_a3f09c12" && in.IdempotencyKey == rec.IdempotencyKey
	})).Return("cs_123", "https://pay.example/cs_123", nil)
	d.unlocks.On("CommitTransition", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	d.publisher.On("PublishEffect", mock.Anything, mock.Anything).Return(nil)

	err := w.execute(ctx, intent)
	assert.NoError(t, err)

	assert.Equal(t, entity.StatePaymentLinkSent, rec.State)
	assert.Equal(t, "cs_123", rec.PaymentLinkRef)
	d.publisher.AssertCalled(t, "PublishEffect", mock.Anything, mock.MatchedBy(func(it *entity.EffectIntent) bool {
		return it.Kind == entity.EffectSendPaymentLink
	}))
}

func TestWorkerRevealGuard(t *testing.T) {
	w, d := newTestWorker()
	ctx := context.Background()

	// A reveal intent somehow raced a record that is not PAID yet: the
	// locked details must not leave the store.
	rec := entity.NewUnlockRecord("lead_a3f09c12", "prov_amy", 2000, "usd", 24)
	rec.State = entity.StateAwaitingPayment
	provider := &entity.Provider{ID: "prov_amy", Phone: "15551230001"}
	intent := entity.NewEffectIntent(rec.LeadID, rec.ProviderID, entity.EffectSendReveal)

	d.unlocks.On("FindByKey", mock.Anything, rec.LeadID, rec.ProviderID).Return(rec, nil)
	d.providers.On("FindByID", mock.Anything, "prov_amy").Return(provider, nil)

	err := w.execute(ctx, intent)
	assert.NoError(t, err)

	d.leads.AssertNotCalled(t, "GetLockedDetails", mock.Anything, mock.Anything)
	d.sms.AssertNotCalled(t, "SendSMS", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkerRevealSendsLockedDetails(t *testing.T) {
	w, d := newTestWorker()
	ctx := context.Background()

	rec := entity.NewUnlockRecord("lead_a3f09c12", "prov_amy", 2000, "usd", 24)
	rec.State = entity.StatePaid
	provider := &entity.Provider{ID: "prov_amy", Name: "Amy", Phone: "15551230001"}
	intent := entity.NewEffectIntent(rec.LeadID, rec.ProviderID, entity.EffectSendReveal)

	d.unlocks.On("FindByKey", mock.Anything, rec.LeadID, rec.ProviderID).Return(rec, nil)
	d.providers.On("FindByID", mock.Anything, "prov_amy").Return(provider, nil)
	d.leads.On("GetLockedDetails", mock.Anything, "lead_a3f09c12").Return(&entity.LockedDetails{
		ClientName:  "Dana Smith",
		ClientPhone: "15559876543",
	}, nil)
	d.sms.On("SendSMS", mock.Anything, "15551230001", mock.MatchedBy(func(body string) bool {
		return len(body) > 0
	})).Return(nil)
	d.leads.On("MarkRevealed", mock.Anything, "lead_a3f09c12").Return(nil)
	d.unlocks.On("CommitTransition", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := w.execute(ctx, intent)
	assert.NoError(t, err)

	assert.Equal(t, entity.StateRevealed, rec.State)
	d.leads.AssertCalled(t, "MarkRevealed", mock.Anything, "lead_a3f09c12")
}

func TestWorkerRetriesThenEscalates(t *testing.T) {
	w, d := newTestWorker()
	w.MaxAttempts = 3
	ctx := context.Background()

	rec := entity.NewUnlockRecord("lead_a3f09c12", "prov_amy", 2000, "usd", 24)
	rec.State = entity.StateTeaserSent
	lead := &entity.Lead{ID: "lead_a3f09c12", City: "Austin"}
	provider := &entity.Provider{ID: "prov_amy", Phone: "15551230001"}
	intent := entity.NewEffectIntent(rec.LeadID, rec.ProviderID, entity.EffectSendTeaser)

	d.unlocks.On("FindByKey", mock.Anything, rec.LeadID, rec.ProviderID).Return(rec, nil)
	d.providers.On("FindByID", mock.Anything, "prov_amy").Return(provider, nil)
	d.leads.On("FindByID", mock.Anything, "lead_a3f09c12").Return(lead, nil)
	d.sms.On("SendSMS", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	d.effects.On("IncrementAttempts", mock.Anything, intent.ID).Return(nil)

	err := w.processWithRetry(ctx, intent)
	assert.Error(t, err)
	d.sms.AssertNumberOfCalls(t, "SendSMS", 3)
	d.effects.AssertNumberOfCalls(t, "IncrementAttempts", 3)

	// Escalation: mark the row, page a human, fail the offer.
	d.effects.On("MarkEscalated", mock.Anything, intent.ID, 3).Return(nil)
	d.mailer.On("SendEscalation", intent.ID, string(intent.Kind), rec.LeadID, rec.ProviderID, 3, mock.Anything).Return(nil)
	d.unlocks.On("CommitTransition", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	w.escalate(ctx, intent, err)

	d.mailer.AssertExpectations(t)
	assert.Equal(t, entity.StateFailed, rec.State)
}

type fakeAcker struct {
	acked  bool
	nacked bool
}

func (a *fakeAcker) Ack(tag uint64, multiple bool) error { a.acked = true; return nil }
func (a *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	return nil
}
func (a *fakeAcker) Reject(tag uint64, requeue bool) error { a.nacked = true; return nil }

func TestWorkerAcksAlreadySentEffect(t *testing.T) {
	w, d := newTestWorker()
	ctx := context.Background()

	intent := entity.NewEffectIntent("lead_a3f09c12", "prov_amy", entity.EffectSendTeaser)
	intent.Status = entity.EffectSent
	d.effects.On("FindByID", mock.Anything, intent.ID).Return(intent, nil)

	body, _ := json.Marshal(EffectMessage{
		EffectID:   intent.ID,
		LeadID:     intent.LeadID,
		ProviderID: intent.ProviderID,
		Kind:       string(intent.Kind),
	})
	acker := &fakeAcker{}
	w.handleDelivery(ctx, amqp.Delivery{Acknowledger: acker, Body: body})

	assert.True(t, acker.acked, "replayed effects are acked without re-sending")
	d.sms.AssertNotCalled(t, "SendSMS", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkerDeadLettersMalformedMessage(t *testing.T) {
	w, _ := newTestWorker()

	acker := &fakeAcker{}
	w.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: acker, Body: []byte("{broken")})

	assert.True(t, acker.nacked)
}
