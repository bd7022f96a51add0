package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealio_backend/internal/models"
	"mealio_backend/internal/notify"
	"mealio_backend/internal/repositories"
	"mealio_backend/internal/services"
	"mealio_backend/internal/services/dto"
)

// ---------------- Fakes ----------------

type fakeNotificationStore struct {
	mu      sync.Mutex
	fail    bool
	created []*models.Notification
}

func (s *fakeNotificationStore) Create(n *models.Notification) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.New("store unavailable")
	}
	n.ID = "n-1"
	s.created = append(s.created, n)
	return n.ID, nil
}

func (s *fakeNotificationStore) ListFor(string) (*dto.NotificationListResponse, error) {
	return &dto.NotificationListResponse{}, nil
}
func (s *fakeNotificationStore) UnreadCount(string) (int64, error)       { return 0, nil }
func (s *fakeNotificationStore) MarkRead(string, string) error           { return nil }
func (s *fakeNotificationStore) MarkAllRead(string) error                { return nil }
func (s *fakeNotificationStore) Delete(string, string) error             { return nil }
func (s *fakeNotificationStore) SyncFromFeed(models.NotificationRecord) (bool, error) {
	return false, nil
}

type fakePreferences struct {
	prefs models.NotificationPreferences
	err   error
}

func (p *fakePreferences) Get(string) (models.NotificationPreferences, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.prefs != nil {
		return p.prefs, nil
	}
	// Mirror the registry's totality guarantee.
	out := make(models.NotificationPreferences)
	for _, t := range models.NotificationTypes {
		out[t] = services.DefaultSetting(t)
	}
	return out, nil
}

func (p *fakePreferences) Set(string, models.NotificationPreferences) error { return nil }

type fakeUsers struct {
	user *models.User
	err  error
}

func (u *fakeUsers) FindByID(string) (*models.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.user, nil
}

type recordingChannel struct {
	name models.Channel
	err  error

	mu       sync.Mutex
	requests []*notify.DeliveryRequest
}

func (c *recordingChannel) Name() models.Channel { return c.name }

func (c *recordingChannel) Deliver(_ context.Context, req *notify.DeliveryRequest) error {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.err
}

func (c *recordingChannel) deliveries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func testUser() *models.User {
	u := &models.User{Name: "Alice", Phone: "+15550100", Role: models.UserRoleCustomer}
	u.ID = "u1"
	return u
}

func waitDone(t *testing.T, d *notify.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
}

// ---------------- Tests ----------------

func TestDispatcher_PersistFailureAbortsFanOut(t *testing.T) {
	t.Parallel()

	inApp := &recordingChannel{name: models.ChannelInApp}
	d := notify.NewDispatcher(&fakeNotificationStore{fail: true}, &fakePreferences{}, &fakeUsers{user: testUser()}, inApp)

	_, err := d.Send(context.Background(), notify.Draft{
		RecipientID: "u1",
		Type:        models.NotificationTypeOrderStatus,
		Title:       "Order confirmed",
	})
	require.Error(t, err)
	waitDone(t, d)
	assert.Zero(t, inApp.deliveries(), "no delivery without a durable record")
}

func TestDispatcher_FanOutIsolation(t *testing.T) {
	t.Parallel()

	inApp := &recordingChannel{name: models.ChannelInApp}
	sms := &recordingChannel{name: models.ChannelSMS, err: errors.New("gateway timeout")}
	store := &fakeNotificationStore{}
	d := notify.NewDispatcher(store, &fakePreferences{}, &fakeUsers{user: testUser()}, inApp, sms)

	id, err := d.Send(context.Background(), notify.Draft{
		RecipientID: "u1",
		Type:        models.NotificationTypeOrderStatus,
		Title:       "Order confirmed",
		Message:     "Pickup at 18:00",
	})
	require.NoError(t, err, "a failing channel never surfaces to the caller")
	assert.Equal(t, "n-1", id)

	waitDone(t, d)
	assert.Equal(t, 1, inApp.deliveries(), "in-app delivery proceeds despite the sms failure")
	assert.Equal(t, 1, sms.deliveries())
	assert.Len(t, store.created, 1)
}

func TestDispatcher_PanickingChannelIsContained(t *testing.T) {
	t.Parallel()

	inApp := &recordingChannel{name: models.ChannelInApp}
	d := notify.NewDispatcher(&fakeNotificationStore{}, &fakePreferences{}, &fakeUsers{user: testUser()},
		panicChannel{}, inApp)

	_, err := d.Send(context.Background(), notify.Draft{
		RecipientID: "u1",
		Type:        models.NotificationTypeOrderStatus,
		Title:       "Order confirmed",
	})
	require.NoError(t, err)
	waitDone(t, d)
	assert.Equal(t, 1, inApp.deliveries())
}

type panicChannel struct{}

func (panicChannel) Name() models.Channel { return models.ChannelSMS }
func (panicChannel) Deliver(context.Context, *notify.DeliveryRequest) error {
	panic("boom")
}

func TestDispatcher_DisabledTypeStopsAfterPersist(t *testing.T) {
	t.Parallel()

	inApp := &recordingChannel{name: models.ChannelInApp}
	store := &fakeNotificationStore{}
	prefs := &fakePreferences{prefs: models.NotificationPreferences{
		models.NotificationTypeOrderStatus: {Enabled: false, Channels: []models.Channel{models.ChannelInApp}},
	}}
	d := notify.NewDispatcher(store, prefs, &fakeUsers{user: testUser()}, inApp)

	id, err := d.Send(context.Background(), notify.Draft{
		RecipientID: "u1",
		Type:        models.NotificationTypeOrderStatus,
		Title:       "Order confirmed",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id, "the record is stored for later retrieval")

	waitDone(t, d)
	assert.Zero(t, inApp.deliveries())
	assert.Len(t, store.created, 1)
}

func TestDispatcher_ChannelSelectionFollowsPreferences(t *testing.T) {
	t.Parallel()

	inApp := &recordingChannel{name: models.ChannelInApp}
	sms := &recordingChannel{name: models.ChannelSMS}
	prefs := &fakePreferences{prefs: models.NotificationPreferences{
		models.NotificationTypeSupportMessage: {Enabled: true, Channels: []models.Channel{models.ChannelInApp}},
	}}
	d := notify.NewDispatcher(&fakeNotificationStore{}, prefs, &fakeUsers{user: testUser()}, inApp, sms)

	_, err := d.Send(context.Background(), notify.Draft{
		RecipientID: "u1",
		Type:        models.NotificationTypeSupportMessage,
		Title:       "Support reply",
	})
	require.NoError(t, err)

	waitDone(t, d)
	assert.Equal(t, 1, inApp.deliveries())
	assert.Zero(t, sms.deliveries(), "sms not in the enabled channel set")
}

func TestDispatcher_PreferenceLookupFailureUsesDefaults(t *testing.T) {
	t.Parallel()

	inApp := &recordingChannel{name: models.ChannelInApp}
	sms := &recordingChannel{name: models.ChannelSMS}
	prefs := &fakePreferences{err: errors.New("registry down")}
	d := notify.NewDispatcher(&fakeNotificationStore{}, prefs, &fakeUsers{user: testUser()}, inApp, sms)

	_, err := d.Send(context.Background(), notify.Draft{
		RecipientID: "u1",
		Type:        models.NotificationTypeOrderStatus,
		Title:       "Order confirmed",
	})
	require.NoError(t, err)

	// Defaults for order_status: in_app + sms, enabled.
	waitDone(t, d)
	assert.Equal(t, 1, inApp.deliveries())
	assert.Equal(t, 1, sms.deliveries())
}

func TestDispatcher_VoiceOnlyForDeliveryUpdates(t *testing.T) {
	t.Parallel()

	voice := &recordingChannel{name: models.ChannelVoice}
	prefs := &fakePreferences{prefs: models.NotificationPreferences{
		models.NotificationTypeOrderStatus:    {Enabled: true, Channels: []models.Channel{models.ChannelVoice}},
		models.NotificationTypeDeliveryUpdate: {Enabled: true, Channels: []models.Channel{models.ChannelVoice}},
	}}
	d := notify.NewDispatcher(&fakeNotificationStore{}, prefs, &fakeUsers{user: testUser()}, voice)

	_, err := d.Send(context.Background(), notify.Draft{
		RecipientID: "u1",
		Type:        models.NotificationTypeOrderStatus,
		Title:       "Order confirmed",
	})
	require.NoError(t, err)
	waitDone(t, d)
	assert.Zero(t, voice.deliveries(), "voice suppressed outside delivery updates")

	_, err = d.Send(context.Background(), notify.Draft{
		RecipientID: "u1",
		Type:        models.NotificationTypeDeliveryUpdate,
		Title:       "Driver nearby",
	})
	require.NoError(t, err)
	waitDone(t, d)
	assert.Equal(t, 1, voice.deliveries())
}

func TestDispatcher_RecipientLookupFailureReachesChannels(t *testing.T) {
	t.Parallel()

	inApp := &recordingChannel{name: models.ChannelInApp}
	users := &fakeUsers{err: repositories.ErrUserNotFound}
	d := notify.NewDispatcher(&fakeNotificationStore{}, &fakePreferences{}, users, inApp)

	_, err := d.Send(context.Background(), notify.Draft{
		RecipientID: "ghost",
		Type:        models.NotificationTypeOrderStatus,
		Title:       "Order confirmed",
	})
	require.NoError(t, err)

	waitDone(t, d)
	require.Equal(t, 1, inApp.deliveries())
	inApp.mu.Lock()
	defer inApp.mu.Unlock()
	assert.Nil(t, inApp.requests[0].Recipient, "channels see a nil recipient and decide for themselves")
}

func TestSMSChannel_RequiresRecipientPhone(t *testing.T) {
	t.Parallel()

	ch := notify.NewSMSChannel(smsSenderFunc(func(context.Context, string, string) (bool, error) {
		t.Fatal("gateway must not be called")
		return false, nil
	}))

	n := &models.Notification{UserID: "u1", Type: models.NotificationTypeOrderStatus, Title: "x"}
	err := ch.Deliver(context.Background(), &notify.DeliveryRequest{Notification: n})
	assert.Error(t, err, "nil recipient")

	noPhone := &models.User{Name: "Bob"}
	err = ch.Deliver(context.Background(), &notify.DeliveryRequest{Notification: n, Recipient: noPhone})
	assert.Error(t, err, "recipient without a phone")
}

type smsSenderFunc func(ctx context.Context, phone, text string) (bool, error)

func (f smsSenderFunc) Send(ctx context.Context, phone, text string) (bool, error) {
	return f(ctx, phone, text)
}

func TestSMSChannel_SendsRenderedText(t *testing.T) {
	t.Parallel()

	var gotPhone, gotText string
	ch := notify.NewSMSChannel(smsSenderFunc(func(_ context.Context, phone, text string) (bool, error) {
		gotPhone, gotText = phone, text
		return true, nil
	}))

	n := &models.Notification{
		UserID:  "u1",
		Type:    models.NotificationTypeOrderStatus,
		Title:   "Order confirmed",
		Message: "Pickup at 18:00",
	}
	err := ch.Deliver(context.Background(), &notify.DeliveryRequest{Notification: n, Recipient: testUser()})
	require.NoError(t, err)
	assert.Equal(t, "+15550100", gotPhone)
	assert.Equal(t, "Order confirmed: Pickup at 18:00", gotText)
}

type contextReportingChannel struct {
	name   models.Channel
	result chan error
}

func (c *contextReportingChannel) Name() models.Channel { return c.name }

func (c *contextReportingChannel) Deliver(ctx context.Context, _ *notify.DeliveryRequest) error {
	select {
	case <-ctx.Done():
		c.result <- ctx.Err()
	case <-time.After(50 * time.Millisecond):
		c.result <- nil
	}
	return nil
}

func TestDispatcher_DeliveryOutlivesCallerContext(t *testing.T) {
	t.Parallel()

	sms := &contextReportingChannel{name: models.ChannelSMS, result: make(chan error, 1)}
	d := notify.NewDispatcher(&fakeNotificationStore{}, &fakePreferences{}, &fakeUsers{user: testUser()}, sms)

	ctx, cancel := context.WithCancel(context.Background())
	id, err := d.Send(ctx, notify.Draft{
		RecipientID: "u1",
		Type:        models.NotificationTypeOrderStatus,
		Title:       "Order confirmed",
		Message:     "Pickup at 18:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "n-1", id)

	// The HTTP layer cancels the request context the moment the handler
	// writes its response; in-flight deliveries must not inherit that.
	cancel()
	waitDone(t, d)

	select {
	case res := <-sms.result:
		assert.NoError(t, res, "delivery inherited the caller's cancellation")
	case <-time.After(time.Second):
		t.Fatal("delivery never finished")
	}
}
