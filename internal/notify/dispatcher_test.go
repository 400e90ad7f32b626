package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uberfix/fixhooks/internal/maintenance"
)

type fakeStore struct {
	mu            sync.Mutex
	notifications []maintenance.Notification
	flags         map[string]bool
	logs          []maintenance.MessageLog
	insertErr     error
	id            uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{flags: map[string]bool{}, id: uuid.New()}
}

func (s *fakeStore) InsertNotification(_ context.Context, n maintenance.Notification) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return uuid.Nil, s.insertErr
	}
	s.notifications = append(s.notifications, n)
	return s.id, nil
}

func (s *fakeStore) SetDeliveryFlag(_ context.Context, id uuid.UUID, flag string, delivered bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.id {
		return maintenance.ErrNotificationGone
	}
	s.flags[flag] = delivered
	return nil
}

func (s *fakeStore) InsertMessageLog(_ context.Context, m maintenance.MessageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, m)
	return nil
}

type fakeTexts struct {
	mu   sync.Mutex
	sent map[Channel][]TextMessage
	errs map[Channel]error
}

func (f *fakeTexts) SendText(_ context.Context, ch Channel, msg TextMessage) (Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[Channel][]TextMessage{}
	}
	f.sent[ch] = append(f.sent[ch], msg)
	if err := f.errs[ch]; err != nil {
		return Delivery{Provider: "twilio"}, err
	}
	return Delivery{Provider: "twilio", MessageID: "SM" + string(ch), To: msg.To}, nil
}

type fakeMailer struct {
	sent []Email
	err  error
}

func (f *fakeMailer) SendEmail(_ context.Context, e Email) (string, error) {
	f.sent = append(f.sent, e)
	if f.err != nil {
		return "", f.err
	}
	return "email-1", nil
}

type fakeDedup struct {
	seen     map[string]bool
	err      error
	released []string
}

func (f *fakeDedup) Claim(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeDedup) Release(_ context.Context, key string) error {
	delete(f.seen, key)
	f.released = append(f.released, key)
	return nil
}

func TestDispatch_EmailFailsSMSSucceeds(t *testing.T) {
	store := newFakeStore()
	texts := &fakeTexts{}
	mailer := &fakeMailer{err: errors.New("resend: 422 invalid from")}
	d := NewDispatcher(store, texts, mailer, DispatcherConfig{})

	res, err := d.Dispatch(context.Background(), Request{
		Type:           EventStatusUpdated,
		RecipientID:    uuid.New(),
		RecipientEmail: "owner@example.com",
		RecipientPhone: "01012345678",
		Channels:       []Channel{ChannelEmail, ChannelSMS},
		Data:           Data{RequestTitle: "AC", OldStatus: "Open", NewStatus: "In Progress"},
	})
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.NotNil(t, res.Results.Email)
	assert.False(t, res.Results.Email.Success)
	assert.NotEmpty(t, res.Results.Email.Error)
	require.NotNil(t, res.Results.SMS)
	assert.True(t, res.Results.SMS.Success)
	assert.Nil(t, res.Results.InApp)
	assert.Nil(t, res.Results.WhatsApp)

	// No in-app record means no flag write-back.
	assert.Empty(t, store.flags)
	require.Len(t, texts.sent[ChannelSMS], 1)
	assert.Equal(t, `تم تحديث حالة طلب "AC" من Open إلى In Progress`, texts.sent[ChannelSMS][0].Body)
}

func TestDispatch_UnknownTypeHasNoSideEffects(t *testing.T) {
	store := newFakeStore()
	texts := &fakeTexts{}
	mailer := &fakeMailer{}
	dedup := &fakeDedup{}
	d := NewDispatcher(store, texts, mailer, DispatcherConfig{Dedup: dedup})

	_, err := d.Dispatch(context.Background(), Request{
		Type:           "request_exploded",
		RecipientID:    uuid.New(),
		RecipientEmail: "a@example.com",
		RecipientPhone: "+201000000000",
		Channels:       []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelWhatsApp},
		DedupKey:       "k1",
	})
	require.ErrorIs(t, err, ErrUnknownEventType)

	assert.Empty(t, store.notifications)
	assert.Empty(t, store.logs)
	assert.Empty(t, texts.sent)
	assert.Empty(t, mailer.sent)
	assert.Empty(t, dedup.seen)
}

func TestDispatch_InAppFirstThenFlags(t *testing.T) {
	store := newFakeStore()
	texts := &fakeTexts{errs: map[Channel]error{ChannelWhatsApp: errors.New("status 400")}}
	d := NewDispatcher(store, texts, nil, DispatcherConfig{})
	requestID := uuid.New()

	res, err := d.Dispatch(context.Background(), Request{
		Type:           EventSLAWarning,
		RequestID:      &requestID,
		RecipientID:    uuid.New(),
		RecipientPhone: "+201000000000",
		Channels:       []Channel{ChannelInApp, ChannelSMS, ChannelWhatsApp},
		Data:           Data{RequestTitle: "Pump"},
	})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.Results.InApp.Success)
	assert.True(t, res.Results.SMS.Success)
	assert.False(t, res.Results.WhatsApp.Success)

	require.Len(t, store.notifications, 1)
	n := store.notifications[0]
	assert.Equal(t, "warning", n.Type)
	assert.Equal(t, "maintenance_request", n.EntityType)
	assert.Equal(t, &requestID, n.EntityID)
	assert.Equal(t, "⚠️ تنبيه SLA", n.Title)

	assert.Equal(t, map[string]bool{maintenance.FlagSMSSent: true, maintenance.FlagWhatsAppSent: false}, store.flags)

	require.Len(t, store.logs, 2)
	statuses := map[string]string{}
	for _, l := range store.logs {
		statuses[l.MessageType] = l.Status
		assert.Equal(t, &requestID, l.RequestID)
	}
	assert.Equal(t, map[string]string{"sms": "sent", "whatsapp": "failed"}, statuses)
}

func TestDispatch_InAppFailureSkipsFlags(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("connection reset")
	texts := &fakeTexts{}
	d := NewDispatcher(store, texts, nil, DispatcherConfig{})

	res, err := d.Dispatch(context.Background(), Request{
		Type:           EventRequestCompleted,
		RecipientID:    uuid.New(),
		RecipientPhone: "+201000000000",
		Channels:       []Channel{ChannelInApp, ChannelSMS},
	})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.False(t, res.Results.InApp.Success)
	assert.True(t, res.Results.SMS.Success)
	assert.Empty(t, store.flags)
}

func TestDispatch_DefaultsToInApp(t *testing.T) {
	store := newFakeStore()
	d := NewDispatcher(store, nil, nil, DispatcherConfig{})

	res, err := d.Dispatch(context.Background(), Request{Type: EventRequestCreated, RecipientID: uuid.New()})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.NotNil(t, res.Results.InApp)
	assert.Nil(t, res.Results.Email)
	require.Len(t, store.notifications, 1)
	assert.Equal(t, "info", store.notifications[0].Type)
}

func TestDispatch_MissingContactSkipsChannel(t *testing.T) {
	store := newFakeStore()
	texts := &fakeTexts{}
	mailer := &fakeMailer{}
	d := NewDispatcher(store, texts, mailer, DispatcherConfig{})

	res, err := d.Dispatch(context.Background(), Request{
		Type:        EventVendorAssigned,
		RecipientID: uuid.New(),
		Channels:    []Channel{ChannelInApp, ChannelEmail, ChannelWhatsApp},
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Results.InApp.Success)
	assert.Nil(t, res.Results.Email)
	assert.Nil(t, res.Results.WhatsApp)
	assert.Empty(t, mailer.sent)
	assert.Empty(t, texts.sent)
	assert.Empty(t, store.flags)
}

func TestDispatch_UnconfiguredChannel(t *testing.T) {
	d := NewDispatcher(newFakeStore(), nil, nil, DispatcherConfig{})

	res, err := d.Dispatch(context.Background(), Request{
		Type:           EventVendorAssigned,
		RecipientID:    uuid.New(),
		RecipientEmail: "a@example.com",
		Channels:       []Channel{ChannelEmail},
	})
	require.NoError(t, err)
	assert.Equal(t, ErrChannelDisabled.Error(), res.Results.Email.Error)
}

func TestDispatch_RequiresRecipient(t *testing.T) {
	d := NewDispatcher(newFakeStore(), nil, nil, DispatcherConfig{})
	_, err := d.Dispatch(context.Background(), Request{Type: EventRequestCreated})
	assert.ErrorIs(t, err, ErrRecipientMissing)
}

func TestDispatch_DedupSkipsReplay(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{}
	d := NewDispatcher(store, nil, mailer, DispatcherConfig{Dedup: &fakeDedup{}})
	req := Request{
		Type:           EventRequestCreated,
		RecipientID:    uuid.New(),
		RecipientEmail: "a@example.com",
		Channels:       []Channel{ChannelInApp, ChannelEmail},
		DedupKey:       "request_created:42",
	}

	first, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.Nil(t, second.Results.InApp)

	assert.Len(t, store.notifications, 1)
	assert.Len(t, mailer.sent, 1)
}

func TestDispatch_FailedDispatchReleasesDedupKey(t *testing.T) {
	store := newFakeStore()
	mailer := &fakeMailer{err: errors.New("resend: 503")}
	dedup := &fakeDedup{}
	d := NewDispatcher(store, nil, mailer, DispatcherConfig{Dedup: dedup})
	req := Request{
		Type:           EventRequestCreated,
		RecipientID:    uuid.New(),
		RecipientEmail: "a@example.com",
		Channels:       []Channel{ChannelEmail},
		DedupKey:       "request_created:43",
	}

	first, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Success)
	assert.Equal(t, []string{"request_created:43"}, dedup.released)

	mailer.err = nil
	second, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.False(t, second.Duplicate)
	assert.Len(t, mailer.sent, 2)

	third, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, third.Duplicate)
	assert.Len(t, mailer.sent, 2)
}

func TestDispatch_CanceledContextIsInterrupted(t *testing.T) {
	dedup := &fakeDedup{}
	d := NewDispatcher(newFakeStore(), nil, &fakeMailer{}, DispatcherConfig{Dedup: dedup})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, Request{
		Type:           EventRequestCreated,
		RecipientID:    uuid.New(),
		RecipientEmail: "a@example.com",
		Channels:       []Channel{ChannelEmail},
		DedupKey:       "request_created:44",
	})

	assert.ErrorIs(t, err, ErrDispatchInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"request_created:44"}, dedup.released)
}

func TestDispatch_DedupErrorFailsOpen(t *testing.T) {
	store := newFakeStore()
	d := NewDispatcher(store, nil, nil, DispatcherConfig{Dedup: &fakeDedup{err: errors.New("redis down")}})

	res, err := d.Dispatch(context.Background(), Request{Type: EventRequestCreated, RecipientID: uuid.New(), DedupKey: "k"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, store.notifications, 1)
}
