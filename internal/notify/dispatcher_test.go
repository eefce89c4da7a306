package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

type fakeDirectory map[string]*models.Recipient

func (d fakeDirectory) GetRecipient(_ context.Context, userID string) (*models.Recipient, error) {
	r, ok := d[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return r, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (n *recordingNotifier) Send(_ context.Context, _ *models.Recipient, _ *models.Alert) error {
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.err
}

func (n *recordingNotifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type channelSet struct {
	email, sms, whatsapp, push *recordingNotifier
}

func newTestDispatcher(dir fakeDirectory) (*Dispatcher, channelSet) {
	set := channelSet{
		email:    &recordingNotifier{},
		sms:      &recordingNotifier{},
		whatsapp: &recordingNotifier{},
		push:     &recordingNotifier{},
	}
	d := NewDispatcher(dir, zap.NewNop())
	d.Register(ChannelEmail, set.email)
	d.Register(ChannelSMS, set.sms)
	d.Register(ChannelWhatsApp, set.whatsapp)
	d.Register(ChannelPush, set.push)
	return d, set
}

func alertFor(userID string, sev models.Severity) *models.Alert {
	return &models.Alert{ID: "a1", UserID: userID, Severity: sev, Title: "t", Message: "m"}
}

func TestDispatch_CriticalForcesSMS(t *testing.T) {
	dir := fakeDirectory{"u1": {
		UserID:      "u1",
		Email:       "u1@example.com",
		Phone:       "+2250700000000",
		Preferences: &models.NotificationPreference{Email: true, SMS: false, WhatsApp: false, Push: false},
	}}
	d, set := newTestDispatcher(dir)

	res := d.Dispatch(context.Background(), alertFor("u1", models.SeverityCritical))

	assert.True(t, res[ChannelEmail].Succeeded)
	assert.True(t, res[ChannelSMS].Attempted)
	assert.True(t, res[ChannelSMS].Succeeded)
	assert.False(t, res[ChannelWhatsApp].Attempted)
	assert.False(t, res[ChannelPush].Attempted)
	assert.Equal(t, 0, set.whatsapp.Calls())
}

func TestDispatch_WarningRespectsSMSPreference(t *testing.T) {
	dir := fakeDirectory{"u1": {
		UserID:      "u1",
		Phone:       "+2250700000000",
		Preferences: &models.NotificationPreference{SMS: false, WhatsApp: true},
	}}
	d, set := newTestDispatcher(dir)

	res := d.Dispatch(context.Background(), alertFor("u1", models.SeverityWarning))

	assert.False(t, res[ChannelSMS].Attempted)
	assert.True(t, res[ChannelWhatsApp].Succeeded)
	assert.False(t, res[ChannelEmail].Attempted, "no e-mail address")
	assert.Equal(t, 0, set.sms.Calls())
}

func TestDispatch_DefaultPreferencesAllOn(t *testing.T) {
	dir := fakeDirectory{"u1": {UserID: "u1", Email: "a@b.c", Phone: "+1", TelegramChatID: 42}}
	d, _ := newTestDispatcher(dir)

	res := d.Dispatch(context.Background(), alertFor("u1", models.SeverityInfo))
	for _, ch := range Channels {
		assert.True(t, res[ch].Succeeded, ch)
	}
}

func TestDispatch_ChannelFailureIsIsolated(t *testing.T) {
	dir := fakeDirectory{"u1": {UserID: "u1", Email: "a@b.c", Phone: "+1"}}
	d, set := newTestDispatcher(dir)
	set.email.err = errors.New("smtp 451")

	res := d.Dispatch(context.Background(), alertFor("u1", models.SeverityCritical))

	assert.True(t, res[ChannelEmail].Attempted)
	assert.False(t, res[ChannelEmail].Succeeded)
	assert.ErrorIs(t, res[ChannelEmail].Err, models.ErrChannelDelivery)
	assert.Equal(t, "ChannelDeliveryFailed", models.ErrorKind(res[ChannelEmail].Err))
	assert.True(t, res[ChannelSMS].Succeeded)
	assert.Equal(t, 1, set.sms.Calls())
}

func TestDispatch_ChannelsRunConcurrently(t *testing.T) {
	dir := fakeDirectory{"u1": {UserID: "u1", Email: "a@b.c", Phone: "+1", TelegramChatID: 7}}
	d, set := newTestDispatcher(dir)
	for _, n := range []*recordingNotifier{set.email, set.sms, set.whatsapp, set.push} {
		n.delay = 100 * time.Millisecond
	}

	start := time.Now()
	d.Dispatch(context.Background(), alertFor("u1", models.SeverityWarning))
	assert.Less(t, time.Since(start), 350*time.Millisecond)
}

func TestDispatch_UnknownRecipient(t *testing.T) {
	d, set := newTestDispatcher(fakeDirectory{})
	res := d.Dispatch(context.Background(), alertFor("ghost", models.SeverityCritical))
	for _, ch := range Channels {
		assert.False(t, res[ch].Attempted)
	}
	assert.Equal(t, 0, set.sms.Calls())
}

func TestDispatch_UnregisteredChannelSkipped(t *testing.T) {
	dir := fakeDirectory{"u1": {UserID: "u1", Email: "a@b.c", TelegramChatID: 9}}
	d := NewDispatcher(dir, zap.NewNop())
	email := &recordingNotifier{}
	d.Register(ChannelEmail, email)

	res := d.Dispatch(context.Background(), alertFor("u1", models.SeverityInfo))
	require.True(t, res[ChannelEmail].Succeeded)
	assert.False(t, res[ChannelPush].Attempted)
}
