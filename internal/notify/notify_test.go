package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"orgkit-backend/internal/models"
	"orgkit-backend/internal/natsbus"
)

type fakeMailer struct {
	sent []models.EmailInviteRequested
	err  error
}

func (m *fakeMailer) SendInvite(_ context.Context, event models.EmailInviteRequested) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, event)
	return nil
}

type fakeNotifier struct {
	joined []models.MemberJoined
}

func (n *fakeNotifier) SendMemberJoined(_ context.Context, event models.MemberJoined) error {
	n.joined = append(n.joined, event)
	return nil
}

type memDeliveries struct {
	keys map[string][]byte
}

func (m *memDeliveries) Get(key string) (nats.KeyValueEntry, error) {
	if _, ok := m.keys[key]; ok {
		return nil, nil
	}
	return nil, nats.ErrKeyNotFound
}

func (m *memDeliveries) Put(key string, value []byte) (uint64, error) {
	m.keys[key] = value
	return uint64(len(m.keys)), nil
}

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := natsbus.Encode(v)
	require.NoError(t, err)
	return data
}

func TestDispatcher_SendsInviteOnce(t *testing.T) {
	mailer := &fakeMailer{}
	deliveries := &memDeliveries{keys: map[string][]byte{}}
	d := NewDispatcher(mailer, &fakeNotifier{}, deliveries, zap.NewNop())
	data := encode(t, models.EmailInviteRequested{V: 1, InviteID: "inv-1", Email: "new@example.com"})

	require.NoError(t, d.Handle(context.Background(), models.SubjectEmailInviteRequested, data))
	require.NoError(t, d.Handle(context.Background(), models.SubjectEmailInviteRequested, data))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "new@example.com", mailer.sent[0].Email)
	assert.Contains(t, deliveries.keys, "inv-1")
}

func TestDispatcher_MailerFailureIsRetryable(t *testing.T) {
	deliveries := &memDeliveries{keys: map[string][]byte{}}
	d := NewDispatcher(&fakeMailer{err: errors.New("503")}, &fakeNotifier{}, deliveries, zap.NewNop())

	err := d.Handle(context.Background(), models.SubjectEmailInviteRequested,
		encode(t, models.EmailInviteRequested{InviteID: "inv-1"}))

	require.Error(t, err)
	assert.NotErrorIs(t, err, errUndecodable)
	assert.Empty(t, deliveries.keys)
}

func TestDispatcher_MemberJoined(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(&fakeMailer{}, notifier, nil, zap.NewNop())

	err := d.Handle(context.Background(), models.SubjectMemberJoined,
		encode(t, models.MemberJoined{OrganizationSlug: "acme", UserID: "user-1"}))

	require.NoError(t, err)
	require.Len(t, notifier.joined, 1)
	assert.Equal(t, "acme", notifier.joined[0].OrganizationSlug)
}

func TestDispatcher_UndecodableAndUnknown(t *testing.T) {
	d := NewDispatcher(&fakeMailer{}, &fakeNotifier{}, nil, zap.NewNop())

	err := d.Handle(context.Background(), models.SubjectMemberJoined, []byte{0xc1})
	assert.ErrorIs(t, err, errUndecodable)

	assert.NoError(t, d.Handle(context.Background(), "orgs.unknown", []byte("x")))
}

func TestFetchSizer(t *testing.T) {
	f := newFetchSizer(16, 4, 64)

	for i := 0; i < 3; i++ {
		f.observe(16)
	}
	assert.Equal(t, 32, f.size)

	for i := 0; i < 9; i++ {
		f.observe(0)
	}
	assert.Equal(t, 4, f.size)

	f.observe(2)
	assert.Equal(t, 4, f.size)
}

type failingSubscription struct {
	fetches atomic.Int32
}

func (f *failingSubscription) Fetch(int, ...nats.PullOpt) ([]*nats.Msg, error) {
	f.fetches.Add(1)
	return nil, nats.ErrConnectionClosed
}

func (f *failingSubscription) Drain() error { return nil }

func TestConsumer_BacksOffOnFetchErrors(t *testing.T) {
	sub := &failingSubscription{}
	c := NewConsumer(nil, NewDispatcher(&fakeMailer{}, &fakeNotifier{}, nil, zap.NewNop()), zap.NewNop())
	c.sub = sub
	c.retryDelay = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.consumeLoop(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume loop did not stop after cancellation")
	}
	assert.LessOrEqual(t, sub.fetches.Load(), int32(4))
	assert.GreaterOrEqual(t, sub.fetches.Load(), int32(1))
}

func TestMailer_SendInvite(t *testing.T) {
	var got emailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer mail-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer server.Close()

	mailer := NewMailer(server.URL, "mail-key", "invites@orgkit.dev", zap.NewNop())
	err := mailer.SendInvite(context.Background(), models.EmailInviteRequested{
		InviteID:         "inv-1",
		OrganizationName: "Acme",
		Email:            "new@example.com",
		Role:             "admin",
		AcceptURL:        "https://app.orgkit.dev/organizations/email-invite?token=tok123",
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"new@example.com"}, got.To)
	assert.Equal(t, "invites@orgkit.dev", got.From)
	assert.Contains(t, got.Subject, "Acme")
	assert.Contains(t, got.HTML, "email-invite?token=tok123")
}

func TestMailer_SendInviteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	err := NewMailer(server.URL, "k", "f@x.io", zap.NewNop()).
		SendInvite(context.Background(), models.EmailInviteRequested{Email: "x@y.io"})

	assert.Error(t, err)
}

func TestSlackClient_SendMemberJoined(t *testing.T) {
	var got SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSlackClient(server.URL, zap.NewNop())
	err := client.SendMemberJoined(context.Background(), models.MemberJoined{
		OrganizationSlug: "acme",
		OrganizationName: "Acme",
		UserEmail:        "new@example.com",
		Role:             "admin",
		Via:              "email",
	})

	require.NoError(t, err)
	assert.Equal(t, "new@example.com joined Acme", got.Text)
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "*Via:*\nemail invite", got.Blocks[1].Fields[2].Text)
}

func TestSlackClient_NoWebhookIsNoop(t *testing.T) {
	client := NewSlackClient("", zap.NewNop())
	assert.NoError(t, client.SendMemberJoined(context.Background(), models.MemberJoined{}))
}
