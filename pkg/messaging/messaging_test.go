package messaging

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	name string
	err  error
	sent []Notification
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, n Notification) error {
	f.sent = append(f.sent, n)
	return f.err
}

func TestNotifier_SendsToEveryChannel(t *testing.T) {
	a := &fakeChannel{name: "a"}
	b := &fakeChannel{name: "b"}
	n := New(nil, a, b)

	err := n.Send(context.Background(), Notification{GrievanceID: "GR-1-A"})
	require.NoError(t, err)
	assert.Len(t, a.sent, 1)
	assert.Len(t, b.sent, 1)
}

func TestNotifier_OneChannelFailing_StillReachesTheOthers(t *testing.T) {
	failing := &fakeChannel{name: "failing", err: errors.New("boom")}
	ok := &fakeChannel{name: "ok"}
	n := New(nil, failing, ok)

	err := n.Send(context.Background(), Notification{GrievanceID: "GR-1-A"})
	require.Error(t, err)
	assert.Len(t, ok.sent, 1, "a failing channel must not block delivery to the rest")
}

func TestEmailChannel_RejectsMissingOfficeEmail(t *testing.T) {
	c := NewEmailChannel("smtp.example.com", 587, "user", "pass", "noreply@example.com", nil)
	err := c.Send(context.Background(), Notification{GrievanceID: "GR-1-A"})
	assert.Error(t, err)
}

type fakeBotSender struct {
	err error
	n   int
}

func (f *fakeBotSender) Send(_ tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.n++
	return tgbotapi.Message{}, f.err
}

func TestTelegramChannel_Name(t *testing.T) {
	c := &TelegramChannel{chatID: 42}
	assert.Equal(t, "telegram", c.Name())
}

func TestTelegramChannel_Send_UsesConfiguredChat(t *testing.T) {
	bot := &fakeBotSender{}
	c := &TelegramChannel{bot: bot, chatID: 42}

	err := c.Send(context.Background(), Notification{GrievanceID: "GR-1-A", Subject: "New grievance", Body: "details"})
	require.NoError(t, err)
	assert.Equal(t, 1, bot.n)
}

func TestTelegramChannel_Send_PropagatesBotError(t *testing.T) {
	bot := &fakeBotSender{err: errors.New("telegram down")}
	c := &TelegramChannel{bot: bot, chatID: 42}

	err := c.Send(context.Background(), Notification{GrievanceID: "GR-1-A"})
	assert.Error(t, err)
}
