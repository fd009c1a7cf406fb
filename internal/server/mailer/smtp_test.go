package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{Host: "smtp.example.com", Port: 587, User: "sales@profitpal.org", Password: "app-pass"}
}

func TestSendWelcome(t *testing.T) {
	orig := sendMail
	t.Cleanup(func() { sendMail = orig })

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	m := NewSMTPMailer(testConfig())
	err := m.SendWelcome(context.Background(), "bob@example.com", "Bob", "PP-AAAA-BBBB-CCCC", "https://profitpal.org/?ref=ABCDE12345fghij")
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "sales@profitpal.org", gotFrom)
	assert.Equal(t, []string{"bob@example.com"}, gotTo)
	body := string(gotMsg)
	assert.Contains(t, body, "To: bob@example.com\r\n")
	assert.Contains(t, body, "PP-AAAA-BBBB-CCCC")
	assert.Contains(t, body, "?ref=ABCDE12345fghij")
}

func TestSendWelcome_NoReferralLink(t *testing.T) {
	orig := sendMail
	t.Cleanup(func() { sendMail = orig })

	var gotMsg []byte
	sendMail = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	require.NoError(t, NewSMTPMailer(testConfig()).SendWelcome(context.Background(), "bob@example.com", "Bob", "PP-1", ""))
	assert.NotContains(t, string(gotMsg), "referral link")
}

func TestSendWelcome_Errors(t *testing.T) {
	err := NewSMTPMailer(Config{}).SendWelcome(context.Background(), "a@b.c", "A", "PP-1", "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	m := NewSMTPMailer(testConfig())
	err = m.SendWelcome(context.Background(), "a@b.c\r\nBcc: x@y.z", "A", "PP-1", "")
	assert.ErrorContains(t, err, "invalid header")

	orig := sendMail
	t.Cleanup(func() { sendMail = orig })
	sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("535 auth failed") }
	err = m.SendWelcome(context.Background(), "a@b.c", "A", "PP-1", "")
	assert.ErrorContains(t, err, "535")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.SendWelcome(ctx, "a@b.c", "A", "PP-1", ""), context.Canceled)
}
