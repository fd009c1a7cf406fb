package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_DefaultTTL(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, 30*24*time.Hour, e.sess.TTL())

	custom := NewSessionService(e.db, e.rm, e.keys, testAdmin, time.Hour, logging.Nop{})
	assert.Equal(t, time.Hour, custom.TTL())
}

func TestSessions_CreateStoresHashesOnly(t *testing.T) {
	e := newEnv(t)
	alice := seedIdentity(t, e, "alice@example.com", "Alice")

	issued, err := e.sess.Create(context.Background(), alice.ID, client, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(issued.Token), 43)
	assert.GreaterOrEqual(t, len(issued.CSRFToken), 32)

	for hash, row := range e.rm.sess.rows {
		assert.NotEqual(t, issued.Token, hash)
		assert.NotEqual(t, issued.CSRFToken, row.CSRFHash)
		assert.Equal(t, "test-agent", row.UserAgent)
	}
}

func TestSessions_ValidUntilExpiry(t *testing.T) {
	e := newEnv(t)
	alice := seedIdentity(t, e, "alice@example.com", "Alice")
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.sess.now = func() time.Time { return start }
	issued, err := e.sess.Create(ctx, alice.ID, client, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, start.Add(time.Hour), issued.ExpiresAt)

	_, err = e.sess.Validate(ctx, issued.Token)
	require.NoError(t, err)

	e.sess.now = func() time.Time { return start.Add(time.Hour - time.Nanosecond) }
	_, err = e.sess.Validate(ctx, issued.Token)
	require.NoError(t, err)

	e.sess.now = func() time.Time { return start.Add(time.Hour) }
	_, err = e.sess.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessions_Revoke(t *testing.T) {
	e := newEnv(t)
	alice := seedIdentity(t, e, "alice@example.com", "Alice")
	ctx := context.Background()

	issued, err := e.sess.Create(ctx, alice.ID, client, 0)
	require.NoError(t, err)

	require.NoError(t, e.sess.Revoke(ctx, issued.Token))
	_, err = e.sess.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	assert.NoError(t, e.sess.Revoke(ctx, issued.Token))
	assert.NoError(t, e.sess.Revoke(ctx, "unknown"))
	assert.NoError(t, e.sess.Revoke(ctx, ""))
}

func TestSessions_FailsClosed(t *testing.T) {
	e := newEnv(t)
	alice := seedIdentity(t, e, "alice@example.com", "Alice")
	ctx := context.Background()
	issued, err := e.sess.Create(ctx, alice.ID, client, 0)
	require.NoError(t, err)

	_, err = e.sess.Validate(ctx, "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = e.sess.Validate(ctx, "no-such-token")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	otherKeys := NewSessionService(e.db, e.rm, newKeys(t, "another"), testAdmin, 0, logging.Nop{})
	_, err = otherKeys.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	e.rm.ids.byID(alice.ID).IsActive = false
	_, err = e.sess.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	e.rm.ids.byID(alice.ID).IsActive = true

	e.rm.sess.err = errors.New("db error: down")
	_, err = e.sess.Validate(ctx, issued.Token)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessions_EntitlementFromPaymentStatus(t *testing.T) {
	tests := []struct {
		status     string
		wantPlan   string
		wantStatus string
	}{
		{common.PaymentStatusCompleted, common.PlanLifetime, common.SubscriptionActive},
		{"paid", common.PlanLifetime, common.SubscriptionActive},
		{"active", common.PlanLifetime, common.SubscriptionActive},
		{"pending", "", common.SubscriptionInactive},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			e := newEnv(t)
			alice := seedIdentity(t, e, "alice@example.com", "Alice")
			e.rm.ids.byID(alice.ID).PaymentStatus = tt.status

			issued, err := e.sess.Create(context.Background(), alice.ID, client, 0)
			require.NoError(t, err)
			c, err := e.sess.Validate(context.Background(), issued.Token)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlan, c.Plan)
			assert.Equal(t, tt.wantStatus, c.SubscriptionStatus)
		})
	}
}

func TestSessions_RequireEntitlement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	alice := seedIdentity(t, e, "alice@example.com", "Alice")
	bob := seedIdentity(t, e, "bob@example.com", "Bob")
	e.rm.ids.byID(bob.ID).PaymentStatus = "pending"

	a, err := e.sess.Create(ctx, alice.ID, client, 0)
	require.NoError(t, err)
	b, err := e.sess.Create(ctx, bob.ID, client, 0)
	require.NoError(t, err)
	admin, err := e.sess.CreateAdmin(ctx, client, 0)
	require.NoError(t, err)

	_, err = e.sess.RequireEntitlement(ctx, a.Token, common.PlanLifetime)
	assert.NoError(t, err)
	_, err = e.sess.RequireEntitlement(ctx, b.Token, common.PlanStandard)
	assert.ErrorIs(t, err, common.ErrorPaymentRequired)
	_, err = e.sess.RequireEntitlement(ctx, b.Token, "")
	assert.NoError(t, err)
	_, err = e.sess.RequireEntitlement(ctx, admin.Token, common.PlanLifetime)
	assert.NoError(t, err)
	_, err = e.sess.RequireEntitlement(ctx, "bogus", common.PlanStandard)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessions_Entitled(t *testing.T) {
	e := newEnv(t)

	assert.NoError(t, e.sess.Entitled(&Claims{SubscriptionStatus: common.SubscriptionTrialing}, common.PlanPro))
	assert.NoError(t, e.sess.Entitled(&Claims{Plan: common.PlanPro}, common.PlanStandard))
	assert.NoError(t, e.sess.Entitled(&Claims{Plan: common.PlanEarlyBird}, common.PlanStandard))
	assert.ErrorIs(t, e.sess.Entitled(&Claims{Plan: common.PlanStandard}, common.PlanPro), common.ErrorPaymentRequired)
	assert.NoError(t, e.sess.Entitled(&Claims{Email: "ADMIN@profitpal.org"}, common.PlanLifetime))
}

func TestSessions_VerifyCSRF(t *testing.T) {
	e := newEnv(t)
	alice := seedIdentity(t, e, "alice@example.com", "Alice")
	issued, err := e.sess.Create(context.Background(), alice.ID, client, 0)
	require.NoError(t, err)
	c, err := e.sess.Validate(context.Background(), issued.Token)
	require.NoError(t, err)

	assert.NoError(t, e.sess.VerifyCSRF(c, issued.CSRFToken, issued.CSRFToken))
	assert.ErrorIs(t, e.sess.VerifyCSRF(c, "", issued.CSRFToken), common.ErrorInvalidCSRF)
	assert.ErrorIs(t, e.sess.VerifyCSRF(c, issued.CSRFToken, ""), common.ErrorInvalidCSRF)
	assert.ErrorIs(t, e.sess.VerifyCSRF(c, issued.CSRFToken, "other"), common.ErrorInvalidCSRF)
	assert.ErrorIs(t, e.sess.VerifyCSRF(c, "forged", "forged"), common.ErrorInvalidCSRF)
	assert.ErrorIs(t, e.sess.VerifyCSRF(nil, issued.CSRFToken, issued.CSRFToken), common.ErrorInvalidCSRF)
}

func TestSessions_PurgeExpired(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.sess.CreateAdmin(ctx, client, time.Minute)
	require.NoError(t, err)
	_, err = e.sess.CreateAdmin(ctx, client, 48*time.Hour)
	require.NoError(t, err)

	n, err := e.sess.PurgeExpired(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, e.rm.sess.rows, 1)
}
