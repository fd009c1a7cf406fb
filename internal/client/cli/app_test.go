package cli

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/client/client"
	"github.com/dmitrijs2005/profitpal/internal/client/config"
	"github.com/dmitrijs2005/profitpal/internal/server/auth"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.JournalPath = filepath.Join(t.TempDir(), "ppctl.db")
	cfg.OnlineCheckInterval = 10 * time.Millisecond
	return cfg
}

func TestNewApp_MintsTokensFromSecret(t *testing.T) {
	var mint client.TokenSource
	old := newLedgerClient
	newLedgerClient = func(addr string, m client.TokenSource) (client.Client, error) {
		mint = m
		return &fakeLedger{}, nil
	}
	t.Cleanup(func() { newLedgerClient = old })

	secret := []byte("service-secret")
	a, err := NewApp(context.Background(), testConfig(t), secret)
	require.NoError(t, err)

	tok, err := mint()
	require.NoError(t, err)
	svc, err := auth.GetServiceFromToken(tok, []byte("service-secret"))
	require.NoError(t, err)
	require.Equal(t, "ppctl", svc)

	a.Close()
	require.Equal(t, make([]byte, len("service-secret")), secret)
}

func TestNewApp_Errors(t *testing.T) {
	oldDB := initDatabase
	initDatabase = func(context.Context, string) (*sql.DB, error) { return nil, errors.New("locked") }
	_, err := NewApp(context.Background(), testConfig(t), []byte("s"))
	require.ErrorContains(t, err, "init journal")
	initDatabase = oldDB

	oldClient := newLedgerClient
	newLedgerClient = func(string, client.TokenSource) (client.Client, error) { return nil, errors.New("bad target") }
	t.Cleanup(func() { newLedgerClient = oldClient })
	_, err = NewApp(context.Background(), testConfig(t), []byte("s"))
	require.ErrorContains(t, err, "dial ledger")
}

func TestApp_CheckOnlineSwitchesMode(t *testing.T) {
	l := &fakeLedger{}
	a, _, _ := newTestApp(t, l)

	a.checkOnline(context.Background())
	require.Equal(t, ModeOnline, a.Mode())
	require.Equal(t, "(online) ", a.getStatus())

	l.pingErr = client.ErrUnavailable
	a.checkOnline(context.Background())
	require.Equal(t, ModeOffline, a.Mode())
}

func TestApp_StatusEmptyBeforeFirstCheck(t *testing.T) {
	a, _, _ := newTestApp(t, &fakeLedger{})
	require.Equal(t, "", a.getStatus())
}

func TestApp_WatcherStopsOnCancel(t *testing.T) {
	l := &fakeLedger{}
	a, _, _ := newTestApp(t, l)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.StartOnlineStatusWatcher(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.pings >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestApp_RunReadsCommandsUntilExit(t *testing.T) {
	captureOutput(t)
	l := &fakeLedger{global: nil, err: errors.New("boom")}
	a, j, out := newTestApp(t, l)
	a.in = strings.NewReader("global\nexit\n")

	a.Run(context.Background())

	require.Contains(t, out.String(), "ProfitPal ledger console")
	require.Len(t, j.entries, 1)
	require.True(t, l.closed)
}
