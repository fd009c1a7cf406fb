package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/profitpal/internal/common"
	"github.com/dmitrijs2005/profitpal/internal/cryptox"
	"github.com/dmitrijs2005/profitpal/internal/dbx"
	"github.com/dmitrijs2005/profitpal/internal/logging"
	"github.com/dmitrijs2005/profitpal/internal/server/license"
	"github.com/dmitrijs2005/profitpal/internal/server/models"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/attempts"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/identities"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/referrals"
	"github.com/dmitrijs2005/profitpal/internal/server/repositories/sessions"
)

var testAdmin = license.Admin{Email: "admin@profitpal.org", License: "PP-ADMIN-DEFAULT", Name: "Administrator"}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newKeys(t *testing.T, secret string, previous ...string) *cryptox.Keyring {
	t.Helper()
	k, err := cryptox.NewKeyring(secret, previous, "index-secret")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	return k
}

// --- in-memory repositories ---

type fakeIdentities struct {
	mu     sync.Mutex
	rows   []*models.Identity
	seq    int
	err    error
	logins map[string]int
}

func (f *fakeIdentities) Create(_ context.Context, i *models.Identity) (*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.rows {
		if r.IsActive && r.EmailIndex == i.EmailIndex {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.seq++
	cp := *i
	cp.ID = fmt.Sprintf("id-%d", f.seq)
	cp.IsActive = true
	cp.CreatedAt = time.Now()
	cp.Email, cp.Name = "", ""
	f.rows = append(f.rows, &cp)
	i.ID, i.IsActive, i.CreatedAt = cp.ID, true, cp.CreatedAt
	return i, nil
}

func (f *fakeIdentities) clone(r *models.Identity) *models.Identity {
	cp := *r
	return &cp
}

func (f *fakeIdentities) FindActiveByIndex(_ context.Context, idx string) ([]*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Identity
	for _, r := range f.rows {
		if r.IsActive && r.EmailIndex == idx {
			out = append(out, f.clone(r))
		}
	}
	return out, nil
}

func (f *fakeIdentities) ListActive(context.Context) ([]*models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Identity
	for _, r := range f.rows {
		if r.IsActive {
			out = append(out, f.clone(r))
		}
	}
	return out, nil
}

func (f *fakeIdentities) SetEmailIndex(_ context.Context, id, idx string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			r.EmailIndex = idx
		}
	}
	return nil
}

func (f *fakeIdentities) LicenseExists(_ context.Context, lic string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.LicenseKey == lic {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIdentities) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			r.IsActive = false
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeIdentities) RecordLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logins == nil {
		f.logins = map[string]int{}
	}
	f.logins[id]++
	for _, r := range f.rows {
		if r.ID == id {
			t := at
			r.LastLogin = &t
			r.LoginCount++
		}
	}
	return nil
}

func (f *fakeIdentities) Stats(_ context.Context, now, dayStart time.Time) (*models.AuthStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &models.AuthStats{TotalIdentities: int64(len(f.rows))}
	for _, r := range f.rows {
		if r.IsActive {
			s.ActiveIdentities++
		}
	}
	return s, nil
}

func (f *fakeIdentities) byID(id string) *models.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

type fakeSessions struct {
	mu   sync.Mutex
	rows map[string]*models.Session
	ids  *fakeIdentities
	err  error
}

func (f *fakeSessions) Create(_ context.Context, s *models.Session) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.rows == nil {
		f.rows = map[string]*models.Session{}
	}
	s.ID = fmt.Sprintf("s-%d", len(f.rows)+1)
	s.IsActive = true
	s.CreatedAt = time.Now()
	cp := *s
	f.rows[s.TokenHash] = &cp
	return s, nil
}

func (f *fakeSessions) FindByTokenHash(_ context.Context, hash string) (*models.SessionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.rows[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	v := &models.SessionView{Session: *s}
	if s.IdentityID != "" && f.ids != nil {
		if i := f.ids.byID(s.IdentityID); i != nil {
			v.IdentityActive = i.IsActive
			v.PaymentStatus = i.PaymentStatus
			v.EmailEnc = i.EmailEnc
			v.NameEnc = i.NameEnc
			v.LicenseKey = i.LicenseKey
		}
	}
	return v, nil
}

func (f *fakeSessions) Revoke(_ context.Context, hash string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	s, ok := f.rows[hash]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	t := at
	s.RevokedAt = &t
	return true, nil
}

func (f *fakeSessions) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for h, s := range f.rows {
		if s.ExpiresAt.Before(before) {
			delete(f.rows, h)
			n++
		}
	}
	return n, nil
}

type fakeAttempts struct {
	mu   sync.Mutex
	rows []*models.LoginAttempt
	err  error
}

func (f *fakeAttempts) Record(_ context.Context, a *models.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, a)
	return nil
}

func (f *fakeAttempts) last() *models.LoginAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rows) == 0 {
		return nil
	}
	return f.rows[len(f.rows)-1]
}

type fakeReferrals struct {
	mu      sync.Mutex
	rows    map[string]*models.Referral
	uses    map[string]*models.ReferralUse
	history []*models.CreditEntry

	err       error
	lockErr   error
	insertErr error
	taken     map[string]bool
}

func newFakeReferrals() *fakeReferrals {
	return &fakeReferrals{
		rows:  map[string]*models.Referral{},
		uses:  map[string]*models.ReferralUse{},
		taken: map[string]bool{},
	}
}

func (f *fakeReferrals) FindByOwner(_ context.Context, owner string) (*models.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rows[owner]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReferrals) LockByOwner(ctx context.Context, owner string) (*models.Referral, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	return f.FindByOwner(ctx, owner)
}

func (f *fakeReferrals) LockByCode(_ context.Context, code string) (*models.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	for _, r := range f.rows {
		if r.Code == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeReferrals) CodeExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taken[code] {
		return true, nil
	}
	for _, r := range f.rows {
		if r.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReferrals) Insert(_ context.Context, ref *models.Referral) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if _, ok := f.rows[ref.OwnerEmailIndex]; ok {
		return false, nil
	}
	for _, r := range f.rows {
		if r.Code == ref.Code {
			return false, nil
		}
	}
	ref.CreatedAt = time.Now()
	ref.UpdatedAt = ref.CreatedAt
	cp := *ref
	cp.OwnerEmail = ""
	f.rows[ref.OwnerEmailIndex] = &cp
	return true, nil
}

func (f *fakeReferrals) InsertUse(_ context.Context, use *models.ReferralUse) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := use.Code + "|" + use.NewUserEmailIndex
	if _, ok := f.uses[key]; ok {
		return false, nil
	}
	cp := *use
	cp.UsedAt = time.Now()
	f.uses[key] = &cp
	return true, nil
}

func (f *fakeReferrals) Credit(_ context.Context, owner string, reward int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[owner]
	if !ok {
		return 0, common.ErrorNotFound
	}
	r.Balance += reward
	r.TotalReferrals++
	r.TotalEarned += reward
	return r.Balance, nil
}

func (f *fakeReferrals) Debit(_ context.Context, owner string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[owner]
	if !ok || r.Balance <= 0 {
		return 0, common.ErrorNotFound
	}
	r.Balance--
	return r.Balance, nil
}

func (f *fakeReferrals) AppendHistory(_ context.Context, e *models.CreditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	cp.CreatedAt = time.Now()
	f.history = append(f.history, &cp)
	return nil
}

func (f *fakeReferrals) RecentUses(_ context.Context, code string, limit int) ([]*models.ReferralUse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ReferralUse
	for _, u := range f.uses {
		if u.Code == code && len(out) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeReferrals) History(_ context.Context, owner string, limit int) ([]*models.CreditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.CreditEntry
	for i := len(f.history) - 1; i >= 0 && len(out) < limit; i-- {
		if f.history[i].OwnerEmailIndex == owner {
			out = append(out, f.history[i])
		}
	}
	return out, nil
}

func (f *fakeReferrals) Totals(context.Context) (*models.ReferralTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &models.ReferralTotals{TotalCodes: int64(len(f.rows)), TotalUses: int64(len(f.uses))}
	for _, r := range f.rows {
		t.TotalEarned += int64(r.TotalEarned)
		t.OutstandingCredit += int64(r.Balance)
	}
	return t, nil
}

func (f *fakeReferrals) Top(_ context.Context, limit int) ([]*models.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Referral
	for _, r := range f.rows {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalReferrals > out[j].TotalReferrals })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReferrals) HistorySums(context.Context) ([]*models.HistorySum, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.HistorySum
	for owner, r := range f.rows {
		s := &models.HistorySum{OwnerEmailIndex: owner, Balance: r.Balance}
		for _, h := range f.history {
			if h.OwnerEmailIndex != owner {
				continue
			}
			switch h.Action {
			case models.CreditEarned:
				s.Earned += h.Delta
			case models.CreditUsed:
				s.Used -= h.Delta
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerEmailIndex < out[j].OwnerEmailIndex })
	return out, nil
}

func (f *fakeReferrals) balance(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[owner]; ok {
		return r.Balance
	}
	return -1
}

func (f *fakeReferrals) countHistory(owner, action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.history {
		if h.OwnerEmailIndex == owner && h.Action == action {
			n++
		}
	}
	return n
}

type fakeRepoManager struct {
	ids  *fakeIdentities
	sess *fakeSessions
	att  *fakeAttempts
	refs *fakeReferrals
}

func newFakeRepoManager() *fakeRepoManager {
	ids := &fakeIdentities{}
	return &fakeRepoManager{
		ids:  ids,
		sess: &fakeSessions{ids: ids},
		att:  &fakeAttempts{},
		refs: newFakeReferrals(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Identities(dbx.DBTX) identities.Repository    { return m.ids }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessions.Repository        { return m.sess }
func (m *fakeRepoManager) Attempts(dbx.DBTX) attempts.Repository        { return m.att }
func (m *fakeRepoManager) Referrals(dbx.DBTX) referrals.Repository      { return m.refs }

// env bundles every service over one fake repository manager.
type env struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	rm    *fakeRepoManager
	keys  *cryptox.Keyring
	creds *CredentialService
	sess  *SessionService
	val   *ValidatorService
	refs  *ReferralService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, mock := newSQLMockDB(t)
	rm := newFakeRepoManager()
	keys := newKeys(t, "seed-1")
	log := logging.Nop{}

	creds := NewCredentialService(db, rm, keys, testAdmin, log)
	sess := NewSessionService(db, rm, keys, testAdmin, 0, log)
	return &env{
		db:    db,
		mock:  mock,
		rm:    rm,
		keys:  keys,
		creds: creds,
		sess:  sess,
		val:   NewValidatorService(db, rm, creds, sess, testAdmin, log),
		refs:  NewReferralService(db, rm, keys, "https://profitpal.org", 7.99, log),
	}
}

// expectTx registers n transactions that end with commit, or rollback when
// commit is false.
func (e *env) expectTx(n int, commit bool) {
	for range n {
		e.mock.ExpectBegin()
		if commit {
			e.mock.ExpectCommit()
		} else {
			e.mock.ExpectRollback()
		}
	}
}
