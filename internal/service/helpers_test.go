package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"pixwallet/internal/core/domain"
	"pixwallet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// mockTx satisfies pgx.Tx for services driven by gomock repositories.
type mockTx struct {
	pgx.Tx
}

func (m *mockTx) Commit(ctx context.Context) error   { return nil }
func (m *mockTx) Rollback(ctx context.Context) error { return nil }

// memStore is an in-memory stand-in for the PostgreSQL repositories.
// Transactions are serialized: Begin blocks until the previous one ends, and
// Rollback restores the tables to what they were at Begin.
type memStore struct {
	txLock chan struct{}

	mu          sync.Mutex
	wallets     map[walletKey]*domain.Wallet
	txns        map[uuid.UUID]*domain.Transaction
	deposits    map[string]*domain.Deposit
	withdrawals map[uuid.UUID]*domain.Withdrawal
	callbacks   map[string]*domain.ProviderCallback
	pixKeys     map[uuid.UUID]*domain.PixKey

	// failCredit makes the next Credit calls fail.
	failCredit error
}

type walletKey struct {
	owner    uuid.UUID
	currency domain.Currency
}

type memSnapshot struct {
	wallets     map[walletKey]domain.Wallet
	txns        map[uuid.UUID]domain.Transaction
	deposits    map[string]domain.Deposit
	withdrawals map[uuid.UUID]domain.Withdrawal
}

func newMemStore() *memStore {
	return &memStore{
		txLock:      make(chan struct{}, 1),
		wallets:     map[walletKey]*domain.Wallet{},
		txns:        map[uuid.UUID]*domain.Transaction{},
		deposits:    map[string]*domain.Deposit{},
		withdrawals: map[uuid.UUID]*domain.Withdrawal{},
		callbacks:   map[string]*domain.ProviderCallback{},
		pixKeys:     map[uuid.UUID]*domain.PixKey{},
	}
}

// --- DBTransactor ---

type memTx struct {
	pgx.Tx
	store *memStore
	snap  memSnapshot
	done  bool
}

func (s *memStore) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case s.txLock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memTx{store: s, snap: s.snapshot()}, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	<-t.store.txLock
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.store.mu.Lock()
	t.store.restore(t.snap)
	t.store.mu.Unlock()
	<-t.store.txLock
	return nil
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		wallets:     make(map[walletKey]domain.Wallet, len(s.wallets)),
		txns:        make(map[uuid.UUID]domain.Transaction, len(s.txns)),
		deposits:    make(map[string]domain.Deposit, len(s.deposits)),
		withdrawals: make(map[uuid.UUID]domain.Withdrawal, len(s.withdrawals)),
	}
	for k, v := range s.wallets {
		snap.wallets[k] = *v
	}
	for k, v := range s.txns {
		snap.txns[k] = *v
	}
	for k, v := range s.deposits {
		snap.deposits[k] = *v
	}
	for k, v := range s.withdrawals {
		snap.withdrawals[k] = *v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.wallets = make(map[walletKey]*domain.Wallet, len(snap.wallets))
	for k, v := range snap.wallets {
		v := v
		s.wallets[k] = &v
	}
	s.txns = make(map[uuid.UUID]*domain.Transaction, len(snap.txns))
	for k, v := range snap.txns {
		v := v
		s.txns[k] = &v
	}
	s.deposits = make(map[string]*domain.Deposit, len(snap.deposits))
	for k, v := range snap.deposits {
		v := v
		s.deposits[k] = &v
	}
	s.withdrawals = make(map[uuid.UUID]*domain.Withdrawal, len(snap.withdrawals))
	for k, v := range snap.withdrawals {
		v := v
		s.withdrawals[k] = &v
	}
}

// --- test setup helpers ---

func (s *memStore) seedWallets(owner uuid.UUID, brl, usdt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for c, bal := range map[domain.Currency]string{domain.CurrencyBRL: brl, domain.CurrencyUSDT: usdt} {
		s.wallets[walletKey{owner, c}] = &domain.Wallet{
			ID: uuid.New(), OwnerID: owner, Currency: c,
			Balance: decimal.RequireFromString(bal), CreatedAt: now, UpdatedAt: now,
		}
	}
}

func (s *memStore) balance(owner uuid.UUID, c domain.Currency) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletKey{owner, c}]
	if !ok {
		return decimal.Zero
	}
	return w.Balance
}

func (s *memStore) addPixKey(owner uuid.UUID, value string) *domain.PixKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := &domain.PixKey{ID: uuid.New(), OwnerID: owner, KeyType: domain.PixKeyTypeEmail, KeyValue: value, CreatedAt: time.Now()}
	s.pixKeys[k.ID] = k
	return k
}

func (s *memStore) transactionsOf(owner uuid.UUID) []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, t := range s.txns {
		if t.OwnerID == owner {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *memStore) setFailCredit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCredit = err
}

func (s *memStore) callbackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callbacks)
}

func (s *memStore) deposit(chargeID string) *domain.Deposit {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deposits[chargeID]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

// --- WalletRepository ---

type memWallets struct{ *memStore }

func (r memWallets) Ensure(ctx context.Context, ownerID uuid.UUID, currencies []domain.Currency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, c := range currencies {
		k := walletKey{ownerID, c}
		if _, ok := r.wallets[k]; !ok {
			r.wallets[k] = &domain.Wallet{ID: uuid.New(), OwnerID: ownerID, Currency: c, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
		}
	}
	return nil
}

func (r memWallets) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Wallet
	for _, c := range domain.SupportedCurrencies {
		if w, ok := r.wallets[walletKey{ownerID, c}]; ok {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r memWallets) GetByOwner(ctx context.Context, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletKey{ownerID, currency}]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r memWallets) GetForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	return r.GetByOwner(ctx, ownerID, currency)
}

func (r memWallets) Debit(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletKey{ownerID, currency}]
	if !ok {
		return nil, nil
	}
	if w.Balance.LessThan(amount) {
		return nil, ports.ErrInsufficientBalance
	}
	w.Balance = w.Balance.Sub(amount)
	w.UpdatedAt = time.Now().UTC()
	cp := *w
	return &cp, nil
}

func (r memWallets) Credit(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID, currency domain.Currency, amount decimal.Decimal) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCredit != nil {
		return nil, r.failCredit
	}
	w, ok := r.wallets[walletKey{ownerID, currency}]
	if !ok {
		return nil, nil
	}
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = time.Now().UTC()
	cp := *w
	return &cp, nil
}

// --- TransactionRepository ---

type memTxns struct{ *memStore }

func (r memTxns) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.txns[t.ID] = &cp
	return nil
}

func (r memTxns) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txns[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r memTxns) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txns[id]
	if !ok {
		return errors.New("transaction not found")
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memTxns) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	all := r.transactionsOf(params.OwnerID)
	return all, int64(len(all)), nil
}

// --- DepositRepository ---

type memDeposits struct{ *memStore }

func (r memDeposits) Create(ctx context.Context, tx pgx.Tx, d *domain.Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deposits[d.ChargeID] = &cp
	return nil
}

func (r memDeposits) GetByChargeID(ctx context.Context, chargeID string) (*domain.Deposit, error) {
	return r.deposit(chargeID), nil
}

func (r memDeposits) GetByChargeIDForUpdate(ctx context.Context, tx pgx.Tx, chargeID string) (*domain.Deposit, error) {
	return r.deposit(chargeID), nil
}

func (r memDeposits) MarkCompleted(ctx context.Context, tx pgx.Tx, d *domain.Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.deposits[d.ChargeID]
	if !ok || cur.Status != domain.DepositStatusPending {
		return errors.New("pending deposit not found")
	}
	cp := *d
	cp.Status = domain.DepositStatusCompleted
	r.deposits[d.ChargeID] = &cp
	return nil
}

func (r memDeposits) MarkFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deposits {
		if d.ID == id && d.Status == domain.DepositStatusPending {
			d.Status = domain.DepositStatusFailed
			return nil
		}
	}
	return errors.New("pending deposit not found")
}

func (r memDeposits) ListPending(ctx context.Context, ownerID uuid.UUID, since time.Time) ([]domain.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Deposit
	for _, d := range r.deposits {
		if d.OwnerID == ownerID && d.Status == domain.DepositStatusPending && !d.CreatedAt.Before(since) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r memDeposits) LockExpired(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]domain.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Deposit
	for _, d := range r.deposits {
		if len(out) == limit {
			break
		}
		if d.Status == domain.DepositStatusPending && d.ExpiresAt.Before(now) {
			out = append(out, *d)
		}
	}
	return out, nil
}

// --- WithdrawalRepository ---

type memWithdrawals struct{ *memStore }

func (r memWithdrawals) Create(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.withdrawals[w.ID] = &cp
	return nil
}

func (r memWithdrawals) GetByID(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.withdrawals[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r memWithdrawals) UpdateResult(ctx context.Context, tx pgx.Tx, w *domain.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.withdrawals[w.ID]; !ok {
		return errors.New("withdrawal not found")
	}
	cp := *w
	r.withdrawals[w.ID] = &cp
	return nil
}

// --- CallbackLogRepository ---

type memCallbacks struct{ *memStore }

func (r memCallbacks) Insert(ctx context.Context, cb *domain.ProviderCallback) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb.ExternalID != nil && len([]rune(*cb.ExternalID)) > domain.MaxEndToEndIDLen {
		return false, errors.New("value too long for type character varying(64)")
	}
	if _, ok := r.callbacks[cb.PayloadHash]; ok {
		return false, nil
	}
	cp := *cb
	r.callbacks[cb.PayloadHash] = &cp
	return true, nil
}

func (r memCallbacks) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.callbacks {
		if cb.ID == id {
			now := time.Now().UTC()
			cb.Processed = true
			cb.ProcessedAt = &now
			return nil
		}
	}
	return errors.New("callback not found")
}

// --- PixKeyRepository ---

type memPixKeys struct{ *memStore }

func (r memPixKeys) GetByID(ctx context.Context, id uuid.UUID) (*domain.PixKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.pixKeys[id]
	if !ok {
		return nil, nil
	}
	cp := *k
	return &cp, nil
}

// --- Notifier ---

// recordingNotifier keeps every event it was asked to deliver.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// plainEncryption is a reversible EncryptionService for tests.
type plainEncryption struct{}

func (plainEncryption) Encrypt(s string) (string, error) { return "enc:" + s, nil }
func (plainEncryption) Decrypt(s string) (string, error) { return s[len("enc:"):], nil }

// memEnv wires the money-moving services over one memStore.
type memEnv struct {
	store    *memStore
	ledger   *LedgerServiceImpl
	settler  *Settler
	notifier *recordingNotifier
	metrics  *Metrics
}

func newMemEnv() *memEnv {
	store := newMemStore()
	metrics := NewNopMetrics()
	notifier := &recordingNotifier{}
	ledger := NewLedgerService(memWallets{store}, memTxns{store}, store, newTestLogger())
	settler := NewSettler(memDeposits{store}, memTxns{store}, ledger, store, plainEncryption{}, notifier, metrics, newTestLogger())
	return &memEnv{store: store, ledger: ledger, settler: settler, notifier: notifier, metrics: metrics}
}
