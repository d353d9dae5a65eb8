package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ChatWallet/internal/custody"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/quote"
	"ChatWallet/pkg/logger"
)

// Provisioner creates custodial accounts.
type Provisioner interface {
	Provision(ctx context.Context, chainID uint64) (custody.Account, error)
}

// Option customises the service.
type Option func(*Service)

// WithLocker replaces the in-process locker.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithDefaultChain sets the chain new wallets are provisioned on.
func WithDefaultChain(chainID uint64) Option {
	return func(s *Service) {
		if chainID != 0 {
			s.defaultChain = chainID
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// Service is the only writer of wallet records. Every mutation runs inside a
// per-session critical section.
type Service struct {
	store        Store
	provisioner  Provisioner
	locker       Locker
	defaultChain uint64
	now          func() time.Time
	log          *slog.Logger
}

// NewService wires a store and a provisioner.
func NewService(store Store, provisioner Provisioner, opts ...Option) *Service {
	s := &Service{
		store:        store,
		provisioner:  provisioner,
		locker:       NewMemoryLocker(),
		defaultChain: 1,
		now:          time.Now,
		log:          logger.Named("wallet"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Session is a locked view of one session's wallet. It is only valid inside
// the WithSession callback that produced it.
type Session struct {
	svc *Service
	id  string
}

// ID returns the session id.
func (t *Session) ID() string {
	return t.id
}

// WithSession runs fn while holding the session lock.
func (s *Service) WithSession(ctx context.Context, sessionID string, fn func(*Session) error) error {
	unlock, err := s.locker.Lock(ctx, lockKey(sessionID))
	if err != nil {
		return s.storeUnavailable("lock", sessionID, err)
	}
	defer unlock()
	return fn(&Session{svc: s, id: sessionID})
}

// GetWallet is a pure lookup. It returns nil when the session has no wallet.
func (s *Service) GetWallet(ctx context.Context, sessionID string) (*Record, error) {
	record, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, s.storeUnavailable("get", sessionID, err)
	}
	return &record, nil
}

// CreateWallet returns the session's wallet, provisioning one if it has none.
// created is false when the wallet already existed.
func (s *Service) CreateWallet(ctx context.Context, sessionID string) (record *Record, created bool, err error) {
	err = s.WithSession(ctx, sessionID, func(t *Session) error {
		record, created, err = t.CreateWallet(ctx)
		return err
	})
	return record, created, err
}

// SetPendingSwap stages a swap quote, replacing any other pending operation.
func (s *Service) SetPendingSwap(ctx context.Context, sessionID string, q quote.Quote) error {
	return s.setPending(ctx, sessionID, quote.KindSwap, q)
}

// SetPendingBridge stages a bridge quote, replacing any other pending operation.
func (s *Service) SetPendingBridge(ctx context.Context, sessionID string, q quote.Quote) error {
	return s.setPending(ctx, sessionID, quote.KindBridge, q)
}

// SetPendingSend stages a transfer, replacing any other pending operation.
func (s *Service) SetPendingSend(ctx context.Context, sessionID string, q quote.Quote) error {
	return s.setPending(ctx, sessionID, quote.KindSend, q)
}

func (s *Service) setPending(ctx context.Context, sessionID string, kind quote.Kind, q quote.Quote) error {
	return s.WithSession(ctx, sessionID, func(t *Session) error {
		_, err := t.Stage(ctx, kind, q)
		return err
	})
}

// ClearPending drops the pending operation if it is of kind. An empty kind
// clears whatever is staged.
func (s *Service) ClearPending(ctx context.Context, sessionID string, kind quote.Kind) (cleared bool, err error) {
	err = s.WithSession(ctx, sessionID, func(t *Session) error {
		cleared, err = t.Clear(ctx, kind)
		return err
	})
	return cleared, err
}

// TakePending removes and returns the staged operation.
func (s *Service) TakePending(ctx context.Context, sessionID string) (record Record, op PendingOperation, err error) {
	err = s.WithSession(ctx, sessionID, func(t *Session) error {
		record, op, err = t.Take(ctx)
		return err
	})
	return record, op, err
}

// Wallet reads the record under the session lock, nil when absent.
func (t *Session) Wallet(ctx context.Context) (*Record, error) {
	return t.svc.GetWallet(ctx, t.id)
}

// CreateWallet provisions at most one wallet for the session.
func (t *Session) CreateWallet(ctx context.Context) (*Record, bool, error) {
	s := t.svc
	existing, err := t.Wallet(ctx)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	acct, err := s.provisioner.Provision(ctx, s.defaultChain)
	if err != nil {
		return nil, false, err
	}
	now := s.now().UTC()
	record := Record{
		SessionID:     t.id,
		Address:       acct.Address,
		SignerAddress: acct.SignerAddress,
		KeyHandle:     acct.KeyHandle,
		ChainID:       acct.ChainID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, ErrWalletConflict) {
			s.log.Warn("wallet created concurrently by another replica", slog.String("session_id", t.id))
			winner, getErr := t.Wallet(ctx)
			if getErr != nil {
				return nil, false, getErr
			}
			if winner != nil {
				return winner, false, nil
			}
		}
		return nil, false, s.storeUnavailable("create", t.id, err)
	}
	logger.Audit().Info("wallet created",
		slog.String("session_id", t.id),
		slog.String("address", record.Address.Hex()),
		slog.Uint64("chain_id", record.ChainID),
	)
	return &record, true, nil
}

// Stage sets the single pending slot and returns what it replaced.
func (t *Session) Stage(ctx context.Context, kind quote.Kind, q quote.Quote) (*PendingOperation, error) {
	record, err := t.require(ctx)
	if err != nil {
		return nil, err
	}
	replaced := record.Pending
	record.Pending = &PendingOperation{Kind: kind, Quote: q}
	if err := t.save(ctx, record); err != nil {
		return nil, err
	}
	if replaced != nil {
		t.svc.log.Info("pending operation replaced",
			slog.String("session_id", t.id),
			slog.String("previous_kind", string(replaced.Kind)),
			slog.String("kind", string(kind)),
		)
	}
	logger.Audit().Info("quote staged",
		slog.String("session_id", t.id),
		slog.String("kind", string(kind)),
		slog.String("quote_id", q.ID),
	)
	return replaced, nil
}

// Clear drops the pending slot when it matches kind.
func (t *Session) Clear(ctx context.Context, kind quote.Kind) (bool, error) {
	record, err := t.require(ctx)
	if err != nil {
		return false, err
	}
	if record.Pending == nil || (kind != "" && record.Pending.Kind != kind) {
		return false, nil
	}
	record.Pending = nil
	if err := t.save(ctx, record); err != nil {
		return false, err
	}
	return true, nil
}

// Take empties the pending slot and returns what was staged. The slot is
// cleared before the caller executes anything.
func (t *Session) Take(ctx context.Context) (Record, PendingOperation, error) {
	record, err := t.require(ctx)
	if err != nil {
		return Record{}, PendingOperation{}, err
	}
	if record.Pending == nil {
		return record, PendingOperation{}, xerrors.New(CodeNoPendingOperation, "")
	}
	op := *record.Pending
	record.Pending = nil
	if err := t.save(ctx, record); err != nil {
		return Record{}, PendingOperation{}, err
	}
	return record, op, nil
}

func (t *Session) require(ctx context.Context) (Record, error) {
	record, err := t.Wallet(ctx)
	if err != nil {
		return Record{}, err
	}
	if record == nil {
		return Record{}, xerrors.New(CodeNoWallet, "")
	}
	return *record, nil
}

func (t *Session) save(ctx context.Context, record Record) error {
	record.UpdatedAt = t.svc.now().UTC()
	if err := t.svc.store.Save(ctx, record); err != nil {
		return t.svc.storeUnavailable("save", t.id, err)
	}
	return nil
}

func (s *Service) storeUnavailable(op, sessionID string, err error) error {
	s.log.Error("wallet store unavailable",
		slog.String("op", op),
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
	)
	return xerrors.Wrap(CodeStoreUnavailable, err, "",
		xerrors.WithMetadata("op", op),
		xerrors.WithMetadata("session_id", sessionID),
	)
}

func lockKey(sessionID string) string {
	return "wallet:" + sessionID
}
