// Package store is the Postgres-backed storage.Store used by the gateway.
// Addresses and hashes are stored as lowercase hex text, amounts as decimal
// text, role sets as jsonb.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"intentlane/pkg/domain"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const schema = `
CREATE TABLE IF NOT EXISTS settlement_policies (
	intent_id            text PRIMARY KEY,
	min_amount_out       text NOT NULL,
	reference_amount_out text NOT NULL,
	max_slippage_bps     integer NOT NULL,
	deadline             bigint NOT NULL,
	delegated_updater    text NOT NULL,
	updated_at           timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS settled_intents (
	intent_id  text PRIMARY KEY,
	settled_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS access_registry (
	singleton          boolean PRIMARY KEY DEFAULT true CHECK (singleton),
	owner              text NOT NULL,
	pending_owner      text NOT NULL DEFAULT '',
	delegated_updaters jsonb NOT NULL DEFAULT '[]'::jsonb,
	authorized_solvers jsonb NOT NULL DEFAULT '[]'::jsonb,
	updated_at         timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS settlement_receipts (
	receipt_id        text PRIMARY KEY,
	intent_id         text NOT NULL UNIQUE,
	user_address      text NOT NULL,
	solver            text NOT NULL,
	token_in          text NOT NULL,
	token_out         text NOT NULL,
	amount_in         text NOT NULL,
	quoted_amount_out text NOT NULL,
	settled_at        timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS settlement_events (
	id          bigserial PRIMARY KEY,
	intent_id   text NOT NULL DEFAULT '',
	type        text NOT NULL,
	actor       text NOT NULL DEFAULT '',
	payload     jsonb NOT NULL DEFAULT '{}'::jsonb,
	occurred_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS settlement_events_intent_idx ON settlement_events(intent_id, id);
`

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schema)
	return err
}

// SeedAccess installs the initial owner if no registry row exists yet.
func (s *Store) SeedAccess(ctx context.Context, owner common.Address) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO access_registry(singleton, owner) VALUES (true, $1)
ON CONFLICT (singleton) DO NOTHING`, hexAddr(owner))
	return err
}

func (s *Store) GetPolicy(ctx context.Context, intentID common.Hash) (domain.Policy, bool, error) {
	var minOut, refOut, updater string
	var bps int32
	var deadline int64
	err := s.DB.QueryRow(ctx, `
SELECT min_amount_out, reference_amount_out, max_slippage_bps, deadline, delegated_updater
FROM settlement_policies WHERE intent_id=$1`, intentID.Hex()).
		Scan(&minOut, &refOut, &bps, &deadline, &updater)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Policy{}, false, nil
	}
	if err != nil {
		return domain.Policy{}, false, err
	}
	p := domain.Policy{
		IntentID:         intentID,
		MaxSlippageBps:   uint32(bps),
		Deadline:         uint64(deadline),
		DelegatedUpdater: common.HexToAddress(updater),
	}
	if p.MinAmountOut, err = parseAmount(minOut); err != nil {
		return domain.Policy{}, false, fmt.Errorf("policy %s: %w", intentID.Hex(), err)
	}
	if p.ReferenceAmountOut, err = parseAmount(refOut); err != nil {
		return domain.Policy{}, false, fmt.Errorf("policy %s: %w", intentID.Hex(), err)
	}
	return p, true, nil
}

func (s *Store) PutPolicy(ctx context.Context, p domain.Policy) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO settlement_policies(intent_id, min_amount_out, reference_amount_out, max_slippage_bps, deadline, delegated_updater)
VALUES($1,$2,$3,$4,$5,$6)
ON CONFLICT (intent_id) DO UPDATE SET
  min_amount_out=EXCLUDED.min_amount_out,
  reference_amount_out=EXCLUDED.reference_amount_out,
  max_slippage_bps=EXCLUDED.max_slippage_bps,
  deadline=EXCLUDED.deadline,
  delegated_updater=EXCLUDED.delegated_updater,
  updated_at=now()`,
		p.IntentID.Hex(), p.MinAmountOut.String(), p.ReferenceAmountOut.String(),
		int32(p.MaxSlippageBps), int64(p.Deadline), hexAddr(p.DelegatedUpdater))
	return err
}

func (s *Store) IsSettled(ctx context.Context, intentID common.Hash) (bool, error) {
	var one int
	err := s.DB.QueryRow(ctx, `SELECT 1 FROM settled_intents WHERE intent_id=$1`, intentID.Hex()).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) MarkSettled(ctx context.Context, intentID common.Hash) error {
	tag, err := s.DB.Exec(ctx, `
INSERT INTO settled_intents(intent_id) VALUES($1) ON CONFLICT (intent_id) DO NOTHING`, intentID.Hex())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadySettled
	}
	return nil
}

func (s *Store) GetAccess(ctx context.Context) (domain.AccessState, error) {
	var owner, pending string
	var updatersJSON, solversJSON []byte
	err := s.DB.QueryRow(ctx, `
SELECT owner, pending_owner, delegated_updaters, authorized_solvers FROM access_registry WHERE singleton`).
		Scan(&owner, &pending, &updatersJSON, &solversJSON)
	if err != nil {
		return domain.AccessState{}, err
	}
	a := domain.NewAccessState(common.HexToAddress(owner))
	if pending != "" {
		a.PendingOwner = common.HexToAddress(pending)
	}
	if err := fillSet(updatersJSON, a.DelegatedUpdaters); err != nil {
		return domain.AccessState{}, err
	}
	if err := fillSet(solversJSON, a.AuthorizedSolvers); err != nil {
		return domain.AccessState{}, err
	}
	return a, nil
}

func (s *Store) PutAccess(ctx context.Context, a domain.AccessState) error {
	pending := ""
	if a.PendingOwner != (common.Address{}) {
		pending = hexAddr(a.PendingOwner)
	}
	updaters, _ := json.Marshal(setToList(a.DelegatedUpdaters))
	solvers, _ := json.Marshal(setToList(a.AuthorizedSolvers))
	_, err := s.DB.Exec(ctx, `
INSERT INTO access_registry(singleton, owner, pending_owner, delegated_updaters, authorized_solvers)
VALUES (true, $1, $2, $3::jsonb, $4::jsonb)
ON CONFLICT (singleton) DO UPDATE SET
  owner=EXCLUDED.owner,
  pending_owner=EXCLUDED.pending_owner,
  delegated_updaters=EXCLUDED.delegated_updaters,
  authorized_solvers=EXCLUDED.authorized_solvers,
  updated_at=now()`,
		hexAddr(a.Owner), pending, string(updaters), string(solvers))
	return err
}

func (s *Store) PutReceipt(ctx context.Context, r domain.Receipt) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO settlement_receipts(receipt_id, intent_id, user_address, solver, token_in, token_out, amount_in, quoted_amount_out, settled_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ReceiptID, r.IntentID.Hex(), hexAddr(r.User), hexAddr(r.Solver),
		hexAddr(r.TokenIn), hexAddr(r.TokenOut), r.AmountIn.String(), r.QuotedAmountOut.String(), r.SettledAt)
	return err
}

func (s *Store) GetReceipt(ctx context.Context, intentID common.Hash) (domain.Receipt, bool, error) {
	var r domain.Receipt
	var user, solver, tokenIn, tokenOut, amountIn, quotedOut string
	var settledAt time.Time
	err := s.DB.QueryRow(ctx, `
SELECT receipt_id, user_address, solver, token_in, token_out, amount_in, quoted_amount_out, settled_at
FROM settlement_receipts WHERE intent_id=$1`, intentID.Hex()).
		Scan(&r.ReceiptID, &user, &solver, &tokenIn, &tokenOut, &amountIn, &quotedOut, &settledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Receipt{}, false, nil
	}
	if err != nil {
		return domain.Receipt{}, false, err
	}
	r.IntentID = intentID
	r.User = common.HexToAddress(user)
	r.Solver = common.HexToAddress(solver)
	r.TokenIn = common.HexToAddress(tokenIn)
	r.TokenOut = common.HexToAddress(tokenOut)
	r.SettledAt = settledAt
	if r.AmountIn, err = parseAmount(amountIn); err != nil {
		return domain.Receipt{}, false, err
	}
	if r.QuotedAmountOut, err = parseAmount(quotedOut); err != nil {
		return domain.Receipt{}, false, err
	}
	return r, true, nil
}

func (s *Store) AppendEvent(ctx context.Context, e domain.Event) error {
	payload, _ := json.Marshal(e.Payload)
	intentID := ""
	if e.IntentID != (common.Hash{}) {
		intentID = e.IntentID.Hex()
	}
	actor := ""
	if e.Actor != (common.Address{}) {
		actor = hexAddr(e.Actor)
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO settlement_events(intent_id, type, actor, payload, occurred_at)
VALUES($1,$2,$3,$4::jsonb,$5)`, intentID, e.Type, actor, string(payload), at)
	return err
}

func (s *Store) ListEvents(ctx context.Context, intentID common.Hash) ([]domain.Event, error) {
	rows, err := s.DB.Query(ctx, `
SELECT type, actor, payload, occurred_at FROM settlement_events WHERE intent_id=$1 ORDER BY id ASC`, intentID.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var actor string
		var payload []byte
		if err := rows.Scan(&e.Type, &actor, &payload, &e.At); err != nil {
			return nil, err
		}
		e.IntentID = intentID
		if actor != "" {
			e.Actor = common.HexToAddress(actor)
		}
		_ = json.Unmarshal(payload, &e.Payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func hexAddr(a common.Address) string { return a.Hex() }

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed stored amount %q", s)
	}
	return v, nil
}

func fillSet(raw []byte, set map[common.Address]bool) error {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return err
	}
	for _, s := range list {
		set[common.HexToAddress(s)] = true
	}
	return nil
}

func setToList(set map[common.Address]bool) []string {
	out := make([]string, 0, len(set))
	for a, ok := range set {
		if ok {
			out = append(out, a.Hex())
		}
	}
	return out
}
