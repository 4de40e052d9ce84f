/*
balance.go - Balance Ledger

PURPOSE:
  Owns Account.Balance for customers and suppliers. Returns and receipts
  debit the balance of their counter-party; deleting them credits it back.
  Every write goes through the Concurrency-Safe Writer and the committed
  (before, after) pair is stamped on the driving operation.

SIGN CONVENTION:
  Positive balance = the counter-party owes the business. A customer
  return or a receipt reduces what is owed.

OPT-OUT:
  A return with BalanceRestored == false leaves the balance alone. Its
  snapshot pair is the live balance twice (or zero twice when it names no
  counter-party), so OldBalance == NewBalance.
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

// BalanceLedger owns Account.Balance.
type BalanceLedger struct {
	base
}

func NewBalanceLedger(w *generic.Writer, opts ...Option) *BalanceLedger {
	return &BalanceLedger{base: newBase(w, "balance_ledger", opts)}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountInput registers a customer or supplier.
type AccountInput struct {
	ID             string // optional
	Kind           AccountKind
	Name           string
	OpeningBalance float64 // may be negative: the business owes them
}

func (l *BalanceLedger) CreateAccount(ctx context.Context, in AccountInput) (*Account, error) {
	if !in.Kind.Valid() {
		return nil, &InvalidKindError{Field: "account kind", Value: string(in.Kind)}
	}
	opening, err := quantityOf("opening_balance", abs(in.OpeningBalance), true)
	if err != nil {
		return nil, err
	}
	if in.OpeningBalance < 0 {
		opening = opening.Neg()
	}

	id := in.ID
	if id == "" {
		id = l.newID()
	}
	acct := Account{
		ID:        id,
		Kind:      in.Kind,
		Name:      in.Name,
		Balance:   opening,
		CreatedAt: l.now(),
	}
	if err := l.insert(ctx, in.Kind.Table(), acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (l *BalanceLedger) Account(ctx context.Context, kind AccountKind, id string) (*Account, error) {
	if !kind.Valid() {
		return nil, &InvalidKindError{Field: "account kind", Value: string(kind)}
	}
	acct, err := fetchAs[Account](ctx, l.store, kind.Table(), id)
	if err != nil {
		return nil, translateAccountNotFound(err, kind, id)
	}
	acct.Kind = kind
	return acct, nil
}

func (l *BalanceLedger) Accounts(ctx context.Context, kind AccountKind) ([]Account, error) {
	if !kind.Valid() {
		return nil, &InvalidKindError{Field: "account kind", Value: string(kind)}
	}
	return fetchAllAs[Account](ctx, l.store, kind.Table(), nil)
}

// =============================================================================
// RETURN EFFECTS
// =============================================================================

// ApplyReturnBalanceEffect debits the counter-party by ret.Total and stamps
// ret.OldBalance / ret.NewBalance.
func (l *BalanceLedger) ApplyReturnBalanceEffect(ctx context.Context, ret *ReturnOperation) error {
	kind := ret.Direction.AccountKind()
	if !ret.BalanceRestored {
		if ret.CounterPartyID == "" {
			ret.OldBalance, ret.NewBalance = decimal.Zero, decimal.Zero
			return nil
		}
		acct, err := l.Account(ctx, kind, ret.CounterPartyID)
		if err != nil {
			return err
		}
		ret.OldBalance, ret.NewBalance = acct.Balance, acct.Balance
		return nil
	}

	if ret.CounterPartyID == "" {
		return &EntityNotFoundError{Kind: kind}
	}
	res, err := l.debit(ctx, kind, ret.CounterPartyID, ret.Total)
	if err != nil {
		return err
	}
	ret.OldBalance, ret.NewBalance = res.Before, res.After
	return nil
}

// ReverseReturnBalanceEffect credits ret.Total back. The balance is not
// restored to ret.OldBalance: later operations on the account survive.
func (l *BalanceLedger) ReverseReturnBalanceEffect(ctx context.Context, ret ReturnOperation) error {
	if !ret.BalanceRestored {
		return nil
	}
	_, err := l.credit(ctx, ret.Direction.AccountKind(), ret.CounterPartyID, ret.Total)
	return err
}

// =============================================================================
// LIVE BALANCE WRITES
// =============================================================================

func (l *BalanceLedger) debit(ctx context.Context, kind AccountKind, id string, amount decimal.Decimal) (generic.DeltaResult, error) {
	return l.shift(ctx, kind, id, amount.Neg())
}

func (l *BalanceLedger) credit(ctx context.Context, kind AccountKind, id string, amount decimal.Decimal) (generic.DeltaResult, error) {
	return l.shift(ctx, kind, id, amount)
}

func (l *BalanceLedger) shift(ctx context.Context, kind AccountKind, id string, delta decimal.Decimal) (generic.DeltaResult, error) {
	res, err := l.writer.ApplyDelta(ctx, generic.DeltaRequest{
		Table: kind.Table(),
		ID:    id,
		Field: fieldBalance,
		Compute: func(cur decimal.Decimal) decimal.Decimal {
			return cur.Add(delta)
		},
	})
	if err != nil {
		return res, translateAccountNotFound(err, kind, id)
	}
	l.log.WithFields(logrus.Fields{
		"kind":        kind,
		"account_id":  id,
		"old_balance": res.Before.String(),
		"new_balance": res.After.String(),
	}).Debug("balance moved")
	return res, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
