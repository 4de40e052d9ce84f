package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/M7sN2/AsilSys-sub001/generic"
)

// ReceiptService records cash receipts against counter-party balances.
// A receipt debits the balance the same way a return does and carries its
// own (OldBalance, NewBalance) pair.
type ReceiptService struct {
	base
	balances *BalanceLedger
}

func NewReceiptService(balances *BalanceLedger, opts ...Option) *ReceiptService {
	return &ReceiptService{
		base:     newBase(balances.writer, "receipts", opts),
		balances: balances,
	}
}

// ReceiptInput describes a new receipt. Amount must be positive.
type ReceiptInput struct {
	Kind           AccountKind
	CounterPartyID string
	Amount         float64
	Date           time.Time
	Note           string
}

func (s *ReceiptService) CreateReceipt(ctx context.Context, in ReceiptInput) (*Receipt, error) {
	if !in.Kind.Valid() {
		return nil, &InvalidKindError{Field: "account kind", Value: string(in.Kind)}
	}
	amount, err := quantityOf("amount", in.Amount, false)
	if err != nil {
		return nil, err
	}
	if in.CounterPartyID == "" {
		return nil, &EntityNotFoundError{Kind: in.Kind}
	}

	seq, err := s.nextSequence(ctx, TableReceipts)
	if err != nil {
		return nil, err
	}
	res, err := s.balances.debit(ctx, in.Kind, in.CounterPartyID, amount)
	if err != nil {
		return nil, err
	}

	rc := Receipt{
		ID:               s.newID(),
		Sequence:         seq,
		CounterPartyKind: in.Kind,
		CounterPartyID:   in.CounterPartyID,
		Date:             s.dateOr(in.Date),
		Amount:           amount,
		Note:             in.Note,
		OldBalance:       res.Before,
		NewBalance:       res.After,
		CreatedAt:        s.now(),
	}
	if err := s.insert(ctx, TableReceipts, rc); err != nil {
		_, rbErr := s.balances.credit(ctx, in.Kind, in.CounterPartyID, amount)
		if rbErr != nil {
			s.log.WithError(rbErr).WithField("account_id", in.CounterPartyID).
				Error("failed to roll back balance after receipt insert failure")
		}
		return nil, errors.Join(fmt.Errorf("persist receipt: %w", err), rbErr)
	}

	s.log.WithFields(logrus.Fields{
		"receipt_id":  rc.ID,
		"account_id":  rc.CounterPartyID,
		"old_balance": rc.OldBalance.String(),
		"new_balance": rc.NewBalance.String(),
	}).Debug("receipt recorded")
	return &rc, nil
}

// DeleteReceipt credits the amount back and removes the record.
func (s *ReceiptService) DeleteReceipt(ctx context.Context, id string) (*Receipt, error) {
	rc, err := s.Receipt(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.balances.credit(ctx, rc.CounterPartyKind, rc.CounterPartyID, rc.Amount); err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, TableReceipts, id); err != nil {
		_, rbErr := s.balances.debit(ctx, rc.CounterPartyKind, rc.CounterPartyID, rc.Amount)
		return nil, errors.Join(fmt.Errorf("delete receipt %s: %w", id, err), rbErr)
	}
	return rc, nil
}

func (s *ReceiptService) Receipt(ctx context.Context, id string) (*Receipt, error) {
	rc, err := fetchAs[Receipt](ctx, s.store, TableReceipts, id)
	if err != nil {
		return nil, translateNotFound(err, "receipt", id)
	}
	return rc, nil
}

// Receipts lists receipts for one counter-party, oldest first.
func (s *ReceiptService) Receipts(ctx context.Context, kind AccountKind, counterPartyID string) ([]Receipt, error) {
	rcs, err := fetchAllAs[Receipt](ctx, s.store, TableReceipts, generic.Filter{
		"counter_party_kind": string(kind),
		"counter_party_id":   counterPartyID,
	})
	if err != nil {
		return nil, err
	}
	sortByDate(rcs, func(r Receipt) (time.Time, time.Time, int64, string) {
		return r.Date, r.CreatedAt, r.Sequence, r.ID
	})
	return rcs, nil
}
