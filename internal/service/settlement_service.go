package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/divvyhq/divvy/internal/models"
)

// SettlementInput is the payload for recording a settlement payment.
type SettlementInput struct {
	GroupID    string          `json:"group_id" validate:"required"`
	FromUserID string          `json:"from_user" validate:"required"`
	ToUserID   string          `json:"to_user" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
	ExpenseIDs []string        `json:"expense_ids,omitempty"`
	Note       string          `json:"note,omitempty"`
}

func (s *Service) buildSettlement(in SettlementInput) (models.Settlement, error) {
	if err := s.checkStruct(in); err != nil {
		return models.Settlement{}, err
	}
	if in.Amount.Sign() <= 0 {
		return models.Settlement{}, validationErr("settlement amount must be positive")
	}
	if in.FromUserID == in.ToUserID {
		return models.Settlement{}, validationErr("cannot settle with yourself")
	}

	group, ok := s.domain.Group(in.GroupID)
	if !ok {
		return models.Settlement{}, validationErr("unknown group %q", in.GroupID)
	}
	for _, userID := range []string{in.FromUserID, in.ToUserID} {
		if !group.HasMember(userID) {
			return models.Settlement{}, validationErr("user %q is not a member of group %q", userID, in.GroupID)
		}
	}
	for _, expenseID := range in.ExpenseIDs {
		expense, ok := s.domain.Expense(expenseID)
		if !ok {
			return models.Settlement{}, validationErr("unknown expense %q", expenseID)
		}
		if expense.GroupID != in.GroupID {
			return models.Settlement{}, validationErr("expense %q belongs to a different group", expenseID)
		}
	}

	return models.Settlement{
		GroupID:    in.GroupID,
		FromUserID: in.FromUserID,
		ToUserID:   in.ToUserID,
		Amount:     in.Amount,
		ExpenseIDs: in.ExpenseIDs,
		Note:       in.Note,
		CreatedAt:  time.Now().Unix(),
	}, nil
}

// CreateSettlement records a payment between two members.
func (s *Service) CreateSettlement(ctx context.Context, in SettlementInput) (models.Settlement, error) {
	settlement, err := s.buildSettlement(in)
	if err != nil {
		return models.Settlement{}, err
	}

	payload, err := json.Marshal(settlement)
	if err != nil {
		return models.Settlement{}, fmt.Errorf("failed to encode settlement: %w", err)
	}

	raw, handled, err := s.tryCreateOnline(ctx, models.EntitySettlement, payload)
	if err != nil {
		return models.Settlement{}, err
	}
	if handled {
		id, err := s.domain.ApplyRemote(ctx, models.EntitySettlement, raw)
		if err != nil {
			return models.Settlement{}, err
		}
		created, _ := s.domain.Settlement(id)
		return created, nil
	}

	tempID := s.ids.TempID()
	settlement.ID = tempID
	if err := s.domain.UpsertSettlement(ctx, settlement); err != nil {
		return models.Settlement{}, err
	}
	snapshot, err := json.Marshal(settlement)
	if err != nil {
		return models.Settlement{}, fmt.Errorf("failed to encode settlement: %w", err)
	}
	if err := s.enqueue(ctx, models.EntitySettlement, models.OpCreate, tempID, snapshot); err != nil {
		return models.Settlement{}, err
	}
	return settlement, nil
}

// DeleteSettlement removes a recorded payment, restoring the debt it cleared.
func (s *Service) DeleteSettlement(ctx context.Context, id string) error {
	if _, ok := s.domain.Settlement(id); !ok {
		return fmt.Errorf("settlement %q: %w", id, ErrNotFound)
	}

	resolved := s.ids.Resolve(id)
	handled, err := s.tryDeleteOnline(ctx, models.EntitySettlement, resolved)
	if err != nil {
		return err
	}
	if err := s.domain.Remove(ctx, models.EntitySettlement, id); err != nil {
		return err
	}
	if handled {
		return nil
	}
	return s.enqueue(ctx, models.EntitySettlement, models.OpDelete, resolved, nil)
}
