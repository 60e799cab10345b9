package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/divvyhq/divvy/internal/ledger"
	"github.com/divvyhq/divvy/internal/models"
)

// SplitInput is one custom share in an expense input.
type SplitInput struct {
	UserID string          `json:"user_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// ExpenseInput is the payload for creating or updating an expense.
type ExpenseInput struct {
	GroupID     string `json:"group_id" validate:"required"`
	PayerID     string `json:"payer_id" validate:"required"`
	Description string `json:"description"`

	Amount decimal.Decimal `json:"amount"`

	// Date is the Unix timestamp the expense occurred; defaults to now.
	Date int64 `json:"date"`

	SplitType string `json:"split_type" validate:"required,oneof=equal custom"`

	// Participants selects who shares an equal split. Empty means every
	// group member.
	Participants []string `json:"participants,omitempty"`

	// Splits carries the explicit shares for a custom split.
	Splits []SplitInput `json:"splits,omitempty" validate:"omitempty,dive"`

	ReceiptURL string `json:"receipt_url,omitempty"`
}

// buildExpense validates the input and assembles an expense without an id.
func (s *Service) buildExpense(in ExpenseInput) (models.Expense, error) {
	if err := s.checkStruct(in); err != nil {
		return models.Expense{}, err
	}
	if in.Amount.Sign() <= 0 {
		return models.Expense{}, validationErr("expense amount must be positive")
	}

	group, ok := s.domain.Group(in.GroupID)
	if !ok {
		return models.Expense{}, validationErr("unknown group %q", in.GroupID)
	}
	if !group.HasMember(in.PayerID) {
		return models.Expense{}, validationErr("payer %q is not a member of group %q", in.PayerID, in.GroupID)
	}

	expense := models.Expense{
		GroupID:     in.GroupID,
		PayerID:     in.PayerID,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        in.Date,
		SplitType:   in.SplitType,
		ReceiptURL:  in.ReceiptURL,
	}
	if expense.Date == 0 {
		expense.Date = time.Now().Unix()
	}

	switch in.SplitType {
	case models.SplitTypeEqual:
		participants := in.Participants
		if len(participants) == 0 {
			participants = group.MemberIDs()
		}
		for _, userID := range participants {
			if !group.HasMember(userID) {
				return models.Expense{}, validationErr("participant %q is not a member of group %q", userID, in.GroupID)
			}
		}
		shares, err := ledger.EqualSplits(in.Amount, len(participants))
		if err != nil {
			return models.Expense{}, validationErr("%v", err)
		}
		for i, userID := range participants {
			expense.Splits = append(expense.Splits, models.Split{
				UserID: userID,
				Amount: shares[i],
			})
		}

	case models.SplitTypeCustom:
		if len(in.Splits) == 0 {
			return models.Expense{}, validationErr("custom split requires at least one share")
		}
		for _, split := range in.Splits {
			if !group.HasMember(split.UserID) {
				return models.Expense{}, validationErr("split user %q is not a member of group %q", split.UserID, in.GroupID)
			}
			if split.Amount.Sign() < 0 {
				return models.Expense{}, validationErr("split amount for %q cannot be negative", split.UserID)
			}
			expense.Splits = append(expense.Splits, models.Split{
				UserID: split.UserID,
				Amount: split.Amount,
			})
		}
	}

	if !expense.SplitsBalanced() {
		return models.Expense{}, validationErr(
			"splits sum to %s but the expense total is %s",
			expense.SplitSum(), expense.Amount,
		)
	}
	return expense, nil
}

// CreateExpense records a new expense, online when possible, queued
// otherwise. The returned expense carries either the canonical id or the
// optimistic temp id.
func (s *Service) CreateExpense(ctx context.Context, in ExpenseInput) (models.Expense, error) {
	expense, err := s.buildExpense(in)
	if err != nil {
		return models.Expense{}, err
	}
	expense.CreatedAt = time.Now().Unix()

	payload, err := json.Marshal(expense)
	if err != nil {
		return models.Expense{}, fmt.Errorf("failed to encode expense: %w", err)
	}

	raw, handled, err := s.tryCreateOnline(ctx, models.EntityExpense, payload)
	if err != nil {
		return models.Expense{}, err
	}
	if handled {
		id, err := s.domain.ApplyRemote(ctx, models.EntityExpense, raw)
		if err != nil {
			return models.Expense{}, err
		}
		created, _ := s.domain.Expense(id)
		return created, nil
	}

	// Offline path: give the expense a temp id, show it immediately,
	// and queue the create for the worker.
	tempID := s.ids.TempID()
	expense.ID = tempID
	for i := range expense.Splits {
		expense.Splits[i].ExpenseID = tempID
	}
	if err := s.domain.UpsertExpense(ctx, expense); err != nil {
		return models.Expense{}, err
	}
	snapshot, err := json.Marshal(expense)
	if err != nil {
		return models.Expense{}, fmt.Errorf("failed to encode expense: %w", err)
	}
	if err := s.enqueue(ctx, models.EntityExpense, models.OpCreate, tempID, snapshot); err != nil {
		return models.Expense{}, err
	}
	return expense, nil
}

// UpdateExpense replaces an expense's content.
func (s *Service) UpdateExpense(ctx context.Context, id string, in ExpenseInput) (models.Expense, error) {
	existing, ok := s.domain.Expense(id)
	if !ok {
		return models.Expense{}, fmt.Errorf("expense %q: %w", id, ErrNotFound)
	}

	expense, err := s.buildExpense(in)
	if err != nil {
		return models.Expense{}, err
	}
	expense.ID = existing.ID
	expense.CreatedAt = existing.CreatedAt
	expense.UpdatedAt = time.Now().Unix()
	for i := range expense.Splits {
		expense.Splits[i].ExpenseID = expense.ID
	}

	payload, err := json.Marshal(expense)
	if err != nil {
		return models.Expense{}, fmt.Errorf("failed to encode expense: %w", err)
	}

	resolved := s.ids.Resolve(expense.ID)
	raw, handled, err := s.tryUpdateOnline(ctx, models.EntityExpense, resolved, payload)
	if err != nil {
		return models.Expense{}, err
	}
	if handled {
		updatedID, err := s.domain.ApplyRemote(ctx, models.EntityExpense, raw)
		if err != nil {
			return models.Expense{}, err
		}
		updated, _ := s.domain.Expense(updatedID)
		return updated, nil
	}

	if err := s.domain.UpsertExpense(ctx, expense); err != nil {
		return models.Expense{}, err
	}
	if err := s.enqueue(ctx, models.EntityExpense, models.OpUpdate, expense.ID, payload); err != nil {
		return models.Expense{}, err
	}
	return expense, nil
}

// DeleteExpense removes an expense. Deleting a never-synced expense
// collapses in the queue and touches the network not at all.
func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if _, ok := s.domain.Expense(id); !ok {
		return fmt.Errorf("expense %q: %w", id, ErrNotFound)
	}

	resolved := s.ids.Resolve(id)
	handled, err := s.tryDeleteOnline(ctx, models.EntityExpense, resolved)
	if err != nil {
		return err
	}
	if err := s.domain.Remove(ctx, models.EntityExpense, id); err != nil {
		return err
	}
	if handled {
		return nil
	}
	return s.enqueue(ctx, models.EntityExpense, models.OpDelete, resolved, nil)
}
