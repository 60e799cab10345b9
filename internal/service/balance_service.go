package service

import (
	"fmt"

	"github.com/divvyhq/divvy/internal/ledger"
	"github.com/divvyhq/divvy/internal/models"
)

// GroupBalances computes every member's receivable, payable and net position
// for a group from the local expense and settlement collections.
func (s *Service) GroupBalances(groupID string) (map[string]ledger.Balance, error) {
	group, ok := s.domain.Group(groupID)
	if !ok {
		return nil, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}
	expenses := s.domain.ExpensesByGroup(groupID)
	settlements := s.domain.SettlementsByGroup(groupID)
	return ledger.ComputeBalances(group, expenses, settlements), nil
}

// SuggestSettleUp proposes the single payment userID should make next to
// reduce their debt in the group. ok is false when the user owes nothing.
func (s *Service) SuggestSettleUp(groupID, userID string) (ledger.Suggestion, bool, error) {
	group, ok := s.domain.Group(groupID)
	if !ok {
		return ledger.Suggestion{}, false, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}
	if !group.HasMember(userID) {
		return ledger.Suggestion{}, false, validationErr("user %q is not a member of group %q", userID, groupID)
	}
	balances, err := s.GroupBalances(groupID)
	if err != nil {
		return ledger.Suggestion{}, false, err
	}
	suggestion, ok := ledger.SuggestSettlement(balances, userID)
	return suggestion, ok, nil
}

// SettledView reports which splits of a group's expenses are covered by the
// settlement log.
func (s *Service) SettledView(groupID string) (map[ledger.SplitRef]bool, error) {
	group, ok := s.domain.Group(groupID)
	if !ok {
		return nil, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}
	expenses := s.domain.ExpensesByGroup(groupID)
	settlements := s.domain.SettlementsByGroup(groupID)
	return ledger.SettledSplits(group, expenses, settlements), nil
}

// UserExpenses lists the expenses in a group where userID either paid or
// carries a split.
func (s *Service) UserExpenses(groupID, userID string) ([]models.Expense, error) {
	expenses, err := s.GroupExpenses(groupID)
	if err != nil {
		return nil, err
	}
	var out []models.Expense
	for _, e := range expenses {
		if e.PayerID == userID || e.SplitFor(userID) != nil {
			out = append(out, e)
		}
	}
	return out, nil
}
