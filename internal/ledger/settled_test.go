package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/divvyhq/divvy/internal/models"
)

func TestSettledSplitsFullCoverage(t *testing.T) {
	group := threeMemberGroup()
	e := expense("e1", "alice", "300", map[string]string{
		"alice": "100", "bob": "100", "carol": "100",
	})
	settlements := []models.Settlement{
		{ID: "s1", GroupID: "g1", FromUserID: "bob", ToUserID: "alice", Amount: money("100")},
	}

	settled := SettledSplits(group, []models.Expense{e}, settlements)

	require.True(t, settled[SplitRef{ExpenseID: "e1", UserID: "bob"}])
	require.False(t, settled[SplitRef{ExpenseID: "e1", UserID: "carol"}])
	require.False(t, settled[SplitRef{ExpenseID: "e1", UserID: "alice"}], "payer's own share is never settled")
}

func TestSettledSplitsPartialPaymentCoversNothing(t *testing.T) {
	group := threeMemberGroup()
	e := expense("e1", "alice", "300", map[string]string{
		"alice": "100", "bob": "100", "carol": "100",
	})
	settlements := []models.Settlement{
		{ID: "s1", GroupID: "g1", FromUserID: "bob", ToUserID: "alice", Amount: money("99.99")},
	}

	settled := SettledSplits(group, []models.Expense{e}, settlements)
	require.Empty(t, settled, "a split is settled only when fully covered")
}

func TestSettledSplitsOldestExpenseFirst(t *testing.T) {
	group := threeMemberGroup()
	older := expense("e1", "alice", "100", map[string]string{"bob": "50", "alice": "50"})
	older.Date = 100
	newer := expense("e2", "alice", "100", map[string]string{"bob": "50", "alice": "50"})
	newer.Date = 200

	// 50 covers exactly one of bob's two splits; the older one wins.
	settlements := []models.Settlement{
		{ID: "s1", GroupID: "g1", FromUserID: "bob", ToUserID: "alice", Amount: money("50")},
	}

	// Input order must not matter.
	settled := SettledSplits(group, []models.Expense{newer, older}, settlements)
	require.True(t, settled[SplitRef{ExpenseID: "e1", UserID: "bob"}])
	require.False(t, settled[SplitRef{ExpenseID: "e2", UserID: "bob"}])
}

func TestSettledSplitsDirectionMatters(t *testing.T) {
	group := threeMemberGroup()
	e := expense("e1", "alice", "100", map[string]string{"bob": "50", "alice": "50"})

	// Alice paying bob does not settle bob's debt to alice.
	settlements := []models.Settlement{
		{ID: "s1", GroupID: "g1", FromUserID: "alice", ToUserID: "bob", Amount: money("50")},
	}

	settled := SettledSplits(group, []models.Expense{e}, settlements)
	require.Empty(t, settled)
}

func TestSettledSplitsAccumulatesSettlements(t *testing.T) {
	group := threeMemberGroup()
	e := expense("e1", "alice", "100", map[string]string{"bob": "60", "alice": "40"})
	settlements := []models.Settlement{
		{ID: "s1", GroupID: "g1", FromUserID: "bob", ToUserID: "alice", Amount: money("30")},
		{ID: "s2", GroupID: "g1", FromUserID: "bob", ToUserID: "alice", Amount: money("30")},
	}

	settled := SettledSplits(group, []models.Expense{e}, settlements)
	require.True(t, settled[SplitRef{ExpenseID: "e1", UserID: "bob"}])
}
