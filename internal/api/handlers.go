package api

import (
	"net/http"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/service"
)

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Groups())
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OwnerID string `json:"owner_id"`
		service.GroupInput
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	group, err := s.svc.CreateGroup(r.Context(), in.OwnerID, in.GroupInput)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.svc.Group(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	var in service.GroupInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	group, err := s.svc.UpdateGroup(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if userID := r.URL.Query().Get("user"); userID != "" {
		expenses, err := s.svc.UserExpenses(groupID, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, expenses)
		return
	}
	expenses, err := s.svc.GroupExpenses(groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in service.ExpenseInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := s.svc.CreateExpense(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var in service.ExpenseInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	expense, err := s.svc.UpdateExpense(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := s.svc.GroupSettlements(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlements)
}

func (s *Server) handleCreateSettlement(w http.ResponseWriter, r *http.Request) {
	var in service.SettlementInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	settlement, err := s.svc.CreateSettlement(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

func (s *Server) handleDeleteSettlement(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSettlement(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// balanceView is the wire shape of one member's position.
type balanceView struct {
	UserID     string          `json:"user_id"`
	Receivable decimal.Decimal `json:"receivable"`
	Payable    decimal.Decimal `json:"payable"`
	Net        decimal.Decimal `json:"net"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.svc.GroupBalances(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		views = append(views, balanceView{
			UserID:     b.UserID,
			Receivable: b.Receivable,
			Payable:    b.Payable,
			Net:        b.Net,
		})
	}
	// Stable order for the UI.
	sort.Slice(views, func(i, j int) bool { return views[i].UserID < views[j].UserID })
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSettleUp(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	suggestion, ok, err := s.svc.SuggestSettleUp(r.PathValue("id"), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"settled": true})
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// settledEntry is one settled-split record in the settled view.
type settledEntry struct {
	ExpenseID string `json:"expense_id"`
	UserID    string `json:"user_id"`
}

func (s *Server) handleSettledView(w http.ResponseWriter, r *http.Request) {
	settled, err := s.svc.SettledView(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries := make([]settledEntry, 0, len(settled))
	for ref, ok := range settled {
		if ok {
			entries = append(entries, settledEntry{ExpenseID: ref.ExpenseID, UserID: ref.UserID})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ExpenseID != entries[j].ExpenseID {
			return entries[i].ExpenseID < entries[j].ExpenseID
		}
		return entries[i].UserID < entries[j].UserID
	})
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.PaymentMethods(r.PathValue("id")))
}

func (s *Server) handleCreatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var in service.PaymentMethodInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	pm, err := s.svc.CreatePaymentMethod(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pm)
}

func (s *Server) handleDeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	err := s.svc.DeletePaymentMethod(r.Context(), r.PathValue("userID"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleSession reports who is signed in.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.session == nil || s.session.UserID() == "" {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no active session"})
		return
	}
	writeJSON(w, http.StatusOK, models.User{
		ID:    s.session.UserID(),
		Email: s.session.Email(),
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"pending": len(s.svc.PendingMutations()),
		"dead":    len(s.svc.DeadMutations()),
	}
	if s.worker != nil {
		status["state"] = s.worker.State().String()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSyncQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.PendingMutations())
}

func (s *Server) handleSyncDead(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.DeadMutations())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Refresh(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
