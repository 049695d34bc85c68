// Copyright (C) 2025 messnet <dev@messnet.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/messnet/messledger/backend/ledger"
	"github.com/messnet/messledger/backend/middleware"
	"github.com/messnet/messledger/backend/models"
	"github.com/messnet/messledger/backend/storage"
)

type MessHandler struct {
	ledger *ledger.Ledger
}

func NewMessHandler(l *ledger.Ledger) *MessHandler {
	return &MessHandler{ledger: l}
}

// GetDetails returns the full mess projection. Clients poll this endpoint;
// the joinKey only appears for an authenticated admin caller.
func (h *MessHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessID string `json:"messId"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	callerUID, _ := middleware.GetUserID(r)

	mess, err := h.ledger.Details(r.Context(), req.MessID, callerUID)
	if err != nil {
		writeError(w, "details", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mess)
}

func (h *MessHandler) CreateMess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessID   string                   `json:"messId"`
		Name     string                   `json:"name"`
		AdminUID string                   `json:"adminUid"`
		JoinKey  string                   `json:"joinKey"`
		Members  map[string]models.Member `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	mess := &models.Mess{
		MessID:   req.MessID,
		Name:     req.Name,
		AdminUID: req.AdminUID,
		JoinKey:  req.JoinKey,
		Members:  req.Members,
	}
	if err := h.ledger.CreateMess(r.Context(), mess); err != nil {
		writeError(w, "create", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Mess created successfully.",
		"messId":  mess.MessID,
	})
}

func (h *MessHandler) JoinMess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessID         string  `json:"messId"`
		JoinKey        string  `json:"joinKey"`
		UserID         string  `json:"userId"`
		UserName       string  `json:"userName"`
		DefaultDeposit float64 `json:"defaultDeposit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	already, err := h.ledger.Join(r.Context(), req.MessID, req.JoinKey, req.UserID, req.UserName, req.DefaultDeposit)
	if err != nil {
		writeError(w, "join", err)
		return
	}

	msg := "Joined mess successfully."
	if already {
		msg = "Already a member."
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}

func (h *MessHandler) AddExpenses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessID      string           `json:"messId"`
		NewExpenses []models.Expense `json:"newExpenses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	if err := h.ledger.AddExpenses(r.Context(), req.MessID, req.NewExpenses); err != nil {
		writeError(w, "expense", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Expenses added successfully."})
}

func (h *MessHandler) AddDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessID        string  `json:"messId"`
		MemberUID     string  `json:"memberUid"`
		DepositAmount float64 `json:"depositAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	if err := h.ledger.AddDeposit(r.Context(), req.MessID, req.MemberUID, req.DepositAmount); err != nil {
		writeError(w, "deposit", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Deposit added successfully."})
}

func (h *MessHandler) UpdateMeal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessID    string `json:"messId"`
		MemberUID string `json:"memberUid"`
		DateKey   string `json:"dateKey"`
		NewCount  int    `json:"newCount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	if err := h.ledger.UpdateMeal(r.Context(), req.MessID, req.MemberUID, req.DateKey, req.NewCount); err != nil {
		writeError(w, "meal", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Meal count updated successfully."})
}

// writeError maps ledger/storage failures onto stable status codes so
// callers can tell caller errors from retryable server errors.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidRequest):
		http.Error(w, "Mess ID is required.", http.StatusBadRequest)
	case errors.Is(err, ledger.ErrInvalidJoinKey):
		http.Error(w, "Invalid Join Key.", http.StatusUnauthorized)
	case errors.Is(err, ledger.ErrTooManyAttempts):
		http.Error(w, "Too many failed join attempts.", http.StatusTooManyRequests)
	case errors.Is(err, storage.ErrMessNotFound):
		http.Error(w, "Mess not found.", http.StatusNotFound)
	case errors.Is(err, storage.ErrMemberNotFound):
		http.Error(w, "Member not found.", http.StatusNotFound)
	case errors.Is(err, storage.ErrDuplicateMess):
		http.Error(w, "Mess ID already exists.", http.StatusConflict)
	default:
		slog.Error("Unexpected store failure", "op", op, "error", err)
		http.Error(w, "Server error.", http.StatusInternalServerError)
	}
}
