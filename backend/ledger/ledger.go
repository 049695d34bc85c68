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

// Package ledger holds the mutation protocol for a mess document: create
// once, idempotent joins, relative deposit increments, absolute meal counts
// and append-only expenses. It validates input before touching the store and
// never caches a mess across calls.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/messnet/messledger/backend/models"
	"github.com/messnet/messledger/backend/storage"
)

var (
	// ErrInvalidRequest flags malformed input, detected before any store
	// round trip.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidJoinKey flags a join with the wrong shared key.
	ErrInvalidJoinKey = errors.New("invalid join key")
	// ErrTooManyAttempts flags a join rejected by the failure throttle.
	ErrTooManyAttempts = errors.New("too many failed join attempts")
)

// JoinLimiter throttles wrong-key join attempts. A nil limiter disables
// throttling.
type JoinLimiter interface {
	TooManyFailures(ctx context.Context, messID, uid string) (bool, error)
	RecordFailure(ctx context.Context, messID, uid string) error
}

// Ledger applies mutations against one mess document at a time.
type Ledger struct {
	store   storage.MessStore
	limiter JoinLimiter
}

func New(store storage.MessStore, limiter JoinLimiter) *Ledger {
	return &Ledger{store: store, limiter: limiter}
}

// CreateMess persists a new mess. A missing messId gets a generated one;
// the finalized document is reflected back through the argument.
func (l *Ledger) CreateMess(ctx context.Context, mess *models.Mess) error {
	if mess.MessID == "" {
		mess.MessID = uuid.New().String()
	}
	if !validFieldKey(mess.MessID) || mess.JoinKey == "" || mess.AdminUID == "" {
		return ErrInvalidRequest
	}
	for uid := range mess.Members {
		if !validFieldKey(uid) {
			return ErrInvalidRequest
		}
	}
	mess.Normalize()
	if mess.CreatedAt.IsZero() {
		mess.CreatedAt = time.Now().UTC()
	}

	if err := l.store.CreateMess(ctx, mess); err != nil {
		return err
	}
	slog.Info("Mess created", "mess_id", mess.MessID, "admin_uid", mess.AdminUID)
	return nil
}

// Details returns the full projection of a mess. The joinKey is included
// only when the caller is the recorded admin; everyone else gets the
// document with the key stripped.
func (l *Ledger) Details(ctx context.Context, messID, callerUID string) (*models.Mess, error) {
	if messID == "" {
		return nil, ErrInvalidRequest
	}
	mess, err := l.store.GetMess(ctx, messID)
	if err != nil {
		return nil, err
	}
	mess.Normalize()
	if callerUID == "" || callerUID != mess.AdminUID {
		mess.JoinKey = ""
	}
	return mess, nil
}

// Join adds uid to the mess if the key matches. Repeating a join with the
// same uid is a no-op; the returned bool reports whether the caller was
// already a member.
func (l *Ledger) Join(ctx context.Context, messID, joinKey, uid, name string, deposit float64) (bool, error) {
	if messID == "" || !validFieldKey(uid) {
		return false, ErrInvalidRequest
	}

	mess, err := l.store.GetMess(ctx, messID)
	if err != nil {
		return false, err
	}

	if l.limiter != nil {
		blocked, err := l.limiter.TooManyFailures(ctx, messID, uid)
		if err != nil {
			// Throttle state is advisory; a dead Redis must not take
			// joins down with it.
			slog.Warn("Join throttle unavailable", "mess_id", messID, "error", err)
		} else if blocked {
			slog.Warn("Join throttled", "mess_id", messID, "uid", uid)
			return false, ErrTooManyAttempts
		}
	}

	if mess.JoinKey != joinKey {
		if l.limiter != nil {
			if err := l.limiter.RecordFailure(ctx, messID, uid); err != nil {
				slog.Warn("Join throttle unavailable", "mess_id", messID, "error", err)
			}
		}
		return false, ErrInvalidJoinKey
	}

	if _, ok := mess.Members[uid]; ok {
		return true, nil
	}

	member := models.Member{Name: name, Deposit: deposit, Meals: map[string]int{}}
	err = l.store.AddMemberIfAbsent(ctx, messID, uid, member)
	if errors.Is(err, storage.ErrAlreadyMember) {
		// Lost a race with a concurrent join for the same uid.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	slog.Info("Member joined", "mess_id", messID, "uid", uid)
	return false, nil
}

// AddExpenses appends a non-empty batch to the expense log. Missing expense
// ids and dates are filled in server-side.
func (l *Ledger) AddExpenses(ctx context.Context, messID string, expenses []models.Expense) error {
	if messID == "" || len(expenses) == 0 {
		return ErrInvalidRequest
	}
	now := time.Now().Unix()
	for i := range expenses {
		if expenses[i].ID == "" {
			expenses[i].ID = uuid.New().String()
		}
		if expenses[i].Date == 0 {
			expenses[i].Date = now
		}
	}
	return l.store.AppendExpenses(ctx, messID, expenses)
}

// AddDeposit moves the member's balance by a signed amount. The increment
// lands on the member path only; it never rewrites the document.
func (l *Ledger) AddDeposit(ctx context.Context, messID, uid string, amount float64) error {
	if messID == "" || !validFieldKey(uid) {
		return ErrInvalidRequest
	}
	return l.store.IncrementDeposit(ctx, messID, uid, amount)
}

// UpdateMeal sets the member's meal count for one date-slot key. Clients
// report the current count for the slot, so the write is absolute.
func (l *Ledger) UpdateMeal(ctx context.Context, messID, uid, dateKey string, count int) error {
	if messID == "" || !validFieldKey(uid) || !validFieldKey(dateKey) {
		return ErrInvalidRequest
	}
	return l.store.SetMealCount(ctx, messID, uid, dateKey, count)
}

// validFieldKey rejects values that cannot be used as a field path segment
// in the record store.
func validFieldKey(s string) bool {
	if s == "" || strings.HasPrefix(s, "$") {
		return false
	}
	return !strings.Contains(s, ".")
}
