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

package storage

import (
	"context"
	"errors"

	"github.com/messnet/messledger/backend/models"
)

var (
	// ErrMessNotFound is returned when no mess document has the given id.
	ErrMessNotFound = errors.New("mess not found")
	// ErrMemberNotFound is returned by member-scoped mutations when the
	// member path does not exist on the mess document.
	ErrMemberNotFound = errors.New("member not found")
	// ErrDuplicateMess is returned when a create collides with an existing
	// messId (unique index violation).
	ErrDuplicateMess = errors.New("mess already exists")
	// ErrAlreadyMember is returned by AddMemberIfAbsent when the member path
	// already exists, including when a concurrent join won the insert.
	ErrAlreadyMember = errors.New("already a member")
)

// MessStore is the record store contract the ledger core runs against.
// Every mutation is scoped to a single mess document and must be atomic at
// document level; no cross-document transactions are required.
type MessStore interface {
	// CreateMess inserts a new mess document. ErrDuplicateMess on messId
	// collision.
	CreateMess(ctx context.Context, mess *models.Mess) error

	// GetMess fetches the full mess document, joinKey included.
	GetMess(ctx context.Context, messID string) (*models.Mess, error)

	// AddMemberIfAbsent inserts the member at members.<uid> only if that
	// path does not exist yet. This is a single conditional write so two
	// racing joins cannot both apply an initial deposit.
	AddMemberIfAbsent(ctx context.Context, messID, memberUID string, member models.Member) error

	// AppendExpenses appends the batch to the expenses array in submitted
	// order, atomically relative to readers.
	AppendExpenses(ctx context.Context, messID string, expenses []models.Expense) error

	// IncrementDeposit atomically adds delta to members.<uid>.deposit.
	// ErrMemberNotFound if the member path is absent.
	IncrementDeposit(ctx context.Context, messID, memberUID string, delta float64) error

	// SetMealCount atomically sets members.<uid>.meals.<dateKey> to count.
	// ErrMemberNotFound if the member path is absent.
	SetMealCount(ctx context.Context, messID, memberUID, dateKey string, count int) error
}
