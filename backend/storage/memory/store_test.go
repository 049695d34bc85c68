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

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/messnet/messledger/backend/models"
	"github.com/messnet/messledger/backend/storage"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.CreateMess(context.Background(), &models.Mess{
		MessID:  "m1",
		JoinKey: "k1",
		Members: map[string]models.Member{
			"u1": {Name: "Alice", Meals: map[string]int{"2024-01-01_L": 2}},
		},
	})
	if err != nil {
		t.Fatalf("CreateMess failed: %v", err)
	}
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	got, err := s.GetMess(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMess failed: %v", err)
	}

	// Mutating the returned document must not leak into the store.
	got.Members["intruder"] = models.Member{}
	got.Members["u1"].Meals["2024-01-01_L"] = 99
	got.Expenses = append(got.Expenses, models.Expense{ID: "e1"})

	fresh, _ := s.GetMess(ctx, "m1")
	if _, ok := fresh.Members["intruder"]; ok {
		t.Error("member mutation leaked into the store")
	}
	if fresh.Members["u1"].Meals["2024-01-01_L"] != 2 {
		t.Error("meal mutation leaked into the store")
	}
	if len(fresh.Expenses) != 0 {
		t.Error("expense mutation leaked into the store")
	}
}

func TestAddMemberIfAbsent(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	err := s.AddMemberIfAbsent(ctx, "m1", "u1", models.Member{Name: "Impostor", Deposit: 999})
	if !errors.Is(err, storage.ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
	got, _ := s.GetMess(ctx, "m1")
	if got.Members["u1"].Name != "Alice" {
		t.Error("conditional insert overwrote the existing member")
	}

	if err := s.AddMemberIfAbsent(ctx, "m1", "u2", models.Member{Name: "Bob"}); err != nil {
		t.Fatalf("AddMemberIfAbsent failed: %v", err)
	}
	if err := s.AddMemberIfAbsent(ctx, "nope", "u2", models.Member{}); !errors.Is(err, storage.ErrMessNotFound) {
		t.Errorf("expected ErrMessNotFound, got %v", err)
	}
}
