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

// Package memory is an in-process storage.MessStore used by tests and for
// running the server without a MongoDB instance. It mirrors the document
// store semantics: every mutation is atomic per mess and reads return
// detached copies.
package memory

import (
	"context"
	"sync"

	"github.com/messnet/messledger/backend/models"
	"github.com/messnet/messledger/backend/storage"
)

type Store struct {
	mu     sync.Mutex
	messes map[string]*models.Mess
}

func NewStore() *Store {
	return &Store{messes: make(map[string]*models.Mess)}
}

func (s *Store) CreateMess(ctx context.Context, mess *models.Mess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messes[mess.MessID]; ok {
		return storage.ErrDuplicateMess
	}
	s.messes[mess.MessID] = clone(mess)
	return nil
}

func (s *Store) GetMess(ctx context.Context, messID string) (*models.Mess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mess, ok := s.messes[messID]
	if !ok {
		return nil, storage.ErrMessNotFound
	}
	return clone(mess), nil
}

func (s *Store) AddMemberIfAbsent(ctx context.Context, messID, memberUID string, member models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mess, ok := s.messes[messID]
	if !ok {
		return storage.ErrMessNotFound
	}
	if _, ok := mess.Members[memberUID]; ok {
		return storage.ErrAlreadyMember
	}
	if mess.Members == nil {
		mess.Members = map[string]models.Member{}
	}
	mess.Members[memberUID] = cloneMember(member)
	return nil
}

func (s *Store) AppendExpenses(ctx context.Context, messID string, expenses []models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mess, ok := s.messes[messID]
	if !ok {
		return storage.ErrMessNotFound
	}
	mess.Expenses = append(mess.Expenses, expenses...)
	return nil
}

func (s *Store) IncrementDeposit(ctx context.Context, messID, memberUID string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mess, ok := s.messes[messID]
	if !ok {
		return storage.ErrMessNotFound
	}
	member, ok := mess.Members[memberUID]
	if !ok {
		return storage.ErrMemberNotFound
	}
	member.Deposit += delta
	mess.Members[memberUID] = member
	return nil
}

func (s *Store) SetMealCount(ctx context.Context, messID, memberUID, dateKey string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mess, ok := s.messes[messID]
	if !ok {
		return storage.ErrMessNotFound
	}
	member, ok := mess.Members[memberUID]
	if !ok {
		return storage.ErrMemberNotFound
	}
	if member.Meals == nil {
		member.Meals = map[string]int{}
	}
	member.Meals[dateKey] = count
	mess.Members[memberUID] = member
	return nil
}

func clone(m *models.Mess) *models.Mess {
	out := *m
	out.Members = make(map[string]models.Member, len(m.Members))
	for uid, member := range m.Members {
		out.Members[uid] = cloneMember(member)
	}
	out.Expenses = append([]models.Expense(nil), m.Expenses...)
	return &out
}

func cloneMember(m models.Member) models.Member {
	if m.Meals != nil {
		meals := make(map[string]int, len(m.Meals))
		for k, v := range m.Meals {
			meals[k] = v
		}
		m.Meals = meals
	}
	return m
}
