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

package models

import (
	"time"
)

// Member is one participant of a mess. Deposit only ever moves by relative
// increments; meal counts are absolute per date-slot key (last write wins).
type Member struct {
	Name    string         `json:"name" bson:"name"`
	Deposit float64        `json:"deposit" bson:"deposit"`
	Meals   map[string]int `json:"meals" bson:"meals"`
}

// Expense is one shared outlay. The expenses slice on a mess is append-only.
type Expense struct {
	ID          string  `json:"id" bson:"id"`
	Description string  `json:"description" bson:"description"`
	Amount      float64 `json:"amount" bson:"amount"`
	Date        int64   `json:"date" bson:"date"`
	AddedBy     string  `json:"addedBy" bson:"addedBy"`
}

// Mess is the per-group ledger document. One document per mess; messId is
// the public handle and carries a unique index in the store.
type Mess struct {
	MessID    string            `json:"messId" bson:"messId"`
	Name      string            `json:"name" bson:"name"`
	AdminUID  string            `json:"adminUid" bson:"adminUid"`
	JoinKey   string            `json:"joinKey,omitempty" bson:"joinKey"`
	Members   map[string]Member `json:"members" bson:"members"`
	Expenses  []Expense         `json:"expenses" bson:"expenses"`
	CreatedAt time.Time         `json:"createdAt" bson:"createdAt"`
}

// Normalize replaces nil containers with empty ones so the JSON boundary
// always serializes members and meals as objects, never null.
func (m *Mess) Normalize() {
	if m.Members == nil {
		m.Members = map[string]Member{}
	}
	for uid, member := range m.Members {
		if member.Meals == nil {
			member.Meals = map[string]int{}
			m.Members[uid] = member
		}
	}
	if m.Expenses == nil {
		m.Expenses = []Expense{}
	}
}
