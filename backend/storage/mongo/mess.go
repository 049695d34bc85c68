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

package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/messnet/messledger/backend/models"
	"github.com/messnet/messledger/backend/storage"
)

func (s *Store) CreateMess(ctx context.Context, mess *models.Mess) error {
	_, err := s.coll.InsertOne(ctx, mess)
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicateMess
	}
	if err != nil {
		return fmt.Errorf("failed to insert mess: %w", err)
	}
	return nil
}

func (s *Store) GetMess(ctx context.Context, messID string) (*models.Mess, error) {
	var mess models.Mess
	err := s.coll.FindOne(ctx, bson.M{"messId": messID}).Decode(&mess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrMessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mess: %w", err)
	}
	return &mess, nil
}

// AddMemberIfAbsent inserts the member in a single conditional update: the
// filter only matches while members.<uid> does not exist, so a racing join
// loses the match instead of overwriting the winner's member record.
func (s *Store) AddMemberIfAbsent(ctx context.Context, messID, memberUID string, member models.Member) error {
	field := "members." + memberUID
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"messId": messID, field: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{field: member}})
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	if res.MatchedCount == 0 {
		ok, err := s.exists(ctx, messID)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrMessNotFound
		}
		return storage.ErrAlreadyMember
	}
	return nil
}

func (s *Store) AppendExpenses(ctx context.Context, messID string, expenses []models.Expense) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"messId": messID},
		bson.M{"$push": bson.M{"expenses": bson.M{"$each": expenses}}})
	if err != nil {
		return fmt.Errorf("failed to append expenses: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrMessNotFound
	}
	return nil
}

func (s *Store) IncrementDeposit(ctx context.Context, messID, memberUID string, delta float64) error {
	field := "members." + memberUID
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"messId": messID, field: bson.M{"$exists": true}},
		bson.M{"$inc": bson.M{field + ".deposit": delta}})
	if err != nil {
		return fmt.Errorf("failed to increment deposit: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.missReason(ctx, messID)
	}
	return nil
}

func (s *Store) SetMealCount(ctx context.Context, messID, memberUID, dateKey string, count int) error {
	field := "members." + memberUID
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"messId": messID, field: bson.M{"$exists": true}},
		bson.M{"$set": bson.M{field + ".meals." + dateKey: count}})
	if err != nil {
		return fmt.Errorf("failed to set meal count: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.missReason(ctx, messID)
	}
	return nil
}

// missReason resolves an update that matched nothing into the right
// not-found error.
func (s *Store) missReason(ctx context.Context, messID string) error {
	ok, err := s.exists(ctx, messID)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrMessNotFound
	}
	return storage.ErrMemberNotFound
}
