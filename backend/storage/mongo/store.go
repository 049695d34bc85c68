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
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messCollection = "messes"

// Store implements storage.MessStore on top of a MongoDB database. All
// mutations are single-document partial updates, so document-level atomicity
// is the only isolation this store relies on.
type Store struct {
	coll *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(messCollection)}
}

// Migrate creates the indexes the store depends on. The unique index on
// messId is what turns a duplicate create into a distinct failure instead of
// a second document.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "messId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create messId index: %w", err)
	}
	return nil
}

// exists reports whether a mess document with the given id is present.
// Only consulted on update-miss paths to tell mess-gone from member-gone.
func (s *Store) exists(ctx context.Context, messID string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"messId": messID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check mess existence: %w", err)
	}
	return n > 0, nil
}
