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

package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// FailureWindow is how long a burst of wrong-key join attempts is
	// remembered.
	FailureWindow = 15 * time.Minute
	// MaxFailures is the number of wrong-key attempts allowed per
	// (mess, uid) inside the window before joins are rejected.
	MaxFailures = 10

	joinFailPrefix = "join:fail:" // join:fail:{messId}:{uid} - failure counter
)

// JoinThrottle counts failed join-key attempts in Redis so a shared joinKey
// cannot be brute-forced by a polling client. Counters expire on their own;
// nothing here holds durable state.
type JoinThrottle struct {
	rdb *redis.Client
}

func NewJoinThrottle(rdb *redis.Client) *JoinThrottle {
	return &JoinThrottle{rdb: rdb}
}

// TooManyFailures reports whether the (mess, uid) pair has exhausted its
// wrong-key budget for the current window.
func (t *JoinThrottle) TooManyFailures(ctx context.Context, messID, uid string) (bool, error) {
	n, err := t.rdb.Get(ctx, failKey(messID, uid)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read join failure counter: %w", err)
	}
	return n >= MaxFailures, nil
}

// RecordFailure bumps the wrong-key counter and refreshes its expiry.
func (t *JoinThrottle) RecordFailure(ctx context.Context, messID, uid string) error {
	key := failKey(messID, uid)
	if err := t.rdb.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to bump join failure counter: %w", err)
	}
	t.rdb.Expire(ctx, key, FailureWindow)
	return nil
}

func failKey(messID, uid string) string {
	return joinFailPrefix + messID + ":" + uid
}
