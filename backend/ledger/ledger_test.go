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

package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/messnet/messledger/backend/models"
	"github.com/messnet/messledger/backend/storage"
	"github.com/messnet/messledger/backend/storage/memory"
)

func newTestLedger() *Ledger {
	return New(memory.NewStore(), nil)
}

func createMess(t *testing.T, l *Ledger, messID string) *models.Mess {
	t.Helper()
	mess := &models.Mess{
		MessID:   messID,
		Name:     "Hostel 3",
		AdminUID: "admin1",
		JoinKey:  "k1",
	}
	if err := l.CreateMess(context.Background(), mess); err != nil {
		t.Fatalf("CreateMess failed: %v", err)
	}
	return mess
}

func TestCreateAndDetails(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	mess := &models.Mess{
		MessID:   "m1",
		Name:     "Hostel 3",
		AdminUID: "admin1",
		JoinKey:  "k1",
		Members: map[string]models.Member{
			"admin1": {Name: "Admin", Deposit: 100},
		},
	}
	if err := l.CreateMess(ctx, mess); err != nil {
		t.Fatalf("CreateMess failed: %v", err)
	}

	got, err := l.Details(ctx, "m1", "admin1")
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}

	if got.Name != "Hostel 3" {
		t.Errorf("name: expected 'Hostel 3', got '%s'", got.Name)
	}
	if got.JoinKey != "k1" {
		t.Errorf("admin caller should see joinKey, got '%s'", got.JoinKey)
	}
	if got.Expenses == nil || len(got.Expenses) != 0 {
		t.Errorf("expected empty non-nil expenses, got %v", got.Expenses)
	}
	member, ok := got.Members["admin1"]
	if !ok {
		t.Fatal("expected initial member admin1")
	}
	if member.Deposit != 100 {
		t.Errorf("deposit: expected 100, got %v", member.Deposit)
	}
	if member.Meals == nil {
		t.Error("meals should be normalized to an empty map")
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestCreateGeneratesMessID(t *testing.T) {
	l := newTestLedger()

	mess := &models.Mess{AdminUID: "admin1", JoinKey: "k1"}
	if err := l.CreateMess(context.Background(), mess); err != nil {
		t.Fatalf("CreateMess failed: %v", err)
	}
	if mess.MessID == "" {
		t.Error("expected a generated messId")
	}
}

func TestCreateDuplicate(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")

	dup := &models.Mess{MessID: "m1", Name: "Impostor", AdminUID: "x", JoinKey: "other"}
	err := l.CreateMess(ctx, dup)
	if !errors.Is(err, storage.ErrDuplicateMess) {
		t.Fatalf("expected ErrDuplicateMess, got %v", err)
	}

	// The original record must be untouched.
	got, err := l.Details(ctx, "m1", "admin1")
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if got.Name != "Hostel 3" {
		t.Errorf("existing mess modified by failed create: name=%s", got.Name)
	}
}

func TestCreateInvalid(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	cases := []*models.Mess{
		{MessID: "m1", AdminUID: "admin1"},                  // no joinKey
		{MessID: "m1", JoinKey: "k1"},                       // no adminUid
		{MessID: "bad.id", AdminUID: "admin1", JoinKey: "k"},
		{MessID: "m1", AdminUID: "a", JoinKey: "k",
			Members: map[string]models.Member{"u.1": {}}}, // member uid with dot
	}
	for i, mess := range cases {
		if err := l.CreateMess(ctx, mess); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestJoin(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")

	already, err := l.Join(ctx, "m1", "k1", "u1", "Alice", 200)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if already {
		t.Error("first join should not report already-a-member")
	}

	got, _ := l.Details(ctx, "m1", "admin1")
	member, ok := got.Members["u1"]
	if !ok {
		t.Fatal("expected member u1 after join")
	}
	if member.Name != "Alice" || member.Deposit != 200 {
		t.Errorf("member: expected Alice/200, got %s/%v", member.Name, member.Deposit)
	}
	if len(member.Meals) != 0 {
		t.Errorf("new member should have empty meals, got %v", member.Meals)
	}

	// Rejoin is a no-op and must not re-apply a deposit.
	already, err = l.Join(ctx, "m1", "k1", "u1", "Alice Again", 999)
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if !already {
		t.Error("rejoin should report already-a-member")
	}

	got, _ = l.Details(ctx, "m1", "admin1")
	member = got.Members["u1"]
	if member.Name != "Alice" || member.Deposit != 200 {
		t.Errorf("rejoin mutated member: got %s/%v", member.Name, member.Deposit)
	}
}

func TestJoinWrongKey(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")

	_, err := l.Join(ctx, "m1", "wrong", "u1", "Alice", 0)
	if !errors.Is(err, ErrInvalidJoinKey) {
		t.Fatalf("expected ErrInvalidJoinKey, got %v", err)
	}

	got, _ := l.Details(ctx, "m1", "admin1")
	if _, ok := got.Members["u1"]; ok {
		t.Error("wrong-key join must not add a member")
	}
}

func TestJoinMessNotFound(t *testing.T) {
	l := newTestLedger()
	_, err := l.Join(context.Background(), "nope", "k1", "u1", "Alice", 0)
	if !errors.Is(err, storage.ErrMessNotFound) {
		t.Fatalf("expected ErrMessNotFound, got %v", err)
	}
}

// fakeLimiter blocks after limit recorded failures.
type fakeLimiter struct {
	mu       sync.Mutex
	failures map[string]int
	limit    int
}

func (f *fakeLimiter) TooManyFailures(ctx context.Context, messID, uid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[messID+":"+uid] >= f.limit, nil
}

func (f *fakeLimiter) RecordFailure(ctx context.Context, messID, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures == nil {
		f.failures = map[string]int{}
	}
	f.failures[messID+":"+uid]++
	return nil
}

func TestJoinThrottled(t *testing.T) {
	limiter := &fakeLimiter{limit: 2}
	l := New(memory.NewStore(), limiter)
	ctx := context.Background()
	createMess(t, l, "m1")

	for i := 0; i < 2; i++ {
		if _, err := l.Join(ctx, "m1", "wrong", "u1", "Alice", 0); !errors.Is(err, ErrInvalidJoinKey) {
			t.Fatalf("attempt %d: expected ErrInvalidJoinKey, got %v", i, err)
		}
	}

	// Budget exhausted: even the correct key is rejected now.
	if _, err := l.Join(ctx, "m1", "k1", "u1", "Alice", 0); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}

	// Another uid is unaffected.
	if _, err := l.Join(ctx, "m1", "k1", "u2", "Bob", 0); err != nil {
		t.Fatalf("unthrottled uid should join: %v", err)
	}
}

func TestConcurrentJoinsSameUID(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			already, err := l.Join(ctx, "m1", "k1", "u1", "Alice", 100)
			if err != nil {
				t.Errorf("Join failed: %v", err)
				return
			}
			if !already {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Errorf("expected exactly one winning join, got %d", inserted)
	}
	got, _ := l.Details(ctx, "m1", "admin1")
	if got.Members["u1"].Deposit != 100 {
		t.Errorf("initial deposit applied more than once: %v", got.Members["u1"].Deposit)
	}
}

func TestAddExpenses(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")

	if err := l.AddExpenses(ctx, "m1", nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty batch: expected ErrInvalidRequest, got %v", err)
	}

	b1 := []models.Expense{
		{ID: "e1", Description: "rice", Amount: 200, Date: 1, AddedBy: "u1"},
		{ID: "e2", Description: "fish", Amount: 350, Date: 2, AddedBy: "u1"},
	}
	b2 := []models.Expense{
		{Description: "gas", Amount: 120, AddedBy: "u2"}, // id and date defaulted
	}
	if err := l.AddExpenses(ctx, "m1", b1); err != nil {
		t.Fatalf("AddExpenses b1 failed: %v", err)
	}
	if err := l.AddExpenses(ctx, "m1", b2); err != nil {
		t.Fatalf("AddExpenses b2 failed: %v", err)
	}

	got, _ := l.Details(ctx, "m1", "admin1")
	if len(got.Expenses) != 3 {
		t.Fatalf("expected 3 expenses, got %d", len(got.Expenses))
	}
	if got.Expenses[0].ID != "e1" || got.Expenses[1].ID != "e2" {
		t.Errorf("batch order not preserved: %v", got.Expenses)
	}
	if got.Expenses[2].ID == "" || got.Expenses[2].Date == 0 {
		t.Errorf("expected defaulted id and date on third expense: %+v", got.Expenses[2])
	}
}

func TestAddExpensesMessNotFound(t *testing.T) {
	l := newTestLedger()
	err := l.AddExpenses(context.Background(), "nope", []models.Expense{{Amount: 1}})
	if !errors.Is(err, storage.ErrMessNotFound) {
		t.Fatalf("expected ErrMessNotFound, got %v", err)
	}
}

func TestAddDeposit(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")
	if _, err := l.Join(ctx, "m1", "k1", "u1", "Alice", 0); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	for _, delta := range []float64{500, -200, 250} {
		if err := l.AddDeposit(ctx, "m1", "u1", delta); err != nil {
			t.Fatalf("AddDeposit(%v) failed: %v", delta, err)
		}
	}

	got, _ := l.Details(ctx, "m1", "admin1")
	if got.Members["u1"].Deposit != 550 {
		t.Errorf("deposit: expected 550, got %v", got.Members["u1"].Deposit)
	}
}

func TestAddDepositUnknownMember(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")

	// A typoed uid must not fabricate a member.
	err := l.AddDeposit(ctx, "m1", "ghost", 100)
	if !errors.Is(err, storage.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
	got, _ := l.Details(ctx, "m1", "admin1")
	if _, ok := got.Members["ghost"]; ok {
		t.Error("failed deposit fabricated a member")
	}
}

func TestUpdateMeal(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")
	if _, err := l.Join(ctx, "m1", "k1", "u1", "Alice", 0); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if err := l.UpdateMeal(ctx, "m1", "u1", "2024-01-01_L", 2); err != nil {
		t.Fatalf("UpdateMeal failed: %v", err)
	}
	// Absolute set: last write wins for the same key.
	if err := l.UpdateMeal(ctx, "m1", "u1", "2024-01-01_L", 3); err != nil {
		t.Fatalf("UpdateMeal failed: %v", err)
	}
	if err := l.UpdateMeal(ctx, "m1", "u1", "2024-01-02_D", 1); err != nil {
		t.Fatalf("UpdateMeal failed: %v", err)
	}

	got, _ := l.Details(ctx, "m1", "admin1")
	meals := got.Members["u1"].Meals
	if meals["2024-01-01_L"] != 3 {
		t.Errorf("expected count 3 at 2024-01-01_L, got %d", meals["2024-01-01_L"])
	}
	if meals["2024-01-02_D"] != 1 {
		t.Errorf("expected count 1 at 2024-01-02_D, got %d", meals["2024-01-02_D"])
	}
}

func TestUpdateMealInvalidKey(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")

	for _, key := range []string{"", "2024.01.01", "$bad"} {
		if err := l.UpdateMeal(ctx, "m1", "u1", key, 1); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("key %q: expected ErrInvalidRequest, got %v", key, err)
		}
	}
}

func TestDetailsHidesJoinKey(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	createMess(t, l, "m1")

	for _, caller := range []string{"", "u1"} {
		got, err := l.Details(ctx, "m1", caller)
		if err != nil {
			t.Fatalf("Details failed: %v", err)
		}
		if got.JoinKey != "" {
			t.Errorf("caller %q must not see joinKey", caller)
		}
	}
}

func TestDetailsInvalidAndNotFound(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	if _, err := l.Details(ctx, "", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for missing messId, got %v", err)
	}
	if _, err := l.Details(ctx, "nope", ""); !errors.Is(err, storage.ErrMessNotFound) {
		t.Errorf("expected ErrMessNotFound, got %v", err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	mess := &models.Mess{MessID: "m1", Name: "Mess One", AdminUID: "admin1", JoinKey: "k1"}
	if err := l.CreateMess(ctx, mess); err != nil {
		t.Fatalf("CreateMess failed: %v", err)
	}
	if _, err := l.Join(ctx, "m1", "k1", "u1", "Alice", 0); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if err := l.AddDeposit(ctx, "m1", "u1", 500); err != nil {
		t.Fatalf("AddDeposit failed: %v", err)
	}
	if err := l.UpdateMeal(ctx, "m1", "u1", "2024-01-01_L", 1); err != nil {
		t.Fatalf("UpdateMeal failed: %v", err)
	}
	if err := l.AddExpenses(ctx, "m1", []models.Expense{
		{ID: "e1", Description: "groceries", Amount: 200, Date: 1704067200, AddedBy: "u1"},
	}); err != nil {
		t.Fatalf("AddExpenses failed: %v", err)
	}

	got, err := l.Details(ctx, "m1", "admin1")
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	u1 := got.Members["u1"]
	if u1.Deposit != 500 {
		t.Errorf("deposit: expected 500, got %v", u1.Deposit)
	}
	if u1.Meals["2024-01-01_L"] != 1 {
		t.Errorf("meal count: expected 1, got %d", u1.Meals["2024-01-01_L"])
	}
	if len(got.Expenses) != 1 || got.Expenses[0].ID != "e1" {
		t.Errorf("expenses: expected [e1], got %v", got.Expenses)
	}
}
