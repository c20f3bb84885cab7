package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/domain"
)

var baseDay = time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return baseDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func freeSlot(id string, start time.Time) domain.Slot {
	return domain.Slot{ID: id, StartTime: start, DurationMinutes: 15, Status: domain.SlotFree}
}

func loadSlot(t *testing.T, db *gorm.DB, id string) domain.Slot {
	t.Helper()
	s, err := GetSlot(context.Background(), db, id)
	if err != nil {
		t.Fatalf("GetSlot(%s): %v", id, err)
	}
	return *s
}

func TestCreateSlots_SkipsDuplicateStarts(t *testing.T) {
	db := newTestDB(t, &domain.Slot{})
	ctx := context.Background()

	n, err := CreateSlots(ctx, db, []domain.Slot{freeSlot("a", at(13, 0)), freeSlot("b", at(13, 15))})
	if err != nil || n != 2 {
		t.Fatalf("first insert: n=%d err=%v", n, err)
	}
	n, err = CreateSlots(ctx, db, []domain.Slot{freeSlot("c", at(13, 0)), freeSlot("d", at(13, 30))})
	if err != nil || n != 1 {
		t.Fatalf("second insert: n=%d err=%v; want 1 new row", n, err)
	}
	if n, err := CreateSlots(ctx, db, nil); err != nil || n != 0 {
		t.Fatalf("empty insert: n=%d err=%v", n, err)
	}

	got, err := GetSlotByStart(ctx, db, at(13, 0))
	if err != nil || got.ID != "a" {
		t.Fatalf("GetSlotByStart kept wrong row: %+v err=%v", got, err)
	}
	if _, err := GetSlotByStart(ctx, db, at(20, 0)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSlots_PastAndReleasable(t *testing.T) {
	db := newTestDB(t, &domain.Slot{})
	ctx := context.Background()
	now := at(12, 0)

	past := freeSlot("past", baseDay.Add(-time.Hour))
	past.Status = domain.SlotTaken
	held := freeSlot("held", at(13, 0))
	held.HoldKey, held.HoldUntil = ptr("k"), ptr(now.Add(5*time.Minute))
	stale := freeSlot("stale", at(13, 15))
	stale.HoldKey, stale.HoldUntil = ptr("k"), ptr(now.Add(-time.Minute))
	blocked := freeSlot("blocked", at(13, 30))
	blocked.Status = domain.SlotBlocked
	taken := freeSlot("taken", at(13, 45))
	taken.Status = domain.SlotTaken

	seed := []domain.Slot{past, held, stale, blocked, taken, freeSlot("free", at(14, 0))}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if n, err := DeleteSlotsBefore(ctx, db, baseDay); err != nil || n != 1 {
		t.Fatalf("DeleteSlotsBefore: n=%d err=%v", n, err)
	}
	n, err := DeleteReleasableSlots(ctx, db, baseDay, time.Time{}, now)
	if err != nil || n != 3 {
		t.Fatalf("DeleteReleasableSlots: n=%d err=%v; want stale, blocked, free", n, err)
	}

	left, err := ListSlotsInRange(ctx, db, baseDay, baseDay.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListSlotsInRange: %v", err)
	}
	if len(left) != 2 || left[0].ID != "held" || left[1].ID != "taken" {
		t.Fatalf("unexpected survivors: %+v", left)
	}
}

func TestDeleteReleasableSlots_UpperBound(t *testing.T) {
	db := newTestDB(t, &domain.Slot{})
	ctx := context.Background()
	seed := []domain.Slot{freeSlot("a", at(13, 0)), freeSlot("b", at(15, 0))}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n, err := DeleteReleasableSlots(ctx, db, at(12, 0), at(14, 0), at(0, 0)); err != nil || n != 1 {
		t.Fatalf("bounded delete: n=%d err=%v", n, err)
	}
	loadSlot(t, db, "b")
}

func TestClaimHold_RespectsOtherKeysAndStatus(t *testing.T) {
	db := newTestDB(t, &domain.Slot{})
	ctx := context.Background()
	now := at(12, 0)
	until := now.Add(10 * time.Minute)

	other := freeSlot("other", at(13, 15))
	other.HoldKey, other.HoldUntil = ptr("k2"), ptr(now.Add(time.Minute))
	blocked := freeSlot("blocked", at(13, 45))
	blocked.Status = domain.SlotBlocked
	seed := []domain.Slot{freeSlot("a", at(13, 0)), other, freeSlot("c", at(13, 30)), blocked}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := ClaimHold(ctx, db, []string{"a", "other", "c", "blocked"}, "k1", until, now)
	if err != nil || n != 2 {
		t.Fatalf("ClaimHold: n=%d err=%v; want 2", n, err)
	}
	if s := loadSlot(t, db, "other"); *s.HoldKey != "k2" {
		t.Fatalf("foreign active hold overwritten: %+v", s)
	}

	// Same key refreshes.
	later := until.Add(5 * time.Minute)
	if n, err := ClaimHold(ctx, db, []string{"a", "c"}, "k1", later, now.Add(time.Minute)); err != nil || n != 2 {
		t.Fatalf("refresh: n=%d err=%v", n, err)
	}
	if s := loadSlot(t, db, "a"); !s.HoldUntil.Equal(later) {
		t.Fatalf("hold not extended: %v", s.HoldUntil)
	}

	// Expired foreign hold can be taken over.
	if n, err := ClaimHold(ctx, db, []string{"other"}, "k1", later, now.Add(2*time.Minute)); err != nil || n != 1 {
		t.Fatalf("takeover of expired hold: n=%d err=%v", n, err)
	}
}

func TestReleaseHolds(t *testing.T) {
	db := newTestDB(t, &domain.Slot{})
	ctx := context.Background()
	now := at(12, 0)

	mk := func(id string, start time.Time, key string, until time.Time) domain.Slot {
		s := freeSlot(id, start)
		s.HoldKey, s.HoldUntil = ptr(key), ptr(until)
		return s
	}
	seed := []domain.Slot{
		mk("a", at(13, 0), "k1", now.Add(time.Minute)),
		mk("b", at(13, 15), "k1", now.Add(time.Minute)),
		mk("c", at(13, 30), "k2", now.Add(time.Minute)),
		mk("d", at(13, 45), "k3", now.Add(-time.Minute)),
	}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	if n, err := ReleaseHoldByKey(ctx, db, "k1", now); err != nil || n != 2 {
		t.Fatalf("ReleaseHoldByKey: n=%d err=%v", n, err)
	}
	if s := loadSlot(t, db, "a"); s.HoldKey != nil || s.HoldUntil != nil {
		t.Fatalf("hold fields not cleared: %+v", s)
	}

	n, err := ReleaseStaleHolds(ctx, db, []string{"c", "d"}, now)
	if err != nil || n != 1 {
		t.Fatalf("ReleaseStaleHolds: n=%d err=%v; want only the expired one", n, err)
	}
	if s := loadSlot(t, db, "c"); s.HoldKey == nil {
		t.Fatalf("active hold must survive id-based release")
	}
	if n, _ := ReleaseStaleHolds(ctx, db, nil, now); n != 0 {
		t.Fatalf("empty ids should be a no-op")
	}
}

func TestMarkTaken_ClearHolds_FreeTaken(t *testing.T) {
	db := newTestDB(t, &domain.Slot{})
	ctx := context.Background()

	held := freeSlot("a", at(13, 0))
	held.HoldKey, held.HoldUntil = ptr("k"), ptr(at(23, 0))
	blocked := freeSlot("b", at(13, 15))
	blocked.Status = domain.SlotBlocked
	taken := freeSlot("c", at(13, 30))
	taken.Status = domain.SlotTaken
	seed := []domain.Slot{held, blocked, taken}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := MarkTaken(ctx, db, []string{"a", "b", "c"})
	if err != nil || n != 2 {
		t.Fatalf("MarkTaken: n=%d err=%v; want 2", n, err)
	}
	if s := loadSlot(t, db, "a"); s.Status != domain.SlotTaken || s.HoldKey != nil {
		t.Fatalf("slot a not taken/cleared: %+v", s)
	}

	if err := ClearHolds(ctx, db, []string{"c"}); err != nil {
		t.Fatalf("ClearHolds: %v", err)
	}
	if n, err := FreeTaken(ctx, db, []string{"a", "b"}); err != nil || n != 2 {
		t.Fatalf("FreeTaken: n=%d err=%v", n, err)
	}
	if s := loadSlot(t, db, "b"); s.Status != domain.SlotFree {
		t.Fatalf("slot b should be free again: %+v", s)
	}
}

func TestSetStatusInRange_SkipsActiveHolds(t *testing.T) {
	db := newTestDB(t, &domain.Slot{})
	ctx := context.Background()
	now := at(12, 0)

	held := freeSlot("held", at(13, 15))
	held.HoldKey, held.HoldUntil = ptr("k"), ptr(now.Add(time.Minute))
	seed := []domain.Slot{freeSlot("a", at(13, 0)), held, freeSlot("out", at(15, 0))}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := SetStatusInRange(ctx, db, at(13, 0), at(14, 0), domain.SlotFree, domain.SlotBlocked, now)
	if err != nil || n != 1 {
		t.Fatalf("block: n=%d err=%v", n, err)
	}
	got, err := ListSlotsInRange(ctx, db, baseDay, baseDay.Add(24*time.Hour), domain.SlotBlocked)
	if err != nil || len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("blocked slots = %+v err=%v", got, err)
	}

	ids, err := ListSlotsByIDs(ctx, db, []string{"out", "a"})
	if err != nil || len(ids) != 2 || ids[0].ID != "a" {
		t.Fatalf("ListSlotsByIDs order: %+v err=%v", ids, err)
	}
}
