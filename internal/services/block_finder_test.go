package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tbourn/go-coaching-backend/internal/domain"
)

func TestUnits(t *testing.T) {
	f := &BlockFinder{Step: 15 * time.Minute, MaxSessionMinutes: 240}
	cases := []struct {
		minutes int
		want    int
		err     bool
	}{
		{15, 1, false},
		{60, 4, false},
		{240, 16, false},
		{0, 0, true},
		{-15, 0, true},
		{20, 0, true},
		{255, 0, true},
	}
	for _, tc := range cases {
		got, err := f.Units(tc.minutes)
		if tc.err {
			if !errors.Is(err, ErrInvalidDuration) {
				t.Fatalf("Units(%d) err = %v; want ErrInvalidDuration", tc.minutes, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("Units(%d) = %d, %v; want %d", tc.minutes, got, err, tc.want)
		}
	}
}

func TestGetBlockIDs_Contiguity(t *testing.T) {
	f := newFixture(t, at(monday, 8, 0))
	ctx := context.Background()
	ids := f.seedRun(t, at(monday, 13, 0), 6) // 13:00 .. 14:15

	got, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: ids[0]}, 60, "")
	if err != nil {
		t.Fatalf("GetBlockIDs: %v", err)
	}
	if !reflect.DeepEqual(got, ids[:4]) {
		t.Fatalf("block = %v; want %v", got, ids[:4])
	}

	// Same block addressed by instant.
	got, err = f.finder.GetBlockIDs(ctx, StartRef{Start: at(monday, 13, 0)}, 60, "")
	if err != nil || !reflect.DeepEqual(got, ids[:4]) {
		t.Fatalf("by start = %v, %v", got, err)
	}

	// Running off the end of the run.
	if _, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: ids[3]}, 60, ""); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("past end of run: %v", err)
	}

	// A missing interior slot breaks the block.
	if err := f.db.Delete(&domain.Slot{}, "id = ?", ids[2]).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: ids[0]}, 60, ""); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("gap in block: %v", err)
	}

	if _, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: "nope"}, 15, ""); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("unknown slot: %v", err)
	}
	if _, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: ids[0]}, 25, ""); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("bad duration: %v", err)
	}
}

func TestGetBlockIDs_StatusAndHolds(t *testing.T) {
	f := newFixture(t, at(monday, 8, 0))
	ctx := context.Background()
	ids := f.seedRun(t, at(monday, 13, 0), 4)

	f.setStatus(t, domain.SlotBlocked, ids[1])
	if _, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: ids[0]}, 60, ""); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("blocked unit: %v", err)
	}
	f.setStatus(t, domain.SlotFree, ids[1])

	until := f.clock.Now().Add(5 * time.Minute)
	if err := f.db.Model(&domain.Slot{}).Where("id = ?", ids[2]).
		Updates(map[string]any{"hold_key": "other", "hold_until": until}).Error; err != nil {
		t.Fatalf("seed hold: %v", err)
	}
	if _, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: ids[0]}, 60, "mine"); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("held by other: %v", err)
	}
	if _, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: ids[0]}, 60, "other"); err != nil {
		t.Fatalf("own hold must not block: %v", err)
	}

	// Expiry is lazy: once hold_until passes the slot is bookable again.
	f.clock.Advance(5 * time.Minute)
	if _, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: ids[0]}, 60, "mine"); err != nil {
		t.Fatalf("expired hold must not block: %v", err)
	}

	// Blocks that already started are unavailable.
	f.clock.Advance(5*time.Hour + 5*time.Minute)
	if _, err := f.finder.GetBlockIDs(ctx, StartRef{SlotID: ids[0]}, 15, ""); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("past start: %v", err)
	}
}

func TestGetBlockIDsAdmin_IgnoresStatus(t *testing.T) {
	f := newFixture(t, at(monday, 8, 0))
	ctx := context.Background()
	ids := f.seedRun(t, at(monday, 13, 0), 4)
	f.setStatus(t, domain.SlotTaken, ids[1])
	f.setStatus(t, domain.SlotBlocked, ids[2])

	got, err := f.finder.GetBlockIDsAdmin(ctx, StartRef{SlotID: ids[0]}, 60)
	if err != nil || !reflect.DeepEqual(got, ids) {
		t.Fatalf("admin block = %v, %v; want %v", got, err, ids)
	}

	// Gaps are tolerated: only the existing slots come back.
	if err := f.db.Delete(&domain.Slot{}, "id = ?", ids[3]).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = f.finder.GetBlockIDsAdmin(ctx, StartRef{SlotID: ids[0]}, 60)
	if err != nil || !reflect.DeepEqual(got, ids[:3]) {
		t.Fatalf("admin block with gap = %v, %v", got, err)
	}

	if _, err := f.finder.GetBlockIDsAdmin(ctx, StartRef{SlotID: ids[0]}, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("zero minutes: %v", err)
	}
	if _, err := f.finder.GetBlockIDsAdmin(ctx, StartRef{}, 60); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("empty ref: %v", err)
	}
}

func TestListStarts_BuffersAroundTakenSlots(t *testing.T) {
	f := newFixture(t, at(monday, 8, 0))
	ctx := context.Background()
	ids := f.seedRun(t, at(monday, 12, 0), 12) // 12:00 .. 14:45

	all, err := f.finder.ListStarts(ctx, monday, 1, 60)
	if err != nil {
		t.Fatalf("ListStarts: %v", err)
	}
	// Starts 12:00 .. 14:00 fit a 60 minute block.
	if len(all) != 9 || !all[0].Equal(at(monday, 12, 0)) || !all[8].Equal(at(monday, 14, 0)) {
		t.Fatalf("unbuffered starts = %v", all)
	}

	// Taking 14:00 excludes every start whose buffered window reaches it:
	// [start-15m, start+60m+15m) must not contain 14:00.
	taken := ids[8]
	f.setStatus(t, domain.SlotTaken, taken)

	got, err := f.finder.ListStarts(ctx, monday, 1, 60)
	if err != nil {
		t.Fatalf("ListStarts: %v", err)
	}
	want := []time.Time{at(monday, 12, 0), at(monday, 12, 15), at(monday, 12, 30), at(monday, 12, 45)}
	// 12:45 ends at 13:45 and its after-buffer stops exactly at 14:00.
	// 13:00 and later either overlap the buffer or lack a free block.
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("buffered starts = %v; want %v", got, want)
	}

	// 13:00 (T-60) is specifically excluded.
	for _, st := range got {
		if st.Equal(at(monday, 13, 0)) {
			t.Fatalf("13:00 must be excluded by the after-buffer")
		}
	}
}

func TestListStarts_SkipsPastAndValidates(t *testing.T) {
	f := newFixture(t, at(monday, 12, 20))
	ctx := context.Background()
	f.seedRun(t, at(monday, 12, 0), 4)

	got, err := f.finder.ListStarts(ctx, monday, 1, 15)
	if err != nil {
		t.Fatalf("ListStarts: %v", err)
	}
	want := []time.Time{at(monday, 12, 30), at(monday, 12, 45)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("starts = %v; want %v", got, want)
	}

	empty, err := f.finder.ListStarts(ctx, monday.AddDate(0, 0, 1), 1, 15)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty day = %#v, %v; want empty non-nil slice", empty, err)
	}

	if _, err := f.finder.ListStarts(ctx, monday, 0, 15); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("zero days: %v", err)
	}
	if _, err := f.finder.ListStarts(ctx, monday, 1, 17); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("bad minutes: %v", err)
	}
}
