package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/notify"
	"github.com/tbourn/go-coaching-backend/internal/repo"
)

// monday is 2030-01-07, a Monday, at 00:00 UTC.
var monday = time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	// One connection serializes goroutines in concurrency tests instead of
	// surfacing shared-cache table locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	emails []string
	notes  []notify.BookingNotice
	err    error
}

func (r *recordingNotifier) SendBookingEmail(_ context.Context, email string, n notify.BookingNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, email)
	r.notes = append(r.notes, n)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.emails)
}

type fixture struct {
	db       *gorm.DB
	clock    *clock
	avail    *AvailabilityService
	gen      *SlotGenerator
	finder   *BlockFinder
	holds    *HoldService
	bookings *BookingService
	admin    *SlotAdminService
	notifier *recordingNotifier
}

// newFixture wires every service against a fresh database with the clock at now.
func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db := newTestDB(t)
	c := &clock{t: now}
	f := &fixture{db: db, clock: c, notifier: &recordingNotifier{}}
	f.avail = &AvailabilityService{DB: db, Now: c.Now}
	f.gen = &SlotGenerator{DB: db, Availability: f.avail, Step: 15 * time.Minute, HorizonDays: 15, Now: c.Now}
	f.finder = &BlockFinder{
		DB:                db,
		Step:              15 * time.Minute,
		MaxSessionMinutes: 240,
		BufferBefore:      15 * time.Minute,
		BufferAfter:       15 * time.Minute,
		Now:               c.Now,
	}
	f.holds = &HoldService{DB: db, Finder: f.finder, TTL: 10 * time.Minute, Now: c.Now}
	f.bookings = &BookingService{DB: db, Finder: f.finder, Notifier: f.notifier, TimeZone: "UTC", Now: c.Now}
	f.admin = &SlotAdminService{DB: db, Now: c.Now}
	return f
}

// seedFree inserts free 15-minute slots at the given instants and returns their ids.
func (f *fixture) seedFree(t *testing.T, starts ...time.Time) []string {
	t.Helper()
	ids := make([]string, len(starts))
	slots := make([]domain.Slot, len(starts))
	for i, st := range starts {
		ids[i] = fmt.Sprintf("slot-%s", st.UTC().Format("0102-1504"))
		slots[i] = domain.Slot{ID: ids[i], StartTime: st.UTC(), DurationMinutes: 15, Status: domain.SlotFree}
	}
	if err := f.db.Create(&slots).Error; err != nil {
		t.Fatalf("seed slots: %v", err)
	}
	return ids
}

// seedRun inserts n consecutive free slots from start.
func (f *fixture) seedRun(t *testing.T, start time.Time, n int) []string {
	t.Helper()
	starts := make([]time.Time, n)
	for i := range starts {
		starts[i] = start.Add(time.Duration(i) * 15 * time.Minute)
	}
	return f.seedFree(t, starts...)
}

func (f *fixture) slot(t *testing.T, id string) domain.Slot {
	t.Helper()
	s, err := repo.GetSlot(context.Background(), f.db, id)
	if err != nil {
		t.Fatalf("GetSlot(%s): %v", id, err)
	}
	return *s
}

func (f *fixture) setStatus(t *testing.T, status domain.SlotStatus, ids ...string) {
	t.Helper()
	if err := f.db.Model(&domain.Slot{}).Where("id IN ?", ids).Update("status", status).Error; err != nil {
		t.Fatalf("set status: %v", err)
	}
}

// everyDay adds the same window for all seven weekdays, effective well before now.
func (f *fixture) everyDay(t *testing.T, openMin, closeMin int) {
	t.Helper()
	eff := f.clock.Now().AddDate(-1, 0, 0)
	for wd := 0; wd < 7; wd++ {
		if _, err := f.avail.AddRule(context.Background(), RuleInput{Weekday: wd, OpenMinute: openMin, CloseMinute: closeMin, EffectiveFrom: &eff}); err != nil {
			t.Fatalf("AddRule(%d): %v", wd, err)
		}
	}
}

func at(day time.Time, h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func intp(v int) *int { return &v }
