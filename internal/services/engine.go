package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-coaching-backend/internal/config"
)

// Engine holds the scheduling services wired to one database and one set
// of scheduling parameters.
type Engine struct {
	DB           *gorm.DB
	Availability *AvailabilityService
	Finder       *BlockFinder
	Holds        *HoldService
	Generator    *SlotGenerator
	Slots        *SlotAdminService
	Bookings     *BookingService
}

// NewEngine builds the services from configuration. notifier may be nil.
func NewEngine(db *gorm.DB, cfg config.SchedulingConfig, notifier Notifier) *Engine {
	now := func() time.Time { return time.Now().UTC() }

	avail := &AvailabilityService{DB: db, Now: now}
	finder := &BlockFinder{
		DB:                db,
		Step:              cfg.SlotStep,
		MaxSessionMinutes: cfg.MaxSessionMinutes,
		BufferBefore:      cfg.BufferBefore,
		BufferAfter:       cfg.BufferAfter,
		Now:               now,
	}
	return &Engine{
		DB:           db,
		Availability: avail,
		Finder:       finder,
		Holds:        &HoldService{DB: db, Finder: finder, TTL: cfg.HoldTTL, Now: now},
		Generator:    &SlotGenerator{DB: db, Availability: avail, Step: cfg.SlotStep, HorizonDays: cfg.HorizonDays, Now: now},
		Slots:        &SlotAdminService{DB: db, Now: now},
		Bookings:     &BookingService{DB: db, Finder: finder, Notifier: notifier, TimeZone: cfg.NotifyTimeZone, Now: now},
	}
}
