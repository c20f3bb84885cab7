// Availability HTTP handlers.
//
// Public, read-only endpoints:
//   - GET /availability/{date}   (open intervals of one UTC day)
//   - GET /availability          (open intervals of a day range)
//   - GET /slots/starts          (bookable start times for a session length)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-coaching-backend/internal/calendar"
	"github.com/tbourn/go-coaching-backend/internal/services"
	"github.com/tbourn/go-coaching-backend/internal/utils"
)

const (
	defaultRangeDays = 7
	maxRangeDays     = 62
)

//
// DTOs
//

// DayAvailabilityResponse lists the open intervals of one day. Intervals is
// null when the day is closed.
type DayAvailabilityResponse struct {
	Date      string              `json:"date" example:"2030-01-07"`
	Intervals []calendar.Interval `json:"intervals"`
}

// RangeAvailabilityResponse lists consecutive days.
type RangeAvailabilityResponse struct {
	Days []DayAvailabilityResponse `json:"days"`
}

// StartsResponse lists the instants at which a session of the requested
// length can start, ascending.
type StartsResponse struct {
	Minutes int         `json:"minutes" example:"60"`
	Starts  []time.Time `json:"starts"`
}

// rangeQuery reads from (default today) and days (default 7) query params.
func (h *Handlers) rangeQuery(c *gin.Context) (time.Time, int, bool) {
	from := h.today()
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		d, err := utils.ParseDay(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from: "+err.Error())
			return time.Time{}, 0, false
		}
		from = d
	}
	days := utils.AtoiDefault(strings.TrimSpace(c.Query("days")), defaultRangeDays)
	if days < 1 || days > maxRangeDays {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "days must be between 1 and 62")
		return time.Time{}, 0, false
	}
	return from, days, true
}

// GetAvailability godoc
// @ID          getAvailability
// @Summary     Open hours for a day
// @Description Resolves the weekly rules and date exceptions for one UTC day, including a window carried over from the previous day.
// @Tags        Availability
// @Produce     json
// @Param       date  path  string  true  "Day (YYYY-MM-DD)"  example(2030-01-07)
// @Success     200  {object}  handlers.DayAvailabilityResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad date"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /availability/{date} [get]
func (h *Handlers) GetAvailability(c *gin.Context) {
	day, err := utils.ParseDay(c.Param("date"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date: "+err.Error())
		return
	}
	ivs, err := h.avail.GetDayAvailability(c.Request.Context(), day)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, DayAvailabilityResponse{Date: day.Format(time.DateOnly), Intervals: ivs})
}

// ListAvailability godoc
// @ID          listAvailability
// @Summary     Open hours for a range of days
// @Tags        Availability
// @Produce     json
// @Param       from  query  string  false  "First day (YYYY-MM-DD), default today"
// @Param       days  query  int     false  "Number of days"  minimum(1) maximum(62) default(7)
// @Success     200  {object}  handlers.RangeAvailabilityResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /availability [get]
func (h *Handlers) ListAvailability(c *gin.Context) {
	from, days, valid := h.rangeQuery(c)
	if !valid {
		return
	}
	out, err := h.avail.RangeAvailability(c.Request.Context(), from, days)
	if err != nil {
		serviceError(c, err)
		return
	}
	resp := RangeAvailabilityResponse{Days: make([]DayAvailabilityResponse, 0, len(out))}
	for _, d := range out {
		resp.Days = append(resp.Days, DayAvailabilityResponse{Date: d.Date.Format(time.DateOnly), Intervals: d.Intervals})
	}
	ok(c, http.StatusOK, resp)
}

// ListStarts godoc
// @ID          listStarts
// @Summary     Bookable start times
// @Description Start instants where every slot of the session is free and unheld, with the configured buffers clear of taken slots.
// @Tags        Slots
// @Produce     json
// @Param       minutes  query  int     true   "Session length in minutes (multiple of the slot step)"  example(60)
// @Param       from     query  string  false  "First day (YYYY-MM-DD), default today"
// @Param       days     query  int     false  "Number of days"  minimum(1) maximum(62) default(7)
// @Success     200  {object}  handlers.StartsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /slots/starts [get]
func (h *Handlers) ListStarts(c *gin.Context) {
	minutes := utils.AtoiDefault(strings.TrimSpace(c.Query("minutes")), 0)
	if minutes <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "minutes must be a positive integer")
		return
	}
	from, days, valid := h.rangeQuery(c)
	if !valid {
		return
	}
	starts, err := h.starts.ListStarts(c.Request.Context(), from, days, minutes)
	if err != nil {
		serviceError(c, err)
		return
	}
	if starts == nil {
		starts = []time.Time{}
	}
	ok(c, http.StatusOK, StartsResponse{Minutes: minutes, Starts: starts})
}

// startRef builds a block reference from a slot id or a start instant.
func startRef(slotID string, start *time.Time) (services.StartRef, bool) {
	ref := services.StartRef{SlotID: strings.TrimSpace(slotID)}
	if start != nil {
		ref.Start = start.UTC()
	}
	return ref, !ref.IsZero()
}
