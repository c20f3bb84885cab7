// Admin HTTP handlers (Bearer ADMIN_TOKEN).
//
// Slot inventory:
//   - POST   /admin/slots/recompute?days=N
//   - GET    /admin/slots/stats?from&to
//   - POST   /admin/slots/block, /admin/slots/unblock
//   - DELETE /admin/slots?from&to
//
// Availability:
//   - GET|POST /admin/rules, GET|POST /admin/exceptions
//   - DELETE   /admin/exceptions/{id}
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-coaching-backend/internal/domain"
	"github.com/tbourn/go-coaching-backend/internal/repo"
	"github.com/tbourn/go-coaching-backend/internal/services"
	"github.com/tbourn/go-coaching-backend/internal/utils"
)

// defaultStatsDays is the stats window when to is omitted.
const defaultStatsDays = 30

//
// DTOs
//

// SlotRangeRequest selects slots starting in [from, to). Either bound may be
// a day (YYYY-MM-DD, meaning its UTC midnight) or an RFC 3339 instant.
type SlotRangeRequest struct {
	From string `json:"from" binding:"required" example:"2030-01-07"`
	To   string `json:"to" binding:"required" example:"2030-01-08T12:00:00Z"`
}

// AffectedResponse reports how many slots an admin operation changed.
type AffectedResponse struct {
	Affected int64 `json:"affected" example:"12"`
}

// SlotStatsResponse counts slots per status in a window.
type SlotStatsResponse struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	repo.SlotCounts
	Total int64 `json:"total"`
}

// ExceptionRequest overrides one calendar day.
type ExceptionRequest struct {
	Date        string `json:"date" binding:"required" example:"2030-12-24"`
	Blocked     bool   `json:"blocked"`
	OpenMinute  *int   `json:"open_minute,omitempty" example:"780"`
	CloseMinute *int   `json:"close_minute,omitempty" example:"1080"`
	Reason      string `json:"reason,omitempty" binding:"omitempty,max=255"`
}

func parseRange(from, to string) (time.Time, time.Time, bool) {
	f, err := utils.ParseInstant(from)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	t, err := utils.ParseInstant(to)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return f, t, true
}

// RecomputeSlots godoc
// @ID          recomputeSlots
// @Summary     Regenerate the slot grid
// @Description Deletes past slots and free or blocked slots without an active hold, then regenerates free slots for the horizon. Held and taken slots are preserved.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       days  query  int  false  "Horizon in days (default from configuration)"
// @Success     200  {object}  services.RecomputeResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/slots/recompute [post]
func (h *Handlers) RecomputeSlots(c *gin.Context) {
	days := utils.AtoiDefault(strings.TrimSpace(c.Query("days")), 0)
	if days < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "days must not be negative")
		return
	}
	res, err := h.gen.RecomputeSlots(c.Request.Context(), days)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// SlotStats godoc
// @ID          slotStats
// @Summary     Slot inventory counts
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       from  query  string  false  "Window start (day or RFC 3339), default today"
// @Param       to    query  string  false  "Window end (exclusive), default from + 30 days"
// @Success     200  {object}  handlers.SlotStatsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/slots/stats [get]
func (h *Handlers) SlotStats(c *gin.Context) {
	from := h.today()
	if raw := c.Query("from"); raw != "" {
		t, err := utils.ParseInstant(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from: "+err.Error())
			return
		}
		from = t
	}
	to := from.AddDate(0, 0, defaultStatsDays)
	if raw := c.Query("to"); raw != "" {
		t, err := utils.ParseInstant(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "to: "+err.Error())
			return
		}
		to = t
	}
	counts, err := h.slots.Stats(c.Request.Context(), from, to)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, SlotStatsResponse{From: from, To: to, SlotCounts: counts, Total: counts.Total()})
}

// BlockSlots godoc
// @ID          blockSlots
// @Summary     Block free slots in a range
// @Description Moves free slots without an active hold to blocked.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.SlotRangeRequest  true  "Range"
// @Success     200  {object}  handlers.AffectedResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/slots/block [post]
func (h *Handlers) BlockSlots(c *gin.Context) { h.rangeOp(c, h.slots.Block) }

// UnblockSlots godoc
// @ID          unblockSlots
// @Summary     Unblock slots in a range
// @Description Moves blocked slots without an active hold back to free.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.SlotRangeRequest  true  "Range"
// @Success     200  {object}  handlers.AffectedResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/slots/unblock [post]
func (h *Handlers) UnblockSlots(c *gin.Context) { h.rangeOp(c, h.slots.Unblock) }

func (h *Handlers) rangeOp(c *gin.Context, op func(ctx context.Context, from, to time.Time) (int64, error)) {
	var req SlotRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from and to required")
		return
	}
	from, to, valid := parseRange(req.From, req.To)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from and to must be YYYY-MM-DD or RFC 3339")
		return
	}
	n, err := op(c.Request.Context(), from, to)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, AffectedResponse{Affected: n})
}

// DeleteSlots godoc
// @ID          deleteSlots
// @Summary     Delete slots in a range
// @Description Deletes free and blocked slots without an active hold. Taken slots are never deleted.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       from  query  string  true  "Range start (day or RFC 3339)"
// @Param       to    query  string  true  "Range end, exclusive"
// @Success     200  {object}  handlers.AffectedResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/slots [delete]
func (h *Handlers) DeleteSlots(c *gin.Context) {
	from, to, valid := parseRange(c.Query("from"), c.Query("to"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "from and to must be YYYY-MM-DD or RFC 3339")
		return
	}
	n, err := h.slots.Delete(c.Request.Context(), from, to)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, AffectedResponse{Affected: n})
}

// ListRules godoc
// @ID          listRules
// @Summary     Weekly availability rules
// @Description Returns the rule in effect for each weekday, or every version with history=true.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       history  query  bool  false  "Include superseded versions"
// @Success     200  {array}   domain.AvailabilityRule
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/rules [get]
func (h *Handlers) ListRules(c *gin.Context) {
	var (
		rules []domain.AvailabilityRule
		err   error
	)
	if c.Query("history") == "true" {
		rules, err = h.avail.RuleHistory(c.Request.Context())
	} else {
		rules, err = h.avail.CurrentRules(c.Request.Context())
	}
	if err != nil {
		serviceError(c, err)
		return
	}
	if rules == nil {
		rules = []domain.AvailabilityRule{}
	}
	ok(c, http.StatusOK, rules)
}

// CreateRule godoc
// @ID          createRule
// @Summary     Add a weekly rule version
// @Description Appends a rule version for a weekday (0 = Sunday). Earlier versions are kept; the latest effective_from at or before a day applies to it.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  services.RuleInput  true  "Rule"
// @Success     201  {object}  domain.AvailabilityRule
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/rules [post]
func (h *Handlers) CreateRule(c *gin.Context) {
	var req services.RuleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rule, err := h.avail.AddRule(c.Request.Context(), req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, rule)
}

// ListExceptions godoc
// @ID          listExceptions
// @Summary     Date exceptions in a range
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Param       from  query  string  false  "First day (YYYY-MM-DD), default today"
// @Param       days  query  int     false  "Number of days"  minimum(1) maximum(62) default(7)
// @Success     200  {array}   domain.AvailabilityException
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/exceptions [get]
func (h *Handlers) ListExceptions(c *gin.Context) {
	from, days, valid := h.rangeQuery(c)
	if !valid {
		return
	}
	out, err := h.avail.ListExceptions(c.Request.Context(), from, days)
	if err != nil {
		serviceError(c, err)
		return
	}
	if out == nil {
		out = []domain.AvailabilityException{}
	}
	ok(c, http.StatusOK, out)
}

// CreateException godoc
// @ID          createException
// @Summary     Add a date exception
// @Description Blocks a whole day, or removes [open_minute, close_minute] from it (either bound defaults to the day edge).
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.ExceptionRequest  true  "Exception"
// @Success     201  {object}  domain.AvailabilityException
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/exceptions [post]
func (h *Handlers) CreateException(c *gin.Context) {
	var req ExceptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	day, err := utils.ParseDay(req.Date)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date: "+err.Error())
		return
	}
	ex, err := h.avail.AddException(c.Request.Context(), services.ExceptionInput{
		Date:        day,
		Blocked:     req.Blocked,
		OpenMinute:  req.OpenMinute,
		CloseMinute: req.CloseMinute,
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusCreated, ex)
}

// DeleteException godoc
// @ID          deleteException
// @Summary     Remove a date exception
// @Tags        Admin
// @Security    BearerAuth
// @Param       id  path  string  true  "Exception ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/exceptions/{id} [delete]
func (h *Handlers) DeleteException(c *gin.Context) {
	if err := h.avail.DeleteException(c.Request.Context(), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}
