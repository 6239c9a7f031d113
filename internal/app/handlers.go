package app

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// App wires the engine and its collaborators into gin handlers. Handlers
// stay thin: parse, call the engine, map errors to status codes.
type App struct {
	Engine      *BookingService
	Connections ConnectionStore
	Calendars   CalendarLister
	OAuth       *oauth2.Config
	Log         *zap.Logger
	DefaultTZ   string
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSlotTaken):
		return http.StatusConflict
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, ErrRuleNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// POST /api/hosts/:id/availability
// Accepts a list of rules to create for the host.
func (a *App) SetAvailabilityHandler(c *gin.Context) {
	hostID := c.Param("id")
	var payload []AvailabilityRule
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	// Validate the whole batch up front so a bad rule mid-list cannot
	// leave earlier rules committed behind an error response.
	for i := range payload {
		payload[i].HostID = hostID
		if err := payload[i].Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	saved := make([]AvailabilityRule, 0, len(payload))
	for i := range payload {
		if err := a.Engine.store.InsertAvailabilityRule(ctx, &payload[i]); err != nil {
			abortWith(c, err)
			return
		}
		saved = append(saved, payload[i])
	}
	c.JSON(http.StatusCreated, saved)
}

// PUT /api/hosts/:id/availability/:rule_id
func (a *App) UpdateAvailabilityHandler(c *gin.Context) {
	hostID := c.Param("id")
	var payload AvailabilityRule
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ruleID, err := strconv.Atoi(c.Param("rule_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule_id"})
		return
	}
	payload.ID = ruleID
	payload.HostID = hostID

	if err := a.Engine.store.UpdateAvailabilityRule(c.Request.Context(), &payload); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// GET /api/hosts/:id/availability
func (a *App) ListAvailabilityHandler(c *gin.Context) {
	rules, err := a.Engine.store.ListAvailabilityRules(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GET /api/hosts/:id/slots?date=2024-01-10&duration=60
func (a *App) GetSlotsHandler(c *gin.Context) {
	hostID := c.Param("id")
	dateStr := c.Query("date")
	if dateStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required (YYYY-MM-DD)"})
		return
	}
	// The date names a calendar day in the service zone, not a UTC
	// instant: midnight UTC on a day west of UTC is still the previous
	// local day.
	date, err := time.ParseInLocation("2006-01-02", dateStr, a.Engine.Location())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	duration := DefaultSlotMinutes
	if d := c.Query("duration"); d != "" {
		duration, err = strconv.Atoi(d)
		if err != nil || duration <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration"})
			return
		}
	}

	slots, err := a.Engine.GetAvailableSlots(c.Request.Context(), hostID, date, duration)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots, "count": len(slots)})
}

// GET /api/hosts/:id/availability/check?start=ISO&end=ISO
func (a *App) CheckAvailabilityHandler(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start"})
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end"})
		return
	}
	free, err := a.Engine.CheckAvailability(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": free})
}

type createBookingReq struct {
	HostID      string     `json:"host_id" binding:"required"`
	ClientID    string     `json:"client_id" binding:"required"`
	ServiceID   string     `json:"service_id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	StartAtUTC  time.Time  `json:"start_at_utc" binding:"required"`
	EndAtUTC    time.Time  `json:"end_at_utc" binding:"required"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	MeetingLink string     `json:"meeting_link,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
}

// POST /api/bookings
func (a *App) CreateBookingHandler(c *gin.Context) {
	var req createBookingReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.StartAtUTC.Before(req.EndAtUTC) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be before end"})
		return
	}

	b, err := a.Engine.CreateBooking(c.Request.Context(), CreateBookingInput{
		HostID:      req.HostID,
		ClientID:    req.ClientID,
		ServiceID:   req.ServiceID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartAtUTC:  req.StartAtUTC,
		EndAtUTC:    req.EndAtUTC,
		Attendees:   req.Attendees,
		MeetingLink: req.MeetingLink,
	}, req.CreatedBy)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

type updateBookingReq struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Location    *string     `json:"location,omitempty"`
	StartAtUTC  *time.Time  `json:"start_at_utc,omitempty"`
	EndAtUTC    *time.Time  `json:"end_at_utc,omitempty"`
	Attendees   *[]Attendee `json:"attendees,omitempty"`
	MeetingLink *string     `json:"meeting_link,omitempty"`
	UpdatedBy   string      `json:"updated_by,omitempty"`
}

// PATCH /api/bookings/:id
func (a *App) UpdateBookingHandler(c *gin.Context) {
	var req updateBookingReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := a.Engine.UpdateBooking(c.Request.Context(), c.Param("id"), BookingUpdate{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartAtUTC:  req.StartAtUTC,
		EndAtUTC:    req.EndAtUTC,
		Attendees:   req.Attendees,
		MeetingLink: req.MeetingLink,
	}, req.UpdatedBy)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type cancelBookingReq struct {
	Reason      string `json:"reason,omitempty"`
	CancelledBy string `json:"cancelled_by,omitempty"`
}

// DELETE /api/bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	var req cancelBookingReq
	// body is optional on cancel
	_ = c.ShouldBindJSON(&req)

	b, err := a.Engine.CancelBooking(c.Request.Context(), c.Param("id"), req.Reason, req.CancelledBy)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GET /api/bookings/:id
func (a *App) GetBookingHandler(c *gin.Context) {
	b, err := a.Engine.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GET /api/bookings?host_id=&client_id=&status=&from=ISO&to=ISO
func (a *App) ListBookingsHandler(c *gin.Context) {
	f := BookingFilter{
		HostID:   c.Query("host_id"),
		ClientID: c.Query("client_id"),
		Status:   c.Query("status"),
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		f.From = from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		f.To = to
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}

	bookings, err := a.Engine.ListBookings(c.Request.Context(), f)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// GET /api/bookings/:id/audit
func (a *App) ListAuditHandler(c *gin.Context) {
	entries, err := a.Engine.ListAuditEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}
