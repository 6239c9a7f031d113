package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
)

// CalendarScopes are requested on connect: events for the booking mirror,
// readonly for free/busy queries.
var CalendarScopes = []string{
	gcal.CalendarEventsScope,
	gcal.CalendarReadonlyScope,
}

// GET /api/calendar/auth?host_id=...
// Returns the Google consent URL for a host to connect their calendar.
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}
	hostID := c.Query("host_id")
	if hostID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host_id required"})
		return
	}

	state := fmt.Sprintf("host_%s_%d", hostID, time.Now().Unix())
	url := a.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{"auth_url": url, "state": state})
}

// hostIDFromState undoes the "host_<id>_<unix>" state format.
func hostIDFromState(state string) string {
	rest, ok := strings.CutPrefix(state, "host_")
	if !ok {
		return ""
	}
	i := strings.LastIndex(rest, "_")
	if i <= 0 {
		return ""
	}
	return rest[:i]
}

// GET /oauth2callback
// Exchanges the authorization code and persists the host's connection with
// sync enabled.
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}
	hostID := hostIDFromState(c.Query("state"))
	if hostID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	token, err := a.OAuth.Exchange(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}

	conn := &CalendarConnection{
		HostID:       hostID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		CalendarID:   "primary",
		Timezone:     a.DefaultTZ,
		SyncEnabled:  true,
	}
	if err := a.Connections.SaveCalendarConnection(c.Request.Context(), conn); err != nil {
		a.Log.Error("saving calendar connection failed", zap.String("host_id", hostID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save calendar connection"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "calendar connected", "host_id": hostID})
}

// GET /api/calendar/calendars?host_id=...
func (a *App) ListCalendarsHandler(c *gin.Context) {
	hostID := c.Query("host_id")
	if hostID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host_id required"})
		return
	}
	calendars, err := a.Calendars.ListCalendars(c.Request.Context(), hostID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calendars": calendars, "count": len(calendars)})
}

type calendarSettingsReq struct {
	CalendarID  *string `json:"calendar_id,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
	SyncEnabled *bool   `json:"sync_enabled,omitempty"`
}

// PUT /api/calendar/connection?host_id=...
// Adjusts the sync target, timezone, or the sync toggle of an existing
// connection.
func (a *App) UpdateCalendarSettingsHandler(c *gin.Context) {
	hostID := c.Query("host_id")
	if hostID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "host_id required"})
		return
	}
	var req calendarSettingsReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	conn, err := a.Connections.GetCalendarConnection(ctx, hostID)
	if err != nil {
		abortWith(c, err)
		return
	}
	if conn == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no calendar connection for host"})
		return
	}

	if req.CalendarID != nil {
		conn.CalendarID = *req.CalendarID
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timezone"})
			return
		}
		conn.Timezone = *req.Timezone
	}
	if req.SyncEnabled != nil {
		conn.SyncEnabled = *req.SyncEnabled
	}
	if err := a.Connections.SaveCalendarConnection(ctx, conn); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}
