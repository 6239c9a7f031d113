package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(store *MockStore, cal *MockCalendar) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := NewBookingService(store, cal, zap.NewNop(), time.UTC)
	a := &App{Engine: engine, Log: zap.NewNop(), DefaultTZ: "UTC"}

	router := gin.New()
	api := router.Group("/api")
	api.POST("/hosts/:id/availability", a.SetAvailabilityHandler)
	api.GET("/hosts/:id/availability/check", a.CheckAvailabilityHandler)
	api.GET("/hosts/:id/slots", a.GetSlotsHandler)
	api.POST("/bookings", a.CreateBookingHandler)
	api.GET("/bookings/:id", a.GetBookingHandler)
	api.DELETE("/bookings/:id", a.CancelBookingHandler)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateBookingHandler(t *testing.T) {
	start := time.Date(2024, 1, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	payload := gin.H{
		"host_id":      "host-1",
		"client_id":    "client-1",
		"title":        "Kick-off",
		"start_at_utc": start.Format(time.RFC3339),
		"end_at_utc":   end.Format(time.RFC3339),
	}

	t.Run("created", func(t *testing.T) {
		store := new(MockStore)
		cal := new(MockCalendar)
		store.On("ListOverlapping", mock.Anything, "host-1", start, end, "").Return([]Booking{}, nil)
		cal.On("GetFreeBusy", mock.Anything, "host-1", start, end).Return(nil, ErrNoConn())
		store.On("CreateBooking", mock.Anything, mock.AnythingOfType("*app.Booking")).Return(nil)
		cal.On("CreateEvent", mock.Anything, mock.AnythingOfType("*app.Booking"), "host-1").Return("", nil)
		store.On("InsertAuditEntry", mock.Anything, mock.AnythingOfType("*app.AuditEntry")).Return(nil)

		w := doJSON(t, newTestRouter(store, cal), http.MethodPost, "/api/bookings", payload)
		require.Equal(t, http.StatusCreated, w.Code)

		var b Booking
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
		assert.Equal(t, StatusConfirmed, b.Status)
		assert.Equal(t, 60, b.DurationMins)
	})

	t.Run("conflict maps to 409", func(t *testing.T) {
		store := new(MockStore)
		cal := new(MockCalendar)
		store.On("ListOverlapping", mock.Anything, "host-1", start, end, "").
			Return([]Booking{{ID: "existing"}}, nil)

		w := doJSON(t, newTestRouter(store, cal), http.MethodPost, "/api/bookings", payload)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("inverted window maps to 400", func(t *testing.T) {
		bad := gin.H{
			"host_id":      "host-1",
			"client_id":    "client-1",
			"start_at_utc": end.Format(time.RFC3339),
			"end_at_utc":   start.Format(time.RFC3339),
		}
		w := doJSON(t, newTestRouter(new(MockStore), new(MockCalendar)), http.MethodPost, "/api/bookings", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing required fields map to 400", func(t *testing.T) {
		w := doJSON(t, newTestRouter(new(MockStore), new(MockCalendar)), http.MethodPost, "/api/bookings",
			gin.H{"host_id": "host-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSetAvailabilityHandler(t *testing.T) {
	t.Run("creates the batch", func(t *testing.T) {
		store := new(MockStore)
		store.On("InsertAvailabilityRule", mock.Anything, mock.AnythingOfType("*app.AvailabilityRule")).
			Return(nil)

		w := doJSON(t, newTestRouter(store, new(MockCalendar)), http.MethodPost,
			"/api/hosts/host-1/availability", []gin.H{
				{"day_of_week": 3, "start_time": "09:00", "end_time": "11:00", "active": true},
				{"day_of_week": 4, "start_time": "13:00", "end_time": "17:00", "active": true},
			})
		require.Equal(t, http.StatusCreated, w.Code)
		store.AssertNumberOfCalls(t, "InsertAvailabilityRule", 2)
	})

	t.Run("invalid rule mid-batch commits nothing", func(t *testing.T) {
		store := new(MockStore)

		w := doJSON(t, newTestRouter(store, new(MockCalendar)), http.MethodPost,
			"/api/hosts/host-1/availability", []gin.H{
				{"day_of_week": 3, "start_time": "09:00", "end_time": "11:00", "active": true},
				{"day_of_week": 3, "start_time": "11:00", "end_time": "09:00", "active": true},
			})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		store.AssertNotCalled(t, "InsertAvailabilityRule", mock.Anything, mock.Anything)
	})
}

func TestGetBookingHandler(t *testing.T) {
	t.Run("unknown id maps to 404", func(t *testing.T) {
		store := new(MockStore)
		store.On("GetBooking", mock.Anything, "nope").Return(nil, nil)

		w := doJSON(t, newTestRouter(store, new(MockCalendar)), http.MethodGet, "/api/bookings/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCancelBookingHandler(t *testing.T) {
	store := new(MockStore)
	cal := new(MockCalendar)
	store.On("GetBooking", mock.Anything, "bk-1").Return(&Booking{
		ID: "bk-1", HostID: "host-1", Status: StatusConfirmed,
	}, nil)
	store.On("UpdateBooking", mock.Anything, mock.AnythingOfType("*app.Booking")).Return(nil)
	store.On("InsertAuditEntry", mock.Anything, mock.AnythingOfType("*app.AuditEntry")).Return(nil)

	w := doJSON(t, newTestRouter(store, cal), http.MethodDelete, "/api/bookings/bk-1",
		gin.H{"reason": "client no-show"})
	require.Equal(t, http.StatusOK, w.Code)

	var b Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, StatusCancelled, b.Status)
	assert.Equal(t, "client no-show", b.CancelReason)
}

func TestCheckAvailabilityHandler(t *testing.T) {
	start := time.Date(2024, 1, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	store := new(MockStore)
	cal := new(MockCalendar)
	store.On("ListOverlapping", mock.Anything, "host-1", start, end, "").Return([]Booking{}, nil)
	cal.On("GetFreeBusy", mock.Anything, "host-1", start, end).Return(nil, ErrNoConn())

	path := "/api/hosts/host-1/availability/check?start=" + start.Format(time.RFC3339) + "&end=" + end.Format(time.RFC3339)
	w := doJSON(t, newTestRouter(store, cal), http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"available":true}`, w.Body.String())
}

func TestGetSlotsHandler(t *testing.T) {
	t.Run("missing date maps to 400", func(t *testing.T) {
		w := doJSON(t, newTestRouter(new(MockStore), new(MockCalendar)), http.MethodGet, "/api/hosts/host-1/slots", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad duration maps to 400", func(t *testing.T) {
		w := doJSON(t, newTestRouter(new(MockStore), new(MockCalendar)), http.MethodGet,
			"/api/hosts/host-1/slots?date=2024-01-10&duration=zero", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("grid returned", func(t *testing.T) {
		store := new(MockStore)
		cal := new(MockCalendar)
		store.On("ActiveRulesForDay", mock.Anything, "host-1", 3).Return([]AvailabilityRule{{
			ID: 1, HostID: "host-1", DayOfWeek: 3, StartTime: "09:00", EndTime: "11:00", Active: true,
		}}, nil)
		store.On("ListConfirmedInRange", mock.Anything, "host-1", mock.Anything, mock.Anything).
			Return([]Booking{}, nil)
		cal.On("GetFreeBusy", mock.Anything, "host-1", mock.Anything, mock.Anything).Return(nil, ErrNoConn())

		w := doJSON(t, newTestRouter(store, cal), http.MethodGet, "/api/hosts/host-1/slots?date=2024-01-10", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Slots []SlotCandidate `json:"slots"`
			Count int             `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Count)
	})

	t.Run("date names a day in the service zone", func(t *testing.T) {
		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		store := new(MockStore)
		cal := new(MockCalendar)
		engine := NewBookingService(store, cal, zap.NewNop(), loc)
		a := &App{Engine: engine, Log: zap.NewNop(), DefaultTZ: "America/New_York"}
		router := gin.New()
		router.GET("/api/hosts/:id/slots", a.GetSlotsHandler)

		// Midnight 2024-01-10 in New York is still Tuesday evening in
		// UTC; the rules and the day window must follow the local
		// Wednesday, not the UTC weekday.
		dayStart := time.Date(2024, 1, 10, 0, 0, 0, 0, loc)
		store.On("ActiveRulesForDay", mock.Anything, "host-1", 3).Return([]AvailabilityRule{{
			ID: 1, HostID: "host-1", DayOfWeek: 3, StartTime: "09:00", EndTime: "10:00", Active: true,
		}}, nil)
		store.On("ListConfirmedInRange", mock.Anything, "host-1", dayStart, dayStart.Add(24*time.Hour)).
			Return([]Booking{}, nil)
		cal.On("GetFreeBusy", mock.Anything, "host-1", mock.Anything, mock.Anything).Return(nil, ErrNoConn())

		w := doJSON(t, router, http.MethodGet, "/api/hosts/host-1/slots?date=2024-01-10", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Slots []SlotCandidate `json:"slots"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Slots, 1)
		assert.Equal(t, "09:00", resp.Slots[0].Label)
		store.AssertExpectations(t)
	})
}

type MockConnStore struct {
	mock.Mock
}

func (m *MockConnStore) GetCalendarConnection(ctx context.Context, hostID string) (*CalendarConnection, error) {
	args := m.Called(ctx, hostID)
	conn, _ := args.Get(0).(*CalendarConnection)
	return conn, args.Error(1)
}

func (m *MockConnStore) SaveCalendarConnection(ctx context.Context, conn *CalendarConnection) error {
	return m.Called(ctx, conn).Error(0)
}

func TestUpdateCalendarSettingsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(conns *MockConnStore) *gin.Engine {
		a := &App{Connections: conns, Log: zap.NewNop(), DefaultTZ: "UTC"}
		router := gin.New()
		router.PUT("/api/calendar/connection", a.UpdateCalendarSettingsHandler)
		return router
	}

	t.Run("toggles sync and retargets the calendar", func(t *testing.T) {
		conns := new(MockConnStore)
		conns.On("GetCalendarConnection", mock.Anything, "host-1").Return(&CalendarConnection{
			HostID:      "host-1",
			CalendarID:  "primary",
			Timezone:    "UTC",
			SyncEnabled: true,
		}, nil)
		conns.On("SaveCalendarConnection", mock.Anything, mock.MatchedBy(func(c *CalendarConnection) bool {
			return c.CalendarID == "team@group.calendar.google.com" && !c.SyncEnabled
		})).Return(nil)

		w := doJSON(t, newRouter(conns), http.MethodPut, "/api/calendar/connection?host_id=host-1",
			gin.H{"calendar_id": "team@group.calendar.google.com", "sync_enabled": false})
		require.Equal(t, http.StatusOK, w.Code)
		conns.AssertExpectations(t)
	})

	t.Run("unknown host maps to 404", func(t *testing.T) {
		conns := new(MockConnStore)
		conns.On("GetCalendarConnection", mock.Anything, "ghost").Return(nil, nil)

		w := doJSON(t, newRouter(conns), http.MethodPut, "/api/calendar/connection?host_id=ghost",
			gin.H{"sync_enabled": false})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid timezone maps to 400", func(t *testing.T) {
		conns := new(MockConnStore)
		conns.On("GetCalendarConnection", mock.Anything, "host-1").Return(&CalendarConnection{
			HostID: "host-1",
		}, nil)

		w := doJSON(t, newRouter(conns), http.MethodPut, "/api/calendar/connection?host_id=host-1",
			gin.H{"timezone": "Mars/Olympus"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHostIDFromState(t *testing.T) {
	assert.Equal(t, "host-1", hostIDFromState("host_host-1_1704888000"))
	assert.Equal(t, "", hostIDFromState("garbage"))
	assert.Equal(t, "", hostIDFromState("host__"))
}
