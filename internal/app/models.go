package app

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Booking statuses. Cancelled is terminal.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// MeetLinkPending marks a booking that wants a provider-generated meeting
// link; the adapter replaces it with the real join URL once the provider
// returns one.
const MeetLinkPending = "pending"

type AvailabilityRule struct {
	ID        int       `json:"id"`
	HostID    string    `json:"host_id"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (r *AvailabilityRule) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return errors.New("day_of_week must be between 0 and 6")
	}
	start, err := parseHHMM(r.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := parseHHMM(r.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time: %w", err)
	}
	if !end.After(start) {
		return errors.New("end_time must be after start_time")
	}
	return nil
}

type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AttendeesColumn stores the attendee list as a JSONB column.
type AttendeesColumn []Attendee

// Value implements driver.Valuer for INSERT/UPDATE.
func (a AttendeesColumn) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for SELECT.
func (a *AttendeesColumn) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("not a []byte: %T", value)
	}
	return json.Unmarshal(b, a)
}

type Booking struct {
	ID            string     `json:"id"`
	HostID        string     `json:"host_id"`
	ClientID      string     `json:"client_id"`
	ServiceID     string     `json:"service_id,omitempty"`
	Title         string     `json:"title,omitempty"`
	Description   string     `json:"description,omitempty"`
	Location      string     `json:"location,omitempty"`
	StartAtUTC    time.Time  `json:"start_at_utc"`
	EndAtUTC      time.Time  `json:"end_at_utc"`
	DurationMins  int        `json:"duration_minutes"`
	Status        string     `json:"status"`
	Attendees     []Attendee `json:"attendees"`
	GoogleEventID string     `json:"google_event_id,omitempty"`
	MeetingLink   string     `json:"meeting_link,omitempty"`
	CancelReason  string     `json:"cancellation_reason,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at,omitempty"`
}

// DurationBetween is the booking duration rule: whole minutes between the
// two instants.
func DurationBetween(start, end time.Time) int {
	return int(end.Sub(start) / time.Minute)
}

// SlotCandidate is one cell of the day grid returned by GetAvailableSlots.
// Unavailable slots are included so callers can render them greyed out.
type SlotCandidate struct {
	Label     string    `json:"label"`
	StartUTC  time.Time `json:"start_utc"`
	Available bool      `json:"available"`
}

// BusyInterval is an occupied window reported by the remote calendar. Never
// persisted.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MetadataColumn stores free-form audit metadata as JSONB.
type MetadataColumn map[string]any

func (m MetadataColumn) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *MetadataColumn) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("not a []byte: %T", value)
	}
	return json.Unmarshal(b, m)
}

// AuditEntry records who did what to which booking. Append-only.
type AuditEntry struct {
	ID        string         `json:"id"`
	BookingID string         `json:"booking_id"`
	Action    string         `json:"action"`
	ActorID   string         `json:"actor_id"`
	Metadata  MetadataColumn `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CalendarInfo is one entry of a host's remote calendar list, used when
// picking the sync target.
type CalendarInfo struct {
	ID         string `json:"id"`
	Summary    string `json:"summary"`
	Primary    bool   `json:"primary"`
	AccessRole string `json:"access_role"`
}

// CalendarConnection is a host's stored Google Calendar credential set.
type CalendarConnection struct {
	HostID       string    `json:"host_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`
	CalendarID   string    `json:"calendar_id"`
	Timezone     string    `json:"timezone"`
	SyncEnabled  bool      `json:"sync_enabled"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}
