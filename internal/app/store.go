package app

import (
	"context"
	"time"
)

// BookingFilter narrows ListBookings. Zero values mean "don't filter".
type BookingFilter struct {
	HostID   string
	ClientID string
	Status   string
	From     time.Time
	To       time.Time
}

// BookingUpdate carries the mutable booking fields for UpdateBooking. Nil
// pointers leave the stored value untouched.
type BookingUpdate struct {
	Title       *string
	Description *string
	Location    *string
	StartAtUTC  *time.Time
	EndAtUTC    *time.Time
	Attendees   *[]Attendee
	MeetingLink *string
}

// Store is the persistence collaborator for the booking engine. The pgx
// implementation lives in db.go; tests substitute a mock.
type Store interface {
	InsertAvailabilityRule(ctx context.Context, r *AvailabilityRule) error
	UpdateAvailabilityRule(ctx context.Context, r *AvailabilityRule) error
	ListAvailabilityRules(ctx context.Context, hostID string) ([]AvailabilityRule, error)
	ActiveRulesForDay(ctx context.Context, hostID string, dayOfWeek int) ([]AvailabilityRule, error)

	// ListOverlapping returns confirmed bookings for hostID whose window
	// overlaps [start, end). excludeID, when non-empty, drops that booking
	// from the result so a time-changing update does not collide with its
	// own row.
	ListOverlapping(ctx context.Context, hostID string, start, end time.Time, excludeID string) ([]Booking, error)
	ListConfirmedInRange(ctx context.Context, hostID string, from, to time.Time) ([]Booking, error)

	CreateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id string) (*Booking, error)
	UpdateBooking(ctx context.Context, b *Booking) error
	SetGoogleEventID(ctx context.Context, bookingID, eventID string) error
	SetMeetingLink(ctx context.Context, bookingID, link string) error
	ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error)

	InsertAuditEntry(ctx context.Context, e *AuditEntry) error
	ListAuditEntries(ctx context.Context, bookingID string) ([]AuditEntry, error)
}

// CalendarProvider mirrors bookings into the host's remote calendar. Every
// method is best-effort from the engine's point of view: GetFreeBusy errors
// are treated as "no busy intervals", mutation errors are logged and
// ignored.
type CalendarProvider interface {
	GetFreeBusy(ctx context.Context, hostID string, timeMin, timeMax time.Time) ([]BusyInterval, error)
	CreateEvent(ctx context.Context, b *Booking, hostID string) (string, error)
	UpdateEvent(ctx context.Context, b *Booking, eventID, hostID string) (bool, error)
	DeleteEvent(ctx context.Context, eventID, hostID string) (bool, error)
}

// ConnectionStore persists per-host calendar credentials. Implemented by the
// pgx store, consumed by the calendar adapter.
type ConnectionStore interface {
	GetCalendarConnection(ctx context.Context, hostID string) (*CalendarConnection, error)
	SaveCalendarConnection(ctx context.Context, conn *CalendarConnection) error
}

// CalendarLister exposes the host's remote calendar list so they can choose
// a sync target.
type CalendarLister interface {
	ListCalendars(ctx context.Context, hostID string) ([]CalendarInfo, error)
}
