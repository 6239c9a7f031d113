package app

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) InsertAvailabilityRule(ctx context.Context, r *AvailabilityRule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockStore) UpdateAvailabilityRule(ctx context.Context, r *AvailabilityRule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockStore) ListAvailabilityRules(ctx context.Context, hostID string) ([]AvailabilityRule, error) {
	args := m.Called(ctx, hostID)
	return args.Get(0).([]AvailabilityRule), args.Error(1)
}

func (m *MockStore) ActiveRulesForDay(ctx context.Context, hostID string, dayOfWeek int) ([]AvailabilityRule, error) {
	args := m.Called(ctx, hostID, dayOfWeek)
	return args.Get(0).([]AvailabilityRule), args.Error(1)
}

func (m *MockStore) ListOverlapping(ctx context.Context, hostID string, start, end time.Time, excludeID string) ([]Booking, error) {
	args := m.Called(ctx, hostID, start, end, excludeID)
	return args.Get(0).([]Booking), args.Error(1)
}

func (m *MockStore) ListConfirmedInRange(ctx context.Context, hostID string, from, to time.Time) ([]Booking, error) {
	args := m.Called(ctx, hostID, from, to)
	return args.Get(0).([]Booking), args.Error(1)
}

func (m *MockStore) CreateBooking(ctx context.Context, b *Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockStore) GetBooking(ctx context.Context, id string) (*Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*Booking)
	return b, args.Error(1)
}

func (m *MockStore) UpdateBooking(ctx context.Context, b *Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockStore) SetGoogleEventID(ctx context.Context, bookingID, eventID string) error {
	return m.Called(ctx, bookingID, eventID).Error(0)
}

func (m *MockStore) SetMeetingLink(ctx context.Context, bookingID, link string) error {
	return m.Called(ctx, bookingID, link).Error(0)
}

func (m *MockStore) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]Booking), args.Error(1)
}

func (m *MockStore) InsertAuditEntry(ctx context.Context, e *AuditEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockStore) ListAuditEntries(ctx context.Context, bookingID string) ([]AuditEntry, error) {
	args := m.Called(ctx, bookingID)
	return args.Get(0).([]AuditEntry), args.Error(1)
}

type MockCalendar struct {
	mock.Mock
}

func (m *MockCalendar) GetFreeBusy(ctx context.Context, hostID string, timeMin, timeMax time.Time) ([]BusyInterval, error) {
	args := m.Called(ctx, hostID, timeMin, timeMax)
	busy, _ := args.Get(0).([]BusyInterval)
	return busy, args.Error(1)
}

func (m *MockCalendar) CreateEvent(ctx context.Context, b *Booking, hostID string) (string, error) {
	args := m.Called(ctx, b, hostID)
	return args.String(0), args.Error(1)
}

func (m *MockCalendar) UpdateEvent(ctx context.Context, b *Booking, eventID, hostID string) (bool, error) {
	args := m.Called(ctx, b, eventID, hostID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCalendar) DeleteEvent(ctx context.Context, eventID, hostID string) (bool, error) {
	args := m.Called(ctx, eventID, hostID)
	return args.Bool(0), args.Error(1)
}
