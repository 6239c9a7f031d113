package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSlotMinutes is used when a slot query does not name a duration.
const DefaultSlotMinutes = 60

// BookingService is the single source of truth for host availability and the
// booking lifecycle. Local state is authoritative: the remote calendar is a
// best-effort mirror and its outages never block a booking.
type BookingService struct {
	store    Store
	calendar CalendarProvider
	log      *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewBookingService(store Store, calendar CalendarProvider, log *zap.Logger, loc *time.Location) *BookingService {
	if loc == nil {
		loc = time.UTC
	}
	return &BookingService{
		store:    store,
		calendar: calendar,
		log:      log,
		loc:      loc,
		now:      time.Now,
	}
}

// Location is the zone in which dates and rule times are interpreted.
func (s *BookingService) Location() *time.Location {
	return s.loc
}

// CheckAvailability reports whether hostID is free over [start, end). Local
// confirmed bookings are checked first; the remote calendar is consulted only
// when the local check passes, and any remote failure counts as free.
func (s *BookingService) CheckAvailability(ctx context.Context, hostID string, start, end time.Time) (bool, error) {
	return s.checkAvailability(ctx, hostID, start, end, "")
}

func (s *BookingService) checkAvailability(ctx context.Context, hostID string, start, end time.Time, excludeID string) (bool, error) {
	if !start.Before(end) {
		return false, nil
	}

	local, err := s.store.ListOverlapping(ctx, hostID, start, end, excludeID)
	if err != nil {
		return false, fmt.Errorf("list overlapping bookings: %w", err)
	}
	if len(local) > 0 {
		return false, nil
	}

	busy, err := s.calendar.GetFreeBusy(ctx, hostID, start, end)
	if err != nil {
		// Remote outage never blocks a booking.
		s.log.Warn("free/busy lookup failed, treating host as free",
			zap.String("host_id", hostID), zap.Error(err))
		return true, nil
	}
	for _, bi := range busy {
		if overlaps(start, end, bi.Start, bi.End) {
			return false, nil
		}
	}
	return true, nil
}

// GetAvailableSlots returns the full slot grid for one host and one date.
// Slots that conflict with a booking, a remote busy interval, or the current
// time are still returned, marked unavailable.
func (s *BookingService) GetAvailableSlots(ctx context.Context, hostID string, date time.Time, durationMins int) ([]SlotCandidate, error) {
	if durationMins <= 0 {
		durationMins = DefaultSlotMinutes
	}
	duration := time.Duration(durationMins) * time.Minute

	dayOfWeek := int(date.In(s.loc).Weekday())
	rules, err := s.store.ActiveRulesForDay(ctx, hostID, dayOfWeek)
	if err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	year, month, day := date.In(s.loc).Date()
	dayStart := time.Date(year, month, day, 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	bookings, err := s.store.ListConfirmedInRange(ctx, hostID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("list bookings for day: %w", err)
	}

	busy, err := s.calendar.GetFreeBusy(ctx, hostID, dayStart, dayEnd)
	if err != nil {
		s.log.Warn("free/busy lookup failed, slot grid ignores remote calendar",
			zap.String("host_id", hostID), zap.Error(err))
		busy = nil
	}

	now := s.now()
	var slots []SlotCandidate
	// Per-rule windows are walked independently; overlapping windows are
	// not merged.
	for _, r := range rules {
		winStart, winEnd, err := ruleWindow(r, date, s.loc)
		if err != nil {
			return nil, err
		}
		slots = append(slots, expandRule(winStart, winEnd, duration, now, bookings, busy)...)
	}
	return slots, nil
}

// CreateBookingInput carries everything a new booking needs. StartAtUTC and
// EndAtUTC are required; attendees default to empty.
type CreateBookingInput struct {
	HostID      string
	ClientID    string
	ServiceID   string
	Title       string
	Description string
	Location    string
	StartAtUTC  time.Time
	EndAtUTC    time.Time
	Attendees   []Attendee
	MeetingLink string
}

func (in *CreateBookingInput) validate() error {
	if in.HostID == "" {
		return errors.New("host_id is required")
	}
	if in.ClientID == "" {
		return errors.New("client_id is required")
	}
	if !in.StartAtUTC.Before(in.EndAtUTC) {
		return errors.New("start must be before end")
	}
	return nil
}

func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput, createdBy string) (*Booking, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	free, err := s.CheckAvailability(ctx, in.HostID, in.StartAtUTC, in.EndAtUTC)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, ErrSlotTaken
	}

	attendees := in.Attendees
	if attendees == nil {
		attendees = []Attendee{}
	}
	now := s.now().UTC()
	b := &Booking{
		ID:           uuid.New().String(),
		HostID:       in.HostID,
		ClientID:     in.ClientID,
		ServiceID:    in.ServiceID,
		Title:        in.Title,
		Description:  in.Description,
		Location:     in.Location,
		StartAtUTC:   in.StartAtUTC.UTC(),
		EndAtUTC:     in.EndAtUTC.UTC(),
		DurationMins: DurationBetween(in.StartAtUTC, in.EndAtUTC),
		Status:       StatusConfirmed,
		Attendees:    attendees,
		MeetingLink:  in.MeetingLink,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.syncCreate(ctx, b)

	s.audit(ctx, b.ID, "created", createdBy, MetadataColumn{
		"title":   b.Title,
		"host_id": b.HostID,
		"start":   b.StartAtUTC,
		"end":     b.EndAtUTC,
	})
	return b, nil
}

// syncCreate mirrors a fresh booking into the host's calendar. Failures are
// logged and swallowed; the booking stands either way.
func (s *BookingService) syncCreate(ctx context.Context, b *Booking) {
	eventID, err := s.calendar.CreateEvent(ctx, b, b.HostID)
	if err != nil {
		s.log.Warn("calendar event create failed",
			zap.String("booking_id", b.ID), zap.Error(err))
		return
	}
	if eventID == "" {
		return
	}
	b.GoogleEventID = eventID
	if err := s.store.SetGoogleEventID(ctx, b.ID, eventID); err != nil {
		s.log.Warn("persisting calendar event id failed",
			zap.String("booking_id", b.ID), zap.Error(err))
	}
}

func (s *BookingService) UpdateBooking(ctx context.Context, id string, in BookingUpdate, updatedBy string) (*Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}

	changed := MetadataColumn{}

	// A time change requires both bounds and re-validation of the new
	// window. The booking's own row is excluded from the overlap check.
	if in.StartAtUTC != nil && in.EndAtUTC != nil {
		start, end := in.StartAtUTC.UTC(), in.EndAtUTC.UTC()
		if !start.Before(end) {
			return nil, errors.New("start must be before end")
		}
		free, err := s.checkAvailability(ctx, b.HostID, start, end, b.ID)
		if err != nil {
			return nil, err
		}
		if !free {
			return nil, ErrSlotTaken
		}
		b.StartAtUTC = start
		b.EndAtUTC = end
		b.DurationMins = DurationBetween(start, end)
		changed["start"] = start
		changed["end"] = end
	}
	if in.Title != nil {
		b.Title = *in.Title
		changed["title"] = *in.Title
	}
	if in.Description != nil {
		b.Description = *in.Description
		changed["description"] = *in.Description
	}
	if in.Location != nil {
		b.Location = *in.Location
		changed["location"] = *in.Location
	}
	if in.Attendees != nil {
		b.Attendees = *in.Attendees
		changed["attendees"] = len(*in.Attendees)
	}
	if in.MeetingLink != nil {
		b.MeetingLink = *in.MeetingLink
		changed["meeting_link"] = *in.MeetingLink
	}

	b.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}

	if b.GoogleEventID != "" {
		if _, err := s.calendar.UpdateEvent(ctx, b, b.GoogleEventID, b.HostID); err != nil {
			s.log.Warn("calendar event update failed",
				zap.String("booking_id", b.ID), zap.Error(err))
		}
	}

	s.audit(ctx, b.ID, "updated", updatedBy, changed)
	return b, nil
}

// CancelBooking is terminal and unconditional at the data layer: no
// availability check, and a failed remote delete never reverts it.
func (s *BookingService) CancelBooking(ctx context.Context, id, reason, cancelledBy string) (*Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}

	b.Status = StatusCancelled
	b.CancelReason = reason
	b.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	if b.GoogleEventID != "" {
		if _, err := s.calendar.DeleteEvent(ctx, b.GoogleEventID, b.HostID); err != nil {
			s.log.Warn("calendar event delete failed",
				zap.String("booking_id", b.ID), zap.Error(err))
		}
	}

	s.audit(ctx, b.ID, "cancelled", cancelledBy, MetadataColumn{"reason": reason})
	return b, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

func (s *BookingService) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	return s.store.ListBookings(ctx, f)
}

func (s *BookingService) ListAuditEntries(ctx context.Context, bookingID string) ([]AuditEntry, error) {
	return s.store.ListAuditEntries(ctx, bookingID)
}

// audit writes an append-only trail entry. A failed write is logged but
// never fails the operation it records.
func (s *BookingService) audit(ctx context.Context, bookingID, action, actorID string, meta MetadataColumn) {
	e := &AuditEntry{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		Action:    action,
		ActorID:   actorID,
		Metadata:  meta,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertAuditEntry(ctx, e); err != nil {
		s.log.Error("audit entry write failed",
			zap.String("booking_id", bookingID), zap.String("action", action), zap.Error(err))
	}
}
