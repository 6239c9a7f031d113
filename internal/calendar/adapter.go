package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"booking-service/internal/app"
)

// ErrNoConnection is returned by GetFreeBusy when the host has no usable
// calendar connection. Callers treat any GetFreeBusy error as "no busy
// intervals", so this propagates.
var ErrNoConnection = errors.New("no calendar connection for host")

// LinkStore writes a provider-generated meeting link back onto the booking.
type LinkStore interface {
	SetMeetingLink(ctx context.Context, bookingID, link string) error
}

// Adapter isolates all Google Calendar interaction. Mutating operations
// never return provider errors: they log and report a benign no-op so a
// provider outage cannot fail a local booking.
type Adapter struct {
	conf        *oauth2.Config
	connections app.ConnectionStore
	links       LinkStore
	log         *zap.Logger
	timezone    string

	// swapped in tests
	newService func(ctx context.Context, tok *oauth2.Token) (*gcal.Service, error)
}

func NewAdapter(conf *oauth2.Config, connections app.ConnectionStore, links LinkStore, log *zap.Logger, timezone string) *Adapter {
	a := &Adapter{
		conf:        conf,
		connections: connections,
		links:       links,
		log:         log,
		timezone:    timezone,
	}
	a.newService = func(ctx context.Context, tok *oauth2.Token) (*gcal.Service, error) {
		return gcal.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, tok)))
	}
	return a
}

// connection loads the host's connection, or nil when OAuth is not
// configured, none exists, or sync is switched off.
func (a *Adapter) connection(ctx context.Context, hostID string) (*app.CalendarConnection, error) {
	if a.conf == nil {
		return nil, nil
	}
	conn, err := a.connections.GetCalendarConnection(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("load calendar connection: %w", err)
	}
	if conn == nil || !conn.SyncEnabled {
		return nil, nil
	}
	return conn, nil
}

// token returns a valid access token for the connection, refreshing and
// persisting it first when expired.
func (a *Adapter) token(ctx context.Context, conn *app.CalendarConnection) (*oauth2.Token, error) {
	tok := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		Expiry:       conn.TokenExpiry,
	}
	if tok.Valid() {
		return tok, nil
	}
	fresh, err := a.conf.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh calendar token: %w", err)
	}
	conn.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		conn.RefreshToken = fresh.RefreshToken
	}
	conn.TokenExpiry = fresh.Expiry
	if err := a.connections.SaveCalendarConnection(ctx, conn); err != nil {
		a.log.Warn("persisting refreshed calendar token failed",
			zap.String("host_id", conn.HostID), zap.Error(err))
	}
	return fresh, nil
}

func (a *Adapter) service(ctx context.Context, conn *app.CalendarConnection) (*gcal.Service, error) {
	tok, err := a.token(ctx, conn)
	if err != nil {
		return nil, err
	}
	srv, err := a.newService(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, nil
}

func calendarID(conn *app.CalendarConnection) string {
	if conn.CalendarID != "" {
		return conn.CalendarID
	}
	return "primary"
}

func (a *Adapter) location(conn *app.CalendarConnection) string {
	if conn.Timezone != "" {
		return conn.Timezone
	}
	return a.timezone
}

// GetFreeBusy returns the host calendar's busy windows inside
// [timeMin, timeMax]. Unlike the mutating operations, errors propagate; the
// engine fail-opens on them.
func (a *Adapter) GetFreeBusy(ctx context.Context, hostID string, timeMin, timeMax time.Time) ([]app.BusyInterval, error) {
	conn, err := a.connection(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrNoConnection
	}
	srv, err := a.service(ctx, conn)
	if err != nil {
		return nil, err
	}

	calID := calendarID(conn)
	resp, err := srv.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calID}},
	}).Do()
	if err != nil {
		return nil, fmt.Errorf("free/busy query: %w", err)
	}

	var out []app.BusyInterval
	if cal, ok := resp.Calendars[calID]; ok {
		for _, p := range cal.Busy {
			start, err := time.Parse(time.RFC3339, p.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, p.End)
			if err != nil {
				continue
			}
			out = append(out, app.BusyInterval{Start: start, End: end})
		}
	}
	return out, nil
}

// CreateEvent mirrors a booking as a provider event and returns the provider
// event id, or "" when sync is disabled or the provider call fails.
func (a *Adapter) CreateEvent(ctx context.Context, b *app.Booking, hostID string) (string, error) {
	conn, err := a.connection(ctx, hostID)
	if err != nil || conn == nil {
		if err != nil {
			a.log.Warn("calendar connection lookup failed", zap.String("host_id", hostID), zap.Error(err))
		}
		return "", nil
	}
	srv, err := a.service(ctx, conn)
	if err != nil {
		a.log.Warn("calendar event create skipped", zap.String("booking_id", b.ID), zap.Error(err))
		return "", nil
	}

	ev := a.buildEvent(b, conn)
	call := srv.Events.Insert(calendarID(conn), ev).SendUpdates("all")
	if b.MeetingLink == app.MeetLinkPending {
		ev.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             b.ID,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
		call.ConferenceDataVersion(1)
	}

	created, err := call.Do()
	if err != nil {
		a.log.Warn("calendar event create failed", zap.String("booking_id", b.ID), zap.Error(err))
		return "", nil
	}

	if created.HangoutLink != "" {
		b.MeetingLink = created.HangoutLink
		if err := a.links.SetMeetingLink(ctx, b.ID, created.HangoutLink); err != nil {
			a.log.Warn("persisting meeting link failed", zap.String("booking_id", b.ID), zap.Error(err))
		}
	}
	return created.Id, nil
}

// UpdateEvent pushes the booking's current state over the existing provider
// event. Conferencing is not re-requested on update.
func (a *Adapter) UpdateEvent(ctx context.Context, b *app.Booking, eventID, hostID string) (bool, error) {
	conn, err := a.connection(ctx, hostID)
	if err != nil || conn == nil {
		if err != nil {
			a.log.Warn("calendar connection lookup failed", zap.String("host_id", hostID), zap.Error(err))
		}
		return false, nil
	}
	srv, err := a.service(ctx, conn)
	if err != nil {
		a.log.Warn("calendar event update skipped", zap.String("booking_id", b.ID), zap.Error(err))
		return false, nil
	}

	if _, err := srv.Events.Update(calendarID(conn), eventID, a.buildEvent(b, conn)).SendUpdates("all").Do(); err != nil {
		a.log.Warn("calendar event update failed", zap.String("booking_id", b.ID), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (a *Adapter) DeleteEvent(ctx context.Context, eventID, hostID string) (bool, error) {
	conn, err := a.connection(ctx, hostID)
	if err != nil || conn == nil {
		if err != nil {
			a.log.Warn("calendar connection lookup failed", zap.String("host_id", hostID), zap.Error(err))
		}
		return false, nil
	}
	srv, err := a.service(ctx, conn)
	if err != nil {
		a.log.Warn("calendar event delete skipped", zap.String("event_id", eventID), zap.Error(err))
		return false, nil
	}

	if err := srv.Events.Delete(calendarID(conn), eventID).SendUpdates("all").Do(); err != nil {
		a.log.Warn("calendar event delete failed", zap.String("event_id", eventID), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// ListCalendars returns the host's remote calendar list. Unlike the booking
// mirror operations this is a direct read on the caller's behalf, so errors
// propagate.
func (a *Adapter) ListCalendars(ctx context.Context, hostID string) ([]app.CalendarInfo, error) {
	conn, err := a.connection(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrNoConnection
	}
	srv, err := a.service(ctx, conn)
	if err != nil {
		return nil, err
	}

	list, err := srv.CalendarList.List().Do()
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	out := make([]app.CalendarInfo, 0, len(list.Items))
	for _, item := range list.Items {
		out = append(out, app.CalendarInfo{
			ID:         item.Id,
			Summary:    item.Summary,
			Primary:    item.Primary,
			AccessRole: item.AccessRole,
		})
	}
	return out, nil
}

// buildEvent maps a booking onto a provider event: title becomes the
// summary, times carry the connection's timezone, and attendees get the
// provider's 24h-email / 1h-popup reminder overrides.
func (a *Adapter) buildEvent(b *app.Booking, conn *app.CalendarConnection) *gcal.Event {
	tz := a.location(conn)
	ev := &gcal.Event{
		Summary:     b.Title,
		Description: b.Description,
		Location:    b.Location,
		Start: &gcal.EventDateTime{
			DateTime: b.StartAtUTC.Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &gcal.EventDateTime{
			DateTime: b.EndAtUTC.Format(time.RFC3339),
			TimeZone: tz,
		},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 60},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	for _, at := range b.Attendees {
		if at.Email == "" {
			continue
		}
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{
			Email:       at.Email,
			DisplayName: at.Name,
		})
	}
	return ev
}
