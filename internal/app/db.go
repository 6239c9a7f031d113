package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store and ConnectionStore on a pgx pool.
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) InsertAvailabilityRule(ctx context.Context, r *AvailabilityRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	q := `INSERT INTO availability_rules
          (host_id, day_of_week, start_time, end_time, active, created_at, updated_at)
          VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`
	row := s.DB.QueryRow(ctx, q,
		r.HostID, r.DayOfWeek, r.StartTime, r.EndTime, r.Active, now, now)
	if err := row.Scan(&r.ID); err != nil {
		return err
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (s *PostgresStore) UpdateAvailabilityRule(ctx context.Context, r *AvailabilityRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	q := `UPDATE availability_rules
          SET day_of_week=$1, start_time=$2, end_time=$3, active=$4, updated_at=$5
          WHERE id=$6 AND host_id=$7
          RETURNING id`
	var id int
	err := s.DB.QueryRow(ctx, q,
		r.DayOfWeek, r.StartTime, r.EndTime, r.Active, now, r.ID, r.HostID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRuleNotFound
	}
	if err != nil {
		return err
	}
	r.UpdatedAt = now
	return nil
}

func (s *PostgresStore) ListAvailabilityRules(ctx context.Context, hostID string) ([]AvailabilityRule, error) {
	q := `SELECT id,host_id,day_of_week,start_time,end_time,active,created_at,updated_at
	      FROM availability_rules WHERE host_id=$1 ORDER BY day_of_week, start_time, id`
	rows, err := s.DB.Query(ctx, q, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (s *PostgresStore) ActiveRulesForDay(ctx context.Context, hostID string, dayOfWeek int) ([]AvailabilityRule, error) {
	q := `SELECT id,host_id,day_of_week,start_time,end_time,active,created_at,updated_at
	      FROM availability_rules
	      WHERE host_id=$1 AND day_of_week=$2 AND active
	      ORDER BY start_time, id`
	rows, err := s.DB.Query(ctx, q, hostID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRules(rows pgx.Rows) ([]AvailabilityRule, error) {
	var out []AvailabilityRule
	for rows.Next() {
		var r AvailabilityRule
		if err := rows.Scan(&r.ID, &r.HostID, &r.DayOfWeek, &r.StartTime, &r.EndTime,
			&r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const bookingColumns = `id,host_id,client_id,service_id,title,description,location,
	start_at_utc,end_at_utc,duration_minutes,status,attendees,
	google_event_id,meeting_link,cancellation_reason,created_by,created_at,updated_at`

// overlapClause is the three-way overlap test against an [$2, $3) window:
// covers an existing booking straddling the start, straddling the end, or
// contained entirely inside the window.
const overlapClause = `(
	    (start_at_utc <= $2 AND end_at_utc > $2) OR
	    (start_at_utc < $3 AND end_at_utc >= $3) OR
	    (start_at_utc >= $2 AND end_at_utc <= $3)
	)`

func (s *PostgresStore) ListOverlapping(ctx context.Context, hostID string, start, end time.Time, excludeID string) ([]Booking, error) {
	q := `SELECT ` + bookingColumns + `
	      FROM bookings
	      WHERE host_id=$1 AND status != 'cancelled'
	      AND ($4 = '' OR id != $4)
	      AND ` + overlapClause + `
	      ORDER BY start_at_utc`
	rows, err := s.DB.Query(ctx, q, hostID, start.UTC(), end.UTC(), excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *PostgresStore) ListConfirmedInRange(ctx context.Context, hostID string, from, to time.Time) ([]Booking, error) {
	q := `SELECT ` + bookingColumns + `
	      FROM bookings
	      WHERE host_id=$1 AND status='confirmed'
	      AND start_at_utc >= $2 AND start_at_utc < $3
	      ORDER BY start_at_utc`
	rows, err := s.DB.Query(ctx, q, hostID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

// isSlotConflict reports whether err is the bookings_no_overlap exclusion
// constraint rejecting a write. The constraint is what makes concurrent
// writes into the same window safe: a pre-insert SELECT cannot see another
// transaction's uncommitted insert, the index arbiter can.
func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	// 23P01 exclusion_violation
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func (s *PostgresStore) CreateBooking(ctx context.Context, b *Booking) error {
	q := `INSERT INTO bookings (` + bookingColumns + `)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err := s.DB.Exec(ctx, q,
		b.ID, b.HostID, b.ClientID, b.ServiceID, b.Title, b.Description, b.Location,
		b.StartAtUTC, b.EndAtUTC, b.DurationMins, b.Status, AttendeesColumn(b.Attendees),
		b.GoogleEventID, b.MeetingLink, b.CancelReason, b.CreatedBy, b.CreatedAt, b.UpdatedAt,
	)
	if isSlotConflict(err) {
		return ErrSlotTaken
	}
	return err
}

func (s *PostgresStore) GetBooking(ctx context.Context, id string) (*Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id=$1`
	b, err := scanBooking(s.DB.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) UpdateBooking(ctx context.Context, b *Booking) error {
	q := `UPDATE bookings
	      SET title=$1, description=$2, location=$3, start_at_utc=$4, end_at_utc=$5,
	          duration_minutes=$6, status=$7, attendees=$8, meeting_link=$9,
	          cancellation_reason=$10, updated_at=$11
	      WHERE id=$12`
	tag, err := s.DB.Exec(ctx, q,
		b.Title, b.Description, b.Location, b.StartAtUTC, b.EndAtUTC,
		b.DurationMins, b.Status, AttendeesColumn(b.Attendees), b.MeetingLink,
		b.CancelReason, b.UpdatedAt, b.ID)
	if isSlotConflict(err) {
		return ErrSlotTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (s *PostgresStore) SetGoogleEventID(ctx context.Context, bookingID, eventID string) error {
	_, err := s.DB.Exec(ctx, `UPDATE bookings SET google_event_id=$1 WHERE id=$2`, eventID, bookingID)
	return err
}

func (s *PostgresStore) SetMeetingLink(ctx context.Context, bookingID, link string) error {
	_, err := s.DB.Exec(ctx, `UPDATE bookings SET meeting_link=$1 WHERE id=$2`, link, bookingID)
	return err
}

func (s *PostgresStore) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.HostID != "" {
		q += ` AND host_id=` + arg(f.HostID)
	}
	if f.ClientID != "" {
		q += ` AND client_id=` + arg(f.ClientID)
	}
	if f.Status != "" {
		q += ` AND status=` + arg(f.Status)
	}
	if !f.From.IsZero() {
		q += ` AND start_at_utc >= ` + arg(f.From.UTC())
	}
	if !f.To.IsZero() {
		q += ` AND start_at_utc < ` + arg(f.To.UTC())
	}
	q += ` ORDER BY start_at_utc`

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var attendees AttendeesColumn
	if err := row.Scan(&b.ID, &b.HostID, &b.ClientID, &b.ServiceID, &b.Title,
		&b.Description, &b.Location, &b.StartAtUTC, &b.EndAtUTC, &b.DurationMins,
		&b.Status, &attendees, &b.GoogleEventID, &b.MeetingLink, &b.CancelReason,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Attendees = attendees
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertAuditEntry(ctx context.Context, e *AuditEntry) error {
	q := `INSERT INTO audit_entries (id, booking_id, action, actor_id, metadata, created_at)
	      VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := s.DB.Exec(ctx, q, e.ID, e.BookingID, e.Action, e.ActorID, e.Metadata, e.CreatedAt)
	return err
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context, bookingID string) ([]AuditEntry, error) {
	q := `SELECT id, booking_id, action, actor_id, metadata, created_at
	      FROM audit_entries WHERE booking_id=$1 ORDER BY created_at`
	rows, err := s.DB.Query(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Action, &e.ActorID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCalendarConnection(ctx context.Context, hostID string) (*CalendarConnection, error) {
	q := `SELECT host_id, access_token, refresh_token, token_expiry, calendar_id,
	             timezone, sync_enabled, created_at, updated_at
	      FROM calendar_connections WHERE host_id=$1`
	var c CalendarConnection
	err := s.DB.QueryRow(ctx, q, hostID).Scan(&c.HostID, &c.AccessToken, &c.RefreshToken,
		&c.TokenExpiry, &c.CalendarID, &c.Timezone, &c.SyncEnabled, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) SaveCalendarConnection(ctx context.Context, conn *CalendarConnection) error {
	now := time.Now().UTC()
	q := `INSERT INTO calendar_connections
	      (host_id, access_token, refresh_token, token_expiry, calendar_id, timezone, sync_enabled, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	      ON CONFLICT (host_id) DO UPDATE SET
	          access_token=EXCLUDED.access_token,
	          refresh_token=EXCLUDED.refresh_token,
	          token_expiry=EXCLUDED.token_expiry,
	          calendar_id=EXCLUDED.calendar_id,
	          timezone=EXCLUDED.timezone,
	          sync_enabled=EXCLUDED.sync_enabled,
	          updated_at=EXCLUDED.updated_at`
	_, err := s.DB.Exec(ctx, q, conn.HostID, conn.AccessToken, conn.RefreshToken,
		conn.TokenExpiry, conn.CalendarID, conn.Timezone, conn.SyncEnabled, now)
	return err
}
