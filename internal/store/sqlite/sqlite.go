package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Tests pass Migrate to get a ready schema on ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded schema migrations to db.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	// m.Close is not called: it would close db through the driver.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Migrate applies pending schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	return Migrate(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, query, id, email, passwordHash, time.Now().UTC()); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE email = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== RoomStore implementation ====

// CreateRoom creates a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, roomID, passwordHash string) (*store.Room, error) {
	query := `
		INSERT INTO rooms (room_id, password_hash, created_at, last_active)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, roomID, passwordHash, now, now); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert room: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}

	return s.FindRoom(ctx, roomID)
}

// FindRoom retrieves a room with its message history.
func (s *SQLiteStore) FindRoom(ctx context.Context, roomID string) (*store.Room, error) {
	query := `
		SELECT room_id, password_hash, created_at, last_active
		FROM rooms
		WHERE room_id = ?
	`
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(
		&room.RoomID,
		&room.PasswordHash,
		&room.CreatedAt,
		&room.LastActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %q: %w", roomID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	history, err := s.listMessages(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.Messages = history[roomID]

	return &room, nil
}

// ListRooms lists every room with its message history.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]*store.Room, error) {
	query := `
		SELECT room_id, password_hash, created_at, last_active
		FROM rooms
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		var room store.Room
		if err := rows.Scan(&room.RoomID, &room.PasswordHash, &room.CreatedAt, &room.LastActive); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, &room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}
	// Release the single connection before the history query.
	rows.Close()

	history, err := s.listMessages(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		room.Messages = history[room.RoomID]
	}

	return rooms, nil
}

// TouchRoomActivity sets the room's last_active timestamp.
func (s *SQLiteStore) TouchRoomActivity(ctx context.Context, roomID string, at time.Time) error {
	query := `UPDATE rooms SET last_active = ? WHERE room_id = ?`
	result, err := s.db.ExecContext(ctx, query, at.UTC(), roomID)
	if err != nil {
		return fmt.Errorf("update room activity: %w", err)
	}
	return requireRow(result, roomID)
}

// ClearMessages deletes the room's message history.
func (s *SQLiteStore) ClearMessages(ctx context.Context, roomID string) error {
	if _, err := s.FindRoom(ctx, roomID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func requireRow(result sql.Result, roomID string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("room %q: %w", roomID, store.ErrNotFound)
	}
	return nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message at the end of the room's history.
func (s *SQLiteStore) AppendMessage(ctx context.Context, roomID string, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	// INSERT ... SELECT keeps the room existence check and the insert in one statement.
	query := `
		INSERT INTO messages (id, room_id, kind, text, data, sender, sent_at)
		SELECT ?, room_id, ?, ?, ?, ?, ?
		FROM rooms
		WHERE room_id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.ID, string(msg.Kind), msg.Text, msg.Data, msg.Sender, msg.Timestamp.UTC(), roomID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return requireRow(result, roomID)
}

// listMessages returns history grouped by room. An empty roomID loads every room.
func (s *SQLiteStore) listMessages(ctx context.Context, roomID string) (map[string][]store.Message, error) {
	query := `
		SELECT room_id, id, kind, text, data, sender, sent_at
		FROM messages
		WHERE (? = '' OR room_id = ?)
		ORDER BY room_id, seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, roomID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]store.Message)
	for rows.Next() {
		var (
			room string
			msg  store.Message
			kind string
		)
		if err := rows.Scan(&room, &msg.ID, &kind, &msg.Text, &msg.Data, &msg.Sender, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Kind = store.MessageKind(kind)
		out[room] = append(out[room], msg)
	}

	return out, rows.Err()
}

// ==== ActivityStore implementation ====

// AppendActivity appends a join or exit record.
func (s *SQLiteStore) AppendActivity(ctx context.Context, rec *store.Activity) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.JoinTime.IsZero() {
		rec.JoinTime = time.Now()
	}

	var exitTime sql.NullTime
	if rec.ExitTime != nil {
		exitTime = sql.NullTime{Time: rec.ExitTime.UTC(), Valid: true}
	}

	query := `
		INSERT INTO user_activity (
			id, user_email, ip_address, city, country, latitude, longitude,
			room_id, join_time, exit_time, action
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserEmail,
		rec.IPAddress,
		rec.Location.City,
		rec.Location.Country,
		rec.Location.Latitude,
		rec.Location.Longitude,
		rec.RoomID,
		rec.JoinTime.UTC(),
		exitTime,
		string(rec.Action),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity returns the activity log, newest join time first.
func (s *SQLiteStore) ListActivity(ctx context.Context) ([]*store.Activity, error) {
	query := `
		SELECT id, user_email, ip_address, city, country, latitude, longitude,
		       room_id, join_time, exit_time, action
		FROM user_activity
		ORDER BY join_time DESC, rowid DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var records []*store.Activity
	for rows.Next() {
		var (
			rec      store.Activity
			exitTime sql.NullTime
			action   string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.UserEmail,
			&rec.IPAddress,
			&rec.Location.City,
			&rec.Location.Country,
			&rec.Location.Latitude,
			&rec.Location.Longitude,
			&rec.RoomID,
			&rec.JoinTime,
			&exitTime,
			&action,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if exitTime.Valid {
			t := exitTime.Time
			rec.ExitTime = &t
		}
		rec.Action = store.ActivityAction(action)
		records = append(records, &rec)
	}

	return records, rows.Err()
}
