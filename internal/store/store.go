// Package store keeps the set of watched rooms in SQLite so that a restart
// picks up where the admin API left off.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Kostaaa1/bililive/pkg/bilibili/event"
)

const timeFormat = "2006-01-02T15:04:05.000000000Z"

var ErrNotFound = errors.New("room not stored")

type Config struct {
	Path string `mapstructure:"path"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Record is a stored room and the time it was first added.
type Record struct {
	event.Room
	AddedAt time.Time `json:"added_at"`
}

func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", url.PathEscape(path))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(4)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS rooms (
		uid         INTEGER PRIMARY KEY,
		name        TEXT NOT NULL,
		room_number INTEGER NOT NULL,
		avatar      TEXT NOT NULL DEFAULT '',
		added_at    TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_rooms_room_number ON rooms(room_number);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create rooms table: %w", err)
	}
	return nil
}

// Save inserts room or refreshes its name, number and avatar. The original
// added_at is kept.
func (s *Store) Save(ctx context.Context, room event.Room) error {
	const q = `
	INSERT INTO rooms (uid, name, room_number, avatar, added_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(uid) DO UPDATE SET
		name = excluded.name,
		room_number = excluded.room_number,
		avatar = excluded.avatar`

	_, err := s.db.ExecContext(ctx, q,
		int64(room.UID), room.Name, int64(room.RoomNumber), room.Avatar,
		s.now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("save room %d: %w", room.UID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, uid uint64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE uid = ?`, int64(uid))
	if err != nil {
		return fmt.Errorf("delete room %d: %w", uid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete room %d: %w", uid, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns stored rooms in the order they were added.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, name, room_number, avatar, added_at FROM rooms ORDER BY added_at, uid`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			uid, num   int64
			addedAtRaw string
		)
		if err := rows.Scan(&uid, &rec.Name, &num, &rec.Avatar, &addedAtRaw); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rec.UID, rec.RoomNumber = uint64(uid), uint64(num)
		if rec.AddedAt, err = time.Parse(timeFormat, addedAtRaw); err != nil {
			return nil, fmt.Errorf("parse added_at %q: %w", addedAtRaw, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
