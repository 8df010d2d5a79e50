// Package repo is the GORM persistence layer for rooms, candidates, their
// transcripts and question sets, and idempotency records. Functions take the
// *gorm.DB explicitly so services can pass a transaction.
package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// ErrNotFound aliases gorm.ErrRecordNotFound so either value matches.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate is returned when an insert hits a unique constraint.
var ErrDuplicate = errors.New("duplicate")

// ErrIdentityConflict is returned when an account email already belongs to
// another user's attempt.
var ErrIdentityConflict = errors.New("identity conflict")

// ErrInvalidInput is returned for writes missing a required key.
var ErrInvalidInput = errors.New("invalid input")

// busyTimeout is how long a writer waits on the SQLite lock. Concurrent
// answer submissions from many sessions queue here.
const busyTimeout = 5 * time.Second

// OpenSQLite opens (or creates) the database at path. In-memory DSNs
// ("file:...?mode=memory", ":memory:") skip the parent directory check.
func OpenSQLite(path string, opts ...gorm.Option) (*gorm.DB, error) {
	if !inMemory(path) {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}
	if len(opts) == 0 {
		opts = []gorm.Option{&gorm.Config{}}
	}
	db, err := gorm.Open(sqlite.Open(path), opts...)
	if err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=" + strconv.Itoa(int(busyTimeout/time.Millisecond)) + ";",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, err
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates every table the service uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Room{},
		&domain.RoomMember{},
		&domain.Candidate{},
		&domain.ChatMessage{},
		&domain.QuestionAnswer{},
		&domain.QuestionSet{},
		&domain.Idempotency{},
	)
}

// mapWriteErr turns unique violations into ErrDuplicate and lock timeouts
// into a retryable persistence error. glebarez/sqlite reports both as text.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	low := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(low, "unique constraint failed"),
		strings.Contains(low, "constraint failed: unique"):
		return ErrDuplicate
	case strings.Contains(low, "database is locked"),
		strings.Contains(low, "sqlite_busy"):
		return domain.Persistence(err)
	}
	return err
}

func inMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
