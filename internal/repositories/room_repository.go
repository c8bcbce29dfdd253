package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"roomchat-service/internal/models"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrRoomCodeExhausted = errors.New("could not allocate a unique room code")
)

const roomCodeAttempts = 5

// RoomRepository abstracts room lifecycle and membership persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, creatorID int, name, password string, isPrivate bool) (models.Room, error)
	JoinRoom(ctx context.Context, userID int, code, password string) (models.Room, error)
	LeaveRoom(ctx context.Context, userID int, code string) error
	GetRoomByCode(ctx context.Context, code string) (models.Room, error)
	IsParticipant(ctx context.Context, roomID, userID int) (bool, error)
	Participants(ctx context.Context, roomID int) ([]models.User, error)
	RoomInfo(ctx context.Context, code string) (models.RoomInfo, error)
	ListJoined(ctx context.Context, userID int) ([]models.RoomSummary, error)
	ListPublicUnjoined(ctx context.Context, userID, limit int) ([]models.RoomSummary, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func randomRoomCode() string {
	return fmt.Sprintf("%06d", 100000+rand.Intn(900000))
}

// CreateRoom allocates a unique room code with bounded retry and inserts the
// creator as the sole initial participant. Inputs are validated by the caller;
// the password is hashed here and never stored in plaintext.
func (r *RoomRepo) CreateRoom(ctx context.Context, creatorID int, name, password string, isPrivate bool) (models.Room, error) {
	passwordHash := ""
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return models.Room{}, fmt.Errorf("hash password: %w", err)
		}
		passwordHash = string(hashed)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.Room
	inserted := false
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		code := randomRoomCode()
		// ON CONFLICT keeps the allocation race-free: a colliding code simply
		// returns no row and the loop retries with a fresh one.
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO rooms (code, name, password_hash, is_private, created_by)
             VALUES ($1, $2, $3, $4, $5)
             ON CONFLICT (code) DO NOTHING
             RETURNING id, code, name, password_hash, is_private, is_active, created_by, created_at`,
			code, name, passwordHash, isPrivate, creatorID).
			StructScan(&room)
		if err == nil {
			inserted = true
			break
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return models.Room{}, err
		}
	}
	if !inserted {
		err = ErrRoomCodeExhausted
		return models.Room{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)`, room.ID, creatorID); err != nil {
		return models.Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// JoinRoom verifies the password for protected rooms and appends the user to
// the participant set. Joining twice is an idempotent no-op; concurrent joins
// are serialized by the participant primary key.
func (r *RoomRepo) JoinRoom(ctx context.Context, userID int, code, password string) (models.Room, error) {
	room, err := r.GetRoomByCode(ctx, code)
	if err != nil {
		return models.Room{}, err
	}

	if room.Protected() {
		if err := bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)); err != nil {
			return models.Room{}, ErrInvalidPassword
		}
	}

	if _, err := r.db.ExecContext(ctx, `INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, room.ID, userID); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// LeaveRoom removes the user from the participant set; no-op when absent.
func (r *RoomRepo) LeaveRoom(ctx context.Context, userID int, code string) error {
	room, err := r.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM room_participants WHERE room_id=$1 AND user_id=$2`, room.ID, userID)
	return err
}

// GetRoomByCode fetches an active room by its public code.
func (r *RoomRepo) GetRoomByCode(ctx context.Context, code string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, code, name, password_hash, is_private, is_active, created_by, created_at FROM rooms WHERE code=$1 AND is_active=TRUE`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// IsParticipant checks membership.
func (r *RoomRepo) IsParticipant(ctx context.Context, roomID, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_participants WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// Participants returns the room members in join order.
func (r *RoomRepo) Participants(ctx context.Context, roomID int) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT u.id, u.email, u.name, COALESCE(u.username, '') AS username, u.profile_completed
         FROM room_participants rp
         INNER JOIN users u ON u.id = rp.user_id
         WHERE rp.room_id=$1
         ORDER BY rp.joined_at ASC, u.id ASC`, roomID)
	return users, err
}

// RoomInfo returns the public projection of a room.
func (r *RoomRepo) RoomInfo(ctx context.Context, code string) (models.RoomInfo, error) {
	var info models.RoomInfo
	err := r.db.QueryRowxContext(ctx,
		`SELECT r.code, r.name, r.is_private, r.created_at,
                (SELECT COUNT(*) FROM room_participants rp WHERE rp.room_id = r.id) AS participant_count
         FROM rooms r WHERE r.code=$1 AND r.is_active=TRUE`, code).
		Scan(&info.Code, &info.Name, &info.IsPrivate, &info.CreatedAt, &info.ParticipantCount)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoomInfo{}, ErrRoomNotFound
	}
	return info, err
}

// ListJoined returns rooms the user participates in, newest first.
func (r *RoomRepo) ListJoined(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	var rooms []models.RoomSummary
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT r.code, r.name, r.is_private, r.password_hash <> '' AS protected, r.created_at,
                (SELECT COUNT(*) FROM room_participants p WHERE p.room_id = r.id) AS participant_count
         FROM rooms r
         INNER JOIN room_participants rp ON rp.room_id = r.id
         WHERE rp.user_id=$1 AND r.is_active=TRUE
         ORDER BY r.created_at DESC`, userID)
	return rooms, err
}

// ListPublicUnjoined returns up to limit public rooms the user has not
// joined, newest first.
func (r *RoomRepo) ListPublicUnjoined(ctx context.Context, userID, limit int) ([]models.RoomSummary, error) {
	var rooms []models.RoomSummary
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT r.code, r.name, r.is_private, r.password_hash <> '' AS protected, r.created_at,
                (SELECT COUNT(*) FROM room_participants p WHERE p.room_id = r.id) AS participant_count
         FROM rooms r
         WHERE r.is_private=FALSE AND r.is_active=TRUE
           AND NOT EXISTS (SELECT 1 FROM room_participants rp WHERE rp.room_id = r.id AND rp.user_id=$1)
         ORDER BY r.created_at DESC
         LIMIT $2`, userID, limit)
	return rooms, err
}
