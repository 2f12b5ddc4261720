package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"geminichat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.Session) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(sessionID string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) GetByIDAndUserID(sessionID, userID string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) ListByUserID(userID string) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// UpdateTitle applies the title and resolves the session's last
// activity inside one transaction, so the summary the caller returns
// can never mix the new title with a stale timestamp.
func (r *SessionRepository) UpdateTitle(sessionID, title string) (*model.Session, time.Time, error) {
	var updated model.Session
	var lastActivity time.Time

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Session{}).Where("id = ?", sessionID).Update("title", title).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", sessionID).First(&updated).Error; err != nil {
			return err
		}

		var latest model.Message
		err := tx.Where("session_id = ?", sessionID).Order("created_at DESC").First(&latest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			lastActivity = updated.CreatedAt
			return nil
		}
		if err != nil {
			return err
		}
		lastActivity = latest.CreatedAt
		return nil
	})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("update session title failed: %w", err)
	}
	return &updated, lastActivity, nil
}
