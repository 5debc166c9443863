package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"DriveGuard/go-backend/internal/models"

	"go.uber.org/zap"
)

var ErrInvalidContact = errors.New("contact needs a name and an email or phone")

type ContactRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewContactRepository(db *sql.DB, logger *zap.Logger) *ContactRepository {
	return &ContactRepository{db: db, logger: logger}
}

func (r *ContactRepository) Create(ctx context.Context, userID int64, req models.CreateContactRequest) (*models.EmergencyContact, error) {
	c := models.EmergencyContact{
		UserID:           userID,
		Name:             strings.TrimSpace(req.Name),
		Phone:            strings.TrimSpace(req.Phone),
		Email:            strings.TrimSpace(req.Email),
		NotificationType: req.NotificationType,
	}
	if c.Name == "" || (c.Phone == "" && c.Email == "") {
		return nil, ErrInvalidContact
	}
	if c.NotificationType == "" {
		if c.Email != "" {
			c.NotificationType = "email"
		} else {
			c.NotificationType = "sms"
		}
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO emergency_contacts (user_id, name, phone, email, notification_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		c.UserID, c.Name, c.Phone, c.Email, c.NotificationType,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return &c, nil
}

func (r *ContactRepository) ListByUser(ctx context.Context, userID int64) ([]models.EmergencyContact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, phone, email, notification_type, created_at
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.EmergencyContact{}
	for rows.Next() {
		var c models.EmergencyContact
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Phone, &c.Email, &c.NotificationType, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) Delete(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM emergency_contacts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete contact %d: %w", id, err)
	}
	return requireAffected(res)
}
