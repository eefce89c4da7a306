package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"agrismart-monitor/internal/models"
)

// PostgresUserRepository reads notification recipients and parcel owners.
type PostgresUserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresUserRepository(db *sql.DB, logger *zap.Logger) *PostgresUserRepository {
	return &PostgresUserRepository{db: db, logger: logger}
}

var _ UserRepository = (*PostgresUserRepository)(nil)

func (r *PostgresUserRepository) GetRecipient(ctx context.Context, userID string) (*models.Recipient, error) {
	var (
		rec    models.Recipient
		email  sql.NullString
		phone  sql.NullString
		chatID sql.NullInt64
		prefs  []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id::text, first_name, email, phone, telegram_chat_id, notification_preferences
		FROM users
		WHERE id = $1
	`, userID).Scan(&rec.UserID, &rec.FirstName, &email, &phone, &chatID, &prefs)
	if err != nil {
		return nil, lookupErr("get recipient", "user", userID, err)
	}
	rec.Email = email.String
	rec.Phone = phone.String
	rec.TelegramChatID = chatID.Int64

	if len(prefs) > 0 && string(prefs) != "null" {
		// Keys missing from the stored document keep their default (on).
		p := models.DefaultPreference()
		if err := json.Unmarshal(prefs, &p); err != nil {
			r.logger.Warn("Invalid notification preferences, using defaults",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else {
			rec.Preferences = &p
		}
	}
	return &rec, nil
}

func (r *PostgresUserRepository) GetParcelOwner(ctx context.Context, parcelID string) (string, error) {
	var owner string
	err := r.db.QueryRowContext(ctx, `SELECT owner_id::text FROM parcels WHERE id = $1`, parcelID).Scan(&owner)
	if err != nil {
		return "", lookupErr("get parcel owner", "parcel", parcelID, err)
	}
	return owner, nil
}
