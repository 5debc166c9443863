package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"DriveGuard/go-backend/internal/models"
	"DriveGuard/go-backend/internal/rewards"

	"go.uber.org/zap"
)

type RewardsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRewardsRepository(db *sql.DB, logger *zap.Logger) *RewardsRepository {
	return &RewardsRepository{db: db, logger: logger}
}

// AddPoints credits the driver and returns the new balance.
func (r *RewardsRepository) AddPoints(ctx context.Context, userID int64, points int) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO driver_points (user_id, points)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET points = driver_points.points + EXCLUDED.points, updated_at = now()
		RETURNING points`, userID, points,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("add points for user %d: %w", userID, err)
	}
	return total, nil
}

// Points is zero for drivers that never earned any.
func (r *RewardsRepository) Points(ctx context.Context, userID int64) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT points FROM driver_points WHERE user_id = $1`, userID).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("points for user %d: %w", userID, err)
	}
	return total, nil
}

// Catalogue lists every badge.
func (r *RewardsRepository) Catalogue(ctx context.Context) ([]models.Badge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, icon, criteria_type, criteria_value, points_reward
		FROM badges
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	badges := []models.Badge{}
	for rows.Next() {
		var b models.Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.CriteriaType, &b.CriteriaValue, &b.PointsReward); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// Badges lists the badges the driver has earned, newest first.
func (r *RewardsRepository) Badges(ctx context.Context, userID int64) ([]models.Badge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.id, b.name, b.description, b.icon, b.criteria_type, b.criteria_value, b.points_reward, db.earned_at
		FROM driver_badges db
		JOIN badges b ON b.id = db.badge_id
		WHERE db.user_id = $1
		ORDER BY db.earned_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list badges for user %d: %w", userID, err)
	}
	defer rows.Close()

	badges := []models.Badge{}
	for rows.Next() {
		var b models.Badge
		var earned sql.NullTime
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.CriteriaType, &b.CriteriaValue, &b.PointsReward, &earned); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		if earned.Valid {
			b.EarnedAt = &earned.Time
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

func (r *RewardsRepository) OwnedBadgeIDs(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT badge_id FROM driver_badges WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("owned badges for user %d: %w", userID, err)
	}
	defer rows.Close()

	owned := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned[id] = true
	}
	return owned, rows.Err()
}

// AwardBadge reports false when the driver already owned the badge.
func (r *RewardsRepository) AwardBadge(ctx context.Context, userID, badgeID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO driver_badges (user_id, badge_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, badge_id) DO NOTHING`, userID, badgeID)
	if err != nil {
		return false, fmt.Errorf("award badge %d to user %d: %w", badgeID, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Leaderboard ranks drivers by points. Ties share a rank.
func (r *RewardsRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT RANK() OVER (ORDER BY points DESC), user_id, points
		FROM driver_points
		ORDER BY points DESC, user_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.UserID, &e.Points); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type streakQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func loadStreak(ctx context.Context, q streakQuerier, query string, userID int64) (models.Streak, error) {
	var s models.Streak
	var last sql.NullTime
	err := q.QueryRowContext(ctx, query, userID).Scan(&s.Current, &s.Longest, &last)
	if err == sql.ErrNoRows {
		return models.Streak{}, nil
	}
	if err != nil {
		return s, err
	}
	if last.Valid {
		s.LastTripDate = &last.Time
	}
	return s, nil
}

const streakQuery = `SELECT current_streak, longest_streak, last_trip_date FROM driver_streaks WHERE user_id = $1`

// Streak is the stored streak as of the last completed trip. A driver
// without trips has an empty streak.
func (r *RewardsRepository) Streak(ctx context.Context, userID int64) (models.Streak, error) {
	s, err := loadStreak(ctx, r.db, streakQuery, userID)
	if err != nil {
		return s, fmt.Errorf("streak for user %d: %w", userID, err)
	}
	return s, nil
}

// RecordTripDay counts a trip completed at the given time into the driver's
// streak and returns the updated streak.
func (r *RewardsRepository) RecordTripDay(ctx context.Context, userID int64, at time.Time) (models.Streak, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Streak{}, fmt.Errorf("begin streak update: %w", err)
	}
	defer tx.Rollback()

	prev, err := loadStreak(ctx, tx, streakQuery+` FOR UPDATE`, userID)
	if err != nil {
		return prev, fmt.Errorf("streak for user %d: %w", userID, err)
	}
	next := rewards.NextStreak(prev, at)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO driver_streaks (user_id, current_streak, longest_streak, last_trip_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_trip_date = EXCLUDED.last_trip_date,
			updated_at = now()`,
		userID, next.Current, next.Longest, *next.LastTripDate)
	if err != nil {
		return prev, fmt.Errorf("save streak for user %d: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return prev, fmt.Errorf("commit streak for user %d: %w", userID, err)
	}
	if r.logger != nil && next.Current != prev.Current {
		r.logger.Debug("streak updated", zap.Int64("user_id", userID), zap.Int("current", next.Current), zap.Int("longest", next.Longest))
	}
	return next, nil
}
