package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timejump-backend/internal/config"
	"github.com/timejump-backend/internal/domain"
)

// Repository provides PostgreSQL-based data access for player records,
// gameplay history and multiplayer session results.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id UUID PRIMARY KEY,
			name VARCHAR(20) NOT NULL,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			token VARCHAR(64),
			avatar VARCHAR(64),
			best_score BIGINT NOT NULL DEFAULT 0,
			crystals BIGINT NOT NULL DEFAULT 0,
			achievements JSONB NOT NULL DEFAULT '[]',
			daily_reward_day INT NOT NULL DEFAULT 1,
			last_daily_reward TIMESTAMPTZ,
			ad_views BIGINT NOT NULL DEFAULT 0,
			time_freeze_uses BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS game_sessions (
			id BIGSERIAL PRIMARY KEY,
			player_id UUID NOT NULL REFERENCES players(id) ON DELETE CASCADE,
			score BIGINT NOT NULL,
			crystals BIGINT NOT NULL,
			time_spent_ms BIGINT NOT NULL,
			played_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS multiplayer_sessions (
			id BIGSERIAL PRIMARY KEY,
			room_id VARCHAR(16) NOT NULL,
			player_id UUID NOT NULL,
			score BIGINT NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_players_best_score ON players(best_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_game_sessions_player ON game_sessions(player_id, played_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_multiplayer_sessions_room ON multiplayer_sessions(room_id)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const playerColumns = `id, name, email, avatar, best_score, crystals, achievements,
	daily_reward_day, last_daily_reward, ad_views, time_freeze_uses, created_at, last_login`

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	var achievements []byte
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Avatar,
		&p.BestScore,
		&p.Crystals,
		&achievements,
		&p.DailyRewardDay,
		&p.LastDailyReward,
		&p.AdViews,
		&p.TimeFreezeUses,
		&p.CreatedAt,
		&p.LastLogin,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("scanning player: %w", err)
	}
	if err := json.Unmarshal(achievements, &p.Achievements); err != nil {
		return nil, fmt.Errorf("unmarshaling achievements: %w", err)
	}
	return &p, nil
}

// CreatePlayer inserts a new player record with zeroed progression state.
func (r *Repository) CreatePlayer(ctx context.Context, p *domain.Player, passwordHash, token string) error {
	achievements, err := json.Marshal(p.Achievements)
	if err != nil {
		return fmt.Errorf("marshaling achievements: %w", err)
	}
	if p.Achievements == nil {
		achievements = []byte("[]")
	}

	query := `
		INSERT INTO players (id, name, email, password_hash, token, avatar,
			best_score, crystals, achievements, daily_reward_day, last_daily_reward,
			ad_views, time_freeze_uses, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`
	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Email,
		passwordHash,
		token,
		p.Avatar,
		p.BestScore,
		p.Crystals,
		achievements,
		p.DailyRewardDay,
		p.LastDailyReward,
		p.AdViews,
		p.TimeFreezeUses,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating player: %w", err)
	}
	return nil
}

// EmailExists checks whether an email is already registered.
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM players WHERE email = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// GetPlayer retrieves a player record by ID
func (r *Repository) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`
	return scanPlayer(r.pool.QueryRow(ctx, query, playerID))
}

// GetPlayerByEmail retrieves a player record and its password hash by email.
func (r *Repository) GetPlayerByEmail(ctx context.Context, email string) (*domain.Player, string, error) {
	query := `SELECT ` + playerColumns + `, password_hash FROM players WHERE email = $1`
	var p domain.Player
	var achievements []byte
	var hash string
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Avatar,
		&p.BestScore,
		&p.Crystals,
		&achievements,
		&p.DailyRewardDay,
		&p.LastDailyReward,
		&p.AdViews,
		&p.TimeFreezeUses,
		&p.CreatedAt,
		&p.LastLogin,
		&hash,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", domain.ErrPlayerNotFound
		}
		return nil, "", fmt.Errorf("getting player by email: %w", err)
	}
	if err := json.Unmarshal(achievements, &p.Achievements); err != nil {
		return nil, "", fmt.Errorf("unmarshaling achievements: %w", err)
	}
	return &p, hash, nil
}

// UpdateLogin refreshes the login timestamp and bearer token.
func (r *Repository) UpdateLogin(ctx context.Context, playerID, token string, at time.Time) error {
	query := `UPDATE players SET last_login = $2, token = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, playerID, at, token)
	if err != nil {
		return fmt.Errorf("updating login: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// UpdateProfile updates the mutable display attributes only.
func (r *Repository) UpdateProfile(ctx context.Context, playerID, name, avatar string) (*domain.Player, error) {
	query := `
		UPDATE players
		SET name = COALESCE(NULLIF($2, ''), name),
			avatar = COALESCE(NULLIF($3, ''), avatar)
		WHERE id = $1
		RETURNING ` + playerColumns
	return scanPlayer(r.pool.QueryRow(ctx, query, playerID, name, avatar))
}

// SaveProgress writes the full progression state of a player record in a
// single statement, so a ledger apply, reward payout and achievement grants
// land as one all-or-nothing update.
func (r *Repository) SaveProgress(ctx context.Context, p *domain.Player) error {
	return r.saveProgress(ctx, r.pool, p)
}

// execer is the subset of pgxpool.Pool and pgx.Tx shared by the progress
// write paths.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (r *Repository) saveProgress(ctx context.Context, q execer, p *domain.Player) error {
	achievements, err := json.Marshal(p.Achievements)
	if err != nil {
		return fmt.Errorf("marshaling achievements: %w", err)
	}

	query := `
		UPDATE players
		SET best_score = $2,
			crystals = $3,
			achievements = $4,
			daily_reward_day = $5,
			last_daily_reward = $6,
			ad_views = $7,
			time_freeze_uses = $8
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query,
		p.ID,
		p.BestScore,
		p.Crystals,
		achievements,
		p.DailyRewardDay,
		p.LastDailyReward,
		p.AdViews,
		p.TimeFreezeUses,
	)
	if err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// SaveProgressWithSession persists a progression update together with its
// gameplay history entry in one transaction.
func (r *Repository) SaveProgressWithSession(ctx context.Context, p *domain.Player, s domain.GameSession) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.saveProgress(ctx, tx, p); err != nil {
		return err
	}

	query := `
		INSERT INTO game_sessions (player_id, score, crystals, time_spent_ms, played_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, query, s.PlayerID, s.Score, s.Crystals, s.TimeSpent, s.PlayedAt); err != nil {
		return fmt.Errorf("recording session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RecentSessions retrieves a player's gameplay history, newest first.
func (r *Repository) RecentSessions(ctx context.Context, playerID string, limit int) ([]domain.GameSession, error) {
	query := `
		SELECT id, player_id, score, crystals, time_spent_ms, played_at
		FROM game_sessions
		WHERE player_id = $1
		ORDER BY played_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("getting sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.GameSession
	for rows.Next() {
		var s domain.GameSession
		if err := rows.Scan(&s.ID, &s.PlayerID, &s.Score, &s.Crystals, &s.TimeSpent, &s.PlayedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// TopPlayers retrieves the global leaderboard directly from the player table.
func (r *Repository) TopPlayers(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT id, name, avatar, best_score,
			   ROW_NUMBER() OVER (ORDER BY best_score DESC) as rank
		FROM players
		ORDER BY best_score DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("getting top players: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.Name, &e.Avatar, &e.Score, &e.Rank); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AllBestScores retrieves every player's best score (for cache rebuild)
func (r *Repository) AllBestScores(ctx context.Context) (map[string]int64, error) {
	query := `SELECT id, best_score FROM players`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("getting best scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int64)
	for rows.Next() {
		var playerID string
		var score int64
		if err := rows.Scan(&playerID, &score); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		scores[playerID] = score
	}
	return scores, nil
}

// SaveRoomResults persists finished multiplayer room scores and folds each
// participant's score into their best score, in one transaction.
func (r *Repository) SaveRoomResults(ctx context.Context, roomID string, scores map[string]int64) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	batch := &pgx.Batch{}
	for playerID, score := range scores {
		batch.Queue(
			`INSERT INTO multiplayer_sessions (room_id, player_id, score, ended_at) VALUES ($1, $2, $3, $4)`,
			roomID, playerID, score, now,
		)
		batch.Queue(
			`UPDATE players SET best_score = GREATEST(best_score, $2) WHERE id = $1`,
			playerID, score,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("saving room results: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
