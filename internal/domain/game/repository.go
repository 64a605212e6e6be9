package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const queryTimeout = 3 * time.Second

const gameColumns = `id, stake, status, called_numbers, winner_user_id, winning_card_id,
	total_pot, prize, created_at, started_at, finished_at`

type Repository interface {
	CreateGame(ctx context.Context, stake decimal.Decimal) (*Game, error)
	StartGame(ctx context.Context, gameID uuid.UUID, totalPot decimal.Decimal) error
	SaveCalledNumbers(ctx context.Context, gameID uuid.UUID, called []int) error
	AddParticipant(ctx context.Context, p *Participant) error
	CompleteGame(ctx context.Context, gameID uuid.UUID, result Result) error
	CancelGame(ctx context.Context, gameID uuid.UUID) error
	GetGame(ctx context.Context, gameID uuid.UUID) (*Game, error)
	ListParticipants(ctx context.Context, gameID uuid.UUID) ([]Participant, error)
	ListGames(ctx context.Context, p Pagination) ([]Game, error)
	ListHistory(ctx context.Context, userID uuid.UUID, p Pagination) ([]HistoryEntry, error)
	Stats(ctx context.Context) (*Stats, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func toInt64s(called []int) pq.Int64Array {
	out := make(pq.Int64Array, len(called))
	for i, n := range called {
		out[i] = int64(n)
	}
	return out
}

func (r *PostgresRepository) CreateGame(ctx context.Context, stake decimal.Decimal) (*Game, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var g Game
	err := r.db.GetContext(ctx2, &g, `
		INSERT INTO games (stake, status)
		VALUES ($1, $2)
		RETURNING `+gameColumns, stake, string(StatusWaiting))
	if err != nil {
		return nil, storageErr("create game", err)
	}
	return &g, nil
}

// transition runs an UPDATE guarded on the current status and explains a
// zero row result.
func (r *PostgresRepository) transition(ctx context.Context, gameID uuid.UUID, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storageErr("update game", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if n > 0 {
		return nil
	}

	var status Status
	err = r.db.GetContext(ctx, &status, `SELECT status FROM games WHERE id = $1`, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrGameNotFound
	}
	if err != nil {
		return storageErr("load status", err)
	}
	if status.Closed() {
		return ErrGameClosed
	}
	return ErrInvalidTransition
}

func (r *PostgresRepository) StartGame(ctx context.Context, gameID uuid.UUID, totalPot decimal.Decimal) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.transition(ctx2, gameID, `
		UPDATE games
		SET status = $1, total_pot = $2, started_at = now()
		WHERE id = $3 AND status = $4
	`, string(StatusPlaying), totalPot, gameID, string(StatusWaiting))
	if errors.Is(err, ErrInvalidTransition) {
		// Only "playing" is left once waiting and closed are ruled out.
		return nil
	}
	return err
}

func (r *PostgresRepository) SaveCalledNumbers(ctx context.Context, gameID uuid.UUID, called []int) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return r.transition(ctx2, gameID, `
		UPDATE games
		SET called_numbers = $1
		WHERE id = $2 AND status = $3
	`, toInt64s(called), gameID, string(StatusPlaying))
}

func (r *PostgresRepository) AddParticipant(ctx context.Context, p *Participant) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.db.QueryRowxContext(ctx2, `
		INSERT INTO game_participants (game_id, user_id, card_id, stake)
		SELECT $1, $2, $3, $4
		FROM games
		WHERE id = $1 AND status = $5
		RETURNING id, created_at
	`, p.GameID, p.UserID, p.CardID, p.Stake, string(StatusWaiting)).Scan(&p.ID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidTransition
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if pqErr.Constraint == "game_participants_game_id_user_id_key" {
				return ErrAlreadyParticipant
			}
			return ErrCardTaken
		}
		return storageErr("add participant", err)
	}
	return nil
}

func (r *PostgresRepository) CompleteGame(ctx context.Context, gameID uuid.UUID, result Result) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return storageErr("begin tx", err)
	}
	defer tx.Rollback()

	var current Game
	err = tx.GetContext(ctx2, &current, `SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrGameNotFound
	}
	if err != nil {
		return storageErr("lock game", err)
	}

	switch current.Status {
	case StatusCompleted:
		// Settling twice after a restart is fine as long as the winner matches.
		if sameWinner(current.WinnerUserID, result.WinnerUserID) {
			return nil
		}
		return ErrGameClosed
	case StatusCancelled:
		return ErrGameClosed
	case StatusWaiting:
		return ErrInvalidTransition
	}

	_, err = tx.ExecContext(ctx2, `
		UPDATE games
		SET status = $1, called_numbers = $2, winner_user_id = $3, winning_card_id = $4,
			prize = $5, finished_at = now()
		WHERE id = $6
	`, string(StatusCompleted), toInt64s(result.Called), result.WinnerUserID, result.WinningCardID, result.Prize, gameID)
	if err != nil {
		return storageErr("complete game", err)
	}

	if result.WinnerUserID != nil {
		_, err = tx.ExecContext(ctx2, `
			UPDATE game_participants
			SET is_winner = true
			WHERE game_id = $1 AND user_id = $2
		`, gameID, *result.WinnerUserID)
		if err != nil {
			return storageErr("mark winner", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit tx", err)
	}
	return nil
}

func sameWinner(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *PostgresRepository) CancelGame(ctx context.Context, gameID uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.transition(ctx2, gameID, `
		UPDATE games
		SET status = $1, finished_at = now()
		WHERE id = $2 AND status IN ($3, $4)
	`, string(StatusCancelled), gameID, string(StatusWaiting), string(StatusPlaying))
	if errors.Is(err, ErrGameClosed) {
		var status Status
		if r.db.GetContext(ctx2, &status, `SELECT status FROM games WHERE id = $1`, gameID) == nil && status == StatusCancelled {
			return nil
		}
	}
	return err
}

func (r *PostgresRepository) GetGame(ctx context.Context, gameID uuid.UUID) (*Game, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var g Game
	err := r.db.GetContext(ctx2, &g, `SELECT `+gameColumns+` FROM games WHERE id = $1`, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, storageErr("get game", err)
	}
	return &g, nil
}

func (r *PostgresRepository) ListParticipants(ctx context.Context, gameID uuid.UUID) ([]Participant, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	participants := make([]Participant, 0)
	err := r.db.SelectContext(ctx2, &participants, `
		SELECT id, game_id, user_id, card_id, stake, is_winner, created_at
		FROM game_participants
		WHERE game_id = $1
		ORDER BY created_at ASC
	`, gameID)
	if err != nil {
		return nil, storageErr("list participants", err)
	}
	return participants, nil
}

func (r *PostgresRepository) ListGames(ctx context.Context, p Pagination) ([]Game, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	games := make([]Game, 0)
	err := r.db.SelectContext(ctx2, &games, `
		SELECT `+gameColumns+`
		FROM games
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limitOrDefault(p.Limit), p.Offset)
	if err != nil {
		return nil, storageErr("list games", err)
	}
	return games, nil
}

func (r *PostgresRepository) ListHistory(ctx context.Context, userID uuid.UUID, p Pagination) ([]HistoryEntry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	entries := make([]HistoryEntry, 0)
	err := r.db.SelectContext(ctx2, &entries, `
		SELECT g.id AS game_id, gp.card_id, gp.stake, gp.is_winner, g.status,
			g.total_pot, CASE WHEN gp.is_winner THEN g.prize ELSE 0 END AS prize,
			g.created_at, g.finished_at
		FROM game_participants gp
		JOIN games g ON g.id = gp.game_id
		WHERE gp.user_id = $1
		ORDER BY g.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limitOrDefault(p.Limit), p.Offset)
	if err != nil {
		return nil, storageErr("list history", err)
	}
	return entries, nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*Stats, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var s Stats
	err := r.db.GetContext(ctx2, &s, `
		SELECT
			COUNT(*) AS total_games,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed_games,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled_games,
			COUNT(*) FILTER (WHERE status = 'completed' AND winner_user_id IS NULL) AS no_contest_games,
			COALESCE(SUM(total_pot) FILTER (WHERE status = 'completed'), 0) AS total_pot,
			COALESCE(SUM(prize) FILTER (WHERE status = 'completed'), 0) AS total_prizes,
			(SELECT COUNT(DISTINCT user_id) FROM game_participants) AS players
		FROM games
	`)
	if err != nil {
		return nil, storageErr("stats", err)
	}
	return &s, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}
