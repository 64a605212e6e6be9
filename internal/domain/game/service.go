package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateGame opens a new round in the waiting status.
func (s *Service) CreateGame(ctx context.Context, stake decimal.Decimal) (*Game, error) {
	g, err := s.repo.CreateGame(ctx, stake)
	if err != nil {
		return nil, err
	}
	log.Info().Str("game_id", g.ID.String()).Str("stake", stake.String()).Msg("game created")
	return g, nil
}

func (s *Service) StartGame(ctx context.Context, gameID uuid.UUID, totalPot decimal.Decimal) error {
	if err := s.repo.StartGame(ctx, gameID, totalPot); err != nil {
		return err
	}
	log.Info().Str("game_id", gameID.String()).Str("total_pot", totalPot.String()).Msg("game started")
	return nil
}

func (s *Service) SaveCalledNumbers(ctx context.Context, gameID uuid.UUID, called []int) error {
	return s.repo.SaveCalledNumbers(ctx, gameID, called)
}

func (s *Service) AddParticipant(ctx context.Context, gameID, userID uuid.UUID, cardID int, stake decimal.Decimal) (*Participant, error) {
	p := &Participant{GameID: gameID, UserID: userID, CardID: cardID, Stake: stake}
	if err := s.repo.AddParticipant(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// CompleteGame records the outcome. Calling it again with the same winner is a no-op.
func (s *Service) CompleteGame(ctx context.Context, gameID uuid.UUID, result Result) error {
	if err := s.repo.CompleteGame(ctx, gameID, result); err != nil {
		return err
	}

	ev := log.Info().Str("game_id", gameID.String()).Int("numbers_called", len(result.Called))
	if result.WinnerUserID != nil {
		ev = ev.Str("winner_user_id", result.WinnerUserID.String()).Str("prize", result.Prize.String())
	}
	ev.Msg("game completed")
	return nil
}

func (s *Service) CancelGame(ctx context.Context, gameID uuid.UUID) error {
	if err := s.repo.CancelGame(ctx, gameID); err != nil {
		return err
	}
	log.Info().Str("game_id", gameID.String()).Msg("game cancelled")
	return nil
}

// Details is a game with its participants.
type Details struct {
	*Game
	Participants []Participant `json:"participants"`
}

func (s *Service) GetGame(ctx context.Context, gameID uuid.UUID) (*Details, error) {
	g, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return &Details{Game: g, Participants: participants}, nil
}

func (s *Service) ListParticipants(ctx context.Context, gameID uuid.UUID) ([]Participant, error) {
	return s.repo.ListParticipants(ctx, gameID)
}

func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]HistoryEntry, error) {
	return s.repo.ListHistory(ctx, userID, Pagination{Limit: limit, Offset: offset})
}

func (s *Service) ListGames(ctx context.Context, limit, offset int) ([]Game, error) {
	return s.repo.ListGames(ctx, Pagination{Limit: limit, Offset: offset})
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st.HouseFee = st.TotalPot.Sub(st.TotalPrizes)
	return st, nil
}
