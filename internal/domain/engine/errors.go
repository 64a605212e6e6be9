package engine

import "errors"

var (
	ErrCardAlreadyTaken        = errors.New("card already taken")
	ErrNotConfirmedParticipant = errors.New("not a confirmed participant holding this card")
	ErrInvalidClaim            = errors.New("card does not contain a winning pattern")
	ErrGameNotInExpectedPhase  = errors.New("game is not in the expected phase")
	ErrNotEnoughPlayers        = errors.New("not enough confirmed players")
	ErrInvalidCard             = errors.New("card does not exist")
	ErrAlreadyConfirmed        = errors.New("player already confirmed a different card")
	ErrConfirmInProgress       = errors.New("a card confirmation is already in progress")
	ErrUnknownConnection       = errors.New("connection is not registered")
)
