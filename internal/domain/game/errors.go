package game

import "errors"

var (
	ErrGameNotFound       = errors.New("game not found")
	ErrGameClosed         = errors.New("game is already completed or cancelled")
	ErrInvalidTransition  = errors.New("game is not in the expected status")
	ErrCardTaken          = errors.New("card already taken in this game")
	ErrAlreadyParticipant = errors.New("user already holds a card in this game")
	ErrStorage            = errors.New("game storage failure")
)
