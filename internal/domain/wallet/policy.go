package wallet

import "github.com/shopspring/decimal"

// DefaultDepositThreshold is the lifetime deposit total at which a player's
// credit becomes withdrawable.
var DefaultDepositThreshold = decimal.NewFromInt(100)

// Policy decides which tier each operation touches. It is pure so the
// repository can run it while holding the wallet row lock.
type Policy struct {
	DepositThreshold decimal.Decimal
}

func (p Policy) qualifies(lifetimeDeposits decimal.Decimal) bool {
	return lifetimeDeposits.GreaterThanOrEqual(p.DepositThreshold)
}

// Deposit credits amount. lifetimeDeposits must already include amount.
// Once the threshold is reached the whole game balance moves across with it.
func (p Policy) Deposit(w Wallet, amount, lifetimeDeposits decimal.Decimal) Wallet {
	if p.qualifies(lifetimeDeposits) {
		w.WithdrawableBalance = w.WithdrawableBalance.Add(w.GameBalance).Add(amount)
		w.GameBalance = decimal.Zero
		return w
	}
	w.GameBalance = w.GameBalance.Add(amount)
	return w
}

// Win credits winnings to the tier the player's deposit history earns.
func (p Policy) Win(w Wallet, amount, lifetimeDeposits decimal.Decimal) Wallet {
	if p.qualifies(lifetimeDeposits) {
		w.WithdrawableBalance = w.WithdrawableBalance.Add(amount)
		return w
	}
	w.GameBalance = w.GameBalance.Add(amount)
	return w
}

// Withdraw debits the withdrawable tier only.
func (p Policy) Withdraw(w Wallet, amount decimal.Decimal) (Wallet, error) {
	if w.WithdrawableBalance.LessThan(amount) {
		return w, ErrInsufficientFunds
	}
	w.WithdrawableBalance = w.WithdrawableBalance.Sub(amount)
	return w, nil
}

// Stake debits the game tier first and spills the rest into withdrawable.
func (p Policy) Stake(w Wallet, amount decimal.Decimal) (Wallet, error) {
	if w.Total().LessThan(amount) {
		return w, ErrInsufficientFunds
	}
	return drain(w, amount), nil
}

// Refund always credits the game tier.
func (p Policy) Refund(w Wallet, amount decimal.Decimal) Wallet {
	w.GameBalance = w.GameBalance.Add(amount)
	return w
}

// Adjust applies an admin correction. Additions go to the game tier;
// subtractions drain game balance first, then withdrawable.
func (p Policy) Adjust(w Wallet, amount decimal.Decimal, dir Direction) (Wallet, error) {
	switch dir {
	case DirectionAdd:
		w.GameBalance = w.GameBalance.Add(amount)
		return w, nil
	case DirectionSubtract:
		if w.Total().LessThan(amount) {
			return w, ErrInsufficientForSubtraction
		}
		return drain(w, amount), nil
	default:
		return w, ErrInvalidDirection
	}
}

func drain(w Wallet, amount decimal.Decimal) Wallet {
	if w.GameBalance.GreaterThanOrEqual(amount) {
		w.GameBalance = w.GameBalance.Sub(amount)
		return w
	}
	rest := amount.Sub(w.GameBalance)
	w.GameBalance = decimal.Zero
	w.WithdrawableBalance = w.WithdrawableBalance.Sub(rest)
	return w
}
