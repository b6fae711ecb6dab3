package gambling

import "errors"

var (
	// ErrCooldownActive indicates the player played too recently.
	ErrCooldownActive = errors.New("cooldown active")
	// ErrCoolingOff indicates the player hit the loss streak limit.
	ErrCoolingOff = errors.New("cooling off after loss streak")
	// ErrUnknownMode indicates a reel mode without a preset.
	ErrUnknownMode = errors.New("unknown reel mode")
	// ErrInvalidReel indicates a malformed reel table.
	ErrInvalidReel = errors.New("invalid reel")
	// ErrInvalidKeepPolicy indicates an unknown keep policy name.
	ErrInvalidKeepPolicy = errors.New("invalid keep policy")
	// ErrNoWinners indicates a jackpot draw without winners.
	ErrNoWinners = errors.New("no jackpot winners")
	// ErrUnknownChallenge indicates a duel challenge that expired or never existed.
	ErrUnknownChallenge = errors.New("unknown duel challenge")
	// ErrChallengeForbidden indicates a player answering a challenge addressed to someone else.
	ErrChallengeForbidden = errors.New("duel challenge belongs to another player")
	// ErrChallengeLimit indicates the pending challenge book is full.
	ErrChallengeLimit = errors.New("too many pending duel challenges")
	// ErrTicketLimit indicates a purchase above the per-player ticket cap.
	ErrTicketLimit = errors.New("lottery ticket limit reached")
	// ErrNoTickets indicates a forced draw with no tickets sold.
	ErrNoTickets = errors.New("no lottery tickets sold")
	// ErrScavengeDenied indicates a scavenge by a player above the balance ceiling.
	ErrScavengeDenied = errors.New("balance too high to scavenge")
)
