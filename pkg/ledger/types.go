package ledger

import (
	"fmt"
	"strings"
	"time"
)

const (
	systemUserIDValue = "system"
	periodTagLayout   = "2006-01"
)

// UserID identifies an account owner.
type UserID struct {
	value string
}

// SystemUserID is the reserved counterparty that mints credits and absorbs debits.
var SystemUserID = UserID{value: systemUserIDValue}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsSystem reports whether id is the reserved system account.
func (id UserID) IsSystem() bool {
	return id.value == systemUserIDValue
}

// IsZero reports whether id was never set.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// MarshalText writes the raw identifier.
func (id UserID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText applies NewUserID validation.
func (id *UserID) UnmarshalText(text []byte) error {
	parsed, err := NewUserID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// PositiveAmount is a strictly positive currency amount.
type PositiveAmount struct {
	value int64
}

// NewPositiveAmount validates that raw is greater than zero.
func NewPositiveAmount(raw int64) (PositiveAmount, error) {
	if raw <= 0 {
		return PositiveAmount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveAmount{value: raw}, nil
}

// Int64 exposes the raw value.
func (amount PositiveAmount) Int64() int64 {
	return amount.value
}

// TransactionType labels why money moved. The set is open; callers may add their own labels.
type TransactionType string

const (
	TransactionTransfer     TransactionType = "TRANSFER"
	TransactionSalary       TransactionType = "SALARY"
	TransactionVoiceReward  TransactionType = "VC_REWARD"
	TransactionBonus        TransactionType = "BONUS"
	TransactionShop         TransactionType = "SHOP"
	TransactionSlotBet      TransactionType = "SLOT_BET"
	TransactionSlotWin      TransactionType = "SLOT_WIN"
	TransactionDiceBet      TransactionType = "DICE_BET"
	TransactionDiceWin      TransactionType = "DICE_WIN"
	TransactionDiceLoss     TransactionType = "DICE_LOSS"
	TransactionDuel         TransactionType = "DUEL"
	TransactionDuelTax      TransactionType = "DUEL_TAX"
	TransactionFortuneBet   TransactionType = "FORTUNE_BET"
	TransactionFortuneWin   TransactionType = "FORTUNE_WIN"
	TransactionJackpot      TransactionType = "JACKPOT"
	TransactionTicket       TransactionType = "LOTTERY_TICKET"
	TransactionSponsorCut   TransactionType = "LOTTERY_SPONSOR"
	TransactionScavenge     TransactionType = "SCAVENGE"
	TransactionSystemAdd    TransactionType = "SYSTEM_ADD"
	TransactionSystemRemove TransactionType = "SYSTEM_REMOVE"
)

// ParseTransactionType normalizes a caller supplied label.
func ParseTransactionType(raw string) (TransactionType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidTransactionType)
	}
	return TransactionType(normalized), nil
}

// String returns the stored label.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// PeriodTag returns the monthly bucket ("2006-01") for a unix timestamp.
func PeriodTag(unixUTC int64) string {
	return time.Unix(unixUTC, 0).UTC().Format(periodTagLayout)
}

// Account is the balance view of one user.
type Account struct {
	UserID      UserID
	Balance     int64
	TotalEarned int64
}

// Transaction is an immutable record of one balance-affecting mutation.
type Transaction struct {
	ID             string
	SenderID       UserID
	ReceiverID     UserID
	Amount         int64
	Type           TransactionType
	BatchID        string
	PeriodTag      string
	Description    string
	CreatedUnixUTC int64
}

// VoiceSession marks a user as accruing presence time since JoinedUnixUTC.
type VoiceSession struct {
	UserID        UserID
	JoinedUnixUTC int64
}

// VoiceStats accumulates settled presence seconds per period.
type VoiceStats struct {
	UserID       UserID
	Period       string
	TotalSeconds int64
}

// GamblingState carries the per-user pity counter.
type GamblingState struct {
	UserID             UserID
	ConsecutiveNonWins int64
}

// LotteryTicket is one numbered ticket of the current lottery round.
type LotteryTicket struct {
	ID             int64
	UserID         UserID
	Number         int
	CreatedUnixUTC int64
}

// ConfigEntry is an opaque JSON value stored under a key.
type ConfigEntry struct {
	Key   string
	Value []byte
}
