package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table.
type Account struct {
	UserID      string    `gorm:"primaryKey;size:64"`
	Balance     int64     `gorm:"not null;default:0;check:balance >= 0"`
	TotalEarned int64     `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// Transaction mirrors the append-only transactions table.
type Transaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	TransactionID string    `gorm:"size:36;not null;uniqueIndex"`
	SenderID      string    `gorm:"size:64;not null;index:idx_transactions_sender"`
	ReceiverID    string    `gorm:"size:64;not null;index:idx_transactions_receiver"`
	Amount        int64     `gorm:"not null;check:amount > 0"`
	Type          string    `gorm:"size:32;not null"`
	BatchID       *string   `gorm:"size:36;index:idx_transactions_batch"`
	PeriodTag     string    `gorm:"size:7;not null"`
	Description   string    `gorm:"not null;default:''"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

func (transaction *Transaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// VoiceTracking mirrors the voice_tracking table; a row means the user is accruing.
type VoiceTracking struct {
	UserID   string    `gorm:"primaryKey;size:64"`
	JoinedAt time.Time `gorm:"not null"`
}

func (VoiceTracking) TableName() string { return "voice_tracking" }

// VoiceStat mirrors the voice_stats table.
type VoiceStat struct {
	UserID       string `gorm:"primaryKey;size:64"`
	Period       string `gorm:"primaryKey;size:7"`
	TotalSeconds int64  `gorm:"not null;default:0"`
}

func (VoiceStat) TableName() string { return "voice_stats" }

// GamblingState mirrors the gambling_state table.
type GamblingState struct {
	UserID             string    `gorm:"primaryKey;size:64"`
	ConsecutiveNonWins int64     `gorm:"not null;default:0"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (GamblingState) TableName() string { return "gambling_state" }

// JackpotPool mirrors the single-row jackpot_pool table.
type JackpotPool struct {
	Name      string    `gorm:"primaryKey;size:32"`
	Balance   int64     `gorm:"not null;check:balance >= 0"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (JackpotPool) TableName() string { return "jackpot_pool" }

// LotteryTicket mirrors the lottery_tickets table of the open round.
type LotteryTicket struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"size:64;not null;index:idx_lottery_tickets_user"`
	Number    int       `gorm:"not null;index:idx_lottery_tickets_number"`
	CreatedAt time.Time `gorm:"not null"`
}

func (LotteryTicket) TableName() string { return "lottery_tickets" }

// ServerConfig mirrors the server_config key/value table.
type ServerConfig struct {
	Key       string         `gorm:"primaryKey;size:64"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (ServerConfig) TableName() string { return "server_config" }

// Models lists every table managed by the store, in migration order.
func Models() []any {
	return []any{
		&Account{},
		&Transaction{},
		&VoiceTracking{},
		&VoiceStat{},
		&GamblingState{},
		&JackpotPool{},
		&LotteryTicket{},
		&ServerConfig{},
	}
}
