package httpapi

import (
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/gambling"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/payroll"
)

type accountPayload struct {
	UserID      ledger.UserID `json:"user_id"`
	Balance     int64         `json:"balance"`
	TotalEarned int64         `json:"total_earned"`
}

func newAccountPayload(account ledger.Account) accountPayload {
	return accountPayload{UserID: account.UserID, Balance: account.Balance, TotalEarned: account.TotalEarned}
}

type transactionPayload struct {
	ID             string `json:"id"`
	SenderID       string `json:"sender_id"`
	ReceiverID     string `json:"receiver_id"`
	Amount         int64  `json:"amount"`
	Type           string `json:"type"`
	BatchID        string `json:"batch_id,omitempty"`
	PeriodTag      string `json:"period_tag"`
	Description    string `json:"description,omitempty"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

func newTransactionPayload(transaction ledger.Transaction) transactionPayload {
	return transactionPayload{
		ID:             transaction.ID,
		SenderID:       transaction.SenderID.String(),
		ReceiverID:     transaction.ReceiverID.String(),
		Amount:         transaction.Amount,
		Type:           transaction.Type.String(),
		BatchID:        transaction.BatchID,
		PeriodTag:      transaction.PeriodTag,
		Description:    transaction.Description,
		CreatedUnixUTC: transaction.CreatedUnixUTC,
	}
}

type payoutPayload struct {
	UserID ledger.UserID `json:"user_id"`
	Amount int64         `json:"amount"`
}

func newPayoutPayloads(payouts []payroll.Payout) []payoutPayload {
	payloads := make([]payoutPayload, 0, len(payouts))
	for _, payout := range payouts {
		payloads = append(payloads, payoutPayload{UserID: payout.UserID, Amount: payout.Amount})
	}
	return payloads
}

type handPayload struct {
	Dice       [3]int            `json:"dice"`
	Rank       gambling.HandRank `json:"rank"`
	Score      int               `json:"score"`
	Multiplier int64             `json:"multiplier"`
}

func newHandPayload(hand gambling.Hand) handPayload {
	return handPayload{Dice: hand.Dice, Rank: hand.Rank, Score: hand.Score, Multiplier: hand.Multiplier}
}
