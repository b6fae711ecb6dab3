package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"gorm.io/gorm"
)

func (store *Store) InsertLotteryTickets(ctx context.Context, tickets []ledger.LotteryTicket) error {
	if len(tickets) == 0 {
		return nil
	}
	rows := make([]LotteryTicket, 0, len(tickets))
	for _, ticket := range tickets {
		rows = append(rows, LotteryTicket{
			UserID:    ticket.UserID.String(),
			Number:    ticket.Number,
			CreatedAt: timeFromUnix(ticket.CreatedUnixUTC),
		})
	}
	if err := store.db.WithContext(ctx).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return wrapStoreError(errorSubjectLottery, errorCodeInsert, classify(err))
	}
	return nil
}

func (store *Store) ListLotteryTickets(ctx context.Context, userID ledger.UserID) ([]ledger.LotteryTicket, error) {
	var rows []LotteryTicket
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Order("number ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectLottery, errorCodeList, classify(err))
	}
	return mapTickets(rows)
}

func (store *Store) ListLotteryTicketsByNumber(ctx context.Context, number int) ([]ledger.LotteryTicket, error) {
	var rows []LotteryTicket
	err := store.db.WithContext(ctx).Where("number = ?", number).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectLottery, errorCodeList, classify(err))
	}
	return mapTickets(rows)
}

func (store *Store) CountLotteryTickets(ctx context.Context) (int64, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&LotteryTicket{}).Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectLottery, errorCodeList, classify(err))
	}
	return count, nil
}

func (store *Store) LotteryTicketAt(ctx context.Context, offset int64) (ledger.LotteryTicket, error) {
	var row LotteryTicket
	err := store.db.WithContext(ctx).Order("id ASC").Offset(int(offset)).Limit(1).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.LotteryTicket{}, wrapStoreError(errorSubjectLottery, errorCodeGet, ledger.ErrTicketMissing)
	}
	if err != nil {
		return ledger.LotteryTicket{}, wrapStoreError(errorSubjectLottery, errorCodeGet, classify(err))
	}
	tickets, err := mapTickets([]LotteryTicket{row})
	if err != nil {
		return ledger.LotteryTicket{}, err
	}
	return tickets[0], nil
}

func (store *Store) ClearLotteryTickets(ctx context.Context) (int64, error) {
	result := store.db.WithContext(ctx).Where("1 = 1").Delete(&LotteryTicket{})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectLottery, errorCodeDelete, classify(result.Error))
	}
	return result.RowsAffected, nil
}

func mapTickets(rows []LotteryTicket) ([]ledger.LotteryTicket, error) {
	tickets := make([]ledger.LotteryTicket, 0, len(rows))
	for _, row := range rows {
		userID, err := ledger.NewUserID(row.UserID)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLottery, errorCodeInvalid, err)
		}
		tickets = append(tickets, ledger.LotteryTicket{
			ID:             row.ID,
			UserID:         userID,
			Number:         row.Number,
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return tickets, nil
}
