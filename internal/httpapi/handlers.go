package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/access"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/gambling"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/payroll"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpHandler struct {
	logger   *zap.Logger
	services Services
}

func (handler *httpHandler) register(api *gin.RouterGroup) {
	api.GET("/session", handler.handleSession)

	accounts := api.Group("/accounts/:userID")
	accounts.GET("", handler.handleBalance)
	accounts.GET("/transactions", handler.handleHistory)
	accounts.POST("/credit", requireLevel(access.LevelAdmin), handler.handleCredit)
	accounts.POST("/debit", requireLevel(access.LevelAdmin), handler.handleDebit)
	accounts.POST("/presence/start", requireLevel(access.LevelAdmin), handler.handlePresenceStart)
	accounts.POST("/presence/settle", requireLevel(access.LevelAdmin), handler.handlePresenceSettle)

	api.POST("/transfers", handler.handleTransfer)

	api.POST("/payroll/preview", requireLevel(access.LevelAdmin), handler.handlePayrollPreview)
	api.POST("/payroll/runs", requireLevel(access.LevelAdmin), handler.handlePayrollDistribute)
	api.POST("/payroll/batches/:batchID/rollback", requireLevel(access.LevelGoddess), handler.handlePayrollRollback)

	games := api.Group("/games")
	games.POST("/slot", handler.handleSpin)
	games.POST("/hand", handler.handleHand)
	games.GET("/duels", handler.handleDuelList)
	games.POST("/duels", handler.handleDuelChallenge)
	games.POST("/duels/:challengeID/accept", handler.handleDuelAccept)
	games.POST("/duels/:challengeID/decline", handler.handleDuelDecline)
	games.POST("/fortune", handler.handleFortune)
	games.POST("/scavenge", handler.handleScavenge)

	api.GET("/lottery", handler.handleLottery)
	api.POST("/lottery/tickets", handler.handleLotteryTickets)
	api.POST("/lottery/draw", requireLevel(access.LevelGoddess), handler.handleLotteryDraw)

	api.GET("/jackpot", handler.handleJackpot)
	api.POST("/jackpot/draw", requireLevel(access.LevelGoddess), handler.handleJackpotDraw)

	api.GET("/config", requireLevel(access.LevelAdmin), handler.handleConfig)
	api.POST("/config/reload", requireLevel(access.LevelAdmin), handler.handleConfigReload)
	api.PUT("/config/:key", requireLevel(access.LevelSupremeGod), handler.handleConfigSet)
}

func (handler *httpHandler) handleSession(ctx *gin.Context) {
	claims := getClaims(ctx)
	ctx.JSON(http.StatusOK, gin.H{"user_id": claims.Subject, "level": claims.Level})
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	userID, ok := handler.pathAccount(ctx)
	if !ok {
		return
	}
	account, err := handler.services.Ledger.Balance(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(account)})
}

func (handler *httpHandler) handleHistory(ctx *gin.Context) {
	userID, ok := handler.pathAccount(ctx)
	if !ok {
		return
	}
	limit := 0
	if rawLimit := ctx.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidLimit, "limit must be an integer"))
			return
		}
		limit = parsed
	}
	transactions, err := handler.services.Ledger.History(ctx.Request.Context(), userID, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		payloads = append(payloads, newTransactionPayload(transaction))
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payloads})
}

type adjustRequest struct {
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (request adjustRequest) transactionType() (ledger.TransactionType, error) {
	if strings.TrimSpace(request.Type) == "" {
		return "", nil
	}
	return ledger.ParseTransactionType(request.Type)
}

func (handler *httpHandler) handleCredit(ctx *gin.Context) {
	userID, request, transactionType, ok := handler.adjustment(ctx)
	if !ok {
		return
	}
	account, err := handler.services.Ledger.Credit(ctx.Request.Context(), ledger.CreditRequest{
		UserID:      userID,
		Amount:      request.Amount,
		Type:        transactionType,
		Description: request.Description,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(account)})
}

func (handler *httpHandler) handleDebit(ctx *gin.Context) {
	userID, request, transactionType, ok := handler.adjustment(ctx)
	if !ok {
		return
	}
	account, err := handler.services.Ledger.Debit(ctx.Request.Context(), ledger.DebitRequest{
		UserID:      userID,
		Amount:      request.Amount,
		Type:        transactionType,
		Description: request.Description,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(account)})
}

func (handler *httpHandler) adjustment(ctx *gin.Context) (ledger.UserID, adjustRequest, ledger.TransactionType, bool) {
	userID, ok := handler.pathAccount(ctx)
	if !ok {
		return ledger.UserID{}, adjustRequest{}, "", false
	}
	var request adjustRequest
	if !bindJSON(ctx, &request) {
		return ledger.UserID{}, adjustRequest{}, "", false
	}
	transactionType, err := request.transactionType()
	if err != nil {
		handler.respondError(ctx, err)
		return ledger.UserID{}, adjustRequest{}, "", false
	}
	return userID, request, transactionType, true
}

func (handler *httpHandler) handlePresenceStart(ctx *gin.Context) {
	userID, ok := handler.pathAccount(ctx)
	if !ok {
		return
	}
	opened, err := handler.services.Accrual.Start(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"opened": opened})
}

func (handler *httpHandler) handlePresenceSettle(ctx *gin.Context) {
	userID, ok := handler.pathAccount(ctx)
	if !ok {
		return
	}
	settlement, err := handler.services.Accrual.Settle(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"settlement": gin.H{
		"user_id":         settlement.UserID,
		"joined_unix_utc": settlement.JoinedUnixUTC,
		"ended_unix_utc":  settlement.EndedUnixUTC,
		"elapsed_seconds": int64(settlement.Elapsed.Seconds()),
		"reward":          settlement.Reward,
		"period":          settlement.Period,
		"balance":         settlement.Balance,
	}})
}

type transferRequest struct {
	SenderID    string        `json:"sender_id"`
	ReceiverID  ledger.UserID `json:"receiver_id"`
	Amount      int64         `json:"amount"`
	Description string        `json:"description"`
}

func (handler *httpHandler) handleTransfer(ctx *gin.Context) {
	var request transferRequest
	if !bindJSON(ctx, &request) {
		return
	}
	senderID, ok := handler.actingUser(ctx, request.SenderID)
	if !ok {
		return
	}
	receipt, err := handler.services.Transfers.Transfer(ctx.Request.Context(), ledger.TransferRequest{
		SenderID:    senderID,
		ReceiverID:  request.ReceiverID,
		Amount:      request.Amount,
		Description: request.Description,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transfer": gin.H{
		"sender_id":        receipt.SenderID,
		"receiver_id":      receipt.ReceiverID,
		"amount":           receipt.Amount,
		"sender_balance":   receipt.SenderBalance,
		"receiver_balance": receipt.ReceiverBalance,
		"created_unix_utc": receipt.CreatedUnixUTC,
	}})
}

type payrollRequest struct {
	Tag         string                             `json:"tag"`
	Wages       map[payroll.RoleID]int64           `json:"wages"`
	Membership  map[ledger.UserID][]payroll.RoleID `json:"membership"`
	Aggregation string                             `json:"aggregation"`
	Description string                             `json:"description"`
}

// run fills wages and aggregation from the server config when the request leaves them out.
func (handler *httpHandler) run(request payrollRequest) (payroll.Run, error) {
	snapshot := handler.services.Config.Snapshot()
	run := payroll.Run{
		Tag:         request.Tag,
		Wages:       request.Wages,
		Membership:  request.Membership,
		Aggregation: snapshot.PayrollAggregation,
		Description: request.Description,
	}
	if len(run.Wages) == 0 {
		run.Wages = snapshot.RoleWages
	}
	if strings.TrimSpace(request.Aggregation) != "" {
		aggregation, err := payroll.ParseAggregation(request.Aggregation)
		if err != nil {
			return payroll.Run{}, err
		}
		run.Aggregation = aggregation
	}
	return run, nil
}

func (handler *httpHandler) handlePayrollPreview(ctx *gin.Context) {
	var request payrollRequest
	if !bindJSON(ctx, &request) {
		return
	}
	run, err := handler.run(request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payouts, err := payroll.Preview(run.Wages, run.Membership, run.Aggregation)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	total := int64(0)
	for _, payout := range payouts {
		total += payout.Amount
	}
	ctx.JSON(http.StatusOK, gin.H{"payouts": newPayoutPayloads(payouts), "total": total})
}

func (handler *httpHandler) handlePayrollDistribute(ctx *gin.Context) {
	var request payrollRequest
	if !bindJSON(ctx, &request) {
		return
	}
	run, err := handler.run(request)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.services.Payroll.Distribute(ctx.Request.Context(), run)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"batch_id": result.BatchID,
		"tag":      result.Tag,
		"payouts":  newPayoutPayloads(result.Payouts),
		"total":    result.Total,
	})
}

func (handler *httpHandler) handlePayrollRollback(ctx *gin.Context) {
	result, err := handler.services.Payroll.Rollback(ctx.Request.Context(), ctx.Param("batchID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"batch_id":  result.BatchID,
		"reclaimed": newPayoutPayloads(result.Reclaimed),
		"total":     result.Total,
		"shortfall": result.Shortfall,
		"rows":      result.Rows,
	})
}

type spinRequest struct {
	UserID string `json:"user_id"`
	Wager  int64  `json:"wager"`
	Mode   string `json:"mode"`
}

func (handler *httpHandler) handleSpin(ctx *gin.Context) {
	var request spinRequest
	if !bindJSON(ctx, &request) {
		return
	}
	userID, ok := handler.actingUser(ctx, request.UserID)
	if !ok {
		return
	}
	result, err := handler.services.Gambling.Spin(ctx.Request.Context(), gambling.SpinRequest{
		UserID: userID,
		Wager:  request.Wager,
		Mode:   request.Mode,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"spin": gin.H{
		"mode":                 result.Mode,
		"symbol":               result.Symbol,
		"multiplier":           result.Multiplier,
		"forced":               result.Forced,
		"wager":                result.Wager,
		"payout":               result.Payout,
		"consecutive_non_wins": result.ConsecutiveNonWins,
		"jackpot_fed":          result.JackpotFed,
		"jackpot_won":          result.JackpotWon,
		"balance":              result.Balance,
	}})
}

type handRequest struct {
	UserID string `json:"user_id"`
	Wager  int64  `json:"wager"`
	Keep   string `json:"keep"`
}

func (handler *httpHandler) handleHand(ctx *gin.Context) {
	var request handRequest
	if !bindJSON(ctx, &request) {
		return
	}
	userID, ok := handler.actingUser(ctx, request.UserID)
	if !ok {
		return
	}
	keep, err := gambling.ParseKeepPolicy(request.Keep)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.services.Gambling.PlayRankedHand(ctx.Request.Context(), gambling.HandRequest{
		UserID: userID,
		Wager:  request.Wager,
		Keep:   keep,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"hand": gin.H{
		"player":           newHandPayload(result.Player),
		"dealer":           newHandPayload(result.Dealer),
		"player_attempts":  result.PlayerAttempts,
		"dealer_attempts":  result.DealerAttempts,
		"dealer_preempted": result.DealerPreempted,
		"player_wins":      result.PlayerWins,
		"multiplier":       result.Multiplier,
		"payout":           result.Payout,
		"tax":              result.Tax,
		"loss":             result.Loss,
		"jackpot_fed":      result.JackpotFed,
		"balance":          result.Balance,
	}})
}

type challengeRequest struct {
	ChallengerID string        `json:"challenger_id"`
	OpponentID   ledger.UserID `json:"opponent_id"`
	Wager        int64         `json:"wager"`
	Keep         string        `json:"keep"`
}

func (handler *httpHandler) handleDuelChallenge(ctx *gin.Context) {
	var request challengeRequest
	if !bindJSON(ctx, &request) {
		return
	}
	challengerID, ok := handler.actingUser(ctx, request.ChallengerID)
	if !ok {
		return
	}
	keep, err := gambling.ParseKeepPolicy(request.Keep)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	challenge, err := handler.services.Gambling.Challenge(ctx.Request.Context(), gambling.ChallengeRequest{
		ChallengerID: challengerID,
		OpponentID:   request.OpponentID,
		Wager:        request.Wager,
		Keep:         keep,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"challenge": newChallengePayload(challenge)})
}

func (handler *httpHandler) handleDuelList(ctx *gin.Context) {
	userID, ok := handler.actingUser(ctx, ctx.Query("user_id"))
	if !ok {
		return
	}
	pending := handler.services.Gambling.PendingChallenges(userID)
	payload := make([]gin.H, 0, len(pending))
	for _, challenge := range pending {
		payload = append(payload, newChallengePayload(challenge))
	}
	ctx.JSON(http.StatusOK, gin.H{"challenges": payload})
}

type challengeAnswerRequest struct {
	UserID string `json:"user_id"`
	Keep   string `json:"keep"`
}

// handleDuelAccept settles a duel. Only the challenged player, or an admin acting for them, can accept.
func (handler *httpHandler) handleDuelAccept(ctx *gin.Context) {
	var request challengeAnswerRequest
	if ctx.Request.ContentLength != 0 && !bindJSON(ctx, &request) {
		return
	}
	opponentID, ok := handler.actingUser(ctx, request.UserID)
	if !ok {
		return
	}
	keep, err := gambling.ParseKeepPolicy(request.Keep)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.services.Gambling.AcceptChallenge(ctx.Request.Context(), gambling.AcceptRequest{
		ChallengeID: ctx.Param("challengeID"),
		OpponentID:  opponentID,
		Keep:        keep,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"duel": gin.H{
		"challenger":     newHandPayload(result.Challenger),
		"opponent":       newHandPayload(result.Opponent),
		"winner_id":      result.WinnerID,
		"loser_id":       result.LoserID,
		"multiplier":     result.Multiplier,
		"moved":          result.Moved,
		"prize":          result.Prize,
		"tax":            result.Tax,
		"winner_balance": result.WinnerBalance,
		"loser_balance":  result.LoserBalance,
	}})
}

func (handler *httpHandler) handleDuelDecline(ctx *gin.Context) {
	var request challengeAnswerRequest
	if ctx.Request.ContentLength != 0 && !bindJSON(ctx, &request) {
		return
	}
	userID, ok := handler.actingUser(ctx, request.UserID)
	if !ok {
		return
	}
	challenge, err := handler.services.Gambling.DeclineChallenge(ctx.Request.Context(), ctx.Param("challengeID"), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"declined": newChallengePayload(challenge)})
}

func newChallengePayload(challenge gambling.Challenge) gin.H {
	return gin.H{
		"id":            challenge.ID,
		"challenger_id": challenge.ChallengerID,
		"opponent_id":   challenge.OpponentID,
		"wager":         challenge.Wager,
		"expires_at":    challenge.ExpiresAt.UTC(),
	}
}

type fortuneRequest struct {
	UserID string `json:"user_id"`
}

func (handler *httpHandler) handleFortune(ctx *gin.Context) {
	var request fortuneRequest
	if ctx.Request.ContentLength != 0 && !bindJSON(ctx, &request) {
		return
	}
	userID, ok := handler.actingUser(ctx, request.UserID)
	if !ok {
		return
	}
	result, err := handler.services.Gambling.DrawFortune(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"fortune": gin.H{
		"name":        result.Fortune.Name,
		"payout":      result.Fortune.Payout,
		"cost":        result.Cost,
		"net":         result.Net,
		"jackpot_fed": result.JackpotFed,
		"balance":     result.Balance,
	}})
}

func (handler *httpHandler) handleScavenge(ctx *gin.Context) {
	var request fortuneRequest
	if ctx.Request.ContentLength != 0 && !bindJSON(ctx, &request) {
		return
	}
	userID, ok := handler.actingUser(ctx, request.UserID)
	if !ok {
		return
	}
	result, err := handler.services.Gambling.Scavenge(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"scavenge": gin.H{"found": result.Found, "balance": result.Balance}})
}

func (handler *httpHandler) handleLottery(ctx *gin.Context) {
	userID, ok := handler.actingUser(ctx, ctx.Query("user_id"))
	if !ok {
		return
	}
	status, err := handler.services.Gambling.LotteryStatus(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"lottery": gin.H{
		"pool":         status.Pool,
		"tickets_sold": status.TicketsSold,
		"numbers":      status.Numbers,
		"ticket_price": status.TicketPrice,
		"ticket_limit": status.TicketLimit,
	}})
}

type ticketRequest struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

func (handler *httpHandler) handleLotteryTickets(ctx *gin.Context) {
	var request ticketRequest
	if !bindJSON(ctx, &request) {
		return
	}
	userID, ok := handler.actingUser(ctx, request.UserID)
	if !ok {
		return
	}
	purchase, err := handler.services.Gambling.BuyTickets(ctx.Request.Context(), gambling.TicketRequest{UserID: userID, Count: request.Count})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"tickets": gin.H{
		"numbers":     purchase.Numbers,
		"cost":        purchase.Cost,
		"sponsor_cut": purchase.SponsorCut,
		"pool_fed":    purchase.PoolFed,
		"held":        purchase.Held,
		"balance":     purchase.Balance,
	}})
}

type lotteryDrawRequest struct {
	Forced bool `json:"forced"`
}

func (handler *httpHandler) handleLotteryDraw(ctx *gin.Context) {
	var request lotteryDrawRequest
	if ctx.Request.ContentLength != 0 && !bindJSON(ctx, &request) {
		return
	}
	draw, err := handler.services.Gambling.DrawLottery(ctx.Request.Context(), gambling.LotteryDrawRequest{Forced: request.Forced})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	winners := make([]gin.H, 0, len(draw.Winners))
	for _, winner := range draw.Winners {
		winners = append(winners, gin.H{"user_id": winner.UserID, "tickets": winner.Tickets, "amount": winner.Amount})
	}
	ctx.JSON(http.StatusOK, gin.H{"draw": gin.H{
		"number":       fmt.Sprintf("%03d", draw.Number),
		"forced":       draw.Forced,
		"tickets_sold": draw.TicketsSold,
		"winners":      winners,
		"drained":      draw.Drained,
		"share":        draw.Share,
		"carried_over": draw.CarriedOver,
		"pool":         draw.Pool,
	}})
}

func (handler *httpHandler) handleJackpot(ctx *gin.Context) {
	pool, err := handler.services.Gambling.JackpotBalance(ctx.Request.Context())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"jackpot": pool})
}

type jackpotDrawRequest struct {
	Winners []ledger.UserID `json:"winners"`
}

func (handler *httpHandler) handleJackpotDraw(ctx *gin.Context) {
	var request jackpotDrawRequest
	if !bindJSON(ctx, &request) {
		return
	}
	draw, err := handler.services.Gambling.DrawJackpot(ctx.Request.Context(), request.Winners)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"draw": gin.H{
		"winners":   draw.Winners,
		"drained":   draw.Drained,
		"share":     draw.Share,
		"remainder": draw.Remainder,
	}})
}

func (handler *httpHandler) handleConfig(ctx *gin.Context) {
	snapshot := handler.services.Config.Snapshot()
	ctx.JSON(http.StatusOK, gin.H{"config": gin.H{
		"vc_reward_per_minute": snapshot.RewardPerMinute,
		"reward_channels":      snapshot.RewardChannels,
		"role_wages":           snapshot.RoleWages,
		"admin_roles":          snapshot.AdminRoles,
		"payroll_aggregation":  snapshot.PayrollAggregation,
		"slot_mode":            snapshot.SlotMode,
		"transfer_blocklist":   snapshot.TransferBlocklist,
		"jackpot_sponsor_id":   snapshot.JackpotSponsor,
	}})
}

func (handler *httpHandler) handleConfigReload(ctx *gin.Context) {
	if err := handler.services.Config.Reload(ctx.Request.Context()); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.handleConfig(ctx)
}

func (handler *httpHandler) handleConfigSet(ctx *gin.Context) {
	raw, err := ctx.GetRawData()
	if err != nil || len(raw) == 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse(codeInvalidRequest, "json value required"))
		return
	}
	if err := handler.services.Config.SetRaw(ctx.Request.Context(), ctx.Param("key"), raw); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.handleConfig(ctx)
}

// pathAccount resolves :userID and lets callers below LevelAdmin reach only their own account.
func (handler *httpHandler) pathAccount(ctx *gin.Context) (ledger.UserID, bool) {
	return handler.actingUser(ctx, ctx.Param("userID"))
}

// actingUser returns the account a request acts for. An empty raw id means the caller itself;
// acting for someone else requires LevelAdmin.
func (handler *httpHandler) actingUser(ctx *gin.Context, raw string) (ledger.UserID, bool) {
	claims := getClaims(ctx)
	if strings.TrimSpace(raw) == "" {
		raw = claims.Subject
	}
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		handler.respondError(ctx, err)
		return ledger.UserID{}, false
	}
	if userID.String() != claims.Subject && !claims.Level.AtLeast(access.LevelAdmin) {
		ctx.JSON(http.StatusForbidden, errorResponse(codeForbidden, "cannot act for another account"))
		return ledger.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := mapError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed",
			zap.String("path", ctx.FullPath()),
			zap.Error(err),
		)
		message = "internal error"
	}
	ctx.JSON(status, errorResponse(code, message))
}

func bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		status, code := mapError(err)
		if status == http.StatusInternalServerError {
			status, code = http.StatusBadRequest, codeInvalidRequest
		}
		ctx.JSON(status, errorResponse(code, err.Error()))
		return false
	}
	return true
}
