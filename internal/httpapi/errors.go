package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/serverconfig"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/gambling"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/payroll"
	"github.com/gin-gonic/gin"
)

const (
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeInvalidRequest     = "invalid_request"
	codeInvalidUserID      = "invalid_user_id"
	codeInvalidAmount      = "invalid_amount"
	codeInvalidType        = "invalid_transaction_type"
	codeInvalidLimit       = "invalid_limit"
	codeInsufficientFunds  = "insufficient_funds"
	codeSelfTransfer       = "self_transfer"
	codeDisallowedAccount  = "disallowed_account"
	codeUnknownBatch       = "unknown_batch"
	codeNoActiveSession    = "no_active_session"
	codeConflict           = "conflict"
	codeInvalidPolicy      = "invalid_policy"
	codeInvalidRun         = "invalid_run"
	codeRunInFlight        = "run_in_flight"
	codeNoEligibleMembers  = "no_eligible_members"
	codeCooldownActive     = "cooldown_active"
	codeCoolingOff         = "cooling_off"
	codeUnknownMode        = "unknown_mode"
	codeInvalidKeepPolicy  = "invalid_keep_policy"
	codeNoWinners          = "no_winners"
	codeUnknownChallenge   = "unknown_challenge"
	codeNotYourChallenge   = "not_your_challenge"
	codeChallengeLimit     = "challenge_limit"
	codeTicketLimit        = "ticket_limit"
	codeNoTickets          = "no_tickets"
	codeScavengeDenied     = "scavenge_denied"
	codeUnknownConfigKey   = "unknown_config_key"
	codeInvalidConfigValue = "invalid_config_value"
	codeInternal           = "internal_error"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Ordered: the first match wins.
var errorMappings = []errorMapping{
	{target: ledger.ErrInvalidUserID, status: http.StatusBadRequest, code: codeInvalidUserID},
	{target: ledger.ErrInvalidAmount, status: http.StatusBadRequest, code: codeInvalidAmount},
	{target: ledger.ErrInvalidTransactionType, status: http.StatusBadRequest, code: codeInvalidType},
	{target: ledger.ErrInvalidLimit, status: http.StatusBadRequest, code: codeInvalidLimit},
	{target: ledger.ErrInsufficientFunds, status: http.StatusConflict, code: codeInsufficientFunds},
	{target: ledger.ErrSelfTransfer, status: http.StatusBadRequest, code: codeSelfTransfer},
	{target: ledger.ErrDisallowedAccount, status: http.StatusForbidden, code: codeDisallowedAccount},
	{target: ledger.ErrUnknownBatch, status: http.StatusNotFound, code: codeUnknownBatch},
	{target: ledger.ErrNoActiveSession, status: http.StatusNotFound, code: codeNoActiveSession},
	{target: ledger.ErrPersistenceConflict, status: http.StatusServiceUnavailable, code: codeConflict},
	{target: payroll.ErrInvalidPolicy, status: http.StatusBadRequest, code: codeInvalidPolicy},
	{target: payroll.ErrInvalidRun, status: http.StatusBadRequest, code: codeInvalidRun},
	{target: payroll.ErrRunInFlight, status: http.StatusConflict, code: codeRunInFlight},
	{target: payroll.ErrNoEligibleMembers, status: http.StatusUnprocessableEntity, code: codeNoEligibleMembers},
	{target: gambling.ErrCooldownActive, status: http.StatusTooManyRequests, code: codeCooldownActive},
	{target: gambling.ErrCoolingOff, status: http.StatusTooManyRequests, code: codeCoolingOff},
	{target: gambling.ErrUnknownMode, status: http.StatusBadRequest, code: codeUnknownMode},
	{target: gambling.ErrInvalidKeepPolicy, status: http.StatusBadRequest, code: codeInvalidKeepPolicy},
	{target: gambling.ErrNoWinners, status: http.StatusBadRequest, code: codeNoWinners},
	{target: gambling.ErrUnknownChallenge, status: http.StatusNotFound, code: codeUnknownChallenge},
	{target: gambling.ErrChallengeForbidden, status: http.StatusForbidden, code: codeNotYourChallenge},
	{target: gambling.ErrChallengeLimit, status: http.StatusTooManyRequests, code: codeChallengeLimit},
	{target: gambling.ErrTicketLimit, status: http.StatusConflict, code: codeTicketLimit},
	{target: gambling.ErrNoTickets, status: http.StatusUnprocessableEntity, code: codeNoTickets},
	{target: gambling.ErrScavengeDenied, status: http.StatusConflict, code: codeScavengeDenied},
	{target: serverconfig.ErrUnknownKey, status: http.StatusNotFound, code: codeUnknownConfigKey},
	{target: serverconfig.ErrInvalidValue, status: http.StatusBadRequest, code: codeInvalidConfigValue},
}

// mapError translates a domain error into an HTTP status and a stable code.
func mapError(source error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(source, mapping.target) {
			return mapping.status, mapping.code
		}
	}
	return http.StatusInternalServerError, codeInternal
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
