// Package presence turns Discord voice-state changes into accrual sessions.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/accrual"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const handlerTimeout = 10 * time.Second

// SessionTracker opens and settles presence sessions.
type SessionTracker interface {
	Start(ctx context.Context, userID ledger.UserID) (bool, error)
	Settle(ctx context.Context, userID ledger.UserID) (accrual.Settlement, error)
}

// ChannelPolicy decides which voice channels accrue rewards.
type ChannelPolicy interface {
	IsRewardChannel(channelID string) bool
}

// Monitor follows voice states. A member is active while connected to a reward channel and
// neither self-deafened nor server-deafened. Bots never accrue.
type Monitor struct {
	sessions SessionTracker
	channels ChannelPolicy
	state    *discordgo.State
	logger   *zap.Logger
}

var _ accrual.EligibilityChecker = (*Monitor)(nil)

// NewMonitor wires a Monitor reading cached voice states from state.
func NewMonitor(sessions SessionTracker, channels ChannelPolicy, state *discordgo.State, logger *zap.Logger) (*Monitor, error) {
	if sessions == nil {
		return nil, fmt.Errorf("%w: session tracker is nil", ledger.ErrInvalidServiceConfig)
	}
	if channels == nil {
		return nil, fmt.Errorf("%w: channel policy is nil", ledger.ErrInvalidServiceConfig)
	}
	if state == nil {
		return nil, fmt.Errorf("%w: discord state is nil", ledger.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{sessions: sessions, channels: channels, state: state, logger: logger}, nil
}

// Active reports whether voiceState currently accrues.
func (monitor *Monitor) Active(voiceState *discordgo.VoiceState) bool {
	if voiceState == nil || voiceState.ChannelID == "" {
		return false
	}
	if voiceState.SelfDeaf || voiceState.Deaf {
		return false
	}
	return monitor.channels.IsRewardChannel(voiceState.ChannelID)
}

// HandleVoiceStateUpdate starts a session on an inactive-to-active transition and settles on the
// reverse. Moving between two reward channels keeps the session open.
func (monitor *Monitor) HandleVoiceStateUpdate(ctx context.Context, update *discordgo.VoiceStateUpdate) error {
	if update == nil || update.VoiceState == nil || isBot(update.VoiceState) {
		return nil
	}
	userID, err := ledger.NewUserID(update.UserID)
	if err != nil {
		return err
	}
	wasActive := monitor.Active(update.BeforeUpdate)
	isActive := monitor.Active(update.VoiceState)
	switch {
	case !wasActive && isActive:
		_, err = monitor.sessions.Start(ctx, userID)
		return err
	case wasActive && !isActive:
		_, err = monitor.sessions.Settle(ctx, userID)
		if errors.Is(err, ledger.ErrNoActiveSession) {
			return nil
		}
		return err
	default:
		return nil
	}
}

// OnVoiceStateUpdate is the discordgo event handler.
func (monitor *Monitor) OnVoiceStateUpdate(_ *discordgo.Session, update *discordgo.VoiceStateUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := monitor.HandleVoiceStateUpdate(ctx, update); err != nil {
		monitor.logger.Error("voice state update failed",
			zap.String("user_id", update.UserID),
			zap.String("channel_id", update.ChannelID),
			zap.Error(err),
		)
	}
}

// Eligible reports whether userID is active in any cached guild. It implements accrual.EligibilityChecker.
func (monitor *Monitor) Eligible(_ context.Context, userID ledger.UserID) (bool, error) {
	for _, voiceState := range monitor.voiceStates() {
		if voiceState.UserID == userID.String() && !isBot(voiceState) && monitor.Active(voiceState) {
			return true, nil
		}
	}
	return false, nil
}

// ResumeActive opens sessions for members already active when the bot connects, since their join
// happened while nobody was listening. It returns how many sessions it opened.
func (monitor *Monitor) ResumeActive(ctx context.Context) (int, error) {
	opened := 0
	var errs []error
	for _, voiceState := range monitor.voiceStates() {
		if isBot(voiceState) || !monitor.Active(voiceState) {
			continue
		}
		userID, err := ledger.NewUserID(voiceState.UserID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		inserted, err := monitor.sessions.Start(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("resume %s: %w", userID, err))
			continue
		}
		if inserted {
			opened++
		}
	}
	return opened, errors.Join(errs...)
}

// voiceStates copies the cached voice states so callers do not hold the state lock.
func (monitor *Monitor) voiceStates() []*discordgo.VoiceState {
	monitor.state.RLock()
	defer monitor.state.RUnlock()
	var voiceStates []*discordgo.VoiceState
	for _, guild := range monitor.state.Guilds {
		for _, voiceState := range guild.VoiceStates {
			copied := *voiceState
			voiceStates = append(voiceStates, &copied)
		}
	}
	return voiceStates
}

func isBot(voiceState *discordgo.VoiceState) bool {
	return voiceState.Member != nil && voiceState.Member.User != nil && voiceState.Member.User.Bot
}
