// Package serverconfig keeps the runtime server settings that operators change without a restart.
package serverconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/access"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/gambling"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/payroll"
	"go.uber.org/zap"
)

// Keys stored in the server_config table.
const (
	KeyRewardPerMinute    = "vc_reward_per_minute"
	KeyRewardChannels     = "reward_channels"
	KeyRoleWages          = "role_wages"
	KeyAdminRoles         = "admin_roles"
	KeyPayrollAggregation = "payroll_aggregation"
	KeySlotMode           = "slot_mode"
	KeyTransferBlocklist  = "transfer_blocklist"
	KeyJackpotSponsor     = "jackpot_sponsor_id"
)

const defaultRewardPerMinute int64 = 10

var (
	// ErrUnknownKey indicates a key the registry does not manage.
	ErrUnknownKey = errors.New("unknown config key")
	// ErrInvalidValue indicates a value that does not decode or validate for its key.
	ErrInvalidValue = errors.New("invalid config value")
)

// Snapshot is an immutable view of the server settings. Callers must not mutate its maps or slices.
type Snapshot struct {
	RewardPerMinute    int64
	RewardChannels     []string
	RoleWages          map[payroll.RoleID]int64
	AdminRoles         map[string]access.Level
	PayrollAggregation payroll.Aggregation
	SlotMode           string
	TransferBlocklist  []ledger.UserID
	// JackpotSponsor receives the sponsor cut of lottery ticket sales. Zero means none.
	JackpotSponsor ledger.UserID
}

// DefaultSnapshot is what an empty server_config table yields.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		RewardPerMinute:    defaultRewardPerMinute,
		RewardChannels:     nil,
		RoleWages:          map[payroll.RoleID]int64{},
		AdminRoles:         map[string]access.Level{},
		PayrollAggregation: payroll.AggregateMax,
		SlotMode:           gambling.DefaultMode,
	}
}

// IsRewardChannel reports whether presence in channelID accrues rewards. No channel does until some are configured.
func (snapshot Snapshot) IsRewardChannel(channelID string) bool {
	return channelID != "" && slices.Contains(snapshot.RewardChannels, channelID)
}

// LevelForRoles returns the strongest level granted by any of roleIDs.
func (snapshot Snapshot) LevelForRoles(roleIDs []string) access.Level {
	level := access.LevelNone
	for _, roleID := range roleIDs {
		level = access.Highest(level, snapshot.AdminRoles[roleID])
	}
	return level
}

// TransferBlocked reports whether userID may not receive transfers.
func (snapshot Snapshot) TransferBlocked(userID ledger.UserID) bool {
	return slices.Contains(snapshot.TransferBlocklist, userID)
}

// Registry loads settings from a ConfigStore and serves them from an atomically swapped snapshot.
type Registry struct {
	store    ledger.ConfigStore
	logger   *zap.Logger
	current  atomic.Pointer[Snapshot]
	writeMux sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger routes decode warnings to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(registry *Registry) {
		if logger != nil {
			registry.logger = logger
		}
	}
}

// NewRegistry returns a Registry serving DefaultSnapshot until the first Reload.
func NewRegistry(store ledger.ConfigStore, options ...Option) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: config store is nil", ledger.ErrInvalidServiceConfig)
	}
	registry := &Registry{store: store, logger: zap.NewNop()}
	for _, option := range options {
		if option != nil {
			option(registry)
		}
	}
	defaults := DefaultSnapshot()
	registry.current.Store(&defaults)
	return registry, nil
}

// Snapshot returns the settings currently in force.
func (registry *Registry) Snapshot() Snapshot {
	return *registry.current.Load()
}

// Reload rebuilds the snapshot from the store. Rows that fail to decode keep their default and are logged.
func (registry *Registry) Reload(ctx context.Context) error {
	entries, err := registry.store.ListConfig(ctx)
	if err != nil {
		return fmt.Errorf("serverconfig reload: %w", err)
	}
	next := DefaultSnapshot()
	for _, entry := range entries {
		if applyErr := apply(&next, entry.Key, entry.Value); applyErr != nil {
			registry.logger.Warn("server config entry ignored",
				zap.String("key", entry.Key),
				zap.Error(applyErr),
			)
		}
	}
	registry.current.Store(&next)
	return nil
}

// Set validates value for key, persists it and publishes the new snapshot.
func (registry *Registry) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}
	return registry.SetRaw(ctx, key, raw)
}

// SetRaw is Set for an already encoded JSON value.
func (registry *Registry) SetRaw(ctx context.Context, key string, raw json.RawMessage) error {
	registry.writeMux.Lock()
	defer registry.writeMux.Unlock()

	next := registry.Snapshot()
	if err := apply(&next, key, raw); err != nil {
		return err
	}
	if err := registry.store.PutConfig(ctx, ledger.ConfigEntry{Key: key, Value: raw}); err != nil {
		return fmt.Errorf("serverconfig set %s: %w", key, err)
	}
	registry.current.Store(&next)
	return nil
}

// RewardPerMinute feeds the accrual tracker's rate.
func (registry *Registry) RewardPerMinute(context.Context) int64 {
	return registry.Snapshot().RewardPerMinute
}

// SlotMode feeds the gambling engine's reel selection.
func (registry *Registry) SlotMode(context.Context) string {
	return registry.Snapshot().SlotMode
}

// JackpotSponsor feeds the gambling engine's ticket sponsor.
func (registry *Registry) JackpotSponsor(context.Context) (ledger.UserID, bool) {
	sponsor := registry.Snapshot().JackpotSponsor
	return sponsor, !sponsor.IsZero()
}

// IsRewardChannel feeds the presence monitor.
func (registry *Registry) IsRewardChannel(channelID string) bool {
	return registry.Snapshot().IsRewardChannel(channelID)
}

// TransferBlocked feeds the transfer service's receiver filter.
func (registry *Registry) TransferBlocked(userID ledger.UserID) bool {
	return registry.Snapshot().TransferBlocked(userID)
}

func apply(snapshot *Snapshot, key string, raw []byte) error {
	var err error
	switch key {
	case KeyRewardPerMinute:
		err = decodeRewardPerMinute(snapshot, raw)
	case KeyRewardChannels:
		err = decodeRewardChannels(snapshot, raw)
	case KeyRoleWages:
		err = decodeRoleWages(snapshot, raw)
	case KeyAdminRoles:
		err = decodeAdminRoles(snapshot, raw)
	case KeyPayrollAggregation:
		err = decodeAggregation(snapshot, raw)
	case KeySlotMode:
		err = decodeSlotMode(snapshot, raw)
	case KeyTransferBlocklist:
		err = decodeBlocklist(snapshot, raw)
	case KeyJackpotSponsor:
		err = decodeSponsor(snapshot, raw)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}
	return nil
}

func decodeRewardPerMinute(snapshot *Snapshot, raw []byte) error {
	var rate int64
	if err := json.Unmarshal(raw, &rate); err != nil {
		return err
	}
	if rate < 0 {
		return errors.New("rate must not be negative")
	}
	snapshot.RewardPerMinute = rate
	return nil
}

func decodeRewardChannels(snapshot *Snapshot, raw []byte) error {
	var channels []string
	if err := json.Unmarshal(raw, &channels); err != nil {
		return err
	}
	slices.Sort(channels)
	snapshot.RewardChannels = slices.Compact(channels)
	return nil
}

func decodeRoleWages(snapshot *Snapshot, raw []byte) error {
	var wages map[payroll.RoleID]int64
	if err := json.Unmarshal(raw, &wages); err != nil {
		return err
	}
	for roleID, wage := range wages {
		if wage <= 0 {
			return fmt.Errorf("wage for role %s must be positive", roleID)
		}
	}
	if wages == nil {
		wages = map[payroll.RoleID]int64{}
	}
	snapshot.RoleWages = wages
	return nil
}

func decodeAdminRoles(snapshot *Snapshot, raw []byte) error {
	var roles map[string]access.Level
	if err := json.Unmarshal(raw, &roles); err != nil {
		return err
	}
	if roles == nil {
		roles = map[string]access.Level{}
	}
	snapshot.AdminRoles = roles
	return nil
}

func decodeAggregation(snapshot *Snapshot, raw []byte) error {
	var aggregation payroll.Aggregation
	if err := json.Unmarshal(raw, &aggregation); err != nil {
		return err
	}
	snapshot.PayrollAggregation = aggregation
	return nil
}

func decodeSlotMode(snapshot *Snapshot, raw []byte) error {
	var mode string
	if err := json.Unmarshal(raw, &mode); err != nil {
		return err
	}
	reel, err := gambling.ReelForMode(mode)
	if err != nil {
		return err
	}
	snapshot.SlotMode = reel.Mode
	return nil
}

func decodeBlocklist(snapshot *Snapshot, raw []byte) error {
	var rawIDs []string
	if err := json.Unmarshal(raw, &rawIDs); err != nil {
		return err
	}
	userIDs := make([]ledger.UserID, 0, len(rawIDs))
	for _, rawID := range rawIDs {
		userID, err := ledger.NewUserID(rawID)
		if err != nil {
			return err
		}
		userIDs = append(userIDs, userID)
	}
	snapshot.TransferBlocklist = userIDs
	return nil
}

// decodeSponsor accepts a user id, or an empty string to clear the sponsor.
func decodeSponsor(snapshot *Snapshot, raw []byte) error {
	var rawID string
	if err := json.Unmarshal(raw, &rawID); err != nil {
		return err
	}
	if rawID == "" {
		snapshot.JackpotSponsor = ledger.UserID{}
		return nil
	}
	userID, err := ledger.NewUserID(rawID)
	if err != nil {
		return err
	}
	if userID.IsSystem() {
		return fmt.Errorf("%w: %s", ledger.ErrDisallowedAccount, rawID)
	}
	snapshot.JackpotSponsor = userID
	return nil
}
