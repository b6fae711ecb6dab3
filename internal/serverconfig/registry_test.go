package serverconfig

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MarkoPoloResearchLab/lumenbank/internal/access"
	"github.com/MarkoPoloResearchLab/lumenbank/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/payroll"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestStore(test *testing.T) *gormstore.Store {
	test.Helper()
	db, err := gormstore.OpenSQLite(filepath.Join(test.TempDir(), "config.db"))
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	if err := gormstore.Migrate(db); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	test.Cleanup(func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	})
	return gormstore.New(db)
}

func mustRegistry(test *testing.T, store ledger.ConfigStore, options ...Option) *Registry {
	test.Helper()
	registry, err := NewRegistry(store, options...)
	if err != nil {
		test.Fatalf("new registry: %v", err)
	}
	return registry
}

func mustUserID(test *testing.T, raw string) ledger.UserID {
	test.Helper()
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func TestRegistryServesDefaultsBeforeReload(test *testing.T) {
	test.Parallel()
	registry := mustRegistry(test, newTestStore(test))
	snapshot := registry.Snapshot()
	if snapshot.RewardPerMinute != defaultRewardPerMinute {
		test.Fatalf("reward per minute = %d", snapshot.RewardPerMinute)
	}
	if snapshot.PayrollAggregation != payroll.AggregateMax {
		test.Fatalf("aggregation = %s", snapshot.PayrollAggregation)
	}
	if snapshot.SlotMode != "4" {
		test.Fatalf("slot mode = %q", snapshot.SlotMode)
	}
	if snapshot.IsRewardChannel("any-channel") {
		test.Fatalf("no channel should reward before any is configured")
	}
}

func TestRegistrySetPersistsAndReloads(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	store := newTestStore(test)
	registry := mustRegistry(test, store)

	settings := []struct {
		key   string
		value any
	}{
		{key: KeyRewardPerMinute, value: 50},
		{key: KeyRewardChannels, value: []string{"vc-2", "vc-1", "vc-2"}},
		{key: KeyRoleWages, value: map[string]int64{"mods": 500, "vip": 200}},
		{key: KeyAdminRoles, value: map[string]string{"mods": "admin", "owners": "supreme_god"}},
		{key: KeyPayrollAggregation, value: "sum"},
		{key: KeySlotMode, value: "L"},
		{key: KeyTransferBlocklist, value: []string{"bank-bot"}},
	}
	for _, setting := range settings {
		if err := registry.Set(ctx, setting.key, setting.value); err != nil {
			test.Fatalf("set %s: %v", setting.key, err)
		}
	}

	reloaded := mustRegistry(test, store)
	if err := reloaded.Reload(ctx); err != nil {
		test.Fatalf("reload: %v", err)
	}
	for _, registryUnderTest := range []*Registry{registry, reloaded} {
		snapshot := registryUnderTest.Snapshot()
		if snapshot.RewardPerMinute != 50 {
			test.Fatalf("reward per minute = %d", snapshot.RewardPerMinute)
		}
		if len(snapshot.RewardChannels) != 2 || !snapshot.IsRewardChannel("vc-1") || snapshot.IsRewardChannel("lobby") {
			test.Fatalf("reward channels = %v", snapshot.RewardChannels)
		}
		if snapshot.RoleWages["mods"] != 500 || snapshot.RoleWages["vip"] != 200 {
			test.Fatalf("role wages = %v", snapshot.RoleWages)
		}
		if got := snapshot.LevelForRoles([]string{"vip", "mods"}); got != access.LevelAdmin {
			test.Fatalf("level for roles = %s", got)
		}
		if got := snapshot.LevelForRoles([]string{"owners"}); got != access.LevelSupremeGod {
			test.Fatalf("level for owners = %s", got)
		}
		if snapshot.PayrollAggregation != payroll.AggregateSum {
			test.Fatalf("aggregation = %s", snapshot.PayrollAggregation)
		}
		if registryUnderTest.SlotMode(ctx) != "L" {
			test.Fatalf("slot mode = %q", snapshot.SlotMode)
		}
		if !registryUnderTest.TransferBlocked(mustUserID(test, "bank-bot")) {
			test.Fatalf("bank-bot should be blocked")
		}
		if registryUnderTest.TransferBlocked(mustUserID(test, "alice")) {
			test.Fatalf("alice should not be blocked")
		}
	}
}

func TestRegistrySetRejectsInvalidValues(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		key     string
		value   any
		wantErr error
	}{
		{name: "unknown key", key: "dark_mode", value: true, wantErr: ErrUnknownKey},
		{name: "negative rate", key: KeyRewardPerMinute, value: -1, wantErr: ErrInvalidValue},
		{name: "zero wage", key: KeyRoleWages, value: map[string]int64{"mods": 0}, wantErr: ErrInvalidValue},
		{name: "unknown level", key: KeyAdminRoles, value: map[string]string{"mods": "emperor"}, wantErr: ErrInvalidValue},
		{name: "unknown aggregation", key: KeyPayrollAggregation, value: "median", wantErr: ErrInvalidValue},
		{name: "unknown slot mode", key: KeySlotMode, value: "9", wantErr: ErrInvalidValue},
		{name: "blank blocklist id", key: KeyTransferBlocklist, value: []string{" "}, wantErr: ErrInvalidValue},
		{name: "wrong json shape", key: KeyRewardChannels, value: 12, wantErr: ErrInvalidValue},
		{name: "system sponsor", key: KeyJackpotSponsor, value: "system", wantErr: ErrInvalidValue},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newTestStore(test)
			registry := mustRegistry(test, store)
			err := registry.Set(context.Background(), testCase.key, testCase.value)
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("Set error = %v, want %v", err, testCase.wantErr)
			}
			entries, listErr := store.ListConfig(context.Background())
			if listErr != nil {
				test.Fatalf("list config: %v", listErr)
			}
			if len(entries) != 0 {
				test.Fatalf("rejected value was persisted: %v", entries)
			}
		})
	}
}

func TestRegistryJackpotSponsor(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	store := newTestStore(test)
	registry := mustRegistry(test, store)

	if _, ok := registry.JackpotSponsor(ctx); ok {
		test.Fatalf("expected no sponsor by default")
	}
	if err := registry.Set(ctx, KeyJackpotSponsor, "Patron"); err != nil {
		test.Fatalf("set sponsor: %v", err)
	}
	reloaded := mustRegistry(test, store)
	if err := reloaded.Reload(ctx); err != nil {
		test.Fatalf("reload: %v", err)
	}
	sponsor, ok := reloaded.JackpotSponsor(ctx)
	if !ok || sponsor != mustUserID(test, "Patron") {
		test.Fatalf("expected persisted sponsor, got %v %t", sponsor, ok)
	}
	if err := registry.Set(ctx, KeyJackpotSponsor, ""); err != nil {
		test.Fatalf("clear sponsor: %v", err)
	}
	if _, ok := registry.JackpotSponsor(ctx); ok {
		test.Fatalf("expected sponsor cleared")
	}
}

func TestRegistryReloadSkipsBadRows(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	store := newTestStore(test)
	if err := store.PutConfig(ctx, ledger.ConfigEntry{Key: KeyRewardPerMinute, Value: []byte(`"lots"`)}); err != nil {
		test.Fatalf("put config: %v", err)
	}
	if err := store.PutConfig(ctx, ledger.ConfigEntry{Key: KeySlotMode, Value: []byte(`"2"`)}); err != nil {
		test.Fatalf("put config: %v", err)
	}

	core, logs := observer.New(zap.WarnLevel)
	registry := mustRegistry(test, store, WithLogger(zap.New(core)))
	if err := registry.Reload(ctx); err != nil {
		test.Fatalf("reload: %v", err)
	}
	snapshot := registry.Snapshot()
	if snapshot.RewardPerMinute != defaultRewardPerMinute {
		test.Fatalf("bad row should keep default, got %d", snapshot.RewardPerMinute)
	}
	if snapshot.SlotMode != "2" {
		test.Fatalf("slot mode = %q", snapshot.SlotMode)
	}
	if logs.FilterField(zap.String("key", KeyRewardPerMinute)).Len() != 1 {
		test.Fatalf("expected one warning for the bad row, got %d entries", logs.Len())
	}
}

func TestNewRegistryRequiresStore(test *testing.T) {
	test.Parallel()
	if _, err := NewRegistry(nil); !errors.Is(err, ledger.ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}
