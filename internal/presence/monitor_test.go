package presence

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/MarkoPoloResearchLab/lumenbank/pkg/accrual"
	"github.com/MarkoPoloResearchLab/lumenbank/pkg/ledger"
	"github.com/bwmarrin/discordgo"
)

const (
	rewardChannel = "vc-reward"
	plainChannel  = "vc-plain"
)

type channelSet []string

func (channels channelSet) IsRewardChannel(channelID string) bool {
	return slices.Contains(channels, channelID)
}

type recordingTracker struct {
	mu        sync.Mutex
	open      map[string]bool
	starts    []string
	settles   []string
	failStart error
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{open: map[string]bool{}}
}

func (tracker *recordingTracker) Start(_ context.Context, userID ledger.UserID) (bool, error) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	if tracker.failStart != nil {
		return false, tracker.failStart
	}
	tracker.starts = append(tracker.starts, userID.String())
	if tracker.open[userID.String()] {
		return false, nil
	}
	tracker.open[userID.String()] = true
	return true, nil
}

func (tracker *recordingTracker) Settle(_ context.Context, userID ledger.UserID) (accrual.Settlement, error) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.settles = append(tracker.settles, userID.String())
	if !tracker.open[userID.String()] {
		return accrual.Settlement{}, ledger.ErrNoActiveSession
	}
	delete(tracker.open, userID.String())
	return accrual.Settlement{UserID: userID}, nil
}

func voiceState(userID string, channelID string) *discordgo.VoiceState {
	return &discordgo.VoiceState{GuildID: "guild", UserID: userID, ChannelID: channelID}
}

func botVoiceState(userID string, channelID string) *discordgo.VoiceState {
	state := voiceState(userID, channelID)
	state.Member = &discordgo.Member{User: &discordgo.User{ID: userID, Bot: true}}
	return state
}

func mustMonitor(test *testing.T, tracker SessionTracker, voiceStates ...*discordgo.VoiceState) *Monitor {
	test.Helper()
	state := discordgo.NewState()
	if err := state.GuildAdd(&discordgo.Guild{ID: "guild", VoiceStates: voiceStates}); err != nil {
		test.Fatalf("guild add: %v", err)
	}
	monitor, err := NewMonitor(tracker, channelSet{rewardChannel}, state, nil)
	if err != nil {
		test.Fatalf("new monitor: %v", err)
	}
	return monitor
}

func TestActive(test *testing.T) {
	test.Parallel()
	monitor := mustMonitor(test, newRecordingTracker())
	selfDeaf := voiceState("alice", rewardChannel)
	selfDeaf.SelfDeaf = true
	serverDeaf := voiceState("alice", rewardChannel)
	serverDeaf.Deaf = true
	muted := voiceState("alice", rewardChannel)
	muted.SelfMute = true

	testCases := []struct {
		name  string
		state *discordgo.VoiceState
		want  bool
	}{
		{name: "nil", state: nil, want: false},
		{name: "disconnected", state: voiceState("alice", ""), want: false},
		{name: "reward channel", state: voiceState("alice", rewardChannel), want: true},
		{name: "plain channel", state: voiceState("alice", plainChannel), want: false},
		{name: "self deafened", state: selfDeaf, want: false},
		{name: "server deafened", state: serverDeaf, want: false},
		{name: "muted still counts", state: muted, want: true},
	}
	for _, testCase := range testCases {
		if got := monitor.Active(testCase.state); got != testCase.want {
			test.Fatalf("%s: Active = %v, want %v", testCase.name, got, testCase.want)
		}
	}
}

func TestHandleVoiceStateUpdateTransitions(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	tracker := newRecordingTracker()
	monitor := mustMonitor(test, tracker)

	deafened := voiceState("alice", rewardChannel)
	deafened.SelfDeaf = true

	steps := []*discordgo.VoiceStateUpdate{
		{VoiceState: voiceState("alice", plainChannel), BeforeUpdate: nil},
		{VoiceState: voiceState("alice", rewardChannel), BeforeUpdate: voiceState("alice", plainChannel)},
		{VoiceState: voiceState("alice", rewardChannel), BeforeUpdate: voiceState("alice", rewardChannel)},
		{VoiceState: deafened, BeforeUpdate: voiceState("alice", rewardChannel)},
		{VoiceState: voiceState("alice", rewardChannel), BeforeUpdate: deafened},
		{VoiceState: voiceState("alice", ""), BeforeUpdate: voiceState("alice", rewardChannel)},
		{VoiceState: botVoiceState("robot", rewardChannel)},
	}
	for index, step := range steps {
		if err := monitor.HandleVoiceStateUpdate(ctx, step); err != nil {
			test.Fatalf("step %d: %v", index, err)
		}
	}
	if !slices.Equal(tracker.starts, []string{"alice", "alice"}) {
		test.Fatalf("starts = %v", tracker.starts)
	}
	if !slices.Equal(tracker.settles, []string{"alice", "alice"}) {
		test.Fatalf("settles = %v", tracker.settles)
	}
	if len(tracker.open) != 0 {
		test.Fatalf("sessions left open: %v", tracker.open)
	}
}

func TestSettleWithoutSessionIsIgnored(test *testing.T) {
	test.Parallel()
	tracker := newRecordingTracker()
	monitor := mustMonitor(test, tracker)
	update := &discordgo.VoiceStateUpdate{VoiceState: voiceState("bob", ""), BeforeUpdate: voiceState("bob", rewardChannel)}
	if err := monitor.HandleVoiceStateUpdate(context.Background(), update); err != nil {
		test.Fatalf("expected missing session to be ignored, got %v", err)
	}
}

func TestEligibleReadsCachedState(test *testing.T) {
	test.Parallel()
	deafened := voiceState("carol", rewardChannel)
	deafened.Deaf = true
	monitor := mustMonitor(test, newRecordingTracker(),
		voiceState("alice", rewardChannel),
		voiceState("bob", plainChannel),
		deafened,
		botVoiceState("robot", rewardChannel),
	)
	testCases := map[string]bool{"alice": true, "bob": false, "carol": false, "robot": false, "dave": false}
	for rawID, want := range testCases {
		userID, err := ledger.NewUserID(rawID)
		if err != nil {
			test.Fatalf("user id: %v", err)
		}
		got, err := monitor.Eligible(context.Background(), userID)
		if err != nil {
			test.Fatalf("eligible %s: %v", rawID, err)
		}
		if got != want {
			test.Fatalf("Eligible(%s) = %v, want %v", rawID, got, want)
		}
	}
}

func TestResumeActiveOpensMissingSessions(test *testing.T) {
	test.Parallel()
	tracker := newRecordingTracker()
	tracker.open["alice"] = true
	monitor := mustMonitor(test, tracker,
		voiceState("alice", rewardChannel),
		voiceState("bob", rewardChannel),
		voiceState("carol", plainChannel),
	)
	opened, err := monitor.ResumeActive(context.Background())
	if err != nil {
		test.Fatalf("resume: %v", err)
	}
	if opened != 1 || !tracker.open["bob"] || tracker.open["carol"] {
		test.Fatalf("opened = %d, sessions = %v", opened, tracker.open)
	}

	failing := newRecordingTracker()
	failing.failStart = errors.New("store down")
	monitor = mustMonitor(test, failing, voiceState("alice", rewardChannel))
	if _, err := monitor.ResumeActive(context.Background()); err == nil {
		test.Fatalf("expected start failure to surface")
	}
}

func TestNewMonitorValidatesDependencies(test *testing.T) {
	test.Parallel()
	state := discordgo.NewState()
	if _, err := NewMonitor(nil, channelSet{}, state, nil); !errors.Is(err, ledger.ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid config for nil tracker, got %v", err)
	}
	if _, err := NewMonitor(newRecordingTracker(), nil, state, nil); !errors.Is(err, ledger.ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid config for nil policy, got %v", err)
	}
	if _, err := NewMonitor(newRecordingTracker(), channelSet{}, nil, nil); !errors.Is(err, ledger.ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid config for nil state, got %v", err)
	}
}
