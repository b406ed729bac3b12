package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBot struct {
	mu      sync.Mutex
	status  Status
	logs    []LogEntry
	started StartParams
	calls   map[string]int
}

func newFakeBot() *fakeBot {
	return &fakeBot{calls: map[string]int{}}
}

func (f *fakeBot) setStatus(fn func(*Status)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.status)
}

func (f *fakeBot) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeBot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.URL.Path]++
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/bot/info":
		_ = json.NewEncoder(w).Encode(Info{WalletAddress: "0xbot", Network: "sepolia"})
	case "/bot/status":
		_ = json.NewEncoder(w).Encode(f.status)
	case "/bot/logs":
		since, _ := strconv.ParseFloat(r.URL.Query().Get("since"), 64)
		var out []LogEntry
		for _, e := range f.logs {
			if e.TS > since {
				out = append(out, e)
			}
		}
		_ = json.NewEncoder(w).Encode(logsResponse{Logs: out})
	case "/bot/start":
		if f.status.IsRunning {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(messageResponse{Status: "error", Message: "Bot is already running"})
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.started)
		f.status.IsRunning = true
		_ = json.NewEncoder(w).Encode(messageResponse{Status: "ok", Message: "Bot started"})
	case "/bot/stop":
		f.status.IsRunning = false
		_ = json.NewEncoder(w).Encode(messageResponse{Status: "ok", Message: "Bot stopping"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type withdrawCall struct {
	amount, recipient string
}

type fakeController struct {
	mu    sync.Mutex
	snap  session.Snapshot
	calls []withdrawCall
	fail  atomic.Int32
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Withdraw(_ context.Context, amount, recipient string) (*model.ActionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, withdrawCall{amount, recipient})
	f.mu.Unlock()
	if f.fail.Load() > 0 {
		f.fail.Add(-1)
		return nil, apperrors.New(apperrors.ErrChainRevert, "Vault balance is insufficient.", errors.New("revert"))
	}
	return &model.ActionResult{Status: "ok", CallID: "0xcall"}, nil
}

func (f *fakeController) withdrawals() []withdrawCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]withdrawCall(nil), f.calls...)
}

func readySnapshot(expired bool) session.Snapshot {
	return session.Snapshot{
		ConnectedAddress:    "0x00000000000000000000000000000000000000aa",
		SmartAccountAddress: "0x00000000000000000000000000000000000000bb",
		SessionKey: &session.KeyView{
			Address:   "0x00000000000000000000000000000000000000cc",
			ExpiresAt: time.Unix(2_000_000_000, 0),
			Expired:   expired,
			HasGrant:  true,
		},
	}
}

func newTestBridge(t *testing.T, bot *fakeBot, ctrl *fakeController) *Bridge {
	t.Helper()
	srv := httptest.NewServer(bot)
	t.Cleanup(srv.Close)
	b := NewBridge(NewClient(srv.URL, time.Second), ctrl, Options{
		VaultAddress:   "0x00000000000000000000000000000000000000dd",
		StatusInterval: 10 * time.Millisecond,
		LogsInterval:   10 * time.Millisecond,
		LogBuffer:      3,
	})
	t.Cleanup(b.Close)
	return b
}

func TestStartSendsSessionParams(t *testing.T) {
	bot := newFakeBot()
	ctrl := &fakeController{snap: readySnapshot(false)}
	b := newTestBridge(t, bot, ctrl)

	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, StateRunning, b.View().State)

	bot.mu.Lock()
	started := bot.started
	bot.mu.Unlock()
	require.NotNil(t, started.SessionKeyExpiry)
	assert.Equal(t, int64(2_000_000_000), *started.SessionKeyExpiry)
	assert.Equal(t, "0x00000000000000000000000000000000000000cc", started.SessionKeyAddress)
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", started.SmartAccountAddress)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", started.BotRecipientAddress)
	assert.Equal(t, "0x00000000000000000000000000000000000000dd", started.VaultAddress)

	err := b.Start(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrBusy))

	require.NoError(t, b.Stop(context.Background()))
	assert.Equal(t, StateStopped, b.View().State)
	assert.False(t, b.View().Polling)
}

func TestStartRejectsExpiredKey(t *testing.T) {
	bot := newFakeBot()
	b := newTestBridge(t, bot, &fakeController{snap: readySnapshot(true)})

	err := b.Start(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrAuthFailed))
	assert.Zero(t, bot.count("/bot/start"))
}

func TestPendingWithdrawalHandledOnce(t *testing.T) {
	bot := newFakeBot()
	ctrl := &fakeController{snap: readySnapshot(false)}
	b := newTestBridge(t, bot, ctrl)
	require.NoError(t, b.Start(context.Background()))

	bot.setStatus(func(s *Status) {
		s.PendingWithdraw = &PendingWithdraw{AmountWei: "1000", Reason: "buy", RecipientAddress: "0x00000000000000000000000000000000000000ee"}
	})
	require.Eventually(t, func() bool { return len(ctrl.withdrawals()) == 1 }, time.Second, 5*time.Millisecond)

	// Several more polls with the same request must not withdraw again.
	time.Sleep(50 * time.Millisecond)
	calls := ctrl.withdrawals()
	require.Len(t, calls, 1)
	assert.Equal(t, withdrawCall{"1000", "0x00000000000000000000000000000000000000ee"}, calls[0])
}

func TestPendingWithdrawalRetriesAfterFailure(t *testing.T) {
	bot := newFakeBot()
	ctrl := &fakeController{snap: readySnapshot(false)}
	ctrl.fail.Store(1)
	b := newTestBridge(t, bot, ctrl)
	require.NoError(t, b.Start(context.Background()))

	recipient := "0x00000000000000000000000000000000000000ff"
	bot.setStatus(func(s *Status) {
		s.BotRecipientAddress = &recipient
		s.PendingWithdraw = &PendingWithdraw{AmountWei: "7", Reason: "sell"}
	})
	require.Eventually(t, func() bool { return len(ctrl.withdrawals()) == 2 }, time.Second, 5*time.Millisecond)

	calls := ctrl.withdrawals()
	assert.Equal(t, recipient, calls[0].recipient, "bot recipient is the first fallback")
	assert.Equal(t, calls[0], calls[1])
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, ctrl.withdrawals(), 2)
}

func TestPendingWithdrawalFallsBackToCaller(t *testing.T) {
	bot := newFakeBot()
	ctrl := &fakeController{snap: readySnapshot(false)}
	b := newTestBridge(t, bot, ctrl)
	require.NoError(t, b.Start(context.Background()))

	bot.setStatus(func(s *Status) { s.PendingWithdraw = &PendingWithdraw{AmountWei: "9", Reason: "buy"} })
	require.Eventually(t, func() bool { return len(ctrl.withdrawals()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", ctrl.withdrawals()[0].recipient)
}

func TestExpiryStopsPolling(t *testing.T) {
	bot := newFakeBot()
	ctrl := &fakeController{snap: readySnapshot(false)}
	b := newTestBridge(t, bot, ctrl)
	require.NoError(t, b.Start(context.Background()))

	bot.setStatus(func(s *Status) { s.SessionKeyExpired = true })
	require.Eventually(t, func() bool { return b.View().State == StateStopped }, time.Second, 5*time.Millisecond)

	v := b.View()
	assert.Equal(t, expiredWarning, v.Warning)
	assert.False(t, v.Polling)

	// No further status polls once stopped.
	time.Sleep(20 * time.Millisecond)
	n := bot.count("/bot/status")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, bot.count("/bot/status"))
}

func TestLogsAreDedupedAndBounded(t *testing.T) {
	bot := newFakeBot()
	bot.logs = []LogEntry{{TS: 1, Msg: "a"}, {TS: 2, Msg: "b"}, {TS: 2, Msg: "b"}, {TS: 3, Msg: "c"}, {TS: 4, Msg: "d"}}
	b := newTestBridge(t, bot, &fakeController{})

	b.fetchLogs(context.Background())
	b.fetchLogs(context.Background())

	logs := b.View().Logs
	require.Len(t, logs, 3)
	assert.Equal(t, []string{"b", "c", "d"}, []string{logs[0].Msg, logs[1].Msg, logs[2].Msg})
}

func TestClientSurfacesBotMessages(t *testing.T) {
	bot := newFakeBot()
	bot.status.IsRunning = true
	srv := httptest.NewServer(bot)
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).Start(context.Background(), StartParams{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrBusy))
	assert.Contains(t, err.Error(), "Bot is already running")
}

func TestClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("", time.Second).Status(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig))
}
