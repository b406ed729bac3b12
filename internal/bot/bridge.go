package bot

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/apperrors"
	"github.com/agentvault/sessiongate/internal/pkg/logger"
	"github.com/agentvault/sessiongate/internal/pkg/metrics"
	"github.com/agentvault/sessiongate/internal/session"
)

type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

const expiredWarning = "Session key expired. The agent has stopped. Issue a new session key to continue."

// Controller is the slice of the session controller the bridge drives.
type Controller interface {
	Snapshot() session.Snapshot
	Withdraw(ctx context.Context, amountWei, recipient string) (*model.ActionResult, error)
}

type API interface {
	Info(ctx context.Context) (*Info, error)
	Status(ctx context.Context) (*Status, error)
	Logs(ctx context.Context, since float64) ([]LogEntry, error)
	Start(ctx context.Context, params StartParams) error
	Stop(ctx context.Context) error
}

type Options struct {
	VaultAddress   string
	StatusInterval time.Duration
	LogsInterval   time.Duration
	LogBuffer      int
}

// View is what the dashboard shows for the bot.
type View struct {
	State           State      `json:"state"`
	Info            *Info      `json:"info,omitempty"`
	Status          *Status    `json:"status,omitempty"`
	Logs            []LogEntry `json:"logs"`
	Warning         string     `json:"warning,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	PendingInflight string     `json:"pending_inflight,omitempty"`
	Polling         bool       `json:"polling"`
}

// Bridge owns the bot's lifecycle as seen from the dashboard. Polling
// goroutines live under the bridge's own context and end on Stop, on
// session-key expiry, when the bot reports it stopped, or on Close.
type Bridge struct {
	api     API
	ctrl    Controller
	opts    Options
	pending PendingTracker
	log     *slog.Logger

	root     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu         sync.Mutex
	state      State
	info       *Info
	status     *Status
	logs       []LogEntry
	seen       map[string]struct{}
	lastLogTS  float64
	warning    string
	lastError  string
	pollCancel context.CancelFunc
}

func NewBridge(api API, ctrl Controller, opts Options) *Bridge {
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 5 * time.Second
	}
	if opts.LogsInterval <= 0 {
		opts.LogsInterval = 1500 * time.Millisecond
	}
	if opts.LogBuffer <= 0 {
		opts.LogBuffer = 300
	}
	root, cancel := context.WithCancel(context.Background())
	return &Bridge{
		api:      api,
		ctrl:     ctrl,
		opts:     opts,
		log:      logger.Component("bot_bridge"),
		root:     root,
		shutdown: cancel,
		state:    StateStopped,
		seen:     make(map[string]struct{}),
	}
}

// Sync loads bot info and status and resumes polling if the bot is already
// running.
func (b *Bridge) Sync(ctx context.Context) error {
	info, err := b.api.Info(ctx)
	if err != nil {
		b.setError(err)
	} else {
		b.mu.Lock()
		b.info = info
		b.mu.Unlock()
	}

	st, err := b.api.Status(ctx)
	if err != nil {
		b.setError(err)
		return err
	}
	if st.IsRunning {
		b.mu.Lock()
		b.status = st
		b.transitionLocked(StateRunning)
		b.mu.Unlock()
		b.startPolling()
		return nil
	}
	b.mu.Lock()
	b.status = st
	b.mu.Unlock()
	b.fetchLogs(ctx)
	return nil
}

// Start launches the bot with the current session key, smart account and
// recipient.
func (b *Bridge) Start(ctx context.Context) error {
	snap := b.ctrl.Snapshot()
	if snap.SessionKey != nil && snap.SessionKey.Expired {
		return apperrors.New(apperrors.ErrAuthFailed, "Session key expired. Issue a new session key before starting the bot.", nil)
	}

	b.mu.Lock()
	if b.state != StateStopped {
		current := b.state
		b.mu.Unlock()
		return apperrors.New(apperrors.ErrBusy, "Bot is already "+string(current)+".", nil)
	}
	b.transitionLocked(StateStarting)
	b.warning, b.lastError = "", ""
	b.mu.Unlock()

	if err := b.api.Start(ctx, b.startParams(snap)); err != nil {
		b.mu.Lock()
		b.transitionLocked(StateStopped)
		b.lastError = apperrors.Wrap(err).Message
		b.mu.Unlock()
		return err
	}

	if st, err := b.api.Status(ctx); err == nil {
		b.mu.Lock()
		b.status = st
		b.mu.Unlock()
	}

	b.mu.Lock()
	b.transitionLocked(StateRunning)
	b.lastLogTS = 0
	b.mu.Unlock()
	b.startPolling()
	b.log.Info("bot started", "smart_account", snap.SmartAccountAddress)
	return nil
}

func (b *Bridge) Stop(ctx context.Context) error {
	if err := b.api.Stop(ctx); err != nil {
		b.setError(err)
		return err
	}
	b.stopPolling()
	b.mu.Lock()
	b.transitionLocked(StateStopped)
	b.mu.Unlock()

	if st, err := b.api.Status(ctx); err == nil {
		b.mu.Lock()
		b.status = st
		b.mu.Unlock()
	}
	b.log.Info("bot stopped")
	return nil
}

func (b *Bridge) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := View{
		State:     b.state,
		Info:      b.info,
		Status:    b.status,
		Logs:      append([]LogEntry(nil), b.logs...),
		Warning:   b.warning,
		LastError: b.lastError,
		Polling:   b.pollCancel != nil,
	}
	if key, ok := b.pending.Inflight(); ok {
		v.PendingInflight = key
	}
	return v
}

// Close stops polling and waits for the pollers to exit.
func (b *Bridge) Close() {
	b.shutdown()
	b.wg.Wait()
}

func (b *Bridge) startParams(snap session.Snapshot) StartParams {
	p := StartParams{
		VaultAddress:        b.opts.VaultAddress,
		SmartAccountAddress: snap.SmartAccountAddress,
		BotRecipientAddress: snap.ConnectedAddress,
	}
	if snap.SessionKey != nil {
		exp := snap.SessionKey.ExpiresAt.Unix()
		p.SessionKeyExpiry = &exp
		p.SessionKeyAddress = snap.SessionKey.Address
	}
	return p
}

func (b *Bridge) startPolling() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pollCancel != nil || b.root.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(b.root)
	b.pollCancel = cancel

	b.wg.Add(2)
	go b.pollStatus(ctx)
	go b.pollLogs(ctx)
}

func (b *Bridge) stopPolling() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopPollingLocked()
}

func (b *Bridge) stopPollingLocked() {
	if b.pollCancel != nil {
		b.pollCancel()
		b.pollCancel = nil
	}
}

func (b *Bridge) pollStatus(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := b.api.Status(ctx)
			if err != nil {
				if ctx.Err() == nil {
					b.setError(err)
				}
				continue
			}
			b.handleStatus(ctx, st)
		}
	}
}

func (b *Bridge) pollLogs(ctx context.Context) {
	defer b.wg.Done()
	b.fetchLogs(ctx)
	ticker := time.NewTicker(b.opts.LogsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.fetchLogs(ctx)
		}
	}
}

// handleStatus applies one polled status: expiry and bot-side stops end
// polling, and a pending withdrawal is fed to the controller.
func (b *Bridge) handleStatus(ctx context.Context, st *Status) {
	snap := b.ctrl.Snapshot()
	expired := st.SessionKeyExpired || (snap.SessionKey != nil && snap.SessionKey.Expired)

	b.mu.Lock()
	b.status = st
	switch {
	case expired:
		b.warning = expiredWarning
		b.transitionLocked(StateStopped)
		b.stopPollingLocked()
		b.mu.Unlock()
		b.log.Warn("session key expired, bot polling stopped")
		return
	case !st.IsRunning:
		if st.StopReason != nil {
			b.warning = *st.StopReason
		}
		b.transitionLocked(StateStopped)
		b.stopPollingLocked()
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if st.PendingWithdraw == nil {
		b.pending.Clear()
		return
	}
	b.handlePending(ctx, *st.PendingWithdraw, st.BotRecipientAddress, snap)
}

func (b *Bridge) handlePending(ctx context.Context, pw PendingWithdraw, botRecipient *string, snap session.Snapshot) {
	recipient := pw.RecipientAddress
	if recipient == "" && botRecipient != nil {
		recipient = *botRecipient
	}
	if recipient == "" {
		recipient = snap.ConnectedAddress
	}
	if recipient == "" {
		return
	}

	key := pw.Key()
	if !b.pending.Claim(key) {
		return
	}
	b.log.Info("bot requested withdrawal", "amount_wei", pw.AmountWei, "reason", pw.Reason, "recipient", recipient)

	if _, err := b.ctrl.Withdraw(ctx, pw.AmountWei, recipient); err != nil {
		b.pending.Failed(key)
		b.setError(err)
		metrics.PendingWithdrawals.WithLabelValues(model.OutcomeFailed).Inc()
		b.log.Warn("bot withdrawal failed, will retry", "reason", pw.Reason, "error", apperrors.Wrap(err).Message)
		return
	}
	b.pending.Succeeded(key)
	metrics.PendingWithdrawals.WithLabelValues(model.OutcomeOK).Inc()
}

func (b *Bridge) fetchLogs(ctx context.Context) {
	b.mu.Lock()
	since := b.lastLogTS
	b.mu.Unlock()

	entries, err := b.api.Logs(ctx, since)
	if err != nil || len(entries) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range entries {
		if e.TS > b.lastLogTS {
			b.lastLogTS = e.TS
		}
		id := logID(e)
		if _, dup := b.seen[id]; dup {
			continue
		}
		b.seen[id] = struct{}{}
		b.logs = append(b.logs, e)
	}
	if over := len(b.logs) - b.opts.LogBuffer; over > 0 {
		for _, e := range b.logs[:over] {
			delete(b.seen, logID(e))
		}
		b.logs = append([]LogEntry(nil), b.logs[over:]...)
	}
}

func logID(e LogEntry) string {
	return strconv.FormatFloat(e.TS, 'f', -1, 64) + "-" + e.Msg
}

func (b *Bridge) transitionLocked(to State) {
	if b.state == to {
		return
	}
	b.state = to
	metrics.BotTransitions.WithLabelValues(string(to)).Inc()
}

func (b *Bridge) setError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastError = apperrors.Wrap(err).Message
}
