package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/grixate/hunthelper/internal/channels"
	"github.com/grixate/hunthelper/internal/channels/telegram"
	"github.com/grixate/hunthelper/internal/config"
	"github.com/grixate/hunthelper/internal/digest"
	"github.com/grixate/hunthelper/internal/provision"
	"github.com/grixate/hunthelper/internal/reconcile"
	"github.com/grixate/hunthelper/internal/runtime/actor"
	"github.com/grixate/hunthelper/internal/server"
	"github.com/grixate/hunthelper/internal/storage"
	boltstore "github.com/grixate/hunthelper/internal/storage/bbolt"
	sqlitestore "github.com/grixate/hunthelper/internal/storage/sqlite"
	"github.com/grixate/hunthelper/internal/telemetry"
)

// Runtime wires the reconciler to its store, outbound services and the
// inbound HTTP surface. All access to the hunt state goes through one mailbox.
type Runtime struct {
	Config    config.Config
	Store     storage.Store
	Provision *provision.Client
	Engine    *reconcile.Engine
	Channels  *channels.Registry
	Digest    *digest.Service
	Server    *server.Server
	Metrics   *telemetry.Metrics

	log     *log.Logger
	mailbox *actor.Mailbox
	state   *reconcile.State
	now     func() time.Time
}

type gridUpdate struct {
	cells  []string
	solved []string
}

type actionUpdate struct {
	action reconcile.Action
}

type snapshotRequest struct{}

// OpenStore opens the configured state store backend.
func OpenStore(cfg config.Config) (storage.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", config.BackendBolt:
		return boltstore.Open(cfg.Storage.DBPath)
	case config.BackendSQLite:
		return sqlitestore.Open(cfg.Storage.DBPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// LoadState reads and decodes the persisted hunt state.
func LoadState(ctx context.Context, store storage.Store) (*reconcile.State, error) {
	data, err := store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return reconcile.DecodeState(data)
}

func BuildRuntime(cfg config.Config, logger *log.Logger) (*Runtime, error) {
	if logger == nil {
		logger = log.Default()
	}
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	runtime, err := buildWithStore(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return runtime, nil
}

func buildWithStore(cfg config.Config, store storage.Store, logger *log.Logger) (*Runtime, error) {
	metrics := &telemetry.Metrics{}
	state, err := LoadState(context.Background(), store)
	if err != nil {
		return nil, err
	}
	subs, err := config.LoadSubstitutions(cfg.Grid.SubstitutionsPath)
	if err != nil {
		return nil, err
	}

	client := provision.NewClient(cfg, logger, metrics)
	if !state.Credential.ExpiresAt.IsZero() {
		client.Tokens().Restore(state.Credential)
	}

	r := &Runtime{
		Config:    cfg,
		Store:     store,
		Provision: client,
		Metrics:   metrics,
		log:       logger,
		state:     state,
		now:       time.Now,
	}

	r.Channels = channels.NewRegistry(logger)
	if err := r.registerChannels(cfg); err != nil {
		return nil, err
	}

	r.Engine = reconcile.NewEngine(reconcile.Options{
		Provisioner:   client,
		Announcer:     r.Channels,
		Links:         reconcile.LinksFromConfig(cfg.Links),
		RootFolderID:  cfg.Drive.RootFolderID,
		Substitutions: subs,
		Logger:        logger,
		Metrics:       metrics,
	})

	if cfg.Digest.Enabled {
		svc, err := digest.NewService(cfg.Digest.Schedule, r.Snapshot, digestSink{r}, metrics, logger)
		if err != nil {
			return nil, fmt.Errorf("digest schedule: %w", err)
		}
		r.Digest = svc
	}

	r.mailbox = actor.NewMailbox(actor.HandlerFunc(r.handle), cfg.Runtime.MailboxSize)
	r.mailbox.SetPanicHook(func(rec any) {
		r.log.Printf("runtime: update panicked: %v", rec)
		client.Alert(context.Background(), fmt.Sprintf("update crashed: %v", rec))
	})

	r.Server = server.New(server.Options{
		Addr:          cfg.ListenAddr(),
		Path:          cfg.Server.Path,
		AuthTokenHash: cfg.Server.AuthTokenHash,
		Processor:     r,
		Metrics:       metrics,
		Logger:        logger,
	})
	return r, nil
}

func (r *Runtime) registerChannels(cfg config.Config) error {
	if strings.TrimSpace(cfg.Discord.AnnounceChannelID) != "" {
		if err := r.Channels.Register(channels.NewDiscordSink(r.Provision.Discord(), cfg.Discord.AnnounceChannelID)); err != nil {
			return err
		}
	} else {
		if err := r.Channels.Register(channels.NewNoopSink("announce", r.log)); err != nil {
			return err
		}
	}
	if cfg.Telegram.Enabled {
		if err := r.Channels.Register(telegram.New(cfg.Telegram, r.telegramCommand, r.log)); err != nil {
			return err
		}
	}
	return nil
}

// Serve runs until ctx is cancelled. Shutdown must be called afterwards.
func (r *Runtime) Serve(ctx context.Context) error {
	r.Channels.StartAll(ctx)
	r.Provision.LogEvent(ctx, "bot started")
	r.record(ctx, storage.EventStartup, "bot started")
	if r.Digest != nil {
		r.Digest.Start()
	}
	r.log.Printf("runtime: listening on %s%s", r.Config.ListenAddr(), r.Config.Server.Path)
	return r.Server.Start(ctx)
}

func (r *Runtime) Shutdown() error {
	if r.Digest != nil {
		r.Digest.Stop()
	}
	if err := r.mailbox.Stop(); err != nil {
		r.log.Printf("runtime: mailbox stop: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.Provision.LogEvent(ctx, "bot stopped")
	r.record(ctx, storage.EventShutdown, "bot stopped")
	return r.Store.Close()
}

func (r *Runtime) Grid(ctx context.Context, cells, solved []string) (string, error) {
	value, err := r.mailbox.Submit(ctx, gridUpdate{cells: cells, solved: solved}, true)
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (r *Runtime) Action(ctx context.Context, action reconcile.Action) (reconcile.ActionResult, error) {
	value, err := r.mailbox.Submit(ctx, actionUpdate{action: action}, true)
	if err != nil {
		return reconcile.ActionResult{}, err
	}
	return value.(reconcile.ActionResult), nil
}

// Snapshot reads digest counters through the mailbox so it never races an
// update in flight.
func (r *Runtime) Snapshot(ctx context.Context) (digest.Snapshot, error) {
	value, err := r.mailbox.Submit(ctx, snapshotRequest{}, true)
	if err != nil {
		return digest.Snapshot{}, err
	}
	return value.(digest.Snapshot), nil
}

func (r *Runtime) handle(ctx context.Context, payload any) (any, error) {
	// a sheet that gives up waiting must not abort provisioning half way
	ctx = context.WithoutCancel(ctx)
	r.Metrics.MailboxPending.Store(uint64(r.mailbox.Pending()))
	switch msg := payload.(type) {
	case gridUpdate:
		return r.applyGrid(ctx, msg)
	case actionUpdate:
		return r.applyAction(ctx, msg)
	case snapshotRequest:
		return SnapshotOf(r.state), nil
	default:
		return nil, fmt.Errorf("unexpected update %T", payload)
	}
}

func (r *Runtime) applyGrid(ctx context.Context, msg gridUpdate) (string, error) {
	solvedBefore := r.state.SolvedCount
	body, err := r.Engine.ApplyGrid(ctx, r.state, msg.cells, msg.solved)
	if err != nil {
		var invalid *reconcile.InvalidEditError
		if errors.As(err, &invalid) {
			r.record(ctx, storage.EventRejected, invalid.Error())
			return body, nil
		}
		return "", err
	}
	if err := r.persist(ctx); err != nil {
		return "", err
	}
	r.record(ctx, storage.EventGrid, fmt.Sprintf("grid with %d rows", len(msg.cells)))
	r.recordSolves(ctx, solvedBefore)
	return body, nil
}

func (r *Runtime) applyAction(ctx context.Context, msg actionUpdate) (reconcile.ActionResult, error) {
	solvedBefore := r.state.SolvedCount
	result, err := r.Engine.HandleAction(ctx, r.state, msg.action)
	if perr := r.persist(ctx); perr != nil {
		return reconcile.ActionResult{}, perr
	}
	if err != nil {
		var invalid *reconcile.InvalidEditError
		var unknown *reconcile.UnknownActionError
		if !errors.As(err, &invalid) && !errors.As(err, &unknown) {
			r.log.Printf("runtime: action %s failed: %v", msg.action.Action, err)
		}
		r.record(ctx, storage.EventRejected, fmt.Sprintf("%s %q: %v", msg.action.Action, msg.action.Name, err))
		return result, nil
	}
	r.record(ctx, storage.EventAction, describeAction(msg.action))
	r.recordSolves(ctx, solvedBefore)
	return result, nil
}

func (r *Runtime) persist(ctx context.Context) error {
	r.state.Credential = r.Provision.Tokens().Snapshot()
	data, err := r.state.Encode()
	if err == nil {
		err = r.Store.SaveState(ctx, data)
	}
	if err != nil {
		r.Metrics.PersistFailures.Add(1)
		r.log.Printf("runtime: persist state failed: %v", err)
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

func (r *Runtime) record(ctx context.Context, kind, summary string) {
	if _, err := r.Store.AppendEvent(ctx, storage.Event{Kind: kind, Summary: summary}); err != nil {
		r.log.Printf("runtime: append %s event failed: %v", kind, err)
	}
}

func (r *Runtime) recordSolves(ctx context.Context, before int) {
	if solved := r.state.SolvedCount - before; solved > 0 {
		r.record(ctx, storage.EventSolve, fmt.Sprintf("%d solved, %d total", solved, r.state.SolvedCount))
	}
}

func (r *Runtime) telegramCommand(ctx context.Context, command string) (string, error) {
	switch command {
	case "status":
		snap, err := r.Snapshot(ctx)
		if err != nil {
			return "", err
		}
		return digest.Render(snap, r.now()), nil
	case "help", "start":
		return "/status shows the current hunt counts", nil
	default:
		return "", nil
	}
}

// SnapshotOf summarizes a state for the digest and the status command.
func SnapshotOf(st *reconcile.State) digest.Snapshot {
	if st == nil || st.Tree == nil {
		return digest.Snapshot{}
	}
	return digest.Snapshot{
		Counts:       st.Tree.Counts(),
		SolvedCount:  st.SolvedCount,
		LastSolvedAt: st.LastSolvedAt,
		UpdatedAt:    st.UpdatedAt,
	}
}

func describeAction(a reconcile.Action) string {
	switch a.Action {
	case "rename":
		return fmt.Sprintf("rename %q -> %q in %q", a.OldName, a.Name, a.Round)
	case "solve":
		return fmt.Sprintf("solve %q in %q", a.Name, a.Round)
	default:
		return fmt.Sprintf("%s %q in %q", a.Action, a.Name, a.Round)
	}
}

// digestSink posts digests to the audit log channel.
type digestSink struct {
	r *Runtime
}

func (d digestSink) Announce(ctx context.Context, text string) {
	d.r.Provision.LogEvent(ctx, text)
	d.r.record(ctx, storage.EventDigest, text)
}
