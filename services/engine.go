package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"wordins/internal"
	"wordins/runtime"
	"wordins/store"
)

// Engine wires the store and the four controllers together and runs the
// background maintenance under a supervisor. It is what a UI shell
// instantiates; every operation still takes an explicit identity.
type Engine struct {
	Membership IMembershipService
	Messages   IMessageService
	Presence   IPresenceService
	Directory  IDirectoryService

	store      *store.Badger
	supervisor *runtime.Supervisor
	log        *slog.Logger
	stop       context.CancelFunc
	done       chan struct{}
}

func NewEngine(cfg internal.Config, log *slog.Logger) (*Engine, error) {
	opts := badger.DefaultOptions(cfg.BadgerFilepath).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	docStore := store.New(db, log, cfg.OrderedCollectionList()...)
	directory := NewDirectoryService(docStore, log)
	presence := NewPresenceService(docStore, log, cfg.TypingStaleness)
	confirm := ConfirmPolicy{MaxAttempts: cfg.ConfirmAttempts, Interval: cfg.ConfirmInterval}

	supervisor := runtime.NewSupervisor(log)
	supervisor.Add(store.NewGCWorker(db, log, cfg.GCInterval))

	return &Engine{
		Membership: NewMembershipService(docStore, log, directory, confirm),
		Messages:   NewMessageService(docStore, log, presence),
		Presence:   presence,
		Directory:  directory,
		store:      docStore,
		supervisor: supervisor,
		log:        log,
		done:       make(chan struct{}),
	}, nil
}

// Start launches the supervised background workers. It returns
// immediately; Stop winds everything down.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.stop = cancel
	go func() {
		defer close(e.done)
		e.supervisor.Run(runCtx)
	}()
}

// Stop cancels the workers, waits for them, and closes the store, which
// in turn cancels every live subscription.
func (e *Engine) Stop() {
	if e.stop != nil {
		e.stop()
		<-e.done
	}
	if err := e.store.Close(); err != nil {
		e.log.Warn("Store did not close cleanly", "error", err)
	}
}

// Store exposes the underlying adapter, mainly for the e2e suite.
func (e *Engine) Store() *store.Badger { return e.store }
