// Package engine tracks the image references of the active document and
// drives transfers over them.
//
// Concurrency model: a single internal event loop (goroutine) owns all
// mutable state (active document, both tracked lists, the pending job
// queue). Every external trigger — document switch, content-change
// notification, authoritative refresh, transfer trigger, worker
// completion, timer — arrives as a message on a channel, so no mutexes
// are required. Transfers execute in a worker goroutine one at a time;
// the loop starts the next queued job only when the previous one has
// fully completed, which keeps document rewrites from overlapping.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/transfer"
	"github.com/starford/raido/internal/vault"
)

const (
	defaultDebounce     = 300 * time.Millisecond
	defaultDisplayDelay = 1200 * time.Millisecond
)

// EventFunc is called after loop-driven state changes. kind is one of
// "items.updated", "transfer.started", "transfer.done",
// "transfer.failed"; detail is the raw text for transfer events.
type EventFunc func(kind, detail string)

// Snapshot is a copy of the tracked state for rendering.
type Snapshot struct {
	Document string               `json:"document"`
	Locals   []models.LocalImage  `json:"locals"`
	Remotes  []models.RemoteImage `json:"remotes"`
}

// Position locates a tracked reference for the caller to focus.
type Position struct {
	Document string `json:"document"`
	Line     int    `json:"line"`
}

type jobKind int

const (
	jobUpload jobKind = iota
	jobDownload
)

type job struct {
	kind jobKind
	raw  string
	base string // public base URL, resolved once per operation (uploads)
}

type result struct {
	job job
	err error
}

type startReq struct {
	jobs []job
	resp chan int // number of jobs accepted
}

type revealReq struct {
	raw  string
	resp chan *Position
}

type removeReq struct {
	kind jobKind
	raw  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents sets the event callback.
func WithEvents(fn EventFunc) Option {
	return func(e *Engine) { e.events = fn }
}

// WithDebounce overrides the passive-notification debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// WithDisplayDelay overrides how long a done item stays visible before
// it is removed from tracking.
func WithDisplayDelay(d time.Duration) Option {
	return func(e *Engine) { e.displayDelay = d }
}

// Engine is the reconciliation engine. Create with New, stop with Close.
type Engine struct {
	vault        vault.Vault
	orch         *transfer.Orchestrator
	customDomain func() string
	logger       *slog.Logger
	events       EventFunc
	debounce     time.Duration
	displayDelay time.Duration

	docCh      chan string
	editCh     chan string
	refreshCh  chan chan struct{}
	snapshotCh chan chan Snapshot
	startCh    chan startReq
	resultCh   chan result
	removeCh   chan removeReq
	revealCh   chan revealReq

	ctx     context.Context
	cancel  context.CancelFunc
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates an engine and starts its event loop.
func New(v vault.Vault, orch *transfer.Orchestrator, customDomain func() string, logger *slog.Logger, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		vault:        v,
		orch:         orch,
		customDomain: customDomain,
		logger:       logger,
		debounce:     defaultDebounce,
		displayDelay: defaultDisplayDelay,
		docCh:        make(chan string),
		editCh:       make(chan string, 64),
		refreshCh:    make(chan chan struct{}),
		snapshotCh:   make(chan chan Snapshot),
		startCh:      make(chan startReq),
		resultCh:     make(chan result, 1),
		removeCh:     make(chan removeReq, 16),
		revealCh:     make(chan revealReq),
		ctx:          ctx,
		cancel:       cancel,
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

// Close stops the event loop. In-flight workers are cancelled through
// their context; no new work is accepted afterwards.
func (e *Engine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		e.cancel()
		close(e.stopCh)
	}
	<-e.stopped
}

// SetDocument switches the active document. Both tracked lists are
// cleared unconditionally and rebuilt from the new document; an empty
// path means no active document.
func (e *Engine) SetDocument(path string) {
	e.send(e.docCh, path)
}

// ContentChanged delivers a passive content-change notification. The
// engine ignores paths other than the active document, debounces the
// rest, and defers the reconcile while a transfer is in flight.
func (e *Engine) ContentChanged(path string) {
	if e.closed.Load() {
		return
	}
	select {
	case e.editCh <- path:
	default:
		// Notification storm; the debounce pass will re-read anyway.
	}
}

// Refresh reconciles immediately, bypassing the debounce. It returns
// after the reconcile has been applied.
func (e *Engine) Refresh() {
	if e.closed.Load() {
		return
	}
	resp := make(chan struct{}, 1)
	select {
	case e.refreshCh <- resp:
	case <-e.stopped:
		return
	}
	select {
	case <-resp:
	case <-e.stopped:
	}
}

// Snapshot returns a copy of the tracked lists for rendering.
func (e *Engine) Snapshot() Snapshot {
	if e.closed.Load() {
		return Snapshot{}
	}
	resp := make(chan Snapshot, 1)
	select {
	case e.snapshotCh <- resp:
	case <-e.stopped:
		return Snapshot{}
	}
	select {
	case snap := <-resp:
		return snap
	case <-e.stopped:
		return Snapshot{}
	}
}

// Reveal returns the document position of a tracked reference.
func (e *Engine) Reveal(raw string) (Position, bool) {
	if e.closed.Load() {
		return Position{}, false
	}
	req := revealReq{raw: raw, resp: make(chan *Position, 1)}
	select {
	case e.revealCh <- req:
	case <-e.stopped:
		return Position{}, false
	}
	select {
	case pos := <-req.resp:
		if pos == nil {
			return Position{}, false
		}
		return *pos, true
	case <-e.stopped:
		return Position{}, false
	}
}

// Upload triggers a single-item upload. Guards are checked before any
// transition: an unresolved source file refuses the operation, and an
// unresolvable public base aborts it entirely. A trigger on an item
// already transferring (or queued) is a no-op.
func (e *Engine) Upload(ctx context.Context, raw string) error {
	snap := e.Snapshot()
	item := findLocal(snap.Locals, raw)
	if item == nil {
		return apperr.ErrNotTracked
	}
	if item.Status == models.StatusTransferring {
		return nil
	}
	if item.ResolvedPath == "" {
		return apperr.ErrNoSourceFile
	}

	base, err := e.orch.ResolveBase(ctx)
	if err != nil {
		return err
	}
	e.enqueue([]job{{kind: jobUpload, raw: raw, base: base}})
	return nil
}

// UploadAll queues every idle or failed local reference with a resolved
// source file. The public base is resolved once for the whole batch;
// items run strictly in list order. Returns the number queued.
func (e *Engine) UploadAll(ctx context.Context) (int, error) {
	snap := e.Snapshot()
	var jobs []job
	for _, item := range snap.Locals {
		if item.Status != models.StatusIdle && item.Status != models.StatusFailed {
			continue
		}
		if item.ResolvedPath == "" {
			continue
		}
		jobs = append(jobs, job{kind: jobUpload, raw: item.RawText})
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	base, err := e.orch.ResolveBase(ctx)
	if err != nil {
		return 0, err
	}
	for i := range jobs {
		jobs[i].base = base
	}
	return e.enqueue(jobs), nil
}

// Download triggers a single-item download. No precondition beyond the
// item being tracked and not already transferring.
func (e *Engine) Download(raw string) error {
	snap := e.Snapshot()
	item := findRemote(snap.Remotes, raw)
	if item == nil {
		return apperr.ErrNotTracked
	}
	if item.Status == models.StatusTransferring {
		return nil
	}
	e.enqueue([]job{{kind: jobDownload, raw: raw}})
	return nil
}

// DownloadAll queues every idle or failed remote reference. Returns the
// number queued.
func (e *Engine) DownloadAll() int {
	snap := e.Snapshot()
	var jobs []job
	for _, item := range snap.Remotes {
		if item.Status != models.StatusIdle && item.Status != models.StatusFailed {
			continue
		}
		jobs = append(jobs, job{kind: jobDownload, raw: item.RawText})
	}
	if len(jobs) == 0 {
		return 0
	}
	return e.enqueue(jobs)
}

func (e *Engine) send(ch chan string, v string) {
	if e.closed.Load() {
		return
	}
	select {
	case ch <- v:
	case <-e.stopped:
	}
}

func (e *Engine) enqueue(jobs []job) int {
	if e.closed.Load() {
		return 0
	}
	req := startReq{jobs: jobs, resp: make(chan int, 1)}
	select {
	case e.startCh <- req:
	case <-e.stopped:
		return 0
	}
	select {
	case n := <-req.resp:
		return n
	case <-e.stopped:
		return 0
	}
}

func (e *Engine) emit(kind, detail string) {
	if e.events != nil {
		e.events(kind, detail)
	}
}

func findLocal(items []models.LocalImage, raw string) *models.LocalImage {
	for i := range items {
		if items[i].RawText == raw {
			return &items[i]
		}
	}
	return nil
}

func findRemote(items []models.RemoteImage, raw string) *models.RemoteImage {
	for i := range items {
		if items[i].RawText == raw {
			return &items[i]
		}
	}
	return nil
}
