package engine

import (
	"log/slog"
	"time"

	"github.com/starford/raido/internal/extract"
	"github.com/starford/raido/internal/models"
)

// loopState is owned exclusively by the run goroutine.
type loopState struct {
	doc     string
	locals  []*models.LocalImage
	remotes []*models.RemoteImage

	queue  []job
	active *job

	debounceTimer *time.Timer
	debounceCh    <-chan time.Time
}

func (e *Engine) run() {
	defer close(e.stopped)

	st := &loopState{}

	for {
		select {
		case <-e.stopCh:
			if st.debounceTimer != nil {
				st.debounceTimer.Stop()
			}
			return

		case path := <-e.docCh:
			e.handleSetDocument(st, path)

		case path := <-e.editCh:
			if path != st.doc || st.doc == "" {
				continue
			}
			e.armDebounce(st)

		case <-st.debounceCh:
			// Deferred while a transfer is in flight: a rebuild of
			// tracked-state identity must not race a completion that
			// expects to find its item.
			if st.transferring() {
				e.armDebounce(st)
				continue
			}
			e.reconcile(st)
			e.emit("items.updated", "")

		case resp := <-e.refreshCh:
			e.reconcile(st)
			e.emit("items.updated", "")
			resp <- struct{}{}

		case resp := <-e.snapshotCh:
			resp <- st.snapshot()

		case req := <-e.revealCh:
			req.resp <- st.reveal(req.raw)

		case req := <-e.startCh:
			req.resp <- e.acceptJobs(st, req.jobs)

		case res := <-e.resultCh:
			e.handleResult(st, res)

		case req := <-e.removeCh:
			st.removeDone(req)
			e.emit("items.updated", "")
		}
	}
}

func (e *Engine) handleSetDocument(st *loopState, path string) {
	// Switching documents discards all tracked state unconditionally;
	// nothing carries across documents.
	st.locals = nil
	st.remotes = nil
	st.queue = nil
	st.doc = path
	if path != "" {
		e.reconcile(st)
	}
	e.emit("items.updated", "")
}

func (e *Engine) armDebounce(st *loopState) {
	if st.debounceTimer == nil {
		st.debounceTimer = time.NewTimer(e.debounce)
		st.debounceCh = st.debounceTimer.C
	} else {
		if !st.debounceTimer.Stop() {
			select {
			case <-st.debounceTimer.C:
			default:
			}
		}
		st.debounceTimer.Reset(e.debounce)
	}
}

// reconcile re-extracts from the document and merges with tracked state.
func (e *Engine) reconcile(st *loopState) {
	if st.doc == "" {
		st.locals = nil
		st.remotes = nil
		return
	}
	text, err := e.vault.Read(st.doc)
	if err != nil {
		e.logger.Warn("engine: read document failed",
			slog.String("document", st.doc),
			slog.String("error", err.Error()))
		st.locals = nil
		st.remotes = nil
		return
	}

	res := e.extractFrom(string(text))
	st.locals = reconcileLocals(res.Locals, st.locals, e.vault, st.doc)
	st.remotes = reconcileRemotes(res.Remotes, st.remotes)
}

// acceptJobs enqueues jobs, skipping raws already queued or in flight,
// and starts the next job if none is active.
func (e *Engine) acceptJobs(st *loopState, jobs []job) int {
	accepted := 0
	for _, j := range jobs {
		if st.engaged(j.raw) {
			continue
		}
		st.queue = append(st.queue, j)
		accepted++
	}
	e.startNext(st)
	return accepted
}

// startNext pops queued jobs until one starts. Strictly one job runs at
// a time; within a batch, items are processed in queue order with each
// fully completing before the next starts.
func (e *Engine) startNext(st *loopState) {
	if st.active != nil {
		return
	}
	for len(st.queue) > 0 {
		j := st.queue[0]
		st.queue = st.queue[1:]

		switch j.kind {
		case jobUpload:
			item := st.findLocal(j.raw)
			if item == nil || item.Status == models.StatusTransferring || item.ResolvedPath == "" {
				continue
			}
			item.Status = models.StatusTransferring
			item.ErrMessage = ""
			st.active = &j
			e.emit("transfer.started", j.raw)
			e.emit("items.updated", "")

			doc, snapshot := st.doc, *item
			go func() {
				_, err := e.orch.Upload(e.ctx, j.base, doc, snapshot)
				e.deliver(result{job: j, err: err})
			}()
			return

		case jobDownload:
			item := st.findRemote(j.raw)
			if item == nil || item.Status == models.StatusTransferring {
				continue
			}
			item.Status = models.StatusTransferring
			item.ErrMessage = ""
			st.active = &j
			e.emit("transfer.started", j.raw)
			e.emit("items.updated", "")

			doc, snapshot := st.doc, *item
			go func() {
				_, err := e.orch.Download(e.ctx, doc, snapshot)
				e.deliver(result{job: j, err: err})
			}()
			return
		}
	}
}

// deliver hands a worker result to the loop, dropping it on shutdown.
func (e *Engine) deliver(res result) {
	select {
	case e.resultCh <- res:
	case <-e.stopped:
	}
}

func (e *Engine) handleResult(st *loopState, res result) {
	st.active = nil

	status, errMsg := models.StatusDone, ""
	if res.err != nil {
		status, errMsg = models.StatusFailed, res.err.Error()
	}

	// The item may have vanished through an authoritative refresh or a
	// document switch; the rewrite and record append already happened
	// in the worker, so the result is simply dropped.
	var found bool
	switch res.job.kind {
	case jobUpload:
		if item := st.findLocal(res.job.raw); item != nil {
			item.Status, item.ErrMessage = status, errMsg
			found = true
		}
	case jobDownload:
		if item := st.findRemote(res.job.raw); item != nil {
			item.Status, item.ErrMessage = status, errMsg
			found = true
		}
	}

	if res.err != nil {
		e.emit("transfer.failed", res.job.raw)
		e.logger.Warn("transfer failed",
			slog.String("raw", res.job.raw),
			slog.String("error", res.err.Error()))
	} else {
		e.emit("transfer.done", res.job.raw)
		if found {
			// Keep the done row visible briefly before dropping it.
			req := removeReq{kind: res.job.kind, raw: res.job.raw}
			time.AfterFunc(e.displayDelay, func() {
				select {
				case e.removeCh <- req:
				case <-e.stopped:
				}
			})
		}
	}
	e.emit("items.updated", "")

	// A per-item outcome never aborts the batch.
	e.startNext(st)
}

func (e *Engine) extractFrom(text string) extract.Result {
	domain := ""
	if e.customDomain != nil {
		domain = e.customDomain()
	}
	return extract.Extract(text, domain)
}

// --- loopState helpers ---

func (st *loopState) transferring() bool {
	if st.active != nil {
		return true
	}
	for _, item := range st.locals {
		if item.Status == models.StatusTransferring {
			return true
		}
	}
	for _, item := range st.remotes {
		if item.Status == models.StatusTransferring {
			return true
		}
	}
	return false
}

// engaged reports whether raw is queued or currently in flight.
func (st *loopState) engaged(raw string) bool {
	if st.active != nil && st.active.raw == raw {
		return true
	}
	for _, j := range st.queue {
		if j.raw == raw {
			return true
		}
	}
	if item := st.findLocal(raw); item != nil && item.Status == models.StatusTransferring {
		return true
	}
	if item := st.findRemote(raw); item != nil && item.Status == models.StatusTransferring {
		return true
	}
	return false
}

func (st *loopState) findLocal(raw string) *models.LocalImage {
	for _, item := range st.locals {
		if item.RawText == raw {
			return item
		}
	}
	return nil
}

func (st *loopState) findRemote(raw string) *models.RemoteImage {
	for _, item := range st.remotes {
		if item.RawText == raw {
			return item
		}
	}
	return nil
}

func (st *loopState) snapshot() Snapshot {
	snap := Snapshot{
		Document: st.doc,
		Locals:   make([]models.LocalImage, len(st.locals)),
		Remotes:  make([]models.RemoteImage, len(st.remotes)),
	}
	for i, item := range st.locals {
		snap.Locals[i] = *item
	}
	for i, item := range st.remotes {
		snap.Remotes[i] = *item
	}
	return snap
}

func (st *loopState) reveal(raw string) *Position {
	if item := st.findLocal(raw); item != nil {
		return &Position{Document: st.doc, Line: item.Line}
	}
	if item := st.findRemote(raw); item != nil {
		return &Position{Document: st.doc, Line: item.Line}
	}
	return nil
}

// removeDone drops a completed item once its display delay elapses.
// Anything that changed state since completion is left alone.
func (st *loopState) removeDone(req removeReq) {
	switch req.kind {
	case jobUpload:
		for i, item := range st.locals {
			if item.RawText == req.raw && item.Status == models.StatusDone {
				st.locals = append(st.locals[:i], st.locals[i+1:]...)
				return
			}
		}
	case jobDownload:
		for i, item := range st.remotes {
			if item.RawText == req.raw && item.Status == models.StatusDone {
				st.remotes = append(st.remotes[:i], st.remotes[i+1:]...)
				return
			}
		}
	}
}
