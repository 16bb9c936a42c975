package netdiscovery

import "sync/atomic"

// abortController is the shared abort flag: a termination signal or a
// crossed global deadline sets it; the scheduler only observes
// it between dispatch iterations, so in-flight probes always finish.
type abortController struct {
	flag       atomic.Bool
	currentPID atomic.Uint32
	pidSet     atomic.Bool
}

func newAbortController() *abortController {
	return &abortController{}
}

// Abort sets the shared flag. Safe to call from a signal handler.
func (a *abortController) Abort() {
	a.flag.Store(true)
}

// Aborted reports whether the flag has been set.
func (a *abortController) Aborted() bool {
	return a.flag.Load()
}

// setCurrentPID records which job is presently running, so a direct
// Shutdown() call outside a scheduling loop knows which job's END to emit.
func (a *abortController) setCurrentPID(pid uint32) {
	a.currentPID.Store(pid)
	a.pidSet.Store(true)
}

func (a *abortController) clearCurrentPID() {
	a.pidSet.Store(false)
}

// Shutdown is the direct abort() entry point: invoked by the outer
// framework when tearing the task down outside a running scheduler
// loop. It sets the flag and, if a job is currently tracked, emits one END
// for it.
func (a *abortController) Shutdown(emitEnd func(pid uint32)) {
	a.Abort()
	if a.pidSet.Load() && emitEnd != nil {
		emitEnd(a.currentPID.Load())
	}
}
