package main

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/marben/fractal_explorer/worker"
)

// workerSet starts one compute worker per connected client and keeps count
// of the running ones.
type workerSet struct {
	opts []worker.Option

	m       sync.Mutex
	workers int
	wg      sync.WaitGroup
}

func newWorkerSet(opts ...worker.Option) *workerSet {
	return &workerSet{opts: opts}
}

// spawn starts a worker that stops when ctx is done.
func (ws *workerSet) spawn(ctx context.Context, remote string) *worker.Worker {
	w := worker.New(ws.opts...)
	ws.incActiveWorkers()
	ws.wg.Add(1)
	go func() {
		defer ws.wg.Done()
		defer ws.decActiveWorkers()
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("worker for %s stopped: %v", remote, err)
		}
	}()
	return w
}

func (ws *workerSet) active() int {
	ws.m.Lock()
	defer ws.m.Unlock()
	return ws.workers
}

// wait blocks until every spawned worker has returned.
func (ws *workerSet) wait() {
	ws.wg.Wait()
}

func (ws *workerSet) incActiveWorkers() {
	ws.m.Lock()
	ws.workers++
	w := ws.workers
	ws.m.Unlock()

	log.Printf("workers: %d", w)
}

func (ws *workerSet) decActiveWorkers() {
	ws.m.Lock()
	ws.workers--
	w := ws.workers
	ws.m.Unlock()

	log.Printf("workers: %d", w)
}
