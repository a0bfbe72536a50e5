package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sightlinehq/sightline/internal/models"
)

type WorkerPool struct {
	repo        *Repository
	handlers    map[string]Handler
	deadLetter  Handler
	logger      *slog.Logger
	workerCount int
	stop        chan struct{}
	wg          sync.WaitGroup
}

func NewWorkerPool(repo *Repository, handlers map[string]Handler, logger *slog.Logger, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{repo: repo, handlers: handlers, logger: logger, workerCount: workerCount, stop: make(chan struct{})}
}

// OnDeadLetter installs a hook invoked after a job is moved to the dead
// letter table. The pipeline uses it to resolve the owning report so that
// nothing stays PENDING when a job permanently fails. Call before Start.
func (p *WorkerPool) OnDeadLetter(h Handler) {
	p.deadLetter = h
}

// Register adds a handler for a job type. Must be called before Start; the
// handler map is read without synchronization once workers are running.
func (p *WorkerPool) Register(typ string, h Handler) {
	if p.handlers == nil {
		p.handlers = make(map[string]Handler)
	}
	p.handlers[typ] = h
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them
func (p *WorkerPool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Info("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Info("context canceled, worker exiting", "id", id)
			return
		default:
			job, err := p.repo.FetchNext(ctx)
			if err != nil {
				p.logger.Error("fetch job", "err", err)
				p.sleep(1 * time.Second)
				continue
			}
			if job == nil {
				// nothing to do
				p.sleep(200 * time.Millisecond)
				continue
			}
			h, ok := p.handlers[job.Type]
			if !ok {
				job.Status = "failed"
				job.LastError = "no handler"
				p.moveToDeadLetter(ctx, job)
				continue
			}
			err = h(ctx, job)
			if err == nil {
				job.Status = "done"
				if upErr := p.repo.UpdateJob(ctx, job); upErr != nil {
					p.logger.Error("update done job", "err", upErr)
				}
				continue
			}
			// handler returned error
			job.Attempts++
			job.LastError = err.Error()
			if job.Attempts >= job.MaxAttempts {
				job.Status = "failed"
				p.moveToDeadLetter(ctx, job)
				continue
			}
			// schedule retry with backoff
			backoff := BackoffDuration(job.Attempts)
			t := time.Now().Add(backoff)
			job.NextTryAt = &t
			job.Status = "retry"
			if upErr := p.repo.UpdateJob(ctx, job); upErr != nil {
				p.logger.Error("update job for retry", "err", upErr)
			}
		}
	}
}

func (p *WorkerPool) moveToDeadLetter(ctx context.Context, job *models.BackgroundJob) {
	if err := p.repo.MoveToDeadLetter(ctx, job); err != nil {
		p.logger.Error("move to dead letter", "err", err)
		return
	}
	if p.deadLetter != nil {
		if err := p.deadLetter(ctx, job); err != nil {
			p.logger.Error("dead letter hook", "type", job.Type, "err", err)
		}
	}
}

// sleep pauses the polling loop but stays responsive to Stop.
func (p *WorkerPool) sleep(d time.Duration) {
	select {
	case <-p.stop:
	case <-time.After(d):
	}
}

// Enqueue convenience helper that creates a job and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	j := &models.BackgroundJob{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now()}
	return p.repo.Enqueue(ctx, j)
}
