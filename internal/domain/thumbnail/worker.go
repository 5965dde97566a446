package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"modelibr/internal/domain/notify"
)

// SourceOpener yields the stored bytes for a content fingerprint. Implemented
// by the file service.
type SourceOpener interface {
	OpenByFingerprint(ctx context.Context, fingerprint string) (io.ReadCloser, error)
}

// VersionChecker reports whether a model version was soft-deleted while its
// job was in flight. Implemented by the model manager.
type VersionChecker interface {
	VersionDeleted(ctx context.Context, versionID int64) (bool, error)
}

// Notifier publishes status transitions to subscribers. Implemented by the
// notify hub; delivery is best-effort.
type Notifier interface {
	Publish(e notify.StatusEvent)
}

// Pool runs N workers over the shared queue. Each job is rendered by exactly
// one worker; the queue's claim step is the mutual-exclusion point. Render
// and storage failures are captured into the Thumbnail row and never
// propagate to the upload that triggered the job.
type Pool struct {
	queue    *Queue
	repo     Repository
	renderer Renderer
	previews *PreviewWriter
	source   SourceOpener
	versions VersionChecker
	notifier Notifier
	workers  int
}

func NewPool(queue *Queue, repo Repository, renderer Renderer, previews *PreviewWriter,
	source SourceOpener, versions VersionChecker, notifier Notifier, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:    queue,
		repo:     repo,
		renderer: renderer,
		previews: previews,
		source:   source,
		versions: versions,
		notifier: notifier,
		workers:  workers,
	}
}

// Start launches the workers. They stop when ctx is cancelled; the returned
// function blocks until all of them have drained.
func (p *Pool) Start(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.run(ctx, id)
		}(i)
	}
	return wg.Wait
}

func (p *Pool) run(ctx context.Context, id int) {
	log.Printf("thumbnail worker %d started", id)
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("thumbnail worker %d stopped", id)
				return
			}
			log.Printf("thumbnail worker %d dequeue failed: %v", id, err)
			continue
		}
		p.process(ctx, job)
	}
}

func (p *Pool) process(ctx context.Context, job *Job) {
	rendered, err := p.render(ctx, job)
	if err != nil {
		p.fail(ctx, job, err)
		return
	}

	// A version deleted mid-render must not gain a preview: discard the
	// output instead of persisting it.
	deleted, err := p.versions.VersionDeleted(ctx, job.VersionID)
	if err != nil {
		p.fail(ctx, job, fmt.Errorf("check version: %w", err))
		return
	}
	if deleted {
		if cerr := p.queue.Complete(ctx, job.ID, StateFailed, "model version deleted before preview was stored"); cerr != nil {
			log.Printf("complete cancelled job %d: %v", job.ID, cerr)
		}
		log.Printf("thumbnail job %d discarded: version %d deleted mid-render", job.ID, job.VersionID)
		return
	}

	relPath, err := p.previews.Write(job.Fingerprint, rendered)
	if err != nil {
		p.fail(ctx, job, fmt.Errorf("store preview: %w", err))
		return
	}

	// Completing the job is the ownership check: a worker whose claim was
	// reclaimed as stuck and finished by someone else loses here, before it
	// can overwrite the fresh Thumbnail row with a stale result.
	if err := p.queue.Complete(ctx, job.ID, StateReady, ""); err != nil {
		if errors.Is(err, ErrJobNotProcessing) {
			log.Printf("thumbnail job %d superseded, result discarded", job.ID)
			return
		}
		log.Printf("complete job %d: %v", job.ID, err)
		return
	}

	if err := p.repo.Upsert(ctx, &Thumbnail{
		ModelID:   job.ModelID,
		VersionID: job.VersionID,
		Format:    FormatPNG,
		Status:    StateReady,
		Path:      relPath,
	}); err != nil {
		log.Printf("record thumbnail for job %d: %v", job.ID, err)
		return
	}

	p.publish(notify.StatusEvent{
		ModelID:   job.ModelID,
		VersionID: job.VersionID,
		Status:    StateReady,
		Path:      relPath,
	})
	log.Printf("thumbnail job %d ready model=%d version=%d", job.ID, job.ModelID, job.VersionID)
}

func (p *Pool) render(ctx context.Context, job *Job) ([]byte, error) {
	rc, err := p.source.OpenByFingerprint(ctx, job.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	model, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	return p.renderer.Render(ctx, model, RenderOptions{
		FrameCount:    job.FrameCount,
		VerticalAngle: job.VerticalAngle,
	})
}

// fail records the error on the Thumbnail row and moves the job to failed.
// No automatic retry: a fresh enqueue is required.
func (p *Pool) fail(ctx context.Context, job *Job, cause error) {
	log.Printf("thumbnail job %d failed model=%d version=%d: %v", job.ID, job.ModelID, job.VersionID, cause)

	// Same ownership check as the success path: a superseded worker must not
	// stamp its failure over a result another worker already committed.
	if err := p.queue.Complete(ctx, job.ID, StateFailed, cause.Error()); err != nil {
		if errors.Is(err, ErrJobNotProcessing) {
			log.Printf("thumbnail job %d superseded, failure discarded", job.ID)
			return
		}
		log.Printf("complete job %d: %v", job.ID, err)
		return
	}

	if err := p.repo.Upsert(ctx, &Thumbnail{
		ModelID:      job.ModelID,
		VersionID:    job.VersionID,
		Format:       FormatPNG,
		Status:       StateFailed,
		ErrorMessage: cause.Error(),
	}); err != nil {
		log.Printf("record failed thumbnail for job %d: %v", job.ID, err)
	}

	p.publish(notify.StatusEvent{
		ModelID:   job.ModelID,
		VersionID: job.VersionID,
		Status:    StateFailed,
		Error:     cause.Error(),
	})
}

func (p *Pool) publish(e notify.StatusEvent) {
	if p.notifier != nil {
		p.notifier.Publish(e)
	}
}
