package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var inflightStates = []string{StatePending, StateProcessing}

// Queue is the job ledger and the single serialization point for "who renders
// this target now". Enqueue is idempotent per (model, version) target while a
// job is in flight; Dequeue hands each job to exactly one worker.
type Queue struct {
	db         *gorm.DB
	stuckAfter time.Duration
	poll       time.Duration
	wake       chan struct{}
}

// NewQueue builds a queue over the shared job ledger. stuckAfter is how long
// a processing job may sit without completing before another worker may
// reclaim it (crash recovery); poll is the fallback dequeue wakeup interval,
// which also picks up jobs enqueued by other process instances.
func NewQueue(db *gorm.DB, stuckAfter, poll time.Duration) *Queue {
	if stuckAfter <= 0 {
		stuckAfter = 5 * time.Minute
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &Queue{
		db:         db,
		stuckAfter: stuckAfter,
		poll:       poll,
		wake:       make(chan struct{}, 1),
	}
}

// Enqueue requests a preview job for a target. If the target already has a
// pending or processing job the existing job is returned instead of creating
// a duplicate; a lost race on the in-flight unique index resolves the same
// way. Terminal jobs never block a fresh enqueue.
func (q *Queue) Enqueue(ctx context.Context, modelID, versionID int64, fingerprint string, frameCount int, verticalAngle float64) (*Job, error) {
	var job *Job
	created := false

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findInflight(tx, modelID, versionID)
		if err != nil {
			return err
		}
		if existing != nil {
			job = existing
			return nil
		}

		now := time.Now()
		j := &Job{
			ModelID:       modelID,
			VersionID:     versionID,
			Fingerprint:   fingerprint,
			FrameCount:    frameCount,
			VerticalAngle: verticalAngle,
			State:         StatePending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(j).Error; err != nil {
			return err
		}
		job = j
		created = true
		return nil
	})
	if err != nil {
		// A concurrent enqueue for the same target may have won the insert.
		existing, ferr := findInflight(q.db.WithContext(ctx), modelID, versionID)
		if ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("enqueue thumbnail job: %w", err)
	}

	if created {
		q.signal()
	}
	return job, nil
}

// Dequeue blocks until a job can be claimed or the context is cancelled. A
// claimed job transitions to processing and becomes invisible to other
// dequeuers; a processing job whose claim is older than the stuck timeout is
// eligible for re-claim.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		job, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// Complete moves a processing job to a terminal state. Completing a job that
// is no longer processing (for example one reclaimed after being stuck)
// returns ErrJobNotProcessing and changes nothing.
func (q *Queue) Complete(ctx context.Context, jobID int64, state, errorMessage string) error {
	if state != StateReady && state != StateFailed {
		return fmt.Errorf("invalid terminal state %q", state)
	}
	res := q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND state = ?", jobID, StateProcessing).
		Updates(map[string]interface{}{
			"state":         state,
			"error_message": errorMessage,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotProcessing
	}
	return nil
}

// RequeueStuck resets processing jobs older than the stuck timeout back to
// pending. Used by the jobsweep maintenance command; the regular dequeue path
// reclaims stuck jobs on its own.
func (q *Queue) RequeueStuck(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-q.stuckAfter)
	res := q.db.WithContext(ctx).Model(&Job{}).
		Where("state = ? AND claimed_at < ?", StateProcessing, cutoff).
		Updates(map[string]interface{}{
			"state":      StatePending,
			"claimed_at": nil,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		q.signal()
	}
	return res.RowsAffected, nil
}

// Get returns a job by id.
func (q *Queue) Get(ctx context.Context, jobID int64) (*Job, error) {
	var j Job
	err := q.db.WithContext(ctx).First(&j, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// claim atomically takes ownership of one runnable job. The conditional
// update is the mutual-exclusion point: only the worker whose update hits
// RowsAffected == 1 owns the job.
func (q *Queue) claim(ctx context.Context) (*Job, error) {
	for {
		var candidate Job
		cutoff := time.Now().Add(-q.stuckAfter)
		err := q.db.WithContext(ctx).
			Where("state = ? OR (state = ? AND claimed_at < ?)", StatePending, StateProcessing, cutoff).
			Order("created_at ASC").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		// The update repeats the runnable predicate instead of matching the
		// scanned-back claimed_at: timestamp round-trips are not stable
		// across drivers, and a predicate the backend cannot satisfy would
		// pin every worker on the same candidate forever. A row that loses
		// here was claimed by another worker, so the re-select no longer
		// sees it as runnable.
		now := time.Now()
		res := q.db.WithContext(ctx).Model(&Job{}).
			Where("id = ? AND (state = ? OR (state = ? AND claimed_at < ?))",
				candidate.ID, StatePending, StateProcessing, cutoff).
			Updates(map[string]interface{}{
				"state":      StateProcessing,
				"claimed_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue // another worker got there first, try the next candidate
		}

		candidate.State = StateProcessing
		candidate.ClaimedAt = &now
		candidate.UpdatedAt = now
		return &candidate, nil
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func findInflight(tx *gorm.DB, modelID, versionID int64) (*Job, error) {
	var existing Job
	err := tx.Where("model_id = ? AND version_id = ? AND state IN ?", modelID, versionID, inflightStates).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}
