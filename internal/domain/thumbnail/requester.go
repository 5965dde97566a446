package thumbnail

import "context"

// Requester adapts the queue to callers that only know a target and its
// fingerprint; frame/camera parameters come from configuration.
type Requester struct {
	queue         *Queue
	frameCount    int
	verticalAngle float64
}

func NewRequester(queue *Queue, frameCount int, verticalAngle float64) *Requester {
	if frameCount <= 0 {
		frameCount = 1
	}
	return &Requester{queue: queue, frameCount: frameCount, verticalAngle: verticalAngle}
}

func (r *Requester) RequestThumbnail(ctx context.Context, modelID, versionID int64, fingerprint string) error {
	_, err := r.queue.Enqueue(ctx, modelID, versionID, fingerprint, r.frameCount, r.verticalAngle)
	return err
}
