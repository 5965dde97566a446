package notify

// StatusEvent is one thumbnail status transition. Delivery is best-effort and
// at-most-once per subscriber; the Thumbnail row remains the source of truth
// and clients that miss a push fall back to polling it.
type StatusEvent struct {
	ModelID   int64  `json:"model_id"`
	VersionID int64  `json:"version_id"`
	Status    string `json:"status"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}
