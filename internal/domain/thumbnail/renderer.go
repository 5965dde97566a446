package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RenderOptions are the frame/camera parameters carried by a job.
type RenderOptions struct {
	FrameCount    int
	VerticalAngle float64
}

// Renderer produces a preview image from raw model bytes. The rendering
// algorithm itself is an opaque capability living behind this interface.
type Renderer interface {
	Render(ctx context.Context, model []byte, opts RenderOptions) ([]byte, error)
}

// HTTPRenderer calls an external render service: POST {base}/render with the
// model bytes as body, frame/angle as query parameters, PNG bytes back.
type HTTPRenderer struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPRenderer(baseURL string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPRenderer{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, model []byte, opts RenderOptions) ([]byte, error) {
	q := url.Values{}
	q.Set("frames", strconv.Itoa(opts.FrameCount))
	q.Set("angle", strconv.FormatFloat(opts.VerticalAngle, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/render?%s", r.baseURL, q.Encode()), bytes.NewReader(model))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrRenderFailed, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: render service returned %d: %s", ErrRenderFailed, resp.StatusCode, string(body))
	}

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRenderFailed, err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("%w: render service returned an empty image", ErrRenderFailed)
	}
	return img, nil
}
