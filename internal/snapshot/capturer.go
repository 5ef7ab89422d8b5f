package snapshot

import (
	"context"
	"fmt"
	"os/exec"
)

// FFmpegCapturer grabs a single frame via ffmpeg, the same shell-out
// approach the capability prober uses for v4l2-ctl.
type FFmpegCapturer struct{}

func (FFmpegCapturer) Capture(ctx context.Context, sourceURL, destPath string, quality int) error {
	q := quality
	if q <= 0 || q > 100 {
		q = 85
	}
	// ffmpeg's -q:v scale is 2 (best) to 31 (worst); invert our 1-100 scale.
	qv := 2 + (100-q)*29/100

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-rtsp_transport", "tcp",
		"-i", sourceURL,
		"-frames:v", "1",
		"-q:v", fmt.Sprintf("%d", qv),
		destPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg capture failed: %w: %s", err, string(out))
	}
	return nil
}
