// Package report renders finished audits and hands the artifacts to an
// uploader.
package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/output"
)

const (
	KindReport     = "report"
	KindScreenshot = "screenshot"
)

// Uploader stores one artifact and returns where it can be found.
type Uploader interface {
	UploadArtifact(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// Reporter renders a result in each configured format and uploads it next
// to the first-view screenshot.
type Reporter struct {
	Uploader Uploader
	Formats  []output.Format
	// SkipScreenshot leaves the captured screenshot out of the artifacts.
	SkipScreenshot bool
}

// DefaultFormats are rendered when Reporter.Formats is empty.
var DefaultFormats = []output.Format{output.FormatMarkdown, output.FormatJSON}

// Report uploads every artifact it can. Artifacts that were stored are
// returned even when others failed; the failures are joined.
func (r *Reporter) Report(ctx context.Context, result *core.AuditResult, capture *core.Capture) ([]core.Artifact, error) {
	if r == nil || r.Uploader == nil {
		return nil, errors.New("report uploader not configured")
	}
	if result == nil {
		return nil, errors.New("audit result is required")
	}
	prefix := runPrefix(result.Run)

	var (
		artifacts []core.Artifact
		failures  []error
	)
	for _, format := range r.formats() {
		rendered, err := output.NewFormatter(format).FormatResult(result)
		if err != nil {
			failures = append(failures, fmt.Errorf("render %s: %w", format, err))
			continue
		}
		name := path.Join(prefix, "report."+format.Extension())
		location, err := r.Uploader.UploadArtifact(ctx, name, []byte(rendered), format.ContentType())
		if err != nil {
			failures = append(failures, fmt.Errorf("upload %s: %w", name, err))
			continue
		}
		artifacts = append(artifacts, core.Artifact{Kind: KindReport, Format: string(format), Location: location})
	}

	if !r.SkipScreenshot && capture != nil && len(capture.Screenshot) > 0 {
		mime := http.DetectContentType(capture.Screenshot)
		name := path.Join(prefix, "first-view"+imageExtension(mime))
		location, err := r.Uploader.UploadArtifact(ctx, name, capture.Screenshot, mime)
		if err != nil {
			failures = append(failures, fmt.Errorf("upload %s: %w", name, err))
		} else {
			artifacts = append(artifacts, core.Artifact{Kind: KindScreenshot, Format: mime, Location: location})
		}
	}

	return artifacts, errors.Join(failures...)
}

func (r *Reporter) formats() []output.Format {
	if len(r.Formats) == 0 {
		return DefaultFormats
	}
	return r.Formats
}

func runPrefix(run core.AuditRun) string {
	if id := strings.TrimSpace(run.ID); id != "" {
		return id
	}
	if run.Domain != "" {
		return run.Domain
	}
	return "adhoc"
}

func imageExtension(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
