package coverage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"resty.dev/v3"

	"github.com/verigrid/verigrid/internal/ctxlog"
)

// Uploader transmits a located report to the aggregation service.
type Uploader interface {
	Upload(ctx context.Context, rep *Report) error
}

// Endpoint is where reports go. The URL usually comes from the pipeline
// definition; the token never does. Both can be overridden from the
// environment (VERIGRID_UPLOAD_URL, VERIGRID_UPLOAD_TOKEN).
type Endpoint struct {
	URL   string `envconfig:"UPLOAD_URL"`
	Token string `envconfig:"UPLOAD_TOKEN"`
}

// ResolveEndpoint merges the configured upload URL with environment
// overrides. The environment wins, so operators can redirect uploads without
// touching the pipeline definition.
func ResolveEndpoint(configured string) (Endpoint, error) {
	var ep Endpoint
	if err := envconfig.Process("verigrid", &ep); err != nil {
		return Endpoint{}, fmt.Errorf("reading upload environment overrides: %w", err)
	}
	if ep.URL == "" {
		ep.URL = configured
	}
	if ep.URL == "" {
		return Endpoint{}, errors.New("no upload endpoint: set coverage.upload_url or VERIGRID_UPLOAD_URL")
	}
	return ep, nil
}

// HTTPUploader posts reports over HTTP. Retries are explicitly disabled:
// the pipeline contract has no retries anywhere, and an upload failure must
// surface exactly once, on the upload step of its own job.
type HTTPUploader struct {
	client *resty.Client
	url    string
	token  string
}

// NewHTTPUploader builds the production uploader for an endpoint.
func NewHTTPUploader(ep Endpoint) *HTTPUploader {
	client := resty.New().
		SetRetryCount(0).
		SetTimeout(2 * time.Minute)
	return &HTTPUploader{client: client, url: ep.URL, token: ep.Token}
}

// Upload sends the report as a multipart POST, tagged with the identities of
// its run and job instance.
func (u *HTTPUploader) Upload(ctx context.Context, rep *Report) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Uploading coverage report.", "path", rep.Path, "size", rep.Size, "job", rep.Tags.JobID)

	req := u.client.R().
		SetContext(ctx).
		SetFile("report", rep.Path).
		SetQueryParams(map[string]string{
			"run":         rep.Tags.RunID,
			"job":         rep.Tags.JobID,
			"os":          rep.Tags.OS,
			"interpreter": rep.Tags.Interpreter,
			"revision":    rep.Tags.Revision,
			"event":       rep.Tags.Event,
			"format":      rep.Format,
		})
	if u.token != "" {
		req.SetAuthToken(u.token)
	}

	resp, err := req.Post(u.url)
	if err != nil {
		return fmt.Errorf("posting coverage report: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("coverage service rejected report: %s", resp.Status())
	}

	logger.Debug("Coverage report accepted.", "status", resp.Status())
	return nil
}

// Close releases the underlying HTTP client.
func (u *HTTPUploader) Close() error {
	return u.client.Close()
}
