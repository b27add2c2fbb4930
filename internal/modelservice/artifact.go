package modelservice

import (
	"context"
	"fmt"
	"time"

	"spark-backend/internal/core/types"

	"github.com/go-resty/resty/v2"
)

const artifactDownloadTimeout = 5 * time.Minute

// ArtifactClient downloads finished job artifacts. The credential is sent as
// the key query parameter alongside whatever query the locator already has.
type ArtifactClient struct {
	client *resty.Client
}

func NewArtifactClient() *ArtifactClient {
	return &ArtifactClient{client: resty.New().SetTimeout(artifactDownloadTimeout)}
}

func (a *ArtifactClient) FetchArtifact(ctx context.Context, locator string, cred types.Credential) ([]byte, error) {
	if locator == "" {
		return nil, fmt.Errorf("%w: empty artifact locator", types.ErrUsage)
	}

	req := a.client.R().SetContext(ctx)
	if cred.Valid() {
		req.SetQueryParam("key", cred.Key)
	}

	resp, err := req.Get(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: error downloading artifact: %w", types.ErrTransport, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: failed to download artifact: %s", types.ErrTransport, resp.Status())
	}

	return resp.Body(), nil
}
