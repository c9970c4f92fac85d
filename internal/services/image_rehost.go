package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yungbote/eventscout-backend/internal/clients/gcp"
	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/normalize"
)

// ImageRehostService copies a remote event image into our own bucket and
// returns the public URL of the copy. Source hosts expire their CDN links,
// so events always reference the rehosted copy.
type ImageRehostService interface {
	Rehost(ctx context.Context, imageURL string) (string, error)
}

type imageRehostService struct {
	log        *logger.Logger
	bucket     gcp.BucketService
	httpClient *http.Client
}

func NewImageRehostService(log *logger.Logger, bucket gcp.BucketService) ImageRehostService {
	return &imageRehostService{
		log:        log.With("service", "ImageRehostService"),
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 45 * time.Second},
	}
}

func (s *imageRehostService) Rehost(ctx context.Context, imageURL string) (string, error) {
	if !normalize.IsHTTPURL(imageURL) {
		return "", fmt.Errorf("image url is not http(s): %q", imageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch image %s: http %d", imageURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", imageURL, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s: empty body", imageURL)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	nameBytes := make([]byte, 16)
	if _, err := rand.Read(nameBytes); err != nil {
		return "", fmt.Errorf("generate image key: %w", err)
	}
	key := "events/" + hex.EncodeToString(nameBytes) + gcp.ContentTypeExtension(contentType)

	if err := s.bucket.UploadFile(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("upload image %s: %w", imageURL, err)
	}

	return s.bucket.GetPublicURL(key), nil
}
