package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/cassiomorais/studiopay/internal/domain/document"
	appConfig "github.com/cassiomorais/studiopay/internal/infrastructure/config"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

const rawResource = "raw"

type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// CloudinaryPublisher uploads generated documents as raw resources and
// returns their secure URL. The bytes stay in the document store; this is a
// download mirror only.
type CloudinaryPublisher struct {
	uploader uploadAPI
	folder   string
}

var _ document.Publisher = (*CloudinaryPublisher)(nil)

// NewCloudinaryPublisher builds a publisher from credentials.
func NewCloudinaryPublisher(cfg appConfig.CloudinaryConfig) (*CloudinaryPublisher, error) {
	cldCfg, err := config.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	up, err := uploader.NewWithConfiguration(cldCfg)
	if err != nil {
		return nil, fmt.Errorf("cloudinary uploader: %w", err)
	}
	return &CloudinaryPublisher{uploader: up, folder: cfg.Folder}, nil
}

// Publish uploads doc under a public id derived from its key. Publishing
// the same key again overwrites the earlier upload.
func (p *CloudinaryPublisher) Publish(ctx context.Context, doc *document.Document) (string, error) {
	overwrite := true
	unique := false
	result, err := p.uploader.Upload(ctx, bytes.NewReader(doc.Data), uploader.UploadParams{
		Folder:         p.folder,
		PublicID:       publicID(doc),
		ResourceType:   rawResource,
		Overwrite:      &overwrite,
		UniqueFilename: &unique,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", doc.Key, err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("upload %s: %w", doc.Key, errors.New(result.Error.Message))
	}
	return result.SecureURL, nil
}

// publicID keeps the file extension, as raw resources are served by name.
func publicID(doc *document.Document) string {
	id := strings.ReplaceAll(doc.Key, "/", "_")
	if ext := path.Ext(doc.Name); ext != "" && !strings.HasSuffix(id, ext) {
		id += ext
	}
	return id
}
