package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/studiopay/internal/domain/document"
	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository keeps generated documents in the documents table.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

func (r *DocumentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Save keeps the first copy stored under a key.
func (r *DocumentRepository) Save(ctx context.Context, doc *document.Document) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO documents (key, name, content_type, data, location, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (key) DO NOTHING`,
		doc.Key, doc.Name, doc.ContentType, doc.Data, doc.Location, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, key string) (*document.Document, error) {
	doc := &document.Document{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT key, name, content_type, data, location, created_at FROM documents WHERE key = $1`, key,
	).Scan(&doc.Key, &doc.Name, &doc.ContentType, &doc.Data, &doc.Location, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}
