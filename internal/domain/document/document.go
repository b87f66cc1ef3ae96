package document

import (
	"context"
	"time"
)

// Document is a generated file attached to a notification, such as a gift
// card voucher or an invoice. Key is stable per payment and kind, so a retried
// job finds the document generated by an earlier attempt.
type Document struct {
	Key         string
	Name        string
	ContentType string
	Data        []byte
	// Location is a public URL when the document was also published.
	Location  string
	CreatedAt time.Time
}

// Kinds of generated documents.
const (
	KindVoucher = "voucher"
	KindInvoice = "invoice"
)

// Key builds the storage key for a payment reference and document kind.
func Key(reference, kind string) string {
	return kind + "/" + reference
}

// Repository stores and retrieves documents by key.
type Repository interface {
	// Save inserts the document. Saving an existing key keeps the first copy.
	Save(ctx context.Context, doc *Document) error
	// Get returns ErrDocumentNotFound when nothing is stored under key.
	Get(ctx context.Context, key string) (*Document, error)
}

// Publisher uploads a document somewhere customers can download it from.
type Publisher interface {
	Publish(ctx context.Context, doc *Document) (string, error)
}
