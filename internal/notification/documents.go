package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"time"

	"github.com/cassiomorais/studiopay/internal/domain/document"
	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
	"github.com/cassiomorais/studiopay/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const documentContentType = "text/html; charset=utf-8"

// Issuer is the seller block printed on invoices.
type Issuer struct {
	Name        string
	OrgNumber   string
	Address     string
	BankAccount string
	DueDays     int
}

// Documents generates the attachments a job needs. Each document is
// generated once per payment and kind; retries reuse the stored copy.
type Documents struct {
	repo      document.Repository
	publisher document.Publisher
	templates *htmltemplate.Template
	brand     string
	issuer    Issuer
	logger    zerolog.Logger
}

// NewDocuments builds the generator. publisher may be nil.
func NewDocuments(repo document.Repository, publisher document.Publisher, brand string, issuer Issuer, logger zerolog.Logger) (*Documents, error) {
	tmpl, err := htmltemplate.New("documents").Funcs(templateFuncs).ParseFS(templateFS, "templates/documents/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse document templates: %w", err)
	}
	if issuer.Name == "" {
		issuer.Name = brand
	}
	if issuer.DueDays <= 0 {
		issuer.DueDays = 30
	}
	return &Documents{
		repo:      repo,
		publisher: publisher,
		templates: tmpl,
		brand:     brand,
		issuer:    issuer,
		logger:    observability.Component(logger, "documents"),
	}, nil
}

// ForPayload returns the documents to attach for a payload: a voucher for
// gift cards, an invoice for invoice payments.
func (d *Documents) ForPayload(ctx context.Context, payload job.Payload) ([]*document.Document, error) {
	snap, ok := snapshot(payload)
	if !ok {
		return nil, nil
	}

	var docs []*document.Document
	if gc, ok := payload.(*job.GiftCardDelivery); ok {
		doc, err := d.obtain(ctx, snap.Reference, document.KindVoucher, func() ([]byte, error) {
			return d.render("voucher.html", voucherView{Brand: d.brand, GiftCardDelivery: gc})
		})
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if snap.Method == payment.MethodInvoice && snap.Invoice != nil {
		doc, err := d.obtain(ctx, snap.Reference, document.KindInvoice, func() ([]byte, error) {
			return d.render("invoice.html", d.invoiceView(snap))
		})
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// obtain returns the stored document or generates, publishes and stores it.
func (d *Documents) obtain(ctx context.Context, reference, kind string, generate func() ([]byte, error)) (*document.Document, error) {
	key := document.Key(reference, kind)
	existing, err := d.repo.Get(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domainErrors.ErrDocumentNotFound) {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	data, err := generate()
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", key, err)
	}
	doc := &document.Document{
		Key:         key,
		Name:        kind + "-" + reference + ".html",
		ContentType: documentContentType,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}

	if d.publisher != nil {
		location, err := d.publisher.Publish(ctx, doc)
		if err != nil {
			// The attachment is what matters; the public copy is a bonus.
			d.logger.Warn().Err(err).Str("key", key).Msg("document publish failed")
		} else {
			doc.Location = location
		}
	}

	if err := d.repo.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save %s: %w", key, err)
	}
	// A concurrent attempt may have saved first; its copy wins.
	return d.repo.Get(ctx, key)
}

func (d *Documents) render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type voucherView struct {
	Brand string
	*job.GiftCardDelivery
}

type invoiceView struct {
	Issuer      Issuer
	Invoice     *payment.InvoiceDetails
	Reference   string
	Description string
	AmountMinor int64
	Currency    string
	IssuedAt    time.Time
	DueAt       time.Time
}

func (d *Documents) invoiceView(snap job.PaymentSnapshot) invoiceView {
	return invoiceView{
		Issuer:      d.issuer,
		Invoice:     snap.Invoice,
		Reference:   snap.Reference,
		Description: describe(snap.ProductType),
		AmountMinor: snap.AmountMinor,
		Currency:    snap.Currency,
		IssuedAt:    snap.PaidAt,
		DueAt:       snap.PaidAt.AddDate(0, 0, d.issuer.DueDays),
	}
}

func describe(t payment.ProductType) string {
	switch t {
	case payment.ProductCourse:
		return "Course booking"
	case payment.ProductGiftCard:
		return "Gift card"
	case payment.ProductArt:
		return "Art purchase"
	}
	return string(t)
}
