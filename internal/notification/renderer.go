package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	domainErrors "github.com/cassiomorais/studiopay/internal/domain/errors"
	"github.com/cassiomorais/studiopay/internal/domain/job"
	"github.com/cassiomorais/studiopay/internal/domain/payment"
)

//go:embed templates/email/*.html templates/email/*.txt templates/documents/*.html
var templateFS embed.FS

// Message is a rendered email ready for a Transport.
type Message struct {
	To          payment.Customer
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

var subjects = map[job.Type]func(job.Payload) string{
	job.TypePaymentConfirmation: func(p job.Payload) string {
		return "Payment received " + p.(*job.PaymentConfirmation).Payment.Reference
	},
	job.TypeBookingConfirmation: func(p job.Payload) string {
		return "Booking confirmed: " + p.(*job.BookingConfirmation).CourseTitle
	},
	job.TypeGiftCardDelivery: func(job.Payload) string {
		return "Your gift card"
	},
	job.TypeOrderConfirmation: func(p job.Payload) string {
		return "Order confirmed: " + p.(*job.OrderConfirmation).ProductTitle
	},
}

var templateFuncs = map[string]any{
	"money": func(minor int64, currency string) string {
		return payment.Amount{Minor: minor, Currency: currency}.String()
	},
	"date": func(t time.Time) string {
		return t.Format("2006-01-02")
	},
	"datetime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04")
	},
}

// Renderer turns a job payload into a Message. It is pure: the same payload
// always renders the same message.
type Renderer struct {
	brand string
	html  *htmltemplate.Template
	text  *texttemplate.Template
}

func NewRenderer(brand string) (*Renderer, error) {
	html, err := htmltemplate.New("email").Funcs(templateFuncs).ParseFS(templateFS, "templates/email/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	text, err := texttemplate.New("email").Funcs(templateFuncs).ParseFS(templateFS, "templates/email/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{brand: brand, html: html, text: text}, nil
}

type emailView struct {
	Brand   string
	Subject string
	Payload job.Payload
}

// Render selects the template for jobType. An unknown type is a programming
// error and fails with ErrUnknownJobType.
func (r *Renderer) Render(jobType job.Type, payload job.Payload) (*Message, error) {
	subject, ok := subjects[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrUnknownJobType, jobType)
	}
	if payload == nil || payload.JobType() != jobType {
		return nil, fmt.Errorf("%w: payload does not match %s", domainErrors.ErrInvalidPayload, jobType)
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrInvalidPayload, err)
	}

	view := emailView{Brand: r.brand, Subject: subject(payload), Payload: payload}

	var html, text bytes.Buffer
	if err := r.html.ExecuteTemplate(&html, string(jobType)+".html", view); err != nil {
		return nil, fmt.Errorf("render %s html: %w", jobType, err)
	}
	if err := r.text.ExecuteTemplate(&text, string(jobType)+".txt", view); err != nil {
		return nil, fmt.Errorf("render %s text: %w", jobType, err)
	}

	return &Message{
		To:       recipient(payload),
		Subject:  view.Subject,
		HTMLBody: html.String(),
		TextBody: text.String(),
	}, nil
}

func recipient(p job.Payload) payment.Customer {
	switch v := p.(type) {
	case *job.PaymentConfirmation:
		return v.Recipient
	case *job.BookingConfirmation:
		return v.Recipient
	case *job.GiftCardDelivery:
		return v.Recipient
	case *job.OrderConfirmation:
		return v.Recipient
	}
	return payment.Customer{}
}

// snapshot returns the payment part every payload carries.
func snapshot(p job.Payload) (job.PaymentSnapshot, bool) {
	switch v := p.(type) {
	case *job.PaymentConfirmation:
		return v.Payment, true
	case *job.BookingConfirmation:
		return v.Payment, true
	case *job.GiftCardDelivery:
		return v.Payment, true
	case *job.OrderConfirmation:
		return v.Payment, true
	}
	return job.PaymentSnapshot{}, false
}
