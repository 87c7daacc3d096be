// internal/pkg/email/service.go
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/your-org/erp-backend/internal/config"
)

// Email represents an outbound message
type Email struct {
	To          []string
	Subject     string
	HTMLContent string
	Attachments []Attachment
}

// Attachment is a file carried with the message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EmailService sends transactional mail over SMTP
type EmailService struct {
	config *config.Config
	log    *logrus.Logger
}

// NewEmailService creates a new email service
func NewEmailService(cfg *config.Config, log *logrus.Logger) *EmailService {
	return &EmailService{
		config: cfg,
		log:    log,
	}
}

// SendEmail delivers the message. When SMTP is not configured the send
// is logged and skipped, so development environments work without a
// mail server.
func (s *EmailService) SendEmail(ctx context.Context, email *Email) error {
	if len(email.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}

	if s.config.Email.SMTPHost == "" {
		s.log.WithFields(logrus.Fields{
			"to":      email.To,
			"subject": email.Subject,
		}).Info("SMTP not configured, skipping email send")
		return nil
	}

	if err := s.sendSMTPEmail(email); err != nil {
		s.log.WithError(err).WithField("subject", email.Subject).Error("Failed to send email")
		return err
	}

	s.log.WithFields(logrus.Fields{
		"to":      email.To,
		"subject": email.Subject,
	}).Info("Email sent")
	return nil
}

// ShipmentNotificationData feeds the shipment email template
type ShipmentNotificationData struct {
	CustomerName string
	OrderNumber  string
	NoteNumber   string
	ShippedDate  string
	CompanyName  string
	Year         int
}

// SendShipmentNotification tells the customer their order left the warehouse
func (s *EmailService) SendShipmentNotification(ctx context.Context, to string, data ShipmentNotificationData, attachments ...Attachment) error {
	data.CompanyName = s.config.App.CompanyName
	data.Year = time.Now().Year()

	html, err := renderEmailTemplate("shipment", shipmentTemplate, data)
	if err != nil {
		return err
	}

	return s.SendEmail(ctx, &Email{
		To:          []string{to},
		Subject:     fmt.Sprintf("Order %s has shipped", data.OrderNumber),
		HTMLContent: html,
		Attachments: attachments,
	})
}

// InvoiceNotificationData feeds the invoice email template
type InvoiceNotificationData struct {
	CustomerName  string
	OrderNumber   string
	InvoiceNumber string
	InvoiceTotal  string
	CompanyName   string
	Year          int
}

// SendInvoiceNotification delivers the tax invoice
func (s *EmailService) SendInvoiceNotification(ctx context.Context, to string, data InvoiceNotificationData, attachments ...Attachment) error {
	data.CompanyName = s.config.App.CompanyName
	data.Year = time.Now().Year()

	html, err := renderEmailTemplate("invoice", invoiceEmailTemplate, data)
	if err != nil {
		return err
	}

	return s.SendEmail(ctx, &Email{
		To:          []string{to},
		Subject:     fmt.Sprintf("Tax invoice %s for order %s", data.InvoiceNumber, data.OrderNumber),
		HTMLContent: html,
		Attachments: attachments,
	})
}

// PickingSlipNotificationData feeds the warehouse picking email template
type PickingSlipNotificationData struct {
	SlipNumber  string
	OrderNumber string
	Warehouse   string
	CompanyName string
	Year        int
}

// SendPickingSlipNotification alerts the warehouse that picking work is queued
func (s *EmailService) SendPickingSlipNotification(ctx context.Context, to string, data PickingSlipNotificationData, attachments ...Attachment) error {
	data.CompanyName = s.config.App.CompanyName
	data.Year = time.Now().Year()

	html, err := renderEmailTemplate("picking_slip", pickingSlipEmailTemplate, data)
	if err != nil {
		return err
	}

	return s.SendEmail(ctx, &Email{
		To:          []string{to},
		Subject:     fmt.Sprintf("Picking slip %s ready for order %s", data.SlipNumber, data.OrderNumber),
		HTMLContent: html,
		Attachments: attachments,
	})
}

func renderEmailTemplate(name, text string, data interface{}) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

const shipmentTemplate = `
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Your order is on its way</h2>
    <p>Hi {{.CustomerName}},</p>
    <p>Order <strong>{{.OrderNumber}}</strong> was shipped on {{.ShippedDate}}
       under delivery note <strong>{{.NoteNumber}}</strong>.</p>
    <p>Thank you for your business.</p>
    <p style="color: #888; font-size: 12px;">&copy; {{.Year}} {{.CompanyName}}</p>
</body>
</html>
`

const invoiceEmailTemplate = `
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Tax invoice {{.InvoiceNumber}}</h2>
    <p>Hi {{.CustomerName}},</p>
    <p>Please find attached the tax invoice for order
       <strong>{{.OrderNumber}}</strong>, totalling <strong>{{.InvoiceTotal}}</strong>.</p>
    <p>Payment is due within 30 days.</p>
    <p style="color: #888; font-size: 12px;">&copy; {{.Year}} {{.CompanyName}}</p>
</body>
</html>
`

const pickingSlipEmailTemplate = `
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h2>Picking slip {{.SlipNumber}}</h2>
    <p>Picking slip <strong>{{.SlipNumber}}</strong> for order
       <strong>{{.OrderNumber}}</strong> is queued at {{.Warehouse}}.</p>
    <p style="color: #888; font-size: 12px;">&copy; {{.Year}} {{.CompanyName}}</p>
</body>
</html>
`
