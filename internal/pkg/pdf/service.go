// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"

	"github.com/your-org/erp-backend/internal/config"
	"github.com/your-org/erp-backend/internal/domain/fulfillment"
	"github.com/your-org/erp-backend/internal/domain/order"
)

// Service handles PDF generation
type Service struct {
	config *config.Config
}

// NewService creates a new PDF service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
	}
}

// GenerateTaxInvoice renders the tax invoice for a shipped order
func (s *Service) GenerateTaxInvoice(inv *fulfillment.TaxInvoice, so *order.SalesOrder) (*bytes.Buffer, error) {
	issued := time.Now()
	if inv.IssuedAt != nil {
		issued = *inv.IssuedAt
	}

	data := invoiceData{
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   issued.Format("January 2, 2006"),
		DueDate:       issued.AddDate(0, 0, 30).Format("January 2, 2006"),
		Total:         inv.Total.StringFixed(2),
		Order:         so,
		Company:       s.companyInfo(),
	}

	htmlContent, err := renderTemplate("invoice", invoiceTemplate, data)
	if err != nil {
		return nil, err
	}
	return s.htmlToPDF(htmlContent)
}

// GeneratePickingSlip renders the warehouse picking document
func (s *Service) GeneratePickingSlip(slip *fulfillment.PickingSlip, so *order.SalesOrder) (*bytes.Buffer, error) {
	data := pickingSlipData{
		SlipNumber:  slip.SlipNumber,
		SlipDate:    slip.CreatedAt.Format("January 2, 2006"),
		OrderNumber: so.OrderNumber,
		Slip:        slip,
		Company:     s.companyInfo(),
	}

	htmlContent, err := renderTemplate("picking_slip", pickingSlipTemplate, data)
	if err != nil {
		return nil, err
	}
	return s.htmlToPDF(htmlContent)
}

// htmlToPDF converts rendered HTML to a PDF document
func (s *Service) htmlToPDF(htmlContent string) (*bytes.Buffer, error) {
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.Grayscale.Set(false)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader([]byte(htmlContent)))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	page.Zoom.Set(0.95)

	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}

	return bytes.NewBuffer(pdfg.Bytes()), nil
}

func (s *Service) companyInfo() companyInfo {
	return companyInfo{
		Name:    s.config.App.CompanyName,
		Address: s.config.App.CompanyAddress,
		Phone:   s.config.App.CompanyPhone,
		Email:   s.config.App.CompanyEmail,
	}
}

func renderTemplate(name, text string, data interface{}) (string, error) {
	tmpl := template.Must(template.New(name).Parse(text))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// invoiceData is passed to the invoice template
type invoiceData struct {
	InvoiceNumber string
	InvoiceDate   string
	DueDate       string
	Total         string
	Order         *order.SalesOrder
	Company       companyInfo
}

// pickingSlipData is passed to the picking slip template
type pickingSlipData struct {
	SlipNumber  string
	SlipDate    string
	OrderNumber string
	Slip        *fulfillment.PickingSlip
	Company     companyInfo
}

type companyInfo struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

const invoiceTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Tax Invoice {{.InvoiceNumber}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; }
        .header { display: flex; justify-content: space-between; margin-bottom: 30px; border-bottom: 2px solid #333; padding-bottom: 20px; }
        .company-info h1 { margin: 0 0 5px 0; font-size: 22px; }
        .company-info p { margin: 2px 0; font-size: 12px; }
        .invoice-info { text-align: right; }
        .invoice-title { font-size: 26px; font-weight: bold; letter-spacing: 2px; }
        .invoice-info p { margin: 3px 0; font-size: 12px; }
        table.lines { width: 100%; border-collapse: collapse; margin-top: 20px; }
        table.lines th { background: #333; color: #fff; padding: 8px; font-size: 12px; text-align: left; }
        table.lines th.num, table.lines td.num { text-align: right; }
        table.lines td { padding: 8px; font-size: 12px; border-bottom: 1px solid #ddd; }
        .totals { margin-top: 20px; text-align: right; }
        .totals .grand { font-size: 16px; font-weight: bold; }
        .footer { margin-top: 40px; font-size: 11px; color: #888; }
    </style>
</head>
<body>
    <div class="header">
        <div class="company-info">
            <h1>{{.Company.Name}}</h1>
            <p>{{.Company.Address}}</p>
            <p>Phone: {{.Company.Phone}}</p>
            <p>Email: {{.Company.Email}}</p>
        </div>
        <div class="invoice-info">
            <div class="invoice-title">TAX INVOICE</div>
            <p><strong>Invoice #:</strong> {{.InvoiceNumber}}</p>
            <p><strong>Invoice Date:</strong> {{.InvoiceDate}}</p>
            <p><strong>Due Date:</strong> {{.DueDate}}</p>
            <p><strong>Order #:</strong> {{.Order.OrderNumber}}</p>
        </div>
    </div>

    <table class="lines">
        <thead>
            <tr>
                <th>#</th>
                <th>SKU</th>
                <th>Description</th>
                <th class="num">Shipped</th>
                <th class="num">Unit Price</th>
                <th class="num">Line Total</th>
            </tr>
        </thead>
        <tbody>
            {{range .Order.Lines}}
            <tr>
                <td>{{.LineNo}}</td>
                <td>{{.SKU}}</td>
                <td>{{.Name}}</td>
                <td class="num">{{.QuantityShipped}}</td>
                <td class="num">{{.UnitPrice.StringFixed 2}}</td>
                <td class="num">{{.LineTotal.StringFixed 2}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>

    <div class="totals">
        <p class="grand">Total Due: {{.Total}}</p>
    </div>

    <div class="footer">
        <p>Payment is due within 30 days of the invoice date.</p>
    </div>
</body>
</html>
`

const pickingSlipTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Picking Slip {{.SlipNumber}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; }
        .header { display: flex; justify-content: space-between; margin-bottom: 30px; border-bottom: 2px solid #333; padding-bottom: 20px; }
        .company-info h1 { margin: 0 0 5px 0; font-size: 22px; }
        .doc-info { text-align: right; }
        .doc-title { font-size: 26px; font-weight: bold; letter-spacing: 2px; }
        .doc-info p { margin: 3px 0; font-size: 12px; }
        table.lines { width: 100%; border-collapse: collapse; margin-top: 20px; }
        table.lines th { background: #333; color: #fff; padding: 8px; font-size: 12px; text-align: left; }
        table.lines th.num, table.lines td.num { text-align: right; }
        table.lines td { padding: 8px; font-size: 12px; border-bottom: 1px solid #ddd; }
        .sign-off { margin-top: 60px; display: flex; justify-content: space-between; font-size: 12px; }
        .sign-off .block { width: 40%; border-top: 1px solid #333; padding-top: 5px; }
    </style>
</head>
<body>
    <div class="header">
        <div class="company-info">
            <h1>{{.Company.Name}}</h1>
        </div>
        <div class="doc-info">
            <div class="doc-title">PICKING SLIP</div>
            <p><strong>Slip #:</strong> {{.SlipNumber}}</p>
            <p><strong>Date:</strong> {{.SlipDate}}</p>
            <p><strong>Order #:</strong> {{.OrderNumber}}</p>
        </div>
    </div>

    <table class="lines">
        <thead>
            <tr>
                <th>SKU</th>
                <th class="num">Quantity</th>
                <th>Picked ✓</th>
            </tr>
        </thead>
        <tbody>
            {{range .Slip.Lines}}
            <tr>
                <td>{{.SKU}}</td>
                <td class="num">{{.Quantity}}</td>
                <td></td>
            </tr>
            {{end}}
        </tbody>
    </table>

    <div class="sign-off">
        <div class="block">Picked by / date</div>
        <div class="block">Checked by / date</div>
    </div>
</body>
</html>
`
