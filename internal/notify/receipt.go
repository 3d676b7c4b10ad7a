package notify

import (
	htmltemplate "html/template"
	"strings"
	"text/template"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var kes = currency.MustParseISO("KES")

var textReceipt = template.Must(template.New("receipt.txt").Parse(`Dear {{.Name}},

Thank you for your payment of {{.Amount}}.
Your M-PESA confirmation receipt is {{.ReceiptID}}.

Best Regards,
Lipa
`))

var htmlReceipt = htmltemplate.Must(htmltemplate.New("receipt.html").Parse(
	`<p>Dear {{.Name}},</p>` +
		`<p>Thank you for your payment of {{.Amount}}.</p>` +
		`<p>Your M-PESA confirmation receipt is <strong>{{.ReceiptID}}</strong>.</p>` +
		`<p>Best Regards, Lipa</p>`))

type receiptView struct {
	Name      string
	Amount    string
	ReceiptID string
}

// FormatAmount renders an amount in Kenyan shillings with its ISO code, e.g. "KES 1,500.00".
func FormatAmount(r Receipt) string {
	f, _ := r.Amount.Float64()

	return message.NewPrinter(language.English).Sprint(currency.ISO(kes.Amount(f)))
}

func renderReceipt(r Receipt) (text, html string, err error) {
	name := r.Name
	if name == "" {
		name = "Customer"
	}

	view := receiptView{Name: name, Amount: FormatAmount(r), ReceiptID: r.ReceiptID}

	var tb, hb strings.Builder
	if err := textReceipt.Execute(&tb, view); err != nil {
		return "", "", err
	}

	if err := htmlReceipt.Execute(&hb, view); err != nil {
		return "", "", err
	}

	return tb.String(), hb.String(), nil
}
