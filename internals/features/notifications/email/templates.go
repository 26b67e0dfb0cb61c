package email

import (
	"bytes"
	htmltpl "html/template"
	"strings"
	texttpl "text/template"
)

// Message is a rendered email ready for Sender.Send.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

type ReceiptData struct {
	OrgName    string
	Name       string
	Amount     string
	DonationID string
	Date       string
	Type       string
}

type AdminDonationData struct {
	OrgName string
	Donor   string
	Amount  string
	Type    string
	Status  string
}

const layoutStyle = `
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background: linear-gradient(135deg, #1a5d4e 0%, #2d9474 100%); color: white; padding: 30px; text-align: center; border-radius: 10px 10px 0 0; }
.content { background: #f9f9f9; padding: 30px; border-radius: 0 0 10px 10px; }
.box { background: white; padding: 25px; border-radius: 5px; margin: 20px 0; border: 2px solid #1a5d4e; }
.amount { font-size: 32px; font-weight: bold; color: #1a5d4e; margin: 15px 0; }
.footer { text-align: center; margin-top: 20px; color: #666; font-size: 12px; }
`

var receiptHTML = htmltpl.Must(htmltpl.New("receipt").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><style>` + layoutStyle + `</style></head>
<body>
  <div class="container">
    <div class="header"><h1>Donation Receipt</h1></div>
    <div class="content">
      <p>Assalamu Alaikum {{.Name}},</p>
      <p>Thank you for your generous donation! May Allah accept it from you and reward you abundantly.</p>
      <div class="box">
        <h2 style="color: #1a5d4e; margin-top: 0;">DONATION RECEIPT</h2>
        <p><strong>Receipt ID:</strong> {{.DonationID}}</p>
        <p><strong>Date:</strong> {{.Date}}</p>
        <p><strong>Type:</strong> {{.Type}}</p>
        <div class="amount">KES {{.Amount}}</div>
      </div>
      <p>This is an official receipt for your donation. Please keep this for your records.</p>
      <p>JazakAllah Khair for your generosity and support.</p>
      <p>The {{.OrgName}} Team</p>
    </div>
  </div>
</body>
</html>`))

var receiptText = texttpl.Must(texttpl.New("receipt").Parse(`Assalamu Alaikum {{.Name}},

Thank you for your generous donation! May Allah accept it from you and reward you abundantly.

DONATION RECEIPT
Receipt ID: {{.DonationID}}
Date: {{.Date}}
Type: {{.Type}}
Amount: KES {{.Amount}}

This is an official receipt for your donation. Please keep this for your records.

JazakAllah Khair for your generosity and support.

The {{.OrgName}} Team`))

var adminHTML = htmltpl.Must(htmltpl.New("admin").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><style>` + layoutStyle + `</style></head>
<body>
  <div class="container">
    <div class="header"><h1>Admin Notification</h1><p>New Donation</p></div>
    <div class="content">
      <p>Assalamu Alaikum,</p>
      <p>A new donation has been received.</p>
      <div class="box">
        <p><strong>Donor:</strong> {{.Donor}}</p>
        <p><strong>Amount:</strong> KES {{.Amount}}</p>
        <p><strong>Type:</strong> {{.Type}}</p>
        <p><strong>Status:</strong> {{.Status}}</p>
      </div>
      <p>Please log in to the admin panel to review and manage this donation.</p>
      <p>JazakAllah Khair,<br>{{.OrgName}} System</p>
    </div>
    <div class="footer"><p>This is an automated notification from the {{.OrgName}} platform.</p></div>
  </div>
</body>
</html>`))

var adminText = texttpl.Must(texttpl.New("admin").Parse(`Assalamu Alaikum,

A new donation has been received.

Donor: {{.Donor}}
Amount: KES {{.Amount}}
Type: {{.Type}}
Status: {{.Status}}

Please log in to the admin panel to review and manage this donation.

JazakAllah Khair,
{{.OrgName}} System`))

func DonationReceipt(d ReceiptData) (Message, error) {
	if strings.TrimSpace(d.Name) == "" {
		d.Name = "Brother/Sister"
	}
	html, text, err := render(receiptHTML, receiptText, d)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: "Donation Receipt - " + d.OrgName, HTML: html, Text: text}, nil
}

func AdminDonationNotification(d AdminDonationData) (Message, error) {
	if d.Type == "" {
		d.Type = "N/A"
	}
	if d.Status == "" {
		d.Status = "pending"
	}
	html, text, err := render(adminHTML, adminText, d)
	if err != nil {
		return Message{}, err
	}
	return Message{Subject: "New Donation - " + d.OrgName, HTML: html, Text: text}, nil
}

func render(h *htmltpl.Template, t *texttpl.Template, data any) (string, string, error) {
	var hb, tb bytes.Buffer
	if err := h.Execute(&hb, data); err != nil {
		return "", "", err
	}
	if err := t.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}
