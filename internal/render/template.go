package render

import (
	"bytes"
	"embed"
	"encoding/base64"
	"html/template"
)

//go:embed templates/challan.html
var templateFS embed.FS

var challanTemplate = template.Must(template.ParseFS(templateFS, "templates/challan.html"))

// ChallanData is the payload the challan template renders. DateTime is
// preformatted as DD-MM-YYYY HH:MM by the caller.
type ChallanData struct {
	ChallanNo     string
	DateTime      string
	CarNumber     string
	Wheels        int
	Location      string
	Cft           float64
	PoliceStation string
	Consignee     string
	QRBase64      string
	Token         string
}

// RenderChallanHTML fills the challan template with invoice data and the
// QR image.
func RenderChallanHTML(data ChallanData, qrPNG []byte) (string, error) {
	data.QRBase64 = base64.StdEncoding.EncodeToString(qrPNG)

	var buf bytes.Buffer
	if err := challanTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
