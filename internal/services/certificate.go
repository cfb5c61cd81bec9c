package services

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	certActivityTitle = "The Electronic Asthma Management system - Learning Activity (ID-202678)"
	certCreditHeading = "Credits for Family Physicians"
	certCreditBody    = "This 3-credit-per-hour activity has been certified by the College of Family Physicians of Canada for up to 72 Mainpro+ Certified Activity credits."
	certClaimBody     = "Claiming your credits: Please submit your credits for this activity online at www.cfpc.ca/login. Please retain proof of your participation for six (6) years in case you are selected to participate in credit validation or auditing."

	certBorderWidth = 10.0
	certLogoWidth   = 250.0
	certLogoHeight  = 100.0
)

// CertificateRenderer produces the fixed-layout attendance certificate.
// It does not gate on cycle completion; callers decide whether a preview
// is acceptable.
type CertificateRenderer struct {
	logoPath string
	now      func() time.Time
}

// NewCertificateRenderer takes the path to the activity logo; an empty
// path or a missing file renders the certificate without it.
func NewCertificateRenderer(logoPath string) *CertificateRenderer {
	return &CertificateRenderer{
		logoPath: logoPath,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *CertificateRenderer) line(pdf *fpdf.Fpdf, family, style string, size float64, text string) {
	pdf.SetFont(family, style, size)
	pdf.MultiCell(0, size+6, text, "", "C", false)
}

// Render lays out the certificate for one session and returns the PDF bytes.
func (r *CertificateRenderer) Render(session *Session) ([]byte, error) {
	if session == nil {
		return nil, NewNotFoundError("Session not found.")
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	// Pin the metadata timestamps so the same session and date always
	// produce identical bytes.
	pdf.SetCreationDate(r.now())
	pdf.SetModificationDate(r.now())
	pdf.SetCatalogSort(true)
	pdf.SetMargins(72, 36, 72)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	pdf.SetLineWidth(certBorderWidth)
	pdf.SetDrawColor(0xAD, 0xD8, 0xE6)
	pdf.Rect(certBorderWidth/2, certBorderWidth/2, pageW-certBorderWidth, pageH-certBorderWidth, "D")

	if r.logoPath != "" {
		if _, err := os.Stat(r.logoPath); err == nil {
			pdf.ImageOptions(r.logoPath, (pageW-certLogoWidth)/2, 30, certLogoWidth, certLogoHeight,
				false, fpdf.ImageOptions{ReadDpi: true}, 0, "")
		}
	}
	pdf.SetY(30 + certLogoHeight + 40)

	name := session.Name
	if name == "" {
		name = "Unknown User"
	}
	date := r.now().Format("January 2, 2006")

	r.line(pdf, "Helvetica", "", 22, "Certificate of Attendance")
	r.line(pdf, "Helvetica", "", 20, "Continuing Professional Development")
	pdf.Ln(24)

	r.line(pdf, "Helvetica", "", 18, "This is to certify that")
	r.line(pdf, "Helvetica", "BU", 18, name)
	pdf.Ln(24)

	r.line(pdf, "Helvetica", "", 18, "has completed the continuing development program titled")
	pdf.Ln(12)
	r.line(pdf, "Helvetica", "B", 18, certActivityTitle)
	pdf.Ln(12)
	r.line(pdf, "Helvetica", "", 16, fmt.Sprintf("CERT + Session ID: %d", session.SessionID))
	pdf.Ln(12)

	r.line(pdf, "Helvetica", "", 15, "On")
	r.line(pdf, "Helvetica", "", 15, "Date: "+date)
	r.line(pdf, "Helvetica", "", 15, "At their own location")
	pdf.Ln(30)

	r.line(pdf, "Helvetica", "B", 13, certCreditHeading)
	r.line(pdf, "Helvetica", "", 13, certCreditBody)
	pdf.Ln(30)
	r.line(pdf, "Helvetica", "", 11, certClaimBody)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
