package report

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/unidoc/unipdf/v3/common/license"
)

// Format is an export format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "txt"
	FormatHTML Format = "html"
)

// ErrUnknownFormat is returned for formats other than pdf, txt and html.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat maps a request value to a Format. Empty means PDF.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return FormatPDF, nil
	case "txt", "text":
		return FormatText, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

var contentTypes = map[Format]string{
	FormatPDF:  "application/pdf",
	FormatText: "text/plain; charset=utf-8",
	FormatHTML: "text/html; charset=utf-8",
}

// Document is an exported report file.
type Document struct {
	Name        string
	ContentType string
	Format      Format
	Data        []byte
	// Degraded is set when the requested format could not be produced and a
	// fallback was served instead.
	Degraded bool
}

// Exporter renders reports, degrading PDF to a simplified PDF and then to
// plain text.
type Exporter struct {
	pdfAvailable bool
	renderPDF    func(*Report, bool) ([]byte, error)
	logger       *slog.Logger
}

// NewExporter registers the unipdf licence key. Without a key PDF export is
// unavailable and requests for it are served as plain text.
func NewExporter(licenseKey string, logger *slog.Logger) *Exporter {
	e := &Exporter{renderPDF: RenderPDF, logger: logger}
	if licenseKey == "" {
		logger.Info("pdf export disabled, no unidoc licence key")
		return e
	}
	if err := license.SetMeteredKey(licenseKey); err != nil {
		logger.Warn("pdf export disabled, licence rejected", "error", err)
		return e
	}
	e.pdfAvailable = true
	return e
}

// PDFAvailable reports whether PDF export can be attempted.
func (e *Exporter) PDFAvailable() bool {
	return e.pdfAvailable
}

// Export renders r in the requested format. Plain text never fails, so an
// error is only returned for HTML rendering failures or unknown formats.
func (e *Exporter) Export(r *Report, format Format) (*Document, error) {
	switch format {
	case FormatText:
		return e.text(r, false), nil
	case FormatHTML:
		data, err := RenderHTML(r)
		if err != nil {
			return nil, err
		}
		return e.document(r, FormatHTML, data, false), nil
	case FormatPDF:
		return e.pdf(r), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func (e *Exporter) pdf(r *Report) *Document {
	if !e.pdfAvailable {
		return e.text(r, true)
	}

	data, err := e.renderPDF(r, false)
	if err == nil {
		return e.document(r, FormatPDF, data, false)
	}
	e.logger.Warn("pdf export failed, trying simplified layout", "report_id", r.Header.ReportID, "error", err)

	data, err = e.renderPDF(r, true)
	if err == nil {
		return e.document(r, FormatPDF, data, true)
	}
	e.logger.Warn("simplified pdf export failed, serving plain text", "report_id", r.Header.ReportID, "error", err)
	return e.text(r, true)
}

func (e *Exporter) text(r *Report, degraded bool) *Document {
	return e.document(r, FormatText, []byte(RenderText(r)), degraded)
}

func (e *Exporter) document(r *Report, f Format, data []byte, degraded bool) *Document {
	return &Document{
		Name:        FileName(r, f),
		ContentType: contentTypes[f],
		Format:      f,
		Data:        data,
		Degraded:    degraded,
	}
}

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N}_.-]+`)

// FileName returns Arogya_Health_Report_<Name>_<YYYY-MM-DD>.<ext>. The name
// part is omitted for anonymous reports.
func FileName(r *Report, f Format) string {
	date := r.Header.GeneratedAt.Format("2006-01-02")
	name := r.Header.Name
	if name == "" || name == AnonymousName {
		return fmt.Sprintf("Arogya_Health_Report_%s.%s", date, f)
	}
	name = strings.Join(strings.Fields(name), "_")
	name = strings.Trim(unsafeFileChars.ReplaceAllString(name, ""), "._-")
	if name == "" {
		return fmt.Sprintf("Arogya_Health_Report_%s.%s", date, f)
	}
	return fmt.Sprintf("Arogya_Health_Report_%s_%s.%s", name, date, f)
}
