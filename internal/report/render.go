package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/MikeSquared-Agency/arogya/internal/assessment"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var htmlTemplate = template.Must(template.New("report.html.tmpl").Funcs(template.FuncMap{
	"remedy": func(k assessment.Kind) bool {
		return k == assessment.TraditionalRemedy
	},
}).ParseFS(templateFS, "templates/report.html.tmpl"))

// BodyText renders a section body from its blocks when it has any.
func (s Section) BodyText() string {
	if len(s.Blocks) == 0 {
		return s.Body
	}
	parts := make([]string, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		switch b.Kind {
		case BlockList:
			lines := make([]string, len(b.Items))
			for i, item := range b.Items {
				lines[i] = "- " + item
			}
			parts = append(parts, strings.Join(lines, "\n"))
		default:
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// RenderBody renders the report sections headed by their canonical markers,
// so assessment.Parse recovers the same sections.
func RenderBody(r *Report) string {
	var sb strings.Builder
	for i, s := range r.Sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(assessment.Marker(s.Kind))
		sb.WriteString("\n")
		sb.WriteString(s.BodyText())
	}
	return sb.String()
}

// RenderText renders the plain-text export.
func RenderText(r *Report) string {
	var sb strings.Builder
	sb.WriteString(r.Title + "\n")
	sb.WriteString(strings.Repeat("=", len([]rune(r.Title))) + "\n\n")

	sb.WriteString("Patient Information\n")
	for _, f := range headerFields(r) {
		fmt.Fprintf(&sb, "%s: %s\n", f[0], f[1])
	}
	sb.WriteString("\n")

	if len(r.Sections) > 0 {
		sb.WriteString(RenderBody(r))
		sb.WriteString("\n\n")
	}
	if r.Emergency {
		sb.WriteString(EmergencyWarning + "\n\n")
	}
	sb.WriteString(assessment.Marker(assessment.SafetyDisclaimer) + ": " + r.Disclaimer + "\n")
	return sb.String()
}

// RenderHTML renders a printable HTML page.
func RenderHTML(r *Report) ([]byte, error) {
	var buf bytes.Buffer
	data := struct {
		*Report
		Fields           [][2]string
		EmergencyWarning string
	}{r, headerFields(r), EmergencyWarning}
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

func headerFields(r *Report) [][2]string {
	h := r.Header
	fields := [][2]string{
		{"Name", h.Name},
		{"Date", h.GeneratedAt.Format("2006-01-02")},
		{"Time", h.GeneratedAt.Format("15:04")},
		{"Report ID", h.ReportID},
		{"Age", h.Age},
		{"Gender", h.Gender},
	}
	if h.Location != "" {
		fields = append(fields, [2]string{"Location", h.Location})
	}
	return fields
}
