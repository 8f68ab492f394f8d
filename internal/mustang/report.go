package mustang

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"zugferd/pkg/services"
)

type xmlReport struct {
	XMLName xml.Name   `xml:"validation"`
	PDF     *xmlPart   `xml:"pdf"`
	XML     *xmlPart   `xml:"xml"`
	Summary xmlSummary `xml:"summary"`
}

type xmlPart struct {
	Info     xmlInfo      `xml:"info"`
	Messages xmlMessages `xml:"messages"`
	Summary  xmlSummary   `xml:"summary"`
	// Some toolkit versions list messages directly under the part.
	Errors   []xmlMessage `xml:"error"`
	Warnings []xmlMessage `xml:"warning"`
	Notices  []xmlMessage `xml:"notice"`
}

type xmlMessages struct {
	Items []xmlMessage `xml:",any"`
}

type xmlInfo struct {
	Version   string `xml:"version"`
	Profile   string `xml:"profile"`
	Signature string `xml:"signature"`
}

type xmlSummary struct {
	Status string `xml:"status,attr"`
}

type xmlMessage struct {
	XMLName  xml.Name
	Type     string `xml:"type,attr"`
	Location string `xml:"location,attr"`
	Text     string `xml:",chardata"`
}

// ParseReport extracts the validation report from the toolkit's standard
// output. Log lines before the report are skipped.
func ParseReport(output []byte) (*services.ValidationReport, error) {
	start := bytes.Index(output, []byte("<validation"))
	if start < 0 {
		return nil, ErrNoReport
	}
	end := bytes.LastIndex(output, []byte("</validation>"))
	if end < start {
		return nil, fmt.Errorf("%w: report is incomplete", ErrNoReport)
	}

	var raw xmlReport
	if err := xml.Unmarshal(output[start:end+len("</validation>")], &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoReport, err)
	}

	report := &services.ValidationReport{
		Valid: isValid(raw.Summary.Status),
	}
	if raw.PDF != nil {
		pdfValid := isValid(raw.PDF.Summary.Status)
		report.PDFValid = &pdfValid
		report.Signature = strings.TrimSpace(raw.PDF.Info.Signature)
		report.Messages = append(report.Messages, messages(raw.PDF)...)
	}
	if raw.XML != nil {
		report.XMLValid = isValid(raw.XML.Summary.Status)
		report.Version = strings.TrimSpace(raw.XML.Info.Version)
		report.Profile = strings.TrimSpace(raw.XML.Info.Profile)
		report.Messages = append(report.Messages, messages(raw.XML)...)
	}
	if raw.Summary.Status == "" {
		report.Valid = report.XMLValid && (report.PDFValid == nil || *report.PDFValid)
	}
	return report, nil
}

func isValid(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "valid")
}

func messages(part *xmlPart) []services.ValidationMessage {
	var out []services.ValidationMessage
	all := make([]xmlMessage, 0, len(part.Messages.Items)+len(part.Errors)+len(part.Warnings)+len(part.Notices))
	all = append(all, part.Messages.Items...)
	all = append(all, part.Errors...)
	all = append(all, part.Warnings...)
	all = append(all, part.Notices...)

	for _, m := range all {
		out = append(out, services.ValidationMessage{
			Severity: severity(m.XMLName.Local),
			Type:     m.Type,
			Text:     strings.TrimSpace(m.Text),
			Location: m.Location,
		})
	}
	return out
}

func severity(element string) services.Severity {
	switch strings.ToLower(element) {
	case "error", "fatal":
		return services.SeverityError
	case "warning":
		return services.SeverityWarning
	default:
		return services.SeverityNotice
	}
}
