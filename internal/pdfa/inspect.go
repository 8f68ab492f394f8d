// Package pdfa inspects PDF files for PDF/A conformance and embedded
// e-invoice XML, and converts ordinary PDFs to PDF/A-3 with Ghostscript.
package pdfa

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// MaxDocumentSize is the largest PDF that is inspected (20MB).
const MaxDocumentSize = 20 * 1024 * 1024

// maxInflated caps the decompressed bytes read from all streams of one
// document together.
const maxInflated = 64 * 1024 * 1024

func init() {
	api.DisableConfigDir()
}

// InvoiceAttachments are the file names under which the ZUGFeRD, Factur-X
// and XRechnung formats embed their XML.
var InvoiceAttachments = []string{
	"factur-x.xml",
	"zugferd-invoice.xml",
	"ZUGFeRD-invoice.xml",
	"xrechnung.xml",
}

// Info describes a PDF.
type Info struct {
	PDFVersion     string `json:"pdfVersion"`     // header version, e.g. "1.7"
	Version        int    `json:"pdfaVersion"`    // PDF/A part, 0 when not PDF/A
	Conformance    string `json:"conformance"`    // "A", "B" or "U"
	HasInvoiceXML  bool   `json:"hasInvoiceXML"`  // an e-invoice attachment is present
	AttachmentName string `json:"attachmentName"` // name of that attachment
	Size           int64  `json:"size"`
}

// IsPDFA reports whether the file claims PDF/A conformance.
func (i Info) IsPDFA() bool {
	return i.Version > 0
}

// IsHybridInvoice reports whether the file is a PDF/A-3 with embedded
// invoice XML, i.e. a complete ZUGFeRD/Factur-X document.
func (i Info) IsHybridInvoice() bool {
	return i.Version == 3 && i.HasInvoiceXML
}

// Label is a short description such as "PDF/A-3B".
func (i Info) Label() string {
	if !i.IsPDFA() {
		return "PDF " + i.PDFVersion
	}
	return fmt.Sprintf("PDF/A-%d%s", i.Version, i.Conformance)
}

var (
	headerPattern      = regexp.MustCompile(`%PDF-(\d\.\d)`)
	partPattern        = regexp.MustCompile(`pdfaid:part\s*(?:=\s*["'](\d)["']|>\s*(\d)\s*<)`)
	conformancePattern = regexp.MustCompile(`pdfaid:conformance\s*(?:=\s*["']([A-Za-z])["']|>\s*([A-Za-z])\s*<)`)
	streamPattern      = regexp.MustCompile(`(?s)stream\r?\n(.*?)endstream`)
)

// InspectFile opens path and inspects it.
func InspectFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("pdfa: open %s: %w", path, err)
	}
	defer f.Close()
	return Inspect(f)
}

// Inspect reads a PDF and reports its PDF/A identification and invoice
// attachment. The attachment is looked up in the embedded files name tree.
// PDF/A requires the XMP packet to be stored unfiltered, so the
// identification is read from the raw bytes. Files the parser cannot read,
// or that only reference the attachment elsewhere, are searched byte-wise,
// including Flate compressed streams.
func Inspect(r io.Reader) (Info, error) {
	const op = "Inspect"

	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return Info{}, fmt.Errorf("pdfa: %s: read: %w", op, err)
	}
	if len(data) > MaxDocumentSize {
		return Info{}, fmt.Errorf("pdfa: %s: %w (more than %d bytes)", op, ErrDocumentTooLarge, MaxDocumentSize)
	}

	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	m := headerPattern.FindSubmatch(head)
	if m == nil {
		return Info{}, fmt.Errorf("pdfa: %s: %w: missing PDF header", op, ErrInvalidPDF)
	}

	info := Info{PDFVersion: string(m[1]), Size: int64(len(data))}
	if name, err := embeddedInvoice(data); err == nil && name != "" {
		info.HasInvoiceXML = true
		info.AttachmentName = name
	}
	scan(&info, data)
	if info.Version == 0 || !info.HasInvoiceXML {
		for _, stream := range inflatedStreams(data, maxInflated) {
			scan(&info, stream)
		}
	}
	return info, nil
}

// embeddedInvoice returns the name of the invoice XML listed in the
// document's embedded files, or "" when there is none.
func embeddedInvoice(data []byte) (name string, err error) {
	// pdfcpu panics on some damaged files.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	attachments, err := api.Attachments(bytes.NewReader(data), conf)
	if err != nil {
		return "", err
	}
	for _, a := range attachments {
		for _, known := range InvoiceAttachments {
			if strings.EqualFold(a.FileName, known) {
				return a.FileName, nil
			}
		}
	}
	return "", nil
}

func scan(info *Info, data []byte) {
	if info.Version == 0 {
		if m := partPattern.FindSubmatch(data); m != nil {
			info.Version, _ = strconv.Atoi(string(firstGroup(m)))
		}
		if m := conformancePattern.FindSubmatch(data); m != nil {
			info.Conformance = strings.ToUpper(string(firstGroup(m)))
		}
	}
	if !info.HasInvoiceXML {
		for _, name := range InvoiceAttachments {
			hex := hexName(name)
			if bytes.Contains(data, []byte("("+name+")")) ||
				bytes.Contains(data, []byte("<"+hex+">")) ||
				bytes.Contains(data, []byte("<"+strings.ToUpper(hex)+">")) {
				info.HasInvoiceXML = true
				info.AttachmentName = name
				break
			}
		}
	}
}

func firstGroup(m [][]byte) []byte {
	for _, g := range m[1:] {
		if len(g) > 0 {
			return g
		}
	}
	return nil
}

// hexName is the PDF hex string form of name, as some producers write the
// /F and /UF entries.
func hexName(name string) string {
	return fmt.Sprintf("%x", name)
}

// inflatedStreams returns the decompressed content of every stream that
// decodes as zlib, stopping once budget bytes have been produced. Others
// are skipped.
func inflatedStreams(data []byte, budget int) [][]byte {
	var out [][]byte
	for _, m := range streamPattern.FindAllSubmatch(data, -1) {
		if budget <= 0 {
			break
		}
		zr, err := zlib.NewReader(bytes.NewReader(m[1]))
		if err != nil {
			continue
		}
		content, err := io.ReadAll(io.LimitReader(zr, int64(budget)))
		zr.Close()
		if err != nil && len(content) == 0 {
			continue
		}
		budget -= len(content)
		out = append(out, content)
	}
	return out
}
