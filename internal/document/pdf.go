package document

import (
	"bytes"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"

	"labelkit/backend/internal/label"
)

const (
	ptToMm          = 0.3528
	lineSpacing     = 1.15
	minSymbolHeight = 3.0
)

var coreFonts = map[string]string{
	"helvetica": "Helvetica",
	"arial":     "Arial",
	"times":     "Times",
	"courier":   "Courier",
}

// PDFWriter draws documents with github.com/go-pdf/fpdf. Coordinates are
// absolute millimetres from the top-left page corner.
type PDFWriter struct {
	Compress bool
}

func NewPDFWriter() PDFWriter {
	return PDFWriter{Compress: true}
}

func (PDFWriter) ContentType() string {
	return "application/pdf"
}

func (w PDFWriter) Write(out io.Writer, doc Document) error {
	if len(doc.Pages) == 0 {
		return errors.New("document has no pages")
	}
	if doc.WidthMm <= 0 || doc.HeightMm <= 0 {
		return fmt.Errorf("invalid page size %gx%g mm", doc.WidthMm, doc.HeightMm)
	}

	// Portrait keeps Wd/Ht as given; "L" would swap them.
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: doc.WidthMm, Ht: doc.HeightMm},
	})
	pdf.SetCompression(w.Compress)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCellMargin(0)
	if doc.Title != "" {
		pdf.SetTitle(doc.Title, true)
	}
	pdf.SetCreator("labelkit", true)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for _, page := range doc.Pages {
		pdf.AddPage()
		for _, cell := range page.Cells {
			drawCell(pdf, tr, cell)
		}
		if pdf.Err() {
			return fmt.Errorf("draw page: %w", pdf.Error())
		}
	}

	return pdf.Output(out)
}

func drawCell(pdf *fpdf.Fpdf, tr func(string) string, cell Cell) {
	style := cell.Style

	r, g, b := hexColor(style.BackgroundColor, 255)
	pdf.SetFillColor(r, g, b)
	borderStyle := "F"
	if style.ShowBorder {
		pdf.SetDrawColor(0, 0, 0)
		pdf.SetLineWidth(0.2)
		borderStyle = "FD"
	}
	pdf.Rect(cell.X, cell.Y, cell.WidthMm, cell.HeightMm, borderStyle)

	pad := max(style.PaddingMm, 0)
	innerX, innerY := cell.X+pad, cell.Y+pad
	innerW, innerH := cell.WidthMm-2*pad, cell.HeightMm-2*pad
	if innerW <= 0 || innerH <= 0 {
		return
	}

	fontSize := style.FontSize
	if fontSize <= 0 {
		fontSize = label.DefaultStyle().FontSize
	}
	pdf.SetFont(fontFamily(style.FontFamily), "", fontSize)
	cr, cg, cb := hexColor(style.TextColor, 0)
	pdf.SetTextColor(cr, cg, cb)
	lineH := fontSize * ptToMm * lineSpacing
	align := alignStr(style.Alignment)

	y := innerY
	for _, line := range cell.Lines {
		if y+lineH > innerY+innerH {
			break
		}
		pdf.SetXY(innerX, y)
		pdf.CellFormat(innerW, lineH, fit(pdf, tr(line), innerW), "", 0, align, false, 0, "")
		y += lineH
	}

	if len(cell.Symbol.Data) == 0 || cell.Symbol.WidthPx <= 0 || cell.Symbol.HeightPx <= 0 {
		return
	}

	captionH := 0.0
	if cell.Caption != "" && !cell.Square {
		captionH = lineH
	}
	areaH := innerY + innerH - y - captionH
	if areaH < minSymbolHeight {
		return
	}

	imgW := innerW
	imgH := imgW * float64(cell.Symbol.HeightPx) / float64(cell.Symbol.WidthPx)
	if !cell.Square {
		imgH = areaH
	}
	if imgH > areaH {
		imgW = imgW * areaH / imgH
		imgH = areaH
	}
	imgX := innerX + (innerW-imgW)/2

	name := symbolName(cell.Symbol.Data)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(cell.Symbol.Data))
	pdf.ImageOptions(name, imgX, y, imgW, imgH, false, opts, 0, "")

	if captionH > 0 {
		pdf.SetXY(innerX, y+imgH)
		pdf.CellFormat(innerW, captionH, fit(pdf, tr(cell.Caption), innerW), "", 0, "C", false, 0, "")
	}
}

// symbolName lets identical symbols share one embedded image.
func symbolName(data []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(data)
	return "sym-" + strconv.FormatUint(h.Sum64(), 16)
}

func fit(pdf *fpdf.Fpdf, text string, width float64) string {
	for text != "" && pdf.GetStringWidth(text) > width {
		text = text[:len(text)-1]
	}
	return text
}

func fontFamily(name string) string {
	if family, ok := coreFonts[strings.ToLower(strings.TrimSpace(name))]; ok {
		return family
	}
	return "Helvetica"
}

func alignStr(a label.Alignment) string {
	switch a {
	case label.AlignLeft:
		return "L"
	case label.AlignRight:
		return "R"
	default:
		return "C"
	}
}

// hexColor parses #RGB or #RRGGBB; anything else yields the fallback grey level.
func hexColor(value string, fallback int) (int, int, int) {
	v := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(v) == 3 {
		v = string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]})
	}
	if len(v) != 6 {
		return fallback, fallback, fallback
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return fallback, fallback, fallback
	}
	return int(n >> 16 & 0xff), int(n >> 8 & 0xff), int(n & 0xff)
}
