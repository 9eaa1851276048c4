// Package document turns assembled pages into a printable file.
package document

import (
	"io"

	"labelkit/backend/internal/barcode"
	"labelkit/backend/internal/label"
	"labelkit/backend/internal/layout"
	"labelkit/backend/internal/render"
)

// Document is a fully resolved print file: every cell carries its own text,
// symbol and style so writers need no further lookups.
type Document struct {
	Title    string
	WidthMm  float64
	HeightMm float64
	Pages    []Page
}

type Page struct {
	Cells []Cell
}

type Cell struct {
	X        float64
	Y        float64
	WidthMm  float64
	HeightMm float64
	Style    label.Style
	Lines    []string
	Symbol   render.Image
	Caption  string
	// Square symbols (QR) are drawn without a caption.
	Square bool
}

type Writer interface {
	Write(w io.Writer, doc Document) error
	ContentType() string
}

// Build resolves layout cells against the composed instances and their
// rendered symbols. symbols is indexed like instances; a missing or empty
// image leaves the cell text-only.
func Build(title string, tpl label.Template, pages []layout.PrintPage, instances []label.Instance, symbols []render.Image, pageWidthMm, pageHeightMm float64) Document {
	doc := Document{
		Title:    title,
		WidthMm:  pageWidthMm,
		HeightMm: pageHeightMm,
		Pages:    make([]Page, 0, len(pages)),
	}

	for _, page := range pages {
		out := Page{Cells: make([]Cell, 0, len(page.Cells))}
		for _, c := range page.Cells {
			cell := Cell{
				X:        c.X,
				Y:        c.Y,
				WidthMm:  c.WidthMm,
				HeightMm: c.HeightMm,
				Style:    tpl.Style,
			}
			if c.SourceInstanceIndex >= 0 && c.SourceInstanceIndex < len(instances) {
				inst := instances[c.SourceInstanceIndex]
				cell.Lines = inst.Lines()
				cell.Caption = inst.Barcode.DisplayText
				cell.Square = inst.Barcode.Symbology == barcode.QR
			}
			if c.SourceInstanceIndex >= 0 && c.SourceInstanceIndex < len(symbols) {
				cell.Symbol = symbols[c.SourceInstanceIndex]
			}
			out.Cells = append(out.Cells, cell)
		}
		doc.Pages = append(doc.Pages, out)
	}
	return doc
}
