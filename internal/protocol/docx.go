package protocol

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`
	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`
	documentOpen = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	documentClose = `<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1134" w:right="850" w:bottom="1134" w:left="1701" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr></w:body></w:document>`

	fontName = "Times New Roman"
	// sizes are half points
	bodySize     = 28
	titleSize    = 36
	subtitleSize = 32
	smallSize    = 24
	cellWidth    = 4536
)

// ContentType is the MIME type of WriteDOCX output.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

type run struct {
	text string
	bold bool
	size int
}

type paragraph struct {
	align string
	runs  []run
}

// WriteDOCX writes doc as a minimal WordprocessingML package.
func WriteDOCX(w io.Writer, doc Document) error {
	archive := zip.NewWriter(w)
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML(doc)},
	}
	for _, part := range parts {
		file, err := archive.Create(part.name)
		if err != nil {
			return fmt.Errorf("protocol: create %s: %w", part.name, err)
		}
		if _, err := io.WriteString(file, part.body); err != nil {
			return fmt.Errorf("protocol: write %s: %w", part.name, err)
		}
	}
	if err := archive.Close(); err != nil {
		return fmt.Errorf("protocol: close archive: %w", err)
	}
	return nil
}

func documentXML(doc Document) string {
	var builder strings.Builder
	builder.WriteString(documentOpen)

	writeParagraph(&builder, paragraph{align: "center", runs: []run{{text: Title, bold: true, size: titleSize}}})
	writeParagraph(&builder, paragraph{align: "center", runs: []run{{text: doc.DateLine(), bold: true, size: subtitleSize}}})
	writeParagraph(&builder, paragraph{})

	writeParagraph(&builder, paragraph{runs: []run{{text: AttendeesHeading, bold: true}}})
	for _, line := range doc.AttendeeLines() {
		writeParagraph(&builder, paragraph{align: "both", runs: []run{{text: line}}})
	}
	writeParagraph(&builder, paragraph{})

	writeParagraph(&builder, paragraph{runs: []run{{text: TopicsHeading, bold: true}}})
	for _, line := range doc.TopicLines() {
		writeParagraph(&builder, paragraph{align: "both", runs: []run{{text: line}}})
	}
	writeParagraph(&builder, paragraph{})
	writeParagraph(&builder, paragraph{})

	builder.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr><w:tblGrid>`)
	fmt.Fprintf(&builder, `<w:gridCol w:w="%d"/><w:gridCol w:w="%d"/></w:tblGrid><w:tr>`, cellWidth, cellWidth)
	for _, label := range []string{positionLabel, nameLabel} {
		fmt.Fprintf(&builder, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr>`, cellWidth)
		writeParagraph(&builder, paragraph{align: "left", runs: []run{{text: label, bold: true}}})
		builder.WriteString(`</w:tc>`)
	}
	builder.WriteString(`</w:tr></w:tbl>`)

	writeParagraph(&builder, paragraph{})
	writeParagraph(&builder, paragraph{align: "right", runs: []run{{text: SignatureLine, size: smallSize}}})
	writeParagraph(&builder, paragraph{align: "right", runs: []run{{text: SignatureDate, size: smallSize}}})

	builder.WriteString(documentClose)
	return builder.String()
}

func writeParagraph(builder *strings.Builder, p paragraph) {
	builder.WriteString("<w:p>")
	if p.align != "" {
		fmt.Fprintf(builder, `<w:pPr><w:jc w:val="%s"/></w:pPr>`, p.align)
	}
	for _, r := range p.runs {
		size := r.size
		if size == 0 {
			size = bodySize
		}
		fmt.Fprintf(builder, `<w:r><w:rPr><w:rFonts w:ascii="%[1]s" w:hAnsi="%[1]s" w:eastAsia="%[1]s" w:cs="%[1]s"/>`, fontName)
		if r.bold {
			builder.WriteString("<w:b/>")
		}
		fmt.Fprintf(builder, `<w:sz w:val="%d"/></w:rPr><w:t xml:space="preserve">`, size)
		_ = xml.EscapeText(builder, []byte(r.text))
		builder.WriteString("</w:t></w:r>")
	}
	builder.WriteString("</w:p>")
}
