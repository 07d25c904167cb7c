// extract.go is the default Extractor. It reads plain text directly, pulls
// text out of Office Open XML containers and simple PDFs, and describes
// everything else (images, unknown types) by its metadata so the namer still
// has something to work with.
package main

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// DefaultMaxChars bounds the text handed to the namer.
const DefaultMaxChars = 2000

// minPDFText is the amount of PDF text below which the metadata summary is
// used instead; scanned PDFs yield little more than stray operators.
const minPDFText = 50

// maxSheetRows bounds how much of a spreadsheet is read.
const maxSheetRows = 30

// maxTextFileBytes bounds how much of a plain text file is read.
const maxTextFileBytes = 1 << 20

// maxZipEntryBytes bounds one decompressed Office part. Larger parts are
// refused rather than truncated, since cut XML does not parse.
const maxZipEntryBytes = 16 << 20

// maxPDFBytes bounds how much of a PDF is loaded. Larger files get the
// metadata summary.
const maxPDFBytes = 16 << 20

// TextExtractor is the default Extractor.
type TextExtractor struct {
	maxChars int
	log      *slog.Logger
}

// NewTextExtractor creates an extractor truncating to maxChars characters.
func NewTextExtractor(maxChars int, log *slog.Logger) *TextExtractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &TextExtractor{maxChars: maxChars, log: log.With("component", "extractor")}
}

// ExtractText implements Extractor.
func (e *TextExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", ExtractionError(ReasonUnreadable, "stat "+path, err)
	}
	if info.IsDir() {
		return "", ExtractionError(ReasonUnsupported, path+" is a directory", nil)
	}

	ext := strings.ToLower(SplitExtension(path))
	var text string
	switch ext {
	case "txt", "md", "markdown":
		text, err = readTextFile(path)
	case "docx":
		text, err = extractDocx(path)
	case "pptx":
		text, err = extractPptx(path)
	case "xlsx":
		text, err = extractXlsx(path)
	case "pdf":
		text, err = extractPDF(path)
		if err != nil || len(strings.TrimSpace(text)) < minPDFText {
			e.log.Debug("pdf has little text, using metadata", "path", path, "error", err)
			return fileSummary(path, info), nil
		}
	default:
		// Images, legacy .xls and anything else: describe the file.
		return fileSummary(path, info), nil
	}
	if err != nil {
		return "", err
	}

	text = cleanText(text)
	if text == "" {
		return "", ExtractionError(ReasonUnreadable, "no text in "+filepath.Base(path), nil)
	}
	return smartTruncate(text, e.maxChars), nil
}

// fileSummary describes a file by name, type, size and modification date.
func fileSummary(path string, info os.FileInfo) string {
	ext := strings.ToLower(SplitExtension(path))
	if ext == "" {
		ext = "unknown"
	}
	return fmt.Sprintf("File name: %s\nFile type: %s\nFile size: %s\nModified: %s",
		filepath.Base(path), ext, humanize.Bytes(uint64(info.Size())), info.ModTime().Format("2006-01-02"))
}

func readTextFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", ExtractionError(ReasonUnreadable, "open "+path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, maxTextFileBytes))
	if err != nil {
		return "", ExtractionError(ReasonUnreadable, "read "+path, err)
	}
	if !utf8.Valid(b) {
		b = bytes.ToValidUTF8(b, []byte("�"))
	}
	return string(b), nil
}

// cleanText trims every line and drops empty ones.
func cleanText(text string) string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

// smartTruncate keeps the first three quarters and the last quarter of a
// text longer than maxChars, marking the cut.
func smartTruncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	head := maxChars * 3 / 4
	tail := maxChars - head
	return string(runes[:head]) + "\n\n[...]\n\n" + string(runes[len(runes)-tail:])
}

// ---------------------------------------------------------------------------
// Office Open XML
// ---------------------------------------------------------------------------

func openZip(path string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, ExtractionError(ReasonUnreadable, "open "+filepath.Base(path), err)
	}
	return zr, nil
}

func readZipEntry(zr *zip.ReadCloser, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, ExtractionError(ReasonUnreadable, "missing "+name, err)
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, maxZipEntryBytes+1))
	if err != nil {
		return nil, ExtractionError(ReasonUnreadable, "read "+name, err)
	}
	if len(b) > maxZipEntryBytes {
		return nil, ExtractionError(ReasonUnsupported, name+" is too large", nil)
	}
	return b, nil
}

// xmlText collects the character data of every element named local,
// separating elements with sep and paragraphs (local name para) with
// newlines.
func xmlText(data []byte, local, para string) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", ExtractionError(ReasonUnreadable, "parse xml", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inText = t.Name.Local == local
		case xml.EndElement:
			switch t.Name.Local {
			case local:
				inText = false
			case para:
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func extractDocx(path string) (string, error) {
	zr, err := openZip(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()
	data, err := readZipEntry(zr, "word/document.xml")
	if err != nil {
		return "", err
	}
	return xmlText(data, "t", "p")
}

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func extractPptx(path string) (string, error) {
	zr, err := openZip(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		data, err := readZipEntry(zr, f.Name)
		if err != nil {
			return "", err
		}
		text, err := xmlText(data, "t", "p")
		if err != nil {
			return "", err
		}
		if text = strings.Join(strings.Fields(text), " "); text != "" {
			slides = append(slides, slide{num, text})
		}
	}
	slices.SortFunc(slides, func(a, b slide) int { return a.num - b.num })

	var lines []string
	for _, s := range slides {
		lines = append(lines, fmt.Sprintf("[Slide %d] %s", s.num, s.text))
	}
	return strings.Join(lines, "\n"), nil
}

type xlsxSheet struct {
	Rows []struct {
		Cells []struct {
			Type   string `xml:"t,attr"`
			Value  string `xml:"v"`
			Inline string `xml:"is>t"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

type xlsxSharedStrings struct {
	Items []struct {
		Text string   `xml:"t"`
		Runs []string `xml:"r>t"`
	} `xml:"si"`
}

// extractXlsx reads the first rows of the first worksheet, cells separated
// by tabs.
func extractXlsx(path string) (string, error) {
	zr, err := openZip(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	var shared []string
	if data, err := readZipEntry(zr, "xl/sharedStrings.xml"); err == nil {
		var ss xlsxSharedStrings
		if err := xml.Unmarshal(data, &ss); err != nil {
			return "", ExtractionError(ReasonUnreadable, "parse shared strings", err)
		}
		for _, si := range ss.Items {
			shared = append(shared, si.Text+strings.Join(si.Runs, ""))
		}
	}

	data, err := readZipEntry(zr, "xl/worksheets/sheet1.xml")
	if err != nil {
		return "", err
	}
	var sheet xlsxSheet
	if err := xml.Unmarshal(data, &sheet); err != nil {
		return "", ExtractionError(ReasonUnreadable, "parse worksheet", err)
	}

	var lines []string
	for _, row := range sheet.Rows[:min(len(sheet.Rows), maxSheetRows)] {
		var cells []string
		for _, c := range row.Cells {
			v := c.Value
			switch c.Type {
			case "s":
				if i, err := strconv.Atoi(v); err == nil && i >= 0 && i < len(shared) {
					v = shared[i]
				}
			case "inlineStr":
				v = c.Inline
			}
			if v = strings.TrimSpace(v); v != "" {
				cells = append(cells, v)
			}
		}
		if len(cells) > 0 {
			lines = append(lines, strings.Join(cells, "\t"))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// ---------------------------------------------------------------------------
// PDF (best effort: text-showing operators in Flate or raw content streams)
// ---------------------------------------------------------------------------

var (
	pdfStream  = regexp.MustCompile(`(?s)<<(.*?)>>\s*stream\r?\n`)
	pdfTextOps = regexp.MustCompile(`(?s)\((?:\\.|[^\\)])*\)\s*Tj|\[(?:[^\]])*\]\s*TJ`)
	pdfLiteral = regexp.MustCompile(`\((?:\\.|[^\\)])*\)`)
)

func extractPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", ExtractionError(ReasonUnreadable, "open "+path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxPDFBytes+1))
	if err != nil {
		return "", ExtractionError(ReasonUnreadable, "read "+path, err)
	}
	if len(data) > maxPDFBytes {
		return "", ExtractionError(ReasonUnsupported, filepath.Base(path)+" is too large", nil)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return "", ExtractionError(ReasonUnreadable, filepath.Base(path)+" is not a PDF", nil)
	}

	var b strings.Builder
	for _, loc := range pdfStream.FindAllSubmatchIndex(data, -1) {
		dict := data[loc[2]:loc[3]]
		start := loc[1]
		end := bytes.Index(data[start:], []byte("endstream"))
		if end < 0 {
			break
		}
		content := data[start : start+end]
		if bytes.Contains(dict, []byte("/FlateDecode")) {
			zr, err := zlib.NewReader(bytes.NewReader(content))
			if err != nil {
				continue
			}
			content, err = io.ReadAll(io.LimitReader(zr, 4<<20))
			zr.Close()
			if err != nil && len(content) == 0 {
				continue
			}
		} else if bytes.Contains(dict, []byte("/Filter")) {
			continue
		}
		for _, op := range pdfTextOps.FindAll(content, -1) {
			for _, lit := range pdfLiteral.FindAll(op, -1) {
				b.WriteString(unescapePDFString(lit[1 : len(lit)-1]))
			}
			b.WriteByte(' ')
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func unescapePDFString(s []byte) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r', 't', 'b', 'f':
			b.WriteByte(' ')
		case '\n':
		default:
			b.WriteByte(s[i])
		}
	}
	if !utf8.ValidString(b.String()) {
		return strings.ToValidUTF8(b.String(), "")
	}
	return b.String()
}
