package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFSource PDF文档来源
// pdfcpu负责校验文件结构，文本按页由ledongthuc/pdf解码，支持ToUnicode映射的复合字体
type PDFSource struct {
	name string
	data []byte
	conf *model.Configuration
}

// NewPDFSource 从内存数据创建PDF来源
func NewPDFSource(name string, data []byte) *PDFSource {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFSource{
		name: name,
		data: data,
		conf: conf,
	}
}

// OpenPDF 从本地文件创建PDF来源
func OpenPDF(path string) (*PDFSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Source: filepath.Base(path), Err: err}
	}
	return NewPDFSource(filepath.Base(path), data), nil
}

// Name 返回文档名称
func (s *PDFSource) Name() string {
	return s.name
}

// Pages 按页提取文本
func (s *PDFSource) Pages() (pages []string, err error) {
	if len(s.data) == 0 {
		return nil, &ExtractionError{Source: s.name, Err: fmt.Errorf("empty file")}
	}

	// 两个解析库在遇到严重损坏的文件时都可能panic
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = &ExtractionError{Source: s.name, Err: fmt.Errorf("malformed pdf: %v", r)}
		}
	}()

	if err := s.validate(); err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(bytes.NewReader(s.data), int64(len(s.data)))
	if err != nil {
		return nil, &ExtractionError{Source: s.name, Err: fmt.Errorf("failed to open pdf: %w", err)}
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for pageNr := 1; pageNr <= total; pageNr++ {
		page := reader.Page(pageNr)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, &ExtractionError{Source: s.name, Page: pageNr, Err: err}
		}
		pages = append(pages, cleanPageText(text))
	}

	return pages, nil
}

func (s *PDFSource) validate() error {
	ctx, err := api.ReadContext(bytes.NewReader(s.data), s.conf)
	if err != nil {
		return &ExtractionError{Source: s.name, Err: fmt.Errorf("failed to read pdf: %w", err)}
	}
	if err := api.ValidateContext(ctx); err != nil {
		return &ExtractionError{Source: s.name, Err: fmt.Errorf("invalid pdf: %w", err)}
	}
	return nil
}

// cleanPageText 把无法解码的字形和控制字符换成空格并去掉空行，非空页以换行结尾
func cleanPageText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == '\r':
			b.WriteByte('\n')
		case r == utf8.RuneError || unicode.IsControl(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n") + "\n"
}
