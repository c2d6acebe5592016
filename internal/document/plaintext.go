package document

// TextSource 纯文本来源，整个文本视为一页
type TextSource struct {
	name string
	text string
}

// NewTextSource 创建纯文本来源
func NewTextSource(name, text string) *TextSource {
	return &TextSource{name: name, text: text}
}

// Name 返回文档名称
func (s *TextSource) Name() string {
	return s.name
}

// Pages 返回唯一的一页
func (s *TextSource) Pages() ([]string, error) {
	return []string{s.text}, nil
}
