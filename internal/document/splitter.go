package document

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunk 文本块
type Chunk struct {
	Index  int    // 块序号
	Text   string // 块内容，原文的连续子串
	Offset int    // 在原文中的字节偏移
}

// SplitterConfig 分块器配置
// 长度均以字符(rune)计
type SplitterConfig struct {
	ChunkSize    int    // 最大块长度
	ChunkOverlap int    // 相邻块的最大重叠长度
	Separator    string // 分隔符
}

// DefaultSplitterConfig 返回默认分块配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separator:    "\n",
	}
}

// Validate 检查分块参数
func (c SplitterConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return &ConfigError{Field: "chunk_size", Message: fmt.Sprintf("must be positive, got %d", c.ChunkSize)}
	}
	if c.ChunkOverlap < 0 {
		return &ConfigError{Field: "chunk_overlap", Message: fmt.Sprintf("must not be negative, got %d", c.ChunkOverlap)}
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return &ConfigError{
			Field:   "chunk_overlap",
			Message: fmt.Sprintf("(%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize),
		}
	}
	if c.Separator == "" {
		return &ConfigError{Field: "separator", Message: "must not be empty"}
	}
	return nil
}

// CharacterSplitter 按分隔符切分并贪心合并的分块器
type CharacterSplitter struct {
	cfg SplitterConfig
}

// NewCharacterSplitter 创建分块器
func NewCharacterSplitter(cfg SplitterConfig) (*CharacterSplitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CharacterSplitter{cfg: cfg}, nil
}

// Config 返回分块配置
func (s *CharacterSplitter) Config() SplitterConfig {
	return s.cfg
}

// piece 分隔符之间的一段文本
type piece struct {
	start, end         int // 字节偏移
	runeStart, runeEnd int // 字符偏移
}

func (s *CharacterSplitter) pieces(text string) []piece {
	sep := s.cfg.Separator
	sepRunes := utf8.RuneCountInString(sep)

	var out []piece
	pos, runePos := 0, 0
	for {
		i := strings.Index(text[pos:], sep)
		end := len(text)
		if i >= 0 {
			end = pos + i
		}
		n := utf8.RuneCountInString(text[pos:end])
		if end > pos {
			out = append(out, piece{start: pos, end: end, runeStart: runePos, runeEnd: runePos + n})
		}
		if i < 0 {
			return out
		}
		pos = end + len(sep)
		runePos += n + sepRunes
	}
}

// Split 将文本切分为有序的块
// 每个块不超过ChunkSize，单个超长片段独立成块；
// 除第一个块外，每个块以前一块末尾总长不超过ChunkOverlap的若干片段开头
func (s *CharacterSplitter) Split(text string) []Chunk {
	size, overlap := s.cfg.ChunkSize, s.cfg.ChunkOverlap

	var chunks []Chunk
	var window []piece

	span := func() int {
		if len(window) == 0 {
			return 0
		}
		return window[len(window)-1].runeEnd - window[0].runeStart
	}
	spanWith := func(p piece) int {
		if len(window) == 0 {
			return p.runeEnd - p.runeStart
		}
		return p.runeEnd - window[0].runeStart
	}
	emit := func() {
		start, end := window[0].start, window[len(window)-1].end
		content := text[start:end]
		if strings.TrimSpace(content) == "" {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: content, Offset: start})
	}

	for _, p := range s.pieces(text) {
		if len(window) > 0 && spanWith(p) > size {
			emit()
			for len(window) > 0 && (span() > overlap || spanWith(p) > size) {
				window = window[1:]
			}
		}
		window = append(window, p)
	}
	if len(window) > 0 {
		emit()
	}

	return chunks
}

// SplitText 切分文本并只返回块内容
func (s *CharacterSplitter) SplitText(text string) []string {
	chunks := s.Split(text)
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
