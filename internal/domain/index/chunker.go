package index

import "strings"

// DefaultMaxChunkBytes 默认单个分块的最大字节数
const DefaultMaxChunkBytes = 4096

// Chunker 按字节上限切分纯文本，切点落在换行或句末（. ! ? 后跟空格）
type Chunker struct {
	maxBytes int
}

// NewChunker 创建分块器
func NewChunker(maxBytes int) *Chunker {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxChunkBytes
	}
	return &Chunker{maxBytes: maxBytes}
}

// MaxBytes 返回分块上限
func (c *Chunker) MaxBytes() int {
	return c.maxBytes
}

// Split 将文本切分为有序分块。
// 按顺序拼接所有分块可还原原文；仅在窗口内没有任何切点时才会产生超限分块。
// 末尾分块去除空白后为空则丢弃。
func (c *Chunker) Split(text string) []string {
	var chunks []string
	offset := 0
	n := len(text)

	for offset < n {
		end := offset + c.maxBytes
		if end >= n {
			chunks = appendTail(chunks, text[offset:])
			break
		}

		cut := lastBreak(text, offset, end)
		if cut < 0 {
			// 窗口内无切点：向后查找下一个切点，允许超限
			cut = nextBreak(text, end)
			if cut < 0 {
				chunks = appendTail(chunks, text[offset:])
				break
			}
		}

		chunks = append(chunks, text[offset:cut])
		offset = cut
	}

	return chunks
}

func appendTail(chunks []string, tail string) []string {
	if strings.TrimSpace(tail) == "" {
		return chunks
	}
	return append(chunks, tail)
}

// breakAt 判断 text[:p] 是否以切点结束：换行，或句末标点加空格。
// 切点包含分隔字符本身。
func breakAt(text string, p int) bool {
	if p <= 0 || p > len(text) {
		return false
	}
	if text[p-1] == '\n' {
		return true
	}
	if p >= 2 && text[p-1] == ' ' {
		switch text[p-2] {
		case '.', '!', '?':
			return true
		}
	}
	return false
}

// lastBreak 在 (offset, end] 内从后往前找切点，找不到返回 -1
func lastBreak(text string, offset, end int) int {
	for p := end; p > offset; p-- {
		if breakAt(text, p) {
			return p
		}
	}
	return -1
}

// nextBreak 从 from 之后向前找第一个切点，找不到返回 -1
func nextBreak(text string, from int) int {
	for p := from + 1; p <= len(text); p++ {
		if breakAt(text, p) {
			return p
		}
	}
	return -1
}
