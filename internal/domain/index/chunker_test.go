package index

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(fmt.Sprintf("Digital skills training sentences %04d. ", i))
	}
	return b.String()
}

func TestChunker_SplitsAtSentenceBoundaries(t *testing.T) {
	require.Len(t, "Digital skills training sentences 0001. ", 40)
	text := sentences(250)
	require.Len(t, text, 10000)

	chunks := NewChunker(4096).Split(text)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 4080)
	assert.Len(t, chunks[1], 4080)
	assert.Len(t, chunks[2], 1840)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 4096)
	}
}

func TestChunker_PrefersNewlines(t *testing.T) {
	text := strings.Repeat("x", 6) + "\n" + strings.Repeat("y", 6)
	chunks := NewChunker(10).Split(text)
	assert.Equal(t, []string{"xxxxxx\n", "yyyyyy"}, chunks)
}

func TestChunker_EdgeCases(t *testing.T) {
	c := NewChunker(16)

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, c.Split(""))
	})

	t.Run("whitespace tail dropped", func(t *testing.T) {
		assert.Empty(t, c.Split("   \n  "))
	})

	t.Run("short text single chunk", func(t *testing.T) {
		assert.Equal(t, []string{"Short."}, c.Split("Short."))
	})

	t.Run("no break in window overflows", func(t *testing.T) {
		text := strings.Repeat("a", 30) + ". rest"
		chunks := c.Split(text)
		require.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("a", 30)+". ", chunks[0])
		assert.Equal(t, "rest", chunks[1])
	})

	t.Run("no break at all", func(t *testing.T) {
		text := strings.Repeat("a", 40)
		assert.Equal(t, []string{text}, c.Split(text))
	})
}

func TestChunker_DefaultLimit(t *testing.T) {
	assert.Equal(t, DefaultMaxChunkBytes, NewChunker(0).MaxBytes())
}

// endsWithBreak 独立判定：s 以换行或句末标点加空格结尾
func endsWithBreak(s string) bool {
	return strings.HasSuffix(s, "\n") ||
		strings.HasSuffix(s, ". ") || strings.HasSuffix(s, "! ") || strings.HasSuffix(s, "? ")
}

// firstBreak 返回 s 中第一个切点位置（切点后一个字节的偏移），没有返回 -1
func firstBreak(s string) int {
	for p := 1; p <= len(s); p++ {
		if endsWithBreak(s[:p]) {
			return p
		}
	}
	return -1
}

func TestChunker_BoundaryCases(t *testing.T) {
	tests := []struct {
		name string
		max  int
		text string
		want []string
	}{
		{name: "newline at first byte", max: 4, text: "\nabcdefg. hi", want: []string{"\n", "abcdefg. ", "hi"}},
		{name: "sentence end at first bytes", max: 5, text: ". abcdefgh", want: []string{". ", "abcdefgh"}},
		{name: "break at window end", max: 4, text: "abc\nef", want: []string{"abc\n", "ef"}},
		{name: "break just past window", max: 4, text: "abcd\nef", want: []string{"abcd\n", "ef"}},
		{name: "question and exclamation", max: 6, text: "Why? Now! Go", want: []string{"Why? ", "Now! ", "Go"}},
		{name: "punctuation without space is no break", max: 4, text: "a.b.c.d", want: []string{"a.b.c.d"}},
		{name: "whitespace tail after break dropped", max: 4, text: "abc\n   \n  ", want: []string{"abc\n", "   \n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewChunker(tt.max).Split(tt.text))
		})
	}
}

func TestChunker_RandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(20240611, 42))
	alphabet := []byte("aaaabbbbcc    ..!?\n")

	for i := 0; i < 5000; i++ {
		size := rng.IntN(160)
		buf := make([]byte, size)
		for j := range buf {
			buf[j] = alphabet[rng.IntN(len(alphabet))]
		}
		text := string(buf)
		maxBytes := 1 + rng.IntN(40)

		chunks := NewChunker(maxBytes).Split(text)

		joined := strings.Join(chunks, "")
		require.True(t, strings.HasPrefix(text, joined), "case %d: chunks are not a prefix of %q", i, text)
		require.Empty(t, strings.TrimSpace(text[len(joined):]), "case %d: dropped non-blank tail of %q", i, text)

		for k, c := range chunks {
			require.NotEmpty(t, c, "case %d chunk %d empty", i, k)
			last := k == len(chunks)-1
			if !last {
				require.True(t, endsWithBreak(c), "case %d chunk %d %q does not end at a break", i, k, c)
			}
			if len(c) <= maxBytes {
				continue
			}
			// 超限分块：窗口内不得有切点，且在窗口之后的第一个切点处结束
			fb := firstBreak(c)
			require.True(t, fb < 0 || fb > maxBytes, "case %d chunk %d %q oversized although window has a break", i, k, c)
			if !last {
				require.Equal(t, len(c), fb, "case %d chunk %d %q runs past the first break", i, k, c)
			}
		}
	}
}
