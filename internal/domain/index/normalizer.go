package index

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements 块级元素：输出文本后追加一个换行
var blockElements = map[atom.Atom]bool{
	atom.P:          true,
	atom.Br:         true,
	atom.Li:         true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Div:        true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Tr:         true,
}

// skippedElements 整棵子树不产生任何文本
var skippedElements = map[atom.Atom]bool{
	atom.Script:     true,
	atom.Style:      true,
	atom.Img:        true,
	atom.Figcaption: true,
	atom.Noscript:   true,
	atom.Svg:        true,
	atom.Iframe:     true,
}

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

type walkFrame struct {
	node *html.Node
	exit bool
}

// NormalizeHTML 将富文本转换为纯文本。
// 先序遍历（显式栈，不递归），块级元素在其文本之后输出单个换行。
func NormalizeHTML(rich string) string {
	if strings.TrimSpace(rich) == "" {
		return ""
	}

	nodes, err := html.ParseFragment(strings.NewReader(rich), bodyContext)
	if err != nil {
		// 解析失败时退化为原文
		return strings.TrimSpace(rich)
	}

	w := &textWriter{}
	stack := make([]walkFrame, 0, 64)
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, walkFrame{node: nodes[i]})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.node

		if f.exit {
			if n.DataAtom == atom.Pre {
				w.preDepth--
			}
			w.newline()
			continue
		}

		switch n.Type {
		case html.TextNode:
			w.text(n.Data)
			continue
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				continue
			}
			if blockElements[n.DataAtom] {
				if n.DataAtom == atom.Pre {
					w.preDepth++
				}
				stack = append(stack, walkFrame{node: n, exit: true})
			}
		case html.DocumentNode:
		default:
			// 注释、doctype 等
			continue
		}

		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, walkFrame{node: c})
		}
	}

	return w.String()
}

// textWriter 收集文本：非 pre 内合并空白，行首不留空格
type textWriter struct {
	buf      []byte
	preDepth int
}

func (w *textWriter) atLineStart() bool {
	return len(w.buf) == 0 || w.buf[len(w.buf)-1] == '\n'
}

func (w *textWriter) text(s string) {
	if w.preDepth > 0 {
		w.buf = append(w.buf, s...)
		return
	}
	collapsed := strings.Join(strings.Fields(s), " ")
	if collapsed == "" {
		if !w.atLineStart() && w.buf[len(w.buf)-1] != ' ' && s != "" {
			w.buf = append(w.buf, ' ')
		}
		return
	}
	if isSpace(s[0]) && !w.atLineStart() && w.buf[len(w.buf)-1] != ' ' {
		w.buf = append(w.buf, ' ')
	}
	w.buf = append(w.buf, collapsed...)
	if isSpace(s[len(s)-1]) {
		w.buf = append(w.buf, ' ')
	}
}

func (w *textWriter) newline() {
	for len(w.buf) > 0 && w.buf[len(w.buf)-1] == ' ' {
		w.buf = w.buf[:len(w.buf)-1]
	}
	w.buf = append(w.buf, '\n')
}

func (w *textWriter) String() string {
	return strings.TrimRight(string(w.buf), " ")
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r' || b == '\f'
}
