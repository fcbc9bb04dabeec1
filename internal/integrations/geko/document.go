// internal/integrations/geko/document.go
package geko

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html/charset"
)

// ErrParse — feed nie jest poprawnym XML-em. Fatalny dla przebiegu:
// niesparsowany feed nie może udawać "zero rekordów, sukces".
var ErrParse = errors.New("geko: malformed feed xml")

// Node to generyczne drzewo dokumentu. Feed Geko zmieniał układ kilka razy
// (products/product, offer/products/product, items/item...), więc zamiast
// sztywnych struktur trzymamy drzewo i sondujemy znane ścieżki.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// ParseDocument dekoduje payload tokenami do drzewa, z obsługą charsetów
// (feedy bywają w iso-8859-2 / windows-1250).
func ParseDocument(raw []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = func(cs string, in io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(normalizeCharset(cs), in)
	}

	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			if len(t.Attr) > 0 {
				n.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					n.Attrs[a.Name.Local] = a.Value
				}
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrParse)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}

		case xml.EndElement:
			n := stack[len(stack)-1]
			n.Text = strings.TrimSpace(n.Text)
			stack = stack[:len(stack)-1]
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}
	return root, nil
}

// Child — pierwsze dziecko o danej nazwie (bez rozróżniania wielkości liter).
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// ChildAll — wszystkie dzieci o danej nazwie.
func (n *Node) ChildAll(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if strings.EqualFold(c.Name, name) {
			out = append(out, c)
		}
	}
	return out
}

// Attr — wartość atrybutu (bez rozróżniania wielkości liter), "" gdy brak.
func (n *Node) Attr(name string) string {
	for k, v := range n.Attrs {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Value — pole może być atrybutem albo elementem, zależnie od wersji feedu;
// najpierw atrybut, potem tekst dziecka.
func (n *Node) Value(name string) string {
	if v := n.Attr(name); v != "" {
		return v
	}
	if c := n.Child(name); c != nil {
		return c.Text
	}
	return ""
}

// XML serializuje poddrzewo z powrotem do tekstu — trafia do raw_record
// w snapshocie dostawcy. Atrybuty sortowane, żeby wynik był stabilny.
func (n *Node) XML() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n *Node) write(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(n.Name)
	if len(n.Attrs) > 0 {
		keys := make([]string, 0, len(n.Attrs))
		for k := range n.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteByte(' ')
			sb.WriteString(k)
			sb.WriteString(`="`)
			_ = xml.EscapeText(sb, []byte(n.Attrs[k]))
			sb.WriteByte('"')
		}
	}
	if len(n.Children) == 0 && n.Text == "" {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	if n.Text != "" {
		_ = xml.EscapeText(sb, []byte(n.Text))
	}
	for _, c := range n.Children {
		c.write(sb)
	}
	sb.WriteString("</")
	sb.WriteString(n.Name)
	sb.WriteByte('>')
}

// recordPaths: znane układy zagnieżdżenia rekordów, w kolejności prób.
// Wygrywa pierwsza ścieżka, która da co najmniej jeden węzeł.
var recordPaths = [][]string{
	{"products", "product"},
	{"offer", "products", "product"},
	{"items", "item"},
	{"offer", "items", "item"},
	{"goods", "good"},
	{"product"},
	{"item"},
}

// ExtractRecords sonduje recordPaths. Brak trafienia to pusty wynik, nie błąd —
// pusty/zmieniony feed ma się zdegradować do "zero rekordów".
func ExtractRecords(root *Node) []*Node {
	if root == nil {
		return nil
	}
	for _, path := range recordPaths {
		if nodes := collectPath(root, path); len(nodes) > 0 {
			return nodes
		}
	}
	return nil
}

func collectPath(root *Node, path []string) []*Node {
	cur := []*Node{root}
	for _, seg := range path {
		var next []*Node
		for _, n := range cur {
			next = append(next, n.ChildAll(seg)...)
		}
		if len(next) == 0 {
			return nil
		}
		cur = next
	}
	return cur
}

// normalizeCharset mapuje nietypowe etykiety na nazwy rozpoznawane przez charset.NewReaderLabel
func normalizeCharset(cs string) string {
	c := strings.TrimSpace(strings.ToLower(cs))
	switch c {
	case "latin ii", "latin-2", "latin2", "iso8859-2", "iso_8859-2":
		return "iso-8859-2"
	case "cp1250", "windows1250", "win-1250":
		return "windows-1250"
	default:
		return c
	}
}
