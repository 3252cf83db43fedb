package main

import (
	"io"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	xhtmlPublic = "-//W3C//DTD XHTML 1.0 Transitional//EN"
	xhtmlSystem = "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd"
)

// writeBBox writes pages in the pdftotext -bbox layout: one <page> per
// page and one <word> per word, coordinates in points from the top left.
func writeBBox(w io.Writer, pages []pageWords) error {
	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{
		Type: html.DoctypeNode,
		Data: "html",
		Attr: []html.Attribute{{Key: "public", Val: xhtmlPublic}, {Key: "system", Val: xhtmlSystem}},
	})
	htmlEl := element(atom.Html, "html", html.Attribute{Key: "xmlns", Val: "http://www.w3.org/1999/xhtml"})
	root.AppendChild(htmlEl)

	head := element(atom.Head, "head")
	head.AppendChild(element(atom.Title, "title"))
	head.AppendChild(element(atom.Meta, "meta",
		html.Attribute{Key: "http-equiv", Val: "Content-Type"},
		html.Attribute{Key: "content", Val: "text/html; charset=UTF-8"},
	))
	htmlEl.AppendChild(head)

	body := element(atom.Body, "body")
	doc := element(0, "doc")
	for _, pw := range pages {
		page := element(0, "page", coord("width", pw.Width), coord("height", pw.Height))
		for _, wd := range pw.Words {
			word := element(0, "word",
				coord("xMin", wd.X1*pw.Width),
				coord("yMin", (1-wd.Y2)*pw.Height),
				coord("xMax", wd.X2*pw.Width),
				coord("yMax", (1-wd.Y1)*pw.Height),
			)
			word.AppendChild(&html.Node{Type: html.TextNode, Data: wd.Text})
			page.AppendChild(word)
		}
		doc.AppendChild(page)
	}
	body.AppendChild(doc)
	htmlEl.AppendChild(body)

	if err := html.Render(w, root); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func element(a atom.Atom, name string, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: name, Attr: attrs}
}

func coord(key string, v float64) html.Attribute {
	return html.Attribute{Key: key, Val: strconv.FormatFloat(v, 'f', 6, 64)}
}
