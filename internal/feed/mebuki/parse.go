package mebuki

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"threadrelay/internal/content"
)

// Page is one parsed snapshot of a thread page.
type Page struct {
	Title string
	// Found reports whether the thread message region exists.
	Found  bool
	Posts  []content.Post
	Status []string
}

var replyNumberPattern = regexp.MustCompile(`\d+`)

// Parse reads a thread page.
func Parse(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse thread html: %w", err)
	}
	page := &Page{Title: findTitle(doc)}

	messages := findFirst(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClass(n, "thread-messages")
	})
	if messages != nil {
		page.Found = true
		walk(messages, func(n *html.Node) bool {
			if n.DataAtom == atom.Div && hasClass(n, "message-container") {
				if post, ok := parsePost(n); ok {
					page.Posts = append(page.Posts, post)
				}
				return false
			}
			return true
		})
	}

	walk(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Div && hasClass(n, "message-container") {
			return false
		}
		if n.DataAtom == atom.Div && hasClass(n, "text-destructive") {
			if text := collapse(textContent(n)); text != "" {
				page.Status = append(page.Status, text)
			}
			return false
		}
		return true
	})
	return page, nil
}

func findTitle(doc *html.Node) string {
	header := findFirst(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Main && attr(n, "data-slot") == "sidebar-inset"
	})
	if header != nil {
		header = findFirst(header, func(n *html.Node) bool { return n.DataAtom == atom.Header })
	}
	if header != nil {
		if title := findFirst(header, func(n *html.Node) bool {
			return n.DataAtom == atom.Div && hasClass(n, "line-clamp-1")
		}); title != nil {
			if text := collapse(textContent(title)); text != "" {
				return text
			}
		}
	}
	if title := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title }); title != nil {
		return collapse(textContent(title))
	}
	return ""
}

func parsePost(container *html.Node) (content.Post, bool) {
	numberNode := findFirst(container, func(n *html.Node) bool {
		return n.DataAtom == atom.Span && hasClass(n, "text-destructive")
	})
	if numberNode == nil {
		return content.Post{}, false
	}
	digits := replyNumberPattern.FindString(textContent(numberNode))
	number, err := strconv.Atoi(digits)
	if err != nil || number <= 0 {
		return content.Post{}, false
	}
	body := findFirst(container, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClass(n, "message-content")
	})
	post := content.Post{Number: number}
	if body != nil {
		post.Body = convertChildren(body)
	}
	// Attachments may sit outside the text body.
	walk(container, func(n *html.Node) bool {
		if n == body {
			return false
		}
		if n.DataAtom == atom.Button && hasClass(n, "leading-0") {
			if images := collectAttachments(n); len(images) > 0 {
				post.Body = append(post.Body, content.Spoiler{Children: images})
			}
			return false
		}
		if isAttachmentLink(n) {
			post.Body = append(post.Body, content.Image{URL: attr(n, "data-pswp-src")})
			return false
		}
		return true
	})
	return post, true
}

func collectAttachments(root *html.Node) content.Tree {
	var out content.Tree
	walk(root, func(n *html.Node) bool {
		if isAttachmentLink(n) {
			out = append(out, content.Image{URL: attr(n, "data-pswp-src")})
			return false
		}
		return true
	})
	return out
}

func isAttachmentLink(n *html.Node) bool {
	return n.DataAtom == atom.A && hasClass(n, "pspw-item") && attr(n, "data-pswp-src") != ""
}

func convertChildren(parent *html.Node) content.Tree {
	var out content.Tree
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, convert(c)...)
	}
	return out
}

func convert(n *html.Node) content.Tree {
	switch n.Type {
	case html.TextNode:
		if n.Data == "" {
			return nil
		}
		return content.Tree{content.Text{Value: n.Data}}
	case html.ElementNode:
	default:
		return nil
	}

	switch {
	case n.DataAtom == atom.Script || n.DataAtom == atom.Style:
		return nil
	case n.DataAtom == atom.Br:
		return content.Tree{content.LineBreak{}}
	case n.DataAtom == atom.Span && hasClass(n, "custom-emoji"):
		img := findFirst(n, func(c *html.Node) bool { return c.DataAtom == atom.Img })
		if img == nil {
			return nil
		}
		return content.Tree{content.Image{URL: attr(img, "src"), Alt: attr(img, "alt"), CustomEmoji: true}}
	case isAttachmentLink(n):
		return content.Tree{content.Image{URL: attr(n, "data-pswp-src")}}
	case n.DataAtom == atom.Button && hasClass(n, "leading-0"):
		return content.Tree{content.Spoiler{Children: collectAttachments(n)}}
	case n.DataAtom == atom.Span && hasClass(n, "transition-opacity"):
		return content.Tree{content.Spoiler{Children: convertChildren(n)}}
	case n.DataAtom == atom.Blockquote:
		return content.Tree{content.Quote{Children: convertChildren(n)}}
	case n.DataAtom == atom.Code || n.DataAtom == atom.Pre:
		return content.Tree{content.Code{Children: convertChildren(n)}}
	case n.DataAtom == atom.Div && hasClass(n, "leading-normal"):
		return content.Tree{content.Preview{Children: convertChildren(n)}}
	case n.DataAtom == atom.A:
		return content.Tree{content.Link{URL: attr(n, "href"), Display: textContent(n)}}
	case n.DataAtom == atom.P:
		children := convertChildren(n)
		if next := nextElement(n); next != nil && next.DataAtom == atom.P {
			children = append(children, content.LineBreak{})
		}
		return children
	default:
		return convertChildren(n)
	}
}

func nextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// walk visits n and its descendants depth first. Returning false from visit
// skips the node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if n.Type == html.ElementNode || n.Type == html.DocumentNode {
		if n.Type == html.ElementNode && !visit(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			return
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			visit(child)
		}
	}
	visit(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
