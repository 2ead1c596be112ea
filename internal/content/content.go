// Package content models a thread post as a tree of tagged content nodes.
//
// The tree is produced by a feed accessor and consumed by the text
// transformer, the blocklist projection, and the archive requester. Nodes are
// immutable values; transformations build new trees.
package content

// Node is one element of a post body. The set of implementations is closed.
type Node interface {
	node()
}

// Tree is an ordered sequence of nodes.
type Tree []Node

// Text is a run of literal text.
type Text struct {
	Value string
}

// LineBreak is an explicit line break.
type LineBreak struct{}

// Image is either a custom emoji (inline, with alt text) or an attachment.
type Image struct {
	URL         string
	Alt         string
	CustomEmoji bool
}

// Spoiler hides its children until revealed.
type Spoiler struct {
	Children Tree
}

// Quote is quoted content from an earlier post.
type Quote struct {
	Children Tree
}

// Link is a hyperlink. Display is the visible text.
type Link struct {
	URL     string
	Display string
}

// Code is inline code or a code block.
type Code struct {
	Children Tree
}

// Preview is the link preview card rendered next to a link.
type Preview struct {
	Children Tree
}

func (Text) node()      {}
func (LineBreak) node() {}
func (Image) node()     {}
func (Spoiler) node()   {}
func (Quote) node()     {}
func (Link) node()      {}
func (Code) node()      {}
func (Preview) node()   {}

// Post is one reply in a thread. Number is the 1-based reply number.
type Post struct {
	Number int
	Body   Tree
}

// Attachment is a non-emoji image found in a post body.
type Attachment struct {
	URL       string
	Spoilered bool
}

// Images enumerates the post's attachments in document order.
func (p Post) Images() []Attachment {
	var out []Attachment
	collectImages(p.Body, false, &out)
	return out
}

func collectImages(tree Tree, spoilered bool, out *[]Attachment) {
	for _, n := range tree {
		switch v := n.(type) {
		case Image:
			if !v.CustomEmoji && v.URL != "" {
				*out = append(*out, Attachment{URL: v.URL, Spoilered: spoilered})
			}
		case Spoiler:
			collectImages(v.Children, true, out)
		case Quote:
			collectImages(v.Children, spoilered, out)
		case Code:
			collectImages(v.Children, spoilered, out)
		case Preview:
			collectImages(v.Children, spoilered, out)
		}
	}
}

// HasAttachment reports whether the post carries at least one attachment.
func (p Post) HasAttachment() bool {
	return len(p.Images()) > 0
}
