package changes

import "fmt"

// Presence tells whether a file exists and whether it
// has content.
type Presence int

const (
	// Absent means the file does not exist.
	Absent Presence = iota
	// Empty means the file exists with no content.
	Empty
	// Present means the file exists with content.
	Present
)

// String returns the presence name.
func (p Presence) String() string {
	switch p {
	case Absent:
		return "absent"
	case Empty:
		return "empty"
	case Present:
		return "present"
	default:
		return fmt.Sprintf("Presence(%d)", int(p))
	}
}

// Content is the state of one file at one point in
// time. The zero value is Absent.
type Content struct {
	presence Presence
	text     string
}

// Missing returns an Absent content.
func Missing() Content {
	return Content{}
}

// Text returns the content of an existing file; an
// empty string yields Empty.
func Text(s string) Content {
	if s == "" {
		return Content{presence: Empty}
	}

	return Content{presence: Present, text: s}
}

// Presence reports the variant.
func (c Content) Presence() Presence {
	return c.presence
}

// Exists reports whether the file exists.
func (c Content) Exists() bool {
	return c.presence != Absent
}

// String returns the file text; Absent and Empty both
// yield "".
func (c Content) String() string {
	return c.text
}

// Ptr returns nil for Absent and a pointer to the text
// otherwise.
func (c Content) Ptr() *string {
	if !c.Exists() {
		return nil
	}

	s := c.text

	return &s
}

// Equal reports whether both contents are the same
// variant with the same text.
func (c Content) Equal(o Content) bool {
	return c.presence == o.presence && c.text == o.text
}
