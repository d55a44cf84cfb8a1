package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// SelectorKind says how a Selector's value locates an element
type SelectorKind int

const (
	KindID SelectorKind = iota
	KindLinkText
	KindXPath
)

func (k SelectorKind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindLinkText:
		return "link text"
	case KindXPath:
		return "xpath"
	default:
		return "unknown"
	}
}

// Selector locates one element on the current page
type Selector struct {
	Kind  SelectorKind
	Value string
}

// ByID selects the element with the given id (with or without a leading #)
func ByID(id string) Selector {
	return Selector{Kind: KindID, Value: strings.TrimPrefix(id, "#")}
}

// ByLinkText selects the anchor whose visible text equals text
func ByLinkText(text string) Selector {
	return Selector{Kind: KindLinkText, Value: text}
}

// ByXPath selects the first node matching an XPath expression
func ByXPath(expr string) Selector {
	return Selector{Kind: KindXPath, Value: expr}
}

func (s Selector) String() string {
	return fmt.Sprintf("%s=%q", s.Kind, s.Value)
}

// XPath returns an XPath expression equivalent to s
func (s Selector) XPath() string {
	switch s.Kind {
	case KindID:
		return "//*[@id=" + Literal(s.Value) + "]"
	case KindLinkText:
		return "//a[normalize-space(.)=" + Literal(strings.TrimSpace(s.Value)) + "]"
	default:
		return s.Value
	}
}

// Literal quotes s as an XPath string literal. XPath 1.0 has no escapes, so
// values containing both quote kinds are built with concat().
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Browser is an interactive browser session. Every call waits at most the
// session's step timeout for its element or page. Close releases the session
// and is safe to call more than once.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	SendKeys(ctx context.Context, sel Selector, text string) error
	Click(ctx context.Context, sel Selector) error
	CurrentURL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// Cookies returns the session cookies the browser would send to url
	Cookies(ctx context.Context, url string) ([]*http.Cookie, error)
	Close() error
}
