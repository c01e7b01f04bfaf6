package parser

import (
	"net/url"
	"strings"
)

// Reference is a rewritable pointer inside a loaded document. Writes go
// straight to the document through the write function; the owning parser
// learns about them only through the notify function.
type Reference struct {
	kind     Kind
	value    string
	mimeHint string
	docBase  *url.URL
	anchored bool
	write    func(string)
	notify   func()
}

// NewReference creates a reference with the given current value. write
// stores a new value in the underlying document; notify is called once
// for every distinct change.
func NewReference(kind Kind, value, mimeHint string, write func(string), notify func()) *Reference {
	return &Reference{
		kind:     kind,
		value:    value,
		mimeHint: mimeHint,
		write:    write,
		notify:   notify,
	}
}

// WithBase sets a document-declared base URI, which may itself be
// relative to the owning resource.
func (r *Reference) WithBase(docBase *url.URL) *Reference {
	r.docBase = docBase
	return r
}

// Anchor makes the reference resolve against the owning resource even
// when the document declares a base.
func (r *Reference) Anchor() *Reference {
	r.anchored = true
	return r
}

// FollowsDocumentBase reports whether the value is resolved against a
// base declared inside the document.
func (r *Reference) FollowsDocumentBase() bool {
	return r.docBase != nil && !r.anchored
}

func (r *Reference) Kind() Kind {
	return r.kind
}

// MimeHint is the declared content type of the target, if any.
func (r *Reference) MimeHint() string {
	return r.mimeHint
}

func (r *Reference) Value() string {
	return r.value
}

// SetValue replaces the value. Values equal to the current one, ignoring
// case, leave the reference and its parser untouched.
func (r *Reference) SetValue(v string) {
	if strings.EqualFold(v, r.value) {
		return
	}
	r.value = v
	if r.write != nil {
		r.write(v)
	}
	if r.notify != nil {
		r.notify()
	}
}

// AbsoluteURI resolves the value against owner, or against the declared
// document base when there is one. Malformed values yield false.
func (r *Reference) AbsoluteURI(owner *url.URL) (*url.URL, bool) {
	v := strings.TrimSpace(r.value)
	if v == "" {
		return nil, false
	}
	u, err := url.Parse(v)
	if err != nil {
		return nil, false
	}
	b := owner
	if r.docBase != nil && !r.anchored {
		if owner != nil {
			b = owner.ResolveReference(r.docBase)
		} else {
			b = r.docBase
		}
	}
	if b == nil {
		if !u.IsAbs() {
			return nil, false
		}
		return u, true
	}
	return b.ResolveReference(u), true
}
