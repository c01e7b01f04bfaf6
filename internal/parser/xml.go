package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
)

const (
	xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"
	xsdNamespace = "http://www.w3.org/2001/XMLSchema"
	xslNamespace = "http://www.w3.org/1999/XSL/Transform"
)

var (
	doctypePattern = regexp.MustCompile(
		`(?is)^\s*DOCTYPE\s+\S+\s+(?:SYSTEM\s+|PUBLIC\s+(?:"[^"]*"|'[^']*')\s+)(?:"([^"]*)"|'([^']*)')`)
	wordPattern = regexp.MustCompile(`\S+`)
)

// XMLParser handles generic XML: stylesheet processing instructions,
// external DTDs, XSLT imports and XML Schema locations.
type XMLParser struct {
	base

	docMu sync.Mutex
	doc   *xmlquery.Node
	refs  []*Reference
}

// NewXMLParser is the Factory for XML types.
func NewXMLParser(mimeType, defaultFileName string) Parser {
	return &XMLParser{base: newBase(mimeType, defaultFileName)}
}

func (p *XMLParser) Load(localPath string) error {
	if err := p.beginLoad(); err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	doc, err := xmlquery.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse XML %s: %w", localPath, err)
	}

	p.docMu.Lock()
	defer p.docMu.Unlock()
	p.doc = doc
	walkXML(doc, func(n *xmlquery.Node) {
		p.refs = append(p.refs, p.nodeReferences(n)...)
	})
	return nil
}

func walkXML(n *xmlquery.Node, fn func(*xmlquery.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkXML(c, fn)
	}
}

func (p *XMLParser) nodeReferences(n *xmlquery.Node) []*Reference {
	switch n.Type {
	case xmlquery.DeclarationNode:
		if n.Data != "xml-stylesheet" {
			return nil
		}
		return p.attrReference(n, "href", ExternalResource, attrValue(n, "type"))
	case xmlquery.ElementNode:
		return p.elementReferences(n)
	case xmlquery.NotationNode:
		return p.doctypeReferences(n)
	}
	return nil
}

func (p *XMLParser) elementReferences(n *xmlquery.Node) []*Reference {
	var refs []*Reference
	switch {
	case inNamespace(n, xslNamespace, "xsl") && (n.Data == "import" || n.Data == "include"):
		refs = append(refs, p.attrReference(n, "href", ExternalResource, "application/xslt+xml")...)
	case inNamespace(n, xsdNamespace, "xs", "xsd") && (n.Data == "import" || n.Data == "include" || n.Data == "redefine"):
		refs = append(refs, p.attrReference(n, "schemaLocation", ExternalResource, "application/xml")...)
	}

	for i := range n.Attr {
		a := &n.Attr[i]
		if a.NamespaceURI != xsiNamespace && a.Name.Space != "xsi" {
			continue
		}
		switch a.Name.Local {
		case "noNamespaceSchemaLocation":
			refs = append(refs, NewReference(ExternalResource, a.Value, "application/xml",
				func(v string) { a.Value = v }, p.changed))
		case "schemaLocation":
			refs = append(refs, p.schemaLocations(a)...)
		}
	}
	return refs
}

// schemaLocations yields the location half of each namespace/location pair.
func (p *XMLParser) schemaLocations(a *xmlquery.Attr) []*Reference {
	var spans [][2]int
	var flags []bool
	for i, m := range wordPattern.FindAllStringIndex(a.Value, -1) {
		if i%2 == 1 {
			spans = append(spans, [2]int{m[0], m[1]})
			flags = append(flags, false)
		}
	}
	text, tokens := scanSpans(a.Value, spans, flags, flags)
	refs := make([]*Reference, 0, len(tokens))
	for _, tok := range tokens {
		idx := tok.index
		write := func(v string) {
			text.set(idx, v)
			a.Value = text.String()
		}
		refs = append(refs, NewReference(ExternalResource, tok.value, "application/xml", write, p.changed))
	}
	return refs
}

func (p *XMLParser) doctypeReferences(n *xmlquery.Node) []*Reference {
	m := doctypePattern.FindStringSubmatchIndex(n.Data)
	if m == nil {
		return nil
	}
	g := 1
	if m[2] < 0 {
		g = 2
	}
	text, tokens := scanSpans(n.Data, [][2]int{{m[2*g], m[2*g+1]}}, []bool{false}, []bool{false})
	idx := tokens[0].index
	write := func(v string) {
		text.set(idx, v)
		n.Data = text.String()
	}
	return []*Reference{NewReference(ExternalResource, tokens[0].value, "application/xml-dtd", write, p.changed)}
}

func (p *XMLParser) attrReference(n *xmlquery.Node, name string, kind Kind, hint string) []*Reference {
	for i := range n.Attr {
		a := &n.Attr[i]
		if a.Name.Local != name || a.Name.Space != "" {
			continue
		}
		return []*Reference{NewReference(kind, a.Value, hint, func(v string) { a.Value = v }, p.changed)}
	}
	return nil
}

func attrValue(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}

func inNamespace(n *xmlquery.Node, uri string, prefixes ...string) bool {
	if n.NamespaceURI == uri {
		return true
	}
	for _, prefix := range prefixes {
		if n.Prefix == prefix {
			return true
		}
	}
	return false
}

func (p *XMLParser) References() ([]*Reference, error) {
	if !p.isLoaded() {
		return nil, ErrNotLoaded
	}
	p.docMu.Lock()
	defer p.docMu.Unlock()
	return p.refs, nil
}

func (p *XMLParser) Save(localPath string) error {
	if !p.takeDirty() {
		return nil
	}
	p.docMu.Lock()
	out := p.doc.OutputXML(true)
	p.docMu.Unlock()
	if err := os.WriteFile(localPath, []byte(out), 0644); err != nil {
		p.restoreDirty()
		return fmt.Errorf("failed to save %s: %w", localPath, err)
	}
	return nil
}
