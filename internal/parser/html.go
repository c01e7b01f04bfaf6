package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Classifier decides the kind and target mime hint of one matched element.
type Classifier func(s *goquery.Selection) (Kind, string)

// HTMLRule maps elements matching Selector to references held in Attr.
type HTMLRule struct {
	Selector string
	Attr     string
	Classify Classifier
	// Split extracts several values from one attribute, as in srcset.
	Split func(string) (*editableText, []textToken)
	// Anchored references ignore the document base.
	Anchored bool
}

// Fixed classifies every match the same way.
func Fixed(kind Kind, mimeHint string) Classifier {
	return func(*goquery.Selection) (Kind, string) {
		return kind, mimeHint
	}
}

// Typed classifies every match as kind and takes the hint from the type
// attribute.
func Typed(kind Kind) Classifier {
	return func(s *goquery.Selection) (Kind, string) {
		return kind, strings.TrimSpace(s.AttrOr("type", ""))
	}
}

var (
	externalRels = map[string]bool{
		"stylesheet": true, "icon": true, "apple-touch-icon": true, "apple-touch-icon-precomposed": true,
		"mask-icon": true, "preload": true, "modulepreload": true, "prefetch": true, "manifest": true,
	}
	skippedRels = map[string]bool{
		"dns-prefetch": true, "preconnect": true, "pingback": true, "webmention": true,
	}
)

func classifyLink(s *goquery.Selection) (Kind, string) {
	hint := strings.TrimSpace(s.AttrOr("type", ""))
	rels := strings.Fields(strings.ToLower(s.AttrOr("rel", "")))
	for _, rel := range rels {
		if rel == "stylesheet" && hint == "" {
			hint = "text/css"
		}
	}
	for _, rel := range rels {
		if externalRels[rel] {
			return ExternalResource, hint
		}
	}
	for _, rel := range rels {
		if skippedRels[rel] {
			return Skip, hint
		}
	}
	return Hyperlink, hint
}

var srcsetPattern = regexp.MustCompile(`(?:^|,)\s*([^\s,]+)`)

func scanSrcset(s string) (*editableText, []textToken) {
	var spans [][2]int
	var flags []bool
	for _, m := range srcsetPattern.FindAllStringSubmatchIndex(s, -1) {
		spans = append(spans, [2]int{m[2], m[3]})
		flags = append(flags, false)
	}
	return scanSpans(s, spans, flags, flags)
}

// DefaultHTMLRules is the extraction table used by NewHTMLParser.
var DefaultHTMLRules = []HTMLRule{
	{Selector: "a[href], area[href]", Attr: "href", Classify: Typed(Hyperlink)},
	{Selector: "frame[src], iframe[src]", Attr: "src", Classify: Fixed(ExternalResource, "text/html")},
	{Selector: "img[src], script[src], embed[src], source[src], audio[src], video[src], track[src], input[type=image][src]",
		Attr: "src", Classify: Typed(ExternalResource)},
	{Selector: "img[srcset], source[srcset]", Attr: "srcset", Classify: Fixed(ExternalResource, ""), Split: scanSrcset},
	{Selector: "video[poster]", Attr: "poster", Classify: Fixed(ExternalResource, "")},
	{Selector: "object[data]", Attr: "data", Classify: Typed(ExternalResource)},
	{Selector: "body[background], table[background], td[background], th[background]",
		Attr: "background", Classify: Fixed(ExternalResource, "")},
	{Selector: "link[href]", Attr: "href", Classify: classifyLink},
	{Selector: "form[action]", Attr: "action", Classify: Fixed(Skip, "")},
	{Selector: "base[href]", Attr: "href", Classify: Fixed(Skip, ""), Anchored: true},
}

type compiledRule struct {
	HTMLRule
	sel cascadia.Selector
}

func compileRules(rules []HTMLRule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		sel, err := cascadia.Compile(r.Selector)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", r.Selector, err)
		}
		compiled = append(compiled, compiledRule{HTMLRule: r, sel: sel})
	}
	return compiled, nil
}

var defaultCompiledRules = mustCompileRules(DefaultHTMLRules)

func mustCompileRules(rules []HTMLRule) []compiledRule {
	compiled, err := compileRules(rules)
	if err != nil {
		panic(err)
	}
	return compiled
}

// HTMLParser handles HTML documents, including inline style sheets.
type HTMLParser struct {
	base
	rules []compiledRule

	docMu     sync.Mutex
	doc       *goquery.Document
	docBase   *url.URL
	baseErr   error
	baseNodes []*html.Node
	pending   []*html.Node
	queued    bool
	refs      []*Reference
}

// NewHTMLParser is the Factory for HTML using DefaultHTMLRules.
func NewHTMLParser(mimeType, defaultFileName string) Parser {
	return &HTMLParser{base: newBase(mimeType, defaultFileName), rules: defaultCompiledRules}
}

// NewHTMLFactory returns a Factory extracting references with rules.
func NewHTMLFactory(rules []HTMLRule) (Factory, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return func(mimeType, defaultFileName string) Parser {
		return &HTMLParser{base: newBase(mimeType, defaultFileName), rules: compiled}
	}, nil
}

func (p *HTMLParser) Load(localPath string) error {
	if err := p.beginLoad(); err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return fmt.Errorf("failed to parse HTML %s: %w", localPath, err)
	}

	p.docMu.Lock()
	defer p.docMu.Unlock()
	p.doc = doc
	p.loadBase()
	if p.baseErr == nil {
		p.refs = p.collect()
	}
	return nil
}

// loadBase records the declared base. Differing declarations are an error.
func (p *HTMLParser) loadBase() {
	var href string
	p.doc.Find("base[href]").Each(func(_ int, s *goquery.Selection) {
		v := strings.TrimSpace(s.AttrOr("href", ""))
		if len(p.baseNodes) > 0 && !strings.EqualFold(v, href) {
			p.baseErr = ErrDuplicateBase
		}
		href = v
		p.baseNodes = append(p.baseNodes, s.Get(0))
	})
	if p.baseErr != nil || len(p.baseNodes) == 0 {
		return
	}
	if u, err := url.Parse(href); err == nil {
		p.docBase = u
	}
}

// collect walks every element in document order.
func (p *HTMLParser) collect() []*Reference {
	var refs []*Reference
	p.doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		for _, rule := range p.rules {
			if !rule.sel.Match(n) {
				continue
			}
			refs = append(refs, p.attrReferences(s, rule)...)
		}
		if n.Data == "style" {
			refs = append(refs, p.styleElementReferences(n)...)
		}
		if _, ok := s.Attr("style"); ok {
			refs = append(refs, p.styleAttrReferences(s)...)
		}
	})
	return refs
}

func (p *HTMLParser) attrReferences(s *goquery.Selection, rule compiledRule) []*Reference {
	val, ok := s.Attr(rule.Attr)
	if !ok {
		return nil
	}
	kind, hint := rule.Classify(s)
	attr := rule.Attr

	if rule.Split == nil {
		ref := NewReference(kind, val, hint, func(v string) { s.SetAttr(attr, v) }, p.notify)
		return []*Reference{p.decorate(ref, rule.Anchored)}
	}

	text, tokens := rule.Split(val)
	refs := make([]*Reference, 0, len(tokens))
	for _, tok := range tokens {
		idx := tok.index
		write := func(v string) {
			text.set(idx, v)
			s.SetAttr(attr, text.String())
		}
		refs = append(refs, p.decorate(NewReference(kind, tok.value, hint, write, p.notify), rule.Anchored))
	}
	return refs
}

func (p *HTMLParser) styleElementReferences(n *html.Node) []*Reference {
	c := n.FirstChild
	if c == nil || c.Type != html.TextNode || c.NextSibling != nil {
		return nil
	}
	text, tokens := scanCSS(c.Data)
	write := func(i int, v string) {
		text.set(i, v)
		c.Data = text.String()
	}
	return p.decorateAll(cssReferences(tokens, write, p.notify))
}

func (p *HTMLParser) styleAttrReferences(s *goquery.Selection) []*Reference {
	text, tokens := scanCSS(s.AttrOr("style", ""))
	write := func(i int, v string) {
		text.set(i, v)
		s.SetAttr("style", text.String())
	}
	return p.decorateAll(cssReferences(tokens, write, p.notify))
}

func (p *HTMLParser) decorate(ref *Reference, anchored bool) *Reference {
	if p.docBase != nil {
		ref.WithBase(p.docBase)
	}
	if anchored {
		ref.Anchor()
	}
	return ref
}

func (p *HTMLParser) decorateAll(refs []*Reference) []*Reference {
	for _, ref := range refs {
		p.decorate(ref, false)
	}
	return refs
}

// notify marks the document dirty and schedules removal of the base
// elements, since rewritten values are relative to the local file.
func (p *HTMLParser) notify() {
	p.changed()
	p.docMu.Lock()
	defer p.docMu.Unlock()
	if !p.queued {
		p.pending = append(p.pending, p.baseNodes...)
		p.queued = true
	}
}

func (p *HTMLParser) References() ([]*Reference, error) {
	if !p.isLoaded() {
		return nil, ErrNotLoaded
	}
	p.docMu.Lock()
	defer p.docMu.Unlock()
	if p.baseErr != nil {
		return nil, p.baseErr
	}
	return p.refs, nil
}

func (p *HTMLParser) Save(localPath string) error {
	if !p.takeDirty() {
		return nil
	}
	p.docMu.Lock()
	for _, n := range p.pending {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	p.pending = nil
	var buf bytes.Buffer
	err := html.Render(&buf, p.doc.Get(0))
	p.docMu.Unlock()
	if err == nil {
		err = os.WriteFile(localPath, buf.Bytes(), 0644)
	}
	if err != nil {
		p.restoreDirty()
		return fmt.Errorf("failed to save %s: %w", localPath, err)
	}
	return nil
}
