package parser

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// cssRefPattern matches @import targets and url() values. Groups 1-3 are
// the double quoted, single quoted and bare forms of an import; groups
// 4-6 the same forms of url().
var cssRefPattern = regexp.MustCompile(
	`@import\s+(?:url\(\s*)?(?:"([^"]*)"|'([^']*)'|([^\s;"'()]+))` +
		`|url\(\s*(?:"([^"]*)"|'([^']*)'|([^\s"'()]+))\s*\)`)

// scanCSS finds every reference in a style sheet or style attribute.
func scanCSS(s string) (*editableText, []textToken) {
	var spans [][2]int
	var bare, imports []bool
	for _, m := range cssRefPattern.FindAllStringSubmatchIndex(s, -1) {
		for g := 1; g <= 6; g++ {
			start, end := m[2*g], m[2*g+1]
			if start < 0 {
				continue
			}
			spans = append(spans, [2]int{start, end})
			bare = append(bare, g == 3 || g == 6)
			imports = append(imports, g <= 3)
			break
		}
	}
	return scanSpans(s, spans, bare, imports)
}

func isDataURI(v string) bool {
	return len(v) >= 5 && strings.EqualFold(v[:5], "data:")
}

func cssReferences(tokens []textToken, write func(int, string), notify func()) []*Reference {
	refs := make([]*Reference, 0, len(tokens))
	for _, tok := range tokens {
		kind, hint := ExternalResource, ""
		if tok.isImport {
			hint = "text/css"
		}
		if isDataURI(tok.value) {
			kind = Skip
		}
		idx := tok.index
		refs = append(refs, NewReference(kind, tok.value, hint, func(v string) { write(idx, v) }, notify))
	}
	return refs
}

// CSSParser handles style sheets. Only @import targets and url() values
// are recognized.
type CSSParser struct {
	base

	docMu sync.Mutex
	text  *editableText
	refs  []*Reference
}

// NewCSSParser is the Factory for text/css.
func NewCSSParser(mimeType, defaultFileName string) Parser {
	return &CSSParser{base: newBase(mimeType, defaultFileName)}
}

func (p *CSSParser) Load(localPath string) error {
	if err := p.beginLoad(); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	text, tokens := scanCSS(string(data))
	p.docMu.Lock()
	p.text = text
	p.refs = cssReferences(tokens, p.write, p.changed)
	p.docMu.Unlock()
	return nil
}

func (p *CSSParser) write(i int, v string) {
	p.docMu.Lock()
	defer p.docMu.Unlock()
	p.text.set(i, v)
}

func (p *CSSParser) References() ([]*Reference, error) {
	if !p.isLoaded() {
		return nil, ErrNotLoaded
	}
	p.docMu.Lock()
	defer p.docMu.Unlock()
	return p.refs, nil
}

func (p *CSSParser) Save(localPath string) error {
	if !p.takeDirty() {
		return nil
	}
	p.docMu.Lock()
	out := p.text.String()
	p.docMu.Unlock()
	if err := os.WriteFile(localPath, []byte(out), 0644); err != nil {
		p.restoreDirty()
		return fmt.Errorf("failed to save %s: %w", localPath, err)
	}
	return nil
}
