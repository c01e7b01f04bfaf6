package parser

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

const pageFixture = `<!DOCTYPE html>
<html>
<head>
	<base href="http://cdn.test/assets/">
	<link rel="stylesheet" href="main.css">
	<link rel="canonical" href="/page">
	<link rel="dns-prefetch" href="//x.test">
</head>
<body style="background: url(bg.png)">
	<a href="c.html">x</a>
	<img src="i.png" srcset="a.png 1x, b.png 2x">
	<form action="/submit"></form>
	<style>@import 'print.css';</style>
</body>
</html>`

func TestHTMLParserReferences(t *testing.T) {
	path := writeFixture(t, "index.html", pageFixture)
	p := NewHTMLParser("text/html", "index.html")
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	refs, err := p.References()
	if err != nil {
		t.Fatalf("References failed: %v", err)
	}

	expected := []struct {
		value string
		kind  Kind
		hint  string
	}{
		{"http://cdn.test/assets/", Skip, ""},
		{"main.css", ExternalResource, "text/css"},
		{"/page", Hyperlink, ""},
		{"//x.test", Skip, ""},
		{"bg.png", ExternalResource, ""},
		{"c.html", Hyperlink, ""},
		{"i.png", ExternalResource, ""},
		{"a.png", ExternalResource, ""},
		{"b.png", ExternalResource, ""},
		{"/submit", Skip, ""},
		{"print.css", ExternalResource, "text/css"},
	}
	if len(refs) != len(expected) {
		for _, r := range refs {
			t.Logf("got %s %q", r.Kind(), r.Value())
		}
		t.Fatalf("Expected %d references, got %d", len(expected), len(refs))
	}
	for i, want := range expected {
		if refs[i].Value() != want.value {
			t.Errorf("Reference %d: expected value '%s', got '%s'", i, want.value, refs[i].Value())
		}
		if refs[i].Kind() != want.kind {
			t.Errorf("Reference %d: expected kind %s, got %s", i, want.kind, refs[i].Kind())
		}
		if refs[i].MimeHint() != want.hint {
			t.Errorf("Reference %d: expected hint '%s', got '%s'", i, want.hint, refs[i].MimeHint())
		}
	}

	owner, _ := url.Parse("http://site.test/dir/page.html")
	abs, ok := refs[1].AbsoluteURI(owner)
	if !ok || abs.String() != "http://cdn.test/assets/main.css" {
		t.Errorf("Expected main.css to resolve against the document base, got %v", abs)
	}
	if !refs[1].FollowsDocumentBase() {
		t.Errorf("Expected main.css to follow the document base")
	}
	if refs[0].FollowsDocumentBase() {
		t.Errorf("Expected the base element itself to be anchored")
	}
}

func TestHTMLParserRewriteAndSave(t *testing.T) {
	path := writeFixture(t, "index.html", pageFixture)
	p := NewHTMLParser("text/html", "index.html")
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	refs, _ := p.References()

	if p.Dirty() {
		t.Fatal("Expected a freshly loaded parser to be clean")
	}
	refs[5].SetValue("local/c.html")
	refs[7].SetValue("x/a.png")
	refs[10].SetValue("css/print.css")
	if !p.Dirty() {
		t.Fatal("Expected parser to be dirty after a rewrite")
	}

	if err := p.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if p.Dirty() {
		t.Errorf("Expected parser to be clean after save")
	}

	out := readFile(t, path)
	for _, want := range []string{`href="local/c.html"`, `srcset="x/a.png 1x, b.png 2x"`, `@import 'css/print.css';`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected saved document to contain %s\n%s", want, out)
		}
	}
	if strings.Contains(out, "<base") {
		t.Errorf("Expected base element to be removed after rewriting\n%s", out)
	}
}

func TestHTMLParserDuplicateBase(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"conflicting", `<base href="http://a.test/"><base href="http://b.test/"><a href="x">x</a>`, true},
		{"repeated", `<base href="http://a.test/"><base href="HTTP://A.test/"><a href="x">x</a>`, false},
		{"none", `<a href="x">x</a>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewHTMLParser("text/html", "index.html")
			if err := p.Load(writeFixture(t, "index.html", tt.content)); err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			_, err := p.References()
			if tt.wantErr && !errors.Is(err, ErrDuplicateBase) {
				t.Errorf("Expected ErrDuplicateBase, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestHTMLParserLifecycle(t *testing.T) {
	p := NewHTMLParser("text/html", "index.html")
	if _, err := p.References(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Expected ErrNotLoaded, got %v", err)
	}
	path := writeFixture(t, "index.html", "<p>hi</p>")
	if err := p.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := p.Load(path); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("Expected ErrAlreadyLoaded, got %v", err)
	}

	// a clean parser never touches the file
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove fixture: %v", err)
	}
	if err := p.Save(path); err != nil {
		t.Errorf("Expected clean save to succeed, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected clean save not to write the file")
	}
}

func TestNewHTMLFactory(t *testing.T) {
	if _, err := NewHTMLFactory([]HTMLRule{{Selector: "a[", Attr: "href", Classify: Fixed(Hyperlink, "")}}); err == nil {
		t.Errorf("Expected invalid selector to be rejected")
	}

	factory, err := NewHTMLFactory([]HTMLRule{{Selector: "a[data-src]", Attr: "data-src", Classify: Fixed(ExternalResource, "image/png")}})
	if err != nil {
		t.Fatalf("NewHTMLFactory failed: %v", err)
	}
	p := factory("text/html", "index.html")
	if err := p.Load(writeFixture(t, "index.html", `<a href="skip.html" data-src="lazy.png">x</a>`)); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	refs, _ := p.References()
	if len(refs) != 1 || refs[0].Value() != "lazy.png" || refs[0].Kind() != ExternalResource {
		t.Errorf("Expected a single lazy.png reference, got %v", refs)
	}
}
