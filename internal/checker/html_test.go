package checker

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

const samplePage = `<!doctype html>
<html><head>
<title>  Example Domain </title>
<meta name="description" content="An example page">
<link rel="canonical" href="https://example.com/">
<meta property="og:title" content="Example">
<meta name="twitter:card" content="summary">
<link rel="stylesheet" href="http://cdn.example.net/site.css">
<script src="http://cdn.example.net/app.js"></script>
<script src="/wp-includes/js/jquery.js"></script>
</head><body>
<h1>Welcome</h1>
<h2>  Sub
  heading </h2>
<h3></h3>
<a href="/about">About</a>
<a href="/about">About again</a>
<a href="https://example.com/contact#form">Contact</a>
<a href="https://other.example.org/">Other</a>
<a href="mailto:hi@example.com">Mail</a>
<a href="javascript:void(0)">JS</a>
<img src="http://img.example.net/logo.png">
</body></html>`

func samplePageFetcher() *stubFetcher {
	h := http.Header{}
	h.Set("Server", "nginx")
	h.Set("X-Frame-Options", "DENY")
	return &stubFetcher{status: 200, headers: h, body: samplePage}
}

func TestInspectAnalyzer(t *testing.T) {
	target, _ := ParseURLTarget("https://example.com")
	out, err := (&InspectAnalyzer{Fetcher: samplePageFetcher()}).Analyze(context.Background(), target)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	report := out.(*InspectReport)

	if report.Title == nil || *report.Title != "Example Domain" {
		t.Errorf("Title = %v", report.Title)
	}
	if report.MetaDescription == nil || *report.MetaDescription != "An example page" {
		t.Errorf("MetaDescription = %v", report.MetaDescription)
	}
	if report.LinkCount != 6 {
		t.Errorf("LinkCount = %d, want 6", report.LinkCount)
	}
	if report.TimingMs != 42 || report.Status != 200 {
		t.Errorf("Status/TimingMs = %d/%d", report.Status, report.TimingMs)
	}
	wantHints := []string{"server:nginx", "wordpress"}
	if strings.Join(report.TechHints, ",") != strings.Join(wantHints, ",") {
		t.Errorf("TechHints = %v, want %v", report.TechHints, wantHints)
	}
	if report.SecurityAudit == nil || report.SecurityAudit.Score == 0 {
		t.Errorf("SecurityAudit = %+v", report.SecurityAudit)
	}
	if report.MixedContent == nil || report.MixedContent.Severity != SeverityCritical {
		t.Fatalf("MixedContent = %+v", report.MixedContent)
	}
	mc := report.MixedContent
	if mc.InsecureScripts != 1 || mc.InsecureStyles != 1 || mc.InsecureImages != 1 {
		t.Errorf("counts = %d/%d/%d", mc.InsecureScripts, mc.InsecureStyles, mc.InsecureImages)
	}
}

func TestCheckMixedContent_PlainHTTPPage(t *testing.T) {
	doc, err := parseDocument([]byte(samplePage))
	if err != nil {
		t.Fatal(err)
	}
	if got := CheckMixedContent(doc, "http://example.com/"); got != nil {
		t.Errorf("expected nil for http page, got %+v", got)
	}
}

func TestSEOAnalyzer(t *testing.T) {
	target, _ := ParseURLTarget("https://example.com")
	out, err := (&SEOAnalyzer{Fetcher: samplePageFetcher()}).Analyze(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	report := out.(*SEOReport)

	if report.Canonical == nil || *report.Canonical != "https://example.com/" {
		t.Errorf("Canonical = %v", report.Canonical)
	}
	if report.OpenGraph["og:title"] != "Example" || report.Twitter["twitter:card"] != "summary" {
		t.Errorf("og/twitter = %v / %v", report.OpenGraph, report.Twitter)
	}
	want := []Heading{{Tag: "h1", Text: "Welcome"}, {Tag: "h2", Text: "Sub heading"}}
	if len(report.Headings) != len(want) {
		t.Fatalf("Headings = %+v", report.Headings)
	}
	for i := range want {
		if report.Headings[i] != want[i] {
			t.Errorf("Headings[%d] = %+v, want %+v", i, report.Headings[i], want[i])
		}
	}
}

func TestLinksAnalyzer(t *testing.T) {
	target, _ := ParseURLTarget("https://example.com")
	out, err := (&LinksAnalyzer{Fetcher: samplePageFetcher()}).Analyze(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	report := out.(*LinksReport)

	if report.InternalCount != 2 {
		t.Errorf("InternalCount = %d, want 2 (%v)", report.InternalCount, report.SampleInternal)
	}
	if report.ExternalCount != 1 || report.SampleExternal[0] != "https://other.example.org/" {
		t.Errorf("external = %d %v", report.ExternalCount, report.SampleExternal)
	}
	if report.SampleInternal[0] != "https://example.com/about" {
		t.Errorf("SampleInternal[0] = %q", report.SampleInternal[0])
	}
}

func TestStatusAnalyzer(t *testing.T) {
	target, _ := ParseURLTarget("https://example.com")
	out, err := (&StatusAnalyzer{Fetcher: &stubFetcher{status: 204}}).Analyze(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	report := out.(*StatusReport)
	if report.InputURL != "https://example.com/" || report.Status != 204 || report.Redirects == nil {
		t.Errorf("report = %+v", report)
	}
}
