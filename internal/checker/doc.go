// Package checker implements the site analyzers.
//
// Architecture overview:
//
//   - Analyzers implement the Analyzer interface (Name + Analyze). Each one
//     probes a Target, classifies what it finds and returns a
//     JSON-serializable report. Page-level analyzers read through a
//     PageFetcher, which in production is the guarded, bounded
//     fetch.Fetcher.
//   - Pure classifiers (GradeHeaders, AnalyzeCORS, ScoreCertificate,
//     DetectTechnologies, MatchWAF, ClassifySubdomains, SummarizeWayback) are
//     factored out so they can be tested without a network.
//   - Registry wires every analyzer with its input kind, privilege and cache
//     policy; the API and the CLI both dispatch through it.
//   - Runner coordinates concurrent execution with rate limiting, invoking
//     a shared AuditFunc per target.
//
// Network checks:
//
//	DNSAnalyzer, TakeoverAnalyzer and QuickScanner query a configurable
//	nameserver directly. PortScanner connects to fifteen common TCP ports
//	through a worker pool and classifies each open port by risk.
package checker
