// Package subscription downloads subscription sources and merges their
// proxy nodes into one engine configuration document.
package subscription

import (
	"context"
	"sync"

	"clash-launcher/core/config"
	"clash-launcher/internal/debuglog"
)

// Source is one subscription URL.
type Source struct {
	URL string `json:"url"`
}

// SourcesFromURLs wraps plain URLs.
func SourcesFromURLs(urls []string) []Source {
	out := make([]Source, 0, len(urls))
	for _, u := range urls {
		out = append(out, Source{URL: u})
	}
	return out
}

// SkippedSource records why a source contributed nothing.
type SkippedSource struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// MergeResult is the outcome of a successful merge.
type MergeResult struct {
	Document *config.Document
	Names    []string
	Skipped  []SkippedSource
}

// Merger fetches sources concurrently and builds a document from them.
type Merger struct {
	Fetch    FetchOptions
	Document config.Options

	// fetch is replaced in tests.
	fetch func(ctx context.Context, url string, opts FetchOptions) ([]byte, error)
}

// NewMerger returns a merger using FetchSubscription.
func NewMerger(fetch FetchOptions, doc config.Options) *Merger {
	return &Merger{Fetch: fetch, Document: doc, fetch: FetchSubscription}
}

type sourceResult struct {
	entries []any
	skipped *SkippedSource
}

// Merge fetches every source, each bounded by its own timeout, and merges
// the nodes in source order. A failing source is recorded in Skipped and
// does not abort the others. No nodes at all yields *EmptyResultError.
func (m *Merger) Merge(ctx context.Context, sources []Source) (*MergeResult, error) {
	fetch := m.fetch
	if fetch == nil {
		fetch = FetchSubscription
	}

	slots := make([]sourceResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			slots[i] = m.fetchOne(ctx, fetch, src)
		}(i, src)
	}
	wg.Wait()

	var entries []any
	var skipped []SkippedSource
	for _, r := range slots {
		if r.skipped != nil {
			skipped = append(skipped, *r.skipped)
			continue
		}
		entries = append(entries, r.entries...)
	}

	nodes := Dedup(entries)
	if len(nodes) == 0 {
		return nil, &EmptyResultError{Sources: len(sources), Skipped: skipped}
	}

	doc := config.Build(nodes, m.Document)
	debuglog.InfoLog("mergeSubscriptions: %d entries from %d source(s), %d nodes after dedup, %d skipped",
		len(entries), len(sources), len(nodes), len(skipped))
	return &MergeResult{Document: doc, Names: doc.NodeNames(), Skipped: skipped}, nil
}

func (m *Merger) fetchOne(ctx context.Context, fetch func(context.Context, string, FetchOptions) ([]byte, error), src Source) sourceResult {
	body, err := fetch(ctx, src.URL, m.Fetch)
	if err != nil {
		debuglog.WarnLog("mergeSubscriptions: skipping %s: %v", src.URL, err)
		return sourceResult{skipped: &SkippedSource{URL: src.URL, Reason: err.Error()}}
	}
	entries := ParseEntries(body)
	if len(entries) == 0 {
		debuglog.WarnLog("mergeSubscriptions: %s contained no recognisable nodes", src.URL)
		return sourceResult{skipped: &SkippedSource{URL: src.URL, Reason: "no proxies found in payload"}}
	}
	debuglog.DebugLog("mergeSubscriptions: %s yielded %d entries", src.URL, len(entries))
	return sourceResult{entries: entries}
}
