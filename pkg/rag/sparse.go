// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	codeTokenizerName = "ploke_code_tokenizer"
	codeStopFilterName = "ploke_code_stop"
	codeAnalyzerName   = "ploke_code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(codeStopFilterName, codeStopFilterConstructor)
}

// codeStopWords are keywords and generic identifiers that add noise to a
// BM25 match over Rust source text.
var codeStopWords = []string{
	"fn", "let", "mut", "pub", "use", "mod", "impl", "struct", "enum",
	"trait", "match", "if", "else", "for", "while", "return", "self",
	"crate", "super", "where", "dyn", "async", "await",
}

// sparseDocument is one BM25-indexed node: name, docstring, and body
// tokens concatenated so a single match query scores across all three.
type sparseDocument struct {
	Content string `json:"content"`
}

// SparseIndex is a BM25 keyword index over node name/docstring/body
// text, built fresh per query session (the index is cheap enough to
// rebuild from Store contents rather than persist across restarts).
type SparseIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewSparseIndex builds an empty in-memory BM25 index using a
// code-aware analyzer (camelCase/snake_case splitting, stop-word
// filtering).
func NewSparseIndex() (*SparseIndex, error) {
	im, err := buildCodeIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("sparse index: build mapping: %w", err)
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("sparse index: create: %w", err)
	}
	return &SparseIndex{index: idx}, nil
}

func buildCodeIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(codeAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilterName,
		},
	})
	if err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = codeAnalyzerName
	return im, nil
}

// Index adds or replaces documents keyed by node ID.
func (s *SparseIndex) Index(id string, name, docstring, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	content := strings.Join([]string{name, docstring, body}, "\n")
	return s.index.Index(id, sparseDocument{Content: content})
}

// Search returns up to limit matches ranked by BM25 score, highest
// first.
func (s *SparseIndex) Search(ctx context.Context, query string, limit int) ([]ScoredID, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	req := bleve.NewSearchRequest(mq)
	req.Size = limit

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sparse index: search: %w", err)
	}
	out := make([]ScoredID, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, ScoredID{ID: hit.ID, Score: float32(hit.Score)})
	}
	return out, nil
}

// Close releases index resources.
func (s *SparseIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// tokenizeCode splits text into lowercase subtokens, breaking
// camelCase/PascalCase/snake_case identifiers apart and dropping
// anything shorter than two characters.
func tokenizeCode(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func buildStopWordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

type bleveCodeTokenizer struct{}

func codeTokenizerConstructor(config map[string]any, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveCodeTokenizer{}, nil
}

func (t *bleveCodeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := tokenizeCode(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)
		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

type bleveCodeStopFilter struct {
	stopWords map[string]struct{}
}

func codeStopFilterConstructor(config map[string]any, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveCodeStopFilter{stopWords: buildStopWordSet(codeStopWords)}, nil
}

func (f *bleveCodeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(token.Term))]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
