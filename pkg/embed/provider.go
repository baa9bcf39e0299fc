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

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RetryConfig controls the backoff loop single-item HTTP providers use
// when a request fails transiently.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig matches the teacher pipeline's embedding retry
// defaults.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Multiplier:     2.0,
}

// singleTextEmbedder is satisfied by every HTTP provider below: each
// calls its backend once per text. Embed (on the enclosing httpEmbedder)
// loops this per-item call and assembles the batch, preserving order.
type singleTextEmbedder interface {
	embedOne(ctx context.Context, text string) ([]float32, error)
}

// httpEmbedder adapts a singleTextEmbedder into the batch Embedder
// contract, retrying each item with exponential backoff.
type httpEmbedder struct {
	inner singleTextEmbedder
	model string
	dims  int
	retry RetryConfig
}

func (h *httpEmbedder) Dims() int     { return h.dims }
func (h *httpEmbedder) Model() string { return h.model }

func (h *httpEmbedder) Embed(ctx context.Context, batch []string) ([][]float32, error) {
	if len(batch) == 0 {
		return nil, newError(FailureEmptyBatch, "batch is empty")
	}

	out := make([][]float32, len(batch))
	for i, text := range batch {
		vec, err := h.embedWithRetry(ctx, text)
		if err != nil {
			return nil, err
		}
		if h.dims > 0 && len(vec) != h.dims {
			return nil, newError(FailureDimensionMismatch, "got %d dims, want %d", len(vec), h.dims)
		}
		out[i] = normalize(vec)
	}
	return out, nil
}

func (h *httpEmbedder) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	retry := h.retry
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryConfig
	}

	backoff := retry.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		vec, err := h.inner.embedOne(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if attempt == retry.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * retry.Multiplier)
		if backoff > retry.MaxBackoff {
			backoff = retry.MaxBackoff
		}
	}
	return nil, newError(FailureIO, "exhausted retries: %v", lastErr)
}

// ---- Nomic ----

type nomicClient struct {
	apiKey, baseURL, model string
	httpClient             *http.Client
}

// NewNomicEmbedder builds an Embedder backed by the Nomic embeddings API.
func NewNomicEmbedder(apiKey, baseURL, model string, dims int) Embedder {
	return &httpEmbedder{
		inner: &nomicClient{apiKey: apiKey, baseURL: baseURL, model: model, httpClient: &http.Client{Timeout: 60 * time.Second}},
		model: model, dims: dims,
	}
}

type nomicEmbedRequest struct {
	Texts    []string `json:"texts"`
	Model    string   `json:"model"`
	TaskType string   `json:"task_type,omitempty"`
}

type nomicEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (n *nomicClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	reqBody := nomicEmbedRequest{Texts: []string{text}, Model: n.model, TaskType: "search_document"}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/embedding/text", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nomic API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp nomicEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Embeddings) == 0 {
		return nil, fmt.Errorf("nomic returned empty embeddings")
	}

	out := make([]float32, len(embedResp.Embeddings[0]))
	for i, v := range embedResp.Embeddings[0] {
		out[i] = float32(v)
	}
	return out, nil
}

// ---- Ollama ----

type ollamaClient struct {
	baseURL, model string
	httpClient     *http.Client
}

// NewOllamaEmbedder builds an Embedder backed by a local Ollama server.
func NewOllamaEmbedder(baseURL, model string, dims int) Embedder {
	return &httpEmbedder{
		inner: &ollamaClient{baseURL: baseURL, model: model, httpClient: &http.Client{Timeout: 120 * time.Second}},
		model: model, dims: dims,
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func isNomicModel(model string) bool { return strings.Contains(strings.ToLower(model), "nomic") }

func (o *ollamaClient) embedOne(ctx context.Context, text string) ([]float32, error) {
	prompt := text
	if isNomicModel(o.model) {
		prompt = "search_document: " + text
	}

	reqBody := ollamaEmbedRequest{Model: o.model, Prompt: prompt}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request (is Ollama running at %s?): %w", o.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	out := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// ---- Mock (deterministic, no network) ----

// MockEmbedder generates deterministic hash-based vectors, mean-pooled
// and normalised the same way a real provider's output would be, for
// tests that must not reach the network.
type MockEmbedder struct {
	dims int
}

// NewMockEmbedder builds a MockEmbedder producing dims-dimensional
// vectors.
func NewMockEmbedder(dims int) *MockEmbedder { return &MockEmbedder{dims: dims} }

func (m *MockEmbedder) Dims() int     { return m.dims }
func (m *MockEmbedder) Model() string { return "mock" }

func (m *MockEmbedder) Embed(ctx context.Context, batch []string) ([][]float32, error) {
	if len(batch) == 0 {
		return nil, newError(FailureEmptyBatch, "batch is empty")
	}

	tokenized := make([][]int, len(batch))
	for i, text := range batch {
		tokenized[i] = hashTokenize(text)
	}
	padded, masks := padAndTruncate(tokenized, DefaultMaxTokens)

	out := make([][]float32, len(batch))
	for i, toks := range padded {
		tokenEmbeddings := make([][]float32, len(toks))
		for j, tok := range toks {
			tokenEmbeddings[j] = hashVector(tok, m.dims)
		}
		out[i] = normalize(meanPool(tokenEmbeddings, masks[i]))
	}
	return out, nil
}

func hashTokenize(s string) []int {
	toks := make([]int, 0, len(s)/4+1)
	var h uint32 = 2166136261
	for i, r := range s {
		h = (h ^ uint32(r)) * 16777619
		if i%4 == 3 {
			toks = append(toks, int(h%50000))
		}
	}
	if len(toks) == 0 {
		toks = append(toks, int(h%50000))
	}
	return toks
}

func hashVector(tok, dims int) []float32 {
	v := make([]float32, dims)
	h := uint64(tok) + 1
	for i := range v {
		h = h*6364136223846793005 + 1442695040888963407
		v[i] = float32((h>>33)%10000)/10000.0*2 - 1
	}
	return v
}
