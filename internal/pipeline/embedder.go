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
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"fmt"
	"os"

	"github.com/josephleblanc/ploke-ingest/pkg/config"
	"github.com/josephleblanc/ploke-ingest/pkg/embed"
)

// NewEmbedder builds the Embedder named by cfg.Embedding.Provider
// (ollama, nomic, mock).
func NewEmbedder(cfg *config.Config) (embed.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		baseURL := cfg.Embedding.BaseURL
		if baseURL == "" {
			baseURL = envOr("OLLAMA_HOST", "http://localhost:11434")
		}
		return embed.NewOllamaEmbedder(baseURL, cfg.Embedding.Model, cfg.Embedding.Dims), nil
	case "nomic":
		baseURL := cfg.Embedding.BaseURL
		if baseURL == "" {
			baseURL = envOr("NOMIC_API_BASE", "https://api-atlas.nomic.ai/v1")
		}
		apiKey := os.Getenv("NOMIC_API_KEY")
		return embed.NewNomicEmbedder(apiKey, baseURL, cfg.Embedding.Model, cfg.Embedding.Dims), nil
	case "mock", "":
		return embed.NewMockEmbedder(cfg.Embedding.Dims), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
