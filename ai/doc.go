// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the embedding services used by kbembed.
//
// The package defines the Embedder interface, the AIProvider aggregate and
// the typed EmbedError every implementation returns. Business logic depends
// on these abstractions rather than on a particular vendor client.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI or an OpenAI-compatible proxy via go-openai
//   - ai/langchain: local OpenAI-compatible servers via langchaingo
//   - ai/gemini: Google Gemini embeddings
//   - ai/mock: test doubles for unit testing without external services
//
// # Error Classification
//
// Every failed EmbedText call returns an *EmbedError whose Kind is one of
// KindTransport, KindRateLimit or KindProvider. Callers match the kind with
// the sentinels:
//
//	vec, err := embedder.EmbedText(ctx, chunk)
//	switch {
//	case errors.Is(err, ai.ErrRateLimit):
//	    // back off and try again
//	case errors.Is(err, ai.ErrProvider):
//	    // the input was rejected, do not retry
//	}
//
// Only rate-limit errors are considered retryable (see IsRetryable).
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "Hello world")
package ai
