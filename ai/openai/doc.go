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


// Package openai provides an ai.Embedder for OpenAI and OpenAI-compatible
// proxies, built on the go-openai client.
//
// Provider errors are classified from the client's typed errors: an
// *openai.APIError or *openai.RequestError carries the HTTP status, which
// ai.ErrorFromStatus maps to a rate-limit, provider or transport failure.
// Errors without a status are transport failures.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithEmbeddingHost("https://aipipe.org/openai/v1"),
//	    ai.WithAPIKey(os.Getenv("API_KEY")),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "sample text")
package openai
