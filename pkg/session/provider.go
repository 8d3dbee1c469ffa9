// Package session manages the realtime WebSocket session with a speech
// provider: dialing, session configuration, the outbound send surface,
// and the read loop that feeds decoded events to a listener.
package session

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pepperkit/go-pepper/pkg/protocol"
)

// Provider identifies the realtime speech backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderAzure  Provider = "azure"
	ProviderXAI    Provider = "xai"
	ProviderGemini Provider = "gemini"
)

const (
	openAIRealtimeURL = "wss://api.openai.com/v1/realtime"
	xaiRealtimeURL    = "wss://api.x.ai/v1/realtime"
	geminiLiveURL     = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	azureAPIVersion = "2024-10-01-preview"
)

// Dialect maps the provider to its wire schema. Azure and x.ai speak
// the OpenAI schema.
func (p Provider) Dialect() protocol.Dialect {
	if p == ProviderGemini {
		return protocol.DialectGemini
	}
	return protocol.DialectOpenAI
}

// isGAModel reports whether model uses the GA realtime schema, which
// restructured session configuration under a nested audio object. The
// preview models and all Azure deployments keep the original flat
// schema.
func isGAModel(p Provider, model string) bool {
	if p != ProviderOpenAI && p != ProviderXAI {
		return false
	}
	return strings.HasPrefix(model, "gpt-realtime") || strings.HasPrefix(model, "grok-4-realtime")
}

// endpoint builds the WebSocket URL and headers for the provider.
func endpoint(cfg Config) (string, http.Header, error) {
	h := http.Header{}
	switch cfg.Provider {
	case ProviderOpenAI:
		h.Set("Authorization", "Bearer "+cfg.APIKey)
		if !isGAModel(cfg.Provider, cfg.Model) {
			h.Set("OpenAI-Beta", "realtime=v1")
		}
		return openAIRealtimeURL + "?model=" + url.QueryEscape(cfg.Model), h, nil

	case ProviderXAI:
		h.Set("Authorization", "Bearer "+cfg.APIKey)
		return xaiRealtimeURL + "?model=" + url.QueryEscape(cfg.Model), h, nil

	case ProviderAzure:
		if cfg.AzureEndpoint == "" {
			return "", nil, fmt.Errorf("azure endpoint required")
		}
		base := strings.TrimSuffix(cfg.AzureEndpoint, "/")
		base = strings.Replace(base, "https://", "wss://", 1)
		h.Set("api-key", cfg.APIKey)
		u := fmt.Sprintf("%s/openai/realtime?api-version=%s&deployment=%s",
			base, azureAPIVersion, url.QueryEscape(cfg.Model))
		return u, h, nil

	case ProviderGemini:
		return geminiLiveURL + "?key=" + url.QueryEscape(cfg.APIKey), h, nil

	default:
		return "", nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
