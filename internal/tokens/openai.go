package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/convolens/internal/domain"
)

// Chat formatting overhead, per OpenAI's cookbook.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	assistantPriming = 3
)

// OpenAICounter counts tokens for OpenAI models using tiktoken.
type OpenAICounter struct {
	matcher *ModelMatcher

	cacheMu    sync.RWMutex
	codecCache map[tokenizer.Encoding]tokenizer.Codec
	fallback   *Estimator
}

// NewOpenAICounter creates a new OpenAI token counter.
func NewOpenAICounter() *OpenAICounter {
	return &OpenAICounter{
		matcher: NewModelMatcher(
			[]string{"gpt-", "o1", "o3", "o4", "text-embedding"},
			nil,
		),
		codecCache: make(map[tokenizer.Encoding]tokenizer.Codec),
		fallback:   NewEstimator(),
	}
}

func (c *OpenAICounter) codec(model string) (tokenizer.Codec, error) {
	encoding := modelToEncoding(model)

	c.cacheMu.RLock()
	cached, ok := c.codecCache[encoding]
	c.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.codecCache[encoding] = codec
	c.cacheMu.Unlock()
	return codec, nil
}

// modelToEncoding maps model names to tiktoken encodings.
//
// Encoding reference:
// - O200kBase: GPT-5, GPT-4.1, GPT-4o, O-series and unknown models
// - Cl100kBase: GPT-4, GPT-3.5-turbo, text-embedding-ada-002
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"),
		strings.HasPrefix(model, "gpt-3.5"),
		strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}

// CountText counts tokens in text. Encoding failures fall back to the
// character estimate.
func (c *OpenAICounter) CountText(model, text string) int {
	if text == "" {
		return 0
	}
	codec, err := c.codec(model)
	if err != nil {
		return c.fallback.CountText(model, text)
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return c.fallback.CountText(model, text)
	}
	return len(ids)
}

// CountTurns counts a chat prompt.
func (c *OpenAICounter) CountTurns(model string, turns []domain.Turn) int {
	total := 0
	for _, t := range turns {
		total += tokensPerMessage + tokensPerRole
		total += c.CountText(model, t.Content)
	}
	return total + assistantPriming
}

// SupportsModel returns true for OpenAI models.
func (c *OpenAICounter) SupportsModel(model string) bool {
	return c.matcher.Matches(model)
}
