package model

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates prompt sizes so history and data bundles can be
// truncated to a budget before they reach the model.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.RWMutex
)

// NewTokenCounter builds a counter for model. Unknown models fall back to
// cl100k_base; if even that fails to load the counter degrades to a
// bytes/4 heuristic instead of erroring.
func NewTokenCounter(model string) *TokenCounter {
	encodingCacheMu.RLock()
	cached, ok := encodingCache[model]
	encodingCacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached, model: model}
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return &TokenCounter{model: model}
		}
	}

	encodingCacheMu.Lock()
	encodingCache[model] = encoding
	encodingCacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	if tc.encoding == nil {
		return len(text) / 4
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages counts tokens across messages including the per-message
// framing overhead of chat formats.
func (tc *TokenCounter) CountMessages(messages []Message) int {
	const tokensPerMessage = 3
	total := tokensPerMessage // reply priming
	for _, msg := range messages {
		total += tokensPerMessage
		total += tc.Count(msg.Role)
		total += tc.Count(msg.Content)
	}
	return total
}

// FitWithinLimit keeps the most recent messages that fit the budget,
// preserving their original order.
func (tc *TokenCounter) FitWithinLimit(messages []Message, maxTokens int) []Message {
	if len(messages) == 0 || maxTokens <= 0 {
		return nil
	}
	used := 3
	cut := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := 3 + tc.Count(messages[i].Role) + tc.Count(messages[i].Content)
		if used+cost > maxTokens {
			break
		}
		used += cost
		cut = i
	}
	return messages[cut:]
}

// Truncate shortens text so it fits the budget, cutting on a rune
// boundary. Exact token truncation is not needed; the caller only wants
// an upper bound.
func (tc *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if tc.Count(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	// binary search the longest prefix within budget
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if tc.Count(string(runes[:mid])) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
