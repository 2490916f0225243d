package parse

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const bytesPerTokenFallback = 4

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// WarmEncoder loads the cl100k_base encoding once, ahead of parallel parse,
// so the first real estimate doesn't pay the load cost under contention.
// Safe to call from multiple goroutines; safe to skip — EstimateTokens loads
// lazily on first use if this was never called.
func WarmEncoder() {
	encodingOnce.Do(loadEncoding)
}

func loadEncoding() {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return
	}
	encoding = enc
}

// EstimateTokens counts tokens in content using the cl100k encoder. If the
// encoder never loaded successfully (e.g. no network access to fetch its
// vocabulary file), it falls back to a bytes/4 approximation.
func EstimateTokens(content string) int {
	encodingOnce.Do(loadEncoding)
	if encoding == nil {
		return len(content) / bytesPerTokenFallback
	}
	return len(encoding.Encode(content, nil, nil))
}
