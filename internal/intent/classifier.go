package intent

import (
	"strings"
	"sync"
)

// Result is an immutable classification outcome. Confidence is always
// within [0,1]; absence of a confident match degrades to IntentUnknown,
// never to an error.
type Result struct {
	Intent     Intent
	Confidence float64
	Entities   map[string]string
}

const cacheConfidenceFloor = 0.8

// Classifier matches free text against a fixed pattern table, fully
// locally. Confident results are cached by normalized text; the cache is
// unbounded and lives for the process (input variety is naturally small).
type Classifier struct {
	mu      sync.Mutex
	cache   map[string]Result
	onCache func(hit bool)
}

func NewClassifier() *Classifier {
	return &Classifier{cache: make(map[string]Result)}
}

// SetCacheObserver registers a hook invoked on every cache lookup, for
// metrics wiring. Not safe to call concurrently with Classify.
func (c *Classifier) SetCacheObserver(fn func(hit bool)) {
	c.onCache = fn
}

// Classify scores text against every pattern. A literal substring match
// scores 1.0; otherwise the score is the share of the pattern's words
// present in the input. Ties keep the earliest table entry.
func (c *Classifier) Classify(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))

	c.mu.Lock()
	cached, hit := c.cache[normalized]
	c.mu.Unlock()
	if c.onCache != nil {
		c.onCache(hit)
	}
	if hit {
		return cloneResult(cached)
	}

	best := Result{Intent: IntentUnknown}
	inputWords := wordSet(normalized)
	for _, entry := range patternTable {
		for _, phrase := range entry.phrases {
			score := similarity(normalized, inputWords, phrase)
			if score > best.Confidence {
				best.Intent = entry.intent
				best.Confidence = score
			}
		}
	}
	if best.Confidence == 0 {
		best.Intent = IntentUnknown
	}

	// Entities come from the raw text: casing matters to the tagger.
	best.Entities = extractEntities(text)

	if best.Confidence > cacheConfidenceFloor {
		c.mu.Lock()
		c.cache[normalized] = best
		c.mu.Unlock()
	}
	return cloneResult(best)
}

// CacheSize reports the number of cached classifications.
func (c *Classifier) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func similarity(input string, inputWords map[string]struct{}, phrase string) float64 {
	if strings.Contains(input, phrase) {
		return 1.0
	}
	phraseWords := wordSet(phrase)
	if len(phraseWords) == 0 {
		return 0
	}
	matched := 0
	for w := range phraseWords {
		if _, ok := inputWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(phraseWords))
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		out[f] = struct{}{}
	}
	return out
}

func cloneResult(r Result) Result {
	if r.Entities == nil {
		return r
	}
	entities := make(map[string]string, len(r.Entities))
	for k, v := range r.Entities {
		entities[k] = v
	}
	r.Entities = entities
	return r
}
