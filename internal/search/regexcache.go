package search

import (
	"regexp"
	"sync/atomic"

	"github.com/rybkr/logarc/internal/errs"
)

// cachedRegex pairs a compiled pattern with its own hit counter, so the
// cache can report per-pattern usage stats alongside the LRU's global
// promotion order.
type cachedRegex struct {
	re   *regexp.Regexp
	hits int64
}

// compileRegex returns a cached compiled pattern, compiling and inserting
// it on first use. Compilation failures are not cached.
func (e *Engine) compileRegex(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	key := pattern
	if caseInsensitive {
		key = "(?i)" + pattern
	}

	if c, ok := e.regexes.Get(key); ok {
		atomic.AddInt64(&c.hits, 1)
		return c.re, nil
	}

	re, err := regexp.Compile(key)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "compile regex query", err)
	}
	e.regexes.Add(key, &cachedRegex{re: re})
	return re, nil
}
