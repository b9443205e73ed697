package config

// Built-in defaults for every recognized setting. Overrides loaded from a
// YAML file replace these wholesale (no per-element merging).
var defaults = map[string]any{
	"REDIRECT_ENABLED":         true,
	"REDIRECT_MAX_TIMES":       20, // matches the Firefox hop limit
	"REDIRECT_PRIORITY_ADJUST": 2,

	"METAREFRESH_ENABLED":     true,
	"METAREFRESH_IGNORE_TAGS": []string{"script", "noscript"},
	"METAREFRESH_MAXDELAY":    100,

	"RETRY_ENABLED":         true,
	"RETRY_TIMES":           2, // initial attempt + 2 retries = 3 requests
	"RETRY_HTTP_CODES":      []int{500, 502, 503, 504, 522, 524, 408, 429},
	"RETRY_PRIORITY_ADJUST": -1,

	"COOKIES_ENABLED": true,
	"COOKIES_DEBUG":   false,

	"HTTPERROR_ALLOW_ALL":     false,
	"HTTPERROR_ALLOWED_CODES": []int{},

	"USER_AGENT":             "webcrawl/1.0",
	"CONCURRENT_REQUESTS":    8,
	"CONCURRENT_PER_HOST":    2,
	"DOWNLOAD_TIMEOUT_SECS":  45,
	"DOWNLOAD_MAXSIZE":       int(32 << 20),
	"DOWNLOAD_DELAY_MS":      0,
	"ROBOTSTXT_OBEY":         true,
	"STATE_DIR":              "./crawl_state",
	"SEMAPHORE_TIMEOUT_SECS": 30,
}
