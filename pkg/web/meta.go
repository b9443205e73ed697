package web

// Meta is the per-task annotation bag threaded through every generation of a
// request chain (redirects, retries). Well-known fields carry the
// inter-middleware protocol; Extra holds arbitrary extension data.
//
// Copy discipline: Clone performs a shallow copy forward, duplicating only
// the list-valued history fields so that appends on a derived request never
// show up on its ancestors. Extra is copied as a new map sharing the values.
type Meta struct {
	// Cookie handling
	DontMergeCookies bool   // skip cookie injection/extraction entirely
	CookieJar        string // selects the jar; empty = default jar

	// Redirect handling
	DontRedirect    bool
	RedirectTTL     *int     // remaining redirect budget; nil until seeded on first redirect
	RedirectTimes   int      // redirects already followed
	RedirectURLs    []string // history of URLs visited before this one
	RedirectReasons []string // parallel history of why each redirect happened

	// Retry handling
	DontRetry     bool
	RetryTimes    int  // retries already attempted
	MaxRetryTimes *int // per-request override of the global retry budget

	// Status filtering
	HandleHTTPStatusAll  bool  // suppress status filtering entirely
	HandleHTTPStatusList []int // additional statuses treated as success

	// Extension escape hatch for data outside the documented protocol
	Extra map[string]any
}

// Clone returns a copy safe to mutate on a derived request. Scalar fields
// copy by value; history slices and the Extra map get fresh backing storage.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return &Meta{}
	}
	cp := *m
	if m.RedirectTTL != nil {
		ttl := *m.RedirectTTL
		cp.RedirectTTL = &ttl
	}
	if m.MaxRetryTimes != nil {
		budget := *m.MaxRetryTimes
		cp.MaxRetryTimes = &budget
	}
	cp.RedirectURLs = append([]string(nil), m.RedirectURLs...)
	cp.RedirectReasons = append([]string(nil), m.RedirectReasons...)
	cp.HandleHTTPStatusList = append([]int(nil), m.HandleHTTPStatusList...)
	if m.Extra != nil {
		cp.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}

// SetRedirectTTL stores a remaining-budget value.
func (m *Meta) SetRedirectTTL(ttl int) {
	m.RedirectTTL = &ttl
}

// SetMaxRetryTimes overrides the global retry budget for this task chain.
func (m *Meta) SetMaxRetryTimes(n int) {
	m.MaxRetryTimes = &n
}
