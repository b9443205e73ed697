package middleware

import "webcrawl/pkg/web"

// Kind enumerates the decisions a middleware hook can make about the task
// it was handed.
type Kind int

const (
	// KindPass hands the unchanged request/response to the next hook in
	// the chain (or to transport / the spider at either end).
	KindPass Kind = iota
	// KindRequest replaces the current task with a new outgoing request,
	// to be handed back to the scheduler as a fresh task.
	KindRequest
	// KindResponse substitutes a response, skipping transport (request
	// phase) or replacing the in-flight response (response phase).
	KindResponse
	// KindAbort terminates the task chain with a reason. No response is
	// delivered and no retry happens.
	KindAbort
)

// Outcome is the tagged result of one middleware hook. Exactly one of the
// payload fields is meaningful, selected by Kind. Modeling decisions as an
// enumerable value (rather than panics or sentinel errors in the hot path)
// keeps every handler's decision space testable.
type Outcome struct {
	kind   Kind
	req    *web.Request
	resp   *web.Response
	reason string
}

// Pass continues the chain unchanged.
func Pass() Outcome { return Outcome{kind: KindPass} }

// WithRequest re-enqueues req as a brand-new task.
func WithRequest(req *web.Request) Outcome { return Outcome{kind: KindRequest, req: req} }

// WithResponse substitutes resp for the rest of the chain.
func WithResponse(resp *web.Response) Outcome { return Outcome{kind: KindResponse, resp: resp} }

// Abort terminates the task chain, carrying the reason for logs and stats.
func Abort(reason string) Outcome { return Outcome{kind: KindAbort, reason: reason} }

// Kind returns the decision tag.
func (o Outcome) Kind() Kind { return o.kind }

// Request returns the replacement request (KindRequest only).
func (o Outcome) Request() *web.Request { return o.req }

// Response returns the substituted response (KindResponse only).
func (o Outcome) Response() *web.Response { return o.resp }

// Reason returns the abort reason (KindAbort only).
func (o Outcome) Reason() string { return o.reason }
