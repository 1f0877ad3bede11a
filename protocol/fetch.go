package protocol

import (
	"fmt"

	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/pktline"
)

// DefaultFetchCapabilities is the capability set a FetchPayload
// requests by default: the minimum a client needs to cope with large,
// deep repositories served over a single connection. A server's
// advertised capabilities are always the upper bound; requesting one
// it did not advertise is a protocol violation left to the caller to
// avoid.
var DefaultFetchCapabilities = CapList{
	"multi_ack_detailed": true,
	"no-done":            true,
	"side-band-64k":      true,
	"thin-pack":          true,
	"ofs-delta":          true,
	"agent=" + Agent:     true,
}

// Agent is the value advertised by this implementation's "agent"
// capability.
const Agent = "git/gitfetch"

// A FetchPayload accumulates the want/have/deepen lines of a
// want-list negotiation and renders them into the pkt-line sequence a
// git-upload-pack server expects, for either protocol v1 or v2.
//
// The zero value is ready to use. FetchPayload is not safe for
// concurrent use.
type FetchPayload struct {
	buf      []byte
	wantSent bool
	sideBand bool
}

// AddWant appends a "want" line for id. The first call on a given
// FetchPayload includes caps as the request's capability list, per
// the v1 wire format, which only allows capabilities to be stated
// once, on the first want; later calls omit it. caps is ignored (and
// may be nil) on every call after the first.
func (p *FetchPayload) AddWant(id object.ID, caps CapList) {
	if !p.wantSent {
		p.wantSent = true
		p.sideBand = caps["side-band-64k"] || caps["side-band"]
		if len(caps) > 0 {
			p.buf = pktline.AppendString(p.buf, fmt.Sprintf("want %s %s\n", id, caps))
			return
		}
	}
	p.buf = pktline.AppendString(p.buf, fmt.Sprintf("want %s\n", id))
}

// SideBand reports whether the request built so far asked the server
// for sideband framing ("side-band-64k" or "side-band"). It only
// reflects what AddWant's first call requested; callers that never
// negotiate a capability list (e.g. a v2 request with none of the
// above) get false, meaning the response is raw pack bytes.
func (p *FetchPayload) SideBand() bool {
	return p.sideBand
}

// AddHave appends a "have" line advertising an object the caller
// already possesses.
func (p *FetchPayload) AddHave(id object.ID) {
	p.buf = pktline.AppendString(p.buf, fmt.Sprintf("have %s\n", id))
}

// AddDeepen appends a "deepen" line requesting a shallow clone of
// depth n.
func (p *FetchPayload) AddDeepen(n int) {
	p.buf = pktline.AppendString(p.buf, fmt.Sprintf("deepen %d\n", n))
}

// AddDone appends the terminal "done" line that ends negotiation.
// Once the server sees it, it stops waiting for further "have" lines
// and starts generating the packfile.
func (p *FetchPayload) AddDone() {
	p.buf = pktline.AppendString(p.buf, "done\n")
}

// AddDelimiter appends a delim-pkt ("0001"), used by protocol v2 to
// separate the command's capability arguments from its want/have
// list.
func (p *FetchPayload) AddDelimiter() {
	p.buf = pktline.AppendDelim(p.buf)
}

// Build returns the accumulated lines terminated by a flush-pkt,
// ready to be written to the connection in one call. It does not
// reset the payload; calling Build again returns the same bytes plus
// anything added since.
func (p *FetchPayload) Build() []byte {
	return pktline.AppendFlush(append([]byte(nil), p.buf...))
}

// AppendTo appends the payload's accumulated pkt-lines to buf,
// without a terminating flush-pkt, and returns the result. It is used
// by the v2 transport, which wraps the same want/have/deepen/done
// lines in a "command=fetch" section instead of the bare v1 sequence
// Build produces.
func (p *FetchPayload) AppendTo(buf []byte) []byte {
	return append(buf, p.buf...)
}
