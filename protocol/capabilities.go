package protocol

import (
	"fmt"
	"strings"
)

// Capabilities is the set of protocol capabilities the upload-pack
// side of this implementation supports.
var Capabilities = CapList{
	"ofs-delta":          true,
	"multi_ack_detailed": true,
}

// A CapList represents a set of Git protocol capabilities.
type CapList map[string]bool

// String returns the capabilities in c joined by spaces.
func (c CapList) String() string {
	capList := make([]string, len(c))
	i := 0
	for cp, ok := range c {
		if ok {
			capList[i] = cp
		}
		i++
	}
	return strings.Join(capList[:i], " ")
}

// Scan is a support routine for fmt.Scanner.  It consumes the rest of
// the current pkt-line as a whitespace-separated capability list, so it
// should only be used as the last operand of a Scan/Sscanf call.
func (c *CapList) Scan(ss fmt.ScanState, verb rune) error {
	tok, err := ss.Token(true, func(rune) bool { return true })
	if err != nil {
		return err
	}
	*c = ParseCapList(string(tok))
	return nil
}

// ParseCapList parses a whitespace-separated list of capabilities.
func ParseCapList(s string) CapList {
	c := make(CapList)
	for _, cp := range strings.Fields(s) {
		c[cp] = true
	}
	return c
}

// diff returns the set of capabilities that are in a but not in b.
func diff(a, b CapList) CapList {
	c := make(CapList)
	for cp, ok := range a {
		if ok && !b[cp] {
			c[cp] = true
		}
	}
	return c
}

