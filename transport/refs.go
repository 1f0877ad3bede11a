package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/pktline"
)

// FetchRefs dials rawurl, performs the v1 git-upload-pack handshake,
// and returns every advertised reference whose name starts with
// "refs/" (HEAD and the synthetic "capabilities^{}" line are always
// dropped, matching the original ref-discovery behavior this is
// ported from). The connection is closed before FetchRefs returns.
func (c *Client) FetchRefs(ctx context.Context, rawurl string) (map[object.ID]string, error) {
	host, port, path, err := parseGitURL(rawurl)
	if err != nil {
		return nil, err
	}
	conn, err := dial(ctx, &c.Dialer, host, port)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write(handshake(path, host, false)); err != nil {
		return nil, errkind.Wrap(errkind.TransportError, err, "send handshake")
	}
	pktr := pktline.NewReader(bufio.NewReader(conn))
	return parseRefAdvertisement(pktr)
}

// parseRefAdvertisement reads pkt-lines from pktr up to and including
// the closing flush-pkt, extracting "<sha> <ref>[\0<caps>]" lines into
// a sha -> ref-name map. Next is called once to enter the advertisement
// substream; each subsequent ReadMsg call already lands on the next
// pkt-line as soon as the previous one's payload is fully drained, so
// the loop must not call Next again (the same bootstrap-once,
// read-to-EOF shape as pktline's Reader.ReadLine).
func parseRefAdvertisement(pktr *pktline.Reader) (map[object.ID]string, error) {
	refs := make(map[object.ID]string)
	if err := pktr.Next(); err != nil {
		return nil, errkind.Wrap(errkind.TransportError, err, "read ref advertisement")
	}
	for {
		if pktr.Type() == pktline.LineFlush {
			return refs, nil
		}
		line, err := pktr.ReadMsg()
		if err == io.EOF {
			return refs, nil
		} else if err != nil {
			return nil, errkind.Wrap(errkind.TransportError, err, "read ref advertisement")
		}
		line = bytes.TrimRight(line, "\n")
		sha, rest, ok := bytes.Cut(line, []byte(" "))
		if !ok {
			continue
		}
		name := rest
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		if !bytes.HasPrefix(name, []byte("refs/")) {
			continue
		}
		id, err := object.DecodeID(string(sha))
		if err != nil {
			continue
		}
		refs[id] = string(name)
	}
}

// drainAdvertisement reads and discards pkt-lines up to and including
// the closing flush-pkt, for callers that already know the refs (from
// a prior FetchRefs call) and only need the connection past the
// advertisement before sending a fetch request. Next is called once to
// enter the substream; see parseRefAdvertisement for why the loop must
// not call it again.
func drainAdvertisement(pktr *pktline.Reader) error {
	if err := pktr.Next(); err != nil {
		if err == io.EOF {
			return nil
		}
		return errkind.Wrap(errkind.TransportError, err, "read ref advertisement")
	}
	for {
		if pktr.Type() == pktline.LineFlush {
			return nil
		}
		if _, err := pktr.ReadMsg(); err != nil {
			if err == io.EOF {
				return nil
			}
			return errkind.Wrap(errkind.TransportError, err, "read ref advertisement")
		}
	}
}

// drainV2Capabilities reads and discards the protocol v2 capability
// advertisement (the "version 2" line followed by capability lines) up
// to and including the closing flush-pkt.
func drainV2Capabilities(pktr *pktline.Reader) error {
	return drainAdvertisement(pktr)
}
