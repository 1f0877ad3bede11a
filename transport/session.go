package transport

import (
	"bufio"
	"context"
	"net"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/internal/gitlog"
	"github.com/lxr-go-scm/gitfetch/internal/metrics"
	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/pktline"
	"github.com/lxr-go-scm/gitfetch/protocol"
)

// A Session holds one TCP connection open across both the ref-listing
// and fetch-pack phases of a git:// conversation, for callers that
// want the single-round-trip shape a real git client uses instead of
// Client's default reconnect-per-phase behavior.
//
// A Session is not safe for concurrent use, and must be closed with
// Close when the caller is done with it.
type Session struct {
	conn net.Conn
	pktr *pktline.Reader
	v2   bool

	refsRead bool
}

// DialSession dials rawurl and sends the git-upload-pack handshake,
// requesting protocol v2 if v2 is true. The ref/capability
// advertisement is not consumed; call ListRefs, or proceed directly to
// FetchPack, which drains it if ListRefs was not called first.
func DialSession(ctx context.Context, d *net.Dialer, rawurl string, v2 bool) (*Session, error) {
	host, port, path, err := parseGitURL(rawurl)
	if err != nil {
		return nil, err
	}
	conn, err := dial(ctx, d, host, port)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(handshake(path, host, v2)); err != nil {
		conn.Close()
		return nil, errkind.Wrap(errkind.TransportError, err, "send handshake")
	}
	return &Session{
		conn: conn,
		pktr: pktline.NewReader(bufio.NewReader(conn)),
		v2:   v2,
	}, nil
}

// ListRefs reads the ref advertisement the server sent in response to
// the handshake. It is only meaningful for a v1 session (v2 servers
// advertise capabilities, not refs, at this point; refs come from the
// "ls-refs" command, outside this engine's scope).
func (s *Session) ListRefs() (map[object.ID]string, error) {
	if s.v2 {
		return nil, errkind.New(errkind.TransportError, "ListRefs requires a protocol v1 session")
	}
	refs, err := parseRefAdvertisement(s.pktr)
	if err != nil {
		return nil, err
	}
	s.refsRead = true
	return refs, nil
}

// FetchPack sends payload as a fetch request over the session's
// existing connection and writes the resulting packfile to
// outputPath, atomically renaming a temporary sibling file into place.
// If ListRefs has not been called yet, FetchPack drains the
// advertisement itself first.
func (s *Session) FetchPack(ctx context.Context, payload *protocol.FetchPayload, outputPath string, m *metrics.Recorder) error {
	if !s.refsRead {
		var err error
		if s.v2 {
			err = drainV2Capabilities(s.pktr)
		} else {
			err = drainAdvertisement(s.pktr)
		}
		if err != nil {
			return err
		}
		s.refsRead = true
	}

	body := payload.Build()
	if s.v2 {
		body = v2FetchCommand(payload)
	}
	if _, err := s.conn.Write(body); err != nil {
		return errkind.Wrap(errkind.TransportError, err, "send fetch request")
	}
	useSideBand := s.v2 || payload.SideBand()
	return writePackToFile(s.pktr, outputPath, useSideBand, gitlog.FromContext(ctx), m)
}

// Close closes the session's underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
