package transport

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/internal/gitlog"
	"github.com/lxr-go-scm/gitfetch/internal/metrics"
	"github.com/lxr-go-scm/gitfetch/pktline"
	"github.com/lxr-go-scm/gitfetch/protocol"
)

// FetchPackV1 dials rawurl, performs the v1 handshake, discards the
// ref advertisement (the caller is expected to already have it from a
// prior FetchRefs call), sends payload, and writes the resulting
// packfile to outputPath. The file is written to a temporary sibling
// first and atomically renamed into place, so outputPath never
// briefly names a partial pack.
func (c *Client) FetchPackV1(ctx context.Context, rawurl string, payload *protocol.FetchPayload, outputPath string) error {
	return c.fetchPack(ctx, rawurl, payload, outputPath, false)
}

// FetchPackV2 behaves like FetchPackV1 but speaks protocol v2: the
// handshake advertises "version=2", and the request is wrapped as a
// "command=fetch" section instead of sent as bare want/have lines.
func (c *Client) FetchPackV2(ctx context.Context, rawurl string, payload *protocol.FetchPayload, outputPath string) error {
	return c.fetchPack(ctx, rawurl, payload, outputPath, true)
}

func (c *Client) fetchPack(ctx context.Context, rawurl string, payload *protocol.FetchPayload, outputPath string, v2 bool) error {
	host, port, path, err := parseGitURL(rawurl)
	if err != nil {
		return err
	}
	conn, err := dial(ctx, &c.Dialer, host, port)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(handshake(path, host, v2)); err != nil {
		return errkind.Wrap(errkind.TransportError, err, "send handshake")
	}
	pktr := pktline.NewReader(bufio.NewReader(conn))
	if v2 {
		if err := drainV2Capabilities(pktr); err != nil {
			return err
		}
	} else {
		if err := drainAdvertisement(pktr); err != nil {
			return err
		}
	}

	body := payload.Build()
	if v2 {
		body = v2FetchCommand(payload)
	}
	if _, err := conn.Write(body); err != nil {
		return errkind.Wrap(errkind.TransportError, err, "send fetch request")
	}

	// Protocol v2's packfile section is sideband-framed the same way
	// v1's is; for v1, framing follows whatever capability the request
	// actually advertised, since an older server may not understand
	// side-band-64k at all.
	useSideBand := v2 || payload.SideBand()
	return writePackToFile(pktr, outputPath, useSideBand, gitlog.FromContext(ctx), c.Metrics)
}

// v2FetchCommand wraps payload's accumulated want/have/deepen/done
// lines as a protocol v2 "command=fetch" request: the command name, a
// delim-pkt, payload's lines, and a closing flush-pkt.
func v2FetchCommand(payload *protocol.FetchPayload) []byte {
	buf := pktline.AppendString(nil, "command=fetch\n")
	buf = pktline.AppendDelim(buf)
	buf = payload.AppendTo(buf)
	return pktline.AppendFlush(buf)
}

// writePackToFile reads the packfile stream from pktr into a temporary
// file beside outputPath, named with a random UUID so concurrent
// fetches never collide, then renames it into place only once the
// whole stream has been received without error. When sideBand is true
// the stream is demuxed (band 1 data, band 2 progress, band 3 error);
// otherwise it is raw pack bytes with no demuxing to do.
func writePackToFile(pktr *pktline.Reader, outputPath string, sideBand bool, log gitlog.Logger, m *metrics.Recorder) error {
	dir := filepath.Dir(outputPath)
	tmpPath := filepath.Join(dir, "."+uuid.NewString()+".pack.tmp")
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
	if err != nil {
		return errkind.Wrap(errkind.IOError, err, "create temporary pack file in %s", dir)
	}
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	var demuxErr error
	if sideBand {
		demuxErr = demuxPackfile(pktr, f, log, m)
	} else {
		demuxErr = writeRawPackfile(pktr, f, m)
	}
	closeErr := f.Close()
	if demuxErr != nil {
		return demuxErr
	}
	if closeErr != nil {
		return errkind.Wrap(errkind.IOError, closeErr, "close %s", tmpPath)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return errkind.Wrap(errkind.IOError, err, "rename %s to %s", tmpPath, outputPath)
	}
	return nil
}
