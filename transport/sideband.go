package transport

import (
	"io"
	"strings"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/internal/gitlog"
	"github.com/lxr-go-scm/gitfetch/internal/metrics"
	"github.com/lxr-go-scm/gitfetch/pktline"
)

// demuxPackfile reads sideband-framed pkt-lines from pktr until the
// closing flush-pkt (or the underlying stream ends), stripping the
// one-byte band indicator each data pkt-line carries: band 1 is
// packfile content, written to out; band 2 is a progress message,
// forwarded to log; band 3 is a fatal error message from the server,
// returned as a PackBroken error. Back-pressure is whatever out.Write
// applies — there is no buffering beyond the current pkt-line. Next is
// called once to enter the substream; each ReadMsg call already lands
// on the next pkt-line as soon as the previous one's payload is fully
// drained, so the loop must not call Next again (see
// parseRefAdvertisement in refs.go for the same shape).
func demuxPackfile(pktr *pktline.Reader, out io.Writer, log gitlog.Logger, m *metrics.Recorder) error {
	var total int64
	if err := pktr.Next(); err != nil && err != io.EOF {
		return errkind.Wrap(errkind.TransportError, err, "read packfile stream")
	}
	for {
		if pktr.Type() == pktline.LineFlush {
			break
		}
		msg, err := pktr.ReadMsg()
		if err == io.EOF {
			break
		} else if err != nil {
			return errkind.Wrap(errkind.TransportError, err, "read packfile stream")
		}
		if len(msg) == 0 {
			continue
		}
		band, data := msg[0], msg[1:]
		switch band {
		case 1:
			n, err := out.Write(data)
			total += int64(n)
			m.BytesFetched(n)
			if err != nil {
				return errkind.Wrap(errkind.IOError, err, "write packfile")
			}
		case 2:
			log.Info(strings.TrimRight(string(data), "\n"))
		case 3:
			return errkind.New(errkind.PackBroken, "server error: %s", strings.TrimRight(string(data), "\n"))
		default:
			return errkind.New(errkind.PackBroken, "unrecognized sideband indicator 0x%02x", band)
		}
	}
	m.PackReceived(total)
	return nil
}

// writeRawPackfile copies a pktline-framed but otherwise undemuxed
// packfile stream from pktr to out, a server's response when the
// client never requested (or the server never granted) side-band-64k.
// There is no band indicator to strip and no progress or error channel
// to multiplex: every pkt-line's payload is pack bytes. Next is called
// once to enter the substream, mirroring demuxPackfile.
func writeRawPackfile(pktr *pktline.Reader, out io.Writer, m *metrics.Recorder) error {
	var total int64
	if err := pktr.Next(); err != nil && err != io.EOF {
		return errkind.Wrap(errkind.TransportError, err, "read packfile stream")
	}
	for {
		if pktr.Type() == pktline.LineFlush {
			break
		}
		msg, err := pktr.ReadMsg()
		if err == io.EOF {
			break
		} else if err != nil {
			return errkind.Wrap(errkind.TransportError, err, "read packfile stream")
		}
		n, err := out.Write(msg)
		total += int64(n)
		m.BytesFetched(n)
		if err != nil {
			return errkind.Wrap(errkind.IOError, err, "write packfile")
		}
	}
	m.PackReceived(total)
	return nil
}
