package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/lxr-go-scm/gitfetch/internal/gitlog"
	"github.com/lxr-go-scm/gitfetch/protocol"
	"github.com/lxr-go-scm/gitfetch/repository/disk"
)

// cmdServe runs a read-only git:// daemon in front of a single local
// repository. It exists so the fetch client implemented by fetch-refs
// and fetch-pack can be exercised end to end against a real server
// without reaching out to the network, and is deliberately limited to
// the upload-pack half of the smart protocol: nothing in this module
// writes objects or refs, so there is no receive-pack side to serve.
func cmdServe(args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ExitOnError)
	gitDir := fs.String("git-dir", "", "path to the .git directory to serve")
	addr := fs.String("addr", "127.0.0.1:9418", "address to listen on")
	fs.Parse(args)

	if *gitDir == "" {
		fmt.Fprintln(os.Stderr, "Usage: gitfetch serve --git-dir <path> [--addr host:port]")
		os.Exit(1)
	}

	repo, err := disk.Open(*gitDir)
	if err != nil {
		return fmt.Errorf("open %q: %w", *gitDir, err)
	}
	defer repo.Close()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", *addr, err)
	}
	defer ln.Close()

	log := gitlog.Noop
	log.Info("serving upload-pack", "git-dir", *gitDir, "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			defer conn.Close()
			if err := serveConn(repo, conn); err != nil {
				log.Error("upload-pack session failed", "remote", conn.RemoteAddr().String(), "err", err)
			}
		}()
	}
}

// serveConn handles a single git-upload-pack request: it reads and
// discards the request line (this daemon serves one repository per
// listener, so the requested path is not consulted), advertises refs,
// and then runs the want/have negotiation and pack transfer.
func serveConn(repo *disk.Repository, conn net.Conn) error {
	br := bufio.NewReader(conn)
	if _, err := readRequestLine(br); err != nil {
		return fmt.Errorf("read request line: %w", err)
	}
	if err := protocol.AdvertiseRefs(repo, conn); err != nil {
		return fmt.Errorf("advertise refs: %w", err)
	}
	return protocol.UploadPack(repo, conn, br)
}

// readRequestLine reads the pkt-line encoded "git-upload-pack
// '<path>'\0host=<host>\0..." request line a client sends on connect.
func readRequestLine(br *bufio.Reader) (string, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(br, lenBuf); err != nil {
		return "", err
	}
	var n int
	if _, err := fmt.Sscanf(string(lenBuf), "%04x", &n); err != nil {
		return "", err
	}
	if n < 4 {
		return "", fmt.Errorf("invalid pkt-line length %d", n)
	}
	buf := make([]byte, n-4)
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf, "\x00")), nil
}
