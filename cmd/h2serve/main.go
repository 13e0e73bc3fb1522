// Command h2serve is a minimal TLS-terminating HTTP/2 server that
// drives the h2 engine directly, without going through net/http. It
// exists to exercise the engine end to end: accept a connection,
// negotiate ALPN "h2", consume the client connection preface, and hand
// the rest of the byte stream to h2.Server.ServeConn.
package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/h2stack/engine/h2"
	"github.com/h2stack/engine/internal/log"
)

var (
	addr     = flag.String("addr", ":8443", "address to listen on")
	certFile = flag.String("cert", "", "TLS certificate file")
	keyFile  = flag.String("key", "", "TLS key file")
)

// clientPreface is the 24-octet magic every HTTP/2 connection opens
// with (RFC 7540 §3.5). Negotiating it is explicitly out of scope for
// the engine itself; this binary is the "external collaborator" that
// consumes it before calling h2.Server.ServeConn.
const clientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

func main() {
	flag.Parse()
	if *certFile == "" || *keyFile == "" {
		fmt.Println("h2serve: -cert and -key are required")
		return
	}

	cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
	if err != nil {
		log.Error("load cert: %v", err)
		return
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2"},
		MinVersion:   tls.VersionTLS12,
	}

	ln, err := tls.Listen("tcp", *addr, tlsConfig)
	if err != nil {
		log.Error("listen: %v", err)
		return
	}
	defer ln.Close()
	log.Error("h2serve listening on %s", *addr)

	srv := h2.NewServer(
		h2.WithMaxConcurrentStreams(250),
		h2.WithInitialStreamRecvWindow(1<<20),
	)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Error("accept: %v", err)
			return
		}
		go serve(srv, conn)
	}
}

func serve(srv *h2.Server, conn net.Conn) {
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if ok {
		if err := tlsConn.Handshake(); err != nil {
			log.Error("tls handshake: %v", err)
			return
		}
		if got := tlsConn.ConnectionState().NegotiatedProtocol; got != "h2" {
			log.Error("peer did not negotiate h2 (got %q)", got)
			return
		}
	}

	if err := readClientPreface(conn); err != nil {
		log.Error("client preface: %v", err)
		return
	}

	err := srv.ServeConn(h2.ServeConnOpts{
		Transport: conn,
		Listener:  echoListener{},
	})
	if err != nil {
		log.Debug("connection ended: %v", err)
	}
}

func readClientPreface(r io.Reader) error {
	buf := make([]byte, len(clientPreface))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	if string(buf) != clientPreface {
		return fmt.Errorf("h2serve: bad client preface %q", buf)
	}
	return nil
}

// echoListener answers every request with a 200 response whose body
// starts with the request's pseudo-headers, one "name: value" text line
// each, followed by an echo of the request body. It exists to give the engine
// something to drive in this demo binary; a real server would swap it
// for an adapter into net/http's Handler interface.
type echoListener struct{}

func (echoListener) ServeStream(h *h2.StreamHandle) bool {
	go func() {
		req := h.ReadHeaders()
		var b strings.Builder
		for _, f := range req.PseudoFields() {
			fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
		}

		if err := h.WriteHeaders([]h2.HeaderField{
			{Name: ":status", Value: "200"},
			{Name: "content-type", Value: "text/plain; charset=utf-8"},
		}, true, false); err != nil {
			return
		}

		if _, err := h.Write([]byte(b.String())); err != nil {
			_ = h.WriteTrailers(nil)
			return
		}
		buf := make([]byte, 4096)
		for {
			n, rerr := h.Read(buf)
			if n > 0 {
				if _, werr := h.Write(buf[:n]); werr != nil {
					return
				}
			}
			if rerr != nil {
				break
			}
		}
		_ = h.WriteTrailers(nil)
	}()
	return true
}
