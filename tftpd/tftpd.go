// Package tftpd serves the files auto install fetches once a switch has been
// handed over. It is read only.
package tftpd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pin/tftp/v3"

	"github.com/TotallyMonica/swinit/swlogging"
)

var ErrOutsideRoot = errors.New("path escapes the tftp root")

type Server struct {
	root string
	log  *swlogging.Logger
	srv  *tftp.Server
	conn *net.UDPConn
}

func New(root string, log *swlogging.Logger) *Server {
	s := &Server{
		root: root,
		log:  log,
	}
	s.srv = tftp.NewServer(s.readHandler, nil)
	s.srv.SetTimeout(5 * time.Second)
	return s
}

// Listen binds the UDP socket. Serve must be called afterwards.
func (s *Server) Listen(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("tftp listen %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("tftp listen %s: %w", addr, err)
	}
	s.conn = conn
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve blocks until Shutdown is called.
func (s *Server) Serve() error {
	if s.conn == nil {
		return errors.New("tftp server is not listening")
	}
	s.log.Infof("Serving %s over TFTP on %s", s.root, s.conn.LocalAddr())
	return s.srv.Serve(s.conn)
}

func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// Resolve maps a requested file name onto the root directory.
func (s *Server) Resolve(filename string) (string, error) {
	name := strings.ReplaceAll(filename, "\\", "/")
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%s: %w", filename, ErrOutsideRoot)
		}
	}
	clean := filepath.Clean("/" + name)
	if clean == "/" {
		return "", fmt.Errorf("%s: no file name", filename)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Server) readHandler(filename string, rf io.ReaderFrom) error {
	peer := "unknown"
	if t, ok := rf.(interface{ RemoteAddr() net.UDPAddr }); ok {
		addr := t.RemoteAddr()
		peer = addr.String()
	}

	path, err := s.Resolve(filename)
	if err != nil {
		s.log.Warnf("Refused TFTP read of %q from %s: %v", filename, peer, err)
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		s.log.Warnf("TFTP read of %q from %s failed: %v", filename, peer, err)
		return err
	}
	defer f.Close()

	if t, ok := rf.(interface{ SetSize(int64) }); ok {
		if info, err := f.Stat(); err == nil {
			t.SetSize(info.Size())
		}
	}

	n, err := rf.ReadFrom(f)
	if err != nil {
		s.log.Warnf("TFTP transfer of %s to %s failed after %d bytes: %v", filename, peer, n, err)
		return err
	}
	s.log.Infof("Sent %s to %s (%d bytes)", filename, peer, n)
	return nil
}
