package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"vcu_miner/log"
)

// APIRequest is one command, sent as a single JSON object per connection.
type APIRequest struct {
	Command   string      `json:"command"`
	Parameter interface{} `json:"parameter"`
}

// HandlerFunc answers a command. A returned error is sent back as an error
// status instead of data.
type HandlerFunc func(req *APIRequest) (interface{}, error)

const (
	MaxRequestSize = 65536

	// accept retry backoff bounds
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

var ErrRequestTooLarge = errors.New("ErrRequestTooLarge")

type Server struct {
	listener    net.Listener
	done        chan struct{}
	wg          sync.WaitGroup
	handler     HandlerFunc
	ReadTimeout time.Duration
}

func NewServer(addr string, handler HandlerFunc) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newServer(l, handler), nil
}

func newServer(l net.Listener, handler HandlerFunc) *Server {
	return &Server{
		listener:    l,
		done:        make(chan struct{}),
		handler:     handler,
		ReadTimeout: 100 * time.Millisecond,
	}
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown.
func (s *Server) Serve() {
	s.wg.Add(1)
	defer s.wg.Done()

	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else if delay *= 2; delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			log.Errorf("accept: %v; retrying in %v", err, delay)
			select {
			case <-s.done:
				return
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	err := s.listener.Close()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readRequest collects bytes until a newline, or until the peer pauses for
// ReadTimeout after sending something.
func (s *Server) readRequest(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 0, 1024)
	tmp := make([]byte, 4096)
	for {
		select {
		case <-s.done:
			return nil, net.ErrClosed
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		n, err := conn.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			return buf[:i], nil
		}
		if len(buf) > MaxRequestSize {
			return nil, ErrRequestTooLarge
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if len(buf) == 0 {
				continue
			}
			return buf, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return buf, nil
			}
			return nil, err
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	log.Debugf("command connection from %v", conn.RemoteAddr())

	buf, err := s.readRequest(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			log.Infof("command connection %v: %v", conn.RemoteAddr(), err)
		}
		return
	}

	var resp *Response
	req := APIRequest{}
	if err := json.Unmarshal(buf, &req); err != nil {
		resp = ErrorResponse("invalid JSON: " + err.Error())
	} else if data, err := s.handler(&req); err != nil {
		resp = ErrorResponse(err.Error())
	} else {
		resp = OKResponse(req.Command, data)
	}

	out, err := PrepareJSONResponse(resp)
	if err != nil {
		return
	}
	if _, err := conn.Write(out); err != nil {
		log.Debugf("command reply to %v: %v", conn.RemoteAddr(), err)
	}
}
