// Package rpcwire implements the newline-delimited JSON RPC framing
// spec.md §4.7.6/§4.8 names between a Provider and both peer backends
// and client Handles, over an internal/runtime.Transport connection.
//
// The envelope and the accept-loop/dial shapes are grounded directly
// on the teacher's internal/rpc/protocol.go (Request{Operation, Args
// json.RawMessage}, Response{Success, Data, Error}) and the
// newline-delimited write/read discipline of
// internal/rpc/server.go's handleConnection (bufio.Reader.ReadBytes
// ('\n'), json.Unmarshal per line) and writeResponse (json.Marshal,
// write, '\n', Flush), and client.go's sendRequest (the same framing
// from the dialing side).
package rpcwire

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flockgroup/flock/internal/errs"
	"github.com/flockgroup/flock/internal/runtime"
)

// Identity is the literal string every Provider answers an identity
// probe with (spec.md §6); handles reject any other answer.
const Identity = "flock"

// Operation name constants for the RPCs spec.md §4.7.6 and §4.8 name.
const (
	OpIdentity = "identity"
	OpGetView  = "get_view"
	OpPing     = "ping"
	OpPingReq  = "ping_req"
	OpAnnounce = "announce"
)

// Request is the wire envelope for one RPC call.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Response is the wire envelope for one RPC reply.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// HandlerFunc processes one decoded request and returns the raw JSON
// to place in the response's Data field.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Dispatcher is a registration table of operation name to handler,
// guarded the way the teacher's Server guards its per-connection
// state (sync.RWMutex, read-mostly lookups).
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewDispatcher returns an empty dispatcher; Register is typically
// called once per operation at Provider construction time.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register installs fn under op, replacing any existing handler —
// this lets backend.InitArgs-style RPC registration (SWIM's PING/
// PING-REQ/ANNOUNCE) happen after the Provider's own GET-VIEW/identity
// registration without ordering constraints.
func (d *Dispatcher) Register(op string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[op] = fn
}

func (d *Dispatcher) lookup(op string) (HandlerFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.handlers[op]
	return fn, ok
}

// Serve runs the accept loop for one Listener, handling each
// connection on its own goroutine via pool, mirroring
// server.go's per-connection handleConnection goroutine.
func Serve(ctx context.Context, ln runtime.Listener, pool runtime.TaskPool, d *Dispatcher, requestTimeout time.Duration) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		c := conn
		if err := pool.Go(func() { handleConn(c, d, requestTimeout) }); err != nil {
			c.Close()
		}
	}
}

func handleConn(conn runtime.Conn, d *Dispatcher, requestTimeout time.Duration) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(writer, Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		fn, ok := d.lookup(req.Operation)
		if !ok {
			writeResponse(writer, Response{Success: false, Error: fmt.Sprintf("unknown operation: %s", req.Operation)})
			continue
		}

		ctx := context.Background()
		if requestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, requestTimeout)
			data, err := fn(ctx, req.Args)
			cancel()
			writeResult(writer, data, err)
			continue
		}
		data, err := fn(ctx, req.Args)
		writeResult(writer, data, err)
	}
}

func writeResult(writer *bufio.Writer, data json.RawMessage, err error) {
	if err != nil {
		writeResponse(writer, Response{Success: false, Error: err.Error()})
		return
	}
	writeResponse(writer, Response{Success: true, Data: data})
}

func writeResponse(writer *bufio.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	writer.Write(data)
	writer.WriteByte('\n')
	writer.Flush()
}

// Caller issues requests over a dialed runtime.Conn, one at a time
// (callers serialize their own concurrent use, matching the teacher's
// one-request-in-flight-per-Client assumption in client.go).
type Caller struct {
	conn runtime.Conn
}

// NewCaller wraps an already-dialed connection.
func NewCaller(conn runtime.Conn) *Caller {
	return &Caller{conn: conn}
}

// Close closes the underlying connection.
func (c *Caller) Close() error { return c.conn.Close() }

// Call marshals args, sends op, and unmarshals the reply's Data into
// out (if non-nil). A non-nil error wraps errs.ErrTransport for
// framing/IO failures, or carries the remote Error string otherwise.
func (c *Caller) Call(op string, args, out interface{}) error {
	var argsJSON json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrAllocation, err)
		}
		argsJSON = b
	}

	reqJSON, err := json.Marshal(Request{Operation: op, Args: argsJSON})
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAllocation, err)
	}

	writer := bufio.NewWriter(c.conn)
	if _, err := writer.Write(reqJSON); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}

	reader := bufio.NewReader(c.conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", errs.ErrOther, resp.Error)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrTransport, err)
		}
	}
	return nil
}

// Dial opens a connection to addr and returns a ready Caller.
func Dial(ctx context.Context, t runtime.Transport, addr string, timeout time.Duration) (*Caller, error) {
	conn, err := t.Dial(ctx, addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	return NewCaller(conn), nil
}
