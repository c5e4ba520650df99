// Package signalplatform adapts a signal-cli JSON-RPC subprocess into
// the bot's chatevent.Event alphabet: inbound messages and reactions
// become events on a channel suitable for demux.Pipe, and outbound
// replies are sent through a Send effect usable from scenario.Eval.
package signalplatform

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// rpcResponse pairs a raw JSON result with an optional error for
// delivery through the pending channel.
type rpcResponse struct {
	Result json.RawMessage
	Error  *rpcError
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("signal-cli rpc error %d: %s", e.Code, e.Message)
}

// rpcRequest is a JSON-RPC 2.0 request written to signal-cli's stdin.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcRaw is used to classify incoming JSON lines as responses (have an
// id) or notifications (have a method).
type rpcRaw struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// client talks to a signal-cli subprocess running in jsonRpc mode over
// stdin/stdout. Inbound notifications are pushed to a channel; outbound
// requests use request/response correlation via a pending map.
type client struct {
	command string
	args    []string
	logger  *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan rpcResponse

	envelopes chan Envelope
	done      chan struct{}
	waitErr   chan error
}

func newClient(command string, args []string, logger *slog.Logger) *client {
	if logger == nil {
		logger = slog.Default()
	}
	return &client{
		command:   command,
		args:      args,
		logger:    logger,
		pending:   make(map[int64]chan rpcResponse),
		envelopes: make(chan Envelope, 64),
		done:      make(chan struct{}),
		waitErr:   make(chan error, 1),
	}
}

// start launches the signal-cli subprocess in daemon/jsonRpc mode and
// begins reading notifications. Must be called exactly once.
func (c *client) start(ctx context.Context) error {
	c.logger.Info("starting signal-cli subprocess", "command", c.command, "args", c.args)

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start signal-cli: %w", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.reader = bufio.NewReaderSize(stdout, 1<<20)

	go c.drainStderr(stderrPipe)
	go c.readLoop()
	go func() {
		err := cmd.Wait()
		if err != nil {
			c.logger.Error("signal-cli subprocess exited with error", "error", err)
		} else {
			c.logger.Info("signal-cli subprocess exited")
		}
		c.waitErr <- err
	}()

	c.logger.Info("signal-cli subprocess started", "pid", cmd.Process.Pid)
	return nil
}

// envelopeStream returns the channel of inbound envelopes, closed when
// the subprocess exits.
func (c *client) envelopeStream() <-chan Envelope {
	return c.envelopes
}

// send sends a text message to a recipient (a phone number or a group
// ID) and returns the server timestamp of the sent message.
func (c *client) send(ctx context.Context, recipient, message string, group bool) (int64, error) {
	params := map[string]any{"message": message}
	if group {
		params["groupId"] = recipient
	} else {
		params["recipient"] = []string{recipient}
	}

	raw, err := c.call(ctx, "send", params)
	if err != nil {
		return 0, fmt.Errorf("signal send: %w", err)
	}

	var result sendResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("unmarshal send result: %w", err)
	}
	return result.Timestamp, nil
}

// sendTyping starts or stops the typing indicator for recipient.
func (c *client) sendTyping(ctx context.Context, recipient string, stop bool) error {
	params := map[string]any{"recipient": recipient}
	if stop {
		params["stop"] = true
	}
	_, err := c.call(ctx, "sendTyping", params)
	if err != nil {
		return fmt.Errorf("signal sendTyping: %w", err)
	}
	return nil
}

// ping checks that the subprocess is responsive.
func (c *client) ping(ctx context.Context) error {
	_, err := c.call(ctx, "version", nil)
	return err
}

// close shuts down the subprocess gracefully, closing stdin first and
// force-killing after a grace period.
func (c *client) close() error {
	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}

	c.logger.Info("stopping signal-cli subprocess", "pid", c.cmd.Process.Pid)

	if c.stdin != nil {
		c.stdin.Close()
	}

	select {
	case err := <-c.waitErr:
		return err
	case <-time.After(5 * time.Second):
		c.logger.Warn("signal-cli did not exit gracefully, killing", "pid", c.cmd.Process.Pid)
		_ = c.cmd.Process.Kill()
		<-c.waitErr
		return nil
	}
}

func (c *client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	c.pending[id] = ch

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("write to signal-cli stdin: %w", err)
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-c.done:
		return nil, fmt.Errorf("signal-cli subprocess exited")
	}
}

func (c *client) readLoop() {
	defer close(c.done)
	defer close(c.envelopes)

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				c.logger.Error("signal-cli read error", "error", err)
			}
			c.mu.Lock()
			for id, ch := range c.pending {
				ch <- rpcResponse{Error: &rpcError{Code: -1, Message: "subprocess exited"}}
				delete(c.pending, id)
			}
			c.mu.Unlock()
			return
		}

		var raw rpcRaw
		if err := json.Unmarshal(line, &raw); err != nil {
			c.logger.Debug("signal-cli non-JSON line", "line", string(line))
			continue
		}

		if raw.ID != nil {
			c.mu.Lock()
			ch, ok := c.pending[*raw.ID]
			if ok {
				delete(c.pending, *raw.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- rpcResponse{Result: raw.Result, Error: raw.Error}
			} else {
				c.logger.Debug("signal-cli response for unknown ID", "id", *raw.ID)
			}
			continue
		}

		if raw.Method == "receive" {
			var notif receiveNotification
			if err := json.Unmarshal(raw.Params, &notif); err != nil {
				c.logger.Warn("signal-cli malformed receive notification", "error", err)
				continue
			}
			if notif.Envelope.DataMessage != nil {
				select {
				case c.envelopes <- notif.Envelope:
				default:
					c.logger.Warn("signal envelope channel full, dropping message", "sender", notif.Envelope.Source)
				}
			}
			continue
		}

		c.logger.Debug("signal-cli unknown message", "method", raw.Method)
	}
}

func (c *client) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		c.logger.Debug("signal-cli stderr", "line", scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("signal-cli stderr scan error", "error", err)
	}
}
