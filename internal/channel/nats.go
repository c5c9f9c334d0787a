package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/natsbus"
	"github.com/nats-io/nats.go"
)

// Wire shapes for tool invocation over NATS request/reply.

type wireRequest struct {
	Args    map[string]any `json:"args"`
	Session Session        `json:"session"`
}

type wireResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// NATSServer exposes a Local channel's tools on the bus. One subscription
// covers tool.*.invoke; the tool name comes from the subject.
type NATSServer struct {
	inner *Local
	nats  *natsbus.Client
	log   *slog.Logger
	sub   *nats.Subscription
}

func NewNATSServer(inner *Local, nc *natsbus.Client, log *slog.Logger) *NATSServer {
	if log == nil {
		log = slog.Default()
	}
	return &NATSServer{inner: inner, nats: nc, log: log}
}

func (s *NATSServer) Start(ctx context.Context) error {
	sub, err := s.nats.Subscribe(natsbus.TopicToolInvokeAll, func(msg *nats.Msg) {
		go s.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe tool invocations: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *NATSServer) Stop() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
}

func (s *NATSServer) handle(ctx context.Context, msg *nats.Msg) {
	name, ok := toolNameFromSubject(msg.Subject)
	if !ok {
		s.log.Warn("tool invocation on malformed subject", "subject", msg.Subject)
		return
	}

	var req wireRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, wireResponse{Error: fmt.Sprintf("parse request: %v", err)})
		return
	}

	result, err := s.inner.Invoke(ctx, name, req.Args, req.Session)
	if err != nil {
		s.respond(msg, wireResponse{Error: err.Error()})
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		s.respond(msg, wireResponse{Error: fmt.Sprintf("marshal result: %v", err)})
		return
	}
	s.respond(msg, wireResponse{Result: data})
}

func (s *NATSServer) respond(msg *nats.Msg, resp wireResponse) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshal tool response", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.log.Error("respond tool invocation", "error", err)
	}
}

func toolNameFromSubject(subject string) (string, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != "tool" || parts[2] != "invoke" {
		return "", false
	}
	return parts[1], true
}

// NATSClient is the agent-side channel: invocations travel as request/reply
// over the bus. Register is not supported remotely.
type NATSClient struct {
	nats    *natsbus.Client
	timeout time.Duration
}

func NewNATSClient(nc *natsbus.Client, timeout time.Duration) *NATSClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NATSClient{nats: nc, timeout: timeout}
}

func (c *NATSClient) Register(Tool) error {
	return fmt.Errorf("register: not supported on a remote channel")
}

func (c *NATSClient) Invoke(ctx context.Context, name string, args map[string]any, sess Session) (any, error) {
	data, err := json.Marshal(wireRequest{Args: args, Session: sess})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	msg, err := c.nats.Request(natsbus.TopicToolInvoke(name), data, timeout)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", name, err)
	}

	var resp wireResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("invoke %s: %s", name, resp.Error)
	}

	var result any
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("parse result: %w", err)
		}
	}
	return result, nil
}
