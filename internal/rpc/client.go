package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

type rpcToken string

func (token rpcToken) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{
		"authorization": "Bearer " + string(token),
	}, nil
}

// The control service listens on loopback without TLS.
func (token rpcToken) RequireTransportSecurity() bool {
	return false
}

// Client calls the control service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the control service at target. An empty token sends no
// authorization metadata.
func Dial(target, token string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(rpcToken(token)))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]interface{}) (map[string]interface{}, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Status returns the supervisor snapshot as a generic map.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	return c.invoke(ctx, "Status", nil)
}

// Start launches the server.
func (c *Client) Start(ctx context.Context) (map[string]interface{}, error) {
	return c.invoke(ctx, "Start", nil)
}

// Stop kills the server.
func (c *Client) Stop(ctx context.Context) (map[string]interface{}, error) {
	return c.invoke(ctx, "Stop", nil)
}

// Restart stops and starts the server.
func (c *Client) Restart(ctx context.Context) (map[string]interface{}, error) {
	return c.invoke(ctx, "Restart", nil)
}

// Command sends one console line as an RCON command and returns the
// response words.
func (c *Client) Command(ctx context.Context, command string) ([]string, error) {
	out, err := c.invoke(ctx, "Command", map[string]interface{}{"command": command})
	if err != nil {
		return nil, err
	}

	list, _ := out["response"].([]interface{})
	words := make([]string, 0, len(list))
	for _, w := range list {
		if s, ok := w.(string); ok {
			words = append(words, s)
		}
	}
	return words, nil
}
