package rpc

import (
	"fmt"
	"net/rpc"
	"time"

	"gbcore/emu"
)

type Client struct {
	client *rpc.Client
}

const (
	maxretries = 5
	retryDelay = 250 * time.Millisecond
)

// NewClient connects to the RPC server at addr, retrying a few times while
// the server is starting.
func NewClient(addr string) (*Client, error) {
	var (
		client *rpc.Client
		err    error
	)
	for i := range maxretries {
		if client, err = rpc.DialHTTP("tcp", addr); err == nil {
			break
		}
		modRPC.WarnZ("dial tcp failed").Error("err", err).Int("retry", i).End()
		time.Sleep(retryDelay)
	}

	if client == nil {
		return nil, fmt.Errorf("dial failed max retries: %v", err)
	}

	var ready bool
	if err := client.Call("emu.IsReady", &struct{}{}, &ready); err != nil || !ready {
		client.Close()
		return nil, fmt.Errorf("server not ready: %v", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	modRPC.DebugZ("closing rpc client").End()
	return c.client.Close()
}

func (c *Client) Run() error       { return call(c.client, "emu.Run", nil) }
func (c *Client) Break() error     { return call(c.client, "emu.Break", nil) }
func (c *Client) Step() error      { return call(c.client, "emu.Step", nil) }
func (c *Client) Reset() error     { return call(c.client, "emu.Reset", nil) }
func (c *Client) Terminate() error { return call(c.client, "emu.Terminate", nil) }

func (c *Client) SetFrameLimit(enabled bool) error {
	return call(c.client, "emu.SetFrameLimit", enabled)
}

func (c *Client) SetBreakpoint(addr uint16) error {
	return call(c.client, "emu.SetBreakpoint", addr)
}

// RemoveBreakpoint removes the breakpoint at addr and reports whether there
// was one.
func (c *Client) RemoveBreakpoint(addr uint16) (bool, error) {
	return request[bool](c.client, "emu.RemoveBreakpoint", addr)
}

// Breakpoints returns the addresses of all breakpoints, sorted.
func (c *Client) Breakpoints() ([]uint16, error) {
	return request[[]uint16](c.client, "emu.Breakpoints", nil)
}

func (c *Client) Status() (Status, error) {
	return request[Status](c.client, "emu.Status", nil)
}

func call(client *rpc.Client, funcname string, args any) error {
	_, err := request[struct{}](client, funcname, args)
	return err
}

func request[T any](client *rpc.Client, funcname string, args any) (T, error) {
	if args == nil {
		args = &struct{}{}
	}
	var reply T
	if err := client.Call(funcname, args, &reply); err != nil {
		modRPC.DebugZ("RPC call failed").String("func", funcname).Error("err", err).End()
		return reply, remoteError(err)
	}
	return reply, nil
}

// remoteError maps errors returned by the server back to their sentinel value.
func remoteError(err error) error {
	if se, ok := err.(rpc.ServerError); ok && string(se) == emu.ErrTerminated.Error() {
		return emu.ErrTerminated
	}
	return err
}
