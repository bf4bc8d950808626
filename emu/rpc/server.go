package rpc

import (
	"errors"
	"net"
	"net/http"
	"net/rpc"
	"strconv"
)

type deviceProxy struct {
	dev Device
}

func (dp *deviceProxy) Run(_, _ *struct{}) error       { return dp.dev.Run() }
func (dp *deviceProxy) Break(_, _ *struct{}) error     { return dp.dev.Break() }
func (dp *deviceProxy) Step(_, _ *struct{}) error      { return dp.dev.Step() }
func (dp *deviceProxy) Reset(_, _ *struct{}) error     { return dp.dev.Reset() }
func (dp *deviceProxy) Terminate(_, _ *struct{}) error { return dp.dev.Terminate() }

func (dp *deviceProxy) SetFrameLimit(enabled bool, _ *struct{}) error {
	dp.dev.SetFrameLimit(enabled)
	return nil
}

func (dp *deviceProxy) SetBreakpoint(addr uint16, _ *struct{}) error {
	dp.dev.Breakpoints().Set(addr, nil)
	return nil
}

func (dp *deviceProxy) RemoveBreakpoint(addr uint16, removed *bool) error {
	*removed = dp.dev.Breakpoints().Remove(addr)
	return nil
}

func (dp *deviceProxy) Breakpoints(_ *struct{}, reply *[]uint16) error {
	for _, bp := range dp.dev.Breakpoints().All() {
		*reply = append(*reply, bp.Addr)
	}
	return nil
}

func (dp *deviceProxy) Status(_ *struct{}, reply *Status) error {
	*reply = Status{
		State:       dp.dev.State().String(),
		FPS:         dp.dev.FPS(),
		FrameLimit:  dp.dev.FrameLimit(),
		Breakpoints: dp.dev.Breakpoints().Len(),
	}
	return nil
}

func (dp *deviceProxy) IsReady(_ *struct{}, reply *bool) error {
	*reply = true
	return nil
}

type Server struct {
	l   net.Listener
	srv *http.Server
}

// NewServer starts serving RPC requests for dev on the given port, on all
// interfaces.
func NewServer(port int, dev Device) (*Server, error) {
	return Listen(":"+strconv.Itoa(port), dev)
}

// Listen starts serving RPC requests for dev on addr.
func Listen(addr string, dev Device) (*Server, error) {
	rpcsrv := rpc.NewServer()
	if err := rpcsrv.RegisterName("emu", &deviceProxy{dev: dev}); err != nil {
		panic("failed to register RPC server: " + err.Error())
	}

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, rpcsrv)
	s := &Server{l: l, srv: &http.Server{Handler: mux}}

	modRPC.InfoZ("rpc server listening").String("addr", l.Addr().String()).End()
	go func() {
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			modRPC.ErrorZ("rpc server stopped").Error("err", err).End()
		}
	}()
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.l.Addr().String()
}

func (s *Server) Close() error {
	return s.srv.Close()
}
