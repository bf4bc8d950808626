// Package rpc exposes the execution control of a device over net/rpc, for
// scripting and automated testing.
package rpc

import (
	"net"

	"gbcore/emu"
	"gbcore/emu/log"
)

var modRPC = log.NewModule("rpc")

// Device is the controlled device.
type Device interface {
	Run() error
	Break() error
	Step() error
	Reset() error
	Terminate() error

	State() emu.State
	FPS() float64
	FrameLimit() bool
	SetFrameLimit(bool)
	Breakpoints() *emu.Breakpoints
}

// Status is a snapshot of the device state.
type Status struct {
	State       string
	FPS         float64
	FrameLimit  bool
	Breakpoints int
}

func UnusedPort() int {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		panic("pickUnusedPort failed: " + err.Error())
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		panic("pickUnusedPort failed: " + err.Error())
	}
	return port
}
