// Package busdrv implements capability.DeviceBus over a USB bulk
// transport, generalizing a single-device gousb open/claim/endpoint
// pattern from one fixed VID/PID to an address parsed at Open time.
package busdrv

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/herr"
)

// USBBus implements capability.DeviceBus over a single USB bulk endpoint
// pair.
type USBBus struct {
	ctx *gousb.Context

	mu        sync.Mutex
	dev       *gousb.Device
	cfg       *gousb.Config
	iface     *gousb.Interface
	epIn      *gousb.InEndpoint
	epOut     *gousb.OutEndpoint
	tickStart time.Time
}

// New creates a USBBus using its own gousb.Context. Close releases it.
func New() *USBBus {
	return &USBBus{ctx: gousb.NewContext()}
}

// Open parses address as "vid:pid" (hex, as in "0547:1002") and opens the
// first matching device, claiming interface 0 and its first bulk
// endpoint pair.
func (b *USBBus) Open(ctx context.Context, kind string, address string) error {
	vid, pid, err := parseVIDPID(address)
	if err != nil {
		return herr.Wrap(herr.MissingAddress, err, "parsing USB address")
	}

	dev, err := b.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return herr.Wrapf(herr.Open, err, "opening USB device %s", address)
	}
	if dev == nil {
		return herr.Newf(herr.Open, "USB device %s not found", address)
	}
	dev.SetAutoDetach(true)

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return herr.Wrap(herr.Open, err, "selecting USB configuration")
	}
	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		return herr.Wrap(herr.Open, err, "claiming USB interface")
	}
	epIn, err := iface.InEndpoint(1)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		return herr.Wrap(herr.Open, err, "opening USB IN endpoint")
	}
	epOut, err := iface.OutEndpoint(1)
	if err != nil {
		iface.Close()
		cfg.Close()
		dev.Close()
		return herr.Wrap(herr.Open, err, "opening USB OUT endpoint")
	}

	b.mu.Lock()
	b.dev, b.cfg, b.iface, b.epIn, b.epOut = dev, cfg, iface, epIn, epOut
	b.tickStart = time.Now()
	b.mu.Unlock()
	return nil
}

func parseVIDPID(address string) (uint16, uint16, error) {
	parts := strings.SplitN(address, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected vid:pid, got %q", address)
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad vendor id %q: %w", parts[0], err)
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("bad product id %q: %w", parts[1], err)
	}
	return uint16(vid), uint16(pid), nil
}

func (b *USBBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.iface != nil {
		b.iface.Close()
	}
	if b.cfg != nil {
		b.cfg.Close()
	}
	if b.dev != nil {
		b.dev.Close()
	}
	return b.ctx.Close()
}

// frame is the wire layout used for every request: a one-byte opcode, a
// big-endian uint32 address, and a payload.
func (b *USBBus) transact(ctx context.Context, opcode byte, addr uint32, payload []byte) ([]byte, error) {
	b.mu.Lock()
	epIn, epOut := b.epIn, b.epOut
	b.mu.Unlock()
	if epOut == nil || epIn == nil {
		return nil, herr.New(herr.IO, "USB bus not open")
	}

	frame := make([]byte, 5+len(payload))
	frame[0] = opcode
	binary.BigEndian.PutUint32(frame[1:5], addr)
	copy(frame[5:], payload)

	if _, err := epOut.WriteContext(ctx, frame); err != nil {
		return nil, herr.Wrap(herr.IO, err, "USB write")
	}
	resp := make([]byte, 4096)
	n, err := epIn.ReadContext(ctx, resp)
	if err != nil {
		return nil, herr.Wrap(herr.IO, err, "USB read")
	}
	return resp[:n], nil
}

const (
	opReadMem byte = iota
	opWriteMem
	opReadReg
	opWriteReg
	opRunControl
	opIsRunActive
	opStartTask
	opPollTask
	opReadTask
	opStopTask
	opSymbolIndex
	opSymbolName
	opSymbolBounds
	opReadSymbol
	opWriteSymbol
	opNumSymbols
)

func regionCode(region capability.MemoryRegion) uint32 {
	switch region {
	case capability.RegionSpectrum:
		return 1
	case capability.RegionRegister:
		return 2
	default:
		return 0
	}
}

func (b *USBBus) ReadMemory(ctx context.Context, region capability.MemoryRegion, addr uint32, length int) ([]byte, error) {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(length))
	resp, err := b.transact(ctx, opReadMem, addr|regionCode(region)<<28, payload)
	if err != nil {
		return nil, err
	}
	if len(resp) < length {
		out := make([]byte, length)
		copy(out, resp)
		return out, nil
	}
	return resp[:length], nil
}

func (b *USBBus) WriteMemory(ctx context.Context, region capability.MemoryRegion, addr uint32, data []byte) error {
	_, err := b.transact(ctx, opWriteMem, addr|regionCode(region)<<28, data)
	return err
}

func (b *USBBus) ReadRegister(ctx context.Context, name string) (uint16, error) {
	resp, err := b.transact(ctx, opReadReg, 0, []byte(name))
	if err != nil || len(resp) < 2 {
		return 0, err
	}
	return binary.BigEndian.Uint16(resp[:2]), nil
}

func (b *USBBus) WriteRegister(ctx context.Context, name string, value uint16) error {
	payload := make([]byte, 2+len(name))
	binary.BigEndian.PutUint16(payload[:2], value)
	copy(payload[2:], name)
	_, err := b.transact(ctx, opWriteReg, 0, payload)
	return err
}

func (b *USBBus) RunControl(ctx context.Context, physChan int, mode capability.RunMode, resume bool, stop bool) error {
	payload := []byte{byte(mode), boolByte(resume), boolByte(stop)}
	_, err := b.transact(ctx, opRunControl, uint32(physChan), payload)
	return err
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func (b *USBBus) IsRunActive(ctx context.Context, physChan int) (bool, error) {
	resp, err := b.transact(ctx, opIsRunActive, uint32(physChan), nil)
	if err != nil || len(resp) < 1 {
		return false, err
	}
	return resp[0] != 0, nil
}

func (b *USBBus) StartControlTask(ctx context.Context, physChan int, taskID int, args []byte) error {
	payload := append([]byte{byte(taskID)}, args...)
	_, err := b.transact(ctx, opStartTask, uint32(physChan), payload)
	return err
}

func (b *USBBus) PollControlTask(ctx context.Context, physChan int) (capability.ControlTaskStatus, error) {
	resp, err := b.transact(ctx, opPollTask, uint32(physChan), nil)
	if err != nil || len(resp) < 1 {
		return capability.ControlTaskBusy, err
	}
	if resp[0] == 0 {
		return capability.ControlTaskDone, nil
	}
	return capability.ControlTaskBusy, nil
}

func (b *USBBus) ReadControlTaskResult(ctx context.Context, physChan int, length int) ([]byte, error) {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(length))
	return b.transact(ctx, opReadTask, uint32(physChan), payload)
}

func (b *USBBus) StopControlTask(ctx context.Context, physChan int) error {
	_, err := b.transact(ctx, opStopTask, uint32(physChan), nil)
	return err
}

func (b *USBBus) SymbolIndex(ctx context.Context, physChan int, name string) (int, error) {
	resp, err := b.transact(ctx, opSymbolIndex, uint32(physChan), []byte(name))
	if err != nil || len(resp) < 4 {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(resp[:4])), nil
}

func (b *USBBus) SymbolName(ctx context.Context, physChan int, index int) (string, error) {
	resp, err := b.transact(ctx, opSymbolName, uint32(physChan), uint32Bytes(uint32(index)))
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

func (b *USBBus) SymbolBounds(ctx context.Context, physChan int, name string) (uint16, uint16, error) {
	resp, err := b.transact(ctx, opSymbolBounds, uint32(physChan), []byte(name))
	if err != nil || len(resp) < 4 {
		return 0, 0, err
	}
	return binary.BigEndian.Uint16(resp[:2]), binary.BigEndian.Uint16(resp[2:4]), nil
}

func (b *USBBus) ReadSymbol(ctx context.Context, physChan int, name string) (uint16, error) {
	resp, err := b.transact(ctx, opReadSymbol, uint32(physChan), []byte(name))
	if err != nil || len(resp) < 2 {
		return 0, err
	}
	return binary.BigEndian.Uint16(resp[:2]), nil
}

func (b *USBBus) WriteSymbol(ctx context.Context, physChan int, name string, value uint16) error {
	payload := make([]byte, 2+len(name))
	binary.BigEndian.PutUint16(payload[:2], value)
	copy(payload[2:], name)
	_, err := b.transact(ctx, opWriteSymbol, uint32(physChan), payload)
	return err
}

func (b *USBBus) NumSymbols(ctx context.Context, physChan int) (int, error) {
	resp, err := b.transact(ctx, opNumSymbols, uint32(physChan), nil)
	if err != nil || len(resp) < 4 {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(resp[:4])), nil
}

func (b *USBBus) ClockTick(ctx context.Context) (time.Duration, error) {
	return time.Since(b.tickStart), nil
}

func (b *USBBus) Alloc(ctx context.Context, physChan int, length int) (uint32, error) {
	resp, err := b.transact(ctx, opReadMem, uint32(physChan), uint32Bytes(uint32(length)))
	if err != nil || len(resp) < 4 {
		return 0, err
	}
	return binary.BigEndian.Uint32(resp[:4]), nil
}

func (b *USBBus) Free(ctx context.Context, physChan int, addr uint32) error {
	return nil
}

func uint32Bytes(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

var _ capability.DeviceBus = (*USBBus)(nil)
