package device_test

import (
	"testing"

	"github.com/gorcp/rcq/device"
)

// start maps buf and points the device at it, with an empty high
// priority queue.
func start(d *device.Device, buf []uint32) device.Addr {
	a := d.Map(buf)
	hp := d.Map(make([]uint32, 16))
	d.Start(a, hp)
	return a
}

func TestStepIdle(t *testing.T) {
	d := device.New()
	d.Manual = true
	buf := make([]uint32, 16)
	start(d, buf)

	if !d.Idle() {
		t.Fatal("device not idle on zero word")
	}
	if d.Step() {
		t.Fatal("step made progress on zero word")
	}

	buf[0] = uint32(device.CmdNoop) << 24
	if d.Idle() {
		t.Fatal("device idle with pending command")
	}
	if !d.Step() {
		t.Fatal("step made no progress")
	}
	if !d.Idle() {
		t.Fatal("device not idle after last command")
	}
}

func TestJumpCallRet(t *testing.T) {
	d := device.New()
	d.Manual = true

	sub := make([]uint32, 4)
	subAddr := d.Map(sub)
	sub[0] = uint32(device.CmdNoop) << 24
	sub[1] = uint32(device.CmdRet) << 24

	buf := make([]uint32, 16)
	start(d, buf)
	buf[0] = uint32(device.CmdCall)<<24 | uint32(subAddr)
	buf[1] = 1 // nesting
	buf[2] = uint32(device.CmdNoop) << 24

	for it := 0; it < 4; it++ {
		if !d.Step() {
			t.Fatal("device idle early")
		}
	}
	if !d.Idle() {
		t.Fatal("device not idle after return")
	}
}

func TestCallStackOverflow(t *testing.T) {
	d := device.New()
	d.Manual = true

	// A subroutine calling itself overflows the fixed call stack.
	sub := make([]uint32, 4)
	subAddr := d.Map(sub)
	sub[0] = uint32(device.CmdCall)<<24 | uint32(subAddr)

	buf := make([]uint32, 16)
	start(d, buf)
	buf[0] = uint32(device.CmdCall)<<24 | uint32(subAddr)

	defer func() {
		if recover() == nil {
			t.Fatal("expected crash on call stack overflow")
		}
	}()
	for it := 0; it < 100; it++ {
		d.Step()
	}
}

func TestWriteStatus(t *testing.T) {
	d := device.New()
	d.Manual = true

	var got device.Signal
	d.OnSignal(func(set device.Signal) { got |= set })

	buf := make([]uint32, 16)
	start(d, buf)
	buf[0] = uint32(device.CmdWriteStatus)<<24 | uint32(device.SigRdpDone)
	buf[1] = uint32(device.CmdWriteStatus)<<24 | uint32(device.SigRdpDone)<<8

	d.Step()
	if d.Signals()&device.SigRdpDone == 0 {
		t.Error("signal not set")
	}
	if got&device.SigRdpDone == 0 {
		t.Error("signal handler not invoked")
	}

	d.Step()
	if d.Signals()&device.SigRdpDone != 0 {
		t.Error("signal not cleared")
	}
}

func TestRdpAppend(t *testing.T) {
	d := device.New()
	d.Manual = true
	raster := &device.RecordingRaster{}
	d.AttachRaster(raster)

	buf := make([]uint32, 16)
	start(d, buf)
	buf[0] = uint32(device.CmdRdpAppend) << 24
	buf[1] = 0xdeadbeef
	buf[2] = 0xcafebabe

	d.Step()
	if len(raster.Cmds) != 1 || raster.Cmds[0] != 0xdeadbeef_cafebabe {
		t.Fatalf("got %#x", raster.Cmds)
	}
}

func TestOverlayDispatch(t *testing.T) {
	d := device.New()
	d.Manual = true

	var got []uint32
	id := d.Register(&device.Overlay{
		Name: "test",
		Commands: []device.CmdDesc{
			{Words: 2, Fn: func(d *device.Device, args []uint32) {
				got = append(got, args...)
			}},
		},
	})

	buf := make([]uint32, 16)
	start(d, buf)
	buf[0] = id | 0x00abcdef
	buf[1] = 0x12345678

	d.Step()
	if len(got) != 2 {
		t.Fatalf("handler got %d words", len(got))
	}
	if got[0] != 0x00abcdef {
		t.Errorf("header word not masked: %#08x", got[0])
	}
	if got[1] != 0x12345678 {
		t.Errorf("second word: %#08x", got[1])
	}
}

func TestOverlayData(t *testing.T) {
	d := device.New()

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	d.Register(&device.Overlay{
		Name:     "state",
		Commands: []device.CmdDesc{{Words: 1, Fn: func(*device.Device, []uint32) {}}},
		Data:     data,
	})

	for i, b := range data {
		if d.DMEM[i] != b {
			t.Fatalf("DMEM[%d] = %d, want %d", i, d.DMEM[i], b)
		}
	}
}

func TestMapReusesSegments(t *testing.T) {
	d := device.New()

	a1 := d.Map(make([]uint32, 16))
	d.Unmap(a1)
	d.Unmap(a1) // second unmap of the same address is a no-op
	a2 := d.Map(make([]uint32, 16))
	if a2 != a1 {
		t.Fatalf("segment not reused: got %#x, want %#x", uint32(a2), uint32(a1))
	}

	// Far more map/unmap cycles than there are segment ids.
	held := d.Map(make([]uint32, 16))
	for it := 0; it < 1000; it++ {
		a := d.Map(make([]uint32, 16))
		d.Unmap(a)
	}
	d.Unmap(held)
}

func TestInvalidCommand(t *testing.T) {
	d := device.New()
	d.Manual = true

	buf := make([]uint32, 16)
	start(d, buf)
	buf[0] = 0x5f000000 // overlay 5, never registered

	defer func() {
		if recover() == nil {
			t.Fatal("expected crash on unregistered overlay")
		}
	}()
	d.Step()
}
