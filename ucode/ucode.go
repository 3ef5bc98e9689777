// Package ucode stores consumer overlay images in a simple container
// format. An overlay's command handlers are code and live in the
// program; the container carries the parts loaded onto the device, i.e.
// the overlay's initial state image, plus metadata to identify it.
package ucode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gorcp/rcq/device"
	"github.com/sigurn/crc8"
)

var magic = [4]byte{'U', 'C', '0', '1'}

var crcTable = crc8.MakeTable(crc8.CRC8)

// UCode is a loadable overlay image.
type UCode struct {
	Name  string
	Entry uint32 // entry point, overlay defined
	Data  []byte // initial state, copied to device memory on registration
}

// Overlay binds the image to its command handlers for registration on a
// device.
func (u *UCode) Overlay(cmds []device.CmdDesc) *device.Overlay {
	return &device.Overlay{Name: u.Name, Commands: cmds, Data: u.Data}
}

// Store writes the image. The payload is protected by a trailing CRC.
func (u *UCode) Store(w io.Writer) error {
	if len(u.Name) > 255 {
		return errors.New("ucode: name too long")
	}

	payload := make([]byte, 0, 16+len(u.Name)+len(u.Data))
	payload = append(payload, byte(len(u.Name)))
	payload = append(payload, u.Name...)
	payload = binary.BigEndian.AppendUint32(payload, u.Entry)
	payload = binary.BigEndian.AppendUint32(payload, uint32(len(u.Data)))
	payload = append(payload, u.Data...)

	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := w.Write([]byte{crc8.Checksum(payload, crcTable)})
	return err
}

// Load reads an image stored with Store, verifying its checksum.
func Load(r io.Reader) (*UCode, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, fmt.Errorf("ucode: %w", err)
	}
	if m != magic {
		return nil, errors.New("ucode: bad magic")
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ucode: %w", err)
	}
	if len(payload) < 10 {
		return nil, errors.New("ucode: truncated")
	}
	sum := payload[len(payload)-1]
	payload = payload[:len(payload)-1]
	if crc8.Checksum(payload, crcTable) != sum {
		return nil, errors.New("ucode: checksum mismatch")
	}

	nameLen := int(payload[0])
	if len(payload) < 1+nameLen+8 {
		return nil, errors.New("ucode: truncated")
	}
	u := &UCode{Name: string(payload[1 : 1+nameLen])}
	u.Entry = binary.BigEndian.Uint32(payload[1+nameLen:])
	dataLen := binary.BigEndian.Uint32(payload[5+nameLen:])
	data := payload[9+nameLen:]
	if uint32(len(data)) != dataLen {
		return nil, errors.New("ucode: data length mismatch")
	}
	u.Data = data

	return u, nil
}
