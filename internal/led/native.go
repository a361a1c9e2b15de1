package led

import (
	"bytes"
	"encoding/binary"
	"os"
	"sync"

	"codeberg.org/mutker/lightsync/internal/errors"
)

// NativeAPI is the vendor control surface bound once at Initialize.
type NativeAPI interface {
	SetColor(argb uint32) error
	SetBrightness(percent int) error
	SetPattern(code int) error
	Close() error
}

// Opcodes understood by the vendor control node.
const (
	opSetColor      uint32 = 0x01
	opSetBrightness uint32 = 0x02
	opSetPattern    uint32 = 0x03
)

type nativeFrame struct {
	Op    uint32
	Value uint32
}

// nodeAPI writes fixed size little-endian frames to a character device.
type nodeAPI struct {
	mu   sync.Mutex
	file *os.File
}

// OpenNativeNode binds the vendor control node at path. It fails when the node
// does not exist or cannot be opened for writing.
func OpenNativeNode(path string) (NativeAPI, error) {
	errFactory := errors.New()

	info, err := os.Stat(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrNativeUnavailable, err)
	}
	if info.IsDir() {
		return nil, errFactory.WithData(ErrNativeUnavailable, path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, errFactory.Wrap(ErrNativeUnavailable, err)
	}

	return &nodeAPI{file: f}, nil
}

func (n *nodeAPI) write(op, value uint32) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, nativeFrame{Op: op, Value: value}); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.file == nil {
		return errors.New().New(ErrNativeUnavailable)
	}
	_, err := n.file.Write(buf.Bytes())
	return err
}

func (n *nodeAPI) SetColor(argb uint32) error {
	return n.write(opSetColor, argb)
}

func (n *nodeAPI) SetBrightness(percent int) error {
	return n.write(opSetBrightness, uint32(percent))
}

func (n *nodeAPI) SetPattern(code int) error {
	return n.write(opSetPattern, uint32(code))
}

func (n *nodeAPI) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.file == nil {
		return nil
	}
	err := n.file.Close()
	n.file = nil
	return err
}
