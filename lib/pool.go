package lib

import (
	"fmt"
	"log"

	rp "github.com/Clouded-Sabre/ringpool/lib"
)

// SegmentBuffer is a fixed-size scratch buffer large enough for one segment
type SegmentBuffer struct {
	buf    []byte
	length int
}

// NewSegmentBuffer creates the pool element data. The only parameter is the
// buffer length in bytes.
func NewSegmentBuffer(params ...interface{}) rp.DataInterface {
	if len(params) != 1 {
		log.Println("NewSegmentBuffer: Invalid number of calling parameters. Should be only one: bufferlength")
		return nil
	}
	bufferLength, ok := params[0].(int)
	if !ok {
		log.Println("NewSegmentBuffer: Invalid data type of bufferLength. Should be of type int")
		return nil
	}
	return &SegmentBuffer{
		buf: make([]byte, bufferLength),
	}
}

// set the content of the buffer
func (s *SegmentBuffer) SetContent(str string) {
	s.length = copy(s.buf, str)
}

// Reset clears the buffer
func (s *SegmentBuffer) Reset() {
	clear(s.buf[:s.length])
	s.length = 0
}

// PrintContent prints the content of the buffer
func (s *SegmentBuffer) PrintContent() {
	fmt.Println("Content:", s.buf[:s.length])
}

func (s *SegmentBuffer) Copy(src []byte) error {
	if len(src) > len(s.buf) {
		return fmt.Errorf("SegmentBuffer Copy: Source byte slice(%d) is longer than bufferLength(%d)", len(src), len(s.buf))
	}
	s.length = copy(s.buf, src)
	return nil
}

func (s *SegmentBuffer) GetSlice() []byte {
	return s.buf[:s.length]
}

// Bytes returns the whole underlying buffer regardless of content length.
func (s *SegmentBuffer) Bytes() []byte {
	return s.buf
}

// segmentPool hands out segment-sized buffers owned by a single connection.
type segmentPool struct {
	pool *rp.RingPool
}

func newSegmentPool(size, segmentLength int, debug bool) *segmentPool {
	p := rp.NewRingPool("microtcp: ", size, NewSegmentBuffer, segmentLength)
	p.Debug = debug
	return &segmentPool{pool: p}
}

// get returns a buffer element; release must be called with it on every path.
func (p *segmentPool) get() (*rp.Element, []byte, error) {
	elem := p.pool.GetElement()
	if elem == nil {
		return nil, nil, newError(AllocationFailure, "pool", "no free segment buffer")
	}
	sb, ok := elem.Data.(*SegmentBuffer)
	if !ok || sb == nil {
		p.pool.ReturnElement(elem)
		return nil, nil, newError(AllocationFailure, "pool", "unexpected pool element type %T", elem.Data)
	}
	return elem, sb.Bytes(), nil
}

func (p *segmentPool) release(elem *rp.Element) {
	if elem == nil {
		return
	}
	elem.Data.(*SegmentBuffer).Reset()
	p.pool.ReturnElement(elem)
}
