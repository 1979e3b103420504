package dvalue

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/isuhao/minisphere/pkg/protoerr"
)

// Decode reads a single Value from r. It blocks on r until a full
// value (or the EOM marker) has arrived. Decode returns
// *protoerr.MalformedWire for an unknown tag byte, a truncated
// payload, or an out-of-range pointer width; any other read failure
// is wrapped in *protoerr.IoError.
//
// A decoded EOM is returned as Value{Tag: TagEOM}; callers that group
// Values into messages (see pkg/wire) treat it as the terminator
// rather than a datum.
func Decode(r io.Reader) (Value, error) {
	var tagBuf [1]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		if err == io.EOF {
			// Clean closure at a message boundary: propagate as-is so
			// callers (pkg/wire) can tell a graceful disconnect apart
			// from a truncated value.
			return Value{}, io.EOF
		}
		return Value{}, ioErr("read tag byte", err)
	}
	ib := tagBuf[0]

	switch {
	case ib == byte(TagEOM):
		return Value{Tag: TagEOM}, nil
	case ib == byte(TagReqClass), ib == byte(TagRepClass), ib == byte(TagErrClass), ib == byte(TagNfyClass):
		return Value{Tag: Tag(ib)}, nil
	case ib == byte(TagInt):
		n, err := readInt32(r)
		if err != nil {
			return Value{}, err
		}
		return Int32(n), nil
	case ib == byte(TagString):
		s, err := readLengthPrefixed(r, 4)
		if err != nil {
			return Value{}, err
		}
		return String(string(s)), nil
	case ib == byte(tagString16):
		s, err := readLengthPrefixed(r, 2)
		if err != nil {
			return Value{}, err
		}
		return String(string(s)), nil
	case ib == byte(TagBuf):
		b, err := readLengthPrefixed(r, 4)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: TagBuf, Buf: b}, nil
	case ib == byte(tagBuf16):
		b, err := readLengthPrefixed(r, 2)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: TagBuf, Buf: b}, nil
	case ib == byte(TagUnused):
		return Unused(), nil
	case ib == byte(TagUndef):
		return Undef(), nil
	case ib == byte(TagNull):
		return Null(), nil
	case ib == byte(TagTrue):
		return True(), nil
	case ib == byte(TagFalse):
		return False(), nil
	case ib == byte(TagFloat):
		f, err := readFloat64(r)
		if err != nil {
			return Value{}, err
		}
		return Float64(f), nil
	case ib == byte(TagObj):
		classByte, err := readByte(r, "read OBJ class byte")
		if err != nil {
			return Value{}, err
		}
		p, err := readPtr(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: TagObj, ClassByte: classByte, Ptr: p}, nil
	case ib == byte(TagPtr):
		p, err := readPtr(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: TagPtr, Ptr: p}, nil
	case ib == byte(TagLightFunc):
		var flagBytes [2]byte
		if _, err := io.ReadFull(r, flagBytes[:]); err != nil {
			return Value{}, ioErr("read LIGHTFUNC flags", err)
		}
		p, err := readPtr(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: TagLightFunc, LightFuncFlags: binary.BigEndian.Uint16(flagBytes[:]), Ptr: p}, nil
	case ib == byte(TagHeapPtr):
		p, err := readPtr(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: TagHeapPtr, Ptr: p}, nil
	case ib >= shortStringMin && ib <= shortStringMax:
		n := int(ib - shortStringMin)
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Value{}, ioErr("read short string", err)
		}
		return String(string(buf)), nil
	case ib >= smallIntMin && ib <= smallIntMax:
		return Int32(int32(ib - smallIntMin)), nil
	case ib >= mediumIntMin: // mediumIntMax == 0xFF covers the rest of the byte range
		b, err := readByte(r, "read medium int low byte")
		if err != nil {
			return Value{}, err
		}
		return Int32(int32(ib-mediumIntMin)<<8 + int32(b)), nil
	default:
		return Value{}, &protoerr.MalformedWire{Offender: ib}
	}
}

// Encode writes v to w in its canonical long form; no short-form
// encoding is ever emitted (targets accept long forms for interop).
// A write failure is returned as *protoerr.IoError; a Value that cannot
// be encoded (an unknown tag, or a pointer width other than 4 or 8) is
// rejected with *protoerr.MalformedWire.
func Encode(v Value, w io.Writer) error {
	if err := writeByte(w, byte(v.Tag)); err != nil {
		return err
	}
	switch v.Tag {
	case TagEOM, TagReqClass, TagRepClass, TagErrClass, TagNfyClass,
		TagUnused, TagUndef, TagNull, TagTrue, TagFalse:
		return nil
	case TagInt:
		return writeInt32(w, v.Int)
	case TagString:
		return writeLengthPrefixed(w, []byte(v.Str))
	case TagBuf:
		return writeLengthPrefixed(w, v.Buf)
	case TagFloat:
		return writeFloat64(w, v.Float)
	case TagObj:
		if err := writeByte(w, v.ClassByte); err != nil {
			return err
		}
		return writePtr(w, v.Ptr)
	case TagPtr, TagHeapPtr:
		return writePtr(w, v.Ptr)
	case TagLightFunc:
		flagBytes := make([]byte, 2)
		binary.BigEndian.PutUint16(flagBytes, v.LightFuncFlags)
		if _, err := w.Write(flagBytes); err != nil {
			return ioErr("write LIGHTFUNC flags", err)
		}
		return writePtr(w, v.Ptr)
	default:
		return &protoerr.MalformedWire{Offender: byte(v.Tag), Reason: "encode of unknown tag"}
	}
}

func readByte(r io.Reader, op string) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ioErr(op, err)
	}
	return b[0], nil
}

func writeByte(w io.Writer, b byte) error {
	if _, err := w.Write([]byte{b}); err != nil {
		return ioErr("write tag byte", err)
	}
	return nil
}

func readInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, ioErr("read int", err)
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func writeInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	if _, err := w.Write(buf[:]); err != nil {
		return ioErr("write int", err)
	}
	return nil
}

// readLengthPrefixed reads a lenBytes-wide big-endian length followed
// by that many raw bytes. lenBytes is 2 for the *16 short forms, 4
// otherwise.
func readLengthPrefixed(r io.Reader, lenBytes int) ([]byte, error) {
	lenBuf := make([]byte, lenBytes)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, ioErr("read length prefix", err)
	}
	var n uint64
	for _, b := range lenBuf {
		n = n<<8 | uint64(b)
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, ioErr("read payload", err)
		}
	}
	return buf, nil
}

func writeLengthPrefixed(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return ioErr("write length prefix", err)
	}
	if len(data) > 0 {
		if _, err := w.Write(data); err != nil {
			return ioErr("write payload", err)
		}
	}
	return nil
}

// readFloat64 reads 8 bytes that are big-endian on the wire,
// regardless of host endianness, and reconstructs the IEEE-754 value
// via math.Float64frombits rather than a host-endian reinterpret cast
// (spec §9 Open Question (b)).
func readFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, ioErr("read float", err)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
}

func writeFloat64(w io.Writer, v float64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	if _, err := w.Write(buf[:]); err != nil {
		return ioErr("write float", err)
	}
	return nil
}

// readPtr reads a 1-byte width followed by that many bytes,
// reconstructing the address by reversing wire byte order into host
// order (spec §4.1: "wire big-endian -> host little-endian on read").
// Widths other than 4 and 8 are rejected per spec §9 Open Question (a)
// instead of sizing a read off an unchecked attacker-controlled byte.
func readPtr(r io.Reader) (Ptr, error) {
	width, err := readByte(r, "read pointer width")
	if err != nil {
		return Ptr{}, err
	}
	if width != 4 && width != 8 {
		return Ptr{}, &protoerr.MalformedWire{Offender: width, Reason: "pointer width must be 4 or 8"}
	}
	raw := make([]byte, width)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Ptr{}, ioErr("read pointer bytes", err)
	}
	var addr uint64
	for _, b := range raw { // wire is big-endian; fold into addr most-significant-first
		addr = addr<<8 | uint64(b)
	}
	return Ptr{Width: width, Addr: addr}, nil
}

// writePtr lays the address out as the reverse of the wire's
// big-endian byte sequence is laid out: i.e. it emits big-endian
// bytes for the declared width, the symmetric inverse of readPtr.
func writePtr(w io.Writer, p Ptr) error {
	if p.Width != 4 && p.Width != 8 {
		return &protoerr.MalformedWire{Offender: p.Width, Reason: "pointer width must be 4 or 8"}
	}
	if _, err := w.Write([]byte{p.Width}); err != nil {
		return ioErr("write pointer width", err)
	}
	raw := make([]byte, p.Width)
	addr := p.Addr
	for i := int(p.Width) - 1; i >= 0; i-- {
		raw[i] = byte(addr & 0xFF)
		addr >>= 8
	}
	if _, err := w.Write(raw); err != nil {
		return ioErr("write pointer bytes", err)
	}
	return nil
}

func ioErr(op string, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &protoerr.MalformedWire{Reason: "truncated payload during " + op}
	}
	return &protoerr.IoError{Op: op, Err: err}
}
