package structure

import (
	"bytes"
	"fmt"

	"github.com/karvela/crampack/internal/cramio"
)

// EncodingDescriptor pairs an encoding scheme with its serialized
// parameters. Descriptors are opaque to the framing layer; the parameter
// layout depends on the scheme.
type EncodingDescriptor struct {
	ID     EncodingID
	Params []byte
}

// ExternalContentID extracts the content id referenced by an external or
// byte-array-stop descriptor, the two schemes that route a series to an
// external block.
func (d EncodingDescriptor) ExternalContentID() (int32, bool) {
	switch d.ID {
	case EncodingExternal:
		id, err := cramio.ReadITF8(bytes.NewReader(d.Params))
		if err != nil {
			return 0, false
		}
		return id, true
	case EncodingByteArrayStop:
		if len(d.Params) < 2 {
			return 0, false
		}
		id, err := cramio.ReadITF8(bytes.NewReader(d.Params[1:]))
		if err != nil {
			return 0, false
		}
		return id, true
	case EncodingByteArrayLen:
		_, values, err := d.splitByteArrayLen()
		if err != nil {
			return 0, false
		}
		return values.ExternalContentID()
	default:
		return 0, false
	}
}

func (d EncodingDescriptor) splitByteArrayLen() (lengths, values EncodingDescriptor, err error) {
	r := bytes.NewReader(d.Params)
	if lengths, err = readDescriptor(r); err != nil {
		return
	}
	values, err = readDescriptor(r)
	return
}

func readDescriptor(r *bytes.Reader) (EncodingDescriptor, error) {
	idValue, err := cramio.ReadITF8(r)
	if err != nil {
		return EncodingDescriptor{}, err
	}
	id, err := EncodingIDFromValue(idValue)
	if err != nil {
		return EncodingDescriptor{}, err
	}
	size, err := cramio.ReadITF8(r)
	if err != nil {
		return EncodingDescriptor{}, err
	}
	if size < 0 {
		return EncodingDescriptor{}, fmt.Errorf("negative encoding parameter size: %d", size)
	}
	params := make([]byte, size)
	if err := cramio.ReadFull(r, params); err != nil {
		return EncodingDescriptor{}, err
	}
	return EncodingDescriptor{ID: id, Params: params}, nil
}

func writeDescriptor(w *bytes.Buffer, d EncodingDescriptor) {
	cramio.WriteITF8(w, int32(d.ID))
	cramio.WriteITF8(w, int32(len(d.Params)))
	w.Write(d.Params)
}

// ExternalDescriptor routes a series to the external block with the given
// content id.
func ExternalDescriptor(contentID int32) EncodingDescriptor {
	var buf bytes.Buffer
	cramio.WriteITF8(&buf, contentID)
	return EncodingDescriptor{ID: EncodingExternal, Params: buf.Bytes()}
}

// ByteArrayStopDescriptor routes a byte-array series to an external block,
// entries terminated by the stop byte.
func ByteArrayStopDescriptor(stop byte, contentID int32) EncodingDescriptor {
	var buf bytes.Buffer
	buf.WriteByte(stop)
	cramio.WriteITF8(&buf, contentID)
	return EncodingDescriptor{ID: EncodingByteArrayStop, Params: buf.Bytes()}
}

// ByteArrayLenDescriptor routes a byte-array series through a pair of nested
// encodings, one for entry lengths and one for entry bytes.
func ByteArrayLenDescriptor(lengths, values EncodingDescriptor) EncodingDescriptor {
	var buf bytes.Buffer
	writeDescriptor(&buf, lengths)
	writeDescriptor(&buf, values)
	return EncodingDescriptor{ID: EncodingByteArrayLen, Params: buf.Bytes()}
}
