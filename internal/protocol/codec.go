package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
)

// OversizeError is returned by Encode when the caller asked for a
// packet larger than maxBytes. This is treated as a programmer error
// per the error-handling design: the caller must chunk oversized
// payloads before calling Encode, never rely on Encode to truncate.
type OversizeError struct {
	Size int
	Max  int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("protocol: encoded packet of %d bytes exceeds max %d bytes", e.Size, e.Max)
}

// Encode serializes hdr and payload into a single wire-format buffer,
// computing the CRC-32 checksum over the header (with the checksum
// field zeroed) concatenated with the payload. It fails if the result
// would exceed maxBytes.
func Encode(hdr Header, payload []byte, maxBytes int) ([]byte, error) {
	hdr.PayloadLen = uint16(len(payload))
	hdr.Checksum = 0

	buf := make([]byte, HeaderSize+len(payload))
	writeHeader(buf, hdr)
	copy(buf[HeaderSize:], payload)

	if maxBytes > 0 && len(buf) > maxBytes {
		return nil, &OversizeError{Size: len(buf), Max: maxBytes}
	}

	crc := crc32.ChecksumIEEE(buf)
	binary.BigEndian.PutUint32(buf[24:28], crc)
	return buf, nil
}

// EncodeJSON is a convenience wrapper that marshals v to JSON before
// calling Encode.
func EncodeJSON(msgType MessageType, snapshotID, seq uint32, serverTimeMS uint64, v interface{}, maxBytes int) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	hdr := Header{
		Type:         msgType,
		SnapshotID:   snapshotID,
		Seq:          seq,
		ServerTimeMS: serverTimeMS,
	}
	return Encode(hdr, payload, maxBytes)
}

func writeHeader(buf []byte, hdr Header) {
	copy(buf[0:4], ProtocolID[:])
	buf[4] = Version
	buf[5] = byte(hdr.Type)
	binary.BigEndian.PutUint32(buf[6:10], hdr.SnapshotID)
	binary.BigEndian.PutUint32(buf[10:14], hdr.Seq)
	binary.BigEndian.PutUint64(buf[14:22], hdr.ServerTimeMS)
	binary.BigEndian.PutUint16(buf[22:24], hdr.PayloadLen)
	binary.BigEndian.PutUint32(buf[24:28], hdr.Checksum)
}

// Decode applies the six validation checks in order and returns ok=false
// on the first failure. A failed decode is never an error value: per
// the error-handling design, malformed or stray datagrams are silently
// dropped, not logged at error level.
func Decode(buf []byte) (hdr Header, payload []byte, ok bool) {
	if len(buf) < HeaderSize {
		return Header{}, nil, false
	}
	var protoID [4]byte
	copy(protoID[:], buf[0:4])
	if protoID != ProtocolID {
		return Header{}, nil, false
	}
	version := buf[4]
	if version != Version {
		return Header{}, nil, false
	}

	h := Header{
		Type:         MessageType(buf[5]),
		SnapshotID:   binary.BigEndian.Uint32(buf[6:10]),
		Seq:          binary.BigEndian.Uint32(buf[10:14]),
		ServerTimeMS: binary.BigEndian.Uint64(buf[14:22]),
		PayloadLen:   binary.BigEndian.Uint16(buf[22:24]),
		Checksum:     binary.BigEndian.Uint32(buf[24:28]),
	}

	if len(buf) < HeaderSize+int(h.PayloadLen) {
		return Header{}, nil, false
	}

	body := buf[HeaderSize : HeaderSize+int(h.PayloadLen)]

	check := make([]byte, HeaderSize+len(body))
	copy(check, buf[:HeaderSize])
	check[24], check[25], check[26], check[27] = 0, 0, 0, 0
	copy(check[HeaderSize:], body)
	if crc32.ChecksumIEEE(check) != h.Checksum {
		return Header{}, nil, false
	}

	if !json.Valid(body) {
		return Header{}, nil, false
	}

	return h, body, true
}

// DecodeJSON decodes the wire framing and then unmarshals the payload
// into v. Callers should still treat decode failures as silent drops;
// this helper exists for the common "decode then unmarshal a known
// message type" path.
func DecodeJSON(buf []byte, v interface{}) (hdr Header, ok bool) {
	hdr, payload, ok := Decode(buf)
	if !ok {
		return Header{}, false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return Header{}, false
	}
	return hdr, true
}
