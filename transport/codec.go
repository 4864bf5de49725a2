package transport

import (
	"encoding/json"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Content types understood by the built-in codecs.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgPack = "application/msgpack"
)

// Codec encodes request, response and reply values.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string                { return ContentTypeJSON }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) ContentType() string                { return ContentTypeMsgPack }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

var (
	// JSON is the default codec.
	JSON Codec = jsonCodec{}
	// MsgPack is a compact binary codec.
	MsgPack Codec = msgpackCodec{}
)

// CodecFor returns the codec registered for a content type. Media type
// parameters such as charset are ignored.
func CodecFor(contentType string) (Codec, bool) { //nolint:ireturn
	mediaType, _, _ := strings.Cut(contentType, ";")

	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case ContentTypeJSON:
		return JSON, true
	case ContentTypeMsgPack:
		return MsgPack, true
	default:
		return nil, false
	}
}
