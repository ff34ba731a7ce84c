package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys.
const (
	AttrClientAddr = "client.address"
	AttrProtocol   = "protocol.name"
	AttrConnID     = "conn.id"

	AttrHandleID = "proactor.handle_id"
	AttrDataLen  = "proactor.data_len"

	AttrMethod     = "file.method"
	AttrPath       = "file.path"
	AttrStatus     = "file.status"
	AttrBytes      = "file.bytes"
	AttrEncoding   = "file.encoding"
	AttrChatClient = "chat.client"
)

// Span names.
const (
	SpanCallback      = "proactor.callback"
	SpanFileRequest   = "file.request"
	SpanChatSession   = "chat.session"
	SpanChatBroadcast = "chat.broadcast"
)

func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

func Protocol(name string) attribute.KeyValue {
	return attribute.String(AttrProtocol, name)
}

func ConnID(id string) attribute.KeyValue {
	return attribute.String(AttrConnID, id)
}

func HandleID(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrHandleID, int64(id))
}

func Method(m string) attribute.KeyValue {
	return attribute.String(AttrMethod, m)
}

func Path(p string) attribute.KeyValue {
	return attribute.String(AttrPath, p)
}

func Status(s string) attribute.KeyValue {
	return attribute.String(AttrStatus, s)
}

func Bytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, n)
}

func Encoding(e string) attribute.KeyValue {
	return attribute.String(AttrEncoding, e)
}

func ChatClient(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrChatClient, int64(id))
}
