package rpcserver

// Serial mirrors the Serial variant of a connection configuration on
// the wire.
type Serial struct {
	Port string `json:"port"`
	Baud uint32 `json:"baud"`
}

// Ssh mirrors the Ssh variant of a connection configuration on the
// wire.
type Ssh struct {
	Host     string `json:"host"`
	Port     uint32 `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// CreateRequest is the wire message for CreateRemoteConnection. Exactly
// one of Serial or Ssh should be set, unless Profile names a stored
// configuration, in which case both are ignored.
type CreateRequest struct {
	Serial  *Serial `json:"serial,omitempty"`
	Ssh     *Ssh    `json:"ssh,omitempty"`
	Profile string  `json:"profile,omitempty"`
}

// ConnectionId is the wire message identifying one connection.
type ConnectionId struct {
	Id string `json:"id"`
}

// WriteRequest is the wire message for Write.
type WriteRequest struct {
	Id   string `json:"id"`
	Data []byte `json:"data"`
}

// ByteChunk is one inbound chunk streamed back by Read.
type ByteChunk struct {
	Data []byte `json:"data"`
}

// Empty is the wire message for operations with no meaningful result.
type Empty struct{}
