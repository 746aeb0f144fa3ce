// Package protocol implements the wire format spoken between the chat
// server and its clients: message kinds, the frame codec, and the
// handshake tokens.
package protocol

import "time"

// Kind identifies the type of a Message on the wire.
type Kind string

const (
	KindHello           Kind = "hello"
	KindWelcome         Kind = "welcome"
	KindVersionMismatch Kind = "version_mismatch"
	KindChat            Kind = "chat"
	KindDM              Kind = "dm"
	KindDMAck           Kind = "dm_ack"
	KindJoin            Kind = "join"
	KindLeave           Kind = "leave"
	KindRename          Kind = "rename"
	KindListReq         Kind = "list_req"
	KindListResp        Kind = "list_resp"
	KindStatus          Kind = "status"
	KindFileOffer       Kind = "file_offer"
	KindFileAccept      Kind = "file_accept"
	KindFileReject      Kind = "file_reject"
	KindFileChunk       Kind = "file_chunk"
	KindFileEnd         Kind = "file_end"
	KindError           Kind = "error"
	KindKick            Kind = "kick"
)

// ProtocolVersion is the exact string a Hello must present to be accepted.
const ProtocolVersion = "chat/1"

// ErrorCode enumerates the taxonomy a server Error message may carry.
type ErrorCode string

const (
	ErrCapacityExceeded ErrorCode = "capacity_exceeded"
	ErrVersionMismatch  ErrorCode = "version_mismatch"
	ErrNameUnavailable  ErrorCode = "name_unavailable"
	ErrBanned           ErrorCode = "banned"
	ErrBadFrame         ErrorCode = "bad_frame"
	ErrMessageTooLarge  ErrorCode = "message_too_large"
	ErrRateLimited      ErrorCode = "rate_limited"
	ErrNoSuchUser       ErrorCode = "no_such_user"
	ErrBackpressure     ErrorCode = "backpressure"
	ErrTransferTimeout  ErrorCode = "transfer_timeout"
	ErrTransferAborted  ErrorCode = "transfer_aborted"
	ErrSizeOverrun      ErrorCode = "size_overrun"
)

// Message is the single envelope type carried inside every Frame. Only the
// fields relevant to Kind are populated; the rest are left at zero value and
// omitted from the wire encoding via the msgpack omitempty tag.
type Message struct {
	Kind Kind `msgpack:"k"`

	// Hello / Welcome
	Username string `msgpack:"u,omitempty"`
	Version  string `msgpack:"v,omitempty"`

	// Welcome
	AssignedName string `msgpack:"assigned,omitempty"`

	// Chat / DM
	From string `msgpack:"from,omitempty"`
	To   string `msgpack:"to,omitempty"`
	Body string `msgpack:"body,omitempty"`

	// DMAck
	Delivered bool `msgpack:"delivered,omitempty"`

	// Join / Leave / Rename / Kick
	OldName string `msgpack:"old,omitempty"`
	NewName string `msgpack:"new,omitempty"`
	Reason  string `msgpack:"reason,omitempty"`

	// ListResp
	Users []string `msgpack:"users,omitempty"`

	// Status
	Text string `msgpack:"text,omitempty"`

	// File transfer
	FileID   string `msgpack:"file_id,omitempty"`
	FileName string `msgpack:"file_name,omitempty"`
	FileSize int64  `msgpack:"file_size,omitempty"`
	Seq      uint32 `msgpack:"seq,omitempty"`
	Chunk    []byte `msgpack:"chunk,omitempty"`
	Final    bool   `msgpack:"final,omitempty"`

	// Error
	Code ErrorCode `msgpack:"code,omitempty"`

	// receivedAt is a server-local stamp, never put on the wire.
	receivedAt time.Time `msgpack:"-"`
}

// ReceivedAt returns the time the server accepted this message off the wire.
func (m Message) ReceivedAt() time.Time { return m.receivedAt }

// WithReceivedAt returns a copy of m stamped with t.
func (m Message) WithReceivedAt(t time.Time) Message {
	m.receivedAt = t
	return m
}

// Hello builds a Kind: Hello message.
func Hello(username, version string) Message {
	return Message{Kind: KindHello, Username: username, Version: version}
}

// Welcome builds a Kind: Welcome message.
func Welcome(assignedName string) Message {
	return Message{Kind: KindWelcome, AssignedName: assignedName}
}

// VersionMismatch builds a Kind: VersionMismatch message.
func VersionMismatch(serverVersion string) Message {
	return Message{Kind: KindVersionMismatch, Version: serverVersion}
}

// Chat builds a Kind: Chat message.
func Chat(from, body string) Message {
	return Message{Kind: KindChat, From: from, Body: body}
}

// DM builds a Kind: DM message.
func DM(from, to, body string) Message {
	return Message{Kind: KindDM, From: from, To: to, Body: body}
}

// DMAck builds a Kind: DMAck message.
func DMAck(to string, delivered bool) Message {
	return Message{Kind: KindDMAck, To: to, Delivered: delivered}
}

// Join builds a Kind: Join message.
func Join(username string) Message {
	return Message{Kind: KindJoin, Username: username}
}

// Leave builds a Kind: Leave message.
func Leave(username, reason string) Message {
	return Message{Kind: KindLeave, Username: username, Reason: reason}
}

// Rename builds a Kind: Rename message.
func Rename(oldName, newName string) Message {
	return Message{Kind: KindRename, OldName: oldName, NewName: newName}
}

// ListReq builds a Kind: ListReq message.
func ListReq() Message {
	return Message{Kind: KindListReq}
}

// ListResp builds a Kind: ListResp message.
func ListResp(users []string) Message {
	return Message{Kind: KindListResp, Users: users}
}

// Status builds a Kind: Status message.
func Status(username, text string) Message {
	return Message{Kind: KindStatus, Username: username, Text: text}
}

// FileOffer builds a Kind: FileOffer message.
func FileOffer(from, to, fileID, fileName string, size int64) Message {
	return Message{Kind: KindFileOffer, From: from, To: to, FileID: fileID, FileName: fileName, FileSize: size}
}

// FileAccept builds a Kind: FileAccept message.
func FileAccept(fileID string) Message {
	return Message{Kind: KindFileAccept, FileID: fileID}
}

// FileReject builds a Kind: FileReject message.
func FileReject(fileID, reason string) Message {
	return Message{Kind: KindFileReject, FileID: fileID, Reason: reason}
}

// FileChunk builds a Kind: FileChunk message.
func FileChunk(fileID string, seq uint32, chunk []byte) Message {
	return Message{Kind: KindFileChunk, FileID: fileID, Seq: seq, Chunk: chunk}
}

// FileEnd builds a Kind: FileEnd message.
func FileEnd(fileID string, final bool) Message {
	return Message{Kind: KindFileEnd, FileID: fileID, Final: final}
}

// Error builds a Kind: Error message.
func Error(code ErrorCode, detail string) Message {
	return Message{Kind: KindError, Code: code, Body: detail}
}

// Kick builds a Kind: Kick message.
func Kick(username, reason string) Message {
	return Message{Kind: KindKick, Username: username, Reason: reason}
}
