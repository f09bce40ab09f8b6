package types

// MessageType names a request sent from the coordinator to a page adapter.
type MessageType string

const (
	MsgPing             MessageType = "PING"
	MsgUploadScreenshot MessageType = "UPLOAD_SCREENSHOT"
	MsgSendText         MessageType = "SEND_TEXT"
)

// Response statuses returned by a page adapter.
const (
	StatusReady      = "ready"
	StatusQueued     = "queued"
	StatusTextQueued = "text queued"
)

// Message is one request to the adapter living in a target tab.
type Message struct {
	Type     MessageType
	Payload  Payload
	Settings *Settings
	Reason   string
}

// Response is the adapter's answer to a Message.
type Response struct {
	Status string `json:"status"`
}
