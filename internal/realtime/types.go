package realtime

import "encoding/json"

// command is a client request sent over the stream.
type command struct {
	ID     int64  `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params"`
}

// subscribeParams scope a subscription to one recipient.
type subscribeParams struct {
	Recipient string `json:"recipient"`
}

// streamMessage is any frame received from the stream. Command
// responses carry a non-zero ID and a Type of subscribed/error/ok;
// push frames carry Type "notification" with the envelope in Msg.
type streamMessage struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// errorMsg is the Msg content of an "error" response.
type errorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
