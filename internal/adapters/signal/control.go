package signal

import "github.com/dkeye/voicecall/internal/core"

// errorReply is the relay's answer to a frame it refused. For names the
// rejected signaling type when there is one.
type errorReply struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	For   string `json:"for,omitempty"`
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, code string) {
	ctl.sendJSON(c, errorReply{Type: typeError, Error: code})
}

func (ctl *SignalWSController) sendRefusal(c core.SignalConnection, code, frameType string) {
	ctl.sendJSON(c, errorReply{Type: typeError, Error: code, For: frameType})
}

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{Type: typePong})
}
