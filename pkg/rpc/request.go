package rpc

import (
	"bytes"
	"encoding/json"

	uerrors "github.com/vango-dev/uidl/internal/errors"
)

// Keys of the inbound message object.
const (
	CSRFTokenKey        = "csrfToken"
	SyncIDKey           = "v-sid"
	ResynchronizeKey    = "v-resync"
	WidgetsetVersionKey = "v-wsver"
	ClientIDKey         = "v-cid"
	InvocationsKey      = "rpc"
)

// DefaultCSRFToken is assumed when a message carries no token.
const DefaultCSRFToken = "init"

// NoClientID marks messages that carry no client-to-server id. Such
// messages skip the ordering check.
const NoClientID = -1

// Request is a parsed client-to-server message.
type Request struct {
	CSRFToken string

	// SyncID is the last sync id the client had seen, -1 when sync id
	// checking is disabled or the client did not send one.
	SyncID int

	Resynchronize    bool
	WidgetsetVersion string

	// ClientID is the client-to-server message id, NoClientID if absent.
	ClientID int

	// Invocations holds the raw rpc array.
	Invocations json.RawMessage
}

type wireRequest struct {
	CSRFToken        *string         `json:"csrfToken"`
	SyncID           *int            `json:"v-sid"`
	Resynchronize    *bool           `json:"v-resync"`
	WidgetsetVersion *string         `json:"v-wsver"`
	ClientID         *int            `json:"v-cid"`
	Invocations      json.RawMessage `json:"rpc"`
}

// ParseRequest decodes a message body. syncIDCheck mirrors the deployment
// setting; with it disabled the reported sync id is ignored.
func ParseRequest(data []byte, syncIDCheck bool) (*Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, uerrors.New("U010").Wrap(err)
	}

	req := &Request{
		CSRFToken:   DefaultCSRFToken,
		SyncID:      -1,
		ClientID:    NoClientID,
		Invocations: w.Invocations,
	}
	if w.CSRFToken != nil && *w.CSRFToken != "" {
		req.CSRFToken = *w.CSRFToken
	}
	if syncIDCheck && w.SyncID != nil {
		req.SyncID = *w.SyncID
	}
	if w.Resynchronize != nil {
		req.Resynchronize = *w.Resynchronize
	}
	if w.WidgetsetVersion != nil {
		req.WidgetsetVersion = *w.WidgetsetVersion
	}
	if w.ClientID != nil {
		req.ClientID = *w.ClientID
	}
	if len(bytes.TrimSpace(req.Invocations)) == 0 || bytes.Equal(bytes.TrimSpace(req.Invocations), []byte("null")) {
		req.Invocations = json.RawMessage("[]")
	}
	return req, nil
}
