package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, decodeError(err)
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// Stop requests the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

// OpenThread opens a thread by URL or bare id, replacing any open session.
func (c *Client) OpenThread(url string) (*StateResponse, error) {
	return call[OpenThreadRequest, StateResponse](c, "OpenThread", OpenThreadRequest{URL: url})
}

// CloseThread closes the open session.
func (c *Client) CloseThread() (*CloseThreadResponse, error) {
	return call[CloseThreadRequest, CloseThreadResponse](c, "CloseThread", CloseThreadRequest{})
}

// State returns the open session and its capability state.
func (c *Client) State() (*StateResponse, error) {
	return call[StateRequest, StateResponse](c, "GetCurrentState", StateRequest{})
}

// SetNotification toggles desktop notifications.
func (c *Client) SetNotification(enabled bool) (*StateResponse, error) {
	return call[ToggleRequest, StateResponse](c, "SetNotification", ToggleRequest{Enabled: enabled})
}

// SetSpeech toggles speech relay. An empty start position keeps the session's current choice.
func (c *Client) SetSpeech(req SetSpeechRequest) (*StateResponse, error) {
	return call[SetSpeechRequest, StateResponse](c, "SetSpeech", req)
}

// SetOverlay toggles the comment overlay relay.
func (c *Client) SetOverlay(enabled bool) (*StateResponse, error) {
	return call[ToggleRequest, StateResponse](c, "SetOverlay", ToggleRequest{Enabled: enabled})
}

// SetArchive toggles image archiving.
func (c *Client) SetArchive(enabled bool) (*StateResponse, error) {
	return call[ToggleRequest, StateResponse](c, "SetArchive", ToggleRequest{Enabled: enabled})
}

// SetSpeechOptions changes the start position while speech is off.
func (c *Client) SetSpeechOptions(req SpeechOptionsRequest) (*StateResponse, error) {
	return call[SpeechOptionsRequest, StateResponse](c, "SetSpeechOptions", req)
}

// SetStartReplyNumber changes the start reply number while speech is off.
func (c *Client) SetStartReplyNumber(value int) (*StateResponse, error) {
	return call[StartReplyRequest, StateResponse](c, "SetStartReplyNumber", StartReplyRequest{Value: value})
}

// Speak sends free text to the speech relay.
func (c *Client) Speak(text string) (*Ack, error) {
	return call[TextRequest, Ack](c, "Speak", TextRequest{Text: text})
}

// SendOverlay posts free text to the comment overlay.
func (c *Client) SendOverlay(text string) (*Ack, error) {
	return call[TextRequest, Ack](c, "SendOverlay", TextRequest{Text: text})
}

// DownloadAllImages starts a bulk archive of every attachment in the thread.
func (c *Client) DownloadAllImages() (*Ack, error) {
	return call[DownloadAllRequest, Ack](c, "DownloadAllImages", DownloadAllRequest{})
}

// Events returns signals published after req.Since, waiting up to
// req.WaitMillis for new ones.
func (c *Client) Events(req EventsRequest) (*EventsResponse, error) {
	return call[EventsRequest, EventsResponse](c, "Events", req)
}

// UpdateSettings changes relay settings and persists them.
func (c *Client) UpdateSettings(req UpdateSettingsRequest) (*Ack, error) {
	return call[UpdateSettingsRequest, Ack](c, "UpdateSettings", req)
}

// ReloadConfig rereads the config file.
func (c *Client) ReloadConfig() (*Ack, error) {
	return call[ReloadConfigRequest, Ack](c, "ReloadConfig", ReloadConfigRequest{})
}

// History lists archive ledger entries, newest first.
func (c *Client) History(threadID string, limit int) (*HistoryResponse, error) {
	return call[HistoryRequest, HistoryResponse](c, "History", HistoryRequest{ThreadID: threadID, Limit: limit})
}
