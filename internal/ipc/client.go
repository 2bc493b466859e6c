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

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call("Dynq."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// QueueList returns queue items for the filter and sort; empty values use
// the saved view.
func (c *Client) QueueList(filter, sort string) (*QueueListResponse, error) {
	return call[QueueListResponse](c, "QueueList", QueueListRequest{Filter: filter, Sort: sort})
}

// QueueInterrupted returns items flagged by startup recovery.
func (c *Client) QueueInterrupted() (*QueueListResponse, error) {
	return call[QueueListResponse](c, "QueueList", QueueListRequest{InterruptedOnly: true})
}

// QueueDescribe returns details for a single queue item.
func (c *Client) QueueDescribe(id string) (*QueueDescribeResponse, error) {
	return call[QueueDescribeResponse](c, "QueueDescribe", QueueDescribeRequest{ID: id})
}

// QueueAdd enqueues a batch.
func (c *Client) QueueAdd(req QueueAddRequest) (*QueueAddResponse, error) {
	return call[QueueAddResponse](c, "QueueAdd", req)
}

// AutoDispatch turns continuous dispatch on or off.
func (c *Client) AutoDispatch(enabled bool) (*AutoDispatchResponse, error) {
	return call[AutoDispatchResponse](c, "AutoDispatch", AutoDispatchRequest{Enabled: enabled})
}

// QueueStep runs a single item.
func (c *Client) QueueStep(id string) (*QueueStepResponse, error) {
	return call[QueueStepResponse](c, "QueueStep", QueueStepRequest{ID: id})
}

// QueuePriority adjusts an item's priority.
func (c *Client) QueuePriority(req QueuePriorityRequest) (*QueuePriorityResponse, error) {
	return call[QueuePriorityResponse](c, "QueuePriority", req)
}

// QueueTogglePause pauses or resumes an item.
func (c *Client) QueueTogglePause(id string) (*QueueTogglePauseResponse, error) {
	return call[QueueTogglePauseResponse](c, "QueueTogglePause", QueueTogglePauseRequest{ID: id})
}

// QueueRetry retries failed items.
func (c *Client) QueueRetry(ids []string) (*QueueRetryResponse, error) {
	return call[QueueRetryResponse](c, "QueueRetry", QueueRetryRequest{IDs: ids})
}

// QueueRemove deletes specific items.
func (c *Client) QueueRemove(ids []string) (*QueueRemoveResponse, error) {
	return call[QueueRemoveResponse](c, "QueueRemove", QueueRemoveRequest{IDs: ids})
}

// QueueClear removes all items from the queue.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	return call[QueueClearResponse](c, "QueueClear", QueueClearRequest{})
}

// QueueAcknowledge clears interruption flags.
func (c *Client) QueueAcknowledge(ids []string) (*QueueAcknowledgeResponse, error) {
	return call[QueueAcknowledgeResponse](c, "QueueAcknowledge", QueueAcknowledgeRequest{IDs: ids})
}

// QueueSettings reads or updates operator settings.
func (c *Client) QueueSettings(req QueueSettingsRequest) (*QueueSettingsResponse, error) {
	return call[QueueSettingsResponse](c, "QueueSettings", req)
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	return call[QueueHealthResponse](c, "QueueHealth", QueueHealthRequest{})
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}
