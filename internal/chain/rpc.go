package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/net/websocket"
)

// rpcTransport is a minimal JSON-RPC 2.0 client over a websocket
// connection, grounded on the teacher's golang.org/x/net dependency's
// websocket package (the teacher's go.mod carries golang.org/x/net but no
// kept teacher file exercised it). It speaks the same request/response/
// subscription-notification shape a substrate node's RPC server speaks,
// matching the wire protocol the original Rust client (runtime::
// PolkaBtcProvider, built on subxt) talks to the parachain over.
type rpcTransport struct {
	ws *websocket.Conn

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan rpcResponse
	subs    map[string]*rpcSubState
	closed  bool
	closeCh chan struct{}
}

type rpcSubState struct {
	data  chan json.RawMessage
	errCh chan error
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// rpcResponse doubles as both a call response (ID set, Params absent) and a
// subscription push (ID absent, Params set) since both arrive on the same
// connection and substrate multiplexes them the same way.
type rpcResponse struct {
	ID     uint64           `json:"id"`
	Result json.RawMessage  `json:"result"`
	Error  *rpcError        `json:"error"`
	Method string           `json:"method"`
	Params *rpcNotifyParams `json:"params"`
}

type rpcNotifyParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("chain rpc: %s (code %d)", e.Message, e.Code) }

// errTransportClosed is returned to any in-flight call once the underlying
// connection drops; every live subscription's Err() channel also receives
// it so the owning task can treat the subscription as dead (spec.md §7).
var errTransportClosed = requestError("chain: rpc transport closed")

func dialRPCTransport(url string) (*rpcTransport, error) {
	ws, err := websocket.Dial(url, "", "http://localhost")
	if err != nil {
		return nil, err
	}
	t := &rpcTransport{
		ws:      ws,
		pending: make(map[uint64]chan rpcResponse),
		subs:    make(map[string]*rpcSubState),
		closeCh: make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *rpcTransport) readLoop() {
	for {
		var resp rpcResponse
		if err := websocket.JSON.Receive(t.ws, &resp); err != nil {
			t.shutdown()
			return
		}
		if resp.Params != nil {
			t.mu.Lock()
			sub, ok := t.subs[resp.Params.Subscription]
			t.mu.Unlock()
			if ok {
				select {
				case sub.data <- resp.Params.Result:
				default:
				}
			}
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()
		if ok {
			ch <- resp
			close(ch)
		}
	}
}

func (t *rpcTransport) shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for _, ch := range t.pending {
		close(ch)
	}
	t.pending = map[uint64]chan rpcResponse{}
	subs := t.subs
	t.subs = map[string]*rpcSubState{}
	t.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.errCh <- errTransportClosed:
		default:
		}
		close(sub.errCh)
	}
	close(t.closeCh)
}

func (t *rpcTransport) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTransportClosed
	}
	id := t.nextID
	t.nextID++
	respCh := make(chan rpcResponse, 1)
	t.pending[id] = respCh
	t.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := websocket.JSON.Send(t.ws, req); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closeCh:
		return errTransportClosed
	case resp, ok := <-respCh:
		if !ok {
			return errTransportClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(resp.Result, out)
	}
}

// subscribe issues a subscribe-style call expecting a subscription id back,
// then registers a channel that readLoop feeds with every push carrying
// that id.
func (t *rpcTransport) subscribe(ctx context.Context, method string, params interface{}) (subID string, sub *rpcSubState, err error) {
	if err := t.call(ctx, method, params, &subID); err != nil {
		return "", nil, err
	}
	sub = &rpcSubState{data: make(chan json.RawMessage, 64), errCh: make(chan error, 1)}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return "", nil, errTransportClosed
	}
	t.subs[subID] = sub
	t.mu.Unlock()
	return subID, sub, nil
}

func (t *rpcTransport) unsubscribe(unsubscribeMethod, subID string) {
	t.mu.Lock()
	delete(t.subs, subID)
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	_ = t.call(context.Background(), unsubscribeMethod, []interface{}{subID}, nil)
}

func (t *rpcTransport) close() error {
	return t.ws.Close()
}
