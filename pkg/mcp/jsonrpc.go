package mcp

import (
	"encoding/json"
	"fmt"
)

// idCounter produces a per-client monotonically increasing request id
// starting at 1. A plain counter, not atomic: higher layers serialize
// sends against a single transport, so concurrent increments are not
// a concern (see the concurrency model this client assumes).
type idCounter struct {
	next int
}

func (c *idCounter) Next() interface{} {
	c.next++
	return c.next
}

// newRequest builds a JSON-RPC request envelope.
func newRequest(id interface{}, method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRpc: "2.0", ID: id, Method: method, Params: raw}, nil
}

// newNotification builds a one-way JSON-RPC request carrying no id.
func newNotification(method string, params interface{}) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRpc: "2.0", Method: method, Params: raw}, nil
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}

// parseResult decodes a response's result member into target.
func parseResult(msg *Message, target interface{}) error {
	if len(msg.Result) == 0 {
		return nil
	}
	return json.Unmarshal(msg.Result, target)
}
