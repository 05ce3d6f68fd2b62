package statusstream

import "encoding/json"

// Update is one message from the swap server's status stream (spec.md
// §4.5): a swap's id plus its raw status payload, handed to whichever
// handler (Send/Receive/Chain) owns that swap id. Updates for the same
// swap id arrive in the order the server sent them; updates across
// different swap ids carry no ordering guarantee, matching spec.md §5.
type Update struct {
	SwapID  string
	Status  string
	Payload json.RawMessage
}

type wireMessage struct {
	SwapID  string          `json:"swap_id"`
	Status  string          `json:"status"`
	Payload json.RawMessage `json:"payload"`
}

func decodeUpdate(raw []byte) (*Update, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &Update{SwapID: msg.SwapID, Status: msg.Status, Payload: msg.Payload}, nil
}

type subscribeMessage struct {
	Op     string   `json:"op"`
	SwapID string   `json:"swap_id,omitempty"`
	IDs    []string `json:"swap_ids,omitempty"`
}
