package transport

import (
	"encoding/json"

	"groundctl/board"
)

// injectSendID marshals frame and adds a send_id field, the wire contract
// every outbound frame carries.
func injectSendID(frame any, sendID int64) ([]byte, error) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	idRaw, err := json.Marshal(sendID)
	if err != nil {
		return nil, err
	}
	obj["send_id"] = idRaw
	return json.Marshal(obj)
}

// decodeRawState strips the envelope fields (send_id, timestamp) from an
// inbound frame and interprets the remainder as a board.RawState. Hw-type
// entries that don't decode as an item map are skipped rather than failing
// the whole frame, matching the reader task's tolerant decode contract.
func decodeRawState(raw []byte) (board.RawState, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}
	delete(top, "send_id")
	delete(top, "timestamp")

	rs := board.RawState{}
	for hwType, byItemRaw := range top {
		var byItem map[string]json.RawMessage
		if err := json.Unmarshal(byItemRaw, &byItem); err != nil {
			continue
		}
		rs[board.HardwareType(hwType)] = byItem
	}
	return rs, nil
}
