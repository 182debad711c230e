// Package command parses inbound operator requests and dispatches them
// to state transitions and board mutations. It never crashes on
// malformed input or an unknown verb: every request gets a reply.
package command

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"groundctl/board"
	"groundctl/hotfire"
	"groundctl/hwconfig"
	"groundctl/statemachine"
)

// Request is the inbound envelope: {command, data}. data's shape depends
// on command and is left as raw JSON until the matching handler decodes
// it.
type Request struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is the outbound envelope every request gets, success or not.
type Response struct {
	Command  string `json:"command"`
	Response any    `json:"response"`
}

// Router dispatches Requests against a state machine. hwConfigPath feeds
// "reload hardware json"; hwConfig is the last config it loaded, served
// back by "get hardware json".
type Router struct {
	machine      *statemachine.Machine
	hwConfigPath string

	hwConfig board.HardwareConfig
}

// New constructs a Router. initialConfig is the HardwareConfig the boards
// were originally built from, served by "get hardware json" until the
// first successful reload.
func New(machine *statemachine.Machine, hwConfigPath string, initialConfig board.HardwareConfig) *Router {
	return &Router{machine: machine, hwConfigPath: hwConfigPath, hwConfig: initialConfig}
}

// Handle parses raw as a Request and returns the marshaled Response. A
// decode failure yields a Response rather than an error, since the
// operator channel expects a reply to every datagram it sends.
func (r *Router) Handle(raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Error().Err(err).Str("data", string(raw)).Msg("command: malformed request")
		return mustMarshal(Response{Command: "", Response: "malformed request: " + err.Error()})
	}
	resp := r.dispatch(req)
	return mustMarshal(resp)
}

func (r *Router) dispatch(req Request) Response {
	switch req.Command {
	case "get state":
		return r.getState(req)
	case "get time":
		return r.getTime(req)
	case "get boards states":
		return r.getBoardsStates(req)
	case "get boards desired states":
		return r.getBoardsDesiredStates(req)
	case "get hardware json":
		return r.getHardwareJSON(req)
	case "reload hardware json":
		return r.reloadHardwareJSON(req)
	case "update desired state":
		return r.updateDesiredState(req)
	case "start hotfire sequence":
		return r.transition(req, statemachine.NewHotfireState())
	case "abort engine":
		return r.transition(req, statemachine.NewEngineAbortState())
	case "fts":
		return r.transition(req, statemachine.NewFTSState())
	case "return to idle":
		return r.transition(req, statemachine.NewIdleState())
	case "get hotfire sequence":
		return r.getHotfireSequence(req)
	case "set hotfire sequence":
		return r.setHotfireSequence(req)
	default:
		return Response{Command: req.Command, Response: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (r *Router) transition(req Request, target statemachine.State) Response {
	if err := r.machine.TransitionTo(target); err != nil {
		return Response{Command: req.Command, Response: err.Error()}
	}
	return Response{Command: req.Command, Response: "ok"}
}

func (r *Router) getState(req Request) Response {
	return Response{Command: req.Command, Response: string(r.machine.CurrentName())}
}

func (r *Router) getTime(req Request) Response {
	out := map[string]any{
		"time_since_statechange": r.machine.TimeSinceStatechange().Seconds(),
	}
	if r.machine.CurrentName() == statemachine.Hotfire {
		tsc := r.machine.TimeSinceStatechange().Seconds()
		out["t_time"] = r.machine.HotfireController().GetT(tsc)
	}
	return Response{Command: req.Command, Response: out}
}

func (r *Router) getBoardsStates(req Request) Response {
	out := map[string]board.State{}
	for _, b := range r.machine.Boards().All() {
		out[b.Name] = b.State()
	}
	return Response{Command: req.Command, Response: out}
}

func (r *Router) getBoardsDesiredStates(req Request) Response {
	out := map[string]board.State{}
	for _, b := range r.machine.Boards().All() {
		if b.Config.IsActuator {
			out[b.Name] = b.DesiredState()
		}
	}
	return Response{Command: req.Command, Response: out}
}

func (r *Router) getHardwareJSON(req Request) Response {
	return Response{Command: req.Command, Response: r.hwConfig}
}

func (r *Router) reloadHardwareJSON(req Request) Response {
	cfg, err := hwconfig.Load(r.hwConfigPath)
	if err != nil {
		log.Error().Err(err).Str("path", r.hwConfigPath).Msg("command: hardware reload failed")
		return Response{Command: req.Command, Response: "reload failed: " + err.Error()}
	}
	set, err := board.BuildAll(cfg)
	if err != nil {
		log.Error().Err(err).Msg("command: rebuilding boards from reloaded config failed")
		return Response{Command: req.Command, Response: "reload failed: " + err.Error()}
	}
	r.machine.ReplaceBoards(set)
	r.hwConfig = cfg
	return Response{Command: req.Command, Response: "ok"}
}

// updateDesiredStateRequest is the data payload for "update desired
// state": the target board's name and a raw merge frame in the same
// shape board.UpdateDesiredState accepts.
type updateDesiredStateRequest struct {
	Board string         `json:"board"`
	State board.RawState `json:"state"`
}

func (r *Router) updateDesiredState(req Request) Response {
	if r.machine.CurrentName() == statemachine.Hotfire {
		return Response{Command: req.Command, Response: "rejected: desired state is locked during hotfire"}
	}
	var payload updateDesiredStateRequest
	if err := json.Unmarshal(req.Data, &payload); err != nil {
		return Response{Command: req.Command, Response: "malformed data: " + err.Error()}
	}
	b := r.machine.Boards().Get(payload.Board)
	if b == nil {
		return Response{Command: req.Command, Response: fmt.Sprintf("unknown board %q", payload.Board)}
	}
	if err := b.UpdateDesiredState(payload.State); err != nil {
		return Response{Command: req.Command, Response: "update failed: " + err.Error()}
	}
	return Response{Command: req.Command, Response: "ok"}
}

func (r *Router) getHotfireSequence(req Request) Response {
	raw, err := r.machine.HotfireController().Sequence().ExportJSON()
	if err != nil {
		return Response{Command: req.Command, Response: "export failed: " + err.Error()}
	}
	return Response{Command: req.Command, Response: json.RawMessage(raw)}
}

func (r *Router) setHotfireSequence(req Request) Response {
	if r.machine.CurrentName() == statemachine.Hotfire {
		return Response{Command: req.Command, Response: "rejected: hotfire sequence is locked during hotfire"}
	}
	seq, err := hotfire.ParseJSON(req.Data)
	if err != nil {
		return Response{Command: req.Command, Response: "malformed sequence: " + err.Error()}
	}
	r.machine.HotfireController().SetSequence(seq)
	return Response{Command: req.Command, Response: "ok"}
}

func mustMarshal(resp Response) []byte {
	raw, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("command: failed to marshal response")
		return []byte(`{"command":"","response":"internal error marshaling response"}`)
	}
	return raw
}
