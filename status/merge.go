/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package status

import (
	"strings"

	"github.com/tejzpr/pbx-gateway-go/extensions"
	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
	"github.com/tejzpr/pbx-gateway-go/queues"
)

// CallType is the appliance's call class.
type CallType string

const (
	CallInbound  CallType = "Inbound"
	CallOutbound CallType = "Outbound"
	CallInternal CallType = "Internal"
)

// callTypes is the fixed merge order of the three call-class queries.
var callTypes = [...]CallType{CallInbound, CallOutbound, CallInternal}

func (t CallType) queryValue() string {
	return strings.ToLower(string(t))
}

// Status is the state of an extension or a queue agent.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRinging     Status = "ringing"
	StatusBusy        Status = "busy"
	StatusUnavailable Status = "unavailable"
)

// CallStatus is the state of a call, or the call-side view of an extension.
type CallStatus string

const (
	CallIdle    CallStatus = "idle"
	CallRinging CallStatus = "ringing"
	CallTalking CallStatus = "talking"
	CallHold    CallStatus = "hold"
)

// ExtensionStatus is the live state of one extension.
type ExtensionStatus struct {
	ExtID      string
	ExtNumber  string
	Status     Status
	CallStatus CallStatus
}

// AgentStatus is one queue member.
type AgentStatus struct {
	ID     string
	Number string
	Name   string
	Status Status
	Paused bool
}

// QueueStatus is the live state of one queue.
type QueueStatus struct {
	QueueID      string
	QueueName    string
	WaitingCount int

	// ActiveCount is the number of active plus ringing calls.
	ActiveCount int
	Agents      []AgentStatus
}

// ActiveCall is one live call.
type ActiveCall struct {
	// ID is the appliance call id, or a composite of call type, channel (or
	// caller) and callee. A composite id is only stable within one poll.
	ID        string
	ChannelID string
	From      string
	To        string
	Status    CallStatus
	CallType  CallType
}

// leg is one participant's view of a call.
type leg struct {
	direction string // "extension", "inbound", "outbound" or "" when untagged
	number    string
	from      string
	to        string
	channel   string
	rawStatus string
}

var legDirections = [...]string{"extension", "inbound", "outbound"}

// legsOf flattens the members of a call. A member is either tagged
// ({"inbound": {...}}) or a bare leg object. A call without members is read as
// a single untagged leg.
func legsOf(call pbxsdk.Record) []leg {
	members := pbxsdk.Records(call.List(pbxsdk.FieldCallMembers))
	if len(members) == 0 {
		return []leg{newLeg("", call)}
	}

	legs := make([]leg, 0, len(members))
	for _, m := range members {
		tagged := false
		for _, dir := range legDirections {
			if sub, ok := pbxsdk.AsRecord(m[dir]); ok {
				legs = append(legs, newLeg(dir, sub))
				tagged = true
			}
		}
		if !tagged {
			legs = append(legs, newLeg("", m))
		}
	}
	return legs
}

func newLeg(direction string, r pbxsdk.Record) leg {
	return leg{
		direction: direction,
		number:    r.Str(pbxsdk.FieldLegNumber),
		from:      r.Str(pbxsdk.FieldLegFrom),
		to:        r.Str(pbxsdk.FieldLegTo),
		channel:   r.Str(pbxsdk.FieldLegChannel),
		rawStatus: strings.ToUpper(r.Str(pbxsdk.FieldLegStatus)),
	}
}

// extensionSignal reads a leg status as an extension state: ringing for
// ring/alert, busy for answer/talk/hold, "" otherwise.
func extensionSignal(raw string) Status {
	switch {
	case strings.Contains(raw, "RING"), strings.Contains(raw, "ALERT"):
		return StatusRinging
	case strings.Contains(raw, "ANSWER"), strings.Contains(raw, "TALK"), strings.Contains(raw, "HOLD"):
		return StatusBusy
	}
	return ""
}

// callSignal priorities; higher wins.
const (
	signalNone    = 0
	signalTalking = 1
	signalRinging = 2
	signalHold    = 3
)

func callSignal(raw string) int {
	switch {
	case strings.Contains(raw, "HOLD"):
		return signalHold
	case strings.Contains(raw, "RING"), strings.Contains(raw, "ALERT"):
		return signalRinging
	case strings.Contains(raw, "ANSWER"), strings.Contains(raw, "TALK"):
		return signalTalking
	}
	return signalNone
}

// MergeExtensionSignals folds every leg of every call into a map keyed by
// extension number. busy is never downgraded to ringing, so the result does
// not depend on the order of calls or legs.
func MergeExtensionSignals(calls ...[]pbxsdk.Record) map[string]Status {
	signals := make(map[string]Status)
	for _, class := range calls {
		for _, call := range class {
			for _, l := range legsOf(call) {
				if l.number == "" {
					continue
				}
				s := extensionSignal(l.rawStatus)
				if s == "" || signals[l.number] == StatusBusy {
					continue
				}
				signals[l.number] = s
			}
		}
	}
	return signals
}

// ResolveExtension combines presence and call signals for one extension.
// An extension with no device reporting online code 1 is unavailable.
func ResolveExtension(ext extensions.Extension, signals map[string]Status) ExtensionStatus {
	st := ExtensionStatus{ExtID: ext.ID, ExtNumber: ext.Number, Status: StatusIdle}
	switch {
	case !ext.IsOnline():
		st.Status = StatusUnavailable
	case signals[ext.Number] != "":
		st.Status = signals[ext.Number]
	}

	switch st.Status {
	case StatusBusy:
		st.CallStatus = CallTalking
	case StatusRinging:
		st.CallStatus = CallRinging
	default:
		st.CallStatus = CallIdle
	}
	return st
}

// BuildActiveCall reduces one appliance call to an ActiveCall.
func BuildActiveCall(callType CallType, call pbxsdk.Record) ActiveCall {
	legs := legsOf(call)
	ac := ActiveCall{CallType: callType}

	var rep *leg
	for i := range legs {
		if legs[i].direction == "inbound" || legs[i].direction == "outbound" {
			rep = &legs[i]
			break
		}
	}
	if rep == nil {
		for i := range legs {
			if legs[i].from != "" || legs[i].to != "" {
				rep = &legs[i]
				break
			}
		}
	}
	if rep != nil {
		ac.From, ac.To = rep.from, rep.to
	} else {
		// extension-to-extension legs only carry their own number
		if len(legs) > 0 {
			ac.From = legs[0].number
		}
		if len(legs) > 1 {
			ac.To = legs[1].number
		}
	}

	best := signalNone
	for _, l := range legs {
		if ac.ChannelID == "" && l.channel != "" {
			ac.ChannelID = l.channel
		}
		if s := callSignal(l.rawStatus); s > best {
			best = s
		}
	}
	switch best {
	case signalHold:
		ac.Status = CallHold
	case signalRinging:
		ac.Status = CallRinging
	default:
		ac.Status = CallTalking
	}

	ac.ID = call.Str(pbxsdk.FieldCallID)
	if ac.ID == "" {
		key := ac.ChannelID
		if key == "" {
			key = ac.From
		}
		ac.ID = string(callType) + "-" + key + "-" + ac.To
	}
	return ac
}

// AgentStatusFromCode maps the appliance agent call-status code. Firmwares that
// report a word instead of a code are matched by name.
func AgentStatusFromCode(raw any) Status {
	if raw == nil {
		return StatusUnavailable
	}
	if code, err := pbxsdk.ToInt(raw); err == nil {
		switch code {
		case 1:
			return StatusIdle
		case 2, 4, 5:
			return StatusBusy
		case 3:
			return StatusRinging
		default:
			return StatusUnavailable
		}
	}
	if s, ok := raw.(string); ok {
		switch Status(strings.ToLower(strings.TrimSpace(s))) {
		case StatusIdle:
			return StatusIdle
		case StatusBusy:
			return StatusBusy
		case StatusRinging:
			return StatusRinging
		}
	}
	return StatusUnavailable
}

// NormalizeAgent maps one appliance agent object onto AgentStatus.
func NormalizeAgent(r pbxsdk.Record) AgentStatus {
	raw, _ := r.Lookup(pbxsdk.FieldAgentCallStatus)
	return AgentStatus{
		ID:     r.Str(pbxsdk.FieldAgentID),
		Number: r.Str(pbxsdk.FieldAgentNumber),
		Name:   r.Str(pbxsdk.FieldAgentName),
		Status: AgentStatusFromCode(raw),
		Paused: r.Bool(pbxsdk.FieldAgentPaused),
	}
}

// BuildQueueStatus merges the call-count and agent sub-query results of one
// queue. Either may be nil when its query was unsupported.
func BuildQueueStatus(q queues.Queue, calls pbxsdk.Record, agents []pbxsdk.Record) QueueStatus {
	qs := QueueStatus{
		QueueID:   q.ID,
		QueueName: q.Name,
		Agents:    make([]AgentStatus, 0, len(agents)),
	}
	if calls != nil {
		qs.WaitingCount, _ = calls.Count(pbxsdk.FieldQueueWaiting)
		active, _ := calls.Count(pbxsdk.FieldQueueActive)
		ringing, _ := calls.Count(pbxsdk.FieldQueueRinging)
		qs.ActiveCount = active + ringing
	}
	for _, a := range agents {
		qs.Agents = append(qs.Agents, NormalizeAgent(a))
	}
	return qs
}
