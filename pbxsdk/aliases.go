/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package pbxsdk

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Field is a logical appliance field. Firmware versions have published the same
// field under different names; every known name is listed in the alias table.
type Field string

// Logical fields read by the domain adapters.
const (
	FieldExtID           Field = "ext.id"
	FieldExtNumber       Field = "ext.number"
	FieldExtDisplayName  Field = "ext.display_name"
	FieldExtUsername     Field = "ext.username"
	FieldExtOnlineStatus Field = "ext.online_status"
	FieldExtPresence     Field = "ext.presence"

	FieldQueueID     Field = "queue.id"
	FieldQueueName   Field = "queue.name"
	FieldQueueNumber Field = "queue.number"

	FieldIVRID     Field = "ivr.id"
	FieldIVRName   Field = "ivr.name"
	FieldIVRNumber Field = "ivr.number"

	FieldRouteID                Field = "route.id"
	FieldRouteName              Field = "route.name"
	FieldRouteDIDPatterns       Field = "route.did_patterns"
	FieldRouteDefDest           Field = "route.def_dest"
	FieldRouteDefDestValue      Field = "route.def_dest_value"
	FieldRouteBusinessDest      Field = "route.business_dest"
	FieldRouteBusinessDestValue Field = "route.business_dest_value"
	FieldRouteTimeCondition     Field = "route.time_condition"

	FieldCallID      Field = "call.id"
	FieldCallMembers Field = "call.members"
	FieldLegNumber   Field = "leg.number"
	FieldLegFrom     Field = "leg.from"
	FieldLegTo       Field = "leg.to"
	FieldLegChannel  Field = "leg.channel"
	FieldLegStatus   Field = "leg.status"

	FieldQueueWaiting Field = "queue_status.waiting"
	FieldQueueActive  Field = "queue_status.active"
	FieldQueueRinging Field = "queue_status.ringing"
	FieldQueueAgents  Field = "queue_status.agents"

	FieldAgentID         Field = "agent.id"
	FieldAgentNumber     Field = "agent.number"
	FieldAgentName       Field = "agent.name"
	FieldAgentCallStatus Field = "agent.call_status"
	FieldAgentPaused     Field = "agent.paused"

	FieldCDRFrom        Field = "cdr.from"
	FieldCDRTo          Field = "cdr.to"
	FieldCDRTime        Field = "cdr.time"
	FieldCDRDisposition Field = "cdr.disposition"
	FieldCDRTalk        Field = "cdr.talk_duration"
	FieldCDRType        Field = "cdr.call_type"

	FieldTotal       Field = "total"
	FieldAccessToken Field = "access_token"

	FieldListExtensions  Field = "list.extensions"
	FieldListQueues      Field = "list.queues"
	FieldListIVRs        Field = "list.ivrs"
	FieldListRoutes      Field = "list.inbound_routes"
	FieldListCDR         Field = "list.cdr"
	FieldListCalls       Field = "list.calls"
	FieldObjectRoute     Field = "object.inbound_route"
	FieldObjectQueueCall Field = "object.queue_call_status"
	FieldObjectToken     Field = "object.token"
)

// aliasTable lists every known name of each logical field, canonical name first.
var aliasTable = map[Field][]string{
	FieldExtID:           {"id", "ext_id", "extension_id"},
	FieldExtNumber:       {"number", "ext_num", "extension", "ext_number"},
	FieldExtDisplayName:  {"caller_id_name", "display_name", "name", "ext_name"},
	FieldExtUsername:     {"username", "user_name", "login_name"},
	FieldExtOnlineStatus: {"online_status", "device_status", "presence_map"},
	FieldExtPresence:     {"presence_status", "presence"},

	FieldQueueID:     {"id", "queue_id"},
	FieldQueueName:   {"name", "queue_name"},
	FieldQueueNumber: {"number", "ext_num", "queue_number"},

	FieldIVRID:     {"id", "ivr_id"},
	FieldIVRName:   {"name", "ivr_name"},
	FieldIVRNumber: {"number", "ext_num", "ivr_number"},

	FieldRouteID:                {"id", "route_id"},
	FieldRouteName:              {"name", "route_name"},
	FieldRouteDIDPatterns:       {"did_pattern_list", "did_list", "did"},
	FieldRouteDefDest:           {"def_dest", "default_dest", "def_destination"},
	FieldRouteDefDestValue:      {"def_dest_value", "def_dest_ext", "default_dest_value"},
	FieldRouteBusinessDest:      {"business_hours_dest", "business_dest", "work_time_dest"},
	FieldRouteBusinessDestValue: {"business_hours_dest_value", "business_dest_value", "business_dest_ext"},
	FieldRouteTimeCondition:     {"enb_time_condition", "time_condition", "enable_time_condition"},

	FieldCallID:      {"call_id", "id", "callid"},
	FieldCallMembers: {"members", "member", "legs"},
	FieldLegNumber:   {"number", "ext_num", "extension_number", "extension"},
	FieldLegFrom:     {"from", "call_from", "caller"},
	FieldLegTo:       {"to", "call_to", "callee"},
	FieldLegChannel:  {"channel_id", "channelid", "channel"},
	FieldLegStatus:   {"member_status", "call_status", "status"},

	FieldQueueWaiting: {"waiting_count", "waiting_calls", "wait_count", "waiting_call_list"},
	FieldQueueActive:  {"active_count", "active_calls", "talking_count", "talking_calls"},
	FieldQueueRinging: {"ringing_count", "ringing_calls", "ring_count"},
	FieldQueueAgents:  {"agent_list", "agents", "member_list", "data"},

	FieldAgentID:         {"id", "agent_id"},
	FieldAgentNumber:     {"number", "ext_num", "agent_number", "extension"},
	FieldAgentName:       {"name", "agent_name", "caller_id_name"},
	FieldAgentCallStatus: {"call_status", "agent_status", "status"},
	FieldAgentPaused:     {"paused", "is_paused", "pause"},

	FieldCDRFrom:        {"call_from", "from", "src"},
	FieldCDRTo:          {"call_to", "to", "dst"},
	FieldCDRTime:        {"time", "timestamp", "start_time", "date"},
	FieldCDRDisposition: {"disposition", "status"},
	FieldCDRTalk:        {"talk_duration", "talk_time", "billsec"},
	FieldCDRType:        {"call_type", "type", "communication_type"},

	FieldTotal:       {"total_number", "total", "total_count"},
	FieldAccessToken: {"access_token", "token"},

	FieldListExtensions:  {"data", "extension_list"},
	FieldListQueues:      {"data", "queue_list"},
	FieldListIVRs:        {"data", "ivr_list"},
	FieldListRoutes:      {"data", "inbound_route_list", "route_list"},
	FieldListCDR:         {"data", "cdr_list"},
	FieldListCalls:       {"data", "call_list"},
	FieldObjectRoute:     {"data", "inbound_route"},
	FieldObjectQueueCall: {"data", "queue_status", "call_status"},
	FieldObjectToken:     {"data", "token_info"},
}

// Aliases returns every known name of f, canonical name first.
func Aliases(f Field) []string {
	names := aliasTable[f]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Record is one loosely-shaped appliance object.
type Record map[string]any

// AsRecord converts v to a Record when it is a JSON object.
func AsRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return Record(m), true
	default:
		return nil, false
	}
}

// Records returns the JSON objects in list, skipping anything else.
func Records(list []any) []Record {
	out := make([]Record, 0, len(list))
	for _, v := range list {
		if r, ok := AsRecord(v); ok {
			out = append(out, r)
		}
	}
	return out
}

// Lookup returns the value of the first alias of f that is present. Null and
// empty-string values count as absent.
func (r Record) Lookup(f Field) (any, bool) {
	for _, name := range aliasTable[f] {
		v, ok := r[name]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// Has reports whether any alias of f is present.
func (r Record) Has(f Field) bool {
	_, ok := r.Lookup(f)
	return ok
}

// Str returns f as a string. Numbers are formatted without loss, so 1001 and
// "1001" both read as "1001". Objects and lists read as "".
func (r Record) Str(f Field) string {
	v, ok := r.Lookup(f)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case map[string]any, Record, []any:
		return ""
	case json.Number:
		return t.String()
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Int returns f as an int. ok is false when f is absent or not numeric.
func (r Record) Int(f Field) (int, bool) {
	v, ok := r.Lookup(f)
	if !ok {
		return 0, false
	}
	n, err := ToInt(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bool returns f as a flag. Besides booleans it accepts non-zero numbers and
// the strings "yes", "on", "true" and "1".
func (r Record) Bool(f Field) bool {
	v, ok := r.Lookup(f)
	if !ok {
		return false
	}
	if s, isStr := v.(string); isStr {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "on", "true", "1", "enable", "enabled":
			return true
		}
		return false
	}
	if n, err := ToInt(v); err == nil {
		return n != 0
	}
	return cast.ToBool(v)
}

// List returns f as a list, or nil.
func (r Record) List(f Field) []any {
	v, ok := r.Lookup(f)
	if !ok {
		return nil
	}
	list, _ := v.([]any)
	return list
}

// Map returns f as a Record, or nil.
func (r Record) Map(f Field) Record {
	v, ok := r.Lookup(f)
	if !ok {
		return nil
	}
	m, _ := AsRecord(v)
	return m
}

// Count reads a count that firmwares report either as a number or as a list of
// items. The first present alias wins; a list counts as its length.
func (r Record) Count(f Field) (int, bool) {
	v, ok := r.Lookup(f)
	if !ok {
		return 0, false
	}
	if list, isList := v.([]any); isList {
		return len(list), true
	}
	n, err := ToInt(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

var errNotNumeric = errors.New("value is not numeric")

// ToInt converts a decoded JSON scalar to an int. Booleans are rejected.
func ToInt(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return int(f), nil
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i, nil
		}
	case bool:
		return 0, errNotNumeric
	}
	return cast.ToIntE(v)
}
