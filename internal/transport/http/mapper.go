package http

import (
	"encoding/json"

	"github.com/vovakirdan/roomchat-server/internal/core"
	"github.com/vovakirdan/roomchat-server/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.RoomID == "" {
			return nil, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: join.RoomID}, nil, nil
	case proto.InboundTypeLeave:
		// The room argument is optional: a connection is in at most one room.
		var leave proto.JoinData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &leave); err != nil {
				return nil, nil, err
			}
		}
		return &core.Command{Kind: core.CommandLeaveRoom, Room: leave.RoomID}, nil, nil
	case proto.InboundTypeMsg:
		var msg proto.MsgData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.RoomID == "" {
			return nil, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{
			Kind:    core.CommandSendRoomMessage,
			Room:    msg.RoomID,
			Message: msg.ToMessage(),
		}, nil, nil
	default:
		return nil, &proto.Error{Code: proto.ErrCodeBadRequest, Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent}
	switch event.Kind {
	case core.EventRoomMessage:
		out.Event = proto.EventMessage
		out.Data = proto.NewMessage(event.Room, event.Message)
	case core.EventUserJoined:
		out.Event = proto.EventUserJoined
		out.Data = event.User
	case core.EventUserLeft:
		out.Event = proto.EventUserLeft
		out.Data = event.User
	case core.EventRoomUsersUpdate:
		out.Event = proto.EventRoomUsersUpdate
		out.Data = proto.RoomUsersUpdate{RoomID: event.Room, Count: event.Count}
	case core.EventHistory:
		out.Event = proto.EventMessages
		out.Data = proto.NewMessages(event.Room, event.Messages)
	}
	return out
}
