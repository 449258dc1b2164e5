package http

import (
	"context"
	stdhttp "net/http"
	"testing"
	"time"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

func TestAdminRequiresPassword(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/admin/rooms", "/api/admin/activity"} {
		body := map[string]string{"adminPassword": "wrong"}
		if code := env.do(t, stdhttp.MethodPost, path, "", body, nil); code != stdhttp.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, code)
		}
	}
}

func TestAdminListsRoomsAndActivity(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.store.CreateRoom(ctx, "lobby", "hash"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	msg := &store.Message{ID: "m1", Kind: store.MessageKindText, Text: "hi", Sender: "a@x.com", Timestamp: time.Now()}
	if err := env.store.AppendMessage(ctx, "lobby", msg); err != nil {
		t.Fatalf("append message: %v", err)
	}
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	for _, rec := range []*store.Activity{
		{ID: "r1", UserEmail: "a@x.com", RoomID: "lobby", JoinTime: older, Action: store.ActivityJoin},
		{ID: "r2", UserEmail: "b@y.com", RoomID: "lobby", JoinTime: newer, Action: store.ActivityJoin},
	} {
		if err := env.store.AppendActivity(ctx, rec); err != nil {
			t.Fatalf("append activity: %v", err)
		}
	}

	body := map[string]string{"adminPassword": testAdminPassword}

	var rooms []AdminRoomResponse
	if code := env.do(t, stdhttp.MethodPost, "/api/admin/rooms", "", body, &rooms); code != stdhttp.StatusOK {
		t.Fatalf("rooms: expected 200, got %d", code)
	}
	if len(rooms) != 1 || rooms[0].RoomID != "lobby" || len(rooms[0].Messages) != 1 {
		t.Fatalf("unexpected rooms response %+v", rooms)
	}
	if rooms[0].Messages[0].Text != "hi" || rooms[0].Online != 0 {
		t.Fatalf("unexpected room view %+v", rooms[0])
	}

	var activity []ActivityResponse
	if code := env.do(t, stdhttp.MethodPost, "/api/admin/activity", "", body, &activity); code != stdhttp.StatusOK {
		t.Fatalf("activity: expected 200, got %d", code)
	}
	if len(activity) != 2 || activity[0].ID != "r2" || activity[1].ID != "r1" {
		t.Fatalf("expected newest join first, got %+v", activity)
	}
}
