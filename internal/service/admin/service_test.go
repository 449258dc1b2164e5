package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/roomchat-server/internal/store"
	"github.com/vovakirdan/roomchat-server/internal/store/sqlite"
)

type staticOccupancy map[string]int

func (s staticOccupancy) Occupancy() map[string]int { return s }

func TestAdmin_RequiresPassword(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	svc := New("root-pass", st, st, nil)
	ctx := context.Background()

	if _, err := svc.Rooms(ctx, "nope"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Activity(ctx, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	disabled := New("", st, st, nil)
	if _, err := disabled.Rooms(ctx, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("empty admin password must disable access, got %v", err)
	}
}

func TestAdmin_RoomsAndActivity(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	for _, id := range []string{"dev", "lobby"} {
		if _, err := st.CreateRoom(ctx, id, "hash"); err != nil {
			t.Fatalf("create room: %v", err)
		}
	}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range 2 {
		rec := &store.Activity{UserEmail: "a@x.com", RoomID: "lobby", JoinTime: base.Add(time.Duration(i) * time.Minute), Action: store.ActivityJoin}
		if err := st.AppendActivity(ctx, rec); err != nil {
			t.Fatalf("append activity: %v", err)
		}
	}

	svc := New("root-pass", st, st, staticOccupancy{"lobby": 2})

	views, err := svc.Rooms(ctx, "root-pass")
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(views))
	}
	online := map[string]int{}
	for _, v := range views {
		online[v.Room.RoomID] = v.Online
	}
	if online["lobby"] != 2 || online["dev"] != 0 {
		t.Fatalf("unexpected online counts %v", online)
	}

	records, err := svc.Activity(ctx, "root-pass")
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(records) != 2 || !records[0].JoinTime.After(records[1].JoinTime) {
		t.Fatalf("expected newest first, got %+v", records)
	}
}
