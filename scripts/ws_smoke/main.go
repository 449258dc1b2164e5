package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomchat-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	email := flag.String("email", "smoke@example.com", "account email (registered if missing)")
	password := flag.String("password", "smoke-secret", "account password")
	room := flag.String("room", "general", "room id")
	roomPassword := flag.String("room-password", "general", "room password")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	creds := map[string]string{"email": *email, "password": *password}
	token, err := authenticate(ctx, *base, creds)
	if err != nil {
		return err
	}

	roomBody := map[string]string{"roomId": *room, "password": *roomPassword}
	if status, err := postJSON(ctx, *base+"/api/rooms/create", token, roomBody, nil); err != nil {
		return err
	} else if status != http.StatusCreated && status != http.StatusConflict {
		return fmt.Errorf("create room: unexpected status %d", status)
	}
	if status, err := postJSON(ctx, *base+"/api/rooms/join", token, roomBody, nil); err != nil {
		return err
	} else if status != http.StatusOK {
		return fmt.Errorf("join room: unexpected status %d", status)
	}

	wsURL := "ws" + strings.TrimPrefix(*base, "http") + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeJoin, proto.JoinData{RoomID: *room}); err != nil {
		return err
	}
	if err := send(ctx, conn, proto.InboundTypeMsg, proto.MsgData{RoomID: *room, Type: "text", Text: *text}); err != nil {
		return err
	}

	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", outbound.Type)
		if outbound.Event != "" {
			fmt.Printf(" event=%s", outbound.Event)
		}
		if len(outbound.Data) > 0 {
			fmt.Printf(" data=%s", outbound.Data)
		}
		if outbound.Error != nil {
			fmt.Printf(" error=%s:%s", outbound.Error.Code, outbound.Error.Msg)
		}
		fmt.Println()

		if outbound.Type == proto.OutboundTypeError {
			return fmt.Errorf("server error: %s", outbound.Error.Msg)
		}
		if outbound.Event == proto.EventMessage {
			return nil
		}
	}
}

func authenticate(ctx context.Context, base string, creds map[string]string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	status, err := postJSON(ctx, base+"/api/auth/login", "", creds, &resp)
	if err != nil {
		return "", err
	}
	if status == http.StatusOK {
		return resp.Token, nil
	}

	status, err = postJSON(ctx, base+"/api/auth/register", "", creds, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("register: unexpected status %d", status)
	}
	return resp.Token, nil
}

func postJSON(ctx context.Context, target, token string, body, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", target, err)
		}
	}
	return resp.StatusCode, nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}
