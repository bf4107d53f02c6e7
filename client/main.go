package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/osetrov/messenger/pkg/model"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}

	return loginResp.Token, nil
}

func printEvent(ev model.Event) {
	switch ev.Type {
	case model.EventMessageReceived:
		if ev.Message != nil {
			fmt.Printf("\r[%s] %s: %s (id %d)\n> ", ev.Message.ChatID, ev.Message.SenderID, ev.Message.Content, ev.Message.ID)
		}
	case model.EventMessageEdited:
		fmt.Printf("\r[%s] message %d edited: %s\n> ", ev.ChatID, ev.MessageID, ev.Content)
	case model.EventMessageDeleted:
		fmt.Printf("\r[%s] message %d deleted\n> ", ev.ChatID, ev.MessageID)
	case model.EventTyping:
		fmt.Printf("\r%s is typing...      \n> ", ev.UserID)
	case model.EventUserStatus:
		state := "offline"
		if ev.IsOnline {
			state = "online"
		}
		fmt.Printf("\r* %s is now %s\n> ", ev.UserID, state)
	case model.EventOnline:
		fmt.Printf("\r* %s online: %v\n> ", ev.UserID, ev.IsOnline)
	case model.EventError:
		fmt.Printf("\r! %s failed: %s\n> ", ev.Op, ev.Reason)
	case model.EventInfo:
		fmt.Printf("\r* %s\n> ", ev.Text)
	default:
		fmt.Printf("\r? %+v\n> ", ev)
	}
}

// parseLine turns a console line into a hub command. Plain text becomes a
// send to the current chat; slash commands cover the rest of the protocol.
func parseLine(text, chatID string) (*model.Command, error) {
	if !strings.HasPrefix(text, "/") {
		return &model.Command{Type: model.CmdSendMessage, ChatID: chatID, Content: text}, nil
	}

	fields := strings.SplitN(text, " ", 3)
	switch fields[0] {
	case "/typing":
		return &model.Command{Type: model.CmdTyping, ChatID: chatID}, nil
	case "/join":
		if len(fields) < 2 {
			return nil, fmt.Errorf("usage: /join <chat-id>")
		}
		return &model.Command{Type: model.CmdJoinChat, ChatID: fields[1]}, nil
	case "/leave":
		return &model.Command{Type: model.CmdLeaveChat, ChatID: chatID}, nil
	case "/edit":
		if len(fields) < 3 {
			return nil, fmt.Errorf("usage: /edit <message-id> <new content>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad message id %q", fields[1])
		}
		return &model.Command{Type: model.CmdEditMessage, ChatID: chatID, MessageID: id, Content: fields[2]}, nil
	case "/delete":
		if len(fields) < 2 {
			return nil, fmt.Errorf("usage: /delete <message-id>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad message id %q", fields[1])
		}
		return &model.Command{Type: model.CmdDeleteMessage, ChatID: chatID, MessageID: id}, nil
	case "/online":
		if len(fields) < 2 {
			return nil, fmt.Errorf("usage: /online <user-id>")
		}
		return &model.Command{Type: model.CmdIsOnline, UserID: fields[1]}, nil
	default:
		return nil, fmt.Errorf("unknown command %s", fields[0])
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "hub service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	chatID := flag.String("chat", "general", "chat id to join on connect")
	flag.Parse()

	// 1. Login to get token
	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}
	log.Printf("Login successful. Token: %s...", token[:10])

	// 2. Connect to WebSocket with token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	// 3. Join the initial chat
	if err := c.WriteJSON(model.Command{Type: model.CmdJoinChat, ChatID: *chatID}); err != nil {
		log.Fatal("join:", err)
	}

	done := make(chan struct{})

	// 4. Start goroutine to read events
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}

			var ev model.Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				log.Printf("Received raw: %s", raw)
				continue
			}
			printEvent(ev)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	quit := make(chan struct{})

	// 5. Read from stdin and send commands
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				fmt.Print("> ")
				continue
			}

			if text == "/quit" {
				close(quit)
				break
			}

			cmd, err := parseLine(text, *chatID)
			if err != nil {
				fmt.Printf("%v\n> ", err)
				continue
			}
			if cmd.Type == model.CmdJoinChat {
				*chatID = cmd.ChatID
			}

			if err := c.WriteJSON(cmd); err != nil {
				log.Println("write:", err)
				break
			}
			fmt.Print("> ")
		}
	}()

	select {
	case <-done:
		return
	case <-interrupt:
		log.Println("interrupt")
	case <-quit:
	}

	// Cleanly close the connection by sending a close message and then
	// waiting (with timeout) for the server to close the connection.
	err = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Println("write close:", err)
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
