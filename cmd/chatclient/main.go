// Chat Client - terminal client for the conversation gateway.
// Lines typed on stdin are sent as text messages; lines starting with "/"
// are commands (/connect, /disconnect, /interrupt, /mute, /unmute, /quit).
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"realtime-commerce-assistant/internal/eventbus"
	apihttp "realtime-commerce-assistant/internal/http"
	"realtime-commerce-assistant/internal/service/conversation"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

func main() {
	server := flag.String("server", "localhost:8080", "Gateway host:port")
	session := flag.String("session", "", "Resume a stored conversation by id")
	lang := flag.String("lang", "", "Preferred language tag, e.g. es-ES")
	autoConnect := flag.Bool("connect", true, "Connect the realtime session on start")
	flag.Parse()

	q := url.Values{}
	if *session != "" {
		q.Set("session", *session)
	}
	if *lang != "" {
		q.Set("lang", *lang)
	}
	u := url.URL{Scheme: "ws", Host: *server, Path: "/v1/ws", RawQuery: q.Encode()}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatal().Err(err).Str("url", u.String()).Msg("Failed to connect to gateway")
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		printFrames(conn)
	}()

	if *autoConnect {
		send(conn, apihttp.ClientFrame{Type: apihttp.FrameConnect})
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		f, quit := parseLine(line)
		if quit {
			break
		}
		send(conn, f)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func parseLine(line string) (apihttp.ClientFrame, bool) {
	if !strings.HasPrefix(line, "/") {
		return apihttp.ClientFrame{Type: apihttp.FrameSend, Text: line}, false
	}
	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	switch cmd {
	case "quit", "exit":
		return apihttp.ClientFrame{}, true
	case "mute":
		return apihttp.ClientFrame{Type: apihttp.FrameMute, Muted: true}, false
	case "unmute":
		return apihttp.ClientFrame{Type: apihttp.FrameMute, Muted: false}, false
	case "click":
		return apihttp.ClientFrame{Type: apihttp.FrameInteraction, Action: "click", Target: arg}, false
	default:
		return apihttp.ClientFrame{Type: cmd}, false
	}
}

func send(conn *websocket.Conn, f apihttp.ClientFrame) {
	if err := conn.WriteJSON(f); err != nil {
		logger.Error().Err(err).Str("type", f.Type).Msg("Failed to send frame")
	}
}

func printFrames(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("Gateway connection closed")
			}
			return
		}
		var f apihttp.ServerFrame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.Warn().Err(err).Msg("Unreadable frame")
			continue
		}
		printFrame(f)
	}
}

func printFrame(f apihttp.ServerFrame) {
	switch f.Type {
	case apihttp.FrameReady:
		fmt.Printf("-- session %s\n", f.SessionID)
	case apihttp.FrameHistory:
		for _, m := range f.Messages {
			fmt.Printf("   [%s] %s\n", m.Author, m.Content)
		}
	case apihttp.FrameStatus:
		fmt.Printf("-- %s %s\n", f.Status.State, f.Status.Detail)
	case apihttp.FrameError:
		fmt.Printf("!! %s: %s\n", f.Error.Code, f.Error.Message)
	case apihttp.FrameBus:
		if f.Event.Type != eventbus.UIUpdate {
			payload, _ := json.Marshal(f.Event.Payload)
			fmt.Printf("** %s %s\n", f.Event.Type, payload)
		}
	case apihttp.FrameTimeline:
		u := f.Update
		switch {
		case u.Type == conversation.UpdateLive:
			fmt.Printf("\r.. %s", u.Message.Content)
		case u.Message.Final:
			if len(u.Message.Products) > 0 {
				for _, p := range u.Message.Products {
					fmt.Printf("   * %s %s (%.2f)\n", p.SKU, p.Name, p.DiscountedPrice())
				}
			}
			if u.Message.Content != "" {
				fmt.Printf("[%s] %s\n", u.Message.Author, u.Message.Content)
			}
		}
	}
}
