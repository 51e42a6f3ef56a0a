// Command chorus-watch follows a session's collaboration events live.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080", "chorus server base URL")
	session := flag.String("session", "", "session id to follow")
	raw := flag.Bool("raw", false, "print frames as received")
	flag.Parse()

	if err := run(*addr, *session, *raw); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "chorus-watch: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, session string, raw bool) error {
	if session == "" {
		return errors.New("-session is required")
	}

	target, err := chatURL(addr, session)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readFrames(conn, frames, readErr, done)

	for {
		select {
		case <-interrupt:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case data := <-frames:
			if raw {
				fmt.Println(string(data))
				continue
			}
			printFrame(data)
		case err = <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

type frameReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// readFrames forwards frames until a read fails or done is closed.
func readFrames(conn frameReader, frames chan<- []byte, readErr chan<- error, done <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- data:
		case <-done:
			return
		}
	}
}

// chatURL builds the session's WebSocket URL, accepting http(s) bases too.
func chatURL(addr, session string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/chat/" + url.PathEscape(session)
	return u.String(), nil
}
