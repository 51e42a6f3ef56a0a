package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
)

type frame struct {
	Event     string         `json:"event"`
	SessionID string         `json:"session_id"`
	Payload   map[string]any `json:"payload"`
}

var (
	gray   = color.New(color.FgHiBlack)
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func printFrame(data []byte) {
	fmt.Println(formatFrame(data))
}

// formatFrame renders one event as a single line. Unknown or malformed
// frames are printed verbatim.
func formatFrame(data []byte) string {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
		return gray.Sprint(string(data))
	}

	switch f.Event {
	case "connected":
		return green.Sprintf("● connected to %s", f.SessionID)
	case "run_started":
		return green.Sprintf("▶ run %v started", f.Payload["run_id"])
	case "message_created":
		return gray.Sprintf("  message %v saved", f.Payload["message_id"])
	case "agent_turn":
		return cyan.Sprintf("%v (%v): ", f.Payload["agent"], f.Payload["role"]) + fmt.Sprint(f.Payload["content"])
	case "run_completed":
		return green.Sprintf("■ run %v completed", f.Payload["run_id"])
	case "run_error":
		return red.Sprintf("✖ run %v failed: %v", f.Payload["run_id"], f.Payload["error"])
	default:
		return yellow.Sprintf("%s %s", f.Event, fields(f.Payload))
	}
}

func fields(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return strings.Join(parts, " ")
}
