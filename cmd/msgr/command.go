package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/msgr/internal/messenger"
	"github.com/matheus3301/msgr/internal/sdk"
)

var errNoConversation = errors.New("no open conversation: use /open <contact>")

type command struct {
	intents []messenger.Intent
	current string // conversation typed text goes to
	quit    bool
}

// parseLine turns one input line into intents. Lines not starting with a
// slash are sent as text to the current conversation.
func parseLine(line, current string) (command, error) {
	cmd := command{current: current}
	line = strings.TrimSpace(line)
	if line == "" {
		return cmd, nil
	}
	if !strings.HasPrefix(line, "/") {
		if current == "" {
			return cmd, errNoConversation
		}
		cmd.intents = []messenger.Intent{
			messenger.Keystroke{Conversation: current},
			messenger.Submit{Conversation: current, Text: line},
		}
		return cmd, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit":
		cmd.quit = true
		return cmd, nil
	case "signout":
		cmd.intents = []messenger.Intent{messenger.SignOut{}}
		return cmd, nil
	case "cancel":
		cmd.intents = []messenger.Intent{messenger.CancelSignIn{}}
		return cmd, nil
	case "open":
		if arg == "" {
			return cmd, errors.New("usage: /open <contact>")
		}
		if current != "" && current != arg {
			cmd.intents = append(cmd.intents, messenger.Blur{Conversation: current})
		}
		cmd.current = arg
		cmd.intents = append(cmd.intents, messenger.OpenConversation{Contact: arg}, messenger.Focus{Conversation: arg})
		return cmd, nil
	case "remove":
		if arg == "" {
			return cmd, errors.New("usage: /remove <contact>")
		}
		cmd.intents = []messenger.Intent{messenger.RemoveContact{Contact: arg}}
		return cmd, nil
	}

	if current == "" {
		return cmd, errNoConversation
	}
	switch name {
	case "nudge":
		cmd.intents = []messenger.Intent{messenger.SendNudge{Conversation: current}}
	case "bold":
		cmd.intents = []messenger.Intent{messenger.ToggleFormat{Conversation: current, Style: sdk.Bold}}
	case "italic":
		cmd.intents = []messenger.Intent{messenger.ToggleFormat{Conversation: current, Style: sdk.Italic}}
	case "underline":
		cmd.intents = []messenger.Intent{messenger.ToggleFormat{Conversation: current, Style: sdk.Underline}}
	case "strike":
		cmd.intents = []messenger.Intent{messenger.ToggleFormat{Conversation: current, Style: sdk.Strikethrough}}
	case "color":
		c, err := parseColor(arg)
		if err != nil {
			return cmd, err
		}
		cmd.intents = []messenger.Intent{messenger.SetColor{Conversation: current, Color: c}}
	case "focus":
		cmd.intents = []messenger.Intent{messenger.Focus{Conversation: current}}
	case "blur":
		cmd.intents = []messenger.Intent{messenger.Blur{Conversation: current}}
	case "close":
		cmd.intents = []messenger.Intent{messenger.CloseConversation{Conversation: current}}
		cmd.current = ""
	default:
		return cmd, fmt.Errorf("unknown command: /%s", name)
	}
	return cmd, nil
}

// parseColor reads an rrggbb hex color, with or without a leading '#'.
func parseColor(s string) (sdk.Color, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || len(raw) != 3 {
		return sdk.Color{}, fmt.Errorf("invalid color %q: want rrggbb", s)
	}
	return sdk.Color{R: raw[0], G: raw[1], B: raw[2]}, nil
}
