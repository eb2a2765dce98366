// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package command

import (
	"strings"

	"github.com/samber/oops"
)

// Prefix starts every admin command.
const Prefix = "/bot-"

// ParsedCommand is one chat line split into command and arguments.
type ParsedCommand struct {
	// Verb is the command without Prefix and client suffix, e.g. "enable".
	Verb string
	// Target is the client id suffix of targeted commands, e.g. the "a1b2"
	// of "/bot-enable-a1b2". Empty for untargeted commands.
	Target string
	// Args is the rest of the line with internal whitespace preserved.
	Args string
	Raw  string
}

// targetedVerbs are the commands addressed to one bot instance by client id.
var targetedVerbs = []string{"enable", "disable", "reload"}

// Parse splits a chat line into a command. Lines that do not start with
// Prefix are rejected with code NOT_A_COMMAND.
func Parse(input string) (*ParsedCommand, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, Prefix) {
		return nil, oops.Code("NOT_A_COMMAND").Errorf("not a bot command")
	}

	head, args := trimmed, ""
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		head = trimmed[:idx]
		args = strings.TrimLeft(trimmed[idx+1:], " \t")
	}
	name := strings.TrimPrefix(head, Prefix)

	cmd := &ParsedCommand{Verb: name, Args: args, Raw: input}
	for _, verb := range targetedVerbs {
		if target, ok := strings.CutPrefix(name, verb+"-"); ok {
			cmd.Verb = verb
			cmd.Target = target
			break
		}
	}
	return cmd, nil
}
