package bot

import (
	"fmt"
	"strings"

	"github.com/samcm/ts-querybot/internal/commands"
)

func (s *service) registerCommands() error {
	return s.engine.AddCommand(commands.Command{
		Name:        "help",
		Description: "Lists the commands you may use.",
		Handler:     s.help,
	})
}

// help answers with every private command the invoker's access level
// allows.
func (s *service) help(inv commands.Invocation) error {
	store := s.engine.Store()

	level, ok := store.AccessLevel(inv.ClientID)
	if !ok {
		level = store.AccessLevels().Default
	}

	var b strings.Builder

	b.WriteString("Commands:")

	for _, cmd := range s.engine.Commands() {
		if cmd.Channel || cmd.AccessLevel > level {
			continue
		}

		fmt.Fprintf(&b, "\n%s", cmd.Usage(s.cfg.Bot.CommandPrefix))

		if cmd.Description != "" {
			fmt.Fprintf(&b, " - %s", cmd.Description)
		}
	}

	return s.engine.SendPrivateText(inv.ClientID, b.String())
}
