package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmax-ai/transformer-puzzle/pkg/client"
	"github.com/rmax-ai/transformer-puzzle/pkg/game"
)

func main() {
	daemonURL := flag.String("daemon", "", "play against a tpuzzle-d at this URL instead of in-process")
	flag.Parse()

	ctx := game.WithOrigin(context.Background(), "tui", "")
	var b backend
	if *daemonURL != "" {
		b = client.NewClient(*daemonURL, client.WithOrigin("tui"))
	} else {
		// The terminal belongs to the game; in-process logs are dropped.
		b = game.NewManager(nil, game.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	}

	p := tea.NewProgram(newModel(ctx, b), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
