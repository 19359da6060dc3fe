// Package main provides an operator CLI for the dashboard API.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/quaverbot/quaver/internal/app/voice"
	"github.com/quaverbot/quaver/internal/infra/history"
)

var (
	app    = kingpin.New("botctl", "Quaver operator client")
	server = app.Flag("server", "Dashboard address").Default("http://localhost:8080").String()

	// sessions command
	sessionsCmd = app.Command("sessions", "List active voice sessions")

	// session command
	sessionCmd   = app.Command("session", "Show one guild's session")
	sessionGuild = sessionCmd.Arg("guild-id", "Guild ID").Required().String()

	// history command
	historyCmd   = app.Command("history", "Show a guild's play history")
	historyGuild = historyCmd.Arg("guild-id", "Guild ID").Required().String()
	historyLimit = historyCmd.Flag("limit", "Number of entries").Default("20").Int()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := &http.Client{Timeout: 10 * time.Second}

	var err error
	switch command {
	case sessionsCmd.FullCommand():
		err = listSessions(client)
	case sessionCmd.FullCommand():
		err = showSession(client, *sessionGuild)
	case historyCmd.FullCommand():
		err = showHistory(client, *historyGuild, *historyLimit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getJSON fetches a dashboard endpoint and decodes its body.
func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func listSessions(client *http.Client) error {
	var snaps []voice.Snapshot
	if err := getJSON(client, *server+"/api/sessions", &snaps); err != nil {
		return err
	}

	if len(snaps) == 0 {
		fmt.Println("No active sessions.")
		return nil
	}
	for _, snap := range snaps {
		printSnapshot(snap)
	}
	return nil
}

func showSession(client *http.Client, guildID string) error {
	var snap voice.Snapshot
	if err := getJSON(client, *server+"/api/sessions/"+guildID, &snap); err != nil {
		return err
	}
	printSnapshot(snap)
	return nil
}

func printSnapshot(snap voice.Snapshot) {
	fmt.Printf("Guild %s: %s", snap.GuildID, snap.State)
	if snap.Paused {
		fmt.Print(" (paused)")
	}
	fmt.Println()
	if snap.Playing != nil {
		fmt.Printf("  Playing: %s\n", snap.Playing.Title)
	}
	for i, t := range snap.Queue {
		fmt.Printf("  %2d. %s\n", i+1, t.Title)
	}
}

func showHistory(client *http.Client, guildID string, limit int) error {
	url := fmt.Sprintf("%s/api/history/%s?limit=%d", *server, guildID, limit)
	var entries []history.Entry
	if err := getJSON(client, url, &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No recorded plays.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-40s  requested by %s\n",
			e.PlayedAt.Local().Format("2006-01-02 15:04"), e.Title, e.RequestedBy)
	}
	return nil
}
