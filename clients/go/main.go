// chato CLI - command line client for the chato messaging API
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mohamed-arshad-ch/chato-strapi-api/clients/go/chato"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CHATO_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := chato.New(baseURL, os.Getenv("CHATO_TOKEN"))
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "users":
		users, err := client.Users(ctx)
		exitOnError(err)
		for _, u := range users {
			fmt.Printf("  %d  %s <%s>\n", u.ID, u.Username, u.Email)
		}

	case "inbox":
		convs, err := client.Conversations(ctx)
		exitOnError(err)
		for _, c := range convs {
			fmt.Printf("  %d  %s (%d unread): %s\n", c.User.ID, c.User.Username, c.UnreadCount, c.LastMessage.Content)
		}

	case "read":
		other := userArg("read <user_id>")
		msgs, err := client.History(ctx, other)
		exitOnError(err)
		for _, m := range msgs {
			fmt.Printf("[%s] %d: %s\n", m.CreatedAt.Local().Format("2006-01-02 15:04:05"), m.SenderID, m.Content)
		}
		_, err = client.MarkRead(ctx, other)
		exitOnError(err)

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: chato send <user_id> <message>")
			os.Exit(1)
		}
		msg, err := client.SendText(ctx, userArg("send <user_id> <message>"), os.Args[3])
		exitOnError(err)
		fmt.Printf("Sent: %d\n", msg.ID)

	case "voice":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: chato voice <user_id> <file> [duration]")
			os.Exit(1)
		}
		recipient := userArg("voice <user_id> <file> [duration]")
		f, err := os.Open(os.Args[3])
		exitOnError(err)
		defer f.Close()

		var duration float64
		if len(os.Args) > 4 {
			duration, err = strconv.ParseFloat(os.Args[4], 64)
			exitOnError(err)
		}
		ct := mime.TypeByExtension(filepath.Ext(f.Name()))
		if ct == "" {
			ct = "application/octet-stream"
		}
		msg, err := client.SendVoice(ctx, recipient, filepath.Base(f.Name()), ct, f, duration)
		exitOnError(err)
		fmt.Printf("Sent: %d (%s)\n", msg.ID, msg.Content)

	case "who":
		resp, err := client.User(ctx, userArg("who <user_id>"))
		exitOnError(err)
		printJSON(resp)

	case "listen":
		stream, err := client.Listen(ctx)
		exitOnError(err)
		defer stream.Close()
		for _, room := range os.Args[2:] {
			exitOnError(stream.Join(room))
		}
		for {
			ev, err := stream.Next()
			exitOnError(err)
			fmt.Printf("[%s] %s %s %s\n", time.Now().Format("15:04:05"), ev.Event, ev.Room, ev.Data)
		}

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func userArg(usageLine string) int64 {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: chato "+usageLine)
		os.Exit(1)
	}
	id, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid user ID: %s\n", os.Args[2])
		os.Exit(1)
	}
	return id
}

func usage() {
	fmt.Println(`chato CLI - direct messaging from the terminal

Usage: chato <command> [options]

Commands:
  send <user_id> <message>           Send a text message
  voice <user_id> <file> [duration]  Send a voice note
  read <user_id>                     Show a conversation and mark it read
  inbox                              List conversations with unread counts
  users                              List the user directory
  who <user_id>                      Get a user profile
  listen [room...]                   Stream realtime events
  health                             Check server health

Environment:
  CHATO_URL     Server URL (default: http://localhost:8080)
  CHATO_TOKEN   Bearer token (see cmd/token)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
