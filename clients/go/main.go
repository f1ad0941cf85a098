// wemake CLI - command line client for wemake messages
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/David-Byun/wemake/clients/go/wemake"
	"github.com/David-Byun/wemake/internal/models"
	"github.com/David-Byun/wemake/internal/realtime"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := wemake.NewClient(os.Getenv("WEMAKE_URL"), os.Getenv("WEMAKE_TOKEN"))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "join":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: wemake join <name> <username>")
			os.Exit(1)
		}
		resp, err := client.Join(ctx, os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("Joined as: %s (%s)\n", resp.Username, resp.ID)
		fmt.Printf("export WEMAKE_TOKEN=%s\n", resp.Token)

	case "who":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: wemake who <username>")
			os.Exit(1)
		}
		resp, err := client.Profile(ctx, os.Args[2])
		exitOnError(err)
		printJSON(resp)

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: wemake send <username> <message>")
			os.Exit(1)
		}
		id, err := client.SendMessage(ctx, os.Args[2], strings.Join(os.Args[3:], " "))
		exitOnError(err)
		fmt.Printf("Sent to conversation %d\n", id)

	case "inbox":
		resp, err := client.Inbox(ctx)
		exitOnError(err)
		for _, c := range resp.Conversations {
			fmt.Printf("  %-6d %-20s %s\n", c.ConversationID, c.Other.Name, c.LastMessage)
		}

	case "read":
		id := conversationArg("read")
		resp, err := client.Room(ctx, id)
		exitOnError(err)
		fmt.Printf("Conversation with %s\n", resp.Participant.Name)
		for _, msg := range resp.Messages {
			printMessage(msg, resp.Participant)
		}

	case "post":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: wemake post <conversation_id> <message>")
			os.Exit(1)
		}
		id := conversationArg("post")
		msg, err := client.Post(ctx, id, strings.Join(os.Args[3:], " "))
		exitOnError(err)
		fmt.Printf("Posted: %d\n", msg.ID)

	case "watch":
		id := conversationArg("watch")
		watch(ctx, client, id)

	case "notifications":
		list, err := client.Notifications(ctx)
		exitOnError(err)
		for _, n := range list {
			mark := " "
			if !n.Seen {
				mark = "*"
			}
			fmt.Printf("%s %-6d %-8s %s\n", mark, n.ID, n.Type, n.CreatedAt.Format("2006-01-02 15:04"))
		}

	case "see":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: wemake see <notification_id>")
			os.Exit(1)
		}
		id, err := strconv.ParseInt(os.Args[2], 10, 64)
		exitOnError(err)
		exitOnError(client.SeeNotification(ctx, id))

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// watch prints the history of a conversation and then new messages as they
// arrive, until interrupted.
func watch(ctx context.Context, client *wemake.Client, id int64) {
	room, err := client.Room(ctx, id)
	exitOnError(err)

	view := realtime.NewView(client.Feed(), wemake.LiveChannel(id), id, room.Messages)
	exitOnError(view.Open(ctx))
	defer view.Close()

	printed := 0
	for {
		msgs := view.Messages()
		for _, msg := range msgs[printed:] {
			printMessage(msg, room.Participant)
		}
		printed = len(msgs)

		select {
		case <-ctx.Done():
			return
		case <-view.Changed():
		}
	}
}

func printMessage(msg models.Message, other models.Participant) {
	from := "you"
	if msg.SenderID == other.ID {
		from = other.Name
	}
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("2006-01-02 15:04:05"), from, msg.Content)
}

func conversationArg(cmd string) int64 {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: wemake %s <conversation_id>\n", cmd)
		os.Exit(1)
	}
	id, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid conversation id: %s\n", os.Args[2])
		os.Exit(1)
	}
	return id
}

func usage() {
	fmt.Println(`wemake CLI - direct messages from the terminal

Usage: wemake <command> [options]

Commands:
  join <name> <username>        Create a profile and print a session token
  who <username>                Show a public profile
  send <username> <message>     Send a direct message
  inbox                         List conversations
  read <conversation_id>        Show a conversation
  post <conversation_id> <msg>  Reply in a conversation
  watch <conversation_id>       Follow a conversation live
  notifications                 List notifications (* = unseen)
  see <notification_id>         Mark a notification as seen
  health                        Check server health

Environment:
  WEMAKE_URL     Server URL (default: http://localhost:8080)
  WEMAKE_TOKEN   Session token from join`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
