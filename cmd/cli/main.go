package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mindscope/internal/client"
	"mindscope/internal/conversation"
	"mindscope/internal/models"
)

const defaultServer = "http://localhost:8000"

func main() {
	server := os.Getenv("MINDSCOPE_SERVER")
	if server == "" {
		server = defaultServer
	}

	tokens := client.NewMemoryTokenSource()
	accounts := client.NewAccountClient(server, tokens, nil)
	chatsClient := client.NewChatsClient(server, tokens, nil)
	analyzer := client.NewAnalyzeClient(server, tokens, nil)
	orch := conversation.NewOrchestrator(analyzer, chatsClient)

	fmt.Printf("MindScope terminal client (%s)\n", server)
	fmt.Println("Type a message to chat, or /help for commands.")

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	var pending []models.Attachment

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" && len(pending) == 0 {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(ctx, line, orch, accounts, chatsClient, &pending); quit {
				return
			}
			continue
		}

		reply, err := orch.SendTurn(ctx, line, pending)
		pending = nil
		if err != nil {
			fmt.Printf("! %v\n", err)
			continue
		}
		printReply(reply, orch)
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}
}

func runCommand(ctx context.Context, line string, orch *conversation.Orchestrator, accounts *client.AccountClient, chatsClient *client.ChatsClient, pending *[]models.Attachment) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		fmt.Println(`/register <user> <pass>  create an account
/login <user> <pass>     log in (saved chats require this)
/logout                  log out
/assessment              start the mental health check
/new                     start a fresh chat
/chats                   list saved chats
/load <id>               load a saved chat
/attach <path>           attach a file to the next message
/quit                    exit`)
	case "/register":
		if len(fields) != 3 {
			fmt.Println("usage: /register <user> <pass>")
			return false
		}
		if err := accounts.Register(ctx, fields[1], fields[2]); err != nil {
			fmt.Printf("! %v\n", err)
			return false
		}
		fmt.Println("registered, now /login")
	case "/login":
		if len(fields) != 3 {
			fmt.Println("usage: /login <user> <pass>")
			return false
		}
		if err := accounts.Login(ctx, fields[1], fields[2]); err != nil {
			fmt.Printf("! %v\n", err)
			return false
		}
		fmt.Println("logged in")
	case "/logout":
		if err := accounts.Logout(ctx); err != nil {
			fmt.Printf("! %v\n", err)
		} else {
			fmt.Println("logged out")
		}
	case "/assessment":
		if _, err := orch.StartAssessment(ctx); err != nil {
			fmt.Printf("! %v\n", err)
			return false
		}
		for _, msg := range tailMessages(orch, 2) {
			fmt.Printf("ai: %s\n", msg.Text)
		}
		printProgress(orch)
	case "/new":
		orch.NewChat()
		fmt.Println("new chat started")
	case "/chats":
		records, err := chatsClient.List(ctx)
		if err != nil {
			fmt.Printf("! %v\n", err)
			return false
		}
		if len(records) == 0 {
			fmt.Println("no saved chats")
			return false
		}
		for _, rec := range records {
			fmt.Printf("%4d  %s  (%d messages, %s)\n", rec.ID, rec.Title, len(rec.Messages), rec.UpdatedAt.Format("2006-01-02 15:04"))
		}
	case "/load":
		if len(fields) != 2 {
			fmt.Println("usage: /load <id>")
			return false
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Println("usage: /load <id>")
			return false
		}
		records, err := chatsClient.List(ctx)
		if err != nil {
			fmt.Printf("! %v\n", err)
			return false
		}
		for _, rec := range records {
			if rec.ID == id {
				orch.LoadChat(rec)
				for _, msg := range rec.Messages {
					fmt.Printf("%s: %s\n", msg.Role, msg.Text)
				}
				return false
			}
		}
		fmt.Println("chat not found")
	case "/attach":
		if len(fields) != 2 {
			fmt.Println("usage: /attach <path>")
			return false
		}
		data, err := os.ReadFile(fields[1])
		if err != nil {
			fmt.Printf("! %v\n", err)
			return false
		}
		*pending = append(*pending, models.Attachment{Name: filepath.Base(fields[1]), Data: data})
		fmt.Printf("attached %s (%d bytes)\n", filepath.Base(fields[1]), len(data))
	case "/quit", "/exit":
		return true
	default:
		fmt.Println("unknown command, /help for a list")
	}
	return false
}

func printReply(reply *models.Message, orch *conversation.Orchestrator) {
	role := "ai"
	if reply.Role == models.RoleErr {
		role = "error"
	}
	fmt.Printf("%s: %s\n", role, reply.Text)
	if orch.AssessmentMode() {
		printProgress(orch)
	}
}

func printProgress(orch *conversation.Orchestrator) {
	p := orch.Progress()
	if p.AssessmentComplete {
		fmt.Println("[assessment complete]")
		return
	}
	fmt.Printf("[question %d of %d]\n", p.QuestionsAsked, p.TotalQuestions)
}

// tailMessages returns the last n log entries, oldest first.
func tailMessages(orch *conversation.Orchestrator, n int) []models.Message {
	msgs := orch.Messages()
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}
