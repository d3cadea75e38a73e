// Package main is the worker-side attendance agent: it keeps the
// session alive with heartbeats, surfaces presence prompts on the
// terminal and queues pause and session actions for durable delivery.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/agent"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/agent/api"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/agent/broker"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/agent/queue"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// terminalSink prints triggered prompts to the terminal.
type terminalSink struct{}

func (terminalSink) PromptTriggered(prompt domain.PresencePrompt) {
	deadline := ""
	if prompt.ExpiresAt != nil {
		deadline = prompt.ExpiresAt.Local().Format("15:04:05")
	}
	fmt.Printf("\n*** Are you still there? Type 'confirm' before %s ***\n> ", deadline)
}

func main() {
	configPath := flag.String("config", "agent.yaml", "path to the agent config file")
	flag.Parse()

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	client := api.NewClient(cfg.ServerURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Authenticate, then hand the pair to the broker which owns all
	// refreshing from here on.
	cred, err := client.IssueToken(ctx, cfg.WorkerID, cfg.DeviceID)
	if err != nil {
		log.Fatalf("Failed to authenticate: %v", err)
	}
	tokenBroker := broker.New(client, cred)

	state := agent.NewState()
	driver := agent.NewDriver(client, tokenBroker, nil, state, terminalSink{}, time.Duration(cfg.HeartbeatInterval))

	q, err := queue.New(queue.NewFileStore(cfg.QueuePath()), client, tokenBroker,
		queue.WithResultHandler(driver.HandleQueueResult),
		queue.WithDropHandler(driver.HandleQueueDrop))
	if err != nil {
		log.Fatalf("Failed to open queue: %v", err)
	}
	driver.SetQueue(q)

	go func() {
		if err := driver.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatalf("Agent stopped: %v", err)
		}
	}()

	// Resume anything a previous run left behind.
	go func() {
		if err := q.Process(ctx); err != nil && ctx.Err() == nil {
			log.Printf("WARN: queue drain stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
		os.Exit(0)
	}()

	fmt.Println("attendance-agent ready. Commands: break|lunch start|end, confirm, status, end, quit")
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		handleCommand(driver, state, q, strings.Fields(strings.TrimSpace(scanner.Text())))
		fmt.Print("> ")
	}
}

func handleCommand(driver *agent.Driver, state *agent.State, q *queue.Queue, args []string) {
	if len(args) == 0 {
		return
	}

	var err error
	switch args[0] {
	case "break", "lunch":
		if len(args) != 2 || (args[1] != "start" && args[1] != "end") {
			fmt.Printf("usage: %s start|end\n", args[0])
			return
		}
		kind := domain.PauseKind(args[0])
		if args[1] == "start" {
			err = driver.StartPause(kind)
		} else {
			err = driver.EndPause(kind)
		}

	case "confirm":
		prompt := state.Prompt()
		if prompt == nil {
			fmt.Println("no presence prompt pending")
			return
		}
		err = driver.ConfirmPresence(prompt.PromptID)

	case "status":
		printStatus(state, q)
		return

	case "end":
		err = driver.EndSession()

	case "quit", "exit":
		os.Exit(0)

	default:
		fmt.Printf("unknown command %q\n", args[0])
		return
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func printStatus(state *agent.State, q *queue.Queue) {
	session := state.Session()
	if session == nil {
		fmt.Println("no active session")
		return
	}
	fmt.Printf("session %s, started %s\n", session.SessionID, session.StartedAt.Local().Format(time.RFC3339))

	snap := state.Pauses()
	if snap.Current != nil {
		fmt.Printf("paused: %s since %s\n", snap.Current.Kind, snap.Current.StartedAt.Local().Format("15:04:05"))
	}
	fmt.Printf("completed pauses: %d, pending actions: %d\n", len(snap.History), q.Len())
	if prompt := state.Prompt(); prompt != nil {
		fmt.Printf("presence prompt %s awaiting 'confirm'\n", prompt.PromptID)
	}
}
