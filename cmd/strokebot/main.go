package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/Protocol-Lattice/stroke-agent/pkg/agent"
	"github.com/Protocol-Lattice/stroke-agent/pkg/config"
	"github.com/Protocol-Lattice/stroke-agent/pkg/render"
	"github.com/Protocol-Lattice/stroke-agent/pkg/runtime"
)

var (
	flagConfig   = flag.String("config", "", "Path to a strokebot YAML config file")
	flagEnv      = flag.String("env", "", "Optional .env file (defaults to ./.env)")
	flagProvider = flag.String("provider", "", "Override planner provider: openai|anthropic|gemini|ollama|dummy")
	flagSession  = flag.String("session", "default", "Session ID for conversation continuity")
	flagMessage  = flag.String("message", "", "Run a single turn with this message and exit")
	flagJSON     = flag.Bool("json", false, "Print replies as JSON")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var envFiles []string
	if *flagEnv != "" {
		envFiles = append(envFiles, *flagEnv)
	}
	cfg, err := config.Load(*flagConfig, envFiles...)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *flagProvider != "" {
		cfg.Planner.Provider = strings.ToLower(*flagProvider)
	}

	logger := log.New(os.Stderr, "strokebot: ", log.LstdFlags)
	opts, err := runtime.OptionsFromConfig(cfg, logger)
	if err != nil {
		log.Fatalf("configure runtime: %v", err)
	}
	opts = append(opts, runtime.WithDisplay(&render.WriterDisplay{W: os.Stdout}))

	rt, err := runtime.New(ctx, opts...)
	if err != nil {
		log.Fatalf("start runtime: %v", err)
	}
	defer rt.Close()

	session, err := rt.OpenSession(ctx, *flagSession)
	if err != nil {
		log.Fatalf("open session: %v", err)
	}

	if strings.TrimSpace(*flagMessage) != "" {
		reply, err := session.Ask(ctx, *flagMessage)
		printReply(os.Stdout, reply, *flagJSON)
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if err := repl(ctx, session, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%v", err)
	}
}

func repl(ctx context.Context, session *runtime.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Stroke risk assistant (session %s). Type /help for commands.\n", session.ID())
	for _, m := range session.Transcript() {
		fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/help":
			fmt.Fprintln(out, "/clear      forget this conversation")
			fmt.Fprintln(out, "/variables  list the patient variables the model accepts")
			fmt.Fprintln(out, "/exit       leave")
			continue
		case "/variables":
			fmt.Fprintln(out, agent.AcceptedVariables())
			continue
		case "/clear":
			if err := session.Clear(ctx); err != nil {
				fmt.Fprintf(out, "clear failed: %v\n", err)
			} else {
				fmt.Fprintln(out, "Conversation cleared.")
			}
			continue
		}

		reply, err := session.Ask(ctx, line)
		if errors.Is(err, context.Canceled) {
			return err
		}
		printReply(out, reply, *flagJSON)
	}
}

func printReply(w io.Writer, reply agent.Reply, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(reply)
		return
	}
	fmt.Fprintln(w, reply.Content)
}
