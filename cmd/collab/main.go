// Collab — CLI entry point.
//
// This tool runs one side of a two-party collaborative editing session over
// a direct TCP connection: a host that owns the document and the control
// decisions, and a client that mirrors it and may ask for the pen. The
// in-memory buffer is edited line-by-line from stdin.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -port, -addr, -listen).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/codesync-ide/collab/internal/config"
	"github.com/codesync-ide/collab/internal/editor"
	"github.com/codesync-ide/collab/internal/session"
	"github.com/codesync-ide/collab/internal/util"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	role := flag.String("role", "", "Role: host or client")
	port := flag.Int("port", config.DefaultPort, "Port to host on or connect to, 1~65535")
	addr := flag.String("addr", "", "Host IP address to connect to (client only)")
	listenAll := flag.Bool("listen", false, "Listen on all network interfaces (host only, for LAN access)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Collab — v%s", version))
	pterm.Println()

	var cfg config.Config
	switch *role {
	case "":
		// No -role flag → interactive mode.
		cfg = askConfig()

	case "host":
		if *port < 1 || *port > 65535 {
			util.LogError("invalid -port (must be 1~65535)")
			os.Exit(1)
		}
		cfg = config.Config{Role: config.RoleHost, Port: *port, ListenAll: *listenAll}

	case "client":
		if *port < 1 || *port > 65535 {
			util.LogError("invalid -port (must be 1~65535)")
			os.Exit(1)
		}
		if net.ParseIP(strings.TrimSpace(*addr)) == nil {
			util.LogError("invalid or missing -addr for client role")
			os.Exit(1)
		}
		cfg = config.Config{Role: config.RoleClient, Port: *port, HostAddr: strings.TrimSpace(*addr)}

	default:
		util.LogError("invalid -role: must be 'host' or 'client'")
		os.Exit(1)
	}

	run(ctx, cfg)
	util.LogInfo("session closed")
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

func run(ctx context.Context, cfg config.Config) {
	buf := editor.NewBuffer()
	sess := session.New(buf, askApproveControlRequest)
	buf.SetOnChange(sess.OnLocalDocumentChanged)

	go renderEvents(sess, buf)
	util.StartStatsReporter(ctx)

	switch cfg.Role {
	case config.RoleHost:
		bindAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
		if cfg.ListenAll {
			bindAddr = fmt.Sprintf(":%d", cfg.Port)
		}
		bound, err := sess.StartHosting(bindAddr)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		printHostBanner(bound)

	case config.RoleClient:
		target := net.JoinHostPort(cfg.HostAddr, strconv.Itoa(cfg.Port))
		if err := sess.ConnectToHost(target); err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
	}

	// Stop the session when Ctrl+C arrives so editLoop's peer observes a
	// clean disconnect even while we block on stdin.
	go func() {
		<-ctx.Done()
		sess.StopSession()
	}()

	editLoop(ctx, sess, buf)
	sess.StopSession()
}

// editLoop reads stdin line by line. Plain lines append to the document;
// a few slash commands drive the session.
func editLoop(ctx context.Context, sess *session.Session, buf *editor.Buffer) {
	fmt.Println("Type to append to the document. Commands: /request /doc /stop")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()

		switch {
		case line == "/stop":
			return

		case line == "/doc":
			pterm.Println(pterm.Gray("── document ──"))
			pterm.Println(buf.Snapshot())
			pterm.Println(pterm.Gray("──────────────"))

		case line == "/request":
			if err := sess.RequestControl(); err != nil {
				util.LogWarning("%v", err)
			}

		default:
			if !sess.HasControl() && sess.State() == session.StateConnected {
				if sess.Role() == session.RoleHost {
					// A keypress while read-only is the host's reclaim
					// trigger; the edit itself still applies.
					sess.OnUserRequestedReclaim()
				} else {
					util.LogWarning("view-only: ask for control with /request")
					continue
				}
			}
			buf.AppendLine(line)
		}
	}
}

// renderEvents turns session notifications into terminal output.
func renderEvents(sess *session.Session, buf *editor.Buffer) {
	for ev := range sess.Events() {
		switch ev.Kind {
		case session.EventPeerConnected:
			util.LogInfo("collaboration active with %s", ev.Detail)
		case session.EventPeerDisconnected:
			util.LogInfo("peer disconnected, session ended")
		case session.EventControlGained:
			util.LogInfo("you are now the writer")
		case session.EventControlLost:
			util.LogInfo("you are now a viewer")
		case session.EventControlDeclined:
			util.LogWarning("host declined your control request")
		case session.EventDocumentApplied:
			text := buf.Snapshot()
			util.LogInfo("document updated (%d bytes): %s", len(text), preview(text))
		}
	}
}

// askApproveControlRequest is the host-side decision point for a peer's
// control request.
func askApproveControlRequest() bool {
	ok, _ := pterm.DefaultInteractiveConfirm.
		WithDefaultText("Peer requests editing control — grant it?").
		Show()
	pterm.Println()
	return ok
}

func printHostBanner(addr string) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║        Collaborative Session Host        ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Addr : %-32s ║\n", addr)
	fmt.Println("╚══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Waiting for a peer to connect...")
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askConfig falls back to interactive prompts when no -role flag is given.
func askConfig() config.Config {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host  — Share your document", "Client — Join a session"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Host") {
		port := askPort("Port to host on (1 ~ 65535)")
		return config.Config{Role: config.RoleHost, Port: port}
	}

	addr := askAddr()
	port := askPort("Host port (1 ~ 65535)")
	return config.Config{Role: config.RoleClient, HostAddr: addr, Port: port}
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			WithDefaultValue(strconv.Itoa(config.DefaultPort)).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return port
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askAddr prompts the user for a host IP address until a valid one is entered.
func askAddr() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Host IP address (e.g. 127.0.0.1)").
			Show()

		addr := strings.TrimSpace(raw)
		if net.ParseIP(addr) != nil {
			pterm.Println()
			return addr
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid IPv4 or IPv6 address")
	}
}

// preview returns the first line of text, truncated for log output.
func preview(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 50 {
		text = text[:50] + "…"
	}
	return text
}
