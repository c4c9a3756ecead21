// Command perilink-console is an interactive client for perilinkd.
//
// It connects to a daemon over TCP and speaks the text protocol:
// commands typed at the prompt go to the daemon, and replies and
// broadcast updates print as they arrive. With no address the daemon
// is located via mDNS.
//
// Usage:
//
//	perilink-console [flags]
//
// Flags:
//
//	-addr string      Daemon address (host:port); empty discovers via mDNS
//	-instance string  mDNS instance name to connect to (default: first found)
//	-version          Print version and exit
//
// Examples:
//
//	# Connect to a local daemon
//	perilink-console -addr localhost:8870
//
//	# Discover and connect to the bench rig
//	perilink-console -instance bench0
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/perilink/perilink-go/pkg/discovery"
	"github.com/perilink/perilink-go/pkg/version"
)

// Options holds the command line settings.
type Options struct {
	Addr     string
	Instance string
	Version  bool
}

var opts Options

func init() {
	flag.StringVar(&opts.Addr, "addr", "", "Daemon address (host:port); empty discovers via mDNS")
	flag.StringVar(&opts.Instance, "instance", "", "mDNS instance name to connect to")
	flag.BoolVar(&opts.Version, "version", false, "Print version and exit")
}

func main() {
	flag.Parse()

	if opts.Version {
		fmt.Printf("perilink-console %s (protocol %s)\n", version.Daemon, version.Current)
		return
	}

	addr := opts.Addr
	if addr == "" {
		found, err := discoverDaemon()
		if err != nil {
			fmt.Fprintf(os.Stderr, "No daemon found: %v\n", err)
			os.Exit(1)
		}
		addr = serviceAddress(found)
		fmt.Printf("Found %s (board %s, %d slots) at %s\n",
			found.InstanceName, found.BoardID, found.Slots, addr)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", addr)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pc> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	// Print daemon lines as they arrive. Closing readline unblocks
	// the prompt when the daemon goes away.
	go func() {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			fmt.Fprintln(rl.Stdout(), scanner.Text())
		}
		fmt.Fprintln(rl.Stdout(), "Connection closed by daemon")
		rl.Close()
	}()

	printHelp(rl.Stdout())

	for {
		line, err := rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if !runLocal(rl.Stdout(), input) {
				return
			}
			continue
		}

		if _, err := fmt.Fprintf(conn, "%s\n", input); err != nil {
			fmt.Fprintf(rl.Stderr(), "Send failed: %v\n", err)
			return
		}
	}
}

func discoverDaemon() (*discovery.DaemonService, error) {
	fmt.Println("Browsing for daemons...")
	browser := discovery.NewBrowser(discovery.DefaultBrowserConfig())
	return browser.Find(context.Background(), opts.Instance)
}

// serviceAddress picks a dial address for a discovered daemon,
// preferring a resolved IP over the mDNS hostname.
func serviceAddress(svc *discovery.DaemonService) string {
	host := svc.Host
	if len(svc.Addresses) > 0 {
		host = svc.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(svc.Port)))
}

// runLocal handles /-commands. It returns false when the console
// should exit.
func runLocal(w io.Writer, input string) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/help", "/?":
		printHelp(w)
	case "/quit", "/exit", "/q":
		fmt.Fprintln(w, "Exiting...")
		return false
	default:
		fmt.Fprintf(w, "Unknown command: %s (type '/help' for commands)\n", input)
	}
	return true
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `
Perilink Console Commands:
  Sent to the daemon:
    pcget [slot] <resource> [args]  - Read a resource
    pcset [slot] <resource> <value> - Write a resource
    pccat [slot] <resource>         - Subscribe to broadcast updates
    pclist [slot]                   - List slots, or one slot's resources
    pcload <driver> [core]          - Install a peripheral driver

  Local:
    /help  - Show this help
    /quit  - Exit`)
}
