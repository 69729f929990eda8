// Command probe runs one full retrying check against a URL and prints how
// the monitor would classify it. Nothing is stored and no alert is sent.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/probe"
)

func main() {
	target := flag.String("url", "", "site URL to probe (prompted when empty)")
	timeout := flag.Duration("timeout", probe.DefaultTimeout, "per-attempt timeout")
	attempts := flag.Int("attempts", probe.MaxTries, "attempts before giving up on transport errors")
	flag.Parse()

	raw := strings.TrimSpace(*target)
	if raw == "" {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Enter a site URL to probe (e.g., https://example.com): ")
		raw, _ = reader.ReadString('\n')
		raw = strings.TrimSpace(raw)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		fmt.Println("Invalid URL.")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*attempts+1)*(*timeout))
	defer cancel()

	chk := probe.NewRetryChecker(probe.NewHTTPChecker(*timeout), *attempts, 0)
	res := chk.Check(ctx, raw)

	switch {
	case res.Success:
		fmt.Printf("UP    %s  %s  %.0f ms  (attempts: %d)\n", raw, res.Message, res.LatencyMS, res.Attempts)
	case res.Responded():
		fmt.Printf("DOWN  %s  %s  %.0f ms  (HTTP error, attempts: %d)\n", raw, res.Message, res.LatencyMS, res.Attempts)
	default:
		fmt.Printf("DOWN  %s  no response after %d attempts: %s\n", raw, res.Attempts, res.Message)
		d := probe.CheckDNS(ctx, probe.HostOf(raw))
		fmt.Printf("      dns=%s", d.Class)
		if d.ResolverError != "" {
			fmt.Printf(" (%s)", d.ResolverError)
		}
		fmt.Println()
	}
	if !res.Success {
		os.Exit(1)
	}
}
