// Command test-keyword is a manual test for keyword classification.
// Type utterances, one per line, to see which status each maps to.
// Press Ctrl+D to exit.
//
// Usage:
//
//	go run ./cmd/test-keyword [--config path]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/chaz8081/gostt-kiosk/internal/config"
	"github.com/chaz8081/gostt-kiosk/internal/keyword"
)

func main() {
	configPath := flag.String("config", "", "config file with a custom keywords table")
	flag.Parse()

	var rules []keyword.Rule
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if rules, err = cfg.KeywordRules(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
	if rules == nil {
		fmt.Println("Using built-in keyword table.")
	}

	c := keyword.NewClassifier(rules)
	fmt.Println("Type an utterance and press Enter. Ctrl+D to exit.")

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		status := c.Classify(sc.Text())
		if status == keyword.None {
			fmt.Println("    (no keyword)")
			continue
		}
		fmt.Printf("    %s\n", status)
	}
	fmt.Println("\nDone.")
}
