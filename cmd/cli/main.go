// x402 broker CLI tool
// Supports querying usage records and validated services from a running
// broker instance.
// Usage examples:
//   go run main.go list-usage --service=svc-1
//   go run main.go validated --service=svc-1
//   go run main.go --help
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const defaultBrokerURL = "http://localhost:8080"

func printHelp() {
	help := `Usage:
  list-usage [--service=ID] [--user=ADDRESS]   # Query usage records
  validated --service=ID                       # Query the current verdict for a service
  --help                                       # Show help

The broker URL defaults to http://localhost:8080 and can be overridden with
the BROKER_URL environment variable.
`
	fmt.Print(help)
}

func brokerURL() string {
	if v := os.Getenv("BROKER_URL"); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	return defaultBrokerURL
}

func get(url string) {
	resp, err := http.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		fmt.Fprintf(os.Stderr, "HTTP error: %d %s\n", resp.StatusCode, resp.Status)
		os.Exit(1)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read response: %v\n", err)
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Fprintf(os.Stderr, "JSON formatting failed: %v\nOriginal content: %s\n", err, string(body))
		os.Exit(1)
	}
	fmt.Println(pretty.String())
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "--help" || os.Args[1] == "help" {
		printHelp()
		return
	}

	cmd := os.Args[1]
	switch cmd {
	case "list-usage":
		fs := flag.NewFlagSet("list-usage", flag.ExitOnError)
		service := fs.String("service", "", "Filter by service id")
		user := fs.String("user", "", "Filter by payer address")
		_ = fs.Parse(os.Args[2:])

		url := brokerURL() + "/v1/usage"
		params := []string{}
		if *service != "" {
			params = append(params, "serviceId="+*service)
		}
		if *user != "" {
			params = append(params, "userAddress="+*user)
		}
		if len(params) > 0 {
			url += "?" + strings.Join(params, "&")
		}
		get(url)
	case "validated":
		fs := flag.NewFlagSet("validated", flag.ExitOnError)
		service := fs.String("service", "", "Service id")
		_ = fs.Parse(os.Args[2:])
		if *service == "" {
			fmt.Fprintln(os.Stderr, "validated requires --service")
			os.Exit(1)
		}
		get(brokerURL() + "/v1/validated/" + *service)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printHelp()
		os.Exit(1)
	}
}
