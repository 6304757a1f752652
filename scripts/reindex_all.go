package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Operational helper: triggers a full reindex against a running server and
// prints the summary. Run after restoring a database backup or changing the
// embedding model.
//
//	INTERNAL_API_KEY=... go run scripts/reindex_all.go -server http://localhost:8001

type reindexStats struct {
	Total   int      `json:"total"`
	Indexed int      `json:"indexed"`
	Failed  int      `json:"failed"`
	Chunks  int      `json:"chunks"`
	Errors  []string `json:"errors"`
}

type reindexResponse struct {
	Status string       `json:"status"`
	Stats  reindexStats `json:"stats"`
}

func main() {
	serverURL := flag.String("server", "http://localhost:8001", "base URL of the running server")
	timeout := flag.Duration("timeout", 15*time.Minute, "client timeout for the full run")
	flag.Parse()

	internalKey := os.Getenv("INTERNAL_API_KEY")
	if internalKey == "" {
		fmt.Fprintln(os.Stderr, "INTERNAL_API_KEY must be set")
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, *serverURL+"/rag/reindex-all", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("X-Internal-Key", internalKey)

	client := &http.Client{Timeout: *timeout}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reindex request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "server returned %d: %s\n", resp.StatusCode, string(raw))
		os.Exit(1)
	}

	var parsed reindexResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		fmt.Fprintf(os.Stderr, "decode response: %v\nraw: %s\n", err, string(raw))
		os.Exit(1)
	}

	fmt.Printf("reindex finished in %s\n", time.Since(start).Round(time.Second))
	fmt.Printf("  total:   %d\n", parsed.Stats.Total)
	fmt.Printf("  indexed: %d\n", parsed.Stats.Indexed)
	fmt.Printf("  failed:  %d\n", parsed.Stats.Failed)
	fmt.Printf("  chunks:  %d\n", parsed.Stats.Chunks)
	for _, e := range parsed.Stats.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	if parsed.Stats.Failed > 0 {
		os.Exit(2)
	}
}
