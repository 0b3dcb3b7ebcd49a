// Command searchcli queries a snapshot the way a browser client does: it
// fetches a session token, downloads the dataset, builds an in-memory index,
// and prints the ranked results. A local snapshot file can be queried
// directly with -file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sitekit/search-assistant/internal/dataset/snapshot"
	"github.com/sitekit/search-assistant/internal/search/engine"
	"github.com/sitekit/search-assistant/internal/search/index"
)

func main() {
	var (
		serverURL  = flag.String("server", "http://localhost:8080", "assistant server base URL")
		file       = flag.String("file", "", "query a local snapshot file instead of the server")
		topK       = flag.Int("top", 5, "number of results to print")
		anyTerm    = flag.Bool("any", false, "match documents containing any query term instead of all")
		fuzzy      = flag.Int("fuzzy", 1, "maximum edit distance for fuzzy term matching (0 disables)")
		noPrefix   = flag.Bool("no-prefix", false, "disable prefix term matching")
		titleBoost = flag.Float64("title-boost", 2, "score multiplier applied to title matches")
	)
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: searchcli [flags] <query terms...>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	query := ""
	for i, arg := range flag.Args() {
		if i > 0 {
			query += " "
		}
		query += arg
	}

	snap, err := loadSnapshot(*serverURL, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading snapshot: %v\n", err)
		os.Exit(1)
	}

	opts := engine.DefaultOptions()
	opts.FuzzyMax = *fuzzy
	opts.Prefix = !*noPrefix
	if *anyTerm {
		opts.Combine = engine.CombineOR
	}
	if *titleBoost > 0 {
		opts.Boost = map[string]float64{index.FieldTitle: *titleBoost}
	}

	eng := engine.New(index.Build(snap.Docs, index.Options{}))
	results := eng.Search(query, opts)
	if len(results) > *topK {
		results = results[:*topK]
	}

	if len(results) == 0 {
		fmt.Printf("no results for %q in %d documents\n", query, snap.Count)
		return
	}
	fmt.Printf("%d result(s) for %q:\n\n", len(results), query)
	for i, res := range results {
		fmt.Printf("%2d. [%.3f] %s\n    %s\n", i+1, res.Score, res.Doc.Title, res.Doc.URL)
	}
}

// loadSnapshot reads a local snapshot file, or walks the server's session and
// dataset endpoints.
func loadSnapshot(serverURL, file string) (*snapshot.Snapshot, error) {
	if file != "" {
		return snapshot.Load(file)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Get(serverURL + "/api/v1/session")
	if err != nil {
		return nil, fmt.Errorf("requesting session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session request returned %s", resp.Status)
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decoding session response: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, serverURL+"/api/v1/dataset", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Session-Token", session.Token)
	dresp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting dataset: %w", err)
	}
	defer dresp.Body.Close()
	if dresp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset request returned %s", dresp.Status)
	}
	return snapshot.Decode(dresp.Body)
}
