package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

var (
	outputFormat string // "table", "json", "raw"
	outputField  string // for -field=key
)

// printResult outputs data in the chosen format.
func printResult(data map[string]any) {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(data) //nolint:errcheck
	case "raw":
		if outputField != "" {
			if v, ok := data[outputField]; ok {
				fmt.Println(v)
			}
			return
		}
		for _, k := range sortedKeys(data) {
			fmt.Printf("%s=%v\n", k, data[k])
		}
	default: // table
		printTable(data, time.Now())
	}
}

func printTable(data map[string]any, now time.Time) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, k := range sortedKeys(data) {
		fmt.Fprintf(w, "%s\t%s\n", k, formatValue(k, data[k], now))
	}
	w.Flush()
}

// formatValue renders deadlines with the time remaining next to them.
func formatValue(key string, v any, now time.Time) string {
	s, ok := v.(string)
	if !ok || key != "expiresAt" {
		return fmt.Sprintf("%v", v)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	left := t.Sub(now).Round(time.Second)
	if left <= 0 {
		return s + " (expired)"
	}
	return fmt.Sprintf("%s (in %s)", t.Local().Format(time.DateTime), left)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", strings.TrimSpace(msg))
}

func printSuccess(msg string) {
	fmt.Println(msg)
}
