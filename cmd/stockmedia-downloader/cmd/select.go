package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"go-stockmedia-download/internal/models"

	log "github.com/sirupsen/logrus"
)

const maxTitleWidth = 48

// printAssetTable writes a numbered listing of assets.
func printAssetTable(w io.Writer, assets []models.Asset) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSource\tKind\tTitle\tPage")
	fmt.Fprintln(tw, "-\t------\t----\t-----\t----")
	for i, a := range assets {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, a.Source, a.Kind, truncate(a.Title, maxTitleWidth), a.PageURL)
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// parseSelection reads "all", "none" or a list like "1,3,5-7" against n
// numbered items and returns zero-based indexes in the order given.
func parseSelection(input string, n int) ([]int, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	switch input {
	case "", "all", "a":
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	case "none", "n":
		return []int{}, nil
	}

	seen := make(map[int]bool)
	var picked []int
	add := func(i int) {
		if !seen[i] {
			seen[i] = true
			picked = append(picked, i-1)
		}
	}
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", part)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid selection %q", part)
			}
		}
		if start < 1 || end > n || start > end {
			return nil, fmt.Errorf("selection %q is out of range 1-%d", part, n)
		}
		for i := start; i <= end; i++ {
			add(i)
		}
	}
	if picked == nil {
		return nil, fmt.Errorf("empty selection")
	}
	return picked, nil
}

// promptSelection lists the assets and asks until it gets a valid answer.
// End of input selects nothing.
func promptSelection(in io.Reader, out io.Writer, assets []models.Asset) []models.Asset {
	printAssetTable(out, assets)
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "Select assets to download [all, none, 1,3,5-7] (default all): ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if err != io.EOF {
				log.WithError(err).Warn("Failed to read selection")
			}
			fmt.Fprintln(out)
			return nil
		}
		indexes, perr := parseSelection(line, len(assets))
		if perr != nil {
			fmt.Fprintf(out, "%v\n", perr)
			if err != nil {
				return nil
			}
			continue
		}
		selected := make([]models.Asset, 0, len(indexes))
		for _, i := range indexes {
			selected = append(selected, assets[i])
		}
		return selected
	}
}
