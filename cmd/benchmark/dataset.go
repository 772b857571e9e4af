package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Review is one labelled review row.
type Review struct {
	Text   string  `json:"text"`
	Rating float64 `json:"rating"`
}

// Listing is every review row sharing a url, with the listing's label.
type Listing struct {
	URL     string
	Fake    bool
	Reviews []Review
}

// Request is the /analyze body for the listing.
func (l Listing) Request() map[string]any {
	return map[string]any{
		"url":     l.URL,
		"title":   "Benchmark listing",
		"reviews": l.Reviews,
	}
}

// ReadListings reads url,label,text,rating rows and groups them by url in
// first-seen order. label is "fake" (also "1", "cg") or "genuine" (also "0",
// "or"); a listing is fake if any of its rows is. Rows with an unknown label
// or a bad rating are skipped.
func ReadListings(r io.Reader, limit int) ([]Listing, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int)
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"url", "label", "text", "rating"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	index := make(map[string]int)
	var listings []Listing

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		if len(record) < len(header) {
			continue
		}

		fake, ok := parseLabel(record[col["label"]])
		if !ok {
			continue
		}
		rating, err := strconv.ParseFloat(strings.TrimSpace(record[col["rating"]]), 64)
		if err != nil {
			continue
		}
		url := strings.TrimSpace(record[col["url"]])
		if url == "" {
			continue
		}

		i, seen := index[url]
		if !seen {
			if limit > 0 && len(listings) >= limit {
				continue
			}
			i = len(listings)
			index[url] = i
			listings = append(listings, Listing{URL: url})
		}
		listings[i].Fake = listings[i].Fake || fake
		listings[i].Reviews = append(listings[i].Reviews, Review{
			Text:   record[col["text"]],
			Rating: rating,
		})
	}

	return listings, nil
}

func parseLabel(v string) (fake bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "fake", "1", "cg":
		return true, true
	case "genuine", "0", "or":
		return false, true
	default:
		return false, false
	}
}
