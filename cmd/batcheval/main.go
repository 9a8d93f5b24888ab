// Command batcheval measures end-to-end identification accuracy over a
// labelled photo tree. Each subdirectory of the root is named after the
// expected record's generic name and holds photos of that pill.
//
// Usage: batcheval -photos <dir> [-config settings.yaml] [-out results.csv]
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"pillscan/internal/catalog"
	"pillscan/internal/config"
	"pillscan/internal/match"
	"pillscan/internal/pipeline"
	"pillscan/pkg/log"
)

type evalRow struct {
	photo    string
	expected string
	got      string
	rank     int
	score    float64
	shape    string
	colors   string
	source   string
	outcome  string
}

func main() {
	photoRoot := flag.String("photos", "", "labelled photo tree: <root>/<generic name>/*.jpg")
	configPath := flag.String("config", "", "optional YAML settings file")
	outPath := flag.String("out", "batcheval.csv", "CSV output path")
	flag.Parse()

	if *photoRoot == "" {
		fmt.Fprintln(os.Stderr, "batcheval: -photos is required")
		os.Exit(2)
	}

	_ = godotenv.Load()
	logger := log.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load settings")
	}
	cat, _, err := catalog.LoadXLSX(cfg.CatalogPath)
	if err != nil {
		logger.WithError(err).Fatal("load catalog")
	}
	pipe, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("init pipeline")
	}
	defer pipe.Close()
	matcher := match.New(cat, cfg.Match, logger)

	rows, err := evaluate(*photoRoot, pipe, matcher)
	if err != nil {
		logger.WithError(err).Fatal("evaluation failed")
	}
	if err := writeCSV(*outPath, rows); err != nil {
		logger.WithError(err).Fatal("write results")
	}

	hits := 0
	for _, r := range rows {
		if r.outcome == "hit" {
			hits++
		}
	}
	fmt.Printf("photos: %d  hits: %d  accuracy: %.1f%%\n",
		len(rows), hits, 100*float64(hits)/float64(max(len(rows), 1)))
	fmt.Printf("details: %s\n", *outPath)
}

func evaluate(root string, pipe *pipeline.Pipeline, matcher *match.Matcher) ([]evalRow, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var rows []evalRow
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		expected := entry.Name()
		photos, err := listPhotos(filepath.Join(root, expected))
		if err != nil {
			return nil, err
		}
		for _, photo := range photos {
			rows = append(rows, evalOne(photo, expected, pipe, matcher))
		}
	}
	return rows, nil
}

func listPhotos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".heic":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func evalOne(photo, expected string, pipe *pipeline.Pipeline, matcher *match.Matcher) evalRow {
	row := evalRow{photo: photo, expected: expected, rank: -1, outcome: "miss"}

	res, err := pipe.Process(mustRead(photo))
	if err != nil {
		row.outcome = "extract_error: " + err.Error()
		return row
	}
	row.source = string(res.Source)
	row.shape = res.Shape
	row.colors = strings.Join(res.Colors, "|")

	result, err := matcher.Match(res.Tokens, res.Colors, res.Shape)
	if err != nil {
		row.outcome = "match_error: " + err.Error()
		return row
	}

	for i, cand := range result.Candidates {
		if i == 0 {
			row.got = cand.Record.GenericName
			row.score = cand.Score
		}
		if cand.Record.GenericName == expected {
			row.rank = i + 1
			row.score = cand.Score
			row.outcome = "hit"
			break
		}
	}
	return row
}

func mustRead(path string) []byte {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return b
}

func writeCSV(path string, rows []evalRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"photo", "expected", "top1", "rank", "score", "shape", "colors", "source", "outcome"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.photo, r.expected, r.got,
			strconv.Itoa(r.rank),
			strconv.FormatFloat(r.score, 'f', 3, 64),
			r.shape, r.colors, r.source, r.outcome,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return w.Error()
}
