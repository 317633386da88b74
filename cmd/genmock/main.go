// Command genmock turns a CSV of community hazard reports into the JSON
// fixture used by the hazard feed tests, and can publish the same reports to
// the hazard topic to seed a local stack. Every row goes through the same
// parser the service uses, so a row the service would reject fails here.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -csv data/mock/hazard_reports.csv \
//	  -out data/mock/hazard_reports.json \
//	  [-brokers localhost:9092 -topic hazard-reports]
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// baseDate stamps rows without a reported_at so generated IDs are reproducible.
var baseDate = time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvPath := flag.String("csv", "", "CSV file with id,lat,lng,severity,type,description,reported_at columns")
	out := flag.String("out", "", "output path for the JSON fixture")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers; publish when set")
	topic := flag.String("topic", "hazard-reports", "hazard report topic")
	flag.Parse()

	if *csvPath == "" || *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv, -out")
	}

	domain.SetClock(clockwork.NewFakeClockAt(baseDate))
	defer domain.SetClock(nil)

	raws, reports, err := processCSV(*csvPath)
	if err != nil {
		return fmt.Errorf("processing %s: %w", *csvPath, err)
	}
	log.Printf("parsed %d hazard reports", len(reports))

	if err := writeJSON(*out, raws); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote fixture: %s", *out)

	if *brokers != "" {
		if err := publish(strings.Split(*brokers, ","), *topic, raws, reports); err != nil {
			return fmt.Errorf("publishing to %s: %w", *topic, err)
		}
		log.Printf("published %d reports to %s", len(raws), *topic)
	}

	printStats(reports)
	return nil
}

func processCSV(path string) ([]domain.RawHazardReport, []domain.HazardReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.TrimSpace(h)] = i
	}

	raws := make([]domain.RawHazardReport, 0, len(rows)-1)
	reports := make([]domain.HazardReport, 0, len(rows)-1)
	for line, row := range rows[1:] {
		raw, err := toRaw(row, colIdx)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line+2, err)
		}

		// Run the service's own parser.
		value, err := json.Marshal(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: marshal: %w", line+2, err)
		}
		report, err := domain.ParseHazardReport(domain.RawEvent{Value: value})
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line+2, err)
		}

		raws = append(raws, raw)
		reports = append(reports, report)
	}
	return raws, reports, nil
}

func toRaw(row []string, idx map[string]int) (domain.RawHazardReport, error) {
	raw := domain.RawHazardReport{
		ID:          get(row, idx, "id"),
		Severity:    get(row, idx, "severity"),
		Type:        get(row, idx, "type"),
		Description: get(row, idx, "description"),
		ReportedAt:  get(row, idx, "reported_at"),
	}
	lat, err := strconv.ParseFloat(get(row, idx, "lat"), 64)
	if err != nil {
		return raw, fmt.Errorf("lat: %w", err)
	}
	lng, err := strconv.ParseFloat(get(row, idx, "lng"), 64)
	if err != nil {
		return raw, fmt.Errorf("lng: %w", err)
	}
	raw.Lat, raw.Lng = &lat, &lng
	return raw, nil
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// publish writes each report keyed by its parsed ID, so replays supersede
// instead of duplicating.
func publish(brokers []string, topic string, raws []domain.RawHazardReport, reports []domain.HazardReport) error {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	msgs := make([]kafkago.Message, 0, len(raws))
	for i, raw := range raws {
		value, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(reports[i].ID), Value: value})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return w.WriteMessages(ctx, msgs...)
}

func printStats(reports []domain.HazardReport) {
	severity := map[domain.Severity]int{}
	category := map[domain.Category]int{}
	for _, r := range reports {
		severity[r.Severity]++
		category[r.Category]++
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(reports))
	fmt.Printf("By severity: danger=%d, warning=%d, normal=%d\n",
		severity[domain.SeverityDanger], severity[domain.SeverityWarning], severity[domain.SeverityNormal])
	fmt.Printf("By type: flood=%d, disaster=%d, other=%d\n",
		category[domain.CategoryFlood], category[domain.CategoryDisaster], category[domain.CategoryOther])

	index := domain.NewHazardIndex(domain.DefaultSafeLocations())
	snap := index.Upsert(reports...)
	blocked := map[string]bool{}
	for _, loc := range snap.SafeLocations() {
		blocked[loc.ID] = true
	}
	for _, loc := range snap.UnblockedSafeLocations() {
		delete(blocked, loc.ID)
	}
	ids := make([]string, 0, len(blocked))
	for id := range blocked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Printf("Buffers: %d\n", len(snap.Buffers()))
	fmt.Printf("Blocked default safe locations: %v\n", ids)
}
