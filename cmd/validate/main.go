// Command validate checks a safe-location catalog and a hazard report
// fixture before they are deployed: every catalog entry must load, every
// report must parse, and the reports must leave at least one destination
// reachable.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -catalog configs/safe_locations.yaml \
//	  -reports data/mock/hazard_reports.json \
//	  [-radius 500]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-escape-service/internal/catalog"
	"github.com/couchcryptid/storm-escape-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	catalogPath := flag.String("catalog", "", "safe-location catalog YAML")
	reportsPath := flag.String("reports", "", "hazard report JSON fixture")
	radius := flag.Float64("radius", domain.DefaultBufferRadius, "hazard buffer radius in meters")
	flag.Parse()

	if *catalogPath == "" || *reportsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*catalogPath, *reportsPath, *radius))
}

func run(catalogPath, reportsPath string, radius float64) int {
	// Fixed clock matching genmock for ID reproducibility.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2026, time.January, 10, 12, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Escape Data Validation ===")
	fmt.Println()

	safe, catalogPhase := validateCatalog(catalogPath)

	raws, err := loadJSON[json.RawMessage](reportsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load reports: %v\n", err)
		return 1
	}
	reports, reportPhase := validateReports(raws)

	index := domain.NewHazardIndex(safe, domain.WithBufferRadius(radius))
	snap := index.Upsert(reports...)

	phases := []*phase{
		catalogPhase,
		reportPhase,
		validateCoverage(snap),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d safe locations, %d reports, %d buffers, %d unblocked\n",
		len(safe), len(reports), len(snap.Buffers()), len(snap.UnblockedSafeLocations()))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateCatalog(path string) ([]domain.SafeLocation, *phase) {
	p := &phase{name: "Phase 1: Safe location catalog"}
	safe, err := catalog.Load(path)
	if err != nil {
		p.errorf("%v", err)
	}
	return safe, p
}

func validateReports(raws []json.RawMessage) ([]domain.HazardReport, *phase) {
	p := &phase{name: "Phase 2: Hazard report parsing"}
	reports := make([]domain.HazardReport, 0, len(raws))
	seen := map[string]int{}
	for i, raw := range raws {
		r, err := domain.ParseHazardReport(domain.RawEvent{Value: raw})
		if err != nil {
			p.errorf("report %d: %v", i, err)
			continue
		}
		if prev, dup := seen[r.ID]; dup {
			p.errorf("report %d: id %s already used by report %d", i, r.ID, prev)
		}
		seen[r.ID] = i
		reports = append(reports, r)
	}
	return reports, p
}

func validateCoverage(snap *domain.Snapshot) *phase {
	p := &phase{name: "Phase 3: Destination coverage"}
	unblocked := snap.UnblockedSafeLocations()
	if len(snap.SafeLocations()) > 0 && len(unblocked) == 0 {
		p.errorf("every safe location is inside a hazard buffer")
	}
	open := map[string]bool{}
	for _, loc := range unblocked {
		open[loc.ID] = true
	}
	for _, loc := range snap.SafeLocations() {
		if !open[loc.ID] {
			fmt.Printf("  note: %s (%s) blocked by %v\n", loc.Name, loc.ID, snap.BuffersContaining(loc.Position))
		}
	}
	return p
}
