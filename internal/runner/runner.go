// Package runner orchestrates scans: it validates the requested window,
// enriches raw alerts into display-ready records, and archives a plain-text
// log of each run.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/polywatch/tracker/internal/format"
	"github.com/polywatch/tracker/internal/jsonfile"
	"github.com/polywatch/tracker/internal/scan"
	"github.com/polywatch/tracker/internal/store"
)

// ScanMode selects how the scan window is derived.
type ScanMode string

const (
	// ModeRecent scans the most recent N minutes.
	ModeRecent ScanMode = "recent"
	// ModeCustomRange scans an explicit UTC window.
	ModeCustomRange ScanMode = "custom-range"
	// ModeCalendarDay scans one US-Eastern calendar day.
	ModeCalendarDay ScanMode = "calendar-day"
	// ModeResume resumes from the persisted cursor and advances it.
	ModeResume ScanMode = "resume"
)

// maxWindow caps every windowed scan.
const maxWindow = 24 * time.Hour

// Options control one orchestrated run.
type Options struct {
	// Mode defaults to ModeRecent
	Mode ScanMode

	// RecentMinutes sizes the ModeRecent window (default 60)
	RecentMinutes int

	// From and To bound a ModeCustomRange window (RFC 3339, UTC)
	From string
	To   string

	// CalendarDay is the ModeCalendarDay date (YYYY-MM-DD, US-Eastern)
	CalendarDay string

	// WalletAgeHours overrides the configured cutoff
	WalletAgeHours *float64

	// SaveLog archives the run as a text file under the scan log directory
	SaveLog bool
}

// EnrichedAlert is an AlertRecord plus presentation-only derived fields.
type EnrichedAlert struct {
	store.AlertRecord

	Summary         string `json:"summary"`
	MarketURL       string `json:"marketUrl"`
	DirectionText   string `json:"directionText"`
	Stake           string `json:"stake"`
	BlockLocal      string `json:"blockLocal"`
	ImpliedPosition string `json:"impliedPosition"`
	Currency        string `json:"currency"`
}

// Result is the outcome of one orchestrated run.
type Result struct {
	Timestamp time.Time
	Message   string
	Alerts    []EnrichedAlert
	LogLines  []string
	LogPath   string
}

// Scanner is the scan engine's entry operation.
type Scanner interface {
	Run(ctx context.Context, opts scan.Options) ([]store.AlertRecord, error)
}

// Runner wires window validation and result enrichment around a Scanner.
type Runner struct {
	scanner       Scanner
	scanLogDir    string
	defaultCutoff float64
}

// New creates a Runner writing run logs under scanLogDir.
func New(scanner Scanner, scanLogDir string, defaultCutoffHours float64) *Runner {
	return &Runner{
		scanner:       scanner,
		scanLogDir:    scanLogDir,
		defaultCutoff: defaultCutoffHours,
	}
}

// Run validates the requested window (before any network access), executes
// the scan, and returns the enriched result.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	window, err := resolveWindow(opts)
	if err != nil {
		return nil, err
	}

	cutoff := r.defaultCutoff
	if opts.WalletAgeHours != nil {
		cutoff = *opts.WalletAgeHours
	}

	alerts, err := r.scanner.Run(ctx, scan.Options{
		Window:         window,
		WalletAgeHours: &cutoff,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &Result{
		Timestamp: now,
		Alerts:    make([]EnrichedAlert, 0, len(alerts)),
	}
	for _, alert := range alerts {
		result.Alerts = append(result.Alerts, enrich(alert))
	}

	base := "No newly created wallets exceeded the configured trade threshold."
	if len(alerts) > 0 {
		base = fmt.Sprintf("[ALERT] Detected %d high-value trades from newly created wallets.", len(alerts))
	}
	if window != nil {
		result.Message = fmt.Sprintf("%s (window: %s to %s)",
			base, window.From.Format(time.RFC3339), window.To.Format(time.RFC3339))
	} else {
		result.Message = base
	}

	result.LogLines = buildLogLines(now, result.Message, window, cutoff, result.Alerts)

	if opts.SaveLog {
		logPath, err := r.writeRunLog(now, result.LogLines)
		if err != nil {
			return nil, err
		}
		result.LogPath = logPath
		slog.Info("run_archived", "path", logPath, "alerts", len(result.Alerts))
	}

	return result, nil
}

// resolveWindow turns the requested mode into a concrete scan window. A nil
// window means the mutating resume scan. All validation happens here, before
// any network access.
func resolveWindow(opts Options) (*scan.Window, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModeRecent
	}

	switch mode {
	case ModeResume:
		return nil, nil

	case ModeRecent:
		minutes := opts.RecentMinutes
		if minutes <= 0 {
			minutes = 60
		}
		span := time.Duration(minutes) * time.Minute
		if span > maxWindow {
			return nil, fmt.Errorf("recent scan cannot exceed 24 hours")
		}
		now := time.Now().UTC()
		return &scan.Window{From: now.Add(-span), To: now}, nil

	case ModeCustomRange:
		if opts.From == "" || opts.To == "" {
			return nil, fmt.Errorf("provide both start and end times (maximum window: 24 hours)")
		}
		from, err := time.Parse(time.RFC3339, opts.From)
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		to, err := time.Parse(time.RFC3339, opts.To)
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		if to.Before(from) {
			return nil, fmt.Errorf("the end time must be after the start time")
		}
		if to.Sub(from) > maxWindow {
			return nil, fmt.Errorf("scan window cannot exceed 24 hours")
		}
		return &scan.Window{From: from.UTC(), To: to.UTC()}, nil

	case ModeCalendarDay:
		if opts.CalendarDay == "" {
			return nil, fmt.Errorf("select a calendar day to scan")
		}
		eastern, err := time.LoadLocation("America/New_York")
		if err != nil {
			return nil, fmt.Errorf("load eastern timezone: %w", err)
		}
		day, err := time.ParseInLocation("2006-01-02", opts.CalendarDay, eastern)
		if err != nil {
			return nil, fmt.Errorf("invalid calendar day: %w", err)
		}
		return &scan.Window{
			From: day.UTC(),
			To:   day.AddDate(0, 0, 1).Add(-time.Second).UTC(),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported scan mode: %s", mode)
	}
}

// enrich derives the presentation fields for one alert.
func enrich(alert store.AlertRecord) EnrichedAlert {
	stake := format.USD(alert.UsdValue)
	willHappen := alert.Direction == store.DirectionBuy

	alternatives := make([]string, 0, len(alert.Market.AllOutcomes))
	for _, name := range alert.Market.AllOutcomes {
		if name != alert.Market.Outcome {
			alternatives = append(alternatives, name)
		}
	}
	if len(alternatives) == 0 {
		alternatives = inferAlternatives(alert.Market.Question, alert.Market.Outcome)
	}

	altLabel := "alternative outcome(s)"
	if len(alternatives) > 0 {
		quoted := make([]string, len(alternatives))
		for i, name := range alternatives {
			quoted[i] = fmt.Sprintf("%q", name)
		}
		sep := " and "
		if len(quoted) > 2 {
			sep = ", "
		}
		altLabel = strings.Join(quoted, sep)
	}

	impliedPosition := fmt.Sprintf("Backing %s", altLabel)
	summary := fmt.Sprintf("Wallet %s bet %s USDC that %q will NOT happen in %q.",
		alert.Address, stake, alert.Market.Outcome, alert.Market.Question)
	directionText := fmt.Sprintf("AGAINST %s", alert.Market.Outcome)
	if willHappen {
		impliedPosition = fmt.Sprintf("Backing %q", alert.Market.Outcome)
		summary = fmt.Sprintf("Wallet %s bet %s USDC that %q will happen in %q.",
			alert.Address, stake, alert.Market.Outcome, alert.Market.Question)
		directionText = fmt.Sprintf("FOR %s", alert.Market.Outcome)
	}

	return EnrichedAlert{
		AlertRecord:     alert,
		Summary:         summary,
		Stake:           stake,
		DirectionText:   directionText,
		BlockLocal:      format.Eastern(alert.BlockTimestamp),
		ImpliedPosition: impliedPosition,
		Currency:        "USDC",
		MarketURL:       fmt.Sprintf("https://polymarket.com/market/%s", alert.Market.Slug),
	}
}

// inferAlternatives guesses the opposing outcomes when the catalog does not
// list them: Yes/No markets flip, and "A vs B" questions name the other side.
func inferAlternatives(question, outcome string) []string {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "yes":
		return []string{"No"}
	case "no":
		return []string{"Yes"}
	}

	for _, sep := range []string{" vs. ", " vs ", " VS. ", " VS "} {
		parts := strings.SplitN(question, sep, 2)
		if len(parts) != 2 {
			continue
		}
		teamA := strings.TrimSpace(parts[0])
		teamB := strings.TrimSpace(parts[1])
		if strings.EqualFold(teamA, outcome) && teamB != "" {
			return []string{teamB}
		}
		if strings.EqualFold(teamB, outcome) && teamA != "" {
			return []string{teamA}
		}
	}
	return nil
}

// buildLogLines renders the run log: timestamp header, summary and window
// lines, then one block per alert.
func buildLogLines(now time.Time, message string, window *scan.Window, cutoff float64, alerts []EnrichedAlert) []string {
	lines := []string{now.Format(time.RFC3339), message}
	if window != nil {
		lines = append(lines, fmt.Sprintf("Requested window: %s to %s",
			window.From.Format(time.RFC3339), window.To.Format(time.RFC3339)))
	}
	lines = append(lines, fmt.Sprintf("Wallet age cutoff: %g hours", cutoff))

	for _, alert := range alerts {
		lines = append(lines, strings.Join([]string{
			alert.Summary,
			fmt.Sprintf("Transaction: %s", alert.TxHash),
			fmt.Sprintf("Direction: %s", alert.DirectionText),
			fmt.Sprintf("Implied Position: %s", alert.ImpliedPosition),
			fmt.Sprintf("Wallet First Seen: %s (%.1f hours old)", alert.WalletFirstSeen, alert.WalletAgeHours),
			fmt.Sprintf("Market: %s -> %s", alert.Market.Question, alert.Market.Outcome),
			fmt.Sprintf("Stake: %s %s", alert.Stake, alert.Currency),
			fmt.Sprintf("Block: %d @ %s", alert.BlockNumber, alert.BlockLocal),
			fmt.Sprintf("Slug: %s", alert.Market.Slug),
			fmt.Sprintf("Link: %s", alert.MarketURL),
		}, "\n"))
		lines = append(lines, strings.Repeat("-", 80))
	}
	return lines
}

// writeRunLog archives the run under the scan log directory.
func (r *Runner) writeRunLog(now time.Time, lines []string) (string, error) {
	if err := jsonfile.EnsureDir(r.scanLogDir); err != nil {
		return "", err
	}
	safe := strings.NewReplacer(":", "-", ".", "-").Replace(now.Format(time.RFC3339))
	path := filepath.Join(r.scanLogDir, fmt.Sprintf("scan-%s.txt", safe))
	body := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write run log: %w", err)
	}
	return path, nil
}
