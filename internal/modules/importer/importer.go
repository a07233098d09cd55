// Package importer parses bulk position imports pasted as text, and turns
// broker-screen OCR output into that same text format.
package importer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aristath/hedgebook/internal/domain"
)

// ImportMultiplier is the contract multiplier assigned to every imported leg.
const ImportMultiplier = 50

// Header is the column header emitted by ParseOCRText.
const Header = "類型,方向,Call/Put,履約價,權利金,口數"

var (
	// ErrNoPositions is returned when the text contains no data rows.
	ErrNoPositions = errors.New("no positions found")
	// ErrFieldCount is returned for rows with fewer than six fields.
	ErrFieldCount = errors.New("expected 6 fields: type,side,callPut,strike,premium,qty")
	// ErrRecognition is returned when the OCR service reports a failure.
	ErrRecognition = errors.New("ocr recognition failed")
)

// LineError reports the offending row of a failed import.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Parse reads one leg per line in the form type,side,callPut,strike,premium,qty.
// Blank lines and header lines are skipped. The first bad row aborts the
// whole import. Returned legs carry no id; the portfolio assigns one.
func Parse(text string) ([]domain.Position, error) {
	var legs []domain.Position

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || isHeader(line) {
			continue
		}

		leg, err := parseRow(line)
		if err != nil {
			return nil, &LineError{Line: i + 1, Text: line, Err: err}
		}
		legs = append(legs, leg)
	}

	if len(legs) == 0 {
		return nil, ErrNoPositions
	}
	return legs, nil
}

func isHeader(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "type") || strings.Contains(lower, "類型")
}

func parseRow(line string) (domain.Position, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return domain.Position{}, ErrFieldCount
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	typ, err := domain.ParsePositionType(fields[0])
	if err != nil {
		return domain.Position{}, err
	}
	side, err := domain.ParseSide(fields[1])
	if err != nil {
		return domain.Position{}, err
	}
	premium, err := decimal.NewFromString(fields[4])
	if err != nil {
		return domain.Position{}, fmt.Errorf("premium %q: %w", fields[4], err)
	}
	qty, err := parseWhole(fields[5])
	if err != nil {
		return domain.Position{}, fmt.Errorf("qty %q: %w", fields[5], err)
	}

	var pos domain.Position
	switch typ {
	case domain.TypeOption:
		// anything that is not a call token is read as a put
		cp := domain.Put
		if parsed, err := domain.ParseCallPut(fields[2]); err == nil {
			cp = parsed
		}
		strike, err := parseWhole(fields[3])
		if err != nil {
			return domain.Position{}, fmt.Errorf("strike %q: %w", fields[3], err)
		}
		pos = domain.NewOption("", side, cp, strike, premium, ImportMultiplier, qty)
	case domain.TypeFuture:
		// the premium column carries the entry price for futures
		pos = domain.NewFuture("", side, premium, ImportMultiplier, qty)
	}

	// Validate needs an id; the real one is assigned on import.
	check := pos
	check.ID = "pending"
	if err := check.Validate(); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

// parseWhole accepts integers written with a trailing fraction ("22000.0")
// and truncates them.
func parseWhole(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}

var (
	ocrOptionRow = regexp.MustCompile(`(?i)台指權(\d+)\s*\d+W\d+([CP])`)
	ocrNumber    = regexp.MustCompile(`\d+\.?\d*`)
)

// ParseOCRText converts recognized broker-screen text into import text.
// Only TAIEX option rows such as "台指權28550 202512W5P 賣出 45.5 2" are
// recognized; the last two numbers on a row are taken as premium and qty.
func ParseOCRText(raw string) (string, error) {
	if strings.Contains(raw, "ERROR:") {
		return "", fmt.Errorf("%w: %s", ErrRecognition, strings.TrimSpace(raw))
	}

	rows := []string{Header}
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := ocrOptionRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		callPut := domain.Put
		if strings.EqualFold(m[2], "C") {
			callPut = domain.Call
		}

		side := domain.SideBuy
		if !strings.Contains(line, "買") && strings.Contains(line, "賣") {
			side = domain.SideSell
		}

		premium := decimal.Zero
		qty := int64(1)
		if nums := ocrNumber.FindAllString(line, -1); len(nums) >= 3 {
			if p, err := decimal.NewFromString(nums[len(nums)-2]); err == nil {
				premium = p
			}
			if q, err := parseWhole(nums[len(nums)-1]); err == nil && q > 0 {
				qty = q
			}
		}

		rows = append(rows, fmt.Sprintf("%s,%s,%s,%s,%s,%d",
			domain.TypeOption, side, callPut, m[1], premium.String(), qty))
	}

	return strings.Join(rows, "\n"), nil
}
