package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bass5068/bottle-redeem/internal/ledger"
)

// RowError points at a spreadsheet row (1-based, as shown in the sheet) that could not be read.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

var headers = []string{"name", "points", "stock", "description"}

// ParseRewards reads the first sheet of an .xlsx workbook with columns
// name, points, stock, description. A header row is skipped when present.
func ParseRewards(r io.Reader) ([]ledger.RewardInput, []RowError, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	var inputs []ledger.RewardInput
	var rowErrors []RowError
	for i, row := range rows {
		if i == 0 && isHeader(row) {
			continue
		}
		if blank(row) {
			continue
		}
		input, err := parseRow(row)
		if err != nil {
			rowErrors = append(rowErrors, RowError{Row: i + 1, Error: err.Error()})
			continue
		}
		inputs = append(inputs, input)
	}
	return inputs, rowErrors, nil
}

func parseRow(row []string) (ledger.RewardInput, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	name := cell(0)
	if name == "" {
		return ledger.RewardInput{}, errors.New("name is required")
	}
	points, err := strconv.ParseInt(cell(1), 10, 64)
	if err != nil || points <= 0 {
		return ledger.RewardInput{}, fmt.Errorf("points %q must be a positive integer", cell(1))
	}
	stock, err := strconv.Atoi(cell(2))
	if err != nil || stock < 0 {
		return ledger.RewardInput{}, fmt.Errorf("stock %q must be a non-negative integer", cell(2))
	}
	input := ledger.RewardInput{Name: name, Points: points, Stock: stock}
	if desc := cell(3); desc != "" {
		input.Description = &desc
	}
	return input, nil
}

func isHeader(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), headers[0])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Template builds an empty workbook with the expected header row.
func Template() (*excelize.File, error) {
	book := excelize.NewFile()
	if err := book.SetSheetRow(book.GetSheetName(0), "A1", &headers); err != nil {
		book.Close()
		return nil, err
	}
	return book, nil
}
