package writer

import (
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uilive"
	"github.com/mattn/go-colorable"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/fixerstudio/marketbrief/config"
	"github.com/fixerstudio/marketbrief/portfolio"
)

var faint = color.New(color.Faint).SprintFunc()

type tableWriter struct {
	*uilive.Writer
	columns []string
	table   *tablewriter.Table
}

// NewTableWriter redraws the dashboard in place on stdout.
func NewTableWriter(columns []string) (*tableWriter, error) {
	return newTableWriter(columns, colorable.NewColorableStdout()) // For Windows
}

func newTableWriter(columns []string, out io.Writer) (*tableWriter, error) {
	for _, col := range columns {
		if !isSupported(col) {
			return nil, errors.Errorf("unknown column: %s, supported columns are %s",
				col, strings.Join(config.SupportedColumns(), ", "))
		}
	}
	if len(columns) == 0 {
		columns = config.SupportedColumns()
	}

	// Set up ascii table writer
	tw := &tableWriter{Writer: uilive.New(), columns: columns}
	tw.Writer.Out = out
	tw.table = tablewriter.NewWriter(tw.Writer)
	tw.table.SetAutoFormatHeaders(false)
	tw.table.SetAutoWrapText(false)
	formattedHeaders := make([]string, len(columns))
	for i, hdr := range columns {
		formattedHeaders[i] = color.YellowString(hdr)
	}
	tw.table.SetHeader(formattedHeaders)
	tw.table.SetRowLine(true)
	tw.table.SetCenterSeparator(faint("-"))
	tw.table.SetColumnSeparator(faint("|"))
	tw.table.SetRowSeparator(faint("-"))
	return tw, nil
}

func isSupported(col string) bool {
	for _, supported := range config.SupportedColumns() {
		if strings.EqualFold(col, supported) {
			return true
		}
	}
	return false
}

func highlightChange(changePct decimal.Decimal) string {
	changeText := changePct.StringFixed(2)
	if changePct.IsZero() {
		changeText = faint("0")
	} else if changePct.IsPositive() {
		changeText = color.GreenString(changeText)
	} else {
		changeText = color.RedString(changeText)
	}
	return changeText
}

// buildRow keeps a failed lookup on its own row, so every holding stays
// where the user put it.
func (tw *tableWriter) buildRow(pos portfolio.Position) []string {
	columns := make([]string, 0, len(tw.columns))
	q := pos.Quote
	for _, hdr := range tw.columns {
		switch strings.ToLower(hdr) {
		case strings.ToLower(config.ColumnSymbol):
			columns = append(columns, pos.Symbol)
		case strings.ToLower(config.ColumnName):
			columns = append(columns, pos.Name)
		case strings.ToLower(config.ColumnWeight):
			columns = append(columns, pos.Percent.StringFixed(2)+"%")
		case strings.ToLower(config.ColumnPrice):
			if q == nil {
				columns = append(columns, faint("-"))
			} else {
				columns = append(columns, q.Price.String())
			}
		case strings.ToLower(config.ColumnChangePct):
			if q == nil {
				columns = append(columns, faint("-"))
			} else {
				columns = append(columns, highlightChange(q.ChangePercent))
			}
		case strings.ToLower(config.ColumnSource):
			if q == nil {
				columns = append(columns, faint("-"))
			} else {
				columns = append(columns, q.Source)
			}
		case strings.ToLower(config.ColumnUpdated):
			if q == nil {
				columns = append(columns, faint("-"))
			} else {
				columns = append(columns, q.Time.Local().Format("15:04:05"))
			}
		}
	}
	return columns
}

func (tw *tableWriter) Render(summary portfolio.Summary) {
	tw.table.ClearRows()
	// Fill in data
	for _, pos := range summary.Positions {
		tw.table.Append(tw.buildRow(pos))
	}
	tw.table.Render()
	if len(summary.Positions) > 0 {
		footer := "Weighted change " + highlightChange(summary.ChangePercent) + "%"
		if summary.Missing > 0 {
			footer += faint(", unavailable ", summary.Missing)
		}
		_, _ = io.WriteString(tw.Writer, footer+"\n")
	}
	tw.Flush()
}
