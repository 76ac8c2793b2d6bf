package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

// SheetsWriter implements SheetWriter using the Google Sheets API.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// Write rewrites the USERS, HOLDINGS and COINS sheets and appends a HISTORY row.
func (w *SheetsWriter) Write(ctx context.Context, r Report) error {
	if err := w.ensureSheets(ctx, sheetUsers, sheetHoldings, sheetCoins, sheetHistory); err != nil {
		return err
	}

	_, err := w.svc.Spreadsheets.Values.BatchClear(
		w.spreadsheetID,
		&sheets.BatchClearValuesRequest{
			Ranges: []string{sheetUsers + "!A:D", sheetHoldings + "!A:H", sheetCoins + "!A:D"},
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing sheets: %w", err)
	}

	_, err = w.svc.Spreadsheets.Values.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateValuesRequest{
			ValueInputOption: "USER_ENTERED",
			Data: []*sheets.ValueRange{
				{Range: sheetUsers + "!A1", Values: buildUsers(r)},
				{Range: sheetHoldings + "!A1", Values: buildHoldings(r)},
				{Range: sheetCoins + "!A1", Values: buildCoins(r)},
			},
		},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing sheets: %w", err)
	}

	return w.appendHistory(ctx, r)
}

// appendHistory writes the header if the sheet is empty, then appends one row.
func (w *SheetsWriter) appendHistory(ctx context.Context, r Report) error {
	header, row := buildHistoryRow(r)

	existing, err := w.svc.Spreadsheets.Values.Get(
		w.spreadsheetID, sheetHistory+"!A1:A1",
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", sheetHistory, err)
	}

	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			sheetHistory+"!A1",
			&sheets.ValueRange{Values: [][]any{header}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing %s header: %w", sheetHistory, err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		sheetHistory+"!A:E",
		&sheets.ValueRange{Values: [][]any{row}},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending %s row: %w", sheetHistory, err)
	}
	return nil
}

// ensureSheets adds any of the named sheets missing from the spreadsheet.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) error {
	doc, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	titles := lo.Map(doc.Sheets, func(s *sheets.Sheet, _ int) string { return s.Properties.Title })
	missing := lo.Without(names, titles...)
	if len(missing) == 0 {
		return nil
	}

	add := lo.Map(missing, func(name string, _ int) *sheets.Request {
		return &sheets.Request{AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{Title: name},
		}}
	})
	if _, err := w.svc.Spreadsheets.BatchUpdate(w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: add},
	).Context(ctx).Do(); err != nil {
		return fmt.Errorf("adding sheets %v: %w", missing, err)
	}
	slog.Info("created report sheets", "sheets", missing)
	return nil
}
