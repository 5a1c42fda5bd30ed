package sheets

import (
	"context"
	"fmt"

	sheetsv4 "google.golang.org/api/sheets/v4"

	"famrun/internal/models"
	"famrun/internal/ticket"
	"famrun/internal/util"
)

const (
	SheetClaims = "Kit_Claims"
	SheetRoster = "Registrations"
)

// Kit_Claims columns.
var claimHeader = []interface{}{
	"registration_id", "participant", "category", "shirt_size",
	"actual_claimer", "location", "processed_by", "claimed_at", "notes", "state",
}

const (
	claimStateClaimed  = "claimed"
	claimStateReversed = "reversed"
	claimStateColumn   = "J"
)

var rosterHeader = []interface{}{
	"registration_id", "first_name", "last_name", "email", "phone", "department",
	"category", "shirt_size", "price", "payment_status", "payment_date",
	"kit_claimed", "claimed_at", "actual_claimer",
}

func (c *Client) readAll(ctx context.Context, sheet string) ([][]interface{}, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:Z").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) appendRow(ctx context.Context, sheet string, row []interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:Z", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (c *Client) updateCell(ctx context.Context, sheet, a1 string, value interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{{value}}}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!"+a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// ---------- Kit claims ----------

// AppendClaim adds one row to the claim log, writing the header first on an empty sheet.
func (c *Client) AppendClaim(ctx context.Context, reg models.Registration, loc models.ClaimLocation) error {
	values, err := c.readAll(ctx, SheetClaims)
	if err != nil {
		return fmt.Errorf("read %s: %w", SheetClaims, err)
	}
	if len(values) == 0 {
		if err := c.appendRow(ctx, SheetClaims, claimHeader); err != nil {
			return fmt.Errorf("write %s header: %w", SheetClaims, err)
		}
	}
	return c.appendRow(ctx, SheetClaims, ClaimRow(reg, loc))
}

// ReverseClaim marks the newest claimed row for the registration as reversed.
func (c *Client) ReverseClaim(ctx context.Context, registrationID, notes string) error {
	values, err := c.readAll(ctx, SheetClaims)
	if err != nil {
		return fmt.Errorf("read %s: %w", SheetClaims, err)
	}
	// header row at index 0
	for i := len(values) - 1; i >= 1; i-- {
		row := values[i]
		if get(row, 0) == registrationID && get(row, 9) == claimStateClaimed {
			rowNum := i + 1 // sheet rows are 1-indexed
			state := claimStateReversed
			if notes != "" {
				state += ": " + notes
			}
			return c.updateCell(ctx, SheetClaims, fmt.Sprintf("%s%d", claimStateColumn, rowNum), state)
		}
	}
	return fmt.Errorf("claim for %s not found in %s", registrationID, SheetClaims)
}

func ClaimRow(reg models.Registration, loc models.ClaimLocation) []interface{} {
	location := loc.Name
	if location == "" {
		location = reg.ClaimLocationID
	}
	return []interface{}{
		reg.RegistrationID,
		reg.ParticipantName(),
		reg.Category,
		reg.ShirtSize,
		reg.ActualClaimer,
		location,
		reg.ProcessedBy,
		util.FormatTime(reg.ClaimedAt),
		reg.ClaimNotes,
		claimStateClaimed,
	}
}

// ---------- Roster ----------

// RosterSync pushes the full registration list to an external roster.
type RosterSync interface {
	SyncRegistrations(ctx context.Context, regs []models.Registration) error
}

var _ RosterSync = (*Client)(nil)

// SyncRegistrations replaces the roster sheet with regs.
func (c *Client) SyncRegistrations(ctx context.Context, regs []models.Registration) error {
	rng := SheetRoster + "!A:Z"
	if _, err := c.srv.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &sheetsv4.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", SheetRoster, err)
	}
	rows := make([][]interface{}, 0, len(regs)+1)
	rows = append(rows, rosterHeader)
	for _, r := range regs {
		rows = append(rows, RosterRow(r))
	}
	vr := &sheetsv4.ValueRange{Values: rows}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, SheetRoster+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", SheetRoster, err)
	}
	return nil
}

func RosterRow(r models.Registration) []interface{} {
	claimed := "no"
	if r.KitClaimed {
		claimed = "yes"
	}
	return []interface{}{
		r.RegistrationID, r.FirstName, r.LastName, r.Email, r.Phone, r.Department,
		r.Category, r.ShirtSize, ticket.FormatPrice(r.Price), string(r.PaymentStatus), util.FormatTime(r.PaymentDate),
		claimed, util.FormatTime(r.ClaimedAt), r.ActualClaimer,
	}
}

// ---------- helpers ----------

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}
