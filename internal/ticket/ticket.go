// Package ticket encodes and decodes the QR payload printed on participant
// tickets. The wire format is unsigned and versionless:
//
//	<prefix>|<registration_id>|<participant_name>|<category>|<price>|<shirt_size>
//
// Printed tickets are already in circulation, so the shape must not change.
package ticket

import (
	"fmt"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"famrun/internal/apperr"
)

const (
	DefaultPrefix = "FAMRUN"

	separator  = "|"
	fieldCount = 6
)

type Ticket struct {
	RegistrationID  string
	ParticipantName string
	Category        string
	Price           float64
	ShirtSize       string
}

type Codec struct {
	prefix string
}

func NewCodec(prefix string) Codec {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Codec{prefix: prefix}
}

func (c Codec) Prefix() string { return c.prefix }

func (c Codec) Encode(t Ticket) (string, error) {
	if strings.TrimSpace(t.RegistrationID) == "" {
		return "", apperr.New(apperr.CodeInvalidFormat, "ticket: registration id is empty")
	}
	fields := []string{
		c.prefix,
		t.RegistrationID,
		t.ParticipantName,
		t.Category,
		FormatPrice(t.Price),
		t.ShirtSize,
	}
	for _, f := range fields {
		if strings.ContainsAny(f, separator+"\r\n") {
			return "", apperr.New(apperr.CodeInvalidFormat, fmt.Sprintf("ticket: field %q contains a reserved character", f))
		}
		if f != strings.TrimSpace(f) {
			return "", apperr.New(apperr.CodeInvalidFormat, fmt.Sprintf("ticket: field %q has surrounding whitespace", f))
		}
	}
	return strings.Join(fields, separator), nil
}

func (c Codec) Decode(payload string) (Ticket, error) {
	// Scanners append line endings; field whitespace is significant.
	parts := strings.Split(strings.TrimRight(payload, "\r\n"), separator)
	if len(parts) != fieldCount {
		return Ticket{}, apperr.New(apperr.CodeInvalidFormat, fmt.Sprintf("ticket: expected %d fields, got %d", fieldCount, len(parts)))
	}
	if parts[0] != c.prefix {
		return Ticket{}, apperr.New(apperr.CodeInvalidFormat, "ticket: unknown prefix")
	}
	if parts[1] == "" {
		return Ticket{}, apperr.New(apperr.CodeInvalidFormat, "ticket: registration id is empty")
	}
	price, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return Ticket{}, apperr.Wrap(apperr.CodeInvalidFormat, "ticket: bad price", err)
	}
	return Ticket{
		RegistrationID:  parts[1],
		ParticipantName: parts[2],
		Category:        parts[3],
		Price:           price,
		ShirtSize:       parts[5],
	}, nil
}

// PNG renders payload as a QR code image of size x size pixels.
func PNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
