// Package audience imports recipient rosters from CSV uploads.
package audience

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"mailgate/internal/models"
)

// ParseRecipients parses a roster CSV. The CSV must contain a header row
// with an "Email" column (case-insensitive); every other column is ignored.
// Rows with a blank address or a wrong column count are skipped.
//
// maxRows limits how many data rows are parsed (excluding header).
func ParseRecipients(r io.Reader, maxRows int) ([]models.Recipient, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Ragged rows are skipped below rather than aborting the import.
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, errors.New("csv header row is empty")
	}

	emailIdx := -1
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), "email") {
			emailIdx = i
		}
	}
	if emailIdx == -1 {
		return nil, errors.New("csv must contain an Email column")
	}

	if maxRows <= 0 {
		maxRows = 1000
	}

	recipients := make([]models.Recipient, 0)
	for len(recipients) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(headers) {
			// skip malformed row
			continue
		}

		address := strings.TrimSpace(record[emailIdx])
		if address == "" {
			continue
		}

		recipients = append(recipients, models.NewRecipient(address))
	}

	if len(recipients) == 0 {
		return nil, errors.New("csv must contain at least one data row")
	}

	return recipients, nil
}
