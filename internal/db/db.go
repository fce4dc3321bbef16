package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailgate/internal/models"
	"mailgate/internal/validate"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(conn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), conn)
	if err != nil {
		return nil, err
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

// CountCreatedSince reports how many emails were recorded inside the
// trailing window starting at since. Feeds the sliding-window admission
// check.
func (s *Store) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM emails
		 WHERE created_at >= $1`,
		since,
	).Scan(&count)
	return count, err
}

// FindByAddress returns every persisted recipient whose lower-cased address
// is in addresses. One query for the whole candidate set.
func (s *Store) FindByAddress(ctx context.Context, addresses []string) ([]models.Recipient, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, address, token
		 FROM recipients
		 WHERE lower(address) = ANY($1)`,
		addresses,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Recipient, error) {
		var r models.Recipient
		err := row.Scan(&r.ID, &r.Address, &r.Token)
		return r, err
	})
}

// InsertEmail records a dispatched email so later admission checks see it
// in the sliding windows.
func (s *Store) InsertEmail(ctx context.Context, email *models.Email, state models.SendState) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO emails
		 (sender, subject, is_newsletter, recipient_count, state, created_at)
		 VALUES ($1,$2,$3,$4,$5,NOW())`,
		email.Sender,
		email.Subject,
		email.IsNewsletter,
		len(email.Recipients),
		string(state),
	)
	return err
}

// InsertRecipient persists a transient recipient, filling in its row ID.
// The address is stored in canonical form (lower-cased, punycoded domain)
// so deduplication lookups by normalized key always match the row.
func (s *Store) InsertRecipient(ctx context.Context, r *models.Recipient) error {
	r.Address = validate.Normalize(r.Address)
	return s.Pool.QueryRow(ctx,
		`INSERT INTO recipients (address, token, created_at)
		 VALUES ($1,$2,NOW())
		 RETURNING id`,
		r.Address,
		r.Token,
	).Scan(&r.ID)
}
