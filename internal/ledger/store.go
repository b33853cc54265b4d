package ledger

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed Ledger. Balances live in an accounts table keyed
// by (owner, asset); every movement is appended to a transfers table so the
// history can be audited after the fact.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies pending
// migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time; a second connection would just
	// return SQLITE_BUSY under concurrent settlement traffic.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Debit(account, asset string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRow(
		"SELECT balance FROM accounts WHERE owner = ? AND asset = ?",
		account, asset,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return ErrInsufficientBalance
	}
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientBalance
	}

	_, err = tx.Exec(
		"UPDATE accounts SET balance = balance - ?, updated_at = ? WHERE owner = ? AND asset = ?",
		amount, time.Now(), account, asset,
	)
	if err != nil {
		return err
	}
	if err := recordTransfer(tx, account, "", asset, amount); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Credit(account, asset string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO accounts (owner, asset, balance, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, asset) DO UPDATE SET balance = balance + ?, updated_at = ?`,
		account, asset, amount, time.Now(), amount, time.Now(),
	)
	if err != nil {
		return err
	}
	if err := recordTransfer(tx, "", account, asset, amount); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Balance(account, asset string) (int64, error) {
	var balance int64
	err := s.db.QueryRow(
		"SELECT balance FROM accounts WHERE owner = ? AND asset = ?",
		account, asset,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func recordTransfer(tx *sql.Tx, from, to, asset string, amount int64) error {
	_, err := tx.Exec(
		"INSERT INTO transfers (from_owner, to_owner, asset, amount, created_at) VALUES (?, ?, ?, ?, ?)",
		from, to, asset, amount, time.Now(),
	)
	return err
}

// TransferRecord is one row of the transfers history. An empty FromOwner
// means a credit from outside the ledger (deposit); an empty ToOwner a debit
// to outside (withdrawal or escrow burn).
type TransferRecord struct {
	ID        int64
	FromOwner string
	ToOwner   string
	Asset     string
	Amount    int64
	CreatedAt time.Time
}

// TransferHistory returns the most recent transfers touching an account.
func (s *Store) TransferHistory(account string, limit int) ([]*TransferRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, from_owner, to_owner, asset, amount, created_at FROM transfers
		WHERE from_owner = ? OR to_owner = ?
		ORDER BY id DESC LIMIT ?`,
		account, account, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*TransferRecord
	for rows.Next() {
		rec := &TransferRecord{}
		if err := rows.Scan(&rec.ID, &rec.FromOwner, &rec.ToOwner, &rec.Asset, &rec.Amount, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
