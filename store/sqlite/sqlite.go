/*
Package sqlite provides the SQLite-backed implementation of the loyalty
storage interfaces.

PURPOSE:
  Implements loyalty.Store and loyalty.TxStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  wallets:                  One balance row per account
  balance_changes:          Immutable ledger of every balance mutation
  discounts (+scoping):     Catalog definitions
  combination_rules:        Unordered pair -> result mapping
  user_discounts:           Owned (un-activated) grants
  user_discounts_activated: Activated grants
  user_discounts_history:   Append-only archive of removed grants
  orders:                   Transient settlement queue
  config:                   Named settings (settlement cursor, rate)
  accounts/products/categories: projections kept by the external sync

APPEND-ONLY ENFORCEMENT:
  balance_changes and user_discounts_history have no UPDATE or DELETE
  statements anywhere in this package.

CONCURRENCY:
  SQLite is opened in WAL mode; a store-level mutex serializes WithTx
  so one request's balance check and debit commit before the next
  request reads. Two concurrent purchases can never both observe the
  same stale balance.

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - loyalty/store.go: Interface definitions
  - loyalty/engine.go: Multi-step flows built on WithTx
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/prism/loyalty-engine/loyalty"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements loyalty.Store against either a live connection or
// an open transaction.
type queries struct {
	q dbtx
}

// Store implements loyalty.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps transactions serialized and avoids
	// SQLITE_BUSY under concurrent request load.
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		blocked BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS wallets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL UNIQUE,
		balance INTEGER NOT NULL DEFAULT 0
	);

	-- Append-only ledger. No UPDATE, no DELETE.
	CREATE TABLE IF NOT EXISTS balance_changes (
		id TEXT PRIMARY KEY,
		account_id INTEGER NOT NULL,
		wallet_id INTEGER NOT NULL,
		delta INTEGER NOT NULL,
		current_balance INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_balance_changes_account
		ON balance_changes(account_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS discounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		percent INTEGER NOT NULL DEFAULT 0,
		cost INTEGER NOT NULL DEFAULT 0,
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		start_at TEXT NOT NULL,
		end_at TEXT
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS discount_products (
		discount_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		PRIMARY KEY (discount_id, product_id)
	);

	CREATE TABLE IF NOT EXISTS discount_categories (
		discount_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL,
		PRIMARY KEY (discount_id, category_id)
	);

	CREATE TABLE IF NOT EXISTS combination_rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		result_id INTEGER NOT NULL,
		first_id INTEGER NOT NULL,
		second_id INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rules_pair
		ON combination_rules(first_id, second_id);

	CREATE TABLE IF NOT EXISTS user_discounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		discount_id INTEGER NOT NULL,
		granted_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_discounts_account
		ON user_discounts(account_id, discount_id);

	CREATE TABLE IF NOT EXISTS user_discounts_activated (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		discount_id INTEGER NOT NULL,
		activated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_discounts_activated_account
		ON user_discounts_activated(account_id);

	-- Append-only archive. The grant keeps its original id here.
	CREATE TABLE IF NOT EXISTS user_discounts_history (
		grant_id INTEGER NOT NULL,
		account_id INTEGER NOT NULL,
		discount_id INTEGER NOT NULL,
		granted_at TEXT NOT NULL,
		removed_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_account
		ON user_discounts_history(account_id);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		placed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS config (
		name TEXT PRIMARY KEY,
		value_string TEXT,
		value_date TEXT,
		value_int INTEGER,
		value_float REAL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn inside one database transaction. Serialized by
// the store mutex: at most one transaction is in flight at a time.
func (s *Store) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

var (
	_ loyalty.TxStore = (*Store)(nil)
	_ loyalty.Store   = (*queries)(nil)
)

// =============================================================================
// TIME ENCODING
// =============================================================================

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// =============================================================================
// WALLETS & LEDGER
// =============================================================================

func (q *queries) CreateWallet(ctx context.Context, accountID loyalty.AccountID) (loyalty.Wallet, error) {
	res, err := q.q.ExecContext(ctx,
		"INSERT INTO wallets (account_id, balance) VALUES (?, 0)", accountID)
	if err != nil {
		if isUniqueConstraintError(err) {
			return loyalty.Wallet{}, loyalty.ErrAlreadyExists
		}
		return loyalty.Wallet{}, fmt.Errorf("failed to create wallet: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return loyalty.Wallet{}, err
	}
	return loyalty.Wallet{ID: id, AccountID: accountID, Balance: 0}, nil
}

func (q *queries) GetWallet(ctx context.Context, accountID loyalty.AccountID) (loyalty.Wallet, error) {
	var w loyalty.Wallet
	err := q.q.QueryRowContext(ctx,
		"SELECT id, account_id, balance FROM wallets WHERE account_id = ?", accountID,
	).Scan(&w.ID, &w.AccountID, &w.Balance)
	if err == sql.ErrNoRows {
		return loyalty.Wallet{}, loyalty.ErrNotFound
	}
	if err != nil {
		return loyalty.Wallet{}, fmt.Errorf("failed to get wallet: %w", err)
	}
	return w, nil
}

func (q *queries) SetWalletBalance(ctx context.Context, walletID int64, balance int) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE wallets SET balance = ? WHERE id = ?", balance, walletID)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrNotFound
	}
	return nil
}

func (q *queries) AppendChange(ctx context.Context, c loyalty.BalanceChange) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO balance_changes (id, account_id, wallet_id, delta, current_balance, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AccountID, c.WalletID, c.Delta, c.CurrentBalance, c.Reason, encodeTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append balance change: %w", err)
	}
	return nil
}

const changeColumns = "id, account_id, wallet_id, delta, current_balance, reason, created_at"

func (q *queries) Changes(ctx context.Context, accountID loyalty.AccountID) ([]loyalty.BalanceChange, error) {
	return q.queryChanges(ctx,
		"SELECT "+changeColumns+" FROM balance_changes WHERE account_id = ? ORDER BY created_at DESC, id DESC", accountID)
}

func (q *queries) AllChanges(ctx context.Context) ([]loyalty.BalanceChange, error) {
	return q.queryChanges(ctx,
		"SELECT "+changeColumns+" FROM balance_changes ORDER BY created_at DESC, id DESC")
}

func (q *queries) queryChanges(ctx context.Context, query string, args ...any) ([]loyalty.BalanceChange, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance changes: %w", err)
	}
	defer rows.Close()

	var changes []loyalty.BalanceChange
	for rows.Next() {
		var c loyalty.BalanceChange
		var createdAt string
		if err := rows.Scan(&c.ID, &c.AccountID, &c.WalletID, &c.Delta, &c.CurrentBalance, &c.Reason, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = decodeTime(createdAt)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// =============================================================================
// CATALOG
// =============================================================================

func (q *queries) InsertDiscount(ctx context.Context, d loyalty.Discount) (loyalty.Discount, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO discounts (name, description, is_active, percent, cost, is_primary, start_at, end_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.Description, d.Active, d.Percent, d.Cost, d.Primary,
		encodeTime(d.StartAt), nullTime(d.EndAt))
	if err != nil {
		return loyalty.Discount{}, fmt.Errorf("failed to insert discount: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return loyalty.Discount{}, err
	}
	d.ID = loyalty.DiscountID(id)

	if err := q.replaceScoping(ctx, d); err != nil {
		return loyalty.Discount{}, err
	}
	return d, nil
}

func (q *queries) UpdateDiscount(ctx context.Context, d loyalty.Discount) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE discounts
		SET name = ?, description = ?, is_active = ?, percent = ?, cost = ?, is_primary = ?, start_at = ?, end_at = ?
		WHERE id = ?`,
		d.Name, d.Description, d.Active, d.Percent, d.Cost, d.Primary,
		encodeTime(d.StartAt), nullTime(d.EndAt), d.ID)
	if err != nil {
		return fmt.Errorf("failed to update discount: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrNotFound
	}
	return q.replaceScoping(ctx, d)
}

func (q *queries) replaceScoping(ctx context.Context, d loyalty.Discount) error {
	if _, err := q.q.ExecContext(ctx, "DELETE FROM discount_products WHERE discount_id = ?", d.ID); err != nil {
		return err
	}
	if _, err := q.q.ExecContext(ctx, "DELETE FROM discount_categories WHERE discount_id = ?", d.ID); err != nil {
		return err
	}
	for _, pid := range d.ProductIDs {
		if _, err := q.q.ExecContext(ctx,
			"INSERT INTO discount_products (discount_id, product_id) VALUES (?, ?)", d.ID, pid); err != nil {
			return err
		}
	}
	for _, cid := range d.CategoryIDs {
		if _, err := q.q.ExecContext(ctx,
			"INSERT INTO discount_categories (discount_id, category_id) VALUES (?, ?)", d.ID, cid); err != nil {
			return err
		}
	}
	return nil
}

const discountColumns = "id, name, description, is_active, percent, cost, is_primary, start_at, end_at"

func (q *queries) GetDiscount(ctx context.Context, id loyalty.DiscountID) (loyalty.Discount, error) {
	row := q.q.QueryRowContext(ctx,
		"SELECT "+discountColumns+" FROM discounts WHERE id = ?", id)
	d, err := scanDiscount(row)
	if err == sql.ErrNoRows {
		return loyalty.Discount{}, loyalty.ErrNotFound
	}
	if err != nil {
		return loyalty.Discount{}, fmt.Errorf("failed to get discount: %w", err)
	}
	if err := q.loadScoping(ctx, &d); err != nil {
		return loyalty.Discount{}, err
	}
	return d, nil
}

func (q *queries) ListDiscounts(ctx context.Context) ([]loyalty.Discount, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT "+discountColumns+" FROM discounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list discounts: %w", err)
	}
	defer rows.Close()

	var discounts []loyalty.Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, err
		}
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Scoping is loaded after the cursor closes: sqlite with a single
	// connection cannot run nested queries over an open result set.
	for i := range discounts {
		if err := q.loadScoping(ctx, &discounts[i]); err != nil {
			return nil, err
		}
	}
	return discounts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiscount(r rowScanner) (loyalty.Discount, error) {
	var d loyalty.Discount
	var startAt string
	var endAt sql.NullString
	err := r.Scan(&d.ID, &d.Name, &d.Description, &d.Active, &d.Percent, &d.Cost, &d.Primary, &startAt, &endAt)
	if err != nil {
		return d, err
	}
	d.StartAt = decodeTime(startAt)
	if endAt.Valid {
		t := decodeTime(endAt.String)
		d.EndAt = &t
	}
	return d, nil
}

func (q *queries) loadScoping(ctx context.Context, d *loyalty.Discount) error {
	products, err := q.queryIDs(ctx,
		"SELECT product_id FROM discount_products WHERE discount_id = ? ORDER BY product_id", d.ID)
	if err != nil {
		return err
	}
	categories, err := q.queryIDs(ctx,
		"SELECT category_id FROM discount_categories WHERE discount_id = ? ORDER BY category_id", d.ID)
	if err != nil {
		return err
	}
	d.ProductIDs = products
	d.CategoryIDs = categories
	return nil
}

func (q *queries) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *queries) DeleteDiscount(ctx context.Context, id loyalty.DiscountID) error {
	res, err := q.q.ExecContext(ctx, "DELETE FROM discounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete discount: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrNotFound
	}
	if _, err := q.q.ExecContext(ctx, "DELETE FROM discount_products WHERE discount_id = ?", id); err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, "DELETE FROM discount_categories WHERE discount_id = ?", id)
	return err
}

func (q *queries) MissingProducts(ctx context.Context, ids []int64) ([]int64, error) {
	return q.missingRefs(ctx, "products", ids)
}

func (q *queries) MissingCategories(ctx context.Context, ids []int64) ([]int64, error) {
	return q.missingRefs(ctx, "categories", ids)
}

func (q *queries) missingRefs(ctx context.Context, table string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	found, err := q.queryIDs(ctx,
		"SELECT id FROM "+table+" WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	present := make(map[int64]bool, len(found))
	for _, id := range found {
		present[id] = true
	}
	var missing []int64
	for _, id := range ids {
		if !present[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (q *queries) UpsertProduct(ctx context.Context, id int64, name string) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO products (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, id, name)
	return err
}

func (q *queries) UpsertCategory(ctx context.Context, id int64, name string) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO categories (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, id, name)
	return err
}

// =============================================================================
// COMBINATION RULES
// =============================================================================

func (q *queries) InsertRule(ctx context.Context, r loyalty.CombinationRule) (loyalty.CombinationRule, error) {
	res, err := q.q.ExecContext(ctx,
		"INSERT INTO combination_rules (result_id, first_id, second_id) VALUES (?, ?, ?)",
		r.ResultID, r.FirstID, r.SecondID)
	if err != nil {
		return loyalty.CombinationRule{}, fmt.Errorf("failed to insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return loyalty.CombinationRule{}, err
	}
	r.ID = loyalty.RuleID(id)
	return r, nil
}

func (q *queries) UpdateRule(ctx context.Context, r loyalty.CombinationRule) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE combination_rules SET result_id = ?, first_id = ?, second_id = ? WHERE id = ?",
		r.ResultID, r.FirstID, r.SecondID, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrNotFound
	}
	return nil
}

func (q *queries) GetRule(ctx context.Context, id loyalty.RuleID) (loyalty.CombinationRule, error) {
	var r loyalty.CombinationRule
	err := q.q.QueryRowContext(ctx,
		"SELECT id, result_id, first_id, second_id FROM combination_rules WHERE id = ?", id,
	).Scan(&r.ID, &r.ResultID, &r.FirstID, &r.SecondID)
	if err == sql.ErrNoRows {
		return loyalty.CombinationRule{}, loyalty.ErrNotFound
	}
	if err != nil {
		return loyalty.CombinationRule{}, fmt.Errorf("failed to get rule: %w", err)
	}
	return r, nil
}

func (q *queries) ListRules(ctx context.Context) ([]loyalty.CombinationRule, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT id, result_id, first_id, second_id FROM combination_rules ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []loyalty.CombinationRule
	for rows.Next() {
		var r loyalty.CombinationRule
		if err := rows.Scan(&r.ID, &r.ResultID, &r.FirstID, &r.SecondID); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (q *queries) FindRuleByPair(ctx context.Context, a, b loyalty.DiscountID) (loyalty.CombinationRule, bool, error) {
	var r loyalty.CombinationRule
	err := q.q.QueryRowContext(ctx, `
		SELECT id, result_id, first_id, second_id FROM combination_rules
		WHERE (first_id = ? AND second_id = ?) OR (first_id = ? AND second_id = ?)
		LIMIT 1`,
		a, b, b, a,
	).Scan(&r.ID, &r.ResultID, &r.FirstID, &r.SecondID)
	if err == sql.ErrNoRows {
		return loyalty.CombinationRule{}, false, nil
	}
	if err != nil {
		return loyalty.CombinationRule{}, false, fmt.Errorf("failed to find rule: %w", err)
	}
	return r, true, nil
}

// =============================================================================
// OWNERSHIP
// =============================================================================

func (q *queries) InsertOwned(ctx context.Context, accountID loyalty.AccountID, discountID loyalty.DiscountID, grantedAt time.Time) (loyalty.OwnedDiscount, error) {
	res, err := q.q.ExecContext(ctx,
		"INSERT INTO user_discounts (account_id, discount_id, granted_at) VALUES (?, ?, ?)",
		accountID, discountID, encodeTime(grantedAt))
	if err != nil {
		return loyalty.OwnedDiscount{}, fmt.Errorf("failed to insert grant: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return loyalty.OwnedDiscount{}, err
	}
	return loyalty.OwnedDiscount{
		ID:         loyalty.GrantID(id),
		AccountID:  accountID,
		DiscountID: discountID,
		GrantedAt:  grantedAt.UTC(),
	}, nil
}

func (q *queries) GetOwned(ctx context.Context, id loyalty.GrantID, accountID loyalty.AccountID) (loyalty.OwnedDiscount, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, account_id, discount_id, granted_at FROM user_discounts
		WHERE id = ? AND account_id = ?`, id, accountID)
	return scanOwned(row)
}

func (q *queries) FindOwnedByDiscount(ctx context.Context, accountID loyalty.AccountID, discountID loyalty.DiscountID, excluding loyalty.GrantID) (loyalty.OwnedDiscount, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, account_id, discount_id, granted_at FROM user_discounts
		WHERE account_id = ? AND discount_id = ? AND id != ?
		ORDER BY granted_at ASC, id ASC LIMIT 1`,
		accountID, discountID, excluding)
	return scanOwned(row)
}

func scanOwned(row *sql.Row) (loyalty.OwnedDiscount, error) {
	var o loyalty.OwnedDiscount
	var grantedAt string
	err := row.Scan(&o.ID, &o.AccountID, &o.DiscountID, &grantedAt)
	if err == sql.ErrNoRows {
		return loyalty.OwnedDiscount{}, loyalty.ErrNotFound
	}
	if err != nil {
		return loyalty.OwnedDiscount{}, fmt.Errorf("failed to scan grant: %w", err)
	}
	o.GrantedAt = decodeTime(grantedAt)
	return o, nil
}

func (q *queries) DeleteOwned(ctx context.Context, id loyalty.GrantID) error {
	res, err := q.q.ExecContext(ctx, "DELETE FROM user_discounts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrNotFound
	}
	return nil
}

func (q *queries) InsertActivated(ctx context.Context, accountID loyalty.AccountID, discountID loyalty.DiscountID, activatedAt time.Time) (loyalty.ActivatedDiscount, error) {
	res, err := q.q.ExecContext(ctx,
		"INSERT INTO user_discounts_activated (account_id, discount_id, activated_at) VALUES (?, ?, ?)",
		accountID, discountID, encodeTime(activatedAt))
	if err != nil {
		return loyalty.ActivatedDiscount{}, fmt.Errorf("failed to insert activation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return loyalty.ActivatedDiscount{}, err
	}
	return loyalty.ActivatedDiscount{
		ID:          id,
		AccountID:   accountID,
		DiscountID:  discountID,
		ActivatedAt: activatedAt.UTC(),
	}, nil
}

func (q *queries) InsertHistory(ctx context.Context, h loyalty.HistoricalDiscount) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO user_discounts_history (grant_id, account_id, discount_id, granted_at, removed_at)
		VALUES (?, ?, ?, ?, ?)`,
		h.GrantID, h.AccountID, h.DiscountID, encodeTime(h.GrantedAt), encodeTime(h.RemovedAt))
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

func (q *queries) ListOwned(ctx context.Context, accountID loyalty.AccountID) ([]loyalty.OwnedDiscount, error) {
	return q.queryOwned(ctx, `
		SELECT id, account_id, discount_id, granted_at FROM user_discounts
		WHERE account_id = ? ORDER BY granted_at ASC, id ASC`, accountID)
}

func (q *queries) ListAllOwned(ctx context.Context) ([]loyalty.OwnedDiscount, error) {
	return q.queryOwned(ctx,
		"SELECT id, account_id, discount_id, granted_at FROM user_discounts ORDER BY id")
}

func (q *queries) queryOwned(ctx context.Context, query string, args ...any) ([]loyalty.OwnedDiscount, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var grants []loyalty.OwnedDiscount
	for rows.Next() {
		var o loyalty.OwnedDiscount
		var grantedAt string
		if err := rows.Scan(&o.ID, &o.AccountID, &o.DiscountID, &grantedAt); err != nil {
			return nil, err
		}
		o.GrantedAt = decodeTime(grantedAt)
		grants = append(grants, o)
	}
	return grants, rows.Err()
}

func (q *queries) ListActivated(ctx context.Context, accountID loyalty.AccountID) ([]loyalty.ActivatedDiscount, error) {
	return q.queryActivated(ctx, `
		SELECT id, account_id, discount_id, activated_at FROM user_discounts_activated
		WHERE account_id = ? ORDER BY activated_at ASC, id ASC`, accountID)
}

func (q *queries) ListAllActivated(ctx context.Context) ([]loyalty.ActivatedDiscount, error) {
	return q.queryActivated(ctx,
		"SELECT id, account_id, discount_id, activated_at FROM user_discounts_activated ORDER BY id")
}

func (q *queries) queryActivated(ctx context.Context, query string, args ...any) ([]loyalty.ActivatedDiscount, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activations: %w", err)
	}
	defer rows.Close()

	var activations []loyalty.ActivatedDiscount
	for rows.Next() {
		var a loyalty.ActivatedDiscount
		var activatedAt string
		if err := rows.Scan(&a.ID, &a.AccountID, &a.DiscountID, &activatedAt); err != nil {
			return nil, err
		}
		a.ActivatedAt = decodeTime(activatedAt)
		activations = append(activations, a)
	}
	return activations, rows.Err()
}

func (q *queries) ListAllHistory(ctx context.Context) ([]loyalty.HistoricalDiscount, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT grant_id, account_id, discount_id, granted_at, removed_at
		FROM user_discounts_history ORDER BY removed_at ASC, grant_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []loyalty.HistoricalDiscount
	for rows.Next() {
		var h loyalty.HistoricalDiscount
		var grantedAt, removedAt string
		if err := rows.Scan(&h.GrantID, &h.AccountID, &h.DiscountID, &grantedAt, &removedAt); err != nil {
			return nil, err
		}
		h.GrantedAt = decodeTime(grantedAt)
		h.RemovedAt = decodeTime(removedAt)
		history = append(history, h)
	}
	return history, rows.Err()
}

// =============================================================================
// ORDERS
// =============================================================================

func (q *queries) InsertOrder(ctx context.Context, o loyalty.Order) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO orders (account_id, amount, placed_at) VALUES (?, ?, ?)",
		o.AccountID, o.Amount.String(), encodeTime(o.PlacedAt))
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (q *queries) ListOrders(ctx context.Context) ([]loyalty.Order, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT id, account_id, amount, placed_at FROM orders ORDER BY placed_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []loyalty.Order
	for rows.Next() {
		var o loyalty.Order
		var amount, placedAt string
		if err := rows.Scan(&o.ID, &o.AccountID, &amount, &placedAt); err != nil {
			return nil, err
		}
		o.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("bad order amount %q: %w", amount, err)
		}
		o.PlacedAt = decodeTime(placedAt)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *queries) MaxOrderDate(ctx context.Context) (time.Time, bool, error) {
	var placedAt sql.NullString
	err := q.q.QueryRowContext(ctx, "SELECT MAX(placed_at) FROM orders").Scan(&placedAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query max order date: %w", err)
	}
	if !placedAt.Valid {
		return time.Time{}, false, nil
	}
	return decodeTime(placedAt.String), true, nil
}

func (q *queries) DeleteAllOrders(ctx context.Context) error {
	_, err := q.q.ExecContext(ctx, "DELETE FROM orders")
	return err
}

// =============================================================================
// CONFIG
// =============================================================================

func (q *queries) ConfigDate(ctx context.Context, name string) (time.Time, bool, error) {
	var v sql.NullString
	err := q.q.QueryRowContext(ctx,
		"SELECT value_date FROM config WHERE name = ?", name).Scan(&v)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read config %s: %w", name, err)
	}
	if !v.Valid {
		return time.Time{}, false, nil
	}
	return decodeTime(v.String), true, nil
}

func (q *queries) SetConfigDate(ctx context.Context, name string, t time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO config (name, value_date) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value_date = excluded.value_date`,
		name, encodeTime(t))
	return err
}

func (q *queries) ConfigFloat(ctx context.Context, name string) (float64, bool, error) {
	var v sql.NullFloat64
	err := q.q.QueryRowContext(ctx,
		"SELECT value_float FROM config WHERE name = ?", name).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read config %s: %w", name, err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return v.Float64, true, nil
}

func (q *queries) SetConfigFloat(ctx context.Context, name string, v float64) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO config (name, value_float) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value_float = excluded.value_float`,
		name, v)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (q *queries) UpsertAccount(ctx context.Context, a loyalty.Account) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, is_admin, blocked) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			is_admin = excluded.is_admin,
			blocked = excluded.blocked`,
		a.ID, a.Name, a.Email, a.Admin, a.Blocked)
	return err
}

func (q *queries) GetAccount(ctx context.Context, id loyalty.AccountID) (loyalty.Account, error) {
	var a loyalty.Account
	err := q.q.QueryRowContext(ctx,
		"SELECT id, name, email, is_admin, blocked FROM accounts WHERE id = ?", id,
	).Scan(&a.ID, &a.Name, &a.Email, &a.Admin, &a.Blocked)
	if err == sql.ErrNoRows {
		return loyalty.Account{}, loyalty.ErrNotFound
	}
	if err != nil {
		return loyalty.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (q *queries) ListAccounts(ctx context.Context) ([]loyalty.Account, error) {
	rows, err := q.q.QueryContext(ctx,
		"SELECT id, name, email, is_admin, blocked FROM accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []loyalty.Account
	for rows.Next() {
		var a loyalty.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Admin, &a.Blocked); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
