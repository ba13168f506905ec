package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/lib/pq"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate creates any missing tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&postgresTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

// mapError translates driver errors into the store's sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicateKey, pqErr.Message)
		case "23514", "22001": // check_violation, string_data_right_truncation
			return fmt.Errorf("%w: %s", ErrCheckViolation, pqErr.Message)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pqErr.Message)
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

const productColumns = `id, name, in_stock, description, price, weight, image`

func scanProduct(row rowScanner) (*product.Product, error) {
	var (
		p           product.Product
		description sql.NullString
		weight      sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.InStock, &description, &p.Price, &weight, &p.Image); err != nil {
		return nil, err
	}
	p.Description = stringPtr(description)
	if weight.Valid {
		w := int(weight.Int64)
		p.Weight = &w
	}
	return &p, nil
}

// CreateProduct inserts p. An explicit id is inserted as given and the id
// sequence is moved past it.
func (s *PostgresStore) CreateProduct(ctx context.Context, p *product.Product) error {
	var weight sql.NullInt64
	if p.Weight != nil {
		weight = sql.NullInt64{Int64: int64(*p.Weight), Valid: true}
	}
	description := nullString(p.Description)

	if p.ID == 0 {
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO products (name, in_stock, description, price, weight, image)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id`,
			p.Name, p.InStock, description, p.Price, weight, p.Image,
		).Scan(&p.ID)
		return productError(err, p.ID)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, in_stock, description, price, weight, image)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.InStock, description, p.Price, weight, p.Image,
	)
	if err != nil {
		return productError(err, p.ID)
	}
	_, err = s.db.ExecContext(ctx,
		`SELECT setval(pg_get_serial_sequence('products', 'id'), (SELECT MAX(id) FROM products))`,
	)
	return err
}

func productError(err error, id int64) error {
	err = mapError(err)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateKey):
		return fmt.Errorf("%w: id %d", product.ErrDuplicateProduct, id)
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %d", product.ErrProductNotFound, id)
	case errors.Is(err, ErrForeignKeyViolation):
		return product.ErrProductInUse
	}
	return err
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]product.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []product.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, productError(err, id)
	}
	return p, nil
}

func (s *PostgresStore) DeleteProducts(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products`)
	return productError(err, 0)
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	p, err := scanProduct(t.tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

const orderColumns = `id, line_item_id, email, credit_card_id, shipping_information_id, transaction_id, paid, status, version`

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o                        order.Order
		email, transactionID     sql.NullString
		creditCardID, shippingID sql.NullInt64
		status                   string
	)
	if err := row.Scan(&o.ID, &o.LineItemID, &email, &creditCardID, &shippingID, &transactionID, &o.Paid, &status, &o.Version); err != nil {
		return nil, mapError(err)
	}
	o.Email = stringPtr(email)
	o.TransactionID = stringPtr(transactionID)
	o.CreditCardID = int64Ptr(creditCardID)
	o.ShippingInformationID = int64Ptr(shippingID)
	o.Status = order.Status(status)
	return &o, nil
}

func (t *postgresTx) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	return scanOrder(t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (t *postgresTx) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	return scanOrder(t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func (t *postgresTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO orders (line_item_id, email, credit_card_id, shipping_information_id, transaction_id, paid, status, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		 RETURNING id`,
		o.LineItemID, nullString(o.Email), nullInt64(o.CreditCardID), nullInt64(o.ShippingInformationID),
		nullString(o.TransactionID), o.Paid, string(o.Status),
	).Scan(&o.ID)
	if err != nil {
		return mapError(err)
	}
	o.Version = 1
	return nil
}

func (t *postgresTx) UpdateOrder(ctx context.Context, o *order.Order) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders
		 SET email = $2, credit_card_id = $3, shipping_information_id = $4, transaction_id = $5,
		     paid = $6, status = $7, version = version + 1
		 WHERE id = $1 AND version = $8`,
		o.ID, nullString(o.Email), nullInt64(o.CreditCardID), nullInt64(o.ShippingInformationID),
		nullString(o.TransactionID), o.Paid, string(o.Status), o.Version,
	)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: order %d", ErrConflict, o.ID)
	}
	o.Version++
	return nil
}

func (t *postgresTx) GetLineItem(ctx context.Context, id int64) (*order.LineItem, error) {
	var li order.LineItem
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, product_id, quantity FROM line_items WHERE id = $1`, id,
	).Scan(&li.ID, &li.ProductID, &li.Quantity)
	if err != nil {
		return nil, mapError(err)
	}
	return &li, nil
}

func (t *postgresTx) InsertLineItem(ctx context.Context, li *order.LineItem) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO line_items (product_id, quantity) VALUES ($1, $2) RETURNING id`,
		li.ProductID, li.Quantity,
	).Scan(&li.ID)
	return mapError(err)
}

func (t *postgresTx) GetShippingInformation(ctx context.Context, id int64) (*order.ShippingInformation, error) {
	var s order.ShippingInformation
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, country, address, postal_code, city, province FROM shipping_information WHERE id = $1`, id,
	).Scan(&s.ID, &s.Country, &s.Address, &s.PostalCode, &s.City, &s.Province)
	if err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

func (t *postgresTx) InsertShippingInformation(ctx context.Context, s *order.ShippingInformation) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO shipping_information (country, address, postal_code, city, province)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		s.Country, s.Address, s.PostalCode, s.City, s.Province,
	).Scan(&s.ID)
	return mapError(err)
}

func (t *postgresTx) UpdateShippingInformation(ctx context.Context, s *order.ShippingInformation) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE shipping_information
		 SET country = $2, address = $3, postal_code = $4, city = $5, province = $6
		 WHERE id = $1`,
		s.ID, s.Country, s.Address, s.PostalCode, s.City, s.Province,
	)
	return affectedOne(res, err, "shipping information", s.ID)
}

func (t *postgresTx) GetCreditCard(ctx context.Context, id int64) (*order.CreditCard, error) {
	var c order.CreditCard
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, number, expiration_year, cvv, expiration_month FROM credit_cards WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Number, &c.ExpirationYear, &c.CVV, &c.ExpirationMonth)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (t *postgresTx) InsertCreditCard(ctx context.Context, c *order.CreditCard) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO credit_cards (name, number, expiration_year, cvv, expiration_month)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		c.Name, c.Number, c.ExpirationYear, c.CVV, c.ExpirationMonth,
	).Scan(&c.ID)
	return mapError(err)
}

func (t *postgresTx) UpdateCreditCard(ctx context.Context, c *order.CreditCard) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE credit_cards
		 SET name = $2, number = $3, expiration_year = $4, cvv = $5, expiration_month = $6
		 WHERE id = $1`,
		c.ID, c.Name, c.Number, c.ExpirationYear, c.CVV, c.ExpirationMonth,
	)
	return affectedOne(res, err, "credit card", c.ID)
}

func (t *postgresTx) GetTransaction(ctx context.Context, id string) (*order.Transaction, error) {
	var tr order.Transaction
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, success, amount_charged FROM transactions WHERE id = $1`, id,
	).Scan(&tr.ID, &tr.Success, &tr.AmountCharged)
	if err != nil {
		return nil, mapError(err)
	}
	return &tr, nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, tr *order.Transaction) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO transactions (id, success, amount_charged) VALUES ($1, $2, $3)`,
		tr.ID, tr.Success, tr.AmountCharged,
	)
	return mapError(err)
}

const attemptColumns = `id, order_id, status, amount, transaction_id, error, trace_id, started_at, finished_at`

func scanAttempt(row rowScanner) (*order.SettlementAttempt, error) {
	var (
		a             order.SettlementAttempt
		status        string
		transactionID sql.NullString
		finishedAt    sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.OrderID, &status, &a.Amount, &transactionID, &a.Error, &a.TraceID, &a.StartedAt, &finishedAt); err != nil {
		return nil, mapError(err)
	}
	a.Status = order.AttemptStatus(status)
	a.TransactionID = transactionID.String
	if finishedAt.Valid {
		v := finishedAt.Time
		a.FinishedAt = &v
	}
	return &a, nil
}

func (t *postgresTx) InsertSettlementAttempt(ctx context.Context, a *order.SettlementAttempt) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO settlement_attempts (id, order_id, status, amount, transaction_id, error, trace_id, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.OrderID, string(a.Status), a.Amount, emptyAsNull(a.TransactionID), a.Error, a.TraceID,
		a.StartedAt, nullTime(a.FinishedAt),
	)
	return mapError(err)
}

func (t *postgresTx) UpdateSettlementAttempt(ctx context.Context, a *order.SettlementAttempt) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE settlement_attempts
		 SET status = $2, transaction_id = $3, error = $4, finished_at = $5
		 WHERE id = $1`,
		a.ID, string(a.Status), emptyAsNull(a.TransactionID), a.Error, nullTime(a.FinishedAt),
	)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: settlement attempt %s", ErrNotFound, a.ID)
	}
	return nil
}

func (t *postgresTx) ListSettlementAttempts(ctx context.Context, orderID int64) ([]order.SettlementAttempt, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM settlement_attempts WHERE order_id = $1 ORDER BY seq`, orderID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	attempts := []order.SettlementAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func (t *postgresTx) LatestSettlementAttempt(ctx context.Context, orderID int64) (*order.SettlementAttempt, error) {
	return scanAttempt(t.tx.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM settlement_attempts WHERE order_id = $1 ORDER BY seq DESC LIMIT 1`, orderID,
	))
}

func affectedOne(res sql.Result, err error, what string, id int64) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func emptyAsNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
