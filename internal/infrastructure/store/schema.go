package store

// schema creates the tables backing PostgresStore. The CHECK constraints are
// mirrored by checks.go for the memory store.
const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL,
	in_stock    BOOLEAN NOT NULL DEFAULT TRUE,
	description TEXT,
	price       NUMERIC(5, 2) NOT NULL CHECK (price > 0),
	weight      INTEGER CHECK (weight > 0),
	image       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS line_items (
	id         BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products (id),
	quantity   INTEGER NOT NULL CHECK (quantity > 0)
);

CREATE TABLE IF NOT EXISTS shipping_information (
	id          BIGSERIAL PRIMARY KEY,
	country     TEXT NOT NULL,
	address     TEXT NOT NULL,
	postal_code TEXT NOT NULL,
	city        TEXT NOT NULL,
	province    VARCHAR(2) NOT NULL
);

CREATE TABLE IF NOT EXISTS credit_cards (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	number           VARCHAR(16) NOT NULL CHECK (number ~ '^[0-9]{13,16}$'),
	expiration_year  INTEGER NOT NULL CHECK (expiration_year BETWEEN 1000 AND 9999),
	cvv              VARCHAR(3) NOT NULL CHECK (cvv ~ '^[0-9]{3}$'),
	expiration_month INTEGER NOT NULL CHECK (expiration_month BETWEEN 1 AND 12)
);

CREATE TABLE IF NOT EXISTS transactions (
	id             VARCHAR(32) PRIMARY KEY CHECK (id <> ''),
	success        BOOLEAN NOT NULL,
	amount_charged NUMERIC(12, 2) NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id                      BIGSERIAL PRIMARY KEY,
	line_item_id            BIGINT NOT NULL UNIQUE REFERENCES line_items (id),
	email                   TEXT,
	credit_card_id          BIGINT REFERENCES credit_cards (id),
	shipping_information_id BIGINT REFERENCES shipping_information (id),
	transaction_id          VARCHAR(32) UNIQUE REFERENCES transactions (id),
	paid                    BOOLEAN NOT NULL DEFAULT FALSE,
	status                  TEXT NOT NULL DEFAULT 'created',
	version                 INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS settlement_attempts (
	id             UUID PRIMARY KEY,
	seq            BIGSERIAL,
	order_id       BIGINT NOT NULL REFERENCES orders (id),
	status         TEXT NOT NULL,
	amount         NUMERIC(12, 2) NOT NULL,
	transaction_id VARCHAR(32),
	error          TEXT NOT NULL DEFAULT '',
	trace_id       TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_settlement_attempts_order ON settlement_attempts (order_id, seq);
`
