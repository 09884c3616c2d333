package routestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portcall/gateway/internal/route"
)

// Postgres is a pgx-backed Store. It follows the same connection-pool-
// wrapper shape as the teacher corpus's go.gearno.de/kit/pg.Client (a
// functional-options constructor over pgxpool.Pool), trimmed of the
// OpenTelemetry tracing and Prometheus pool-stats collection that package
// carries — this repository is an explicit non-core collaborator (§1),
// so the dependency is pgx itself, not the tracing apparatus built on it.
type Postgres struct {
	pool *pgxpool.Pool
}

// Option configures a Postgres store during construction.
type Option func(*pgxConfig)

type pgxConfig struct {
	poolMaxConns int32
}

// WithMaxConns bounds the connection pool size.
func WithMaxConns(n int32) Option {
	return func(c *pgxConfig) { c.poolMaxConns = n }
}

// NewPostgres connects to dsn and ensures the backing table exists.
func NewPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	cfg := pgxConfig{poolMaxConns: 10}
	for _, o := range opts {
		o(&cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("routestore: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.poolMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("routestore: connect: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS gateway_routes (
	id          BIGSERIAL PRIMARY KEY,
	prefix      TEXT NOT NULL,
	target_url  TEXT NOT NULL,
	rate_limit  INTEGER NOT NULL DEFAULT 60,
	url_rewrite JSONB NOT NULL DEFAULT '[]',
	active      BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE UNIQUE INDEX IF NOT EXISTS gateway_routes_active_prefix_idx
	ON gateway_routes (prefix) WHERE active;
`
	_, err := p.pool.Exec(ctx, ddl)
	return err
}

func (p *Postgres) LoadActive(ctx context.Context) ([]route.Config, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, prefix, target_url, rate_limit, url_rewrite, active
		FROM gateway_routes WHERE active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []route.Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) ReplaceActive(ctx context.Context, configs []route.Config) ([]route.Config, error) {
	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		if seen[c.Prefix] {
			return nil, ErrDuplicatePrefix
		}
		seen[c.Prefix] = true
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	prefixes := make([]string, 0, len(configs))
	for _, c := range configs {
		prefixes = append(prefixes, c.Prefix)
	}

	// Deactivate active rows dropped from the new set.
	if _, err := tx.Exec(ctx,
		`UPDATE gateway_routes SET active = FALSE WHERE active AND NOT (prefix = ANY($1))`,
		prefixes,
	); err != nil {
		return nil, err
	}

	out := make([]route.Config, 0, len(configs))
	for _, c := range configs {
		rewrite, err := json.Marshal(c.URLRewrite)
		if err != nil {
			return nil, err
		}

		var id int64
		err = tx.QueryRow(ctx, `
			INSERT INTO gateway_routes (prefix, target_url, rate_limit, url_rewrite, active)
			VALUES ($1, $2, $3, $4, TRUE)
			ON CONFLICT (prefix) WHERE active
			DO UPDATE SET target_url = $2, rate_limit = $3, url_rewrite = $4
			RETURNING id`,
			c.Prefix, c.TargetURL, c.RateLimit, rewrite,
		).Scan(&id)
		if err != nil {
			return nil, err
		}

		c.ID = id
		c.Active = true
		out = append(out, c)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) SoftDelete(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE gateway_routes SET active = FALSE WHERE id = $1 AND active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Close() { p.pool.Close() }

func scanConfig(rows pgx.Rows) (route.Config, error) {
	var (
		c           route.Config
		rewriteJSON []byte
	)
	if err := rows.Scan(&c.ID, &c.Prefix, &c.TargetURL, &c.RateLimit, &rewriteJSON, &c.Active); err != nil {
		return route.Config{}, err
	}
	if len(rewriteJSON) > 0 {
		if err := json.Unmarshal(rewriteJSON, &c.URLRewrite); err != nil {
			return route.Config{}, fmt.Errorf("routestore: decode url_rewrite for %s: %w", c.Prefix, err)
		}
	}
	return c, nil
}
