package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"epn-webhook/internal/domain"
	"epn-webhook/internal/infra/metrics"
)

const defaultQueryTimeout = 5 * time.Second

// Postgres реализует хранилище событий на основе pgxpool.
type Postgres struct {
	pool         *pgxpool.Pool
	table        string
	queryTimeout time.Duration
	upsertSQL    string
}

var _ domain.EventRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД. Имя таблицы экранируется как идентификатор,
// поэтому значение из конфига безопасно подставлять в SQL.
func NewPostgres(pool *pgxpool.Pool, table string, queryTimeout time.Duration) *Postgres {
	if table == "" {
		table = "webhook_events"
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	p := &Postgres{pool: pool, table: table, queryTimeout: queryTimeout}
	p.upsertSQL = fmt.Sprintf(upsertSQLTemplate, p.ident(table))
	return p
}

func (p *Postgres) ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), p.queryTimeout)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}

const upsertSQLTemplate = `
INSERT INTO %s (partner, event_type, click_id, order_number, uniq_id, order_status, offer_name, offer_type, offer_id, type_id, sub, sub2, sub3, sub4, sub5, revenue, commission_fee, currency, ip, ipv6, user_agent_epn, click_time, time_of_order, client_ip, user_agent, raw_data)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), NULLIF($8,''), NULLIF($9,''), $10, NULLIF($11,''), NULLIF($12,''), NULLIF($13,''), NULLIF($14,''), NULLIF($15,''), $16, $17, $18, NULLIF($19,''), NULLIF($20,''), NULLIF($21,''), NULLIF($22,''), NULLIF($23,''), NULLIF($24,''), NULLIF($25,''), $26)
ON CONFLICT (partner, uniq_id, order_status) DO UPDATE SET event_type = EXCLUDED.event_type, click_id = EXCLUDED.click_id, order_number = EXCLUDED.order_number, offer_name = EXCLUDED.offer_name, offer_type = EXCLUDED.offer_type, offer_id = EXCLUDED.offer_id, type_id = EXCLUDED.type_id, sub = EXCLUDED.sub, sub2 = EXCLUDED.sub2, sub3 = EXCLUDED.sub3, sub4 = EXCLUDED.sub4, sub5 = EXCLUDED.sub5, revenue = EXCLUDED.revenue, commission_fee = EXCLUDED.commission_fee, currency = EXCLUDED.currency, ip = EXCLUDED.ip, ipv6 = EXCLUDED.ipv6, user_agent_epn = EXCLUDED.user_agent_epn, click_time = EXCLUDED.click_time, time_of_order = EXCLUDED.time_of_order, client_ip = EXCLUDED.client_ip, user_agent = EXCLUDED.user_agent, raw_data = EXCLUDED.raw_data, updated_at = now()
RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
`

// Upsert реализует domain.EventRepo. Повторная доставка с тем же ключом
// (partner, uniq_id, order_status) перезаписывает строку и обновляет updated_at.
func (p *Postgres) Upsert(ctx context.Context, ev domain.CanonicalEvent) (domain.SavedEvent, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var raw []byte
	if ev.RawPayload != nil {
		data, err := json.Marshal(ev.RawPayload)
		if err != nil {
			return domain.SavedEvent{}, fmt.Errorf("%w: marshal raw payload: %v", domain.ErrOperation, err)
		}
		raw = data
	}

	var typeID sql.NullInt64
	if ev.TypeID != nil {
		typeID = sql.NullInt64{Int64: *ev.TypeID, Valid: true}
	}

	start := time.Now()
	conn, err := p.pool.Acquire(ctx)
	metrics.ObserveNetworkRequest("postgres", "acquire", p.table, start, err)
	if err != nil {
		return domain.SavedEvent{}, fmt.Errorf("%w: acquire: %v", domain.ErrConnection, err)
	}
	defer conn.Release()

	var (
		saved    domain.SavedEvent
		inserted bool
	)
	start = time.Now()
	err = conn.QueryRow(ctx, p.upsertSQL,
		ev.Partner, ev.EventType, ev.ClickID, ev.OrderNumber, ev.UniqID, ev.OrderStatus,
		ev.OfferName, ev.OfferType, ev.OfferID, typeID,
		ev.Sub, ev.Sub2, ev.Sub3, ev.Sub4, ev.Sub5,
		ev.Revenue, ev.CommissionFee, ev.Currency,
		ev.IP, ev.IPv6, ev.PartnerUserAgent, ev.ClickTime, ev.TimeOfOrder,
		ev.ClientIP, ev.UserAgent, raw,
	).Scan(&saved.ID, &saved.CreatedAt, &saved.UpdatedAt, &inserted)
	metrics.ObserveNetworkRequest("postgres", "events_upsert", p.table, start, err)
	if err != nil {
		return domain.SavedEvent{}, classifyStoreError(err)
	}
	saved.Result = domain.UpsertUpdated
	if inserted {
		saved.Result = domain.UpsertInserted
	}
	return saved, nil
}

const createTableTemplate = `
CREATE TABLE IF NOT EXISTS %s (
    id BIGSERIAL PRIMARY KEY,
    partner VARCHAR(50) NOT NULL DEFAULT 'epn_bz',
    event_type VARCHAR(100) NOT NULL,
    click_id VARCHAR(255) NOT NULL,
    order_number VARCHAR(255) NOT NULL,
    uniq_id VARCHAR(255) NOT NULL,
    order_status VARCHAR(50) NOT NULL,
    offer_name VARCHAR(500),
    offer_type VARCHAR(100),
    offer_id VARCHAR(255),
    type_id INTEGER,
    sub VARCHAR(255),
    sub2 VARCHAR(255),
    sub3 VARCHAR(255),
    sub4 VARCHAR(255),
    sub5 VARCHAR(255),
    revenue NUMERIC(15,2) NOT NULL DEFAULT 0,
    commission_fee NUMERIC(15,2) NOT NULL DEFAULT 0,
    currency VARCHAR(10) NOT NULL DEFAULT 'RUB',
    ip VARCHAR(45),
    ipv6 VARCHAR(45),
    user_agent_epn TEXT,
    click_time VARCHAR(50),
    time_of_order VARCHAR(50),
    client_ip VARCHAR(45),
    user_agent TEXT,
    raw_data JSONB,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

// InitSchema создаёт таблицу событий и индексы. Повторный запуск безопасен:
// все выражения с IF NOT EXISTS, гонка параллельных созданий распознаётся
// по кодам SQLSTATE 42P07/42710, а не по тексту ошибки.
func (p *Postgres) InitSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	table := p.ident(p.table)
	stmts := []string{
		fmt.Sprintf(createTableTemplate, table),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (partner, uniq_id, order_status)", p.ident(p.table+"_partner_uniq_status"), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (partner, order_status)", p.ident(p.table+"_partner_status"), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (click_id)", p.ident(p.table+"_click_id"), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (order_number)", p.ident(p.table+"_order_number"), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (uniq_id)", p.ident(p.table+"_uniq_id"), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (event_type)", p.ident(p.table+"_event_type"), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (processed_at)", p.ident(p.table+"_processed_at"), table),
	}
	for _, stmt := range stmts {
		start := time.Now()
		_, err := p.pool.Exec(ctx, stmt)
		if err != nil && isDuplicateObject(err) {
			err = nil
		}
		metrics.ObserveNetworkRequest("postgres", "schema_init", p.table, start, err)
		if err != nil {
			return classifyStoreError(err)
		}
	}
	return nil
}

// isDuplicateObject распознаёт гонку создания таблицы или индекса.
// 42P07 - relation already exists, 42710 - duplicate object.
func isDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "42P07" || pgErr.Code == "42710")
}

// classifyStoreError переводит ошибку БД в доменную классификацию:
// ErrConnection - временная недоступность, ErrDuplicate - запись уже есть,
// ErrOperation - прочие ошибки выполнения.
func classifyStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %s", domain.ErrDuplicate, pgErr.ConstraintName)
		case strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%w: sqlstate %s", domain.ErrConnection, pgErr.Code)
		case pgErr.Code == "57014" || strings.HasPrefix(pgErr.Code, "57P"):
			return fmt.Errorf("%w: sqlstate %s", domain.ErrConnection, pgErr.Code)
		default:
			return fmt.Errorf("%w: sqlstate %s: %s", domain.ErrOperation, pgErr.Code, pgErr.Message)
		}
	}
	// без ответа сервера (обрыв соединения, отказ в подключении) считаем
	// хранилище недоступным
	return fmt.Errorf("%w: %v", domain.ErrConnection, err)
}
