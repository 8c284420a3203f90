package repository

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"crm-ai-agent/domain"
)

// SQLiteRepository stores entities in SQLite. Every statement carries the
// tenant predicate, plus the business identity when the scope has one.
type SQLiteRepository struct {
	db          *sql.DB
	uniqueEmail bool
	now         func() time.Time
}

// NewSQLiteRepository creates the schema on db.
func NewSQLiteRepository(ctx context.Context, db *sql.DB, uniqueEmail bool) (*SQLiteRepository, error) {
	r := &SQLiteRepository{db: db, uniqueEmail: uniqueEmail, now: time.Now}
	if err := r.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize repository schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) initializeSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		business_identity_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT 'GENERAL',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		search_text TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_clients_tenant ON clients(tenant_id, created_at);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		business_identity_id TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL,
		room_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'RESERVED',
		start_date TIMESTAMP NOT NULL,
		end_date TIMESTAMP,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		search_text TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_events_tenant ON events(tenant_id, start_date);

	CREATE TABLE IF NOT EXISTS quotes (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		business_identity_id TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL,
		number TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'DRAFT',
		total REAL NOT NULL DEFAULT 0,
		valid_until TIMESTAMP,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		search_text TEXT NOT NULL DEFAULT '',
		UNIQUE(tenant_id, number)
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		business_identity_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		search_text TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		business_identity_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		item_type TEXT NOT NULL DEFAULT 'PRODUCT',
		category TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		sku TEXT NOT NULL DEFAULT '',
		price REAL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		search_text TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_products_tenant ON products(tenant_id, created_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	for _, entity := range tableOrder {
		if err := r.ensureSearchText(ctx, entity); err != nil {
			return err
		}
	}
	if r.uniqueEmail {
		_, err := r.db.ExecContext(ctx, `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_email
			ON clients(tenant_id, lower(email)) WHERE email != ''`)
		return err
	}
	return nil
}

type tableSpec struct {
	name    string
	columns string
	orderBy string
}

var tableOrder = []domain.EntityType{domain.EntityClient, domain.EntityEvent, domain.EntityQuote, domain.EntityRoom, domain.EntityProduct}

var tables = map[domain.EntityType]tableSpec{
	domain.EntityClient: {
		name:    "clients",
		columns: "id, tenant_id, business_identity_id, name, email, phone, type, notes, created_at, updated_at",
		orderBy: "created_at",
	},
	domain.EntityEvent: {
		name:    "events",
		columns: "id, tenant_id, business_identity_id, client_id, room_id, title, status, start_date, end_date, notes, created_at, updated_at",
		orderBy: "start_date",
	},
	domain.EntityQuote: {
		name:    "quotes",
		columns: "id, tenant_id, business_identity_id, client_id, number, status, total, valid_until, notes, created_at, updated_at",
		orderBy: "created_at",
	},
	domain.EntityRoom: {
		name:    "rooms",
		columns: "id, tenant_id, business_identity_id, name, capacity, created_at",
		orderBy: "created_at",
	},
	domain.EntityProduct: {
		name:    "products",
		columns: "id, tenant_id, business_identity_id, name, item_type, category, description, unit, sku, price, is_active, created_at, updated_at",
		orderBy: "created_at",
	},
}

func specFor(entity domain.EntityType) (tableSpec, error) {
	spec, ok := tables[entity]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: unsupported entity %q", errUnsupportedEntity, entity)
	}
	return spec, nil
}

// scopeClause renders the tenant predicate.
func scopeClause(scope domain.Scope) (string, []any) {
	if scope.BusinessIdentityID != "" {
		return "tenant_id = ? AND business_identity_id = ?", []any{scope.TenantID, scope.BusinessIdentityID}
	}
	return "tenant_id = ?", []any{scope.TenantID}
}

// searchText is the folded text the substring search matches against.
func searchText(rec domain.Record) string {
	return domain.Fold(strings.Join(searchableFields(rec), "\n"))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches text anywhere, with LIKE wildcards in it taken literally.
func likePattern(text string) string {
	return "%" + likeEscaper.Replace(domain.Fold(text)) + "%"
}

// ensureSearchText adds and backfills search_text on tables created before
// the column existed.
func (r *SQLiteRepository) ensureSearchText(ctx context.Context, entity domain.EntityType) error {
	spec := tables[entity]
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = 'search_text'", spec.name).Scan(&n)
	if err != nil || n > 0 {
		return err
	}
	if _, err := r.db.ExecContext(ctx, "ALTER TABLE "+spec.name+" ADD COLUMN search_text TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("add search_text to %s: %w", spec.name, err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT "+spec.columns+" FROM "+spec.name)
	if err != nil {
		return err
	}
	var recs []domain.Record
	for rows.Next() {
		rec, err := scanRecord(entity, rows)
		if err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, rec := range recs {
		if _, err := r.db.ExecContext(ctx, "UPDATE "+spec.name+" SET search_text = ? WHERE id = ?", searchText(rec), rec.RecordID()); err != nil {
			return fmt.Errorf("backfill %s: %w", spec.name, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(entity domain.EntityType, row rowScanner) (domain.Record, error) {
	switch entity {
	case domain.EntityClient:
		var c domain.Client
		err := row.Scan(&c.ID, &c.TenantID, &c.BusinessIdentityID, &c.Name, &c.Email, &c.Phone, &c.Type, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
		return &c, err
	case domain.EntityEvent:
		var (
			e   domain.Event
			end sql.NullTime
		)
		err := row.Scan(&e.ID, &e.TenantID, &e.BusinessIdentityID, &e.ClientID, &e.RoomID, &e.Title, &e.Status, &e.StartDate, &end, &e.Notes, &e.CreatedAt, &e.UpdatedAt)
		if end.Valid {
			e.EndDate = &end.Time
		}
		return &e, err
	case domain.EntityQuote:
		var (
			q     domain.Quote
			valid sql.NullTime
		)
		err := row.Scan(&q.ID, &q.TenantID, &q.BusinessIdentityID, &q.ClientID, &q.Number, &q.Status, &q.Total, &valid, &q.Notes, &q.CreatedAt, &q.UpdatedAt)
		if valid.Valid {
			q.ValidUntil = &valid.Time
		}
		return &q, err
	case domain.EntityRoom:
		var rm domain.Room
		err := row.Scan(&rm.ID, &rm.TenantID, &rm.BusinessIdentityID, &rm.Name, &rm.Capacity, &rm.CreatedAt)
		return &rm, err
	case domain.EntityProduct:
		var (
			p     domain.Product
			price sql.NullFloat64
		)
		err := row.Scan(&p.ID, &p.TenantID, &p.BusinessIdentityID, &p.Name, &p.ItemType, &p.Category, &p.Description, &p.Unit, &p.SKU, &price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
		if price.Valid {
			p.Price = &price.Float64
		}
		return &p, err
	}
	return nil, fmt.Errorf("%w: unsupported entity %q", errUnsupportedEntity, entity)
}

func (r *SQLiteRepository) Count(ctx context.Context, scope domain.Scope, entity domain.EntityType) (int, error) {
	if scope.TenantID == "" {
		return 0, domain.ErrMissingTenant
	}
	spec, err := specFor(entity)
	if err != nil {
		return 0, err
	}
	where, args := scopeClause(scope)

	var n int
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+spec.name+" WHERE "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", spec.name, err)
	}
	return n, nil
}

func (r *SQLiteRepository) List(ctx context.Context, scope domain.Scope, q domain.ListQuery) ([]domain.Record, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	spec, err := specFor(q.Entity)
	if err != nil {
		return nil, err
	}
	where, args := scopeClause(scope)

	if text := strings.TrimSpace(q.Text); text != "" {
		where += ` AND search_text LIKE ? ESCAPE '\'`
		args = append(args, likePattern(text))
	}

	orderBy := spec.orderBy
	if q.ByCreation {
		orderBy = "created_at"
	}
	dir := "DESC"
	if q.Order == domain.OldestFirst {
		dir = "ASC"
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s %s, id %s", spec.columns, spec.name, where, orderBy, dir, dir)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", spec.name, err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecord(q.Entity, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.name, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Get(ctx context.Context, scope domain.Scope, entity domain.EntityType, id string) (domain.Record, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	spec, err := specFor(entity)
	if err != nil {
		return nil, err
	}
	where, args := scopeClause(scope)
	args = append([]any{id}, args...)

	row := r.db.QueryRowContext(ctx, "SELECT "+spec.columns+" FROM "+spec.name+" WHERE id = ? AND "+where, args...)
	rec, err := scanRecord(entity, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", spec.name, id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) LatestQuoteNumber(ctx context.Context, scope domain.Scope, prefix string) (string, error) {
	if scope.TenantID == "" {
		return "", domain.ErrMissingTenant
	}
	var number string
	err := r.db.QueryRowContext(ctx, `
		SELECT number FROM quotes
		WHERE tenant_id = ? AND substr(number, 1, ?) = ?
		ORDER BY length(number) DESC, number DESC
		LIMIT 1
	`, scope.TenantID, len(prefix), prefix).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest quote number: %w", err)
	}
	return number, nil
}

// writeErr maps constraint violations to domain.ErrDuplicate.
func writeErr(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w", op, domain.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *SQLiteRepository) CreateClient(ctx context.Context, scope domain.Scope, in domain.ClientInput) (*domain.Client, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	now := r.now().UTC()
	c := &domain.Client{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		Name:               in.Name,
		Email:              in.Email,
		Phone:              in.Phone,
		Type:               cmp.Or(in.Type, "GENERAL"),
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, tenant_id, business_identity_id, name, email, phone, type, notes, created_at, updated_at, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.BusinessIdentityID, c.Name, c.Email, c.Phone, c.Type, c.Notes, c.CreatedAt, c.UpdatedAt, searchText(c))
	if err != nil {
		return nil, writeErr("create client", err)
	}
	return c, nil
}

func (r *SQLiteRepository) UpdateClient(ctx context.Context, scope domain.Scope, id string, p domain.ClientPatch) (*domain.Client, error) {
	rec, err := r.Get(ctx, scope, domain.EntityClient, id)
	if err != nil {
		return nil, err
	}
	c := rec.(*domain.Client)
	setIf(&c.Name, p.Name)
	setIf(&c.Email, p.Email)
	setIf(&c.Phone, p.Phone)
	setIf(&c.Type, p.Type)
	setIf(&c.Notes, p.Notes)
	c.UpdatedAt = r.now().UTC()

	where, args := scopeClause(scope)
	args = append([]any{c.Name, c.Email, c.Phone, c.Type, c.Notes, c.UpdatedAt, searchText(c), id}, args...)
	_, err = r.db.ExecContext(ctx, `
		UPDATE clients SET name = ?, email = ?, phone = ?, type = ?, notes = ?, updated_at = ?, search_text = ?
		WHERE id = ? AND `+where, args...)
	if err != nil {
		return nil, writeErr("update client", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateEvent(ctx context.Context, scope domain.Scope, in domain.EventInput) (*domain.Event, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	now := r.now().UTC()
	e := &domain.Event{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		ClientID:           in.ClientID,
		RoomID:             in.RoomID,
		Title:              in.Title,
		Status:             cmp.Or(in.Status, "RESERVED"),
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, tenant_id, business_identity_id, client_id, room_id, title, status, start_date, end_date, notes, created_at, updated_at, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.BusinessIdentityID, e.ClientID, e.RoomID, e.Title, e.Status, e.StartDate.UTC(), nullTime(e.EndDate), e.Notes, e.CreatedAt, e.UpdatedAt, searchText(e))
	if err != nil {
		return nil, writeErr("create event", err)
	}
	return e, nil
}

func (r *SQLiteRepository) UpdateEvent(ctx context.Context, scope domain.Scope, id string, p domain.EventPatch) (*domain.Event, error) {
	rec, err := r.Get(ctx, scope, domain.EntityEvent, id)
	if err != nil {
		return nil, err
	}
	e := rec.(*domain.Event)
	setIf(&e.ClientID, p.ClientID)
	setIf(&e.Title, p.Title)
	setIf(&e.RoomID, p.RoomID)
	setIf(&e.Status, p.Status)
	setIf(&e.Notes, p.Notes)
	if p.StartDate != nil {
		e.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		end := *p.EndDate
		e.EndDate = &end
	}
	e.UpdatedAt = r.now().UTC()

	where, args := scopeClause(scope)
	args = append([]any{e.ClientID, e.RoomID, e.Title, e.Status, e.StartDate.UTC(), nullTime(e.EndDate), e.Notes, e.UpdatedAt, searchText(e), id}, args...)
	_, err = r.db.ExecContext(ctx, `
		UPDATE events SET client_id = ?, room_id = ?, title = ?, status = ?, start_date = ?, end_date = ?, notes = ?, updated_at = ?, search_text = ?
		WHERE id = ? AND `+where, args...)
	if err != nil {
		return nil, writeErr("update event", err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateQuote(ctx context.Context, scope domain.Scope, in domain.QuoteInput) (*domain.Quote, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	now := r.now().UTC()
	q := &domain.Quote{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		ClientID:           in.ClientID,
		Number:             in.Number,
		Status:             cmp.Or(in.Status, "DRAFT"),
		Total:              in.Total,
		ValidUntil:         in.ValidUntil,
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotes (id, tenant_id, business_identity_id, client_id, number, status, total, valid_until, notes, created_at, updated_at, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.TenantID, q.BusinessIdentityID, q.ClientID, q.Number, q.Status, q.Total, nullTime(q.ValidUntil), q.Notes, q.CreatedAt, q.UpdatedAt, searchText(q))
	if err != nil {
		return nil, writeErr("create quote", err)
	}
	return q, nil
}

func (r *SQLiteRepository) UpdateQuote(ctx context.Context, scope domain.Scope, id string, p domain.QuotePatch) (*domain.Quote, error) {
	rec, err := r.Get(ctx, scope, domain.EntityQuote, id)
	if err != nil {
		return nil, err
	}
	q := rec.(*domain.Quote)
	setIf(&q.ClientID, p.ClientID)
	setIf(&q.Status, p.Status)
	setIf(&q.Notes, p.Notes)
	if p.Total != nil {
		q.Total = *p.Total
	}
	if p.ValidUntil != nil {
		v := *p.ValidUntil
		q.ValidUntil = &v
	}
	q.UpdatedAt = r.now().UTC()

	where, args := scopeClause(scope)
	args = append([]any{q.ClientID, q.Status, q.Total, nullTime(q.ValidUntil), q.Notes, q.UpdatedAt, searchText(q), id}, args...)
	_, err = r.db.ExecContext(ctx, `
		UPDATE quotes SET client_id = ?, status = ?, total = ?, valid_until = ?, notes = ?, updated_at = ?, search_text = ?
		WHERE id = ? AND `+where, args...)
	if err != nil {
		return nil, writeErr("update quote", err)
	}
	return q, nil
}

// CreateRoom adds a bookable room.
func (r *SQLiteRepository) CreateRoom(ctx context.Context, scope domain.Scope, name string, capacity int) (*domain.Room, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	rm := &domain.Room{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		Name:               name,
		Capacity:           capacity,
		CreatedAt:          r.now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (id, tenant_id, business_identity_id, name, capacity, created_at, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rm.ID, rm.TenantID, rm.BusinessIdentityID, rm.Name, rm.Capacity, rm.CreatedAt, searchText(rm))
	if err != nil {
		return nil, writeErr("create room", err)
	}
	return rm, nil
}

// CreateProduct adds a catalogue item.
func (r *SQLiteRepository) CreateProduct(ctx context.Context, scope domain.Scope, in domain.ProductInput) (*domain.Product, error) {
	if scope.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	now := r.now().UTC()
	p := &domain.Product{
		ID:                 uuid.NewString(),
		TenantID:           scope.TenantID,
		BusinessIdentityID: scope.BusinessIdentityID,
		Name:               in.Name,
		ItemType:           cmp.Or(in.ItemType, "PRODUCT"),
		Category:           in.Category,
		Description:        in.Description,
		Unit:               cmp.Or(in.Unit, "unidad"),
		SKU:                in.SKU,
		Price:              in.Price,
		IsActive:           !in.Inactive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	var price sql.NullFloat64
	if p.Price != nil {
		price = sql.NullFloat64{Float64: *p.Price, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, tenant_id, business_identity_id, name, item_type, category, description, unit, sku, price, is_active, created_at, updated_at, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.BusinessIdentityID, p.Name, p.ItemType, p.Category, p.Description, p.Unit, p.SKU, price, p.IsActive, p.CreatedAt, p.UpdatedAt, searchText(p))
	if err != nil {
		return nil, writeErr("create product", err)
	}
	return p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
