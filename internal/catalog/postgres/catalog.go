// Package postgres implements the document catalog on Postgres.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/archive-ocr-pipeline/internal/archive"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const documentColumns = `id, record_number, pdf_link, num_pages, parent_page_num, in_anything_llm, created_at, updated_at`

const pageColumns = `id, parent_record_id, page_number, ocr_result, error, cloudinary, updated_at`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Catalog is the Postgres-backed archive.Catalog.
type Catalog struct {
	db    dbtx
	ids   archive.IDGenerator
	clock archive.Clock
}

var _ archive.Catalog = (*Catalog)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config, ids archive.IDGenerator, clock archive.Clock) (*Catalog, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("catalog dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithPool(pool, ids, clock)
}

// NewWithPool constructs a catalog from an existing pool (primarily for testing).
func NewWithPool(db dbtx, ids archive.IDGenerator, clock archive.Clock) (*Catalog, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Catalog{db: db, ids: ids, clock: clock}, nil
}

// Migrate creates the record and page tables when they do not exist.
func (c *Catalog) Migrate(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply catalog schema: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	if err := c.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping catalog: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (c *Catalog) Close() {
	if c == nil || c.db == nil {
		return
	}
	c.db.Close()
}

// FindDocumentByURL returns the document registered under url.
func (c *Catalog) FindDocumentByURL(ctx context.Context, url string) (archive.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM record WHERE pdf_link = $1 LIMIT 1`
	doc, err := scanDocument(c.db.QueryRow(ctx, query, url))
	if err != nil {
		return archive.Document{}, wrapLookup("find document by url", err)
	}
	return doc, nil
}

// FindDocumentByNumber returns the document registered under number.
func (c *Catalog) FindDocumentByNumber(ctx context.Context, number string) (archive.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM record WHERE record_number = $1 LIMIT 1`
	doc, err := scanDocument(c.db.QueryRow(ctx, query, number))
	if err != nil {
		return archive.Document{}, wrapLookup("find document by number", err)
	}
	return doc, nil
}

// InsertDocument stores doc and returns its ID. A blank ID is generated.
func (c *Catalog) InsertDocument(ctx context.Context, doc archive.Document) (string, error) {
	id := doc.ID
	if id == "" {
		var err error
		if id, err = c.ids.NewID(); err != nil {
			return "", err
		}
	}
	now := c.clock.Now()
	query := `
INSERT INTO record (
	id,
	record_number,
	pdf_link,
	num_pages,
	parent_page_num,
	in_anything_llm,
	created_at,
	updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := c.db.Exec(ctx, query,
		id,
		nullableString(doc.Number),
		doc.URL,
		doc.PageCount,
		doc.ListingPage,
		doc.Published,
		now,
		now,
	)
	if err != nil {
		return "", wrapWrite("insert document", err)
	}
	return id, nil
}

// UpdateDocument applies the non-nil fields of update to document id.
func (c *Catalog) UpdateDocument(ctx context.Context, id string, update archive.DocumentUpdate) error {
	if update.Empty() {
		return nil
	}
	set := newSetList()
	if update.URL != nil {
		set.add("pdf_link", *update.URL)
	}
	if update.Number != nil {
		set.add("record_number", *update.Number)
	}
	if update.PageCount != nil {
		set.add("num_pages", *update.PageCount)
	}
	if update.Published != nil {
		set.add("in_anything_llm", *update.Published)
	}
	set.add("updated_at", c.clock.Now())

	query, args := set.statement("record", id)
	tag, err := c.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapWrite("update document", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update document %s: %w", id, archive.ErrNotFound)
	}
	return nil
}

// ListDocuments returns documents matching filter in creation order.
func (c *Catalog) ListDocuments(ctx context.Context, filter archive.DocumentFilter) ([]archive.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM record
WHERE ($1::bool = false OR in_anything_llm IS NOT TRUE)
  AND ($2::bool = false OR record_number IS NULL OR record_number = '')
  AND ($3::bool = false OR num_pages IS NULL)
  AND ($4::text = '' OR pdf_link LIKE $4 || '%')
ORDER BY created_at, id`
	rows, err := c.db.Query(ctx, query,
		filter.Unpublished,
		filter.MissingNumber,
		filter.MissingPageCount,
		filter.URLPrefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []archive.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// FindPages returns the pages of documentID matching filter, ordered by page number.
func (c *Catalog) FindPages(ctx context.Context, documentID string, filter archive.PageFilter) ([]archive.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM page
WHERE parent_record_id = $1
  AND ($2::int IS NULL OR page_number = $2)
  AND ($3::bool = false OR error IS NOT TRUE)
  AND ($4::bool = false OR error IS TRUE)
  AND ($5::bool = false OR cloudinary IS NULL)
ORDER BY page_number`
	rows, err := c.db.Query(ctx, query,
		documentID,
		filter.Number,
		filter.OnlyValid,
		filter.OnlyErrors,
		filter.MissingImage,
	)
	if err != nil {
		return nil, fmt.Errorf("find pages: %w", err)
	}
	defer rows.Close()

	var pages []archive.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// InsertPage stores page and returns its ID.
func (c *Catalog) InsertPage(ctx context.Context, page archive.Page) (string, error) {
	id := page.ID
	if id == "" {
		var err error
		if id, err = c.ids.NewID(); err != nil {
			return "", err
		}
	}
	image, err := marshalImage(page.Image)
	if err != nil {
		return "", err
	}
	updatedAt := page.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = c.clock.Now()
	}
	query := `
INSERT INTO page (
	id,
	parent_record_id,
	page_number,
	ocr_result,
	error,
	cloudinary,
	updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = c.db.Exec(ctx, query,
		id,
		page.DocumentID,
		page.Number,
		page.Text,
		page.Error,
		image,
		updatedAt,
	)
	if err != nil {
		return "", wrapWrite("insert page", err)
	}
	return id, nil
}

// UpdatePage applies the non-nil fields of update to page id.
func (c *Catalog) UpdatePage(ctx context.Context, id string, update archive.PageUpdate) error {
	set := newSetList()
	if update.Text != nil {
		set.add("ocr_result", *update.Text)
	}
	if update.Error != nil {
		set.add("error", *update.Error)
	}
	if update.Image != nil {
		image, err := marshalImage(update.Image)
		if err != nil {
			return err
		}
		set.add("cloudinary", image)
	}
	if set.len() == 0 {
		return nil
	}
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = c.clock.Now()
	}
	set.add("updated_at", updatedAt)

	query, args := set.statement("page", id)
	tag, err := c.db.Exec(ctx, query, args...)
	if err != nil {
		return wrapWrite("update page", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update page %s: %w", id, archive.ErrNotFound)
	}
	return nil
}

// setList accumulates "column = $n" assignments for an UPDATE statement.
type setList struct {
	columns []string
	args    []any
}

func newSetList() *setList {
	return &setList{}
}

func (s *setList) add(column string, value any) {
	s.columns = append(s.columns, column)
	s.args = append(s.args, value)
}

func (s *setList) len() int {
	return len(s.columns)
}

// statement renders the UPDATE for table keyed by id; id is always the last argument.
func (s *setList) statement(table, id string) (string, []any) {
	parts := make([]string, len(s.columns))
	for i, column := range s.columns {
		parts[i] = fmt.Sprintf("%s = $%d", column, i+1)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(parts, ", "), len(s.columns)+1)
	return query, append(append([]any(nil), s.args...), id)
}

func scanDocument(row pgx.Row) (archive.Document, error) {
	var (
		doc    archive.Document
		number *string
	)
	err := row.Scan(
		&doc.ID,
		&number,
		&doc.URL,
		&doc.PageCount,
		&doc.ListingPage,
		&doc.Published,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return archive.Document{}, err
	}
	if number != nil {
		doc.Number = *number
	}
	return doc, nil
}

func scanPage(row pgx.Row) (archive.Page, error) {
	var (
		page  archive.Page
		image []byte
	)
	err := row.Scan(
		&page.ID,
		&page.DocumentID,
		&page.Number,
		&page.Text,
		&page.Error,
		&image,
		&page.UpdatedAt,
	)
	if err != nil {
		return archive.Page{}, err
	}
	if len(image) > 0 && string(image) != "null" {
		var ref archive.ImageRef
		if err := json.Unmarshal(image, &ref); err != nil {
			return archive.Page{}, fmt.Errorf("decode image reference: %w", err)
		}
		page.Image = &ref
	}
	return page, nil
}

func marshalImage(ref *archive.ImageRef) ([]byte, error) {
	if ref == nil {
		return nil, nil
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return nil, fmt.Errorf("encode image reference: %w", err)
	}
	return data, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func wrapLookup(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, archive.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func wrapWrite(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, archive.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}
