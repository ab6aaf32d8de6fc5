package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/gridpix/gridpix/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const filesSchema = `CREATE TABLE IF NOT EXISTS files (
	id          VARCHAR(36)  NOT NULL PRIMARY KEY,
	filename    VARCHAR(255) NOT NULL,
	content_type VARCHAR(128) NOT NULL,
	size_bytes  BIGINT       NOT NULL,
	chunk_count INT          NOT NULL,
	uploaded_at DATETIME(6)  NOT NULL,
	tags        VARCHAR(512) NOT NULL DEFAULT '',
	author      VARCHAR(255) NOT NULL DEFAULT '',
	description TEXT,
	UNIQUE KEY uniq_filename (filename),
	KEY idx_tags (tags)
)`

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

// MySQLRegistry stores file records in MySQL with tracing
type MySQLRegistry struct {
	db *sql.DB
}

// NewMySQLRegistry opens the database and ensures the files table exists
func NewMySQLRegistry(dsn string) (*MySQLRegistry, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.Exec(filesSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure files table: %w", err)
	}

	return &MySQLRegistry{db: db}, nil
}

// Close closes the database connection
func (mr *MySQLRegistry) Close() error {
	return mr.db.Close()
}

// Create inserts a file record with tracing
func (mr *MySQLRegistry) Create(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.New().String()
	}

	ctx, span := tracer.Start(ctx, "mysql.create_file",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
			attribute.String("filename", file.Filename),
			attribute.Int64("size_bytes", file.SizeBytes),
		),
	)
	defer span.End()

	query := `INSERT INTO files (id, filename, content_type, size_bytes, chunk_count, uploaded_at, tags, author, description)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := mr.db.ExecContext(ctx, query,
		file.ID, file.Filename, file.ContentType, file.SizeBytes, file.ChunkCount,
		file.UploadedAt, file.Metadata.Tags, file.Metadata.Author, file.Metadata.Description)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			span.SetAttributes(attribute.Bool("duplicate", true))
			return ErrDuplicateFilename
		}
		span.RecordError(err)
		return &WriteError{Op: "mysql.create_file", Err: err}
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

const fileColumns = `id, filename, content_type, size_bytes, chunk_count, uploaded_at, tags, author, description`

func scanFile(row interface{ Scan(...any) error }) (*models.File, error) {
	var file models.File
	err := row.Scan(
		&file.ID,
		&file.Filename,
		&file.ContentType,
		&file.SizeBytes,
		&file.ChunkCount,
		&file.UploadedAt,
		&file.Metadata.Tags,
		&file.Metadata.Author,
		&file.Metadata.Description,
	)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// GetByID retrieves a file record by ID with tracing
func (mr *MySQLRegistry) GetByID(ctx context.Context, id string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_file",
		trace.WithAttributes(
			attribute.String("file_id", id),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ?`
	file, err := scanFile(mr.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query file: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return file, nil
}

// GetByFilename retrieves a file record by filename with tracing
func (mr *MySQLRegistry) GetByFilename(ctx context.Context, filename string) (*models.File, error) {
	ctx, span := tracer.Start(ctx, "mysql.get_file_by_name",
		trace.WithAttributes(
			attribute.String("filename", filename),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + ` FROM files WHERE filename = ?`
	file, err := scanFile(mr.db.QueryRowContext(ctx, query, filename))
	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, ErrNotFound
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query file: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return file, nil
}

// ListAll returns all file records, newest first, with tracing
func (mr *MySQLRegistry) ListAll(ctx context.Context) ([]*models.File, error) {
	ctx, span := tracer.Start(ctx, "mysql.list_files")
	defer span.End()

	query := `SELECT ` + fileColumns + ` FROM files ORDER BY uploaded_at DESC, id`
	return mr.queryFiles(ctx, span, query)
}

// FindByTag returns records whose tag string contains tag, with tracing
func (mr *MySQLRegistry) FindByTag(ctx context.Context, tag string) ([]*models.File, error) {
	ctx, span := tracer.Start(ctx, "mysql.find_by_tag",
		trace.WithAttributes(
			attribute.String("tag", tag),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + ` FROM files WHERE tags LIKE ? ORDER BY uploaded_at DESC, id`
	return mr.queryFiles(ctx, span, query, "%"+tag+"%")
}

func (mr *MySQLRegistry) queryFiles(ctx context.Context, span trace.Span, query string, args ...any) ([]*models.File, error) {
	rows, err := mr.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []*models.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	return files, nil
}

// Delete removes a file record by ID with tracing
func (mr *MySQLRegistry) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "mysql.delete_file",
		trace.WithAttributes(
			attribute.String("file_id", id),
		),
	)
	defer span.End()

	res, err := mr.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		span.RecordError(err)
		return &WriteError{Op: "mysql.delete_file", Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		span.SetAttributes(attribute.Bool("found", false))
		return ErrNotFound
	}

	span.SetAttributes(attribute.Bool("delete_success", true))
	return nil
}
