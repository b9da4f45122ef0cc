package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/quillshelf/quillshelf/pkg/models"
)

// ErrEntryNotFound is returned when a library entry does not exist or
// belongs to another user.
var ErrEntryNotFound = errors.New("library entry not found")

// DatabaseQuerier is the database surface the library service needs.
// Satisfied by *pgxpool.Pool and by pgxmock in tests.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// LibraryService owns the CRUD storage for a user's library entries.
type LibraryService struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewLibraryService(db DatabaseQuerier, logger *logrus.Logger) *LibraryService {
	return &LibraryService{db: db, logger: logger}
}

const libraryColumns = `id, user_id, identifier, title, authors, status, rating, subjects, notes, description, created_at, updated_at`

func (s *LibraryService) List(ctx context.Context, userID uuid.UUID) ([]models.LibraryEntry, error) {
	query := `
		SELECT ` + libraryColumns + `
		FROM library_entries
		WHERE user_id = $1
		ORDER BY id
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list library entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LibraryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan library entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read library entries: %w", err)
	}
	return entries, nil
}

func (s *LibraryService) Get(ctx context.Context, userID uuid.UUID, id int64) (*models.LibraryEntry, error) {
	query := `
		SELECT ` + libraryColumns + `
		FROM library_entries
		WHERE user_id = $1 AND id = $2
	`

	entry, err := scanEntry(s.db.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get library entry: %w", err)
	}
	return &entry, nil
}

func (s *LibraryService) Add(ctx context.Context, userID uuid.UUID, req *models.LibraryEntryRequest) (*models.LibraryEntry, error) {
	now := time.Now().UTC()
	entry := entryFromRequest(userID, req, now)

	query := `
		INSERT INTO library_entries (
			user_id, identifier, title, authors, status, rating, subjects,
			notes, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := s.db.QueryRow(ctx, query,
		entry.UserID, entry.Identifier, entry.Title, entry.Authors, entry.Status,
		entry.Rating, entry.Subjects, entry.Notes, entry.Description,
		entry.CreatedAt, entry.UpdatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert library entry: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"entry_id": entry.ID,
		"title":    entry.Title,
	}).Info("Library entry added")

	return &entry, nil
}

func (s *LibraryService) Update(ctx context.Context, userID uuid.UUID, id int64, req *models.LibraryEntryRequest) (*models.LibraryEntry, error) {
	now := time.Now().UTC()
	entry := entryFromRequest(userID, req, now)
	entry.ID = id

	query := `
		UPDATE library_entries SET
			identifier = $3, title = $4, authors = $5, status = $6, rating = $7,
			subjects = $8, notes = $9, description = $10, updated_at = $11
		WHERE user_id = $1 AND id = $2
		RETURNING created_at
	`

	err := s.db.QueryRow(ctx, query,
		userID, id, entry.Identifier, entry.Title, entry.Authors, entry.Status,
		entry.Rating, entry.Subjects, entry.Notes, entry.Description, now,
	).Scan(&entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to update library entry: %w", err)
	}
	return &entry, nil
}

func (s *LibraryService) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM library_entries WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete library entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Import bulk-adds entries, skipping rows the user already owns (matched
// by identifier, or by title+authors when no identifier is present). A
// malformed row fails that row only, never the whole import.
func (s *LibraryService) Import(ctx context.Context, userID uuid.UUID, req *models.LibraryImportRequest) (*models.LibraryImportResult, error) {
	existing, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	ownedIdentifiers := make(map[string]struct{}, len(existing))
	ownedTitles := make(map[string]struct{}, len(existing))
	for _, entry := range existing {
		if entry.Identifier != "" {
			ownedIdentifiers[entry.Identifier] = struct{}{}
		}
		ownedTitles[strings.ToLower(entry.Title+"|"+entry.Authors)] = struct{}{}
	}

	result := &models.LibraryImportResult{ImportID: uuid.New()}
	for i := range req.Entries {
		row := &req.Entries[i]
		if row.Title == "" {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: missing title", i))
			continue
		}

		if row.Identifier != "" {
			if _, ok := ownedIdentifiers[row.Identifier]; ok {
				result.Skipped++
				continue
			}
		} else if _, ok := ownedTitles[strings.ToLower(row.Title+"|"+row.Authors)]; ok {
			result.Skipped++
			continue
		}

		if _, err := s.Add(ctx, userID, row); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		result.Imported++
		if row.Identifier != "" {
			ownedIdentifiers[row.Identifier] = struct{}{}
		}
		ownedTitles[strings.ToLower(row.Title+"|"+row.Authors)] = struct{}{}
	}

	return result, nil
}

func entryFromRequest(userID uuid.UUID, req *models.LibraryEntryRequest, now time.Time) models.LibraryEntry {
	status := req.Status
	if status == "" {
		status = models.StatusUnread
	}
	return models.LibraryEntry{
		UserID:      userID,
		Identifier:  strings.TrimSpace(req.Identifier),
		Title:       strings.TrimSpace(req.Title),
		Authors:     strings.TrimSpace(req.Authors),
		Status:      status,
		Rating:      req.Rating,
		Subjects:    req.Subjects,
		Notes:       req.Notes,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func scanEntry(row pgx.Row) (models.LibraryEntry, error) {
	var entry models.LibraryEntry
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.Identifier, &entry.Title, &entry.Authors,
		&entry.Status, &entry.Rating, &entry.Subjects, &entry.Notes,
		&entry.Description, &entry.CreatedAt, &entry.UpdatedAt,
	)
	return entry, err
}
