package statement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/ocr-ledger/internal/export"
	"github.com/zombor/ocr-ledger/internal/ledger"
	"github.com/zombor/ocr-ledger/internal/ocr"
)

// IDGenerator generates unique IDs for statements
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Upload is an image waiting to be processed
type Upload struct {
	Filename    string
	Data        []byte
	ContentType string
}

// Service handles statement operations
type Service struct {
	db          DB
	recognizer  ocr.Recognizer
	storage     Storage
	parser      *ledger.Parser
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUIDs and the wall clock
func NewService(db DB, recognizer ocr.Recognizer, storage Storage, parser *ledger.Parser) *Service {
	return NewServiceWithDeps(db, recognizer, storage, parser, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, recognizer ocr.Recognizer, storage Storage, parser *ledger.Parser, idGen IDGenerator, timeSrc TimeSource) *Service {
	if parser == nil {
		parser = ledger.NewParser(nil)
	}
	return &Service{
		db:          db,
		recognizer:  recognizer,
		storage:     storage,
		parser:      parser,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)
	spaceRun            = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up phone-generated file names: special characters
// removed, whitespace collapsed, base name capped at 50 characters
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filepath.Clean("/" + filename))
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = spaceRun.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if r := []rune(base); len(r) > 50 {
		base = strings.TrimSpace(string(r[:50]))
	}
	if base == "" {
		base = "statement"
	}
	if unsafeFilenameChars.MatchString(strings.TrimPrefix(ext, ".")) {
		ext = ""
	}

	return base + ext
}

// ProcessUpload stores an image, recognizes its text, parses the records and
// saves the statement. The stored image is removed if any later step fails.
func (s *Service) ProcessUpload(filename string, data []byte, contentType string) (*Statement, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	text, err := s.recognizer.Recognize(data, contentType)
	if err != nil {
		slog.Error("Failed to recognize statement",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.discardFile(savedPath)
		return nil, fmt.Errorf("recognizing text: %w", err)
	}

	statement, err := s.build(id, now, text)
	if err != nil {
		slog.Warn("Nothing extracted from statement", "filename", filename, "error", err)
		s.discardFile(savedPath)
		return nil, err
	}
	statement.Filename = savedPath
	statement.ContentType = contentType

	if err := s.db.SaveStatement(statement); err != nil {
		s.discardFile(savedPath)
		return nil, fmt.Errorf("saving statement to database: %w", err)
	}

	slog.Info("Processed statement",
		"id", statement.ID,
		"filename", filename,
		"records", len(statement.Records),
		"last_date", statement.LastDate,
	)
	return statement, nil
}

// ProcessText parses already recognized text and saves the statement
func (s *Service) ProcessText(text string) (*Statement, error) {
	statement, err := s.build(s.idGenerator.Generate(), s.timeSource.Now(), text)
	if err != nil {
		return nil, err
	}

	if err := s.db.SaveStatement(statement); err != nil {
		return nil, fmt.Errorf("saving statement to database: %w", err)
	}
	return statement, nil
}

// ProcessBatch runs ProcessUpload for every upload with at most limit running
// at once (limit <= 0 means no limit). Uploads that yield no text or no
// transactions are skipped; any other failure cancels the batch. Results keep
// upload order.
func (s *Service) ProcessBatch(ctx context.Context, uploads []Upload, limit int) ([]*Statement, error) {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	results := make([]*Statement, len(uploads))
	for i, u := range uploads {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			statement, err := s.ProcessUpload(u.Filename, u.Data, u.ContentType)
			if errors.Is(err, ErrNoText) || errors.Is(err, ErrNoTransactions) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("processing %s: %w", u.Filename, err)
			}
			results[i] = statement
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	statements := make([]*Statement, 0, len(results))
	for _, st := range results {
		if st != nil {
			statements = append(statements, st)
		}
	}
	return statements, nil
}

// build parses text into a new, unsaved statement
func (s *Service) build(id string, now time.Time, text string) (*Statement, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}

	result := s.parser.Parse(text)
	if len(result.Records) == 0 {
		return nil, ErrNoTransactions
	}

	return &Statement{
		ID:        id,
		Text:      text,
		Records:   result.Records,
		LastDate:  result.LastDate,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Service) discardFile(path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Warn("Failed to delete file", "filename", path, "error", err)
	}
}

// GetStatement retrieves a statement by ID
func (s *Service) GetStatement(id string) (*Statement, error) {
	statement, err := s.db.GetStatement(id)
	if err != nil {
		return nil, fmt.Errorf("getting statement: %w", err)
	}
	return statement, nil
}

// ListStatements returns all statements
func (s *Service) ListStatements() ([]*Statement, error) {
	statements, err := s.db.ListStatements()
	if err != nil {
		return nil, fmt.Errorf("listing statements: %w", err)
	}
	return statements, nil
}

// DeleteStatement removes a statement and its image
func (s *Service) DeleteStatement(id string) error {
	statement, err := s.db.GetStatement(id)
	if err != nil {
		return fmt.Errorf("getting statement for deletion: %w", err)
	}

	if statement.Filename != "" {
		// Log error but continue with database deletion
		s.discardFile(statement.Filename)
	}

	if err := s.db.DeleteStatement(id); err != nil {
		return fmt.Errorf("deleting statement from database: %w", err)
	}
	return nil
}

// GetStatementFile retrieves the uploaded image of a statement
func (s *Service) GetStatementFile(id string) ([]byte, string, error) {
	statement, err := s.db.GetStatement(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting statement: %w", err)
	}
	if statement.Filename == "" {
		return nil, "", fmt.Errorf("statement %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(statement.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting statement file: %w", err)
	}

	return data, statement.ContentType, nil
}

// Export writes the records of a statement as an XLSX workbook
func (s *Service) Export(id string, w io.Writer) error {
	statement, err := s.db.GetStatement(id)
	if err != nil {
		return fmt.Errorf("getting statement: %w", err)
	}
	if err := export.WriteXLSX(w, statement.Records); err != nil {
		return fmt.Errorf("exporting statement: %w", err)
	}
	return nil
}
