package evidence

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/auditstack/attest/internal/preprocess"
	"github.com/auditstack/attest/pkg/pagination"
	"github.com/auditstack/attest/pkg/repository"
	"github.com/auditstack/attest/pkg/storage"
)

const projection = `
	id, organization_id, title, description, evidence_type, source_type,
	storage_key, file_size, status, extracted_text, ai_classification,
	tags, created_at, updated_at`

type repo struct {
	db         *sql.DB
	storage    storage.System
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates an evidence repository implementing the System interface.
func New(
	db *sql.DB,
	store storage.System,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		logger:     logger.With("system", "evidence"),
		pagination: pagination,
	}
}

func (r *repo) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	organizationID *uuid.UUID,
) (*pagination.PageResult[Evidence], error) {
	page.Normalize(r.pagination)

	where := []string{"1 = 1"}
	args := []any{}

	if organizationID != nil {
		args = append(args, *organizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if page.Search != nil && *page.Search != "" {
		args = append(args, "%"+*page.Search+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	clause := strings.Join(where, " AND ")

	var total int
	countSQL := "SELECT COUNT(*) FROM evidence WHERE " + clause
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count evidence: %w", err)
	}

	pageSQL := fmt.Sprintf(
		"SELECT %s FROM evidence WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		projection, clause, len(args)+1, len(args)+2,
	)
	args = append(args, page.PageSize, page.Offset())

	items, err := repository.QueryMany(ctx, r.db, pageSQL, args, scanEvidence)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Evidence, error) {
	q := fmt.Sprintf("SELECT %s FROM evidence WHERE id = $1", projection)

	ev, err := repository.QueryOne(ctx, r.db, q, []any{id}, scanEvidence)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return &ev, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Evidence, error) {
	if err := r.checkOrganization(ctx, cmd.OrganizationID); err != nil {
		return nil, err
	}

	id := uuid.New()
	content, filename, contentType := rawPayload(cmd)
	key := buildStorageKey(cmd.OrganizationID, id, filename)

	if err := r.storage.Upload(ctx, key, bytes.NewReader(content), contentType); err != nil {
		return nil, fmt.Errorf("upload evidence payload: %w", err)
	}

	size := int64(len(content))
	if cmd.FileSize != nil && *cmd.FileSize > 0 {
		size = *cmd.FileSize
	}

	extracted := preprocess.ExtractText(cmd.RawText, cmd.RawJSON)

	ev, err := r.insert(ctx, insertArgs{
		id:             id,
		organizationID: cmd.OrganizationID,
		title:          deriveTitle(cmd),
		description:    cmd.Description,
		evidenceType:   cmd.EvidenceType,
		sourceType:     cmd.SourceType,
		storageKey:     key,
		fileSize:       size,
		extractedText:  extracted,
		tags:           cmd.Tags,
	})
	if err != nil {
		if delErr := r.storage.Delete(ctx, key); delErr != nil {
			r.logger.Warn("compensating blob delete failed", "key", key, "error", delErr)
		}
		return nil, err
	}

	r.logger.Info("evidence created", "id", ev.ID, "organization", ev.OrganizationID)
	return ev, nil
}

func (r *repo) CreateFromFile(ctx context.Context, cmd UploadCommand) (*Evidence, error) {
	if err := r.checkOrganization(ctx, cmd.OrganizationID); err != nil {
		return nil, err
	}

	id := uuid.New()
	key := buildStorageKey(cmd.OrganizationID, id, sanitizeFilename(cmd.Filename))

	if err := r.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), cmd.ContentType); err != nil {
		return nil, fmt.Errorf("upload evidence file: %w", err)
	}

	title := cmd.Title
	if title == "" {
		title = cmd.Filename
	}
	if title == "" {
		title = "Untitled evidence"
	}

	ev, err := r.insert(ctx, insertArgs{
		id:             id,
		organizationID: cmd.OrganizationID,
		title:          title,
		description:    cmd.Description,
		evidenceType:   cmd.EvidenceType,
		sourceType:     cmd.SourceType,
		storageKey:     key,
		fileSize:       int64(len(cmd.Data)),
		extractedText:  preprocess.ExtractFileText(cmd.Filename, cmd.Data),
		tags:           cmd.Tags,
	})
	if err != nil {
		if delErr := r.storage.Delete(ctx, key); delErr != nil {
			r.logger.Warn("compensating blob delete failed", "key", key, "error", delErr)
		}
		return nil, err
	}

	r.logger.Info("evidence uploaded", "id", ev.ID, "filename", cmd.Filename)
	return ev, nil
}

func (r *repo) UpdateClassification(ctx context.Context, id uuid.UUID, c Classification) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		err := repository.ExecExpectOne(
			ctx, tx,
			"UPDATE evidence SET ai_classification = $2, updated_at = now() WHERE id = $1",
			id, payload,
		)
		return struct{}{}, err
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return nil
}

type insertArgs struct {
	id             uuid.UUID
	organizationID uuid.UUID
	title          string
	description    *string
	evidenceType   *string
	sourceType     *string
	storageKey     string
	fileSize       int64
	extractedText  string
	tags           []string
}

func (r *repo) insert(ctx context.Context, a insertArgs) (*Evidence, error) {
	q := fmt.Sprintf(`
		INSERT INTO evidence(
			id, organization_id, title, description, evidence_type, source_type,
			storage_key, file_size, status, extracted_text, tags
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'uploaded', $9, $10)
		RETURNING %s`, projection)

	tags := a.tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	args := []any{
		a.id,
		a.organizationID,
		a.title,
		a.description,
		a.evidenceType,
		a.sourceType,
		a.storageKey,
		a.fileSize,
		a.extractedText,
		tagsJSON,
	}

	ev, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Evidence, error) {
		return repository.QueryOne(ctx, tx, q, args, scanEvidence)
	})
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	return &ev, nil
}

func (r *repo) checkOrganization(ctx context.Context, id uuid.UUID) error {
	var exists bool
	q := "SELECT EXISTS(SELECT 1 FROM organizations WHERE id = $1)"
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&exists); err != nil {
		return fmt.Errorf("check organization: %w", err)
	}
	if !exists {
		return ErrOrganizationNotFound
	}
	return nil
}

// rawPayload renders the stored blob for a payload-based create: raw JSON is
// pretty-printed preserving key order, raw text is stored verbatim.
func rawPayload(cmd CreateCommand) (content []byte, filename, contentType string) {
	if len(cmd.RawJSON) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, cmd.RawJSON, "", "  "); err != nil {
			return cmd.RawJSON, "raw.json", "application/json"
		}
		return buf.Bytes(), "raw.json", "application/json"
	}

	if cmd.RawText != nil {
		return []byte(*cmd.RawText), "raw.txt", "text/plain"
	}

	return []byte{}, "raw.txt", "text/plain"
}

func deriveTitle(cmd CreateCommand) string {
	if cmd.Title != "" {
		return cmd.Title
	}
	if cmd.RawText != nil && *cmd.RawText != "" {
		snippet := *cmd.RawText
		if len(snippet) > 60 {
			snippet = snippet[:60]
		}
		snippet = strings.ReplaceAll(strings.TrimSpace(snippet), "\n", " ")
		if snippet != "" {
			return snippet
		}
		return "Untitled evidence"
	}
	if len(cmd.RawJSON) > 0 {
		return "JSON evidence"
	}
	return "Untitled evidence"
}

func buildStorageKey(orgID, evidenceID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", orgID, evidenceID, filename)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" || name == "." {
		name = "upload"
	}
	return name
}

func scanEvidence(s repository.Scanner) (Evidence, error) {
	var (
		ev             Evidence
		classification []byte
		tags           []byte
	)

	err := s.Scan(
		&ev.ID,
		&ev.OrganizationID,
		&ev.Title,
		&ev.Description,
		&ev.EvidenceType,
		&ev.SourceType,
		&ev.StorageKey,
		&ev.FileSize,
		&ev.Status,
		&ev.ExtractedText,
		&classification,
		&tags,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	)
	if err != nil {
		return ev, err
	}

	if len(classification) > 0 {
		var c Classification
		if err := json.Unmarshal(classification, &c); err != nil {
			return ev, fmt.Errorf("decode ai_classification: %w", err)
		}
		ev.Classification = &c
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &ev.Tags); err != nil {
			return ev, fmt.Errorf("decode tags: %w", err)
		}
	}
	if ev.Tags == nil {
		ev.Tags = []string{}
	}

	return ev, nil
}
