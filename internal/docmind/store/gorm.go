package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kart-io/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/docmind/internal/model"
	"github.com/kart-io/docmind/internal/pkg/rag/textutil"
)

// datastore implements the Factory interface on gorm.
type datastore struct {
	db  *gorm.DB
	fts bool
}

// NewFactory migrates the schema and returns the gorm backed stores.
// The FTS5 index is created when the dialect is sqlite.
func NewFactory(ctx context.Context, db *gorm.DB) (Factory, error) {
	if err := db.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	ds := &datastore{db: db}
	if db.Dialector.Name() == "sqlite" {
		if err := setupFTS(ctx, db); err != nil {
			return nil, fmt.Errorf("setup full text index: %w", err)
		}
		ds.fts = true
	}
	logger.Infow("relational store ready", "dialect", db.Dialector.Name(), "fts5", ds.fts)
	return ds, nil
}

func (ds *datastore) Units() UnitStore                 { return &units{db: ds.db} }
func (ds *datastore) Intermediates() IntermediateStore { return &intermediates{db: ds.db} }
func (ds *datastore) Summaries() SummaryStore          { return &summaries{db: ds.db} }
func (ds *datastore) Metadata() MetadataStore          { return &metadata{db: ds.db, fts: ds.fts} }
func (ds *datastore) Sessions() SessionStore           { return &sessions{db: ds.db} }
func (ds *datastore) History() HistoryStore            { return &history{db: ds.db} }

// Close closes the underlying connection.
func (ds *datastore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type units struct {
	db *gorm.DB
}

// Save inserts the unit, replacing a previous row with the same key.
func (u *units) Save(ctx context.Context, unit *model.Unit) error {
	return u.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_id"}, {Name: "job_id"}, {Name: "sequence"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"document_id", "first_page", "last_page", "raw_text", "summary_text",
			"quality_score", "was_translated", "embedding",
		}),
	}).Create(unit).Error
}

func (u *units) List(ctx context.Context, entityID, jobID string) ([]*model.Unit, error) {
	var out []*model.Unit
	err := u.db.WithContext(ctx).
		Where("entity_id = ? AND job_id = ?", entityID, jobID).
		Order("sequence ASC").
		Find(&out).Error
	return out, err
}

type intermediates struct {
	db *gorm.DB
}

func (i *intermediates) Save(ctx context.Context, s *model.IntermediateSummary) error {
	return i.db.WithContext(ctx).Create(s).Error
}

func (i *intermediates) List(ctx context.Context, entityID, jobID string) ([]*model.IntermediateSummary, error) {
	var out []*model.IntermediateSummary
	err := i.db.WithContext(ctx).
		Where("entity_id = ? AND job_id = ?", entityID, jobID).
		Order("sequence ASC").
		Find(&out).Error
	return out, err
}

type summaries struct {
	db *gorm.DB
}

func (s *summaries) Get(ctx context.Context, entityID, docIdentity string) (*model.DocumentSummary, error) {
	var out model.DocumentSummary
	err := s.db.WithContext(ctx).
		Where("entity_id = ? AND doc_identity = ?", entityID, docIdentity).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *summaries) Put(ctx context.Context, sum *model.DocumentSummary) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_id"}, {Name: "doc_identity"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"job_id", "source_uri", "filename", "summary_text", "quality_score", "unit_count", "model_used",
		}),
	}).Create(sum).Error
}

type sessions struct {
	db *gorm.DB
}

func (s *sessions) Append(ctx context.Context, it *model.Interaction) error {
	return s.db.WithContext(ctx).Create(it).Error
}

func (s *sessions) List(ctx context.Context, sessionID string) ([]*model.Interaction, error) {
	var out []*model.Interaction
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

func (s *sessions) Clear(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.Interaction{}).Error
}

type history struct {
	db *gorm.DB
}

func (h *history) Append(ctx context.Context, e *model.JobHistoryEntry) error {
	return h.db.WithContext(ctx).Create(e).Error
}

func (h *history) List(ctx context.Context, entityID, day string) ([]*model.JobHistoryEntry, error) {
	var out []*model.JobHistoryEntry
	err := h.db.WithContext(ctx).
		Where("entity_id = ? AND day = ?", entityID, day).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

const ftsTable = "docmind_metadata_fts"

// setupFTS creates an external-content FTS5 table kept in sync by triggers.
func setupFTS(ctx context.Context, db *gorm.DB) error {
	meta := model.DocumentMetadata{}.TableName()
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS ` + ftsTable + ` USING fts5(
			resume, keywords, themes,
			content='` + meta + `', content_rowid='id',
			tokenize='unicode61 remove_diacritics 2'
		)`,
		`CREATE TRIGGER IF NOT EXISTS docmind_metadata_ai AFTER INSERT ON ` + meta + ` BEGIN
			INSERT INTO ` + ftsTable + `(rowid, resume, keywords, themes)
			VALUES (new.id, new.resume, new.keywords, new.themes);
		END`,
		`CREATE TRIGGER IF NOT EXISTS docmind_metadata_ad AFTER DELETE ON ` + meta + ` BEGIN
			INSERT INTO ` + ftsTable + `(` + ftsTable + `, rowid, resume, keywords, themes)
			VALUES ('delete', old.id, old.resume, old.keywords, old.themes);
		END`,
		`CREATE TRIGGER IF NOT EXISTS docmind_metadata_au AFTER UPDATE ON ` + meta + ` BEGIN
			INSERT INTO ` + ftsTable + `(` + ftsTable + `, rowid, resume, keywords, themes)
			VALUES ('delete', old.id, old.resume, old.keywords, old.themes);
			INSERT INTO ` + ftsTable + `(rowid, resume, keywords, themes)
			VALUES (new.id, new.resume, new.keywords, new.themes);
		END`,
	}
	for _, stmt := range stmts {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

type metadata struct {
	db  *gorm.DB
	fts bool
}

func (m *metadata) Create(ctx context.Context, rec *model.DocumentMetadata) error {
	return m.db.WithContext(ctx).Create(rec).Error
}

func (m *metadata) List(ctx context.Context, entityID, jobID string) ([]*model.DocumentMetadata, error) {
	var out []*model.DocumentMetadata
	q := m.db.WithContext(ctx).Where("entity_id = ?", entityID)
	if jobID != "" {
		q = q.Where("job_id = ?", jobID)
	}
	err := q.Order("id ASC").Find(&out).Error
	return out, err
}

func (m *metadata) ListAll(ctx context.Context) ([]*model.DocumentMetadata, error) {
	var out []*model.DocumentMetadata
	err := m.db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

var queryTokens = textutil.NewKeywordExtractor()

// SearchText ranks metadata by bm25 on sqlite, by LIKE matches elsewhere.
func (m *metadata) SearchText(ctx context.Context, entityID, jobID, query string, limit int) ([]TextHit, error) {
	tokens := dedupe(queryTokens.Tokens(query))
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}
	if m.fts {
		return m.searchFTS(ctx, entityID, jobID, tokens, limit)
	}
	return m.searchLike(ctx, entityID, jobID, tokens, limit)
}

func (m *metadata) searchFTS(ctx context.Context, entityID, jobID string, tokens []string, limit int) ([]TextHit, error) {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = strconv.Quote(t)
	}
	match := strings.Join(quoted, " OR ")

	meta := model.DocumentMetadata{}.TableName()
	sql := `SELECT m.filename AS filename,
			snippet(` + ftsTable + `, -1, '[', ']', '…', 16) AS snippet,
			m.resume AS resume
		FROM ` + ftsTable + `
		JOIN ` + meta + ` m ON m.id = ` + ftsTable + `.rowid
		WHERE ` + ftsTable + ` MATCH ? AND m.entity_id = ?`
	args := []any{match, entityID}
	if jobID != "" {
		sql += ` AND m.job_id = ?`
		args = append(args, jobID)
	}
	sql += ` ORDER BY bm25(` + ftsTable + `) LIMIT ?`
	args = append(args, limit)

	var hits []TextHit
	if err := m.db.WithContext(ctx).Raw(sql, args...).Scan(&hits).Error; err != nil {
		return nil, fmt.Errorf("full text search: %w", err)
	}
	return hits, nil
}

func (m *metadata) searchLike(ctx context.Context, entityID, jobID string, tokens []string, limit int) ([]TextHit, error) {
	q := m.db.WithContext(ctx).Model(&model.DocumentMetadata{}).Where("entity_id = ?", entityID)
	if jobID != "" {
		q = q.Where("job_id = ?", jobID)
	}

	cond := m.db.Where("1 = 0")
	for _, t := range tokens {
		like := "%" + t + "%"
		cond = cond.Or("LOWER(resume) LIKE ? OR LOWER(keywords) LIKE ? OR LOWER(themes) LIKE ?", like, like, like)
	}

	var recs []*model.DocumentMetadata
	if err := q.Where(cond).Order("id DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := make([]TextHit, 0, len(recs))
	for _, r := range recs {
		hits = append(hits, TextHit{
			Filename: r.Filename,
			Snippet:  textutil.TruncateString(r.Resume, 160),
			Resume:   r.Resume,
		})
	}
	return hits, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
