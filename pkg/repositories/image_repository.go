// Package repositories provides pgx-backed data access for the five-entity
// image index (spec.md §3), grounded on the repository-per-entity pattern
// used throughout pkg/repositories in the teacher repo, adapted from
// tenant-scoped queries to a single connection pool.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/piclocate/piclocate-engine/pkg/apperrors"
	"github.com/piclocate/piclocate-engine/pkg/models"
	sqlguard "github.com/piclocate/piclocate-engine/pkg/sql"
)

// ErrNotFound is returned when a lookup by id or external_id finds nothing.
var ErrNotFound = errors.New("image not found")

// ImageRepository provides data access for the Image aggregate (Image,
// Object, RoomScore, Caption, Tag).
type ImageRepository interface {
	// Upsert replaces an image and all of its children atomically, keyed
	// by external_id (spec.md §3 invariant: "re-indexing the same
	// external_id overwrites its children atomically").
	Upsert(ctx context.Context, img *models.Image) error

	GetByExternalID(ctx context.Context, externalID string) (*models.Image, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error)

	// IndexedAt returns the stored indexed_at for externalID so the
	// crawler can skip files that are already indexed (spec.md §4.1
	// incremental mode); the crawler does not compare it with the source
	// mtime. ok is false when the image has never been indexed.
	IndexedAt(ctx context.Context, externalID string) (indexedAt time.Time, ok bool, err error)

	// PhashNeighbors returns the external_ids of other images in the same
	// folder whose phash is within Hamming distance 6, for near-duplicate
	// logging (spec.md §4.2). Comparison happens in Go since Postgres has
	// no built-in popcount operator over bigint.
	PhashNeighbors(ctx context.Context, folderPath string, phash uint64, excludeExternalID string) ([]string, error)

	Stats(ctx context.Context) (Stats, error)

	// Search runs Stage A of the search pipeline: a dynamic SQL predicate
	// over room/object/tag filters, ordered by cosine distance to
	// params.QueryEmbedding (spec.md §4.6).
	Search(ctx context.Context, params SearchParams) ([]models.RetrievalCandidate, error)
}

// SearchParams is the input to Search. RelaxObjects drops every object
// predicate while keeping the room filter, used for the recall-guarantee
// re-query when the first pass returns fewer than K/2 rows
// (spec.md §4.6 step 4).
type SearchParams struct {
	Room           *models.Room
	Objects        []models.ObjectFilter
	FreeColors     []string
	FreeMaterials  []string
	QueryEmbedding []float32
	Limit          int
	RelaxObjects   bool
}

// Stats is the aggregate the /stats handler reports (spec.md §6).
type Stats struct {
	ImageCount   int64            `json:"image_count"`
	RoomCounts   map[string]int64 `json:"room_counts"`
	ObjectCounts map[string]int64 `json:"object_counts"`
	ColorCounts  map[string]int64 `json:"color_counts"`
}

type imageRepository struct {
	pool *pgxpool.Pool
}

// NewImageRepository constructs an ImageRepository over pool.
func NewImageRepository(pool *pgxpool.Pool) ImageRepository {
	return &imageRepository{pool: pool}
}

var _ ImageRepository = (*imageRepository)(nil)

func (r *imageRepository) Upsert(ctx context.Context, img *models.Image) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	now := time.Now()
	img.IndexedAt = now

	err = tx.QueryRow(ctx, `
		INSERT INTO images (
			id, external_id, file_name, folder_path, width, height, phash,
			captured_at, room, room_confidence, style_tags, indexed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (external_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			folder_path = EXCLUDED.folder_path,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			phash = EXCLUDED.phash,
			captured_at = EXCLUDED.captured_at,
			room = EXCLUDED.room,
			room_confidence = EXCLUDED.room_confidence,
			style_tags = EXCLUDED.style_tags,
			indexed_at = EXCLUDED.indexed_at
		RETURNING id`,
		img.ID, img.ExternalID, img.FileName, img.FolderPath, img.Width, img.Height,
		int64(img.PHash), img.CapturedAt, string(img.Room), img.RoomConfidence,
		img.StyleTags, img.IndexedAt,
	).Scan(&img.ID)
	if err != nil {
		return fmt.Errorf("upsert image: %w", err)
	}

	// Full replace of children: deleted explicitly here (the upsert keeps
	// the images row, so the FK cascade does not fire), then reinserted.
	if _, err := tx.Exec(ctx, `DELETE FROM objects WHERE image_id = $1`, img.ID); err != nil {
		return fmt.Errorf("clear objects: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM room_scores WHERE image_id = $1`, img.ID); err != nil {
		return fmt.Errorf("clear room_scores: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tags WHERE image_id = $1`, img.ID); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}

	for i := range img.Objects {
		o := &img.Objects[i]
		o.ImageID = img.ID
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO objects (
				id, image_id, label, label_confidence, bbox_x, bbox_y, bbox_w, bbox_h,
				color_name, color_l, color_a, color_b, secondary_colors,
				material, material_confidence, area_pixels
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			o.ID, img.ID, o.Label, o.LabelConfidence, o.BBox.X, o.BBox.Y, o.BBox.W, o.BBox.H,
			o.ColorName, o.ColorLAB.L, o.ColorLAB.A, o.ColorLAB.B, o.SecondaryColors,
			o.Material, o.MaterialConfidence, o.AreaPixels,
		)
		if err != nil {
			return fmt.Errorf("insert object %d: %w", i, err)
		}
	}

	for _, rs := range img.RoomScores {
		_, err := tx.Exec(ctx, `
			INSERT INTO room_scores (image_id, room, score) VALUES ($1,$2,$3)`,
			img.ID, string(rs.Room), rs.Score,
		)
		if err != nil {
			return fmt.Errorf("insert room_score %s: %w", rs.Room, err)
		}
	}

	tags := img.Tags
	if len(tags) == 0 {
		tags = img.DeriveTags()
	}
	for _, t := range tags {
		_, err := tx.Exec(ctx, `
			INSERT INTO tags (image_id, tag) VALUES ($1,$2) ON CONFLICT DO NOTHING`,
			img.ID, t,
		)
		if err != nil {
			return fmt.Errorf("insert tag %s: %w", t, err)
		}
	}

	if img.Caption != nil {
		var vec *pgvector.Vector
		if len(img.Caption.EmbedEn) > 0 {
			v := pgvector.NewVector(img.Caption.EmbedEn)
			vec = &v
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO captions (image_id, caption_en, facts, embed_en)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (image_id) DO UPDATE SET
				caption_en = EXCLUDED.caption_en,
				facts = EXCLUDED.facts,
				embed_en = EXCLUDED.embed_en`,
			img.ID, img.Caption.Text, img.Caption.Facts, vec,
		)
		if err != nil {
			return fmt.Errorf("upsert caption: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (r *imageRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Image, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, external_id, file_name, folder_path, width, height, phash,
		       captured_at, room, room_confidence, style_tags, indexed_at
		FROM images WHERE external_id = $1`, externalID)
	return scanImage(row)
}

func (r *imageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, external_id, file_name, folder_path, width, height, phash,
		       captured_at, room, room_confidence, style_tags, indexed_at
		FROM images WHERE id = $1`, id)
	return scanImage(row)
}

func scanImage(row pgx.Row) (*models.Image, error) {
	img := &models.Image{}
	var phash int64
	var room string
	err := row.Scan(
		&img.ID, &img.ExternalID, &img.FileName, &img.FolderPath, &img.Width, &img.Height,
		&phash, &img.CapturedAt, &room, &img.RoomConfidence, &img.StyleTags, &img.IndexedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan image: %w", err)
	}
	img.PHash = uint64(phash)
	img.Room = models.Room(room)
	return img, nil
}

func (r *imageRepository) IndexedAt(ctx context.Context, externalID string) (time.Time, bool, error) {
	var t time.Time
	err := r.pool.QueryRow(ctx, `SELECT indexed_at FROM images WHERE external_id = $1`, externalID).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("lookup indexed_at: %w", err)
	}
	return t, true, nil
}

func (r *imageRepository) PhashNeighbors(ctx context.Context, folderPath string, phash uint64, excludeExternalID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT external_id, phash FROM images
		WHERE folder_path = $1 AND external_id != $2`, folderPath, excludeExternalID)
	if err != nil {
		return nil, fmt.Errorf("query phash candidates: %w", err)
	}
	defer rows.Close()

	var neighbors []string
	for rows.Next() {
		var externalID string
		var otherPhash int64
		if err := rows.Scan(&externalID, &otherPhash); err != nil {
			return nil, fmt.Errorf("scan phash candidate: %w", err)
		}
		if hammingDistance64(phash, uint64(otherPhash)) <= 6 {
			neighbors = append(neighbors, externalID)
		}
	}
	return neighbors, rows.Err()
}

// Search builds and runs the dynamic predicate spec.md §4.6 describes.
// Every filter value flows through pgx's own parameter binding ($N
// placeholders); CheckAllParameters is a second, defense-in-depth layer
// over the free-text fragments (object labels, colors, materials) before
// they ever reach the query, matching the guard the teacher's own dynamic
// query layer applies to interpolated fragments.
func (r *imageRepository) Search(ctx context.Context, params SearchParams) ([]models.RetrievalCandidate, error) {
	if bad := sqlguard.CheckAllParameters(searchParamMap(params)); len(bad) > 0 {
		return nil, apperrors.New(apperrors.KindInput, fmt.Sprintf("rejected query parameter %q: possible SQL injection", bad[0].ParamName))
	}

	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions = append(conditions, "c.embed_en IS NOT NULL")

	if params.Room != nil {
		conditions = append(conditions, fmt.Sprintf("i.room = %s", arg(string(*params.Room))))
	}

	if !params.RelaxObjects {
		for _, o := range params.Objects {
			clause := fmt.Sprintf("EXISTS (SELECT 1 FROM objects o WHERE o.image_id = i.id AND o.label = %s", arg(o.Label))
			if o.Color != "" {
				clause += fmt.Sprintf(" AND o.color_name = %s", arg(o.Color))
			}
			if o.Material != "" {
				clause += fmt.Sprintf(" AND o.material = %s", arg(o.Material))
			}
			clause += ")"
			conditions = append(conditions, clause)
		}
		for _, c := range params.FreeColors {
			conditions = append(conditions, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM tags t WHERE t.image_id = i.id AND t.tag = %s)", arg("col:"+c)))
		}
		for _, m := range params.FreeMaterials {
			conditions = append(conditions, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM tags t WHERE t.image_id = i.id AND t.tag = %s)", arg("mat:"+m)))
		}
	}

	embedPlaceholder := arg(pgvector.NewVector(params.QueryEmbedding))
	limit := params.Limit
	if limit <= 0 {
		limit = 120
	}
	limitPlaceholder := arg(limit)

	query := fmt.Sprintf(`
		SELECT i.id, i.external_id, i.file_name, i.folder_path, i.room, i.phash, c.facts,
		       1 - (c.embed_en <=> %s) AS retrieval_score
		FROM images i
		JOIN captions c ON c.image_id = i.id
		WHERE %s
		ORDER BY c.embed_en <=> %s ASC, i.external_id ASC
		LIMIT %s`,
		embedPlaceholder, strings.Join(conditions, " AND "), embedPlaceholder, limitPlaceholder,
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("run retrieval query: %w", err)
	}
	defer rows.Close()

	var out []models.RetrievalCandidate
	for rows.Next() {
		var (
			c     models.RetrievalCandidate
			id    uuid.UUID
			room  string
			phash int64
		)
		if err := rows.Scan(&id, &c.ExternalID, &c.FileName, &c.FolderPath, &room, &phash, &c.Facts, &c.RetrievalScore); err != nil {
			return nil, fmt.Errorf("scan retrieval candidate: %w", err)
		}
		c.ImageID = id.String()
		c.Room = models.Room(room)
		c.PHash = uint64(phash)
		out = append(out, c)
	}
	return out, rows.Err()
}

// searchParamMap flattens the string-valued filters of params into the map
// shape CheckAllParameters expects.
func searchParamMap(params SearchParams) map[string]any {
	m := make(map[string]any)
	if params.Room != nil {
		m["room"] = string(*params.Room)
	}
	for i, o := range params.Objects {
		m[fmt.Sprintf("object[%d].label", i)] = o.Label
		if o.Color != "" {
			m[fmt.Sprintf("object[%d].color", i)] = o.Color
		}
		if o.Material != "" {
			m[fmt.Sprintf("object[%d].material", i)] = o.Material
		}
	}
	for i, c := range params.FreeColors {
		m[fmt.Sprintf("free_color[%d]", i)] = c
	}
	for i, mat := range params.FreeMaterials {
		m[fmt.Sprintf("free_material[%d]", i)] = mat
	}
	return m
}

func hammingDistance64(a, b uint64) int {
	x := a ^ b
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}

func (r *imageRepository) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		RoomCounts:   map[string]int64{},
		ObjectCounts: map[string]int64{},
		ColorCounts:  map[string]int64{},
	}

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM images`).Scan(&stats.ImageCount); err != nil {
		return stats, fmt.Errorf("count images: %w", err)
	}

	if err := scanCountPairs(ctx, r.pool, `SELECT room, COUNT(*) FROM images GROUP BY room`, stats.RoomCounts); err != nil {
		return stats, err
	}
	if err := scanCountPairs(ctx, r.pool, `SELECT label, COUNT(*) FROM objects GROUP BY label`, stats.ObjectCounts); err != nil {
		return stats, err
	}
	if err := scanCountPairs(ctx, r.pool, `SELECT color_name, COUNT(*) FROM objects GROUP BY color_name`, stats.ColorCounts); err != nil {
		return stats, err
	}
	return stats, nil
}

func scanCountPairs(ctx context.Context, pool *pgxpool.Pool, query string, into map[string]int64) error {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query count pairs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan count pair: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}
