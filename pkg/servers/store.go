package servers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrServerNotFound is returned when no row matches the requested id.
var ErrServerNotFound = errors.New("server not found")

const (
	upsertBatchSize = 200
	DefaultLimit    = 20
	MaxLimit        = 100
)

// upsertedColumns are rewritten on conflict. published_at is absent so the
// first insert time survives later syncs; meta is merged, not replaced.
var upsertedColumns = []string{
	"name", "description", "status", "latest_version", "website_url",
	"repository", "packages", "remotes", "updated_at",
}

// Store provides database operations for canonical server records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the server and presence tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Server{}, &Presence{})
}

// Batch is the output of one sync pass for one source.
type Batch struct {
	// Source is the short source name, e.g. "blockchain".
	Source string
	// Servers are the normalized records. Their meta holds only the
	// source's own namespace.
	Servers []Server
	// UnfetchedIDs are listings still present in the source index whose
	// detail fetch failed. They keep an existing presence row fresh but
	// never create one.
	UnfetchedIDs []string
	// SyncedAt stamps updated_at, and published_at on first insert.
	SyncedAt time.Time
	// RetireAfter deprecates servers every source has missed this many
	// consecutive successful syncs. Zero disables retirement.
	RetireAfter int
}

// UpsertResult summarizes what Upsert changed.
type UpsertResult struct {
	Upserted int
	Retired  int
}

// Upsert writes the batch in a single transaction: records are inserted or
// updated keyed on id, the incoming meta namespaces are merged into the
// stored meta by the database, presence is refreshed and, when enabled,
// stale servers are retired.
func (s *Store) Upsert(ctx context.Context, b Batch) (*UpsertResult, error) {
	res := &UpsertResult{}
	syncedAt := b.SyncedAt.UTC().Truncate(time.Microsecond)
	if syncedAt.IsZero() {
		syncedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	records := dedupeByID(b.Servers)
	for i := range records {
		records[i].UpdatedAt = syncedAt
		records[i].PublishedAt = syncedAt
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, group := range groupByNamespaces(records) {
			err := tx.Clauses(serverUpsertClause(tx.Dialector.Name(), group.namespaces)).
				CreateInBatches(&group.records, upsertBatchSize).Error
			if err != nil {
				return fmt.Errorf("upsert servers: %w", err)
			}
		}
		res.Upserted = len(records)

		if b.Source == "" {
			return nil
		}
		present := mapset.NewThreadUnsafeSet[string]()
		for _, r := range records {
			present.Add(r.ID)
		}
		unfetched := mapset.NewThreadUnsafeSet(b.UnfetchedIDs...).Difference(present)
		if present.Cardinality() == 0 && unfetched.Cardinality() == 0 {
			return nil
		}
		if err := markPresence(tx, b.Source, present, unfetched, syncedAt); err != nil {
			return err
		}
		if b.RetireAfter > 0 {
			n, err := retireStale(tx, b.Source, b.RetireAfter)
			if err != nil {
				return err
			}
			res.Retired = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

type namespaceGroup struct {
	namespaces []string
	records    []Server
}

// groupByNamespaces splits records by the set of meta namespaces they
// carry, keeping first-seen order. Each group shares one conflict clause.
func groupByNamespaces(records []Server) []namespaceGroup {
	var groups []namespaceGroup
	index := map[string]int{}
	for _, r := range records {
		entries, err := decodeMeta(r.Meta)
		if err != nil {
			entries = nil
		}
		namespaces := make([]string, 0, len(entries))
		for ns := range entries {
			namespaces = append(namespaces, ns)
		}
		sort.Strings(namespaces)
		key := strings.Join(namespaces, "\x00")
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, namespaceGroup{namespaces: namespaces})
		}
		groups[i].records = append(groups[i].records, r)
	}
	return groups
}

func serverUpsertClause(dialect string, namespaces []string) clause.OnConflict {
	assignments := clause.AssignmentColumns(upsertedColumns)
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: "meta"},
		Value:  metaMergeExpr(dialect, namespaces),
	})
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: assignments,
	}
}

// metaMergeExpr overlays the incoming namespaces onto the stored meta
// object. Namespaces of other sources are left untouched.
func metaMergeExpr(dialect string, namespaces []string) clause.Expr {
	switch dialect {
	case "postgres":
		return gorm.Expr(`COALESCE("mcp_servers_v1"."meta", '{}'::jsonb) || excluded."meta"`)
	case "mysql":
		expr, args := "COALESCE(`meta`, JSON_OBJECT())", []any{}
		for _, ns := range namespaces {
			expr = "JSON_SET(" + expr + ", ?, JSON_EXTRACT(VALUES(`meta`), ?))"
			args = append(args, metaPath(ns), metaPath(ns))
		}
		return gorm.Expr(expr, args...)
	default:
		expr, args := `COALESCE("mcp_servers_v1"."meta", '{}')`, []any{}
		for _, ns := range namespaces {
			expr = "json_set(" + expr + `, ?, json(json_extract(excluded."meta", ?)))`
			args = append(args, metaPath(ns), metaPath(ns))
		}
		return gorm.Expr(expr, args...)
	}
}

// metaPath is the JSON path of a top-level namespace key. Namespaces are
// reverse-DNS names, so the key is quoted.
func metaPath(namespace string) string {
	return `$."` + namespace + `"`
}

// dedupeByID keeps the last record for each id, in first-seen order.
func dedupeByID(in []Server) []Server {
	index := make(map[string]int, len(in))
	out := make([]Server, 0, len(in))
	for _, r := range in {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// markPresence counts a miss for every server this source reported before,
// then resets the counter of the servers present in this run. Misses are
// decided by id, never by comparing stored timestamps.
func markPresence(tx *gorm.DB, source string, present, unfetched mapset.Set[string], at time.Time) error {
	err := tx.Model(&Presence{}).
		Where("source = ?", source).
		UpdateColumn("missed_syncs", gorm.Expr("missed_syncs + 1")).Error
	if err != nil {
		return fmt.Errorf("count missed syncs: %w", err)
	}

	ids := present.ToSlice()
	sort.Strings(ids)
	rows := make([]Presence, len(ids))
	for i, id := range ids {
		rows[i] = Presence{ServerID: id, Source: source, LastSeenAt: at}
	}
	if len(rows) > 0 {
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "server_id"}, {Name: "source"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "missed_syncs"}),
		}).CreateInBatches(&rows, upsertBatchSize).Error
		if err != nil {
			return fmt.Errorf("mark presence: %w", err)
		}
	}

	kept := unfetched.ToSlice()
	sort.Strings(kept)
	for start := 0; start < len(kept); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(kept))
		err := tx.Model(&Presence{}).
			Where("source = ? AND server_id IN ?", source, kept[start:end]).
			UpdateColumns(map[string]any{"last_seen_at": at, "missed_syncs": 0}).Error
		if err != nil {
			return fmt.Errorf("refresh unfetched presence: %w", err)
		}
	}
	return nil
}

// retireStale deprecates active servers that this source has missed at
// least after times and that no source has seen more recently.
func retireStale(tx *gorm.DB, source string, after int) (int, error) {
	stale := tx.Model(&Presence{}).Select("server_id").
		Where("source = ? AND missed_syncs >= ?", source, after)
	fresh := tx.Model(&Presence{}).Select("server_id").
		Where("missed_syncs < ?", after)

	result := tx.Model(&Server{}).
		Where("status = ?", StatusActive).
		Where("id IN (?)", stale).
		Where("id NOT IN (?)", fresh).
		UpdateColumn("status", StatusDeprecated)
	if result.Error != nil {
		return 0, fmt.Errorf("retire stale servers: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// Get retrieves a server by id.
func (s *Store) Get(ctx context.Context, id string) (*Server, error) {
	var srv Server
	if err := s.db.WithContext(ctx).First(&srv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("get server: %w", err)
	}
	return &srv, nil
}

// ListOptions select one page of the keyset-paginated server list.
type ListOptions struct {
	Limit        int
	Cursor       string
	Search       string
	UpdatedSince *time.Time
}

// ListPage is one page of servers ordered by updated_at, id descending.
type ListPage struct {
	Servers    []Server
	NextCursor string
}

// List returns servers newest first, continuing after Cursor when set.
func (s *Store) List(ctx context.Context, opts ListOptions) (*ListPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	q := s.db.WithContext(ctx).Model(&Server{})
	q = applySearch(q, opts.Search)
	if opts.UpdatedSince != nil {
		q = q.Where("updated_at >= ?", opts.UpdatedSince.UTC())
	}
	if opts.Cursor != "" {
		at, id, err := DecodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		at = at.UTC()
		q = q.Where("updated_at < ? OR (updated_at = ? AND id < ?)", at, at, id)
	}

	var rows []Server
	if err := q.Order("updated_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}

	page := &ListPage{Servers: rows}
	if len(rows) > limit {
		last := rows[limit-1]
		page.Servers = rows[:limit]
		page.NextCursor = EncodeCursor(last.UpdatedAt, last.ID)
	}
	return page, nil
}

// PageOptions select one offset page of active servers for the tool
// surface. Meta filters match in any of Namespaces.
type PageOptions struct {
	Page               int
	Limit              int
	Query              string
	Category           string
	IsOfficial         *bool
	AuthenticationType string
	Namespaces         []string
}

// Page returns active servers, newest first, and the total match count.
func (s *Store) Page(ctx context.Context, opts PageOptions) ([]Server, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 10
	}
	if opts.Limit > MaxLimit {
		opts.Limit = MaxLimit
	}

	db := s.db.WithContext(ctx)
	q := db.Model(&Server{}).Where("status = ?", StatusActive)
	q = applySearch(q, opts.Query)

	var err error
	if opts.Category != "" {
		if q, err = whereMetaAny(db, q, opts.Namespaces, "category", opts.Category); err != nil {
			return nil, 0, err
		}
	}
	if opts.AuthenticationType != "" {
		if q, err = whereMetaAny(db, q, opts.Namespaces, "authentication_type", opts.AuthenticationType); err != nil {
			return nil, 0, err
		}
	}
	if opts.IsOfficial != nil {
		if q, err = whereMetaAny(db, q, opts.Namespaces, "is_official", metaBoolLiteral(db, *opts.IsOfficial)); err != nil {
			return nil, 0, err
		}
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count servers: %w", err)
	}

	var rows []Server
	err = q.Order("published_at DESC").Order("id DESC").
		Offset((opts.Page - 1) * opts.Limit).Limit(opts.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("page servers: %w", err)
	}
	return rows, total, nil
}

// ListActive returns every active server ordered by name.
func (s *Store) ListActive(ctx context.Context) ([]Server, error) {
	var rows []Server
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list active servers: %w", err)
	}
	return rows, nil
}

// Stats aggregates table counts for status reporting.
type Stats struct {
	TotalActive int64
	ByNamespace map[string]int64
	LastSynced  *Server
}

// Stats counts active servers, servers carrying each meta namespace, and
// finds the most recently synced server.
func (s *Store) Stats(ctx context.Context, namespaces ...string) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{ByNamespace: make(map[string]int64, len(namespaces))}

	if err := db.Model(&Server{}).Where("status = ?", StatusActive).Count(&stats.TotalActive).Error; err != nil {
		return nil, fmt.Errorf("count active servers: %w", err)
	}

	for _, ns := range namespaces {
		expr, err := metaExpr(db, ns, "")
		if err != nil {
			return nil, err
		}
		var n int64
		if err := db.Model(&Server{}).Where(expr + " IS NOT NULL").Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count servers in %s: %w", ns, err)
		}
		stats.ByNamespace[ns] = n
	}

	var last Server
	err := db.Select("id", "name", "updated_at").Order("updated_at DESC").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("find last synced server: %w", err)
	}
	if last.ID != "" {
		stats.LastSynced = &last
	}
	return stats, nil
}

// applySearch adds a case-insensitive substring match on name or
// description.
func applySearch(q *gorm.DB, search string) *gorm.DB {
	search = strings.TrimSpace(search)
	if search == "" {
		return q
	}
	pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
	return q.Where("LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!'", pattern, pattern)
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
