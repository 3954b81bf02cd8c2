// Package index implements the derived relational indices (C7):
// subject_objects and target_media, rebuilt wholesale from a graph's
// current triples after every successful object-store write. Built on
// gorm+postgres the way the reference codebase's db/postgres.go wires
// its connection pool and AutoMigrate, adapted from a single audit
// table to the two-table derived-index schema in §4.7.
package index

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/knakk/rdf"

	"twine.work/graph"
	"twine.work/twineerr"
)

// DefaultMediaPredicates seeds target_media when `*:media-predicates`
// is unset: the three predicates libtwine/cache.c's media filter
// matched (foaf:page, mrss:player, mrss:content). This is a distinct
// set from cachepred's cached-predicates pre-filter (rdf:type,
// owl:sameAs) — the two are unrelated concepts that happen to both
// default from the same source file.
var DefaultMediaPredicates = []string{
	"http://xmlns.com/foaf/0.1/page",
	"http://search.yahoo.com/mrss/player",
	"http://search.yahoo.com/mrss/content",
}

// ParseMediaPredicates splits a comma- or whitespace-separated list of
// predicate IRIs, falling back to DefaultMediaPredicates when raw is empty.
func ParseMediaPredicates(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	var preds []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			preds = append(preds, f)
		}
	}
	if len(preds) == 0 {
		return append([]string(nil), DefaultMediaPredicates...)
	}
	return preds
}

// StringSet is a Postgres TEXT[] column backed by a Go string slice,
// avoiding a dependency on the lib/pq array helper for one field type.
type StringSet []string

// Value implements driver.Valuer, rendering as a Postgres array literal.
func (s StringSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	quoted := make([]string, len(s))
	for i, v := range s {
		quoted[i] = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}", nil
}

// Scan implements sql.Scanner for the inverse direction.
func (s *StringSet) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("index.StringSet: unsupported scan type %T", src)
	}
	raw = strings.TrimPrefix(strings.TrimSuffix(raw, "}"), "{")
	if raw == "" {
		*s = nil
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, len(parts))
	unescape := strings.NewReplacer(`\\`, `\`, `\"`, `"`)
	for i, p := range parts {
		out[i] = unescape.Replace(strings.Trim(p, `"`))
	}
	*s = out
	return nil
}

// GormDataType tells gorm/AutoMigrate to use a TEXT[] column.
func (StringSet) GormDataType() string { return "text[]" }

// SubjectObjects is one row per named graph: the set of every IRI
// appearing as subject, and the set of every IRI appearing as object.
type SubjectObjects struct {
	Graph    string    `gorm:"primaryKey;column:graph"`
	Subjects StringSet `gorm:"column:subjects;type:text[]"`
	Objects  StringSet `gorm:"column:objects;type:text[]"`
}

func (SubjectObjects) TableName() string { return "subject_objects" }

// TargetMedia is one row per (graph, subject) pair linking to media
// objects via a configured predicate (e.g. foaf:page, mrss:player).
type TargetMedia struct {
	Graph   string    `gorm:"primaryKey;column:graph"`
	Subject string    `gorm:"primaryKey;column:subject"`
	Objects StringSet `gorm:"column:objects;type:text[]"`
}

func (TargetMedia) TableName() string { return "target_media" }

// Config configures the Postgres-backed derived index store.
type Config struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	MediaPredicates []string
}

// Writer maintains the derived indices described by §4.7. Every write is
// wrapped in a single SQL transaction: delete-then-insert, so the
// indices are eventually consistent with the store rather than
// accumulating stale rows.
type Writer struct {
	db              *gorm.DB
	mediaPredicates map[string]struct{}
}

// Open connects to Postgres. Schema creation is handled separately by
// the migrate package's versioned runner (see cli.runMigrations), not
// here, so the -S "initialise then exit" CLI flag can apply it without
// this Writer's connection pool outliving that one call.
func Open(cfg Config) (*Writer, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, twineerr.New(twineerr.BadConfig, "index.Open", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, twineerr.New(twineerr.BadConfig, "index.Open", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	mediaPreds := make(map[string]struct{}, len(cfg.MediaPredicates))
	for _, p := range cfg.MediaPredicates {
		mediaPreds[p] = struct{}{}
	}
	return &Writer{db: db, mediaPredicates: mediaPreds}, nil
}

// Rebuild implements §4.7 in full for graph g: deletes and re-inserts
// both subject_objects and target_media rows for g.URI() inside one
// transaction. Failure aborts without touching the already-written
// object store entry — indices may lag the object store, never lead it.
func (w *Writer) Rebuild(g *graph.Graph) error {
	err := w.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("graph = ?", g.URI()).Delete(&SubjectObjects{}).Error; err != nil {
			return err
		}
		row := SubjectObjects{Graph: g.URI(), Subjects: StringSet(g.Subjects()), Objects: StringSet(g.Objects())}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		if err := tx.Where("graph = ?", g.URI()).Delete(&TargetMedia{}).Error; err != nil {
			return err
		}
		for subject, objects := range w.mediaEdges(g) {
			row := TargetMedia{Graph: g.URI(), Subject: subject, Objects: StringSet(objects)}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "index.Rebuild", err)
	}
	return nil
}

// mediaEdges groups (subject -> sorted distinct objects) for every
// triple whose predicate is a configured media predicate and whose
// subject and object are both IRIs.
func (w *Writer) mediaEdges(g *graph.Graph) map[string][]string {
	seen := make(map[string]map[string]struct{})
	for _, t := range g.Current {
		pred, ok := t.Pred.(rdf.IRI)
		if !ok {
			continue
		}
		if _, ok := w.mediaPredicates[pred.String()]; !ok {
			continue
		}
		subj, subjOK := t.Subj.(rdf.IRI)
		obj, objOK := t.Obj.(rdf.IRI)
		if !subjOK || !objOK {
			continue
		}
		if seen[subj.String()] == nil {
			seen[subj.String()] = make(map[string]struct{})
		}
		seen[subj.String()][obj.String()] = struct{}{}
	}
	out := make(map[string][]string, len(seen))
	for subj, objs := range seen {
		list := make([]string, 0, len(objs))
		for o := range objs {
			list = append(list, o)
		}
		sort.Strings(list)
		out[subj] = list
	}
	return out
}
