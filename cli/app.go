// Package cli wires the workflow engine's components into the two
// binaries named in §6: a daemon that dispatches broker messages, and
// an import tool that runs the same pipeline over a file or stdin.
// Grounded on the reference codebase's cli.RootCmd/initConfig viper
// wiring, retargeted from an HTTP API server's flags to the daemon/
// import flag sets §6 names.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"twine.work/cachepred"
	"twine.work/cluster"
	"twine.work/config"
	"twine.work/index"
	"twine.work/migrate"
	"twine.work/plugin"
	"twine.work/storage"
	"twine.work/twine"
	"twine.work/twineerr"
	"twine.work/workflow"
)

// appSection is the configuration section under which `<app>:mq` and
// `<app>:plugin` entries are looked up.
const appSection = "twine"

// App bundles every long-lived component a daemon or import-tool run
// needs: the root context, the compiled pipeline, and the plug-in
// loader (kept so DetachAll can run at shutdown).
type App struct {
	Ctx      *twine.Context
	Pipeline *workflow.Pipeline
	Plugins  *plugin.Loader
	Index    *index.Writer
}

// NewApp builds every collaborator from cfg: SPARQL and S3 clients, the
// derived-index writer, the cluster coordinator (static or dynamic per
// `*:cluster-size`/`*:registry`), the built-in processors, any
// configured plug-ins, and the compiled `*:workflow` pipeline.
func NewApp(cfg *config.Accessor) (*App, error) {
	sparqlClient := storage.NewSPARQLClient(storage.SPARQLConfig{
		QueryEndpoint:  cfg.GetString("sparql", "query", ""),
		UpdateEndpoint: cfg.GetString("sparql", "update", ""),
		DataEndpoint:   cfg.GetString("sparql", "data", ""),
	})

	store, err := storage.NewObjectStore(context.Background(), storage.ObjectStoreConfig{
		Endpoint:     cfg.GetString("s3", "endpoint", ""),
		Access:       cfg.GetString("s3", "access", ""),
		Secret:       cfg.GetString("s3", "secret", ""),
		Bucket:       cfg.GetString("s3", "bucket", ""),
		Region:       cfg.GetString("s3", "region", "us-east-1"),
		UsePathStyle: true,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		return nil, err
	}

	idx, err := index.Open(index.Config{
		DSN:             cfg.GetString("twine", "db", ""),
		MediaPredicates: mediaPredicates(cfg),
	})
	if err != nil {
		return nil, err
	}

	clusterHandle, err := buildCluster(cfg)
	if err != nil {
		return nil, err
	}

	rulebasePath := cfg.GetString("*", "rulebase", "")
	cachePred := cachepred.New()
	if rulebasePath != "" {
		if err := cachePred.LoadFile(rulebasePath); err != nil {
			return nil, twineerr.New(twineerr.BadConfig, "cli.NewApp", err)
		}
	}

	registry := twine.NewRegistry()
	builtins := workflow.Builtins{
		SPARQL:       sparqlClient,
		Store:        store,
		Index:        idx,
		CachePred:    cachePred,
		RulebasePath: rulebasePath,
	}
	if err := workflow.RegisterBuiltins(registry, builtins); err != nil {
		return nil, err
	}

	ctx := twine.New(cfg, registry, clusterHandle)

	loader := plugin.NewLoader(ctx)
	if err := loader.LoadAll(plugin.DescriptorsFromConfig(cfg, appSection)); err != nil {
		return nil, err
	}

	names := workflow.ParsePipeline(cfg.GetString("*", "workflow", ""))
	pipeline, err := workflow.Compile(registry, names)
	if err != nil {
		return nil, err
	}
	if err := workflow.RegisterRDFHandlers(registry, pipeline); err != nil {
		return nil, err
	}

	return &App{Ctx: ctx, Pipeline: pipeline, Plugins: loader, Index: idx}, nil
}

// Close unwinds plug-ins in reverse attach order. Call on every exit path.
func (a *App) Close() {
	a.Plugins.DetachAll()
}

// mediaPredicates resolves the target_media predicate set from
// `*:media-predicates` (a comma/whitespace separated IRI list),
// independent of the cached-predicates rulebase (see cachepred.New and
// the RegisterBuiltins call in NewApp above) — the two sets serve unrelated
// stages and must not be conflated.
func mediaPredicates(cfg *config.Accessor) []string {
	return index.ParseMediaPredicates(cfg.GetString("*", "media-predicates", ""))
}

func buildCluster(cfg *config.Accessor) (twine.ClusterHandle, error) {
	registryURL := cfg.GetString("*", "registry", "")
	if registryURL == "" {
		nodeIndex := cfg.GetInt("*", "node-index", 0)
		total := cfg.GetInt("*", "cluster-size", 1)
		return cluster.NewStatic(nodeIndex, total)
	}

	nodeID := cfg.GetString("*", "node-id", "")
	if nodeID == "" {
		return nil, twineerr.Newf(twineerr.BadConfig, "cli.buildCluster", "*:node-id is required when *:registry is set")
	}
	dyn, err := cluster.NewDynamic(context.Background(), cluster.Config{
		RedisURL:    registryURL,
		ClusterKey:  cfg.GetString("*", "cluster-name", "twine"),
		Environment: cfg.GetString("*", "environment", "production"),
		InstanceID:  nodeID,
	})
	if err != nil {
		return nil, err
	}
	if err := dyn.Join(context.Background()); err != nil {
		return nil, err
	}
	return dyn, nil
}

// migrateModuleKey is the migration module name §6 specifies schema
// version 1 (subject_objects/target_media) is tracked under.
const migrateModuleKey = "com.github.bbcarchdev.twine"

// runMigrations applies every registered schema step for the `-S`
// "initialise storage then exit" flag, via the versioned runner rather
// than a bare AutoMigrate call, so repeated -S invocations across
// releases stay additive instead of re-running what already applied.
func runMigrations(cfg *config.Accessor) error {
	db, err := gorm.Open(postgres.Open(cfg.GetString("twine", "db", "")), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return twineerr.New(twineerr.BadConfig, "cli.runMigrations", err)
	}
	runner := migrate.NewRunner(db)
	runner.Register(migrate.Step{
		Module:  migrateModuleKey,
		Version: 1,
		Apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&index.SubjectObjects{}, &index.TargetMedia{})
		},
	})
	return runner.Run()
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	return v
}

func loadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	return nil
}

func applyOverrides(cfg *config.Accessor, overrides []string) error {
	for _, raw := range overrides {
		if err := cfg.ApplyOverride(raw); err != nil {
			return err
		}
	}
	return nil
}
