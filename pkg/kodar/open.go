package kodar

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cognicore/kodar/pkg/kodar/config"
	"github.com/cognicore/kodar/pkg/kodar/engine/local"
	"github.com/cognicore/kodar/pkg/kodar/internalerr"
	"github.com/cognicore/kodar/pkg/kodar/label"
	"github.com/cognicore/kodar/pkg/kodar/label/cortical"
	"github.com/cognicore/kodar/pkg/kodar/label/lda"
	"github.com/cognicore/kodar/pkg/kodar/layout"
	"github.com/cognicore/kodar/pkg/kodar/store"
	"github.com/cognicore/kodar/pkg/kodar/store/memstore"
	"github.com/cognicore/kodar/pkg/kodar/store/seqfile"
	"github.com/cognicore/kodar/pkg/kodar/store/sqlite"
	"github.com/cognicore/kodar/pkg/kodar/store/ytstore"
)

// SQLiteFile is the default database name of the sqlite backend.
const SQLiteFile = "kodar.db"

// Open wires a coordinator from configuration: working root, record store,
// term-extraction components, local engine and the labeler of the
// configured mode.
func Open(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Clustering, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	home, err := layout.ResolveHome(cfg.Home)
	if err != nil {
		return nil, err
	}
	mode, err := label.ParseMode(cfg.Labeling.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}

	loader := config.NewLoader(cfg)
	comp, err := loader.Load()
	if err != nil {
		return nil, err
	}

	st, err := OpenStore(ctx, cfg, home)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Store:         st,
		Home:          home,
		Engine:        local.New(st, comp.Tokenizer, comp.Phrases, logger.Named("engine")),
		Mode:          mode,
		Categorizer:   comp.Taxonomy,
		Evaluate:      cfg.Engine.Evaluate,
		StripMarkup:   cfg.Ingest.StripMarkup,
		LabelWorkers:  cfg.Labeling.Workers,
		ExportWorkers: cfg.Export.Workers,
		Logger:        logger,
	}
	switch mode {
	case label.SemanticFingerprint:
		opts.Fingerprint = &cortical.Client{
			BaseURL:    cfg.Labeling.Cortical.BaseURL,
			Retina:     cfg.Labeling.Cortical.Retina,
			APIKey:     cfg.Labeling.Cortical.APIKey,
			TopN:       cfg.Labeling.TopWords,
			HTTPClient: &http.Client{Timeout: time.Duration(cfg.Labeling.Cortical.TimeoutSecs) * time.Second},
		}
	default:
		opts.Topic = lda.New(cfg.Labeling.Topics, cfg.Labeling.TopWords, cfg.Labeling.LDAIterations, comp.Tokenizer.Stopwords())
	}

	logger.Debug("pipeline wired",
		zap.String("home", home),
		zap.String("store", cfg.Store.Backend),
		zap.Stringer("mode", mode),
		zap.Int("taxonomy", comp.Taxonomy.Len()))
	return New(opts), nil
}

// OpenStore opens the configured record store backend rooted at home.
func OpenStore(ctx context.Context, cfg *config.AppConfig, home string) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendSeqfile:
		s, err := seqfile.Open(home, seqfile.Codec(cfg.Store.Codec))
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendSQLite:
		p := cfg.Store.SQLitePath
		if p == "" {
			p = filepath.Join(home, SQLiteFile)
		}
		return sqlite.OpenSQLite(ctx, p)
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendYT:
		s, err := ytstore.Open(ctx, ytstore.Config{
			Proxy: cfg.Store.YT.Proxy,
			Token: os.Getenv(cfg.Store.YT.TokenEnv),
			Root:  cfg.Store.YT.Root,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", internalerr.ErrInvalidConfig, cfg.Store.Backend)
	}
}
