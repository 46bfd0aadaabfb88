// Package cli provides the command-line interface for the mrview engine:
// subcommands to update an index, query it, remove it, and watch a source
// continuously, plus the configuration plumbing (cobra flags + viper file
// overrides + environment variables) that wires them to a CouchDB source
// and a secondary store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evalgo-labs/mrview/common"
	"github.com/evalgo-labs/mrview/config"
	"github.com/evalgo-labs/mrview/db"
	"github.com/evalgo-labs/mrview/db/boltstore"
	"github.com/evalgo-labs/mrview/mapreduce"
	"github.com/evalgo-labs/mrview/mrview"
	"github.com/evalgo-labs/mrview/tasks"
)

// cfgFile holds the path to the configuration file specified via
// --config. Viper resolves settings as flags > environment variables >
// config file > defaults, but buildEngine reads MRVIEW_COUCH_URL,
// MRVIEW_COUCH_DATABASE and MRVIEW_DATA_DIR first, so when set they
// override the --couch-url, --database and --data-dir flags.
var cfgFile string

// RootCmd is the mrview command-line entry point.
var RootCmd = &cobra.Command{
	Use:   "mrview",
	Short: "query and maintain incremental map/reduce views over a CouchDB database",
	Long: `mrview maintains incremental map/reduce view indexes over a
CouchDB-compatible document database and answers range, key-set, and
grouped-reduce queries against them without rescanning the source on every
query.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mrview.yaml)")
	RootCmd.PersistentFlags().String("couch-url", "", "CouchDB server URL (env MRVIEW_COUCH_URL)")
	RootCmd.PersistentFlags().String("database", "", "source database name (env MRVIEW_COUCH_DATABASE)")
	RootCmd.PersistentFlags().String("data-dir", "", "directory for the embedded secondary store (env MRVIEW_DATA_DIR)")
	RootCmd.PersistentFlags().Bool("remote-store", false, "keep index state in a second CouchDB database instead of the embedded store")

	viper.BindPFlag("couch_url", RootCmd.PersistentFlags().Lookup("couch-url"))
	viper.BindPFlag("database", RootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("data_dir", RootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("remote_store", RootCmd.PersistentFlags().Lookup("remote-store"))

	RootCmd.AddCommand(updateCmd, queryCmd, removeIndexCmd, watchCmd)
	addViewFlags(updateCmd)
	addViewFlags(queryCmd)
	addViewFlags(removeIndexCmd)
	addViewFlags(watchCmd)
	addQueryFlags(queryCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mrview")
	}

	viper.SetEnvPrefix("MRVIEW")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// addViewFlags attaches the map/reduce source flags every index-scoped
// subcommand needs to resolve a ViewDefinition.
func addViewFlags(cmd *cobra.Command) {
	cmd.Flags().String("map-file", "", "path to the view's map function source")
	cmd.Flags().String("reduce", "", "reduce function: a built-in name (_sum, _count, _stats) or a path to JavaScript source")
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("key", "", "exact key to match (JSON-decoded)")
	cmd.Flags().String("startkey", "", "inclusive range start (JSON-decoded)")
	cmd.Flags().String("endkey", "", "range end (JSON-decoded)")
	cmd.Flags().Bool("inclusive-end", true, "whether endkey is inclusive")
	cmd.Flags().Bool("descending", false, "reverse key order")
	cmd.Flags().Int("limit", 0, "maximum rows to return (0 = unlimited)")
	cmd.Flags().Int("skip", 0, "rows to skip before the first result")
	cmd.Flags().Bool("include-docs", false, "join each row's source document")
	cmd.Flags().Bool("reduce-query", false, "apply the view's reduce function")
	cmd.Flags().Bool("group", false, "group reduced rows by exact key")
	cmd.Flags().Int("group-level", 0, "group reduced rows by a key prefix of this length")
	cmd.Flags().String("stale", "", "staleness mode: empty (update then query), \"ok\", or \"update_after\"")
}

func viewDefinitionFromFlags(cmd *cobra.Command) (mrview.ViewDefinition, error) {
	mapFile, _ := cmd.Flags().GetString("map-file")
	if mapFile == "" {
		return mrview.ViewDefinition{}, fmt.Errorf("--map-file is required")
	}
	mapSrc, err := os.ReadFile(mapFile)
	if err != nil {
		return mrview.ViewDefinition{}, fmt.Errorf("reading map file: %w", err)
	}

	reduceFlag, _ := cmd.Flags().GetString("reduce")
	reduceSrc := reduceFlag
	switch reduceFlag {
	case "", "_sum", "_count", "_stats":
		// built-in name or no reduce function at all, use as-is
	default:
		src, err := os.ReadFile(reduceFlag)
		if err != nil {
			return mrview.ViewDefinition{}, fmt.Errorf("reading reduce file: %w", err)
		}
		reduceSrc = string(src)
	}

	return mrview.ViewDefinition{MapSrc: string(mapSrc), ReduceSrc: reduceSrc}, nil
}

func queryOptionsFromFlags(cmd *cobra.Command) (mrview.QueryOptions, error) {
	var opts mrview.QueryOptions

	if key, _ := cmd.Flags().GetString("key"); key != "" {
		if err := json.Unmarshal([]byte(key), &opts.Key); err != nil {
			return opts, fmt.Errorf("parsing --key: %w", err)
		}
		opts.HasKey = true
	}
	if startkey, _ := cmd.Flags().GetString("startkey"); startkey != "" {
		if err := json.Unmarshal([]byte(startkey), &opts.StartKey); err != nil {
			return opts, fmt.Errorf("parsing --startkey: %w", err)
		}
		opts.HasStartKey = true
	}
	if endkey, _ := cmd.Flags().GetString("endkey"); endkey != "" {
		if err := json.Unmarshal([]byte(endkey), &opts.EndKey); err != nil {
			return opts, fmt.Errorf("parsing --endkey: %w", err)
		}
		opts.HasEndKey = true
	}

	inclusiveEnd, _ := cmd.Flags().GetBool("inclusive-end")
	opts.ExclusiveEnd = !inclusiveEnd

	opts.Descending, _ = cmd.Flags().GetBool("descending")
	opts.Skip, _ = cmd.Flags().GetInt("skip")
	opts.IncludeDocs, _ = cmd.Flags().GetBool("include-docs")
	opts.Group, _ = cmd.Flags().GetBool("group")

	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		opts.Limit = limit
		opts.HasLimit = true
	}
	if groupLevel, _ := cmd.Flags().GetInt("group-level"); groupLevel > 0 {
		opts.GroupLevel = groupLevel
		opts.HasGroupLevel = true
	}
	if cmd.Flags().Changed("reduce-query") {
		opts.Reduce, _ = cmd.Flags().GetBool("reduce-query")
		opts.HasReduce = true
	}

	switch stale, _ := cmd.Flags().GetString("stale"); stale {
	case "":
		opts.Stale = mrview.StaleFalse
	case "ok":
		opts.Stale = mrview.StaleOK
	case "update_after":
		opts.Stale = mrview.StaleUpdateAfter
	default:
		return opts, fmt.Errorf("--stale must be one of: ok, update_after")
	}

	return opts, nil
}

// engineDeps bundles the source, store, and registry every index-scoped
// command needs, built once from the resolved configuration.
type engineDeps struct {
	registry *mrview.Registry
	queue    *tasks.Queue
	close    func()
}

func buildEngine(ctx context.Context) (*engineDeps, error) {
	env := config.NewEnvConfig("MRVIEW")
	couchURL := env.GetString("COUCH_URL", viper.GetString("couch_url"))
	database := env.GetString("COUCH_DATABASE", viper.GetString("database"))
	dataDir := env.GetString("DATA_DIR", viper.GetString("data_dir"))
	if couchURL == "" {
		couchURL = "http://localhost:5984"
	}
	if database == "" {
		return nil, fmt.Errorf("a source database name is required (--database or MRVIEW_COUCH_DATABASE)")
	}
	if dataDir == "" {
		dataDir = "."
	}

	svc, err := db.NewCouchDBServiceFromConfig(db.CouchDBConfig{
		URL:             couchURL,
		Database:        database,
		CreateIfMissing: false,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to source database: %w", err)
	}
	source := db.NewSource(svc)

	var store mrview.SecondaryStore
	var closeStore func()
	if viper.GetBool("remote_store") {
		client, err := kivik.New("couch", couchURL)
		if err != nil {
			return nil, fmt.Errorf("connecting for remote index store: %w", err)
		}
		store = db.NewCouchDBStore(client, database)
		closeStore = func() {}
	} else {
		bstore, err := boltstore.Open(dataDir + "/mrview.db")
		if err != nil {
			return nil, fmt.Errorf("opening embedded store: %w", err)
		}
		store = bstore
		closeStore = func() { bstore.Close() }
	}

	queue := tasks.New(ctx, common.Logger)
	eval := mapreduce.New(common.Logger)
	registry := mrview.NewRegistry(source, store, queue, eval, common.Logger)

	return &engineDeps{
		registry: registry,
		queue:    queue,
		close: func() {
			closeStore()
			svc.Close()
		},
	}, nil
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "bring an index fully up to date with its source",
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := viewDefinitionFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer deps.close()

		idx, err := deps.registry.GetIndex(ctx, def)
		if err != nil {
			return err
		}
		return idx.Update(ctx)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "answer a view query",
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := viewDefinitionFromFlags(cmd)
		if err != nil {
			return err
		}
		opts, err := queryOptionsFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer deps.close()

		idx, err := deps.registry.GetIndex(ctx, def)
		if err != nil {
			return err
		}
		result, err := idx.Query(ctx, opts)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var removeIndexCmd = &cobra.Command{
	Use:   "remove-index",
	Short: "permanently destroy an index's stored rows and metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := viewDefinitionFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		deps, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer deps.close()

		return deps.registry.RemoveIndex(ctx, def)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "keep an index continuously up to date with its source",
	Long: `watch brings an index up to date and then keeps polling for new
changes at a fixed interval until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := viewDefinitionFromFlags(cmd)
		if err != nil {
			return err
		}
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		deps, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer deps.close()

		idx, err := deps.registry.GetIndex(ctx, def)
		if err != nil {
			return err
		}

		log := common.ServiceLogger("mrview-watch", idx.Name)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := idx.Update(ctx); err != nil {
				log.WithError(err).Error("index update failed")
			}
			select {
			case <-ctx.Done():
				log.Info("watch stopped")
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 5*time.Second, "polling interval between update attempts")
}


