// Package db provides CouchDB integration for document-based storage: a
// thin service wrapper over the Kivik CouchDB driver, plus a Source
// adapter that lets the mrview engine treat a CouchDB database as its
// change-fed source database.
//
// CouchDB Integration:
//
//	CouchDB is a document-oriented NoSQL database that provides:
//	- JSON document storage with schema flexibility
//	- Multi-Version Concurrency Control (MVCC) for conflict resolution
//	- MapReduce views for complex queries and aggregation
//	- HTTP RESTful API for language-agnostic access
//
// Document Operations:
//
//	Supports complete document lifecycle management:
//	- CRUD operations with revision management
//	- Bulk operations for high-performance scenarios
//	- Selective querying with Mango query language
//	- Database export and backup capabilities
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // The CouchDB driver
)

// CouchDBService encapsulates CouchDB client functionality shared by every
// operation in this package.
//
// Service Components:
//   - client: Kivik CouchDB client for database connectivity
//   - database: Active database handle for document operations
//   - dbName: Database name for configuration and logging purposes
type CouchDBService struct {
	client   *kivik.Client
	database *kivik.DB
	dbName   string
}

// CouchDBAnimals demonstrates basic CouchDB operations with a simple animal
// document: connect, ensure the database exists, and insert a document
// with an explicit ID.
func CouchDBAnimals(url string) {
	client, err := kivik.New("couch", url)
	if err != nil {
		panic(err)
	}

	exists, _ := client.DBExists(context.Background(), "animals")
	if !exists {
		err = client.CreateDB(context.Background(), "animals")
		if err != nil {
			fmt.Println(err)
		}
	}
	db := client.DB("animals")

	doc := map[string]interface{}{
		"_id":      "cow",
		"feet":     4,
		"greeting": "moo",
	}

	rev, err := db.Put(context.TODO(), "cow", doc)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Cow inserted with revision %s\n", rev)
}

// CouchDBDocNew creates a new document in the specified database with
// automatic ID generation, returning the assigned document ID and its
// initial revision.
func CouchDBDocNew(url, db string, doc interface{}) (string, string) {
	client, err := kivik.New("couch", url)
	if err != nil {
		panic(err)
	}
	exists, _ := client.DBExists(context.Background(), db)
	if !exists {
		err = client.CreateDB(context.Background(), db)
		if err != nil {
			fmt.Println(err)
		}
	}
	cdb := client.DB(db)
	docId, revId, err := cdb.CreateDoc(context.TODO(), doc)
	if err != nil {
		panic(err)
	}
	return docId, revId
}

// CouchDBDocGet retrieves a document from the specified database by ID,
// returning a Kivik document handle for flexible data extraction.
func CouchDBDocGet(url, db, docId string) *kivik.Document {
	client, err := kivik.New("couch", url)
	if err != nil {
		panic(err)
	}
	exists, _ := client.DBExists(context.Background(), db)
	if !exists {
		err = client.CreateDB(context.Background(), db)
		if err != nil {
			fmt.Println(err)
		}
	}
	cdb := client.DB(db)
	return cdb.Get(context.TODO(), docId)
}

// NewCouchDBServiceFromConfig creates a new CouchDB service from generic
// configuration, supporting authentication injection, timeouts, and
// automatic database creation.
func NewCouchDBServiceFromConfig(config CouchDBConfig) (*CouchDBService, error) {
	connectionURL := config.URL
	if config.Username != "" && config.Password != "" {
		if !strings.Contains(connectionURL, "@") {
			parts := strings.SplitN(connectionURL, "://", 2)
			if len(parts) == 2 {
				connectionURL = fmt.Sprintf("%s://%s:%s@%s",
					parts[0], config.Username, config.Password, parts[1])
			}
		}
	}

	client, err := kivik.New("couch", connectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(config.Timeout)*time.Millisecond)
		defer cancel()
	}

	exists, err := client.DBExists(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to check if database exists: %w", err)
	}

	if !exists {
		if config.CreateIfMissing {
			err = client.CreateDB(ctx, config.Database)
			if err != nil {
				return nil, fmt.Errorf("failed to create database: %w", err)
			}
		} else {
			return nil, fmt.Errorf("database %s does not exist", config.Database)
		}
	}

	db := client.DB(config.Database)

	return &CouchDBService{
		client:   client,
		database: db,
		dbName:   config.Database,
	}, nil
}

// Close gracefully shuts down the CouchDB service and releases its
// connection resources.
func (c *CouchDBService) Close() error {
	return c.client.Close()
}

// DownloadAllDocuments exports all documents from a CouchDB database to the
// filesystem as one JSON file per document, skipping design documents.
func DownloadAllDocuments(url, db, outputDir string) error {
	ctx := context.Background()
	client, err := kivik.New("couch", url)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	fmt.Printf("Processing database: %s\n", db)

	if err := downloadDatabaseDocuments(ctx, client, db, outputDir); err != nil {
		log.Printf("Error processing database %s: %v", db, err)
	}
	return nil
}

func downloadDatabaseDocuments(ctx context.Context, client *kivik.Client, dbName, outputDir string) error {
	db := client.DB(dbName)

	dbDir := filepath.Join(outputDir, dbName)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	rows := db.AllDocs(ctx, kivik.Param("include_docs", true))
	defer rows.Close()

	docCount := 0
	for rows.Next() {
		id, err := rows.ID()
		if err != nil {
			log.Printf("Failed to get ID: %v", err)
			continue
		}
		if strings.HasPrefix(id, "_design/") {
			continue
		}

		var doc map[string]interface{}
		if err := rows.ScanDoc(&doc); err != nil {
			log.Printf("Error scanning document %s: %v", id, err)
			continue
		}

		filename := sanitizeFilename(id) + ".json"
		docPath := filepath.Join(dbDir, filename)

		if err := saveDocumentToFile(doc, docPath); err != nil {
			log.Printf("Error saving document %s: %v", id, err)
			continue
		}

		docCount++
		if docCount%100 == 0 {
			fmt.Printf("  Downloaded %d documents from %s\n", docCount, dbName)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating documents: %w", err)
	}

	fmt.Printf("  Completed %s: %d documents downloaded\n", dbName, docCount)
	return nil
}

func saveDocumentToFile(doc map[string]interface{}, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// sanitizeFilename converts a document ID into a filesystem-safe filename,
// replacing path-hostile characters and bounding the length.
func sanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	if len(result) > 200 {
		result = result[:200]
	}

	return result
}

// CreateDatabaseFromURL creates a new CouchDB database with the given name.
func CreateDatabaseFromURL(url, dbName string) error {
	client, err := kivik.New("couch", url)
	if err != nil {
		return fmt.Errorf("failed to connect to CouchDB: %w", err)
	}
	defer client.Close()

	ctx := context.Background()
	err = client.CreateDB(ctx, dbName)
	if err != nil {
		if kivik.HTTPStatus(err) != 0 {
			return &CouchDBError{
				StatusCode: kivik.HTTPStatus(err),
				ErrorType:  "create_database_failed",
				Reason:     err.Error(),
			}
		}
		return fmt.Errorf("failed to create database: %w", err)
	}

	return nil
}

// DeleteDatabaseFromURL deletes a CouchDB database and all its documents.
func DeleteDatabaseFromURL(url, dbName string) error {
	client, err := kivik.New("couch", url)
	if err != nil {
		return fmt.Errorf("failed to connect to CouchDB: %w", err)
	}
	defer client.Close()

	ctx := context.Background()
	err = client.DestroyDB(ctx, dbName)
	if err != nil {
		if kivik.HTTPStatus(err) != 0 {
			return &CouchDBError{
				StatusCode: kivik.HTTPStatus(err),
				ErrorType:  "delete_database_failed",
				Reason:     err.Error(),
			}
		}
		return fmt.Errorf("failed to delete database: %w", err)
	}

	return nil
}

// DatabaseExistsFromURL checks if a database exists.
func DatabaseExistsFromURL(url, dbName string) (bool, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return false, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}
	defer client.Close()

	ctx := context.Background()
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}

	return exists, nil
}

// GetDatabaseInfo retrieves metadata and statistics about the database.
func (c *CouchDBService) GetDatabaseInfo() (*DatabaseInfo, error) {
	ctx := context.Background()

	stats, err := c.database.Stats(ctx)
	if err != nil {
		if kivik.HTTPStatus(err) != 0 {
			return nil, &CouchDBError{
				StatusCode: kivik.HTTPStatus(err),
				ErrorType:  "get_database_info_failed",
				Reason:     err.Error(),
			}
		}
		return nil, fmt.Errorf("failed to get database info: %w", err)
	}

	info := &DatabaseInfo{
		DBName:      c.dbName,
		DocCount:    stats.DocCount,
		DocDelCount: stats.DeletedCount,
		UpdateSeq:   stats.UpdateSeq,
		DiskSize:    stats.DiskSize,
		DataSize:    stats.ActiveSize,
	}

	return info, nil
}

// CompactDatabase triggers database compaction, reclaiming disk space by
// removing old document revisions and purging deleted documents.
func (c *CouchDBService) CompactDatabase() error {
	ctx := context.Background()

	err := c.database.Compact(ctx)
	if err != nil {
		if kivik.HTTPStatus(err) != 0 {
			return &CouchDBError{
				StatusCode: kivik.HTTPStatus(err),
				ErrorType:  "compact_database_failed",
				Reason:     err.Error(),
			}
		}
		return fmt.Errorf("failed to compact database: %w", err)
	}

	return nil
}


